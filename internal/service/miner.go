package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/kortexlabs/kortex/internal/domain"
)

const (
	maxSignificantTags = 3
	tagMatchLimit      = 5
	categoryMatchLimit = 10
	learningMatchLimit = 10
	customerHistory    = 10

	tagSimilarity            = 0.8
	categorySimilarity       = 0.7
	learningMinConfidence    = 0.6
	customerSuccessThreshold = 0.7
	customerPatternStrength  = 0.8
)

// PatternService mines historical data for signals relevant to a new
// conversation. Read-only; every sub-query degrades to an empty contribution
// on store failure so routing still happens on partial history.
type PatternService struct {
	conversations domain.ConversationStore
	learnings     domain.LearningStore
	metrics       domain.MetricStore
	logger        *zap.Logger
}

func NewPatternService(conversations domain.ConversationStore, learnings domain.LearningStore, metrics domain.MetricStore, logger *zap.Logger) *PatternService {
	return &PatternService{
		conversations: conversations,
		learnings:     learnings,
		metrics:       metrics,
		logger:        logger,
	}
}

// FindPatterns runs the four mining passes: tag similarity, category+sentiment
// similarity, persisted agent learnings, and customer success history. It
// returns an error only when ctx is done; store failures degrade per pass.
func (s *PatternService) FindPatterns(ctx context.Context, conv *domain.Conversation) ([]domain.PatternMatch, error) {
	var patterns []domain.PatternMatch

	tags := conv.Tags
	if len(tags) > maxSignificantTags {
		tags = tags[:maxSignificantTags]
	}
	for _, tag := range tags {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		similar, err := s.conversations.ListByTag(ctx, tag, conv.ID, tagMatchLimit)
		if err != nil {
			s.logger.Warn("tag similarity query failed", zap.String("tag", tag), zap.Error(err))
			continue
		}
		for i := range similar {
			prior := &similar[i]
			rate, err := s.metrics.ConversationSuccessRate(ctx, prior.ID)
			if err != nil {
				s.logger.Warn("success rate lookup failed", zap.String("conversation_id", prior.ID.String()), zap.Error(err))
				continue
			}
			patterns = append(patterns, domain.PatternMatch{
				Kind:        domain.PatternTagSimilarity,
				SourceID:    prior.ID,
				Tag:         tag,
				Category:    prior.Category,
				SuccessRate: rate,
				Similarity:  tagSimilarity,
			})
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sameCategory, err := s.conversations.ListByCategory(ctx, conv.Category, conv.ID, categoryMatchLimit)
	if err != nil {
		s.logger.Warn("category similarity query failed", zap.String("category", conv.Category), zap.Error(err))
	}
	for i := range sameCategory {
		prior := &sameCategory[i]
		if prior.Sentiment != conv.Sentiment {
			continue
		}
		rate, err := s.metrics.ConversationSuccessRate(ctx, prior.ID)
		if err != nil {
			s.logger.Warn("success rate lookup failed", zap.String("conversation_id", prior.ID.String()), zap.Error(err))
			continue
		}
		patterns = append(patterns, domain.PatternMatch{
			Kind:        domain.PatternCategorySentiment,
			SourceID:    prior.ID,
			Category:    prior.Category,
			Sentiment:   prior.Sentiment,
			SuccessRate: rate,
			Similarity:  categorySimilarity,
		})
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records, err := s.learnings.ListByCategory(ctx, conv.Category, learningMinConfidence, learningMatchLimit)
	if err != nil {
		s.logger.Warn("agent learnings query failed", zap.String("category", conv.Category), zap.Error(err))
	}
	for i := range records {
		r := &records[i]
		patterns = append(patterns, domain.PatternMatch{
			Kind:       domain.PatternAgentLearning,
			SourceID:   r.ID,
			Category:   r.Category,
			AgentType:  r.AgentType,
			Confidence: r.ConfidenceScore,
		})
	}

	// A customer reference that does not parse is an anonymous customer, not
	// an error; the pass simply yields nothing.
	if customerID, ok := conv.CustomerID(); ok {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		history, err := s.conversations.ListByCustomer(ctx, customerID, customerHistory)
		if err != nil {
			s.logger.Warn("customer history query failed", zap.String("customer_id", customerID.String()), zap.Error(err))
		}
		for i := range history {
			prior := &history[i]
			rate, err := s.metrics.ConversationSuccessRate(ctx, prior.ID)
			if err != nil {
				s.logger.Warn("success rate lookup failed", zap.String("conversation_id", prior.ID.String()), zap.Error(err))
				continue
			}
			if rate <= customerSuccessThreshold {
				continue
			}
			patterns = append(patterns, domain.PatternMatch{
				Kind:        domain.PatternCustomerSuccess,
				SourceID:    prior.ID,
				Category:    prior.Category,
				SuccessRate: rate,
				Similarity:  customerPatternStrength,
			})
		}
	}

	return patterns, nil
}
