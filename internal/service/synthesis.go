package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/google/uuid"
	"github.com/kortexlabs/kortex/internal/domain"
)

const (
	conflictFloor = 0.5

	highConfidenceMark = 0.8
	lowConfidenceMark  = 0.5

	minCustomerHistory = 2
	topCustomerTags    = 3
)

// Synthesize merges one conversation's handler results into a single view:
// who participated, the overall confidence, and how many results conflicted.
// Errored results never vote; with no usable result the confidence defaults
// to 0.5.
func Synthesize(conversationID uuid.UUID, results []domain.AgentResult) domain.Synthesis {
	syn := domain.Synthesis{
		ConversationID: conversationID,
		Timestamp:      time.Now().UTC(),
	}

	var sum float64
	var voting int
	for _, r := range results {
		if r.Failed() {
			syn.ConflictsDetected++
			continue
		}
		syn.Participants = append(syn.Participants, r.AgentType)
		if r.Confidence < conflictFloor {
			syn.ConflictsDetected++
		}
		sum += r.Confidence
		voting++
		if r.AgentType == domain.AgentCoordinator {
			syn.Recommendations = r.Recommendations
		}
	}

	if voting == 0 {
		syn.OverallConfidence = conflictFloor
	} else {
		syn.OverallConfidence = sum / float64(voting)
	}

	// The coordinator reconciles every conflict it sees.
	syn.ConflictsResolved = syn.ConflictsDetected
	if len(results) > 0 {
		syn.CoordinationScore = syn.OverallConfidence * float64(voting) / float64(len(results))
	} else {
		syn.CoordinationScore = conflictFloor
	}

	return syn
}

// Extractor derives durable learning from a processed conversation: customer
// behavioral patterns from their history, conversation-local patterns,
// per-handler performance flags, and business insights.
type Extractor struct {
	conversations domain.ConversationStore
	logger        *zap.Logger
}

func NewExtractor(conversations domain.ConversationStore, logger *zap.Logger) *Extractor {
	return &Extractor{conversations: conversations, logger: logger}
}

func (e *Extractor) Learn(ctx context.Context, conv *domain.Conversation, syn domain.Synthesis, results []domain.AgentResult) domain.LearningOutcome {
	out := domain.LearningOutcome{
		ConversationID: conv.ID,
		CreatedAt:      time.Now().UTC(),
	}

	out.Patterns = append(out.Patterns, e.customerPatterns(ctx, conv)...)
	out.Patterns = append(out.Patterns, conversationPatterns(conv)...)
	out.AgentOptimizations = agentPerformancePatterns(results)
	out.BusinessInsights = businessInsights(conv, syn)

	return out
}

// customerPatterns needs at least two prior conversations to say anything
// about a customer. Store failure degrades to no customer patterns.
func (e *Extractor) customerPatterns(ctx context.Context, conv *domain.Conversation) []domain.InsightPattern {
	customerID, ok := conv.CustomerID()
	if !ok {
		return nil
	}
	history, err := e.conversations.ListByCustomer(ctx, customerID, customerHistory)
	if err != nil {
		e.logger.Warn("customer history query failed", zap.String("customer_id", customerID.String()), zap.Error(err))
		return nil
	}
	if len(history) < minCustomerHistory {
		return nil
	}

	var patterns []domain.InsightPattern

	if category := modeCategory(history); category != "" {
		patterns = append(patterns, domain.InsightPattern{
			Kind:        "customer_category_preference",
			Description: fmt.Sprintf("customer gravitates toward %s conversations", category),
			Confidence:  0.8,
			DataPoints:  len(history),
		})
	}

	patterns = append(patterns, domain.InsightPattern{
		Kind:        "customer_sentiment_trend",
		Description: fmt.Sprintf("customer sentiment is %s", sentimentTrendLabel(history)),
		Confidence:  0.7,
		DataPoints:  len(history),
	})

	if tags := topTags(history, topCustomerTags); len(tags) > 0 {
		patterns = append(patterns, domain.InsightPattern{
			Kind:        "customer_frequent_tags",
			Description: fmt.Sprintf("recurring topics: %s", strings.Join(tags, ", ")),
			Confidence:  0.6,
			DataPoints:  len(history),
		})
	}

	return patterns
}

func conversationPatterns(conv *domain.Conversation) []domain.InsightPattern {
	var patterns []domain.InsightPattern
	if conv.Category != "" {
		patterns = append(patterns, domain.InsightPattern{
			Kind:        "conversation_category",
			Description: fmt.Sprintf("conversation classified as %s", conv.Category),
			Confidence:  0.9,
			DataPoints:  1,
		})
	}
	if len(conv.Tags) > 0 {
		patterns = append(patterns, domain.InsightPattern{
			Kind:        "conversation_tags",
			Description: fmt.Sprintf("tagged %s", strings.Join(conv.Tags, ", ")),
			Confidence:  0.8,
			DataPoints:  len(conv.Tags),
		})
	}
	if conv.Sentiment != "" {
		patterns = append(patterns, domain.InsightPattern{
			Kind:        "conversation_sentiment",
			Description: fmt.Sprintf("%s sentiment detected", conv.Sentiment),
			Confidence:  0.7,
			DataPoints:  1,
		})
	}
	return patterns
}

func agentPerformancePatterns(results []domain.AgentResult) []domain.InsightPattern {
	var participants []string
	var patterns []domain.InsightPattern
	for _, r := range results {
		if r.Failed() {
			continue
		}
		participants = append(participants, string(r.AgentType))
		switch {
		case r.Confidence > highConfidenceMark:
			patterns = append(patterns, domain.InsightPattern{
				Kind:        "high_confidence",
				Description: fmt.Sprintf("%s handled this with high confidence (%.2f)", r.AgentType, r.Confidence),
				Confidence:  r.Confidence,
				DataPoints:  1,
			})
		case r.Confidence < lowConfidenceMark:
			patterns = append(patterns, domain.InsightPattern{
				Kind:        "low_confidence",
				Description: fmt.Sprintf("%s struggled with this conversation (%.2f)", r.AgentType, r.Confidence),
				Confidence:  r.Confidence,
				DataPoints:  1,
			})
		}
	}
	if len(participants) > 0 {
		patterns = append(patterns, domain.InsightPattern{
			Kind:        "agent_participation",
			Description: fmt.Sprintf("processed by %s", strings.Join(participants, ", ")),
			Confidence:  0.8,
			DataPoints:  len(participants),
		})
	}
	return patterns
}

func businessInsights(conv *domain.Conversation, syn domain.Synthesis) []domain.InsightPattern {
	var insights []domain.InsightPattern
	if conv.Category != "" {
		insights = append(insights, domain.InsightPattern{
			Kind:        "category_handled",
			Description: fmt.Sprintf("business handled a %s conversation", conv.Category),
			Confidence:  0.8,
			DataPoints:  1,
		})
	}
	if conv.Sentiment == domain.SentimentNegative {
		insights = append(insights, domain.InsightPattern{
			Kind:        "sentiment_attention",
			Description: "negative sentiment requires follow-up attention",
			Confidence:  0.9,
			DataPoints:  1,
		})
	}
	if syn.OverallConfidence > highConfidenceMark {
		insights = append(insights, domain.InsightPattern{
			Kind:        "system_performance",
			Description: fmt.Sprintf("handlers converged at %.2f overall confidence", syn.OverallConfidence),
			Confidence:  syn.OverallConfidence,
			DataPoints:  len(syn.Participants),
		})
	}
	return insights
}

// modeCategory is the statistical mode of the customer's prior categories.
// Ties break toward the most recent conversation's category.
func modeCategory(history []domain.Conversation) string {
	counts := make(map[string]int)
	for _, c := range history {
		if c.Category != "" {
			counts[c.Category]++
		}
	}
	best, bestCount := "", 0
	for _, c := range history {
		if counts[c.Category] > bestCount {
			best, bestCount = c.Category, counts[c.Category]
		}
	}
	return best
}

func sentimentTrendLabel(history []domain.Conversation) string {
	var sum int
	for _, c := range history {
		sum += c.Sentiment.Score()
	}
	mean := float64(sum) / float64(len(history))
	switch {
	case mean > 0.2:
		return "improving"
	case mean < -0.2:
		return "declining"
	}
	return "stable"
}

func topTags(history []domain.Conversation, n int) []string {
	counts := make(map[string]int)
	var order []string
	for _, c := range history {
		for _, tag := range c.Tags {
			if counts[tag] == 0 {
				order = append(order, tag)
			}
			counts[tag]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}
	return order
}
