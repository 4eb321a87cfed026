package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kortexlabs/kortex/internal/agent"
	"github.com/kortexlabs/kortex/internal/domain"
)

const (
	defaultLearningThreshold     = 0.7
	defaultOptimizationFrequency = 24 * time.Hour

	trendCacheCap = 1000
	// Hard ceiling between optimization cycles. Trimming back down to
	// trendCacheCap is the optimizer's job.
	trendCacheHardCap = 2 * trendCacheCap

	optimizationSuccessFloor = 0.7
	optimizationWeightDelta  = -0.1
	optimizationImpact       = 0.15
	routingReviewCycleCount  = 10

	insightSuccessFloor = 0.8
	insightCycleCount   = 5
	eventSuccessFloor   = 0.5
)

// Config carries the tunables the coordinator seeds its state row with on
// first startup.
type Config struct {
	LearningThreshold     float64
	OptimizationFrequency time.Duration
}

type trendEntry struct {
	Category string
	Score    int
	At       time.Time
}

// CoordinatorService runs the whole pipeline for one conversation: mine
// patterns, decide routing, execute handlers, synthesize, extract learning,
// persist, and update shared aggregates.
//
// Per-conversation work runs fully in parallel across calls; every mutation
// of shared state happens under mu, and slow I/O always works on snapshots
// taken under the lock.
type CoordinatorService struct {
	patterns  *PatternService
	registry  *agent.Registry
	extractor *Extractor
	learnings domain.LearningStore
	metrics   domain.MetricStore
	states    domain.StateStore
	logger    *zap.Logger

	mu                  sync.Mutex
	state               domain.CoordinatorState
	trendCache          []trendEntry
	learningCycles      []domain.LearningCycle
	optimizationHistory []domain.OptimizationRecord
	routingFlagged      bool
	optimizing          bool
	startedAt           time.Time
}

func NewCoordinatorService(
	patterns *PatternService,
	registry *agent.Registry,
	extractor *Extractor,
	learnings domain.LearningStore,
	metrics domain.MetricStore,
	states domain.StateStore,
	cfg Config,
	logger *zap.Logger,
) *CoordinatorService {
	if cfg.LearningThreshold <= 0 {
		cfg.LearningThreshold = defaultLearningThreshold
	}
	if cfg.OptimizationFrequency <= 0 {
		cfg.OptimizationFrequency = defaultOptimizationFrequency
	}
	return &CoordinatorService{
		patterns:  patterns,
		registry:  registry,
		extractor: extractor,
		learnings: learnings,
		metrics:   metrics,
		states:    states,
		logger:    logger,
		state: domain.CoordinatorState{
			Status:                domain.StatusActive,
			LearningThreshold:     cfg.LearningThreshold,
			OptimizationFrequency: cfg.OptimizationFrequency,
		},
		startedAt: time.Now().UTC(),
	}
}

// Init loads the persisted state row, creating it on first startup.
func (s *CoordinatorService) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.states.GetOrCreate(ctx, &s.state); err != nil {
		return fmt.Errorf("load coordinator state: %w", err)
	}
	s.logger.Info("coordinator state loaded",
		zap.String("state_id", s.state.ID.String()),
		zap.Int64("conversations_processed", s.state.TotalConversationsProcessed),
	)
	return nil
}

// ProcessResult is the outcome of one full pipeline pass.
type ProcessResult struct {
	Decision        domain.RoutingDecision `json:"routing_decision"`
	Results         []domain.AgentResult   `json:"agent_results"`
	Synthesis       domain.Synthesis       `json:"synthesis"`
	Outcome         domain.LearningOutcome `json:"learning_outcome"`
	LearningApplied bool                   `json:"learning_applied"`
	Persisted       bool                   `json:"persisted"`
}

// ProcessConversation runs the pipeline. A store failure during persistence
// degrades to partial success: the decision and results still return, with
// Persisted false. The only hard errors are context cancellation and the
// effectively-unreachable case of no routable handler.
func (s *CoordinatorService) ProcessConversation(ctx context.Context, conv *domain.Conversation) (*ProcessResult, error) {
	patterns, err := s.patterns.FindPatterns(ctx, conv)
	if err != nil {
		return nil, err
	}

	decision := Decide(conv, patterns)
	results := s.execute(ctx, conv, decision)
	if len(results) == 0 {
		return nil, fmt.Errorf("no handler available for conversation %s", conv.ID)
	}

	syn := Synthesize(conv.ID, results)
	outcome := s.extractor.Learn(ctx, conv, syn, results)

	records := learningRecords(conv, outcome)
	metric := &domain.AgentMetric{
		AgentType:         domain.AgentCoordinator,
		ConversationID:    conv.ID,
		SuccessRate:       syn.OverallConfidence,
		CoordinationScore: syn.CoordinationScore,
	}
	persisted := true
	if err := s.learnings.CreateAll(ctx, records, metric); err != nil {
		if ctx.Err() != nil {
			// Cancellation rolled the transaction back; nothing committed.
			return nil, err
		}
		s.logger.Error("learning persistence failed",
			zap.String("conversation_id", conv.ID.String()), zap.Error(err))
		persisted = false
	}

	s.recordLearningEvents(conv, results)

	now := time.Now().UTC()
	s.mu.Lock()
	s.state.TotalConversationsProcessed++
	if persisted {
		s.state.TotalLearningsGenerated += int64(len(records))
	}
	// Running blend of historical and fresh success.
	s.state.SuccessRate = (s.state.SuccessRate + syn.OverallConfidence) / 2

	s.trendCache = append(s.trendCache, trendEntry{
		Category: conv.Category,
		Score:    conv.Sentiment.Score(),
		At:       now,
	})
	if len(s.trendCache) > trendCacheHardCap {
		s.trendCache = s.trendCache[len(s.trendCache)-trendCacheHardCap:]
	}

	learningApplied := false
	if persisted && outcome.Significant() {
		s.learningCycles = append(s.learningCycles, domain.LearningCycle{
			Timestamp:          now,
			PatternsIdentified: len(outcome.Patterns),
			Optimizations:      len(outcome.AgentOptimizations),
			Insights:           len(outcome.BusinessInsights),
		})
		s.state.LastLearningCycle = &now
		learningApplied = true
	}
	snapshot := s.state
	s.mu.Unlock()

	if err := s.states.Update(ctx, &snapshot); err != nil {
		s.logger.Warn("state sync failed", zap.Error(err))
	}

	return &ProcessResult{
		Decision:        decision,
		Results:         results,
		Synthesis:       syn,
		Outcome:         outcome,
		LearningApplied: learningApplied,
		Persisted:       persisted,
	}, nil
}

// execute resolves the recommended agents to handlers and runs them, the
// coordinator always last so it can reconcile the specialists' results.
func (s *CoordinatorService) execute(ctx context.Context, conv *domain.Conversation, decision domain.RoutingDecision) []domain.AgentResult {
	seen := make(map[domain.AgentType]bool)
	var specialists []agent.Handler
	for _, name := range decision.RecommendedAgents {
		h := s.registry.Resolve(name)
		if h == nil {
			continue
		}
		t := h.Type()
		if t == domain.AgentCoordinator || seen[t] {
			continue
		}
		seen[t] = true
		specialists = append(specialists, h)
	}

	results := make([]domain.AgentResult, 0, len(specialists)+1)
	pc := agent.Context{Decision: decision}
	for _, h := range specialists {
		results = append(results, s.runHandler(ctx, h, conv, pc))
	}

	if coord, ok := s.registry.Get(domain.AgentCoordinator); ok {
		prior := make([]domain.AgentResult, len(results))
		copy(prior, results)
		results = append(results, s.runHandler(ctx, coord, conv, agent.Context{
			Decision: decision,
			Results:  prior,
		}))
	}
	return results
}

// runHandler isolates one handler invocation: a panic or error becomes a
// failed AgentResult and never aborts the remaining handlers.
func (s *CoordinatorService) runHandler(ctx context.Context, h agent.Handler, conv *domain.Conversation, pc agent.Context) (result domain.AgentResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("handler panicked",
				zap.String("agent_type", string(h.Type())),
				zap.String("conversation_id", conv.ID.String()),
				zap.Any("panic", r),
			)
			result = domain.AgentResult{
				AgentType:      h.Type(),
				ConversationID: conv.ID,
				Err:            fmt.Errorf("handler panic: %v", r),
			}
		}
	}()

	result, err := h.Process(ctx, conv, pc)
	if err != nil {
		s.logger.Warn("handler failed",
			zap.String("agent_type", string(h.Type())),
			zap.String("conversation_id", conv.ID.String()),
			zap.Error(err),
		)
		result.Err = err
	}
	return result
}

func (s *CoordinatorService) recordLearningEvents(conv *domain.Conversation, results []domain.AgentResult) {
	now := time.Now().UTC()
	for _, r := range results {
		h, ok := s.registry.Get(r.AgentType)
		if !ok {
			continue
		}
		h.Record(domain.LearningEvent{
			ConversationID: conv.ID,
			Category:       conv.Category,
			Confidence:     r.Confidence,
			Success:        !r.Failed() && r.Confidence >= eventSuccessFloor,
			Timestamp:      now,
		})
	}
}

// learningRecords flattens a LearningOutcome into persistable rows, one per
// learning type, so the (agent_type, learning_type, conversation_id)
// uniqueness key makes pipeline retries exact no-ops.
func learningRecords(conv *domain.Conversation, outcome domain.LearningOutcome) []domain.LearningRecord {
	category := conv.Category
	if category == "" {
		category = "general"
	}

	var records []domain.LearningRecord
	add := func(lt domain.LearningType, patterns []domain.InsightPattern) {
		if len(patterns) == 0 {
			return
		}
		descriptions := make([]string, 0, len(patterns))
		var sum float64
		for _, p := range patterns {
			descriptions = append(descriptions, p.Description)
			sum += p.Confidence
		}
		records = append(records, domain.LearningRecord{
			AgentType:       domain.AgentCoordinator,
			LearningType:    lt,
			Content:         strings.Join(descriptions, "; "),
			ConfidenceScore: sum / float64(len(patterns)),
			Category:        category,
			ConversationID:  conv.ID,
		})
	}

	var conversationLocal, tagPatterns, other []domain.InsightPattern
	for _, p := range outcome.Patterns {
		switch p.Kind {
		case "conversation_category", "conversation_sentiment":
			conversationLocal = append(conversationLocal, p)
		case "conversation_tags", "customer_frequent_tags":
			tagPatterns = append(tagPatterns, p)
		default:
			other = append(other, p)
		}
	}

	add(domain.LearningConversation, conversationLocal)
	add(domain.LearningTag, tagPatterns)
	add(domain.LearningPattern, other)
	add(domain.LearningAgent, outcome.AgentOptimizations)
	add(domain.LearningBusinessInsight, outcome.BusinessInsights)
	return records
}

// SystemStatus is the outward-facing snapshot served by the status endpoint.
type SystemStatus struct {
	Status                      domain.CoordinatorStatus    `json:"status"`
	IsLearning                  bool                        `json:"is_learning"`
	Uptime                      time.Duration               `json:"uptime"`
	TotalConversationsProcessed int64                       `json:"total_conversations_processed"`
	TotalLearningsGenerated     int64                       `json:"total_learnings_generated"`
	SuccessRate                 float64                     `json:"success_rate"`
	LearningCycles              int                         `json:"learning_cycles"`
	OptimizationsApplied        int                         `json:"optimizations_applied"`
	RoutingFlaggedForReview     bool                        `json:"routing_flagged_for_review"`
	LastLearningCycle           *time.Time                  `json:"last_learning_cycle,omitempty"`
	LastOptimization            *time.Time                  `json:"last_optimization,omitempty"`
	NextOptimization            time.Time                   `json:"next_optimization"`
	OptimizationHistory         []domain.OptimizationRecord `json:"optimization_history,omitempty"`
}

func (s *CoordinatorService) Status() SystemStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.startedAt.Add(s.state.OptimizationFrequency)
	if s.state.LastOptimization != nil {
		next = s.state.LastOptimization.Add(s.state.OptimizationFrequency)
	}

	history := make([]domain.OptimizationRecord, len(s.optimizationHistory))
	copy(history, s.optimizationHistory)

	return SystemStatus{
		Status:                      s.state.Status,
		IsLearning:                  s.state.IsLearning,
		Uptime:                      time.Since(s.startedAt),
		TotalConversationsProcessed: s.state.TotalConversationsProcessed,
		TotalLearningsGenerated:     s.state.TotalLearningsGenerated,
		SuccessRate:                 s.state.SuccessRate,
		LearningCycles:              len(s.learningCycles),
		OptimizationsApplied:        len(s.optimizationHistory),
		RoutingFlaggedForReview:     s.routingFlagged,
		LastLearningCycle:           s.state.LastLearningCycle,
		LastOptimization:            s.state.LastOptimization,
		NextOptimization:            next,
		OptimizationHistory:         history,
	}
}

// BusinessInsights summarizes aggregate performance for the insights endpoint.
type BusinessInsights struct {
	TotalConversations int64    `json:"total_conversations"`
	SuccessRate        float64  `json:"success_rate"`
	SentimentTrend     string   `json:"sentiment_trend"`
	LearningCycles     int      `json:"learning_cycles"`
	Recommendations    []string `json:"recommendations"`
}

func (s *CoordinatorService) BusinessInsights(ctx context.Context) (*BusinessInsights, error) {
	s.mu.Lock()
	total := s.state.TotalConversationsProcessed
	successRate := s.state.SuccessRate
	cycles := len(s.learningCycles)
	trend := make([]trendEntry, len(s.trendCache))
	copy(trend, s.trendCache)
	s.mu.Unlock()

	// Prefer the persisted aggregate; in-memory is the degraded answer.
	if avg, err := s.metrics.AverageSuccessRate(ctx); err != nil {
		s.logger.Warn("aggregate success rate query failed", zap.Error(err))
	} else if avg > 0 {
		successRate = avg
	}

	insights := &BusinessInsights{
		TotalConversations: total,
		SuccessRate:        successRate,
		SentimentTrend:     trendLabel(trend),
		LearningCycles:     cycles,
	}
	if successRate < insightSuccessFloor {
		insights.Recommendations = append(insights.Recommendations,
			fmt.Sprintf("success rate %.2f is below target; review low-confidence handler outcomes", successRate))
	}
	if cycles > insightCycleCount {
		insights.Recommendations = append(insights.Recommendations,
			fmt.Sprintf("%d learning cycles accumulated; consider consolidating learned patterns", cycles))
	}
	return insights, nil
}

func trendLabel(entries []trendEntry) string {
	if len(entries) == 0 {
		return "stable"
	}
	var sum int
	for _, e := range entries {
		sum += e.Score
	}
	mean := float64(sum) / float64(len(entries))
	switch {
	case mean > 0.2:
		return "improving"
	case mean < -0.2:
		return "declining"
	}
	return "stable"
}

func (s *CoordinatorService) AgentStatuses() []domain.AgentStatus {
	return s.registry.Statuses()
}

// ResetMemory clears the in-memory caches: trends, learning cycles, and
// optimization history. Persisted records and the state row survive.
// Idempotent.
func (s *CoordinatorService) ResetMemory() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trendCache = nil
	s.learningCycles = nil
	s.optimizationHistory = nil
	s.routingFlagged = false
	s.logger.Info("in-memory learning caches reset")
}

// TriggerOptimization runs one optimization cycle if the time gate allows it.
// Re-entrant and early calls are no-ops returning false. Each sub-step
// degrades independently; a failed step never blocks the others.
func (s *CoordinatorService) TriggerOptimization(ctx context.Context) (bool, error) {
	now := time.Now().UTC()

	s.mu.Lock()
	if s.optimizing {
		s.mu.Unlock()
		return false, nil
	}
	if s.state.LastOptimization != nil && now.Sub(*s.state.LastOptimization) < s.state.OptimizationFrequency {
		s.mu.Unlock()
		return false, nil
	}
	s.optimizing = true
	s.state.IsLearning = true
	s.state.Status = domain.StatusLearning
	successRate := s.state.SuccessRate
	volume := s.state.TotalConversationsProcessed
	cycles := len(s.learningCycles)
	trendLen := len(s.trendCache)
	s.mu.Unlock()

	s.logger.Info("optimization cycle starting",
		zap.Float64("success_rate", successRate),
		zap.Int64("conversation_volume", volume),
		zap.Int("learning_cycles", cycles),
	)

	// Analysis: blend the in-memory rate with the persisted aggregate when
	// the store is reachable.
	if avg, err := s.metrics.AverageSuccessRate(ctx); err != nil {
		s.logger.Warn("aggregate success rate query failed", zap.Error(err))
	} else if avg > 0 {
		successRate = (successRate + avg) / 2
	}

	var applied []domain.OptimizationRecord

	if successRate < optimizationSuccessFloor {
		for _, h := range s.registry.Handlers() {
			h.AdjustWeight(optimizationWeightDelta)
		}
		applied = append(applied, domain.OptimizationRecord{
			Kind:           "agent_parameters",
			Description:    fmt.Sprintf("lowered handler confidence weights by %.2f (success rate %.2f)", -optimizationWeightDelta, successRate),
			Priority:       "high",
			ExpectedImpact: optimizationImpact,
			AppliedAt:      now,
		})
	}

	flagRouting := cycles > routingReviewCycleCount
	if flagRouting {
		applied = append(applied, domain.OptimizationRecord{
			Kind:           "routing_review",
			Description:    fmt.Sprintf("%d learning cycles accumulated; routing rules flagged for review", cycles),
			Priority:       "medium",
			ExpectedImpact: optimizationImpact,
			AppliedAt:      now,
		})
	}

	trimTrends := trendLen > trendCacheCap
	if trimTrends {
		applied = append(applied, domain.OptimizationRecord{
			Kind:           "memory_trim",
			Description:    fmt.Sprintf("trend cache trimmed from %d to %d entries", trendLen, trendCacheCap),
			Priority:       "low",
			ExpectedImpact: optimizationImpact,
			AppliedAt:      now,
		})
	}

	s.mu.Lock()
	if trimTrends && len(s.trendCache) > trendCacheCap {
		s.trendCache = s.trendCache[len(s.trendCache)-trendCacheCap:]
	}
	if flagRouting {
		s.routingFlagged = true
	}
	s.optimizationHistory = append(s.optimizationHistory, applied...)
	s.state.LastOptimization = &now
	s.state.IsLearning = false
	s.state.Status = domain.StatusActive
	s.optimizing = false
	snapshot := s.state
	s.mu.Unlock()

	if err := s.states.Update(ctx, &snapshot); err != nil {
		s.logger.Warn("state sync failed after optimization", zap.Error(err))
	}

	s.logger.Info("optimization cycle finished", zap.Int("optimizations_applied", len(applied)))
	return true, nil
}
