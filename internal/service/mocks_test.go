package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/google/uuid"
	"github.com/kortexlabs/kortex/internal/agent"
	"github.com/kortexlabs/kortex/internal/domain"
	"github.com/kortexlabs/kortex/internal/store"
)

// In-memory store fakes. Each carries a forced error so tests can exercise
// degraded paths.

type memConversationStore struct {
	mu            sync.Mutex
	conversations []domain.Conversation
	err           error
}

func (m *memConversationStore) add(c domain.Conversation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations = append(m.conversations, c)
}

func (m *memConversationStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.conversations {
		if m.conversations[i].ID == id {
			c := m.conversations[i]
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memConversationStore) ListByTag(_ context.Context, tag string, exclude uuid.UUID, limit int) ([]domain.Conversation, error) {
	return m.list(func(c *domain.Conversation) bool {
		if c.ID == exclude {
			return false
		}
		for _, t := range c.Tags {
			if t == tag {
				return true
			}
		}
		return false
	}, limit)
}

func (m *memConversationStore) ListByCategory(_ context.Context, category string, exclude uuid.UUID, limit int) ([]domain.Conversation, error) {
	return m.list(func(c *domain.Conversation) bool {
		return c.ID != exclude && c.Category == category
	}, limit)
}

func (m *memConversationStore) ListByCustomer(_ context.Context, customerID uuid.UUID, limit int) ([]domain.Conversation, error) {
	return m.list(func(c *domain.Conversation) bool {
		id, ok := c.CustomerID()
		return ok && id == customerID
	}, limit)
}

func (m *memConversationStore) list(match func(*domain.Conversation) bool, limit int) ([]domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.Conversation
	for i := range m.conversations {
		if match(&m.conversations[i]) {
			out = append(out, m.conversations[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memMetricStore struct {
	mu   sync.Mutex
	rows []domain.AgentMetric
	err  error
}

func (m *memMetricStore) Create(_ context.Context, metric *domain.AgentMetric) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	metric.ID = uuid.New()
	metric.CreatedAt = time.Now().UTC()
	m.rows = append(m.rows, *metric)
	return nil
}

func (m *memMetricStore) ConversationSuccessRate(_ context.Context, conversationID uuid.UUID) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var sum float64
	var n int
	for _, r := range m.rows {
		if r.ConversationID == conversationID {
			sum += r.SuccessRate
			n++
		}
	}
	if n == 0 {
		return 0.8, nil
	}
	return sum / float64(n), nil
}

func (m *memMetricStore) AverageSuccessRate(_ context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	if len(m.rows) == 0 {
		return 0, nil
	}
	var sum float64
	for _, r := range m.rows {
		sum += r.SuccessRate
	}
	return sum / float64(len(m.rows)), nil
}

type learningKey struct {
	agentType      domain.AgentType
	learningType   domain.LearningType
	conversationID uuid.UUID
}

type memLearningStore struct {
	mu      sync.Mutex
	records map[learningKey]domain.LearningRecord
	metrics *memMetricStore
	err     error
}

func newMemLearningStore(metrics *memMetricStore) *memLearningStore {
	return &memLearningStore{
		records: make(map[learningKey]domain.LearningRecord),
		metrics: metrics,
	}
}

func (m *memLearningStore) insert(r *domain.LearningRecord) {
	key := learningKey{r.AgentType, r.LearningType, r.ConversationID}
	if existing, ok := m.records[key]; ok {
		// Conflict: the existing row wins, insert is a no-op.
		r.ID = existing.ID
		r.CreatedAt = existing.CreatedAt
		return
	}
	r.ID = uuid.New()
	r.CreatedAt = time.Now().UTC()
	m.records[key] = *r
}

func (m *memLearningStore) Create(_ context.Context, r *domain.LearningRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.insert(r)
	return nil
}

func (m *memLearningStore) CreateAll(ctx context.Context, records []domain.LearningRecord, metric *domain.AgentMetric) error {
	m.mu.Lock()
	if m.err != nil {
		m.mu.Unlock()
		return m.err
	}
	for i := range records {
		m.insert(&records[i])
	}
	m.mu.Unlock()
	if metric != nil {
		return m.metrics.Create(ctx, metric)
	}
	return nil
}

func (m *memLearningStore) ListByCategory(_ context.Context, category string, minConfidence float64, limit int) ([]domain.LearningRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []domain.LearningRecord
	for _, r := range m.records {
		if r.Category == category && r.ConfidenceScore > minConfidence {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ConfidenceScore > out[j].ConfidenceScore
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memLearningStore) CountByConversation(_ context.Context, conversationID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	n := 0
	for _, r := range m.records {
		if r.ConversationID == conversationID {
			n++
		}
	}
	return n, nil
}

func (m *memLearningStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type memStateStore struct {
	mu    sync.Mutex
	state *domain.CoordinatorState
	err   error
}

func (m *memStateStore) GetOrCreate(_ context.Context, s *domain.CoordinatorState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.state != nil {
		*s = *m.state
		return nil
	}
	s.ID = uuid.New()
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	saved := *s
	m.state = &saved
	return nil
}

func (m *memStateStore) Update(_ context.Context, s *domain.CoordinatorState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	s.UpdatedAt = time.Now().UTC()
	saved := *s
	m.state = &saved
	return nil
}

// testEnv bundles a fully wired coordinator over in-memory stores.
type testEnv struct {
	conversations *memConversationStore
	learnings     *memLearningStore
	metrics       *memMetricStore
	states        *memStateStore
	registry      *agent.Registry
	coordinator   *CoordinatorService
}

func newTestEnv() *testEnv {
	logger := zap.NewNop()
	conversations := &memConversationStore{}
	metrics := &memMetricStore{}
	learnings := newMemLearningStore(metrics)
	states := &memStateStore{}
	registry := agent.NewDefaultRegistry()

	patterns := NewPatternService(conversations, learnings, metrics, logger)
	extractor := NewExtractor(conversations, logger)
	coordinator := NewCoordinatorService(patterns, registry, extractor, learnings, metrics, states, Config{}, logger)

	return &testEnv{
		conversations: conversations,
		learnings:     learnings,
		metrics:       metrics,
		states:        states,
		registry:      registry,
		coordinator:   coordinator,
	}
}

func newConversation(category string, tags []string, sentiment domain.Sentiment) *domain.Conversation {
	now := time.Now().UTC()
	return &domain.Conversation{
		ID:        uuid.New(),
		Category:  category,
		Tags:      tags,
		Sentiment: sentiment,
		Status:    domain.ConversationOpen,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
