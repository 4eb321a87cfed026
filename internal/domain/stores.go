package domain

import (
	"context"

	"github.com/google/uuid"
)

// ConversationStore exposes read-only queries over persisted conversation
// history. Implementations must degrade to errors, never panic; callers decide
// whether a failed sub-query aborts or degrades.
type ConversationStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Conversation, error)
	// ListByTag returns the most recent conversations carrying tag, newest
	// first, excluding the given conversation.
	ListByTag(ctx context.Context, tag string, exclude uuid.UUID, limit int) ([]Conversation, error)
	// ListByCategory returns the most recent conversations of a category,
	// newest first, excluding the given conversation.
	ListByCategory(ctx context.Context, category string, exclude uuid.UUID, limit int) ([]Conversation, error)
	// ListByCustomer returns a customer's most recent conversations.
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit int) ([]Conversation, error)
}

// LearningStore persists and queries LearningRecords. Create is idempotent per
// (agent_type, learning_type, conversation_id); hitting the constraint is not
// an error.
type LearningStore interface {
	Create(ctx context.Context, r *LearningRecord) error
	// CreateAll writes a batch inside one transaction together with the
	// conversation's metric row. Either everything commits or nothing does.
	CreateAll(ctx context.Context, records []LearningRecord, metric *AgentMetric) error
	// ListByCategory returns records for a category with confidence above
	// minConfidence, ordered by confidence descending.
	ListByCategory(ctx context.Context, category string, minConfidence float64, limit int) ([]LearningRecord, error)
	CountByConversation(ctx context.Context, conversationID uuid.UUID) (int, error)
}

// MetricStore persists per-conversation outcome metrics.
type MetricStore interface {
	Create(ctx context.Context, m *AgentMetric) error
	// ConversationSuccessRate averages the metric rows of a conversation.
	// Conversations without metric history report the default rate 0.8.
	ConversationSuccessRate(ctx context.Context, conversationID uuid.UUID) (float64, error)
	AverageSuccessRate(ctx context.Context) (float64, error)
}

// StateStore persists the single CoordinatorState row.
type StateStore interface {
	// GetOrCreate loads the state row, creating it from s when absent. The
	// loaded or created row is written back into s.
	GetOrCreate(ctx context.Context, s *CoordinatorState) error
	Update(ctx context.Context, s *CoordinatorState) error
}
