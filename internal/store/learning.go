package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kortexlabs/kortex/internal/domain"
)

type LearningStore struct {
	db *pgxpool.Pool
}

func NewLearningStore(db *pgxpool.Pool) *LearningStore {
	return &LearningStore{db: db}
}

// Create inserts one learning record. The unique constraint on
// (agent_type, learning_type, conversation_id) makes re-delivery benign:
// a conflicting insert is silently skipped and the existing row wins.
func (s *LearningStore) Create(ctx context.Context, r *domain.LearningRecord) error {
	err := s.db.QueryRow(ctx,
		`INSERT INTO learning_records (agent_type, learning_type, content, confidence_score, category, conversation_id)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (agent_type, learning_type, conversation_id) DO NOTHING
		 RETURNING id, created_at`,
		r.AgentType, r.LearningType, r.Content, r.ConfidenceScore, r.Category, r.ConversationID,
	).Scan(&r.ID, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict: the record already exists. Treated as success.
		return nil
	}
	return err
}

// CreateAll writes a conversation's learning records and its metric row inside
// one transaction so cancellation or failure never commits a partial outcome.
func (s *LearningStore) CreateAll(ctx context.Context, records []domain.LearningRecord, metric *domain.AgentMetric) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for i := range records {
		r := &records[i]
		err := tx.QueryRow(ctx,
			`INSERT INTO learning_records (agent_type, learning_type, content, confidence_score, category, conversation_id)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (agent_type, learning_type, conversation_id) DO NOTHING
			 RETURNING id, created_at`,
			r.AgentType, r.LearningType, r.Content, r.ConfidenceScore, r.Category, r.ConversationID,
		).Scan(&r.ID, &r.CreatedAt)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
	}

	if metric != nil {
		err := tx.QueryRow(ctx,
			`INSERT INTO agent_metrics (agent_type, conversation_id, success_rate, coordination_score)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id, created_at`,
			metric.AgentType, metric.ConversationID, metric.SuccessRate, metric.CoordinationScore,
		).Scan(&metric.ID, &metric.CreatedAt)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *LearningStore) ListByCategory(ctx context.Context, category string, minConfidence float64, limit int) ([]domain.LearningRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(ctx,
		`SELECT id, agent_type, learning_type, content, confidence_score, category, conversation_id, created_at
		 FROM learning_records
		 WHERE category = $1 AND confidence_score > $2
		 ORDER BY confidence_score DESC
		 LIMIT $3`,
		category, minConfidence, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.LearningRecord
	for rows.Next() {
		var r domain.LearningRecord
		if err := rows.Scan(&r.ID, &r.AgentType, &r.LearningType, &r.Content, &r.ConfidenceScore, &r.Category, &r.ConversationID, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *LearningStore) CountByConversation(ctx context.Context, conversationID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM learning_records WHERE conversation_id = $1`,
		conversationID,
	).Scan(&count)
	return count, err
}
