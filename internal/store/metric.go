package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kortexlabs/kortex/internal/domain"
)

// defaultSuccessRate is reported for conversations without metric history.
const defaultSuccessRate = 0.8

type MetricStore struct {
	db *pgxpool.Pool
}

func NewMetricStore(db *pgxpool.Pool) *MetricStore {
	return &MetricStore{db: db}
}

func (s *MetricStore) Create(ctx context.Context, m *domain.AgentMetric) error {
	return s.db.QueryRow(ctx,
		`INSERT INTO agent_metrics (agent_type, conversation_id, success_rate, coordination_score)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		m.AgentType, m.ConversationID, m.SuccessRate, m.CoordinationScore,
	).Scan(&m.ID, &m.CreatedAt)
}

func (s *MetricStore) ConversationSuccessRate(ctx context.Context, conversationID uuid.UUID) (float64, error) {
	var rate *float64
	err := s.db.QueryRow(ctx,
		`SELECT AVG(success_rate) FROM agent_metrics WHERE conversation_id = $1`,
		conversationID,
	).Scan(&rate)
	if err != nil {
		return 0, err
	}
	if rate == nil {
		return defaultSuccessRate, nil
	}
	return *rate, nil
}

func (s *MetricStore) AverageSuccessRate(ctx context.Context) (float64, error) {
	var rate *float64
	err := s.db.QueryRow(ctx, `SELECT AVG(success_rate) FROM agent_metrics`).Scan(&rate)
	if err != nil {
		return 0, err
	}
	if rate == nil {
		return 0, nil
	}
	return *rate, nil
}
