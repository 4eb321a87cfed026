package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kortexlabs/kortex/internal/domain"
)

type StateStore struct {
	db *pgxpool.Pool
}

func NewStateStore(db *pgxpool.Pool) *StateStore {
	return &StateStore{db: db}
}

const stateColumns = `id, status, is_learning, total_conversations_processed, total_learnings_generated, success_rate, learning_threshold, optimization_frequency_seconds, last_learning_cycle, last_optimization, created_at, updated_at`

// GetOrCreate loads the singleton state row, inserting it from s when the
// table is empty. The row's values are written back into s either way.
func (s *StateStore) GetOrCreate(ctx context.Context, st *domain.CoordinatorState) error {
	err := s.scanState(s.db.QueryRow(ctx,
		`SELECT `+stateColumns+` FROM coordinator_state ORDER BY created_at LIMIT 1`,
	), st)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	return s.db.QueryRow(ctx,
		`INSERT INTO coordinator_state (status, is_learning, total_conversations_processed, total_learnings_generated, success_rate, learning_threshold, optimization_frequency_seconds)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at, updated_at`,
		st.Status, st.IsLearning, st.TotalConversationsProcessed, st.TotalLearningsGenerated, st.SuccessRate, st.LearningThreshold, int64(st.OptimizationFrequency/time.Second),
	).Scan(&st.ID, &st.CreatedAt, &st.UpdatedAt)
}

func (s *StateStore) Update(ctx context.Context, st *domain.CoordinatorState) error {
	return s.db.QueryRow(ctx,
		`UPDATE coordinator_state SET
		    status = $2,
		    is_learning = $3,
		    total_conversations_processed = $4,
		    total_learnings_generated = $5,
		    success_rate = $6,
		    learning_threshold = $7,
		    optimization_frequency_seconds = $8,
		    last_learning_cycle = $9,
		    last_optimization = $10,
		    updated_at = NOW()
		 WHERE id = $1
		 RETURNING updated_at`,
		st.ID, st.Status, st.IsLearning, st.TotalConversationsProcessed, st.TotalLearningsGenerated, st.SuccessRate, st.LearningThreshold, int64(st.OptimizationFrequency/time.Second), st.LastLearningCycle, st.LastOptimization,
	).Scan(&st.UpdatedAt)
}

func (s *StateStore) scanState(row pgx.Row, st *domain.CoordinatorState) error {
	var freqSeconds int64
	if err := row.Scan(&st.ID, &st.Status, &st.IsLearning, &st.TotalConversationsProcessed, &st.TotalLearningsGenerated, &st.SuccessRate, &st.LearningThreshold, &freqSeconds, &st.LastLearningCycle, &st.LastOptimization, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return err
	}
	st.OptimizationFrequency = time.Duration(freqSeconds) * time.Second
	return nil
}
