package domain

import (
	"time"

	"github.com/google/uuid"
)

type CoordinatorStatus string

const (
	StatusActive   CoordinatorStatus = "active"
	StatusLearning CoordinatorStatus = "learning"
)

// CoordinatorState is the single persisted row tracking the engine across its
// process lifecycle: created once at startup (create-if-absent, else load),
// updated after every conversation and optimization cycle.
type CoordinatorState struct {
	ID                          uuid.UUID         `json:"id"`
	Status                      CoordinatorStatus `json:"status"`
	IsLearning                  bool              `json:"is_learning"`
	TotalConversationsProcessed int64             `json:"total_conversations_processed"`
	TotalLearningsGenerated     int64             `json:"total_learnings_generated"`
	SuccessRate                 float64           `json:"success_rate"`
	LearningThreshold           float64           `json:"learning_threshold"`
	OptimizationFrequency       time.Duration     `json:"optimization_frequency"`
	LastLearningCycle           *time.Time        `json:"last_learning_cycle,omitempty"`
	LastOptimization            *time.Time        `json:"last_optimization,omitempty"`
	CreatedAt                   time.Time         `json:"created_at"`
	UpdatedAt                   time.Time         `json:"updated_at"`
}
