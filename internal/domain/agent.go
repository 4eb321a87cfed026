package domain

import (
	"time"

	"github.com/google/uuid"
)

type AgentType string

const (
	AgentSales       AgentType = "sales"
	AgentSupport     AgentType = "support"
	AgentCoordinator AgentType = "coordinator"
)

func ValidAgentType(t string) bool {
	switch AgentType(t) {
	case AgentSales, AgentSupport, AgentCoordinator:
		return true
	}
	return false
}

// AgentResult is the uniform output of one handler processing one conversation.
// A failed handler carries Err and is excluded from synthesis voting.
type AgentResult struct {
	AgentType       AgentType     `json:"agent_type"`
	ConversationID  uuid.UUID     `json:"conversation_id"`
	Confidence      float64       `json:"confidence"`
	Recommendations []string      `json:"recommendations,omitempty"`
	LearningPoints  []string      `json:"learning_points,omitempty"`
	Err             error         `json:"-"`
	Elapsed         time.Duration `json:"-"`
}

func (r AgentResult) Failed() bool {
	return r.Err != nil
}

// LearningEvent is one entry in a handler's bounded learning history.
type LearningEvent struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Category       string    `json:"category"`
	Confidence     float64   `json:"confidence"`
	Success        bool      `json:"success"`
	Timestamp      time.Time `json:"timestamp"`
}

// PerformanceMetrics are running aggregates per handler, mutated only by that
// handler's learning step and read by the optimizer.
type PerformanceMetrics struct {
	TotalActions      int64   `json:"total_actions"`
	SuccessfulActions int64   `json:"successful_actions"`
	AverageConfidence float64 `json:"average_confidence"`
}

func (m PerformanceMetrics) SuccessRate() float64 {
	if m.TotalActions == 0 {
		return 0
	}
	return float64(m.SuccessfulActions) / float64(m.TotalActions)
}

// AgentStatus is the outward-facing summary of one handler.
type AgentStatus struct {
	AgentType        AgentType          `json:"agent_type"`
	Specializations  []string           `json:"specializations"`
	Metrics          PerformanceMetrics `json:"metrics"`
	ConfidenceWeight float64            `json:"confidence_weight"`
	RecentEvents     []LearningEvent    `json:"recent_events,omitempty"`
}

// AgentMetric is one persisted per-conversation outcome row. Historical
// conversation success rates are averaged over these.
type AgentMetric struct {
	ID                uuid.UUID `json:"id"`
	AgentType         AgentType `json:"agent_type"`
	ConversationID    uuid.UUID `json:"conversation_id"`
	SuccessRate       float64   `json:"success_rate"`
	CoordinationScore float64   `json:"coordination_score"`
	CreatedAt         time.Time `json:"created_at"`
}
