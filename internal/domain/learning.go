package domain

import (
	"time"

	"github.com/google/uuid"
)

type LearningType string

const (
	LearningConversation    LearningType = "conversation_learning"
	LearningTag             LearningType = "tag_learning"
	LearningPattern         LearningType = "pattern_learning"
	LearningBusinessInsight LearningType = "business_insight"
	LearningAgent           LearningType = "agent_learning"
)

// LearningRecord is durable evidence extracted from a processed conversation.
// Unique on (agent_type, learning_type, conversation_id) so retries and
// re-delivery never duplicate learning.
type LearningRecord struct {
	ID              uuid.UUID    `json:"id"`
	AgentType       AgentType    `json:"agent_type"`
	LearningType    LearningType `json:"learning_type"`
	Content         string       `json:"content"`
	ConfidenceScore float64      `json:"confidence_score"`
	Category        string       `json:"category"`
	ConversationID  uuid.UUID    `json:"conversation_id"`
	CreatedAt       time.Time    `json:"created_at"`
}

// InsightPattern is one identified pattern, optimization, or insight inside a
// LearningOutcome.
type InsightPattern struct {
	Kind        string  `json:"kind"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
	DataPoints  int     `json:"data_points"`
}

// LearningOutcome is everything the extractor derived from one conversation.
// Written once per conversation; persisted as LearningRecords.
type LearningOutcome struct {
	ConversationID     uuid.UUID        `json:"conversation_id"`
	Patterns           []InsightPattern `json:"patterns_identified"`
	AgentOptimizations []InsightPattern `json:"agent_optimizations"`
	BusinessInsights   []InsightPattern `json:"business_insights"`
	CreatedAt          time.Time        `json:"created_at"`
}

// Significant reports whether the outcome warrants an inline learning cycle.
func (o LearningOutcome) Significant() bool {
	return len(o.Patterns) > 2 || len(o.AgentOptimizations) > 1 || len(o.BusinessInsights) > 2
}

// Synthesis aggregates all handler results for one conversation.
type Synthesis struct {
	ConversationID    uuid.UUID   `json:"conversation_id"`
	Participants      []AgentType `json:"participants"`
	OverallConfidence float64     `json:"overall_confidence"`
	ConflictsDetected int         `json:"conflicts_detected"`
	ConflictsResolved int         `json:"conflicts_resolved"`
	CoordinationScore float64     `json:"coordination_score"`
	Recommendations   []string    `json:"recommendations,omitempty"`
	Timestamp         time.Time   `json:"timestamp"`
}

// LearningCycle records one inline learning pass over a significant outcome.
type LearningCycle struct {
	Timestamp          time.Time `json:"timestamp"`
	PatternsIdentified int       `json:"patterns_identified"`
	Optimizations      int       `json:"optimizations_applied"`
	Insights           int       `json:"insights_generated"`
}

// OptimizationRecord is one applied system optimization. The history these
// accumulate in is append-only.
type OptimizationRecord struct {
	Kind           string    `json:"kind"`
	Description    string    `json:"description"`
	Priority       string    `json:"priority"`
	ExpectedImpact float64   `json:"expected_impact"`
	AppliedAt      time.Time `json:"applied_at"`
}
