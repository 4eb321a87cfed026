package domain

import "github.com/google/uuid"

type PatternKind string

const (
	PatternTagSimilarity     PatternKind = "tag_similarity"
	PatternCategorySentiment PatternKind = "category_sentiment_similarity"
	PatternAgentLearning     PatternKind = "agent_learning"
	PatternCustomerSuccess   PatternKind = "customer_success_pattern"
)

// Pattern source tags recorded on a RoutingDecision.
const (
	SourceConversationSimilarity = "conversation_similarity"
	SourceAgentLearnings         = "agent_learnings"
	SourceCustomerSuccess        = "customer_success_patterns"
)

// PatternMatch is a derived signal from historical data. Ephemeral: computed
// per routing request, never persisted.
type PatternMatch struct {
	Kind        PatternKind `json:"kind"`
	SourceID    uuid.UUID   `json:"source_id"`
	Tag         string      `json:"tag,omitempty"`
	Category    string      `json:"category,omitempty"`
	Sentiment   Sentiment   `json:"sentiment,omitempty"`
	AgentType   AgentType   `json:"agent_type,omitempty"`
	SuccessRate float64     `json:"success_rate"`
	Confidence  float64     `json:"confidence"`
	Similarity  float64     `json:"similarity_score"`
}

// RoutingDecision chooses which handlers process a conversation.
// RecommendedAgents is ordered, deduplicated, and never empty.
type RoutingDecision struct {
	RecommendedAgents   []string `json:"recommended_agents"`
	ConfidenceScore     float64  `json:"confidence_score"`
	PatternsUsed        []string `json:"patterns_used,omitempty"`
	LearningBased       bool     `json:"learning_based"`
	OptimizationApplied bool     `json:"optimization_applied"`
}
