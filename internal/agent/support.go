package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/kortexlabs/kortex/internal/domain"
)

// SupportHandler handles problem resolution: incidents, complaints, how-to.
type SupportHandler struct {
	*Core
}

func NewSupportHandler() *SupportHandler {
	return &SupportHandler{
		Core: NewCore(domain.AgentSupport, "incidents", "complaints", "troubleshooting"),
	}
}

func (h *SupportHandler) Process(ctx context.Context, conv *domain.Conversation, pc Context) (domain.AgentResult, error) {
	start := time.Now()

	result := domain.AgentResult{
		AgentType:      domain.AgentSupport,
		ConversationID: conv.ID,
	}
	if err := ctx.Err(); err != nil {
		result.Err = err
		return result, err
	}

	base := 0.8
	switch conv.Sentiment {
	case domain.SentimentNegative:
		// Escalations are where support history helps the most.
		base = 0.85
		result.Recommendations = append(result.Recommendations, "acknowledge the issue and set a resolution deadline")
	case domain.SentimentPositive:
		base = 0.7
		result.Recommendations = append(result.Recommendations, "close with a satisfaction check")
	}
	if conv.MessageCount > 10 {
		result.Recommendations = append(result.Recommendations, "escalate to a senior agent: long thread without resolution")
		result.LearningPoints = append(result.LearningPoints,
			fmt.Sprintf("conversation exceeded %d messages before routing", conv.MessageCount))
	}
	if pc.Decision.LearningBased {
		base += 0.05
		result.LearningPoints = append(result.LearningPoints,
			fmt.Sprintf("resolution path informed by %d prior patterns", len(pc.Decision.PatternsUsed)))
	}

	result.LearningPoints = append(result.LearningPoints,
		fmt.Sprintf("%s case in category %s", conv.Sentiment, conv.Category))

	result.Confidence = clamp(base * h.Weight())
	result.Elapsed = time.Since(start)
	return result, nil
}
