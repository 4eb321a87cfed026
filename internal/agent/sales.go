package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/kortexlabs/kortex/internal/domain"
)

// SalesHandler handles commercial conversations: quotes, upgrades, renewals.
type SalesHandler struct {
	*Core
}

func NewSalesHandler() *SalesHandler {
	return &SalesHandler{
		Core: NewCore(domain.AgentSales, "pricing", "upgrades", "renewals"),
	}
}

func (h *SalesHandler) Process(ctx context.Context, conv *domain.Conversation, pc Context) (domain.AgentResult, error) {
	start := time.Now()

	result := domain.AgentResult{
		AgentType:      domain.AgentSales,
		ConversationID: conv.ID,
	}
	if err := ctx.Err(); err != nil {
		result.Err = err
		return result, err
	}

	base := 0.75
	if conv.Sentiment == domain.SentimentPositive {
		base = 0.85
		result.Recommendations = append(result.Recommendations, "propose upgrade to the next plan tier")
	}
	if conv.Sentiment == domain.SentimentNegative {
		base = 0.6
		result.Recommendations = append(result.Recommendations, "offer retention discount before discussing new products")
	}
	if pc.Decision.LearningBased {
		base += 0.05
		result.LearningPoints = append(result.LearningPoints,
			fmt.Sprintf("routing matched %d historical patterns for category %q", len(pc.Decision.PatternsUsed), conv.Category))
	}

	result.Recommendations = append(result.Recommendations, "follow up with a written quote within 24h")
	result.LearningPoints = append(result.LearningPoints,
		fmt.Sprintf("%s sentiment on a %s conversation with %d messages", conv.Sentiment, conv.Category, conv.MessageCount))

	result.Confidence = clamp(base * h.Weight())
	result.Elapsed = time.Since(start)
	return result, nil
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
