package agent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kortexlabs/kortex/internal/domain"
)

func TestCoreRecordBoundsHistory(t *testing.T) {
	c := NewCore(domain.AgentSales)

	for i := 0; i < learningHistoryCap+25; i++ {
		c.Record(domain.LearningEvent{
			ConversationID: uuid.New(),
			Category:       fmt.Sprintf("cat-%d", i),
			Confidence:     0.8,
			Success:        true,
			Timestamp:      time.Now(),
		})
	}

	if got := c.EventCount(); got != learningHistoryCap {
		t.Fatalf("event count = %d, want %d", got, learningHistoryCap)
	}

	// Oldest entries are gone; the newest survives.
	status := c.Status()
	last := status.RecentEvents[len(status.RecentEvents)-1]
	assert.Equal(t, fmt.Sprintf("cat-%d", learningHistoryCap+24), last.Category)

	m := c.Metrics()
	assert.Equal(t, int64(learningHistoryCap+25), m.TotalActions, "metrics keep counting past the buffer cap")
	assert.InDelta(t, 0.8, m.AverageConfidence, 1e-9)
	assert.InDelta(t, 1.0, m.SuccessRate(), 1e-9)
}

func TestCoreRunningMetrics(t *testing.T) {
	c := NewCore(domain.AgentSupport)

	c.Record(domain.LearningEvent{Confidence: 0.6, Success: true})
	c.Record(domain.LearningEvent{Confidence: 0.8, Success: false})
	c.Record(domain.LearningEvent{Confidence: 1.0, Success: true})

	m := c.Metrics()
	assert.InDelta(t, 0.8, m.AverageConfidence, 1e-9)
	assert.InDelta(t, 2.0/3.0, m.SuccessRate(), 1e-9)
}

func TestCoreAdjustWeightClamps(t *testing.T) {
	c := NewCore(domain.AgentSales)

	assert.InDelta(t, maxWeight, c.Weight(), 1e-9)

	c.AdjustWeight(-0.1)
	assert.InDelta(t, 0.9, c.Weight(), 1e-9)

	for i := 0; i < 10; i++ {
		c.AdjustWeight(-0.1)
	}
	assert.InDelta(t, minWeight, c.Weight(), 1e-9, "weight never drops below the floor")

	c.AdjustWeight(2.0)
	assert.InDelta(t, maxWeight, c.Weight(), 1e-9, "weight never exceeds the ceiling")
}

func TestRegistryResolve(t *testing.T) {
	r := NewDefaultRegistry()

	tests := []struct {
		name string
		want domain.AgentType
	}{
		{"sales", domain.AgentSales},
		{"ventas", domain.AgentSales},
		{"  Ventas ", domain.AgentSales},
		{"support", domain.AgentSupport},
		{"soporte", domain.AgentSupport},
		{"reclamo", domain.AgentSupport},
		{"coordinator", domain.AgentCoordinator},
		{"facturacion", domain.AgentCoordinator}, // unknown falls back
		{"", domain.AgentCoordinator},
	}
	for _, tt := range tests {
		if got := r.Resolve(tt.name).Type(); got != tt.want {
			t.Errorf("Resolve(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}

func TestRegistryPreservesDeclarationOrder(t *testing.T) {
	r := NewDefaultRegistry()

	handlers := r.Handlers()
	require.Len(t, handlers, 3)
	assert.Equal(t, domain.AgentSales, handlers[0].Type())
	assert.Equal(t, domain.AgentSupport, handlers[1].Type())
	assert.Equal(t, domain.AgentCoordinator, handlers[2].Type())
}

func TestSalesHandlerProcess(t *testing.T) {
	h := NewSalesHandler()
	conv := &domain.Conversation{
		ID:        uuid.New(),
		Category:  "ventas",
		Sentiment: domain.SentimentPositive,
	}

	result, err := h.Process(context.Background(), conv, Context{
		Decision: domain.RoutingDecision{
			LearningBased: true,
			PatternsUsed:  []string{domain.SourceConversationSimilarity},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, domain.AgentSales, result.AgentType)
	assert.Equal(t, conv.ID, result.ConversationID)
	assert.False(t, result.Failed())
	assert.NotEmpty(t, result.Recommendations)
	assert.NotEmpty(t, result.LearningPoints)
	assert.Greater(t, result.Confidence, 0.0)
	assert.LessOrEqual(t, result.Confidence, 1.0)
}

func TestLearningPointsCountPatternSources(t *testing.T) {
	conv := &domain.Conversation{
		ID:        uuid.New(),
		Category:  "ventas",
		Sentiment: domain.SentimentPositive,
	}
	pc := Context{
		Decision: domain.RoutingDecision{
			LearningBased: true,
			PatternsUsed:  []string{domain.SourceConversationSimilarity, domain.SourceAgentLearnings},
		},
	}

	sales, err := NewSalesHandler().Process(context.Background(), conv, pc)
	require.NoError(t, err)
	assert.Contains(t, sales.LearningPoints,
		`routing matched 2 historical patterns for category "ventas"`)

	support, err := NewSupportHandler().Process(context.Background(), conv, pc)
	require.NoError(t, err)
	assert.Contains(t, support.LearningPoints,
		"resolution path informed by 2 prior patterns")
}

func TestSupportHandlerEscalatesLongThreads(t *testing.T) {
	h := NewSupportHandler()
	conv := &domain.Conversation{
		ID:           uuid.New(),
		Category:     "reclamo",
		Sentiment:    domain.SentimentNegative,
		MessageCount: 15,
	}

	result, err := h.Process(context.Background(), conv, Context{})
	require.NoError(t, err)
	assert.Contains(t, result.Recommendations, "escalate to a senior agent: long thread without resolution")
}

func TestHandlerProcessHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	conv := &domain.Conversation{ID: uuid.New(), Category: "ventas"}
	for _, h := range NewDefaultRegistry().Handlers() {
		result, err := h.Process(ctx, conv, Context{})
		assert.Error(t, err, "%s should fail under a canceled context", h.Type())
		assert.True(t, result.Failed())
	}
}

func TestCoordinatorMergesByConfidence(t *testing.T) {
	h := NewCoordinatorHandler()
	conv := &domain.Conversation{ID: uuid.New(), Category: "ventas"}

	results := []domain.AgentResult{
		{AgentType: domain.AgentSales, Confidence: 0.7, Recommendations: []string{"sales rec"}},
		{AgentType: domain.AgentSupport, Confidence: 0.9, Recommendations: []string{"support rec", "sales rec"}},
	}

	result, err := h.Process(context.Background(), conv, Context{Results: results})
	require.NoError(t, err)

	// Higher-confidence specialist leads; duplicates collapse to the first win.
	assert.Equal(t, []string{"support rec", "sales rec"}, result.Recommendations)
	assert.InDelta(t, 0.8, result.Confidence, 1e-9)
}

func TestCoordinatorCountsConflicts(t *testing.T) {
	h := NewCoordinatorHandler()
	conv := &domain.Conversation{ID: uuid.New(), Category: "soporte"}

	results := []domain.AgentResult{
		{AgentType: domain.AgentSales, Confidence: 0.3, Recommendations: []string{"weak rec"}},
		{AgentType: domain.AgentSupport, Err: context.DeadlineExceeded},
		{AgentType: domain.AgentSupport, Confidence: 0.8, Recommendations: []string{"good rec"}},
	}

	result, err := h.Process(context.Background(), conv, Context{Results: results})
	require.NoError(t, err)

	assert.Equal(t, []string{"good rec"}, result.Recommendations, "conflicting results are excluded from the merge")
	assert.Contains(t, result.LearningPoints, "resolved 2 conflicting specialist results")
}

func TestCoordinatorWithoutSpecialists(t *testing.T) {
	h := NewCoordinatorHandler()
	conv := &domain.Conversation{ID: uuid.New(), Category: "general"}

	result, err := h.Process(context.Background(), conv, Context{})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Recommendations)
	assert.InDelta(t, 0.7, result.Confidence, 1e-9)
}
