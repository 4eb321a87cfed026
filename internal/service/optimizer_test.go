package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kortexlabs/kortex/internal/domain"
	"go.uber.org/zap"
)

func TestTriggerOptimizationTimeGate(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	require.NoError(t, env.coordinator.Init(ctx))

	ran, err := env.coordinator.TriggerOptimization(ctx)
	require.NoError(t, err)
	assert.True(t, ran)

	// Second trigger inside the window is a no-op.
	ran, err = env.coordinator.TriggerOptimization(ctx)
	require.NoError(t, err)
	assert.False(t, ran)

	status := env.coordinator.Status()
	// Fresh state has success rate 0 < 0.7, so the first cycle applied
	// exactly one agent-parameter optimization; the gated second applied none.
	require.Len(t, status.OptimizationHistory, 1)
	assert.Equal(t, "agent_parameters", status.OptimizationHistory[0].Kind)
	assert.InDelta(t, 0.15, status.OptimizationHistory[0].ExpectedImpact, 1e-9)
	assert.NotNil(t, status.LastOptimization)
}

func TestTriggerOptimizationLowersHandlerWeights(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	require.NoError(t, env.coordinator.Init(ctx))

	ran, err := env.coordinator.TriggerOptimization(ctx)
	require.NoError(t, err)
	require.True(t, ran)

	for _, h := range env.registry.Handlers() {
		assert.InDelta(t, 0.9, h.Weight(), 1e-9, "%s weight lowered by 0.1", h.Type())
	}
}

func TestTriggerOptimizationReopensAfterWindow(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	require.NoError(t, env.coordinator.Init(ctx))

	ran, err := env.coordinator.TriggerOptimization(ctx)
	require.NoError(t, err)
	require.True(t, ran)

	// Age the last run past the frequency window.
	env.coordinator.mu.Lock()
	old := time.Now().UTC().Add(-env.coordinator.state.OptimizationFrequency - time.Minute)
	env.coordinator.state.LastOptimization = &old
	env.coordinator.mu.Unlock()

	ran, err = env.coordinator.TriggerOptimization(ctx)
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestTriggerOptimizationFlagsRouting(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	require.NoError(t, env.coordinator.Init(ctx))

	env.coordinator.mu.Lock()
	for i := 0; i < routingReviewCycleCount+1; i++ {
		env.coordinator.learningCycles = append(env.coordinator.learningCycles, domain.LearningCycle{Timestamp: time.Now().UTC()})
	}
	env.coordinator.mu.Unlock()

	ran, err := env.coordinator.TriggerOptimization(ctx)
	require.NoError(t, err)
	require.True(t, ran)

	status := env.coordinator.Status()
	assert.True(t, status.RoutingFlaggedForReview)

	var kinds []string
	for _, rec := range status.OptimizationHistory {
		kinds = append(kinds, rec.Kind)
	}
	assert.Contains(t, kinds, "routing_review")
}

func TestTriggerOptimizationTrimsTrendCache(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	require.NoError(t, env.coordinator.Init(ctx))

	env.coordinator.mu.Lock()
	for i := 0; i < trendCacheCap+200; i++ {
		env.coordinator.trendCache = append(env.coordinator.trendCache, trendEntry{Category: "ventas"})
	}
	env.coordinator.mu.Unlock()

	ran, err := env.coordinator.TriggerOptimization(ctx)
	require.NoError(t, err)
	require.True(t, ran)

	env.coordinator.mu.Lock()
	size := len(env.coordinator.trendCache)
	env.coordinator.mu.Unlock()
	assert.Equal(t, trendCacheCap, size)

	var kinds []string
	for _, rec := range env.coordinator.Status().OptimizationHistory {
		kinds = append(kinds, rec.Kind)
	}
	assert.Contains(t, kinds, "memory_trim")
}

func TestTriggerOptimizationRestoresActiveStatus(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	require.NoError(t, env.coordinator.Init(ctx))

	_, err := env.coordinator.TriggerOptimization(ctx)
	require.NoError(t, err)

	status := env.coordinator.Status()
	assert.Equal(t, domain.StatusActive, status.Status)
	assert.False(t, status.IsLearning)
}

func TestOptimizerServiceScheduledCycle(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	require.NoError(t, env.coordinator.Init(ctx))

	optimizer := NewOptimizerService(env.coordinator, zap.NewNop())
	optimizer.SetInterval(10 * time.Millisecond)
	optimizer.Start()
	defer optimizer.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if env.coordinator.Status().LastOptimization != nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	status := env.coordinator.Status()
	require.NotNil(t, status.LastOptimization, "scheduler never ran a cycle")
	// The 24h gate holds after the first scheduled cycle.
	assert.Len(t, status.OptimizationHistory, 1)
}

func TestOptimizerServiceStops(t *testing.T) {
	env := newTestEnv()
	require.NoError(t, env.coordinator.Init(context.Background()))

	optimizer := NewOptimizerService(env.coordinator, zap.NewNop())
	optimizer.SetInterval(5 * time.Millisecond)
	optimizer.Start()

	done := make(chan struct{})
	go func() {
		optimizer.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("optimizer did not stop")
	}
}
