package agent

import (
	"context"
	"strings"
	"sync"

	"github.com/kortexlabs/kortex/internal/domain"
)

const (
	// learningHistoryCap bounds each handler's learning buffer. Eviction is
	// FIFO; dropped entries are not archived.
	learningHistoryCap = 100

	recentEventCount = 5

	minWeight = 0.5
	maxWeight = 1.0
)

// Context carries the routing decision and, for the coordinator, the results
// already produced by the other handlers in this pass.
type Context struct {
	Decision domain.RoutingDecision
	Results  []domain.AgentResult
}

// Handler is the uniform contract every specialized processor implements.
type Handler interface {
	Type() domain.AgentType
	Process(ctx context.Context, conv *domain.Conversation, pc Context) (domain.AgentResult, error)
	Record(e domain.LearningEvent)
	Status() domain.AgentStatus
	Weight() float64
	AdjustWeight(delta float64)
}

// Core holds the learning state shared by all handlers: specialization tags,
// the bounded event history, running performance metrics, and the confidence
// weight the optimizer tunes.
type Core struct {
	agentType       domain.AgentType
	specializations []string

	mu      sync.Mutex
	events  []domain.LearningEvent
	metrics domain.PerformanceMetrics
	weight  float64
}

func NewCore(agentType domain.AgentType, specializations ...string) *Core {
	return &Core{
		agentType:       agentType,
		specializations: specializations,
		weight:          maxWeight,
	}
}

func (c *Core) Type() domain.AgentType {
	return c.agentType
}

// Record appends a learning event and updates the running metrics. At
// capacity the oldest event drops silently.
func (c *Core) Record(e domain.LearningEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = append(c.events, e)
	if len(c.events) > learningHistoryCap {
		c.events = c.events[len(c.events)-learningHistoryCap:]
	}

	c.metrics.TotalActions++
	if e.Success {
		c.metrics.SuccessfulActions++
	}
	// Running mean over all recorded confidences.
	c.metrics.AverageConfidence += (e.Confidence - c.metrics.AverageConfidence) / float64(c.metrics.TotalActions)
}

func (c *Core) Status() domain.AgentStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	recent := c.events
	if len(recent) > recentEventCount {
		recent = recent[len(recent)-recentEventCount:]
	}
	events := make([]domain.LearningEvent, len(recent))
	copy(events, recent)

	return domain.AgentStatus{
		AgentType:        c.agentType,
		Specializations:  append([]string(nil), c.specializations...),
		Metrics:          c.metrics,
		ConfidenceWeight: c.weight,
		RecentEvents:     events,
	}
}

func (c *Core) Metrics() domain.PerformanceMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

func (c *Core) EventCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func (c *Core) Weight() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.weight
}

// AdjustWeight shifts the confidence weight additively, clamped to
// [minWeight, maxWeight].
func (c *Core) AdjustWeight(delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.weight += delta
	if c.weight < minWeight {
		c.weight = minWeight
	}
	if c.weight > maxWeight {
		c.weight = maxWeight
	}
}

// Registry maps agent types to handlers. Declaration order is preserved and
// breaks confidence ties during coordination.
type Registry struct {
	order    []domain.AgentType
	handlers map[domain.AgentType]Handler
	aliases  map[string]domain.AgentType
}

func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{
		handlers: make(map[domain.AgentType]Handler),
		aliases: map[string]domain.AgentType{
			"sales":       domain.AgentSales,
			"ventas":      domain.AgentSales,
			"support":     domain.AgentSupport,
			"soporte":     domain.AgentSupport,
			"reclamo":     domain.AgentSupport,
			"coordinator": domain.AgentCoordinator,
		},
	}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// NewDefaultRegistry builds the standard pool: sales, support, coordinator.
func NewDefaultRegistry() *Registry {
	return NewRegistry(NewSalesHandler(), NewSupportHandler(), NewCoordinatorHandler())
}

func (r *Registry) Register(h Handler) {
	t := h.Type()
	if _, exists := r.handlers[t]; !exists {
		r.order = append(r.order, t)
	}
	r.handlers[t] = h
}

// Resolve maps a recommended agent name (agent type or category alias) to a
// handler. Unknown names fall back to the coordinator.
func (r *Registry) Resolve(name string) Handler {
	if t, ok := r.aliases[strings.ToLower(strings.TrimSpace(name))]; ok {
		if h, ok := r.handlers[t]; ok {
			return h
		}
	}
	return r.handlers[domain.AgentCoordinator]
}

func (r *Registry) Get(t domain.AgentType) (Handler, bool) {
	h, ok := r.handlers[t]
	return h, ok
}

// Handlers returns all handlers in declaration order.
func (r *Registry) Handlers() []Handler {
	out := make([]Handler, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.handlers[t])
	}
	return out
}

func (r *Registry) Statuses() []domain.AgentStatus {
	statuses := make([]domain.AgentStatus, 0, len(r.order))
	for _, t := range r.order {
		statuses = append(statuses, r.handlers[t].Status())
	}
	return statuses
}
