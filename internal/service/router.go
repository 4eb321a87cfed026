package service

import (
	"strings"

	"github.com/kortexlabs/kortex/internal/domain"
)

const (
	fallbackConfidence   = 0.5
	confidencePerSource  = 0.1
	maxRouteConfidence   = 0.9
	routeSuccessFloor    = 0.7
	routeLearningFloor   = 0.8
	routeCustomerFloor   = 0.8
	maxAgentsPerSource   = 2
	minRecommendedAgents = 2
)

// Decide turns mined patterns into a routing decision. Pure: no I/O, no
// clock, fully determined by its inputs.
//
// With no patterns at all the decision is the deterministic fallback:
// the conversation's own category plus the coordinator, at 0.5 confidence.
func Decide(conv *domain.Conversation, patterns []domain.PatternMatch) domain.RoutingDecision {
	if len(patterns) == 0 {
		return domain.RoutingDecision{
			RecommendedAgents: dedupeAgents([]string{conv.Category, string(domain.AgentCoordinator)}),
			ConfidenceScore:   fallbackConfidence,
			LearningBased:     false,
		}
	}

	var agents []string
	var sources []string

	// Historical conversation similarity: categories that tended to succeed.
	n := 0
	for _, p := range patterns {
		if n >= maxAgentsPerSource {
			break
		}
		if p.Kind != domain.PatternTagSimilarity && p.Kind != domain.PatternCategorySentiment {
			continue
		}
		if p.SuccessRate > routeSuccessFloor {
			agents = append(agents, p.Category)
			sources = addSource(sources, domain.SourceConversationSimilarity)
			n++
		}
	}

	// Persisted agent learnings: handler types with strong evidence.
	n = 0
	for _, p := range patterns {
		if n >= maxAgentsPerSource {
			break
		}
		if p.Kind != domain.PatternAgentLearning {
			continue
		}
		if p.Confidence > routeLearningFloor {
			agents = append(agents, string(p.AgentType))
			sources = addSource(sources, domain.SourceAgentLearnings)
			n++
		}
	}

	// Customer history: categories this customer resolved well before.
	n = 0
	for _, p := range patterns {
		if n >= maxAgentsPerSource {
			break
		}
		if p.Kind != domain.PatternCustomerSuccess {
			continue
		}
		if p.SuccessRate > routeCustomerFloor {
			agents = append(agents, p.Category)
			sources = addSource(sources, domain.SourceCustomerSuccess)
			n++
		}
	}

	agents = dedupeAgents(agents)
	if len(agents) < minRecommendedAgents {
		agents = dedupeAgents(append(agents, string(domain.AgentCoordinator)))
	}

	confidence := fallbackConfidence + confidencePerSource*float64(len(sources))
	if confidence > maxRouteConfidence {
		confidence = maxRouteConfidence
	}

	return domain.RoutingDecision{
		RecommendedAgents: agents,
		ConfidenceScore:   confidence,
		PatternsUsed:      sources,
		LearningBased:     true,
	}
}

// dedupeAgents removes blanks and case-insensitive duplicates, keeping the
// first occurrence's order and spelling.
func dedupeAgents(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(name)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
	}
	return out
}

func addSource(sources []string, source string) []string {
	for _, s := range sources {
		if s == source {
			return sources
		}
	}
	return append(sources, source)
}
