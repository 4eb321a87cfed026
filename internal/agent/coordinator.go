package agent

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kortexlabs/kortex/internal/domain"
)

// conflictConfidence marks a specialist result too weak to merge as-is.
const conflictConfidence = 0.5

// CoordinatorHandler is the generalist. It always participates: it merges the
// specialists' results, resolves conflicts, and produces the consolidated
// recommendation list.
type CoordinatorHandler struct {
	*Core
}

func NewCoordinatorHandler() *CoordinatorHandler {
	return &CoordinatorHandler{
		Core: NewCore(domain.AgentCoordinator, "triage", "conflict_resolution", "general"),
	}
}

func (h *CoordinatorHandler) Process(ctx context.Context, conv *domain.Conversation, pc Context) (domain.AgentResult, error) {
	start := time.Now()

	result := domain.AgentResult{
		AgentType:      domain.AgentCoordinator,
		ConversationID: conv.ID,
	}
	if err := ctx.Err(); err != nil {
		result.Err = err
		return result, err
	}

	merged, conflicts := mergeResults(pc.Results)
	result.Recommendations = merged

	if len(pc.Results) == 0 {
		// No specialists ran: handle the conversation directly.
		result.Recommendations = append(result.Recommendations,
			fmt.Sprintf("triage %s conversation and assign a specialist", conv.Category))
		result.Confidence = clamp(0.7 * h.Weight())
	} else {
		result.Confidence = clamp(consensusConfidence(pc.Results) * h.Weight())
	}

	if conflicts > 0 {
		result.LearningPoints = append(result.LearningPoints,
			fmt.Sprintf("resolved %d conflicting specialist results", conflicts))
	}
	result.LearningPoints = append(result.LearningPoints,
		fmt.Sprintf("coordinated %d specialist(s) for category %s", len(pc.Results), conv.Category))

	result.Elapsed = time.Since(start)
	return result, nil
}

// mergeResults flattens specialist recommendations in descending confidence
// order. Ties keep the specialists' original order. Failed or low-confidence
// results count as conflicts and are left out of the merge.
func mergeResults(results []domain.AgentResult) (recommendations []string, conflicts int) {
	usable := make([]domain.AgentResult, 0, len(results))
	for _, r := range results {
		if r.Failed() || r.Confidence < conflictConfidence {
			conflicts++
			continue
		}
		usable = append(usable, r)
	}

	sort.SliceStable(usable, func(i, j int) bool {
		return usable[i].Confidence > usable[j].Confidence
	})

	seen := make(map[string]bool)
	for _, r := range usable {
		for _, rec := range r.Recommendations {
			if seen[rec] {
				continue
			}
			seen[rec] = true
			recommendations = append(recommendations, rec)
		}
	}
	return recommendations, conflicts
}

func consensusConfidence(results []domain.AgentResult) float64 {
	var sum float64
	var n int
	for _, r := range results {
		if r.Failed() {
			continue
		}
		sum += r.Confidence
		n++
	}
	if n == 0 {
		return conflictConfidence
	}
	return sum / float64(n)
}
