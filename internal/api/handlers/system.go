package handlers

import (
	"net/http"

	"github.com/kortexlabs/kortex/internal/service"
)

type SystemHandler struct {
	svc *service.CoordinatorService
}

func NewSystemHandler(svc *service.CoordinatorService) *SystemHandler {
	return &SystemHandler{svc: svc}
}

func (h *SystemHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

func (h *SystemHandler) Insights(w http.ResponseWriter, r *http.Request) {
	insights, err := h.svc.BusinessInsights(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build insights")
		return
	}
	writeJSON(w, http.StatusOK, insights)
}

func (h *SystemHandler) Agents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": h.svc.AgentStatuses()})
}

// Optimize triggers an optimization cycle. The time gate still applies: an
// in-window trigger reports triggered=false without doing anything.
func (h *SystemHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	ran, err := h.svc.TriggerOptimization(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "optimization cycle failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"triggered": ran})
}

// ResetMemory clears the in-memory learning caches. Idempotent.
func (h *SystemHandler) ResetMemory(w http.ResponseWriter, r *http.Request) {
	h.svc.ResetMemory()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
