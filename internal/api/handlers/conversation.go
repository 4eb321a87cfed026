package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/kortexlabs/kortex/internal/domain"
	"github.com/kortexlabs/kortex/internal/service"
)

type ConversationHandler struct {
	svc *service.CoordinatorService
}

func NewConversationHandler(svc *service.CoordinatorService) *ConversationHandler {
	return &ConversationHandler{svc: svc}
}

type processConversationRequest struct {
	ID           string   `json:"id,omitempty"`
	Category     string   `json:"category"`
	Tags         []string `json:"tags,omitempty"`
	Sentiment    string   `json:"sentiment,omitempty"`
	CustomerRef  string   `json:"customer_ref,omitempty"`
	MessageCount int      `json:"message_count,omitempty"`
}

// Process runs the full routing and learning pipeline for one conversation.
func (h *ConversationHandler) Process(w http.ResponseWriter, r *http.Request) {
	var req processConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Category == "" {
		writeError(w, http.StatusBadRequest, "category is required")
		return
	}
	if req.Sentiment != "" && !domain.ValidSentiment(req.Sentiment) {
		writeError(w, http.StatusBadRequest, "invalid sentiment")
		return
	}

	id := uuid.New()
	if req.ID != "" {
		parsed, err := uuid.Parse(req.ID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid conversation id")
			return
		}
		id = parsed
	}

	conv := &domain.Conversation{
		ID:           id,
		Category:     req.Category,
		Tags:         req.Tags,
		Sentiment:    domain.Sentiment(req.Sentiment),
		CustomerRef:  req.CustomerRef,
		Status:       domain.ConversationOpen,
		MessageCount: req.MessageCount,
	}

	result, err := h.svc.ProcessConversation(r.Context(), conv)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			writeError(w, http.StatusRequestTimeout, "request canceled")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to process conversation")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
