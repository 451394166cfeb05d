package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/xela07ax/agentops-console/internal/domain"
)

// CommandPusher Описываем, что нам нужно от сервиса
type CommandPusher interface {
	EnqueueCommand(ctx context.Context, targetID, action string, parameters json.RawMessage) (*domain.Command, error)
}

type CommandHandler struct {
	service CommandPusher
}

func NewCommandHandler(s CommandPusher) *CommandHandler {
	return &CommandHandler{service: s}
}

type commandRequest struct {
	TargetID   string          `json:"target_id"`
	Action     string          `json:"action"`
	Parameters json.RawMessage `json:"parameters"`
}

// Enqueue — POST /v1/commands
// Новая команда перетирает прежнюю для того же target'а: у агента
// не бывает очереди инструкций, только последняя.
func (h *CommandHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TargetID == "" || req.Action == "" {
		http.Error(w, "target_id and action are required", http.StatusBadRequest)
		return
	}

	cmd, err := h.service.EnqueueCommand(r.Context(), req.TargetID, req.Action, req.Parameters)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]*domain.Command{"queued": cmd})
}
