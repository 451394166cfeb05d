package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/agentops-console/internal/domain"
	"github.com/xela07ax/agentops-console/internal/infra/auth"
	"go.uber.org/zap"
)

// AgentDirectory Описываем, что нам нужно от сервиса
type AgentDirectory interface {
	Register(ctx context.Context, name, agentType string, capabilities []string) (*domain.Agent, error)
	Poll(ctx context.Context, sender string) (*domain.Command, error)
	ListAgents(ctx context.Context) ([]*domain.Agent, []domain.PresenceEntry, error)
}

type AgentHandler struct {
	service AgentDirectory
	logger  *zap.Logger
}

func NewAgentHandler(s AgentDirectory, logger *zap.Logger) *AgentHandler {
	return &AgentHandler{service: s, logger: logger.Named("agent-handler")}
}

type registerRequest struct {
	Type         string   `json:"type"`
	Capabilities []string `json:"capabilities"`
}

// Register — POST /v1/agents/register
// Имя берется только из токена: зарегистрироваться под чужой
// идентичностью нельзя.
func (h *AgentHandler) Register(w http.ResponseWriter, r *http.Request) {
	name := auth.AgentFromContext(r.Context())
	if name == "" {
		http.Error(w, "unknown sender identity", http.StatusUnauthorized)
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	agent, err := h.service.Register(r.Context(), name, req.Type, req.Capabilities)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(agent)
}

type pollResponse struct {
	PendingCommand *domain.Command `json:"pending_command"`
}

// Poll — POST /v1/agents/{name}/poll
// Комбинированный чекин: heartbeat + одноразовая выдача команды.
func (h *AgentHandler) Poll(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	// Чекиниться можно только за себя
	if tokenName := auth.AgentFromContext(r.Context()); tokenName != name {
		h.logger.Warn("poll identity mismatch",
			zap.String("url_name", name), zap.String("token_name", tokenName))
		http.Error(w, "sender identity mismatch", http.StatusForbidden)
		return
	}

	cmd, err := h.service.Poll(r.Context(), name)
	if err != nil {
		http.Error(w, "poll failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pollResponse{PendingCommand: cmd})
}

type agentsResponse struct {
	Agents   []*domain.Agent        `json:"agents"`
	Presence []domain.PresenceEntry `json:"presence"`
}

// List — GET /v1/agents (операторский периметр)
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	agents, presence, err := h.service.ListAgents(r.Context())
	if err != nil {
		http.Error(w, "failed to fetch agents", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(agentsResponse{Agents: agents, Presence: presence})
}
