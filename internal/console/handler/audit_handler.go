package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/xela07ax/agentops-console/internal/audit"
)

type LogProvider interface {
	FetchLogs(ctx context.Context, agentID, kind string) ([]audit.Event, error)
}

type AuditHandler struct {
	service LogProvider
}

func NewAuditHandler(s LogProvider) *AuditHandler {
	return &AuditHandler{service: s}
}

// List — GET /v1/audit?agent_id=&kind=
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	events, err := h.service.FetchLogs(r.Context(), q.Get("agent_id"), q.Get("kind"))
	if err != nil {
		http.Error(w, "failed to fetch audit trail", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(events)
}
