package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/xela07ax/agentops-console/internal/domain"
	"go.uber.org/zap"
)

type StatsProvider interface {
	GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error)
}

type DashboardHandler struct {
	service StatsProvider
	logger  *zap.Logger
}

func NewDashboardHandler(s StatsProvider, logger *zap.Logger) *DashboardHandler {
	return &DashboardHandler{service: s, logger: logger.Named("dashboard-handler")}
}

// Stats — GET /api/v1/dashboard/stats
// Агрегаты по очереди, флоту и активности за последний час.
func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetDashboardStats(r.Context())
	if err != nil {
		h.logger.Error("failed to collect dashboard stats", zap.Error(err))
		http.Error(w, "failed to collect stats", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}
