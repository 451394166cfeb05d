package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/xela07ax/agentops-console/internal/audit"
	"github.com/xela07ax/agentops-console/internal/domain"
	"github.com/xela07ax/agentops-console/internal/infra/auth"
	"go.uber.org/zap"
)

// RateGate — решение «пропустить или нет» для одного отправителя.
type RateGate interface {
	CheckAndRecord(ctx context.Context, sender string) domain.RateLimitDecision
}

// ChatSink — куда уходит пропущенное сообщение (комната дашборда).
type ChatSink interface {
	Send(ctx context.Context, sender, text string) error
}

type ChatHandler struct {
	gate   RateGate
	sink   ChatSink
	trail  audit.Recorder
	logger *zap.Logger
}

func NewChatHandler(gate RateGate, sink ChatSink, trail audit.Recorder, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{gate: gate, sink: sink, trail: trail, logger: logger.Named("chat-handler")}
}

type chatRequest struct {
	Text string `json:"text"`
}

// Send — POST /v1/chat
// Единственная точка, где включен скользящий лимит: болтливый агент
// не должен затапливать комнату операторов.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	sender := auth.AgentFromContext(r.Context())
	if sender == "" {
		http.Error(w, "unknown sender identity", http.StatusUnauthorized)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	decision := h.gate.CheckAndRecord(r.Context(), sender)

	// Заголовки лимита отдаем на каждый ответ, не только на отказ
	w.Header().Set("RateLimit-Limit", strconv.Itoa(decision.Limit))
	w.Header().Set("RateLimit-Remaining", strconv.Itoa(decision.Remaining))
	w.Header().Set("RateLimit-Reset", strconv.FormatInt(decision.ResetMs, 10))

	if !decision.Allowed {
		// Retry-After — в целых секундах, округляем вверх
		retryAfter := (decision.ResetMs + 999) / 1000
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))

		h.trail.Record(audit.Event{
			ID:      uuid.New().String(),
			Kind:    audit.KindRateLimited,
			AgentID: sender,
			Detail:  map[string]interface{}{"reset_ms": decision.ResetMs},
		})
		h.logger.Warn("chat message rejected by limiter",
			zap.String("sender", sender), zap.Int64("reset_ms", decision.ResetMs))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]string{"error": "rate limit exceeded"})
		return
	}

	if err := h.sink.Send(r.Context(), sender, req.Text); err != nil {
		h.logger.Error("chat sink failed", zap.String("sender", sender), zap.Error(err))
		http.Error(w, "failed to deliver message", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]bool{"delivered": true})
}
