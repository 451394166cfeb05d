package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/agentops-console/internal/domain"
	"github.com/xela07ax/agentops-console/internal/infra/auth"
)

// TaskQueue Описываем, что нам нужно от сервиса
type TaskQueue interface {
	Enqueue(ctx context.Context, taskType, description string, payload json.RawMessage, priority domain.TaskPriority, assignedTo string) (*domain.Task, error)
	Get(ctx context.Context, id string) (*domain.Task, error)
	List(ctx context.Context, f domain.TaskFilter) ([]*domain.Task, error)
	NextAvailable(ctx context.Context, preferredAgent, taskType string) (*domain.Task, error)
	Claim(ctx context.Context, taskID, agentName string) (bool, error)
	Start(ctx context.Context, taskID string) (bool, error)
	Complete(ctx context.Context, taskID string, result json.RawMessage) (bool, error)
	Fail(ctx context.Context, taskID, errMsg string) (bool, error)
}

type TaskHandler struct {
	service TaskQueue
}

func NewTaskHandler(s TaskQueue) *TaskHandler {
	return &TaskHandler{service: s}
}

type enqueueRequest struct {
	Type        string              `json:"type"`
	Description string              `json:"description"`
	Priority    domain.TaskPriority `json:"priority"`
	AssignedTo  string              `json:"assigned_to"`
	Payload     json.RawMessage     `json:"payload"`
}

// Create — POST /v1/tasks
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Type == "" {
		http.Error(w, "type is required", http.StatusBadRequest)
		return
	}

	task, err := h.service.Enqueue(r.Context(), req.Type, req.Description, req.Payload, req.Priority, req.AssignedTo)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownPriority) {
			http.Error(w, "unknown priority", http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(task)
}

// Get — GET /v1/tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	task, err := h.service.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "failed to retrieve task", http.StatusInternalServerError)
		return
	}
	if task == nil {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(task)
}

// List — GET /v1/tasks?status=&type=&assigned_to=&limit=
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	tasks, err := h.service.List(r.Context(), domain.TaskFilter{
		Status:     domain.TaskStatus(q.Get("status")),
		Type:       q.Get("type"),
		AssignedTo: q.Get("assigned_to"),
		Limit:      limit,
	})
	if err != nil {
		http.Error(w, "failed to fetch tasks", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tasks)
}

// Next — GET /v1/tasks/next?type=
// Возвращает кандидата БЕЗ захвата; 204 — очереди нечего предложить.
func (h *TaskHandler) Next(w http.ResponseWriter, r *http.Request) {
	agentName := auth.AgentFromContext(r.Context())

	task, err := h.service.NextAvailable(r.Context(), agentName, r.URL.Query().Get("type"))
	if err != nil {
		http.Error(w, "failed to select task", http.StatusInternalServerError)
		return
	}
	if task == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(task)
}

type claimRequest struct {
	AgentName string `json:"agent_name"`
}

// Claim — POST /v1/tasks/{id}/claim
// success=false — штатный проигрыш гонки, агент идет за следующим кандидатом.
func (h *TaskHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req claimRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // Тело опционально
	// Идентичность из токена перекрывает тело: агент не может
	// захватывать работу под чужим именем
	if name := auth.AgentFromContext(r.Context()); name != "" {
		req.AgentName = name
	}
	if req.AgentName == "" {
		http.Error(w, "agent_name is required", http.StatusBadRequest)
		return
	}

	ok, err := h.service.Claim(r.Context(), id, req.AgentName)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeSuccess(w, ok)
}

// Start — POST /v1/tasks/{id}/start
func (h *TaskHandler) Start(w http.ResponseWriter, r *http.Request) {
	ok, err := h.service.Start(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeSuccess(w, ok)
}

type completeRequest struct {
	Result json.RawMessage `json:"result"`
}

// Complete — POST /v1/tasks/{id}/complete
func (h *TaskHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	ok, err := h.service.Complete(r.Context(), chi.URLParam(r, "id"), req.Result)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeSuccess(w, ok)
}

type failRequest struct {
	Error string `json:"error"`
}

// Fail — POST /v1/tasks/{id}/fail
func (h *TaskHandler) Fail(w http.ResponseWriter, r *http.Request) {
	var req failRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Error == "" {
		http.Error(w, "error text is required", http.StatusBadRequest)
		return
	}

	ok, err := h.service.Fail(r.Context(), chi.URLParam(r, "id"), req.Error)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeSuccess(w, ok)
}

func writeSuccess(w http.ResponseWriter, ok bool) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"success": ok})
}
