package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/xela07ax/agentops-console/internal/domain"
)

func doJSON(t *testing.T, method, url, token string, body interface{}) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func decode(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestPerimeterRejectsUnknownToken(t *testing.T) {
	env := newTestEnv(30)
	defer env.Close()

	// Без токена
	resp := doJSON(t, http.MethodGet, env.server.URL+"/v1/tasks", "", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("no token: status=%d, want 401", resp.StatusCode)
	}

	// С неизвестным токеном
	resp = doJSON(t, http.MethodGet, env.server.URL+"/v1/tasks", "tok-unknown", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unknown token: status=%d, want 401", resp.StatusCode)
	}

	// С валидным — пропуск
	resp = doJSON(t, http.MethodGet, env.server.URL+"/v1/tasks", "tok-alpha", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("valid token: status=%d, want 200", resp.StatusCode)
	}
}

func TestTaskLifecycleOverHTTP(t *testing.T) {
	env := newTestEnv(30)
	defer env.Close()
	base := env.server.URL

	// Постановка
	resp := doJSON(t, http.MethodPost, base+"/v1/tasks", "tok-alpha", map[string]interface{}{
		"type":     "post_review",
		"priority": "high",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: status=%d, want 201", resp.StatusCode)
	}
	var task domain.Task
	decode(t, resp, &task)

	// Кандидат
	resp = doJSON(t, http.MethodGet, base+"/v1/tasks/next", "tok-alpha", nil)
	var next domain.Task
	decode(t, resp, &next)
	if next.ID != task.ID {
		t.Fatalf("next: got %s, want %s", next.ID, task.ID)
	}

	// Захват: идентичность из токена, тело не обязательно
	var claim struct {
		Success bool `json:"success"`
	}
	resp = doJSON(t, http.MethodPost, base+"/v1/tasks/"+task.ID+"/claim", "tok-alpha", nil)
	decode(t, resp, &claim)
	if !claim.Success {
		t.Fatal("first claim must win")
	}

	// Конкурент опоздал
	resp = doJSON(t, http.MethodPost, base+"/v1/tasks/"+task.ID+"/claim", "tok-beta", nil)
	decode(t, resp, &claim)
	if claim.Success {
		t.Fatal("second claim must lose")
	}

	// start -> complete
	resp = doJSON(t, http.MethodPost, base+"/v1/tasks/"+task.ID+"/start", "tok-alpha", nil)
	decode(t, resp, &claim)
	if !claim.Success {
		t.Fatal("start must succeed")
	}
	resp = doJSON(t, http.MethodPost, base+"/v1/tasks/"+task.ID+"/complete", "tok-alpha",
		map[string]interface{}{"result": map[string]int{"score": 7}})
	decode(t, resp, &claim)
	if !claim.Success {
		t.Fatal("complete must succeed")
	}

	// Владелец зафиксирован по токену победителя
	got, err := env.tasks.Get(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Status != domain.TaskDone {
		t.Errorf("status=%q, want done", got.Status)
	}
	if got.AssignedTo == nil || *got.AssignedTo != "alpha" {
		t.Errorf("assigned_to=%v, want alpha", got.AssignedTo)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	env := newTestEnv(30)
	defer env.Close()
	base := env.server.URL

	// Без типа
	resp := doJSON(t, http.MethodPost, base+"/v1/tasks", "tok-alpha", map[string]string{"description": "x"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing type: status=%d, want 400", resp.StatusCode)
	}

	// Неизвестный приоритет
	resp = doJSON(t, http.MethodPost, base+"/v1/tasks", "tok-alpha",
		map[string]string{"type": "job", "priority": "critical"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad priority: status=%d, want 400", resp.StatusCode)
	}
}

func TestNextReturnsNoContentOnEmptyQueue(t *testing.T) {
	env := newTestEnv(30)
	defer env.Close()

	resp := doJSON(t, http.MethodGet, env.server.URL+"/v1/tasks/next", "tok-alpha", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("empty queue: status=%d, want 204", resp.StatusCode)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	env := newTestEnv(30)
	defer env.Close()

	resp := doJSON(t, http.MethodGet, env.server.URL+"/v1/tasks/no-such-id", "tok-alpha", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status=%d, want 404", resp.StatusCode)
	}
}
