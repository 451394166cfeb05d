package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/xela07ax/agentops-console/internal/domain"
)

func TestPollDeliversCommandOnce(t *testing.T) {
	env := newTestEnv(30)
	defer env.Close()

	// Оператор кладет команду в ящик alpha
	if _, err := env.agents.EnqueueCommand(context.Background(), "alpha", "pause", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var poll struct {
		PendingCommand *domain.Command `json:"pending_command"`
	}

	resp := doJSON(t, http.MethodPost, env.server.URL+"/v1/agents/alpha/poll", "tok-alpha", map[string]string{})
	decode(t, resp, &poll)
	if poll.PendingCommand == nil || poll.PendingCommand.Action != "pause" {
		t.Fatalf("first poll: expected pause command, got %+v", poll.PendingCommand)
	}

	// Повторный poll — ящик уже пуст, в JSON явный null
	resp = doJSON(t, http.MethodPost, env.server.URL+"/v1/agents/alpha/poll", "tok-alpha", map[string]string{})
	decode(t, resp, &poll)
	if poll.PendingCommand != nil {
		t.Errorf("second poll: expected null command, got %+v", poll.PendingCommand)
	}
}

func TestPollRejectsForeignIdentity(t *testing.T) {
	env := newTestEnv(30)
	defer env.Close()

	// beta пытается чекиниться за alpha
	resp := doJSON(t, http.MethodPost, env.server.URL+"/v1/agents/alpha/poll", "tok-beta", map[string]string{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("status=%d, want 403", resp.StatusCode)
	}
}

func TestRegisterUsesTokenIdentity(t *testing.T) {
	env := newTestEnv(30)
	defer env.Close()

	resp := doJSON(t, http.MethodPost, env.server.URL+"/v1/agents/register", "tok-alpha",
		map[string]interface{}{"type": "reviewer", "capabilities": []string{"post_review"}})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status=%d, want 201", resp.StatusCode)
	}
	var agent domain.Agent
	decode(t, resp, &agent)
	if agent.Name != "alpha" {
		t.Errorf("name=%q, want alpha (from token)", agent.Name)
	}

	agents, _, err := env.agents.ListAgents(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(agents) != 1 || agents[0].Name != "alpha" {
		t.Errorf("directory mismatch: %+v", agents)
	}
}
