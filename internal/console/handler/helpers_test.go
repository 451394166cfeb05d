package handler

import (
	"context"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/agentops-console/internal/audit"
	"github.com/xela07ax/agentops-console/internal/console/service"
	"github.com/xela07ax/agentops-console/internal/infra/auth"
	"github.com/xela07ax/agentops-console/internal/ratelimit"
	"github.com/xela07ax/agentops-console/internal/repository/memory"
	"go.uber.org/zap"
)

// Тестовый периметр: два известных агентских токена
var testTokens = map[string]string{
	"tok-alpha": "alpha",
	"tok-beta":  "beta",
}

type nopTrail struct{}

func (nopTrail) Record(audit.Event) {}

type sinkStub struct {
	mu       sync.Mutex
	messages []string
}

func (s *sinkStub) Send(_ context.Context, sender, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, sender+": "+text)
	return nil
}

type testEnv struct {
	server *httptest.Server
	tasks  *service.TaskService
	agents *service.AgentService
	sink   *sinkStub
}

// newTestEnv поднимает агентский периметр поверх in-memory хранилищ.
func newTestEnv(chatLimit int) *testEnv {
	logger := zap.NewNop()

	taskSvc := service.NewTaskService(memory.NewTaskStore(), nopTrail{}, nil, "", logger)
	agentSvc := service.NewAgentService(memory.NewAgentStore(), memory.NewMailbox(), nopTrail{}, nil,
		10*time.Minute, 5*time.Minute, logger)
	limiter := ratelimit.NewLimiter(memory.NewWindow(), chatLimit, time.Minute, nil, logger)
	sink := &sinkStub{}

	taskH := NewTaskHandler(taskSvc)
	agentH := NewAgentHandler(agentSvc, logger)
	chatH := NewChatHandler(limiter, sink, nopTrail{}, logger)

	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(auth.AgentTokenMiddleware(testTokens, logger))
		r.Post("/v1/agents/register", agentH.Register)
		r.Post("/v1/agents/{name}/poll", agentH.Poll)
		r.Post("/v1/chat", chatH.Send)
		r.Route("/v1/tasks", func(r chi.Router) {
			r.Get("/", taskH.List)
			r.Post("/", taskH.Create)
			r.Get("/next", taskH.Next)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", taskH.Get)
				r.Post("/claim", taskH.Claim)
				r.Post("/start", taskH.Start)
				r.Post("/complete", taskH.Complete)
				r.Post("/fail", taskH.Fail)
			})
		})
	})

	return &testEnv{
		server: httptest.NewServer(r),
		tasks:  taskSvc,
		agents: agentSvc,
		sink:   sink,
	}
}

func (e *testEnv) Close() { e.server.Close() }
