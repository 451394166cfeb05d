package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/agentops-console/internal/console/handler"
	"github.com/xela07ax/agentops-console/internal/infra"
	"github.com/xela07ax/agentops-console/internal/infra/auth"
	"github.com/xela07ax/agentops-console/internal/metrics"
	"go.uber.org/zap"
)

type ConsoleServer struct {
	router  *chi.Mux
	logger  *zap.Logger
	cfg     *infra.Config
	metrics *metrics.Metrics

	// Интерфейс для проверки операторских токенов (RS256)
	// Реализуется через embedding BaseValidator в AuthService
	authValidator auth.TokenValidator

	// Обработчики бизнес-доменов
	authHandler    *handler.AuthHandler      // /auth/token
	taskHandler    *handler.TaskHandler      // /v1/tasks
	agentHandler   *handler.AgentHandler     // /v1/agents
	commandHandler *handler.CommandHandler   // /v1/commands
	chatHandler    *handler.ChatHandler      // /v1/chat
	dashHandler    *handler.DashboardHandler // /api/v1/dashboard
	auditHandler   *handler.AuditHandler     // /v1/audit (Logs)
}

// NewConsoleServer инициализирует сервер консоли со всеми зависимостями
func NewConsoleServer(
	cfg *infra.Config,
	logger *zap.Logger,
	m *metrics.Metrics,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	taskH *handler.TaskHandler,
	agentH *handler.AgentHandler,
	commandH *handler.CommandHandler,
	chatH *handler.ChatHandler,
	dashH *handler.DashboardHandler,
	auditH *handler.AuditHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:         chi.NewRouter(),
		logger:         logger.Named("console-api"),
		cfg:            cfg,
		metrics:        m,
		authValidator:  validator,
		authHandler:    authH,
		taskHandler:    taskH,
		agentHandler:   agentH,
		commandHandler: commandH,
		chatHandler:    chatH,
		dashHandler:    dashH,
		auditHandler:   auditH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.measureLatency)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ (Открыты для всех) ---
	r.Group(func(r chi.Router) {
		// Логин должен быть доступен без токена
		r.Post("/auth/token", s.authHandler.Login)

		// Healthcheck для мониторинга
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. АГЕНТСКИЙ ПЕРИМЕТР (Bearer-токен из allow-list'а) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.AgentTokenMiddleware(s.cfg.Auth.AgentTokens, s.logger))

		// Саморегистрация и чекин воркеров
		r.Post("/v1/agents/register", s.agentHandler.Register)
		r.Post("/v1/agents/{name}/poll", s.agentHandler.Poll)

		// Чат в операторскую комнату (под скользящим лимитом)
		r.Post("/v1/chat", s.chatHandler.Send)
	})

	// --- 3a. ОБЩИЙ ПЕРИМЕТР: очередь доступна и агентам, и операторам ---
	r.Group(func(r chi.Router) {
		r.Use(auth.EitherMiddleware(s.cfg.Auth.AgentTokens, s.authValidator, s.logger))

		// Жизненный цикл задач
		r.Route("/v1/tasks", func(r chi.Router) {
			r.Get("/", s.taskHandler.List)
			r.Post("/", s.taskHandler.Create)
			r.Get("/next", s.taskHandler.Next) // Кандидат без захвата
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.taskHandler.Get)
				r.Post("/claim", s.taskHandler.Claim) // Атомарный захват
				r.Post("/start", s.taskHandler.Start)
				r.Post("/complete", s.taskHandler.Complete)
				r.Post("/fail", s.taskHandler.Fail)
			})
		})
	})

	// --- 4. ОПЕРАТОРСКИЙ ПЕРИМЕТР (Требует RS256 токен) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, s.logger))

		// Dashboard & Stats
		r.Get("/api/v1/dashboard/stats", s.dashHandler.Stats)

		// Обзор флота и отложенные команды
		r.Get("/v1/agents", s.agentHandler.List)
		r.Post("/v1/commands", s.commandHandler.Enqueue)

		// Аудит и Логи (Observability)
		r.Get("/v1/audit", s.auditHandler.List)
	})
}

// measureLatency пишет гистограмму длительностей по паттерну роута,
// а не по сырому URL — иначе кардинальность взорвется на {id}.
func (s *ConsoleServer) measureLatency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		pattern := chi.RouteContext(r.Context()).RoutePattern()
		if pattern == "" {
			pattern = "unmatched"
		}
		s.metrics.RequestDuration.
			WithLabelValues(pattern, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
