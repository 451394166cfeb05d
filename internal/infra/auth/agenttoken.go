package auth

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// AgentTokenMiddleware закрывает периметр агентских эндпоинтов.
// Токены — фиксированный allow-list из конфига (token -> имя агента):
// простой shared-secret, как и договаривались с командами агентов.
// Неизвестный токен отбивается 401 до любого похода в хранилища.
func AgentTokenMiddleware(tokens map[string]string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if token == "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error": "security_violation", "message": "missing access token"}`))
				return
			}

			name, ok := tokens[token]
			if !ok {
				logger.Warn("unknown agent token rejected", zap.String("remote", r.RemoteAddr))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error": "security_violation", "message": "unknown sender identity"}`))
				return
			}

			// Обогащаем контекст идентичностью для хендлеров
			ctx := context.WithValue(r.Context(), ctxKeyAgentName, name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// EitherMiddleware пускает и агентов, и операторов: сначала пробуем
// allow-list, затем RS256. Нужен для /v1/tasks — задачи ставят и те,
// и другие.
func EitherMiddleware(tokens map[string]string, v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if raw == "" {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error": "security_violation", "message": "missing access token"}`))
				return
			}

			if name, ok := tokens[raw]; ok {
				ctx := context.WithValue(r.Context(), ctxKeyAgentName, name)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			claims, err := v.VerifyToken(raw)
			if err != nil {
				logger.Warn("token rejected on shared perimeter", zap.String("remote", r.RemoteAddr))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error": "security_violation", "message": "unknown sender identity"}`))
				return
			}

			ctx := context.WithValue(r.Context(), ctxKeyUserID, claims.UserID)
			ctx = context.WithValue(ctx, ctxKeyUserScopes, claims.Scopes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
