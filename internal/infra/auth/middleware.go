package auth

import (
	"context"
	"net/http"

	"go.uber.org/zap"
)

// Типизированные ключи контекста (избегаем коллизий со строками)
type ctxKey string

const (
	ctxKeyUserID     ctxKey = "user_id"
	ctxKeyUserScopes ctxKey = "user_scopes"
	ctxKeyAgentName  ctxKey = "agent_name"
)

// NewMiddleware закрывает операторский периметр: валидный RS256 токен
// обязателен, claims прокидываются в контекст.
func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			// Прокидываем данные в контекст
			ctx := context.WithValue(r.Context(), ctxKeyUserScopes, claims.Scopes)
			ctx = context.WithValue(ctx, ctxKeyUserID, claims.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext достает ID оператора, положенный middleware'ом.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(ctxKeyUserID).(string); ok {
		return id
	}
	return ""
}

// AgentFromContext достает имя агента, прошедшего периметр по токену.
func AgentFromContext(ctx context.Context) string {
	if name, ok := ctx.Value(ctxKeyAgentName).(string); ok {
		return name
	}
	return ""
}
