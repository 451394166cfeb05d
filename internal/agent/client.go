// Package agent — клиентская сторона координации: HTTP-клиент консоли,
// реестр исполнителей задач и цикл воркера.
package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"github.com/xela07ax/agentops-console/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ThrottleError несет Retry-After из 429-го ответа консоли:
// ретраить раньше этого срока бессмысленно.
type ThrottleError struct {
	RetryAfter time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled, retry after %s", e.RetryAfter)
}

// Client — надежный HTTP-клиент консоли: клиентский rate limiter,
// предохранитель и ретраи с учетом Retry-After.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.Logger

	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewClient(baseURL, token string, logger *zap.Logger) *Client {
	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "console-client",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     30 * time.Second, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (блокируем трафик)
			return counts.ConsecutiveFailures > 5
		},
	})

	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
		logger:  logger.Named("console-client"),
		cb:      cb,
		// Клиентский потолок: воркер не должен долбить консоль чаще
		limiter: rate.NewLimiter(rate.Limit(20), 5),
	}
}

// call выполняет запрос через все слои надежности.
func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	// 1. Rate Limiter
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("client rate limit: %w", err)
	}

	// 2. Circuit Breaker
	_, err := c.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
			// Умный расчет задержки
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// 429 с Retry-After — ждем ровно столько, сколько велели
				var tErr *ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}

				// Сетевой лаг, 500-ка — стандартный экспоненциальный бэкофф
				return retry.BackOffDelay(n, err, config)
			}),
		)

		return nil, r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return c.do(tCtx, method, path, body, out)
		})
	})
	return err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("client: failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("client: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := 1 * time.Second
		if sec, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && sec > 0 {
			retryAfter = time.Duration(sec) * time.Second
		}
		return &ThrottleError{RetryAfter: retryAfter}
	case resp.StatusCode == http.StatusNoContent:
		return errNoContent
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("client: %s %s -> %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("client: failed to decode response: %w", err)
	}
	return nil
}

// errNoContent — сигнальная ошибка для 204: очередь пуста.
var errNoContent = errors.New("no content")

// Register объявляет воркера консоли; имя определяется токеном.
func (c *Client) Register(ctx context.Context, agentType string, capabilities []string) error {
	body := map[string]interface{}{"type": agentType, "capabilities": capabilities}
	return c.call(ctx, http.MethodPost, "/v1/agents/register", body, nil)
}

// Poll — heartbeat плюс одноразовая выдача отложенной команды.
func (c *Client) Poll(ctx context.Context, name string) (*domain.Command, error) {
	var resp struct {
		PendingCommand *domain.Command `json:"pending_command"`
	}
	if err := c.call(ctx, http.MethodPost, "/v1/agents/"+name+"/poll", map[string]string{}, &resp); err != nil {
		return nil, err
	}
	return resp.PendingCommand, nil
}

// Next спрашивает у консоли лучшего кандидата. nil — очередь пуста.
func (c *Client) Next(ctx context.Context, taskType string) (*domain.Task, error) {
	path := "/v1/tasks/next"
	if taskType != "" {
		path += "?type=" + taskType
	}

	var task domain.Task
	err := c.call(ctx, http.MethodGet, path, nil, &task)
	if errors.Is(err, errNoContent) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &task, nil
}

// Claim пробует захватить кандидата. false — проигрыш гонки:
// идем за следующим кандидатом, а не ретраим тот же id.
func (c *Client) Claim(ctx context.Context, taskID string) (bool, error) {
	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.call(ctx, http.MethodPost, "/v1/tasks/"+taskID+"/claim", map[string]string{}, &resp); err != nil {
		return false, err
	}
	return resp.Success, nil
}

func (c *Client) Start(ctx context.Context, taskID string) error {
	return c.call(ctx, http.MethodPost, "/v1/tasks/"+taskID+"/start", map[string]string{}, nil)
}

func (c *Client) Complete(ctx context.Context, taskID string, result json.RawMessage) error {
	return c.call(ctx, http.MethodPost, "/v1/tasks/"+taskID+"/complete",
		map[string]json.RawMessage{"result": result}, nil)
}

func (c *Client) Fail(ctx context.Context, taskID, errMsg string) error {
	return c.call(ctx, http.MethodPost, "/v1/tasks/"+taskID+"/fail",
		map[string]string{"error": errMsg}, nil)
}

// Chat шлет сообщение в операторскую комнату. 429 после ретраев —
// обычный исход, не повод ронять воркера.
func (c *Client) Chat(ctx context.Context, text string) error {
	return c.call(ctx, http.MethodPost, "/v1/chat", map[string]string{"text": text}, nil)
}
