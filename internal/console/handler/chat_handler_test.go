package handler

import (
	"net/http"
	"strconv"
	"testing"
)

func TestChatRateLimitHeaders(t *testing.T) {
	env := newTestEnv(3)
	defer env.Close()
	url := env.server.URL + "/v1/chat"

	// До лимита: 202 и убывающий remaining
	for i := 0; i < 3; i++ {
		resp := doJSON(t, http.MethodPost, url, "tok-alpha", map[string]string{"text": "ping"})
		resp.Body.Close()
		if resp.StatusCode != http.StatusAccepted {
			t.Fatalf("request %d: status=%d, want 202", i+1, resp.StatusCode)
		}
		if got := resp.Header.Get("RateLimit-Limit"); got != "3" {
			t.Errorf("request %d: RateLimit-Limit=%q, want 3", i+1, got)
		}
		if got := resp.Header.Get("RateLimit-Remaining"); got != strconv.Itoa(3-i-1) {
			t.Errorf("request %d: RateLimit-Remaining=%q, want %d", i+1, got, 3-i-1)
		}
	}

	// Сверх лимита: 429 с Retry-After
	resp := doJSON(t, http.MethodPost, url, "tok-alpha", map[string]string{"text": "ping"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("over limit: status=%d, want 429", resp.StatusCode)
	}
	if got := resp.Header.Get("RateLimit-Remaining"); got != "0" {
		t.Errorf("over limit: RateLimit-Remaining=%q, want 0", got)
	}
	reset, err := strconv.ParseInt(resp.Header.Get("RateLimit-Reset"), 10, 64)
	if err != nil || reset <= 0 {
		t.Errorf("over limit: RateLimit-Reset=%q, want positive ms", resp.Header.Get("RateLimit-Reset"))
	}
	retryAfter, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || retryAfter < 1 {
		t.Errorf("over limit: Retry-After=%q, want >= 1s", resp.Header.Get("Retry-After"))
	}

	// Отклоненное сообщение не дошло до комнаты
	env.sink.mu.Lock()
	delivered := len(env.sink.messages)
	env.sink.mu.Unlock()
	if delivered != 3 {
		t.Errorf("sink got %d messages, want 3", delivered)
	}
}

func TestChatLimitIsPerSender(t *testing.T) {
	env := newTestEnv(2)
	defer env.Close()
	url := env.server.URL + "/v1/chat"

	for i := 0; i < 2; i++ {
		resp := doJSON(t, http.MethodPost, url, "tok-alpha", map[string]string{"text": "a"})
		resp.Body.Close()
	}
	resp := doJSON(t, http.MethodPost, url, "tok-alpha", map[string]string{"text": "a"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("alpha over limit: status=%d, want 429", resp.StatusCode)
	}

	// Квота beta не тронута
	resp = doJSON(t, http.MethodPost, url, "tok-beta", map[string]string{"text": "b"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Errorf("beta: status=%d, want 202", resp.StatusCode)
	}
}

func TestChatRequiresText(t *testing.T) {
	env := newTestEnv(5)
	defer env.Close()

	resp := doJSON(t, http.MethodPost, env.server.URL+"/v1/chat", "tok-alpha", map[string]string{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status=%d, want 400", resp.StatusCode)
	}
}
