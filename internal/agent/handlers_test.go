package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/xela07ax/agentops-console/internal/domain"
)

func TestRegistryDispatch(t *testing.T) {
	reg := NewRegistry()
	reg.Register("echo", HandlerFunc(
		func(_ context.Context, payload json.RawMessage) (json.RawMessage, error) {
			return payload, nil
		}))

	out, err := reg.Dispatch(context.Background(), "echo", json.RawMessage(`{"x":1}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(out) != `{"x":1}` {
		t.Errorf("echo output=%s, want payload back", out)
	}
}

func TestRegistryUnknownType(t *testing.T) {
	reg := NewRegistry()
	reg.Register("echo", HandlerFunc(
		func(_ context.Context, payload json.RawMessage) (json.RawMessage, error) {
			return payload, nil
		}))

	// Fallback-исполнителя нет: неизвестный тип — видимая ошибка
	_, err := reg.Dispatch(context.Background(), "transcode", nil)
	if !errors.Is(err, domain.ErrUnknownTaskType) {
		t.Errorf("expected ErrUnknownTaskType, got %v", err)
	}
}

func TestRegistryTypesAreCapabilities(t *testing.T) {
	reg := NewRegistry()
	reg.Register("post_review", HandlerFunc(
		func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) { return nil, nil }))
	reg.Register("book_update", HandlerFunc(
		func(_ context.Context, _ json.RawMessage) (json.RawMessage, error) { return nil, nil }))

	types := reg.Types()
	if len(types) != 2 {
		t.Fatalf("expected 2 types, got %v", types)
	}
	seen := map[string]bool{}
	for _, typ := range types {
		seen[typ] = true
	}
	if !seen["post_review"] || !seen["book_update"] {
		t.Errorf("missing registered types: %v", types)
	}
}
