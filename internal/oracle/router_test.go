package oracle

import (
	"context"
	"fmt"
	"testing"

	"go.uber.org/zap"
)

func TestRouterUsesPrimary(t *testing.T) {
	r := NewRouter(
		Func(func(ctx context.Context, prompt string) (string, error) {
			return "primary:" + prompt, nil
		}),
		[]Oracle{Func(func(ctx context.Context, prompt string) (string, error) {
			t.Fatal("fallback should not be called")
			return "", nil
		})},
		zap.NewNop(),
	)

	out, err := r.Invoke(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "primary:hello" {
		t.Errorf("expected primary response, got %q", out)
	}
}

func TestRouterFallsBack(t *testing.T) {
	boom := Func(func(ctx context.Context, prompt string) (string, error) {
		return "", fmt.Errorf("down")
	})
	r := NewRouter(boom, []Oracle{
		boom,
		Func(func(ctx context.Context, prompt string) (string, error) {
			return "rescued", nil
		}),
	}, zap.NewNop())

	out, err := r.Invoke(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if out != "rescued" {
		t.Errorf("expected fallback response, got %q", out)
	}
}

func TestRouterExhausted(t *testing.T) {
	boom := Func(func(ctx context.Context, prompt string) (string, error) {
		return "", fmt.Errorf("down")
	})
	r := NewRouter(boom, []Oracle{boom}, zap.NewNop())

	if _, err := r.Invoke(context.Background(), "hello"); err == nil {
		t.Fatal("expected error when all oracles fail")
	}
}
