package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/klinikos/clinic-ai-platform/pkg/logging"
)

func TestFallbackLLMClient_PrimarySucceeds(t *testing.T) {
	primary := &fakeLLM{resp: LLMResponse{Text: "primary"}}
	secondary := &fakeLLM{resp: LLMResponse{Text: "secondary"}}
	client := NewFallbackLLMClient(primary, secondary, logging.Default())

	resp, err := client.Complete(context.Background(), LLMRequest{Model: "m"})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if resp.Text != "primary" {
		t.Fatalf("expected primary response, got %q", resp.Text)
	}
	if secondary.calls != 0 {
		t.Fatalf("secondary must not be invoked, got %d calls", secondary.calls)
	}
}

func TestFallbackLLMClient_FailsOverWithoutTools(t *testing.T) {
	primary := &fakeLLM{err: errors.New("throttled")}
	secondary := &fakeLLM{resp: LLMResponse{Text: "secondary"}}
	client := NewFallbackLLMClient(primary, secondary, logging.Default())

	resp, err := client.Complete(context.Background(), LLMRequest{
		Model: "m",
		Tools: BookingTools(),
	})
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if resp.Text != "secondary" {
		t.Fatalf("expected secondary response, got %q", resp.Text)
	}
	if len(secondary.lastReq.Tools) != 0 {
		t.Fatal("tools must be stripped from the fallback request")
	}
}

func TestFallbackLLMClient_BothFail(t *testing.T) {
	primary := &fakeLLM{err: errors.New("primary down")}
	secondary := &fakeLLM{err: errors.New("secondary down")}
	client := NewFallbackLLMClient(primary, secondary, logging.Default())

	if _, err := client.Complete(context.Background(), LLMRequest{Model: "m"}); err == nil {
		t.Fatal("expected error when both providers fail")
	}
}

func TestFallbackLLMClient_NoSecondary(t *testing.T) {
	wantErr := errors.New("primary down")
	client := NewFallbackLLMClient(&fakeLLM{err: wantErr}, nil, logging.Default())

	if _, err := client.Complete(context.Background(), LLMRequest{Model: "m"}); !errors.Is(err, wantErr) {
		t.Fatalf("expected primary error, got %v", err)
	}
}
