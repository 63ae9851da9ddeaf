package conversation

import (
	"context"
	"fmt"

	"github.com/klinikos/clinic-ai-platform/pkg/logging"
)

// FallbackLLMClient wraps a primary and a secondary LLM client. Requests go
// to the primary; on error the same request is replayed against the
// secondary. Function-call tools are stripped from the fallback request so a
// degraded provider never triggers side effects.
type FallbackLLMClient struct {
	primary   LLMClient
	secondary LLMClient
	logger    *logging.Logger
}

// NewFallbackLLMClient creates a client that fails over from primary to
// secondary. The secondary may be nil, in which case primary errors are
// returned as-is.
func NewFallbackLLMClient(primary, secondary LLMClient, logger *logging.Logger) *FallbackLLMClient {
	if primary == nil {
		panic("conversation: primary LLM client is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackLLMClient{
		primary:   primary,
		secondary: secondary,
		logger:    logger,
	}
}

// Complete attempts the primary client and falls back to the secondary.
func (c *FallbackLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}
	if c.secondary == nil {
		return LLMResponse{}, err
	}

	c.logger.Warn("primary LLM client failed, trying fallback", "error", err)

	fallbackReq := req
	fallbackReq.Tools = nil

	resp, fbErr := c.secondary.Complete(ctx, fallbackReq)
	if fbErr != nil {
		return LLMResponse{}, fmt.Errorf("conversation: primary failed (%v), fallback failed: %w", err, fbErr)
	}
	return resp, nil
}
