package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/klinikos/clinic-ai-platform/pkg/logging"
)

const defaultSendTimeout = 10 * time.Second

// Client talks to the WhatsApp gateway (Evolution API style): one named
// channel instance per clinic, outbound text delivery, and instance
// connectivity checks.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
	tracer     trace.Tracer
}

// ClientConfig configures the gateway client.
type ClientConfig struct {
	// BaseURL is the gateway root, e.g. "https://gateway.example.com".
	BaseURL string
	// APIKey is sent in the gateway's apikey header.
	APIKey string
	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// NewClient creates a gateway client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("whatsapp: gateway base URL required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultSendTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		logger:     logger,
		tracer:     otel.Tracer("clinicai.internal.channels.whatsapp"),
	}, nil
}

type sendTextRequest struct {
	Number string `json:"number"`
	Text   string `json:"text"`
}

// SendText delivers outbound text through the given channel instance.
func (c *Client) SendText(ctx context.Context, instance, number, text string) error {
	if strings.TrimSpace(instance) == "" {
		return fmt.Errorf("whatsapp: channel instance required")
	}
	if strings.TrimSpace(number) == "" {
		return fmt.Errorf("whatsapp: destination number required")
	}
	ctx, span := c.tracer.Start(ctx, "whatsapp.send_text")
	defer span.End()

	body, err := json.Marshal(sendTextRequest{Number: number, Text: text})
	if err != nil {
		return fmt.Errorf("whatsapp: marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/message/sendText/%s", c.baseURL, instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("whatsapp: build send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("whatsapp: send text: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("whatsapp: gateway returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
		span.RecordError(err)
		return err
	}
	return nil
}

type connectionStateResponse struct {
	Instance struct {
		State string `json:"state"`
	} `json:"instance"`
}

// ConnectionState reports whether the channel instance is connected to the
// chat network.
func (c *Client) ConnectionState(ctx context.Context, instance string) (string, error) {
	url := fmt.Sprintf("%s/instance/connectionState/%s", c.baseURL, instance)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("whatsapp: build state request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("whatsapp: connection state: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("whatsapp: gateway returned %d", resp.StatusCode)
	}

	var parsed connectionStateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("whatsapp: decode state response: %w", err)
	}
	return parsed.Instance.State, nil
}
