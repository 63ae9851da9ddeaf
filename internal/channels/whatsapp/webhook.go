package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/klinikos/clinic-ai-platform/internal/clinic"
	"github.com/klinikos/clinic-ai-platform/internal/conversation"
	"github.com/klinikos/clinic-ai-platform/internal/messagelog"
	"github.com/klinikos/clinic-ai-platform/internal/observability/metrics"
	"github.com/klinikos/clinic-ai-platform/internal/patients"
	"github.com/klinikos/clinic-ai-platform/pkg/logging"
)

// Orchestrator handles one inbound turn. Both ingress paths share it.
type Orchestrator interface {
	HandleMessage(ctx context.Context, clinicID, contact, text string) (*conversation.Response, error)
}

// InstanceResolver maps a gateway channel instance to its owning clinic.
type InstanceResolver interface {
	ResolveInstance(ctx context.Context, instance string) (string, error)
}

// MessageAppender persists conversation turns to the message log.
type MessageAppender interface {
	Append(ctx context.Context, msg *messagelog.Message) error
}

// TextSender delivers outbound text through a channel instance.
type TextSender interface {
	SendText(ctx context.Context, instance, number, text string) error
}

// WebhookHandler is the gateway ingress: it normalizes webhook deliveries
// into orchestrator turns and dispatches the reply back out.
type WebhookHandler struct {
	resolver     InstanceResolver
	orchestrator Orchestrator
	log          MessageAppender
	sender       TextSender
	metrics      *metrics.ConversationMetrics
	logger       *logging.Logger
}

// NewWebhookHandler wires the webhook ingress.
func NewWebhookHandler(resolver InstanceResolver, orchestrator Orchestrator, log MessageAppender, sender TextSender, m *metrics.ConversationMetrics, logger *logging.Logger) *WebhookHandler {
	if resolver == nil {
		panic("whatsapp: instance resolver is required")
	}
	if orchestrator == nil {
		panic("whatsapp: orchestrator is required")
	}
	if log == nil {
		panic("whatsapp: message log is required")
	}
	if sender == nil {
		panic("whatsapp: text sender is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &WebhookHandler{
		resolver:     resolver,
		orchestrator: orchestrator,
		log:          log,
		sender:       sender,
		metrics:      m,
		logger:       logger,
	}
}

type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type ignoredData struct {
	Ignored bool   `json:"ignored"`
	Reason  string `json:"reason"`
}

type processedData struct {
	Processed    bool   `json:"processed"`
	PatientID    *int64 `json:"patient_id"`
	IsLead       bool   `json:"is_lead"`
	ResponseSent bool   `json:"response_sent"`
	TokensUsed   int32  `json:"tokens_used"`
}

// HandleWebhook handles POST /webhooks/whatsapp. Events the bot need not
// process are acknowledged with an ignored reason, never an error status:
// the gateway retries failures, and retrying an ignorable event is waste.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	started := time.Now()

	var event WebhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		h.logger.Error("failed to decode webhook payload", "error", err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if !event.IsInboundMessage() {
		h.ignore(w, event.Event, "Event not handled")
		return
	}
	if event.Data.Key.FromMe {
		h.ignore(w, event.Event, "Self-sent message")
		return
	}
	text := event.Text()
	if text == "" {
		h.ignore(w, event.Event, "Empty message")
		return
	}
	contact := patients.NormalizePhone(event.Data.Key.RemoteJid)
	if contact == "" {
		h.ignore(w, event.Event, "Invalid contact address")
		return
	}

	ctx := r.Context()

	clinicID, err := h.resolver.ResolveInstance(ctx, event.Instance)
	if err != nil {
		if errors.Is(err, clinic.ErrInstanceNotFound) {
			h.ignore(w, event.Event, "Unknown instance")
			return
		}
		h.logger.Error("failed to resolve channel instance", "instance", event.Instance, "error", err)
		h.fail(w, event.Event)
		return
	}

	if err := h.log.Append(ctx, &messagelog.Message{
		ClinicID:  clinicID,
		Contact:   contact,
		Direction: messagelog.DirectionIncoming,
		Text:      text,
	}); err != nil {
		h.logger.Error("failed to log inbound message", "clinic_id", clinicID, "error", err)
		h.fail(w, event.Event)
		return
	}

	resp, err := h.orchestrator.HandleMessage(ctx, clinicID, contact, text)
	if err != nil {
		h.logger.Error("failed to process inbound message", "clinic_id", clinicID, "contact", contact, "error", err)
		h.metrics.ObserveTurn("webhook", "error")
		h.fail(w, event.Event)
		return
	}
	if resp.Err != nil {
		h.logger.Error("model failure degraded to fallback reply", "clinic_id", clinicID, "contact", contact, "error", resp.Err)
	}

	outbound := &messagelog.Message{
		ClinicID:    clinicID,
		Contact:     contact,
		Direction:   messagelog.DirectionOutgoing,
		Text:        resp.Text,
		AIProcessed: !resp.Handoff && resp.Err == nil,
		TokensUsed:  resp.Usage.TotalTokens,
	}
	if len(resp.FunctionCalls) > 0 {
		if raw, err := json.Marshal(resp.FunctionCalls); err == nil {
			outbound.FunctionCalls = raw
		}
	}
	if err := h.log.Append(ctx, outbound); err != nil {
		h.logger.Error("failed to log outbound message", "clinic_id", clinicID, "error", err)
		h.fail(w, event.Event)
		return
	}

	for _, result := range resp.FunctionCalls {
		h.metrics.ObserveFunctionCall(result.Name, result.Success)
	}
	h.metrics.ObserveTokens(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	// A lost outbound message is preferable to reprocessing the turn and
	// double-executing side effects, so send failures do not fail the
	// webhook.
	responseSent := true
	if err := h.sender.SendText(ctx, event.Instance, contact, resp.Text); err != nil {
		h.logger.Error("failed to send outbound message", "clinic_id", clinicID, "contact", contact, "error", err)
		responseSent = false
		h.metrics.ObserveOutbound("failed")
	} else {
		h.metrics.ObserveOutbound("sent")
	}

	data := processedData{
		Processed:    true,
		IsLead:       true,
		ResponseSent: responseSent,
		TokensUsed:   resp.Usage.TotalTokens,
	}
	if resp.Patient != nil {
		data.PatientID = &resp.Patient.ID
		data.IsLead = resp.Patient.IsLead
	}

	h.metrics.ObserveInbound(event.Event, "processed")
	h.metrics.ObserveTurn("webhook", "ok")
	h.metrics.ObserveTurnLatency("webhook", time.Since(started).Seconds())
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func (h *WebhookHandler) ignore(w http.ResponseWriter, eventType, reason string) {
	h.metrics.ObserveInbound(eventType, "ignored")
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: ignoredData{Ignored: true, Reason: reason}})
}

func (h *WebhookHandler) fail(w http.ResponseWriter, eventType string) {
	h.metrics.ObserveInbound(eventType, "error")
	http.Error(w, "Failed to process message", http.StatusInternalServerError)
}

func (h *WebhookHandler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
