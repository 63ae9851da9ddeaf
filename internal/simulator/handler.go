// Package simulator exposes a test-channel ingress for the booking
// assistant: staff exercise the bot from the dashboard without a real chat
// channel. It normalizes into the same orchestrator call as the gateway
// webhook and returns the reply synchronously instead of dispatching it.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"

	"github.com/klinikos/clinic-ai-platform/internal/actions"
	"github.com/klinikos/clinic-ai-platform/internal/conversation"
	"github.com/klinikos/clinic-ai-platform/internal/observability/metrics"
	"github.com/klinikos/clinic-ai-platform/internal/patients"
	"github.com/klinikos/clinic-ai-platform/internal/tenancy"
	"github.com/klinikos/clinic-ai-platform/pkg/logging"
)

// Orchestrator handles one inbound turn.
type Orchestrator interface {
	HandleMessage(ctx context.Context, clinicID, contact, text string) (*conversation.Response, error)
}

// SessionClearer resets a session and purges its message log rows.
type SessionClearer interface {
	Clear(ctx context.Context, clinicID, contact string) error
}

// Handler serves the simulator ingress.
type Handler struct {
	orchestrator Orchestrator
	sessions     SessionClearer
	metrics      *metrics.ConversationMetrics
	logger       *logging.Logger
}

// NewHandler wires the simulator ingress.
func NewHandler(orchestrator Orchestrator, sessions SessionClearer, m *metrics.ConversationMetrics, logger *logging.Logger) *Handler {
	if orchestrator == nil {
		panic("simulator: orchestrator is required")
	}
	if sessions == nil {
		panic("simulator: session clearer is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{
		orchestrator: orchestrator,
		sessions:     sessions,
		metrics:      m,
		logger:       logger,
	}
}

type messageRequest struct {
	Message      string `json:"message"`
	SessionPhone string `json:"session_phone"`
}

type messageData struct {
	Response           string                        `json:"response"`
	SessionPhone       string                        `json:"session_phone"`
	Patient            *patients.Patient             `json:"patient"`
	TokensUsed         int32                         `json:"tokens_used"`
	FunctionCalls      []actions.Result              `json:"function_calls"`
	AppointmentCreated *conversation.AppointmentInfo `json:"appointment_created"`
}

type envelope struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

// HandleMessage handles POST /simulator/message. The conversation runs under
// a synthetic per-clinic phone so it can never collide with a real contact.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing tenant", http.StatusUnauthorized)
		return
	}

	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message is required", http.StatusBadRequest)
		return
	}

	sessionPhone := patients.NormalizePhone(req.SessionPhone)
	if sessionPhone == "" {
		sessionPhone = SyntheticPhone(clinicID)
	}

	resp, err := h.orchestrator.HandleMessage(r.Context(), clinicID, sessionPhone, req.Message)
	if err != nil {
		h.logger.Error("simulator turn failed", "clinic_id", clinicID, "error", err)
		h.metrics.ObserveTurn("simulator", "error")
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}
	if resp.Err != nil {
		h.logger.Error("model failure degraded to fallback reply", "clinic_id", clinicID, "error", resp.Err)
	}
	h.metrics.ObserveTurn("simulator", "ok")
	h.metrics.ObserveTokens(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	data := messageData{
		Response:           resp.Text,
		SessionPhone:       sessionPhone,
		Patient:            resp.Patient,
		TokensUsed:         resp.Usage.TotalTokens,
		FunctionCalls:      resp.FunctionCalls,
		AppointmentCreated: resp.AppointmentCreated,
	}
	if data.FunctionCalls == nil {
		data.FunctionCalls = []actions.Result{}
	}
	h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

type clearRequest struct {
	SessionPhone string `json:"session_phone"`
}

// HandleClear handles DELETE /simulator/session. It removes the session and
// its persisted log rows so the next message starts a fresh conversation.
func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	clinicID, ok := tenancy.ClinicIDFromContext(r.Context())
	if !ok {
		http.Error(w, "Missing tenant", http.StatusUnauthorized)
		return
	}

	var req clearRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	sessionPhone := patients.NormalizePhone(req.SessionPhone)
	if sessionPhone == "" {
		http.Error(w, "session_phone is required", http.StatusBadRequest)
		return
	}

	if err := h.sessions.Clear(r.Context(), clinicID, sessionPhone); err != nil {
		h.logger.Error("failed to clear simulator session", "clinic_id", clinicID, "error", err)
		http.Error(w, "Failed to clear session", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{
		"cleared":       true,
		"session_phone": sessionPhone,
	}})
}

// SyntheticPhone derives a stable fake contact number for a clinic's
// simulator conversation. The 5500 prefix is not a dialable range, so it can
// never collide with a real contact address.
func SyntheticPhone(clinicID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(clinicID))
	return fmt.Sprintf("5500%09d", h.Sum32()%1_000_000_000)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to write JSON response", "error", err)
	}
}
