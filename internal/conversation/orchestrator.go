package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/klinikos/clinic-ai-platform/internal/actions"
	"github.com/klinikos/clinic-ai-platform/internal/clinic"
	"github.com/klinikos/clinic-ai-platform/internal/patients"
	"github.com/klinikos/clinic-ai-platform/internal/session"
	"github.com/klinikos/clinic-ai-platform/pkg/logging"
)

// Fixed user-visible texts. End users never see raw error text: they get the
// model's reply, the handoff notice, or the fallback reply.
const (
	// HandoffNotice is returned while a human operator controls the session.
	HandoffNotice = "This conversation has been transferred to a member of our team, who will reply here shortly."

	// FallbackReply is returned when the model invocation fails.
	FallbackReply = "An error occurred processing your message, please try again."
)

// AppointmentInfo summarizes a booking confirmed during the turn.
type AppointmentInfo struct {
	Date      string `json:"date"`
	Time      string `json:"time"`
	Procedure string `json:"procedure"`
}

// Response is the outcome of one orchestrated turn.
type Response struct {
	// Text is the reply to deliver to the contact. Always non-empty.
	Text string

	// Handoff is true when the session is human-controlled and the model
	// was skipped entirely.
	Handoff bool

	// Patient is the resolved patient after the turn, nil for an
	// unregistered contact.
	Patient *patients.Patient

	// FunctionCalls holds the executed side-effect results, in the order
	// the model requested them.
	FunctionCalls []actions.Result

	// AppointmentCreated is set when a create_appointment call succeeded.
	AppointmentCreated *AppointmentInfo

	Usage TokenUsage

	// Err carries the model failure behind a FallbackReply. It is for
	// logging only; the turn itself did not fail.
	Err error
}

// SessionStore is the session persistence surface the orchestrator needs.
type SessionStore interface {
	Load(ctx context.Context, clinicID, contact string) (*session.Session, error)
	Save(ctx context.Context, sess *session.Session) error
}

// SessionLocker serializes turns per (clinic, contact) pair.
type SessionLocker interface {
	Acquire(ctx context.Context, clinicID, contact string) (func(), error)
}

// PatientResolver maps contacts to patient records without creating them.
type PatientResolver interface {
	FindByPhone(ctx context.Context, clinicID, phone string) (*patients.Patient, error)
	GetByID(ctx context.Context, clinicID string, id int64) (*patients.Patient, error)
}

// ClinicProfiles supplies the tenant profile used in the system prompt.
type ClinicProfiles interface {
	Get(ctx context.Context, clinicID string) (*clinic.Profile, error)
}

// FunctionExecutor runs model-issued function calls.
type FunctionExecutor interface {
	Execute(ctx context.Context, clinicID, name string, args map[string]any) actions.Result
}

// OrchestratorConfig wires the orchestrator's collaborators.
type OrchestratorConfig struct {
	Sessions SessionStore
	Locks    SessionLocker
	Patients PatientResolver
	Clinics  ClinicProfiles
	LLM      LLMClient
	Executor FunctionExecutor
	Logger   *logging.Logger

	ModelID      string
	ModelTimeout time.Duration
	MaxTokens    int32
}

// Orchestrator is the conversation control loop. Both ingress paths (gateway
// webhook and simulator) call it identically; only payload normalization and
// outbound delivery differ.
type Orchestrator struct {
	sessions SessionStore
	locks    SessionLocker
	patients PatientResolver
	clinics  ClinicProfiles
	llm      LLMClient
	executor FunctionExecutor
	logger   *logging.Logger

	modelID      string
	modelTimeout time.Duration
	maxTokens    int32

	now func() time.Time
}

// NewOrchestrator builds the control loop over its collaborators.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Sessions == nil {
		panic("conversation: session store is required")
	}
	if cfg.Locks == nil {
		panic("conversation: session locker is required")
	}
	if cfg.Patients == nil {
		panic("conversation: patient resolver is required")
	}
	if cfg.Clinics == nil {
		panic("conversation: clinic profiles are required")
	}
	if cfg.LLM == nil {
		panic("conversation: LLM client is required")
	}
	if cfg.Executor == nil {
		panic("conversation: function executor is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	timeout := cfg.ModelTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Orchestrator{
		sessions:     cfg.Sessions,
		locks:        cfg.Locks,
		patients:     cfg.Patients,
		clinics:      cfg.Clinics,
		llm:          cfg.LLM,
		executor:     cfg.Executor,
		logger:       logger,
		modelID:      cfg.ModelID,
		modelTimeout: timeout,
		maxTokens:    maxTokens,
		now:          time.Now,
	}
}

// HandleMessage processes one inbound message for a (clinic, contact) pair
// and returns the reply to deliver. Persistence failures are returned as
// errors; model failures are absorbed into a FallbackReply response with Err
// set, leaving session history untouched.
func (o *Orchestrator) HandleMessage(ctx context.Context, clinicID, contact, text string) (*Response, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("conversation: message text is empty")
	}
	contact = patients.NormalizePhone(contact)
	if contact == "" {
		return nil, errors.New("conversation: contact address is empty")
	}

	release, err := o.locks.Acquire(ctx, clinicID, contact)
	if err != nil {
		return nil, fmt.Errorf("conversation: acquire session lock: %w", err)
	}
	defer release()

	sess, err := o.sessions.Load(ctx, clinicID, contact)
	if err != nil {
		return nil, fmt.Errorf("conversation: load session: %w", err)
	}
	dropInFlightTurn(sess, text)

	if sess.HumanControlled() {
		return &Response{Text: HandoffNotice, Handoff: true}, nil
	}

	patient, err := o.patients.FindByPhone(ctx, clinicID, contact)
	if err != nil {
		return nil, fmt.Errorf("conversation: resolve contact: %w", err)
	}

	profile, err := o.clinics.Get(ctx, clinicID)
	if err != nil {
		if !errors.Is(err, clinic.ErrProfileNotFound) {
			return nil, fmt.Errorf("conversation: load clinic profile: %w", err)
		}
		profile = nil
	}

	now := o.now()
	req := LLMRequest{
		Model:     o.modelID,
		System:    BuildSystemPrompt(profile, patient, now),
		Messages:  buildChatHistory(sess, text),
		Tools:     BookingTools(),
		MaxTokens: o.maxTokens,
	}

	llmCtx, cancel := context.WithTimeout(ctx, o.modelTimeout)
	llmResp, err := o.llm.Complete(llmCtx, req)
	cancel()
	if err != nil {
		o.logger.Error("model invocation failed",
			"clinic_id", clinicID, "contact", contact, "error", err)
		return &Response{Text: FallbackReply, Patient: patient, Err: err}, nil
	}

	resp := &Response{Patient: patient, Usage: llmResp.Usage}

	for _, call := range llmResp.FunctionCalls {
		args := make(map[string]any, len(call.Arguments)+1)
		for k, v := range call.Arguments {
			args[k] = v
		}
		// The model never knows the sender's number; handlers do.
		if _, ok := args["phone"]; !ok {
			args["phone"] = contact
		}

		result := o.executor.Execute(ctx, clinicID, call.Name, args)
		resp.FunctionCalls = append(resp.FunctionCalls, result)
		if !result.Success {
			continue
		}

		switch result.Name {
		case actions.FuncCreateAppointment:
			resp.AppointmentCreated = &AppointmentInfo{
				Date:      stringPayload(result.Payload, "date"),
				Time:      stringPayload(result.Payload, "time"),
				Procedure: stringPayload(result.Payload, "procedure"),
			}
			o.relinkPatient(ctx, clinicID, sess, result, resp)
		case actions.FuncCreatePatient:
			o.relinkPatient(ctx, clinicID, sess, result, resp)
		}
	}

	resp.Text = strings.TrimSpace(llmResp.Text)
	if resp.Text == "" {
		resp.Text = confirmationText(resp.AppointmentCreated)
	}

	sess.Append(
		session.Turn{Direction: session.DirectionIncoming, Text: text, At: now},
		session.Turn{Direction: session.DirectionOutgoing, Text: resp.Text, At: o.now()},
	)
	sess.LastActivity = o.now()
	if err := o.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("conversation: save session: %w", err)
	}

	return resp, nil
}

// relinkPatient resolves the patient created or matched by a side effect and
// links it to the session and response.
func (o *Orchestrator) relinkPatient(ctx context.Context, clinicID string, sess *session.Session, result actions.Result, resp *Response) {
	id, ok := int64Payload(result.Payload, "patient_id")
	if !ok {
		return
	}
	patient, err := o.patients.GetByID(ctx, clinicID, id)
	if err != nil {
		o.logger.Warn("failed to re-resolve patient after side effect",
			"clinic_id", clinicID, "patient_id", id, "error", err)
		return
	}
	resp.Patient = patient
	sess.LinkPatient(patient.ID)
}

// dropInFlightTurn removes a trailing incoming turn matching the current
// message. The gateway adapter logs the inbound row before invoking the
// orchestrator, so a history rebuilt from the message log already ends with
// the message being processed; completed turns always end with an outgoing
// reply, so a trailing match can only be the in-flight row.
func dropInFlightTurn(sess *session.Session, text string) {
	n := len(sess.History)
	if n == 0 {
		return
	}
	last := sess.History[n-1]
	if last.Direction == session.DirectionIncoming && last.Text == text {
		sess.History = sess.History[:n-1]
	}
}

// buildChatHistory maps the bounded session history plus the new inbound
// text into chat messages, oldest first.
func buildChatHistory(sess *session.Session, text string) []ChatMessage {
	msgs := make([]ChatMessage, 0, len(sess.History)+1)
	for _, turn := range sess.History {
		role := ChatRoleUser
		if turn.Direction == session.DirectionOutgoing {
			role = ChatRoleAssistant
		}
		msgs = append(msgs, ChatMessage{Role: role, Content: turn.Text})
	}
	return append(msgs, ChatMessage{Role: ChatRoleUser, Content: text})
}

// confirmationText covers the rare case of a tool-only model response with
// no accompanying text.
func confirmationText(appt *AppointmentInfo) string {
	if appt != nil {
		return fmt.Sprintf("All set! Your %s appointment is booked for %s at %s.", appt.Procedure, appt.Date, appt.Time)
	}
	return "All set! Is there anything else I can help you with?"
}

func stringPayload(payload map[string]any, key string) string {
	if payload == nil {
		return ""
	}
	s, _ := payload[key].(string)
	return s
}

func int64Payload(payload map[string]any, key string) (int64, bool) {
	if payload == nil {
		return 0, false
	}
	switch v := payload[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
