package actions

import (
	"context"

	"github.com/klinikos/clinic-ai-platform/pkg/logging"
)

// Registered function names. The model may only trigger side effects through
// this fixed set.
const (
	FuncCreateAppointment = "create_appointment"
	FuncCreatePatient     = "create_patient"
)

// Result is the outcome of one executed function call. It is embedded in the
// message log for audit and inspected by the orchestrator.
type Result struct {
	Name    string         `json:"function_name"`
	Success bool           `json:"success"`
	Payload map[string]any `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Handler executes one named, schema-validated operation. Each handler runs
// its side effects inside a single clinic-scoped transaction.
type Handler interface {
	Name() string
	Execute(ctx context.Context, clinicID string, args map[string]any) (map[string]any, error)
}

// Registry dispatches model-issued function calls to typed handlers.
type Registry struct {
	handlers map[string]Handler
	logger   *logging.Logger
}

// NewRegistry builds a registry over the given handlers.
func NewRegistry(logger *logging.Logger, handlers ...Handler) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	m := make(map[string]Handler, len(handlers))
	for _, h := range handlers {
		if h == nil {
			panic("actions: handler cannot be nil")
		}
		m[h.Name()] = h
	}
	return &Registry{handlers: m, logger: logger}
}

// Execute runs the named operation. Unknown names are a no-op success with an
// empty result; one unsupported action must not fail an otherwise-valid
// reply. Handler failures are captured in the result, never returned.
func (r *Registry) Execute(ctx context.Context, clinicID, name string, args map[string]any) Result {
	handler, ok := r.handlers[name]
	if !ok {
		r.logger.Info("ignoring unsupported function call", "function", name, "clinic_id", clinicID)
		return Result{Name: name, Success: true, Payload: map[string]any{}}
	}

	payload, err := handler.Execute(ctx, clinicID, args)
	if err != nil {
		r.logger.Warn("function call failed", "function", name, "clinic_id", clinicID, "error", err)
		return Result{Name: name, Success: false, Error: err.Error()}
	}
	return Result{Name: name, Success: true, Payload: payload}
}

// Names lists the registered function names.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	return out
}
