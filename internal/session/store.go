package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/klinikos/clinic-ai-platform/internal/messagelog"
)

// Sessions expire after a day of inactivity; history comes back from the
// message log. Handoff state and the linked patient are not recoverable from
// the log, so they live in a companion key with no expiry.
const sessionTTL = 24 * time.Hour

// MessageLog is the subset of the persisted log the store needs to rebuild
// history on a cache miss and to purge on reset.
type MessageLog interface {
	ListRecent(ctx context.Context, clinicID, contact string, limit int) ([]messagelog.Message, error)
	DeleteForContact(ctx context.Context, clinicID, contact string) (int64, error)
}

// Store keeps one session per (clinic, contact) pair in Redis, with the
// message log as the durable fallback.
type Store struct {
	redis  *redis.Client
	log    MessageLog
	tracer trace.Tracer
}

// NewStore builds a session store. The message log is optional; without it a
// cold session simply starts empty.
func NewStore(redisClient *redis.Client, log MessageLog) *Store {
	if redisClient == nil {
		panic("session: redis client cannot be nil")
	}
	return &Store{
		redis:  redisClient,
		log:    log,
		tracer: otel.Tracer("clinicai.internal.session"),
	}
}

// Load returns the stored session, or a fresh bot-controlled one when the
// pair was never seen. It never fails for a missing row.
func (s *Store) Load(ctx context.Context, clinicID, contact string) (*Session, error) {
	ctx, span := s.tracer.Start(ctx, "session.load")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(clinicID, contact)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return s.rebuild(ctx, clinicID, contact)
		}
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to load session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		// Corrupt payloads are replaced, not propagated.
		span.RecordError(err)
		return s.rebuild(ctx, clinicID, contact)
	}
	sess.ClinicID = clinicID
	sess.Contact = contact
	sess.normalize()
	return &sess, nil
}

// Save upserts the full serialized session atomically.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if sess == nil {
		return fmt.Errorf("session: session required")
	}
	ctx, span := s.tracer.Start(ctx, "session.save")
	defer span.End()

	sess.Trim()
	data, err := json.Marshal(sess)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to marshal session: %w", err)
	}
	stateData, err := json.Marshal(sessionState{State: sess.State, LinkedPatientID: sess.LinkedPatientID})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to marshal session state: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, sessionKey(sess.ClinicID, sess.Contact), data, sessionTTL)
	pipe.Set(ctx, stateKey(sess.ClinicID, sess.Contact), stateData, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to persist session: %w", err)
	}
	return nil
}

// Clear deletes the session row and the associated message log. Idempotent.
func (s *Store) Clear(ctx context.Context, clinicID, contact string) error {
	ctx, span := s.tracer.Start(ctx, "session.clear")
	defer span.End()

	if err := s.redis.Del(ctx, sessionKey(clinicID, contact), stateKey(clinicID, contact)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to delete session: %w", err)
	}
	if s.log != nil {
		if _, err := s.log.DeleteForContact(ctx, clinicID, contact); err != nil {
			span.RecordError(err)
			return fmt.Errorf("session: failed to purge message log: %w", err)
		}
	}
	return nil
}

// rebuild reconstructs history from the persisted message log and handoff
// state from the durable companion key. A missing or empty log yields a fresh
// empty session.
func (s *Store) rebuild(ctx context.Context, clinicID, contact string) (*Session, error) {
	sess := New(clinicID, contact)

	raw, err := s.redis.Get(ctx, stateKey(clinicID, contact)).Bytes()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("session: failed to load session state: %w", err)
	}
	if err == nil {
		var st sessionState
		if jsonErr := json.Unmarshal(raw, &st); jsonErr == nil {
			if st.State == StateHumanControlled {
				sess.State = StateHumanControlled
			}
			sess.LinkedPatientID = st.LinkedPatientID
		}
	}

	if s.log == nil {
		return sess, nil
	}

	msgs, err := s.log.ListRecent(ctx, clinicID, contact, MaxTurns)
	if err != nil {
		return nil, fmt.Errorf("session: failed to rebuild history: %w", err)
	}
	for _, msg := range msgs {
		direction := DirectionIncoming
		if msg.Direction == messagelog.DirectionOutgoing {
			direction = DirectionOutgoing
		}
		sess.History = append(sess.History, Turn{
			Direction: direction,
			Text:      msg.Text,
			At:        msg.CreatedAt,
		})
		sess.LastActivity = msg.CreatedAt
	}
	sess.Trim()
	return sess, nil
}

// sessionState is the durable slice of a session: what the message log
// cannot reconstruct after the rolling session key expires.
type sessionState struct {
	State           State  `json:"state"`
	LinkedPatientID *int64 `json:"linked_patient_id,omitempty"`
}

func sessionKey(clinicID, contact string) string {
	return fmt.Sprintf("session:%s:%s", clinicID, contact)
}

func stateKey(clinicID, contact string) string {
	return sessionKey(clinicID, contact) + ":state"
}
