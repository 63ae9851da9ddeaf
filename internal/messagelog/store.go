package messagelog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Direction marks which side of the conversation produced a message.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Message is one persisted conversation turn. Rows are append-only; the
// session store replays the most recent ones when its cache is cold.
type Message struct {
	ID            int64
	ClinicID      string
	Contact       string
	Direction     Direction
	Text          string
	AIProcessed   bool
	FunctionCalls json.RawMessage
	TokensUsed    int32
	CreatedAt     time.Time
}

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists the message log in PostgreSQL.
type Store struct {
	pool   rowQuerier
	tracer trace.Tracer
}

// NewStore initializes a store backed by pgxpool.
func NewStore(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("messagelog: pgx pool required")
	}
	return newStoreWithQuerier(pool)
}

func newStoreWithQuerier(q rowQuerier) *Store {
	if q == nil {
		panic("messagelog: querier required")
	}
	return &Store{
		pool:   q,
		tracer: otel.Tracer("clinicai.internal.messagelog"),
	}
}

// Append inserts one message row and fills in its id and timestamp.
func (s *Store) Append(ctx context.Context, msg *Message) error {
	if msg == nil {
		return fmt.Errorf("messagelog: message required")
	}
	ctx, span := s.tracer.Start(ctx, "messagelog.append")
	defer span.End()

	var payload any
	if len(msg.FunctionCalls) > 0 {
		payload = msg.FunctionCalls
	}
	query := `
		INSERT INTO messages (clinic_id, contact, direction, text, ai_processed, function_calls, tokens_used)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	if err := s.pool.QueryRow(ctx, query,
		msg.ClinicID,
		msg.Contact,
		string(msg.Direction),
		msg.Text,
		msg.AIProcessed,
		payload,
		msg.TokensUsed,
	).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		span.RecordError(err)
		return fmt.Errorf("messagelog: insert failed: %w", err)
	}
	return nil
}

// ListRecent returns the most recent messages for a contact in chronological
// order, at most limit rows.
func (s *Store) ListRecent(ctx context.Context, clinicID, contact string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	ctx, span := s.tracer.Start(ctx, "messagelog.list_recent")
	defer span.End()

	query := `
		SELECT id, clinic_id, contact, direction, text, ai_processed, function_calls, tokens_used, created_at
		FROM messages
		WHERE clinic_id = $1 AND contact = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`
	rows, err := s.pool.Query(ctx, query, clinicID, contact, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("messagelog: select failed: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			msg       Message
			direction string
			payload   []byte
		)
		if err := rows.Scan(
			&msg.ID,
			&msg.ClinicID,
			&msg.Contact,
			&direction,
			&msg.Text,
			&msg.AIProcessed,
			&payload,
			&msg.TokensUsed,
			&msg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("messagelog: scan failed: %w", err)
		}
		msg.Direction = Direction(direction)
		msg.FunctionCalls = payload
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("messagelog: rows failed: %w", err)
	}

	// Rows arrive newest-first; callers want chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// DeleteForContact removes every logged message for the contact. Idempotent.
func (s *Store) DeleteForContact(ctx context.Context, clinicID, contact string) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "messagelog.delete_for_contact")
	defer span.End()

	ct, err := s.pool.Exec(ctx,
		`DELETE FROM messages WHERE clinic_id = $1 AND contact = $2`,
		clinicID, contact,
	)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("messagelog: delete failed: %w", err)
	}
	return ct.RowsAffected(), nil
}
