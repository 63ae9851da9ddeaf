package messagelog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestAppendFillsIdentity(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newStoreWithQuerier(mock)
	created := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)

	mock.ExpectQuery("INSERT INTO messages").
		WithArgs("clinic-1", "5511999990000", "incoming", "Hi", false, nil, int32(0)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), created))

	msg := &Message{
		ClinicID:  "clinic-1",
		Contact:   "5511999990000",
		Direction: DirectionIncoming,
		Text:      "Hi",
	}
	if err := store.Append(context.Background(), msg); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if msg.ID != 7 || !msg.CreatedAt.Equal(created) {
		t.Fatalf("expected id 7 with timestamp, got %d %v", msg.ID, msg.CreatedAt)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestAppendCarriesFunctionCallPayload(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newStoreWithQuerier(mock)
	payload := json.RawMessage(`[{"function_name":"create_appointment","success":true}]`)

	mock.ExpectQuery("INSERT INTO messages").
		WithArgs("clinic-1", "5511999990000", "outgoing", "Booked!", true, payload, int32(250)).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(8), time.Now()))

	msg := &Message{
		ClinicID:      "clinic-1",
		Contact:       "5511999990000",
		Direction:     DirectionOutgoing,
		Text:          "Booked!",
		AIProcessed:   true,
		FunctionCalls: payload,
		TokensUsed:    250,
	}
	if err := store.Append(context.Background(), msg); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListRecentReturnsChronologicalOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newStoreWithQuerier(mock)
	now := time.Now()

	// The query returns newest-first; ListRecent must reverse.
	rows := pgxmock.NewRows([]string{"id", "clinic_id", "contact", "direction", "text", "ai_processed", "function_calls", "tokens_used", "created_at"}).
		AddRow(int64(3), "clinic-1", "551199", "outgoing", "Hello!", true, []byte(nil), int32(12), now).
		AddRow(int64(2), "clinic-1", "551199", "incoming", "Hi", false, []byte(nil), int32(0), now.Add(-time.Minute))

	mock.ExpectQuery("SELECT (.+) FROM messages").
		WithArgs("clinic-1", "551199", 20).
		WillReturnRows(rows)

	msgs, err := store.ListRecent(context.Background(), "clinic-1", "551199", 0)
	if err != nil {
		t.Fatalf("ListRecent returned error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Direction != DirectionIncoming || msgs[1].Direction != DirectionOutgoing {
		t.Fatalf("expected chronological order, got %v then %v", msgs[0].Direction, msgs[1].Direction)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteForContactIsScoped(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create pgx mock: %v", err)
	}
	defer mock.Close()

	store := newStoreWithQuerier(mock)

	mock.ExpectExec("DELETE FROM messages").
		WithArgs("clinic-1", "551199").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))

	deleted, err := store.DeleteForContact(context.Background(), "clinic-1", "551199")
	if err != nil {
		t.Fatalf("DeleteForContact returned error: %v", err)
	}
	if deleted != 4 {
		t.Fatalf("expected 4 deleted rows, got %d", deleted)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
