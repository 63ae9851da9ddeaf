package session

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/klinikos/clinic-ai-platform/internal/messagelog"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

type fakeLog struct {
	messages []messagelog.Message
	deleted  []string
	listErr  error
}

func (f *fakeLog) ListRecent(ctx context.Context, clinicID, contact string, limit int) ([]messagelog.Message, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	if len(f.messages) > limit {
		return f.messages[len(f.messages)-limit:], nil
	}
	return f.messages, nil
}

func (f *fakeLog) DeleteForContact(ctx context.Context, clinicID, contact string) (int64, error) {
	f.deleted = append(f.deleted, clinicID+":"+contact)
	return int64(len(f.messages)), nil
}

func TestLoadNeverSeenReturnsEmptySession(t *testing.T) {
	store := NewStore(newTestRedis(t), nil)

	sess, err := store.Load(context.Background(), "clinic-1", "5511999990000")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if sess.HumanControlled() {
		t.Error("fresh session must be bot-controlled")
	}
	if len(sess.History) != 0 {
		t.Errorf("fresh session must have empty history, got %d turns", len(sess.History))
	}
	if sess.LinkedPatientID != nil {
		t.Error("fresh session must not link a patient")
	}
}

func TestSaveLoadRoundTripTrimsHistory(t *testing.T) {
	store := NewStore(newTestRedis(t), nil)
	ctx := context.Background()

	sess := New("clinic-1", "5511999990000")
	for i := 0; i < 13; i++ {
		sess.Append(
			Turn{Direction: DirectionIncoming, Text: fmt.Sprintf("in-%d", i), At: time.Now()},
			Turn{Direction: DirectionOutgoing, Text: fmt.Sprintf("out-%d", i), At: time.Now()},
		)
	}
	sess.Takeover()
	sess.LinkPatient(42)
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	loaded, err := store.Load(ctx, "clinic-1", "5511999990000")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(loaded.History) != MaxTurns {
		t.Fatalf("expected history trimmed to %d, got %d", MaxTurns, len(loaded.History))
	}
	// The retained turns are the most recent ones in original order.
	if loaded.History[len(loaded.History)-1].Text != "out-12" {
		t.Errorf("expected newest turn last, got %q", loaded.History[len(loaded.History)-1].Text)
	}
	if loaded.History[0].Text != "in-3" {
		t.Errorf("expected oldest retained turn in-3, got %q", loaded.History[0].Text)
	}
	if !loaded.HumanControlled() {
		t.Error("handoff state lost on round trip")
	}
	if loaded.LinkedPatientID == nil || *loaded.LinkedPatientID != 42 {
		t.Error("linked patient lost on round trip")
	}
}

func TestLoadDiscardsCorruptPayload(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(client, nil)

	mr.Set(sessionKey("clinic-1", "551199"), "{not json")

	sess, err := store.Load(context.Background(), "clinic-1", "551199")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(sess.History) != 0 || sess.HumanControlled() {
		t.Error("corrupt payload should yield a fresh session")
	}
}

func TestLoadRepairsMalformedTurns(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(client, nil)

	mr.Set(sessionKey("clinic-1", "551199"),
		`{"state":"alien","history":[{"direction":"incoming","text":"hi"},{"direction":"sideways","text":"x"},{"direction":"outgoing","text":""}]}`)

	sess, err := store.Load(context.Background(), "clinic-1", "551199")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if sess.State != StateBot {
		t.Errorf("unknown state should repair to bot, got %q", sess.State)
	}
	if len(sess.History) != 1 || sess.History[0].Text != "hi" {
		t.Errorf("malformed turns should be dropped, got %+v", sess.History)
	}
}

func TestLoadRebuildsFromMessageLog(t *testing.T) {
	log := &fakeLog{
		messages: []messagelog.Message{
			{Direction: messagelog.DirectionIncoming, Text: "Hi", CreatedAt: time.Now().Add(-2 * time.Minute)},
			{Direction: messagelog.DirectionOutgoing, Text: "Hello! How can I help?", CreatedAt: time.Now().Add(-1 * time.Minute)},
		},
	}
	store := NewStore(newTestRedis(t), log)

	sess, err := store.Load(context.Background(), "clinic-1", "551199")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(sess.History) != 2 {
		t.Fatalf("expected 2 rebuilt turns, got %d", len(sess.History))
	}
	if sess.History[0].Direction != DirectionIncoming || sess.History[1].Direction != DirectionOutgoing {
		t.Errorf("rebuilt history out of order: %+v", sess.History)
	}
}

func TestHandoffSurvivesSessionExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	log := &fakeLog{messages: []messagelog.Message{
		{Direction: messagelog.DirectionIncoming, Text: "I want to talk to a person", CreatedAt: time.Now().Add(-25 * time.Hour)},
	}}
	store := NewStore(client, log)
	ctx := context.Background()

	sess := New("clinic-1", "551199")
	sess.Takeover()
	sess.LinkPatient(42)
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	// The rolling session key expires; the state key has no TTL.
	mr.FastForward(25 * time.Hour)

	loaded, err := store.Load(ctx, "clinic-1", "551199")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !loaded.HumanControlled() {
		t.Error("handoff state must survive session expiry")
	}
	if loaded.LinkedPatientID == nil || *loaded.LinkedPatientID != 42 {
		t.Error("linked patient must survive session expiry")
	}
	if len(loaded.History) != 1 {
		t.Errorf("expected history rebuilt from log, got %d turns", len(loaded.History))
	}
}

func TestClearRemovesDurableState(t *testing.T) {
	store := NewStore(newTestRedis(t), &fakeLog{})
	ctx := context.Background()

	sess := New("clinic-1", "551199")
	sess.Takeover()
	sess.LinkPatient(7)
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	if err := store.Clear(ctx, "clinic-1", "551199"); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}

	loaded, err := store.Load(ctx, "clinic-1", "551199")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if loaded.HumanControlled() {
		t.Error("clear must reset handoff state")
	}
	if loaded.LinkedPatientID != nil {
		t.Error("clear must unlink the patient")
	}
}

func TestClearThenLoadReturnsEmptySession(t *testing.T) {
	log := &fakeLog{}
	store := NewStore(newTestRedis(t), log)
	ctx := context.Background()

	sess := New("clinic-1", "551199")
	sess.Append(Turn{Direction: DirectionIncoming, Text: "Hi", At: time.Now()})
	if err := store.Save(ctx, sess); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}

	if err := store.Clear(ctx, "clinic-1", "551199"); err != nil {
		t.Fatalf("Clear returned error: %v", err)
	}
	if len(log.deleted) != 1 || log.deleted[0] != "clinic-1:551199" {
		t.Errorf("expected message log purge, got %v", log.deleted)
	}

	loaded, err := store.Load(ctx, "clinic-1", "551199")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(loaded.History) != 0 {
		t.Errorf("expected empty session after clear, got %d turns", len(loaded.History))
	}

	// Idempotent.
	if err := store.Clear(ctx, "clinic-1", "551199"); err != nil {
		t.Fatalf("second Clear returned error: %v", err)
	}
}
