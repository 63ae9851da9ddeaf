package session

import (
	"time"
)

// MaxTurns bounds the rolling history kept per session (10 exchanges).
const MaxTurns = 20

// State is the explicit conversation state. A session starts bot-controlled
// and flips to human control when an operator takes over; nothing flips it
// back except an explicit release or a session reset.
type State string

const (
	StateBot             State = "bot"
	StateHumanControlled State = "human"
)

// Direction marks which side of the conversation produced a turn.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Turn is one inbound or outbound message within a session's history.
type Turn struct {
	Direction Direction `json:"direction"`
	Text      string    `json:"text"`
	At        time.Time `json:"at"`
}

// Session is one ongoing conversation for a (clinic, contact) pair.
type Session struct {
	ClinicID        string    `json:"clinic_id"`
	Contact         string    `json:"contact"`
	State           State     `json:"state"`
	History         []Turn    `json:"history"`
	LinkedPatientID *int64    `json:"linked_patient_id,omitempty"`
	LastActivity    time.Time `json:"last_activity"`
}

// New returns a fresh bot-controlled session with empty history.
func New(clinicID, contact string) *Session {
	return &Session{
		ClinicID: clinicID,
		Contact:  contact,
		State:    StateBot,
		History:  []Turn{},
	}
}

// HumanControlled reports whether an operator owns the conversation.
func (s *Session) HumanControlled() bool {
	return s.State == StateHumanControlled
}

// Takeover moves the session under human control.
func (s *Session) Takeover() {
	s.State = StateHumanControlled
}

// Release returns control to the bot.
func (s *Session) Release() {
	s.State = StateBot
}

// Append records turns and trims the history to the newest MaxTurns,
// dropping the oldest first.
func (s *Session) Append(turns ...Turn) {
	s.History = append(s.History, turns...)
	s.Trim()
}

// Trim enforces the MaxTurns bound, keeping the most recent turns in order.
func (s *Session) Trim() {
	if len(s.History) > MaxTurns {
		s.History = s.History[len(s.History)-MaxTurns:]
	}
}

// LinkPatient records the patient this conversation resolved to.
func (s *Session) LinkPatient(patientID int64) {
	s.LinkedPatientID = &patientID
}

// normalize repairs a session decoded from storage: unknown states fall back
// to bot control and malformed turns are dropped rather than propagated.
func (s *Session) normalize() {
	if s.State != StateBot && s.State != StateHumanControlled {
		s.State = StateBot
	}
	if s.History == nil {
		s.History = []Turn{}
		return
	}
	kept := s.History[:0]
	for _, turn := range s.History {
		if turn.Text == "" {
			continue
		}
		if turn.Direction != DirectionIncoming && turn.Direction != DirectionOutgoing {
			continue
		}
		kept = append(kept, turn)
	}
	s.History = kept
	s.Trim()
}
