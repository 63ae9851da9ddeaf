package whatsapp

import "strings"

// WebhookEvent is the gateway's delivery envelope. Only "messages.upsert"
// events carry inbound text; everything else is acknowledged and ignored.
type WebhookEvent struct {
	Event    string      `json:"event"`
	Instance string      `json:"instance"`
	Data     WebhookData `json:"data"`
}

type WebhookData struct {
	Key     WebhookKey     `json:"key"`
	Message WebhookMessage `json:"message"`
}

type WebhookKey struct {
	// RemoteJid is the contact address, e.g. "5511999990000@s.whatsapp.net".
	RemoteJid string `json:"remoteJid"`
	// FromMe marks echoes of our own outbound messages.
	FromMe bool `json:"fromMe"`
}

type WebhookMessage struct {
	Conversation        string `json:"conversation"`
	ExtendedTextMessage struct {
		Text string `json:"text"`
	} `json:"extendedTextMessage"`
}

// Text returns the message body regardless of which field the gateway
// populated. Plain messages arrive in "conversation"; replies and messages
// with link previews arrive in "extendedTextMessage.text".
func (e *WebhookEvent) Text() string {
	if text := strings.TrimSpace(e.Data.Message.Conversation); text != "" {
		return text
	}
	return strings.TrimSpace(e.Data.Message.ExtendedTextMessage.Text)
}

const eventMessagesUpsert = "messages.upsert"

// IsInboundMessage reports whether the event is a message-received event.
func (e *WebhookEvent) IsInboundMessage() bool {
	return e.Event == eventMessagesUpsert
}
