package domain

import "time"

// Document is the playable payload of a chat message. Messages whose media
// is not a document are not streamable.
type Document struct {
	ID       int64  `json:"id"`
	Size     int64  `json:"size"`
	FileName string `json:"fileName,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// MediaMessage is a chat message resolved through the media backend.
type MediaMessage struct {
	ID       int64     `json:"id"`
	ChatID   int64     `json:"chatId"`
	FromID   int64     `json:"fromId"`
	Document *Document `json:"document,omitempty"`
}

// Streamable reports whether the message carries a playable document.
func (m MediaMessage) Streamable() bool {
	return m.Document != nil && m.Document.Size > 0
}

// ControlMessage references the chat message acting as a session's control
// surface, including its last rendered text (used for reconstruction).
type ControlMessage struct {
	ID      int64  `json:"id"`
	ChatID  int64  `json:"chatId"`
	ReplyTo int64  `json:"replyTo,omitempty"`
	Text    string `json:"text,omitempty"`
}

// MessageRef is a bare chat message reference.
type MessageRef struct {
	ID     int64 `json:"id"`
	ChatID int64 `json:"chatId"`
}

// Button is one inline control-surface button. Data carries the callback
// payload in the "{prefix}:{token}:{label}" form.
type Button struct {
	Text string `json:"text"`
	Data string `json:"data"`
}

// DeviceDescriptor is the backend's record of a cast device registered for
// a user. Kind selects the control protocol adapter.
type DeviceDescriptor struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`
	Address string `json:"address"`
}

const (
	DeviceKindDLNA       = "dlna"
	DeviceKindChromecast = "chromecast"
)

// CallbackEvent is a pressed control-surface button delivered by the chat
// backend.
type CallbackEvent struct {
	UserID  int64          `json:"userId"`
	Data    string         `json:"data"`
	Control ControlMessage `json:"control"`
}

// Update is one long-poll event from the chat backend: either a new media
// message or a button callback.
type Update struct {
	ID       int64          `json:"id"`
	Media    *MediaMessage  `json:"media,omitempty"`
	Callback *CallbackEvent `json:"callback,omitempty"`
}

// StreamClosure records one finished or abandoned stream.
type StreamClosure struct {
	Token     Token     `json:"token"`
	MessageID int64     `json:"messageId"`
	ChatID    int64     `json:"chatId"`
	Remaining float64   `json:"remaining"`
	Reason    string    `json:"reason"`
	ClosedAt  time.Time `json:"closedAt"`
}

// PlaybackState is the snapshot of one session broadcast to dashboard
// clients over the websocket hub.
type PlaybackState struct {
	Token     Token  `json:"token"`
	MessageID int64  `json:"messageId"`
	UserID    int64  `json:"userId"`
	State     string `json:"state"`
	Device    string `json:"device,omitempty"`
	FileName  string `json:"fileName,omitempty"`
}
