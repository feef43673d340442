package ports

import (
	"context"
	"time"

	"castgate/internal/domain"
)

// MediaBackend is the chat-message backend serving media metadata and
// fixed-size blocks of media bytes.
type MediaBackend interface {
	GetMessage(ctx context.Context, id int64) (domain.MediaMessage, error)
	// GetBlock returns up to limit bytes of the message's document starting
	// at offset. The backend serves whole fixed blocks, so offset must be
	// block-aligned; a short block means end of content.
	GetBlock(ctx context.Context, msg domain.MediaMessage, offset, limit int64) ([]byte, error)
	HealthCheck(ctx context.Context) error
	ReplyMessage(ctx context.Context, messageID, chatID int64, text string) error
}

// Messenger creates and edits control-surface messages with inline buttons.
// EditControl returns domain.ErrNotModified when the edit would not change
// the rendered content.
type Messenger interface {
	SendControl(ctx context.Context, chatID, replyTo int64, text string, buttons [][]domain.Button) (domain.ControlMessage, error)
	EditControl(ctx context.Context, msg domain.ControlMessage, text string, buttons [][]domain.Button) error
}

// DeviceDirectory resolves cast devices scoped to a user.
type DeviceDirectory interface {
	FindDevice(ctx context.Context, name string, userID int64) (domain.Device, error)
	ListDevices(ctx context.Context, userID int64) ([]domain.Device, error)
}

// StreamHistory persists closed-stream records.
type StreamHistory interface {
	Insert(ctx context.Context, closure domain.StreamClosure) error
	ListRecent(ctx context.Context, limit int) ([]domain.StreamClosure, error)
}

// MessageCache fronts MediaBackend.GetMessage lookups.
type MessageCache interface {
	Get(ctx context.Context, id int64) (domain.MediaMessage, bool)
	Put(ctx context.Context, id int64, msg domain.MediaMessage, ttl time.Duration)
}
