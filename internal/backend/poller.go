package backend

import (
	"context"
	"log/slog"
	"time"

	"castgate/internal/domain"
)

const (
	pollTimeout = 25 * time.Second
	pollBackoff = 3 * time.Second
)

// UpdateSource is the long-poll half of the backend client.
type UpdateSource interface {
	PollUpdates(ctx context.Context, offset int64, timeout time.Duration) ([]domain.Update, error)
}

// UpdateHandler consumes one chat update. The playback dispatcher implements
// it.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u domain.Update) error
}

// Poller drives the update long-poll loop and feeds each update to the
// handler in arrival order.
type Poller struct {
	source  UpdateSource
	handler UpdateHandler
	logger  *slog.Logger
}

func NewPoller(source UpdateSource, handler UpdateHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{source: source, handler: handler, logger: logger}
}

// Run polls until the context is cancelled. Poll failures back off and
// retry; handler failures are logged and the offset still advances, a
// poisoned update must not wedge the loop.
func (p *Poller) Run(ctx context.Context) {
	var offset int64
	for {
		if ctx.Err() != nil {
			return
		}

		updates, err := p.source.PollUpdates(ctx, offset, pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Warn("update poll failed", slog.String("error", err.Error()))
			select {
			case <-ctx.Done():
				return
			case <-time.After(pollBackoff):
			}
			continue
		}

		for _, u := range updates {
			if err := p.handler.HandleUpdate(ctx, u); err != nil {
				p.logger.Error("update handling failed",
					slog.Int64("updateId", u.ID),
					slog.String("error", err.Error()),
				)
			}
			if u.ID >= offset {
				offset = u.ID + 1
			}
		}
	}
}
