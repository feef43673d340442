package apihttp

import (
	"sync"
	"time"

	"castgate/internal/domain"
)

// reapFunc is invoked when a stream goes idle, with the arguments from the
// most recent feed.
type reapFunc func(messageID, chatID int64, token domain.Token, size int64)

// streamDebounce is a reschedulable deferred reap for one token. Every Feed
// pushes the deadline out by the full timeout and replaces the callback
// arguments; if no feed arrives within the window the callback fires once.
// Feed, fire and Cancel are mutually exclusive per token.
type streamDebounce struct {
	mu      sync.Mutex
	timeout time.Duration
	fn      reapFunc
	timer   *time.Timer
	stopped bool

	messageID int64
	chatID    int64
	token     domain.Token
	size      int64
}

func newStreamDebounce(timeout time.Duration, fn reapFunc) *streamDebounce {
	return &streamDebounce{timeout: timeout, fn: fn}
}

// Feed resets the idle deadline and refreshes the arguments the reap will
// fire with. The timer is armed lazily on the first feed.
func (d *streamDebounce) Feed(messageID, chatID int64, token domain.Token, size int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.messageID, d.chatID, d.token, d.size = messageID, chatID, token, size
	if d.timer == nil {
		d.timer = time.AfterFunc(d.timeout, d.fire)
		return
	}
	d.timer.Reset(d.timeout)
}

func (d *streamDebounce) fire() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	messageID, chatID, token, size := d.messageID, d.chatID, d.token, d.size
	d.mu.Unlock()

	d.fn(messageID, chatID, token, size)
}

// Cancel permanently disarms the debounce. Safe to call more than once and
// after the timer has fired.
func (d *streamDebounce) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
