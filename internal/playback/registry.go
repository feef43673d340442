package playback

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"castgate/internal/domain"
	"castgate/internal/domain/ports"
	"castgate/internal/metrics"
)

// StreamGateway is the slice of the streaming gateway the playback layer
// needs: token registration on play and revocation on close.
type StreamGateway interface {
	Authorize(messageID int64, partial uint32) (string, domain.Token, error)
	Revoke(token domain.Token)
}

// Registry owns the in-memory token-to-session map. Sessions not present in
// the map are reconstructed lazily from chat history, so the map survives
// nothing and needs to survive nothing.
type Registry struct {
	mu       sync.Mutex
	sessions map[domain.Token]*Session

	gateway   StreamGateway
	backend   ports.MediaBackend
	messenger ports.Messenger
	directory ports.DeviceDirectory
	logger    *slog.Logger
}

func NewRegistry(
	gateway StreamGateway,
	backend ports.MediaBackend,
	messenger ports.Messenger,
	directory ports.DeviceDirectory,
	logger *slog.Logger,
) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions:  make(map[domain.Token]*Session),
		gateway:   gateway,
		backend:   backend,
		messenger: messenger,
		directory: directory,
		logger:    logger,
	}
}

// Create constructs and stores a session. It does not authorize the token
// with the gateway; that happens on play.
func (r *Registry) Create(
	token domain.Token,
	userID int64,
	device domain.Device,
	media domain.MediaMessage,
	control *domain.ControlMessage,
	link *domain.MessageRef,
) *Session {
	state := StateNoDevice
	if device != nil {
		state = StateSelected
	}
	s := &Session{
		token:    token,
		userID:   userID,
		media:    media,
		device:   device,
		control:  control,
		link:     link,
		state:    state,
		registry: r,
	}

	r.mu.Lock()
	r.sessions[token] = s
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()
	return s
}

// GetOrReconstruct returns the live session for the token, or rebuilds one
// from chat history after a process restart: the media message is re-fetched
// by the token's message identifier and the device binding is recovered from
// the device name the last rendered control text carries. The reconstructed
// session always starts from a neutral state, even if playback was paused
// when the process died.
func (r *Registry) GetOrReconstruct(ctx context.Context, token domain.Token, userID int64, control domain.ControlMessage) (*Session, error) {
	r.mu.Lock()
	if s, ok := r.sessions[token]; ok {
		r.mu.Unlock()
		return s, nil
	}
	r.mu.Unlock()

	media, err := r.backend.GetMessage(ctx, token.MessageID())
	if err != nil {
		return nil, fmt.Errorf("reconstruct session %s: %w", token, err)
	}

	var link *domain.MessageRef
	if control.ReplyTo != 0 && control.ReplyTo != token.MessageID() {
		link = &domain.MessageRef{ID: control.ReplyTo, ChatID: control.ChatID}
	}

	var device domain.Device
	if name := ParseDeviceName(control.Text); name != "" {
		device, err = r.directory.FindDevice(ctx, name, userID)
		if err != nil {
			// The device may have left the network; the session still
			// reconstructs, just unbound.
			r.logger.Warn("reconstructed session device not found",
				slog.String("token", token.String()),
				slog.String("device", name),
				slog.String("error", err.Error()),
			)
			device = nil
		}
	}

	r.logger.Info("session reconstructed",
		slog.String("token", token.String()),
		slog.Int64("messageId", media.ID),
		slog.Bool("deviceBound", device != nil),
	)
	return r.Create(token, userID, device, media, &control, link), nil
}

// Remove drops the session for the token. Idempotent.
func (r *Registry) Remove(token domain.Token) {
	r.mu.Lock()
	delete(r.sessions, token)
	metrics.ActiveSessions.Set(float64(len(r.sessions)))
	r.mu.Unlock()
}

// HandleClosed is the idle-reap cascade target: the gateway already revoked
// the token, the session renders its closed surface and goes away.
func (r *Registry) HandleClosed(ctx context.Context, token domain.Token, remaining float64) {
	r.mu.Lock()
	s, ok := r.sessions[token]
	r.mu.Unlock()
	if !ok {
		return
	}
	if err := s.Close(ctx, remaining); err != nil {
		r.logger.Warn("closing reaped session failed",
			slog.String("token", token.String()),
			slog.String("error", err.Error()),
		)
	}
}

// Snapshot returns the dashboard view of every live session.
func (r *Registry) Snapshot() []domain.PlaybackState {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	states := make([]domain.PlaybackState, 0, len(sessions))
	for _, s := range sessions {
		states = append(states, s.Snapshot())
	}
	return states
}
