package playback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"castgate/internal/domain"
)

// Session states as published to dashboard clients.
const (
	StateNoDevice = "no_device"
	StateSelected = "device_selected"
	StatePlaying  = "playing"
	StatePaused   = "paused"
)

// Session is the playback state machine for one stream token: the device
// binding, the control-surface message, and the transition handlers that
// command the device and re-render the surface.
type Session struct {
	mu      sync.Mutex
	token   domain.Token
	userID  int64
	media   domain.MediaMessage
	device  domain.Device
	control *domain.ControlMessage
	link    *domain.MessageRef
	state   string

	registry *Registry
}

// Token returns the session's stream token.
func (s *Session) Token() domain.Token {
	return s.token
}

// SelectDevice binds a device and re-renders the idle surface. No device
// command is issued.
func (s *Session) SelectDevice(ctx context.Context, device domain.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.device = device
	s.state = StateSelected
	return s.renderStopped(ctx, 0)
}

// SendDeviceSelector renders the device-selection surface.
func (s *Session) SendDeviceSelector(ctx context.Context, devices []domain.Device) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.render(ctx, "Select a device", selectorButtons(s.token, devices))
}

// Play authorizes the stream token with the gateway and starts playback on
// the bound device. A preceding stop clears whatever the device was playing.
func (s *Session) Play(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return domain.ErrNoDevice
	}

	uri, _, err := s.registry.gateway.Authorize(s.media.ID, s.token.Partial())
	if err != nil {
		return err
	}

	if err := s.device.Stop(ctx); err != nil {
		return err
	}
	if err := s.device.Play(ctx, uri, s.filename(), s.token); err != nil {
		return err
	}

	s.state = StatePlaying
	return s.renderPlaying(ctx)
}

// Pause suspends playback. Devices without the pause capability reject the
// action.
func (s *Session) Pause(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return domain.ErrNoDevice
	}
	pr, ok := s.device.(domain.PauseResumer)
	if !ok {
		return domain.ErrUnsupportedAction
	}
	if err := pr.Pause(ctx); err != nil {
		return err
	}

	s.state = StatePaused
	return s.render(ctx, pausedText(s.media.ID, s.device), pausedButtons(s.token))
}

// Resume continues paused playback.
func (s *Session) Resume(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device == nil {
		return domain.ErrNoDevice
	}
	pr, ok := s.device.(domain.PauseResumer)
	if !ok {
		return domain.ErrUnsupportedAction
	}
	if err := pr.Resume(ctx); err != nil {
		return err
	}

	s.state = StatePlaying
	return s.renderPlaying(ctx)
}

// Stop halts the device best-effort and renders the stopped surface. The
// surface update always happens; a no-device condition is reported only
// afterward so the user still sees a consistent stopped state.
func (s *Session) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.device != nil {
		if err := s.device.Stop(ctx); err != nil {
			s.registry.logger.Warn("device stop failed",
				slog.String("device", s.device.Name()),
				slog.String("error", err.Error()),
			)
		}
		s.state = StateSelected
	}
	if err := s.renderStopped(ctx, 0); err != nil {
		return err
	}
	if s.device == nil {
		return domain.ErrNoDevice
	}
	return nil
}

// Close renders the closed surface with the remaining fraction, notifies the
// device and removes the session from the registry. Used by the idle-reap
// cascade.
func (s *Session) Close(ctx context.Context, remaining float64) error {
	s.mu.Lock()
	device := s.device
	s.state = StateSelected
	renderErr := s.renderStopped(ctx, remaining)
	s.mu.Unlock()

	if device != nil {
		if err := device.OnClose(ctx, s.token); err != nil {
			s.registry.logger.Warn("device close notification failed",
				slog.String("device", device.Name()),
				slog.String("error", err.Error()),
			)
		}
	}

	s.registry.Remove(s.token)
	s.registry.gateway.Revoke(s.token)
	return renderErr
}

// Snapshot reports the session for the dashboard broadcast.
func (s *Session) Snapshot() domain.PlaybackState {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := domain.PlaybackState{
		Token:     s.token,
		MessageID: s.media.ID,
		UserID:    s.userID,
		State:     s.state,
		FileName:  s.filename(),
	}
	if s.device != nil {
		state.Device = s.device.Name()
	}
	return state
}

func (s *Session) filename() string {
	if s.media.Document != nil && s.media.Document.FileName != "" {
		return s.media.Document.FileName
	}
	return "None"
}

func (s *Session) renderStopped(ctx context.Context, remaining float64) error {
	text := stoppedText(s.media.ID, s.device)
	if remaining > 0 {
		text = closedText(s.media.ID, s.device, remaining)
	}
	return s.render(ctx, text, stoppedButtons(s.token))
}

func (s *Session) renderPlaying(ctx context.Context) error {
	return s.render(ctx, playingText(s.media.ID, s.device), playingButtons(s.token))
}

// render edits the existing control message or creates one as a reply to the
// media message. Edits that would not change the surface are not errors.
func (s *Session) render(ctx context.Context, text string, buttons [][]domain.Button) error {
	if s.control != nil {
		err := s.registry.messenger.EditControl(ctx, *s.control, text, buttons)
		if err != nil && !errors.Is(err, domain.ErrNotModified) {
			return fmt.Errorf("edit control message: %w", err)
		}
		s.control.Text = text
		return nil
	}

	msg, err := s.registry.messenger.SendControl(ctx, s.media.ChatID, s.media.ID, text, buttons)
	if err != nil {
		return fmt.Errorf("send control message: %w", err)
	}
	msg.Text = text
	s.control = &msg
	return nil
}
