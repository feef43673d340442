package playback

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"castgate/internal/domain"
	"castgate/internal/domain/ports"
)

// Dispatcher turns chat updates into session transitions: new media messages
// open a session with a fresh partial token, button callbacks route to the
// session the payload names.
type Dispatcher struct {
	registry  *Registry
	backend   ports.MediaBackend
	directory ports.DeviceDirectory
	logger    *slog.Logger
}

func NewDispatcher(registry *Registry, backend ports.MediaBackend, directory ports.DeviceDirectory, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		registry:  registry,
		backend:   backend,
		directory: directory,
		logger:    logger,
	}
}

// HandleUpdate routes one long-poll event.
func (d *Dispatcher) HandleUpdate(ctx context.Context, u domain.Update) error {
	switch {
	case u.Media != nil:
		return d.HandleMedia(ctx, *u.Media)
	case u.Callback != nil:
		return d.HandleCallback(ctx, *u.Callback)
	default:
		return nil
	}
}

// HandleMedia opens a session for an incoming media message and renders the
// device selector.
func (d *Dispatcher) HandleMedia(ctx context.Context, msg domain.MediaMessage) error {
	if !msg.Streamable() {
		return d.backend.ReplyMessage(ctx, msg.ID, msg.ChatID, "Unsupported media, send a document")
	}

	partial, err := randomPartial()
	if err != nil {
		return fmt.Errorf("generate partial token: %w", err)
	}
	token, err := domain.EncodeToken(msg.ID, partial)
	if err != nil {
		return fmt.Errorf("encode token for message %d: %w", msg.ID, err)
	}

	session := d.registry.Create(token, msg.FromID, nil, msg, nil, nil)
	devices, err := d.directory.ListDevices(ctx, msg.FromID)
	if err != nil {
		d.logger.Warn("device listing failed",
			slog.Int64("userId", msg.FromID),
			slog.String("error", err.Error()),
		)
		devices = nil
	}
	return session.SendDeviceSelector(ctx, devices)
}

// HandleCallback parses a "{prefix}:{token}:{arg}" button payload, resolves
// or reconstructs the session and runs the transition. Transition errors are
// reported back to the chat instead of propagating.
func (d *Dispatcher) HandleCallback(ctx context.Context, ev domain.CallbackEvent) error {
	parts := strings.SplitN(ev.Data, ":", 3)
	if len(parts) != 3 {
		return fmt.Errorf("malformed callback payload %q: %w", ev.Data, domain.ErrMalformedRequest)
	}
	prefix, rawToken, arg := parts[0], parts[1], parts[2]

	token, err := domain.ParseToken(rawToken)
	if err != nil {
		return fmt.Errorf("callback payload %q: %w", ev.Data, err)
	}

	session, err := d.registry.GetOrReconstruct(ctx, token, ev.UserID, ev.Control)
	if err != nil {
		return err
	}

	switch prefix {
	case prefixControl:
		err = d.dispatchControl(ctx, session, ev.UserID, arg)
	case prefixSelect:
		err = d.dispatchSelect(ctx, session, ev.UserID, arg)
	default:
		return fmt.Errorf("unknown callback prefix %q: %w", prefix, domain.ErrMalformedRequest)
	}

	if err != nil {
		return d.report(ctx, ev, err)
	}
	return nil
}

func (d *Dispatcher) dispatchControl(ctx context.Context, session *Session, userID int64, label string) error {
	switch label {
	case labelPlay:
		return session.Play(ctx)
	case labelStop:
		return session.Stop(ctx)
	case labelPause:
		return session.Pause(ctx)
	case labelResume:
		return session.Resume(ctx)
	case labelDevice, labelRefresh:
		devices, err := d.directory.ListDevices(ctx, userID)
		if err != nil {
			return err
		}
		return session.SendDeviceSelector(ctx, devices)
	default:
		return fmt.Errorf("unknown control label %q: %w", label, domain.ErrMalformedRequest)
	}
}

func (d *Dispatcher) dispatchSelect(ctx context.Context, session *Session, userID int64, name string) error {
	device, err := d.directory.FindDevice(ctx, name, userID)
	if err != nil {
		return err
	}
	return session.SelectDevice(ctx, device)
}

// report translates a transition error into a chat reply on the control
// message. The error is considered handled once the user saw it.
func (d *Dispatcher) report(ctx context.Context, ev domain.CallbackEvent, cause error) error {
	var text string
	switch {
	case errors.Is(cause, domain.ErrNoDevice):
		text = "Device not selected"
	case errors.Is(cause, domain.ErrUnsupportedAction):
		text = "Action not supported on this device"
	case errors.Is(cause, domain.ErrDeviceCommand):
		text = "Device command failed, try again"
	default:
		return cause
	}

	d.logger.Info("control command rejected",
		slog.String("payload", ev.Data),
		slog.String("reason", cause.Error()),
	)
	if err := d.backend.ReplyMessage(ctx, ev.Control.ID, ev.Control.ChatID, text); err != nil {
		return fmt.Errorf("report %q: %w", text, err)
	}
	return nil
}

func randomPartial() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}
