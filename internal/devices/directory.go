package devices

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"castgate/internal/domain"
	"castgate/internal/domain/ports"
)

// DescriptorSource lists the cast devices registered for a user. The chat
// backend implements it.
type DescriptorSource interface {
	ListDeviceDescriptors(ctx context.Context, userID int64) ([]domain.DeviceDescriptor, error)
}

// Directory resolves backend device descriptors into protocol adapters.
type Directory struct {
	source DescriptorSource
	logger *slog.Logger
}

func NewDirectory(source DescriptorSource, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{source: source, logger: logger}
}

// FindDevice resolves a device by name, case-insensitively, scoped to the
// user's registered devices.
func (d *Directory) FindDevice(ctx context.Context, name string, userID int64) (domain.Device, error) {
	descriptors, err := d.source.ListDeviceDescriptors(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list devices for user %d: %w", userID, err)
	}
	for _, desc := range descriptors {
		if strings.EqualFold(desc.Name, name) {
			return d.adapt(desc)
		}
	}
	return nil, fmt.Errorf("device %q: %w", name, domain.ErrNotFound)
}

// ListDevices adapts every known descriptor, skipping kinds the gateway has
// no protocol adapter for.
func (d *Directory) ListDevices(ctx context.Context, userID int64) ([]domain.Device, error) {
	descriptors, err := d.source.ListDeviceDescriptors(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list devices for user %d: %w", userID, err)
	}

	out := make([]domain.Device, 0, len(descriptors))
	for _, desc := range descriptors {
		device, err := d.adapt(desc)
		if err != nil {
			d.logger.Warn("skipping device",
				slog.String("device", desc.Name),
				slog.String("kind", desc.Kind),
			)
			continue
		}
		out = append(out, device)
	}
	return out, nil
}

func (d *Directory) adapt(desc domain.DeviceDescriptor) (domain.Device, error) {
	switch desc.Kind {
	case domain.DeviceKindDLNA:
		return NewDLNADevice(desc.Name, desc.Address), nil
	case domain.DeviceKindChromecast:
		return NewCastDevice(desc.Name, desc.Address), nil
	default:
		return nil, fmt.Errorf("device kind %q: %w", desc.Kind, domain.ErrNotFound)
	}
}

var _ ports.DeviceDirectory = (*Directory)(nil)
