package devices

import (
	"context"
	"fmt"
	"sync"

	"go2tv.app/go2tv/v2/soapcalls"

	"castgate/internal/domain"
	"castgate/internal/metrics"
)

const castContentType = "video/mp4"

// DLNADevice drives a UPnP/DLNA media renderer through its AVTransport
// control URL. DLNA renderers support pause, so the device also satisfies
// domain.PauseResumer.
type DLNADevice struct {
	name    string
	address string

	mu      sync.Mutex
	payload *soapcalls.TVPayload
}

func NewDLNADevice(name, address string) *DLNADevice {
	return &DLNADevice{name: name, address: address}
}

func (d *DLNADevice) Name() string { return d.name }

func (d *DLNADevice) Play(ctx context.Context, uri, filename string, token domain.Token) error {
	payload, err := soapcalls.NewTVPayload(&soapcalls.Options{
		Ctx:   ctx,
		DMR:   d.address,
		Media: uri,
		Mtype: castContentType,
		Seek:  true,
	})
	if err != nil {
		return commandError("play", d.name, err)
	}
	if err := payload.SendtoTV("Play1"); err != nil {
		return commandError("play", d.name, err)
	}

	d.mu.Lock()
	d.payload = payload
	d.mu.Unlock()
	return nil
}

func (d *DLNADevice) Stop(ctx context.Context) error {
	d.mu.Lock()
	payload := d.payload
	d.payload = nil
	d.mu.Unlock()

	if payload == nil {
		return nil
	}
	if err := payload.SendtoTV("Stop"); err != nil {
		return commandError("stop", d.name, err)
	}
	return nil
}

func (d *DLNADevice) Pause(ctx context.Context) error {
	d.mu.Lock()
	payload := d.payload
	d.mu.Unlock()

	if payload == nil {
		return fmt.Errorf("pause on %s: nothing playing: %w", d.name, domain.ErrDeviceCommand)
	}
	if err := payload.SendtoTV("Pause"); err != nil {
		return commandError("pause", d.name, err)
	}
	return nil
}

func (d *DLNADevice) Resume(ctx context.Context) error {
	d.mu.Lock()
	payload := d.payload
	d.mu.Unlock()

	if payload == nil {
		return fmt.Errorf("resume on %s: nothing playing: %w", d.name, domain.ErrDeviceCommand)
	}
	if err := payload.SendtoTV("Play1"); err != nil {
		return commandError("resume", d.name, err)
	}
	return nil
}

func (d *DLNADevice) OnClose(ctx context.Context, token domain.Token) error {
	return d.Stop(ctx)
}

func commandError(command, device string, err error) error {
	metrics.DeviceCommandFailures.WithLabelValues(command).Inc()
	return fmt.Errorf("%s on %s: %w: %s", command, device, domain.ErrDeviceCommand, err)
}

var (
	_ domain.Device       = (*DLNADevice)(nil)
	_ domain.PauseResumer = (*DLNADevice)(nil)
)
