package devices

import (
	"context"
	"sync"

	"go2tv.app/go2tv/v2/castprotocol"

	"castgate/internal/domain"
)

// CastDevice drives a Chromecast receiver. The cast protocol adapter exposes
// no pause, so the device deliberately does not implement
// domain.PauseResumer and pause/resume on it surface as unsupported.
type CastDevice struct {
	name    string
	address string

	mu     sync.Mutex
	client *castprotocol.CastClient
}

func NewCastDevice(name, address string) *CastDevice {
	return &CastDevice{name: name, address: address}
}

func (d *CastDevice) Name() string { return d.name }

func (d *CastDevice) Play(ctx context.Context, uri, filename string, token domain.Token) error {
	client, err := castprotocol.NewCastClient(d.address)
	if err != nil {
		return commandError("play", d.name, err)
	}
	if err := client.Connect(); err != nil {
		_ = client.Close(true)
		return commandError("play", d.name, err)
	}
	if err := client.Load(uri, castContentType, 0, 0, "", false); err != nil {
		_ = client.Close(true)
		return commandError("play", d.name, err)
	}

	d.mu.Lock()
	old := d.client
	d.client = client
	d.mu.Unlock()
	if old != nil {
		_ = old.Close(true)
	}
	return nil
}

func (d *CastDevice) Stop(ctx context.Context) error {
	d.mu.Lock()
	client := d.client
	d.client = nil
	d.mu.Unlock()

	if client == nil {
		return nil
	}
	stopErr := client.Stop()
	_ = client.Close(false)
	if stopErr != nil {
		return commandError("stop", d.name, stopErr)
	}
	return nil
}

func (d *CastDevice) OnClose(ctx context.Context, token domain.Token) error {
	return d.Stop(ctx)
}

var _ domain.Device = (*CastDevice)(nil)
