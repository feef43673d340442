package devices

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"castgate/internal/domain"
)

type staticSource struct {
	descriptors []domain.DeviceDescriptor
}

func (s staticSource) ListDeviceDescriptors(ctx context.Context, userID int64) ([]domain.DeviceDescriptor, error) {
	return s.descriptors, nil
}

func testDirectory(descriptors ...domain.DeviceDescriptor) *Directory {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewDirectory(staticSource{descriptors: descriptors}, logger)
}

func TestFindDeviceMatchesCaseInsensitively(t *testing.T) {
	dir := testDirectory(
		domain.DeviceDescriptor{Name: "Living Room TV", Kind: domain.DeviceKindDLNA, Address: "http://10.0.0.5:9197/dmr"},
	)

	device, err := dir.FindDevice(context.Background(), "living room tv", 1)
	if err != nil {
		t.Fatal(err)
	}
	if device.Name() != "Living Room TV" {
		t.Fatalf("device name = %q", device.Name())
	}

	if _, err := dir.FindDevice(context.Background(), "Bedroom TV", 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing device error = %v, want ErrNotFound", err)
	}
}

func TestListDevicesSkipsUnknownKinds(t *testing.T) {
	dir := testDirectory(
		domain.DeviceDescriptor{Name: "TV", Kind: domain.DeviceKindDLNA, Address: "http://10.0.0.5:9197/dmr"},
		domain.DeviceDescriptor{Name: "Cast", Kind: domain.DeviceKindChromecast, Address: "10.0.0.6"},
		domain.DeviceDescriptor{Name: "Speaker", Kind: "airplay", Address: "10.0.0.7"},
	)

	devices, err := dir.ListDevices(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(devices) != 2 {
		t.Fatalf("devices = %d, want airplay skipped", len(devices))
	}
}

func TestPauseCapabilityByKind(t *testing.T) {
	var dlna domain.Device = NewDLNADevice("TV", "http://10.0.0.5:9197/dmr")
	if _, ok := dlna.(domain.PauseResumer); !ok {
		t.Fatal("DLNA device lost its pause capability")
	}

	var cast domain.Device = NewCastDevice("Cast", "10.0.0.6")
	if _, ok := cast.(domain.PauseResumer); ok {
		t.Fatal("Chromecast device claims pause it cannot deliver")
	}
}
