package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"castgate/internal/domain"
)

type fakeDevice struct {
	name     string
	commands []string
	failStop bool
}

func (d *fakeDevice) Name() string { return d.name }

func (d *fakeDevice) Play(ctx context.Context, uri, filename string, token domain.Token) error {
	d.commands = append(d.commands, "play "+uri)
	return nil
}

func (d *fakeDevice) Stop(ctx context.Context) error {
	d.commands = append(d.commands, "stop")
	if d.failStop {
		return fmt.Errorf("transport: %w", domain.ErrDeviceCommand)
	}
	return nil
}

func (d *fakeDevice) OnClose(ctx context.Context, token domain.Token) error {
	d.commands = append(d.commands, "close")
	return nil
}

// pausableDevice adds the optional pause capability.
type pausableDevice struct {
	fakeDevice
}

func (d *pausableDevice) Pause(ctx context.Context) error {
	d.commands = append(d.commands, "pause")
	return nil
}

func (d *pausableDevice) Resume(ctx context.Context) error {
	d.commands = append(d.commands, "resume")
	return nil
}

type renderedSurface struct {
	text    string
	buttons [][]domain.Button
}

type fakeMessenger struct {
	mu       sync.Mutex
	nextID   int64
	surfaces []renderedSurface
}

func (m *fakeMessenger) SendControl(ctx context.Context, chatID, replyTo int64, text string, buttons [][]domain.Button) (domain.ControlMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	m.surfaces = append(m.surfaces, renderedSurface{text: text, buttons: buttons})
	return domain.ControlMessage{ID: m.nextID, ChatID: chatID, ReplyTo: replyTo, Text: text}, nil
}

func (m *fakeMessenger) EditControl(ctx context.Context, msg domain.ControlMessage, text string, buttons [][]domain.Button) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.surfaces) > 0 && m.surfaces[len(m.surfaces)-1].text == text {
		return domain.ErrNotModified
	}
	m.surfaces = append(m.surfaces, renderedSurface{text: text, buttons: buttons})
	return nil
}

func (m *fakeMessenger) last() renderedSurface {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.surfaces) == 0 {
		return renderedSurface{}
	}
	return m.surfaces[len(m.surfaces)-1]
}

type fakeDirectory struct {
	devices map[string]domain.Device
}

func (f *fakeDirectory) FindDevice(ctx context.Context, name string, userID int64) (domain.Device, error) {
	d, ok := f.devices[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return d, nil
}

func (f *fakeDirectory) ListDevices(ctx context.Context, userID int64) ([]domain.Device, error) {
	out := make([]domain.Device, 0, len(f.devices))
	for _, d := range f.devices {
		out = append(out, d)
	}
	return out, nil
}

type fakeGateway struct {
	mu         sync.Mutex
	authorized map[domain.Token]bool
}

func (g *fakeGateway) Authorize(messageID int64, partial uint32) (string, domain.Token, error) {
	token, err := domain.EncodeToken(messageID, partial)
	if err != nil {
		return "", 0, err
	}
	g.mu.Lock()
	if g.authorized == nil {
		g.authorized = make(map[domain.Token]bool)
	}
	g.authorized[token] = true
	g.mu.Unlock()
	return fmt.Sprintf("http://gateway.test/stream/%d/%d", messageID, partial), token, nil
}

func (g *fakeGateway) Revoke(token domain.Token) {
	g.mu.Lock()
	delete(g.authorized, token)
	g.mu.Unlock()
}

type stubBackend struct {
	mu       sync.Mutex
	messages map[int64]domain.MediaMessage
	replies  []string
}

func (b *stubBackend) GetMessage(ctx context.Context, id int64) (domain.MediaMessage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	msg, ok := b.messages[id]
	if !ok {
		return domain.MediaMessage{}, domain.ErrNotFound
	}
	return msg, nil
}

func (b *stubBackend) GetBlock(ctx context.Context, msg domain.MediaMessage, offset, limit int64) ([]byte, error) {
	return nil, nil
}

func (b *stubBackend) HealthCheck(ctx context.Context) error { return nil }

func (b *stubBackend) ReplyMessage(ctx context.Context, messageID, chatID int64, text string) error {
	b.mu.Lock()
	b.replies = append(b.replies, text)
	b.mu.Unlock()
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mediaMessage(id int64) domain.MediaMessage {
	return domain.MediaMessage{
		ID:     id,
		ChatID: 900,
		FromID: 900,
		Document: &domain.Document{
			ID:       id * 10,
			Size:     4096,
			FileName: "movie.mp4",
		},
	}
}

type harness struct {
	registry  *Registry
	gateway   *fakeGateway
	backend   *stubBackend
	messenger *fakeMessenger
	directory *fakeDirectory
}

func newHarness(devices ...domain.Device) *harness {
	dir := &fakeDirectory{devices: make(map[string]domain.Device)}
	for _, d := range devices {
		dir.devices[d.Name()] = d
	}
	h := &harness{
		gateway:   &fakeGateway{},
		backend:   &stubBackend{messages: make(map[int64]domain.MediaMessage)},
		messenger: &fakeMessenger{},
		directory: dir,
	}
	h.registry = NewRegistry(h.gateway, h.backend, h.messenger, h.directory, discardLogger())
	return h
}

func mustToken(t *testing.T, messageID int64, partial uint32) domain.Token {
	t.Helper()
	token, err := domain.EncodeToken(messageID, partial)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestPlayRequiresDevice(t *testing.T) {
	h := newHarness()
	token := mustToken(t, 42, 7)
	session := h.registry.Create(token, 900, nil, mediaMessage(42), nil, nil)

	if err := session.Play(context.Background()); !errors.Is(err, domain.ErrNoDevice) {
		t.Fatalf("Play without device = %v, want ErrNoDevice", err)
	}
	if len(h.gateway.authorized) != 0 {
		t.Fatal("token authorized despite missing device")
	}
}

func TestPlayAuthorizesAndCommandsDevice(t *testing.T) {
	device := &fakeDevice{name: "Living Room TV"}
	h := newHarness(device)
	token := mustToken(t, 42, 7)
	session := h.registry.Create(token, 900, device, mediaMessage(42), nil, nil)

	if err := session.Play(context.Background()); err != nil {
		t.Fatal(err)
	}

	if !h.gateway.authorized[token] {
		t.Fatal("token not authorized with the gateway")
	}
	want := []string{"stop", "play http://gateway.test/stream/42/7"}
	if len(device.commands) != 2 || device.commands[0] != want[0] || device.commands[1] != want[1] {
		t.Fatalf("device commands = %v, want %v", device.commands, want)
	}

	surface := h.messenger.last()
	if surface.text != "Playing for file <code>42</code> on device <code>Living Room TV</code>" {
		t.Fatalf("surface text = %q", surface.text)
	}
	if surface.buttons[0][0].Text != "STOP" || surface.buttons[1][0].Text != "PAUSE" {
		t.Fatalf("surface buttons = %+v", surface.buttons)
	}
}

func TestPauseCapability(t *testing.T) {
	plain := &fakeDevice{name: "Old TV"}
	capable := &pausableDevice{fakeDevice{name: "New TV"}}
	h := newHarness(plain, capable)
	ctx := context.Background()

	plainSession := h.registry.Create(mustToken(t, 42, 1), 900, plain, mediaMessage(42), nil, nil)
	if err := plainSession.Pause(ctx); !errors.Is(err, domain.ErrUnsupportedAction) {
		t.Fatalf("Pause on incapable device = %v, want ErrUnsupportedAction", err)
	}

	capableSession := h.registry.Create(mustToken(t, 43, 1), 900, capable, mediaMessage(43), nil, nil)
	if err := capableSession.Pause(ctx); err != nil {
		t.Fatal(err)
	}
	if got := h.messenger.last().text; !strings.HasPrefix(got, "Paused for file <code>43</code>") {
		t.Fatalf("surface after pause = %q", got)
	}
	if err := capableSession.Resume(ctx); err != nil {
		t.Fatal(err)
	}
	if got := h.messenger.last().text; !strings.HasPrefix(got, "Playing for file <code>43</code>") {
		t.Fatalf("surface after resume = %q", got)
	}
}

func TestStopRendersBeforeNoDeviceError(t *testing.T) {
	h := newHarness()
	session := h.registry.Create(mustToken(t, 42, 7), 900, nil, mediaMessage(42), nil, nil)

	err := session.Stop(context.Background())
	if !errors.Is(err, domain.ErrNoDevice) {
		t.Fatalf("Stop without device = %v, want ErrNoDevice", err)
	}
	// The stopped surface still rendered despite the error.
	if got := h.messenger.last().text; got != "Controller for file <code>42</code> on device <code>NONE</code>" {
		t.Fatalf("surface = %q", got)
	}
}

func TestStopSwallowsDeviceFailure(t *testing.T) {
	device := &fakeDevice{name: "Flaky TV", failStop: true}
	h := newHarness(device)
	session := h.registry.Create(mustToken(t, 42, 7), 900, device, mediaMessage(42), nil, nil)

	if err := session.Stop(context.Background()); err != nil {
		t.Fatalf("Stop with failing device = %v, want nil", err)
	}
	if got := h.messenger.last().text; got != "Controller for file <code>42</code> on device <code>Flaky TV</code>" {
		t.Fatalf("surface = %q", got)
	}
}

func TestSelectDeviceRerenderIsIdempotent(t *testing.T) {
	device := &fakeDevice{name: "TV"}
	h := newHarness(device)
	control := domain.ControlMessage{ID: 5, ChatID: 900}
	session := h.registry.Create(mustToken(t, 42, 7), 900, nil, mediaMessage(42), &control, nil)
	ctx := context.Background()

	if err := session.SelectDevice(ctx, device); err != nil {
		t.Fatal(err)
	}
	// The second render produces identical content; the unchanged edit is
	// not an error.
	if err := session.SelectDevice(ctx, device); err != nil {
		t.Fatalf("idempotent re-render = %v, want nil", err)
	}
}

func TestParseDeviceName(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"Controller for file 42 on device TV-Room", "TV-Room"},
		{"Controller for file <code>42</code> on device <code>TV-Room</code>", "TV-Room"},
		{"Streaming closed for file 42 on device TV-Room, 70.00% remains", "TV-Room"},
		{"Controller for file 42 on device NONE", ""},
		{"Select a device", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := ParseDeviceName(tc.text); got != tc.want {
			t.Errorf("ParseDeviceName(%q) = %q, want %q", tc.text, got, tc.want)
		}
	}
}

func TestReconstructAfterRestart(t *testing.T) {
	device := &fakeDevice{name: "TV-Room"}
	h := newHarness(device)
	h.backend.messages[42] = mediaMessage(42)
	token := mustToken(t, 42, 7)

	// The session map is empty, as after a restart. The control message's
	// last rendered text is all the state there is.
	control := domain.ControlMessage{
		ID:      5,
		ChatID:  900,
		ReplyTo: 42,
		Text:    "Controller for file 42 on device TV-Room",
	}
	session, err := h.registry.GetOrReconstruct(context.Background(), token, 900, control)
	if err != nil {
		t.Fatal(err)
	}
	if session.device == nil || session.device.Name() != "TV-Room" {
		t.Fatalf("reconstructed device = %v, want TV-Room", session.device)
	}
	if session.state != StateSelected {
		t.Fatalf("reconstructed state = %q, want %q", session.state, StateSelected)
	}

	// A second lookup returns the live session.
	again, err := h.registry.GetOrReconstruct(context.Background(), token, 900, control)
	if err != nil {
		t.Fatal(err)
	}
	if again != session {
		t.Fatal("second lookup rebuilt a new session")
	}
}

func TestReconstructUnknownDeviceStaysUnbound(t *testing.T) {
	h := newHarness()
	h.backend.messages[42] = mediaMessage(42)
	control := domain.ControlMessage{ID: 5, ChatID: 900, Text: "Controller for file 42 on device Gone-TV"}

	session, err := h.registry.GetOrReconstruct(context.Background(), mustToken(t, 42, 7), 900, control)
	if err != nil {
		t.Fatal(err)
	}
	if session.device != nil {
		t.Fatalf("device = %v, want unbound", session.device)
	}
	if session.state != StateNoDevice {
		t.Fatalf("state = %q, want %q", session.state, StateNoDevice)
	}
}

func TestHandleClosedRendersAndRevokes(t *testing.T) {
	device := &fakeDevice{name: "TV"}
	h := newHarness(device)
	token := mustToken(t, 42, 7)
	session := h.registry.Create(token, 900, device, mediaMessage(42), nil, nil)

	if err := session.Play(context.Background()); err != nil {
		t.Fatal(err)
	}

	h.registry.HandleClosed(context.Background(), token, 0.7)

	if got := h.messenger.last().text; got != "Streaming closed for file <code>42</code> on device <code>TV</code>, 70.00% remains" {
		t.Fatalf("closed surface = %q", got)
	}
	if device.commands[len(device.commands)-1] != "close" {
		t.Fatalf("device commands = %v, want trailing close", device.commands)
	}
	if h.gateway.authorized[token] {
		t.Fatal("token still authorized after close")
	}
	if len(h.registry.Snapshot()) != 0 {
		t.Fatal("session survived close")
	}
}

func TestDispatcherReportsUnsupportedAction(t *testing.T) {
	device := &fakeDevice{name: "Old TV"}
	h := newHarness(device)
	token := mustToken(t, 42, 7)
	h.registry.Create(token, 900, device, mediaMessage(42), nil, nil)
	dispatcher := NewDispatcher(h.registry, h.backend, h.directory, discardLogger())

	ev := domain.CallbackEvent{
		UserID:  900,
		Data:    fmt.Sprintf("c:%s:PAUSE", token),
		Control: domain.ControlMessage{ID: 5, ChatID: 900},
	}
	if err := dispatcher.HandleCallback(context.Background(), ev); err != nil {
		t.Fatalf("HandleCallback = %v, want handled", err)
	}
	if len(h.backend.replies) != 1 || h.backend.replies[0] != "Action not supported on this device" {
		t.Fatalf("replies = %v", h.backend.replies)
	}
}

func TestDispatcherSelectsDevice(t *testing.T) {
	device := &fakeDevice{name: "TV-Room"}
	h := newHarness(device)
	token := mustToken(t, 42, 7)
	session := h.registry.Create(token, 900, nil, mediaMessage(42), nil, nil)
	dispatcher := NewDispatcher(h.registry, h.backend, h.directory, discardLogger())

	ev := domain.CallbackEvent{
		UserID:  900,
		Data:    fmt.Sprintf("s:%s:TV-Room", token),
		Control: domain.ControlMessage{ID: 5, ChatID: 900},
	}
	if err := dispatcher.HandleCallback(context.Background(), ev); err != nil {
		t.Fatal(err)
	}
	if session.device == nil || session.device.Name() != "TV-Room" {
		t.Fatalf("device after select = %v", session.device)
	}
	if got := h.messenger.last().text; got != "Controller for file <code>42</code> on device <code>TV-Room</code>" {
		t.Fatalf("surface = %q", got)
	}
}

func TestHandleMediaRendersSelector(t *testing.T) {
	device := &fakeDevice{name: "TV"}
	h := newHarness(device)
	dispatcher := NewDispatcher(h.registry, h.backend, h.directory, discardLogger())

	if err := dispatcher.HandleMedia(context.Background(), mediaMessage(42)); err != nil {
		t.Fatal(err)
	}

	surface := h.messenger.last()
	if surface.text != "Select a device" {
		t.Fatalf("surface text = %q", surface.text)
	}
	if len(surface.buttons) != 2 {
		t.Fatalf("button rows = %d, want device row plus refresh", len(surface.buttons))
	}
	if surface.buttons[0][0].Text != "TV" || surface.buttons[1][0].Text != "REFRESH" {
		t.Fatalf("buttons = %+v", surface.buttons)
	}

	states := h.registry.Snapshot()
	if len(states) != 1 || states[0].MessageID != 42 || states[0].State != StateNoDevice {
		t.Fatalf("snapshot = %+v", states)
	}
}

func TestHandleMediaRejectsNonDocument(t *testing.T) {
	h := newHarness()
	dispatcher := NewDispatcher(h.registry, h.backend, h.directory, discardLogger())

	msg := domain.MediaMessage{ID: 42, ChatID: 900, FromID: 900}
	if err := dispatcher.HandleMedia(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if len(h.backend.replies) != 1 {
		t.Fatalf("replies = %v, want unsupported-media reply", h.backend.replies)
	}
	if len(h.registry.Snapshot()) != 0 {
		t.Fatal("session created for non-streamable media")
	}
}
