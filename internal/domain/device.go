package domain

import "context"

// Device is a controllable cast target. Every device supports the required
// capability set below; pause/resume is optional and queried by asserting
// the PauseResumer interface.
type Device interface {
	Name() string
	Play(ctx context.Context, uri, filename string, token Token) error
	Stop(ctx context.Context) error
	OnClose(ctx context.Context, token Token) error
}

// PauseResumer is the optional pause/resume capability. Devices that do not
// implement it reject pause and resume with ErrUnsupportedAction at the
// session layer.
type PauseResumer interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
}
