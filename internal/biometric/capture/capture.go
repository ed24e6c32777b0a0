// Package capture abstracts the fingerprint reader that produces raw
// templates for enrollment and verification.
//
// Two variants implement Device: Simulated, which derives templates from a
// keyed hash and needs no hardware, and Hardware, which talks to a reader
// driver over gRPC.  The variant is chosen once at construction.
package capture

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Mode int

const (
	ModeEnrollment Mode = iota + 1
	ModeVerification
)

func (m Mode) String() string {
	switch m {
	case ModeEnrollment:
		return "enrollment"
	case ModeVerification:
		return "verification"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

const (
	StatusConnected    = "connected"
	StatusDisconnected = "disconnected"
)

type DeviceInfo struct {
	ID       string `json:"id"`
	Firmware string `json:"firmware"`
	Status   string `json:"status"`
	Source   string `json:"source"`
}

// Device is the capture capability.  Implementations must honour ctx on
// Capture since hardware reads can block.
type Device interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Capture(ctx context.Context, mode Mode) ([]byte, error)
	Info() DeviceInfo
}

// ── Errors ───────────────────────────────────────────────────────────────────

type Kind int

const (
	KindNotConnected Kind = iota + 1
	KindTimeout
	KindDeviceFault
)

func (k Kind) String() string {
	switch k {
	case KindNotConnected:
		return "not_connected"
	case KindTimeout:
		return "timeout"
	case KindDeviceFault:
		return "device_fault"
	default:
		return "unknown"
	}
}

var (
	ErrNotConnected = errors.New("capture device not connected")
	ErrTimeout      = errors.New("capture timed out")
	ErrDeviceFault  = errors.New("capture device fault")
)

// Error is the typed failure of a capture operation.  errors.Is matches the
// sentinel for its Kind.
type Error struct {
	Kind     Kind
	DeviceID string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("capture %s on %s: %v", e.Kind, e.DeviceID, e.Err)
	}
	return fmt.Sprintf("capture %s on %s", e.Kind, e.DeviceID)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotConnected:
		return e.Kind == KindNotConnected
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrDeviceFault:
		return e.Kind == KindDeviceFault
	}
	return false
}

func newError(kind Kind, deviceID string, err error) *Error {
	return &Error{Kind: kind, DeviceID: deviceID, Err: err}
}

// KindOf reports the capture error kind carried by err, or 0.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}

// WithTimeout runs one capture bounded by d.  A deadline hit is reported as a
// Timeout capture error; cancellation by the caller is returned as the
// context error so it is not mistaken for a device problem.
func WithTimeout(ctx context.Context, dev Device, mode Mode, d time.Duration) ([]byte, error) {
	if d <= 0 {
		return dev.Capture(ctx, mode)
	}

	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	raw, err := dev.Capture(cctx, mode)
	if err == nil {
		return raw, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(cctx.Err(), context.DeadlineExceeded) {
		if KindOf(err) == KindTimeout {
			return nil, err
		}
		return nil, newError(KindTimeout, dev.Info().ID, fmt.Errorf("no read within %s", d))
	}
	return nil, err
}
