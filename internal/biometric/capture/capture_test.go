package capture_test

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/biometric/capture"
)

func newSim(t *testing.T, cfg capture.SimulatedConfig) *capture.Simulated {
	t.Helper()
	s, err := capture.NewSimulated(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Connect(context.Background()))
	return s
}

// ── Simulated ───────────────────────────────────────────────────────────────

func TestSimulated_VerificationIsStable(t *testing.T) {
	s := newSim(t, capture.SimulatedConfig{})
	ctx := context.Background()

	a, err := s.Capture(ctx, capture.ModeVerification)
	require.NoError(t, err)
	b, err := s.Capture(ctx, capture.ModeVerification)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, s.UniversalProbe(), a)

	_, err = base64.StdEncoding.DecodeString(string(a))
	assert.NoError(t, err, "template should be standard base64")
}

func TestSimulated_EnrollmentDiffers(t *testing.T) {
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := newSim(t, capture.SimulatedConfig{Now: func() time.Time { return fixed }})
	ctx := context.Background()

	a, err := s.Capture(ctx, capture.ModeEnrollment)
	require.NoError(t, err)
	b, err := s.Capture(ctx, capture.ModeEnrollment)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "sequence salt must separate same-instant captures")
	assert.NotEqual(t, s.UniversalProbe(), a)
}

func TestSimulated_SessionKeySeparatesTemplates(t *testing.T) {
	a := newSim(t, capture.SimulatedConfig{SessionKey: []byte("key-a")})
	b := newSim(t, capture.SimulatedConfig{SessionKey: []byte("key-b")})
	assert.NotEqual(t, a.UniversalProbe(), b.UniversalProbe())
}

func TestSimulated_RejectsLongKey(t *testing.T) {
	_, err := capture.NewSimulated(capture.SimulatedConfig{SessionKey: make([]byte, 65)})
	require.Error(t, err)
}

func TestSimulated_NotConnected(t *testing.T) {
	s, err := capture.NewSimulated(capture.SimulatedConfig{DeviceID: "SIM-1"})
	require.NoError(t, err)

	_, err = s.Capture(context.Background(), capture.ModeVerification)
	require.ErrorIs(t, err, capture.ErrNotConnected)
	assert.Equal(t, capture.KindNotConnected, capture.KindOf(err))
	assert.Equal(t, capture.StatusDisconnected, s.Info().Status)

	s.SetAvailable(false)
	require.ErrorIs(t, s.Connect(context.Background()), capture.ErrNotConnected)

	s.SetAvailable(true)
	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, capture.StatusConnected, s.Info().Status)
	assert.Equal(t, "SIM-1", s.Info().ID)
}

func TestSimulated_InjectFaultIsOneShot(t *testing.T) {
	s := newSim(t, capture.SimulatedConfig{})
	s.InjectFault(errors.New("sensor smudged"))

	_, err := s.Capture(context.Background(), capture.ModeVerification)
	require.ErrorIs(t, err, capture.ErrDeviceFault)
	assert.Contains(t, err.Error(), "sensor smudged")

	_, err = s.Capture(context.Background(), capture.ModeVerification)
	require.NoError(t, err)
}

// ── WithTimeout ─────────────────────────────────────────────────────────────

func TestWithTimeout_DeadlineBecomesTimeout(t *testing.T) {
	s := newSim(t, capture.SimulatedConfig{ReadDelay: time.Second})

	raw, err := capture.WithTimeout(context.Background(), s, capture.ModeVerification, 20*time.Millisecond)
	require.ErrorIs(t, err, capture.ErrTimeout)
	assert.Nil(t, raw)
}

func TestWithTimeout_CallerCancel(t *testing.T) {
	s := newSim(t, capture.SimulatedConfig{ReadDelay: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := capture.WithTimeout(ctx, s, capture.ModeVerification, time.Minute)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, capture.Kind(0), capture.KindOf(err))
}

func TestWithTimeout_FastRead(t *testing.T) {
	s := newSim(t, capture.SimulatedConfig{ReadDelay: time.Millisecond})

	raw, err := capture.WithTimeout(context.Background(), s, capture.ModeVerification, time.Second)
	require.NoError(t, err)
	assert.Equal(t, s.UniversalProbe(), raw)
}
