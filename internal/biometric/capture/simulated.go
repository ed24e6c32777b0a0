package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

const (
	defaultSimulatedID       = "SIM-READER-001"
	defaultSimulatedFirmware = "1.0.0"
	defaultSessionKey        = "portunus-simulator-session"

	// universalProbeLabel keys the template every verification capture
	// returns, standing in for "the same finger presented again".
	universalProbeLabel = "fixed_simulation_key"
)

type SimulatedConfig struct {
	DeviceID string
	Firmware string
	// SessionKey keys the template hash (1..64 bytes).  Templates from
	// simulators with different keys never collide.
	SessionKey []byte
	// ReadDelay simulates a blocking sensor read.
	ReadDelay time.Duration
	Now       func() time.Time
}

// Simulated is a reader with no hardware behind it.  Templates are
// base64(BLAKE2b-256 keyed by the session key over a label).  It owns
// capture only; enrolled templates live in the enrollment store.
type Simulated struct {
	cfg SimulatedConfig

	mu        sync.Mutex
	connected bool
	available bool
	seq       uint64
	fault     error
}

func NewSimulated(cfg SimulatedConfig) (*Simulated, error) {
	if cfg.DeviceID == "" {
		cfg.DeviceID = defaultSimulatedID
	}
	if cfg.Firmware == "" {
		cfg.Firmware = defaultSimulatedFirmware
	}
	if len(cfg.SessionKey) == 0 {
		cfg.SessionKey = []byte(defaultSessionKey)
	}
	if len(cfg.SessionKey) > blake2b.Size {
		return nil, fmt.Errorf("simulator session key must be at most %d bytes", blake2b.Size)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Simulated{cfg: cfg, available: true}, nil
}

func (s *Simulated) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.available {
		return newError(KindNotConnected, s.cfg.DeviceID, errors.New("simulated device unavailable"))
	}
	s.connected = true
	return nil
}

func (s *Simulated) Disconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

// SetAvailable simulates unplugging (false) or re-plugging (true) the
// reader.  Unplugging also drops the current connection.
func (s *Simulated) SetAvailable(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available = ok
	if !ok {
		s.connected = false
	}
}

// InjectFault makes the next Capture fail with a DeviceFault wrapping err.
func (s *Simulated) InjectFault(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = err
}

func (s *Simulated) Info() DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := StatusDisconnected
	if s.connected {
		status = StatusConnected
	}
	return DeviceInfo{
		ID:       s.cfg.DeviceID,
		Firmware: s.cfg.Firmware,
		Status:   status,
		Source:   "simulated",
	}
}

func (s *Simulated) Capture(ctx context.Context, mode Mode) ([]byte, error) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil, newError(KindNotConnected, s.cfg.DeviceID, nil)
	}
	if s.fault != nil {
		err := s.fault
		s.fault = nil
		s.mu.Unlock()
		return nil, newError(KindDeviceFault, s.cfg.DeviceID, err)
	}
	s.seq++
	seq := s.seq
	s.mu.Unlock()

	if s.cfg.ReadDelay > 0 {
		t := time.NewTimer(s.cfg.ReadDelay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, newError(KindTimeout, s.cfg.DeviceID, ctx.Err())
			}
			return nil, ctx.Err()
		}
	}

	switch mode {
	case ModeVerification:
		return s.template(universalProbeLabel), nil
	case ModeEnrollment:
		label := fmt.Sprintf("user_template_%d-%d", s.cfg.Now().UnixNano(), seq)
		return s.template(label), nil
	default:
		return nil, newError(KindDeviceFault, s.cfg.DeviceID, fmt.Errorf("unsupported %s", mode))
	}
}

// UniversalProbe returns the template every verification capture yields.
func (s *Simulated) UniversalProbe() []byte {
	return s.template(universalProbeLabel)
}

func (s *Simulated) template(label string) []byte {
	h, err := blake2b.New256(s.cfg.SessionKey)
	if err != nil {
		// Key length is checked in NewSimulated.
		panic(err)
	}
	h.Write([]byte(label))
	sum := h.Sum(nil)

	out := make([]byte, base64.StdEncoding.EncodedLen(len(sum)))
	base64.StdEncoding.Encode(out, sum)
	return out
}
