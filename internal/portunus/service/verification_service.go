package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/biometric/capture"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/biometric/match"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/metrics"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/notify"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

var (
	ErrUnknownDevice   = errors.New("device is not registered")
	ErrNoCaptureDevice = errors.New("no capture device configured")
)

// Failure reasons reported in VerifyResult.Reason for a failed attempt.
const (
	ReasonGranted        = "granted"
	ReasonNoMatch        = "no_match"
	ReasonTemplateFormat = "template_format"
	ReasonNotConnected   = "capture_not_connected"
	ReasonTimeout        = "capture_timeout"
	ReasonDeviceFault    = "capture_device_fault"
	ReasonStorage        = "storage"
	ReasonUnknownDevice  = "unknown_device"
	ReasonCancelled      = "cancelled"
)

// Identifier runs one identification against a population snapshot.
// *match.Engine satisfies it.
type Identifier interface {
	Identify(ctx context.Context, probe []byte, population []types.Candidate) (types.MatchResult, error)
}

type VerificationConfig struct {
	CaptureTimeout        time.Duration
	MaxConcurrentAttempts int64
	// RejectUnknownDevices refuses attempts from readers that are not
	// commissioned in the registry.
	RejectUnknownDevices bool
}

// VerifyResult is where an attempt ended.  Event is zero unless State is
// StateRecorded.
type VerifyResult struct {
	State  types.AttemptState
	Match  types.MatchResult
	Event  types.AccessEvent
	Reason string
}

// VerificationService drives one attempt through
// capturing → matching → resolving → recorded.  Any failure ends the
// attempt in StateFailed without writing an event.
type VerificationService struct {
	device      capture.Device
	identifier  Identifier
	enrollments store.EnrollmentStore
	resolver    *Resolver
	registry    *DeviceRegistry
	notifier    notify.Notifier
	metrics     *metrics.Metrics
	log         logrus.FieldLogger
	cfg         VerificationConfig
	sem         *semaphore.Weighted
	now         func() time.Time
}

func NewVerificationService(
	dev capture.Device,
	id Identifier,
	es store.EnrollmentStore,
	res *Resolver,
	reg *DeviceRegistry,
	n notify.Notifier,
	m *metrics.Metrics,
	log logrus.FieldLogger,
	cfg VerificationConfig,
) *VerificationService {
	if cfg.MaxConcurrentAttempts <= 0 {
		cfg.MaxConcurrentAttempts = 8
	}
	if n == nil {
		n = notify.Nop{}
	}
	return &VerificationService{
		device:      dev,
		identifier:  id,
		enrollments: es,
		resolver:    res,
		registry:    reg,
		notifier:    n,
		metrics:     m,
		log:         componentLogger(log, "verification"),
		cfg:         cfg,
		sem:         semaphore.NewWeighted(cfg.MaxConcurrentAttempts),
		now:         time.Now,
	}
}

// Verify runs one attempt.  The returned error is non-nil exactly when the
// result is StateFailed; a completed non-match is a recorded denied event
// and no error.
func (s *VerificationService) Verify(ctx context.Context, req types.VerifyRequest) (VerifyResult, error) {
	deviceID := strings.TrimSpace(req.DeviceID)
	supplied := strings.TrimSpace(req.Template)
	log := s.log.WithField("device_id", deviceID)
	if supplied == "" && s.device != nil {
		// Server-side captures are attributed to the reader that took them.
		if id := s.device.Info().ID; id != deviceID {
			if deviceID != "" {
				log.WithField("capture_device", id).Warn("device_id differs from capture device")
			}
			deviceID = id
			log = s.log.WithField("device_id", deviceID)
		}
	}

	if err := s.checkDevice(ctx, deviceID); err != nil {
		return s.fail(log, types.StateIdle, err)
	}

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return s.fail(log, types.StateIdle, err)
	}
	defer s.sem.Release(1)
	s.metrics.AddInFlight(1)
	defer s.metrics.AddInFlight(-1)

	// Capturing
	probe, err := s.probe(ctx, supplied)
	if err != nil {
		return s.fail(log, types.StateCapturing, err)
	}
	if !match.ValidTemplate(probe.RawTemplate) {
		return s.fail(log, types.StateCapturing, fmt.Errorf("Verify: %w", match.ErrTemplateFormat))
	}
	if err := ctx.Err(); err != nil {
		return s.fail(log, types.StateCapturing, err)
	}

	// Matching
	population, err := s.enrollments.ActivePopulation(ctx)
	if err != nil {
		return s.fail(log, types.StateMatching, err)
	}
	start := time.Now()
	result, err := s.identifier.Identify(ctx, probe.RawTemplate, population)
	s.metrics.ObserveMatch(time.Since(start))
	if err != nil {
		return s.fail(log, types.StateMatching, err)
	}

	// Resolving
	outcome := types.OutcomeDenied
	reason := ReasonNoMatch
	if result.Matched {
		outcome = types.OutcomeGranted
		reason = ReasonGranted
	}
	ev, err := s.resolver.Resolve(ctx, result.SubjectID, deviceID, outcome)
	if err != nil {
		return s.fail(log, types.StateResolving, err)
	}

	// Recorded
	s.metrics.IncAttempt(string(outcome))
	log.WithFields(logrus.Fields{
		"subject_id": ev.SubjectID,
		"direction":  ev.Direction,
		"outcome":    ev.Outcome,
		"event_id":   ev.ID,
		"source":     probe.Source,
		"candidates": len(population),
	}).Info("access event recorded")

	if err := s.notifier.Publish(ctx, ev); err != nil {
		log.WithError(err).WithField("event_id", ev.ID).Warn("publish access event failed")
	}

	return VerifyResult{
		State:  types.StateRecorded,
		Match:  result,
		Event:  ev,
		Reason: reason,
	}, nil
}

func (s *VerificationService) checkDevice(ctx context.Context, deviceID string) error {
	if deviceID == "" {
		if s.cfg.RejectUnknownDevices {
			return fmt.Errorf("Verify: device_id is required: %w", ErrUnknownDevice)
		}
		return nil
	}
	if s.registry == nil {
		return nil
	}
	known, err := s.registry.IsKnown(ctx, deviceID)
	if err != nil {
		return err
	}
	if err := s.registry.NoteSeen(ctx, deviceID, known); err != nil {
		s.log.WithError(err).WithField("device_id", deviceID).Warn("mark seen failed")
	}
	if !known && s.cfg.RejectUnknownDevices {
		return fmt.Errorf("Verify %s: %w", deviceID, ErrUnknownDevice)
	}
	return nil
}

// probe returns the template supplied by the reader or captures one from
// the configured device.
func (s *VerificationService) probe(ctx context.Context, supplied string) (types.ProbeCapture, error) {
	if supplied != "" {
		return types.ProbeCapture{
			RawTemplate: []byte(supplied),
			CapturedAt:  s.now().UTC(),
			Source:      types.SourceHardware,
		}, nil
	}
	if s.device == nil {
		return types.ProbeCapture{}, ErrNoCaptureDevice
	}

	raw, err := capture.WithTimeout(ctx, s.device, capture.ModeVerification, s.cfg.CaptureTimeout)
	if err != nil {
		return types.ProbeCapture{}, err
	}
	return types.ProbeCapture{
		RawTemplate: raw,
		CapturedAt:  s.now().UTC(),
		Source:      types.Source(s.device.Info().Source),
	}, nil
}

func (s *VerificationService) fail(log logrus.FieldLogger, at types.AttemptState, err error) (VerifyResult, error) {
	reason := FailureReason(err)
	s.metrics.IncAttempt("failed")
	s.metrics.IncFailure(reason)

	entry := log.WithError(err).WithFields(logrus.Fields{
		"state":  at,
		"reason": reason,
	})
	if reason == ReasonStorage || reason == ReasonDeviceFault {
		entry.Error("verification failed")
	} else {
		entry.Warn("verification failed")
	}

	return VerifyResult{State: types.StateFailed, Reason: reason}, err
}

// FailureReason classifies an attempt error.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, match.ErrTemplateFormat):
		return ReasonTemplateFormat
	case errors.Is(err, capture.ErrNotConnected), errors.Is(err, ErrNoCaptureDevice):
		return ReasonNotConnected
	case errors.Is(err, capture.ErrTimeout):
		return ReasonTimeout
	case errors.Is(err, capture.ErrDeviceFault):
		return ReasonDeviceFault
	case errors.Is(err, ErrUnknownDevice):
		return ReasonUnknownDevice
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCancelled
	default:
		return ReasonStorage
	}
}
