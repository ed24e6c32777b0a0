package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/biometric/capture"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/biometric/match"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

var ErrInvalidSubjectID = errors.New("subject_id is required")

// Encrypter seals a raw template for storage.  *codec.Codec satisfies it.
type Encrypter interface {
	Encrypt(template []byte) ([]byte, error)
}

// EnrollmentService stores and administers subject templates.
type EnrollmentService struct {
	device         capture.Device
	codec          Encrypter
	store          store.EnrollmentStore
	log            logrus.FieldLogger
	captureTimeout time.Duration
	now            func() time.Time
}

func NewEnrollmentService(dev capture.Device, c Encrypter, es store.EnrollmentStore, log logrus.FieldLogger, captureTimeout time.Duration) *EnrollmentService {
	return &EnrollmentService{
		device:         dev,
		codec:          c,
		store:          es,
		log:            componentLogger(log, "enrollment"),
		captureTimeout: captureTimeout,
		now:            time.Now,
	}
}

// Enroll encrypts and stores a template for subjectID, replacing any
// previous one.  An empty template is captured from the device in
// enrollment mode.
func (s *EnrollmentService) Enroll(ctx context.Context, subjectID string, template string) (types.EnrolledTemplate, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return types.EnrolledTemplate{}, ErrInvalidSubjectID
	}

	raw := []byte(strings.TrimSpace(template))
	if len(raw) == 0 {
		if s.device == nil {
			return types.EnrolledTemplate{}, ErrNoCaptureDevice
		}
		captured, err := capture.WithTimeout(ctx, s.device, capture.ModeEnrollment, s.captureTimeout)
		if err != nil {
			return types.EnrolledTemplate{}, fmt.Errorf("Enroll %s: %w", subjectID, err)
		}
		raw = captured
	}
	if !match.ValidTemplate(raw) {
		return types.EnrolledTemplate{}, fmt.Errorf("Enroll %s: %w", subjectID, match.ErrTemplateFormat)
	}

	ct, err := s.codec.Encrypt(raw)
	if err != nil {
		return types.EnrolledTemplate{}, fmt.Errorf("Enroll %s: %w", subjectID, err)
	}

	rec, err := s.store.Upsert(ctx, subjectID, ct, s.now().UTC())
	if err != nil {
		return types.EnrolledTemplate{}, fmt.Errorf("Enroll %s: %w", subjectID, err)
	}

	s.log.WithField("subject_id", subjectID).Info("template enrolled")
	return rec, nil
}

func (s *EnrollmentService) Activate(ctx context.Context, subjectID string) (types.EnrolledTemplate, error) {
	return s.setActive(ctx, subjectID, true)
}

// Deactivate removes subjectID from matching without deleting its template.
func (s *EnrollmentService) Deactivate(ctx context.Context, subjectID string) (types.EnrolledTemplate, error) {
	return s.setActive(ctx, subjectID, false)
}

func (s *EnrollmentService) setActive(ctx context.Context, subjectID string, active bool) (types.EnrolledTemplate, error) {
	subjectID = strings.TrimSpace(subjectID)
	if subjectID == "" {
		return types.EnrolledTemplate{}, ErrInvalidSubjectID
	}
	rec, err := s.store.SetActive(ctx, subjectID, active, s.now().UTC())
	if err != nil {
		return types.EnrolledTemplate{}, fmt.Errorf("SetActive %s: %w", subjectID, err)
	}
	s.log.WithFields(logrus.Fields{"subject_id": subjectID, "active": active}).Info("enrollment state changed")
	return rec, nil
}
