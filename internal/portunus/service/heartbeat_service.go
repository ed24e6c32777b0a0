package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/metrics"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/store"
	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

var (
	ErrInvalidDeviceID = errors.New("device_id is required")
)

// HeartbeatService records reader liveness reports.
type HeartbeatService struct {
	heartbeatStore store.HeartbeatStore
	registry       *DeviceRegistry
	metrics        *metrics.Metrics
	log            logrus.FieldLogger
}

func NewHeartbeatService(hs store.HeartbeatStore, reg *DeviceRegistry, m *metrics.Metrics, log logrus.FieldLogger) *HeartbeatService {
	return &HeartbeatService{
		heartbeatStore: hs,
		registry:       reg,
		metrics:        m,
		log:            componentLogger(log, "heartbeat"),
	}
}

func (s *HeartbeatService) Record(ctx context.Context, req types.HeartbeatRequest) (types.HeartbeatResponse, error) {
	deviceID := strings.TrimSpace(req.DeviceID)
	if deviceID == "" {
		return types.HeartbeatResponse{}, ErrInvalidDeviceID
	}
	req.DeviceID = deviceID

	known, err := s.registry.IsKnown(ctx, deviceID)
	if err != nil {
		return types.HeartbeatResponse{}, err
	}
	if err := s.registry.NoteSeen(ctx, deviceID, known); err != nil {
		s.log.WithError(err).WithField("device_id", deviceID).Warn("mark seen failed")
	}

	now := time.Now().UTC()
	rec := store.HeartbeatRecord{
		ReceivedAt: now,
		Request:    req,
	}

	if err := s.heartbeatStore.UpsertHeartbeat(ctx, deviceID, rec); err != nil {
		return types.HeartbeatResponse{}, err
	}
	s.metrics.IncHeartbeat(known)

	return types.HeartbeatResponse{
		OK:         true,
		Known:      known,
		DeviceID:   deviceID,
		ServerTime: now.Format(time.RFC3339Nano),
	}, nil
}

func componentLogger(log logrus.FieldLogger, component string) logrus.FieldLogger {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	return log.WithField("component", component)
}
