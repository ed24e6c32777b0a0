package store

import (
	"context"
	"time"
)

// DeviceStore tracks which capture readers may submit verifications.
type DeviceStore interface {
	IsKnown(ctx context.Context, deviceID string) (bool, error)
	MarkSeen(ctx context.Context, deviceID string, known bool, t time.Time) error
}
