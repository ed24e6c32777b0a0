// Package notify fans recorded access events out to door controllers.
package notify

import (
	"context"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

// Notifier publishes a recorded access event.  Publishing is best effort:
// the audit record is authoritative and callers only log failures.
type Notifier interface {
	Publish(ctx context.Context, ev types.AccessEvent) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, types.AccessEvent) error { return nil }
