package state

import "context"

// Storage keys for the two durable records. No other durable state exists.
const (
	KeyActiveSession      = "activeSession"
	KeyPendingNavigations = "pendingNavigations"
)

// Store persists the two top-level records across process restarts. Reads and
// writes are sequentially consistent per key within one process; callers
// re-read rather than cache across suspension points.
type Store interface {
	// ActiveSession returns the current session, or nil when none is stored.
	ActiveSession(ctx context.Context) (*Session, error)
	SaveActiveSession(ctx context.Context, s *Session) error
	ClearActiveSession(ctx context.Context) error

	// PendingNavigations returns the full tab-id keyed mapping, never nil.
	PendingNavigations(ctx context.Context) (map[int]PendingNavigation, error)
	SavePendingNavigations(ctx context.Context, pending map[int]PendingNavigation) error

	// EnsureShape makes sure the pendingNavigations record exists so later
	// handlers can assume the mapping is present.
	EnsureShape(ctx context.Context) error

	Close() error
}
