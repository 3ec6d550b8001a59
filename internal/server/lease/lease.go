// Package lease provides single-holder, TTL-bounded locks used to keep sync
// runs of one source mutually exclusive.
package lease

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrHeld is returned by Acquire when another holder owns the key.
	ErrHeld = errors.New("lease held by another holder")
	// ErrNotHeld is returned by Release when the lease expired or was taken
	// over before it was released.
	ErrNotHeld = errors.New("lease not held")
)

// Lease identifies one successful acquisition.
type Lease struct {
	Key   string
	Token string
}

// Locker acquires and releases leases. Acquire never blocks waiting for the
// current holder; ttl bounds how long a crashed holder can keep the key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)
	Release(ctx context.Context, l *Lease) error
}

// SyncKey is the lease key guarding sync runs of source.
func SyncKey(source string) string {
	return "regmirror:sync:" + source
}
