// Package locks implements named TTL leases over the shared store. Leases
// substitute for a dedicated lock service in a single-node, multi-process
// deployment: any process may reclaim an abandoned lease once its TTL has
// elapsed, without detecting liveness of the original holder.
package locks

import (
	"errors"
	"time"

	"github.com/centrixhq/centrix/internal/bus"
	"github.com/centrixhq/centrix/internal/types"
	"gorm.io/gorm"
)

// ErrHeld is returned by WithLock when the lease is live. Contention is a
// normal outcome, not a fault; callers retry or abandon.
var ErrHeld = errors.New("lock is held")

// Service manages lock leases.
type Service struct {
	db  *Database
	bus *bus.Service

	// Clock supplies the current time so expiry is a pure function of
	// stored timestamps; tests substitute a simulated clock.
	Clock func() time.Time
}

// NewService creates a lock manager sharing the given database connection.
func NewService(gormDB *gorm.DB, busService *bus.Service) *Service {
	return &Service{
		db:    NewDatabase(gormDB),
		bus:   busService,
		Clock: time.Now,
	}
}

// Acquire attempts to take the named lease for owner. It succeeds iff no
// live row exists; an expired row is overwritten. Non-blocking: contention
// returns false immediately.
func (s *Service) Acquire(name, owner string, ttlSec int64) (bool, error) {
	now := types.EpochMS(s.Clock())
	lock := &types.Lock{
		Name:       name,
		Owner:      owner,
		AcquiredAt: now,
		TTLSec:     ttlSec,
	}
	return s.db.UpsertIfExpired(lock, now)
}

// Release drops the lease only when owner still holds it. A late release
// after a TTL-driven reclaim must not remove another owner's lease, so an
// owner mismatch is a silent no-op.
func (s *Service) Release(name, owner string) error {
	_, err := s.db.DeleteOwned(name, owner)
	return err
}

// Reap deletes every lease whose TTL has elapsed and returns the count
// removed. Safe to call repeatedly and concurrently. The original holder is
// not notified; it may still be running, which is why reclaimed work must be
// idempotent on the caller's side.
func (s *Service) Reap() (int, error) {
	now := types.EpochMS(s.Clock())
	expired, err := s.db.Expired(now)
	if err != nil {
		return 0, err
	}

	reaped := 0
	for _, lock := range expired {
		removed, err := s.db.DeleteExpired(lock.Name, now)
		if err != nil {
			return reaped, err
		}
		if !removed {
			continue
		}
		reaped++
		_, _ = s.bus.Emit("lock.reaped", types.LevelWarn, map[string]interface{}{
			"name":        lock.Name,
			"owner":       lock.Owner,
			"acquired_at": lock.AcquiredAt,
			"ttl_sec":     lock.TTLSec,
			"message":     "lock lease elapsed and was reclaimed",
		}, "")
	}
	return reaped, nil
}

// List returns a read-only snapshot of all leases.
func (s *Service) List() ([]types.Lock, error) {
	return s.db.List()
}

// WithLock runs fn while holding the named lease, releasing it afterwards.
// Returns ErrHeld without running fn when the lease is contended.
func (s *Service) WithLock(name, owner string, ttlSec int64, fn func() error) error {
	ok, err := s.Acquire(name, owner, ttlSec)
	if err != nil {
		return err
	}
	if !ok {
		return ErrHeld
	}
	defer func() {
		if err := s.Release(name, owner); err != nil {
			_, _ = s.bus.Emit("lock.release_failed", types.LevelWarn, map[string]interface{}{
				"name":    name,
				"owner":   owner,
				"message": "failed to release lock after use",
			}, "")
		}
	}()
	return fn()
}
