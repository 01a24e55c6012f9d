package locks

import (
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/centrixhq/centrix/internal/bus"
	"github.com/centrixhq/centrix/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()
	db, err := database.NewDatabase(filepath.Join(t.TempDir(), "ctl.db"))
	require.NoError(t, err)

	clock := &fakeClock{now: time.Now()}
	busService := bus.NewService(db)
	busService.Clock = clock.Now
	service := NewService(db, busService)
	service.Clock = clock.Now
	return service, clock
}

func TestAcquireIsExclusive(t *testing.T) {
	service, _ := newTestService(t)

	ok, err := service.Acquire("svc.control", "owner-a", 30)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = service.Acquire("svc.control", "owner-b", 30)
	require.NoError(t, err)
	assert.False(t, ok, "second acquire must fail while the lease is live")
}

func TestAcquireAfterTTLElapsed(t *testing.T) {
	service, clock := newTestService(t)

	ok, err := service.Acquire("svc.control", "owner-a", 30)
	require.NoError(t, err)
	require.True(t, ok)

	clock.Advance(31 * time.Second)

	count, err := service.Reap()
	require.NoError(t, err)
	assert.Equal(t, 1, count, "reap should remove the stale lease")

	ok, err = service.Acquire("svc.control", "owner-b", 30)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExpiredLeaseIsOverwrittenWithoutReap(t *testing.T) {
	service, clock := newTestService(t)

	ok, err := service.Acquire("res", "owner-a", 10)
	require.NoError(t, err)
	require.True(t, ok)

	// Not reclaimable before the TTL boundary.
	clock.Advance(9 * time.Second)
	ok, err = service.Acquire("res", "owner-b", 10)
	require.NoError(t, err)
	assert.False(t, ok)

	clock.Advance(1 * time.Second)
	ok, err = service.Acquire("res", "owner-b", 10)
	require.NoError(t, err)
	assert.True(t, ok, "an elapsed lease is directly re-acquirable")

	locks, err := service.List()
	require.NoError(t, err)
	require.Len(t, locks, 1)
	assert.Equal(t, "owner-b", locks[0].Owner)
}

func TestReleaseRequiresOwner(t *testing.T) {
	service, _ := newTestService(t)

	ok, err := service.Acquire("res", "owner-a", 30)
	require.NoError(t, err)
	require.True(t, ok)

	// A late release from a different owner must not remove the lease.
	require.NoError(t, service.Release("res", "owner-b"))
	locks, err := service.List()
	require.NoError(t, err)
	require.Len(t, locks, 1)

	require.NoError(t, service.Release("res", "owner-a"))
	locks, err = service.List()
	require.NoError(t, err)
	assert.Empty(t, locks)
}

func TestReapIsIdempotent(t *testing.T) {
	service, clock := newTestService(t)

	for _, name := range []string{"a", "b", "c"} {
		ok, err := service.Acquire(name, "owner", 5)
		require.NoError(t, err)
		require.True(t, ok)
	}

	clock.Advance(6 * time.Second)

	count, err := service.Reap()
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = service.Reap()
	require.NoError(t, err)
	assert.Zero(t, count, "second reap finds nothing")
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	service, _ := newTestService(t)

	const contenders = 8
	var wg sync.WaitGroup
	wins := make(chan string, contenders)

	for i := 0; i < contenders; i++ {
		owner := string(rune('a' + i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := service.Acquire("contested", owner, 30)
			require.NoError(t, err)
			if ok {
				wins <- owner
			}
		}()
	}
	wg.Wait()
	close(wins)

	assert.Len(t, collect(wins), 1, "exactly one contender may win")
}

func TestWithLockReleasesAfterUse(t *testing.T) {
	service, _ := newTestService(t)

	ran := false
	err := service.WithLock("res", "owner-a", 30, func() error {
		ran = true
		held, err := service.Acquire("res", "owner-b", 30)
		require.NoError(t, err)
		assert.False(t, held)
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	ok, err := service.Acquire("res", "owner-b", 30)
	require.NoError(t, err)
	assert.True(t, ok, "lock released once fn returns")
}

func TestWithLockContention(t *testing.T) {
	service, _ := newTestService(t)

	ok, err := service.Acquire("res", "owner-a", 30)
	require.NoError(t, err)
	require.True(t, ok)

	err = service.WithLock("res", "owner-b", 30, func() error {
		t.Fatal("fn must not run under contention")
		return nil
	})
	assert.ErrorIs(t, err, ErrHeld)
}

func collect(ch chan string) []string {
	var out []string
	for v := range ch {
		out = append(out, v)
	}
	return out
}
