package daily

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lectern-sync/lectern/pkg/errors"
	"github.com/lectern-sync/lectern/pkg/state"
)

func TestRunSkipsWhenAlreadyRanToday(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	store := state.NewStore(afero.NewMemMapFs(), "/library")

	ran := state.Empty()
	ran.RecordRun(clock.Now())
	require.NoError(t, store.Save(ran))

	polled := false
	synced := false
	controller := &Controller{
		Clock:     clock,
		Interval:  time.Minute,
		Available: func() bool { polled = true; return true },
		Sync:      func() error { synced = true; return nil },
		Store:     store,
	}

	assert.NoError(t, controller.Run())

	// The gate short-circuits before anything touches the portal.
	assert.False(t, polled)
	assert.False(t, synced)
}

func TestRunForceBypassesGate(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	store := state.NewStore(afero.NewMemMapFs(), "/library")

	ran := state.Empty()
	ran.RecordRun(clock.Now())
	require.NoError(t, store.Save(ran))

	synced := false
	controller := &Controller{
		Clock:     clock,
		Interval:  time.Minute,
		Force:     true,
		Available: func() bool { return true },
		Sync:      func() error { synced = true; return nil },
		Store:     store,
	}

	assert.NoError(t, controller.Run())
	assert.True(t, synced)
}

func TestRunWaitsForAvailability(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	store := state.NewStore(afero.NewMemMapFs(), "/library")

	polls := 0
	synced := false
	controller := &Controller{
		Clock:     clock,
		Interval:  5 * time.Minute,
		Available: func() bool { polls++; return polls > 3 },
		Sync:      func() error { synced = true; return nil },
		Store:     store,
	}

	done := make(chan error, 1)
	go func() { done <- controller.Run() }()

	for i := 0; i < 3; i++ {
		clock.BlockUntil(1)
		clock.Advance(5 * time.Minute)
	}
	assert.NoError(t, <-done)
	assert.True(t, synced)
	assert.Equal(t, 4, polls)

	// The run is recorded, so a restart the same day does nothing.
	loaded := store.Load()
	assert.True(t, loaded.RanOn(clock.Now()))
}

func TestRunRechecksGateAfterWaiting(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	store := state.NewStore(afero.NewMemMapFs(), "/library")

	synced := false
	available := make(chan bool, 2)
	available <- false
	available <- true
	controller := &Controller{
		Clock:     clock,
		Interval:  5 * time.Minute,
		Available: func() bool { return <-available },
		Sync:      func() error { synced = true; return nil },
		Store:     store,
	}

	done := make(chan error, 1)
	go func() { done <- controller.Run() }()

	// While this device waited, another device sharing the library ran
	// today's pass and the state file arrived via file sync.
	clock.BlockUntil(1)
	other := state.Empty()
	other.RecordRun(clock.Now())
	require.NoError(t, store.Save(other))
	clock.Advance(5 * time.Minute)

	assert.NoError(t, <-done)
	assert.False(t, synced)
}

func TestRunRecordsDateEvenOnFailure(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC))
	store := state.NewStore(afero.NewMemMapFs(), "/library")

	syncErr := errors.New("portal down")
	controller := &Controller{
		Clock:     clock,
		Interval:  time.Minute,
		Available: func() bool { return true },
		Sync:      func() error { return syncErr },
		Store:     store,
	}

	assert.Equal(t, syncErr, controller.Run())

	// A failed pass still counts as attempted: retrying every poll for the
	// rest of the day would hammer the portal for nothing.
	loaded := store.Load()
	assert.True(t, loaded.RanOn(clock.Now()))
}
