// Package daily implements the once-per-day sync loop: wait until a portal
// session is available, run one full pass, record the date, exit. The
// process is started on login (cron @reboot, systemd user unit) and killed
// externally; it holds no long-lived resources.
package daily

import (
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"

	"github.com/lectern-sync/lectern/pkg/state"
)

// Controller drives the wait-then-sync-once state machine. Everything
// time- or environment-dependent is injected so the machine is testable
// without real waiting: the clock, the availability signal, and the sync
// pass itself.
type Controller struct {
	// Clock paces the waiting poll.
	Clock clockwork.Clock

	// Interval is how long to sleep between availability polls.
	Interval time.Duration

	// Force bypasses the once-per-day gate.
	Force bool

	// Available reports whether a session can be built right now.
	Available func() bool

	// Sync runs one full pass over all known courses.
	Sync func() error

	// Store persists the daily gate.
	Store *state.Store
}

// Run executes the state machine: Waiting -> Syncing -> Done. It blocks
// until the pass has run (or the gate says it already ran today) and then
// returns; there is no internal cancellation, since the process is designed
// to be killed externally.
func (c *Controller) Run() error {
	if c.alreadyRanToday() {
		log.Info("Already synced today. Nothing to do.")
		return nil
	}

	for !c.Available() {
		log.Debug("Portal session not available yet. Waiting.")
		<-c.Clock.After(c.Interval)
	}

	// Another device sharing the library may have synced while we waited;
	// the state file travels through the file-sync layer just like the
	// downloads do.
	if c.alreadyRanToday() {
		log.Info("Another device already synced today. Nothing to do.")
		return nil
	}

	log.Info("Portal session available. Starting the daily sync.")
	syncErr := c.Sync()

	// The date is recorded even when the pass partially failed: a day
	// counts as attempted once a full pass has run. Otherwise a
	// persistently broken course would make every poll retry the whole
	// library.
	snapshot := state.Empty()
	snapshot.RecordRun(c.Clock.Now())
	if err := c.Store.Save(snapshot); err != nil {
		log.WithError(err).Warn("Failed to record the daily sync date")
	}

	return syncErr
}

// alreadyRanToday applies the daily gate. Forced runs skip it.
func (c *Controller) alreadyRanToday() bool {
	if c.Force {
		return false
	}
	loaded := c.Store.Load()
	return loaded.RanOn(c.Clock.Now())
}
