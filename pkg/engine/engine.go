// Package engine orchestrates a sync pass: walk the remote tree, classify
// files against the seen-file ledger, download what's new, expand archives,
// and persist the updated state.
//
// The engine never deletes or overwrites local files, and it never
// downloads a remote ID twice: the ledger, not the filesystem, decides what
// is new. A file the user deleted locally stays deleted.
package engine

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/lectern-sync/lectern/pkg/archive"
	"github.com/lectern-sync/lectern/pkg/config"
	"github.com/lectern-sync/lectern/pkg/errors"
	"github.com/lectern-sync/lectern/pkg/journal"
	"github.com/lectern-sync/lectern/pkg/portal"
	"github.com/lectern-sync/lectern/pkg/state"
)

// Settings tune a sync pass.
type Settings struct {
	// ConfirmationThreshold is the number of new files above which the
	// engine asks before downloading. Zero disables the gate.
	ConfirmationThreshold int

	// MaxAttempts bounds download attempts per file (including the first).
	MaxAttempts int

	// RetryDelay is the initial backoff delay between attempts.
	RetryDelay time.Duration

	// ArchiveDepth bounds nested archive expansion.
	ArchiveDepth int

	// Force bypasses the confirmation gate.
	Force bool

	// CourseWorkers bounds how many courses SyncAll processes concurrently.
	CourseWorkers int
}

// Engine runs sync passes against one library.
type Engine struct {
	fs       afero.Fs
	store    *state.Store
	walker   *portal.Walker
	session  *portal.Session
	journal  *journal.Journal
	expander *archive.Expander
	settings Settings
	clock    clockwork.Clock

	// confirm asks the user whether to proceed with a large download batch.
	// When nil the run is unattended: batches over the threshold are
	// deferred instead.
	confirm func(prompt string) (bool, error)
}

// New creates an Engine for the given library.
func New(fs afero.Fs, library string, session *portal.Session, settings Settings,
	confirm func(string) (bool, error)) *Engine {

	if settings.MaxAttempts <= 0 {
		settings.MaxAttempts = 3
	}
	if settings.CourseWorkers <= 0 {
		settings.CourseWorkers = 1
	}

	return &Engine{
		fs:       fs,
		store:    state.NewStore(fs, library),
		walker:   portal.NewWalker(session),
		session:  session,
		journal:  journal.New(fs, library),
		expander: archive.NewExpander(fs, settings.ArchiveDepth),
		settings: settings,
		clock:    clockwork.NewRealClock(),
		confirm:  confirm,
	}
}

// SyncCourse walks the course's remote tree and downloads every file not
// yet in the seen-file ledger. The returned error is non-nil only when the
// whole pass failed (unreachable root or expired session); individual file
// failures are reported in the Report instead.
func (e *Engine) SyncCourse(course config.Course) (Report, error) {
	report := Report{CourseID: course.ID, CourseName: course.Name}
	ledger := e.store.Load()

	log.WithField("course", course.Name).Info("Scanning course")

	// Discovery pass: walk the tree and classify. The walk is cheap
	// relative to downloads, and the confirmation gate needs the full count
	// of new files before the first byte is fetched.
	var pending []portal.Node
	queued := map[string]bool{}
	warnings, err := e.walker.Walk(course.RootURL, func(node portal.Node) error {
		report.Discovered++
		if ledger.HasSeen(course.ID, node.RemoteID) || queued[node.RemoteID] {
			log.WithField("file", node.Name).Debug("Skipping already-seen file")
			return nil
		}
		queued[node.RemoteID] = true
		pending = append(pending, node)
		return nil
	})
	for _, warning := range warnings {
		report.Warnings = append(report.Warnings, warning.Error())
	}
	if err != nil {
		return report, errors.WithContext(err, "walk course")
	}

	report.New = len(pending)
	log.WithField("course", course.Name).Infof(
		"Found %d files, %d new", report.Discovered, report.New)

	if !e.confirmBatch(len(pending), &report) {
		return report, nil
	}

	// Download pass, in traversal order.
	snapshot := state.Empty()
	ledgerCourse := snapshot.Course(course.ID)
	ledgerCourse.Name = course.Name
	ledgerCourse.RootURL = course.RootURL
	ledgerCourse.LastAttempt = e.clock.Now()

	var entries []journal.Entry
	var abort error
	for _, node := range pending {
		placed, err := e.fetchFile(course, node)
		if err != nil {
			if errors.IsAuthExpired(err) {
				// Every remaining download would fail the same way. Keep
				// what we have and persist it below.
				abort = err
				break
			}

			log.WithError(err).WithField("file", node.Name).Warn("Failed to download file")
			report.Failures = append(report.Failures, FileFailure{
				Name:   node.Name,
				Reason: err.Error(),
			})
			continue
		}

		relPath, relErr := filepath.Rel(course.LocalRoot(), placed.path)
		if relErr != nil {
			relPath = placed.path
		}

		ledgerCourse.Seen[node.RemoteID] = state.SeenFile{
			Path:      relPath,
			SizeBytes: placed.size,
			FirstSeen: e.clock.Now(),
		}

		if placed.adopted {
			report.Adopted++
			continue
		}
		report.Downloaded++
		entries = append(entries, journal.Entry{
			Time:      e.clock.Now(),
			Course:    course.Name,
			Filename:  filepath.Base(placed.path),
			RelPath:   relPath,
			SizeBytes: placed.size,
		})

		expanded, err := e.expander.Expand(placed.path)
		report.Expanded += expanded
		if err != nil {
			// The archive stays on disk unexpanded; it is not retried.
			log.WithError(err).WithField("file", node.Name).Warn("Failed to expand archive")
			report.Failures = append(report.Failures, FileFailure{
				Name:   node.Name,
				Reason: fmt.Sprintf("expand archive: %s", err),
			})
		}
	}

	// One save per course bounds write amplification, and the save itself
	// merges with the on-disk state, so a crash earlier in the pass loses
	// only this course's progress.
	if err := e.store.Save(snapshot); err != nil {
		return report, errors.WithContext(err, "save state")
	}
	if err := e.journal.Append(entries); err != nil {
		log.WithError(err).Warn("Failed to update the recent-downloads log")
	}

	if abort != nil {
		return report, errors.WithContext(abort, "download")
	}
	return report, nil
}

// confirmBatch applies the confirmation gate. It returns true when the
// downloads should proceed.
func (e *Engine) confirmBatch(newFiles int, report *Report) bool {
	threshold := e.settings.ConfirmationThreshold
	if newFiles == 0 || threshold <= 0 || newFiles <= threshold || e.settings.Force {
		return newFiles > 0
	}

	if e.confirm == nil {
		log.Warnf("Found %d new files, which is over the confirmation "+
			"threshold (%d). Deferring the download. Run `lectern update` "+
			"interactively, or pass --force, to fetch them.",
			newFiles, threshold)
		report.Deferred = true
		return false
	}

	ok, err := e.confirm(fmt.Sprintf(
		"About to download %d new files for %q. Continue?",
		newFiles, report.CourseName))
	if err != nil || !ok {
		if err != nil {
			log.WithError(err).Warn("Failed to read confirmation")
		}
		report.Declined = true
		return false
	}
	return true
}
