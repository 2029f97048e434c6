package engine

import (
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/lectern-sync/lectern/pkg/config"
	"github.com/lectern-sync/lectern/pkg/errors"
)

// SyncAll syncs every known course, continuing past per-course failures.
// Courses address independent remote roots and independent local subtrees,
// so they may run concurrently; the state store serializes the per-course
// saves on its side.
//
// The returned error is non-nil only when not a single course could be
// reached -- partial success is success.
func (e *Engine) SyncAll(courses []config.Course) ([]Report, error) {
	if len(courses) == 0 {
		return nil, errors.NewFriendlyError(
			"No courses were found in the library.\n" +
				"Add one with `lectern get <url>` first.")
	}

	reports := make([]Report, len(courses))
	failed := make([]error, len(courses))

	var group errgroup.Group
	group.SetLimit(e.settings.CourseWorkers)

	var mutex sync.Mutex
	for i, course := range courses {
		i, course := i, course
		group.Go(func() error {
			report, err := e.SyncCourse(course)

			mutex.Lock()
			defer mutex.Unlock()
			reports[i] = report
			failed[i] = err
			if err != nil {
				log.WithError(err).WithField("course", course.Name).Error(
					"Course sync failed")
			}
			return nil
		})
	}
	// The group never propagates errors; per-course failures don't abort
	// siblings.
	_ = group.Wait()

	allFailed := true
	for _, err := range failed {
		if err == nil {
			allFailed = false
			break
		}
	}
	if allFailed {
		return reports, errors.NewFriendlyError(
			"No course could be reached.\n" +
				"Check that you're logged into the portal in your browser " +
				"and that the network is up.")
	}
	return reports, nil
}
