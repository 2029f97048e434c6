package portal

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/lectern-sync/lectern/pkg/errors"
)

// Walker traverses a course tree depth-first and yields its files lazily.
// A walk is restartable: each call starts from scratch. Traversal is cheap
// relative to downloads, so there is no resumable cursor.
type Walker struct {
	session *Session
}

// NewWalker returns a Walker that lists folders through the given session.
func NewWalker(session *Session) *Walker {
	return &Walker{session: session}
}

// Walk traverses the tree rooted at rootURL depth-first, calling visit for
// every file in the order the portal lists them. Folders already visited in
// this walk (cyclic or duplicated links) are skipped, never re-entered.
//
// An unreachable subfolder doesn't stop the walk: it's recorded in the
// returned recoverable errors and the walk continues with its siblings. The
// returned error is non-nil only for failures that end the walk: the root
// being unreachable, the session expiring, or the visitor returning an
// error.
func (w *Walker) Walk(rootURL string, visit func(Node) error) ([]error, error) {
	visited := map[string]bool{
		remoteID(rootURL): true,
	}

	var recoverable []error
	err := w.walkFolder(rootURL, nil, visited, &recoverable, visit)
	if abort, ok := err.(visitAbort); ok {
		err = abort.err
	}
	return recoverable, err
}

// visitAbort marks an error raised by the visitor rather than the walk
// itself, so it propagates out of nested folders instead of being treated
// as an unreachable subtree.
type visitAbort struct{ err error }

func (abort visitAbort) Error() string {
	return abort.err.Error()
}

func (w *Walker) walkFolder(pageURL string, segments []string, visited map[string]bool,
	recoverable *[]error, visit func(Node) error) error {

	log.WithField("path", pathString(segments)).Debug("Scanning folder")

	resp, err := w.session.Get(pageURL)
	if err != nil {
		return errors.WithContext(err, "list folder")
	}

	nodes, err := parseListing(pageURL, resp.Body)
	resp.Body.Close()
	if err != nil {
		return errors.WithContext(err, "parse listing")
	}

	for _, node := range nodes {
		node.PathSegments = segments

		switch node.Kind {
		case KindFile:
			if err := visit(node); err != nil {
				return visitAbort{err}
			}

		case KindFolder:
			if visited[node.RemoteID] {
				log.WithField("folder", node.Name).Debug(
					"Skipping already-visited folder link")
				continue
			}
			visited[node.RemoteID] = true

			childSegments := append(append([]string{}, segments...), node.Name)
			err := w.walkFolder(node.URL, childSegments, visited, recoverable, visit)
			if err != nil {
				// A rejected session will fail identically for every
				// remaining folder; give up on the walk. Visitor errors
				// propagate too. Anything else is scoped to this subtree.
				if errors.IsAuthExpired(err) {
					return err
				}
				if _, ok := err.(visitAbort); ok {
					return err
				}

				*recoverable = append(*recoverable, errors.WithContext(
					err, fmt.Sprintf("subtree %q", pathString(childSegments))))
				log.WithError(err).WithField("folder", node.Name).Warn(
					"Skipping unreachable subfolder")
			}
		}
	}
	return nil
}

// CourseTitle fetches the course's root page and extracts its display name.
func (w *Walker) CourseTitle(rootURL string) (string, error) {
	resp, err := w.session.Get(rootURL)
	if err != nil {
		return "", errors.WithContext(err, "get course page")
	}
	defer resp.Body.Close()

	return parseCourseTitle(resp.Body), nil
}

func pathString(segments []string) string {
	if len(segments) == 0 {
		return "."
	}
	out := segments[0]
	for _, seg := range segments[1:] {
		out += "/" + seg
	}
	return out
}
