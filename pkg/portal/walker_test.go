package portal

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lectern-sync/lectern/pkg/errors"
)

func folderItem(refID int, name string) string {
	return fmt.Sprintf(`
<div class="ilContainerListItemOuter">
  <img src="./icon_fold.svg" alt="Folder">
  <div class="il_ContainerListItem">
    <a class="il_ContainerItemTitle" href="/ilias.php?cmd=view&ref_id=%d">%s</a>
  </div>
</div>`, refID, name)
}

func fileItem(refID int, name string) string {
	return fmt.Sprintf(`
<div class="ilContainerListItemOuter">
  <img src="./icon_file.svg" alt="File">
  <div class="il_ContainerListItem">
    <a class="il_ContainerItemTitle" href="/ilias.php?cmd=sendfile&ref_id=%d">%s</a>
  </div>
</div>`, refID, name)
}

func listingServer(t *testing.T, pages map[string]string, broken map[string]int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			refID := r.URL.Query().Get("ref_id")
			if status, ok := broken[refID]; ok {
				w.WriteHeader(status)
				return
			}
			page, ok := pages[refID]
			if !ok {
				t.Errorf("unexpected request for ref_id %s", refID)
				w.WriteHeader(http.StatusNotFound)
				return
			}
			fmt.Fprintf(w, "<html><body>%s</body></html>", page)
		}))
}

func TestWalk(t *testing.T) {
	pages := map[string]string{
		"1": folderItem(2, "Week 1") +
			fileItem(10, "syllabus") +
			folderItem(1, "Back to course"), // cycle back to the root
		"2": fileItem(11, "slides") + fileItem(12, "exercise"),
	}
	server := listingServer(t, pages, nil)
	defer server.Close()

	walker := NewWalker(NewSession(server.Client(), 0))

	var files []string
	var paths [][]string
	recoverable, err := walker.Walk(
		server.URL+"/ilias.php?cmd=view&ref_id=1",
		func(node Node) error {
			files = append(files, node.Name)
			paths = append(paths, node.PathSegments)
			return nil
		})
	assert.NoError(t, err)
	assert.Empty(t, recoverable)

	// Depth-first, in listing order, each file under its folder path.
	assert.Equal(t, []string{"slides", "exercise", "syllabus"}, files)
	assert.Equal(t, [][]string{{"Week 1"}, {"Week 1"}, nil}, paths)
}

func TestWalkContinuesPastBrokenSubtree(t *testing.T) {
	pages := map[string]string{
		"1": folderItem(2, "Broken folder") + folderItem(3, "Healthy folder"),
		"3": fileItem(11, "slides"),
	}
	server := listingServer(t, pages, map[string]int{"2": http.StatusInternalServerError})
	defer server.Close()

	walker := NewWalker(NewSession(server.Client(), 0))

	var files []string
	recoverable, err := walker.Walk(
		server.URL+"/ilias.php?cmd=view&ref_id=1",
		func(node Node) error {
			files = append(files, node.Name)
			return nil
		})
	assert.NoError(t, err)
	assert.Len(t, recoverable, 1)
	assert.Equal(t, []string{"slides"}, files)
}

func TestWalkAbortsOnExpiredSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/login.php" {
				w.Write([]byte("please log in"))
				return
			}
			http.Redirect(w, r, "/login.php", http.StatusFound)
		}))
	defer server.Close()

	walker := NewWalker(NewSession(server.Client(), 0))
	_, err := walker.Walk(
		server.URL+"/ilias.php?cmd=view&ref_id=1",
		func(Node) error { return nil })
	assert.True(t, errors.IsAuthExpired(err))
}

func TestWalkPropagatesVisitorError(t *testing.T) {
	pages := map[string]string{
		"1": folderItem(2, "Week 1"),
		"2": fileItem(11, "slides"),
	}
	server := listingServer(t, pages, nil)
	defer server.Close()

	walker := NewWalker(NewSession(server.Client(), 0))

	boom := errors.New("boom")
	recoverable, err := walker.Walk(
		server.URL+"/ilias.php?cmd=view&ref_id=1",
		func(Node) error { return boom })

	// The visitor failing inside a nested folder must end the walk, not get
	// misfiled as an unreachable subtree.
	assert.Equal(t, boom, err)
	assert.Empty(t, recoverable)
}

func TestCourseTitle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("<html><body><h1>Algorithms</h1></body></html>"))
		}))
	defer server.Close()

	walker := NewWalker(NewSession(server.Client(), 0))
	title, err := walker.CourseTitle(server.URL + "/ilias.php?cmd=view&ref_id=1")
	assert.NoError(t, err)
	assert.Equal(t, "Algorithms", title)
}
