package journal

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppend(t *testing.T) {
	fs := afero.NewMemMapFs()
	journal := New(fs, "/library")

	first := Entry{
		Time:      time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		Course:    "Algorithms",
		Filename:  "week1.pdf",
		RelPath:   "slides/week1.pdf",
		SizeBytes: 1024,
	}
	require.NoError(t, journal.Append([]Entry{first}))

	second := Entry{
		Time:      time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC),
		Course:    "Statistics",
		Filename:  "sheet2.pdf",
		RelPath:   "exercises/sheet2.pdf",
		SizeBytes: 2048,
	}
	require.NoError(t, journal.Append([]Entry{second}))

	contents, err := afero.ReadFile(fs, "/library/"+FileName)
	require.NoError(t, err)
	log := string(contents)

	// Both appends survive, newest first.
	assert.Contains(t, log, "week1.pdf")
	assert.Contains(t, log, "sheet2.pdf")
	assert.Less(t,
		strings.Index(log, "sheet2.pdf"),
		strings.Index(log, "week1.pdf"))

	assert.Contains(t, log, "| 2026-03-10 09:00:00 | Algorithms | week1.pdf | slides/week1.pdf | 1.0 kB |")

	// The header timestamp comes from the entries, so the log is
	// deterministic for a given sync.
	assert.Contains(t, log, "Last updated: 2026-03-12 09:00:00")
}

func TestAppendConcurrent(t *testing.T) {
	fs := afero.NewMemMapFs()
	journal := New(fs, "/library")

	// Courses synced by concurrent workers append at the same time; every
	// row must survive the read-merge-rewrite.
	const writers = 8
	var group sync.WaitGroup
	for i := 0; i < writers; i++ {
		i := i
		group.Add(1)
		go func() {
			defer group.Done()
			err := journal.Append([]Entry{{
				Time:     time.Date(2026, 3, 10, 9, i, 0, 0, time.UTC),
				Course:   fmt.Sprintf("Course %d", i),
				Filename: fmt.Sprintf("file%d.pdf", i),
				RelPath:  fmt.Sprintf("file%d.pdf", i),
			}})
			assert.NoError(t, err)
		}()
	}
	group.Wait()

	contents, err := afero.ReadFile(fs, "/library/"+FileName)
	require.NoError(t, err)
	for i := 0; i < writers; i++ {
		assert.Contains(t, string(contents), fmt.Sprintf("file%d.pdf", i))
	}
}

func TestAppendNothing(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, New(fs, "/library").Append(nil))

	// An empty sync shouldn't create (or touch) the log.
	exists, _ := afero.Exists(fs, "/library/"+FileName)
	assert.False(t, exists)
}

func TestAppendPreservesForeignRows(t *testing.T) {
	fs := afero.NewMemMapFs()
	journal := New(fs, "/library")

	// A row written by another device through the file-sync layer.
	existing := "# Lectern Recent Updates\n\n" +
		"Last updated: 2026-03-09 08:00:00\n\n" +
		"| Date/Time | Course | Filename | Relative Path | Size |\n" +
		"|-----------|--------|----------|---------------|------|\n" +
		"| 2026-03-09 08:00:00 | Algorithms | week0.pdf | slides/week0.pdf | 512 B |\n"
	require.NoError(t, afero.WriteFile(
		fs, "/library/"+FileName, []byte(existing), 0644))

	require.NoError(t, journal.Append([]Entry{{
		Time:     time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC),
		Course:   "Algorithms",
		Filename: "week1.pdf",
		RelPath:  "slides/week1.pdf",
	}}))

	contents, err := afero.ReadFile(fs, "/library/"+FileName)
	require.NoError(t, err)
	assert.Contains(t, string(contents), "week0.pdf")
	assert.Contains(t, string(contents), "week1.pdf")
}
