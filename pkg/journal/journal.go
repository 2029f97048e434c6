// Package journal maintains the human-readable log of recent downloads at
// the library root. The log is the audit trail of what each sync brought
// in; it's written for people (and their file-sync apps), never parsed by
// the engine itself.
package journal

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/spf13/afero"

	"github.com/lectern-sync/lectern/pkg/errors"
)

// FileName is the name of the log file at the library root.
const FileName = "RECENT_UPDATES.md"

const timestampLayout = "2006-01-02 15:04:05"

// Entry is one downloaded file.
type Entry struct {
	Time      time.Time
	Course    string
	Filename  string
	RelPath   string
	SizeBytes int64
}

// Journal appends download records to the library's log file. Appends are a
// read-merge-rewrite of the whole table, so a mutex serializes them within
// the process; concurrent course syncs would otherwise drop each other's
// rows.
type Journal struct {
	fs      afero.Fs
	library string
	mutex   sync.Mutex
}

// New returns a Journal writing under the given library root.
func New(fs afero.Fs, library string) *Journal {
	return &Journal{fs: fs, library: library}
}

// Append merges the new entries into the log, newest first, and rewrites
// it. Existing rows are preserved; rows another device added between runs
// survive because the whole table is re-read before writing.
func (j *Journal) Append(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	j.mutex.Lock()
	defer j.mutex.Unlock()

	path := filepath.Join(j.library, FileName)
	rows := j.existingRows(path)
	latest := entries[0].Time
	for _, entry := range entries {
		rows = append(rows, formatRow(entry))
		if entry.Time.After(latest) {
			latest = entry.Time
		}
	}

	// The timestamp is the first column, and the layout sorts
	// lexicographically.
	sort.Sort(sort.Reverse(sort.StringSlice(rows)))

	var sb strings.Builder
	sb.WriteString("# Lectern Recent Updates\n\n")
	sb.WriteString(fmt.Sprintf("Last updated: %s\n\n", latest.Format(timestampLayout)))
	sb.WriteString("| Date/Time | Course | Filename | Relative Path | Size |\n")
	sb.WriteString("|-----------|--------|----------|---------------|------|\n")
	for _, row := range rows {
		sb.WriteString(row)
		sb.WriteString("\n")
	}

	if err := afero.WriteFile(j.fs, path, []byte(sb.String()), 0644); err != nil {
		return errors.WithContext(err, "write log")
	}
	return nil
}

// existingRows returns the table rows already in the log. A missing or
// unreadable log just means starting fresh.
func (j *Journal) existingRows(path string) []string {
	contents, err := afero.ReadFile(j.fs, path)
	if err != nil {
		return nil
	}

	var rows []string
	for _, line := range strings.Split(string(contents), "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "|") ||
			strings.Contains(trimmed, "Date/Time") ||
			strings.Contains(trimmed, "---") {
			continue
		}
		rows = append(rows, trimmed)
	}
	return rows
}

func formatRow(entry Entry) string {
	return fmt.Sprintf("| %s | %s | %s | %s | %s |",
		entry.Time.Format(timestampLayout),
		entry.Course,
		entry.Filename,
		filepath.ToSlash(entry.RelPath),
		humanize.Bytes(uint64(entry.SizeBytes)))
}
