// Package state persists what Lectern has already downloaded. The state file
// lives inside the library, so a cloud-sync folder replicates it between
// devices with no coordination. Every field only ever grows: seen-file sets
// gain entries and dates advance. That makes last-write-wins replacement by
// a file-sync tool safe -- the worst outcome of a lost write is a redundant
// download on one device, never data loss.
package state

import (
	"time"
)

// FormatVersion is the version of the state file schema written by this
// binary. Bump the major version on incompatible changes so that older
// binaries on other devices fail soft instead of misreading the file.
const FormatVersion = "1.0.0"

// DateLayout is the calendar-date format used for the daily gate. A calendar
// date, not a timestamp, keeps "already ran today" well-defined when the
// process is rerun at any point during the day.
const DateLayout = "2006-01-02"

// SeenFile records a remote file that has been downloaded. Once a remote ID
// is recorded it is never downloaded again, even if the user deletes the
// local copy -- the ledger, not the filesystem, is authoritative, because
// remote listings report unstable size metadata that can't be reconciled
// against disk.
type SeenFile struct {
	// Path is the file's location relative to the course root.
	Path string `json:"path"`

	SizeBytes int64     `json:"sizeBytes"`
	FirstSeen time.Time `json:"firstSeen"`
}

// Course is the per-course ledger.
type Course struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	RootURL string `json:"rootUrl"`

	// Seen maps remote file IDs to their download records.
	Seen map[string]SeenFile `json:"seen"`

	// LastAttempt is when a sync of this course last started, successful or
	// not. It throttles per-course retries independently of the daily gate.
	LastAttempt time.Time `json:"lastAttempt"`
}

// State is the full persisted record shared across devices.
type State struct {
	Version string `json:"version"`

	// LastSyncDate is the calendar date (DateLayout) of the last completed
	// daily pass.
	LastSyncDate string `json:"lastSyncDate,omitempty"`

	Courses map[string]*Course `json:"courses"`
}

// Empty returns a usable zero state.
func Empty() State {
	return State{
		Version: FormatVersion,
		Courses: map[string]*Course{},
	}
}

// Course returns the ledger for the given course ID, creating it if needed.
func (s *State) Course(id string) *Course {
	if s.Courses == nil {
		s.Courses = map[string]*Course{}
	}
	course, ok := s.Courses[id]
	if !ok {
		course = &Course{ID: id, Seen: map[string]SeenFile{}}
		s.Courses[id] = course
	}
	if course.Seen == nil {
		course.Seen = map[string]SeenFile{}
	}
	return course
}

// HasSeen reports whether the remote file has already been downloaded for
// the course.
func (s *State) HasSeen(courseID, remoteID string) bool {
	course, ok := s.Courses[courseID]
	if !ok {
		return false
	}
	_, seen := course.Seen[remoteID]
	return seen
}

// RanOn reports whether a daily pass already completed on the calendar date
// of `today`.
func (s *State) RanOn(today time.Time) bool {
	return s.LastSyncDate != "" && s.LastSyncDate == today.Format(DateLayout)
}

// RecordRun records that a daily pass ran on the given date.
func (s *State) RecordRun(today time.Time) {
	date := today.Format(DateLayout)
	if s.LastSyncDate < date {
		s.LastSyncDate = date
	}
}

// Merge combines two state snapshots, possibly diverged on different
// devices, into their union. The result contains every seen-file entry from
// both sides (the earlier FirstSeen wins for duplicates) and the later of
// the two sync dates. Merge never discards information, which is what makes
// concurrent runs on passively-synced devices safe.
func Merge(a, b State) State {
	merged := Empty()
	merged.LastSyncDate = maxDate(a.LastSyncDate, b.LastSyncDate)

	for _, side := range []State{a, b} {
		for id, course := range side.Courses {
			target := merged.Course(id)
			mergeCourse(target, course)
		}
	}
	return merged
}

func mergeCourse(target, src *Course) {
	if src.LastAttempt.After(target.LastAttempt) || target.Name == "" {
		target.Name = src.Name
		target.RootURL = src.RootURL
	}
	if src.LastAttempt.After(target.LastAttempt) {
		target.LastAttempt = src.LastAttempt
	}

	for remoteID, file := range src.Seen {
		curr, ok := target.Seen[remoteID]
		if !ok || file.FirstSeen.Before(curr.FirstSeen) {
			target.Seen[remoteID] = file
		}
	}
}

func maxDate(a, b string) string {
	// DateLayout sorts lexicographically.
	if a > b {
		return a
	}
	return b
}
