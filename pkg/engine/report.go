package engine

import (
	"fmt"
)

// Report summarizes one course's sync pass.
type Report struct {
	CourseID   string
	CourseName string

	// Discovered is the total number of files the walk yielded.
	Discovered int

	// New is how many of those weren't in the seen-file ledger.
	New int

	Downloaded int
	Expanded   int

	// Adopted counts new files that already existed on disk (downloaded by
	// another device, or placed there by the user) and were recorded in the
	// ledger without being fetched.
	Adopted int

	// Deferred is set when an unattended run found more new files than the
	// confirmation threshold allows. Nothing was downloaded; the next
	// interactive (or forced) run will pick them up.
	Deferred bool

	// Declined is set when the user answered the confirmation prompt with
	// no.
	Declined bool

	// Failures lists files that couldn't be downloaded or expanded. They
	// don't block sibling files.
	Failures []FileFailure

	// Warnings lists subtrees that couldn't be walked this pass.
	Warnings []string
}

// FileFailure records a single file that failed.
type FileFailure struct {
	Name   string
	Reason string
}

// Summary returns a one-line description of the pass.
func (r Report) Summary() string {
	switch {
	case r.Deferred:
		return fmt.Sprintf("%s: %d new files found, deferred (over the confirmation threshold)",
			r.CourseName, r.New)
	case r.Declined:
		return fmt.Sprintf("%s: %d new files found, declined", r.CourseName, r.New)
	default:
		return fmt.Sprintf("%s: %d discovered, %d new, %d downloaded, %d archives expanded, %d failed",
			r.CourseName, r.Discovered, r.New, r.Downloaded, r.Expanded, len(r.Failures))
	}
}
