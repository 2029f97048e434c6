package state

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"

	goversion "github.com/hashicorp/go-version"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/lectern-sync/lectern/pkg/errors"
)

// StateDir is the directory under the library that holds the state file.
const StateDir = ".lectern"

// stateFile is the name of the persisted state file.
const stateFile = "state.json"

// Store reads and writes the state file under a library root. Writes within
// one process are serialized by a mutex; each saved snapshot is first merged
// with whatever is currently on disk, so concurrent course syncs (and stale
// snapshots arriving via file sync) can only add information.
type Store struct {
	fs      afero.Fs
	library string
	mutex   sync.Mutex
}

// NewStore returns a Store for the state file under `library`.
func NewStore(fs afero.Fs, library string) *Store {
	return &Store{fs: fs, library: library}
}

// Path returns the location of the state file.
func (store *Store) Path() string {
	return filepath.Join(store.library, StateDir, stateFile)
}

// Load reads the persisted state. It fails soft: a missing, unreadable, or
// corrupt state file is treated as "never synced" rather than an error. The
// state exists to avoid redundant downloads, and a redundant download is
// safe -- crashing on a damaged state file wouldn't be.
func (store *Store) Load() State {
	contents, err := afero.ReadFile(store.fs, store.Path())
	if err != nil {
		if exists, _ := afero.Exists(store.fs, store.Path()); exists {
			log.WithError(err).Warn(
				"Failed to read sync state. Treating the library as never synced.")
		}
		return Empty()
	}

	var loaded State
	if err := json.Unmarshal(contents, &loaded); err != nil {
		log.WithError(err).Warn(
			"Sync state is corrupt. Treating the library as never synced. " +
				"Already-downloaded files may be fetched again.")
		return Empty()
	}

	if !formatSupported(loaded.Version) {
		log.WithField("version", loaded.Version).Warn(
			"Sync state was written by a newer version of Lectern. " +
				"Ignoring it. Please upgrade this device.")
		return Empty()
	}

	loaded.Version = FormatVersion
	if loaded.Courses == nil {
		loaded.Courses = map[string]*Course{}
	}
	return loaded
}

// Save merges the snapshot with the state currently on disk and writes the
// result atomically (temp file + rename). Atomicity matters doubly here:
// the file is also read by other devices through a passive file-sync layer,
// and a torn write would corrupt every device's view of sync history.
func (store *Store) Save(snapshot State) error {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	merged := Merge(store.Load(), snapshot)
	merged.Version = FormatVersion

	contents, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return errors.WithContext(err, "marshal")
	}

	dir := filepath.Dir(store.Path())
	if err := store.fs.MkdirAll(dir, 0755); err != nil {
		return errors.WithContext(err, "create state dir")
	}

	tmpPath := store.Path() + ".tmp"
	if err := afero.WriteFile(store.fs, tmpPath, contents, 0644); err != nil {
		return errors.WithContext(err, "write temp file")
	}

	if err := store.fs.Rename(tmpPath, store.Path()); err != nil {
		return errors.WithContext(err, "replace state file")
	}
	return nil
}

// formatSupported reports whether this binary can read a state file with
// the given schema version. Files written by a newer binary on another
// device are rejected rather than misread.
func formatSupported(version string) bool {
	if version == "" {
		return true
	}

	fileVersion, err := goversion.NewVersion(version)
	if err != nil {
		return false
	}

	constraint := goversion.MustConstraints(goversion.NewConstraint(
		fmt.Sprintf("<= %s", FormatVersion)))
	return constraint.Check(fileVersion)
}
