package engine

import (
	"io"
	"mime"
	"path/filepath"
	"strings"

	backoff "github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/lectern-sync/lectern/pkg/config"
	"github.com/lectern-sync/lectern/pkg/errors"
	"github.com/lectern-sync/lectern/pkg/portal"
)

// placedFile describes where a new file ended up.
type placedFile struct {
	path string
	size int64

	// adopted means the file already existed on disk (placed there by
	// another device or the user) and was recorded without downloading.
	adopted bool
}

// fetchFile downloads one remote file into the course tree. Transient
// network failures are retried with exponential backoff a bounded number of
// times; everything else fails immediately.
//
// The file is written to a temporary path and only renamed into place once
// fully written, so a killed process never leaves a partial file under a
// final name.
func (e *Engine) fetchFile(course config.Course, node portal.Node) (placedFile, error) {
	dir := filepath.Join(append([]string{course.LocalRoot()}, node.PathSegments...)...)
	if err := e.fs.MkdirAll(dir, 0755); err != nil {
		return placedFile{}, errors.WithContext(err, "create folder")
	}

	// The remote may have been downloaded on another device and arrived via
	// file sync, or the user put it there. Local files are never
	// overwritten; adopt the existing copy into the ledger instead.
	if existing, ok := e.existingCopy(dir, node.Name); ok {
		log.WithField("file", node.Name).Info("File already on disk; recording without download")
		size, _ := fileSize(e.fs, existing)
		return placedFile{path: existing, size: size, adopted: true}, nil
	}

	var placed placedFile
	operation := func() error {
		var err error
		placed, err = e.downloadOnce(dir, node)
		if err != nil && !portal.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	if e.settings.RetryDelay > 0 {
		policy.InitialInterval = e.settings.RetryDelay
	}
	err := backoff.Retry(operation,
		backoff.WithMaxRetries(policy, uint64(e.settings.MaxAttempts-1)))
	if err != nil {
		return placedFile{}, err
	}
	return placed, nil
}

func (e *Engine) downloadOnce(dir string, node portal.Node) (placedFile, error) {
	log.WithField("file", node.Name).Info("Downloading")

	resp, err := e.session.Get(node.URL)
	if err != nil {
		return placedFile{}, errors.WithContext(err, "get")
	}
	defer resp.Body.Close()

	filename := finalFilename(node.Name, resp.Header.Get("Content-Disposition"))
	finalPath := filepath.Join(dir, filename)

	// The server may name the file differently than the listing did; check
	// again under the definitive name.
	if exists, _ := afero.Exists(e.fs, finalPath); exists {
		size, _ := fileSize(e.fs, finalPath)
		return placedFile{path: finalPath, size: size, adopted: true}, nil
	}

	tmpPath := filepath.Join(dir, "."+filename+".partial")
	size, err := e.writeFile(tmpPath, resp.Body)
	if err != nil {
		// Leave no temp artifact behind on a failed write. The temp file is
		// ours; it's the only thing a sync is ever allowed to remove.
		if removeErr := e.fs.Remove(tmpPath); removeErr != nil {
			log.WithError(removeErr).WithField("path", tmpPath).Debug(
				"Failed to clean up partial download")
		}
		return placedFile{}, err
	}

	if err := e.fs.Rename(tmpPath, finalPath); err != nil {
		return placedFile{}, errors.WithContext(err, "move into place")
	}
	return placedFile{path: finalPath, size: size}, nil
}

func (e *Engine) writeFile(path string, contents io.Reader) (int64, error) {
	f, err := e.fs.Create(path)
	if err != nil {
		return 0, errors.WithContext(err, "create temp file")
	}

	size, err := io.Copy(f, contents)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, errors.WithContext(err, "write")
	}
	return size, nil
}

// existingCopy checks whether the file is already on disk under its listing
// name. Extensionless listings may exist on disk with the .pdf the download
// pass would have added.
func (e *Engine) existingCopy(dir, name string) (string, bool) {
	candidates := []string{filepath.Join(dir, name)}
	if !strings.Contains(name, ".") {
		candidates = append(candidates, filepath.Join(dir, name+".pdf"))
	}

	for _, candidate := range candidates {
		if exists, _ := afero.Exists(e.fs, candidate); exists {
			return candidate, true
		}
	}
	return "", false
}

// finalFilename picks the name the file is saved under: the server's
// Content-Disposition filename when present, the listing name otherwise.
// Most portal files are PDFs served without an extension, so extensionless
// names get .pdf appended.
func finalFilename(listingName, contentDisposition string) string {
	filename := listingName
	if contentDisposition != "" {
		if _, params, err := mime.ParseMediaType(contentDisposition); err == nil {
			if header := portal.CleanName(params["filename"]); header != "" {
				filename = header
			}
		}
	}

	if !strings.Contains(filename, ".") {
		filename += ".pdf"
	}
	return filename
}

func fileSize(fs afero.Fs, path string) (int64, error) {
	fi, err := fs.Stat(path)
	if err != nil {
		return 0, err
	}
	return fi.Size(), nil
}
