// Package archive expands downloaded container files in place. Formats are
// detected by content signature rather than file extension, since portal
// downloads are frequently renamed or served without an extension.
//
// Expansion mirrors the library's never-delete rule: the archive itself is
// preserved after extraction, and entries whose target already exists on
// disk are skipped rather than overwritten.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bodgit/sevenzip"
	"github.com/gabriel-vasile/mimetype"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"

	"github.com/lectern-sync/lectern/pkg/errors"
)

// DefaultMaxDepth bounds how many levels of nested archives are expanded.
// An archive at the bound is left on disk unexpanded. This guards against
// archive bombs and self-referential archives.
const DefaultMaxDepth = 3

const (
	mimeZip     = "application/zip"
	mimeTar     = "application/x-tar"
	mimeGzip    = "application/gzip"
	mimeBzip2   = "application/x-bzip2"
	mimeSevenZ  = "application/x-7z-compressed"
	mimeSniffed = 3072
)

// Expander extracts supported archives into sibling folders.
type Expander struct {
	fs       afero.Fs
	maxDepth int
}

// NewExpander returns an Expander with the given nesting bound. A bound of
// zero uses DefaultMaxDepth.
func NewExpander(fs afero.Fs, maxDepth int) *Expander {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Expander{fs: fs, maxDepth: maxDepth}
}

// Expand inspects the file at `path` and, if it's a supported archive,
// extracts it into a sibling folder named after the archive. Archives found
// inside the extracted output are expanded recursively up to the nesting
// bound. It returns the number of archives expanded (zero when the file
// isn't an archive).
//
// Extraction failures are returned to the caller but leave the archive on
// disk untouched; they are never retried automatically.
func (e *Expander) Expand(path string) (int, error) {
	return e.expand(path, 1)
}

func (e *Expander) expand(path string, depth int) (int, error) {
	format, err := e.detect(path)
	if err != nil {
		return 0, errors.WithContext(err, "detect format")
	}
	if format == "" {
		return 0, nil
	}

	// A lone compressed file (a .gz of a PDF, say) is not a container; it's
	// mirrored as-is like any other download.
	if format == mimeGzip && !e.compressedContainsTar(path, decompressGzip) {
		return 0, nil
	}
	if format == mimeBzip2 && !e.compressedContainsTar(path, decompressBzip2) {
		return 0, nil
	}

	if depth > e.maxDepth {
		log.WithField("path", path).WithField("depth", depth).Info(
			"Nested archive exceeds the expansion bound. Leaving it unexpanded.")
		return 0, nil
	}

	dest := e.destDir(path)
	if err := e.fs.MkdirAll(dest, 0755); err != nil {
		return 0, errors.WithContext(err, "create extraction dir")
	}

	log.WithField("archive", filepath.Base(path)).Info("Expanding archive")

	switch format {
	case mimeZip:
		err = e.extractZip(path, dest)
	case mimeTar:
		err = e.extractTarFile(path, dest, decompressNone)
	case mimeGzip:
		err = e.extractTarFile(path, dest, decompressGzip)
	case mimeBzip2:
		err = e.extractTarFile(path, dest, decompressBzip2)
	case mimeSevenZ:
		err = e.extractSevenZip(path, dest)
	}
	if err != nil {
		return 0, errors.WithContext(err, "extract")
	}

	count := 1
	nested, err := e.expandChildren(dest, depth+1)
	count += nested
	if err != nil {
		return count, errors.WithContext(err, "expand nested")
	}
	return count, nil
}

// expandChildren walks an extraction directory and expands any archives
// found inside it.
func (e *Expander) expandChildren(dir string, depth int) (int, error) {
	count := 0
	var firstErr error
	walkErr := afero.Walk(e.fs, dir, func(path string, fi os.FileInfo, err error) error {
		if err != nil || fi.IsDir() {
			return err
		}

		n, err := e.expand(path, depth)
		count += n
		if err != nil && firstErr == nil {
			firstErr = errors.WithContext(err, filepath.Base(path))
		}
		return nil
	})
	if walkErr != nil {
		return count, walkErr
	}
	return count, firstErr
}

// detect returns the archive mime type of the file, or "" when the file
// isn't a supported archive.
func (e *Expander) detect(path string) (string, error) {
	f, err := e.fs.Open(path)
	if err != nil {
		return "", errors.WithContext(err, "open")
	}
	defer f.Close()

	header := make([]byte, mimeSniffed)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", errors.WithContext(err, "read header")
	}

	switch mime := mimetype.Detect(header[:n]); mime.String() {
	case mimeZip, mimeTar, mimeGzip, mimeBzip2, mimeSevenZ:
		return mime.String(), nil
	default:
		return "", nil
	}
}

// destDir returns the sibling folder an archive is extracted into: the
// archive's name minus its extension.
func (e *Expander) destDir(path string) string {
	name := filepath.Base(path)
	lower := strings.ToLower(name)

	var stripped string
	switch {
	case strings.HasSuffix(lower, ".tar.gz"):
		stripped = name[:len(name)-len(".tar.gz")]
	case strings.HasSuffix(lower, ".tar.bz2"):
		stripped = name[:len(name)-len(".tar.bz2")]
	case strings.HasSuffix(lower, ".tgz"), strings.HasSuffix(lower, ".tbz2"):
		stripped = name[:strings.LastIndex(name, ".")]
	default:
		if idx := strings.LastIndex(name, "."); idx > 0 {
			stripped = name[:idx]
		}
	}

	// Content sniffing means the file may have no (or a misleading)
	// extension. Never let the extraction dir collide with the archive.
	if stripped == "" || stripped == name {
		stripped = name + "_extracted"
	}
	return filepath.Join(filepath.Dir(path), stripped)
}

// place writes a single extracted entry, refusing path traversal and never
// overwriting existing files.
func (e *Expander) place(dest, name string, mode os.FileMode, contents io.Reader) error {
	cleaned := filepath.Clean(filepath.FromSlash(name))
	if cleaned == "." || !filepath.IsLocal(cleaned) {
		return errors.New("entry %q escapes the extraction dir", name)
	}

	target := filepath.Join(dest, cleaned)
	if exists, _ := afero.Exists(e.fs, target); exists {
		log.WithField("path", target).Debug(
			"Skipping archive entry: target already exists")
		return nil
	}

	if err := e.fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.WithContext(err, "create parent dir")
	}

	f, err := e.fs.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode.Perm()|0600)
	if err != nil {
		return errors.WithContext(err, "create file")
	}

	_, err = io.Copy(f, contents)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return errors.WithContext(err, "write contents")
	}
	return nil
}

func (e *Expander) extractZip(path, dest string) error {
	f, size, err := e.openWithSize(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader, err := zip.NewReader(f, size)
	if err != nil {
		return errors.WithContext(err, "read zip")
	}

	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}

		contents, err := entry.Open()
		if err != nil {
			return errors.WithContext(err, "open entry")
		}

		err = e.place(dest, entry.Name, entry.Mode(), contents)
		contents.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// compressedContainsTar reports whether the compressed stream at path wraps
// a tar archive.
func (e *Expander) compressedContainsTar(path string, decompress decompressor) bool {
	f, err := e.fs.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	var stream io.Reader = f
	switch decompress {
	case decompressGzip:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return false
		}
		defer gz.Close()
		stream = gz
	case decompressBzip2:
		stream = bzip2.NewReader(f)
	}

	header := make([]byte, mimeSniffed)
	n, err := io.ReadFull(stream, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return false
	}
	return mimetype.Detect(header[:n]).String() == mimeTar
}

type decompressor int

const (
	decompressNone decompressor = iota
	decompressGzip
	decompressBzip2
)

func (e *Expander) extractTarFile(path, dest string, decompress decompressor) error {
	f, err := e.fs.Open(path)
	if err != nil {
		return errors.WithContext(err, "open")
	}
	defer f.Close()

	var stream io.Reader = f
	switch decompress {
	case decompressGzip:
		gz, err := gzip.NewReader(f)
		if err != nil {
			return errors.WithContext(err, "read gzip")
		}
		defer gz.Close()
		stream = gz
	case decompressBzip2:
		stream = bzip2.NewReader(f)
	}

	reader := tar.NewReader(stream)
	for {
		header, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.WithContext(err, "read tar")
		}

		// Symlinks, devices, and other special entries are dropped: the
		// library only mirrors regular files.
		if header.Typeflag != tar.TypeReg {
			continue
		}

		if err := e.place(dest, header.Name, header.FileInfo().Mode(), reader); err != nil {
			return err
		}
	}
}

func (e *Expander) extractSevenZip(path, dest string) error {
	f, size, err := e.openWithSize(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader, err := sevenzip.NewReader(f, size)
	if err != nil {
		return errors.WithContext(err, "read 7z")
	}

	for _, entry := range reader.File {
		if entry.FileInfo().IsDir() {
			continue
		}

		contents, err := entry.Open()
		if err != nil {
			return errors.WithContext(err, "open entry")
		}

		err = e.place(dest, entry.Name, entry.Mode(), contents)
		contents.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Expander) openWithSize(path string) (afero.File, int64, error) {
	fi, err := e.fs.Stat(path)
	if err != nil {
		return nil, 0, errors.WithContext(err, "stat")
	}

	f, err := e.fs.Open(path)
	if err != nil {
		return nil, 0, errors.WithContext(err, "open")
	}
	return f, fi.Size(), nil
}
