package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/ghodss/yaml"
	"github.com/spf13/afero"
	log "github.com/sirupsen/logrus"

	"github.com/lectern-sync/lectern/pkg/errors"
)

// CourseConfigName is the name of the metadata record written into each
// course folder on first sync. It is the durable identity of the course:
// folder names can be renamed by the user, but the record's ID and root URL
// stay fixed.
const CourseConfigName = "course.yaml"

const (
	// InitialCourseConfigVersion is the first version of the course
	// metadata record. Records that do not specify a version will default
	// to this version.
	InitialCourseConfigVersion = "v1alpha1"

	// SupportedCourseConfigVersion is the supported version of the course
	// metadata record of the current Lectern binary.
	SupportedCourseConfigVersion = "v1alpha1"
)

// Course is the per-course metadata record.
type Course struct {
	Version string `json:"version,omitempty"`

	// ID is derived from the course's root URL, not its display name. Names
	// on the portal change; the ID doesn't.
	ID string `json:"id"`

	// Name is the course's display name at the time it was last synced.
	Name string `json:"name"`

	// RootURL is the portal page the course tree is walked from.
	RootURL string `json:"rootUrl"`

	// FirstSynced records when the course was added to the library.
	FirstSynced time.Time `json:"firstSynced,omitempty"`

	// Only populated and consumed by Lectern. Never set by the user.
	path string
}

func (c Course) getVersion() string {
	return c.Version
}

// LocalRoot returns the directory the course's files are mirrored into. A
// getter method is used rather than making the field public so that it can't
// get set by the yaml unmarshalling.
func (c Course) LocalRoot() string {
	return filepath.Dir(c.path)
}

// ParseCourse parses the course metadata record in the directory `dir`.
func ParseCourse(dir string) (Course, error) {
	configPath := filepath.Join(dir, CourseConfigName)
	course := Course{
		path:    configPath,
		Version: InitialCourseConfigVersion,
	}
	if err := parseConfig(configPath, &course, SupportedCourseConfigVersion); err != nil {
		return Course{}, errors.WithContext(err, "parse")
	}

	if course.ID == "" || course.RootURL == "" {
		return Course{}, errors.NewFriendlyError(
			"The course record in %q is missing its id or rootUrl.\n"+
				"Both fields are required for `lectern update` to find the "+
				"course. Re-run `lectern get <url>` to recreate the record.",
			configPath)
	}
	return course, nil
}

// WriteCourse writes the course metadata record into `dir`. It refuses to
// overwrite an existing record -- the record is written once on first sync
// and is the source of truth afterwards.
func WriteCourse(dir string, course Course) (Course, error) {
	course.Version = SupportedCourseConfigVersion
	course.path = filepath.Join(dir, CourseConfigName)

	if exists, _ := afero.Exists(fs, course.path); exists {
		return ParseCourse(dir)
	}

	yamlBytes, err := yaml.Marshal(course)
	if err != nil {
		return Course{}, errors.WithContext(err, "marshal")
	}

	if err := afero.WriteFile(fs, course.path, yamlBytes, 0644); err != nil {
		return Course{}, errors.WithContext(err, "write")
	}
	return course, nil
}

// FindCourses walks the library for course metadata records. Unparseable
// records are logged and skipped so that one broken course can't block the
// rest of the library from updating.
func FindCourses(library string) ([]Course, error) {
	var courses []Course
	err := afero.Walk(fs, library, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			// A directory we can't read shouldn't abort the whole scan.
			log.WithError(err).WithField("path", path).Warn(
				"Failed to scan library directory")
			return nil
		}

		if fi.IsDir() || filepath.Base(path) != CourseConfigName {
			return nil
		}

		course, err := ParseCourse(filepath.Dir(path))
		if err != nil {
			log.WithError(err).WithField("path", path).Warn(
				"Skipping unparseable course record")
			return nil
		}

		courses = append(courses, course)
		// Course folders don't nest.
		return filepath.SkipDir
	})
	if err != nil {
		return nil, errors.WithContext(err, "walk library")
	}
	return courses, nil
}
