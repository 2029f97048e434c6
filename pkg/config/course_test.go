package config

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCourse(t *testing.T) {
	dir := "/library/Algorithms"

	tests := []struct {
		name      string
		input     []byte
		expCourse Course
		expError  bool
	}{
		{
			name: "Complete",
			input: mustMarshal(Course{
				Version: SupportedCourseConfigVersion,
				ID:      "12345",
				Name:    "Algorithms",
				RootURL: "https://portal.example/goto.php?ref_id=12345",
			}),
			expCourse: Course{
				Version: SupportedCourseConfigVersion,
				ID:      "12345",
				Name:    "Algorithms",
				RootURL: "https://portal.example/goto.php?ref_id=12345",
				path:    "/library/Algorithms/course.yaml",
			},
		},
		{
			name: "MissingID",
			input: mustMarshal(Course{
				Version: SupportedCourseConfigVersion,
				Name:    "Algorithms",
				RootURL: "https://portal.example/goto.php?ref_id=12345",
			}),
			expError: true,
		},
		{
			name: "MissingRootURL",
			input: mustMarshal(Course{
				Version: SupportedCourseConfigVersion,
				ID:      "12345",
				Name:    "Algorithms",
			}),
			expError: true,
		},
	}
	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fs = afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(
				fs, "/library/Algorithms/"+CourseConfigName, test.input, 0644))

			course, err := ParseCourse(dir)
			if test.expError {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, test.expCourse, course)
			assert.Equal(t, dir, course.LocalRoot())
		})
	}
}

func TestWriteCourseRefusesOverwrite(t *testing.T) {
	fs = afero.NewMemMapFs()
	dir := "/library/Algorithms"

	original, err := WriteCourse(dir, Course{
		ID:      "12345",
		Name:    "Algorithms",
		RootURL: "https://portal.example/goto.php?ref_id=12345",
	})
	require.NoError(t, err)

	// A second write must return the existing record, not replace it. The
	// record is the course's durable identity.
	second, err := WriteCourse(dir, Course{
		ID:      "99999",
		Name:    "Renamed",
		RootURL: "https://portal.example/goto.php?ref_id=99999",
	})
	assert.NoError(t, err)
	assert.Equal(t, original.ID, second.ID)
	assert.Equal(t, original.RootURL, second.RootURL)
}

func TestFindCourses(t *testing.T) {
	fs = afero.NewMemMapFs()

	_, err := WriteCourse("/library/Algorithms", Course{
		ID:      "1",
		Name:    "Algorithms",
		RootURL: "https://portal.example/goto.php?ref_id=1",
	})
	require.NoError(t, err)
	_, err = WriteCourse("/library/Statistics", Course{
		ID:      "2",
		Name:    "Statistics",
		RootURL: "https://portal.example/goto.php?ref_id=2",
	})
	require.NoError(t, err)

	// A broken record shouldn't block the healthy courses.
	require.NoError(t, afero.WriteFile(
		fs, "/library/Broken/"+CourseConfigName, []byte("{not yaml"), 0644))

	courses, err := FindCourses("/library")
	assert.NoError(t, err)

	var ids []string
	for _, course := range courses {
		ids = append(ids, course.ID)
	}
	assert.ElementsMatch(t, []string{"1", "2"}, ids)
}
