package get

import (
	"bufio"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/lectern-sync/lectern/cmd/util"
	"github.com/lectern-sync/lectern/pkg/config"
	"github.com/lectern-sync/lectern/pkg/engine"
	"github.com/lectern-sync/lectern/pkg/errors"
	"github.com/lectern-sync/lectern/pkg/portal"
)

// New creates a new `get` command.
func New() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "get [url] [path]",
		Short: "Add a course to the library and download its files.",
		Long: "Add a course to the library and download its files.\n\n" +
			"The course's root URL can be given as an argument, copied to the " +
			"clipboard, or typed at the prompt. The course folder defaults to " +
			"the course's title under the library; pass a path to override " +
			"it. A course record is written into the folder so that " +
			"`lectern update` finds it from then on.",
		Args: cobra.MaximumNArgs(2),
		Run: func(_ *cobra.Command, args []string) {
			var rootURL, dir string
			if len(args) > 0 {
				rootURL = args[0]
			}
			if len(args) > 1 {
				dir = args[1]
			}
			if err := run(rootURL, dir, force); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVar(&force, "force", false,
		"Download without asking, even for large batches")
	return cmd
}

func run(rootURL, dir string, force bool) error {
	cfg, err := config.ParseUser()
	if err != nil {
		return errors.WithContext(err, "parse user config")
	}

	rootURL, err = resolveRootURL(rootURL, cfg.PortalDomain)
	if err != nil {
		return err
	}

	provider := &portal.FirefoxProvider{
		Domain:  cfg.PortalDomain,
		Spacing: cfg.RequestSpacing(),
	}
	session, err := provider.Session()
	if err != nil {
		return errors.WithContext(err, "build portal session")
	}

	walker := portal.NewWalker(session)
	title, err := walker.CourseTitle(rootURL)
	if err != nil {
		return errors.WithContext(err, "fetch course page")
	}

	id := portal.RemoteID(rootURL)
	if title == "" {
		title = "course-" + id
		log.Warn("Couldn't determine the course title from its page. " +
			"Rename the folder if you like; the record inside it keeps " +
			"the course identity.")
	}

	if dir == "" {
		dir = filepath.Join(cfg.Library, title)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.WithContext(err, "create course folder")
	}

	course, err := config.WriteCourse(dir, config.Course{
		ID:          id,
		Name:        title,
		RootURL:     rootURL,
		FirstSynced: time.Now(),
	})
	if err != nil {
		return errors.WithContext(err, "write course record")
	}

	eng := engine.New(afero.NewOsFs(), cfg.Library, session, engine.Settings{
		ConfirmationThreshold: cfg.ConfirmationThreshold,
		Force:                 force,
	}, util.PromptYesOrNo)

	report, err := eng.SyncCourse(course)
	fmt.Println(report.Summary())
	if err != nil {
		return err
	}

	fmt.Printf("Course %q is now tracked under %q.\n", course.Name, dir)
	return nil
}

// resolveRootURL finds the course URL to sync, in order of preference: the
// command-line argument, the clipboard, a prompt.
func resolveRootURL(arg, domain string) (string, error) {
	if arg != "" {
		return validateURL(arg, domain)
	}

	if clip, err := clipboard.ReadAll(); err == nil {
		clip = strings.TrimSpace(clip)
		if strings.Contains(clip, domain) {
			if resolved, err := validateURL(clip, domain); err == nil {
				log.WithField("url", resolved).Info("Using the URL from the clipboard")
				return resolved, nil
			}
		}
	}

	fmt.Printf("Paste the course's URL on %s: ", domain)
	reader := bufio.NewReader(os.Stdin)
	typed, err := reader.ReadString('\n')
	if err != nil {
		return "", errors.WithContext(err, "read url")
	}
	return validateURL(strings.TrimSpace(typed), domain)
}

func validateURL(rawURL, domain string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", errors.NewFriendlyError(
			"%q doesn't look like a course URL.\n"+
				"Open the course on %s in your browser and copy the address "+
				"bar.", rawURL, domain)
	}
	return rawURL, nil
}
