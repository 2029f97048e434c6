package update

import (
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/lectern-sync/lectern/cmd/util"
	"github.com/lectern-sync/lectern/pkg/config"
	"github.com/lectern-sync/lectern/pkg/engine"
	"github.com/lectern-sync/lectern/pkg/errors"
	"github.com/lectern-sync/lectern/pkg/portal"
)

// New creates a new `update` command.
func New() *cobra.Command {
	var force bool
	var workers int
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Download new files for every course in the library.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(force, workers); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVar(&force, "force", false,
		"Download without asking, even for large batches")
	cmd.Flags().IntVar(&workers, "workers", 1,
		"How many courses to sync concurrently")
	return cmd
}

func run(force bool, workers int) error {
	cfg, err := config.ParseUser()
	if err != nil {
		return errors.WithContext(err, "parse user config")
	}

	courses, err := config.FindCourses(cfg.Library)
	if err != nil {
		return errors.WithContext(err, "scan library")
	}

	provider := &portal.FirefoxProvider{
		Domain:  cfg.PortalDomain,
		Spacing: cfg.RequestSpacing(),
	}
	session, err := provider.Session()
	if err != nil {
		return errors.WithContext(err, "build portal session")
	}

	eng := engine.New(afero.NewOsFs(), cfg.Library, session, engine.Settings{
		ConfirmationThreshold: cfg.ConfirmationThreshold,
		Force:                 force,
		CourseWorkers:         workers,
	}, util.PromptYesOrNo)

	reports, err := eng.SyncAll(courses)
	for _, report := range reports {
		fmt.Println(report.Summary())
	}
	return err
}
