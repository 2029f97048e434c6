package daily

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/lectern-sync/lectern/cmd/util"
	"github.com/lectern-sync/lectern/pkg/config"
	"github.com/lectern-sync/lectern/pkg/daily"
	"github.com/lectern-sync/lectern/pkg/engine"
	"github.com/lectern-sync/lectern/pkg/errors"
	"github.com/lectern-sync/lectern/pkg/portal"
	"github.com/lectern-sync/lectern/pkg/state"
)

// New creates a new `daily` command.
func New() *cobra.Command {
	var force bool
	var intervalMinutes int
	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Sync the whole library once per day, unattended.",
		Long: "Sync the whole library once per day, unattended.\n\n" +
			"Meant to be started on login (cron @reboot, a systemd user unit, " +
			"or an autostart entry). It waits for the browser session to " +
			"become available, runs one full pass, records the date in the " +
			"shared state, and exits. If the state says today's pass already " +
			"ran -- on this device or another one sharing the library -- it " +
			"exits immediately without touching the portal.",
		Run: func(_ *cobra.Command, _ []string) {
			if err := run(force, intervalMinutes); err != nil {
				util.HandleFatalError(err)
			}
		},
	}
	cmd.Flags().BoolVar(&force, "force", false,
		"Sync even if today's pass already ran")
	cmd.Flags().IntVar(&intervalMinutes, "interval", 0,
		"Minutes between availability checks (defaults to the config value)")
	return cmd
}

func run(force bool, intervalMinutes int) error {
	cfg, err := config.ParseUser()
	if err != nil {
		return errors.WithContext(err, "parse user config")
	}

	interval := cfg.CheckInterval()
	if intervalMinutes > 0 {
		interval = time.Duration(intervalMinutes) * time.Minute
	}

	provider := &portal.FirefoxProvider{
		Domain:  cfg.PortalDomain,
		Spacing: cfg.RequestSpacing(),
	}

	fs := afero.NewOsFs()
	controller := &daily.Controller{
		Clock:     clockwork.NewRealClock(),
		Interval:  interval,
		Force:     force,
		Available: provider.Available,
		Store:     state.NewStore(fs, cfg.Library),
		Sync: func() error {
			courses, err := config.FindCourses(cfg.Library)
			if err != nil {
				return errors.WithContext(err, "scan library")
			}

			session, err := provider.Session()
			if err != nil {
				return errors.WithContext(err, "build portal session")
			}

			// The run is unattended, so no confirmation callback: oversized
			// batches are deferred to an interactive `lectern update` unless
			// the run was forced.
			eng := engine.New(fs, cfg.Library, session, engine.Settings{
				ConfirmationThreshold: cfg.ConfirmationThreshold,
				Force:                 force,
			}, nil)

			reports, err := eng.SyncAll(courses)
			for _, report := range reports {
				fmt.Println(report.Summary())
			}
			return err
		},
	}
	return controller.Run()
}
