package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	dailyCmd "github.com/lectern-sync/lectern/cmd/daily"
	getCmd "github.com/lectern-sync/lectern/cmd/get"
	updateCmd "github.com/lectern-sync/lectern/cmd/update"
	upgradeCmd "github.com/lectern-sync/lectern/cmd/upgrade"
	"github.com/lectern-sync/lectern/cmd/util"
	versionCmd "github.com/lectern-sync/lectern/cmd/version"
)

// verboseLogKey is the environment variable used to enable verbose logging.
// When it's set to `true`, Debug events are logged, rather than just Info
// and above.
const verboseLogKey = "LECTERN_LOG_VERBOSE"

// Execute runs the main CLI process.
func Execute() {
	if os.Getenv(verboseLogKey) == "true" {
		log.SetLevel(log.DebugLevel)
	}

	rootCmd := &cobra.Command{
		Use:          "lectern",
		Short:        "Keep a local mirror of your learning-portal courses.",
		SilenceUsage: true,

		// The call to rootCmd.Execute prints the error, so we silence errors
		// here to avoid double printing.
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		dailyCmd.New(),
		getCmd.New(),
		updateCmd.New(),
		upgradeCmd.New(),
		versionCmd.New(),
	)

	if err := rootCmd.Execute(); err != nil {
		util.HandleFatalError(err)
	}
}
