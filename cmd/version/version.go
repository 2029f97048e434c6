package version

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lectern-sync/lectern/pkg/version"
)

// New creates a new cobra command for printing version information.
func New() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the Lectern version.",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("Local version: %s\n", version.Version)
		},
	}
}
