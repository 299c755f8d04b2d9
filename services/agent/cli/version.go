package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/SLAMon/SLAMon/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		version.Print(os.Stdout, "slamon-agent")
	},
}
