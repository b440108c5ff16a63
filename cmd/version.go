package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/metal-toolbox/assetkeeper/internal/version"
)

var cmdVersion = &cobra.Command{
	Use:   "version",
	Short: "Print assetkeeper version along with dependency information.",
	Run: func(_ *cobra.Command, args []string) {
		v := version.Current()

		fmt.Printf(
			"commit: %s\nbranch: %s\ngit summary: %s\nbuildDate: %s\nversion: %s\nGo version: %s\nnats version: %s\nsqlite version: %s\n",
			v.GitCommit, v.GitBranch, v.GitSummary, v.BuildDate, v.AppVersion, v.GoVersion, v.NatsVersion, v.SQLiteVersion)
	},
}

func init() {
	rootCmd.AddCommand(cmdVersion)
}
