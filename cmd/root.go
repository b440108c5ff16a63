package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "assetkeeper",
	Short: "Keeps a hierarchical asset inventory consistent",
	Long: `assetkeeper stores datacenters, rooms, rows, racks, devices and groups in a
hierarchy, and creates, updates, activates and removes them without breaking
the hierarchy or the links between assets.`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file, environment variables prefixed ASSETKEEPER_ override its values")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "set logging level - info, debug, trace")
}
