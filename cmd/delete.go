package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/metal-toolbox/assetkeeper/internal/model"
)

var cmdDelete = &cobra.Command{
	Use:   "delete",
	Short: "delete resources [assets|all]",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

type deleteFlags struct {
	names               []string
	recursive           bool
	allowLastDatacenter bool
	confirm             bool
}

var (
	deleteFlagSet = &deleteFlags{}
)

var cmdDeleteAssets = &cobra.Command{
	Use:   "assets --name <name> [--name <name>] [--recursive]",
	Short: "Delete assets, with their descendants when recursive",
	Run: func(cmd *cobra.Command, args []string) {
		deleteAssets(cmd.Context())
	},
}

var cmdDeleteAll = &cobra.Command{
	Use:   "all --yes",
	Short: "Delete every asset except the protected root",
	Run: func(cmd *cobra.Command, args []string) {
		deleteAll(cmd.Context())
	},
}

// printReport prints the outcome of every removal, false when one failed.
func printReport(report model.DeleteReport) bool {
	for _, r := range report {
		fmt.Printf("%s: %s\n", r.Asset.Name, r.Status)
	}

	return len(report.Failed()) == 0
}

func deleteAssets(ctx context.Context) {
	k := newKeeper(ctx, model.AppKindClient)

	ok := printReport(k.engine.DeleteList(ctx, deleteFlagSet.names, deleteFlagSet.recursive, deleteFlagSet.allowLastDatacenter))

	k.Close()

	if !ok {
		os.Exit(1)
	}
}

func deleteAll(ctx context.Context) {
	if !deleteFlagSet.confirm {
		log.Fatal("--yes is required to delete every asset")
	}

	k := newKeeper(ctx, model.AppKindClient)

	report, err := k.engine.DeleteAll(ctx)
	if err != nil {
		k.Close()
		k.Logger.Fatal(err)
	}

	ok := printReport(report)

	k.Close()

	if !ok {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(cmdDelete)

	cmdDeleteAssets.PersistentFlags().StringSliceVar(&deleteFlagSet.names, "name", nil, "asset internal names")
	cmdDeleteAssets.PersistentFlags().BoolVar(&deleteFlagSet.recursive, "recursive", false, "delete the descendants of the named assets")
	cmdDeleteAssets.PersistentFlags().BoolVar(&deleteFlagSet.allowLastDatacenter, "allow-last-datacenter", false, "allow removing the last datacenter class asset")
	cmdDeleteAll.PersistentFlags().BoolVar(&deleteFlagSet.confirm, "yes", false, "confirm the deletion of every asset")

	if err := cmdDeleteAssets.MarkPersistentFlagRequired("name"); err != nil {
		log.Fatal(err)
	}

	cmdDelete.AddCommand(cmdDeleteAssets, cmdDeleteAll)
}
