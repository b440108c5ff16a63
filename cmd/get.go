package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/metal-toolbox/assetkeeper/internal/model"
)

var cmdGet = &cobra.Command{
	Use:   "get",
	Short: "get resources [asset|parents|children]",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// command get asset
type getFlags struct {
	name  string
	links bool
}

var (
	getFlagSet = &getFlags{}
)

var cmdGetAsset = &cobra.Command{
	Use:   "asset",
	Short: "Get asset attributes",
	Run: func(cmd *cobra.Command, args []string) {
		getAsset(cmd.Context())
	},
}

var cmdGetParents = &cobra.Command{
	Use:   "parents",
	Short: "List the ancestors of an asset, the direct parent first",
	Run: func(cmd *cobra.Command, args []string) {
		getParents(cmd.Context())
	},
}

var cmdGetChildren = &cobra.Command{
	Use:   "children",
	Short: "List the assets directly contained in an asset",
	Run: func(cmd *cobra.Command, args []string) {
		getChildren(cmd.Context())
	},
}

func getAsset(ctx context.Context) {
	k := newKeeper(ctx, model.AppKindClient)
	defer k.Close()

	a, err := k.engine.Load(ctx, getFlagSet.name, getFlagSet.links)
	if err != nil {
		k.Logger.Fatal(err)
	}

	spew.Dump(a)
}

func getParents(ctx context.Context) {
	k := newKeeper(ctx, model.AppKindClient)
	defer k.Close()

	parents, err := k.engine.ParentsList(ctx, getFlagSet.name)
	if err != nil {
		k.Logger.Fatal(err)
	}

	for _, p := range parents {
		fmt.Println(p)
	}
}

func getChildren(ctx context.Context) {
	k := newKeeper(ctx, model.AppKindClient)
	defer k.Close()

	children, err := k.engine.Children(ctx, getFlagSet.name)
	if err != nil {
		k.Logger.Fatal(err)
	}

	for _, c := range children {
		fmt.Println(c)
	}
}

func init() {
	rootCmd.AddCommand(cmdGet)

	cmdGet.PersistentFlags().StringVar(&getFlagSet.name, "name", "", "asset internal name")
	cmdGetAsset.PersistentFlags().BoolVar(&getFlagSet.links, "links", false, "include the links whose destination is the asset")

	if err := cmdGet.MarkPersistentFlagRequired("name"); err != nil {
		log.Fatal(err)
	}

	cmdGet.AddCommand(cmdGetAsset, cmdGetParents, cmdGetChildren)
}
