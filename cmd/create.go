package cmd

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/metal-toolbox/assetkeeper/internal/model"
)

type createFlags struct {
	name     string
	kind     string
	subtype  string
	parent   string
	priority int
	ext      map[string]string
}

var (
	createFlagSet = &createFlags{}
)

var cmdCreate = &cobra.Command{
	Use:   "create --type <type> [--subtype <subtype>] [--name <name>] [--parent <name>]",
	Short: "Create an asset, a unique name is generated when none is given or the name is taken",
	Run: func(cmd *cobra.Command, args []string) {
		create(cmd.Context())
	},
}

func create(ctx context.Context) {
	k := newKeeper(ctx, model.AppKindClient)
	defer k.Close()

	t, err := model.ParseType(createFlagSet.kind)
	if err != nil {
		k.Logger.Fatal(err)
	}

	a := model.NewAsset(t, createFlagSet.subtype)
	a.Name = createFlagSet.name
	a.Parent = createFlagSet.parent
	a.Priority = createFlagSet.priority

	for key, value := range createFlagSet.ext {
		a.SetExt(key, value, false)
	}

	if err := k.engine.Create(ctx, a); err != nil {
		k.Logger.Fatal(err)
	}

	fmt.Println(a.Name)
}

func init() {
	cmdCreate.PersistentFlags().StringVar(&createFlagSet.kind, "type", "", "asset type, e.g. datacenter, rack, device")
	cmdCreate.PersistentFlags().StringVar(&createFlagSet.subtype, "subtype", model.SubtypeNA, "asset subtype, e.g. ups, epdu")
	cmdCreate.PersistentFlags().StringVar(&createFlagSet.name, "name", "", "internal name")
	cmdCreate.PersistentFlags().StringVar(&createFlagSet.parent, "parent", "", "parent asset name")
	cmdCreate.PersistentFlags().IntVar(&createFlagSet.priority, "priority", 5, "asset priority")
	cmdCreate.PersistentFlags().StringToStringVar(&createFlagSet.ext, "ext", nil, "extended attributes, e.g. manufacturer=Eaton,serial_no=G202E05019")

	if err := cmdCreate.MarkPersistentFlagRequired("type"); err != nil {
		log.Fatal(err)
	}

	rootCmd.AddCommand(cmdCreate)
}
