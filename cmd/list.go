package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/metal-toolbox/assetkeeper/internal/model"
)

type listFlags struct {
	statuses   []string
	types      []string
	subtypes   []string
	priorities []string
	parents    []string
}

var (
	listFlagSet = &listFlags{}
)

var cmdList = &cobra.Command{
	Use:   "list",
	Short: "List asset names, filter values are OR'ed and filters are AND'ed",
	Run: func(cmd *cobra.Command, args []string) {
		list(cmd.Context())
	},
}

func list(ctx context.Context) {
	k := newKeeper(ctx, model.AppKindClient)
	defer k.Close()

	filters := model.Filters{
		model.FilterStatus:   listFlagSet.statuses,
		model.FilterType:     listFlagSet.types,
		model.FilterSubtype:  listFlagSet.subtypes,
		model.FilterPriority: listFlagSet.priorities,
		model.FilterParent:   listFlagSet.parents,
	}

	names, err := k.engine.List(ctx, filters)
	if err != nil {
		k.Logger.Fatal(err)
	}

	for _, name := range names {
		fmt.Println(name)
	}
}

func init() {
	cmdList.PersistentFlags().StringSliceVar(&listFlagSet.statuses, "status", nil, "active, nonactive")
	cmdList.PersistentFlags().StringSliceVar(&listFlagSet.types, "type", nil, "asset types, e.g. datacenter,rack,device")
	cmdList.PersistentFlags().StringSliceVar(&listFlagSet.subtypes, "subtype", nil, "asset subtypes, e.g. ups,epdu")
	cmdList.PersistentFlags().StringSliceVar(&listFlagSet.priorities, "priority", nil, "asset priorities")
	cmdList.PersistentFlags().StringSliceVar(&listFlagSet.parents, "parent", nil, "parent asset names")

	rootCmd.AddCommand(cmdList)
}
