package cmd

import (
	"context"
	"log"

	"github.com/spf13/cobra"

	"github.com/metal-toolbox/assetkeeper/internal/model"
)

var (
	statusNames []string
)

var cmdActivate = &cobra.Command{
	Use:   "activate --name <name>",
	Short: "Activate assets, devices are activated with the activation service",
	Run: func(cmd *cobra.Command, args []string) {
		changeStatus(cmd.Context(), true)
	},
}

var cmdDeactivate = &cobra.Command{
	Use:   "deactivate --name <name>",
	Short: "Deactivate assets",
	Run: func(cmd *cobra.Command, args []string) {
		changeStatus(cmd.Context(), false)
	},
}

func changeStatus(ctx context.Context, activate bool) {
	k := newKeeper(ctx, model.AppKindClient)
	defer k.Close()

	for _, name := range statusNames {
		a, err := k.engine.Load(ctx, name, false)
		if err != nil {
			k.Logger.Fatal(err)
		}

		if activate {
			err = k.engine.Activate(ctx, a)
		} else {
			err = k.engine.Deactivate(ctx, a)
		}

		if err != nil {
			k.Logger.WithField("asset", name).Fatal(err)
		}

		k.Logger.WithField("asset", name).Info("asset status is " + a.Status.String())
	}
}

func init() {
	for _, c := range []*cobra.Command{cmdActivate, cmdDeactivate} {
		c.PersistentFlags().StringSliceVar(&statusNames, "name", nil, "asset internal names")

		if err := c.MarkPersistentFlagRequired("name"); err != nil {
			log.Fatal(err)
		}

		rootCmd.AddCommand(c)
	}
}
