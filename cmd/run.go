package cmd

import (
	"context"

	"github.com/equinix-labs/otel-init-go/otelinit"
	"github.com/spf13/cobra"

	"github.com/metal-toolbox/assetkeeper/internal/metrics"
	"github.com/metal-toolbox/assetkeeper/internal/model"
	"github.com/metal-toolbox/assetkeeper/internal/server"
	"github.com/metal-toolbox/assetkeeper/internal/version"
)

var cmdRun = &cobra.Command{
	Use:   "run",
	Short: "Run the assetkeeper service to answer asset requests over NATS",
	Run: func(cmd *cobra.Command, args []string) {
		runService(cmd.Context())
	},
}

// run service command
var (
	concurrency int
)

func runService(ctx context.Context) {
	ctx, otelShutdown := otelinit.InitOpenTelemetry(ctx, model.AppName)
	defer otelShutdown(ctx)

	// Setup cancel context with cancel func.
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	k := newKeeper(ctx, model.AppKindService)
	defer k.Close()

	if k.conn == nil {
		k.Logger.Fatal("nats.url parameter required")
	}

	// serve metrics endpoint
	metrics.ListenAndServe(k.Config.Metrics.ListenAddress, k.Logger)
	version.ExportBuildInfoMetric()

	// routine listens for termination signal and cancels the context
	go func() {
		<-k.TermCh
		k.Logger.Info("got TERM signal, exiting...")
		cancelFunc()
	}()

	s := server.New(
		k.conn,
		k.engine,
		k.Logger,
		server.WithSubjectPrefix(k.Config.Nats.SubjectPrefix),
		server.WithConcurrency(concurrency),
	)

	if err := s.Run(ctx); err != nil {
		k.Logger.Fatal(err)
	}
}

func init() {
	cmdRun.PersistentFlags().IntVar(&concurrency, "concurrency", 10, "The number of requests handled at once")

	rootCmd.AddCommand(cmdRun)
}
