package cmd

import (
	"context"
	"log"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/metal-toolbox/assetkeeper/internal/activation"
	"github.com/metal-toolbox/assetkeeper/internal/app"
	"github.com/metal-toolbox/assetkeeper/internal/asset"
	"github.com/metal-toolbox/assetkeeper/internal/events"
	"github.com/metal-toolbox/assetkeeper/internal/model"
	"github.com/metal-toolbox/assetkeeper/internal/natsconn"
	"github.com/metal-toolbox/assetkeeper/internal/store"
)

var (
	ErrEngineInit = errors.New("asset engine initialization error")
)

// keeper bundles what a command needs to run asset operations.
type keeper struct {
	*app.App
	engine *asset.Engine
	conn   *nats.Conn
	repo   store.Repository
}

func (k *keeper) Close() {
	if k.conn != nil {
		k.conn.Close()
	}

	if err := k.repo.Close(); err != nil {
		k.Logger.WithError(err).Warn("asset store close")
	}
}

// newKeeper loads the configuration and returns the asset engine,
// the command exits on error.
func newKeeper(ctx context.Context, appKind model.AppKind) *keeper {
	a, err := app.New(appKind, cfgFile, logLevel)
	if err != nil {
		log.Fatal(err)
	}

	k, err := initEngine(ctx, a)
	if err != nil {
		a.Logger.Fatal(err)
	}

	return k
}

// initEngine opens the asset store and, when configured, the NATS connection
// the activation client and the event publisher run on.
//
// A NATS connection is required unless the engine is detached.
func initEngine(ctx context.Context, a *app.App) (*keeper, error) {
	repo, err := store.NewRepository(ctx, a.StoreOptions(), a.Logger)
	if err != nil {
		return nil, errors.Wrap(ErrEngineInit, err.Error())
	}

	k := &keeper{App: a, repo: repo}

	opts := []asset.Option{
		asset.WithDetached(a.Config.Detached),
		asset.WithRootController(a.Config.RootController),
	}

	var activator activation.Activator

	if a.Config.Nats.URL != "" || !a.Config.Detached {
		params, err := a.NatsParams()
		if err != nil {
			k.Close()
			return nil, errors.Wrap(ErrEngineInit, err.Error())
		}

		k.conn, err = natsconn.Connect(ctx, params, a.Logger)
		if err != nil {
			k.Close()
			return nil, errors.Wrap(ErrEngineInit, err.Error())
		}

		prefix := a.Config.Nats.SubjectPrefix

		activator = activation.NewNATS(
			k.conn,
			a.Logger,
			activation.WithRequestTimeout(a.Config.Activation.RequestTimeout),
			activation.WithSubjectPrefix(prefix),
		)

		opts = append(opts, asset.WithPublisher(events.NewNATSPublisher(k.conn, prefix, a.Logger)))
	}

	k.engine, err = asset.NewEngine(repo, activator, a.Logger, opts...)
	if err != nil {
		k.Close()
		return nil, errors.Wrap(ErrEngineInit, err.Error())
	}

	return k, nil
}
