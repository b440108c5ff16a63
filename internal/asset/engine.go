// Package asset implements the asset lifecycle and the hierarchy consistent bulk removal of assets.
package asset

import (
	"context"
	"time"

	sw "github.com/filanov/stateswitch"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/metal-toolbox/assetkeeper/internal/activation"
	"github.com/metal-toolbox/assetkeeper/internal/events"
	"github.com/metal-toolbox/assetkeeper/internal/metrics"
	"github.com/metal-toolbox/assetkeeper/internal/model"
	"github.com/metal-toolbox/assetkeeper/internal/store"
)

const (
	pkgName = "internal/asset"
)

var (
	ErrEngineConfig = errors.New("asset engine configuration error")
)

// Engine applies lifecycle operations on assets in the store
// and keeps the hierarchy, links and activation status consistent.
//
// Each call runs to completion on the caller goroutine, the store transaction is the only shared resource.
type Engine struct {
	repo      store.Repository
	activator activation.Activator
	publisher events.Publisher
	logger    *logrus.Logger
	statusSM  sw.StateMachine

	// detached skips the activation service, status changes are local.
	detached bool

	// rootController is the asset that is never removed.
	rootController string

	// now and randIntn are replaced in tests.
	now      func() time.Time
	randIntn func(n int) int
}

// Option sets a parameter on the Engine.
type Option func(*Engine)

// WithDetached runs the engine without the activation service,
// status changes are persisted but never sent to the activation service.
func WithDetached(detached bool) Option {
	return func(e *Engine) {
		e.detached = detached
	}
}

// WithRootController sets the name of the protected root asset.
func WithRootController(name string) Option {
	return func(e *Engine) {
		if name != "" {
			e.rootController = name
		}
	}
}

// WithPublisher sets the asset event publisher.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.publisher = p
		}
	}
}

// NewEngine returns an Engine over the asset store,
// the activator may be nil only when the engine is detached.
func NewEngine(repo store.Repository, activator activation.Activator, logger *logrus.Logger, opts ...Option) (*Engine, error) {
	if repo == nil {
		return nil, errors.Wrap(ErrEngineConfig, "asset store required")
	}

	e := &Engine{
		repo:           repo,
		activator:      activator,
		publisher:      events.Noop{},
		logger:         logger,
		rootController: model.RootController,
		now:            time.Now,
		randIntn:       randIntn,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.activator == nil && !e.detached {
		return nil, errors.Wrap(ErrEngineConfig, "activator required unless detached")
	}

	e.statusSM = e.newStatusStateMachine()

	return e, nil
}

// Detached returns true when the engine runs without the activation service.
func (e *Engine) Detached() bool {
	return e.detached
}

// withTx runs fn in a store transaction,
// the transaction is committed when fn returns nil and rolled back otherwise.
func (e *Engine) withTx(ctx context.Context, fn func(tx store.Tx) error) (err error) {
	tx, err := e.repo.Begin(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if err == nil {
			return
		}

		if rerr := tx.Rollback(); rerr != nil {
			e.logger.WithFields(logrus.Fields{"err": rerr}).Warn("transaction rollback failed")
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// publish sends the asset event, failures are logged since the change is already committed.
func (e *Engine) publish(ctx context.Context, op model.Operation, asset *model.Asset) {
	if err := e.publisher.Publish(ctx, model.NewEvent(op, asset)); err != nil {
		e.logger.WithFields(
			logrus.Fields{
				"operation": op,
				"asset":     asset.Name,
				"err":       err,
			}).Warn("asset event publish failed")
	}
}

// observe returns a func that records the operation metrics, it is deferred by
// operations with a named error return.
func observe(op string, err *error) func() {
	startTS := time.Now()

	return func() {
		metrics.ObserveOperation(op, startTS, *err)
	}
}
