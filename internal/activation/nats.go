package activation

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/metal-toolbox/assetkeeper/internal/metrics"
	"github.com/metal-toolbox/assetkeeper/internal/model"
	"github.com/metal-toolbox/assetkeeper/types"
)

const (
	pkgName = "internal/activation"

	DefaultRequestTimeout = 5 * time.Second

	opActivable  = "activable"
	opActivate   = "activate"
	opDeactivate = "deactivate"
)

// NATS is an Activator that sends requests to the activation service over NATS request/reply.
//
// Requests are published on <prefix>.activation.<operation>.
type NATS struct {
	conn    *nats.Conn
	prefix  string
	timeout time.Duration
	logger  *logrus.Logger
}

// Option sets a parameter on the NATS activator.
type Option func(*NATS)

// WithRequestTimeout sets the per-request timeout.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *NATS) {
		if timeout > 0 {
			n.timeout = timeout
		}
	}
}

// WithSubjectPrefix sets the subject prefix, the default is the app name.
func WithSubjectPrefix(prefix string) Option {
	return func(n *NATS) {
		if prefix != "" {
			n.prefix = prefix
		}
	}
}

// NewNATS returns an Activator over the given NATS connection.
func NewNATS(conn *nats.Conn, logger *logrus.Logger, opts ...Option) *NATS {
	n := &NATS{
		conn:    conn,
		prefix:  model.AppName,
		timeout: DefaultRequestTimeout,
		logger:  logger,
	}

	for _, opt := range opts {
		opt(n)
	}

	return n
}

// Subject returns the subject requests for the operation are published on.
func Subject(prefix, operation string) string {
	return prefix + ".activation." + operation
}

func (n *NATS) IsActivable(ctx context.Context, asset *model.Asset) (bool, error) {
	resp, err := n.request(ctx, opActivable, asset)
	if err != nil {
		return false, err
	}

	return resp.Activable, nil
}

func (n *NATS) Activate(ctx context.Context, asset *model.Asset) error {
	_, err := n.request(ctx, opActivate, asset)
	return err
}

func (n *NATS) Deactivate(ctx context.Context, asset *model.Asset) error {
	_, err := n.request(ctx, opDeactivate, asset)
	return err
}

func (n *NATS) request(ctx context.Context, operation string, asset *model.Asset) (resp *types.ActivationResponse, err error) {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "NATS.request")
	defer span.End()

	span.SetAttributes(
		attribute.String("operation", operation),
		attribute.String("asset", asset.Name),
	)

	defer func() {
		metrics.ActivationCallCounter.With(map[string]string{
			"operation": operation,
			"result":    metrics.Result(err),
		}).Inc()
	}()

	uuid, _ := asset.ExtValue(model.ExtUUID)

	req := &types.ActivationRequest{
		Asset:        asset.Name,
		Type:         asset.Type.String(),
		Subtype:      asset.Subtype,
		UUID:         uuid,
		Manufacturer: asset.Manufacturer(),
		Model:        asset.Model(),
		Serial:       asset.Serial(),
	}

	reqCtx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	msg, err := n.conn.RequestWithContext(reqCtx, Subject(n.prefix, operation), req.MustBytes())
	if err != nil {
		n.logger.WithFields(
			logrus.Fields{
				"operation": operation,
				"asset":     asset.Name,
				"err":       err,
			}).Warn("activation request failed")

		return nil, errors.Wrap(model.ErrActivationService, operation+": "+err.Error())
	}

	resp = &types.ActivationResponse{}
	if err := json.Unmarshal(msg.Data, resp); err != nil {
		return nil, errors.Wrap(model.ErrActivationService, operation+": invalid reply: "+err.Error())
	}

	switch resp.Status {
	case types.StatusOK:
		return resp, nil
	case types.StatusDenied:
		return nil, errors.Wrap(model.ErrActivationDenied, asset.Name+": "+resp.Error)
	default:
		return nil, errors.Wrap(model.ErrActivationService, operation+": "+resp.Error)
	}
}
