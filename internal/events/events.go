// Package events publishes asset change events.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"

	"github.com/metal-toolbox/assetkeeper/internal/metrics"
	"github.com/metal-toolbox/assetkeeper/internal/model"
	"github.com/metal-toolbox/assetkeeper/types"
)

//go:generate mockgen -source events.go -destination=mock_publisher.go -package=events

var (
	ErrPublish = errors.New("error publishing asset event")
)

// Publisher sends asset change events, it is invoked after the change is committed.
type Publisher interface {
	Publish(ctx context.Context, event *model.Event) error
}

// Subject returns the subject events for the operation are published on.
func Subject(prefix string, op model.Operation) string {
	return prefix + ".events." + string(op)
}

// NATSPublisher publishes events on <prefix>.events.<operation>.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	logger *logrus.Logger
}

// NewNATSPublisher returns a Publisher over the NATS connection.
func NewNATSPublisher(conn *nats.Conn, prefix string, logger *logrus.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = model.AppName
	}

	return &NATSPublisher{conn: conn, prefix: prefix, logger: logger}
}

func (p *NATSPublisher) Publish(ctx context.Context, event *model.Event) (err error) {
	defer func() {
		metrics.EventsPublishedCounter.With(map[string]string{
			"operation": string(event.Operation),
			"result":    metrics.Result(err),
		}).Inc()
	}()

	payload, err := json.Marshal(event.Asset)
	if err != nil {
		return errors.Wrap(ErrPublish, err.Error())
	}

	value := &types.EventValue{
		PublishedAt: time.Now(),
		Source:      model.AppName,
		Operation:   string(event.Operation),
		Asset:       event.Asset.ID,
		Payload:     payload,
	}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		value.TraceID = sc.TraceID().String()
		value.SpanID = sc.SpanID().String()
	}

	if err := p.conn.Publish(Subject(p.prefix, event.Operation), value.MustBytes()); err != nil {
		return errors.Wrap(ErrPublish, err.Error())
	}

	p.logger.WithFields(
		logrus.Fields{
			"operation": event.Operation,
			"asset":     event.Asset.ID,
		}).Trace("asset event published")

	return nil
}

// Noop discards events.
type Noop struct{}

func (Noop) Publish(context.Context, *model.Event) error { return nil }
