// Package natsconn establishes the NATS connection shared by the activation client,
// the event publisher and the request service.
package natsconn

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/metal-toolbox/assetkeeper/internal/model"
)

const (
	defaultConnectAttempts = 5
	defaultConnectTimeout  = 60 * time.Second
)

var (
	ErrNatsConnect = errors.New("error connecting to NATS")
	ErrNatsParams  = errors.New("NATS connection parameter error")
)

// Params are the NATS connection parameters.
type Params struct {
	URL            string
	CredsFile      string
	ConnectTimeout time.Duration

	// Attempts is the number of connection attempts before giving up.
	Attempts int
}

// Connect dials the NATS server, re-trying with exponential backoff.
func Connect(ctx context.Context, params *Params, logger *logrus.Logger) (*nats.Conn, error) {
	if params.URL == "" {
		return nil, errors.Wrap(ErrNatsParams, "missing parameter: nats.url")
	}

	attempts := params.Attempts
	if attempts == 0 {
		attempts = defaultConnectAttempts
	}

	// nolint:gomnd // time duration definitions are clear as is.
	delay := &backoff.Backoff{
		Min:    1 * time.Second,
		Max:    15 * time.Second,
		Factor: 2,
		Jitter: true,
	}

	opts := options(params, logger)

	for attempt := 1; ; attempt++ {
		conn, err := nats.Connect(params.URL, opts...)
		if err == nil {
			logger.WithField("url", conn.ConnectedUrlRedacted()).Debug("connected to NATS")
			return conn, nil
		}

		attemptstr := fmt.Sprintf("%d/%d", attempt, attempts)

		logger.WithFields(
			logrus.Fields{
				"attempt": attemptstr,
				"err":     err,
			}).Debug("NATS connect error")

		if attempt >= attempts {
			return nil, errors.Wrapf(ErrNatsConnect, "attempts: %s, last error: %s", attemptstr, err.Error())
		}

		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ErrNatsConnect, ctx.Err().Error())
		case <-time.After(delay.Duration()):
		}
	}
}

func options(params *Params, logger *logrus.Logger) []nats.Option {
	timeout := params.ConnectTimeout
	if timeout == 0 {
		timeout = defaultConnectTimeout
	}

	opts := []nats.Option{
		nats.Name(model.AppName),
		nats.Timeout(timeout),
		nats.RetryOnFailedConnect(false),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			fields := logrus.Fields{"err": err}
			if sub != nil {
				fields["subject"] = sub.Subject
			}

			logger.WithFields(fields).Error("NATS async error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			logger.WithField("url", conn.ConnectedUrlRedacted()).Info("NATS reconnected")
		}),
	}

	if params.CredsFile != "" {
		opts = append(opts, nats.UserCredentials(params.CredsFile))
	}

	return opts
}
