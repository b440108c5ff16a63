// Package server answers asset requests received over NATS.
package server

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/metal-toolbox/assetkeeper/internal/metrics"
	"github.com/metal-toolbox/assetkeeper/internal/model"
	"github.com/metal-toolbox/assetkeeper/internal/version"
	"github.com/metal-toolbox/assetkeeper/types"
)

const (
	pkgName = "internal/server"

	RequestGet        = "get"
	RequestList       = "list"
	RequestDelete     = "delete"
	RequestActivate   = "activate"
	RequestDeactivate = "deactivate"

	defaultConcurrency = 10
)

var (
	ErrSubscribe      = errors.New("error subscribing to request subject")
	ErrInvalidRequest = errors.New("invalid request")
)

// Assets is the asset engine the requests are applied to.
type Assets interface {
	Load(ctx context.Context, name string, withLinks bool) (*model.Asset, error)
	List(ctx context.Context, filters model.Filters) ([]string, error)
	DeleteList(ctx context.Context, names []string, recursive, allowLastDatacenter bool) model.DeleteReport
	Activate(ctx context.Context, asset *model.Asset) error
	Deactivate(ctx context.Context, asset *model.Asset) error
}

// Subject returns the subject requests of the given kind are received on.
func Subject(prefix, request string) string {
	return prefix + ".requests." + request
}

type handlerFunc func(ctx context.Context, req *types.Request) (any, error)

// Server replies to requests on <prefix>.requests.<request>.
type Server struct {
	conn     *nats.Conn
	assets   Assets
	logger   *logrus.Logger
	prefix   string
	limiter  *Limiter
	subs     []*nats.Subscription
	handlers map[string]handlerFunc
}

// Option sets a parameter on the Server.
type Option func(*Server)

// WithSubjectPrefix sets the request subject prefix, the prefix is also the queue group.
func WithSubjectPrefix(prefix string) Option {
	return func(s *Server) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithConcurrency sets the maximum number of requests handled at once,
// requests beyond the limit are answered with an error.
func WithConcurrency(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.limiter = NewLimiter(n)
		}
	}
}

// New returns a request Server.
func New(conn *nats.Conn, assets Assets, logger *logrus.Logger, opts ...Option) *Server {
	s := &Server{
		conn:   conn,
		assets: assets,
		logger: logger,
		prefix: model.AppName,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.limiter == nil {
		s.limiter = NewLimiter(defaultConcurrency)
	}

	s.handlers = map[string]handlerFunc{
		RequestGet:        s.get,
		RequestList:       s.list,
		RequestDelete:     s.delete,
		RequestActivate:   s.activate,
		RequestDeactivate: s.deactivate,
	}

	return s
}

// Run serves requests until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}

	v := version.Current()
	s.logger.WithFields(
		logrus.Fields{
			"version": v.AppVersion,
			"commit":  v.GitCommit,
			"branch":  v.GitBranch,
			"prefix":  s.prefix,
		},
	).Info("assetkeeper request service running")

	<-ctx.Done()

	s.Stop()

	return nil
}

// Start subscribes to the request subjects.
func (s *Server) Start(ctx context.Context) error {
	requests := maps.Keys(s.handlers)
	slices.Sort(requests)

	for _, request := range requests {
		request := request

		sub, err := s.conn.QueueSubscribe(Subject(s.prefix, request), s.prefix, func(msg *nats.Msg) {
			s.dispatch(ctx, request, msg)
		})
		if err != nil {
			s.unsubscribe()
			return errors.Wrap(ErrSubscribe, request+": "+err.Error())
		}

		s.subs = append(s.subs, sub)
	}

	return s.conn.Flush()
}

// Stop unsubscribes and waits for the requests being handled.
func (s *Server) Stop() {
	s.unsubscribe()
	s.limiter.StopWait()
}

func (s *Server) unsubscribe() {
	for _, sub := range s.subs {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.WithFields(
				logrus.Fields{
					"subject": sub.Subject,
					"err":     err,
				}).Warn("unsubscribe failed")
		}
	}

	s.subs = nil
}

func (s *Server) dispatch(ctx context.Context, request string, msg *nats.Msg) {
	err := s.limiter.Dispatch(func() {
		s.handle(ctx, request, msg)
	})
	if err != nil {
		s.respond(request, msg, nil, err)
	}
}

func (s *Server) handle(ctx context.Context, request string, msg *nats.Msg) {
	ctx, span := otel.Tracer(pkgName).Start(ctx, "Server.handle")
	defer span.End()

	span.SetAttributes(attribute.String("request", request))

	req := &types.Request{}
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, req); err != nil {
			s.respond(request, msg, nil, errors.Wrap(ErrInvalidRequest, err.Error()))
			return
		}
	}

	data, err := s.handlers[request](ctx, req)

	s.respond(request, msg, data, err)
}

func (s *Server) respond(request string, msg *nats.Msg, data any, err error) {
	resp := &types.Response{Status: types.StatusOK}

	if err == nil && data != nil {
		resp.Data, err = json.Marshal(data)
	}

	if err != nil {
		resp = &types.Response{Status: types.StatusError, Error: err.Error()}

		s.logger.WithFields(
			logrus.Fields{
				"request": request,
				"err":     err,
			}).Warn("request failed")
	}

	metrics.RequestsCounter.With(map[string]string{
		"request": request,
		"result":  metrics.Result(err),
	}).Inc()

	if err := msg.Respond(resp.MustBytes()); err != nil {
		s.logger.WithFields(
			logrus.Fields{
				"request": request,
				"err":     err,
			}).Warn("reply failed")
	}
}

func requireNames(req *types.Request) error {
	if len(req.Names) == 0 {
		return errors.Wrap(ErrInvalidRequest, "names required")
	}

	return nil
}

func (s *Server) get(ctx context.Context, req *types.Request) (any, error) {
	if err := requireNames(req); err != nil {
		return nil, err
	}

	records := make([]model.Record, 0, len(req.Names))

	for _, name := range req.Names {
		asset, err := s.assets.Load(ctx, name, true)
		if err != nil {
			return nil, err
		}

		records = append(records, model.ExportRecord(asset))
	}

	return records, nil
}

func (s *Server) list(ctx context.Context, req *types.Request) (any, error) {
	filters := make(model.Filters, len(req.Filters))
	for category, values := range req.Filters {
		filters[model.FilterCategory(category)] = values
	}

	return s.assets.List(ctx, filters)
}

func (s *Server) delete(ctx context.Context, req *types.Request) (any, error) {
	if err := requireNames(req); err != nil {
		return nil, err
	}

	report := s.assets.DeleteList(ctx, req.Names, req.Recursive, req.AllowLastDatacenter)

	items := make([]types.DeleteItem, 0, len(report))
	for _, r := range report {
		items = append(items, types.DeleteItem{Asset: r.Asset.Name, Status: r.Status})
	}

	return items, nil
}

func (s *Server) activate(ctx context.Context, req *types.Request) (any, error) {
	return s.changeStatus(ctx, req, s.assets.Activate)
}

func (s *Server) deactivate(ctx context.Context, req *types.Request) (any, error) {
	return s.changeStatus(ctx, req, s.assets.Deactivate)
}

// changeStatus applies the status change to each named asset, stopping at the first failure.
func (s *Server) changeStatus(ctx context.Context, req *types.Request, change func(context.Context, *model.Asset) error) (any, error) {
	if err := requireNames(req); err != nil {
		return nil, err
	}

	changed := []string{}

	for _, name := range req.Names {
		asset, err := s.assets.Load(ctx, name, false)
		if err != nil {
			return nil, err
		}

		if err := change(ctx, asset); err != nil {
			return nil, errors.Wrap(err, name)
		}

		changed = append(changed, name)
	}

	return changed, nil
}
