package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	MetricsEndpoint = "0.0.0.0:9090"

	ResultSucceeded = "succeeded"
	ResultFailed    = "failed"
)

var (
	OperationCounter        *prometheus.CounterVec
	OperationRunTimeSummary *prometheus.SummaryVec

	DeleteItemsCounter *prometheus.CounterVec

	ActivationCallCounter *prometheus.CounterVec

	EventsPublishedCounter *prometheus.CounterVec

	RequestsCounter *prometheus.CounterVec

	StoreQueryErrorCount *prometheus.CounterVec
)

func init() {
	OperationCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetkeeper_operations_total",
			Help: "A counter metric to measure the total count of asset lifecycle operations, successful and failed",
		},
		[]string{"operation", "result"},
	)

	OperationRunTimeSummary = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Name: "assetkeeper_operation_duration_seconds",
			Help: "A summary metric to measure the total time spent in each asset lifecycle operation",
		},
		[]string{"operation", "result"},
	)

	DeleteItemsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetkeeper_delete_items_total",
			Help: "A counter metric to measure the assets processed by bulk deletes",
		},
		[]string{"result"},
	)

	ActivationCallCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetkeeper_activation_calls_total",
			Help: "A counter metric to measure the calls made to the activation service",
		},
		[]string{"operation", "result"},
	)

	EventsPublishedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetkeeper_events_published_total",
			Help: "A counter metric to measure the asset change events published",
		},
		[]string{"operation", "result"},
	)

	RequestsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assetkeeper_requests_total",
			Help: "A counter metric to measure the requests answered by the asset service",
		},
		[]string{"request", "result"},
	)

	StoreQueryErrorCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_query_error_count",
			Help: "A counter metric to measure the total count of errors querying the asset store.",
		},
		[]string{"storeKind"},
	)
}

// Result returns the result label value for the error.
func Result(err error) string {
	if err != nil {
		return ResultFailed
	}

	return ResultSucceeded
}

// ObserveOperation records the count and runtime of a lifecycle operation started at the given time.
func ObserveOperation(operation string, startTS time.Time, err error) {
	labels := prometheus.Labels{"operation": operation, "result": Result(err)}

	OperationCounter.With(labels).Inc()
	OperationRunTimeSummary.With(labels).Observe(time.Since(startTS).Seconds())
}

// ListenAndServe exposes prometheus metrics as /metrics
func ListenAndServe(addr string, logger *logrus.Logger) {
	if addr == "" {
		addr = MetricsEndpoint
	}

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", otelhttp.NewHandler(promhttp.Handler(), "metrics"))

		server := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 2 * time.Second, // nolint:gomnd // time duration value is clear as is.
		}

		if err := server.ListenAndServe(); err != nil {
			logger.WithError(err).Error("metrics endpoint")
		}
	}()
}
