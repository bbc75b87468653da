// Package metrics provides Prometheus instrumentation for chat requests.
package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Request outcomes used as the status label.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusCanceled = "canceled"
)

var (
	// ChatRequestDuration tracks how long a chat request took end to end.
	ChatRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatdesk_request_duration_seconds",
			Help:    "Chat request duration in seconds",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider", "model", "status"},
	)

	// ChatRequestsTotal counts chat requests by outcome.
	ChatRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdesk_requests_total",
			Help: "Total chat requests",
		},
		[]string{"provider", "model", "status"},
	)

	// ContentDeltasTotal counts streamed content fragments.
	ContentDeltasTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdesk_content_deltas_total",
			Help: "Total streamed content deltas",
		},
		[]string{"provider"},
	)

	// TokensTotal counts tokens reported by providers.
	TokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatdesk_tokens_total",
			Help: "Total tokens reported by providers",
		},
		[]string{"provider", "model", "direction"},
	)

	// ActiveStreams is 1 while a request is in flight.
	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatdesk_active_streams",
			Help: "Number of chat requests in flight",
		},
	)
)

// RecordRequest records the outcome of one chat request.
func RecordRequest(provider, model, status string, duration time.Duration, tokensIn, tokensOut int) {
	ChatRequestDuration.WithLabelValues(provider, model, status).Observe(duration.Seconds())
	ChatRequestsTotal.WithLabelValues(provider, model, status).Inc()
	if tokensIn > 0 {
		TokensTotal.WithLabelValues(provider, model, "in").Add(float64(tokensIn))
	}
	if tokensOut > 0 {
		TokensTotal.WithLabelValues(provider, model, "out").Add(float64(tokensOut))
	}
}

func RecordDelta(provider string) {
	ContentDeltasTotal.WithLabelValues(provider).Inc()
}

func StreamStarted() {
	ActiveStreams.Inc()
}

func StreamEnded() {
	ActiveStreams.Dec()
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
