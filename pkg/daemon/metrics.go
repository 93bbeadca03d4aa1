package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/jamesainslie/pkgsize/pkg/pkgsize/history"
)

// Metrics holds the Prometheus metrics pkgsized exports.
type Metrics struct {
	registry *prometheus.Registry

	rpcTotal       *prometheus.CounterVec
	rpcInFlight    prometheus.Gauge
	analysisTotal  *prometheus.CounterVec
	analysisTime   *prometheus.HistogramVec
	cacheHitsTotal *prometheus.CounterVec
	uptime         prometheus.Gauge
}

// NewMetrics creates the metrics on their own registry, together with the
// Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		rpcTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pkgsize_rpc_requests_total",
				Help: "Total number of daemon RPCs",
			},
			[]string{"method", "code"},
		),
		rpcInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pkgsize_rpc_requests_in_flight",
				Help: "Current number of RPCs being processed",
			},
		),
		analysisTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pkgsize_analyses_total",
				Help: "Total number of analyses by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		analysisTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pkgsize_analysis_duration_seconds",
				Help:    "Analysis latency in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"kind"},
		),
		cacheHitsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pkgsize_cache_hits_total",
				Help: "Total number of analyses served from the cache",
			},
			[]string{"kind"},
		),
		uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "pkgsize_uptime_seconds",
				Help: "Daemon uptime in seconds",
			},
		),
	}
}

// Registry returns the registry the metrics are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordAnalysis records one finished analysis. It has the runner.Observer
// signature.
func (m *Metrics) RecordAnalysis(kind history.Kind, d time.Duration, cached bool, err error) {
	outcome := "ok"
	switch {
	case err != nil:
		outcome = "error"
	case cached:
		outcome = "cached"
		m.cacheHitsTotal.WithLabelValues(string(kind)).Inc()
	}
	m.analysisTotal.WithLabelValues(string(kind), outcome).Inc()
	m.analysisTime.WithLabelValues(string(kind)).Observe(d.Seconds())
}

// UpdateUptime sets the uptime gauge.
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.uptime.Set(time.Since(startTime).Seconds())
}

// UnaryInterceptor counts RPCs by method and status code.
func (m *Metrics) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		m.rpcInFlight.Inc()
		defer m.rpcInFlight.Dec()

		resp, err := handler(ctx, req)
		m.rpcTotal.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
		return resp, err
	}
}

// Handler returns an HTTP handler that exposes the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ServeMetrics serves /metrics on addr until ctx is done.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx) //nolint:contextcheck // parent is already done
	}()

	logger.Info("serving metrics", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
