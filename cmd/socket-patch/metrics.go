package main

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/socket-patch/socket-patch/internal/dcontext"
	"github.com/socket-patch/socket-patch/metrics"
)

// recorder is nil until --metrics-listen is set, matching metrics.Recorder's
// nil-safe contract: every command works identically with or without it.
var recorder *metrics.Recorder

// startMetricsServer registers a fresh Recorder and serves it at addr until
// ctx is done. Bind failures are logged, not fatal: metrics are optional.
func startMetricsServer(ctx context.Context, addr string) *metrics.Recorder {
	reg := prometheus.NewRegistry()
	r := metrics.NewRecorder(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			dcontext.GetLogger(ctx).WithError(err).Warn("metrics server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	return r
}

// outcome reduces an error to the "outcome" label value ObserveDuration uses.
func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
