package node

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fxnlabs/gpu-bridge/internal/config"
	"github.com/fxnlabs/gpu-bridge/internal/cublas"
	"github.com/fxnlabs/gpu-bridge/internal/dispatch"
	"github.com/fxnlabs/gpu-bridge/internal/metrics"
	"github.com/fxnlabs/gpu-bridge/internal/selftest"
)

// Module assembles the bridge runtime: numeric library detection, the handle
// pool with warmup, the dispatcher and the metrics listener. The config and
// logger are supplied by the caller so the CLI can build them before fx runs.
func Module(cfg *config.Config, log *zap.Logger) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.Supply(log),
		fx.Provide(
			NewLibrary,
			NewHandlePool,
			NewDispatcher,
			NewMetricsServer,
		),
		fx.Invoke(RunSelftest),
		fx.Invoke(func(*http.Server) {}),
	)
}

// NewLibrary detects the numeric backend. The low-level library packages log
// with slog, so the detection path gets the default slog logger rather than a
// bridged zap one.
func NewLibrary(cfg *config.Config, log *zap.Logger) cublas.Library {
	lib := cublas.Detect(cublas.Options{
		CublasLibrary: cfg.CUDA.CublasLibrary,
		CudartLibrary: cfg.CUDA.CudartLibrary,
	}, slog.Default())
	log.Info("numeric backend selected", zap.String("backend", lib.Name()))
	return lib
}

// NewHandlePool builds the handle pool and ties warmup and teardown to the
// application lifecycle.
func NewHandlePool(lc fx.Lifecycle, cfg *config.Config, lib cublas.Library, log *zap.Logger) *dispatch.HandlePool {
	pool := dispatch.NewHandlePool(lib)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if cfg.Pool.WarmHandles > 0 {
				if err := pool.Warm(0, cfg.Pool.WarmHandles); err != nil {
					return err
				}
				log.Info("handle pool warmed", zap.Int("handles", cfg.Pool.WarmHandles))
			}
			return nil
		},
		OnStop: func(context.Context) error {
			return pool.Close()
		},
	})
	return pool
}

func NewDispatcher(lib cublas.Library, pool *dispatch.HandlePool, log *zap.Logger) *dispatch.Dispatcher {
	return dispatch.NewDispatcher(lib, pool, log)
}

// NewMetricsServer serves Prometheus metrics and a liveness endpoint on the
// configured listen address.
func NewMetricsServer(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Middleware(promhttp.Handler(), "/metrics"))
	mux.Handle("/healthz", metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}), "/healthz"))

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			// Bind synchronously so the listener is reachable the moment
			// startup completes; only Serve runs in the background.
			ln, err := net.Listen("tcp", cfg.Listen)
			if err != nil {
				return err
			}
			log.Info("metrics listener starting", zap.String("address", ln.Addr().String()))
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("metrics listener failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
	return srv
}

// RunSelftest drives a known solve through the dispatcher at startup when the
// config asks for it. A miscomputing backend fails startup instead of serving
// wrong numbers later.
func RunSelftest(cfg *config.Config, lib cublas.Library, d *dispatch.Dispatcher, log *zap.Logger) error {
	if !cfg.Selftest.Enabled {
		log.Debug("startup self-test disabled")
		return nil
	}
	_, err := selftest.Run(lib, d, log)
	return err
}
