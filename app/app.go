// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Xorcist77/sqlsink/controllers"
	"github.com/Xorcist77/sqlsink/services/sink/types"
	"github.com/Xorcist77/sqlsink/utils/logger"
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const (
	// shutdownTimeout bounds the graceful shutdown of the HTTP servers. The
	// engine close has its own timeout.
	shutdownTimeout = 10 * time.Second
)

// App is the sqlsink application: the HTTP ingest API in front of one
// delivery engine.
type App struct {
	l      *logger.Logger
	api    *Api
	engine types.IEngine
}

// IOption configures the application.
type IOption func(*App)

// WithLogger sets the application logger.
func WithLogger(l *logger.Logger) IOption {
	return func(a *App) { a.l = l }
}

// WithApiPort sets the port of the ingest API.
func WithApiPort(port int) IOption {
	return func(a *App) { a.api.port = port }
}

// WithApiBaseURL sets the base path of every route.
func WithApiBaseURL(basePath string) IOption {
	return func(a *App) { a.api.basePath = basePath }
}

// WithApiMetrics enables the metrics endpoint.
func WithApiMetrics(enabled bool) IOption {
	return func(a *App) { a.api.metricsEnabled = enabled }
}

// WithApiMetricsPort sets the port of the metrics endpoint.
func WithApiMetricsPort(port int) IOption {
	return func(a *App) { a.api.metricsPort = port }
}

// WithApiGinEngine replaces the default gin engine, for tests.
func WithApiGinEngine(e *gin.Engine) IOption {
	return func(a *App) { a.api.ginEngine = e }
}

// WithApiController registers a controller.
func WithApiController(ctrl controllers.IController) IOption {
	return func(a *App) { a.api.controllers = append(a.api.controllers, ctrl) }
}

// WithServices sets the services started and stopped with the application.
func WithServices(s *Services) IOption {
	return func(a *App) { a.engine = s.Engine }
}

// NewApp creates the application and registers the controller routes.
func NewApp(opts ...IOption) (*App, error) {
	a := &App{
		l: logger.DefaultLogger,
		api: &Api{
			port:        8080,
			metricsPort: 8081,
		},
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.api.metricsEnabled && a.api.port != 0 && a.api.port == a.api.metricsPort {
		return nil, errors.Newf("api and metrics ports must differ, both are %d", a.api.port)
	}
	for _, ctrl := range a.api.controllers {
		if ctrl == nil {
			return nil, errors.New("nil controller")
		}
	}

	a.api.init(a.l)
	return a, nil
}

// GetApi returns the HTTP side of the application.
func (a *App) GetApi() *Api {
	return a.api
}

// Start serves the API, and the metrics endpoint if enabled, until ctx is
// done or the process receives SIGINT or SIGTERM. The engine is closed
// after the servers stop, which flushes the pending events.
func (a *App) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	servers := []*http.Server{{
		Addr:    fmt.Sprintf(":%d", a.api.port),
		Handler: a.api.ginEngine,
	}}
	if a.api.metricsEnabled {
		servers = append(servers, &http.Server{
			Addr:    fmt.Sprintf(":%d", a.api.metricsPort),
			Handler: metricsHandler(),
		})
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		g.Go(func() error {
			a.l.Info("http server listening", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrapf(err, "http server %s", srv.Addr)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		a.l.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		var err error
		for _, srv := range servers {
			err = errors.CombineErrors(err, srv.Shutdown(shutdownCtx))
		}
		return err
	})

	err := g.Wait()
	if a.engine != nil {
		if closeErr := a.engine.Close(); closeErr != nil {
			a.l.Error("failed to close engine", slog.Any("error", closeErr))
			err = errors.CombineErrors(err, errors.Wrap(closeErr, "error closing engine"))
		}
	}
	return err
}
