// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Xorcist77/sqlsink/config"
	"github.com/Xorcist77/sqlsink/controllers"
	"github.com/Xorcist77/sqlsink/controllers/health"
	"github.com/Xorcist77/sqlsink/models/events"
	"github.com/Xorcist77/sqlsink/repositories/tablewriter/mocks"
	"github.com/Xorcist77/sqlsink/services/audit"
	"github.com/Xorcist77/sqlsink/services/sink"
	"github.com/Xorcist77/sqlsink/services/sink/types"
	"github.com/Xorcist77/sqlsink/utils/logger"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEngine struct {
	emitted atomic.Int64
	closed  atomic.Int64
}

func (e *fakeEngine) Emit(context.Context, events.LogEvent) error {
	e.emitted.Add(1)
	return nil
}

func (e *fakeEngine) Close() error {
	e.closed.Add(1)
	return nil
}

func TestNewApp_ServesControllers(t *testing.T) {
	w := httptest.NewRecorder()
	_, e := gin.CreateTestContext(w)

	apiApp, err := NewApp(
		WithApiGinEngine(e),
		WithApiController(health.NewController()),
	)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, health.ControllerPath, nil)
	apiApp.GetApi().GetGinEngine().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
	assert.NotEmpty(t, w.Header().Get(controllers.RequestIDHeader))
}

func TestNewApp_RequestIDIsKept(t *testing.T) {
	w := httptest.NewRecorder()
	_, e := gin.CreateTestContext(w)

	apiApp, err := NewApp(WithApiGinEngine(e), WithApiController(health.NewController()))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, health.ControllerPath, nil)
	req.Header.Set(controllers.RequestIDHeader, "req-1")
	apiApp.GetApi().GetGinEngine().ServeHTTP(w, req)

	assert.Equal(t, "req-1", w.Header().Get(controllers.RequestIDHeader))
	assert.Contains(t, w.Body.String(), `"request_id":"req-1"`)
}

func TestNewApp_BaseURL(t *testing.T) {
	w := httptest.NewRecorder()
	_, e := gin.CreateTestContext(w)

	apiApp, err := NewApp(
		WithApiGinEngine(e),
		WithApiBaseURL("/ingest/"),
		WithApiController(health.NewController()),
	)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/ingest"+health.ControllerPath, nil)
	apiApp.GetApi().GetGinEngine().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewApp_Errors(t *testing.T) {
	_, err := NewApp(WithApiMetrics(true), WithApiPort(9000), WithApiMetricsPort(9000))
	assert.ErrorContains(t, err, "must differ")

	_, err = NewApp(WithApiController(nil))
	assert.Error(t, err)
}

func TestApp_StartClosesEngineOnShutdown(t *testing.T) {
	engine := &fakeEngine{}
	apiApp, err := NewApp(
		WithApiPort(0),
		WithApiMetrics(true),
		WithApiMetricsPort(0),
		WithServices(&Services{Engine: engine}),
		WithApiController(health.NewController()),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	require.NoError(t, apiApp.Start(ctx))
	assert.Equal(t, int64(1), engine.closed.Load())
}

func newMemoryConfig(mode string) *config.Config {
	cfg := config.Default()
	cfg.Database.Type = config.DatabaseTypeMemory
	cfg.Engine.Mode = mode
	cfg.Api.Metrics.Enabled = false
	return cfg
}

func TestNewServicesFromConfig(t *testing.T) {
	t.Run("sink", func(t *testing.T) {
		s, err := NewServicesFromConfig(newMemoryConfig(config.ModeSink), logger.DefaultLogger)
		require.NoError(t, err)
		defer s.Engine.Close()
		assert.IsType(t, &sink.SinkEngine{}, s.Engine)
		assert.Nil(t, s.Logger.Sink())
	})

	t.Run("audit", func(t *testing.T) {
		s, err := NewServicesFromConfig(newMemoryConfig(config.ModeAudit), logger.DefaultLogger)
		require.NoError(t, err)
		defer s.Engine.Close()
		assert.IsType(t, &audit.AuditEngine{}, s.Engine)
	})

	t.Run("logs to table", func(t *testing.T) {
		cfg := newMemoryConfig(config.ModeSink)
		cfg.Log.ToTable = true
		s, err := NewServicesFromConfig(cfg, logger.DefaultLogger)
		require.NoError(t, err)
		defer s.Engine.Close()

		s.Logger.Info("teed", "k", "v")
		engine := s.Engine.(*sink.SinkEngine)
		assert.Equal(t, 1, engine.Pending())
	})

	t.Run("unsupported database", func(t *testing.T) {
		cfg := newMemoryConfig(config.ModeSink)
		cfg.Database.Type = "sqlite"
		_, err := NewServicesFromConfig(cfg, logger.DefaultLogger)
		assert.ErrorContains(t, err, "unsupported database type")
	})
}

func TestNewEngineFromConfig_ClosesWriterOnError(t *testing.T) {
	w := mocks.NewITableWriter(t)
	w.On("Close").Return(nil).Once()

	cfg := newMemoryConfig(config.ModeAudit)
	cfg.Engine.DisableTriggers = true

	engine, err := NewEngineFromConfig(cfg, logger.DefaultLogger, w)
	assert.Nil(t, engine)
	assert.ErrorIs(t, err, types.ErrAuditDisableTriggers)
}
