// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package app

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Xorcist77/sqlsink/controllers"
	"github.com/Xorcist77/sqlsink/utils/logger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Api is the HTTP side of the application: the gin engine serving the
// controllers, and the optional metrics endpoint.
type Api struct {
	port           int
	basePath       string
	metricsEnabled bool
	metricsPort    int

	ginEngine   *gin.Engine
	controllers []controllers.IController
}

// GetGinEngine returns the gin engine serving the controllers.
func (a *Api) GetGinEngine() *gin.Engine {
	return a.ginEngine
}

// init creates the gin engine when none was provided and registers the
// controller routes under the base path.
func (a *Api) init(l *logger.Logger) {
	if a.ginEngine == nil {
		if l.LogLevel > slog.LevelDebug {
			gin.SetMode(gin.ReleaseMode)
		}
		gin.DefaultWriter = l
		gin.DefaultErrorWriter = l
		a.ginEngine = gin.New()
		a.ginEngine.Use(gin.Recovery())
	}
	a.ginEngine.Use(requestLogger(l))

	group := a.ginEngine.Group("/" + strings.Trim(a.basePath, "/"))
	for _, ctrl := range a.controllers {
		for _, h := range ctrl.GetControllerHandlers() {
			group.Handle(h.GetMethod(), h.GetPath(), h.GetRouteHandlers()...)
		}
	}
}

// metricsHandler serves the Prometheus default registry.
func metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// requestLogger tags every request with an id and stores a request logger
// in the gin context.
func requestLogger(l *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(controllers.RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(controllers.RequestIDHeader, requestID)

		rl := l.With(slog.String("request_id", requestID))
		c.Set(controllers.LoggerContextKey, rl)

		start := time.Now()
		c.Next()

		rl.Debug("request served",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)))
	}
}
