// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package controllers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Xorcist77/sqlsink/utils/logger"
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
)

const (
	// LoggerContextKey is the gin context key of the request logger.
	LoggerContextKey = "logger"
	// RequestIDHeader carries the id of every request.
	RequestIDHeader = "X-Request-Id"
)

// IController is implemented by every controller registered on the API.
type IController interface {
	GetControllerHandlers() []IControllerHandler
}

// IControllerHandler describes one route of a controller.
type IControllerHandler interface {
	GetMethod() string
	GetPath() string
	GetRouteHandlers() []gin.HandlerFunc
}

// ControllerHandler is the default IControllerHandler.
type ControllerHandler struct {
	Method string
	Path   string
	Func   gin.HandlerFunc
	// Extra handlers run before Func.
	Extra []gin.HandlerFunc
}

// GetMethod returns the HTTP method.
func (h *ControllerHandler) GetMethod() string {
	return h.Method
}

// GetPath returns the route path.
func (h *ControllerHandler) GetPath() string {
	return h.Path
}

// GetRouteHandlers returns the gin handler chain of the route.
func (h *ControllerHandler) GetRouteHandlers() []gin.HandlerFunc {
	return append(append([]gin.HandlerFunc{}, h.Extra...), h.Func)
}

// IResultDTO is rendered by Controller.Render.
type IResultDTO interface {
	GetData() any
	GetError() error
	GetAssociatedStatusCode() int
}

// ApiResponse is the JSON envelope of every response.
type ApiResponse struct {
	RequestID string `json:"request_id,omitempty"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Controller holds the helpers shared by controllers.
type Controller struct{}

// NewDefaultController creates the base controller.
func NewDefaultController() *Controller {
	return &Controller{}
}

// Render writes dto with its associated status code. Server errors are
// logged with the request logger and their message is not returned.
func (ctrl *Controller) Render(c *gin.Context, dto IResultDTO) {
	status := dto.GetAssociatedStatusCode()
	resp := ApiResponse{
		RequestID: c.Writer.Header().Get(RequestIDHeader),
		Data:      dto.GetData(),
	}

	if err := dto.GetError(); err != nil {
		if status >= http.StatusInternalServerError {
			ctrl.GetRequestLogger(c).Error("request failed",
				slog.Int("status", status),
				slog.Any("error", err))
			resp.Error = http.StatusText(status)
		} else {
			resp.Error = err.Error()
		}
	}
	c.JSON(status, resp)
}

// GetRequestLogger returns the logger set by the request middleware, or
// the default logger.
func (ctrl *Controller) GetRequestLogger(c *gin.Context) *logger.Logger {
	if v, ok := c.Get(LoggerContextKey); ok {
		if l, ok := v.(*logger.Logger); ok {
			return l
		}
	}
	return logger.DefaultLogger
}

// BadRequestResult is rendered for malformed requests.
type BadRequestResult struct {
	Error error
}

func (r *BadRequestResult) GetData() any                 { return nil }
func (r *BadRequestResult) GetError() error              { return r.Error }
func (r *BadRequestResult) GetAssociatedStatusCode() int { return http.StatusBadRequest }

// GetGenericStatusCode maps errors no controller recognizes.
func GetGenericStatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
