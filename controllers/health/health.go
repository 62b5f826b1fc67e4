// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package health

import (
	"net/http"

	"github.com/Xorcist77/sqlsink/controllers"
	"github.com/gin-gonic/gin"
)

const (
	// ControllerPath is the path for the health controller.
	ControllerPath = "/v1/health"
)

// HealthDTO is the health response.
type HealthDTO struct {
	Status string `json:"status"`
}

func (dto *HealthDTO) GetData() any                 { return dto }
func (dto *HealthDTO) GetError() error              { return nil }
func (dto *HealthDTO) GetAssociatedStatusCode() int { return http.StatusOK }

// Controller is the health controller.
type Controller struct {
	*controllers.Controller
	handlers []controllers.IControllerHandler
}

// NewController creates a new health controller.
func NewController() (ctrl *Controller) {
	ctrl = &Controller{
		Controller: controllers.NewDefaultController(),
	}
	ctrl.handlers = []controllers.IControllerHandler{
		&controllers.ControllerHandler{
			Method: "GET",
			Path:   ControllerPath,
			Func:   ctrl.Ping,
		},
	}
	return
}

// GetControllerHandlers returns the controller's handlers, as required
func (ctrl *Controller) GetControllerHandlers() []controllers.IControllerHandler {
	return ctrl.handlers
}

// Ping returns ok
func (ctrl *Controller) Ping(c *gin.Context) {
	ctrl.Render(c, &HealthDTO{Status: "ok"})
}
