// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package events

import (
	"log/slog"

	"github.com/Xorcist77/sqlsink/controllers"
	"github.com/Xorcist77/sqlsink/controllers/events/types"
	sinktypes "github.com/Xorcist77/sqlsink/services/sink/types"
	"github.com/Xorcist77/sqlsink/utils/ingest"
	"github.com/gin-gonic/gin"
)

// Controller is the events HTTP controller.
type Controller struct {
	*controllers.Controller
	engine   sinktypes.IEngine
	decoder  *ingest.Decoder
	handlers []controllers.IControllerHandler
}

// NewController creates a new events controller emitting to engine.
// maxBodySize bounds decompressed payloads; zero takes the default.
func NewController(engine sinktypes.IEngine, maxBodySize int64) *Controller {
	ctrl := &Controller{
		Controller: controllers.NewDefaultController(),
		engine:     engine,
		decoder:    ingest.NewDecoder(maxBodySize, 0),
	}
	ctrl.handlers = []controllers.IControllerHandler{
		&controllers.ControllerHandler{
			Method: "POST",
			Path:   types.ControllerPath,
			Func:   ctrl.Ingest,
		},
	}
	return ctrl
}

// GetControllerHandlers returns the handlers for this controller.
func (ctrl *Controller) GetControllerHandlers() []controllers.IControllerHandler {
	return ctrl.handlers
}

// Ingest decodes a JSON array or NDJSON body and emits its events. Engines
// writing synchronously get the whole body as one transaction.
func (ctrl *Controller) Ingest(c *gin.Context) {
	body, err := ingest.DecodeBody(c.Request.Body, c.GetHeader("Content-Encoding"))
	if err != nil {
		ctrl.Render(c, &types.DecodeResult{Error: err})
		return
	}
	defer body.Close()

	batch, err := ctrl.decoder.ReadAll(body)
	if err != nil {
		ctrl.Render(c, &types.DecodeResult{Error: err})
		return
	}

	ctx := c.Request.Context()
	if be, ok := ctrl.engine.(sinktypes.IBatchEngine); ok {
		err = be.EmitBatch(ctx, batch)
		ctrl.Render(c, types.NewIngestResult(len(batch), true, err))
		return
	}

	for _, event := range batch {
		if err = ctrl.engine.Emit(ctx, event); err != nil {
			break
		}
	}
	ctrl.GetRequestLogger(c).Debug("events queued", slog.Int("count", len(batch)))
	ctrl.Render(c, types.NewIngestResult(len(batch), false, err))
}
