// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package types

import (
	"net/http"

	"github.com/Xorcist77/sqlsink/controllers"
	sinktypes "github.com/Xorcist77/sqlsink/services/sink/types"
	"github.com/Xorcist77/sqlsink/utils/ingest"
	"github.com/cockroachdb/errors"
)

// ControllerPath is the base path for the events controller.
const ControllerPath = "/v1/events"

// IngestDTO is the body of a successful ingest response.
type IngestDTO struct {
	Accepted int `json:"accepted"`
	// Committed is set when the events were written before the response.
	Committed bool `json:"committed"`
}

// DecodeResult is rendered when a payload cannot be decoded.
type DecodeResult struct {
	Error error
}

func (dto *DecodeResult) GetData() any    { return nil }
func (dto *DecodeResult) GetError() error { return dto.Error }

// GetAssociatedStatusCode maps decoding errors to HTTP status codes. Every
// decoding error is the client's fault.
func (dto *DecodeResult) GetAssociatedStatusCode() int {
	switch {
	case errors.Is(dto.Error, ingest.ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(dto.Error, ingest.ErrUnsupportedEncoding):
		return http.StatusUnsupportedMediaType
	}
	return http.StatusBadRequest
}

// IngestResult is rendered once the events were handed to the engine.
type IngestResult struct {
	Data  *IngestDTO
	Error error
}

// NewIngestResult creates a new IngestResult.
func NewIngestResult(accepted int, committed bool, err error) *IngestResult {
	if err != nil {
		return &IngestResult{Error: err}
	}
	return &IngestResult{Data: &IngestDTO{Accepted: accepted, Committed: committed}}
}

func (dto *IngestResult) GetData() any {
	if dto.Data == nil {
		return nil
	}
	return dto.Data
}

func (dto *IngestResult) GetError() error { return dto.Error }

// GetAssociatedStatusCode returns 201 for committed events and 202 for
// queued ones.
func (dto *IngestResult) GetAssociatedStatusCode() int {
	switch {
	case dto.Error == nil && dto.Data.Committed:
		return http.StatusCreated
	case dto.Error == nil:
		return http.StatusAccepted
	case errors.Is(dto.Error, sinktypes.ErrEngineClosed):
		return http.StatusServiceUnavailable
	case errors.Is(dto.Error, ingest.ErrInvalidEvent):
		return http.StatusBadRequest
	}
	return controllers.GetGenericStatusCode(dto.Error)
}
