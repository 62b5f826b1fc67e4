// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package controllers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Xorcist77/sqlsink/utils/logger"
	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type genericResult struct {
	err error
}

func (r *genericResult) GetData() any                 { return nil }
func (r *genericResult) GetError() error              { return r.err }
func (r *genericResult) GetAssociatedStatusCode() int { return GetGenericStatusCode(r.err) }

func TestGetGenericStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusOK, GetGenericStatusCode(nil))
	assert.Equal(t, http.StatusServiceUnavailable,
		GetGenericStatusCode(errors.Wrap(context.DeadlineExceeded, "write")))
	assert.Equal(t, http.StatusInternalServerError, GetGenericStatusCode(errors.New("boom")))
}

func TestRender_HidesServerErrors(t *testing.T) {
	var logs bytes.Buffer
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set(LoggerContextKey, logger.NewLoggerWithWriter(&logs, "info"))

	NewDefaultController().Render(c, &genericResult{err: errors.New("password=hunter2")})

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "hunter2")
	assert.Contains(t, w.Body.String(), http.StatusText(http.StatusInternalServerError))
	assert.Contains(t, logs.String(), "hunter2")
}

func TestRender_BadRequest(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	NewDefaultController().Render(c, &BadRequestResult{Error: errors.New("missing field")})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"error":"missing field"`)
}

func TestGetRequestLogger_Default(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Same(t, logger.DefaultLogger, NewDefaultController().GetRequestLogger(c))
}
