// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package types

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_WithDefaults(t *testing.T) {
	o := Options{Table: "logs"}.WithDefaults()

	assert.Equal(t, DefaultBatchPostingLimit, o.BatchPostingLimit)
	assert.Equal(t, DefaultPeriod, o.Period)
	assert.Equal(t, DefaultQueueCapacity, o.QueueCapacity)
	assert.Equal(t, OverflowDropOldest, o.OverflowPolicy)
	assert.Equal(t, DefaultBlockTimeout, o.BlockTimeout)
	assert.Equal(t, DefaultRetryBackoff, o.RetryBackoff)
	assert.Equal(t, DefaultWriteTimeout, o.WriteTimeout)
	assert.Equal(t, DefaultCloseTimeout, o.CloseTimeout)
	assert.Zero(t, o.RetryCount)
	require.NoError(t, o.Validate())
}

func TestOptions_DefaultCapacityFollowsLimit(t *testing.T) {
	o := Options{Table: "logs", BatchPostingLimit: 20000}.WithDefaults()
	assert.Equal(t, 20000, o.QueueCapacity)
	require.NoError(t, o.Validate())
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name    string
		options Options
	}{
		{name: "missing table", options: Options{}},
		{name: "negative limit", options: Options{Table: "logs", BatchPostingLimit: -5}},
		{name: "negative period", options: Options{Table: "logs", Period: -time.Second}},
		{name: "capacity below limit", options: Options{Table: "logs", BatchPostingLimit: 100, QueueCapacity: 99}},
		{name: "unknown policy", options: Options{Table: "logs", OverflowPolicy: "spill"}},
		{name: "negative retry count", options: Options{Table: "logs", RetryCount: -1}},
		{name: "negative timeout", options: Options{Table: "logs", WriteTimeout: -time.Second}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.options.WithDefaults().Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestConfigurationError(t *testing.T) {
	err := ConfigurationError(ErrAuditDisableTriggers)
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.True(t, errors.Is(err, ErrAuditDisableTriggers))
	assert.Contains(t, err.Error(), "audit mode")
}

func TestParseOverflowPolicy(t *testing.T) {
	p, err := ParseOverflowPolicy("")
	require.NoError(t, err)
	assert.Equal(t, OverflowDropOldest, p)

	p, err = ParseOverflowPolicy("block")
	require.NoError(t, err)
	assert.Equal(t, OverflowBlock, p)

	_, err = ParseOverflowPolicy("spill")
	assert.Error(t, err)
}

func TestDiagnostic_String(t *testing.T) {
	d := Diagnostic{Kind: DiagnosticOverflow, BatchSize: 3}
	assert.Equal(t, "overflow: 3 event(s) dropped", d.String())

	d = Diagnostic{Kind: DiagnosticPermanentFailure, BatchSize: 2, Attempts: 1, Err: errors.New("boom")}
	assert.Equal(t, "permanent-failure: 2 event(s) dropped after 1 attempt(s): boom", d.String())
}
