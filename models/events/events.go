// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Level is the severity of a log event.
type Level int

const (
	LevelVerbose Level = iota
	LevelDebug
	LevelInformation
	LevelWarning
	LevelError
	LevelFatal
)

var levelNames = [...]string{
	LevelVerbose:     "Verbose",
	LevelDebug:       "Debug",
	LevelInformation: "Information",
	LevelWarning:     "Warning",
	LevelError:       "Error",
	LevelFatal:       "Fatal",
}

// String returns the name stored in the Level column.
func (l Level) String() string {
	if l < LevelVerbose || l > LevelFatal {
		return fmt.Sprintf("Level(%d)", int(l))
	}
	return levelNames[l]
}

// MarshalJSON encodes the level by name.
func (l Level) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// UnmarshalJSON accepts any name understood by ParseLevel.
func (l *Level) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel parses a level name. Both the long names (Information) and the
// slog short names (info, warn) are accepted, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "verbose", "trace":
		return LevelVerbose, nil
	case "debug":
		return LevelDebug, nil
	case "information", "info", "":
		return LevelInformation, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	case "fatal", "critical":
		return LevelFatal, nil
	}
	return LevelInformation, fmt.Errorf("unknown log level %q", s)
}

// FromSlog maps a slog level onto the closest Level.
func FromSlog(l slog.Level) Level {
	switch {
	case l < slog.LevelDebug:
		return LevelVerbose
	case l < slog.LevelInfo:
		return LevelDebug
	case l < slog.LevelWarn:
		return LevelInformation
	case l < slog.LevelError:
		return LevelWarning
	case l < slog.LevelError+4:
		return LevelError
	default:
		return LevelFatal
	}
}

// LogEvent is a single structured log record. It is treated as read-only once
// handed to an engine.
type LogEvent struct {
	Timestamp       time.Time      `json:"timestamp"`
	Level           Level          `json:"level"`
	MessageTemplate string         `json:"messageTemplate,omitempty"`
	Message         string         `json:"message,omitempty"`
	Properties      map[string]any `json:"properties,omitempty"`
	Exception       string         `json:"exception,omitempty"`
}

// RenderedMessage returns the rendered message, falling back to the template.
func (e LogEvent) RenderedMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return e.MessageTemplate
}

// Property returns a named property and whether it was present.
func (e LogEvent) Property(name string) (any, bool) {
	if e.Properties == nil {
		return nil, false
	}
	v, ok := e.Properties[name]
	return v, ok
}

// Batch is an ordered set of events written together.
type Batch []LogEvent
