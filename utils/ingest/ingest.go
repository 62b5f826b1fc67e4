// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

// Package ingest decodes log events submitted over HTTP or read from files.
// A payload is either a JSON array of events or newline-delimited JSON, one
// event object per line.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Xorcist77/sqlsink/models/events"
	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/valyala/fastjson"
)

const (
	// DefaultMaxBodySize bounds a request body once decompressed.
	DefaultMaxBodySize = 16 << 20
	// DefaultMaxLineSize bounds a single NDJSON line when streaming.
	DefaultMaxLineSize = 1 << 20
)

var (
	// ErrInvalidEvent is returned for payloads that are not event objects.
	ErrInvalidEvent = fmt.Errorf("invalid event")
	// ErrBodyTooLarge is returned when a payload exceeds the size limit.
	ErrBodyTooLarge = fmt.Errorf("payload too large")
	// ErrUnsupportedEncoding is returned for unknown Content-Encoding values.
	ErrUnsupportedEncoding = fmt.Errorf("unsupported content encoding")
)

// DecodeBody wraps r to undo the given Content-Encoding. gzip and zstd are
// supported; empty and "identity" return r unchanged.
func DecodeBody(r io.Reader, encoding string) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return io.NopCloser(r), nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "invalid gzip body")
		}
		return zr, nil
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, errors.Wrap(err, "invalid zstd body")
		}
		return zr.IOReadCloser(), nil
	}
	return nil, errors.Wrapf(ErrUnsupportedEncoding, "%q", encoding)
}

// Decoder parses event payloads. It is safe for concurrent use.
type Decoder struct {
	parser      fastjson.ParserPool
	maxBodySize int64
	maxLineSize int
}

// NewDecoder creates a decoder. Zero limits take their default.
func NewDecoder(maxBodySize int64, maxLineSize int) *Decoder {
	if maxBodySize <= 0 {
		maxBodySize = DefaultMaxBodySize
	}
	if maxLineSize <= 0 {
		maxLineSize = DefaultMaxLineSize
	}
	return &Decoder{maxBodySize: maxBodySize, maxLineSize: maxLineSize}
}

// ReadAll reads a whole payload from r and parses it.
func (d *Decoder) ReadAll(r io.Reader) (events.Batch, error) {
	data, err := io.ReadAll(io.LimitReader(r, d.maxBodySize+1))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read payload")
	}
	if int64(len(data)) > d.maxBodySize {
		return nil, errors.Wrapf(ErrBodyTooLarge, "limit is %d bytes", d.maxBodySize)
	}
	return d.Parse(data)
}

// Parse parses a JSON array of events or NDJSON.
func (d *Decoder) Parse(data []byte) (events.Batch, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}

	p := d.parser.Get()
	defer d.parser.Put(p)

	if data[0] == '[' {
		v, err := p.ParseBytes(data)
		if err != nil {
			return nil, errors.Mark(errors.Wrap(err, "invalid JSON"), ErrInvalidEvent)
		}
		arr, _ := v.Array()
		batch := make(events.Batch, 0, len(arr))
		for i, item := range arr {
			e, err := eventFromValue(item)
			if err != nil {
				return nil, errors.Wrapf(err, "event %d", i)
			}
			batch = append(batch, e)
		}
		return batch, nil
	}

	var batch events.Batch
	for n, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		e, err := parseLine(p, line)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", n+1)
		}
		batch = append(batch, e)
	}
	return batch, nil
}

// Stream reads NDJSON from r and calls fn for every event, without holding
// the whole payload in memory.
func (d *Decoder) Stream(
	ctx context.Context, r io.Reader, fn func(events.LogEvent) error,
) (int, error) {
	scanner := bufio.NewScanner(r)
	// The token limit is the larger of the buffer capacity and the max.
	scanner.Buffer(make([]byte, 0, min(64<<10, d.maxLineSize)), d.maxLineSize)

	p := d.parser.Get()
	defer d.parser.Put(p)

	count, n := 0, 0
	for scanner.Scan() {
		n++
		if err := ctx.Err(); err != nil {
			return count, err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		e, err := parseLine(p, line)
		if err != nil {
			return count, errors.Wrapf(err, "line %d", n)
		}
		if err := fn(e); err != nil {
			return count, err
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return count, errors.Wrapf(ErrBodyTooLarge, "line %d exceeds %d bytes", n+1, d.maxLineSize)
		}
		return count, errors.Wrap(err, "failed to read input")
	}
	return count, nil
}

func parseLine(p *fastjson.Parser, line []byte) (events.LogEvent, error) {
	v, err := p.ParseBytes(line)
	if err != nil {
		return events.LogEvent{}, errors.Mark(errors.Wrap(err, "invalid JSON"), ErrInvalidEvent)
	}
	return eventFromValue(v)
}

func eventFromValue(v *fastjson.Value) (events.LogEvent, error) {
	if v.Type() != fastjson.TypeObject {
		return events.LogEvent{}, errors.Wrapf(ErrInvalidEvent, "expected an object, got %s", v.Type())
	}

	var e events.LogEvent
	if ts := v.Get("timestamp"); ts != nil {
		t, err := parseTimestamp(ts)
		if err != nil {
			return e, err
		}
		e.Timestamp = t
	}

	if lv := v.Get("level"); lv != nil {
		l, err := parseLevel(lv)
		if err != nil {
			return e, err
		}
		e.Level = l
	} else {
		e.Level = events.LevelInformation
	}

	e.MessageTemplate = string(v.GetStringBytes("messageTemplate"))
	e.Message = string(v.GetStringBytes("message"))
	if e.Message == "" {
		e.Message = string(v.GetStringBytes("msg"))
	}
	e.Exception = string(v.GetStringBytes("exception"))

	if props := v.Get("properties"); props != nil && props.Type() != fastjson.TypeNull {
		if props.Type() != fastjson.TypeObject {
			return e, errors.Wrap(ErrInvalidEvent, "properties must be an object")
		}
		e.Properties = toNative(props).(map[string]any)
	}
	return e, nil
}

// parseTimestamp accepts RFC 3339 strings and unix nanoseconds.
func parseTimestamp(v *fastjson.Value) (time.Time, error) {
	switch v.Type() {
	case fastjson.TypeString:
		s, _ := v.StringBytes()
		t, err := time.Parse(time.RFC3339Nano, string(s))
		if err != nil {
			return time.Time{}, errors.Mark(errors.Wrap(err, "invalid timestamp"), ErrInvalidEvent)
		}
		return t, nil
	case fastjson.TypeNumber:
		ns, err := v.Int64()
		if err != nil {
			return time.Time{}, errors.Mark(errors.Wrap(err, "invalid timestamp"), ErrInvalidEvent)
		}
		return time.Unix(0, ns), nil
	case fastjson.TypeNull:
		return time.Time{}, nil
	}
	return time.Time{}, errors.Wrapf(ErrInvalidEvent, "invalid timestamp type %s", v.Type())
}

func parseLevel(v *fastjson.Value) (events.Level, error) {
	switch v.Type() {
	case fastjson.TypeString:
		s, _ := v.StringBytes()
		l, err := events.ParseLevel(string(s))
		if err != nil {
			return 0, errors.Mark(err, ErrInvalidEvent)
		}
		return l, nil
	case fastjson.TypeNumber:
		n, err := v.Int()
		if err != nil || n < int(events.LevelVerbose) || n > int(events.LevelFatal) {
			return 0, errors.Wrapf(ErrInvalidEvent, "invalid level %s", v.String())
		}
		return events.Level(n), nil
	}
	return 0, errors.Wrapf(ErrInvalidEvent, "invalid level type %s", v.Type())
}

// toNative converts a parsed value into plain Go values. Integers become
// int64, other numbers float64.
func toNative(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeObject:
		o, _ := v.Object()
		m := make(map[string]any, o.Len())
		o.Visit(func(key []byte, item *fastjson.Value) {
			m[string(key)] = toNative(item)
		})
		return m
	case fastjson.TypeArray:
		arr, _ := v.Array()
		out := make([]any, len(arr))
		for i, item := range arr {
			out[i] = toNative(item)
		}
		return out
	case fastjson.TypeString:
		s, _ := v.StringBytes()
		return string(s)
	case fastjson.TypeNumber:
		if n, err := v.Int64(); err == nil {
			return n
		}
		f, _ := v.Float64()
		return f
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	}
	return nil
}
