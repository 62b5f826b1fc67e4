// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package columns

import (
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrInvalidColumnOptions is returned when a column configuration cannot
	// produce a valid table schema.
	ErrInvalidColumnOptions = errors.New("invalid column options")

	identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// StandardColumn identifies one of the built-in log table columns.
type StandardColumn string

const (
	ColumnID              StandardColumn = "Id"
	ColumnMessage         StandardColumn = "Message"
	ColumnMessageTemplate StandardColumn = "MessageTemplate"
	ColumnLevel           StandardColumn = "Level"
	ColumnTimeStamp       StandardColumn = "TimeStamp"
	ColumnException       StandardColumn = "Exception"
	ColumnProperties      StandardColumn = "Properties"
	ColumnLogEvent        StandardColumn = "LogEvent"
)

// canonicalOrder is the order in which standard columns appear in the table.
var canonicalOrder = []StandardColumn{
	ColumnID,
	ColumnMessage,
	ColumnMessageTemplate,
	ColumnLevel,
	ColumnTimeStamp,
	ColumnException,
	ColumnProperties,
	ColumnLogEvent,
}

// DefaultStore is the set of standard columns used when ColumnOptions.Store
// is empty. LogEvent is opt-in.
var DefaultStore = []StandardColumn{
	ColumnID,
	ColumnMessage,
	ColumnMessageTemplate,
	ColumnLevel,
	ColumnTimeStamp,
	ColumnException,
	ColumnProperties,
}

// standardDefinitions holds the column definition of each standard column.
var standardDefinitions = map[StandardColumn]Column{
	ColumnID:              {Name: string(ColumnID), DataType: "BIGINT GENERATED BY DEFAULT AS IDENTITY", Computed: true},
	ColumnMessage:         {Name: string(ColumnMessage), DataType: "TEXT", AllowNull: true},
	ColumnMessageTemplate: {Name: string(ColumnMessageTemplate), DataType: "TEXT", AllowNull: true},
	ColumnLevel:           {Name: string(ColumnLevel), DataType: "VARCHAR(16)", AllowNull: true},
	ColumnTimeStamp:       {Name: string(ColumnTimeStamp), DataType: "TIMESTAMPTZ"},
	ColumnException:       {Name: string(ColumnException), DataType: "TEXT", AllowNull: true},
	ColumnProperties:      {Name: string(ColumnProperties), DataType: "JSONB", AllowNull: true},
	ColumnLogEvent:        {Name: string(ColumnLogEvent), DataType: "JSONB", AllowNull: true},
}

// Column describes one column of the destination table.
type Column struct {
	Name     string `yaml:"name"`
	DataType string `yaml:"type"`
	// AllowNull marks the column as nullable. Non-nullable columns are
	// mandatory on every row.
	AllowNull bool `yaml:"nullable"`
	// Computed columns are created with the table but never written.
	Computed bool `yaml:"-"`
	// PropertyName is the event property feeding an additional column. It
	// defaults to Name.
	PropertyName string `yaml:"property"`
	// Standard is set for built-in columns.
	Standard StandardColumn `yaml:"-"`
}

// Source returns the property name an additional column reads from.
func (c Column) Source() string {
	if c.PropertyName != "" {
		return c.PropertyName
	}
	return c.Name
}

// ColumnOptions configures the columns of the destination table.
type ColumnOptions struct {
	// Store lists the standard columns to create. Empty means DefaultStore.
	Store []StandardColumn
	// AdditionalColumns are appended after the standard columns and are
	// populated from event properties of the same name.
	AdditionalColumns []Column
	// DisableTriggers selects the write path that bypasses row-level
	// triggers. It does not change the column list.
	DisableTriggers bool
	// TimeStampUTC stores timestamps converted to UTC.
	TimeStampUTC bool
	// ExcludeAdditionalProperties omits from the Properties column the
	// properties already stored in an additional column.
	ExcludeAdditionalProperties bool
}

// Schema is the resolved, ordered column list of a log table.
type Schema struct {
	Table           string
	Columns         []Column
	DisableTriggers bool
	TimeStampUTC    bool

	excludeAdditional bool
}

// BuildSchema resolves the options into a deterministic schema. The same
// inputs always produce an equal schema.
func BuildSchema(table string, opts ColumnOptions) (Schema, error) {
	if table == "" {
		return Schema{}, errors.Wrap(ErrInvalidColumnOptions, "table name is required")
	}
	for _, part := range strings.Split(table, ".") {
		if !identifierRe.MatchString(part) {
			return Schema{}, errors.Wrapf(ErrInvalidColumnOptions, "invalid table name %q", table)
		}
	}

	store := opts.Store
	if len(store) == 0 {
		store = DefaultStore
	}
	wanted := make(map[StandardColumn]bool, len(store))
	for _, c := range store {
		if _, ok := standardDefinitions[c]; !ok {
			return Schema{}, errors.Wrapf(ErrInvalidColumnOptions, "unknown standard column %q", c)
		}
		wanted[c] = true
	}

	s := Schema{
		Table:             table,
		DisableTriggers:   opts.DisableTriggers,
		TimeStampUTC:      opts.TimeStampUTC,
		excludeAdditional: opts.ExcludeAdditionalProperties,
	}
	seen := make(map[string]bool)
	for _, c := range canonicalOrder {
		if !wanted[c] {
			continue
		}
		col := standardDefinitions[c]
		col.Standard = c
		seen[strings.ToLower(col.Name)] = true
		s.Columns = append(s.Columns, col)
	}

	for _, c := range opts.AdditionalColumns {
		if !identifierRe.MatchString(c.Name) {
			return Schema{}, errors.Wrapf(ErrInvalidColumnOptions, "invalid column name %q", c.Name)
		}
		key := strings.ToLower(c.Name)
		if seen[key] {
			return Schema{}, errors.Wrapf(ErrInvalidColumnOptions, "duplicate column %q", c.Name)
		}
		seen[key] = true
		if c.DataType == "" {
			c.DataType = "TEXT"
		}
		c.Computed = false
		c.Standard = ""
		s.Columns = append(s.Columns, c)
	}

	if len(s.WritableColumns()) == 0 {
		return Schema{}, errors.Wrap(ErrInvalidColumnOptions, "schema has no writable column")
	}
	return s, nil
}

// WritableColumns returns the columns that receive a value on insert.
func (s Schema) WritableColumns() []Column {
	out := make([]Column, 0, len(s.Columns))
	for _, c := range s.Columns {
		if !c.Computed {
			out = append(out, c)
		}
	}
	return out
}

// ColumnNames returns the names of the writable columns, in order.
func (s Schema) ColumnNames() []string {
	cols := s.WritableColumns()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

// AdditionalColumnSources returns the property names consumed by additional
// columns.
func (s Schema) AdditionalColumnSources() map[string]bool {
	out := make(map[string]bool)
	for _, c := range s.Columns {
		if c.Standard == "" {
			out[c.Source()] = true
		}
	}
	return out
}

// ExcludeAdditionalProperties reports whether properties consumed by
// additional columns are omitted from the Properties column.
func (s Schema) ExcludeAdditionalProperties() bool {
	return s.excludeAdditional
}

// Equal reports whether two schemas describe the same table.
func (s Schema) Equal(o Schema) bool {
	if s.Table != o.Table || len(s.Columns) != len(o.Columns) {
		return false
	}
	for i := range s.Columns {
		if s.Columns[i] != o.Columns[i] {
			return false
		}
	}
	return true
}
