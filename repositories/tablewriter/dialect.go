// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package tablewriter

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/Xorcist77/sqlsink/models/columns"
	"github.com/Xorcist77/sqlsink/models/events"
	"github.com/cockroachdb/errors"
)

// ExistingColumnsQuery lists the columns of a table. It takes the schema name
// (empty for the current schema) and the table name.
const ExistingColumnsQuery = `
SELECT column_name FROM information_schema.columns
WHERE table_name = $2
  AND table_schema = CASE WHEN $1 = '' THEN current_schema() ELSE $1 END
ORDER BY ordinal_position`

// BypassTriggersStatement disables ordinary row triggers for the rest of the
// current transaction.
const BypassTriggersStatement = "SET LOCAL session_replication_role = replica"

// QuoteIdentifier quotes a possibly schema-qualified identifier.
func QuoteIdentifier(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

// SplitTableName returns the schema (possibly empty) and table parts.
func SplitTableName(table string) (string, string) {
	if i := strings.LastIndex(table, "."); i >= 0 {
		return table[:i], table[i+1:]
	}
	return "", table
}

// CreateTableStatement renders the DDL creating the log table.
func CreateTableStatement(s columns.Schema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", QuoteIdentifier(s.Table))
	for i, c := range s.Columns {
		fmt.Fprintf(&b, "    %s %s", QuoteIdentifier(c.Name), c.DataType)
		switch {
		case c.Standard == columns.ColumnID:
			b.WriteString(" PRIMARY KEY")
		case c.AllowNull:
			b.WriteString(" NULL")
		default:
			b.WriteString(" NOT NULL")
		}
		if i < len(s.Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(")")
	return b.String()
}

// InsertStatement renders a multi-row INSERT for rowCount rows.
func InsertStatement(s columns.Schema, rowCount int) string {
	names := s.ColumnNames()
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = QuoteIdentifier(n)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", QuoteIdentifier(s.Table), strings.Join(quoted, ", "))
	arg := 1
	for r := 0; r < rowCount; r++ {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for c := range names {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", arg)
			arg++
		}
		b.WriteString(")")
	}
	return b.String()
}

// CheckColumns compares the columns found in the database with the schema.
// Every writable column must exist; extra columns are tolerated.
func CheckColumns(s columns.Schema, existing []string) error {
	found := make(map[string]bool, len(existing))
	for _, name := range existing {
		found[name] = true
	}
	var missing []string
	for _, name := range s.ColumnNames() {
		if !found[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return NewSchemaMismatchError("ensure schema", errors.Newf(
		"table %s is missing columns: %s", s.Table, strings.Join(missing, ", "),
	))
}

// RowValues maps an event onto the values of the schema's writable columns.
func RowValues(s columns.Schema, e events.LogEvent) ([]any, error) {
	cols := s.WritableColumns()
	values := make([]any, len(cols))
	for i, c := range cols {
		v, err := columnValue(s, c, e)
		if err != nil {
			return nil, NewPermanentError("map row", errors.Wrapf(err, "column %s", c.Name))
		}
		if v == nil && !c.AllowNull {
			return nil, NewPermanentError("map row", errors.Newf("column %s is mandatory", c.Name))
		}
		values[i] = v
	}
	return values, nil
}

// BatchRows maps every event of a batch to its row values.
func BatchRows(s columns.Schema, batch events.Batch) ([][]any, error) {
	rows := make([][]any, len(batch))
	for i, e := range batch {
		row, err := RowValues(s, e)
		if err != nil {
			return nil, err
		}
		rows[i] = row
	}
	return rows, nil
}

func columnValue(s columns.Schema, c columns.Column, e events.LogEvent) (any, error) {
	switch c.Standard {
	case columns.ColumnMessage:
		return nullString(e.RenderedMessage()), nil
	case columns.ColumnMessageTemplate:
		return nullString(e.MessageTemplate), nil
	case columns.ColumnLevel:
		return e.Level.String(), nil
	case columns.ColumnTimeStamp:
		ts := e.Timestamp
		if ts.IsZero() {
			return nil, nil
		}
		if s.TimeStampUTC {
			ts = ts.UTC()
		}
		return ts, nil
	case columns.ColumnException:
		return nullString(e.Exception), nil
	case columns.ColumnProperties:
		return propertiesJSON(s, e)
	case columns.ColumnLogEvent:
		data, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}

	v, ok := e.Property(c.Source())
	if !ok || v == nil {
		return nil, nil
	}
	return additionalValue(c, v)
}

func propertiesJSON(s columns.Schema, e events.LogEvent) (any, error) {
	props := e.Properties
	if s.ExcludeAdditionalProperties() && len(props) > 0 {
		skip := s.AdditionalColumnSources()
		filtered := make(map[string]any, len(props))
		for k, v := range props {
			if !skip[k] {
				filtered[k] = v
			}
		}
		props = filtered
	}
	if len(props) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(props)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// additionalValue converts a property value for its column. Text columns get
// a string; structured values are stored as JSON.
func additionalValue(c columns.Column, v any) (any, error) {
	switch tv := v.(type) {
	case map[string]any, []any:
		data, err := json.Marshal(tv)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	if isTextType(c.DataType) {
		switch tv := v.(type) {
		case string:
			return tv, nil
		case time.Time:
			return tv.Format(time.RFC3339Nano), nil
		case fmt.Stringer:
			return tv.String(), nil
		default:
			return fmt.Sprint(tv), nil
		}
	}
	return v, nil
}

func isTextType(dataType string) bool {
	t := strings.ToUpper(strings.TrimSpace(dataType))
	return strings.HasPrefix(t, "TEXT") ||
		strings.HasPrefix(t, "VARCHAR") ||
		strings.HasPrefix(t, "CHAR") ||
		strings.HasPrefix(t, "CHARACTER") ||
		strings.HasPrefix(t, "STRING")
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
