// Package output formats agency-cli results as human-readable tables or as
// JSON documents for scripts.
package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Supported formats.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// ValidFormat reports whether format is table or json.
func ValidFormat(format string) bool {
	switch strings.ToLower(format) {
	case FormatTable, FormatJSON:
		return true
	}
	return false
}

// TableFormatter formats output as a human-readable table.
type TableFormatter struct {
	writer *tabwriter.Writer
}

// NewTableFormatter creates a new table formatter.
func NewTableFormatter(w io.Writer) *TableFormatter {
	return &TableFormatter{
		writer: tabwriter.NewWriter(w, 0, 0, 2, ' ', 0),
	}
}

// WriteHeader writes table headers followed by an underline row.
func (t *TableFormatter) WriteHeader(headers ...string) error {
	if err := t.WriteRow(headers...); err != nil {
		return err
	}
	rule := make([]string, len(headers))
	for i, h := range headers {
		rule[i] = strings.Repeat("-", len(h))
	}
	return t.WriteRow(rule...)
}

// WriteRow writes a table row.
func (t *TableFormatter) WriteRow(values ...string) error {
	_, err := fmt.Fprintln(t.writer, strings.Join(values, "\t"))
	return err
}

// Flush flushes the table output.
func (t *TableFormatter) Flush() error {
	return t.writer.Flush()
}

// PrintTable writes a complete table to w.
func PrintTable(w io.Writer, headers []string, rows [][]string) error {
	formatter := NewTableFormatter(w)
	if err := formatter.WriteHeader(headers...); err != nil {
		return err
	}
	for _, row := range rows {
		if err := formatter.WriteRow(row...); err != nil {
			return err
		}
	}
	return formatter.Flush()
}
