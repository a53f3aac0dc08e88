// Package sheet provides row-oriented access to spreadsheet tabs.
//
// A tab is a 2-D grid of strings. Row 1 is the header and every later row
// is one record. Row numbers are 1-based, matching the spreadsheet UI.
package sheet

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrTabNotFound indicates the requested tab does not exist.
// It signals structural absence, not a transient fault, and is never retried.
var ErrTabNotFound = errors.New("sheet tab not found")

// ErrRowOutOfRange indicates an update or delete aimed past the last row.
var ErrRowOutOfRange = errors.New("row out of range")

// Grid is the minimal spreadsheet surface the repositories need.
type Grid interface {
	// Tabs lists tab titles in spreadsheet order.
	Tabs(ctx context.Context) ([]string, error)
	// CreateTab adds a tab and writes header as row 1.
	CreateTab(ctx context.Context, tab string, header []string) error
	// Rows returns every row including the header.
	Rows(ctx context.Context, tab string) ([][]string, error)
	// AppendRow adds row after the last non-empty row.
	AppendRow(ctx context.Context, tab string, row []string) error
	// UpdateRow overwrites the row at rowNum.
	UpdateRow(ctx context.Context, tab string, rowNum int, row []string) error
	// DeleteRow removes the row at rowNum, shifting later rows up.
	DeleteRow(ctx context.Context, tab string, rowNum int) error
}

// ColumnName converts a 1-based column index to its A1 letter form (1 -> A, 27 -> AA).
func ColumnName(n int) string {
	if n < 1 {
		return ""
	}
	var sb []byte
	for n > 0 {
		n--
		sb = append([]byte{byte('A' + n%26)}, sb...)
		n /= 26
	}
	return string(sb)
}

// quoteTab quotes a tab title for use in an A1 range.
func quoteTab(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

// RowRange returns the A1 range covering width columns of a single row.
func RowRange(tab string, rowNum, width int) string {
	if width < 1 {
		width = 1
	}
	return fmt.Sprintf("%s!A%d:%s%d", quoteTab(tab), rowNum, ColumnName(width), rowNum)
}

// TabRange returns the A1 range covering a whole tab.
func TabRange(tab string) string {
	return quoteTab(tab)
}

var (
	_ Grid = (*Client)(nil)
	_ Grid = (*Memory)(nil)
)
