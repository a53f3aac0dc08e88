// Package store implements the spreadsheet-backed repositories.
//
// Every tab is read in one bulk call, matched by linear scan on a natural
// key and written back one row at a time. Each call to the spreadsheet is
// retried with exponential backoff when the failure is transient.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/polycle/member/internal/retry"
	"github.com/polycle/member/internal/sheet"
)

// Errors.
var (
	ErrNotFound = errors.New("record not found")
	ErrInvalid  = errors.New("invalid record")
)

// Record is one row keyed by header column name.
type Record map[string]string

// Options are shared by every table and repository.
type Options struct {
	Policy retry.Policy
	Logger *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Policy.MaxAttempts == 0 {
		o.Policy = retry.DefaultPolicy
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// Table gives header-mapped access to one tab.
type Table struct {
	grid   sheet.Grid
	tab    string
	header []string
	opts   Options
}

// NewTable returns a table over tab. header lists the columns this code
// writes; columns already present in the sheet are preserved.
func NewTable(grid sheet.Grid, tab string, header []string, opts Options) *Table {
	return &Table{grid: grid, tab: tab, header: header, opts: opts.withDefaults()}
}

// Name returns the tab title.
func (t *Table) Name() string { return t.tab }

// loadedRow is a record together with its sheet position and raw cells.
type loadedRow struct {
	num int
	rec Record
	raw []string
}

// snapshot is a single bulk read of the tab.
type snapshot struct {
	exists bool
	header []string
	rows   []loadedRow
}

func (t *Table) notify(op string) retry.Notify {
	return logRetry(t.opts.Logger, t.tab, op)
}

// logRetry returns a retry hook that logs each retried sheet call. tab may
// be empty for spreadsheet-wide calls.
func logRetry(logger *zap.Logger, tab, op string) retry.Notify {
	return func(attempt int, err error, next time.Duration) {
		fields := []zap.Field{
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("next", next),
			zap.Error(err),
		}
		if tab != "" {
			fields = append(fields, zap.String("tab", tab))
		}
		logger.Warn("retrying sheet call", fields...)
	}
}

func (t *Table) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return retry.Do(ctx, t.opts.Policy, fn, t.notify(op))
}

func (t *Table) load(ctx context.Context) (*snapshot, error) {
	rows, err := retry.Value(ctx, t.opts.Policy, func(ctx context.Context) ([][]string, error) {
		return t.grid.Rows(ctx, t.tab)
	}, t.notify(sheet.OpRows))
	if errors.Is(err, sheet.ErrTabNotFound) {
		return &snapshot{exists: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", t.tab, err)
	}

	snap := &snapshot{exists: true}
	if len(rows) == 0 {
		return snap, nil
	}
	snap.header = make([]string, len(rows[0]))
	for i, h := range rows[0] {
		snap.header[i] = strings.TrimSpace(h)
	}
	for i, raw := range rows[1:] {
		if blank(raw) {
			continue
		}
		snap.rows = append(snap.rows, loadedRow{
			num: i + 2,
			rec: decode(snap.header, raw),
			raw: raw,
		})
	}
	return snap, nil
}

// Load returns every record in the tab. A missing tab yields no records.
func (t *Table) Load(ctx context.Context) ([]Record, error) {
	snap, err := t.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(snap.rows))
	for _, r := range snap.rows {
		out = append(out, r.rec)
	}
	return out, nil
}

// Ensure creates the tab with its header when absent and adds any missing
// header columns when present.
func (t *Table) Ensure(ctx context.Context) error {
	snap, err := t.load(ctx)
	if err != nil {
		return err
	}
	_, err = t.prepare(ctx, snap)
	return err
}

// prepare makes sure the tab exists and its header covers t.header.
// It returns the header rows should be encoded against.
func (t *Table) prepare(ctx context.Context, snap *snapshot) ([]string, error) {
	if !snap.exists {
		err := t.do(ctx, sheet.OpCreateTab, func(ctx context.Context) error {
			return t.grid.CreateTab(ctx, t.tab, t.header)
		})
		if err != nil {
			return nil, fmt.Errorf("creating %s: %w", t.tab, err)
		}
		t.opts.Logger.Info("created sheet tab", zap.String("tab", t.tab))
		return t.header, nil
	}

	header, changed := mergeHeader(snap.header, t.header)
	if changed {
		err := t.do(ctx, sheet.OpUpdate, func(ctx context.Context) error {
			return t.grid.UpdateRow(ctx, t.tab, 1, header)
		})
		if err != nil {
			return nil, fmt.Errorf("writing %s header: %w", t.tab, err)
		}
	}
	return header, nil
}

// UpsertResult describes the outcome of an upsert.
type UpsertResult struct {
	Record  Record // the record as written, after merging
	Created bool   // true when a new row was appended
	Row     int    // 1-based sheet row that was written (0 when appended)
}

// MergeFunc combines the stored record with an incoming one.
type MergeFunc func(existing, incoming Record) Record

// Overlay is the default merge: incoming columns replace stored ones,
// columns the incoming record does not mention are kept.
func Overlay(existing, incoming Record) Record {
	out := make(Record, len(existing)+len(incoming))
	for k, v := range existing {
		out[k] = v
	}
	for k, v := range incoming {
		out[k] = v
	}
	return out
}

// Upsert overwrites the first row for which match returns true, or appends
// rec when no row matches. merge may be nil, in which case Overlay is used.
func (t *Table) Upsert(ctx context.Context, rec Record, match func(Record) bool, merge MergeFunc) (UpsertResult, error) {
	if merge == nil {
		merge = Overlay
	}

	snap, err := t.load(ctx)
	if err != nil {
		return UpsertResult{}, err
	}
	header, err := t.prepare(ctx, snap)
	if err != nil {
		return UpsertResult{}, err
	}

	for _, row := range snap.rows {
		if !match(row.rec) {
			continue
		}
		merged := merge(row.rec, rec)
		values := encode(header, merged, row.raw)
		err := t.do(ctx, sheet.OpUpdate, func(ctx context.Context) error {
			return t.grid.UpdateRow(ctx, t.tab, row.num, values)
		})
		if err != nil {
			return UpsertResult{}, fmt.Errorf("updating %s row %d: %w", t.tab, row.num, err)
		}
		return UpsertResult{Record: merged, Row: row.num}, nil
	}

	values := encode(header, rec, nil)
	err = t.do(ctx, sheet.OpAppend, func(ctx context.Context) error {
		return t.grid.AppendRow(ctx, t.tab, values)
	})
	if err != nil {
		return UpsertResult{}, fmt.Errorf("appending to %s: %w", t.tab, err)
	}
	return UpsertResult{Record: rec, Created: true}, nil
}

// Update rewrites the first matching row with change(existing).
// It returns ErrNotFound when nothing matches.
func (t *Table) Update(ctx context.Context, match func(Record) bool, change func(Record) Record) (Record, error) {
	snap, err := t.load(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range snap.rows {
		if !match(row.rec) {
			continue
		}
		header, err := t.prepare(ctx, snap)
		if err != nil {
			return nil, err
		}
		updated := change(Overlay(row.rec, nil))
		values := encode(header, updated, row.raw)
		err = t.do(ctx, sheet.OpUpdate, func(ctx context.Context) error {
			return t.grid.UpdateRow(ctx, t.tab, row.num, values)
		})
		if err != nil {
			return nil, fmt.Errorf("updating %s row %d: %w", t.tab, row.num, err)
		}
		return updated, nil
	}
	return nil, fmt.Errorf("%w in %s", ErrNotFound, t.tab)
}

// Delete removes the first matching row. It returns ErrNotFound when
// nothing matches.
func (t *Table) Delete(ctx context.Context, match func(Record) bool) error {
	snap, err := t.load(ctx)
	if err != nil {
		return err
	}
	for _, row := range snap.rows {
		if !match(row.rec) {
			continue
		}
		err := t.do(ctx, sheet.OpDelete, func(ctx context.Context) error {
			return t.grid.DeleteRow(ctx, t.tab, row.num)
		})
		if err != nil {
			return fmt.Errorf("deleting %s row %d: %w", t.tab, row.num, err)
		}
		return nil
	}
	return fmt.Errorf("%w in %s", ErrNotFound, t.tab)
}

// mergeHeader appends wanted columns missing from have.
func mergeHeader(have, want []string) ([]string, bool) {
	present := make(map[string]bool, len(have))
	for _, h := range have {
		if h != "" {
			present[h] = true
		}
	}
	out := append([]string(nil), have...)
	changed := false
	for _, w := range want {
		if !present[w] {
			out = append(out, w)
			changed = true
		}
	}
	return out, changed
}

func decode(header, raw []string) Record {
	rec := make(Record, len(header))
	for i, col := range header {
		if col == "" {
			continue
		}
		if i < len(raw) {
			rec[col] = strings.TrimSpace(raw[i])
		} else {
			rec[col] = ""
		}
	}
	return rec
}

// encode lays rec out in header order. Cells for columns rec does not
// know about are copied from raw so foreign columns survive a rewrite.
func encode(header []string, rec Record, raw []string) []string {
	values := make([]string, len(header))
	for i, col := range header {
		if v, ok := rec[col]; ok && col != "" {
			values[i] = v
		} else if i < len(raw) {
			values[i] = raw[i]
		}
	}
	return values
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
