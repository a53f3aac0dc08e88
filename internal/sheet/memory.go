package sheet

import (
	"context"
	"fmt"
	"sync"
)

// Operation names used by Memory for call counting and fault injection.
const (
	OpTabs      = "tabs"
	OpCreateTab = "create_tab"
	OpRows      = "rows"
	OpAppend    = "append"
	OpUpdate    = "update"
	OpDelete    = "delete"
)

// Memory is an in-process Grid. It backs tests and `member serve --memory`.
type Memory struct {
	mu     sync.Mutex
	order  []string
	tabs   map[string][][]string
	faults map[string][]error
	calls  map[string]int
}

// NewMemory returns an empty in-memory spreadsheet.
func NewMemory() *Memory {
	return &Memory{
		tabs:   make(map[string][][]string),
		faults: make(map[string][]error),
		calls:  make(map[string]int),
	}
}

// FailNext queues errors returned by the next calls to op, one per call.
func (m *Memory) FailNext(op string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.faults[op] = append(m.faults[op], errs...)
}

// Calls returns how many times op has been invoked, failed calls included.
func (m *Memory) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// Seed replaces a tab's contents, creating the tab if needed.
func (m *Memory) Seed(tab string, rows [][]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tabs[tab]; !ok {
		m.order = append(m.order, tab)
	}
	m.tabs[tab] = copyRows(rows)
}

// begin records a call and pops a queued fault. Callers hold m.mu.
func (m *Memory) begin(op string) error {
	m.calls[op]++
	if q := m.faults[op]; len(q) > 0 {
		m.faults[op] = q[1:]
		return q[0]
	}
	return nil
}

func (m *Memory) Tabs(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpTabs); err != nil {
		return nil, err
	}
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out, nil
}

func (m *Memory) CreateTab(ctx context.Context, tab string, header []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpCreateTab); err != nil {
		return err
	}
	if _, ok := m.tabs[tab]; ok {
		return fmt.Errorf("tab %q already exists", tab)
	}
	m.order = append(m.order, tab)
	m.tabs[tab] = [][]string{copyRow(header)}
	return nil
}

func (m *Memory) Rows(ctx context.Context, tab string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpRows); err != nil {
		return nil, err
	}
	rows, ok := m.tabs[tab]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTabNotFound, tab)
	}
	return copyRows(rows), nil
}

func (m *Memory) AppendRow(ctx context.Context, tab string, row []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpAppend); err != nil {
		return err
	}
	rows, ok := m.tabs[tab]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTabNotFound, tab)
	}
	// land after the last non-empty row, as the Sheets append call does
	for len(rows) > 0 && blankRow(rows[len(rows)-1]) {
		rows = rows[:len(rows)-1]
	}
	m.tabs[tab] = append(rows, copyRow(row))
	return nil
}

func blankRow(row []string) bool {
	for _, cell := range row {
		if cell != "" {
			return false
		}
	}
	return true
}

func (m *Memory) UpdateRow(ctx context.Context, tab string, rowNum int, row []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpUpdate); err != nil {
		return err
	}
	rows, ok := m.tabs[tab]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTabNotFound, tab)
	}
	if rowNum < 1 {
		return fmt.Errorf("%w: %s row %d", ErrRowOutOfRange, tab, rowNum)
	}
	// writing past the end grows the grid, as the Sheets API does
	for len(rows) < rowNum {
		rows = append(rows, nil)
	}
	rows[rowNum-1] = copyRow(row)
	m.tabs[tab] = rows
	return nil
}

func (m *Memory) DeleteRow(ctx context.Context, tab string, rowNum int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(OpDelete); err != nil {
		return err
	}
	rows, ok := m.tabs[tab]
	if !ok {
		return fmt.Errorf("%w: %s", ErrTabNotFound, tab)
	}
	if rowNum < 1 || rowNum > len(rows) {
		return fmt.Errorf("%w: %s row %d", ErrRowOutOfRange, tab, rowNum)
	}
	m.tabs[tab] = append(rows[:rowNum-1], rows[rowNum:]...)
	return nil
}

func copyRow(row []string) []string {
	out := make([]string, len(row))
	copy(out, row)
	return out
}

func copyRows(rows [][]string) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = copyRow(r)
	}
	return out
}
