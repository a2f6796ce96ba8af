package numerator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates the sys_sequences UPSERT: current_val is bumped by
// the increment argument (1 for strict, range size for cached).
type mockQuerier struct {
	mu           sync.Mutex
	currentValue int64
	calls        int
}

func (m *mockQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	var increment int64 = 1
	if len(args) == 2 {
		if val, ok := args[1].(int64); ok {
			increment = val
		}
	}
	m.currentValue += increment
	return &mockRow{val: m.currentValue}
}

func TestGetNextNumber_Strict(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := DefaultConfig("GR")
	period := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	num, err := svc.GetNextNumber(ctx, cfg, nil, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "GR-2026-00001" {
		t.Errorf("expected GR-2026-00001, got %s", num)
	}

	num, err = svc.GetNextNumber(ctx, cfg, nil, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "GR-2026-00002" {
		t.Errorf("expected GR-2026-00002, got %s", num)
	}

	if q.calls != 2 {
		t.Errorf("strict must hit the DB per number, got %d calls", q.calls)
	}
}

func TestGetNextNumber_Cached(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := DefaultConfig("ADJ")
	period := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	opts := &Options{Strategy: StrategyCached, RangeSize: 10}

	// First call reserves 1..10 and returns 1.
	num, err := svc.GetNextNumber(ctx, cfg, opts, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "ADJ-2026-00001" {
		t.Errorf("expected ADJ-2026-00001, got %s", num)
	}
	if q.currentValue != 10 {
		t.Errorf("expected reserved max 10, got %d", q.currentValue)
	}

	// Subsequent calls within the range never hit the DB.
	for i := 2; i <= 10; i++ {
		if _, err := svc.GetNextNumber(ctx, cfg, opts, period); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if q.calls != 1 {
		t.Errorf("expected a single reservation call, got %d", q.calls)
	}

	// Range exhausted: the next call reserves 11..20.
	num, err = svc.GetNextNumber(ctx, cfg, opts, period)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "ADJ-2026-00011" {
		t.Errorf("expected ADJ-2026-00011, got %s", num)
	}
	if q.calls != 2 {
		t.Errorf("expected a second reservation call, got %d", q.calls)
	}
}

func TestBuildKey_ResetPeriods(t *testing.T) {
	svc := New(&mockQuerier{})
	period := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		reset string
		want  string
	}{
		{"year", "GR_2026"},
		{"month", "GR_2026_08"},
		{"never", "GR"},
	}
	for _, tt := range tests {
		cfg := Config{Prefix: "GR", ResetPeriod: tt.reset}
		if got := svc.buildKey(cfg, period); got != tt.want {
			t.Errorf("buildKey(%s) = %s, want %s", tt.reset, got, tt.want)
		}
	}
}

func TestParseNumber(t *testing.T) {
	if got := ParseNumber("GR-2026-00042"); got != 42 {
		t.Errorf("ParseNumber = %d, want 42", got)
	}
	if got := ParseNumber("GR-00007"); got != 7 {
		t.Errorf("ParseNumber = %d, want 7", got)
	}
	if got := ParseNumber("garbage"); got != -1 {
		t.Errorf("ParseNumber = %d, want -1", got)
	}
}
