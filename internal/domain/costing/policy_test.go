package costing

import (
	"context"
	"testing"
	"time"

	"stockpile/internal/core/id"
)

type fakePolicyRepo struct {
	rows []Policy
}

func (f *fakePolicyRepo) GetActive(_ context.Context, productID id.ID, at time.Time) (*Policy, error) {
	var active *Policy
	for i := range f.rows {
		p := &f.rows[i]
		if p.ProductID != productID || p.EffectiveFrom.After(at) {
			continue
		}
		if active == nil || p.EffectiveFrom.After(active.EffectiveFrom) {
			active = p
		}
	}
	return active, nil
}

func (f *fakePolicyRepo) Insert(_ context.Context, policy Policy) error {
	f.rows = append(f.rows, policy)
	return nil
}

func (f *fakePolicyRepo) ListHistory(_ context.Context, productID id.ID) ([]Policy, error) {
	var out []Policy
	for _, p := range f.rows {
		if p.ProductID == productID {
			out = append(out, p)
		}
	}
	return out, nil
}

func TestResolve_DefaultsToAverage(t *testing.T) {
	resolver := NewResolver(&fakePolicyRepo{})

	method, err := resolver.Resolve(context.Background(), id.New(), time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != MethodAverage {
		t.Errorf("method = %s, want AVERAGE", method)
	}
}

func TestResolve_LatestEffectivePolicyWins(t *testing.T) {
	productID := id.New()
	repo := &fakePolicyRepo{rows: []Policy{
		{ProductID: productID, Method: MethodAverage, EffectiveFrom: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ProductID: productID, Method: MethodFIFO, EffectiveFrom: time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)},
	}}
	resolver := NewResolver(repo)
	ctx := context.Background()

	// Before the switch
	method, err := resolver.Resolve(ctx, productID, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != MethodAverage {
		t.Errorf("method before switch = %s, want AVERAGE", method)
	}

	// After the switch
	method, err = resolver.Resolve(ctx, productID, time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if method != MethodFIFO {
		t.Errorf("method after switch = %s, want FIFO", method)
	}
}

func TestSetPolicy_Validation(t *testing.T) {
	resolver := NewResolver(&fakePolicyRepo{})
	ctx := context.Background()

	if _, err := resolver.SetPolicy(ctx, id.New(), Method("STANDARD"), time.Now()); err == nil {
		t.Error("expected error for unknown method")
	}
	if _, err := resolver.SetPolicy(ctx, id.New(), MethodFIFO, time.Time{}); err == nil {
		t.Error("expected error for zero effective_from")
	}
}

func TestSetPolicy_AppendsHistory(t *testing.T) {
	repo := &fakePolicyRepo{}
	resolver := NewResolver(repo)
	ctx := context.Background()
	productID := id.New()

	if _, err := resolver.SetPolicy(ctx, productID, MethodLIFO, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := resolver.SetPolicy(ctx, productID, MethodFIFO, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	history, err := resolver.History(ctx, productID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 2 {
		t.Errorf("history rows = %d, want 2; method changes never overwrite prior rows", len(history))
	}
}

func TestParseMethod(t *testing.T) {
	for _, valid := range []string{"FIFO", "AVERAGE", "LIFO"} {
		if _, err := ParseMethod(valid); err != nil {
			t.Errorf("ParseMethod(%q) unexpected error: %v", valid, err)
		}
	}
	if _, err := ParseMethod("fifo"); err == nil {
		t.Error("method strings are case sensitive")
	}
}
