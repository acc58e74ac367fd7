package owner

import (
	"context"
	"testing"
)

func TestFrom_Empty(t *testing.T) {
	if _, ok := From(context.Background()); ok {
		t.Error("From(Background) ok = true, want false")
	}
	//nolint:staticcheck // nil context is tolerated deliberately
	if _, ok := From(nil); ok {
		t.Error("From(nil) ok = true, want false")
	}
}

func TestWith_KeepsExisting(t *testing.T) {
	ctx := With(context.Background())
	first, ok := From(ctx)
	if !ok {
		t.Fatal("With() did not attach an ID")
	}

	again := With(ctx)
	second, _ := From(again)
	if first != second {
		t.Errorf("With() replaced existing ID: %q -> %q", first, second)
	}
}

func TestFresh_ShadowsParent(t *testing.T) {
	parent := With(context.Background())
	child := Fresh(parent)

	p, _ := From(parent)
	c, _ := From(child)
	if p == c {
		t.Errorf("Fresh() reused parent ID %q", p)
	}
}

func TestNew_Unique(t *testing.T) {
	seen := make(map[ID]struct{})
	for i := 0; i < 100; i++ {
		id := New()
		if _, dup := seen[id]; dup {
			t.Fatalf("New() returned duplicate %q", id)
		}
		seen[id] = struct{}{}
	}
}
