package aiengine

import "testing"

func TestCredentialPool(t *testing.T) {
	p := NewCredentialPool([]string{" k1 ", "", "k2", "k1", "k3"})
	if p.Len() != 3 {
		t.Fatalf("Len: got %d, want 3", p.Len())
	}
	if k, ok := p.Current(); !ok || k != "k1" {
		t.Fatalf("Current: got %q %v", k, ok)
	}

	next := p.Rotate()
	if k, _ := p.Current(); k != "k1" {
		t.Fatalf("Rotate mutated the receiver: %q", k)
	}
	if k, _ := next.Current(); k != "k2" || next.Index() != 1 {
		t.Fatalf("Rotate: got %q at %d", k, next.Index())
	}
	if k, _ := next.Rotate().Rotate().Current(); k != "k1" {
		t.Fatalf("Rotate should wrap, got %q", k)
	}
}

func TestEmptyCredentialPool(t *testing.T) {
	p := NewCredentialPool(nil)
	if _, ok := p.Current(); ok {
		t.Fatalf("Current on empty pool should report false")
	}
	if p.Rotate().Len() != 0 {
		t.Fatalf("Rotate on empty pool should stay empty")
	}
}
