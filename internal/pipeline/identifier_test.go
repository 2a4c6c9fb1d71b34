package pipeline

import "testing"

func TestLabelAllocatorFresh(t *testing.T) {
	alloc := newLabelAllocator("REQ", nil)
	if got := alloc.Next(); got != "REQ-001" {
		t.Fatalf("expected REQ-001, got %s", got)
	}
	if got := alloc.Next(); got != "REQ-002" {
		t.Fatalf("expected REQ-002, got %s", got)
	}
}

func TestLabelAllocatorContinuesPastExisting(t *testing.T) {
	existing := []string{"REQ-001", "REQ-003", "REQ-012", "DEC-040", "REQ-bogus"}
	alloc := newLabelAllocator("REQ", existing)
	if got := alloc.Next(); got != "REQ-013" {
		t.Fatalf("expected REQ-013, got %s", got)
	}
}

func TestLabelAllocatorWidthBeyondThreeDigits(t *testing.T) {
	alloc := newLabelAllocator("CON", []string{"CON-999"})
	if got := alloc.Next(); got != "CON-1000" {
		t.Fatalf("expected CON-1000, got %s", got)
	}
}
