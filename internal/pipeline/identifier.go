package pipeline

import (
	"fmt"
	"strconv"
	"strings"
)

// labelAllocator hands out sequential display labels such as REQ-001,
// continuing past the highest suffix already present so identifiers stay
// monotonic across runs.
type labelAllocator struct {
	prefix string
	next   int
}

// newLabelAllocator scans existing labels with the given prefix and
// positions the allocator one past the highest numeric suffix found.
func newLabelAllocator(prefix string, existing []string) *labelAllocator {
	highest := 0
	marker := prefix + "-"
	for _, label := range existing {
		if !strings.HasPrefix(label, marker) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimPrefix(label, marker))
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return &labelAllocator{prefix: prefix, next: highest + 1}
}

// Next returns the next label in sequence.
func (a *labelAllocator) Next() string {
	label := fmt.Sprintf("%s-%03d", a.prefix, a.next)
	a.next++
	return label
}
