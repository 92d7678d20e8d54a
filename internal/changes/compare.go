package changes

import (
	"slices"

	"github.com/roach88/tasksync/internal/taskdata"
)

// Comparer decides whether two value sequences of an attribute are equal.
type Comparer interface {
	Equal(kind taskdata.Kind, a, b []string) bool
}

// ComparerFunc adapts a function to Comparer.
type ComparerFunc func(kind taskdata.Kind, a, b []string) bool

// Equal calls f.
func (f ComparerFunc) Equal(kind taskdata.Kind, a, b []string) bool {
	return f(kind, a, b)
}

// KindComparer compares by the kind's declared order rule: order-significant
// kinds compare as sequences, all others as multisets.
type KindComparer struct{}

// Equal implements Comparer.
func (KindComparer) Equal(kind taskdata.Kind, a, b []string) bool {
	if kind.OrderSignificant() {
		return slices.Equal(a, b)
	}
	return SameMembers(a, b)
}

// SameMembers reports whether a and b hold the same values with the same
// multiplicities, ignoring order.
func SameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[string]int, len(a))
	for _, v := range a {
		counts[v]++
	}
	for _, v := range b {
		counts[v]--
		if counts[v] < 0 {
			return false
		}
	}
	return true
}
