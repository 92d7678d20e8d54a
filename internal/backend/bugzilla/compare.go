package bugzilla

import (
	"strings"
	"time"

	"github.com/roach88/tasksync/internal/changes"
	"github.com/roach88/tasksync/internal/taskdata"
)

// timestampLayouts are the formats Bugzilla uses for dates across versions
// and output modes.
var timestampLayouts = []string{
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 MST",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02",
}

// ParseTimestamp parses a Bugzilla date in any known layout.
func ParseTimestamp(s string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Comparer compares dates by instant and person identifiers without regard
// to case. Other kinds use their declared order rule.
type Comparer struct{}

// Equal implements changes.Comparer.
func (Comparer) Equal(kind taskdata.Kind, a, b []string) bool {
	switch kind {
	case taskdata.KindDate:
		if len(a) == 1 && len(b) == 1 {
			ta, okA := ParseTimestamp(a[0])
			tb, okB := ParseTimestamp(b[0])
			if okA && okB {
				return ta.Equal(tb)
			}
		}
	case taskdata.KindPerson, taskdata.KindPersonList:
		return changes.KindComparer{}.Equal(kind, lower(a), lower(b))
	}
	return changes.KindComparer{}.Equal(kind, a, b)
}

func lower(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}
