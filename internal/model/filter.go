package model

import (
	"fmt"
	"strings"
)

// Filter is a value of the filter bar.
// FilterClearCompleted is an action, not a view: callers route it to a purge.
type Filter int

const (
	FilterAll Filter = iota
	FilterActive
	FilterCompleted
	FilterClearCompleted
)

// Filters lists the filter bar entries in display order.
var Filters = []Filter{FilterAll, FilterActive, FilterCompleted, FilterClearCompleted}

func (f Filter) String() string {
	switch f {
	case FilterActive:
		return "active"
	case FilterCompleted:
		return "completed"
	case FilterClearCompleted:
		return "clear-completed"
	default:
		return "all"
	}
}

// IsView reports whether f only narrows the visible list.
func (f Filter) IsView() bool {
	return f == FilterAll || f == FilterActive || f == FilterCompleted
}

// Match is the view predicate. FilterClearCompleted matches like FilterAll.
func (f Filter) Match(t Todo) bool {
	switch f {
	case FilterActive:
		return !t.Completed
	case FilterCompleted:
		return t.Completed
	default:
		return true
	}
}

// Apply returns a new slice holding the items of todos matching f, in order.
func (f Filter) Apply(todos []Todo) []Todo {
	out := make([]Todo, 0, len(todos))
	for _, t := range todos {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

// ParseFilter accepts the names returned by String, case-insensitively.
func ParseFilter(s string) (Filter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return FilterAll, nil
	case "active":
		return FilterActive, nil
	case "completed", "done":
		return FilterCompleted, nil
	case "clear-completed", "clear":
		return FilterClearCompleted, nil
	}
	return FilterAll, fmt.Errorf("unknown filter %q (want all, active, completed or clear-completed)", s)
}
