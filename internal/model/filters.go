package model

// FilterCategory is a listing filter key.
type FilterCategory string

const (
	FilterStatus   FilterCategory = "status"
	FilterType     FilterCategory = "type"
	FilterSubtype  FilterCategory = "sub_type"
	FilterPriority FilterCategory = "priority"
	FilterParent   FilterCategory = "parent"
)

// Filters maps a filter category to the accepted values.
type Filters map[FilterCategory][]string

// Query is the validated form of Filters the store lists assets by.
//
// Values within a field are OR'ed, fields are AND'ed, an empty field matches everything.
type Query struct {
	Statuses   []Status
	Types      []Type
	Subtypes   []string
	Priorities []int
	Parents    []string
}

// Empty returns true when the query has no constraints.
func (q *Query) Empty() bool {
	return len(q.Statuses) == 0 &&
		len(q.Types) == 0 &&
		len(q.Subtypes) == 0 &&
		len(q.Priorities) == 0 &&
		len(q.Parents) == 0
}

// Match returns true when the asset satisfies the query.
func (q *Query) Match(a *Asset) bool {
	return matchAny(q.Statuses, a.Status) &&
		matchAny(q.Types, a.Type) &&
		matchAny(q.Subtypes, a.Subtype) &&
		matchAny(q.Priorities, a.Priority) &&
		matchAny(q.Parents, a.Parent)
}

func matchAny[T comparable](accepted []T, v T) bool {
	if len(accepted) == 0 {
		return true
	}

	for _, a := range accepted {
		if a == v {
			return true
		}
	}

	return false
}
