// Package rules provides ordered first-match-wins rule tables.
package rules

// Rule pairs a predicate with the result it yields when it matches.
type Rule[In, Out any] struct {
	ID     string
	Match  func(In) bool
	Result Out
}

// Table is evaluated top-down; the first matching rule wins.
type Table[In, Out any] []Rule[In, Out]

// First returns the first rule whose predicate matches in.
func (t Table[In, Out]) First(in In) (Rule[In, Out], bool) {
	for _, r := range t {
		if r.Match != nil && r.Match(in) {
			return r, true
		}
	}
	var zero Rule[In, Out]
	return zero, false
}

// All returns every matching rule, in table order.
func (t Table[In, Out]) All(in In) []Rule[In, Out] {
	var matched []Rule[In, Out]
	for _, r := range t {
		if r.Match != nil && r.Match(in) {
			matched = append(matched, r)
		}
	}
	return matched
}

// IDs lists rule identifiers in evaluation order.
func (t Table[In, Out]) IDs() []string {
	ids := make([]string, 0, len(t))
	for _, r := range t {
		ids = append(ids, r.ID)
	}
	return ids
}
