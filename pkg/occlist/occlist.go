// Package occlist implements OccurrenceClusterList, a run-length-encoded
// sequence of (value, count) clusters used by the status automaton (§4.7)
// to evaluate conditions over recent curr_state occurrences without
// storing every individual occurrence. Grounded on
// original_source/monapps/app_functions/helpers/utils/occ_cluster_list.py.
package occlist

// Cluster is one run: the same value repeated Count times in a row.
type Cluster[T comparable] struct {
	Value T
	Count int
}

// List is the run-length-encoded sequence itself, oldest-first.
type List[T comparable] []Cluster[T]

// New returns an empty list.
func New[T comparable]() List[T] { return List[T]{} }

// Append adds one occurrence of value, merging it into the tail cluster
// when it equals the tail's value (occ_cluster_list.py's append_occurrence).
func (l List[T]) Append(value T) List[T] {
	if n := len(l); n > 0 && l[n-1].Value == value {
		l[n-1].Count++
		return l
	}
	return append(l, Cluster[T]{Value: value, Count: 1})
}

// TotalOccurrences is the sum of all cluster counts (get_total_occurrences).
func (l List[T]) TotalOccurrences() int {
	total := 0
	for _, c := range l {
		total += c.Count
	}
	return total
}

// CountOf sums the counts of clusters equal to value
// (count_occurrences_of_value).
func (l List[T]) CountOf(value T) int {
	total := 0
	for _, c := range l {
		if c.Value == value {
			total += c.Count
		}
	}
	return total
}

// LastN returns a new List holding only the last n occurrences, in
// original (oldest-first) order, splitting the head cluster's count when n
// falls inside it (get_slice_with_last_n_occurrences). If n >= the total
// number of occurrences, the whole list is returned unchanged.
func (l List[T]) LastN(n int) List[T] {
	if n <= 0 {
		return New[T]()
	}
	remaining := n
	// Walk backward, collecting clusters (or partial clusters) until
	// remaining is exhausted.
	var reversed []Cluster[T]
	for i := len(l) - 1; i >= 0 && remaining > 0; i-- {
		c := l[i]
		if c.Count <= remaining {
			reversed = append(reversed, c)
			remaining -= c.Count
		} else {
			reversed = append(reversed, Cluster[T]{Value: c.Value, Count: remaining})
			remaining = 0
		}
	}
	// reversed is newest-first; flip back to oldest-first.
	out := make(List[T], len(reversed))
	for i, c := range reversed {
		out[len(reversed)-1-i] = c
	}
	return out
}

// Flatten expands the run-length encoding back into the original sequence
// of individual values (used by R2's round-trip property).
func (l List[T]) Flatten() []T {
	var out []T
	for _, c := range l {
		for i := 0; i < c.Count; i++ {
			out = append(out, c.Value)
		}
	}
	return out
}
