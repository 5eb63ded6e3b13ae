// Package rangeset builds canonical sets of transcript byte ranges.
package rangeset

import (
	"fmt"
	"sort"
	"strings"
)

// Span is a half-open byte interval [Start, End) into a transcript.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of bytes covered by the span
func (s Span) Len() int { return s.End - s.Start }

func (s Span) String() string { return fmt.Sprintf("[%d,%d)", s.Start, s.End) }

// InvariantError reports a span that violates Start <= End <= limit.
// It is a disclosure-correctness failure, never a recoverable condition.
type InvariantError struct {
	Span   Span
	Limit  int
	Reason string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("range invariant violated: span %s (limit %d): %s", e.Span, e.Limit, e.Reason)
}

// Set is a canonical collection of spans: sorted by Start, with no two spans
// overlapping or touching. The zero value is an empty set over an empty buffer.
type Set struct {
	spans []Span
	limit int
}

// Empty returns an empty set over a buffer of the given length
func Empty(limit int) Set {
	return Set{limit: limit}
}

// Merge validates spans against the buffer length and merges them into canonical form.
// Zero-length spans are validated and then dropped since they disclose nothing.
func Merge(spans []Span, limit int) (Set, error) {
	if limit < 0 {
		return Set{}, &InvariantError{Limit: limit, Reason: "negative buffer length"}
	}

	sorted := make([]Span, 0, len(spans))
	for _, s := range spans {
		switch {
		case s.Start < 0:
			return Set{}, &InvariantError{Span: s, Limit: limit, Reason: "start is negative"}
		case s.Start > s.End:
			return Set{}, &InvariantError{Span: s, Limit: limit, Reason: "start is after end"}
		case s.End > limit:
			return Set{}, &InvariantError{Span: s, Limit: limit, Reason: "end is beyond buffer length"}
		}
		if s.Len() > 0 {
			sorted = append(sorted, s)
		}
	}

	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Start != sorted[j].Start {
			return sorted[i].Start < sorted[j].Start
		}
		return sorted[i].End < sorted[j].End
	})

	var merged []Span
	for _, s := range sorted {
		if n := len(merged); n > 0 && merged[n-1].End >= s.Start {
			merged[n-1].End = max(merged[n-1].End, s.End)
			continue
		}
		merged = append(merged, s)
	}

	return Set{spans: merged, limit: limit}, nil
}

// Spans returns a copy of the canonical spans
func (s Set) Spans() []Span {
	out := make([]Span, len(s.spans))
	copy(out, s.spans)
	return out
}

// Limit returns the length of the buffer the set was built against
func (s Set) Limit() int { return s.limit }

// Len returns the number of spans
func (s Set) Len() int { return len(s.spans) }

// IsEmpty reports whether the set covers no bytes
func (s Set) IsEmpty() bool { return len(s.spans) == 0 }

// Covered returns the total number of bytes in the set
func (s Set) Covered() int {
	n := 0
	for _, sp := range s.spans {
		n += sp.Len()
	}
	return n
}

// Contains reports whether offset lies inside one of the spans
func (s Set) Contains(offset int) bool {
	i := sort.Search(len(s.spans), func(i int) bool { return s.spans[i].End > offset })
	return i < len(s.spans) && s.spans[i].Start <= offset
}

// Complement returns every byte of [0, limit) not covered by s.
func (s Set) Complement() Set {
	var out []Span
	cur := 0
	for _, sp := range s.spans {
		if cur < sp.Start {
			out = append(out, Span{Start: cur, End: sp.Start})
		}
		cur = sp.End
	}
	if cur < s.limit {
		out = append(out, Span{Start: cur, End: s.limit})
	}
	return Set{spans: out, limit: s.limit}
}

// Union merges two sets built against the same buffer.
func (s Set) Union(other Set) (Set, error) {
	if s.limit != other.limit {
		return Set{}, &InvariantError{Limit: s.limit, Reason: fmt.Sprintf("union with set over a different buffer length %d", other.limit)}
	}
	all := make([]Span, 0, len(s.spans)+len(other.spans))
	all = append(all, s.spans...)
	all = append(all, other.spans...)
	return Merge(all, s.limit)
}

// Equal reports whether both sets cover the same bytes of the same buffer
func (s Set) Equal(other Set) bool {
	if s.limit != other.limit || len(s.spans) != len(other.spans) {
		return false
	}
	for i := range s.spans {
		if s.spans[i] != other.spans[i] {
			return false
		}
	}
	return true
}

func (s Set) String() string {
	parts := make([]string, len(s.spans))
	for i, sp := range s.spans {
		parts[i] = sp.String()
	}
	return fmt.Sprintf("{%s}/%d", strings.Join(parts, " "), s.limit)
}
