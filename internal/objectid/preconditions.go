package objectid

import "fmt"

// Preconditions are the optional generation/metageneration guards GCS
// accepts on write, delete, and copy-destination requests: query
// parameters that make the operation conditional on the object's current
// state, independent of any generation an ID is itself scoped to for
// reads.
type Preconditions struct {
	GenerationMatch        *int64
	GenerationNotMatch     *int64
	MetagenerationMatch    *int64
	MetagenerationNotMatch *int64
}

// IsZero reports whether no precondition is set.
func (p Preconditions) IsZero() bool {
	return p.GenerationMatch == nil && p.GenerationNotMatch == nil &&
		p.MetagenerationMatch == nil && p.MetagenerationNotMatch == nil
}

// Pairs renders the set preconditions as "key=value" query fragments, in a
// fixed order, ready to be joined onto a request URL.
func (p Preconditions) Pairs() []string {
	var pairs []string

	if p.GenerationMatch != nil {
		pairs = append(pairs, fmt.Sprintf("ifGenerationMatch=%d", *p.GenerationMatch))
	}

	if p.GenerationNotMatch != nil {
		pairs = append(pairs, fmt.Sprintf("ifGenerationNotMatch=%d", *p.GenerationNotMatch))
	}

	if p.MetagenerationMatch != nil {
		pairs = append(pairs, fmt.Sprintf("ifMetagenerationMatch=%d", *p.MetagenerationMatch))
	}

	if p.MetagenerationNotMatch != nil {
		pairs = append(pairs, fmt.Sprintf("ifMetagenerationNotMatch=%d", *p.MetagenerationNotMatch))
	}

	return pairs
}
