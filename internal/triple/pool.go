package triple

import (
	"strconv"
	"strings"
)

// Triplet is one (prefix, attribute, value) fact.
type Triplet struct {
	Prefix string
	Name   string
	Value  Value
}

// Ref returns the "prefix.name" reference of the triplet.
func (t Triplet) Ref() string {
	return t.Prefix + "." + t.Name
}

// String renders the triplet in triplex form: $P.N=value.
func (t Triplet) String() string {
	return "$" + t.Ref() + "=" + t.Value.Literal()
}

// Pool is an ordered collection of triplets.
//
// A Pool supports exact lookup by (prefix, name) and group lookup by
// prefix. Repeated (prefix, name) pairs keep the position of the first
// occurrence and the value of the last.
//
// A Pool is never mutated after construction and is safe for concurrent
// reads. A nil *Pool behaves as an empty pool.
type Pool struct {
	items []Triplet
	index map[string]int
}

// NewPool creates a pool holding the given triplets in order.
func NewPool(triplets ...Triplet) *Pool {
	p := &Pool{
		items: make([]Triplet, 0, len(triplets)),
		index: make(map[string]int, len(triplets)),
	}
	for _, t := range triplets {
		if i, ok := p.index[t.Ref()]; ok {
			p.items[i].Value = t.Value
			continue
		}
		p.index[t.Ref()] = len(p.items)
		p.items = append(p.items, t)
	}
	return p
}

// Len returns the number of distinct triplets.
func (p *Pool) Len() int {
	if p == nil {
		return 0
	}
	return len(p.items)
}

// Get returns the value for (prefix, name).
// The boolean distinguishes "absent" from a present but empty value.
func (p *Pool) Get(prefix, name string) (Value, bool) {
	if p == nil {
		return nil, false
	}
	i, ok := p.index[prefix+"."+name]
	if !ok {
		return nil, false
	}
	return p.items[i].Value, true
}

// Group returns all triplets whose prefix equals prefix, in pool order.
// Prefix matching is exact: "E" does not include "E1".
func (p *Pool) Group(prefix string) []Triplet {
	if p == nil {
		return nil
	}
	var out []Triplet
	for _, t := range p.items {
		if t.Prefix == prefix {
			out = append(out, t)
		}
	}
	return out
}

// Prefixes returns the distinct prefixes in order of first appearance.
func (p *Pool) Prefixes() []string {
	if p == nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, t := range p.items {
		if !seen[t.Prefix] {
			seen[t.Prefix] = true
			out = append(out, t.Prefix)
		}
	}
	return out
}

// Triplets returns a copy of the triplets in order.
func (p *Pool) Triplets() []Triplet {
	if p == nil {
		return []Triplet{}
	}
	out := make([]Triplet, len(p.items))
	copy(out, p.items)
	return out
}

// String renders the pool as a triplex string: "$E.NM='a';$E1.NM='b';".
func (p *Pool) String() string {
	var b strings.Builder
	for _, t := range p.Triplets() {
		b.WriteString(t.String())
		b.WriteByte(';')
	}
	return b.String()
}

// SequencePrefix returns the positional prefix for the i-th repeated
// occurrence of base: E, E1, E2, ...
func SequencePrefix(base string, i int) string {
	if i == 0 {
		return base
	}
	return base + strconv.Itoa(i)
}
