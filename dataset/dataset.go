// Package dataset describes the datasets a processing unit reads and writes.
// The scheduler only needs a stable identity and an access mode for each
// dataset; how the data is actually read or written belongs to connectors
// outside of this module.
package dataset

import (
	"sort"

	"github.com/segmentio/fasthash/fnv1a"
)

// AccessMode declares how a processing unit touches a dataset.
type AccessMode uint8

const (
	Read AccessMode = 1 << iota
	Write

	ReadWrite = Read | Write
)

func (m AccessMode) CanRead() bool  { return m&Read != 0 }
func (m AccessMode) CanWrite() bool { return m&Write != 0 }

func (m AccessMode) String() string {
	switch m {
	case Read:
		return "r"
	case Write:
		return "w"
	case ReadWrite:
		return "rw"
	}
	return "invalid"
}

// Binding is an identity plus access-mode wrapper around an external dataset
// connection. Two bindings declared independently but pointing at the same
// resolved resource are equal; the access mode is deliberately excluded from
// equality so that a reader and a writer of the same dataset meet on a single
// graph edge.
type Binding struct {
	// Identity is the fully-resolved, stable identifier of the dataset,
	// e.g. an engine URL such as "csv:///data/animals.csv".
	Identity string `json:"identity"`

	Access AccessMode `json:"access"`
}

func New(identity string, access AccessMode) Binding {
	return Binding{Identity: identity, Access: access}
}

func (b Binding) Equal(o Binding) bool {
	return b.Identity == o.Identity
}

// Hash returns a 64-bit FNV-1a hash of the binding identity.
func (b Binding) Hash() uint64 {
	return fnv1a.HashString64(b.Identity)
}

func (b Binding) String() string {
	return b.Identity + " (" + b.Access.String() + ")"
}

// Set is a collection of bindings keyed on identity. The zero value is not
// usable; construct with NewSet.
type Set map[string]Binding

func NewSet(bindings ...Binding) Set {
	s := make(Set, len(bindings))
	for _, b := range bindings {
		s.Add(b)
	}
	return s
}

func (s Set) Add(b Binding) {
	s[b.Identity] = b
}

func (s Set) Contains(b Binding) bool {
	_, ok := s[b.Identity]
	return ok
}

// SubsetOf reports whether every binding in s is also in o.
func (s Set) SubsetOf(o Set) bool {
	for identity := range s {
		if _, ok := o[identity]; !ok {
			return false
		}
	}
	return true
}

// Union adds every binding of o into s.
func (s Set) Union(o Set) {
	for identity, b := range o {
		s[identity] = b
	}
}

// Difference returns the bindings in s that are not in o.
func (s Set) Difference(o Set) Set {
	d := make(Set)
	for identity, b := range s {
		if _, ok := o[identity]; !ok {
			d[identity] = b
		}
	}
	return d
}

func (s Set) Clone() Set {
	c := make(Set, len(s))
	for identity, b := range s {
		c[identity] = b
	}
	return c
}

// Identities returns the identities in the set, sorted for stable output.
func (s Set) Identities() []string {
	ids := make([]string, 0, len(s))
	for identity := range s {
		ids = append(ids, identity)
	}
	sort.Strings(ids)
	return ids
}
