// Package cacheable describes how long a computed value stays valid and what
// invalidates it: cache tags, cache contexts and a max-age.
package cacheable

import (
	"encoding/json"
	"sort"
)

// Permanent is the max-age of values that only expire through tag invalidation.
const Permanent = -1

// Well-known cache contexts
const (
	ContextUser             = "user"
	ContextUserRoles        = "user.roles"
	ContextGroupPermissions = "user.group_permissions"
)

// Metadata is a mergeable bundle of cache tags, cache contexts and max-age.
// The zero value is empty and permanent.
type Metadata struct {
	tags     map[string]struct{}
	contexts map[string]struct{}
	// finite is false while the max-age is Permanent
	finite bool
	maxAge int
}

// New returns empty, permanent metadata
func New() Metadata {
	return Metadata{}
}

// Tags returns the sorted cache tags
func (m Metadata) Tags() []string {
	return sortedKeys(m.tags)
}

// Contexts returns the sorted cache contexts
func (m Metadata) Contexts() []string {
	return sortedKeys(m.contexts)
}

// MaxAge returns the max-age in seconds, or Permanent
func (m Metadata) MaxAge() int {
	if !m.finite {
		return Permanent
	}
	return m.maxAge
}

// HasContext reports whether the context was added
func (m Metadata) HasContext(context string) bool {
	_, ok := m.contexts[context]
	return ok
}

// HasTag reports whether the tag was added
func (m Metadata) HasTag(tag string) bool {
	_, ok := m.tags[tag]
	return ok
}

// AddTags returns a copy with the given tags added
func (m Metadata) AddTags(tags ...string) Metadata {
	out := m.clone()
	if out.tags == nil {
		out.tags = make(map[string]struct{}, len(tags))
	}
	for _, t := range tags {
		out.tags[t] = struct{}{}
	}
	return out
}

// AddContexts returns a copy with the given contexts added
func (m Metadata) AddContexts(contexts ...string) Metadata {
	out := m.clone()
	if out.contexts == nil {
		out.contexts = make(map[string]struct{}, len(contexts))
	}
	for _, c := range contexts {
		out.contexts[c] = struct{}{}
	}
	return out
}

// WithMaxAge returns a copy whose max-age is merged with the given one
func (m Metadata) WithMaxAge(maxAge int) Metadata {
	out := m.clone()
	out.setMaxAge(MergeMaxAges(m.MaxAge(), maxAge))
	return out
}

// Merge returns the union of both tag and context sets and the smaller max-age
func (m Metadata) Merge(other Metadata) Metadata {
	out := m.AddTags(other.Tags()...).AddContexts(other.Contexts()...)
	out.setMaxAge(MergeMaxAges(m.MaxAge(), other.MaxAge()))
	return out
}

// Equal reports whether both bundles carry the same tags, contexts and max-age
func (m Metadata) Equal(other Metadata) bool {
	if m.MaxAge() != other.MaxAge() || len(m.tags) != len(other.tags) || len(m.contexts) != len(other.contexts) {
		return false
	}
	for t := range m.tags {
		if _, ok := other.tags[t]; !ok {
			return false
		}
	}
	for c := range m.contexts {
		if _, ok := other.contexts[c]; !ok {
			return false
		}
	}
	return true
}

// Dependency is anything that carries its own cacheability
type Dependency interface {
	CacheMetadata() Metadata
}

// AddDependency merges the metadata of a dependency
func (m Metadata) AddDependency(dep Dependency) Metadata {
	if dep == nil {
		return m
	}
	return m.Merge(dep.CacheMetadata())
}

// MergeMaxAges picks the shorter max-age; Permanent never wins over a finite one.
func MergeMaxAges(a, b int) int {
	if a == Permanent {
		return b
	}
	if b == Permanent {
		return a
	}
	if a < b {
		return a
	}
	return b
}

func (m *Metadata) setMaxAge(maxAge int) {
	m.finite = maxAge != Permanent
	m.maxAge = maxAge
}

func (m Metadata) clone() Metadata {
	out := Metadata{finite: m.finite, maxAge: m.maxAge}
	if m.tags != nil {
		out.tags = make(map[string]struct{}, len(m.tags))
		for t := range m.tags {
			out.tags[t] = struct{}{}
		}
	}
	if m.contexts != nil {
		out.contexts = make(map[string]struct{}, len(m.contexts))
		for c := range m.contexts {
			out.contexts[c] = struct{}{}
		}
	}
	return out
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type metadataJSON struct {
	Tags     []string `json:"tags,omitempty"`
	Contexts []string `json:"contexts,omitempty"`
	MaxAge   int      `json:"max_age"`
}

// MarshalJSON implements json.Marshaler
func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(metadataJSON{
		Tags:     m.Tags(),
		Contexts: m.Contexts(),
		MaxAge:   m.MaxAge(),
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var raw metadataJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = New().AddTags(raw.Tags...).AddContexts(raw.Contexts...).WithMaxAge(raw.MaxAge)
	return nil
}
