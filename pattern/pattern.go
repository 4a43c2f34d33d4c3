// Package pattern defines the core types shared by the precompiled
// pattern store, cache, and manager layers.
package pattern

import (
	"time"
)

// Key identifies a pattern by name within a pattern type. At most one
// live pattern exists per key.
type Key struct {
	Name string
	Type string
}

// String returns a stable "type/name" form, used for logging.
func (k Key) String() string {
	return k.Type + "/" + k.Name
}

// Pattern is a compiled synthesis template artifact. ID is globally
// unique and immutable once the pattern is first persisted; saving
// again under the same (Name, Type) replaces the content but keeps the
// original ID and CreatedAt.
type Pattern struct {
	ID              string
	Name            string
	Type            string // e.g. "synth_def", "effect", "percussion"
	SourceCode      string
	CompiledCode    string
	Metadata        Metadata
	CompilationTime float64 // seconds spent compiling, diagnostics only
	Rating          *float64
	CreatedAt       time.Time
	LastUsedAt      *time.Time
}

// Key returns the (Name, Type) identity of the pattern.
func (p *Pattern) Key() Key {
	return Key{Name: p.Name, Type: p.Type}
}

// ApproxSize estimates the in-memory weight of the pattern in bytes.
// It only counts the string payloads; struct overhead is ignored.
func (p *Pattern) ApproxSize() int64 {
	return int64(len(p.Name) + len(p.SourceCode) + len(p.CompiledCode))
}

// Clone returns a copy whose metadata map is independent of the
// original. Patterns returned by the manager are shared with the cache
// and read-only; callers that need to mutate one work on a Clone.
func (p *Pattern) Clone() *Pattern {
	cp := *p
	cp.Metadata = p.Metadata.Clone()
	if p.LastUsedAt != nil {
		t := *p.LastUsedAt
		cp.LastUsedAt = &t
	}
	if p.Rating != nil {
		r := *p.Rating
		cp.Rating = &r
	}
	return &cp
}
