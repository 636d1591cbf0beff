// Package classify decides, for each cost record, whether its technology is a
// protected non-storage technology, a known storage alias, or neither.
package classify

import (
	"github.com/sells-group/techmap/internal/model"
	"github.com/sells-group/techmap/internal/registry"
)

// Kind is the classification outcome of a record.
type Kind string

const (
	KindExcluded     Kind = "excluded"
	KindMapped       Kind = "mapped"
	KindUnrecognized Kind = "unrecognized"
)

// Decision is the classifier's verdict for one record.
type Decision struct {
	Kind      Kind               `json:"kind"`
	Match     registry.Match     `json:"match,omitzero"`
	Exclusion registry.Exclusion `json:"exclusion,omitzero"`
}

// Category returns the exclusion category of an Excluded decision.
func (d Decision) Category() string {
	return d.Exclusion.Category
}

// Classifier classifies records against a registry. It holds no mutable
// state and is safe for concurrent use.
type Classifier struct {
	reg *registry.Registry
}

// New creates a Classifier backed by reg.
func New(reg *registry.Registry) *Classifier {
	return &Classifier{reg: reg}
}

// Classify classifies a single record. Exclusion patterns are consulted
// before any alias so that, for example, "Battery electric (trucks)" is never
// folded into the battery family.
func (c *Classifier) Classify(rec model.TechnologyRecord) Decision {
	return c.ClassifyName(rec.Technology)
}

// ClassifyName classifies a raw technology name.
func (c *Classifier) ClassifyName(raw string) Decision {
	if ex, ok := c.reg.Excluded(raw); ok {
		return Decision{Kind: KindExcluded, Exclusion: ex}
	}
	if m, ok := c.reg.Lookup(raw); ok {
		return Decision{Kind: KindMapped, Match: m}
	}
	return Decision{Kind: KindUnrecognized}
}
