// Package registry holds the canonical storage-technology naming scheme: the
// families, their aliases, the component suffixes and the exclusion patterns
// that keep non-storage technologies out of the mapping.
package registry

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar"
	"gopkg.in/yaml.v3"
)

// Suffix is a canonical component role attached to a storage family.
type Suffix string

const (
	SuffixNone       Suffix = ""
	SuffixStore      Suffix = "store"
	SuffixCharger    Suffix = "charger"
	SuffixDischarger Suffix = "discharger"
	SuffixBicharger  Suffix = "bicharger"
)

// ComponentSuffixes lists the four recognized component roles.
var ComponentSuffixes = []Suffix{SuffixStore, SuffixCharger, SuffixDischarger, SuffixBicharger}

func validSuffix(s string) bool {
	return slices.Contains(ComponentSuffixes, Suffix(s))
}

// Family is one canonical storage technology family.
type Family struct {
	Name       string              `json:"name"`
	Aliases    []string            `json:"aliases"`
	Components map[Suffix][]string `json:"components,omitempty"`
}

// Canonical returns the canonical technology name for the family with the
// given component suffix.
func (f Family) Canonical(s Suffix) string {
	if s == SuffixNone {
		return f.Name
	}
	return f.Name + "-" + string(s)
}

// Match is the result of a successful registry lookup.
type Match struct {
	Family    string `json:"family"`
	Suffix    Suffix `json:"suffix,omitempty"`
	Canonical string `json:"canonical"`
	Alias     string `json:"alias"` // normalized alias that fired
}

// Exclusion is a compiled exclusion pattern.
type Exclusion struct {
	Pattern  string `json:"pattern"`
	Category string `json:"category"`
	glob     string
}

type componentRef struct {
	family *Family
	suffix Suffix
}

type suffixAlias struct {
	token  string
	suffix Suffix
}

// Registry is an immutable, validated alias table. It is safe for concurrent
// use once built.
type Registry struct {
	families   []*Family
	base       map[string]*Family
	components map[string]componentRef
	suffixes   []suffixAlias // longest token first
	exclusions []Exclusion
	hints      []string
	canonical  map[string]struct{}
	digest     string
}

// New validates def and builds a Registry. Any alias claimed by two families,
// unknown suffix, malformed exclusion pattern or alias shadowed by an
// exclusion is reported in a single *ConfigError.
func New(def *Definition) (*Registry, error) {
	if def == nil {
		return nil, &ConfigError{Problems: []string{"definition is nil"}}
	}

	b := &builder{
		reg: &Registry{
			base:       make(map[string]*Family),
			components: make(map[string]componentRef),
			canonical:  make(map[string]struct{}),
		},
		owner: make(map[string]string),
	}

	b.addSuffixes(def.Suffixes)
	b.addExclusions(def.Exclusions)
	for _, fd := range def.Families {
		b.addFamily(fd)
	}
	b.checkCrossResolution()
	b.checkShadowed()

	for _, h := range def.Hints {
		if n := Normalize(h); n != "" {
			b.reg.hints = append(b.reg.hints, n)
		}
	}

	if len(b.problems) > 0 {
		return nil, &ConfigError{Problems: b.problems}
	}

	digest, err := digestOf(def)
	if err != nil {
		return nil, &ConfigError{Problems: []string{"digest: " + err.Error()}}
	}
	b.reg.digest = digest

	return b.reg, nil
}

type builder struct {
	reg      *Registry
	owner    map[string]string // normalized alias -> owning family name
	problems []string
}

func (b *builder) fail(format string, args ...any) {
	b.problems = append(b.problems, fmt.Sprintf(format, args...))
}

func (b *builder) addSuffixes(defs map[string][]string) {
	seen := make(map[string]Suffix)
	add := func(token string, s Suffix) {
		if prev, ok := seen[token]; ok {
			if prev != s {
				b.fail("suffix alias %q claimed by both %q and %q", token, prev, s)
			}
			return
		}
		seen[token] = s
		b.reg.suffixes = append(b.reg.suffixes, suffixAlias{token: token, suffix: s})
	}

	// Canonical tokens always resolve to themselves.
	for _, s := range ComponentSuffixes {
		add(string(s), s)
	}

	for _, key := range slices.Sorted(maps.Keys(defs)) {
		if !validSuffix(key) {
			b.fail("unknown component suffix %q (want one of store, charger, discharger, bicharger)", key)
			continue
		}
		for _, raw := range defs[key] {
			token := Normalize(raw)
			if token == "" {
				b.fail("empty alias for suffix %q", key)
				continue
			}
			add(token, Suffix(key))
		}
	}

	slices.SortStableFunc(b.reg.suffixes, func(x, y suffixAlias) int {
		return cmp.Compare(len(y.token), len(x.token))
	})
}

func (b *builder) addExclusions(defs []ExclusionPattern) {
	for _, ex := range defs {
		glob := unslash(Normalize(ex.Pattern))
		if glob == "" {
			b.fail("empty exclusion pattern")
			continue
		}
		if _, err := doublestar.Match(glob, glob); err != nil {
			b.fail("exclusion pattern %q: %v", ex.Pattern, err)
			continue
		}
		category := ex.Category
		if category == "" {
			category = "other"
		}
		b.reg.exclusions = append(b.reg.exclusions, Exclusion{
			Pattern:  ex.Pattern,
			Category: category,
			glob:     glob,
		})
	}
}

func (b *builder) claim(alias, family string) bool {
	if prev, ok := b.owner[alias]; ok {
		if prev != family {
			b.fail("alias %q claimed by both %q and %q", alias, prev, family)
		} else {
			b.fail("alias %q listed twice in family %q", alias, family)
		}
		return false
	}
	b.owner[alias] = family
	return true
}

func (b *builder) addFamily(fd FamilyDefinition) {
	name := strings.TrimSpace(fd.Name)
	if name == "" {
		b.fail("family with empty name")
		return
	}
	for _, f := range b.reg.families {
		if Normalize(f.Name) == Normalize(name) {
			b.fail("duplicate family %q", name)
			return
		}
	}

	fam := &Family{Name: name, Components: make(map[Suffix][]string)}
	b.reg.families = append(b.reg.families, fam)

	// The canonical name is always an alias of its own family.
	self := Normalize(name)
	if b.claim(self, name) {
		fam.Aliases = append(fam.Aliases, self)
		b.reg.base[self] = fam
	}

	for _, raw := range fd.Aliases {
		alias := Normalize(raw)
		if alias == "" {
			b.fail("family %q has an empty alias", name)
			continue
		}
		if alias == self {
			continue
		}
		if b.claim(alias, name) {
			fam.Aliases = append(fam.Aliases, alias)
			b.reg.base[alias] = fam
		}
	}

	for _, key := range slices.Sorted(maps.Keys(fd.Components)) {
		if !validSuffix(key) {
			b.fail("family %q: unknown component suffix %q", name, key)
			continue
		}
		s := Suffix(key)
		for _, raw := range fd.Components[key] {
			alias := Normalize(raw)
			if alias == "" {
				b.fail("family %q: empty %s alias", name, key)
				continue
			}
			if b.claim(alias, name) {
				fam.Components[s] = append(fam.Components[s], alias)
				b.reg.components[alias] = componentRef{family: fam, suffix: s}
			}
		}
	}

	for _, s := range append([]Suffix{SuffixNone}, ComponentSuffixes...) {
		b.reg.canonical[fam.Canonical(s)] = struct{}{}
	}
}

// checkCrossResolution rejects explicit aliases that would also resolve to a
// different family through suffix stripping, since lookup order would then
// silently decide between two families.
func (b *builder) checkCrossResolution() {
	for _, alias := range slices.Sorted(maps.Keys(b.owner)) {
		owner := b.owner[alias]
		m, ok := b.reg.stripSuffix(alias)
		if ok && m.Family != owner {
			b.fail("alias %q of %q also resolves to %q via suffix %q", alias, owner, m.Family, m.Suffix)
		}
	}
}

// checkShadowed rejects aliases that an exclusion pattern fully matches; they
// could never fire.
func (b *builder) checkShadowed() {
	for _, alias := range slices.Sorted(maps.Keys(b.owner)) {
		if ex, ok := b.reg.excludedNormalized(alias); ok {
			b.fail("alias %q of %q is shadowed by exclusion pattern %q", alias, b.owner[alias], ex.Pattern)
		}
	}
}

// Lookup resolves a raw technology identifier to its canonical family and
// component suffix. The whole identifier is tried as a family alias, then as
// an explicit component alias, and finally with a trailing suffix token
// stripped. Exclusions are not consulted here.
func (r *Registry) Lookup(raw string) (Match, bool) {
	n := Normalize(raw)
	if n == "" {
		return Match{}, false
	}
	if fam, ok := r.base[n]; ok {
		return Match{Family: fam.Name, Canonical: fam.Name, Alias: n}, true
	}
	if ref, ok := r.components[n]; ok {
		return Match{
			Family:    ref.family.Name,
			Suffix:    ref.suffix,
			Canonical: ref.family.Canonical(ref.suffix),
			Alias:     n,
		}, true
	}
	return r.stripSuffix(n)
}

func (r *Registry) stripSuffix(n string) (Match, bool) {
	for _, sa := range r.suffixes {
		base, ok := strings.CutSuffix(n, " "+sa.token)
		if !ok {
			continue
		}
		base = strings.TrimSpace(base)
		if fam, ok := r.base[base]; ok {
			return Match{
				Family:    fam.Name,
				Suffix:    sa.suffix,
				Canonical: fam.Canonical(sa.suffix),
				Alias:     base,
			}, true
		}
	}
	return Match{}, false
}

// Excluded reports whether raw fully matches an exclusion pattern.
func (r *Registry) Excluded(raw string) (Exclusion, bool) {
	return r.excludedNormalized(Normalize(raw))
}

func (r *Registry) excludedNormalized(n string) (Exclusion, bool) {
	if n == "" {
		return Exclusion{}, false
	}
	for _, ex := range r.exclusions {
		if ok, _ := doublestar.Match(ex.glob, unslash(n)); ok {
			return ex, true
		}
	}
	return Exclusion{}, false
}

// unslash swaps '/' for a look-alike rune so a glob '*' also spans slashes,
// as in "Battery electric (cars/vans)".
func unslash(s string) string {
	return strings.ReplaceAll(s, "/", "\u2215")
}

// IsCanonical reports whether name is exactly one of the canonical names.
func (r *Registry) IsCanonical(name string) bool {
	_, ok := r.canonical[name]
	return ok
}

// CanonicalNames returns every canonical name, sorted.
func (r *Registry) CanonicalNames() []string {
	return slices.Sorted(maps.Keys(r.canonical))
}

// Families returns copies of the registered families in definition order.
func (r *Registry) Families() []Family {
	out := make([]Family, 0, len(r.families))
	for _, f := range r.families {
		out = append(out, *f)
	}
	return out
}

// Exclusions returns the exclusion patterns in definition order.
func (r *Registry) Exclusions() []Exclusion {
	return slices.Clone(r.exclusions)
}

// Hinted returns the first hint term contained in raw's normalized form. Hints
// flag unrecognized names that look like storage so the registry can be
// extended.
func (r *Registry) Hinted(raw string) (string, bool) {
	n := Normalize(raw)
	for _, h := range r.hints {
		if strings.Contains(n, h) {
			return h, true
		}
	}
	return "", false
}

// Digest identifies the definition the registry was built from.
func (r *Registry) Digest() string {
	return r.digest
}

func digestOf(def *Definition) (string, error) {
	data, err := yaml.Marshal(def)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}
