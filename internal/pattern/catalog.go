// Package pattern recognizes common pipeline shapes. A catalog holds a
// static table of named reference kind-sequences plus a learned table of
// recurring shapes discovered at runtime, and matches incoming kind
// sequences against both with an adaptive partial-match threshold.
package pattern

import (
	"fmt"
	"time"

	"github.com/midway-labs/midway/internal/middleware"
	"github.com/midway-labs/midway/internal/signature"
)

// MatchType classifies how a kind sequence matched the catalog.
type MatchType string

const (
	// MatchExact is a multiset match against a built-in pattern.
	MatchExact MatchType = "exact"
	// MatchLearned is a sequence-digest match against a learned pattern.
	MatchLearned MatchType = "learned"
	// MatchPartial is an overlap match clearing a built-in's adaptive
	// threshold.
	MatchPartial MatchType = "partial"
	// MatchNone means no pattern applied.
	MatchNone MatchType = "none"
)

// Match is the catalog's answer for one kind sequence.
type Match struct {
	Type MatchType
	Name string
}

// Pattern is a named reference kind-sequence.
type Pattern struct {
	Name  string
	Kinds []middleware.Kind
}

// Usage tracks how often a pattern has matched.
type Usage struct {
	Name        string
	Matches     int
	LastMatched time.Time
}

// LearnedRecord is the persistence shape of one learned-table entry.
type LearnedRecord struct {
	Digest      uint64
	Kinds       []middleware.Kind
	Occurrences int
	LastSeen    time.Time
}

type learnedEntry struct {
	name        string
	kinds       []middleware.Kind
	occurrences int
	lastSeen    time.Time
}

// Config tunes catalog behavior. Zero values select the defaults.
type Config struct {
	// LearnThreshold is how often a novel kind sequence must recur
	// before it becomes a learned pattern. Default 3.
	LearnThreshold int
	// LearnMinLen and LearnMaxLen bound the sequence lengths worth
	// learning. Defaults 3 and 8.
	LearnMinLen int
	LearnMaxLen int
	// Clock overrides time.Now, for tests.
	Clock func() time.Time
}

// Catalog is the pattern table pair. It is not safe for concurrent use;
// the owning compiler serializes access under its own lock.
type Catalog struct {
	builtins []Pattern
	learned  map[signature.Digest]*learnedEntry
	usage    map[string]*Usage

	threshold int
	minLen    int
	maxLen    int
	now       func() time.Time
}

// Builtins returns the static catalog, in declaration order. Declaration
// order is observable: partial matching awards the first entry clearing
// its threshold.
func Builtins() []Pattern {
	return []Pattern{
		{Name: "api_auth", Kinds: []middleware.Kind{middleware.KindEdgePolicy, middleware.KindAuth, middleware.KindBodyTransform}},
		{Name: "secure_api", Kinds: []middleware.Kind{middleware.KindEdgePolicy, middleware.KindSecurity, middleware.KindAuth, middleware.KindRateLimit}},
		{Name: "public_read", Kinds: []middleware.Kind{middleware.KindEdgePolicy, middleware.KindCache, middleware.KindLogging}},
		{Name: "upload", Kinds: []middleware.Kind{middleware.KindAuth, middleware.KindBodyTransform, middleware.KindValidation}},
		{Name: "admin", Kinds: []middleware.Kind{middleware.KindSecurity, middleware.KindAuth, middleware.KindValidation, middleware.KindLogging}},
	}
}

// NewCatalog builds a catalog seeded with the built-in patterns.
func NewCatalog(cfg Config) *Catalog {
	if cfg.LearnThreshold <= 0 {
		cfg.LearnThreshold = 3
	}
	if cfg.LearnMinLen <= 0 {
		cfg.LearnMinLen = 3
	}
	if cfg.LearnMaxLen <= 0 {
		cfg.LearnMaxLen = 8
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Catalog{
		builtins:  Builtins(),
		learned:   make(map[signature.Digest]*learnedEntry),
		usage:     make(map[string]*Usage),
		threshold: cfg.LearnThreshold,
		minLen:    cfg.LearnMinLen,
		maxLen:    cfg.LearnMaxLen,
		now:       cfg.Clock,
	}
}

// Match resolves kinds against the catalog. Resolution order is a
// contract: exact built-in match, then learned, then partial, and only
// then the learn side effect. Learned patterns outrank partial matches
// so a recurring custom shape eventually beats a loose resemblance to an
// unrelated built-in.
//
// learnedNew reports whether this call promoted a novel sequence into a
// learned pattern (its occurrence count just reached the threshold).
func (c *Catalog) Match(kinds []middleware.Kind) (m Match, learnedNew bool) {
	// Exact: built-in identity is the kind multiset, not the sequence.
	// Permutations of the same kinds are the same architectural shape.
	for _, b := range c.builtins {
		if multisetEqual(kinds, b.Kinds) {
			c.recordUsage(b.Name)
			return Match{Type: MatchExact, Name: b.Name}, false
		}
	}

	// Learned: keyed by the sequence digest.
	d := signature.OfKinds(kinds)
	if l, ok := c.learned[d]; ok && l.occurrences >= c.threshold {
		c.recordUsage(l.name)
		return Match{Type: MatchLearned, Name: l.name}, false
	}

	// Partial: overlap against each built-in's adaptive threshold.
	// Popular patterns loosen over time, floored at 0.65.
	for _, b := range c.builtins {
		t := c.adaptiveThreshold(b.Name)
		if overlap(kinds, b.Kinds) >= t {
			c.recordUsage(b.Name)
			return Match{Type: MatchPartial, Name: b.Name}, false
		}
	}

	// Learn: count the novel sequence if it is a learnable length.
	if len(kinds) >= c.minLen && len(kinds) <= c.maxLen {
		l, ok := c.learned[d]
		if !ok {
			l = &learnedEntry{
				name:  fmt.Sprintf("dynamic_%s", d),
				kinds: append([]middleware.Kind(nil), kinds...),
			}
			c.learned[d] = l
		}
		l.occurrences++
		l.lastSeen = c.now()
		learnedNew = l.occurrences == c.threshold
	}
	return Match{Type: MatchNone}, learnedNew
}

func (c *Catalog) adaptiveThreshold(name string) float64 {
	matches := 0
	if u, ok := c.usage[name]; ok {
		matches = u.Matches
	}
	relax := 0.01 * float64(matches)
	if relax > 0.15 {
		relax = 0.15
	}
	t := 0.80 - relax
	if t < 0.65 {
		t = 0.65
	}
	return t
}

func (c *Catalog) recordUsage(name string) {
	u, ok := c.usage[name]
	if !ok {
		u = &Usage{Name: name}
		c.usage[name] = u
	}
	u.Matches++
	u.LastMatched = c.now()
}

// BuiltinCount returns the size of the static table.
func (c *Catalog) BuiltinCount() int { return len(c.builtins) }

// LearnedCount returns how many learned entries have crossed the
// threshold and act as patterns.
func (c *Catalog) LearnedCount() int {
	n := 0
	for _, l := range c.learned {
		if l.occurrences >= c.threshold {
			n++
		}
	}
	return n
}

// LearnedTableSize returns the total number of learned-table entries,
// including those still below the threshold.
func (c *Catalog) LearnedTableSize() int { return len(c.learned) }

// PatternsWithUsage returns how many distinct pattern names have matched
// at least once.
func (c *Catalog) PatternsWithUsage() int { return len(c.usage) }

// Usages returns a snapshot of every usage record.
func (c *Catalog) Usages() []Usage {
	out := make([]Usage, 0, len(c.usage))
	for _, u := range c.usage {
		out = append(out, *u)
	}
	return out
}

// UsageOf returns the usage record for name, if any.
func (c *Catalog) UsageOf(name string) (Usage, bool) {
	u, ok := c.usage[name]
	if !ok {
		return Usage{}, false
	}
	return *u, true
}

// PruneLearned drops learned entries with fewer than minOccurrences that
// have been idle since before cutoff, along with their usage records.
// Returns the number of entries dropped.
func (c *Catalog) PruneLearned(minOccurrences int, cutoff time.Time) int {
	removed := 0
	for d, l := range c.learned {
		if l.occurrences < minOccurrences && l.lastSeen.Before(cutoff) {
			delete(c.learned, d)
			delete(c.usage, l.name)
			removed++
		}
	}
	return removed
}

// DropUsage removes the usage record for name. Used by the reclaimer
// after evicting a pattern's pipelines.
func (c *Catalog) DropUsage(name string) {
	delete(c.usage, name)
}

// Reset clears the learned table and all usage records. Built-ins stay.
func (c *Catalog) Reset() {
	c.learned = make(map[signature.Digest]*learnedEntry)
	c.usage = make(map[string]*Usage)
}

// ExportLearned snapshots the learned table for persistence.
func (c *Catalog) ExportLearned() []LearnedRecord {
	out := make([]LearnedRecord, 0, len(c.learned))
	for d, l := range c.learned {
		out = append(out, LearnedRecord{
			Digest:      uint64(d),
			Kinds:       append([]middleware.Kind(nil), l.kinds...),
			Occurrences: l.occurrences,
			LastSeen:    l.lastSeen,
		})
	}
	return out
}

// ImportLearned restores learned entries from persistence. Existing
// entries with the same digest are overwritten.
func (c *Catalog) ImportLearned(records []LearnedRecord) {
	for _, r := range records {
		d := signature.Digest(r.Digest)
		c.learned[d] = &learnedEntry{
			name:        fmt.Sprintf("dynamic_%s", d),
			kinds:       append([]middleware.Kind(nil), r.Kinds...),
			occurrences: r.Occurrences,
			lastSeen:    r.LastSeen,
		}
	}
}

// ExportUsage snapshots all usage records for persistence.
func (c *Catalog) ExportUsage() []Usage {
	return c.Usages()
}

// ImportUsage restores usage records from persistence.
func (c *Catalog) ImportUsage(records []Usage) {
	for _, r := range records {
		u := r
		c.usage[r.Name] = &u
	}
}

func multisetEqual(a, b []middleware.Kind) bool {
	if len(a) != len(b) {
		return false
	}
	counts := make(map[middleware.Kind]int, len(a))
	for _, k := range a {
		counts[k]++
	}
	for _, k := range b {
		counts[k]--
		if counts[k] < 0 {
			return false
		}
	}
	return true
}

// overlap computes Jaccard similarity over kind multisets: sum of
// per-kind min counts over sum of per-kind max counts.
func overlap(a, b []middleware.Kind) float64 {
	ca := make(map[middleware.Kind]int, len(a))
	for _, k := range a {
		ca[k]++
	}
	cb := make(map[middleware.Kind]int, len(b))
	for _, k := range b {
		cb[k]++
	}

	inter, union := 0, 0
	for k, n := range ca {
		m := cb[k]
		if n < m {
			inter += n
			union += m
		} else {
			inter += m
			union += n
		}
	}
	for k, m := range cb {
		if _, seen := ca[k]; !seen {
			union += m
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
