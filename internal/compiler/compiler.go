package compiler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/midway-labs/midway/internal/middleware"
	"github.com/midway-labs/midway/internal/pattern"
	"github.com/midway-labs/midway/internal/signature"
)

// kindMemoSize bounds the token→kind memo consulted on the compile path.
const kindMemoSize = 512

// Config tunes a compiler instance. Zero values select the defaults.
type Config struct {
	// MaxCacheEntries is the cache size above which a compile call runs
	// a reclaim pass first. Default 200.
	MaxCacheEntries int
	// MemoryCeilingMB, when set, adds a second pressure trigger: heap
	// allocation at or above 80% of the ceiling. 0 disables it.
	MemoryCeilingMB int
	// ReclaimMinEntries is the cache size below which a reclaim pass is
	// a no-op. Default 50.
	ReclaimMinEntries int
	// Pattern configures the pattern catalog.
	Pattern pattern.Config
}

func (c Config) withDefaults() Config {
	if c.MaxCacheEntries <= 0 {
		c.MaxCacheEntries = 200
	}
	if c.ReclaimMinEntries <= 0 {
		c.ReclaimMinEntries = 50
	}
	return c
}

// Compiler turns middleware lists into cached executable pipelines. One
// instance owns its cache, pattern catalog, and counters; share it via
// injection, not globals. All methods are safe for concurrent use: a
// single RWMutex guards mutation, and the cache-hit path takes only the
// read lock.
type Compiler struct {
	mu      sync.RWMutex
	cache   map[signature.Digest]*Compiled
	catalog *pattern.Catalog

	cfg      Config
	counters counters
	kinds    *lru.Cache[string, middleware.Kind]
	logger   *slog.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

// New creates a compiler instance. A nil logger falls back to
// slog.Default.
func New(cfg Config, logger *slog.Logger) *Compiler {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pattern.Clock == nil {
		cfg.Pattern.Clock = time.Now
	}
	memo, _ := lru.New[string, middleware.Kind](kindMemoSize)
	return &Compiler{
		cache:   make(map[signature.Digest]*Compiled),
		catalog: pattern.NewCatalog(cfg.Pattern),
		cfg:     cfg,
		kinds:   memo,
		logger:  logger,
		tracer:  otel.Tracer("midway/compiler"),
		now:     cfg.Pattern.Clock,
	}
}

// Compile compiles units under their own signature. See CompileKeyed.
func (c *Compiler) Compile(units []middleware.Unit) *Compiled {
	return c.CompileKeyed(units, signature.OfUnits(units))
}

// CompileKeyed compiles units under a caller-chosen cache key, letting
// callers with a known-stable list (a route group, say) skip signature
// recomputation. On a hit the cached artifact is returned unchanged; on
// a miss the list is optimized, classified, matched against the pattern
// catalog, and the resulting executable cached under key.
//
// Compilation itself never fails. A unit that cannot be invoked is only
// detected when the compiled pipeline executes, and that failure
// propagates to the pipeline's caller unmodified.
func (c *Compiler) CompileKeyed(units []middleware.Unit, key signature.Digest) *Compiled {
	_, span := c.tracer.Start(context.Background(), "compiler.compile",
		trace.WithAttributes(attribute.String("pipeline.digest", key.String())))
	defer span.End()

	c.maybeReclaim()

	c.mu.RLock()
	entry, ok := c.cache[key]
	c.mu.RUnlock()
	if ok {
		c.counters.hits.Add(1)
		entry.hits.Add(1)
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return entry
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Lost the race to another compile of the same key.
	if entry, ok := c.cache[key]; ok {
		c.counters.hits.Add(1)
		entry.hits.Add(1)
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return entry
	}

	c.counters.misses.Add(1)
	span.SetAttributes(attribute.Bool("cache.hit", false))

	opt := optimizeWith(c.kindOf, units)
	c.counters.redundancies.Add(uint64(opt.Removed))
	if opt.Reordered {
		c.counters.reorders.Add(1)
	}

	kinds := make([]middleware.Kind, len(opt.Units))
	for i, u := range opt.Units {
		kinds[i] = c.kindOf(u)
	}

	match, learnedNew := c.catalog.Match(kinds)
	if learnedNew {
		c.counters.patternsLearned.Add(1)
	}
	if match.Type == pattern.MatchLearned || match.Type == pattern.MatchPartial {
		c.counters.intelligent.Add(1)
	}

	compiled := newCompiled(key, opt.Units, kinds, match, c.now())
	c.cache[key] = compiled
	c.counters.compiled.Add(1)

	c.logger.Debug("pipeline compiled",
		slog.String("digest", key.String()),
		slog.Int("units", len(opt.Units)),
		slog.Int("removed", opt.Removed),
		slog.String("pattern", string(match.Type)),
		slog.String("pattern_name", match.Name),
	)
	span.SetAttributes(
		attribute.String("pattern.match", string(match.Type)),
		attribute.Int("pipeline.units", len(opt.Units)),
	)

	return compiled
}

// kindOf classifies a unit, consulting the bounded memo first so hot
// lists skip repeated token inspection.
func (c *Compiler) kindOf(u middleware.Unit) middleware.Kind {
	if k, ok := c.kinds.Get(u.Token()); ok {
		return k
	}
	k := middleware.Classify(u)
	c.kinds.Add(u.Token(), k)
	return k
}

// maybeReclaim runs a reclaim pass when pressure conditions hold: cache
// beyond its configured size, or heap allocation at 80% of the ceiling
// when one is configured.
func (c *Compiler) maybeReclaim() {
	c.mu.RLock()
	size := len(c.cache)
	c.mu.RUnlock()

	pressure := size > c.cfg.MaxCacheEntries
	if !pressure && c.cfg.MemoryCeilingMB > 0 {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		ceiling := uint64(c.cfg.MemoryCeilingMB) * 1024 * 1024
		pressure = m.HeapAlloc >= ceiling*80/100
	}
	if pressure {
		c.Reclaim()
	}
}

// Stats returns a snapshot of compiler activity.
func (c *Compiler) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hits := c.counters.hits.Load()
	misses := c.counters.misses.Load()

	s := Stats{
		PipelinesCompiled:   c.counters.compiled.Load(),
		CacheHits:           hits,
		CacheMisses:         misses,
		CacheEntries:        len(c.cache),
		RedundanciesRemoved: c.counters.redundancies.Load(),
		ReorderingsApplied:  c.counters.reorders.Load(),
		PatternsLearned:     c.counters.patternsLearned.Load(),
		IntelligentMatches:  c.counters.intelligent.Load(),
		GCCycles:            c.counters.gcCycles.Load(),
		MemoryReclaimed:     c.counters.memoryReclaimed.Load(),
		MemoryUsage:         c.memoryEstimateLocked(),
	}
	if total := hits + misses; total > 0 {
		s.CacheHitRate = float64(hits) / float64(total) * 100
	}
	if denom := c.catalog.BuiltinCount() + c.catalog.LearnedCount(); denom > 0 {
		s.PatternEfficiency = float64(c.catalog.PatternsWithUsage()) / float64(denom) * 100
	}
	return s
}

// ClearAll empties the cache, the learned-pattern table, and the usage
// records, and zeroes every counter. Destructive; intended for test
// isolation and administrative reset.
func (c *Compiler) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache = make(map[signature.Digest]*Compiled)
	c.catalog.Reset()
	c.counters.reset()
}

// WarmUp pre-compiles one placeholder pipeline per built-in pattern so
// the first real request matching a built-in shape already finds a warm
// cache. Entries are ordinary; no template mechanism is involved.
func (c *Compiler) WarmUp() int {
	warmed := 0
	for _, p := range pattern.Builtins() {
		units := make([]middleware.Unit, len(p.Kinds))
		for i, k := range p.Kinds {
			units[i] = middleware.Named(placeholderToken(k, i), nopHandler)
		}
		c.Compile(units)
		warmed++
	}
	c.logger.Info("compiler warmed up", slog.Int("patterns", warmed))
	return warmed
}

// ExportPatterns snapshots learned patterns and usage records for
// persistence.
func (c *Compiler) ExportPatterns() ([]pattern.LearnedRecord, []pattern.Usage) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.catalog.ExportLearned(), c.catalog.ExportUsage()
}

// ImportPatterns restores learned patterns and usage records saved by a
// previous process.
func (c *Compiler) ImportPatterns(learned []pattern.LearnedRecord, usage []pattern.Usage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.catalog.ImportLearned(learned)
	c.catalog.ImportUsage(usage)
}

// memoryEstimateLocked applies the fixed per-entry cost model. Callers
// hold at least the read lock.
func (c *Compiler) memoryEstimateLocked() uint64 {
	return uint64(len(c.cache))*pipelineEntryCost +
		uint64(c.catalog.LearnedTableSize())*learnedPatternCost +
		uint64(c.catalog.PatternsWithUsage())*usageRecordCost
}

// placeholderToken names a warm-up unit so it classifies as the wanted
// kind. The index keeps repeated kinds within one pattern distinct.
func placeholderToken(k middleware.Kind, i int) string {
	markers := map[middleware.Kind]string{
		middleware.KindEdgePolicy:    "cors",
		middleware.KindSecurity:      "security",
		middleware.KindAuth:          "auth",
		middleware.KindRateLimit:     "throttle",
		middleware.KindCache:         "cache",
		middleware.KindBodyTransform: "body",
		middleware.KindValidation:    "validate",
		middleware.KindLogging:       "log",
		middleware.KindCustom:        "custom",
	}
	return fmt.Sprintf("warm.%s.%d", markers[k], i)
}

func nopHandler(req *middleware.Request, res *middleware.Response, next func() error) error {
	return next()
}
