package compiler

import "sync/atomic"

// Stats is a point-in-time snapshot of compiler activity. All counters
// are cumulative since construction or the last ClearAll; only the GC
// pass decreases anything, and then only the derived cache figures.
type Stats struct {
	PipelinesCompiled   uint64  `json:"pipelines_compiled"`
	CacheHits           uint64  `json:"cache_hits"`
	CacheMisses         uint64  `json:"cache_misses"`
	CacheHitRate        float64 `json:"cache_hit_rate"`
	CacheEntries        int     `json:"cache_entries"`
	RedundanciesRemoved uint64  `json:"redundancies_removed"`
	ReorderingsApplied  uint64  `json:"reorderings_applied"`
	PatternsLearned     uint64  `json:"patterns_learned"`
	IntelligentMatches  uint64  `json:"intelligent_matches"`
	PatternEfficiency   float64 `json:"pattern_efficiency"`
	GCCycles            uint64  `json:"gc_cycles"`
	MemoryReclaimed     uint64  `json:"memory_reclaimed"`
	MemoryUsage         uint64  `json:"memory_usage"`
}

// counters are the live atomics behind Stats. Hits increment on the
// read-locked hot path, so they must not require the write lock.
type counters struct {
	compiled        atomic.Uint64
	hits            atomic.Uint64
	misses          atomic.Uint64
	redundancies    atomic.Uint64
	reorders        atomic.Uint64
	patternsLearned atomic.Uint64
	intelligent     atomic.Uint64
	gcCycles        atomic.Uint64
	memoryReclaimed atomic.Uint64
}

func (c *counters) reset() {
	c.compiled.Store(0)
	c.hits.Store(0)
	c.misses.Store(0)
	c.redundancies.Store(0)
	c.reorders.Store(0)
	c.patternsLearned.Store(0)
	c.intelligent.Store(0)
	c.gcCycles.Store(0)
	c.memoryReclaimed.Store(0)
}

// Fixed per-entry costs for the approximate memory model. Exactness is
// not the point; the estimate only needs to track cache size
// monotonically.
const (
	pipelineEntryCost  = 2048
	learnedPatternCost = 512
	usageRecordCost    = 128
)
