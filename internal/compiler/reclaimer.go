package compiler

import (
	"log/slog"
	"time"
)

// Reclaim scoring. A pattern accrues idle points and low-usage points
// independently; anything above candidateScore is a removal candidate.
const (
	idleLong       = time.Hour
	idleShort      = 30 * time.Minute
	idleLongScore  = 30
	idleShortScore = 15
	rareUseScore   = 40 // usage count below rareUseCount
	lowUseScore    = 20 // usage count below lowUseCount
	rareUseCount   = 2
	lowUseCount    = 5
	candidateScore = 35
)

// ReclaimResult reports what a single reclaim pass removed.
type ReclaimResult struct {
	PipelinesRemoved  int    `json:"pipelines_removed"`
	PatternsOptimized int    `json:"patterns_optimized"`
	MemoryFreed       uint64 `json:"memory_freed"`
}

// Reclaim evicts low-value cached pipelines and stale learned patterns.
// A no-op below the configured minimum cache size. The pass holds the
// write lock throughout, so it can never remove an entry inserted after
// it began.
func (c *Compiler) Reclaim() ReclaimResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reclaimLocked()
}

func (c *Compiler) reclaimLocked() ReclaimResult {
	if len(c.cache) < c.cfg.ReclaimMinEntries {
		return ReclaimResult{}
	}

	now := c.now()
	before := c.memoryEstimateLocked()

	// Score every pattern with a usage record.
	candidates := make(map[string]bool)
	for _, u := range c.catalog.Usages() {
		score := 0
		idle := now.Sub(u.LastMatched)
		if idle > idleLong {
			score += idleLongScore
		} else if idle > idleShort {
			score += idleShortScore
		}
		if u.Matches < rareUseCount {
			score += rareUseScore
		} else if u.Matches < lowUseCount {
			score += lowUseScore
		}
		if score > candidateScore {
			candidates[u.Name] = true
		}
	}

	// Evict pipelines whose kind sequence matched a candidate pattern.
	var result ReclaimResult
	for key, entry := range c.cache {
		if entry.Pattern.Name != "" && candidates[entry.Pattern.Name] {
			delete(c.cache, key)
			result.PipelinesRemoved++
		}
	}
	for name := range candidates {
		c.catalog.DropUsage(name)
		result.PatternsOptimized++
	}

	// Drop learned patterns that never took hold and have gone stale.
	result.PatternsOptimized += c.catalog.PruneLearned(rareUseCount, now.Add(-idleShort))

	after := c.memoryEstimateLocked()
	if before > after {
		result.MemoryFreed = before - after
	}

	c.counters.gcCycles.Add(1)
	c.counters.memoryReclaimed.Add(result.MemoryFreed)

	c.logger.Info("reclaim pass complete",
		slog.Int("pipelines_removed", result.PipelinesRemoved),
		slog.Int("patterns_optimized", result.PatternsOptimized),
		slog.Uint64("memory_freed", result.MemoryFreed),
		slog.Int("cache_entries", len(c.cache)),
	)
	return result
}
