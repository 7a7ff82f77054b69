package compiler

import (
	"sort"

	"github.com/midway-labs/midway/internal/middleware"
)

// OptimizeResult carries the optimized unit list plus what the pass did
// to get there, so the compiler can account for it in its counters.
type OptimizeResult struct {
	Units     []middleware.Unit
	Removed   int
	Reordered bool
}

// Optimize deduplicates a unit list by identity token and reorders the
// survivors by descending kind priority. Dedup keeps the first
// occurrence, and the sort is stable, so units of equal kind keep their
// relative input order. Never fails; output is never longer than input.
func Optimize(units []middleware.Unit) OptimizeResult {
	return optimizeWith(middleware.Classify, units)
}

func optimizeWith(kindOf func(middleware.Unit) middleware.Kind, units []middleware.Unit) OptimizeResult {
	seen := make(map[string]struct{}, len(units))
	kept := make([]middleware.Unit, 0, len(units))
	for _, u := range units {
		if _, dup := seen[u.Token()]; dup {
			continue
		}
		seen[u.Token()] = struct{}{}
		kept = append(kept, u)
	}
	removed := len(units) - len(kept)

	sorted := append([]middleware.Unit(nil), kept...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return kindOf(sorted[i]).Priority() > kindOf(sorted[j]).Priority()
	})

	reordered := false
	for i := range sorted {
		if sorted[i].Token() != kept[i].Token() {
			reordered = true
			break
		}
	}

	return OptimizeResult{Units: sorted, Removed: removed, Reordered: reordered}
}
