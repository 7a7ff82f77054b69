/*
Package compiler turns ordered middleware lists into cached executable
pipelines.

# Compilation

Compile optimizes the list (dedup by identity, stable reorder by kind
priority), classifies it, matches the kind sequence against the pattern
catalog, and builds an executable: a direct continuation fold for one or
two units, an indexed execution plan above that. The artifact is cached
under its signature (or a caller-chosen key) and served unchanged on
subsequent calls.

Running a compiled pipeline is observationally identical to invoking the
optimized unit list by hand: same invocations, same order, same errors.
Whether an artifact came from cache or a fresh compile is invisible to
the code executing it.

# Reclaiming

Under pressure (cache size, or heap against a configured ceiling) a
compile call first runs a reclaim pass, which scores patterns by recency
and frequency of use, evicts pipelines tied to low-value patterns, and
prunes learned patterns that never took hold. Reclaim may also be
invoked directly, e.g. from an admin endpoint or on a caller-side timer;
no background goroutine is involved.

# Concurrency

A compiler instance is safe for concurrent use. One RWMutex guards all
mutation; the cache-hit path takes only the read lock and bumps counters
atomically. A reclaim pass holds the write lock from start to finish.
*/
package compiler
