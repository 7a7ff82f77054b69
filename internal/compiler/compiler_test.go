package compiler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/midway-labs/midway/internal/middleware"
	"github.com/midway-labs/midway/internal/pattern"
	"github.com/midway-labs/midway/internal/signature"
)

func newTestCompiler(cfg Config) *Compiler {
	return New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// recording builds a unit that appends its token to calls when invoked.
func recording(token string, calls *[]string) middleware.Unit {
	return middleware.Named(token, func(req *middleware.Request, res *middleware.Response, next func() error) error {
		*calls = append(*calls, token)
		return next()
	})
}

func TestCompile_ScenarioEmptyCacheExactMatch(t *testing.T) {
	c := newTestCompiler(Config{})

	// edge-policy, auth, body-transform on an empty cache: a miss with
	// an exact match against the api_auth built-in.
	units := named("cors", "auth_bearer", "json_parser")
	compiled := c.Compile(units)

	if compiled.Pattern.Type != pattern.MatchExact {
		t.Errorf("pattern type = %v, want exact", compiled.Pattern.Type)
	}
	if compiled.Pattern.Name != "api_auth" {
		t.Errorf("pattern name = %q, want api_auth", compiled.Pattern.Name)
	}

	stats := c.Stats()
	if stats.PipelinesCompiled != 1 {
		t.Errorf("PipelinesCompiled = %d, want 1", stats.PipelinesCompiled)
	}
	if stats.CacheMisses != 1 {
		t.Errorf("CacheMisses = %d, want 1", stats.CacheMisses)
	}
	if stats.CacheHits != 0 {
		t.Errorf("CacheHits = %d, want 0", stats.CacheHits)
	}
}

func TestCompile_RepeatIsHit(t *testing.T) {
	c := newTestCompiler(Config{})
	units := named("cors", "auth_bearer", "json_parser")

	first := c.Compile(units)
	second := c.Compile(units)

	if first != second {
		t.Error("second compile returned a different artifact; want identical cached reference")
	}

	stats := c.Stats()
	if stats.CacheHits != 1 {
		t.Errorf("CacheHits = %d, want 1", stats.CacheHits)
	}
	if stats.CacheMisses != 1 {
		t.Errorf("CacheMisses = %d, want 1", stats.CacheMisses)
	}
	if stats.CacheHitRate != 50.0 {
		t.Errorf("CacheHitRate = %v, want 50.0", stats.CacheHitRate)
	}
	if second.Hits() != 1 {
		t.Errorf("artifact Hits() = %d, want 1", second.Hits())
	}
}

func TestCompile_DedupAndReorder(t *testing.T) {
	c := newTestCompiler(Config{})

	// body-transform, edge-policy, auth, duplicate edge-policy.
	units := named("json_parser", "cors", "auth_bearer", "cors")
	compiled := c.Compile(units)

	if compiled.Len() != 3 {
		t.Fatalf("compiled length = %d, want 3", compiled.Len())
	}
	wantKinds := []middleware.Kind{middleware.KindEdgePolicy, middleware.KindAuth, middleware.KindBodyTransform}
	for i, k := range wantKinds {
		if compiled.Kinds[i] != k {
			t.Errorf("kind %d = %v, want %v", i, compiled.Kinds[i], k)
		}
	}

	stats := c.Stats()
	if stats.RedundanciesRemoved != 1 {
		t.Errorf("RedundanciesRemoved = %d, want 1", stats.RedundanciesRemoved)
	}
	if stats.ReorderingsApplied != 1 {
		t.Errorf("ReorderingsApplied = %d, want 1", stats.ReorderingsApplied)
	}
}

func TestCompile_LearningThreshold(t *testing.T) {
	c := newTestCompiler(Config{})

	// The same novel kind sequence from three different unit lists:
	// learned on the third compile, not before, not again after.
	learnedAt := func(i int) uint64 {
		units := named(
			fmt.Sprintf("step_a_%d", i),
			fmt.Sprintf("step_b_%d", i),
			fmt.Sprintf("step_c_%d", i),
		)
		c.Compile(units)
		return c.Stats().PatternsLearned
	}

	if got := learnedAt(1); got != 0 {
		t.Errorf("PatternsLearned after call 1 = %d, want 0", got)
	}
	if got := learnedAt(2); got != 0 {
		t.Errorf("PatternsLearned after call 2 = %d, want 0", got)
	}
	if got := learnedAt(3); got != 1 {
		t.Errorf("PatternsLearned after call 3 = %d, want 1", got)
	}
	if got := learnedAt(4); got != 1 {
		t.Errorf("PatternsLearned after call 4 = %d, want 1", got)
	}

	// Call 4 matched the learned pattern.
	if got := c.Stats().IntelligentMatches; got != 1 {
		t.Errorf("IntelligentMatches = %d, want 1", got)
	}
}

func TestCompile_EquivalenceWithManualFold(t *testing.T) {
	c := newTestCompiler(Config{})

	var compiledCalls []string
	units := []middleware.Unit{
		recording("json_parser", &compiledCalls),
		recording("cors", &compiledCalls),
		recording("auth_bearer", &compiledCalls),
	}

	finalRan := false
	compiled := c.Compile(units)
	err := compiled.Execute(nil, nil, func() error {
		finalRan = true
		return nil
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !finalRan {
		t.Fatal("final continuation never ran")
	}

	// Manual sequential fold over the same post-optimization order.
	var manualCalls []string
	opt := Optimize([]middleware.Unit{
		recording("json_parser", &manualCalls),
		recording("cors", &manualCalls),
		recording("auth_bearer", &manualCalls),
	})
	next := func() error { return nil }
	for i := len(opt.Units) - 1; i >= 0; i-- {
		u, inner := opt.Units[i], next
		next = func() error { return u.Invoke(nil, nil, inner) }
	}
	if err := next(); err != nil {
		t.Fatalf("manual fold error = %v", err)
	}

	if len(compiledCalls) != len(manualCalls) {
		t.Fatalf("compiled invoked %d units, manual %d", len(compiledCalls), len(manualCalls))
	}
	for i := range manualCalls {
		if compiledCalls[i] != manualCalls[i] {
			t.Errorf("invocation %d = %q, want %q", i, compiledCalls[i], manualCalls[i])
		}
	}
}

func TestCompile_ShortChainHasNoPlan(t *testing.T) {
	c := newTestCompiler(Config{})

	short := c.Compile(named("cors", "auth_bearer"))
	if short.Plan != nil {
		t.Errorf("2-unit pipeline has a plan of %d entries; want direct fold", len(short.Plan))
	}

	long := c.Compile(named("cors", "auth_bearer", "json_parser"))
	if long.Plan == nil {
		t.Error("3-unit pipeline has no plan")
	}
}

func TestCompile_PlanFlagsAreAdvisory(t *testing.T) {
	c := newTestCompiler(Config{})

	compiled := c.Compile(named("cors", "security_headers", "auth_bearer", "cache_control"))
	if len(compiled.Plan) != 4 {
		t.Fatalf("plan length = %d, want 4", len(compiled.Plan))
	}

	wantCacheable := []bool{true, true, false, true}
	wantTerminal := []bool{false, false, true, false}
	for i, entry := range compiled.Plan {
		if entry.Cacheable != wantCacheable[i] {
			t.Errorf("plan[%d].Cacheable = %v, want %v", i, entry.Cacheable, wantCacheable[i])
		}
		if entry.Terminal != wantTerminal[i] {
			t.Errorf("plan[%d].Terminal = %v, want %v", i, entry.Terminal, wantTerminal[i])
		}
	}

	// Advisory means advisory: every unit still runs, flags or not.
	var calls []string
	compiled = c.Compile([]middleware.Unit{
		recording("cors_x", &calls),
		recording("auth_x", &calls),
		recording("throttle_x", &calls),
	})
	if err := compiled.Execute(nil, nil, func() error { return nil }); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(calls) != 3 {
		t.Errorf("%d units invoked, want 3 (terminal flag must not short-circuit)", len(calls))
	}
}

func TestExecute_ErrorPropagatesUnwrapped(t *testing.T) {
	c := newTestCompiler(Config{})
	boom := errors.New("boom")

	var calls []string
	units := []middleware.Unit{
		recording("custom_a", &calls),
		middleware.Named("custom_b", func(req *middleware.Request, res *middleware.Response, next func() error) error {
			return boom
		}),
		recording("custom_c", &calls),
	}

	err := c.Compile(units).Execute(nil, nil, func() error { return nil })
	if err != boom {
		t.Errorf("Execute() error = %v, want the unit's error unmodified", err)
	}
	if len(calls) != 1 || calls[0] != "custom_a" {
		t.Errorf("calls = %v, want only custom_a before the failure", calls)
	}
}

func TestExecute_NonInvocableUnitFailsAtRunTime(t *testing.T) {
	c := newTestCompiler(Config{})

	// Compilation accepts the broken unit; only execution reports it.
	broken := c.Compile([]middleware.Unit{
		middleware.Named("custom_x", nil),
	})
	err := broken.Execute(nil, nil, func() error { return nil })
	if err == nil {
		t.Fatal("Execute() with non-invocable unit returned no error")
	}
}

func TestCompileKeyed_CallerKey(t *testing.T) {
	c := newTestCompiler(Config{})

	key := signature.OfString("/api/v1")
	first := c.CompileKeyed(named("cors", "auth_bearer"), key)
	second := c.CompileKeyed(named("cors", "auth_bearer"), key)

	if first != second {
		t.Error("caller-keyed compile did not hit cache")
	}
}

func TestWarmUp(t *testing.T) {
	c := newTestCompiler(Config{})

	warmed := c.WarmUp()
	if warmed != len(pattern.Builtins()) {
		t.Errorf("WarmUp() = %d, want %d", warmed, len(pattern.Builtins()))
	}

	stats := c.Stats()
	if stats.CacheEntries != warmed {
		t.Errorf("CacheEntries = %d, want %d", stats.CacheEntries, warmed)
	}
	if stats.PipelinesCompiled != uint64(warmed) {
		t.Errorf("PipelinesCompiled = %d, want %d", stats.PipelinesCompiled, warmed)
	}
}

func TestClearAll(t *testing.T) {
	c := newTestCompiler(Config{})

	c.WarmUp()
	c.Compile(named("cors", "auth_bearer", "json_parser"))

	c.ClearAll()

	stats := c.Stats()
	if stats.CacheEntries != 0 {
		t.Errorf("CacheEntries = %d, want 0", stats.CacheEntries)
	}
	if stats.PipelinesCompiled != 0 || stats.CacheHits != 0 || stats.CacheMisses != 0 {
		t.Errorf("counters not reset: %+v", stats)
	}
	if stats.CacheHitRate != 0 {
		t.Errorf("CacheHitRate = %v, want 0 with no calls", stats.CacheHitRate)
	}

	// The instance stays usable after a clear.
	c.Compile(named("cors", "auth_bearer", "json_parser"))
	if got := c.Stats().PipelinesCompiled; got != 1 {
		t.Errorf("PipelinesCompiled after clear+compile = %d, want 1", got)
	}
}

func TestStats_MemoryTracksCacheSize(t *testing.T) {
	c := newTestCompiler(Config{})

	before := c.Stats().MemoryUsage
	for i := 0; i < 10; i++ {
		c.Compile(named(fmt.Sprintf("custom_%d", i)))
	}
	after := c.Stats().MemoryUsage

	if after <= before {
		t.Errorf("MemoryUsage %d -> %d; want monotonic growth with cache size", before, after)
	}
}

func TestStats_PatternEfficiency(t *testing.T) {
	c := newTestCompiler(Config{})

	// One of five built-ins used, no learned patterns.
	c.Compile(named("cors", "auth_bearer", "json_parser"))

	got := c.Stats().PatternEfficiency
	want := 100.0 / float64(len(pattern.Builtins()))
	if got != want {
		t.Errorf("PatternEfficiency = %v, want %v", got, want)
	}
}
