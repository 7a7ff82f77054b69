package compiler

import (
	"sync/atomic"
	"time"

	"github.com/midway-labs/midway/internal/middleware"
	"github.com/midway-labs/midway/internal/pattern"
	"github.com/midway-labs/midway/internal/signature"
)

// planThreshold is the list length above which compilation builds an
// indexed execution plan. At or below it, the executable is a direct
// continuation fold with no plan allocation.
const planThreshold = 2

// PlanEntry is one indexed step of an execution plan.
//
// Cacheable and Terminal are advisory metadata only. They describe what
// a result-caching or early-exit runner could do with the entry, but the
// runner does not branch on them: adding that behavior here would change
// observable semantics, so it stays out until the pipeline contract
// grows a result-caching story. Callers may read the flags; execution
// ignores them.
type PlanEntry struct {
	Unit      middleware.Unit
	Kind      middleware.Kind
	Cacheable bool
	Terminal  bool
}

// Compiled is a cached executable pipeline plus its metadata. It is
// immutable after construction except for the hit counter.
type Compiled struct {
	Signature  signature.Digest
	CompiledAt time.Time
	Kinds      []middleware.Kind
	Pattern    pattern.Match

	// Plan is nil for short pipelines executed as a direct fold.
	Plan []PlanEntry

	units []middleware.Unit
	hits  atomic.Uint64
}

func newCompiled(key signature.Digest, units []middleware.Unit, kinds []middleware.Kind, m pattern.Match, at time.Time) *Compiled {
	c := &Compiled{
		Signature:  key,
		CompiledAt: at,
		Kinds:      kinds,
		Pattern:    m,
		units:      units,
	}
	if len(units) > planThreshold {
		c.Plan = make([]PlanEntry, len(units))
		for i, u := range units {
			k := kinds[i]
			c.Plan[i] = PlanEntry{
				Unit:      u,
				Kind:      k,
				Cacheable: k == middleware.KindEdgePolicy || k == middleware.KindSecurity || k == middleware.KindCache,
				Terminal:  k == middleware.KindAuth || k == middleware.KindRateLimit,
			}
		}
	}
	return c
}

// Execute runs the pipeline: each unit in order, falling through to
// final after the last one. Errors from units propagate unmodified;
// the compiler never wraps or swallows them.
func (c *Compiled) Execute(req *middleware.Request, res *middleware.Response, final func() error) error {
	if c.Plan != nil {
		return c.runPlan(req, res, final)
	}
	return c.runFold(req, res, final)
}

// runFold chains the units as nested continuations. Only used for the
// trivial short case, where building a plan costs more than it saves.
func (c *Compiled) runFold(req *middleware.Request, res *middleware.Response, final func() error) error {
	next := final
	for i := len(c.units) - 1; i >= 0; i-- {
		u := c.units[i]
		inner := next
		next = func() error { return u.Invoke(req, res, inner) }
	}
	return next()
}

// runPlan drives the indexed plan with a single recursive stepper.
func (c *Compiled) runPlan(req *middleware.Request, res *middleware.Response, final func() error) error {
	var step func(i int) error
	step = func(i int) error {
		if i >= len(c.Plan) {
			return final()
		}
		return c.Plan[i].Unit.Invoke(req, res, func() error { return step(i + 1) })
	}
	return step(0)
}

// Hits returns how many times this artifact was served from cache.
func (c *Compiled) Hits() uint64 { return c.hits.Load() }

// Len returns the number of units in the compiled pipeline.
func (c *Compiled) Len() int { return len(c.units) }
