package middleware

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

// Handler is the callable shape of a middleware unit. It receives the
// request and response wrappers plus a continuation that advances to the
// next unit (or to the terminal handler after the last one). A handler
// that returns without calling next short-circuits the chain.
type Handler func(req *Request, res *Response, next func() error) error

// Request wraps the incoming HTTP request together with per-request
// values shared between units. The compiler never inspects either field.
type Request struct {
	HTTP   *http.Request
	Values map[string]any
}

// NewRequest wraps r for pipeline execution.
func NewRequest(r *http.Request) *Request {
	return &Request{HTTP: r, Values: make(map[string]any)}
}

// Response wraps the response writer. Status records the code written by
// the terminal handler or a short-circuiting unit.
type Response struct {
	Writer http.ResponseWriter
	Status int
}

// Unit is one middleware entry as seen by the compiler: an opaque handler
// plus a stable identity token used for deduplication and signatures.
//
// Units come in three variants. Named units derive identity from the
// caller-chosen name, method units from "receiver.method", and closures
// from a per-process handle assigned when the unit is constructed. The
// handle scheme deliberately avoids source-location reflection: the same
// Unit value keeps the same identity for the process lifetime, while two
// independently constructed closures never collide.
type Unit struct {
	token   string
	handler Handler
}

var closureSeq atomic.Uint64

// Named builds a unit whose identity is the given name.
func Named(name string, h Handler) Unit {
	return Unit{token: name, handler: h}
}

// Closure builds a unit for an anonymous handler. Identity is a fresh
// per-process handle; reuse the returned Unit to reuse the identity.
func Closure(h Handler) Unit {
	return Unit{token: fmt.Sprintf("closure#%d", closureSeq.Add(1)), handler: h}
}

// Method builds a unit for a method-backed handler, identified by
// receiver and method name.
func Method(receiver, method string, h Handler) Unit {
	return Unit{token: receiver + "." + method, handler: h}
}

// Token returns the unit's identity token.
func (u Unit) Token() string { return u.token }

// Handler returns the unit's callable.
func (u Unit) Handler() Handler { return u.handler }

// Invocable reports whether the unit carries a callable handler. A unit
// built with a nil handler is only detected when the compiled pipeline
// runs.
func (u Unit) Invocable() bool { return u.handler != nil }

// Invoke runs the unit's handler, surfacing a nil handler as an error at
// execution time rather than at compile time.
func (u Unit) Invoke(req *Request, res *Response, next func() error) error {
	if u.handler == nil {
		return fmt.Errorf("middleware %q is not invocable", u.token)
	}
	return u.handler(req, res, next)
}

// HaltedError is returned when a unit intentionally stops the chain,
// for example a rate limiter rejecting a request.
type HaltedError struct {
	Unit   string
	Status int
	Reason string
}

func (e *HaltedError) Error() string {
	return fmt.Sprintf("pipeline halted by %s: %s", e.Unit, e.Reason)
}

// IsHalted returns true if the error is an intentional pipeline halt.
func IsHalted(err error) bool {
	_, ok := err.(*HaltedError)
	return ok
}
