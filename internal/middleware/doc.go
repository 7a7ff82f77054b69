/*
Package middleware defines the middleware unit model consumed by the
pipeline compiler, plus the stock middleware shipped with the gateway.

# Unit Model

A middleware unit is an opaque handler with a stable identity token.
Identity drives deduplication and cache signatures; classification
(kind.go) drives reordering and pattern recognition. Both are advisory:
neither changes what the handler does when invoked.

# Stock Middleware

The stock units are organized one component per file:

  - requestid.go: UUID per request, exposed via X-Request-ID
  - logging.go: structured access logging with slog
  - secheaders.go: baseline security response headers
  - cors.go: origin allow-list with preflight handling
  - auth.go: bearer-token admission with a pluggable verifier
  - ratelimit.go: token-bucket admission control
  - cachecontrol.go: public cacheability marking
  - validate.go: JSON body shape validation

The bodies are intentionally small. They exist so route groups have real
units to compile; anything heavier belongs in the application.

# Chain Order

Units may be registered in any order. The compiler reorders them by kind
priority (edge policy first, logging last, custom at the end), so the
recommended registration order is simply "whatever reads best".
*/
package middleware
