package middleware

import "strings"

// Kind is the coarse role classification of a middleware unit. It drives
// pipeline reordering and pattern recognition only; it never changes what
// the unit does at runtime.
type Kind string

const (
	KindEdgePolicy    Kind = "edge_policy"
	KindSecurity      Kind = "security"
	KindAuth          Kind = "auth"
	KindRateLimit     Kind = "rate_limit"
	KindCache         Kind = "cache"
	KindBodyTransform Kind = "body_transform"
	KindValidation    Kind = "validation"
	KindLogging       Kind = "logging"
	KindCustom        Kind = "custom"
)

// kindPriority fixes the total order used by the optimizer. Higher runs
// earlier. Edge policy decisions (CORS and friends) come first so that
// rejected preflights never reach heavier units.
var kindPriority = map[Kind]int{
	KindEdgePolicy:    90,
	KindSecurity:      80,
	KindAuth:          70,
	KindRateLimit:     60,
	KindCache:         50,
	KindBodyTransform: 40,
	KindValidation:    30,
	KindLogging:       20,
	KindCustom:        10,
}

// Priority returns the reorder rank for k. Unknown kinds rank as custom.
func (k Kind) Priority() int {
	if p, ok := kindPriority[k]; ok {
		return p
	}
	return kindPriority[KindCustom]
}

// kindRule maps an identity-token substring to a kind. Rules are checked
// in declaration order; more specific markers sit above the broad ones
// (e.g. "ratelimit" before "limit", "valid" before "json" so that a
// JSON validator counts as validation, not body transformation).
type kindRule struct {
	marker string
	kind   Kind
}

var kindRules = []kindRule{
	{"cors", KindEdgePolicy},
	{"origin", KindEdgePolicy},
	{"edge", KindEdgePolicy},
	{"policy", KindEdgePolicy},
	{"security", KindSecurity},
	{"secure", KindSecurity},
	{"helmet", KindSecurity},
	{"csrf", KindSecurity},
	{"headers", KindSecurity},
	{"jwt", KindAuth},
	{"auth", KindAuth},
	{"login", KindAuth},
	{"session", KindAuth},
	{"ratelimit", KindRateLimit},
	{"rate_limit", KindRateLimit},
	{"rate-limit", KindRateLimit},
	{"throttle", KindRateLimit},
	{"limit", KindRateLimit},
	{"cache", KindCache},
	{"etag", KindCache},
	{"valid", KindValidation},
	{"schema", KindValidation},
	{"sanitize", KindValidation},
	{"json", KindBodyTransform},
	{"body", KindBodyTransform},
	{"parse", KindBodyTransform},
	{"compress", KindBodyTransform},
	{"gzip", KindBodyTransform},
	{"transform", KindBodyTransform},
	{"log", KindLogging},
	{"trace", KindLogging},
	{"audit", KindLogging},
	{"requestid", KindLogging},
	{"request_id", KindLogging},
	{"request-id", KindLogging},
}

// Classify maps a unit to its kind by inspecting the identity token.
// Best-effort and total: anything unrecognized is custom. The result is
// advisory only.
func Classify(u Unit) Kind {
	return ClassifyToken(u.Token())
}

// ClassifyToken classifies a bare identity token.
func ClassifyToken(token string) Kind {
	t := strings.ToLower(token)
	for _, r := range kindRules {
		if strings.Contains(t, r.marker) {
			return r.kind
		}
	}
	return KindCustom
}

// Kinds returns the classification of every unit in order.
func Kinds(units []Unit) []Kind {
	kinds := make([]Kind, len(units))
	for i, u := range units {
		kinds[i] = Classify(u)
	}
	return kinds
}
