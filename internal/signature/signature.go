// Package signature derives deterministic digests for middleware units
// and ordered unit lists. Digests are cache keys, not security material:
// a 64-bit FNV-1a over the length-prefixed token list is deterministic,
// cheap, and collision-resistant enough for that job.
package signature

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/midway-labs/midway/internal/middleware"
)

// Digest identifies an ordered middleware list. Order-sensitive:
// permutations of the same units produce different digests.
type Digest uint64

// String renders the digest in the fixed-width hex form used in cache
// keys and log lines.
func (d Digest) String() string {
	return fmt.Sprintf("%016x", uint64(d))
}

// Of computes the digest of an ordered token list. Each token is length
// prefixed so that ["ab","c"] and ["a","bc"] cannot collide.
func Of(tokens []string) Digest {
	h := fnv.New64a()
	var lenBuf [8]byte
	for _, t := range tokens {
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(t)))
		h.Write(lenBuf[:])
		h.Write([]byte(t))
	}
	return Digest(h.Sum64())
}

// OfUnits computes the digest of an ordered unit list from the units'
// identity tokens.
func OfUnits(units []middleware.Unit) Digest {
	tokens := make([]string, len(units))
	for i, u := range units {
		tokens[i] = u.Token()
	}
	return Of(tokens)
}

// OfKinds computes the digest of an ordered kind sequence. Used to key
// learned patterns, where the sequence (not the multiset) is the
// identity.
func OfKinds(kinds []middleware.Kind) Digest {
	tokens := make([]string, len(kinds))
	for i, k := range kinds {
		tokens[i] = string(k)
	}
	return Of(tokens)
}

// OfString digests a single caller-chosen key, such as a route-group
// prefix used as a stable cache key.
func OfString(s string) Digest {
	return Of([]string{s})
}
