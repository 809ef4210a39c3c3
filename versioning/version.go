// Package versioning implements the 4-byte version header and recursive
// upgrade chain that every persistent snapshot in canisdk is tagged with,
// per spec §4.8.
package versioning

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrAttemptedDowngrade is returned by Read when the stored version is
// newer than the newest version the caller's Chain knows how to decode.
var ErrAttemptedDowngrade = errors.New("versioning: attempted downgrade")

const headerSize = 4

// Step produces one version's value. The step for the stored version runs
// first, receives prev == nil and decodes body; every later step receives
// the value produced by the step before it. Go cannot express a chain of distinct concrete types the way
// an associated `Previous` type can in the original, so each step's
// previous value is carried as `any` and type-asserted inside Step — see
// DESIGN.md for this Open Question's resolution.
type Step func(body []byte, prev any) any

// Chain is an ordered list of Steps: Chain[i] is the step for version i.
// Read runs Chain[stored] with prev == nil, then each later Chain[i] with
// Chain[i-1]'s result as prev.
type Chain []Step

// Read walks chain from the version tag stored in buf up to chain's newest
// entry, applying each step's upgrade in turn, and returns the final result
// type-asserted to T.
func Read[T any](buf []byte, chain Chain) (T, error) {
	var zero T
	if len(buf) < headerSize {
		return zero, fmt.Errorf("versioning: buffer too short for version header")
	}
	if len(chain) == 0 {
		return zero, fmt.Errorf("versioning: empty chain")
	}
	stored := binary.BigEndian.Uint32(buf[:headerSize])
	newest := uint32(len(chain) - 1)
	if stored > newest {
		return zero, ErrAttemptedDowngrade
	}

	body := buf[headerSize:]
	var cur any
	for v := stored; ; v++ {
		cur = chain[v](body, cur)
		if v == newest {
			break
		}
	}
	out, ok := cur.(T)
	if !ok {
		return zero, fmt.Errorf("versioning: chain's final step did not produce the expected type")
	}
	return out, nil
}

// Write prepends version's 4-byte big-endian tag to body.
func Write(version uint32, body []byte) []byte {
	out := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint32(out[:headerSize], version)
	copy(out[headerSize:], body)
	return out
}
