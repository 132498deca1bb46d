package utils

import (
	"encoding/hex"
	"encoding/json"
	"hash/fnv"

	"github.com/zeebo/blake3"
)

func HashStringToUint64(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// ContentHash returns the hex blake3 digest of v's JSON encoding. Struct
// fields encode in declaration order and map keys sorted, so equal values
// hash equally.
func ContentHash(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
