package cache

import (
	"fmt"
	"hash/fnv"
	"sort"
)

// Key derives a cache key from a logical resource name and its parameters.
// Identical (resource, params) pairs always produce the same key because the
// parameters are hashed over a canonical sorted representation; distinct
// parameter sets land on distinct FNV-1a hashes.
func Key(resource string, params map[string]string) string {
	if len(params) == 0 {
		return resource
	}

	h := fnv.New64a()

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		_, _ = h.Write([]byte(k))
		_, _ = h.Write([]byte("="))
		_, _ = h.Write([]byte(params[k]))
		_, _ = h.Write([]byte("|"))
	}

	return fmt.Sprintf("%s:%016x", resource, h.Sum64())
}
