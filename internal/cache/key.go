package cache

import (
	"fmt"
	"strings"

	"github.com/OneOfOne/xxhash"
)

// SuffixKeyLength bounds the keys produced by SuffixKey.
const SuffixKeyLength = 50

// KeyFunc derives a cache key from an audio URL.
type KeyFunc func(url string) string

// SuffixKey drops the query string and keeps the last SuffixKeyLength
// characters. Two URLs sharing a long enough tail map to the same key.
func SuffixKey(url string) string {
	if i := strings.IndexByte(url, '?'); i >= 0 {
		url = url[:i]
	}
	r := []rune(url)
	if len(r) > SuffixKeyLength {
		r = r[len(r)-SuffixKeyLength:]
	}
	return string(r)
}

// HashKey drops the query string and fragment and hashes the full remainder.
func HashKey(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	return fmt.Sprintf("%016x", xxhash.ChecksumString64(url))
}

// KeyFuncByName resolves a configured key strategy.
func KeyFuncByName(name string) (KeyFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "suffix":
		return SuffixKey, nil
	case "hash":
		return HashKey, nil
	default:
		return nil, fmt.Errorf("cache: unknown key strategy %q", name)
	}
}
