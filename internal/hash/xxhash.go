package hash

import "github.com/cespare/xxhash/v2"

// Sum64 returns the xxHash64 of s.
func Sum64(s string) uint64 {
	return xxhash.Sum64String(s)
}

// Bucket maps s onto one of n buckets and returns a sign derived from an
// independent bit of the same hash. n must be positive.
func Bucket(s string, n int) (int, float32) {
	h := xxhash.Sum64String(s)
	sign := float32(1)
	if h>>63 == 1 {
		sign = -1
	}
	return int(h % uint64(n)), sign
}
