// Package cache provides a generic, size-bounded LRU cache.
//
// It backs the decoded fragment and index caches of a connection and the
// in-process embedding cache. Capacity is measured in caller-defined cost
// units; without a cost function every entry costs 1.
package cache
