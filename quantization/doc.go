// Package quantization provides product quantization (PQ) for vector indexes.
//
// PQ splits a vector into M subvectors and replaces each with the index of
// its nearest centroid in a per-subspace codebook of at most 256 entries:
//
//	pq, err := quantization.NewProductQuantizer(384, 24, 256)
//	err = pq.Train(ctx, vectors, seed)
//	codes, err := pq.Encode(vec)              // 384 floats → 24 bytes
//	table, err := pq.BuildDistanceTable(query)
//	d := pq.AdcDistance(table, codes)         // approximate squared L2
//
// Distances computed from codes are approximate; callers re-rank the best
// candidates with the original vectors.
package quantization
