// Package ivfpq implements an IVF-PQ vector index.
//
// Vectors are partitioned by k-means into coarse cells (IVF). Within each
// cell the residual to the cell centroid is compressed with product
// quantization. A search probes the nprobes closest cells and ranks their
// rows with asymmetric distance computation:
//
//	idx, err := ivfpq.Build(ctx, dim, vectors, addrs, ivfpq.Config{Metric: distance.MetricCosine})
//	hits, err := idx.Search(query, 20, 10, nil)
//
// Scores are approximate squared L2 distances in the index space (unit
// vectors for cosine). Callers that need exact distances re-rank the hits
// against the original vectors.
package ivfpq
