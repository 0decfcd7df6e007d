// Package kmeans implements k-means clustering for index training.
//
// Used by the IVF partitioner to learn coarse centroids and by product
// quantization to learn per-subspace codebooks. Training is seeded so that an
// index built twice from the same data is identical.
package kmeans
