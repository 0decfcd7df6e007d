package kmeans

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/hupe1980/vectable/distance"
)

// TrainKMeans trains k centroids from the given vectors using Lloyd's algorithm
// with k-means++ seeding. It returns the flattened centroids (k * dim).
//
// If there are fewer vectors than k, nil is returned.
func TrainKMeans(ctx context.Context, vectors []float32, dim int, k int, metric distance.Metric, maxIter int, seed int64) ([]float32, error) {
	distFunc, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}

	n := len(vectors) / dim
	if n < k || k <= 0 {
		return nil, nil
	}

	rng := rand.New(rand.NewSource(seed))
	centroids := initPlusPlus(vectors, dim, k, rng)

	assignments := make([]int, n)
	for i := range assignments {
		assignments[i] = -1
	}
	counts := make([]int, k)
	sums := make([]float32, k*dim)

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		changed := false

		// Assignment step
		for i := 0; i < n; i++ {
			best := nearest(vectors[i*dim:(i+1)*dim], centroids, dim, distFunc)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}

		if !changed {
			break
		}

		// Update step
		clear(sums)
		clear(counts)

		for i := 0; i < n; i++ {
			cluster := assignments[i]
			vec := vectors[i*dim : (i+1)*dim]
			for d := 0; d < dim; d++ {
				sums[cluster*dim+d] += vec[d]
			}
			counts[cluster]++
		}

		for j := 0; j < k; j++ {
			if counts[j] > 0 {
				scale := 1.0 / float32(counts[j])
				for d := 0; d < dim; d++ {
					centroids[j*dim+d] = sums[j*dim+d] * scale
				}
			} else {
				// Re-seed an empty cluster with a random point.
				idx := rng.Intn(n)
				copy(centroids[j*dim:(j+1)*dim], vectors[idx*dim:(idx+1)*dim])
			}
		}
	}

	return centroids, nil
}

// initPlusPlus picks initial centroids with k-means++ (D² weighting).
func initPlusPlus(vectors []float32, dim, k int, rng *rand.Rand) []float32 {
	n := len(vectors) / dim
	centroids := make([]float32, 0, k*dim)

	first := rng.Intn(n)
	centroids = append(centroids, vectors[first*dim:(first+1)*dim]...)

	minDist := make([]float32, n)
	for i := range minDist {
		minDist[i] = float32(math.MaxFloat32)
	}

	for c := 1; c < k; c++ {
		last := centroids[(c-1)*dim : c*dim]
		var total float64
		for i := 0; i < n; i++ {
			d := distance.SquaredL2(vectors[i*dim:(i+1)*dim], last)
			if d < minDist[i] {
				minDist[i] = d
			}
			total += float64(minDist[i])
		}

		next := rng.Intn(n)
		if total > 0 {
			target := rng.Float64() * total
			var acc float64
			for i := 0; i < n; i++ {
				acc += float64(minDist[i])
				if minDist[i] > 0 && acc >= target {
					next = i
					break
				}
			}
		}
		centroids = append(centroids, vectors[next*dim:(next+1)*dim]...)
	}
	return centroids
}

func nearest(vec, centroids []float32, dim int, distFunc distance.Func) int {
	k := len(centroids) / dim
	best := -1
	minDist := float32(math.MaxFloat32)
	for j := 0; j < k; j++ {
		d := distFunc(vec, centroids[j*dim:(j+1)*dim])
		if d < minDist || best == -1 {
			minDist = d
			best = j
		}
	}
	return best
}

// AssignPartition finds the closest centroid for a vector.
func AssignPartition(vec []float32, centroids []float32, dim int, metric distance.Metric) (int, error) {
	distFunc, err := distance.Provider(metric)
	if err != nil {
		return -1, err
	}
	return nearest(vec, centroids, dim, distFunc), nil
}

type centroidDist struct {
	id   int
	dist float32
}

// FindClosestCentroids returns the indices of the n closest centroids to the query vector.
func FindClosestCentroids(query []float32, centroids []float32, dim int, n int, metric distance.Metric) ([]int, error) {
	k := len(centroids) / dim
	if n > k {
		n = k
	}

	distFunc, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}

	dists := make([]centroidDist, k)
	for i := 0; i < k; i++ {
		dists[i] = centroidDist{id: i, dist: distFunc(query, centroids[i*dim:(i+1)*dim])}
	}

	sort.SliceStable(dists, func(i, j int) bool {
		return dists[i].dist < dists[j].dist
	})

	result := make([]int, n)
	for i := 0; i < n; i++ {
		result[i] = dists[i].id
	}

	return result, nil
}
