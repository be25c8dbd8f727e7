package segment

import (
	"math"
	"math/rand"
)

const (
	kmeansMaxIterations = 100
	kmeansTolerance     = 1e-6
)

// kmeans partitions the matrix into k clusters with seeded k-means++
// initialization. Given identical input and seed the assignment is
// reproducible run to run.
func kmeans(matrix [][]float64, k int, seed int64) []int {
	n := len(matrix)
	if n == 0 || k <= 0 {
		return nil
	}
	if k > n {
		k = n
	}

	rng := rand.New(rand.NewSource(seed))
	centroids := initCentroids(matrix, k, rng)
	assignments := make([]int, n)

	for iter := 0; iter < kmeansMaxIterations; iter++ {
		for i, point := range matrix {
			assignments[i] = nearestCentroid(point, centroids)
		}

		next := make([][]float64, k)
		counts := make([]int, k)
		dims := len(matrix[0])
		for c := range next {
			next[c] = make([]float64, dims)
		}
		for i, point := range matrix {
			c := assignments[i]
			counts[c]++
			for d, v := range point {
				next[c][d] += v
			}
		}

		shift := 0.0
		var donated map[int]bool
		for c := range next {
			if counts[c] == 0 {
				// Re-seed an empty cluster from the point farthest from its
				// centroid, keeping k clusters alive. Points donated earlier
				// in this iteration are off limits: their recorded centroid
				// is stale, and re-picking one would leave a duplicate
				// centroid and a still-empty cluster.
				if donated == nil {
					donated = make(map[int]bool)
				}
				far := farthestPoint(matrix, centroids, assignments, donated)
				donated[far] = true
				copy(next[c], matrix[far])
				assignments[far] = c
				counts[c] = 1
				shift += 1
				continue
			}
			for d := range next[c] {
				next[c][d] /= float64(counts[c])
			}
			shift += euclidean(centroids[c], next[c])
		}
		centroids = next

		if shift < kmeansTolerance {
			break
		}
	}

	for i, point := range matrix {
		assignments[i] = nearestCentroid(point, centroids)
	}
	return assignments
}

// initCentroids is k-means++ seeding: spread initial centroids out by
// sampling proportionally to squared distance from the nearest chosen one.
func initCentroids(matrix [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(matrix)
	centroids := make([][]float64, 0, k)
	centroids = append(centroids, append([]float64(nil), matrix[rng.Intn(n)]...))

	dists := make([]float64, n)
	for len(centroids) < k {
		total := 0.0
		for i, point := range matrix {
			d := math.Inf(1)
			for _, c := range centroids {
				if dd := squaredDistance(point, c); dd < d {
					d = dd
				}
			}
			dists[i] = d
			total += d
		}

		if total == 0 {
			centroids = append(centroids, append([]float64(nil), matrix[rng.Intn(n)]...))
			continue
		}

		target := rng.Float64() * total
		acc := 0.0
		chosen := n - 1
		for i, d := range dists {
			acc += d
			if acc >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, append([]float64(nil), matrix[chosen]...))
	}

	return centroids
}

func nearestCentroid(point []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := squaredDistance(point, centroid); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

func farthestPoint(matrix, centroids [][]float64, assignments []int, skip map[int]bool) int {
	far, farDist := 0, -1.0
	for i, point := range matrix {
		if skip[i] {
			continue
		}
		d := squaredDistance(point, centroids[assignments[i]])
		if d > farDist {
			far, farDist = i, d
		}
	}
	return far
}

func squaredDistance(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func euclidean(a, b []float64) float64 {
	return math.Sqrt(squaredDistance(a, b))
}

// silhouetteScore is the mean silhouette coefficient over all points: how
// much closer each point sits to its own cluster than to the nearest other
// one, in [-1, 1].
func silhouetteScore(matrix [][]float64, assignments []int, k int) float64 {
	n := len(matrix)
	if n == 0 || k < 2 {
		return 0
	}

	sizes := make([]int, k)
	for _, c := range assignments {
		sizes[c]++
	}

	var total float64
	var counted int
	for i, point := range matrix {
		own := assignments[i]
		if sizes[own] <= 1 {
			// Singleton clusters contribute zero by convention.
			counted++
			continue
		}

		sums := make([]float64, k)
		for j, other := range matrix {
			if i == j {
				continue
			}
			sums[assignments[j]] += euclidean(point, other)
		}

		a := sums[own] / float64(sizes[own]-1)
		b := math.Inf(1)
		for c := 0; c < k; c++ {
			if c == own || sizes[c] == 0 {
				continue
			}
			if mean := sums[c] / float64(sizes[c]); mean < b {
				b = mean
			}
		}

		if math.IsInf(b, 1) {
			counted++
			continue
		}

		denom := math.Max(a, b)
		if denom > 0 {
			total += (b - a) / denom
		}
		counted++
	}

	if counted == 0 {
		return 0
	}
	return total / float64(counted)
}
