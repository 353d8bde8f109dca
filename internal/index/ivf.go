package index

import (
	"math/rand"
)

const (
	kmeansIterations = 10
	minProbes        = 4
	maxProbes        = 64
)

// ivfBackend partitions vectors into cells around k-means centroids and only
// scans the cells whose centroids score best against the query. Approximate:
// recall trades against the probe count.
type ivfBackend struct {
	dim       int
	cells     int
	probes    int
	centroids [][]float32
	lists     [][]int
	vectors   [][]float32
}

func newIVF(dim, cells int) *ivfBackend {
	probes := cells / 32
	if probes < minProbes {
		probes = minProbes
	}
	if probes > maxProbes {
		probes = maxProbes
	}
	if probes > cells {
		probes = cells
	}

	return &ivfBackend{
		dim:    dim,
		cells:  cells,
		probes: probes,
	}
}

func (f *ivfBackend) name() string { return "ivf" }

func (f *ivfBackend) rebuild(vectors [][]float32) {
	f.vectors = vectors
	if len(vectors) == 0 {
		f.centroids = nil
		f.lists = nil
		return
	}

	f.train(vectors)

	f.lists = make([][]int, len(f.centroids))
	for id, vec := range vectors {
		cell := f.nearestCell(vec)
		f.lists[cell] = append(f.lists[cell], id)
	}
}

func (f *ivfBackend) add(id int, vector []float32) {
	if id == len(f.vectors) {
		f.vectors = append(f.vectors, vector)
	}
	if len(f.centroids) == 0 {
		return
	}
	cell := f.nearestCell(vector)
	f.lists[cell] = append(f.lists[cell], id)
}

func (f *ivfBackend) search(query []float32, k int) []scored {
	if len(f.centroids) == 0 {
		return topK(query, f.vectors, candidateAll(len(f.vectors)), k)
	}

	cells := topK(query, f.centroids, candidateAll(len(f.centroids)), f.probes)

	var candidates candidateList
	for _, cell := range cells {
		candidates = append(candidates, f.lists[cell.id]...)
	}
	return topK(query, f.vectors, candidates, k)
}

// train runs Lloyd's iterations with a fixed seed so that rebuilds are
// reproducible across restarts.
func (f *ivfBackend) train(vectors [][]float32) {
	cells := f.cells
	if cells > len(vectors) {
		cells = len(vectors)
	}

	rng := rand.New(rand.NewSource(42))
	perm := rng.Perm(len(vectors))

	f.centroids = make([][]float32, cells)
	for i := 0; i < cells; i++ {
		centroid := make([]float32, f.dim)
		copy(centroid, vectors[perm[i]])
		f.centroids[i] = centroid
	}

	assignments := make([]int, len(vectors))
	for iter := 0; iter < kmeansIterations; iter++ {
		changed := false
		for id, vec := range vectors {
			cell := f.nearestCell(vec)
			if assignments[id] != cell {
				assignments[id] = cell
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		sums := make([][]float32, cells)
		counts := make([]int, cells)
		for i := range sums {
			sums[i] = make([]float32, f.dim)
		}
		for id, vec := range vectors {
			cell := assignments[id]
			counts[cell]++
			for d, v := range vec {
				sums[cell][d] += v
			}
		}
		for i := 0; i < cells; i++ {
			if counts[i] == 0 {
				// Reseed empty cells from a random vector.
				copy(f.centroids[i], vectors[rng.Intn(len(vectors))])
				continue
			}
			inv := 1.0 / float32(counts[i])
			for d := range f.centroids[i] {
				f.centroids[i][d] = sums[i][d] * inv
			}
		}
	}
}

func (f *ivfBackend) nearestCell(vec []float32) int {
	best, bestScore := 0, float32(-1<<30)
	for i, centroid := range f.centroids {
		if s := dot(vec, centroid); s > bestScore {
			best, bestScore = i, s
		}
	}
	return best
}
