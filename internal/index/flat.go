package index

import (
	"container/heap"
)

// flatBackend scans every vector. Exact, and fast enough below the
// optimization threshold.
type flatBackend struct {
	vectors [][]float32
}

func newFlat() *flatBackend {
	return &flatBackend{}
}

func (f *flatBackend) name() string { return "flat" }

func (f *flatBackend) rebuild(vectors [][]float32) {
	f.vectors = vectors
}

func (f *flatBackend) add(id int, vector []float32) {
	// Keep the slice aliased to the index's vector storage.
	if id == len(f.vectors) {
		f.vectors = append(f.vectors, vector)
	}
}

func (f *flatBackend) search(query []float32, k int) []scored {
	return topK(query, f.vectors, candidateAll(len(f.vectors)), k)
}

// candidateAll enumerates 0..n-1 without materializing a slice.
type candidateAll int

func (c candidateAll) visit(fn func(id int)) {
	for i := 0; i < int(c); i++ {
		fn(i)
	}
}

type candidateList []int

func (c candidateList) visit(fn func(id int)) {
	for _, id := range c {
		fn(id)
	}
}

type candidateSource interface {
	visit(func(id int))
}

// scoredHeap is a min-heap over scores, keeping the best k seen so far.
type scoredHeap []scored

func (h scoredHeap) Len() int            { return len(h) }
func (h scoredHeap) Less(i, j int) bool  { return h[i].score < h[j].score }
func (h scoredHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x interface{}) { *h = append(*h, x.(scored)) }
func (h *scoredHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// topK scores the candidate set against query and returns the best k,
// highest score first.
func topK(query []float32, vectors [][]float32, candidates candidateSource, k int) []scored {
	if k <= 0 {
		return nil
	}

	h := make(scoredHeap, 0, k+1)
	candidates.visit(func(id int) {
		s := scored{id: id, score: dot(query, vectors[id])}
		if len(h) < k {
			heap.Push(&h, s)
			return
		}
		if s.score > h[0].score {
			h[0] = s
			heap.Fix(&h, 0)
		}
	})

	out := make([]scored, len(h))
	for i := len(h) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&h).(scored)
	}
	return out
}
