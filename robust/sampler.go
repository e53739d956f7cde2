package robust

import (
	"math/rand"
	"sort"
)

// sampler draws one minimal-size index subset per call. Implementations
// are stateful across draws (PROSAC grows its pool) but draws never repeat
// an index within a single subset.
type sampler interface {
	next(dst []int)
}

// uniformSampler draws k distinct indices uniformly from [0, n) using a
// partial Fisher-Yates shuffle over a reusable index slice.
type uniformSampler struct {
	rng  *rand.Rand
	idx  []int
	size int
}

func newUniformSampler(n, k int, rng *rand.Rand) *uniformSampler {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return &uniformSampler{rng: rng, idx: idx, size: k}
}

func (s *uniformSampler) next(dst []int) {
	n := len(s.idx)
	for i := 0; i < s.size; i++ {
		j := i + s.rng.Intn(n-i)
		s.idx[i], s.idx[j] = s.idx[j], s.idx[i]
		dst[i] = s.idx[i]
	}
}

// prosacSampler implements the PROSAC growth schedule: correspondences are
// ranked descending by quality once, and iteration t draws from a prefix
// pool of size n(t) that starts at the minimal sample size and grows toward
// the full set. While the schedule is active, each draw takes k-1 indices
// from the first n-1 ranks plus the nth rank itself, so newly admitted
// correspondences are exercised immediately. Once the schedule is
// exhausted the sampler degrades to uniform draws over the full set,
// preserving RANSAC's asymptotic behaviour.
type prosacSampler struct {
	rng    *rand.Rand
	ranked []int // indices sorted by descending quality score
	k      int

	t       int     // draws issued so far
	n       int     // current pool size
	tn      float64 // T_n from the growth recurrence
	tnp     int     // T'_n, the integer draw count at which the pool grows
	scratch []int
}

func newProsacSampler(quality []float64, k, maxIterations int, rng *rand.Rand) *prosacSampler {
	ranked := make([]int, len(quality))
	for i := range ranked {
		ranked[i] = i
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return quality[ranked[a]] > quality[ranked[b]]
	})

	s := &prosacSampler{
		rng:     rng,
		ranked:  ranked,
		k:       k,
		n:       k,
		tnp:     1,
		scratch: make([]int, len(ranked)),
	}
	// T_k: expected draws containing only the k top-ranked correspondences
	// out of T_N total draws, per the PROSAC growth recurrence.
	tn := float64(maxIterations)
	for i := 0; i < k; i++ {
		tn *= float64(k-i) / float64(len(ranked)-i)
	}
	s.tn = tn
	return s
}

// grow advances the pool size following T'_{n+1} = T'_n + ceil(T_{n+1} - T_n).
func (s *prosacSampler) grow() {
	for s.t > s.tnp && s.n < len(s.ranked) {
		tnNext := s.tn * float64(s.n+1) / float64(s.n+1-s.k)
		s.tnp += int(tnNext-s.tn) + 1
		s.tn = tnNext
		s.n++
	}
}

func (s *prosacSampler) next(dst []int) {
	s.t++
	s.grow()

	if s.n >= len(s.ranked) && s.t > s.tnp {
		// Schedule exhausted: plain uniform draw over the full set.
		s.draw(dst, s.k, s.n)
		return
	}

	// k-1 from the first n-1 ranks, plus the nth rank.
	s.draw(dst[:s.k-1], s.k-1, s.n-1)
	dst[s.k-1] = s.ranked[s.n-1]
}

// draw fills dst with k distinct ranked indices chosen uniformly from the
// first pool ranks.
func (s *prosacSampler) draw(dst []int, k, pool int) {
	scratch := s.scratch[:pool]
	for i := 0; i < pool; i++ {
		scratch[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + s.rng.Intn(pool-i)
		scratch[i], scratch[j] = scratch[j], scratch[i]
		dst[i] = s.ranked[scratch[i]]
	}
}
