package robust

import "math"

// requiredIterations computes the number of iterations needed to draw at
// least one outlier-free minimal sample with the given confidence, from
// the best observed inlier ratio:
//
//	N = log(1-confidence) / log(1 - ratio^k)
//
// clamped to [1, maxIterations]. A zero ratio yields maxIterations; a
// ratio of 1 yields 1.
func requiredIterations(confidence float64, sampleSize int, inlierRatio float64, maxIterations int) int {
	if inlierRatio <= 0 {
		return maxIterations
	}
	if inlierRatio > 1 {
		inlierRatio = 1
	}
	pk := math.Pow(inlierRatio, float64(sampleSize))
	if pk >= 1 {
		return 1
	}
	denom := math.Log(1 - pk)
	if denom == 0 {
		return maxIterations
	}
	n := math.Log(1-confidence) / denom
	if math.IsNaN(n) || n >= float64(maxIterations) {
		return maxIterations
	}
	if n < 1 {
		return 1
	}
	return int(math.Ceil(n))
}

// progressTracker throttles ProgressChanged emissions: report returns a
// non-negative progress fraction only when it has advanced by at least
// delta since the last emission, and -1 otherwise.
type progressTracker struct {
	delta float64
	last  float64
}

func (p *progressTracker) report(iter, required int) float64 {
	progress := float64(iter) / float64(required)
	if progress > 1 {
		progress = 1
	}
	if progress-p.last < p.delta {
		return -1
	}
	p.last = progress
	return progress
}
