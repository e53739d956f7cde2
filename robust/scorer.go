package robust

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// consensus is the evaluation of one candidate model against the full
// correspondence set. Which fields are meaningful depends on the scorer;
// better() defines the ordering.
type consensus struct {
	inliers    []int
	residuals  []float64
	numInliers int
	cost       float64 // MSAC truncated cost or LMedS median squared residual
	sum        float64 // residual sum, RANSAC tie-break
}

// scorer evaluates candidate models and orders them. better must implement
// a strict ordering: equal scores keep the incumbent.
type scorer interface {
	evaluate(residuals []float64) consensus
	better(candidate, incumbent consensus) bool
	// stop reports whether the best consensus is good enough to terminate
	// early. Only the median-based scorers ever return true.
	stop(best consensus) bool
}

// ransacScorer maximizes the inlier count under a fixed threshold, breaking
// ties by the lower total residual.
type ransacScorer struct {
	threshold float64
}

func (s ransacScorer) evaluate(residuals []float64) consensus {
	c := consensus{residuals: residuals}
	for i, r := range residuals {
		c.sum += r
		if r < s.threshold {
			c.inliers = append(c.inliers, i)
		}
	}
	c.numInliers = len(c.inliers)
	return c
}

func (s ransacScorer) better(candidate, incumbent consensus) bool {
	if candidate.numInliers != incumbent.numInliers {
		return candidate.numInliers > incumbent.numInliers
	}
	return candidate.sum < incumbent.sum
}

func (s ransacScorer) stop(consensus) bool { return false }

// msacScorer minimizes the threshold-saturated squared-residual cost.
type msacScorer struct {
	threshold float64
}

func (s msacScorer) evaluate(residuals []float64) consensus {
	c := consensus{residuals: residuals}
	t2 := s.threshold * s.threshold
	for i, r := range residuals {
		r2 := r * r
		if r < s.threshold {
			c.cost += r2
			c.inliers = append(c.inliers, i)
		} else {
			c.cost += t2
		}
	}
	c.numInliers = len(c.inliers)
	return c
}

func (s msacScorer) better(candidate, incumbent consensus) bool {
	return candidate.cost < incumbent.cost
}

func (s msacScorer) stop(consensus) bool { return false }

// lmedsScorer minimizes the median squared residual. Inliers are
// classified post-hoc against a robust scale estimate derived from the
// median (Rousseeuw's finite-sample corrected MAD), and the stop condition
// fires once the median residual drops below stopThreshold.
type lmedsScorer struct {
	stopThreshold float64
	sampleSize    int
	scratch       []float64
}

// inlierSigmaFactor classifies a residual as inlier when it is within this
// many robust standard deviations.
const inlierSigmaFactor = 2.5

func (s *lmedsScorer) evaluate(residuals []float64) consensus {
	c := consensus{residuals: residuals}
	n := len(residuals)

	if cap(s.scratch) < n {
		s.scratch = make([]float64, n)
	}
	sq := s.scratch[:n]
	for i, r := range residuals {
		sq[i] = r * r
	}
	sort.Float64s(sq)
	c.cost = stat.Quantile(0.5, stat.Empirical, sq, nil)

	// Finite-sample corrected robust scale (Rousseeuw & Leroy).
	correction := 1.0
	if n > s.sampleSize {
		correction = 1 + 5/float64(n-s.sampleSize)
	}
	sigma := 1.4826 * correction * math.Sqrt(c.cost)
	gate := inlierSigmaFactor * sigma

	for i, r := range residuals {
		if r <= gate {
			c.inliers = append(c.inliers, i)
		}
	}
	c.numInliers = len(c.inliers)
	return c
}

func (s *lmedsScorer) better(candidate, incumbent consensus) bool {
	return candidate.cost < incumbent.cost
}

func (s *lmedsScorer) stop(best consensus) bool {
	return best.cost < s.stopThreshold*s.stopThreshold
}

// newScorer builds the scoring rule for a method. PROSAC shares RANSAC's
// rule, PROMedS shares LMedS's; only the sampling order differs.
func newScorer(m Method, s Settings, sampleSize int) scorer {
	switch m {
	case RANSAC, PROSAC:
		return ransacScorer{threshold: s.Threshold}
	case MSAC:
		return msacScorer{threshold: s.Threshold}
	default:
		return &lmedsScorer{stopThreshold: s.StopThreshold, sampleSize: sampleSize}
	}
}
