package robust

import "strings"

// Method selects the robust estimation algorithm variant.
type Method int

const (
	// RANSAC maximizes the inlier count under a fixed residual threshold.
	RANSAC Method = iota
	// LMedS minimizes the median squared residual; threshold-free.
	LMedS
	// MSAC minimizes a threshold-saturated squared-residual cost.
	MSAC
	// PROSAC scores like RANSAC but biases sampling toward
	// high-quality correspondences through a growing pool.
	PROSAC
	// PROMedS scores like LMedS with PROSAC's quality-ordered sampling.
	PROMedS
)

func (m Method) String() string {
	switch m {
	case RANSAC:
		return "RANSAC"
	case LMedS:
		return "LMedS"
	case MSAC:
		return "MSAC"
	case PROSAC:
		return "PROSAC"
	case PROMedS:
		return "PROMedS"
	}
	return "unknown"
}

// NeedsQualityScores reports whether the method requires a per-correspondence
// quality score sequence before estimation can start.
func (m Method) NeedsQualityScores() bool {
	return m == PROSAC || m == PROMedS
}

// thresholdBased reports whether the method classifies inliers against a
// fixed residual threshold and drives the adaptive iteration bound from the
// observed inlier ratio. The median-based methods instead use StopThreshold
// for early termination.
func (m Method) thresholdBased() bool {
	return m == RANSAC || m == MSAC || m == PROSAC
}

// ParseMethod maps a name such as "ransac" or "PROMedS" to its Method.
func ParseMethod(name string) (Method, bool) {
	switch {
	case strings.EqualFold(name, "RANSAC"):
		return RANSAC, true
	case strings.EqualFold(name, "LMedS"):
		return LMedS, true
	case strings.EqualFold(name, "MSAC"):
		return MSAC, true
	case strings.EqualFold(name, "PROSAC"):
		return PROSAC, true
	case strings.EqualFold(name, "PROMedS"):
		return PROMedS, true
	}
	return RANSAC, false
}
