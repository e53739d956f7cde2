package fit

import (
	"math"
	"math/rand"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kwv/robustfit/robust"
)

func onCircle(c Circle, theta float64) orb.Point {
	return orb.Point{
		c.Center[0] + c.Radius*math.Cos(theta),
		c.Center[1] + c.Radius*math.Sin(theta),
	}
}

func circleScene(c Circle, n int, outlierFrac, sigma float64, rng *rand.Rand) (points []orb.Point, outlier []bool) {
	points = make([]orb.Point, n)
	outlier = make([]bool, n)
	for i := 0; i < n; i++ {
		points[i] = onCircle(c, 2*math.Pi*float64(i)/float64(n))
	}
	for _, i := range rng.Perm(n)[:int(float64(n)*outlierFrac)] {
		points[i][0] += rng.NormFloat64() * sigma
		points[i][1] += rng.NormFloat64() * sigma
		outlier[i] = true
	}
	return points, outlier
}

func TestCircleFitExact(t *testing.T) {
	truth := Circle{Center: orb.Point{3, -2}, Radius: 5}
	sample := []orb.Point{
		onCircle(truth, 0.3),
		onCircle(truth, 1.9),
		onCircle(truth, 4.4),
	}

	models, err := CircleAdapter{}.Fit(sample)
	require.NoError(t, err)
	require.Len(t, models, 1)

	got := models[0]
	assert.InDelta(t, truth.Center[0], got.Center[0], 1e-9)
	assert.InDelta(t, truth.Center[1], got.Center[1], 1e-9)
	assert.InDelta(t, truth.Radius, got.Radius, 1e-9)
}

func TestCircleFitCollinear(t *testing.T) {
	sample := []orb.Point{{0, 0}, {1, 1}, {2, 2}}
	_, err := CircleAdapter{}.Fit(sample)
	require.ErrorIs(t, err, robust.ErrDegenerateSample)
}

func TestCircleResidual(t *testing.T) {
	c := Circle{Center: orb.Point{0, 0}, Radius: 2}
	assert.InDelta(t, 0.0, c.Residual(orb.Point{2, 0}), 1e-15)
	assert.InDelta(t, 1.0, c.Residual(orb.Point{3, 0}), 1e-15)
	assert.InDelta(t, 2.0, c.Residual(orb.Point{0, 0}), 1e-15)
	assert.True(t, c.Contains(orb.Point{0, 2}, 1e-12))
}

// TestCircleMSACScenario is the end-to-end outlier scenario: hundreds of
// exact circle points with a fifth replaced by Gaussian-perturbed
// outliers, estimated via MSAC with a tight threshold. Every untouched
// point must sit on the recovered locus within 1e-6.
func TestCircleMSACScenario(t *testing.T) {
	truth := Circle{Center: orb.Point{12.5, -4}, Radius: 7.5}
	rng := rand.New(rand.NewSource(99))
	points, outlier := circleScene(truth, 800, 0.2, 1.0, rng)

	settings := robust.DefaultSettings()
	settings.Threshold = 1e-7
	settings.KeepInliers = true
	settings.KeepResiduals = true

	var starts, ends, iterations int
	listener := &robust.ListenerFuncs{
		OnStart:     func() { starts++ },
		OnEnd:       func() { ends++ },
		OnIteration: func(int) { iterations++ },
	}

	est, err := robust.New[Circle, orb.Point](robust.MSAC, CircleAdapter{},
		robust.WithSettings(settings),
		robust.WithRand(rng),
		robust.WithListener(listener),
	)
	require.NoError(t, err)
	require.NoError(t, est.SetData(points))

	outcome, err := est.Estimate()
	require.NoError(t, err)

	for i, p := range points {
		if outlier[i] {
			continue
		}
		assert.Less(t, outcome.Model.Residual(p), 1e-6,
			"original point %d must lie on the recovered circle", i)
	}
	assert.Equal(t, 1, starts)
	assert.Equal(t, 1, ends)
	assert.GreaterOrEqual(t, iterations, 1)
	assert.Equal(t, iterations, outcome.Iterations)
	assert.GreaterOrEqual(t, outcome.NumInliers, 640)
}

func TestCircleRefineImprovesNoisyFit(t *testing.T) {
	truth := Circle{Center: orb.Point{-1, 4}, Radius: 3}
	rng := rand.New(rand.NewSource(21))

	// Slightly noisy points all around the circle.
	n := 120
	points := make([]orb.Point, n)
	for i := range points {
		p := onCircle(truth, 2*math.Pi*float64(i)/float64(n))
		points[i] = orb.Point{p[0] + rng.NormFloat64()*0.01, p[1] + rng.NormFloat64()*0.01}
	}

	// Start from a deliberately biased model.
	rough := Circle{Center: orb.Point{-0.9, 4.1}, Radius: 2.9}
	inliers := make([]int, n)
	weights := make([]float64, n)
	for i := range inliers {
		inliers[i] = i
		weights[i] = 1
	}

	refined, cov, err := CircleAdapter{}.Refine(rough, points, inliers, weights)
	require.NoError(t, err)
	require.NotNil(t, cov)
	assert.Equal(t, 3, cov.SymmetricDim())

	assert.Less(t, Distance(refined.Center, truth.Center), 0.01)
	assert.InDelta(t, truth.Radius, refined.Radius, 0.01)

	// The covariance should be tiny and positive on the diagonal.
	for i := 0; i < 3; i++ {
		assert.Greater(t, cov.At(i, i), 0.0)
		assert.Less(t, cov.At(i, i), 1e-3)
	}
}

func TestCircleSuggestedRadiusBias(t *testing.T) {
	truth := Circle{Center: orb.Point{0, 0}, Radius: 10}
	n := 50
	points := make([]orb.Point, n)
	for i := range points {
		points[i] = onCircle(truth, 2*math.Pi*float64(i)/float64(n))
	}
	inliers := make([]int, n)
	weights := make([]float64, n)
	for i := range inliers {
		inliers[i] = i
		weights[i] = 1
	}

	adapter := CircleAdapter{SuggestedRadius: 12, HasSuggestion: true}

	// A feeble suggestion barely moves an exact fit; a massive one drags
	// the radius toward the suggested value.
	weak, _, err := adapter.RefineWithSuggestion(truth, points, inliers, weights, 1e-9)
	require.NoError(t, err)
	strong, _, err := adapter.RefineWithSuggestion(truth, points, inliers, weights, 1e9)
	require.NoError(t, err)

	assert.InDelta(t, 10.0, weak.Radius, 1e-6)
	assert.Greater(t, strong.Radius, weak.Radius)
}

func TestCircleEstimatorWithRefinement(t *testing.T) {
	truth := Circle{Center: orb.Point{5, 5}, Radius: 2}
	rng := rand.New(rand.NewSource(4))
	points, _ := circleScene(truth, 300, 0.15, 2.0, rng)

	settings := robust.DefaultSettings()
	settings.Threshold = 1e-6
	settings.Refine = true
	settings.KeepCovariance = true
	settings.KeepInliers = true

	est, err := robust.New[Circle, orb.Point](robust.RANSAC, CircleAdapter{},
		robust.WithSettings(settings), robust.WithRand(rng))
	require.NoError(t, err)
	require.NoError(t, est.SetData(points))

	outcome, err := est.Estimate()
	require.NoError(t, err)
	require.NotNil(t, outcome.Covariance)

	assert.Less(t, Distance(outcome.Model.Center, truth.Center), 1e-6)
	assert.InDelta(t, truth.Radius, outcome.Model.Radius, 1e-6)
}
