// Package robust implements a generic robust model-estimation engine:
// RANSAC, MSAC, LMedS, PROSAC and PROMedS over interchangeable model
// adapters. The engine owns sampling, consensus scoring, adaptive
// iteration control, best-model tracking, optional refinement and the
// locked/idle lifecycle; adapters supply the minimal-sample solvers and
// residual functions for each geometric model family.
package robust

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Estimator fits a model of type M to correspondences of type C that are
// contaminated by outliers. Data and settings are mutable only while idle;
// Estimate locks the estimator for its full duration, including listener
// callbacks, and unlocks on every exit path.
type Estimator[M, C any] struct {
	adapter Adapter[M, C]
	method  Method

	mu       sync.Mutex
	locked   bool
	settings Settings
	data     []C
	quality  []float64 // nil means absent, distinct from empty
	listener Listener
	rng      *rand.Rand
}

// Option configures a new Estimator.
type Option func(*options)

type options struct {
	settings Settings
	rng      *rand.Rand
	listener Listener
}

// WithSettings replaces the default settings. Invalid settings surface as
// an error from New.
func WithSettings(s Settings) Option {
	return func(o *options) { o.settings = s }
}

// WithRand injects the random source used for sampling. Tests use a
// fixed-seed source for determinism.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

// WithListener registers the progress listener at construction.
func WithListener(l Listener) Option {
	return func(o *options) { o.listener = l }
}

// New builds an estimator for the given method and adapter.
func New[M, C any](method Method, adapter Adapter[M, C], optFns ...Option) (*Estimator[M, C], error) {
	if adapter == nil {
		return nil, fmt.Errorf("%w: adapter must not be nil", ErrInvalidSetting)
	}
	if adapter.SampleSize() < 1 {
		return nil, fmt.Errorf("%w: adapter sample size must be >= 1, got %d",
			ErrInvalidSetting, adapter.SampleSize())
	}
	o := options{settings: DefaultSettings()}
	for _, fn := range optFns {
		fn(&o)
	}
	if err := o.settings.Validate(); err != nil {
		return nil, err
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Estimator[M, C]{
		adapter:  adapter,
		method:   method,
		settings: o.settings,
		listener: o.listener,
		rng:      o.rng,
	}, nil
}

// Method returns the estimation variant this estimator runs.
func (e *Estimator[M, C]) Method() Method { return e.method }

// IsLocked reports whether an Estimate call is in progress.
func (e *Estimator[M, C]) IsLocked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.locked
}

// IsReady reports whether Estimate can run: enough correspondences for a
// minimal sample, and quality scores present when the method needs them.
func (e *Estimator[M, C]) IsReady() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.readyLocked()
}

func (e *Estimator[M, C]) readyLocked() bool {
	if len(e.data) < e.adapter.SampleSize() {
		return false
	}
	if e.method.NeedsQualityScores() && e.quality == nil {
		return false
	}
	return e.quality == nil || len(e.quality) == len(e.data)
}

// Settings returns a copy of the current settings.
func (e *Estimator[M, C]) Settings() Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// Data returns the stored correspondence sequence.
func (e *Estimator[M, C]) Data() []C {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data
}

// QualityScores returns the stored quality scores, or nil when absent.
func (e *Estimator[M, C]) QualityScores() []float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.quality
}

// SetData replaces the correspondence sequence. The sequence must at least
// cover one minimal sample; on error the previous data is kept. Quality
// scores, if present, must be reset or replaced to match.
func (e *Estimator[M, C]) SetData(data []C) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locked {
		return ErrLocked
	}
	if len(data) < e.adapter.SampleSize() {
		return fmt.Errorf("%w: need at least %d correspondences, got %d",
			ErrInvalidSetting, e.adapter.SampleSize(), len(data))
	}
	e.data = data
	return nil
}

// SetQualityScores stores per-correspondence quality scores for
// PROSAC/PROMedS. Pass nil to clear. A non-nil slice must match the data
// length.
func (e *Estimator[M, C]) SetQualityScores(scores []float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locked {
		return ErrLocked
	}
	if scores != nil && len(scores) != len(e.data) {
		return fmt.Errorf("%w: quality scores length %d does not match %d correspondences",
			ErrInvalidSetting, len(scores), len(e.data))
	}
	e.quality = scores
	return nil
}

// SetListener replaces the progress listener. Pass nil to remove it.
func (e *Estimator[M, C]) SetListener(l Listener) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locked {
		return ErrLocked
	}
	e.listener = l
	return nil
}

// SetThreshold sets the inlier classification threshold used by
// RANSAC/MSAC/PROSAC. Must be > 0.
func (e *Estimator[M, C]) SetThreshold(v float64) error {
	return e.mutate(func(s *Settings) error {
		if v <= 0 {
			return fmt.Errorf("%w: threshold must be > 0, got %v", ErrInvalidSetting, v)
		}
		s.Threshold = v
		return nil
	})
}

// SetStopThreshold sets the LMedS/PROMedS early-termination bound on the
// best median residual. Must be > 0.
func (e *Estimator[M, C]) SetStopThreshold(v float64) error {
	return e.mutate(func(s *Settings) error {
		if v <= 0 {
			return fmt.Errorf("%w: stopThreshold must be > 0, got %v", ErrInvalidSetting, v)
		}
		s.StopThreshold = v
		return nil
	})
}

// SetConfidence sets the target confidence driving the adaptive iteration
// bound. Must be strictly inside (0, 1).
func (e *Estimator[M, C]) SetConfidence(v float64) error {
	return e.mutate(func(s *Settings) error {
		if v <= 0 || v >= 1 {
			return fmt.Errorf("%w: confidence must be in (0, 1), got %v", ErrInvalidSetting, v)
		}
		s.Confidence = v
		return nil
	})
}

// SetMaxIterations caps the sampling loop. Must be >= 1.
func (e *Estimator[M, C]) SetMaxIterations(v int) error {
	return e.mutate(func(s *Settings) error {
		if v < 1 {
			return fmt.Errorf("%w: maxIterations must be >= 1, got %d", ErrInvalidSetting, v)
		}
		s.MaxIterations = v
		return nil
	})
}

// SetProgressDelta sets the minimum progress advance between
// ProgressChanged events. Must be in [0, 1].
func (e *Estimator[M, C]) SetProgressDelta(v float64) error {
	return e.mutate(func(s *Settings) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("%w: progressDelta must be in [0, 1], got %v", ErrInvalidSetting, v)
		}
		s.ProgressDelta = v
		return nil
	})
}

// SetRefine toggles local refinement of the best model.
func (e *Estimator[M, C]) SetRefine(v bool) error {
	return e.mutate(func(s *Settings) error { s.Refine = v; return nil })
}

// SetKeepCovariance toggles retention of the refined model's covariance.
func (e *Estimator[M, C]) SetKeepCovariance(v bool) error {
	return e.mutate(func(s *Settings) error { s.KeepCovariance = v; return nil })
}

// SetKeepInliers toggles retention of the consensus set indices.
func (e *Estimator[M, C]) SetKeepInliers(v bool) error {
	return e.mutate(func(s *Settings) error { s.KeepInliers = v; return nil })
}

// SetKeepResiduals toggles retention of the residual vector.
func (e *Estimator[M, C]) SetKeepResiduals(v bool) error {
	return e.mutate(func(s *Settings) error { s.KeepResiduals = v; return nil })
}

// SetCountDegenerate selects whether degenerate samples consume iteration
// budget.
func (e *Estimator[M, C]) SetCountDegenerate(v bool) error {
	return e.mutate(func(s *Settings) error { s.CountDegenerate = v; return nil })
}

func (e *Estimator[M, C]) mutate(fn func(*Settings) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.locked {
		return ErrLocked
	}
	return fn(&e.settings)
}

// Estimate runs the sampling loop and returns the best model. It locks the
// estimator for its full duration; the lock is released on every exit
// path, including panics out of adapter or listener code.
func (e *Estimator[M, C]) Estimate() (*Outcome[M], error) {
	e.mu.Lock()
	if e.locked {
		e.mu.Unlock()
		return nil, ErrLocked
	}
	if !e.readyLocked() {
		e.mu.Unlock()
		return nil, ErrNotReady
	}
	e.locked = true
	// Snapshot everything the loop reads so callbacks attempting mutation
	// cannot race the run even in principle.
	settings := e.settings
	data := e.data
	quality := e.quality
	listener := e.listener
	rng := e.rng
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.locked = false
		e.mu.Unlock()
	}()

	return e.run(settings, data, quality, listener, rng)
}

func (e *Estimator[M, C]) run(settings Settings, data []C, quality []float64, listener Listener, rng *rand.Rand) (*Outcome[M], error) {
	k := e.adapter.SampleSize()
	n := len(data)

	var smp sampler
	if e.method == PROSAC || e.method == PROMedS {
		smp = newProsacSampler(quality, k, settings.MaxIterations, rng)
	} else {
		smp = newUniformSampler(n, k, rng)
	}
	score := newScorer(e.method, settings, k)

	if listener != nil {
		listener.EstimateStart()
		defer listener.EstimateEnd()
	}

	var (
		best      consensus
		bestModel M
		haveBest  bool

		indices   = make([]int, k)
		sample    = make([]C, k)
		residuals = make([]float64, n)
	)
	progress := progressTracker{delta: settings.ProgressDelta}
	required := settings.MaxIterations
	iterations := 0
	retries := 0
	maxRetries := degenerateRetryFactor * settings.MaxIterations

	for iterations < required {
		smp.next(indices)
		for i, idx := range indices {
			sample[i] = data[idx]
		}

		models, err := e.adapter.Fit(sample)
		if err != nil || len(models) == 0 {
			// Degenerate sample: retry, optionally consuming budget.
			models = nil
			retries++
			if retries > maxRetries {
				break
			}
			if !settings.CountDegenerate {
				continue
			}
		}

		for _, model := range models {
			for i := range data {
				residuals[i] = e.adapter.Residual(model, data[i])
			}
			cand := score.evaluate(residuals)
			if haveBest && !score.better(cand, best) {
				continue
			}
			// New best: take ownership of the scratch-backed slices.
			cand.residuals = append([]float64(nil), residuals...)
			best = cand
			bestModel = model
			haveBest = true

			if e.method.thresholdBased() {
				ratio := float64(best.numInliers) / float64(n)
				if adaptive := requiredIterations(settings.Confidence, k, ratio, settings.MaxIterations); adaptive < required {
					required = adaptive
				}
			}
		}

		iterations++
		if listener != nil {
			listener.NextIteration(iterations)
			if p := progress.report(iterations, required); p >= 0 {
				listener.ProgressChanged(p)
			}
		}

		if haveBest && score.stop(best) {
			break
		}
	}

	if !haveBest {
		return nil, fmt.Errorf("%w: no valid model after %d iterations (%d degenerate samples)",
			ErrEstimationFailed, iterations, retries)
	}

	outcome := &Outcome[M]{
		Model:      bestModel,
		Iterations: iterations,
		NumInliers: best.numInliers,
	}
	if settings.KeepInliers {
		outcome.Inliers = best.inliers
	}
	if settings.KeepResiduals {
		outcome.Residuals = best.residuals
	}

	if settings.Refine {
		if err := e.refine(outcome, best, settings, data, quality); err != nil {
			return nil, err
		}
	}
	return outcome, nil
}

// refine runs the adapter's local refinement over the best consensus set,
// weighted by quality scores when present. Adapters that support
// suggestion biasing get the configured suggestion-weight sweep.
func (e *Estimator[M, C]) refine(outcome *Outcome[M], best consensus, settings Settings, data []C, quality []float64) error {
	refiner, ok := e.adapter.(Refiner[M, C])
	if !ok {
		return nil
	}

	weights := make([]float64, len(best.inliers))
	for i, idx := range best.inliers {
		if quality != nil {
			weights[i] = quality[idx]
		} else {
			weights[i] = 1
		}
	}

	var (
		model M
		cov   *mat.SymDense
		err   error
	)
	if sr, ok := e.adapter.(SuggestionRefiner[M, C]); ok {
		// Sweep the suggestion weight; each round starts from the previous
		// refined model so later, stronger penalties act as a continuation.
		model = outcome.Model
		for w := settings.MinSuggestionWeight; w <= settings.MaxSuggestionWeight; w *= settings.SuggestionWeightStep {
			model, cov, err = sr.RefineWithSuggestion(model, data, best.inliers, weights, w)
			if err != nil {
				break
			}
		}
	} else {
		model, cov, err = refiner.Refine(outcome.Model, data, best.inliers, weights)
	}
	if err != nil {
		return fmt.Errorf("%w: refinement did not converge: %v", ErrEstimationFailed, err)
	}

	outcome.Model = model
	if settings.KeepCovariance {
		outcome.Covariance = cov
	}
	return nil
}
