package robust

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Defaults shared by every method. Threshold defaults are deliberately
// conservative; real callers tune them to their measurement units.
const (
	DefaultThreshold      = 1.0
	DefaultStopThreshold  = 1e-3
	DefaultConfidence     = 0.99
	DefaultMaxIterations  = 5000
	DefaultProgressDelta  = 0.05
	DefaultMinSuggestionW = 0.1
	DefaultMaxSuggestionW = 2.0
	DefaultSuggestionStep = 2.0
)

// degenerateRetryFactor bounds silent retries of degenerate samples: the
// engine gives up with ErrEstimationFailed after
// degenerateRetryFactor × MaxIterations failed fits in a row with no
// candidate ever produced.
const degenerateRetryFactor = 10

// Settings holds every tunable of the estimation engine. Zero value is not
// usable; start from DefaultSettings. All fields are validated again by the
// estimator's setters, so a hand-built Settings goes through Validate
// before use.
type Settings struct {
	// Threshold classifies inliers for RANSAC/MSAC/PROSAC. Residuals
	// strictly below it count as inliers. Must be > 0.
	Threshold float64 `yaml:"threshold"`

	// StopThreshold terminates LMedS/PROMedS early once the best median
	// residual drops below it. Must be > 0.
	StopThreshold float64 `yaml:"stopThreshold"`

	// Confidence is the target probability that at least one sample was
	// outlier-free; drives the adaptive iteration bound. In (0, 1).
	Confidence float64 `yaml:"confidence"`

	// MaxIterations caps the loop regardless of the adaptive bound. >= 1.
	MaxIterations int `yaml:"maxIterations"`

	// ProgressDelta throttles ProgressChanged events: one fires only after
	// progress advanced by at least this fraction. In [0, 1].
	ProgressDelta float64 `yaml:"progressDelta"`

	// Refine runs the adapter's local refinement on the best model.
	Refine bool `yaml:"refine"`
	// KeepCovariance retains the refined model's parameter covariance.
	KeepCovariance bool `yaml:"keepCovariance"`
	// KeepInliers retains the consensus set's indices in the outcome.
	KeepInliers bool `yaml:"keepInliers"`
	// KeepResiduals retains the full residual vector in the outcome.
	KeepResiduals bool `yaml:"keepResiduals"`

	// CountDegenerate makes degenerate samples consume iteration budget.
	// When false a degenerate fit is retried without advancing the
	// iteration counter, bounded by an internal retry safeguard.
	CountDegenerate bool `yaml:"countDegenerate"`

	// Suggestion-weight sweep for adapters implementing SuggestionRefiner:
	// refinement is repeated with the deviation penalty scaled from
	// MinSuggestionWeight up to MaxSuggestionWeight, multiplying by
	// SuggestionWeightStep each round. Step must be > 1.
	MinSuggestionWeight  float64 `yaml:"minSuggestionWeight"`
	MaxSuggestionWeight  float64 `yaml:"maxSuggestionWeight"`
	SuggestionWeightStep float64 `yaml:"suggestionWeightStep"`
}

// DefaultSettings returns the engine defaults.
func DefaultSettings() Settings {
	return Settings{
		Threshold:            DefaultThreshold,
		StopThreshold:        DefaultStopThreshold,
		Confidence:           DefaultConfidence,
		MaxIterations:        DefaultMaxIterations,
		ProgressDelta:        DefaultProgressDelta,
		MinSuggestionWeight:  DefaultMinSuggestionW,
		MaxSuggestionWeight:  DefaultMaxSuggestionW,
		SuggestionWeightStep: DefaultSuggestionStep,
	}
}

// Validate checks every field range. It returns the first violation
// wrapped around ErrInvalidSetting.
func (s Settings) Validate() error {
	if s.Threshold <= 0 {
		return fmt.Errorf("%w: threshold must be > 0, got %v", ErrInvalidSetting, s.Threshold)
	}
	if s.StopThreshold <= 0 {
		return fmt.Errorf("%w: stopThreshold must be > 0, got %v", ErrInvalidSetting, s.StopThreshold)
	}
	if s.Confidence <= 0 || s.Confidence >= 1 {
		return fmt.Errorf("%w: confidence must be in (0, 1), got %v", ErrInvalidSetting, s.Confidence)
	}
	if s.MaxIterations < 1 {
		return fmt.Errorf("%w: maxIterations must be >= 1, got %d", ErrInvalidSetting, s.MaxIterations)
	}
	if s.ProgressDelta < 0 || s.ProgressDelta > 1 {
		return fmt.Errorf("%w: progressDelta must be in [0, 1], got %v", ErrInvalidSetting, s.ProgressDelta)
	}
	if s.MinSuggestionWeight <= 0 || s.MaxSuggestionWeight < s.MinSuggestionWeight {
		return fmt.Errorf("%w: suggestion weights must satisfy 0 < min <= max, got min=%v max=%v",
			ErrInvalidSetting, s.MinSuggestionWeight, s.MaxSuggestionWeight)
	}
	if s.SuggestionWeightStep <= 1 {
		return fmt.Errorf("%w: suggestionWeightStep must be > 1, got %v", ErrInvalidSetting, s.SuggestionWeightStep)
	}
	return nil
}

// LoadSettings reads a YAML settings file and validates it. Fields omitted
// from the file keep their defaults, so partial files are safe.
func LoadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("settings file not found: %s", path)
		}
		return nil, fmt.Errorf("reading settings file: %w", err)
	}

	s := DefaultSettings()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing settings YAML: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// SaveSettings writes the settings to a YAML file.
func SaveSettings(path string, s *Settings) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling settings YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing settings file: %w", err)
	}
	return nil
}
