package robust

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Settings)
		wantOK bool
	}{
		{name: "defaults are valid", mutate: func(*Settings) {}, wantOK: true},
		{name: "zero threshold", mutate: func(s *Settings) { s.Threshold = 0 }},
		{name: "negative threshold", mutate: func(s *Settings) { s.Threshold = -1 }},
		{name: "zero stop threshold", mutate: func(s *Settings) { s.StopThreshold = 0 }},
		{name: "confidence zero", mutate: func(s *Settings) { s.Confidence = 0 }},
		{name: "confidence one", mutate: func(s *Settings) { s.Confidence = 1 }},
		{name: "zero iterations", mutate: func(s *Settings) { s.MaxIterations = 0 }},
		{name: "progress delta above one", mutate: func(s *Settings) { s.ProgressDelta = 1.1 }},
		{name: "negative progress delta", mutate: func(s *Settings) { s.ProgressDelta = -0.1 }},
		{name: "suggestion min above max", mutate: func(s *Settings) {
			s.MinSuggestionWeight = 3
			s.MaxSuggestionWeight = 2
		}},
		{name: "suggestion step not above one", mutate: func(s *Settings) { s.SuggestionWeightStep = 1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.mutate(&s)
			err := s.Validate()
			if tt.wantOK {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalidSetting)
			}
		})
	}
}

func TestSettingsYAMLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")

	s := DefaultSettings()
	s.Threshold = 0.125
	s.Confidence = 0.9
	s.MaxIterations = 321
	s.Refine = true
	s.KeepInliers = true

	require.NoError(t, SaveSettings(path, &s))

	loaded, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, s, *loaded)
}

func TestLoadSettingsPartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "partial.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threshold: 0.5\nmaxIterations: 42\n"), 0644))

	loaded, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, loaded.Threshold)
	assert.Equal(t, 42, loaded.MaxIterations)
	assert.Equal(t, DefaultConfidence, loaded.Confidence)
	assert.Equal(t, DefaultProgressDelta, loaded.ProgressDelta)
}

func TestLoadSettingsRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("confidence: 1.5\n"), 0644))

	_, err := LoadSettings(path)
	require.ErrorIs(t, err, ErrInvalidSetting)
}

func TestLoadSettingsMissingFile(t *testing.T) {
	_, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
