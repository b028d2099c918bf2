package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gatewise-data/gatewise/internal/engine"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/config endpoint so the same JSON can be
// used for both startup configuration and runtime inspection.
type TuningConfig struct {
	// Epsilon learner params
	EpsilonK         *int     `json:"epsilon_k,omitempty"`
	EpsilonMinPoints *int     `json:"epsilon_min_points,omitempty"`
	EpsilonFallbackM *float64 `json:"epsilon_fallback_m,omitempty"`

	// Clustering params
	DBSCANMinPts            *int     `json:"dbscan_min_pts,omitempty"`
	GMMMaxIterations        *int     `json:"gmm_max_iterations,omitempty"`
	GMMConvergenceThreshold *float64 `json:"gmm_convergence_threshold,omitempty"`

	// Binding confidence params
	WilsonZ                  *float64 `json:"wilson_z,omitempty"`
	BindingCreationThreshold *float64 `json:"binding_creation_threshold,omitempty"`
	ProbationMinSamples      *int     `json:"probation_min_samples,omitempty"`
	EnforcedMinSamples       *int     `json:"enforced_min_samples,omitempty"`
	EnforcedWilsonThreshold  *float64 `json:"enforced_wilson_threshold,omitempty"`
	RemovalConfidence        *float64 `json:"removal_confidence,omitempty"`
	RemovalMinSamples        *int     `json:"removal_min_samples,omitempty"`

	// Pipeline params
	ProcessInterval *string `json:"process_interval,omitempty"` // duration string like "30s"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the
// max file size. Fields omitted from the JSON file retain their default
// values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.EpsilonK != nil && *c.EpsilonK < 1 {
		return fmt.Errorf("epsilon_k must be at least 1, got %d", *c.EpsilonK)
	}

	if c.EpsilonMinPoints != nil && *c.EpsilonMinPoints < 0 {
		return fmt.Errorf("epsilon_min_points must be non-negative, got %d", *c.EpsilonMinPoints)
	}

	if c.EpsilonFallbackM != nil && *c.EpsilonFallbackM <= 0 {
		return fmt.Errorf("epsilon_fallback_m must be positive, got %f", *c.EpsilonFallbackM)
	}

	if c.DBSCANMinPts != nil && *c.DBSCANMinPts < 1 {
		return fmt.Errorf("dbscan_min_pts must be at least 1, got %d", *c.DBSCANMinPts)
	}

	if c.GMMMaxIterations != nil && *c.GMMMaxIterations < 1 {
		return fmt.Errorf("gmm_max_iterations must be at least 1, got %d", *c.GMMMaxIterations)
	}

	if c.GMMConvergenceThreshold != nil && *c.GMMConvergenceThreshold <= 0 {
		return fmt.Errorf("gmm_convergence_threshold must be positive, got %f", *c.GMMConvergenceThreshold)
	}

	if c.WilsonZ != nil && *c.WilsonZ <= 0 {
		return fmt.Errorf("wilson_z must be positive, got %f", *c.WilsonZ)
	}

	if c.BindingCreationThreshold != nil {
		if *c.BindingCreationThreshold <= 0 || *c.BindingCreationThreshold > 1 {
			return fmt.Errorf("binding_creation_threshold must be in (0, 1], got %f", *c.BindingCreationThreshold)
		}
	}

	if c.EnforcedWilsonThreshold != nil {
		if *c.EnforcedWilsonThreshold <= 0 || *c.EnforcedWilsonThreshold > 1 {
			return fmt.Errorf("enforced_wilson_threshold must be in (0, 1], got %f", *c.EnforcedWilsonThreshold)
		}
	}

	if c.RemovalConfidence != nil {
		if *c.RemovalConfidence < 0 || *c.RemovalConfidence >= 1 {
			return fmt.Errorf("removal_confidence must be in [0, 1), got %f", *c.RemovalConfidence)
		}
	}

	if c.ProbationMinSamples != nil && *c.ProbationMinSamples < 0 {
		return fmt.Errorf("probation_min_samples must be non-negative, got %d", *c.ProbationMinSamples)
	}

	if c.EnforcedMinSamples != nil && *c.EnforcedMinSamples < 0 {
		return fmt.Errorf("enforced_min_samples must be non-negative, got %d", *c.EnforcedMinSamples)
	}

	if c.RemovalMinSamples != nil && *c.RemovalMinSamples < 0 {
		return fmt.Errorf("removal_min_samples must be non-negative, got %d", *c.RemovalMinSamples)
	}

	// Validate ProcessInterval can be parsed if set
	if c.ProcessInterval != nil && *c.ProcessInterval != "" {
		d, err := time.ParseDuration(*c.ProcessInterval)
		if err != nil {
			return fmt.Errorf("invalid process_interval '%s': %w", *c.ProcessInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("process_interval must be positive, got %s", d)
		}
	}

	return nil
}

// GetEpsilonK returns the epsilon_k value or the default.
func (c *TuningConfig) GetEpsilonK() int {
	if c.EpsilonK == nil {
		return engine.DefaultEpsilonK
	}
	return *c.EpsilonK
}

// GetEpsilonMinPoints returns the epsilon_min_points value or the default.
func (c *TuningConfig) GetEpsilonMinPoints() int {
	if c.EpsilonMinPoints == nil {
		return engine.DefaultEpsilonMinPoints
	}
	return *c.EpsilonMinPoints
}

// GetEpsilonFallbackM returns the epsilon_fallback_m value or the default.
func (c *TuningConfig) GetEpsilonFallbackM() float64 {
	if c.EpsilonFallbackM == nil {
		return engine.DefaultEpsilonFallbackM
	}
	return *c.EpsilonFallbackM
}

// GetDBSCANMinPts returns the dbscan_min_pts value or the default.
func (c *TuningConfig) GetDBSCANMinPts() int {
	if c.DBSCANMinPts == nil {
		return engine.DefaultDBSCANMinPts
	}
	return *c.DBSCANMinPts
}

// GetGMMMaxIterations returns the gmm_max_iterations value or the default.
func (c *TuningConfig) GetGMMMaxIterations() int {
	if c.GMMMaxIterations == nil {
		return engine.DefaultGMMMaxIterations
	}
	return *c.GMMMaxIterations
}

// GetGMMConvergenceThreshold returns the gmm_convergence_threshold value or the default.
func (c *TuningConfig) GetGMMConvergenceThreshold() float64 {
	if c.GMMConvergenceThreshold == nil {
		return engine.DefaultGMMConvergenceThreshold
	}
	return *c.GMMConvergenceThreshold
}

// GetWilsonZ returns the wilson_z value or the default.
func (c *TuningConfig) GetWilsonZ() float64 {
	if c.WilsonZ == nil {
		return engine.DefaultWilsonZ
	}
	return *c.WilsonZ
}

// GetBindingCreationThreshold returns the binding_creation_threshold value or the default.
func (c *TuningConfig) GetBindingCreationThreshold() float64 {
	if c.BindingCreationThreshold == nil {
		return engine.DefaultBindingThreshold
	}
	return *c.BindingCreationThreshold
}

// GetProbationMinSamples returns the probation_min_samples value or the default.
func (c *TuningConfig) GetProbationMinSamples() int {
	if c.ProbationMinSamples == nil {
		return engine.DefaultProbationMinSamples
	}
	return *c.ProbationMinSamples
}

// GetEnforcedMinSamples returns the enforced_min_samples value or the default.
func (c *TuningConfig) GetEnforcedMinSamples() int {
	if c.EnforcedMinSamples == nil {
		return engine.DefaultEnforcedMinSamples
	}
	return *c.EnforcedMinSamples
}

// GetEnforcedWilsonThreshold returns the enforced_wilson_threshold value or the default.
func (c *TuningConfig) GetEnforcedWilsonThreshold() float64 {
	if c.EnforcedWilsonThreshold == nil {
		return engine.DefaultEnforcedWilson
	}
	return *c.EnforcedWilsonThreshold
}

// GetRemovalConfidence returns the removal_confidence value or the default.
func (c *TuningConfig) GetRemovalConfidence() float64 {
	if c.RemovalConfidence == nil {
		return engine.DefaultRemovalConfidence
	}
	return *c.RemovalConfidence
}

// GetRemovalMinSamples returns the removal_min_samples value or the default.
func (c *TuningConfig) GetRemovalMinSamples() int {
	if c.RemovalMinSamples == nil {
		return engine.DefaultRemovalMinSamples
	}
	return *c.RemovalMinSamples
}

// GetProcessInterval parses and returns the ProcessInterval as a time.Duration.
func (c *TuningConfig) GetProcessInterval() time.Duration {
	if c.ProcessInterval == nil || *c.ProcessInterval == "" {
		return 30 * time.Second // default
	}
	d, err := time.ParseDuration(*c.ProcessInterval)
	if err != nil {
		return 30 * time.Second // default on parse error
	}
	return d
}

// Effective returns a fully-populated copy of the configuration with every
// field resolved through its accessor, so defaults are visible rather than
// omitted. Used by the /api/config endpoint to report the values actually
// in effect.
func (c *TuningConfig) Effective() *TuningConfig {
	return &TuningConfig{
		EpsilonK:         ptrInt(c.GetEpsilonK()),
		EpsilonMinPoints: ptrInt(c.GetEpsilonMinPoints()),
		EpsilonFallbackM: ptrFloat64(c.GetEpsilonFallbackM()),

		DBSCANMinPts:            ptrInt(c.GetDBSCANMinPts()),
		GMMMaxIterations:        ptrInt(c.GetGMMMaxIterations()),
		GMMConvergenceThreshold: ptrFloat64(c.GetGMMConvergenceThreshold()),

		WilsonZ:                  ptrFloat64(c.GetWilsonZ()),
		BindingCreationThreshold: ptrFloat64(c.GetBindingCreationThreshold()),
		ProbationMinSamples:      ptrInt(c.GetProbationMinSamples()),
		EnforcedMinSamples:       ptrInt(c.GetEnforcedMinSamples()),
		EnforcedWilsonThreshold:  ptrFloat64(c.GetEnforcedWilsonThreshold()),
		RemovalConfidence:        ptrFloat64(c.GetRemovalConfidence()),
		RemovalMinSamples:        ptrInt(c.GetRemovalMinSamples()),

		ProcessInterval: ptrString(c.GetProcessInterval().String()),
	}
}
