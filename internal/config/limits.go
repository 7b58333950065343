package config

import (
	"fmt"
	"time"
)

// Limits bounds the generation pipeline: wall-clock timeouts, retry
// ceilings and the descending output-size budgets used when the provider
// reports a context overflow.
type Limits struct {
	PhaseTimeout       time.Duration `yaml:"phase_timeout" validate:"min=0"`
	TotalTimeout       time.Duration `yaml:"total_timeout" validate:"min=0"`
	MaxProviderRetries int           `yaml:"max_provider_retries" validate:"min=0,max=10"`
	MaxRecoveryRetries int           `yaml:"max_recovery_retries" validate:"min=0,max=10"`

	// OutputTokenBudgets is the descending max-output-size sequence walked
	// on context-overflow errors. The first entry is the normal budget.
	OutputTokenBudgets []int `yaml:"output_token_budgets"`

	// FidelityRetryCutoff is the fidelity score below which a single
	// enhanced phase-1 retry is issued.
	FidelityRetryCutoff float64 `yaml:"fidelity_retry_cutoff" validate:"min=0,max=100"`

	// StreamFlushInterval and StreamMaxBuffer tune progress snippet
	// emission during a live call.
	StreamFlushInterval time.Duration `yaml:"stream_flush_interval" validate:"min=0"`
	StreamMaxBuffer     int           `yaml:"stream_max_buffer" validate:"min=0"`
}

func DefaultLimits() Limits {
	return Limits{
		PhaseTimeout:        3 * time.Minute,
		TotalTimeout:        15 * time.Minute,
		MaxProviderRetries:  3,
		MaxRecoveryRetries:  2,
		OutputTokenBudgets:  []int{8192, 6144, 4096, 3072, 2048},
		FidelityRetryCutoff: 70,
		StreamFlushInterval: 2 * time.Second,
		StreamMaxBuffer:     1200,
	}
}

func (l Limits) validate() error {
	if len(l.OutputTokenBudgets) == 0 {
		return fmt.Errorf("limits: output_token_budgets must not be empty")
	}
	prev := 0
	for i, b := range l.OutputTokenBudgets {
		if b <= 0 {
			return fmt.Errorf("limits: output_token_budgets[%d] must be positive", i)
		}
		if i > 0 && b >= prev {
			return fmt.Errorf("limits: output_token_budgets must be strictly descending")
		}
		prev = b
	}
	return nil
}

// Thresholds are the per-section minimums a document must meet to count as
// complete. Every value is caller-configurable; zero values fall back to
// defaults at load time.
type Thresholds struct {
	MinEntities       int `yaml:"min_entities" validate:"min=0"`
	MinLocations      int `yaml:"min_locations" validate:"min=0"`
	MinVocabulary     int `yaml:"min_vocabulary" validate:"min=0"`
	MinTimelineEvents int `yaml:"min_timeline_events" validate:"min=0"`
	MinStoryChars     int `yaml:"min_story_chars" validate:"min=0"`
	MinStoryWords     int `yaml:"min_story_words" validate:"min=0"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		MinEntities:       5,
		MinLocations:      4,
		MinVocabulary:     8,
		MinTimelineEvents: 4,
		MinStoryChars:     600,
		MinStoryWords:     150,
	}
}

func (t Thresholds) validate() error {
	if t.MinStoryWords > t.MinStoryChars && t.MinStoryChars > 0 {
		return fmt.Errorf("thresholds: min_story_words cannot exceed min_story_chars")
	}
	return nil
}
