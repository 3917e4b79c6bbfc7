package session

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by Config.Validate.
var ErrInvalidConfig = errors.New("session: invalid config")

// Excitement level bounds.
const (
	MinLevel = 1
	MaxLevel = 5
)

// Rung holds the hysteresis thresholds for one excitement level.
// RaiseAbove is ignored at MaxLevel and DropAtOrBelow at MinLevel.
type Rung struct {
	RaiseAbove    int `toml:"raise_above" json:"raise_above"`
	DropAtOrBelow int `toml:"drop_at_or_below" json:"drop_at_or_below"`
}

// Ladder maps excitement level (index level-1) to its thresholds.
type Ladder []Rung

// DefaultLadder returns the stock threshold table.
func DefaultLadder() Ladder {
	return Ladder{
		{RaiseAbove: 200},
		{RaiseAbove: 250, DropAtOrBelow: 150},
		{RaiseAbove: 600, DropAtOrBelow: 350},
		{RaiseAbove: 900, DropAtOrBelow: 700},
		{DropAtOrBelow: 1000},
	}
}

// Step returns the level after one evaluation of acc. The result differs
// from level by at most one and stays within [MinLevel, MaxLevel].
func (l Ladder) Step(level, acc int) int {
	if level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	r := l[level-1]
	switch {
	case level > MinLevel && acc <= r.DropAtOrBelow:
		return level - 1
	case level < MaxLevel && acc > r.RaiseAbove:
		return level + 1
	}
	return level
}

// Config tunes the engine's timing thresholds.
type Config struct {
	// FrequencyInterval is the thrust frequency sampling period.
	FrequencyInterval time.Duration `toml:"frequency_interval"`

	// FrequencyScale converts the per-interval thrust count to thrusts per minute.
	FrequencyScale int `toml:"frequency_scale"`

	// ExcitementInterval is the excitement ladder evaluation period.
	ExcitementInterval time.Duration `toml:"excitement_interval"`

	// PauseDelay is how long the accessory must stay disengaged before the
	// interaction timer pauses.
	PauseDelay time.Duration `toml:"pause_delay"`

	// ReinsertionStillness is the stillness that must precede motion for a
	// re-insertion event.
	ReinsertionStillness time.Duration `toml:"reinsertion_stillness"`

	// SustainedActivity is the motion streak that arms a withdrawal.
	SustainedActivity time.Duration `toml:"sustained_activity"`

	// WithdrawalStillness is the stillness after sustained activity that
	// confirms a withdrawal.
	WithdrawalStillness time.Duration `toml:"withdrawal_stillness"`

	Ladder Ladder `toml:"ladder"`
}

// DefaultConfig returns the stock engine tuning.
func DefaultConfig() Config {
	return Config{
		FrequencyInterval:    time.Second,
		FrequencyScale:       6,
		ExcitementInterval:   5 * time.Second,
		PauseDelay:           time.Second,
		ReinsertionStillness: 10 * time.Second,
		SustainedActivity:    10 * time.Second,
		WithdrawalStillness:  time.Second,
		Ladder:               DefaultLadder(),
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FrequencyInterval <= 0 {
		c.FrequencyInterval = d.FrequencyInterval
	}
	if c.FrequencyScale <= 0 {
		c.FrequencyScale = d.FrequencyScale
	}
	if c.ExcitementInterval <= 0 {
		c.ExcitementInterval = d.ExcitementInterval
	}
	if c.PauseDelay <= 0 {
		c.PauseDelay = d.PauseDelay
	}
	if c.ReinsertionStillness <= 0 {
		c.ReinsertionStillness = d.ReinsertionStillness
	}
	if c.SustainedActivity <= 0 {
		c.SustainedActivity = d.SustainedActivity
	}
	if c.WithdrawalStillness <= 0 {
		c.WithdrawalStillness = d.WithdrawalStillness
	}
	if len(c.Ladder) != MaxLevel {
		c.Ladder = d.Ladder
	}
	return c
}

// Validate checks intervals and ladder ordering.
func (c Config) Validate() error {
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"frequency_interval", c.FrequencyInterval},
		{"excitement_interval", c.ExcitementInterval},
		{"pause_delay", c.PauseDelay},
		{"reinsertion_stillness", c.ReinsertionStillness},
		{"sustained_activity", c.SustainedActivity},
		{"withdrawal_stillness", c.WithdrawalStillness},
	}
	for _, f := range durations {
		if f.d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, f.name)
		}
	}
	if c.FrequencyScale <= 0 {
		return fmt.Errorf("%w: frequency_scale must be positive", ErrInvalidConfig)
	}
	if len(c.Ladder) != MaxLevel {
		return fmt.Errorf("%w: ladder needs %d rungs, got %d", ErrInvalidConfig, MaxLevel, len(c.Ladder))
	}
	for i := MinLevel + 1; i < MaxLevel; i++ {
		r := c.Ladder[i-1]
		if r.RaiseAbove <= r.DropAtOrBelow {
			return fmt.Errorf("%w: level %d raise_above (%d) must exceed drop_at_or_below (%d)",
				ErrInvalidConfig, i, r.RaiseAbove, r.DropAtOrBelow)
		}
	}
	return nil
}
