package sampler

import (
	"fmt"
	"strings"

	"gobayes/domain/core"

	"github.com/go-playground/validator/v10"
)

// Default sampler settings
const (
	DefaultIterations   = 2000
	DefaultWarmup       = 1000
	DefaultChains       = 4
	DefaultAdaptDelta   = 0.8
	DefaultMaxTreedepth = 10
)

// Control holds the settings passed to the sampling engine.
type Control struct {
	Iterations int `json:"iter" yaml:"iter" validate:"gt=0"`
	// Warmup is nil when unset; an explicit 0 runs no warmup at all.
	Warmup       *int    `json:"warmup,omitempty" yaml:"warmup,omitempty"`
	Chains       int     `json:"chains" yaml:"chains" validate:"gt=0"`
	AdaptDelta   float64 `json:"adapt_delta" yaml:"adapt_delta" validate:"gt=0,lt=1"`
	MaxTreedepth int     `json:"max_treedepth" yaml:"max_treedepth" validate:"gt=0"`
	Thin         int     `json:"thin,omitempty" yaml:"thin,omitempty" validate:"gte=1"`
	Seed         int64   `json:"seed,omitempty" yaml:"seed,omitempty"`
	// Cores bounds how many chains run at once; 0 runs all chains in parallel.
	Cores int `json:"cores,omitempty" yaml:"cores,omitempty" validate:"gte=0"`
	// DivergenceThreshold is the number of divergent transitions tolerated
	// before the result carries a warning.
	DivergenceThreshold int `json:"divergence_threshold,omitempty" yaml:"divergence_threshold,omitempty" validate:"gte=0"`
}

var validate = validator.New()

// Int returns a pointer to n, for setting Warmup
func Int(n int) *int { return &n }

// Defaults returns the default control
func Defaults() Control {
	return Control{
		Iterations:   DefaultIterations,
		Warmup:       Int(DefaultWarmup),
		Chains:       DefaultChains,
		AdaptDelta:   DefaultAdaptDelta,
		MaxTreedepth: DefaultMaxTreedepth,
		Thin:         1,
	}
}

// WithDefaults fills unset fields. Warmup defaults to half the iterations
// when only Iterations is given.
func (c Control) WithDefaults() Control {
	d := Defaults()
	if c.Iterations == 0 {
		c.Iterations = d.Iterations
	}
	if c.Warmup == nil {
		if c.Iterations == d.Iterations {
			c.Warmup = d.Warmup
		} else {
			c.Warmup = Int(c.Iterations / 2)
		}
	}
	if c.Chains == 0 {
		c.Chains = d.Chains
	}
	if c.AdaptDelta == 0 {
		c.AdaptDelta = d.AdaptDelta
	}
	if c.MaxTreedepth == 0 {
		c.MaxTreedepth = d.MaxTreedepth
	}
	if c.Thin == 0 {
		c.Thin = 1
	}
	return c
}

// Merge fills fields left unset in c from d. Warmup is taken from d only
// together with Iterations, so a custom iteration count keeps the half
// warmup default.
func (c Control) Merge(d Control) Control {
	if c.Iterations == 0 {
		c.Iterations = d.Iterations
		if c.Warmup == nil && d.Warmup != nil {
			c.Warmup = Int(*d.Warmup)
		}
	}
	if c.Chains == 0 {
		c.Chains = d.Chains
	}
	if c.AdaptDelta == 0 {
		c.AdaptDelta = d.AdaptDelta
	}
	if c.MaxTreedepth == 0 {
		c.MaxTreedepth = d.MaxTreedepth
	}
	if c.Thin == 0 {
		c.Thin = d.Thin
	}
	if c.Cores == 0 {
		c.Cores = d.Cores
	}
	if c.DivergenceThreshold == 0 {
		c.DivergenceThreshold = d.DivergenceThreshold
	}
	return c
}

// Validate checks the control. Failures wrap core.ErrInvalidControl.
func (c Control) Validate() error {
	if err := validate.Struct(c); err != nil {
		if fieldErrs, ok := err.(validator.ValidationErrors); ok {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, describe(fe))
			}
			return fmt.Errorf("%w: %s", core.ErrInvalidControl, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", core.ErrInvalidControl, err)
	}
	warmup := c.WarmupIterations()
	switch {
	case warmup < 0:
		return fmt.Errorf("%w: Warmup must be gte 0, got %d", core.ErrInvalidControl, warmup)
	case warmup > c.Iterations:
		return fmt.Errorf("%w: Warmup must not exceed Iterations (iter %d, warmup %d)", core.ErrInvalidControl, c.Iterations, warmup)
	case c.DrawsPerChain() == 0:
		return fmt.Errorf("%w: no post-warmup draws (iter %d, warmup %d)", core.ErrInvalidControl, c.Iterations, warmup)
	}
	return nil
}

// WarmupIterations is the warmup length, 0 when unset
func (c Control) WarmupIterations() int {
	if c.Warmup == nil {
		return 0
	}
	return *c.Warmup
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "gt", "gte", "lt":
		return fmt.Sprintf("%s must be %s %s, got %v", fe.Field(), fe.Tag(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// DrawsPerChain is the number of retained draws of one chain
func (c Control) DrawsPerChain() int {
	kept := c.Iterations - c.WarmupIterations()
	if kept <= 0 {
		return 0
	}
	thin := c.Thin
	if thin < 1 {
		thin = 1
	}
	return (kept + thin - 1) / thin
}

// TotalDraws is the number of retained draws over all chains
func (c Control) TotalDraws() int {
	return c.Chains * c.DrawsPerChain()
}

// Parallelism returns how many chains may run concurrently
func (c Control) Parallelism() int {
	if c.Cores <= 0 || c.Cores > c.Chains {
		return c.Chains
	}
	return c.Cores
}
