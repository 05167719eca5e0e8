package ports

import (
	"context"

	"gobayes/domain/fit"
	"gobayes/domain/model"
	"gobayes/domain/prior"
	"gobayes/domain/sampler"
)

// CompileRequest carries everything needed to generate a model program
type CompileRequest struct {
	Layout *model.Layout
	Priors []prior.Resolved
}

// ChainDraws holds the output of one chain. Columns are keyed by parameter
// name as listed in the layout.
type ChainDraws struct {
	Chain         int
	Columns       map[string][]float64
	Divergent     int
	TreedepthHits int
	StepSize      float64
	Messages      []string
}

// RawDraws is what an engine returns from sampling
type RawDraws struct {
	Chains []ChainDraws
}

// SamplerEngine compiles and samples models. Implementations must map their
// native parameter naming onto layout names.
type SamplerEngine interface {
	Name() string

	// Compile validates and translates the model. Engine-side rejections
	// (unknown distribution, failed compilation) wrap
	// core.ErrInvalidSpecification.
	Compile(ctx context.Context, req CompileRequest) (*fit.CompiledModel, error)

	// Sample runs control.Chains chains of the compiled model and returns
	// the post-warmup draws.
	Sample(ctx context.Context, compiled *fit.CompiledModel, layout *model.Layout, control sampler.Control) (*RawDraws, error)
}
