// Package stan runs models through CmdStan: it generates the Stan program,
// builds it with CmdStan's make, runs one process per chain and maps the
// CSV output back onto layout parameter names.
package stan

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gobayes/domain/core"
	"gobayes/domain/fit"
	"gobayes/domain/model"
	"gobayes/domain/sampler"
	"gobayes/internal"
	apperrors "gobayes/internal/errors"
	"gobayes/ports"

	"golang.org/x/sync/errgroup"
)

// EngineName identifies CmdStan-compiled models
const EngineName = "cmdstan"

// Runner executes a command in dir and returns its combined output
type Runner func(ctx context.Context, dir string, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Config locates CmdStan and the directory for generated files
type Config struct {
	Home    string // CmdStan installation
	WorkDir string // programs, executables, data and output CSVs
}

// Engine implements ports.SamplerEngine on CmdStan
type Engine struct {
	config Config
	run    Runner
	logger *internal.Logger

	mu       sync.Mutex
	compiled map[core.Hash]string // program hash -> executable
}

// Option configures an Engine
type Option func(*Engine)

// WithRunner replaces process execution, e.g. in tests
func WithRunner(r Runner) Option {
	return func(e *Engine) { e.run = r }
}

// WithLogger sets the logger
func WithLogger(l *internal.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a CmdStan engine
func NewEngine(config Config, opts ...Option) *Engine {
	e := &Engine{
		config:   config,
		run:      execRunner,
		logger:   internal.DefaultLogger.With(EngineName),
		compiled: make(map[core.Hash]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Name() string { return EngineName }

// Compile generates the program and builds it unless an executable for the
// same program already exists.
func (e *Engine) Compile(ctx context.Context, req ports.CompileRequest) (*fit.CompiledModel, error) {
	program, err := Program(req.Layout, req.Priors)
	if err != nil {
		return nil, err
	}
	hash := core.NewHash([]byte(program))
	compiled := &fit.CompiledModel{Engine: EngineName, Program: program, Hash: hash}

	e.mu.Lock()
	exe, ok := e.compiled[hash]
	e.mu.Unlock()
	if ok {
		e.logger.Debug("reusing compiled model %s", hash.Short())
		compiled.Artifact = []byte(exe)
		return compiled, nil
	}

	if err := os.MkdirAll(e.config.WorkDir, 0o755); err != nil {
		return nil, apperrors.Wrap(err, "failed to create work directory")
	}
	exe, err = filepath.Abs(filepath.Join(e.config.WorkDir, "model_"+hash.Short()))
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to resolve executable path")
	}
	if err := os.WriteFile(exe+".stan", []byte(program), 0o644); err != nil {
		return nil, apperrors.Wrap(err, "failed to write Stan program")
	}

	start := time.Now()
	e.logger.Info("compiling model %s", hash.Short())
	out, err := e.run(ctx, e.config.Home, "make", exe)
	if err != nil {
		return nil, compileError(out, err)
	}
	e.logger.Info("compiled model %s in %s", hash.Short(), time.Since(start).Round(time.Millisecond))

	e.mu.Lock()
	e.compiled[hash] = exe
	e.mu.Unlock()
	compiled.Artifact = []byte(exe)
	return compiled, nil
}

// compileError separates rejected programs from toolchain failures
func compileError(out []byte, err error) error {
	text := string(out)
	for _, marker := range []string{"Semantic error", "Syntax error"} {
		if i := strings.Index(text, marker); i >= 0 {
			msg := strings.TrimSpace(text[i:])
			if j := strings.Index(msg, "\n\n"); j > 0 {
				msg = msg[:j]
			}
			return core.NewSpecificationError("model", "stanc rejected the program: "+msg)
		}
	}
	return apperrors.ExternalServiceError(EngineName, fmt.Errorf("make failed: %w: %s", err, strings.TrimSpace(text)))
}

func (e *Engine) sampleArgs(control sampler.Control, chain int, dataFile, outFile string) []string {
	args := []string{
		"sample",
		fmt.Sprintf("num_samples=%d", control.Iterations-control.WarmupIterations()),
		fmt.Sprintf("num_warmup=%d", control.WarmupIterations()),
		fmt.Sprintf("thin=%d", control.Thin),
		"adapt", fmt.Sprintf("delta=%g", control.AdaptDelta),
		"algorithm=hmc", "engine=nuts", fmt.Sprintf("max_depth=%d", control.MaxTreedepth),
		"data", "file=" + dataFile,
	}
	if control.Seed != 0 {
		args = append(args, "random", fmt.Sprintf("seed=%d", control.Seed))
	}
	return append(args, fmt.Sprintf("id=%d", chain), "output", "file="+outFile)
}

// Sample runs control.Chains chains, at most control.Parallelism() at a
// time. A failed chain cancels the others.
func (e *Engine) Sample(ctx context.Context, compiled *fit.CompiledModel, layout *model.Layout, control sampler.Control) (*ports.RawDraws, error) {
	if compiled == nil || compiled.Engine != EngineName || len(compiled.Artifact) == 0 {
		return nil, fmt.Errorf("model was not compiled by %s", EngineName)
	}
	exe := string(compiled.Artifact)

	data, err := Data(layout)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to encode Stan data")
	}
	runDir, err := os.MkdirTemp(e.config.WorkDir, "run_"+compiled.Hash.Short()+"_")
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to create run directory")
	}
	dataFile := filepath.Join(runDir, "data.json")
	if err := os.WriteFile(dataFile, data, 0o644); err != nil {
		return nil, apperrors.Wrap(err, "failed to write Stan data")
	}

	chains := make([]ports.ChainDraws, control.Chains)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(control.Parallelism())
	for c := 0; c < control.Chains; c++ {
		c := c
		g.Go(func() error {
			id := c + 1
			outFile := filepath.Join(runDir, fmt.Sprintf("chain_%d.csv", id))
			e.logger.Debug("starting chain %d of model %s", id, compiled.Hash.Short())
			out, err := e.run(gctx, runDir, exe, e.sampleArgs(control, id, dataFile, outFile)...)
			if err != nil {
				return apperrors.ExternalServiceError(EngineName, fmt.Errorf("chain %d failed: %w: %s", id, err, lastLines(out, 5)))
			}

			f, err := os.Open(outFile)
			if err != nil {
				return apperrors.Wrapf(err, "failed to open output of chain %d", id)
			}
			defer f.Close()
			draws, err := ParseCSV(f, layout, id, control.MaxTreedepth)
			if err != nil {
				return apperrors.ExternalServiceError(EngineName, err)
			}
			draws.Messages = informational(out)
			chains[c] = *draws
			e.logger.Debug("chain %d finished: %d divergent, %d at max treedepth", id, draws.Divergent, draws.TreedepthHits)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &ports.RawDraws{Chains: chains}, nil
}

// informational keeps the sampler's warning lines
func informational(out []byte) []string {
	var msgs []string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Informational Message") || strings.Contains(line, "Exception") {
			msgs = append(msgs, line)
		}
	}
	return msgs
}

func lastLines(out []byte, n int) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
