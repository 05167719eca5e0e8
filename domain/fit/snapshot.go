package fit

import (
	"encoding/json"
	"fmt"
	"time"

	"gobayes/domain/core"
	"gobayes/domain/model"
	"gobayes/domain/prior"
	"gobayes/domain/sampler"

	"gonum.org/v1/gonum/mat"
)

// Snapshot is the serialized form of a Result, used by repositories.
type Snapshot struct {
	ID                 core.FitID           `json:"id"`
	Fingerprint        core.Hash            `json:"fingerprint"`
	Spec               model.Spec           `json:"spec"`
	Family             model.Family         `json:"family"`
	Priors             []prior.Resolved     `json:"priors"`
	Control            sampler.Control      `json:"control"`
	Parameters         []model.Parameter    `json:"parameters"`
	Draws              map[string][]Numbers `json:"draws"`
	Summaries          []ParameterSummary   `json:"summaries"`
	Compiled           CompiledModel        `json:"compiled"`
	Warnings           []Warning            `json:"warnings,omitempty"`
	Diagnostics        SamplerDiagnostics   `json:"diagnostics"`
	LogLik             []Numbers            `json:"log_lik,omitempty"`
	PriorDraws         map[string]Numbers   `json:"prior_draws,omitempty"`
	DatasetFingerprint core.Hash            `json:"dataset_fingerprint"`
	Rows               int                  `json:"rows"`
	CreatedAt          core.Timestamp       `json:"created_at"`
	ElapsedMillis      int64                `json:"elapsed_ms"`
}

// Snapshot exports the result
func (r *Result) Snapshot() Snapshot {
	s := Snapshot{
		ID:                 r.id,
		Fingerprint:        r.fingerprint,
		Spec:               r.spec,
		Family:             r.family,
		Priors:             r.Priors(),
		Control:            r.control,
		Parameters:         r.Parameters(),
		Draws:              make(map[string][]Numbers, len(r.params)),
		Summaries:          r.Summary(),
		Compiled:           r.Compiled(),
		Warnings:           r.Warnings(),
		Diagnostics:        r.Diagnostics(),
		DatasetFingerprint: r.datasetFingerprint,
		Rows:               r.rows,
		CreatedAt:          r.createdAt,
		ElapsedMillis:      r.elapsed.Milliseconds(),
	}
	for i, p := range r.params {
		chains := make([]Numbers, len(r.draws[i]))
		for c, chain := range r.draws[i] {
			chains[c] = append(Numbers(nil), chain...)
		}
		s.Draws[p.Name] = chains
	}
	if r.logLik != nil {
		rows, _ := r.logLik.Dims()
		s.LogLik = make([]Numbers, rows)
		for i := range s.LogLik {
			s.LogLik[i] = mat.Row(nil, i, r.logLik)
		}
	}
	if len(r.priorDraws) > 0 {
		s.PriorDraws = make(map[string]Numbers, len(r.priorDraws))
		for k, v := range r.priorDraws {
			s.PriorDraws[k] = append(Numbers(nil), v...)
		}
	}
	return s
}

// FromSnapshot rebuilds a Result. Every parameter needs draws with the same
// chain and draw counts.
func FromSnapshot(s Snapshot) (*Result, error) {
	if s.ID.String() == "" {
		return nil, fmt.Errorf("snapshot has no fit ID")
	}
	chains, perChain := -1, -1
	all := make(map[string][][]float64, len(s.Draws))
	for _, p := range s.Parameters {
		draws, ok := s.Draws[p.Name]
		if !ok {
			return nil, fmt.Errorf("snapshot %s has no draws for %s", s.ID, p.Name)
		}
		if chains < 0 {
			chains = len(draws)
			if chains > 0 {
				perChain = len(draws[0])
			}
		}
		if len(draws) != chains {
			return nil, fmt.Errorf("snapshot %s: %s has %d chains, expected %d", s.ID, p.Name, len(draws), chains)
		}
		values := make([][]float64, len(draws))
		for c, chain := range draws {
			if len(chain) != perChain {
				return nil, fmt.Errorf("snapshot %s: %s has ragged chains", s.ID, p.Name)
			}
			values[c] = chain
		}
		all[p.Name] = values
	}

	var logLik *mat.Dense
	if len(s.LogLik) > 0 {
		cols := len(s.LogLik[0])
		logLik = mat.NewDense(len(s.LogLik), cols, nil)
		for i, row := range s.LogLik {
			if len(row) != cols {
				return nil, fmt.Errorf("snapshot %s: ragged log-likelihood", s.ID)
			}
			logLik.SetRow(i, row)
		}
	}

	var priorDraws map[string][]float64
	if len(s.PriorDraws) > 0 {
		priorDraws = make(map[string][]float64, len(s.PriorDraws))
		for k, v := range s.PriorDraws {
			priorDraws[k] = v
		}
	}

	return NewResult(Params{
		ID:                 s.ID,
		Fingerprint:        s.Fingerprint,
		Spec:               s.Spec,
		Family:             s.Family,
		Priors:             s.Priors,
		Control:            s.Control,
		Parameters:         s.Parameters,
		Draws:              all,
		Summaries:          s.Summaries,
		Compiled:           s.Compiled,
		Warnings:           s.Warnings,
		Diagnostics:        s.Diagnostics,
		LogLik:             logLik,
		PriorDraws:         priorDraws,
		DatasetFingerprint: s.DatasetFingerprint,
		Rows:               s.Rows,
		CreatedAt:          s.CreatedAt,
		Elapsed:            time.Duration(s.ElapsedMillis) * time.Millisecond,
	}), nil
}

// MarshalJSON encodes the result through its snapshot
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Snapshot())
}

// Decode parses a JSON snapshot into a Result
func Decode(data []byte) (*Result, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to decode fit snapshot: %w", err)
	}
	return FromSnapshot(s)
}
