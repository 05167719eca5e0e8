// Package modelfile reads fit requests written as YAML.
//
//	name: herds
//	data:
//	  path: herds.csv
//	  factors: [herd]
//	model:
//	  response:
//	    variable: incidence
//	    modifiers:
//	      trials: {column: size}
//	  population: [period]
//	  groups:
//	    - {group: herd, coefficients: [Intercept]}
//	  family: {name: binomial}
//	priors:
//	  - {prior: "normal(0, 5)", class: b}
//	control:
//	  iter: 2000
//	  seed: 1234
package modelfile

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gobayes/app"
	"gobayes/domain/dataset"
	"gobayes/domain/model"
	"gobayes/domain/prior"
	"gobayes/domain/sampler"
	"gobayes/internal/errors"

	"gopkg.in/yaml.v3"
)

// DataSource names the file a model is fit to. A relative path resolves
// against the model file's directory.
type DataSource struct {
	Path    string   `yaml:"path"`
	Sheet   string   `yaml:"sheet,omitempty"`
	Factors []string `yaml:"factors,omitempty"`
}

// File is one model file
type File struct {
	Name        string          `yaml:"name,omitempty"`
	Data        DataSource      `yaml:"data,omitempty"`
	Model       model.Spec      `yaml:"model"`
	Priors      prior.Spec      `yaml:"priors,omitempty"`
	Control     sampler.Control `yaml:"control,omitempty"`
	SamplePrior bool            `yaml:"sample_prior,omitempty"`
	// Hypotheses are tested after fitting by the CLI
	Hypotheses []string `yaml:"hypotheses,omitempty"`

	dir string
}

// Parse decodes a model file. Unknown keys are errors so that typos in
// modifier or control names do not pass silently.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return nil, errors.InvalidInput("model file is empty")
		}
		return nil, errors.WithCode(errors.CodeInvalidInput, fmt.Errorf("failed to parse model file: %w", err))
	}
	if f.Model.Response.Variable == "" {
		return nil, errors.InvalidInput("model.response.variable is required")
	}
	if f.Model.Family.Name == "" {
		return nil, errors.InvalidInput("model.family.name is required")
	}
	return &f, nil
}

// Load reads and parses a model file from disk
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound(fmt.Sprintf("model file %s", path))
		}
		return nil, errors.Wrapf(err, "failed to read %s", path)
	}
	f, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	f.dir = filepath.Dir(path)
	return f, nil
}

// DataPath resolves the data path. override wins when set.
func (f *File) DataPath(override string) string {
	p := f.Data.Path
	if override != "" {
		p = override
	}
	if p == "" || filepath.IsAbs(p) || f.dir == "" || override != "" {
		return p
	}
	return filepath.Join(f.dir, p)
}

// Request builds the fit request for data. defaults fill control fields the
// file leaves unset.
func (f *File) Request(data *dataset.Dataset, defaults sampler.Control) app.FitRequest {
	return app.FitRequest{
		Spec:        f.Model,
		Data:        data,
		Priors:      f.Priors,
		Control:     f.Control.Merge(defaults),
		SamplePrior: f.SamplePrior,
	}
}

// Marshal writes the file back as YAML
func (f *File) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
