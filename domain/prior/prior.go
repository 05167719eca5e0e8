package prior

import (
	"fmt"

	"gobayes/domain/core"
	"gobayes/domain/model"
)

// Prior places a distribution on a class of parameters. Coef and Group
// narrow it to single parameters; left empty it applies class-wide.
type Prior struct {
	Distribution string      `json:"prior" yaml:"prior"`
	Class        model.Class `json:"class" yaml:"class"`
	Coef         string      `json:"coef,omitempty" yaml:"coef,omitempty"`
	Group        string      `json:"group,omitempty" yaml:"group,omitempty"`
}

// New creates a class-wide prior
func New(distribution string, class model.Class) Prior {
	return Prior{Distribution: distribution, Class: class}
}

// ForCoef narrows the prior to one coefficient
func (p Prior) ForCoef(coef string) Prior {
	p.Coef = coef
	return p
}

// ForGroup narrows the prior to one grouping factor
func (p Prior) ForGroup(group string) Prior {
	p.Group = group
	return p
}

// IsScoped reports whether the prior targets less than the whole class
func (p Prior) IsScoped() bool {
	return p.Coef != "" || p.Group != ""
}

// specificity orders matching priors: coef+group > coef > group > class.
func (p Prior) specificity() int {
	s := 0
	if p.Coef != "" {
		s += 2
	}
	if p.Group != "" {
		s++
	}
	return s
}

func (p Prior) matches(param model.Parameter) bool {
	if p.Class != param.Class {
		return false
	}
	if p.Group != "" && p.Group != param.Group {
		return false
	}
	if p.Coef != "" && p.Coef != param.Coef {
		return false
	}
	return true
}

func (p Prior) String() string {
	s := fmt.Sprintf("%s ~ class %s", displayDistribution(p.Distribution), p.Class)
	if p.Coef != "" {
		s += ", coef " + p.Coef
	}
	if p.Group != "" {
		s += ", group " + p.Group
	}
	return s
}

func displayDistribution(d string) string {
	if d == "" {
		return "(flat)"
	}
	return d
}

// Spec is the full set of priors of one fitting call
type Spec []Prior

// Validate checks classes and distribution syntax. It needs no dataset, so
// callers run it before anything else.
func (s Spec) Validate() error {
	seen := make(map[string]bool)
	for _, p := range s {
		if !model.IsPriorClass(p.Class) {
			return fmt.Errorf("%w %q (known: %v)", core.ErrUnknownPriorClass, p.Class, model.PriorClasses())
		}
		if _, err := ParseDistribution(p.Distribution); err != nil {
			return err
		}
		key := string(p.Class) + "\x00" + p.Coef + "\x00" + p.Group
		if seen[key] {
			return core.NewSpecificationError("priors", fmt.Sprintf("duplicate prior for %s", p))
		}
		seen[key] = true
		if p.Class == model.ClassCor && p.Coef != "" {
			return core.NewSpecificationError("priors", "correlation priors apply per group, not per coefficient")
		}
	}
	return nil
}

// Resolved pairs one parameter with the prior that applies to it
type Resolved struct {
	Parameter    model.Parameter `json:"parameter"`
	Prior        Prior           `json:"prior"`
	Distribution Distribution    `json:"distribution"`
	Source       string          `json:"source"` // "default" or "user"
}

// Resolve assigns a prior to every parameter of the layout except
// group-level effects, whose prior follows from sd and cor. Scoped priors
// override class-wide ones; parameters without any user prior get a flat
// prior. A user prior matching no parameter is an error.
func Resolve(spec Spec, layout *model.Layout) ([]Resolved, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	used := make([]bool, len(spec))
	var resolved []Resolved
	for _, param := range layout.Parameters() {
		if param.Class == model.ClassR {
			continue
		}
		best := -1
		for i, p := range spec {
			if !p.matches(param) {
				continue
			}
			used[i] = true
			if best < 0 || p.specificity() > spec[best].specificity() {
				best = i
			}
		}

		r := Resolved{Parameter: param, Source: "default", Prior: Prior{Class: param.Class}}
		if best >= 0 {
			r.Prior = spec[best]
			r.Source = "user"
		}
		dist, err := ParseDistribution(r.Prior.Distribution)
		if err != nil {
			return nil, err
		}
		r.Distribution = dist
		resolved = append(resolved, r)
	}

	for i, p := range spec {
		if !used[i] {
			return nil, fmt.Errorf("%w: %s", core.ErrUnmatchedPrior, p)
		}
	}
	return resolved, nil
}
