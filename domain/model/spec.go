package model

import (
	"fmt"
	"math"
	"sort"

	"gobayes/domain/core"
	"gobayes/domain/dataset"
)

// ModifierName identifies an addition to the response variable
type ModifierName string

const (
	ModifierSE      ModifierName = "se"      // known measurement standard errors
	ModifierWeights ModifierName = "weights" // per-observation likelihood weights
	ModifierTrials  ModifierName = "trials"  // binomial totals
	ModifierCens    ModifierName = "cens"    // censoring indicator
	ModifierTrunc   ModifierName = "trunc"   // truncation bounds
	ModifierCat     ModifierName = "cat"     // number of ordinal categories
	ModifierRate    ModifierName = "rate"    // exposure for count models
)

var modifierFamilies = map[ModifierName][]FamilyName{
	ModifierSE:     {FamilyGaussian, FamilyStudent},
	ModifierTrials: {FamilyBinomial},
	ModifierCens: {FamilyGaussian, FamilyStudent, FamilyLognormal, FamilyGamma,
		FamilyPoisson, FamilyNegBinomial},
	ModifierTrunc: {FamilyGaussian, FamilyStudent, FamilyLognormal, FamilyGamma,
		FamilyPoisson, FamilyNegBinomial},
	ModifierCat:     {FamilyCumulative},
	ModifierRate:    {FamilyPoisson, FamilyNegBinomial},
	ModifierWeights: nil, // any family
}

// IsKnownModifier reports whether name is a recognized response modifier
func IsKnownModifier(name ModifierName) bool {
	_, ok := modifierFamilies[name]
	return ok
}

// Modifier is one response addition. Column-valued modifiers (se, weights,
// trials, cens, rate) name a dataset column; trunc takes constant bounds and
// cat a category count.
type Modifier struct {
	Column string   `json:"column,omitempty" yaml:"column,omitempty"`
	Lower  *float64 `json:"lb,omitempty" yaml:"lb,omitempty"`
	Upper  *float64 `json:"ub,omitempty" yaml:"ub,omitempty"`
	Count  int      `json:"count,omitempty" yaml:"count,omitempty"`
}

// Response names the modelled variable and its modifiers
type Response struct {
	Variable  string                    `json:"variable" yaml:"variable"`
	Modifiers map[ModifierName]Modifier `json:"modifiers,omitempty" yaml:"modifiers,omitempty"`
}

// Modifier returns the named modifier if present
func (r Response) Modifier(name ModifierName) (Modifier, bool) {
	m, ok := r.Modifiers[name]
	return m, ok
}

// GroupTerm is a group-level term such as (1 + age | patient): the grouping
// factor, the coefficients that vary across its levels and whether those
// coefficients are correlated.
type GroupTerm struct {
	Group        string   `json:"group" yaml:"group"`
	Coefficients []string `json:"coefficients" yaml:"coefficients"`
	Correlated   bool     `json:"correlated" yaml:"correlated"`
}

// ThresholdMode controls ordinal thresholds
type ThresholdMode string

const (
	ThresholdsFlexible    ThresholdMode = "flexible"
	ThresholdsEquidistant ThresholdMode = "equidistant"
)

// InterceptTerm names the constant column in population and group terms
const InterceptTerm = "Intercept"

// Spec describes a multilevel regression model independent of any dataset.
type Spec struct {
	Response         Response        `json:"response" yaml:"response"`
	Population       []string        `json:"population,omitempty" yaml:"population,omitempty"`
	NoIntercept      bool            `json:"no_intercept,omitempty" yaml:"no_intercept,omitempty"`
	Groups           []GroupTerm     `json:"groups,omitempty" yaml:"groups,omitempty"`
	Family           Family          `json:"family" yaml:"family"`
	Thresholds       ThresholdMode   `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
	CategorySpecific map[string]bool `json:"category_specific,omitempty" yaml:"category_specific,omitempty"`
}

// HasIntercept reports whether the population intercept is estimated
func (s *Spec) HasIntercept() bool {
	return !s.NoIntercept
}

// IsCategorySpecific reports whether a population term gets one effect per threshold
func (s *Spec) IsCategorySpecific(term string) bool {
	return s.CategorySpecific[term]
}

// Validate checks the spec against a dataset. All failures wrap
// core.ErrInvalidSpecification.
func (s *Spec) Validate(ds *dataset.Dataset) error {
	family, err := s.Family.Resolve()
	if err != nil {
		return err
	}
	if ds == nil || ds.Rows() == 0 {
		return core.NewSpecificationError("data", "dataset is empty")
	}

	if s.Response.Variable == "" {
		return core.NewSpecificationError("response", "variable is required")
	}
	response, ok := ds.Column(s.Response.Variable)
	if !ok {
		return core.NewUnknownColumnError("response", s.Response.Variable)
	}
	if !family.IsOrdinal() && !response.IsNumeric() {
		return core.NewSpecificationError("response", fmt.Sprintf("%s must be numeric for family %s", response.Name, family.Name))
	}
	if err := s.validateModifiers(family, ds); err != nil {
		return err
	}

	seen := make(map[string]bool)
	for _, term := range s.Population {
		if term == InterceptTerm {
			return core.NewSpecificationError("population", "the intercept is controlled by no_intercept, not listed as a term")
		}
		if seen[term] {
			return core.NewSpecificationError("population", fmt.Sprintf("duplicate term %s", term))
		}
		seen[term] = true
		if !ds.Has(term) {
			return core.NewUnknownColumnError("population term", term)
		}
	}

	if err := s.validateOrdinal(family, seen); err != nil {
		return err
	}

	groups := make(map[string]bool)
	for _, g := range s.Groups {
		if !ds.Has(g.Group) {
			return core.NewUnknownColumnError("grouping factor", g.Group)
		}
		if groups[g.Group] {
			return core.NewSpecificationError("groups", fmt.Sprintf("grouping factor %s appears in more than one term", g.Group))
		}
		groups[g.Group] = true
		if len(g.Coefficients) == 0 {
			return fmt.Errorf("%w: group %s has no coefficients", core.ErrUnresolvedCoefficient, g.Group)
		}
		coefs := make(map[string]bool)
		for _, coef := range g.Coefficients {
			if coefs[coef] {
				return fmt.Errorf("%w: duplicate coefficient %s in group %s", core.ErrUnresolvedCoefficient, coef, g.Group)
			}
			coefs[coef] = true
			if coef != InterceptTerm && !ds.Has(coef) {
				return fmt.Errorf("%w: %s in group %s is neither Intercept nor a column", core.ErrUnresolvedCoefficient, coef, g.Group)
			}
		}
	}
	return nil
}

func (s *Spec) validateModifiers(family Family, ds *dataset.Dataset) error {
	names := make([]string, 0, len(s.Response.Modifiers))
	for name := range s.Response.Modifiers {
		names = append(names, string(name))
	}
	sort.Strings(names)

	for _, raw := range names {
		name := ModifierName(raw)
		allowed, ok := modifierFamilies[name]
		if !ok {
			return fmt.Errorf("%w %q", core.ErrUnknownModifier, name)
		}
		if allowed != nil && !containsFamily(allowed, family.Name) {
			return core.NewSpecificationError("modifier "+raw, fmt.Sprintf("not supported by family %s", family.Name))
		}
		m := s.Response.Modifiers[name]
		switch name {
		case ModifierTrunc:
			if m.Lower == nil && m.Upper == nil {
				return core.NewSpecificationError("modifier trunc", "needs lb, ub or both")
			}
			if m.Lower != nil && m.Upper != nil && *m.Lower >= *m.Upper {
				return core.NewSpecificationError("modifier trunc", "lb must be below ub")
			}
		case ModifierCat:
			if m.Count < 2 {
				return core.NewSpecificationError("modifier cat", "count must be at least 2")
			}
		default:
			if m.Column == "" {
				return core.NewSpecificationError("modifier "+raw, "column is required")
			}
			col, ok := ds.Column(m.Column)
			if !ok {
				return core.NewUnknownColumnError("modifier "+raw, m.Column)
			}
			if name != ModifierCens && !col.IsNumeric() {
				return core.NewSpecificationError("modifier "+raw, fmt.Sprintf("column %s must be numeric", m.Column))
			}
		}
	}

	if family.Name == FamilyBinomial {
		if _, ok := s.Response.Modifiers[ModifierTrials]; !ok {
			return core.NewSpecificationError("response", "binomial family requires the trials modifier")
		}
	}
	return nil
}

func (s *Spec) validateOrdinal(family Family, population map[string]bool) error {
	if !family.IsOrdinal() {
		if s.Thresholds != "" {
			return core.NewSpecificationError("thresholds", fmt.Sprintf("only ordinal families have thresholds, got family %s", family.Name))
		}
		for term, on := range s.CategorySpecific {
			if on {
				return core.NewSpecificationError("category_specific", fmt.Sprintf("%s: only ordinal families have category-specific effects", term))
			}
		}
		return nil
	}

	switch s.Thresholds {
	case "", ThresholdsFlexible, ThresholdsEquidistant:
	default:
		return core.NewSpecificationError("thresholds", fmt.Sprintf("unknown mode %q", s.Thresholds))
	}
	for term, on := range s.CategorySpecific {
		if on && !population[term] {
			return core.NewSpecificationError("category_specific", fmt.Sprintf("%s is not a population term", term))
		}
	}
	return nil
}

// ThresholdMode returns the effective threshold mode for ordinal families
func (s *Spec) ThresholdMode() ThresholdMode {
	if s.Thresholds == "" {
		return ThresholdsFlexible
	}
	return s.Thresholds
}

func containsFamily(list []FamilyName, name FamilyName) bool {
	for _, f := range list {
		if f == name {
			return true
		}
	}
	return false
}

// Float returns a pointer to v, for truncation bounds
func Float(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
