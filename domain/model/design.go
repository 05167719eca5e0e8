package model

import (
	"fmt"
	"math"

	"gobayes/domain/core"
	"gobayes/domain/dataset"

	"gonum.org/v1/gonum/mat"
)

func buildDesign(spec *Spec, family Family, ds *dataset.Dataset) (*Design, error) {
	n := ds.Rows()
	d := &Design{N: n, Intercept: spec.HasIntercept() && !family.IsOrdinal()}

	if err := d.setResponse(spec, family, ds); err != nil {
		return nil, err
	}
	if err := d.setModifiers(spec, ds); err != nil {
		return nil, err
	}

	var population, categorySpecific []string
	for _, term := range spec.Population {
		if spec.IsCategorySpecific(term) {
			categorySpecific = append(categorySpecific, term)
		} else {
			population = append(population, term)
		}
	}

	var err error
	d.Coefs, d.X, err = expandTerms(ds, population, !d.Intercept && !family.IsOrdinal())
	if err != nil {
		return nil, err
	}
	d.CSCoefs, d.XCS, err = expandTerms(ds, categorySpecific, false)
	if err != nil {
		return nil, err
	}
	if family.IsOrdinal() {
		d.Equidistant = spec.ThresholdMode() == ThresholdsEquidistant
	}

	for _, term := range spec.Groups {
		g, err := buildGroup(ds, term)
		if err != nil {
			return nil, err
		}
		d.Groups = append(d.Groups, g)
	}
	return d, nil
}

func (d *Design) setResponse(spec *Spec, family Family, ds *dataset.Dataset) error {
	col, _ := ds.Column(spec.Response.Variable)
	d.Y = make([]float64, d.N)

	if family.IsOrdinal() {
		categories := 0
		if col.IsNumeric() {
			for i, v := range col.Numbers {
				if math.IsNaN(v) || v < 1 || v != math.Trunc(v) {
					return core.NewSpecificationError("response", fmt.Sprintf("ordinal response must be an integer >= 1, got %v at row %d", v, i+1))
				}
				d.Y[i] = v
				categories = int(math.Max(float64(categories), v))
			}
		} else {
			index, levels, err := col.LevelIndex()
			if err != nil {
				return core.NewSpecificationError("response", err.Error())
			}
			for i, pos := range index {
				d.Y[i] = float64(pos + 1)
			}
			categories = len(levels)
		}
		if m, ok := spec.Response.Modifier(ModifierCat); ok {
			if m.Count < categories {
				return core.NewSpecificationError("modifier cat", fmt.Sprintf("count %d is below the %d observed categories", m.Count, categories))
			}
			categories = m.Count
		}
		if categories < 2 {
			return core.NewSpecificationError("response", "ordinal response needs at least 2 categories")
		}
		d.Thresholds = categories - 1
		return nil
	}

	for i, v := range col.Numbers {
		if math.IsNaN(v) {
			return core.NewSpecificationError("response", fmt.Sprintf("missing value at row %d", i+1))
		}
		if err := checkSupport(family, v); err != nil {
			return core.NewSpecificationError("response", fmt.Sprintf("row %d: %v", i+1, err))
		}
		d.Y[i] = v
	}
	return nil
}

func checkSupport(family Family, y float64) error {
	if family.IsDiscrete() && y != math.Trunc(y) {
		return fmt.Errorf("family %s needs integer values, got %v", family.Name, y)
	}
	switch family.Name {
	case FamilyBernoulli:
		if y != 0 && y != 1 {
			return fmt.Errorf("bernoulli needs 0 or 1, got %v", y)
		}
	case FamilyBinomial, FamilyPoisson, FamilyNegBinomial:
		if y < 0 {
			return fmt.Errorf("family %s needs non-negative values, got %v", family.Name, y)
		}
	case FamilyGamma, FamilyLognormal:
		if y <= 0 {
			return fmt.Errorf("family %s needs positive values, got %v", family.Name, y)
		}
	case FamilyBeta:
		if y <= 0 || y >= 1 {
			return fmt.Errorf("beta needs values in (0, 1), got %v", y)
		}
	}
	return nil
}

func (d *Design) setModifiers(spec *Spec, ds *dataset.Dataset) error {
	numeric := func(name ModifierName, positive bool) ([]float64, error) {
		m, ok := spec.Response.Modifier(name)
		if !ok {
			return nil, nil
		}
		col, _ := ds.Column(m.Column)
		out := make([]float64, d.N)
		for i, v := range col.Numbers {
			if math.IsNaN(v) || v < 0 || (positive && v == 0) {
				return nil, core.NewSpecificationError("modifier "+string(name), fmt.Sprintf("invalid value %v at row %d", v, i+1))
			}
			out[i] = v
		}
		return out, nil
	}

	var err error
	if d.Trials, err = numeric(ModifierTrials, true); err != nil {
		return err
	}
	if d.SE, err = numeric(ModifierSE, false); err != nil {
		return err
	}
	if d.Weights, err = numeric(ModifierWeights, true); err != nil {
		return err
	}
	if d.Rate, err = numeric(ModifierRate, true); err != nil {
		return err
	}
	for i := range d.Trials {
		if d.Y[i] > d.Trials[i] {
			return core.NewSpecificationError("modifier trials", fmt.Sprintf("row %d has more successes (%v) than trials (%v)", i+1, d.Y[i], d.Trials[i]))
		}
	}

	if m, ok := spec.Response.Modifier(ModifierCens); ok {
		col, _ := ds.Column(m.Column)
		d.Cens = make([]int, d.N)
		for i := 0; i < d.N; i++ {
			c, err := censoring(col, i)
			if err != nil {
				return core.NewSpecificationError("modifier cens", err.Error())
			}
			d.Cens[i] = c
		}
	}

	if m, ok := spec.Response.Modifier(ModifierTrunc); ok {
		d.Lower, d.Upper = m.Lower, m.Upper
		for i, y := range d.Y {
			if (d.Lower != nil && y < *d.Lower) || (d.Upper != nil && y > *d.Upper) {
				return core.NewSpecificationError("modifier trunc", fmt.Sprintf("row %d value %v lies outside the truncation bounds", i+1, y))
			}
		}
	}
	return nil
}

func censoring(col *dataset.Column, i int) (int, error) {
	if col.IsNumeric() {
		switch v := col.Numbers[i]; v {
		case -1, 0, 1:
			return int(v), nil
		default:
			return 0, fmt.Errorf("row %d: censoring must be -1, 0 or 1, got %v", i+1, v)
		}
	}
	switch col.Labels[i] {
	case "left":
		return -1, nil
	case "none", "":
		return 0, nil
	case "right":
		return 1, nil
	default:
		return 0, fmt.Errorf("row %d: censoring must be left, none or right, got %q", i+1, col.Labels[i])
	}
}

// expandTerms turns column names into coefficient columns. Numeric columns
// map to one coefficient; factors are treatment coded against their first
// level, or fully coded when fullFirst is set and no intercept absorbs the
// reference level.
func expandTerms(ds *dataset.Dataset, terms []string, fullFirst bool) ([]string, *mat.Dense, error) {
	n := ds.Rows()
	var names []string
	var columns [][]float64

	for _, term := range terms {
		col, _ := ds.Column(term)
		if col.IsNumeric() {
			for i, v := range col.Numbers {
				if math.IsNaN(v) {
					return nil, nil, core.NewSpecificationError("population", fmt.Sprintf("%s has a missing value at row %d", term, i+1))
				}
			}
			values := make([]float64, n)
			copy(values, col.Numbers)
			names = append(names, term)
			columns = append(columns, values)
			continue
		}

		index, levels, err := col.LevelIndex()
		if err != nil {
			return nil, nil, core.NewSpecificationError("population", err.Error())
		}
		start := 1
		if fullFirst {
			start = 0
			fullFirst = false
		}
		for l := start; l < len(levels); l++ {
			values := make([]float64, n)
			for i, pos := range index {
				if pos == l {
					values[i] = 1
				}
			}
			names = append(names, term+levels[l])
			columns = append(columns, values)
		}
	}

	if len(names) == 0 {
		return nil, nil, nil
	}
	x := mat.NewDense(n, len(names), nil)
	for j, values := range columns {
		x.SetCol(j, values)
	}
	return names, x, nil
}

func buildGroup(ds *dataset.Dataset, term GroupTerm) (GroupDesign, error) {
	col, _ := ds.Column(term.Group)
	index, levels, err := col.LevelIndex()
	if err != nil {
		return GroupDesign{}, core.NewSpecificationError("grouping factor", err.Error())
	}

	n := ds.Rows()
	var coefs []string
	var columns [][]float64
	var slopes []string
	for _, coef := range term.Coefficients {
		if coef == InterceptTerm {
			ones := make([]float64, n)
			for i := range ones {
				ones[i] = 1
			}
			coefs = append(coefs, InterceptTerm)
			columns = append(columns, ones)
			continue
		}
		slopes = append(slopes, coef)
	}

	names, x, err := expandTerms(ds, slopes, false)
	if err != nil {
		return GroupDesign{}, fmt.Errorf("%w: group %s: %v", core.ErrUnresolvedCoefficient, term.Group, err)
	}
	for j, name := range names {
		coefs = append(coefs, name)
		columns = append(columns, mat.Col(nil, j, x))
	}
	if len(coefs) == 0 {
		return GroupDesign{}, fmt.Errorf("%w: group %s resolves to no coefficients", core.ErrUnresolvedCoefficient, term.Group)
	}

	z := mat.NewDense(n, len(coefs), nil)
	for j, values := range columns {
		z.SetCol(j, values)
	}
	return GroupDesign{
		Group:      term.Group,
		Levels:     levels,
		Index:      index,
		Coefs:      coefs,
		Z:          z,
		Correlated: term.Correlated && len(coefs) > 1,
	}, nil
}
