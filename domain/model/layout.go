package model

import (
	"fmt"
	"strconv"

	"gobayes/domain/dataset"

	"gonum.org/v1/gonum/mat"
)

// Parameter is one named quantity of a fitted model. Names follow the
// b_/sd_/cor_/r_ conventions:
//
//	b_Intercept, b_age, b_Intercept[2], bcs_age[1]
//	sd_patient_Intercept, cor_patient_Intercept__age
//	r_patient[12,Intercept], sigma, nu, shape, phi, delta
type Parameter struct {
	Name  string   `json:"name"`
	Class Class    `json:"class"`
	Coef  string   `json:"coef,omitempty"`
	Group string   `json:"group,omitempty"`
	Level string   `json:"level,omitempty"`
	Index int      `json:"index,omitempty"` // 1-based threshold index
	Lower *float64 `json:"lower,omitempty"`
	Upper *float64 `json:"upper,omitempty"`
}

// Layout lists every parameter a spec implies for a dataset, together with
// the design matrices that connect parameters to observations.
type Layout struct {
	spec   Spec
	family Family
	params []Parameter
	index  map[string]int
	design *Design
}

// Design holds the observation-level inputs of the likelihood
type Design struct {
	N       int
	Y       []float64
	Trials  []float64
	SE      []float64
	Weights []float64
	Rate    []float64
	Cens    []int // -1 left, 0 none, 1 right
	Lower   *float64
	Upper   *float64

	Intercept bool
	Coefs     []string
	X         *mat.Dense // N x len(Coefs), nil without coefficients

	CSCoefs []string
	XCS     *mat.Dense // N x len(CSCoefs), nil without category-specific effects

	Thresholds  int // number of ordinal thresholds, categories - 1
	Equidistant bool

	Groups []GroupDesign
}

// GroupDesign maps observations to the levels of one grouping factor
type GroupDesign struct {
	Group      string
	Levels     []string
	Index      []int // 0-based level of each observation
	Coefs      []string
	Z          *mat.Dense // N x len(Coefs)
	Correlated bool
}

// BuildLayout validates spec against ds and derives its parameters.
func BuildLayout(spec *Spec, ds *dataset.Dataset) (*Layout, error) {
	if err := spec.Validate(ds); err != nil {
		return nil, err
	}
	family, _ := spec.Family.Resolve()

	design, err := buildDesign(spec, family, ds)
	if err != nil {
		return nil, err
	}

	l := &Layout{
		spec:   *spec,
		family: family,
		design: design,
		index:  make(map[string]int),
	}
	l.addParameters()
	return l, nil
}

func (l *Layout) add(p Parameter) {
	l.index[p.Name] = len(l.params)
	l.params = append(l.params, p)
}

func (l *Layout) addParameters() {
	d := l.design
	zero, one := 0.0, 1.0
	minusOne := -1.0

	if d.Intercept {
		l.add(Parameter{Name: "b_Intercept", Class: ClassIntercept})
	}
	if d.Thresholds > 0 {
		if d.Equidistant {
			l.add(Parameter{Name: "b_Intercept[1]", Class: ClassIntercept, Coef: "1", Index: 1})
			l.add(Parameter{Name: "delta", Class: ClassDelta, Lower: &zero})
		} else {
			for k := 1; k <= d.Thresholds; k++ {
				idx := strconv.Itoa(k)
				l.add(Parameter{Name: "b_Intercept[" + idx + "]", Class: ClassIntercept, Coef: idx, Index: k})
			}
		}
	}
	for _, coef := range d.Coefs {
		l.add(Parameter{Name: "b_" + coef, Class: ClassB, Coef: coef})
	}
	for _, coef := range d.CSCoefs {
		for k := 1; k <= d.Thresholds; k++ {
			l.add(Parameter{Name: fmt.Sprintf("bcs_%s[%d]", coef, k), Class: ClassB, Coef: coef, Index: k})
		}
	}
	for _, g := range d.Groups {
		for _, coef := range g.Coefs {
			l.add(Parameter{Name: SDName(g.Group, coef), Class: ClassSD, Group: g.Group, Coef: coef, Lower: &zero})
		}
	}
	for _, g := range d.Groups {
		if !g.Correlated {
			continue
		}
		for i := 0; i < len(g.Coefs); i++ {
			for j := i + 1; j < len(g.Coefs); j++ {
				l.add(Parameter{
					Name:  CorName(g.Group, g.Coefs[i], g.Coefs[j]),
					Class: ClassCor, Group: g.Group, Coef: g.Coefs[i] + "__" + g.Coefs[j],
					Lower: &minusOne, Upper: &one,
				})
			}
		}
	}
	for _, class := range l.family.AuxClasses() {
		lower := zero
		if class == ClassNu {
			lower = one
		}
		l.add(Parameter{Name: string(class), Class: class, Lower: &lower})
	}
	for _, g := range d.Groups {
		for _, level := range g.Levels {
			for _, coef := range g.Coefs {
				l.add(Parameter{Name: RName(g.Group, level, coef), Class: ClassR, Group: g.Group, Level: level, Coef: coef})
			}
		}
	}
}

// SDName names the standard deviation of a group-level coefficient
func SDName(group, coef string) string {
	return fmt.Sprintf("sd_%s_%s", group, coef)
}

// CorName names the correlation between two group-level coefficients
func CorName(group, a, b string) string {
	return fmt.Sprintf("cor_%s_%s__%s", group, a, b)
}

// RName names one group-level effect
func RName(group, level, coef string) string {
	return fmt.Sprintf("r_%s[%s,%s]", group, level, coef)
}

// ThresholdName names ordinal threshold k (1-based)
func ThresholdName(k int) string {
	return fmt.Sprintf("b_Intercept[%d]", k)
}

// CSName names the category-specific effect of coef at threshold k
func CSName(coef string, k int) string {
	return fmt.Sprintf("bcs_%s[%d]", coef, k)
}

// Spec returns the spec the layout was built from
func (l *Layout) Spec() Spec { return l.spec }

// Family returns the resolved family
func (l *Layout) Family() Family { return l.family }

// Design returns the observation-level design
func (l *Layout) Design() *Design { return l.design }

// Parameters returns a copy of the parameters in layout order
func (l *Layout) Parameters() []Parameter {
	out := make([]Parameter, len(l.params))
	copy(out, l.params)
	return out
}

// Names returns parameter names in layout order
func (l *Layout) Names() []string {
	names := make([]string, len(l.params))
	for i, p := range l.params {
		names[i] = p.Name
	}
	return names
}

// Parameter looks up a parameter by name
func (l *Layout) Parameter(name string) (Parameter, bool) {
	i, ok := l.index[name]
	if !ok {
		return Parameter{}, false
	}
	return l.params[i], true
}

// ByClass returns the parameters of one class in layout order
func (l *Layout) ByClass(class Class) []Parameter {
	var out []Parameter
	for _, p := range l.params {
		if p.Class == class {
			out = append(out, p)
		}
	}
	return out
}
