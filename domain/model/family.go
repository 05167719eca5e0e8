package model

import (
	"fmt"

	"gobayes/domain/core"
)

// FamilyName identifies the response distribution
type FamilyName string

const (
	FamilyGaussian    FamilyName = "gaussian"
	FamilyStudent     FamilyName = "student"
	FamilyBernoulli   FamilyName = "bernoulli"
	FamilyBinomial    FamilyName = "binomial"
	FamilyPoisson     FamilyName = "poisson"
	FamilyNegBinomial FamilyName = "negbinomial"
	FamilyGamma       FamilyName = "gamma"
	FamilyLognormal   FamilyName = "lognormal"
	FamilyBeta        FamilyName = "beta"
	FamilyCumulative  FamilyName = "cumulative"
)

// Link maps the linear predictor to the mean of the response
type Link string

const (
	LinkIdentity Link = "identity"
	LinkLog      Link = "log"
	LinkLogit    Link = "logit"
	LinkProbit   Link = "probit"
	LinkCloglog  Link = "cloglog"
	LinkInverse  Link = "inverse"
	LinkSqrt     Link = "sqrt"
)

// Family pairs a response distribution with its link function.
type Family struct {
	Name FamilyName `json:"name" yaml:"name"`
	Link Link       `json:"link,omitempty" yaml:"link,omitempty"`
}

type familyInfo struct {
	links    []Link // first entry is the default
	aux      []Class
	discrete bool
	ordinal  bool
}

var families = map[FamilyName]familyInfo{
	FamilyGaussian:    {links: []Link{LinkIdentity, LinkLog, LinkInverse}, aux: []Class{ClassSigma}},
	FamilyStudent:     {links: []Link{LinkIdentity, LinkLog, LinkInverse}, aux: []Class{ClassSigma, ClassNu}},
	FamilyBernoulli:   {links: []Link{LinkLogit, LinkProbit, LinkCloglog}, discrete: true},
	FamilyBinomial:    {links: []Link{LinkLogit, LinkProbit, LinkCloglog}, discrete: true},
	FamilyPoisson:     {links: []Link{LinkLog, LinkIdentity, LinkSqrt}, discrete: true},
	FamilyNegBinomial: {links: []Link{LinkLog, LinkIdentity, LinkSqrt}, aux: []Class{ClassShape}, discrete: true},
	FamilyGamma:       {links: []Link{LinkLog, LinkIdentity, LinkInverse}, aux: []Class{ClassShape}},
	FamilyLognormal:   {links: []Link{LinkIdentity, LinkInverse}, aux: []Class{ClassSigma}},
	FamilyBeta:        {links: []Link{LinkLogit, LinkProbit, LinkCloglog}, aux: []Class{ClassPhi}},
	FamilyCumulative:  {links: []Link{LinkLogit, LinkProbit}, discrete: true, ordinal: true},
}

// NewFamily creates a family with its default link
func NewFamily(name FamilyName) Family {
	return Family{Name: name}
}

// Resolve validates the family and fills in the default link.
func (f Family) Resolve() (Family, error) {
	info, ok := families[f.Name]
	if !ok {
		return Family{}, fmt.Errorf("%w %q", core.ErrUnknownFamily, f.Name)
	}
	if f.Link == "" {
		return Family{Name: f.Name, Link: info.links[0]}, nil
	}
	for _, link := range info.links {
		if link == f.Link {
			return f, nil
		}
	}
	return Family{}, fmt.Errorf("%w %q for family %s (allowed: %v)", core.ErrUnsupportedLink, f.Link, f.Name, info.links)
}

// AuxClasses returns the family's distributional parameters besides the mean
func (f Family) AuxClasses() []Class {
	info := families[f.Name]
	out := make([]Class, len(info.aux))
	copy(out, info.aux)
	return out
}

// IsDiscrete reports whether the response takes integer values
func (f Family) IsDiscrete() bool {
	return families[f.Name].discrete
}

// IsOrdinal reports whether the family models ordered categories
func (f Family) IsOrdinal() bool {
	return families[f.Name].ordinal
}

func (f Family) String() string {
	if f.Link == "" {
		return string(f.Name)
	}
	return fmt.Sprintf("%s(%s)", f.Name, f.Link)
}

// KnownFamilies lists every supported family name
func KnownFamilies() []FamilyName {
	return []FamilyName{
		FamilyGaussian, FamilyStudent, FamilyBernoulli, FamilyBinomial, FamilyPoisson,
		FamilyNegBinomial, FamilyGamma, FamilyLognormal, FamilyBeta, FamilyCumulative,
	}
}
