package stan

import (
	"fmt"

	"gobayes/domain/core"
	"gobayes/domain/prior"
)

// stanDistributions lists the prior densities the generator can emit, with
// their argument counts.
var stanDistributions = map[string]int{
	"normal":                2,
	"std_normal":            0,
	"student_t":             3,
	"cauchy":                2,
	"double_exponential":    2,
	"logistic":              2,
	"exponential":           1,
	"gamma":                 2,
	"inv_gamma":             2,
	"lognormal":             2,
	"chi_square":            1,
	"inv_chi_square":        1,
	"scaled_inv_chi_square": 2,
	"weibull":               2,
	"frechet":               2,
	"beta":                  2,
	"uniform":               2,
	"lkj_corr_cholesky":     1,
}

// aliases maps user-facing names onto Stan names
var aliases = map[string]string{
	"lkj":     "lkj_corr_cholesky",
	"laplace": "double_exponential",
}

// stanName validates a prior distribution and returns its Stan density name
func stanName(d prior.Distribution) (string, error) {
	name := d.Name
	if alias, ok := aliases[name]; ok {
		name = alias
	}
	arity, ok := stanDistributions[name]
	if !ok {
		return "", fmt.Errorf("%w %q", core.ErrUnknownDistribution, d.Name)
	}
	if len(d.Args) != arity {
		return "", core.NewSpecificationError("prior", fmt.Sprintf("%s takes %d arguments, got %d", d.Name, arity, len(d.Args)))
	}
	return name, nil
}

// target renders "target += name_lpdf(expr | args);"
func target(d prior.Distribution, expr string) (string, error) {
	name, err := stanName(d)
	if err != nil {
		return "", err
	}
	if len(d.Args) == 0 {
		return fmt.Sprintf("target += %s_lpdf(%s);", name, expr), nil
	}
	args := ""
	for i, a := range d.Args {
		if i > 0 {
			args += ", "
		}
		args += literal(a)
	}
	return fmt.Sprintf("target += %s_lpdf(%s | %s);", name, expr, args), nil
}
