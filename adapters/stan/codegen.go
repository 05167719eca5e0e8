package stan

import (
	"fmt"
	"strconv"
	"strings"

	"gobayes/domain/core"
	"gobayes/domain/model"
	"gobayes/domain/prior"
)

// Program generates the Stan program of a layout with its resolved priors.
// Group j (1-based) of the layout becomes the r_j, sd_j, z_j and L_j
// blocks.
func Program(layout *model.Layout, priors []prior.Resolved) (string, error) {
	g := &generator{layout: layout, design: layout.Design(), family: layout.Family()}
	return g.generate(priors)
}

type generator struct {
	layout *model.Layout
	design *model.Design
	family model.Family

	functions, data, params, transformed, modelBlock, priorBlock, generated []string
}

func literal(v float64) string {
	s := strconv.FormatFloat(v, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEn") {
		s += ".0"
	}
	return s
}

func indent(lines []string, depth int) string {
	pad := strings.Repeat("  ", depth)
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(pad + l + "\n")
	}
	return b.String()
}

func (g *generator) generate(priors []prior.Resolved) (string, error) {
	g.dataBlock()
	g.parameterBlock()
	if err := g.priorStatements(priors); err != nil {
		return "", err
	}
	if err := g.likelihood(); err != nil {
		return "", err
	}

	var b strings.Builder
	if len(g.functions) > 0 {
		b.WriteString("functions {\n" + indent(g.functions, 1) + "}\n")
	}
	b.WriteString("data {\n" + indent(g.data, 1) + "}\n")
	b.WriteString("parameters {\n" + indent(g.params, 1) + "}\n")
	if len(g.transformed) > 0 {
		b.WriteString("transformed parameters {\n" + indent(g.transformed, 1) + "}\n")
	}
	b.WriteString("model {\n" + indent(g.priorBlock, 1) + indent(g.modelBlock, 1) + "}\n")
	if len(g.generated) > 0 {
		b.WriteString("generated quantities {\n" + indent(g.generated, 1) + "}\n")
	}
	return b.String(), nil
}

func (g *generator) ordinal() bool { return g.family.IsOrdinal() }

func (g *generator) dataBlock() {
	d := g.design
	g.data = append(g.data, "int<lower=1> N;")
	if g.family.IsDiscrete() {
		g.data = append(g.data, "array[N] int Y;")
	} else {
		g.data = append(g.data, "vector[N] Y;")
	}
	if d.Trials != nil {
		g.data = append(g.data, "array[N] int<lower=0> trials;")
	}
	if d.SE != nil {
		g.data = append(g.data, "vector<lower=0>[N] se;")
	}
	if d.Weights != nil {
		g.data = append(g.data, "vector<lower=0>[N] weights;")
	}
	if d.Rate != nil {
		g.data = append(g.data, "vector<lower=0>[N] rate;")
	}
	if d.Cens != nil {
		g.data = append(g.data, "array[N] int<lower=-1, upper=1> cens;")
	}
	if g.ordinal() {
		g.data = append(g.data, "int<lower=1> nthres;")
	}
	if len(d.Coefs) > 0 {
		g.data = append(g.data, "int<lower=1> K;", "matrix[N, K] X;")
	}
	if len(d.CSCoefs) > 0 {
		g.data = append(g.data, "int<lower=1> Kcs;", "matrix[N, Kcs] Xcs;")
	}
	for j := range d.Groups {
		id := j + 1
		g.data = append(g.data,
			fmt.Sprintf("int<lower=1> N_%d;", id),
			fmt.Sprintf("int<lower=1> M_%d;", id),
			fmt.Sprintf("array[N] int<lower=1> J_%d;", id),
			fmt.Sprintf("matrix[N, M_%d] Z_%d;", id, id),
		)
	}
}

func (g *generator) parameterBlock() {
	d := g.design
	if d.Intercept {
		g.params = append(g.params, "real Intercept;")
	}
	if g.ordinal() {
		if d.Equidistant {
			g.params = append(g.params, "real first_Intercept;", "real<lower=0> delta;")
			g.transformed = append(g.transformed,
				"vector[nthres] Intercept;",
				"for (k in 1:nthres) Intercept[k] = first_Intercept + (k - 1) * delta;",
			)
		} else {
			g.params = append(g.params, "ordered[nthres] Intercept;")
		}
	}
	if len(d.Coefs) > 0 {
		g.params = append(g.params, "vector[K] b;")
	}
	if len(d.CSCoefs) > 0 {
		g.params = append(g.params, "matrix[Kcs, nthres] bcs;")
	}
	for _, class := range g.family.AuxClasses() {
		lower := "0"
		if class == model.ClassNu {
			lower = "1"
		}
		g.params = append(g.params, fmt.Sprintf("real<lower=%s> %s;", lower, class))
	}
	for j, grp := range d.Groups {
		id := j + 1
		g.params = append(g.params,
			fmt.Sprintf("vector<lower=0>[M_%d] sd_%d;", id, id),
			fmt.Sprintf("matrix[M_%d, N_%d] z_%d;", id, id, id),
		)
		if grp.Correlated {
			g.params = append(g.params, fmt.Sprintf("cholesky_factor_corr[M_%d] L_%d;", id, id))
			g.transformed = append(g.transformed,
				fmt.Sprintf("matrix[N_%d, M_%d] r_%d = (diag_pre_multiply(sd_%d, L_%d) * z_%d)';", id, id, id, id, id, id),
			)
			g.generated = append(g.generated,
				fmt.Sprintf("corr_matrix[M_%d] Cor_%d = multiply_lower_tri_self_transpose(L_%d);", id, id, id),
			)
		} else {
			g.transformed = append(g.transformed,
				fmt.Sprintf("matrix[N_%d, M_%d] r_%d = (diag_matrix(sd_%d) * z_%d)';", id, id, id, id, id),
			)
		}
		g.priorBlock = append(g.priorBlock, fmt.Sprintf("target += std_normal_lpdf(to_vector(z_%d));", id))
	}
}

// stanExpr maps a layout parameter to its Stan expression
func (g *generator) stanExpr(p model.Parameter) (string, bool) {
	d := g.design
	switch p.Class {
	case model.ClassIntercept:
		if !g.ordinal() {
			return "Intercept", true
		}
		if d.Equidistant {
			return "first_Intercept", true
		}
		return fmt.Sprintf("Intercept[%d]", p.Index), true
	case model.ClassDelta:
		return "delta", true
	case model.ClassB:
		if p.Index > 0 {
			return fmt.Sprintf("bcs[%d, %d]", indexOf(d.CSCoefs, p.Coef)+1, p.Index), true
		}
		return fmt.Sprintf("b[%d]", indexOf(d.Coefs, p.Coef)+1), true
	case model.ClassSD:
		j := g.groupIndex(p.Group)
		return fmt.Sprintf("sd_%d[%d]", j+1, indexOf(d.Groups[j].Coefs, p.Coef)+1), true
	case model.ClassSigma, model.ClassNu, model.ClassShape, model.ClassPhi:
		return string(p.Class), true
	}
	return "", false
}

func (g *generator) groupIndex(group string) int {
	for j, grp := range g.design.Groups {
		if grp.Group == group {
			return j
		}
	}
	return -1
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

func (g *generator) priorStatements(priors []prior.Resolved) error {
	corDone := make(map[string]bool)
	for _, r := range priors {
		if r.Parameter.Class == model.ClassCor {
			if corDone[r.Parameter.Group] {
				continue
			}
			corDone[r.Parameter.Group] = true
			dist := r.Distribution
			if dist.IsFlat() {
				dist = prior.Distribution{Name: "lkj_corr_cholesky", Args: []float64{1}}
			}
			if name, err := stanName(dist); err != nil {
				return err
			} else if name != "lkj_corr_cholesky" {
				return core.NewSpecificationError("prior", fmt.Sprintf("correlations need an lkj prior, got %s", r.Distribution))
			}
			stmt, err := target(dist, fmt.Sprintf("L_%d", g.groupIndex(r.Parameter.Group)+1))
			if err != nil {
				return err
			}
			g.priorBlock = append(g.priorBlock, stmt)
			continue
		}
		if r.Distribution.IsFlat() {
			continue
		}
		expr, ok := g.stanExpr(r.Parameter)
		if !ok {
			return core.NewSpecificationError("prior", fmt.Sprintf("no prior can be placed on %s", r.Parameter.Name))
		}
		stmt, err := target(r.Distribution, expr)
		if err != nil {
			return err
		}
		g.priorBlock = append(g.priorBlock, stmt)
	}
	return nil
}

func inverseLink(link model.Link, x string) string {
	switch link {
	case model.LinkLog:
		return "exp(" + x + ")"
	case model.LinkLogit:
		return "inv_logit(" + x + ")"
	case model.LinkProbit:
		return "Phi(" + x + ")"
	case model.LinkCloglog:
		return "inv_cloglog(" + x + ")"
	case model.LinkInverse:
		return "inv(" + x + ")"
	case model.LinkSqrt:
		return "square(" + x + ")"
	}
	return x
}

// linearPredictor emits mu, the linear predictor of every observation
func (g *generator) linearPredictor() {
	d := g.design
	g.modelBlock = append(g.modelBlock, "vector[N] mu = rep_vector(0.0, N);")
	if d.Intercept {
		g.modelBlock = append(g.modelBlock, "mu += Intercept;")
	}
	if len(d.Coefs) > 0 {
		g.modelBlock = append(g.modelBlock, "mu += X * b;")
	}
	for j := range d.Groups {
		id := j + 1
		g.modelBlock = append(g.modelBlock,
			fmt.Sprintf("for (n in 1:N) mu[n] += r_%d[J_%d[n]] * Z_%d[n]';", id, id, id),
		)
	}
}

// densityCall returns the Stan density for observation n; suffix is
// lpdf/lpmf, lcdf or lccdf and y the evaluated value.
func (g *generator) densityCall(suffix, y string) (string, error) {
	d := g.design
	m := "m"
	scale := "sigma"
	if d.SE != nil {
		scale = "sqrt(square(sigma) + square(se[n]))"
	}
	sep := " | "
	switch g.family.Name {
	case model.FamilyGaussian:
		return "normal_" + suffix + "(" + y + sep + m + ", " + scale + ")", nil
	case model.FamilyStudent:
		return "student_t_" + suffix + "(" + y + sep + "nu, " + m + ", " + scale + ")", nil
	case model.FamilyBernoulli:
		return "bernoulli_" + suffix + "(" + y + sep + m + ")", nil
	case model.FamilyBinomial:
		return "binomial_" + suffix + "(" + y + sep + "trials[n], " + m + ")", nil
	case model.FamilyPoisson:
		return "poisson_" + suffix + "(" + y + sep + m + ")", nil
	case model.FamilyNegBinomial:
		return "neg_binomial_2_" + suffix + "(" + y + sep + m + ", shape)", nil
	case model.FamilyGamma:
		return "gamma_" + suffix + "(" + y + sep + "shape, shape / " + m + ")", nil
	case model.FamilyLognormal:
		return "lognormal_" + suffix + "(" + y + sep + m + ", sigma)", nil
	case model.FamilyBeta:
		return "beta_" + suffix + "(" + y + sep + m + " * phi, (1 - " + m + ") * phi)", nil
	}
	return "", fmt.Errorf("%w %q", core.ErrUnknownFamily, g.family.Name)
}

func (g *generator) likelihood() error {
	g.linearPredictor()
	if g.ordinal() {
		g.ordinalLikelihood()
		return nil
	}

	d := g.design
	point := "lpdf"
	if g.family.IsDiscrete() {
		point = "lpmf"
	}
	pointCall, err := g.densityCall(point, "Y[n]")
	if err != nil {
		return err
	}

	mean := inverseLink(g.family.Link, "mu[n]")
	if d.Rate != nil {
		mean += " * rate[n]"
	}
	body := []string{"real m = " + mean + ";", "real lp;"}

	if d.Cens != nil {
		lcdf, _ := g.densityCall("lcdf", "Y[n]")
		lccdf, _ := g.densityCall("lccdf", "Y[n]")
		body = append(body,
			"if (cens[n] == 0) lp = "+pointCall+";",
			"else if (cens[n] == 1) lp = "+lccdf+";",
			"else lp = "+lcdf+";",
		)
	} else {
		body = append(body, "lp = "+pointCall+";")
	}

	if d.Lower != nil || d.Upper != nil {
		var norm string
		switch {
		case d.Lower != nil && d.Upper != nil:
			lo := g.lowerBound(*d.Lower)
			upper, _ := g.densityCall("lcdf", literal(*d.Upper))
			lower, _ := g.densityCall("lcdf", lo)
			norm = "log_diff_exp(" + upper + ", " + lower + ")"
		case d.Lower != nil:
			norm, _ = g.densityCall("lccdf", g.lowerBound(*d.Lower))
		default:
			norm, _ = g.densityCall("lcdf", literal(*d.Upper))
		}
		body = append(body, "lp -= "+norm+";")
	}

	if d.Weights != nil {
		body = append(body, "target += weights[n] * lp;")
	} else {
		body = append(body, "target += lp;")
	}
	g.modelBlock = append(g.modelBlock, "for (n in 1:N) {")
	for _, l := range body {
		g.modelBlock = append(g.modelBlock, "  "+l)
	}
	g.modelBlock = append(g.modelBlock, "}")
	return nil
}

// lowerBound is the value whose ccdf equals P(Y >= lb); discrete responses
// step one below the bound.
func (g *generator) lowerBound(lb float64) string {
	if g.family.IsDiscrete() {
		return fmt.Sprintf("%d", int(lb)-1)
	}
	return literal(lb)
}

func (g *generator) ordinalLikelihood() {
	d := g.design
	cdf := "inv_logit"
	if g.family.Link == model.LinkProbit {
		cdf = "Phi"
	}
	g.functions = append(g.functions,
		"real cumulative_"+string(g.family.Link)+"_lpmf(int y, vector c) {",
		"  int K = rows(c) + 1;",
		"  if (y == 1) return log("+cdf+"(c[1]));",
		"  if (y == K) return log1m("+cdf+"(c[K - 1]));",
		"  return log("+cdf+"(c[y]) - "+cdf+"(c[y - 1]));",
		"}",
	)

	body := []string{"vector[nthres] c = Intercept - mu[n];"}
	if len(d.CSCoefs) > 0 {
		body = append(body, "c -= (Xcs[n] * bcs)';")
	}
	lp := "cumulative_" + string(g.family.Link) + "_lpmf(Y[n] | c)"
	if d.Weights != nil {
		body = append(body, "target += weights[n] * "+lp+";")
	} else {
		body = append(body, "target += "+lp+";")
	}
	g.modelBlock = append(g.modelBlock, "for (n in 1:N) {")
	for _, l := range body {
		g.modelBlock = append(g.modelBlock, "  "+l)
	}
	g.modelBlock = append(g.modelBlock, "}")
}
