package report

import (
	"fmt"
	"math"
	"strings"

	"gobayes/domain/fit"
	"gobayes/domain/model"
)

// Section is one block of the summary, e.g. the effects of one grouping
// factor
type Section struct {
	Title string                 `json:"title"`
	Rows  []fit.ParameterSummary `json:"rows"`
}

// Summary is the printable view of a fit
type Summary struct {
	FitID         string        `json:"fit_id"`
	Family        string        `json:"family"`
	Model         string        `json:"model"`
	Observations  int           `json:"observations"`
	Chains        int           `json:"chains"`
	DrawsPerChain int           `json:"draws_per_chain"`
	Prob          float64       `json:"prob"`
	Sections      []Section     `json:"sections"`
	Warnings      []fit.Warning `json:"warnings,omitempty"`
}

// NewSummary groups summary rows by role. Group-level effects (r_*) are
// listed only when includeEffects is set.
func NewSummary(r *fit.Result, rows []fit.ParameterSummary, includeEffects bool) *Summary {
	s := &Summary{
		FitID:         r.ID().String(),
		Family:        r.Family().String(),
		Model:         Describe(r.Spec()),
		Observations:  r.Rows(),
		Chains:        r.Chains(),
		DrawsPerChain: r.DrawsPerChain(),
		Warnings:      r.Warnings(),
	}
	if len(rows) > 0 {
		s.Prob = rows[0].Prob
	}

	byName := make(map[string]fit.ParameterSummary, len(rows))
	for _, row := range rows {
		byName[row.Parameter] = row
	}

	var order []string
	sections := make(map[string]*Section)
	add := func(title string, row fit.ParameterSummary) {
		sec, ok := sections[title]
		if !ok {
			sec = &Section{Title: title}
			sections[title] = sec
			order = append(order, title)
		}
		sec.Rows = append(sec.Rows, row)
	}

	for _, p := range r.Parameters() {
		row, ok := byName[p.Name]
		if !ok {
			continue
		}
		switch p.Class {
		case model.ClassIntercept, model.ClassB, model.ClassDelta:
			add("Population-Level Effects", row)
		case model.ClassSD, model.ClassCor:
			add("Group-Level Effects: ~"+p.Group, row)
		case model.ClassR:
			if includeEffects {
				add("Group-Level Estimates: "+p.Group, row)
			}
		default:
			add("Family Specific Parameters", row)
		}
	}
	for _, title := range order {
		s.Sections = append(s.Sections, *sections[title])
	}
	return s
}

// Describe renders a spec in the familiar formula notation, for display
// only.
func Describe(spec model.Spec) string {
	var b strings.Builder
	b.WriteString(spec.Response.Variable)

	var mods []string
	for _, name := range []model.ModifierName{
		model.ModifierSE, model.ModifierWeights, model.ModifierTrials, model.ModifierCens,
		model.ModifierTrunc, model.ModifierCat, model.ModifierRate,
	} {
		m, ok := spec.Response.Modifier(name)
		if !ok {
			continue
		}
		switch {
		case name == model.ModifierTrunc:
			mods = append(mods, fmt.Sprintf("trunc(%s, %s)", bound(m.Lower), bound(m.Upper)))
		case name == model.ModifierCat:
			mods = append(mods, fmt.Sprintf("cat(%d)", m.Count))
		default:
			mods = append(mods, fmt.Sprintf("%s(%s)", name, m.Column))
		}
	}
	if len(mods) > 0 {
		b.WriteString(" | " + strings.Join(mods, " + "))
	}

	var terms []string
	if spec.NoIntercept {
		terms = append(terms, "0")
	}
	for _, t := range spec.Population {
		if spec.IsCategorySpecific(t) {
			t = "cs(" + t + ")"
		}
		terms = append(terms, t)
	}
	for _, g := range spec.Groups {
		coefs := make([]string, len(g.Coefficients))
		for i, c := range g.Coefficients {
			if c == model.InterceptTerm {
				c = "1"
			}
			coefs[i] = c
		}
		bar := "|"
		if !g.Correlated && len(coefs) > 1 {
			bar = "||"
		}
		terms = append(terms, fmt.Sprintf("(%s %s %s)", strings.Join(coefs, " + "), bar, g.Group))
	}
	if len(terms) == 0 {
		terms = []string{"1"}
	}
	b.WriteString(" ~ " + strings.Join(terms, " + "))
	return b.String()
}

func bound(v *float64) string {
	if v == nil {
		return "NA"
	}
	return format(*v)
}

func format(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NA"
	case math.IsInf(v, 1):
		return "Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return fmt.Sprintf("%.2f", v)
}

func formatESS(v float64) string {
	if math.IsNaN(v) {
		return "NA"
	}
	return fmt.Sprintf("%.0f", v)
}

func intervalLabels(prob float64) (string, string) {
	pct := fmt.Sprintf("%g", math.Round(prob*1000)/10)
	return "l-" + pct + "% CI", "u-" + pct + "% CI"
}

func headers(prob float64) []string {
	lo, hi := intervalLabels(prob)
	return []string{"Parameter", "Estimate", "Est.Error", lo, hi, "Rhat", "Bulk_ESS", "Tail_ESS"}
}

func cells(row fit.ParameterSummary) []string {
	return []string{
		row.Parameter, format(row.Mean), format(row.SD), format(row.Lower), format(row.Upper),
		format(row.Rhat), formatESS(row.BulkESS), formatESS(row.TailESS),
	}
}
