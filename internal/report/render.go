package report

import (
	"fmt"
	"strconv"
	"strings"

	"gobayes/internal/hypothesis"
	"gobayes/internal/loo"
	"gobayes/internal/profiling"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func textTable(head []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(head...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.String()
}

// Text renders the summary for a terminal
func (s *Summary) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", titleStyle.Render(" Family: "+s.Family))
	fmt.Fprintf(&b, " Formula: %s\n", s.Model)
	fmt.Fprintf(&b, "    Data: %d observations\n", s.Observations)
	fmt.Fprintf(&b, "   Draws: %d chains, %d post-warmup draws each\n", s.Chains, s.DrawsPerChain)
	for _, sec := range s.Sections {
		rows := make([][]string, len(sec.Rows))
		for i, row := range sec.Rows {
			rows[i] = cells(row)
		}
		fmt.Fprintf(&b, "\n%s\n%s\n", titleStyle.Render(sec.Title+":"), textTable(headers(s.Prob), rows))
	}
	for _, w := range s.Warnings {
		fmt.Fprintf(&b, "%s\n", warningStyle.Render("Warning: "+w.String()))
	}
	return b.String()
}

func markdownTable(b *strings.Builder, head []string, rows [][]string) {
	b.WriteString("| " + strings.Join(head, " | ") + " |\n")
	sep := make([]string, len(head))
	for i := range sep {
		sep[i] = "---"
	}
	b.WriteString("|" + strings.Join(sep, "|") + "|\n")
	for _, row := range rows {
		escaped := make([]string, len(row))
		for i, c := range row {
			escaped[i] = strings.ReplaceAll(c, "|", `\|`)
		}
		b.WriteString("| " + strings.Join(escaped, " | ") + " |\n")
	}
}

// Markdown renders the summary as a markdown document
func (s *Summary) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Fit %s\n\n", s.FitID)
	fmt.Fprintf(&b, "- **Family:** %s\n", s.Family)
	fmt.Fprintf(&b, "- **Formula:** `%s`\n", s.Model)
	fmt.Fprintf(&b, "- **Data:** %d observations\n", s.Observations)
	fmt.Fprintf(&b, "- **Draws:** %d chains x %d\n", s.Chains, s.DrawsPerChain)
	for _, sec := range s.Sections {
		fmt.Fprintf(&b, "\n## %s\n\n", sec.Title)
		rows := make([][]string, len(sec.Rows))
		for i, row := range sec.Rows {
			rows[i] = cells(row)
		}
		markdownTable(&b, headers(s.Prob), rows)
	}
	if len(s.Warnings) > 0 {
		b.WriteString("\n## Warnings\n\n")
		for _, w := range s.Warnings {
			fmt.Fprintf(&b, "- %s\n", w.String())
		}
	}
	return b.String()
}

// HTML renders the markdown summary to HTML
func (s *Summary) HTML() []byte {
	return ToHTML(s.Markdown())
}

// ToHTML converts markdown to HTML
func ToHTML(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions)
	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	return markdown.ToHTML([]byte(md), p, renderer)
}

func hypothesisRows(results []hypothesis.Result) ([]string, [][]string) {
	head := []string{"Hypothesis", "Estimate", "Est.Error", "CI.Lower", "CI.Upper", "Evid.Ratio", "Post.Prob", "Star"}
	rows := make([][]string, len(results))
	for i, r := range results {
		star := ""
		if r.Star {
			star = "*"
		}
		rows[i] = []string{
			r.Hypothesis, format(r.Estimate), format(r.EstError), format(r.Lower), format(r.Upper),
			format(r.EvidenceRatio), format(r.PostProb), star,
		}
	}
	return head, rows
}

// HypothesisText renders hypothesis results for a terminal
func HypothesisText(results []hypothesis.Result) string {
	head, rows := hypothesisRows(results)
	return textTable(head, rows) + "\n'*': the expected value under the hypothesis lies outside the credible interval.\n"
}

// HypothesisMarkdown renders hypothesis results as a markdown table
func HypothesisMarkdown(results []hypothesis.Result) string {
	var b strings.Builder
	head, rows := hypothesisRows(results)
	markdownTable(&b, head, rows)
	return b.String()
}

// CriterionText renders one model's information criterion estimates
func CriterionText(r *loo.Result) string {
	name := strings.ToUpper(string(r.Criterion))
	rows := [][]string{
		{"elpd_" + string(r.Criterion), format(r.Elpd), format(r.ElpdSE)},
		{"p_" + string(r.Criterion), format(r.P), format(r.PSE)},
		{string(r.Criterion) + "ic", format(r.IC), format(r.ICSE)},
	}
	out := fmt.Sprintf("Computed from %d by %d log-likelihood matrix\n%s\n", r.Draws, r.Observations, textTable([]string{name, "Estimate", "SE"}, rows))
	if bad := r.BadK(); len(bad) > 0 {
		out += warningStyle.Render(fmt.Sprintf("Warning: %d observations with Pareto k > %.1f", len(bad), loo.KThreshold)) + "\n"
	}
	return out
}

// ComparisonText renders an elpd comparison
func ComparisonText(c *loo.Comparison) string {
	rows := [][]string{
		{"a", format(c.A.Elpd), format(c.A.ElpdSE)},
		{"b", format(c.B.Elpd), format(c.B.ElpdSE)},
		{"b - a", format(c.Diff), format(c.SE)},
	}
	out := textTable([]string{"Model", "elpd_" + string(c.Criterion), "SE"}, rows) + "\n"
	for _, w := range c.Warnings {
		out += warningStyle.Render("Warning: "+w) + "\n"
	}
	return out
}

// ProfileText renders a dataset profile: one table for numeric columns and
// one line of level counts per factor
func ProfileText(p *profiling.Profile) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", titleStyle.Render(fmt.Sprintf(" Data: %s (%d rows)", p.Name, p.Rows)))

	var numeric [][]string
	for _, c := range p.Columns {
		if c.Numeric == nil {
			continue
		}
		s := c.Numeric
		numeric = append(numeric, []string{
			c.Name, format(s.Mean), format(s.StdDev), format(s.Min), format(s.Median), format(s.Max),
			strconv.Itoa(c.Missing), strconv.Itoa(s.Outliers),
		})
	}
	if len(numeric) > 0 {
		fmt.Fprintf(&b, "\n%s\n", textTable([]string{"Column", "Mean", "SD", "Min", "Median", "Max", "Missing", "Outliers"}, numeric))
	}

	for _, c := range p.Columns {
		if c.Numeric != nil {
			continue
		}
		levels := make([]string, len(c.Levels))
		for i, l := range c.Levels {
			levels[i] = fmt.Sprintf("%s (%d)", l.Level, l.Count)
		}
		if len(levels) > 8 {
			levels = append(levels[:8], fmt.Sprintf("... %d more", len(c.Levels)-8))
		}
		fmt.Fprintf(&b, "%s: %d levels, %d missing: %s\n", c.Name, len(c.Levels), c.Missing, strings.Join(levels, ", "))
	}
	return b.String()
}
