package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"gobayes/domain/core"
	"gobayes/domain/fit"
	"gobayes/internal/config"
	"gobayes/internal/container"
	"gobayes/internal/hypothesis"
	"gobayes/internal/modelfile"
	"gobayes/internal/profiling"
	"gobayes/internal/report"
	"gobayes/internal/testkit"

	"github.com/spf13/cobra"
)

var envFile string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "gobayes",
		Short:        "Fit Bayesian multilevel models with CmdStan and inspect the results",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "environment file read before the process environment")

	rootCmd.AddCommand(
		newFitCmd(),
		newSummaryCmd(),
		newHypothesisCmd(),
		newLooCmd(),
		newListCmd(),
		newDescribeCmd(),
		newExampleCmd(),
	)
	return rootCmd
}

// setup loads the configuration and connects the configured store
func setup(ctx context.Context) (*container.Container, error) {
	cfg, err := config.LoadFile(envFile)
	if err != nil {
		return nil, err
	}
	c, err := container.New(cfg)
	if err != nil {
		return nil, err
	}
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// loadResult reads a fit from a snapshot file written by fit --out, or
// from the database by ID
func loadResult(ctx context.Context, c *container.Container, ref string) (*fit.Result, error) {
	if data, err := os.ReadFile(ref); err == nil {
		return fit.Decode(data)
	}
	id, err := core.ParseFitID(ref)
	if err != nil {
		return nil, fmt.Errorf("%s is neither a fit file nor a fit ID", ref)
	}
	if c.DB == nil {
		return nil, fmt.Errorf("fit %s: DATABASE_URL is not set", id)
	}
	return c.FitRepo.Get(ctx, id)
}

func printSummary(cmd *cobra.Command, s *report.Summary, format string) error {
	out := cmd.OutOrStdout()
	switch format {
	case "text":
		fmt.Fprint(out, s.Text())
	case "markdown":
		fmt.Fprint(out, s.Markdown())
	case "html":
		out.Write(s.HTML())
	default:
		return fmt.Errorf("unknown format %q (text, markdown, html)", format)
	}
	return nil
}

func newFitCmd() *cobra.Command {
	var (
		modelPath string
		dataPath  string
		outPath   string
		format    string
		prob      float64
		effects   bool
		seed      int64
		chains    int
	)

	cmd := &cobra.Command{
		Use:   "fit",
		Short: "Fit the model described by a YAML model file",
		Long: `Fit the model described by a YAML model file and print its summary.

Example: gobayes fit --model herds.yaml --data herds.csv --seed 1234 --out herds.fit.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := setup(ctx)
			if err != nil {
				return err
			}
			defer c.Shutdown(ctx)

			mf, err := modelfile.Load(modelPath)
			if err != nil {
				return err
			}
			source := mf.DataPath(dataPath)
			if source == "" {
				return fmt.Errorf("no data: set data.path in %s or pass --data", modelPath)
			}
			data, err := c.Reader(mf.Data.Sheet, mf.Data.Factors).Read(ctx, source)
			if err != nil {
				return err
			}

			req := mf.Request(data, c.Config.Sampler.Defaults)
			if cmd.Flags().Changed("seed") {
				req.Control.Seed = seed
			}
			if cmd.Flags().Changed("chains") {
				req.Control.Chains = chains
			}

			result, err := c.FitService.Fit(ctx, req)
			if err != nil {
				return err
			}
			summary, err := c.AnalysisService.Summary(result, prob, effects)
			if err != nil {
				return err
			}
			if err := printSummary(cmd, summary, format); err != nil {
				return err
			}

			if len(mf.Hypotheses) > 0 {
				results, err := c.AnalysisService.Hypothesis(result, mf.Hypotheses, hypothesis.Options{})
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), "\n"+report.HypothesisText(results))
			}

			if outPath != "" {
				body, err := result.MarshalJSON()
				if err != nil {
					return err
				}
				if err := os.WriteFile(outPath, body, 0o644); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "fit %s (%s)\n", result.ID(), result.Elapsed().Round(1e6))
			return nil
		},
	}

	cmd.Flags().StringVarP(&modelPath, "model", "m", "", "YAML model file")
	cmd.Flags().StringVarP(&dataPath, "data", "d", "", "CSV or XLSX data file, overriding the model file")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the fit with all draws as JSON")
	cmd.Flags().StringVar(&format, "format", "text", "summary format: text, markdown or html")
	cmd.Flags().Float64Var(&prob, "prob", 0.95, "credible interval probability")
	cmd.Flags().BoolVar(&effects, "effects", false, "include group-level estimates")
	cmd.Flags().Int64Var(&seed, "seed", 0, "sampler seed")
	cmd.Flags().IntVar(&chains, "chains", 0, "number of chains")
	cmd.MarkFlagRequired("model")
	return cmd
}

func newSummaryCmd() *cobra.Command {
	var (
		format  string
		prob    float64
		effects bool
	)

	cmd := &cobra.Command{
		Use:   "summary [fit-file|fit-id]",
		Short: "Print the posterior summary of a saved fit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := setup(ctx)
			if err != nil {
				return err
			}
			defer c.Shutdown(ctx)

			result, err := loadResult(ctx, c, args[0])
			if err != nil {
				return err
			}
			summary, err := c.AnalysisService.Summary(result, prob, effects)
			if err != nil {
				return err
			}
			return printSummary(cmd, summary, format)
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "text, markdown or html")
	cmd.Flags().Float64Var(&prob, "prob", 0.95, "credible interval probability")
	cmd.Flags().BoolVar(&effects, "effects", false, "include group-level estimates")
	return cmd
}

func newHypothesisCmd() *cobra.Command {
	var opts hypothesis.Options

	cmd := &cobra.Command{
		Use:   "hypothesis [fit-file|fit-id] [hypothesis...]",
		Short: "Test linear hypotheses against a saved fit",
		Long: `Test linear hypotheses against the draws of a saved fit.

Example: gobayes hypothesis epilepsy.fit.json "Intercept - age > 0" --class sd --group patient`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := setup(ctx)
			if err != nil {
				return err
			}
			defer c.Shutdown(ctx)

			result, err := loadResult(ctx, c, args[0])
			if err != nil {
				return err
			}
			results, err := c.AnalysisService.Hypothesis(result, args[1:], opts)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), report.HypothesisText(results))
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Class, "class", "b", "parameter class prefixed to identifiers")
	cmd.Flags().StringVar(&opts.Group, "group", "", "grouping factor for sd, cor and r classes")
	cmd.Flags().Float64Var(&opts.Alpha, "alpha", 0.05, "tail probability of the reported interval")
	return cmd
}

func newLooCmd() *cobra.Command {
	var criterion string

	cmd := &cobra.Command{
		Use:   "loo [fit] [other-fit]",
		Short: "Estimate LOO or WAIC for a fit, or compare two fits",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := setup(ctx)
			if err != nil {
				return err
			}
			defer c.Shutdown(ctx)

			a, err := loadResult(ctx, c, args[0])
			if err != nil {
				return err
			}
			if len(args) == 1 {
				res, err := c.AnalysisService.Criterion(a, criterion)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), report.CriterionText(res))
				return nil
			}

			b, err := loadResult(ctx, c, args[1])
			if err != nil {
				return err
			}
			cmp, err := c.AnalysisService.Compare(a, b, criterion)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), report.ComparisonText(cmp))
			return nil
		},
	}

	cmd.Flags().StringVar(&criterion, "criterion", "loo", "loo or waic")
	return cmd
}

func newListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List fits stored in the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := setup(ctx)
			if err != nil {
				return err
			}
			defer c.Shutdown(ctx)
			if c.DB == nil {
				return fmt.Errorf("DATABASE_URL is not set")
			}

			fits, err := c.FitRepo.List(ctx, limit)
			if err != nil {
				return err
			}
			for _, f := range fits {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-20s %-12s %5d rows  %d warnings  %s\n",
					f.ID, f.Family, f.Response, f.Rows, f.Warnings, f.CreatedAt)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of fits")
	return cmd
}

func newDescribeCmd() *cobra.Command {
	var (
		sheet   string
		factors []string
		asJSON  bool
	)

	cmd := &cobra.Command{
		Use:   "describe [data-file]",
		Short: "Profile the columns of a CSV or XLSX data file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			c, err := setup(ctx)
			if err != nil {
				return err
			}
			defer c.Shutdown(ctx)

			data, err := c.Reader(sheet, factors).Read(ctx, args[0])
			if err != nil {
				return err
			}
			profile, err := profiling.ProfileDataset(data)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(profile)
			}
			fmt.Fprint(cmd.OutOrStdout(), report.ProfileText(profile))
			return nil
		},
	}

	cmd.Flags().StringVar(&sheet, "sheet", "", "worksheet of an XLSX file")
	cmd.Flags().StringSliceVar(&factors, "factor", nil, "columns read as factors even when numeric")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the profile as JSON")
	return cmd
}

func newExampleCmd() *cobra.Command {
	var (
		groups int
		seed   int64
	)

	cmd := &cobra.Command{
		Use:       "example [herds|epilepsy|kidney|inhaler]",
		Short:     "Write a simulated example dataset as CSV",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"herds", "epilepsy", "kidney", "inhaler"},
		RunE: func(cmd *cobra.Command, args []string) error {
			genConfig := testkit.DefaultGeneratorConfig()
			if groups > 0 {
				genConfig.Groups = groups
			}
			genConfig.Seed = seed
			gen := testkit.NewDatasetGenerator(genConfig)

			var header []string
			var rows [][]string
			switch args[0] {
			case "herds":
				header, rows = gen.Herds().Records()
			case "epilepsy":
				header, rows = gen.Epilepsy().Records()
			case "kidney":
				header, rows = gen.Kidney().Records()
			case "inhaler":
				header, rows = gen.Inhaler().Records()
			default:
				return fmt.Errorf("unknown example %q", args[0])
			}

			w := csv.NewWriter(cmd.OutOrStdout())
			if err := w.Write(header); err != nil {
				return err
			}
			if err := w.WriteAll(rows); err != nil {
				return err
			}
			return w.Error()
		},
	}

	cmd.Flags().IntVar(&groups, "groups", 0, "number of herds, patients or subjects")
	cmd.Flags().Int64Var(&seed, "seed", 42, "simulation seed")
	return cmd
}
