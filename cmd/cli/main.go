package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"golmer/adapters/lmm"
	"golmer/adapters/lrt"
	"golmer/adapters/sqldb"
	"golmer/adapters/tabular"
	"golmer/app"
	"golmer/domain/fit"
	"golmer/domain/formula"
	"golmer/domain/screen"
	"golmer/domain/table"
	"golmer/internal/config"
	"golmer/internal/errors"
	"golmer/internal/profiling"
	"golmer/ports"
)

func main() {
	// Environment and .env provide flag defaults; explicit flags win
	_ = godotenv.Load()
	appConfig, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	rootCmd := &cobra.Command{
		Use:           "golmer",
		Short:         "Mixed-model predictor screening for tabular experiment data",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		newScreenCmd(appConfig),
		newFitCmd(appConfig),
		newProfileCmd(appConfig),
	)

	if err := rootCmd.Execute(); err != nil {
		if errors.IsAppError(err) {
			fmt.Fprintf(os.Stderr, "Error [%s]: %v\n", errors.GetCode(err), err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// sourceFlags are the dataset location options shared by every command
type sourceFlags struct {
	format      string
	fromURL     string
	recordsPath string
	delimiter   string
	forceFactor []string
	defaultPath string
}

func (s *sourceFlags) register(cmd *cobra.Command, cfg *config.Config) {
	cmd.Flags().StringVar(&s.format, "format", cfg.Data.Format, "File format: csv or xlsx (default: inferred from the extension)")
	cmd.Flags().StringVar(&s.fromURL, "from-url", cfg.Data.URL, "Fetch the dataset from a JSON endpoint instead of a file")
	cmd.Flags().StringVar(&s.recordsPath, "records-path", cfg.Data.RecordsPath, "JSON path to the record array for --from-url")
	cmd.Flags().StringVar(&s.delimiter, "delimiter", cfg.Data.Delimiter, `Cell delimiter for delimited text, a single character or "tab"`)
	cmd.Flags().StringSliceVar(&s.forceFactor, "force-factor", cfg.Data.ForceFactor, "Columns to load as factors even when every cell parses as a number")
	s.defaultPath = cfg.Data.Path
}

func (s *sourceFlags) load(cmd *cobra.Command, args []string) (*table.Table, error) {
	delimiter, err := tabular.ParseDelimiter(s.delimiter)
	if err != nil {
		return nil, err
	}
	opts := tabular.Options{ForceFactor: s.forceFactor, Delimiter: delimiter}

	var source ports.TableSourcePort
	var name string
	switch {
	case cmd.Flags().Changed("from-url") && len(args) > 0:
		return nil, errors.InvalidInput("give either a data file or --from-url, not both")
	case len(args) > 0:
		source, name = fileSource(args[0], s.format, opts)
	case s.fromURL != "":
		source = tabular.NewHTTPSource(tabular.HTTPSourceConfig{
			URL:         s.fromURL,
			RecordsPath: s.recordsPath,
		}, opts)
		name = s.fromURL
	case s.defaultPath != "":
		source, name = fileSource(s.defaultPath, s.format, opts)
	default:
		return nil, errors.InvalidInput("a data file argument, --from-url, or DATA_PATH is required")
	}

	tbl, err := source.Load(cmd.Context())
	if err != nil {
		return nil, errors.DataLoadFailed(name, err)
	}
	return tbl, nil
}

func fileSource(path, format string, opts tabular.Options) (ports.TableSourcePort, string) {
	if format != "" {
		return tabular.NewFileSourceWithFormat(path, format, opts), path
	}
	return tabular.NewFileSource(path, opts), path
}

func newScreenCmd(cfg *config.Config) *cobra.Command {
	var src sourceFlags
	var response, criterion string
	var groups, predictors []string
	var maxParallel int
	var ledgerDriver, ledgerDSN string
	var asJSON bool

	defaultDSN := ""
	if cfg.Ledger.Enabled {
		defaultDSN = cfg.Ledger.DSN
	}

	cmd := &cobra.Command{
		Use:   "screen [data-file]",
		Short: "Screen predictors against a mixed-model baseline",
		Long: `Fit an intercept-only baseline with one random intercept per --random
group, then refit once per predictor with that predictor added as a fixed
effect. The report has one likelihood-ratio row per predictor, in input order.

Example: golmer screen lexdec.csv --response rt --random subject --random item --predictor freq --predictor familiarity`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if response == "" {
				return errors.InvalidInput("--response is required (or set RESPONSE_COLUMN)")
			}
			tbl, err := src.load(cmd, args)
			if err != nil {
				return err
			}
			fitCfg := fitConfig(cfg, criterion)
			return runScreen(cmd.Context(), tbl, response, groups, predictors, fitCfg, maxParallel, ledgerDriver, ledgerDSN, asJSON)
		},
	}

	cmd.Flags().StringVar(&response, "response", cfg.Data.Response, "Response column (required)")
	cmd.Flags().StringSliceVar(&groups, "random", cfg.Data.Groups, "Random-intercept grouping columns (repeatable)")
	cmd.Flags().StringSliceVar(&predictors, "predictor", cfg.Data.Predictors, "Predictors to screen (default: every column not otherwise used)")
	cmd.Flags().StringVar(&criterion, "criterion", cfg.Screen.Criterion, "Fit criterion; screening accepts only ML")
	cmd.Flags().IntVar(&maxParallel, "max-parallel", cfg.Screen.MaxParallel, "Concurrent candidate fits")
	cmd.Flags().StringVar(&ledgerDriver, "ledger-driver", cfg.Ledger.Driver, "Ledger database driver: sqlite3 or postgres")
	cmd.Flags().StringVar(&ledgerDSN, "ledger-dsn", defaultDSN, "Store the report in this database")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full report as JSON")
	src.register(cmd, cfg)

	return cmd
}

// fitConfig merges the environment-level optimizer settings with the criterion flag
func fitConfig(cfg *config.Config, criterion string) fit.Config {
	return fit.Config{
		Criterion:        fit.Criterion(strings.ToUpper(criterion)),
		MaxIterations:    cfg.Screen.MaxIterations,
		MaxEvaluations:   cfg.Screen.MaxEvaluations,
		Tolerance:        cfg.Screen.Tolerance,
		AnomalyTolerance: cfg.Screen.AnomalyTolerance,
	}
}

func runScreen(ctx context.Context, tbl *table.Table, response string, groups, predictors []string, fitCfg fit.Config, maxParallel int, ledgerDriver, ledgerDSN string, asJSON bool) error {
	baseline, err := formula.New(response)
	if err != nil {
		return err
	}
	for _, g := range groups {
		baseline = baseline.WithRandomIntercept(g)
	}

	if len(predictors) == 0 {
		predictors = defaultPredictors(tbl, response, groups)
		if len(predictors) == 0 {
			return fmt.Errorf("no candidate predictors left after excluding the response and grouping columns")
		}
	}

	var writer ports.ScreenWriterPort
	if ledgerDSN != "" {
		store, err := sqldb.Open(ledgerDriver, ledgerDSN)
		if err != nil {
			return err
		}
		defer store.Close()
		writer = store
	}

	service := app.NewScreenService(lmm.NewFitter(), lrt.NewComparator(), writer, maxParallel)
	report, err := service.Screen(ctx, app.ScreenRequest{
		Table:      tbl,
		Baseline:   baseline,
		Predictors: predictors,
		Config:     fitCfg,
		Persist:    writer != nil,
	})
	if err != nil {
		return errors.ScreenFailed(err)
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printReport(report)
	if writer != nil {
		fmt.Printf("\nReport stored as %s\n", report.ScreenID)
	}
	return nil
}

// defaultPredictors screens everything that is not already part of the model
func defaultPredictors(tbl *table.Table, response string, groups []string) []string {
	used := map[string]bool{response: true}
	for _, g := range groups {
		used[g] = true
	}
	var predictors []string
	for _, name := range tbl.Names() {
		if !used[name] {
			predictors = append(predictors, name)
		}
	}
	return predictors
}

func printReport(report *screen.Report) {
	m := report.Manifest
	fmt.Printf("\n=== SCREEN %s ===\n", report.ScreenID)
	fmt.Printf("Baseline:  %s\n", m.BaselineFormula)
	fmt.Printf("Criterion: %s   Observations: %d   Fits: %d/%d   Runtime: %d ms\n",
		m.Criterion, m.NObs, m.FitsSucceeded, m.FitsAttempted, m.RuntimeMs)
	fmt.Printf("Baseline objective: %.4f (dof %d)\n", report.Baseline.Objective, report.Baseline.DOF())
	fmt.Printf("Fingerprint: %s\n", m.Fingerprint)

	fmt.Printf("\n%-24s %14s %4s %12s\n", "PREDICTOR", "OBJ DIFF", "DF", "P-VALUE")
	for _, row := range report.Rows {
		marker := ""
		if row.Anomalous {
			marker = "  ANOMALOUS"
		}
		fmt.Printf("%-24s %14.4f %4d %12.4g%s\n", row.Predictor, row.ObjectiveDiff, row.DFDiff, row.PValue, marker)
	}
	if m.AnomalousRows > 0 {
		fmt.Printf("\n%d candidate(s) fit worse than the baseline; inspect the data before trusting this screen\n", m.AnomalousRows)
	}
}

func newFitCmd(cfg *config.Config) *cobra.Command {
	var src sourceFlags
	var response, criterion string
	var fixed, groups []string

	cmd := &cobra.Command{
		Use:   "fit [data-file]",
		Short: "Fit one mixed model and print the summary",
		Long: `Fit a single model with explicit fixed effects and random intercepts.
Unlike screen, fit accepts REML.

Example: golmer fit lexdec.csv --response rt --fixed freq --random subject --random item --criterion REML`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if response == "" {
				return errors.InvalidInput("--response is required (or set RESPONSE_COLUMN)")
			}
			tbl, err := src.load(cmd, args)
			if err != nil {
				return err
			}
			return runFit(cmd.Context(), tbl, response, fixed, groups, fitConfig(cfg, criterion))
		},
	}

	cmd.Flags().StringVar(&response, "response", cfg.Data.Response, "Response column (required)")
	cmd.Flags().StringSliceVar(&fixed, "fixed", nil, "Fixed-effect columns (repeatable)")
	cmd.Flags().StringSliceVar(&groups, "random", cfg.Data.Groups, "Random-intercept grouping columns (repeatable)")
	cmd.Flags().StringVar(&criterion, "criterion", cfg.Screen.Criterion, "Fit criterion: ML or REML")
	src.register(cmd, cfg)

	return cmd
}

func runFit(ctx context.Context, tbl *table.Table, response string, fixed, groups []string, fitCfg fit.Config) error {
	f, err := formula.New(response)
	if err != nil {
		return err
	}
	for _, name := range fixed {
		f = f.WithFixed(name)
	}
	for _, g := range groups {
		f = f.WithRandomIntercept(g)
	}

	model, err := lmm.NewFitter().Fit(ctx, tbl, f, fitCfg.Normalized())
	if err != nil {
		return errors.FitFailed(f.String(), err)
	}

	fmt.Printf("\n=== MODEL FIT ===\n")
	fmt.Printf("Formula:      %s\n", model.FormulaText)
	fmt.Printf("Criterion:    %s\n", model.Criterion)
	fmt.Printf("Observations: %d\n", model.NObs)
	fmt.Printf("Objective:    %.4f (dof %d, %d evaluations)\n", model.Objective, model.DOF(), model.Evaluations)
	fmt.Printf("Fingerprint:  %s\n", model.Fingerprint)

	fmt.Printf("\nFixed effects:\n")
	for _, coef := range model.Fixed {
		fmt.Printf("  %-24s %14.6f\n", coef.Name, coef.Estimate)
	}

	if len(model.Random) > 0 {
		fmt.Printf("\nRandom intercepts (std dev):\n")
		for _, comp := range model.Random {
			fmt.Printf("  %-24s %14.6f\n", comp.Group, comp.StdDev)
		}
	}
	fmt.Printf("\nResidual std dev: %.6f\n", model.ResidualStdDev)
	return nil
}

func newProfileCmd(cfg *config.Config) *cobra.Command {
	var src sourceFlags

	cmd := &cobra.Command{
		Use:   "profile [data-file]",
		Short: "Summarize every column of a dataset",
		Long: `Print per-column summaries: kind, missing counts, and for numeric
columns the distribution statistics. Constant columns are flagged because
they cannot be screened.

Example: golmer profile lexdec.csv`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tbl, err := src.load(cmd, args)
			if err != nil {
				return err
			}
			return runProfile(tbl)
		},
	}
	src.register(cmd, cfg)

	return cmd
}

func runProfile(tbl *table.Table) error {
	profiles, err := profiling.ProfileTable(tbl)
	if err != nil {
		return err
	}

	fmt.Printf("\n%d rows, %d columns\n\n", tbl.Len(), tbl.NumCols())
	fmt.Printf("%-24s %-8s %6s %8s %9s\n", "COLUMN", "KIND", "N", "MISSING", "DISTINCT")
	for _, p := range profiles {
		distinct := "-"
		if p.Kind == table.KindFactor {
			distinct = fmt.Sprintf("%d", p.Distinct)
		}
		fmt.Printf("%-24s %-8s %6d %8d %9s", p.Name, p.Kind, p.N, p.Missing, distinct)
		if p.Constant {
			fmt.Printf("  CONSTANT")
		}
		fmt.Println()
		if p.Kind == table.KindNumeric && !p.Constant {
			s := p.Summary
			fmt.Printf("%-24s mean %.4g  sd %.4g  min %.4g  median %.4g  max %.4g\n",
				"", s.Mean, s.StdDev, s.Min, s.Median, s.Max)
		}
	}
	return nil
}
