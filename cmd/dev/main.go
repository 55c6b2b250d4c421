package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"golmer/app"
	"golmer/domain/formula"
	"golmer/domain/screen"
	"golmer/internal/testkit"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "golmer-dev",
		Short: "Development tools for the screening engine",
	}

	rootCmd.AddCommand(
		newSynthCmd(),
		newSmokeCmd(),
		newDeterminismCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newSynthCmd() *cobra.Command {
	var out string
	var subjects, pairs int
	var seed int64

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Generate a synthetic lexical decision dataset",
		Long: `Generate a crossed subjects-by-pairs reaction time dataset with known
frequency and similarity effects, written as CSV.

Example: golmer-dev synth --out lexical.csv --subjects 20 --pairs 30 --seed 7`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return generateDataset(out, subjects, pairs, seed)
		},
	}

	cmd.Flags().StringVar(&out, "out", "lexical.csv", "Output CSV path")
	cmd.Flags().IntVar(&subjects, "subjects", 16, "Number of subjects")
	cmd.Flags().IntVar(&pairs, "pairs", 24, "Number of prime-target pairs")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed for deterministic generation")

	return cmd
}

func generateDataset(out string, subjects, pairs int, seed int64) error {
	cfg := testkit.DefaultLexicalConfig()
	cfg.SubjectCount = subjects
	cfg.PairCount = pairs
	cfg.Seed = seed

	tbl, err := testkit.NewLexicalGenerator(cfg).Generate()
	if err != nil {
		return fmt.Errorf("generating dataset: %w", err)
	}
	if err := testkit.WriteCSV(out, tbl); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}

	fmt.Printf("Wrote %d rows (%d subjects x %d pairs) to %s\n", tbl.Len(), subjects, pairs, out)
	fmt.Printf("Dataset fingerprint: %s\n", tbl.Fingerprint())
	return nil
}

func newSmokeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "smoke",
		Short: "Run smoke tests against synthetic data",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSmokeTests(cmd.Context())
		},
	}
	return cmd
}

func runSmokeTests(ctx context.Context) error {
	fmt.Println("Running smoke tests...")

	kit := testkit.NewTestKit()

	tests := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"generate_dataset", func(ctx context.Context) error {
			cfg := testkit.DefaultLexicalConfig()
			cfg.SubjectCount = 4
			cfg.PairCount = 6
			tbl, err := testkit.NewLexicalGenerator(cfg).Generate()
			if err != nil {
				return err
			}
			if tbl.Len() != 24 {
				return fmt.Errorf("expected 24 rows, got %d", tbl.Len())
			}
			return nil
		}},
		{"screen_run", func(ctx context.Context) error {
			report, err := runLexicalScreen(ctx, kit, 1, 11)
			if err != nil {
				return err
			}
			if len(report.Rows) != len(testkit.Predictors()) {
				return fmt.Errorf("expected %d rows, got %d", len(testkit.Predictors()), len(report.Rows))
			}
			return nil
		}},
		{"report_lookup", func(ctx context.Context) error {
			report, err := runLexicalScreen(ctx, kit, 2, 12)
			if err != nil {
				return err
			}
			stored, err := kit.Ledger.GetReport(ctx, report.ScreenID)
			if err != nil {
				return err
			}
			if stored.Manifest.Fingerprint != report.Manifest.Fingerprint {
				return fmt.Errorf("stored fingerprint differs")
			}
			return nil
		}},
	}

	passed := 0
	for _, test := range tests {
		fmt.Printf("  Running %s...", test.name)
		if err := test.fn(ctx); err != nil {
			fmt.Printf(" FAILED: %v\n", err)
		} else {
			fmt.Println(" PASSED")
			passed++
		}
	}

	fmt.Printf("\nSmoke tests: %d/%d passed\n", passed, len(tests))
	if passed < len(tests) {
		return fmt.Errorf("some smoke tests failed")
	}
	return nil
}

func newDeterminismCmd() *cobra.Command {
	var runs int
	var seed int64

	cmd := &cobra.Command{
		Use:   "determinism",
		Short: "Check that repeated screens produce identical reports",
		Long: `Screen the same synthetic dataset several times, alternating between
sequential and parallel candidate fitting, and verify every run produces
bit-identical comparison rows and manifest fingerprints.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return testDeterminism(cmd.Context(), runs, seed)
		},
	}

	cmd.Flags().IntVar(&runs, "runs", 3, "Number of repeated screens")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Dataset generation seed")

	return cmd
}

func testDeterminism(ctx context.Context, runs int, seed int64) error {
	if runs < 2 {
		return fmt.Errorf("need at least 2 runs to compare, got %d", runs)
	}
	fmt.Printf("Running %d identical screens...\n", runs)

	kit := testkit.NewTestKit()

	first, err := runLexicalScreen(ctx, kit, 1, seed)
	if err != nil {
		return fmt.Errorf("run 1 failed: %w", err)
	}
	fmt.Printf("  Run 1 (sequential): fingerprint %s\n", first.Manifest.Fingerprint)

	for i := 2; i <= runs; i++ {
		replay, err := runLexicalScreen(ctx, kit, 4, seed)
		if err != nil {
			return fmt.Errorf("run %d failed: %w", i, err)
		}
		fmt.Printf("  Run %d (parallel):   fingerprint %s\n", i, replay.Manifest.Fingerprint)
		if err := compareReports(first, replay); err != nil {
			return fmt.Errorf("determinism test failed on run %d: %w", i, err)
		}
	}

	fmt.Println("Determinism test passed, all runs identical")
	return nil
}

func runLexicalScreen(ctx context.Context, kit *testkit.TestKit, maxParallel int, seed int64) (*screen.Report, error) {
	cfg := testkit.DefaultLexicalConfig()
	cfg.SubjectCount = 6
	cfg.PairCount = 8
	cfg.Seed = seed

	tbl, err := testkit.NewLexicalGenerator(cfg).Generate()
	if err != nil {
		return nil, err
	}

	baseline, err := formula.New("rt")
	if err != nil {
		return nil, err
	}
	baseline = baseline.
		WithRandomIntercept("subject").
		WithRandomIntercept("prime").
		WithRandomIntercept("target")

	service := app.NewScreenService(kit.Fitter, kit.Comparator, kit.Ledger, maxParallel)
	return service.Screen(ctx, app.ScreenRequest{
		Table:      tbl,
		Baseline:   baseline,
		Predictors: testkit.Predictors(),
		Persist:    true,
	})
}

func compareReports(original, replay *screen.Report) error {
	if original.Manifest.Fingerprint != replay.Manifest.Fingerprint {
		return fmt.Errorf("fingerprints differ: %s vs %s",
			original.Manifest.Fingerprint, replay.Manifest.Fingerprint)
	}
	if len(original.Rows) != len(replay.Rows) {
		return fmt.Errorf("row counts differ: %d vs %d", len(original.Rows), len(replay.Rows))
	}
	for i := range original.Rows {
		if original.Rows[i] != replay.Rows[i] {
			return fmt.Errorf("row %d differs: %+v vs %+v", i, original.Rows[i], replay.Rows[i])
		}
	}
	if original.Baseline.Objective != replay.Baseline.Objective {
		return fmt.Errorf("baseline objectives differ: %v vs %v",
			original.Baseline.Objective, replay.Baseline.Objective)
	}
	return nil
}
