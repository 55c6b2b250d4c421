package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"golmer/domain/core"
	"golmer/domain/fit"
	"golmer/domain/formula"
	"golmer/domain/screen"
	"golmer/domain/table"
	"golmer/internal"
	"golmer/internal/profiling"
	"golmer/ports"
)

// ScreenService runs the predictor screen: one baseline fit, one candidate
// fit per predictor, and one likelihood-ratio row per candidate, in the
// order the predictors were requested.
type ScreenService struct {
	fitter      ports.FitterPort
	comparator  ports.ComparatorPort
	ledger      ports.ScreenWriterPort
	logger      *internal.Logger
	maxParallel int64
}

// ScreenRequest defines the inputs of one screen run
type ScreenRequest struct {
	Table      *table.Table
	Baseline   formula.Formula
	Predictors []string
	Config     fit.Config
	ScreenID   core.ScreenID // optional, generated if empty
	Persist    bool          // store the report when a ledger is wired
}

// NewScreenService creates a screen service. The ledger may be nil for
// callers that only want the in-memory report.
func NewScreenService(fitter ports.FitterPort, comparator ports.ComparatorPort, ledger ports.ScreenWriterPort, maxParallel int) *ScreenService {
	if maxParallel < 1 {
		maxParallel = 4
	}
	return &ScreenService{
		fitter:      fitter,
		comparator:  comparator,
		ledger:      ledger,
		logger:      internal.DefaultLogger.Component("ScreenService"),
		maxParallel: int64(maxParallel),
	}
}

// Screen executes the full run. Candidate fits run concurrently up to the
// configured width; rows always come back in predictor order, so the report
// is identical at any parallelism level.
func (s *ScreenService) Screen(ctx context.Context, req ScreenRequest) (*screen.Report, error) {
	startTime := time.Now()

	cfg := req.Config.Normalized()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("screen config: %w", err)
	}
	// Likelihood-ratio rows are only meaningful under ML; REML objectives of
	// models with different fixed effects are not comparable
	if cfg.Criterion != fit.ML {
		return nil, fmt.Errorf("screening requires ML, got %s: %w", cfg.Criterion, core.ErrCriterionMismatch)
	}
	if req.Table == nil || req.Table.Len() == 0 {
		return nil, core.ErrEmptyTable
	}
	if err := req.Baseline.Validate(); err != nil {
		return nil, fmt.Errorf("baseline formula: %w", err)
	}
	if len(req.Predictors) == 0 {
		return nil, fmt.Errorf("no predictors to screen")
	}

	screenID := req.ScreenID
	if screenID.String() == "" {
		screenID = core.ScreenID(core.NewID())
	}

	// Candidates are derived first so name collisions and duplicates fail
	// before any data work
	candidates, err := formula.Candidates(req.Baseline, req.Predictors)
	if err != nil {
		return nil, fmt.Errorf("building candidates: %w", err)
	}

	if err := s.preflight(req.Table, req.Predictors); err != nil {
		return nil, err
	}

	s.logger.Info("screen %s: %d predictors against %q on %d rows",
		screenID, len(req.Predictors), req.Baseline.String(), req.Table.Len())

	baseline, err := s.fitter.Fit(ctx, req.Table, req.Baseline, cfg)
	if err != nil {
		return nil, fmt.Errorf("baseline fit: %w", err)
	}
	s.logger.Debug("screen %s: baseline objective %.6f (dof %d)", screenID, baseline.Objective, baseline.DOF())

	models, err := s.fitCandidates(ctx, req.Table, candidates, cfg)
	if err != nil {
		return nil, err
	}

	rows := make([]screen.ComparisonRow, len(candidates))
	for i, model := range models {
		row, err := s.comparator.Compare(ctx, baseline, model, cfg)
		if err != nil {
			return nil, fmt.Errorf("comparing %q: %w", req.Predictors[i], err)
		}
		rows[i] = row
	}

	manifest := screen.Manifest{
		DatasetFingerprint: req.Table.Fingerprint(),
		BaselineFormula:    req.Baseline.String(),
		Predictors:         req.Predictors,
		Criterion:          cfg.Criterion,
		NObs:               baseline.NObs,
		FitsAttempted:      len(candidates) + 1,
		FitsSucceeded:      len(candidates) + 1,
		RuntimeMs:          time.Since(startTime).Milliseconds(),
		CreatedAt:          core.Now(),
	}
	report, err := screen.NewReport(screenID, baseline, rows, manifest)
	if err != nil {
		return nil, fmt.Errorf("assembling report: %w", err)
	}

	if req.Persist && s.ledger != nil {
		if err := s.ledger.StoreReport(ctx, report); err != nil {
			return nil, fmt.Errorf("storing report %s: %w", screenID, err)
		}
		s.logger.Debug("screen %s: report stored", screenID)
	}

	s.logger.Info("screen %s: %d rows, %d anomalous, %dms",
		screenID, len(report.Rows), report.Manifest.AnomalousRows, report.Manifest.RuntimeMs)
	return report, nil
}

// preflight rejects predictors that cannot produce a testable comparison:
// unknown columns and columns with no variation. Catching these before any
// fitting keeps the failure tied to the offending predictor by name.
func (s *ScreenService) preflight(tbl *table.Table, predictors []string) error {
	for _, name := range predictors {
		col, ok := tbl.Column(name)
		if !ok {
			return core.NewColumnNotFoundError(name)
		}
		profile, err := profiling.ProfileColumn(col)
		if err != nil {
			return fmt.Errorf("profiling %q: %w", name, err)
		}
		if profile.Constant {
			return core.NewConstantPredictorError(name)
		}
	}
	return nil
}

// fitCandidates fits all candidate formulas with bounded concurrency.
// Results are keyed by input index; the first failure cancels the rest.
func (s *ScreenService) fitCandidates(ctx context.Context, tbl *table.Table, candidates []formula.Formula, cfg fit.Config) ([]*fit.Model, error) {
	fitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := semaphore.NewWeighted(s.maxParallel)
	var wg sync.WaitGroup
	models := make([]*fit.Model, len(candidates))
	errs := make([]error, len(candidates))

	for i, candidate := range candidates {
		wg.Add(1)
		go func(idx int, f formula.Formula) {
			defer wg.Done()
			if err := sem.Acquire(fitCtx, 1); err != nil {
				errs[idx] = err
				return
			}
			defer sem.Release(1)

			model, err := s.fitter.Fit(fitCtx, tbl, f, cfg)
			if err != nil {
				errs[idx] = err
				cancel()
				return
			}
			models[idx] = model
		}(i, candidate)
	}
	wg.Wait()

	// Report the first real failure by input order; cancellations of
	// siblings are a consequence, not the cause
	var cancelled error
	for i, err := range errs {
		if err == nil {
			continue
		}
		if !errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("candidate %q: %w", candidates[i].String(), err)
		}
		if cancelled == nil {
			cancelled = fmt.Errorf("candidate %q: %w", candidates[i].String(), err)
		}
	}
	if cancelled != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, cancelled
	}
	return models, nil
}
