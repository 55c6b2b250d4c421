package screen

import (
	"fmt"
	"math"
	"strings"

	"golmer/domain/core"
	"golmer/domain/fit"
)

// ============================================================================
// COMPARISON ROWS
// ============================================================================

// ComparisonRow is the outcome of testing one candidate predictor against
// the shared baseline.
// INVARIANTS:
// - DFDiff > 0 (a degenerate comparison never produces a row)
// - PValue in [0.0, 1.0]
// - ObjectiveDiff is candidate objective minus baseline objective, so a
//   negative value means the candidate improved the fit
// - Anomalous marks a candidate that fit WORSE than its nested baseline
//   beyond numerical tolerance; the row is reported, never suppressed
type ComparisonRow struct {
	Predictor     string  `json:"predictor"`
	ObjectiveDiff float64 `json:"objective_diff"`
	DFDiff        int     `json:"df_diff"`
	PValue        float64 `json:"p_value"`
	Anomalous     bool    `json:"anomalous,omitempty"`
}

// NewComparisonRow creates a comparison row with invariant validation
func NewComparisonRow(predictor string, objectiveDiff float64, dfDiff int, pValue float64, anomalous bool) (ComparisonRow, error) {
	if strings.TrimSpace(predictor) == "" {
		return ComparisonRow{}, fmt.Errorf("Predictor must be set")
	}
	if dfDiff <= 0 {
		return ComparisonRow{}, fmt.Errorf("DFDiff must be > 0, got %d", dfDiff)
	}
	if math.IsNaN(objectiveDiff) || math.IsInf(objectiveDiff, 0) {
		return ComparisonRow{}, fmt.Errorf("ObjectiveDiff must be finite, got %v", objectiveDiff)
	}
	if math.IsNaN(pValue) || pValue < 0.0 || pValue > 1.0 {
		return ComparisonRow{}, fmt.Errorf("PValue must be in [0.0, 1.0], got %v", pValue)
	}
	return ComparisonRow{
		Predictor:     predictor,
		ObjectiveDiff: objectiveDiff,
		DFDiff:        dfDiff,
		PValue:        pValue,
		Anomalous:     anomalous,
	}, nil
}

// ============================================================================
// SCREEN MANIFEST (audit trail)
// ============================================================================

// Manifest captures the complete specification and accounting of one screen
type Manifest struct {
	ScreenID           core.ScreenID           `json:"screen_id"`
	DatasetFingerprint core.DatasetFingerprint `json:"dataset_fingerprint"`
	BaselineFormula    string                  `json:"baseline_formula"`
	Predictors         []string                `json:"predictors"`
	Criterion          fit.Criterion           `json:"criterion"`
	NObs               int                     `json:"n_obs"`
	FitsAttempted      int                     `json:"fits_attempted"`
	FitsSucceeded      int                     `json:"fits_succeeded"`
	AnomalousRows      int                     `json:"anomalous_rows"`
	RuntimeMs          int64                   `json:"runtime_ms"`
	CreatedAt          core.Timestamp          `json:"created_at"`

	// Fingerprint covers inputs and results but not identity or timing, so
	// two runs of the same screen carry equal fingerprints.
	Fingerprint core.ScreenFingerprint `json:"fingerprint"`
}

// ============================================================================
// REPORT
// ============================================================================

// Report is the deliverable of a screen: one row per requested predictor, in
// the order the predictors were requested, plus the baseline summary and the
// audit manifest.
type Report struct {
	ScreenID core.ScreenID   `json:"screen_id"`
	Baseline *fit.Model      `json:"baseline"`
	Rows     []ComparisonRow `json:"rows"`
	Manifest Manifest        `json:"manifest"`
}

// NewReport assembles a report and seals the manifest fingerprint
func NewReport(screenID core.ScreenID, baseline *fit.Model, rows []ComparisonRow, manifest Manifest) (*Report, error) {
	if screenID.String() == "" {
		return nil, fmt.Errorf("ScreenID must be set")
	}
	if baseline == nil {
		return nil, fmt.Errorf("Baseline must be set")
	}
	if len(rows) != len(manifest.Predictors) {
		return nil, fmt.Errorf("row count %d does not match predictor count %d", len(rows), len(manifest.Predictors))
	}
	for i, row := range rows {
		if row.Predictor != manifest.Predictors[i] {
			return nil, fmt.Errorf("row %d is %q, expected %q: rows must follow predictor order", i, row.Predictor, manifest.Predictors[i])
		}
	}

	anomalous := 0
	for _, row := range rows {
		if row.Anomalous {
			anomalous++
		}
	}
	manifest.ScreenID = screenID
	manifest.AnomalousRows = anomalous
	manifest.Fingerprint = ComputeFingerprint(manifest.DatasetFingerprint, manifest.BaselineFormula, manifest.Criterion, rows)

	return &Report{
		ScreenID: screenID,
		Baseline: baseline,
		Rows:     rows,
		Manifest: manifest,
	}, nil
}

// Matrix returns the numeric result table: one row per predictor, columns
// [objective_diff, df_diff, p_value].
func (r *Report) Matrix() [][]float64 {
	out := make([][]float64, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = []float64{row.ObjectiveDiff, float64(row.DFDiff), row.PValue}
	}
	return out
}

// Row looks up a comparison by predictor name
func (r *Report) Row(predictor string) (ComparisonRow, bool) {
	for _, row := range r.Rows {
		if row.Predictor == predictor {
			return row, true
		}
	}
	return ComparisonRow{}, false
}

// ComputeFingerprint hashes the content of a screen: inputs plus every row,
// full float precision. Identity and timing fields stay out so reruns of the
// same screen fingerprint identically.
func ComputeFingerprint(dataset core.DatasetFingerprint, baselineFormula string, criterion fit.Criterion, rows []ComparisonRow) core.ScreenFingerprint {
	var data strings.Builder
	data.WriteString(dataset.String())
	data.WriteString("|")
	data.WriteString(baselineFormula)
	data.WriteString("|")
	data.WriteString(string(criterion))
	for _, row := range rows {
		data.WriteString(fmt.Sprintf("|%s;%x;%d;%x;%t",
			row.Predictor, row.ObjectiveDiff, row.DFDiff, row.PValue, row.Anomalous))
	}
	return core.NewScreenFingerprint([]byte(data.String()))
}
