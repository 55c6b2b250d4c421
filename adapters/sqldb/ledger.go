package sqldb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"golmer/domain/core"
	"golmer/domain/screen"
	"golmer/internal"
)

// Reruns of the same screen get fresh IDs upstream, so a plain INSERT with a
// primary key is all the append-only guarantee needs.
const schema = `
CREATE TABLE IF NOT EXISTS screen_reports (
	id                  TEXT PRIMARY KEY,
	fingerprint         TEXT NOT NULL,
	dataset_fingerprint TEXT NOT NULL,
	baseline_formula    TEXT NOT NULL,
	criterion           TEXT NOT NULL,
	n_obs               BIGINT NOT NULL,
	anomalous_rows      BIGINT NOT NULL,
	runtime_ms          BIGINT NOT NULL,
	created_at          TEXT NOT NULL,
	manifest            TEXT NOT NULL,
	payload             TEXT NOT NULL
)`

// ScreenLedger stores screen reports in a relational database. Queries are
// written with ? placeholders and rebound per driver, so the same code runs
// against sqlite3 and postgres.
type ScreenLedger struct {
	db     *sqlx.DB
	logger *internal.Logger
}

// Open connects to the database and ensures the schema exists. The caller
// must have registered the driver (blank import in the binary).
func Open(driver, dsn string) (*ScreenLedger, error) {
	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting %s ledger: %w", driver, err)
	}
	ledger, err := NewScreenLedger(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return ledger, nil
}

// NewScreenLedger wraps an existing connection and ensures the schema exists
func NewScreenLedger(db *sqlx.DB) (*ScreenLedger, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("creating screen_reports table: %w", err)
	}
	return &ScreenLedger{
		db:     db,
		logger: internal.DefaultLogger.Component("ScreenLedger"),
	}, nil
}

// Close releases the underlying connection
func (l *ScreenLedger) Close() error {
	return l.db.Close()
}

// StoreReport appends one report. Duplicate screen IDs fail on the primary
// key rather than overwriting history.
func (l *ScreenLedger) StoreReport(ctx context.Context, report *screen.Report) error {
	if report == nil {
		return fmt.Errorf("cannot store a nil report")
	}
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encoding report %s: %w", report.ScreenID, err)
	}
	manifest, err := json.Marshal(report.Manifest)
	if err != nil {
		return fmt.Errorf("encoding manifest %s: %w", report.ScreenID, err)
	}

	query := l.db.Rebind(`
		INSERT INTO screen_reports (
			id, fingerprint, dataset_fingerprint, baseline_formula, criterion,
			n_obs, anomalous_rows, runtime_ms, created_at, manifest, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = l.db.ExecContext(ctx, query,
		report.ScreenID.String(),
		string(report.Manifest.Fingerprint),
		string(report.Manifest.DatasetFingerprint),
		report.Manifest.BaselineFormula,
		string(report.Manifest.Criterion),
		report.Manifest.NObs,
		report.Manifest.AnomalousRows,
		report.Manifest.RuntimeMs,
		report.Manifest.CreatedAt.String(),
		string(manifest),
		string(payload))
	if err != nil {
		return fmt.Errorf("storing report %s: %w", report.ScreenID, err)
	}

	l.logger.Debug("stored report %s (%d rows)", report.ScreenID, len(report.Rows))
	return nil
}

// GetReport loads one report by ID
func (l *ScreenLedger) GetReport(ctx context.Context, id core.ScreenID) (*screen.Report, error) {
	var payload []byte
	query := l.db.Rebind(`SELECT payload FROM screen_reports WHERE id = ?`)
	if err := l.db.GetContext(ctx, &payload, query, id.String()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", core.ErrScreenNotFound, id)
		}
		return nil, fmt.Errorf("loading report %s: %w", id, err)
	}

	var report screen.Report
	if err := json.Unmarshal(payload, &report); err != nil {
		return nil, fmt.Errorf("decoding report %s: %w", id, err)
	}
	return &report, nil
}

// ListManifests returns manifests newest first. A non-positive limit
// defaults to 50.
func (l *ScreenLedger) ListManifests(ctx context.Context, limit, offset int) ([]screen.Manifest, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	// Screen IDs are time-ordered, which breaks same-second ties
	var payloads [][]byte
	query := l.db.Rebind(`
		SELECT manifest FROM screen_reports
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`)
	if err := l.db.SelectContext(ctx, &payloads, query, limit, offset); err != nil {
		return nil, fmt.Errorf("listing manifests: %w", err)
	}

	manifests := make([]screen.Manifest, 0, len(payloads))
	for _, p := range payloads {
		var m screen.Manifest
		if err := json.Unmarshal(p, &m); err != nil {
			return nil, fmt.Errorf("decoding manifest: %w", err)
		}
		manifests = append(manifests, m)
	}
	return manifests, nil
}
