package ports

import (
	"context"

	"golmer/domain/core"
	"golmer/domain/screen"
)

// ScreenWriterPort provides append-only write access to screen reports.
// This is the ONLY way to persist results - reruns append, never overwrite.
type ScreenWriterPort interface {
	StoreReport(ctx context.Context, report *screen.Report) error
}

// ScreenReaderPort provides read-only access to stored screen reports.
// Use this for queries, replay checks, and API access.
type ScreenReaderPort interface {
	GetReport(ctx context.Context, id core.ScreenID) (*screen.Report, error)
	ListManifests(ctx context.Context, limit, offset int) ([]screen.Manifest, error)
}

// ScreenLedgerPort combines read and write access
type ScreenLedgerPort interface {
	ScreenWriterPort
	ScreenReaderPort
}
