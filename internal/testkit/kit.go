package testkit

import (
	"context"
	"fmt"
	"sync"

	"golmer/adapters/lmm"
	"golmer/adapters/lrt"
	"golmer/domain/core"
	"golmer/domain/screen"
	"golmer/ports"
)

// TestKit bundles real engine adapters with an in-memory ledger so tests and
// development commands can run full screens without external services
type TestKit struct {
	Fitter     ports.FitterPort
	Comparator ports.ComparatorPort
	Ledger     *InMemoryScreenLedger
}

// NewTestKit creates a kit backed by the production fitter and comparator
func NewTestKit() *TestKit {
	return &TestKit{
		Fitter:     lmm.NewFitter(),
		Comparator: lrt.NewComparator(),
		Ledger:     NewInMemoryScreenLedger(),
	}
}

// InMemoryScreenLedger is a map-backed ports.ScreenLedgerPort.
// Like the durable ledger it is append-only: a screen id can be stored once.
type InMemoryScreenLedger struct {
	mu      sync.RWMutex
	reports map[core.ScreenID]*screen.Report
	order   []core.ScreenID
}

// NewInMemoryScreenLedger creates an empty ledger
func NewInMemoryScreenLedger() *InMemoryScreenLedger {
	return &InMemoryScreenLedger{
		reports: make(map[core.ScreenID]*screen.Report),
	}
}

// StoreReport implements ports.ScreenWriterPort
func (l *InMemoryScreenLedger) StoreReport(ctx context.Context, report *screen.Report) error {
	if report == nil {
		return fmt.Errorf("nil report")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.reports[report.ScreenID]; exists {
		return fmt.Errorf("screen %s already stored", report.ScreenID)
	}
	l.reports[report.ScreenID] = report
	l.order = append(l.order, report.ScreenID)
	return nil
}

// GetReport implements ports.ScreenReaderPort
func (l *InMemoryScreenLedger) GetReport(ctx context.Context, id core.ScreenID) (*screen.Report, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	report, ok := l.reports[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrScreenNotFound, id)
	}
	return report, nil
}

// ListManifests implements ports.ScreenReaderPort, newest first
func (l *InMemoryScreenLedger) ListManifests(ctx context.Context, limit, offset int) ([]screen.Manifest, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	manifests := make([]screen.Manifest, 0, limit)
	for i := len(l.order) - 1 - offset; i >= 0 && len(manifests) < limit; i-- {
		manifests = append(manifests, l.reports[l.order[i]].Manifest)
	}
	return manifests, nil
}

// Len reports how many screens have been stored
func (l *InMemoryScreenLedger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.reports)
}
