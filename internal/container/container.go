package container

import (
	"context"
	"fmt"
	"log"

	"golmer/adapters/lmm"
	"golmer/adapters/lrt"
	"golmer/adapters/sqldb"
	"golmer/app"
	"golmer/internal/config"
	"golmer/internal/errors"
	"golmer/ports"
)

// Container holds the wired application components and manages their lifecycle
type Container struct {
	Config *config.Config

	// Infrastructure
	Ledger *sqldb.ScreenLedger

	// Ledger views handed to components; nil when persistence is disabled
	Writer ports.ScreenWriterPort
	Reader ports.ScreenReaderPort

	// Screening pipeline
	Fitter     ports.FitterPort
	Comparator ports.ComparatorPort
	Screens    *app.ScreenService
}

// New creates a dependency container for the given configuration
func New(cfg *config.Config) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	c := &Container{
		Config: cfg,
	}

	return c, nil
}

// Init opens the ledger when one is configured and wires the screening
// pipeline. The Writer and Reader views stay nil interfaces when the ledger
// is disabled so callers can pass them along without a typed-nil check.
func (c *Container) Init() error {
	if c.Config.Ledger.Enabled {
		ledger, err := sqldb.Open(c.Config.Ledger.Driver, c.Config.Ledger.DSN)
		if err != nil {
			return errors.LedgerFailure("failed to open screen ledger", err)
		}
		c.Ledger = ledger
		c.Writer = ledger
		c.Reader = ledger
	}

	c.Fitter = lmm.NewFitter()
	c.Comparator = lrt.NewComparator()
	c.Screens = app.NewScreenService(c.Fitter, c.Comparator, c.Writer, c.Config.Screen.MaxParallel)

	log.Printf("Container initialized, ledger enabled: %v", c.Config.Ledger.Enabled)
	return nil
}

// Shutdown gracefully releases held resources
func (c *Container) Shutdown(ctx context.Context) error {
	if c.Ledger != nil {
		return c.Ledger.Close()
	}
	return nil
}
