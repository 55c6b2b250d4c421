package ports

import (
	"context"

	"golmer/domain/table"
)

// TableSourcePort loads a dataset into a columnar table. Sources carry their
// own location and parsing options; callers only see the loaded table.
type TableSourcePort interface {
	Load(ctx context.Context) (*table.Table, error)
}
