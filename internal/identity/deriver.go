package identity

import (
	"context"
	"fmt"

	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// Deriver builds identity-tagged relations from staging relations.
type Deriver struct {
	warehouse tripmerge.Warehouse
	logger    tripmerge.Logger
}

// NewDeriver creates a Deriver. It panics on nil dependencies.
func NewDeriver(warehouse tripmerge.Warehouse, logger tripmerge.Logger) *Deriver {
	if warehouse == nil {
		panic("warehouse cannot be nil")
	}
	if logger == nil {
		panic("logger cannot be nil")
	}
	return &Deriver{warehouse: warehouse, logger: logger}
}

// Derive rebuilds the tagged relation of key from its staging relation and returns the
// number of tagged rows. Repeating it yields the same relation.
func (d *Deriver) Derive(ctx context.Context, key tripmerge.BatchKey, filename string) (int64, error) {
	fields, err := FieldsFor(key.Source)
	if err != nil {
		return 0, err
	}

	staging := key.StagingTable()
	exists, err := d.warehouse.TableExists(ctx, staging)
	if err != nil {
		return 0, fmt.Errorf("check staging relation %s: %w", staging, err)
	}
	if !exists {
		return 0, fmt.Errorf("%s: %w", staging, tripmerge.ErrStagingMissing)
	}

	spec := tripmerge.IdentitySpec{
		StagingTable:   staging,
		TaggedTable:    key.TaggedTable(),
		KeyColumns:     fields.Columns(),
		SourceFilename: filename,
	}
	d.logger.Verbose("Deriving identities %s -> %s", spec.StagingTable, spec.TaggedTable)

	rows, err := d.warehouse.DeriveIdentity(ctx, spec)
	if err != nil {
		return 0, fmt.Errorf("derive identity for %s: %w", key, err)
	}
	d.logger.Verbose("Tagged %d rows in %s", rows, spec.TaggedTable)
	return rows, nil
}
