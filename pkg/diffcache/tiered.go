package diffcache

import (
	"context"

	"github.com/hashicorp/go-multierror"
)

// Tiered layers stores from fastest to slowest. A hit in a lower layer is
// copied into the layers above it.
type Tiered struct {
	layers []Store
}

// NewTiered returns a Store over layers, fastest first.
func NewTiered(layers ...Store) *Tiered {
	return &Tiered{layers: layers}
}

func (t *Tiered) Load(ctx context.Context, key Key) ([]string, bool, error) {
	var errs *multierror.Error
	for i, layer := range t.layers {
		paths, ok, err := layer.Load(ctx, key)
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		if !ok {
			continue
		}
		for _, upper := range t.layers[:i] {
			if err := upper.Save(ctx, key, paths); err != nil {
				errs = multierror.Append(errs, err)
			}
		}
		// A hit is a hit even when a backfill failed.
		return paths, true, nil
	}
	return nil, false, errs.ErrorOrNil()
}

func (t *Tiered) Save(ctx context.Context, key Key, paths []string) error {
	var errs *multierror.Error
	for _, layer := range t.layers {
		if err := layer.Save(ctx, key, paths); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

func (t *Tiered) Purge(ctx context.Context, project string) error {
	var errs *multierror.Error
	for _, layer := range t.layers {
		if err := layer.Purge(ctx, project); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
