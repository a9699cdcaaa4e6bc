package devicecatalog

import (
	"context"

	"github.com/netassist/core/pkg/models"
)

// Accessor adapts Catalog's value-typed repository methods to the
// pointer-typed models.PersistenceAccessor interface plugins are handed
// through PluginContext.Services.Persistence.
type Accessor struct {
	catalog *Catalog
}

var _ models.PersistenceAccessor = (*Accessor)(nil)

// NewAccessor wraps catalog for use as a PluginContext service.
func NewAccessor(catalog *Catalog) *Accessor {
	return &Accessor{catalog: catalog}
}

func (a *Accessor) UpsertDevice(ctx context.Context, d *models.Device) (*models.Device, error) {
	out, err := a.catalog.UpsertDevice(ctx, *d)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Accessor) UpsertService(ctx context.Context, s *models.Service) (*models.Service, error) {
	out, err := a.catalog.UpsertService(ctx, *s)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (a *Accessor) SaveSnapshot(ctx context.Context, snap *models.ContentSnapshot) (*models.ContentSnapshot, error) {
	out, err := a.catalog.SaveSnapshot(ctx, *snap)
	if err != nil {
		return nil, err
	}
	return &out, nil
}
