package pipeline

import (
	"context"

	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
)

// TelemetryTransformer implements Transformer by parsing grid readings and
// rejecting districts outside the catalog.
type TelemetryTransformer struct {
	catalog *domain.Catalog
}

// NewTransformer creates a TelemetryTransformer over catalog.
func NewTransformer(catalog *domain.Catalog) *TelemetryTransformer {
	return &TelemetryTransformer{catalog: catalog}
}

func (t *TelemetryTransformer) Transform(_ context.Context, raw domain.RawMessage) (domain.GridReading, error) {
	reading, err := domain.ParseGridReading(raw)
	if err != nil {
		return domain.GridReading{}, err
	}
	d, err := t.catalog.Lookup(reading.District)
	if err != nil {
		return domain.GridReading{}, err
	}
	reading.District = d.Name
	return reading, nil
}
