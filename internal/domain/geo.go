package domain

import "errors"

// Heatmap grid resolution limits.
const (
	MinResolution     = 10
	MaxResolution     = 200
	DefaultResolution = 50
)

// BoundingBox is a lat/lon rectangle.
type BoundingBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Validate checks coordinate ranges and that the box is non-degenerate.
func (b BoundingBox) Validate() error {
	err := errors.Join(
		checkRange("north", b.North, -90, 90),
		checkRange("south", b.South, -90, 90),
		checkRange("east", b.East, -180, 180),
		checkRange("west", b.West, -180, 180),
	)
	if err != nil {
		return err
	}
	if b.North <= b.South {
		return fieldErr("north", "must be greater than south")
	}
	if b.East <= b.West {
		return fieldErr("east", "must be greater than west")
	}
	return nil
}

// GridPoint is one cell origin of a heatmap grid.
type GridPoint struct {
	Row       int
	Col       int
	Latitude  float64
	Longitude float64
}

// GenerateGrid lays a resolution×resolution grid over b. Cell (i, j) sits at
// south + i·latStep, west + j·lonStep, so the north and east edges are
// excluded.
func GenerateGrid(b BoundingBox, resolution int) ([]GridPoint, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	if resolution < MinResolution || resolution > MaxResolution {
		return nil, fieldErr("resolution", "must be between 10 and 200")
	}

	latStep := (b.North - b.South) / float64(resolution)
	lonStep := (b.East - b.West) / float64(resolution)
	points := make([]GridPoint, 0, resolution*resolution)
	for i := range resolution {
		for j := range resolution {
			points = append(points, GridPoint{
				Row:       i,
				Col:       j,
				Latitude:  b.South + float64(i)*latStep,
				Longitude: b.West + float64(j)*lonStep,
			})
		}
	}
	return points, nil
}
