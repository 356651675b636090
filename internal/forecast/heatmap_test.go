package forecast

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
)

var karnataka = domain.BoundingBox{North: 18.5, South: 11.5, East: 78.6, West: 74.0}

func TestHeatmap(t *testing.T) {
	h := newHarness(t, nil)

	hm, err := h.svc.Heatmap(context.Background(), karnataka, 10, 0)
	require.NoError(t, err)

	require.Len(t, hm.DataPoints, 100)
	assert.Equal(t, 100, hm.Metadata.TotalPoints)
	assert.Equal(t, 10, hm.Metadata.Resolution)
	assert.Equal(t, domain.DefaultHorizonHours, hm.Metadata.PredictionHorizon)
	assert.Equal(t, karnataka, hm.Metadata.BoundingBox)

	first := hm.DataPoints[0]
	assert.Equal(t, karnataka.South, first.Latitude)
	assert.Equal(t, karnataka.West, first.Longitude)
	nearest, _ := domain.DefaultCatalog().Nearest(first.Latitude, first.Longitude)
	assert.Equal(t, nearest.DisplayName, first.RegionName)
	assert.Equal(t, nearest.Population, first.PopulationAffected)
	assert.Equal(t, domain.ClassifyRisk(first.RiskScore), first.RiskLevel)
}

func TestHeatmap_CellsShareDistrictScore(t *testing.T) {
	h := newHarness(t, nil)
	hm, err := h.svc.Heatmap(context.Background(), karnataka, 20, 24)
	require.NoError(t, err)

	byRegion := map[string]float64{}
	for _, p := range hm.DataPoints {
		if score, ok := byRegion[p.RegionName]; ok {
			assert.Equal(t, score, p.RiskScore, "region %s", p.RegionName)
		}
		byRegion[p.RegionName] = p.RiskScore
	}
	assert.LessOrEqual(t, len(byRegion), domain.DefaultCatalog().Len())
}

func TestHeatmap_Cached(t *testing.T) {
	h := newHarness(t, nil)

	a, err := h.svc.Heatmap(context.Background(), karnataka, 10, 24)
	require.NoError(t, err)
	b, err := h.svc.Heatmap(context.Background(), karnataka, 10, 24)
	require.NoError(t, err)

	if diff := cmp.Diff(a, b); diff != "" {
		t.Fatalf("cached heatmap mismatch (-first +second):\n%s", diff)
	}
}

func TestHeatmap_Validation(t *testing.T) {
	h := newHarness(t, nil)
	tests := []struct {
		name       string
		bbox       domain.BoundingBox
		resolution int
		horizon    int
	}{
		{"inverted latitude", domain.BoundingBox{North: 11, South: 12, East: 78, West: 74}, 10, 24},
		{"inverted longitude", domain.BoundingBox{North: 18, South: 12, East: 74, West: 78}, 10, 24},
		{"resolution too small", karnataka, 5, 24},
		{"resolution too large", karnataka, 500, 24},
		{"horizon too long", karnataka, 10, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.svc.Heatmap(context.Background(), tt.bbox, tt.resolution, tt.horizon)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestHeatmapGeoJSON(t *testing.T) {
	h := newHarness(t, nil)
	fc, err := h.svc.HeatmapGeoJSON(context.Background(), karnataka, 10, 24)
	require.NoError(t, err)

	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 100)
	f := fc.Features[0]
	assert.Equal(t, "Feature", f.Type)
	assert.Equal(t, "Point", f.Geometry.Type)
	assert.Equal(t, [2]float64{karnataka.West, karnataka.South}, f.Geometry.Coordinates, "coordinates are lon, lat")
	assert.Equal(t, 100, fc.Properties.Metadata.TotalPoints)

	data, err := json.Marshal(fc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"population_affected"`)
	assert.Contains(t, string(data), `"risk_level"`)
}

func TestRegionalSummary_Districts(t *testing.T) {
	h := newHarness(t, nil)
	sum, err := h.svc.RegionalSummary(context.Background(), "")
	require.NoError(t, err)

	assert.Equal(t, RegionDistrict, sum.RegionType)
	require.Len(t, sum.Regions, domain.DefaultCatalog().Len())
	assert.Equal(t, len(sum.Regions), sum.Summary.TotalRegions)

	var total float64
	high := 0
	for _, r := range sum.Regions {
		total += r.RiskScore
		if r.RiskScore >= 60 {
			high++
		}
		assert.Equal(t, int(float64(r.Population)*r.RiskScore/10000), r.EstimatedAffected)
	}
	assert.Equal(t, high, sum.Summary.HighRiskRegions)
	assert.InDelta(t, total/float64(len(sum.Regions)), sum.Summary.AverageRisk, 1e-9)
}

func TestRegionalSummary_ESCOM(t *testing.T) {
	h := newHarness(t, nil)
	sum, err := h.svc.RegionalSummary(context.Background(), RegionESCOM)
	require.NoError(t, err)

	zones := domain.DefaultCatalog().ByESCOM()
	require.Len(t, sum.Regions, len(zones))
	for _, r := range sum.Regions {
		assert.ElementsMatch(t, zones[r.Name], r.Districts)
		assert.GreaterOrEqual(t, r.RiskScore, 0.0)
		assert.LessOrEqual(t, r.RiskScore, 100.0)
	}
}

func TestEscomRegions_WeightsByPopulation(t *testing.T) {
	pred := func(name string, population int, score float64) DistrictPrediction {
		return DistrictPrediction{District: name, Population: population, Prediction: domain.Prediction{RiskScore: score}}
	}
	zones := map[string][]string{
		"BESCOM":  {"bangalore", "tumkur"},
		"CHESCOM": {"mysore"},
		"GESCOM":  {"gulbarga"},
	}
	regions := escomRegions(zones, []DistrictPrediction{
		pred("bangalore", 3000, 80),
		pred("tumkur", 1000, 40),
		pred("mysore", 500, 20),
	})

	require.Len(t, regions, 2, "zones without predictions are left out")
	assert.Equal(t, "BESCOM", regions[0].Name)
	assert.InDelta(t, 70, regions[0].RiskScore, 1e-9)
	assert.Equal(t, domain.RiskHigh, regions[0].RiskLevel)
	assert.Equal(t, 4000, regions[0].Population)
	assert.Equal(t, []string{"bangalore", "tumkur"}, regions[0].Districts)
	assert.Equal(t, "CHESCOM", regions[1].Name)
	assert.InDelta(t, 20, regions[1].RiskScore, 1e-9)
}

func TestRegionalSummary_UnknownType(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.RegionalSummary(context.Background(), "state")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSummarize_Empty(t *testing.T) {
	assert.Equal(t, RegionStats{}, summarize(nil))
}
