package forecast

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
)

// Region groupings accepted by RegionalSummary.
const (
	RegionDistrict = "district"
	RegionESCOM    = "escom"
)

// HeatmapPoint is one scored grid cell.
type HeatmapPoint struct {
	Latitude           float64          `json:"latitude"`
	Longitude          float64          `json:"longitude"`
	RiskScore          float64          `json:"risk_score"`
	RiskLevel          domain.RiskLevel `json:"risk_level"`
	RegionName         string           `json:"region_name"`
	PopulationAffected int              `json:"population_affected"`
}

// HeatmapMetadata echoes the query that produced a heatmap.
type HeatmapMetadata struct {
	BoundingBox       domain.BoundingBox `json:"bounding_box"`
	Resolution        int                `json:"resolution"`
	PredictionHorizon int                `json:"prediction_horizon"`
	TotalPoints       int                `json:"total_points"`
	ModelVersion      string             `json:"model_version"`
}

// Heatmap is a grid of risk scores over a bounding box.
type Heatmap struct {
	DataPoints []HeatmapPoint  `json:"data_points"`
	Metadata   HeatmapMetadata `json:"metadata"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Heatmap scores every catalog district once and assigns each grid cell the
// risk of its nearest district.
func (s *Service) Heatmap(ctx context.Context, bbox domain.BoundingBox, resolution, horizon int) (Heatmap, error) {
	if resolution == 0 {
		resolution = domain.DefaultResolution
	}
	horizon, err := normalizeHorizon(horizon)
	if err != nil {
		return Heatmap{}, err
	}
	points, err := domain.GenerateGrid(bbox, resolution)
	if err != nil {
		return Heatmap{}, err
	}

	key := fmt.Sprintf("%.6f|%.6f|%.6f|%.6f|%d|%d", bbox.North, bbox.South, bbox.East, bbox.West, resolution, horizon)
	if hm, ok := s.heatmaps.Get(key); ok {
		s.metrics.CacheResult("heatmap", true)
		return hm, nil
	}
	s.metrics.CacheResult("heatmap", false)

	scores, err := s.districtPredictions(ctx, horizon)
	if err != nil {
		return Heatmap{}, err
	}

	cells := make([]HeatmapPoint, 0, len(points))
	for _, pt := range points {
		d, _ := s.catalog.Nearest(pt.Latitude, pt.Longitude)
		p := scores[d.Name].Prediction
		cells = append(cells, HeatmapPoint{
			Latitude:           pt.Latitude,
			Longitude:          pt.Longitude,
			RiskScore:          p.RiskScore,
			RiskLevel:          p.RiskLevel,
			RegionName:         d.DisplayName,
			PopulationAffected: d.Population,
		})
	}

	_, version := s.ModelInfo()
	hm := Heatmap{
		DataPoints: cells,
		Metadata: HeatmapMetadata{
			BoundingBox:       bbox,
			Resolution:        resolution,
			PredictionHorizon: horizon,
			TotalPoints:       len(cells),
			ModelVersion:      version,
		},
		Timestamp: domain.Now(),
	}
	s.heatmaps.Put(key, hm)
	s.logger.Info("heatmap generated", "points", len(cells), "resolution", resolution, "horizon", horizon)
	return hm, nil
}

// districtPredictions scores every catalog district without explanations.
func (s *Service) districtPredictions(ctx context.Context, horizon int) (map[string]DistrictPrediction, error) {
	out := make(map[string]DistrictPrediction, s.catalog.Len())
	for _, d := range s.catalog.All() {
		dp, err := s.predictDistrict(ctx, d, horizon, false)
		if err != nil {
			return nil, fmt.Errorf("predict district %s: %w", d.Name, err)
		}
		out[d.Name] = dp
	}
	return out, nil
}

// AllDistricts returns a prediction for every catalog district in catalog
// order.
func (s *Service) AllDistricts(ctx context.Context, horizon int) ([]DistrictPrediction, error) {
	horizon, err := normalizeHorizon(horizon)
	if err != nil {
		return nil, err
	}
	byName, err := s.districtPredictions(ctx, horizon)
	if err != nil {
		return nil, err
	}
	out := make([]DistrictPrediction, 0, len(byName))
	for _, d := range s.catalog.All() {
		out = append(out, byName[d.Name])
	}
	return out, nil
}

func normalizeHorizon(h int) (int, error) {
	if h == 0 {
		return domain.DefaultHorizonHours, nil
	}
	if h < 1 || h > 72 {
		return 0, &domain.ValidationError{Field: "prediction_horizon", Reason: "must be between 1 and 72"}
	}
	return h, nil
}

// GeoJSON types for the heatmap FeatureCollection.

type FeatureCollection struct {
	Type       string               `json:"type"`
	Features   []Feature            `json:"features"`
	Properties CollectionProperties `json:"properties"`
}

type CollectionProperties struct {
	Timestamp time.Time       `json:"timestamp"`
	Metadata  HeatmapMetadata `json:"metadata"`
}

type Feature struct {
	Type       string            `json:"type"`
	Geometry   Point             `json:"geometry"`
	Properties FeatureProperties `json:"properties"`
}

// Point is a GeoJSON point. Coordinates are [longitude, latitude].
type Point struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

type FeatureProperties struct {
	RiskScore          float64          `json:"risk_score"`
	RegionName         string           `json:"region_name"`
	PopulationAffected int              `json:"population_affected"`
	RiskLevel          domain.RiskLevel `json:"risk_level"`
}

// HeatmapGeoJSON renders Heatmap as a GeoJSON FeatureCollection of points.
func (s *Service) HeatmapGeoJSON(ctx context.Context, bbox domain.BoundingBox, resolution, horizon int) (FeatureCollection, error) {
	hm, err := s.Heatmap(ctx, bbox, resolution, horizon)
	if err != nil {
		return FeatureCollection{}, err
	}
	return ToGeoJSON(hm), nil
}

// ToGeoJSON converts a heatmap into a FeatureCollection.
func ToGeoJSON(hm Heatmap) FeatureCollection {
	features := make([]Feature, 0, len(hm.DataPoints))
	for _, p := range hm.DataPoints {
		features = append(features, Feature{
			Type: "Feature",
			Geometry: Point{
				Type:        "Point",
				Coordinates: [2]float64{p.Longitude, p.Latitude},
			},
			Properties: FeatureProperties{
				RiskScore:          p.RiskScore,
				RegionName:         p.RegionName,
				PopulationAffected: p.PopulationAffected,
				RiskLevel:          domain.ClassifyRisk(p.RiskScore),
			},
		})
	}
	return FeatureCollection{
		Type:       "FeatureCollection",
		Features:   features,
		Properties: CollectionProperties{Timestamp: hm.Timestamp, Metadata: hm.Metadata},
	}
}

// RegionRisk is the current risk of one region.
type RegionRisk struct {
	Name              string           `json:"name"`
	DisplayName       string           `json:"display_name"`
	ESCOMZone         string           `json:"escom_zone,omitempty"`
	Latitude          float64          `json:"latitude,omitempty"`
	Longitude         float64          `json:"longitude,omitempty"`
	RiskScore         float64          `json:"risk_score"`
	RiskLevel         domain.RiskLevel `json:"risk_level"`
	Population        int              `json:"population"`
	EstimatedAffected int              `json:"estimated_affected"`
	Districts         []string         `json:"districts,omitempty"`
}

// RegionStats aggregates a regional summary.
type RegionStats struct {
	TotalRegions    int     `json:"total_regions"`
	HighRiskRegions int     `json:"high_risk_regions"`
	AverageRisk     float64 `json:"average_risk"`
}

// RegionalSummary is the per-region risk overview.
type RegionalSummary struct {
	RegionType string       `json:"region_type"`
	Timestamp  time.Time    `json:"timestamp"`
	Regions    []RegionRisk `json:"regions"`
	Summary    RegionStats  `json:"summary"`
}

// RegionalSummary reports current risk per district, or per distribution
// company with population-weighted scores when regionType is "escom".
func (s *Service) RegionalSummary(ctx context.Context, regionType string) (RegionalSummary, error) {
	if regionType == "" {
		regionType = RegionDistrict
	}
	if regionType != RegionDistrict && regionType != RegionESCOM {
		return RegionalSummary{}, &domain.ValidationError{Field: "region_type", Reason: "must be district or escom"}
	}

	preds, err := s.AllDistricts(ctx, domain.DefaultHorizonHours)
	if err != nil {
		return RegionalSummary{}, err
	}

	var regions []RegionRisk
	if regionType == RegionESCOM {
		regions = escomRegions(s.catalog.ByESCOM(), preds)
	} else {
		regions = make([]RegionRisk, 0, len(preds))
		for _, dp := range preds {
			score := dp.Prediction.RiskScore
			regions = append(regions, RegionRisk{
				Name:              dp.District,
				DisplayName:       dp.DisplayName,
				ESCOMZone:         dp.ESCOMZone,
				Latitude:          dp.Latitude,
				Longitude:         dp.Longitude,
				RiskScore:         score,
				RiskLevel:         dp.Prediction.RiskLevel,
				Population:        dp.Population,
				EstimatedAffected: estimatedAffected(dp.Population, score),
			})
		}
	}

	return RegionalSummary{
		RegionType: regionType,
		Timestamp:  domain.Now(),
		Regions:    regions,
		Summary:    summarize(regions),
	}, nil
}

// escomRegions folds district predictions into their distribution
// companies, weighting each district's score by population.
func escomRegions(zones map[string][]string, preds []DistrictPrediction) []RegionRisk {
	byName := make(map[string]DistrictPrediction, len(preds))
	for _, dp := range preds {
		byName[dp.District] = dp
	}

	out := make([]RegionRisk, 0, len(zones))
	for zone, names := range zones {
		var scores, weights []float64
		population := 0
		districts := make([]string, 0, len(names))
		for _, name := range names {
			dp, ok := byName[name]
			if !ok {
				continue
			}
			scores = append(scores, dp.Prediction.RiskScore)
			weights = append(weights, float64(dp.Population))
			population += dp.Population
			districts = append(districts, name)
		}
		if len(districts) == 0 {
			continue
		}
		score := stat.Mean(scores, weights)
		out = append(out, RegionRisk{
			Name:              zone,
			DisplayName:       zone,
			RiskScore:         score,
			RiskLevel:         domain.ClassifyRisk(score),
			Population:        population,
			EstimatedAffected: estimatedAffected(population, score),
			Districts:         districts,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func estimatedAffected(population int, score float64) int {
	return int(float64(population) * score / 10000)
}

func summarize(regions []RegionRisk) RegionStats {
	stats := RegionStats{TotalRegions: len(regions)}
	if len(regions) == 0 {
		return stats
	}
	scores := make([]float64, len(regions))
	for i, r := range regions {
		scores[i] = r.RiskScore
		if r.RiskScore >= domain.HighThreshold {
			stats.HighRiskRegions++
		}
	}
	stats.AverageRisk = stat.Mean(scores, nil)
	return stats
}
