package domain

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/umahmood/haversine"
	"gopkg.in/yaml.v3"
)

//go:embed districts.yaml
var districtsYAML []byte

// District is a forecastable region with its distribution company and the
// baseline grid profile used when no telemetry has been received.
type District struct {
	Name              string    `json:"name"`
	DisplayName       string    `json:"display_name"`
	Latitude          float64   `json:"latitude"`
	Longitude         float64   `json:"longitude"`
	Priority          int       `json:"priority"`
	ESCOM             string    `json:"escom_zone"`
	Population        int       `json:"population"`
	BaselineGrid      GridInput `json:"baseline_grid"`
	TemperatureOffset float64   `json:"-"`
	RainfallFactor    float64   `json:"-"`
	aliases           []string
}

// Climate is the typical weather for one season.
type Climate struct {
	Temperature float64 `yaml:"temperature"`
	Humidity    float64 `yaml:"humidity"`
	WindSpeed   float64 `yaml:"wind_speed"`
	Rainfall    float64 `yaml:"rainfall"`
}

// Catalog is an immutable set of districts plus seasonal climatology.
type Catalog struct {
	districts   []District
	byName      map[string]int
	climatology [4]Climate
}

type catalogFile struct {
	Climatology struct {
		Winter      Climate `yaml:"winter"`
		Summer      Climate `yaml:"summer"`
		Monsoon     Climate `yaml:"monsoon"`
		PostMonsoon Climate `yaml:"post_monsoon"`
	} `yaml:"climatology"`
	Districts []districtEntry `yaml:"districts"`
}

type districtEntry struct {
	Name              string   `yaml:"name"`
	DisplayName       string   `yaml:"display_name"`
	Aliases           []string `yaml:"aliases"`
	Latitude          float64  `yaml:"latitude"`
	Longitude         float64  `yaml:"longitude"`
	Priority          int      `yaml:"priority"`
	ESCOM             string   `yaml:"escom"`
	Population        int      `yaml:"population"`
	TemperatureOffset float64  `yaml:"temperature_offset"`
	RainfallFactor    float64  `yaml:"rainfall_factor"`
	Grid              struct {
		SubstationID      string  `yaml:"substation_id"`
		LoadFactor        float64 `yaml:"load_factor"`
		VoltageStability  float64 `yaml:"voltage_stability"`
		HistoricalOutages int     `yaml:"historical_outages"`
		FeederHealth      float64 `yaml:"feeder_health"`
	} `yaml:"grid"`
}

// ParseCatalog decodes and validates a YAML district catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse district catalog: %w", err)
	}
	if len(f.Districts) == 0 {
		return nil, errors.New("district catalog is empty")
	}

	c := &Catalog{
		byName: make(map[string]int, len(f.Districts)),
		climatology: [4]Climate{
			f.Climatology.Winter,
			f.Climatology.Summer,
			f.Climatology.Monsoon,
			f.Climatology.PostMonsoon,
		},
	}

	for _, e := range f.Districts {
		d := District{
			Name:        strings.ToLower(strings.TrimSpace(e.Name)),
			DisplayName: e.DisplayName,
			Latitude:    e.Latitude,
			Longitude:   e.Longitude,
			Priority:    e.Priority,
			ESCOM:       e.ESCOM,
			Population:  e.Population,
			BaselineGrid: GridInput{
				SubstationID:      e.Grid.SubstationID,
				LoadFactor:        e.Grid.LoadFactor,
				VoltageStability:  e.Grid.VoltageStability,
				HistoricalOutages: e.Grid.HistoricalOutages,
				FeederHealth:      e.Grid.FeederHealth,
			},
			TemperatureOffset: e.TemperatureOffset,
			RainfallFactor:    e.RainfallFactor,
			aliases:           e.Aliases,
		}
		if d.DisplayName == "" {
			d.DisplayName = d.Name
		}
		if d.RainfallFactor == 0 {
			d.RainfallFactor = 1
		}
		if err := d.validate(); err != nil {
			return nil, err
		}

		idx := len(c.districts)
		for _, key := range append([]string{d.Name}, e.Aliases...) {
			key = strings.ToLower(strings.TrimSpace(key))
			if _, dup := c.byName[key]; dup {
				return nil, fmt.Errorf("district catalog: duplicate name %q", key)
			}
			c.byName[key] = idx
		}
		c.districts = append(c.districts, d)
	}
	return c, nil
}

func (d District) validate() error {
	if d.Name == "" {
		return errors.New("district catalog: entry without name")
	}
	if d.ESCOM == "" {
		return fmt.Errorf("district %s: escom is required", d.Name)
	}
	if err := errors.Join(
		checkRange("latitude", d.Latitude, -90, 90),
		checkRange("longitude", d.Longitude, -180, 180),
		d.BaselineGrid.Validate(),
	); err != nil {
		return fmt.Errorf("district %s: %w", d.Name, err)
	}
	return nil
}

var defaultCatalog = sync.OnceValue(func() *Catalog {
	c, err := ParseCatalog(districtsYAML)
	if err != nil {
		panic(err)
	}
	return c
})

// DefaultCatalog returns the embedded district catalog.
func DefaultCatalog() *Catalog { return defaultCatalog() }

// All returns the districts in catalog order.
func (c *Catalog) All() []District {
	out := make([]District, len(c.districts))
	copy(out, c.districts)
	return out
}

// Len is the number of districts.
func (c *Catalog) Len() int { return len(c.districts) }

// Lookup finds a district by name or alias, ignoring case and surrounding
// whitespace. Spaces and hyphens match underscores.
func (c *Catalog) Lookup(name string) (District, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer(" ", "_", "-", "_").Replace(key)
	idx, ok := c.byName[key]
	if !ok {
		return District{}, fmt.Errorf("%w: %q", ErrUnknownDistrict, name)
	}
	return c.districts[idx], nil
}

// Nearest returns the district closest to (lat, lon) by great-circle
// distance, along with that distance in kilometres.
func (c *Catalog) Nearest(lat, lon float64) (District, float64) {
	p := haversine.Coord{Lat: lat, Lon: lon}
	best, bestKM := 0, math.Inf(1)
	for i, d := range c.districts {
		_, km := haversine.Distance(p, haversine.Coord{Lat: d.Latitude, Lon: d.Longitude})
		if km < bestKM {
			best, bestKM = i, km
		}
	}
	return c.districts[best], bestKM
}

// ByESCOM groups district names by distribution company.
func (c *Catalog) ByESCOM() map[string][]string {
	out := make(map[string][]string)
	for _, d := range c.districts {
		out[d.ESCOM] = append(out[d.ESCOM], d.Name)
	}
	return out
}

// Climatology returns typical weather for d at time t, used when no live
// provider is configured or it fails.
func (c *Catalog) Climatology(d District, t time.Time) WeatherInput {
	base := c.climatology[Season(int(t.Month()))]
	w := WeatherInput{
		Latitude:    d.Latitude,
		Longitude:   d.Longitude,
		Temperature: base.Temperature + d.TemperatureOffset + diurnalSwing(t.Hour()),
		Humidity:    base.Humidity,
		WindSpeed:   base.WindSpeed,
		Rainfall:    base.Rainfall * d.RainfallFactor,
		Timestamp:   t,
	}
	w.StormAlert = StormAlert("", w.WindSpeed, w.Rainfall)
	return w
}

// diurnalSwing is a ±3 °C daily cycle peaking mid-afternoon.
func diurnalSwing(hour int) float64 {
	return 3 * math.Cos(2*math.Pi*float64(hour-15)/24)
}
