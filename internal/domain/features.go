package domain

import (
	"math"
	"time"
)

// TemporalFeatures are calendar signals for the moment a prediction is made.
type TemporalFeatures struct {
	HourOfDay  int
	DayOfWeek  int // 0 = Monday
	DayOfMonth int
	Month      int
	Quarter    int
	Season     int
	IsWeekend  bool
	IsPeakHour bool
	IsNight    bool
	HourSin    float64
	HourCos    float64
	DaySin     float64
	DayCos     float64
	MonthSin   float64
	MonthCos   float64
}

// ExtractTemporalFeatures derives calendar features from t.
func ExtractTemporalFeatures(t time.Time) TemporalFeatures {
	weekday := (int(t.Weekday()) + 6) % 7
	hour := t.Hour()
	month := int(t.Month())

	return TemporalFeatures{
		HourOfDay:  hour,
		DayOfWeek:  weekday,
		DayOfMonth: t.Day(),
		Month:      month,
		Quarter:    (month-1)/3 + 1,
		Season:     Season(month),
		IsWeekend:  weekday >= 5,
		IsPeakHour: isPeakHour(hour),
		IsNight:    hour < 6 || hour > 22,
		HourSin:    math.Sin(2 * math.Pi * float64(hour) / 24),
		HourCos:    math.Cos(2 * math.Pi * float64(hour) / 24),
		DaySin:     math.Sin(2 * math.Pi * float64(weekday) / 7),
		DayCos:     math.Cos(2 * math.Pi * float64(weekday) / 7),
		MonthSin:   math.Sin(2 * math.Pi * float64(month) / 12),
		MonthCos:   math.Cos(2 * math.Pi * float64(month) / 12),
	}
}

func isPeakHour(hour int) bool {
	switch hour {
	case 8, 9, 10, 17, 18, 19, 20:
		return true
	}
	return false
}

// Season encodes month on the Indian calendar:
// 0 winter, 1 summer, 2 monsoon, 3 post-monsoon.
func Season(month int) int {
	switch month {
	case 12, 1, 2:
		return 0
	case 3, 4, 5:
		return 1
	case 6, 7, 8, 9:
		return 2
	default:
		return 3
	}
}

// WeatherFeatures are engineered signals derived from a WeatherInput.
type WeatherFeatures struct {
	TempExtreme      bool
	HeatIndex        float64
	WindCategory     int
	RainfallCategory int
	HeavyRain        bool
	ExtremeRain      bool
	LightningRisk    float64 // 0–1
	HighLightning    bool
	SeverityScore    float64 // 0–1
	StormIntensity   float64
}

// EngineerWeather derives weather features.
func EngineerWeather(w WeatherInput) WeatherFeatures {
	f := WeatherFeatures{
		TempExtreme:      w.Temperature > 40 || w.Temperature < 5,
		HeatIndex:        HeatIndex(w.Temperature, w.Humidity),
		WindCategory:     WindCategory(w.WindSpeed),
		RainfallCategory: RainfallCategory(w.Rainfall),
		HeavyRain:        w.Rainfall > 25,
		ExtremeRain:      w.Rainfall > 50,
		LightningRisk:    math.Min(float64(w.LightningStrikes)/10, 1),
		HighLightning:    w.LightningStrikes > 5,
	}

	severity := 0.0
	if f.TempExtreme {
		severity += 0.2
	}
	severity += float64(f.WindCategory) * 0.15
	severity += float64(f.RainfallCategory) * 0.25
	if f.HighLightning {
		severity += 0.2
	}
	if w.StormAlert {
		severity += 0.2
	}
	f.SeverityScore = math.Min(severity, 1)
	f.StormIntensity = w.WindSpeed*w.WindSpeed*0.3 + w.Rainfall*0.4 + f.LightningRisk*0.3
	return f
}

// HeatIndex approximates apparent temperature. Below 27 °C it is the
// temperature itself.
func HeatIndex(tempC, humidity float64) float64 {
	if tempC < 27 {
		return tempC
	}
	t, h := tempC, humidity
	hi := -8.78469475556 +
		1.61139411*t +
		2.33854883889*h +
		-0.14611605*t*h +
		-0.012308094*t*t +
		-0.0164248277778*h*h +
		0.002211732*t*t*h +
		0.00072546*t*h*h +
		-0.000003582*t*t*h*h
	return math.Max(tempC, hi)
}

// WindCategory buckets km/h: 0 calm, 1 light, 2 moderate, 3 strong, 4 severe.
func WindCategory(kmh float64) int {
	switch {
	case kmh < 10:
		return 0
	case kmh < 25:
		return 1
	case kmh < 50:
		return 2
	case kmh < 75:
		return 3
	default:
		return 4
	}
}

// RainfallCategory buckets mm: 0 none, 1 light, 2 moderate, 3 heavy, 4 extreme.
func RainfallCategory(mm float64) int {
	switch {
	case mm <= 0:
		return 0
	case mm < 2.5:
		return 1
	case mm < 10:
		return 2
	case mm < 50:
		return 3
	default:
		return 4
	}
}

// GridFeatures are engineered signals derived from a GridInput.
type GridFeatures struct {
	LoadStress         float64
	HighLoad           bool
	VoltageRisk        float64
	LowVoltage         bool
	CriticalVoltage    bool
	OutageFrequency    float64
	HighOutageHistory  bool
	EquipmentRisk      float64
	PoorEquipment      bool
	VulnerabilityScore float64
}

// EngineerGrid derives grid features.
func EngineerGrid(g GridInput) GridFeatures {
	f := GridFeatures{
		LoadStress:        math.Max(0, g.LoadFactor-0.8),
		HighLoad:          g.LoadFactor > 0.85,
		VoltageRisk:       1 - g.VoltageStability,
		LowVoltage:        g.VoltageStability < 0.7,
		CriticalVoltage:   g.VoltageStability < 0.5,
		OutageFrequency:   math.Min(float64(g.HistoricalOutages)/10, 1),
		HighOutageHistory: g.HistoricalOutages > 5,
		EquipmentRisk:     1 - g.FeederHealth,
		PoorEquipment:     g.FeederHealth < 0.6,
	}
	f.VulnerabilityScore = f.LoadStress*0.3 + f.VoltageRisk*0.3 + f.EquipmentRisk*0.2 + f.OutageFrequency*0.2
	return f
}

// InteractionFeatures capture weather × grid combinations.
type InteractionFeatures struct {
	RainWind               float64
	WeatherLoadStress      float64
	StormVoltageRisk       float64
	LightningEquipmentRisk float64
	ExtremeWeatherHighLoad bool
	StormDuringMaintenance bool
}

// Interactions derives weather × grid interaction features.
func Interactions(w WeatherInput, g GridInput) InteractionFeatures {
	exposure := w.Rainfall + w.WindSpeed
	return InteractionFeatures{
		RainWind:               w.Rainfall * w.WindSpeed,
		WeatherLoadStress:      exposure * g.LoadFactor,
		StormVoltageRisk:       exposure * (1 - g.VoltageStability),
		LightningEquipmentRisk: float64(w.LightningStrikes) * (1 - g.FeederHealth),
		ExtremeWeatherHighLoad: (w.Rainfall > 25 || w.WindSpeed > 50) && g.LoadFactor > 0.8,
		StormDuringMaintenance: w.StormAlert && g.MaintenanceStatus,
	}
}

// FeatureNames lists the columns of FeatureVector in order. Serialized tree
// models must be trained on the same columns.
var FeatureNames = []string{
	"temperature",
	"humidity",
	"wind_speed",
	"rainfall",
	"lightning_strikes",
	"storm_alert",
	"load_factor",
	"voltage_stability",
	"historical_outages",
	"maintenance_status",
	"feeder_health",
	"hour_of_day",
	"day_of_week",
	"month",
	"season",
	"prediction_horizon",

	// Engineered columns. Appended so models bound by position to the raw
	// prefix keep their layout.
	"temp_extreme",
	"heat_index",
	"wind_category",
	"rainfall_category",
	"heavy_rain",
	"extreme_rain",
	"lightning_risk",
	"high_lightning",
	"weather_severity_score",
	"storm_intensity",
	"load_stress",
	"high_load",
	"voltage_risk",
	"low_voltage",
	"critical_voltage",
	"outage_frequency",
	"high_outage_history",
	"equipment_risk",
	"poor_equipment",
	"grid_vulnerability_score",
	"rain_wind_interaction",
	"weather_load_stress",
	"storm_voltage_risk",
	"lightning_equipment_risk",
	"extreme_weather_high_load",
	"storm_maintenance_risk",
}

// FeatureVector flattens a request into the model input row. at supplies the
// temporal block (normally the prediction time).
func FeatureVector(req PredictionRequest, at time.Time) []float64 {
	tf := ExtractTemporalFeatures(at)
	w, g := req.Weather, req.Grid
	horizon := req.PredictionHorizon
	if horizon == 0 {
		horizon = DefaultHorizonHours
	}
	wf, gf, ix := EngineerWeather(w), EngineerGrid(g), Interactions(w, g)
	return []float64{
		w.Temperature,
		w.Humidity,
		w.WindSpeed,
		w.Rainfall,
		float64(w.LightningStrikes),
		boolToFloat(w.StormAlert),
		g.LoadFactor,
		g.VoltageStability,
		float64(g.HistoricalOutages),
		boolToFloat(g.MaintenanceStatus),
		g.FeederHealth,
		float64(tf.HourOfDay),
		float64(tf.DayOfWeek),
		float64(tf.Month),
		float64(tf.Season),
		float64(horizon),

		boolToFloat(wf.TempExtreme),
		wf.HeatIndex,
		float64(wf.WindCategory),
		float64(wf.RainfallCategory),
		boolToFloat(wf.HeavyRain),
		boolToFloat(wf.ExtremeRain),
		wf.LightningRisk,
		boolToFloat(wf.HighLightning),
		wf.SeverityScore,
		wf.StormIntensity,
		gf.LoadStress,
		boolToFloat(gf.HighLoad),
		gf.VoltageRisk,
		boolToFloat(gf.LowVoltage),
		boolToFloat(gf.CriticalVoltage),
		gf.OutageFrequency,
		boolToFloat(gf.HighOutageHistory),
		gf.EquipmentRisk,
		boolToFloat(gf.PoorEquipment),
		gf.VulnerabilityScore,
		ix.RainWind,
		ix.WeatherLoadStress,
		ix.StormVoltageRisk,
		ix.LightningEquipmentRisk,
		boolToFloat(ix.ExtremeWeatherHighLoad),
		boolToFloat(ix.StormDuringMaintenance),
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
