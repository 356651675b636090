// Package domain models district-level power-outage risk.
//
// # Inputs
//
// A prediction combines two signal blocks:
//
//	Weather: temperature (°C), humidity (%), wind speed (km/h), rainfall (mm),
//	lightning strike count and a storm-alert flag, at a coordinate.
//	Grid:    load factor, voltage stability and feeder health (all 0–1),
//	historical outage count and a maintenance flag, for a substation.
//
// Weather arrives either in the request body or from the weather provider.
// Provider readings are converted to the same units: wind m/s × 3.6, visibility
// m / 1000, and forecast rainfall is the 3h bucket averaged to 1h.
//
// # Risk Scale
//
// Scores run 0–100 and map to four levels:
//
//	<30 low | <60 medium | <80 high | ≥80 critical
//
// The same thresholds drive advisory severity, heatmap colouring and the
// what-if threshold crossings.
//
// # Seasons
//
// Season encoding follows the Indian meteorological calendar:
//
//	Dec–Feb winter (0) | Mar–May summer (1) | Jun–Sep monsoon (2) | Oct–Nov post-monsoon (3)
//
// # Districts
//
// The district catalog is embedded from districts.yaml. Each entry carries
// coordinates, the ESCOM distribution zone, a priority tier, population, a
// baseline grid profile used when no telemetry has been received, and a
// climatology used when live weather is unavailable.
package domain
