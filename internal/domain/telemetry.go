package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// RawMessage represents an unprocessed message from the telemetry topic.
type RawMessage struct {
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Commit    func(ctx context.Context) error
}

// GridReading is one substation telemetry sample for a district.
type GridReading struct {
	District          string    `json:"district"`
	SubstationID      string    `json:"substation_id"`
	LoadFactor        float64   `json:"load_factor"`
	VoltageStability  float64   `json:"voltage_stability"`
	FeederHealth      float64   `json:"feeder_health"`
	MaintenanceStatus bool      `json:"maintenance_status"`
	HistoricalOutages int       `json:"historical_outages"`
	ObservedAt        time.Time `json:"observed_at"`
}

// Grid converts the reading into a prediction grid block.
func (r GridReading) Grid() GridInput {
	return GridInput{
		SubstationID:      r.SubstationID,
		LoadFactor:        r.LoadFactor,
		VoltageStability:  r.VoltageStability,
		HistoricalOutages: r.HistoricalOutages,
		MaintenanceStatus: r.MaintenanceStatus,
		FeederHealth:      r.FeederHealth,
	}
}

// ParseGridReading decodes and validates a telemetry message. A missing
// observed_at falls back to the message timestamp.
func ParseGridReading(raw RawMessage) (GridReading, error) {
	var r GridReading
	if err := json.Unmarshal(raw.Value, &r); err != nil {
		return GridReading{}, fmt.Errorf("parse grid reading: %w", err)
	}
	r.District = strings.ToLower(strings.TrimSpace(r.District))
	if r.ObservedAt.IsZero() {
		r.ObservedAt = raw.Timestamp
	}
	if r.ObservedAt.IsZero() {
		r.ObservedAt = Now()
	}

	var district error
	if r.District == "" {
		district = fieldErr("district", "is required")
	}
	if err := errors.Join(district, r.Grid().Validate()); err != nil {
		return GridReading{}, fmt.Errorf("validate grid reading: %w", err)
	}
	return r, nil
}
