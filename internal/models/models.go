package models

import "time"

// EquipmentRow is one measured piece of equipment from an uploaded CSV
type EquipmentRow struct {
	ID          int64   `json:"id,omitempty" yaml:"id,omitempty"`
	Dataset     int64   `json:"dataset,omitempty" yaml:"dataset,omitempty"`
	Name        string  `json:"name" yaml:"name"`
	Type        string  `json:"type" yaml:"type"`
	Flowrate    float64 `json:"flowrate" yaml:"flowrate"`
	Pressure    float64 `json:"pressure" yaml:"pressure"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
}

// Averages are the per-dataset means computed by the backend
type Averages struct {
	Flowrate    float64 `json:"flowrate" yaml:"flowrate"`
	Pressure    float64 `json:"pressure" yaml:"pressure"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
}

// SummaryReport is the aggregated view of one uploaded dataset.
// It is replaced wholesale on every fetch and never mutated in place.
type SummaryReport struct {
	ID               int64          `json:"id" yaml:"id"`
	FileName         string         `json:"file_name" yaml:"file_name"`
	TotalCount       int            `json:"total_count" yaml:"total_count"`
	Averages         Averages       `json:"averages" yaml:"averages"`
	TypeDistribution map[string]int `json:"type_distribution" yaml:"type_distribution"`
	Data             []EquipmentRow `json:"data" yaml:"data"`
}

// HistoryEntry is the metadata of a past upload
type HistoryEntry struct {
	ID             int64     `json:"id" yaml:"id"`
	FileName       string    `json:"file_name" yaml:"file_name"`
	UploadedAt     time.Time `json:"uploaded_at" yaml:"uploaded_at"`
	TotalCount     int       `json:"total_count" yaml:"total_count"`
	AvgFlowrate    float64   `json:"avg_flowrate" yaml:"avg_flowrate"`
	AvgPressure    float64   `json:"avg_pressure" yaml:"avg_pressure"`
	AvgTemperature float64   `json:"avg_temperature" yaml:"avg_temperature"`
}
