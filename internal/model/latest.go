package model

import "time"

// LatestReading is the most recent valid reading of one field of one device.
type LatestReading struct {
	DeviceID  string    `json:"device_id"`
	Field     string    `json:"field"`
	Port      int       `json:"port"`
	Value     float64   `json:"value"`
	Value2    float64   `json:"value2,omitempty"`
	Unit      string    `json:"unit"`
	Timestamp time.Time `json:"timestamp"`
}
