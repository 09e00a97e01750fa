package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lora-sensor-node/internal/model"
)

func sampleRows() []model.LatestReading {
	ts := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
	return []model.LatestReading{
		{DeviceID: "node-01", Field: "battery_voltage", Port: 1, Value: 3.85, Unit: "V", Timestamp: ts},
		{DeviceID: "node-01", Field: "location", Port: 50, Value: -37.8136, Value2: 144.9631, Unit: "deg", Timestamp: ts},
	}
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.csv")
	if err := WriteCSV(path, sampleRows()); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %q", lines)
	}
	if lines[0] != "device_id,field,port,value,value2,unit,timestamp" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != "node-01,battery_voltage,1,3.85,,V,2026-10-19T08:00:00Z" {
		t.Fatalf("battery row = %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "node-01,location,50,-37.8136,144.9631,") {
		t.Fatalf("location row = %q", lines[2])
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "latest.json")
	if err := WriteJSON(path, sampleRows()); err != nil {
		t.Fatalf("write json: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read json: %v", err)
	}
	var rows []model.LatestReading
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(rows) != 2 || rows[1].Value2 != 144.9631 {
		t.Fatalf("unexpected rows %+v", rows)
	}
}
