package storage

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"lora-sensor-node/internal/payload"
)

func sampleRecord() Record {
	return Record{
		Timestamp: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Direction: "rx",
		DeviceID:  "node-01",
		Port:      51,
		Payload:   "0181fa3ae8161e9f",
		Fields: map[string]payload.Reading{
			"battery_voltage": payload.Scalar(3.85),
			"location":        payload.Pair(-37.8136, 144.9631),
		},
	}
}

func TestStorageWritesJSONLAndCSV(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, "uplinks", "both", 10)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Handle(sampleRecord()); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	s.Close()
	s.Close()

	jf, err := os.Open(filepath.Join(dir, "uplinks.jsonl"))
	if err != nil {
		t.Fatalf("open jsonl: %v", err)
	}
	defer jf.Close()
	sc := bufio.NewScanner(jf)
	if !sc.Scan() {
		t.Fatalf("jsonl is empty")
	}
	var got Record
	if err := json.Unmarshal(sc.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Port != 51 || !got.Fields["location"].Valid || got.Fields["location"].Values[1] != 144.9631 {
		t.Fatalf("unexpected record: %+v", got)
	}

	cf, err := os.Open(filepath.Join(dir, "uplinks.csv"))
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer cf.Close()
	rows, err := csv.NewReader(cf).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	if rows[1][5] != "battery_voltage" || rows[2][5] != "location" || rows[2][7] != "144.9631" {
		t.Fatalf("unexpected csv rows: %v", rows[1:])
	}
}

func TestStorageQueueFull(t *testing.T) {
	s := &Storage{q: make(chan Record, 1)}
	if err := s.Handle(Record{}); err != nil {
		t.Fatalf("first Handle: %v", err)
	}
	if err := s.Handle(Record{}); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestStorageRejectsUnknownType(t *testing.T) {
	if _, err := New(t.TempDir(), "x", "parquet", 0); err == nil {
		t.Fatalf("expected error for unknown file type")
	}
}
