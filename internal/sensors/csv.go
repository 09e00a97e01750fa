package sensors

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"lora-sensor-node/internal/payload"
)

// LoadCSV reads recorded sensor data. The header names fields (battery_voltage,
// temperature, ...); location uses location_lat and location_lon. Empty, "-" or
// NaN cells are invalid readings. Unknown columns are ignored.
func LoadCSV(path string) ([]payload.Snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, errors.New("csv must contain header and at least one data row")
	}

	header := records[0]
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}

	rows := make([]payload.Snapshot, 0, len(records)-1)
	for line, record := range records[1:] {
		if len(record) != len(header) {
			return nil, fmt.Errorf("csv record %d length mismatch", line+2)
		}
		var s payload.Snapshot
		for _, k := range payload.Kinds() {
			names := []string{k.String()}
			if k == payload.Location {
				names = []string{"location_lat", "location_lon"}
			}
			r, present, err := parseCells(record, cols, names)
			if err != nil {
				return nil, fmt.Errorf("csv record %d %s: %w", line+2, k, err)
			}
			if present {
				s.Set(k, r)
			}
		}
		rows = append(rows, s)
	}
	return rows, nil
}

func parseCells(record []string, cols map[string]int, names []string) (payload.Reading, bool, error) {
	r := payload.Reading{Valid: true}
	for _, name := range names {
		i, ok := cols[name]
		if !ok {
			return payload.Reading{}, false, nil
		}
		cell := strings.TrimSpace(record[i])
		if cell == "" || cell == "-" || strings.EqualFold(cell, "nan") {
			r.Valid = false
			r.Values = append(r.Values, 0)
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return payload.Reading{}, false, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			r.Valid = false
		}
		r.Values = append(r.Values, v)
	}
	return r, true, nil
}

// CSVReader replays recorded rows, one row per sampling cycle, wrapping around
// at the end.
type CSVReader struct {
	mu   sync.Mutex
	rows []payload.Snapshot
	idx  int
	has  payload.FieldSet
}

func NewCSVReader(path string) (*CSVReader, error) {
	rows, err := LoadCSV(path)
	if err != nil {
		return nil, err
	}
	return newCSVReader(rows), nil
}

func newCSVReader(rows []payload.Snapshot) *CSVReader {
	r := &CSVReader{rows: rows, idx: -1}
	for _, k := range payload.Kinds() {
		for i := range rows {
			if rd := rows[i].Get(k); rd.Valid || len(rd.Values) > 0 {
				r.has = r.has.With(k)
				break
			}
		}
	}
	return r
}

// Advance moves to the next recorded row.
func (r *CSVReader) Advance() {
	r.mu.Lock()
	r.idx = (r.idx + 1) % len(r.rows)
	r.mu.Unlock()
}

func (r *CSVReader) Read(_ context.Context, k payload.Kind) (payload.Reading, error) {
	if !r.has.Has(k) {
		return payload.Invalid(), ErrNotConfigured
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.idx
	if i < 0 {
		i = 0
	}
	return r.rows[i].Get(k), nil
}
