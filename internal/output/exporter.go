package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"lora-sensor-node/internal/model"
	"lora-sensor-node/internal/payload"
)

// WriteJSON writes latest readings to a JSON file with pretty formatting.
func WriteJSON(path string, rows []model.LatestReading) error {
	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	if err := os.WriteFile(path, b, 0644); err != nil {
		return fmt.Errorf("write json: %w", err)
	}
	return nil
}

// WriteCSV writes one row per reading.
// Columns: device_id,field,port,value,value2,unit,timestamp
// value2 is only filled for two-value fields.
func WriteCSV(path string, rows []model.LatestReading) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	headers := []string{"device_id", "field", "port", "value", "value2", "unit", "timestamp"}
	if err := w.Write(headers); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, r := range rows {
		var v2 string
		if k, err := payload.ParseKind(r.Field); err == nil && payload.FieldFor(k).ValueCount > 1 {
			v2 = formatFloat(r.Value2)
		}
		rec := []string{
			r.DeviceID,
			r.Field,
			strconv.Itoa(r.Port),
			formatFloat(r.Value),
			v2,
			r.Unit,
			timeToRFC3339(r.Timestamp),
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func timeToRFC3339(t time.Time) string { return t.Format(time.RFC3339Nano) }
