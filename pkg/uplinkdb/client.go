package uplinkdb

import (
	"context"
	"time"

	dbpkg "lora-sensor-node/internal/db"
	"lora-sensor-node/internal/model"
)

// Client exposes a stable API for third-party packages to access the DB.
type Client struct{ db *dbpkg.DB }

// Open opens the SQLite database (runs migrations) and returns a client.
func Open(path string) (*Client, error) {
	d, err := dbpkg.Open(path)
	if err != nil {
		return nil, err
	}
	return &Client{db: d}, nil
}

// Close closes the underlying DB.
func (c *Client) Close() error { return c.db.Close() }

// --------------------
// Uplink DTOs and converters
// --------------------

// Reading is one decoded field. Port is filled from the parent uplink when
// read back; it is ignored on save.
type Reading struct {
	Port      int
	Field     string
	Value     float64
	Value2    float64
	Valid     bool
	Unit      string
	Timestamp time.Time
}

type Uplink struct {
	ID         string
	DeviceID   string
	Port       int
	Payload    string // hex
	RSSI       int
	SNR        float64
	ReceivedAt time.Time
	Readings   []Reading
}

func toModelUplink(u *Uplink) *model.Uplink {
	if u == nil {
		return nil
	}
	m := &model.Uplink{
		ID:         u.ID,
		DeviceID:   u.DeviceID,
		Port:       u.Port,
		Payload:    u.Payload,
		RSSI:       u.RSSI,
		SNR:        u.SNR,
		ReceivedAt: u.ReceivedAt,
	}
	for _, r := range u.Readings {
		ts := r.Timestamp
		if ts.IsZero() {
			ts = u.ReceivedAt
		}
		m.Readings = append(m.Readings, model.Reading{
			UplinkID:  u.ID,
			DeviceID:  u.DeviceID,
			Port:      u.Port,
			Field:     r.Field,
			Value:     r.Value,
			Value2:    r.Value2,
			Valid:     r.Valid,
			Unit:      r.Unit,
			Timestamp: ts,
		})
	}
	return m
}

func fromModelReading(r *model.Reading) Reading {
	return Reading{
		Port:      r.Port,
		Field:     r.Field,
		Value:     r.Value,
		Value2:    r.Value2,
		Valid:     r.Valid,
		Unit:      r.Unit,
		Timestamp: r.Timestamp,
	}
}

func fromModelUplink(u *model.Uplink) *Uplink {
	if u == nil {
		return nil
	}
	out := &Uplink{
		ID:         u.ID,
		DeviceID:   u.DeviceID,
		Port:       u.Port,
		Payload:    u.Payload,
		RSSI:       u.RSSI,
		SNR:        u.SNR,
		ReceivedAt: u.ReceivedAt,
	}
	for i := range u.Readings {
		out.Readings = append(out.Readings, fromModelReading(&u.Readings[i]))
	}
	return out
}

// --------------------
// Uplinks
// --------------------

// SaveUplink stores an uplink and its readings in one transaction.
func (c *Client) SaveUplink(ctx context.Context, u *Uplink) error {
	return c.db.SaveUplink(ctx, toModelUplink(u))
}

func (c *Client) GetUplink(ctx context.Context, id string) (*Uplink, error) {
	u, err := c.db.GetUplink(ctx, id)
	if err != nil {
		return nil, err
	}
	return fromModelUplink(u), nil
}
