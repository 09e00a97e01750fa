package uplinkdb

import (
	"context"
	"time"
)

// --------------------
// Devices and readings
// --------------------

type Device struct {
	DeviceID string
	Uplinks  int64
	LastSeen time.Time
}

type LatestReading struct {
	DeviceID  string
	Field     string
	Port      int
	Value     float64
	Value2    float64
	Unit      string
	Timestamp time.Time
}

func (c *Client) ListDevices(ctx context.Context) ([]Device, error) {
	list, err := c.db.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Device, 0, len(list))
	for _, d := range list {
		out = append(out, Device{DeviceID: d.DeviceID, Uplinks: d.Uplinks, LastSeen: d.LastSeen})
	}
	return out, nil
}

func (c *Client) DeleteDevice(ctx context.Context, deviceID string) error {
	return c.db.DeleteDevice(ctx, deviceID)
}

// LatestReadings returns the newest valid reading per field. An empty deviceID
// selects every device.
func (c *Client) LatestReadings(ctx context.Context, deviceID string) ([]LatestReading, error) {
	rows, err := c.db.LatestReadings(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	out := make([]LatestReading, 0, len(rows))
	for _, r := range rows {
		out = append(out, LatestReading(r))
	}
	return out, nil
}

// DeviceHistory returns readings of a device, newest first. limit <= 0 means no limit.
func (c *Client) DeviceHistory(ctx context.Context, deviceID string, limit int) ([]Reading, error) {
	rows, err := c.db.DeviceHistory(ctx, deviceID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]Reading, 0, len(rows))
	for i := range rows {
		out = append(out, fromModelReading(&rows[i]))
	}
	return out, nil
}

// LatestReadingsJSON returns the newest reading per device and field as JSON.
func (c *Client) LatestReadingsJSON(ctx context.Context) ([]byte, error) {
	return c.db.LatestReadingsJSON(ctx)
}

// StatsJSON returns device stats and readings of deviceID as JSON.
func (c *Client) StatsJSON(ctx context.Context, deviceID string, limit int) ([]byte, error) {
	return c.db.StatsJSON(ctx, deviceID, limit)
}
