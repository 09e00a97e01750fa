package db

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/gorm"

	"lora-sensor-node/internal/model"
)

// DB wraps the sqlite connection holding received uplinks.
type DB struct {
	ORM *gorm.DB
}

// Open opens the SQLite database using GORM and runs migrations.
func Open(path string) (*DB, error) {
	g, err := openORM(path)
	if err != nil {
		return nil, err
	}
	if err := migrateORM(g); err != nil {
		_ = closeORM(g)
		return nil, err
	}
	return &DB{ORM: g}, nil
}

func (d *DB) Close() error { return closeORM(d.ORM) }

// SaveUplink inserts an uplink together with its decoded readings.
func (d *DB) SaveUplink(ctx context.Context, u *model.Uplink) error {
	return insertUplink(ctx, d.ORM, u)
}

// GetUplink loads one uplink and its readings.
func (d *DB) GetUplink(ctx context.Context, id string) (*model.Uplink, error) {
	var u model.Uplink
	err := d.ORM.WithContext(ctx).
		Preload("Readings", func(tx *gorm.DB) *gorm.DB { return tx.Order("id") }).
		First(&u, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// DeleteDevice removes all stored data of a device.
func (d *DB) DeleteDevice(ctx context.Context, deviceID string) error {
	return deleteDevice(ctx, d.ORM, deviceID)
}

// DeviceInfo summarises one device for stats output.
type DeviceInfo struct {
	DeviceID string    `json:"device_id"`
	Uplinks  int64     `json:"uplinks"`
	LastSeen time.Time `json:"last_seen"`
}

// ListDevices returns every device that has sent at least one uplink.
func (d *DB) ListDevices(ctx context.Context) ([]DeviceInfo, error) {
	var rows []struct {
		DeviceID string
		Uplinks  int64
	}
	err := d.ORM.WithContext(ctx).
		Model(&model.Uplink{}).
		Select("device_id, COUNT(*) as uplinks").
		Group("device_id").
		Order("device_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]DeviceInfo, 0, len(rows))
	for _, r := range rows {
		var last model.Uplink
		if err := d.ORM.WithContext(ctx).
			Where("device_id = ?", r.DeviceID).
			Order("received_at DESC").
			First(&last).Error; err != nil {
			return nil, err
		}
		out = append(out, DeviceInfo{DeviceID: r.DeviceID, Uplinks: r.Uplinks, LastSeen: last.ReceivedAt})
	}
	return out, nil
}

// DeviceHistory returns readings of a device, newest first.
// When limit > 0, at most limit rows are returned.
func (d *DB) DeviceHistory(ctx context.Context, deviceID string, limit int) ([]model.Reading, error) {
	q := d.ORM.WithContext(ctx).
		Where("device_id = ?", deviceID).
		Order("timestamp DESC, field")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []model.Reading
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// LatestReadings returns, for each (device, field), the newest valid reading.
// An empty deviceID selects every device.
func (d *DB) LatestReadings(ctx context.Context, deviceID string) ([]model.LatestReading, error) {
	sub := d.ORM.Model(&model.Reading{}).
		Select("device_id, field, MAX(timestamp) as ts").
		Where("valid = ?", true).
		Group("device_id, field")
	q := d.ORM.WithContext(ctx).
		Table("readings as r").
		Select("r.device_id, r.field, r.port, r.value, r.value2, r.unit, r.timestamp").
		Joins("JOIN (?) as l ON l.device_id = r.device_id AND l.field = r.field AND l.ts = r.timestamp", sub).
		Where("r.valid = ?", true)
	if deviceID != "" {
		q = q.Where("r.device_id = ?", deviceID)
	}
	var out []model.LatestReading
	if err := q.Order("r.device_id, r.field").Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// LatestReadingsJSON is LatestReadings for every device, marshalled to JSON.
func (d *DB) LatestReadingsJSON(ctx context.Context) ([]byte, error) {
	rows, err := d.LatestReadings(ctx, "")
	if err != nil {
		return nil, err
	}
	return json.Marshal(rows)
}

// Stats aggregates devices and recent readings of one device.
type Stats struct {
	DeviceCount   int             `json:"device_count"`
	Devices       []DeviceInfo    `json:"devices"`
	UplinkCount   int64           `json:"uplink_count"`
	ReadingsCount int             `json:"readings_count"`
	Readings      []model.Reading `json:"readings"`
}

// StatsJSON returns aggregated stats in JSON for a given deviceID.
// If limit > 0, at most limit readings are included.
func (d *DB) StatsJSON(ctx context.Context, deviceID string, limit int) ([]byte, error) {
	devices, err := d.ListDevices(ctx)
	if err != nil {
		return nil, err
	}
	var uplinks int64
	if err := d.ORM.WithContext(ctx).Model(&model.Uplink{}).Count(&uplinks).Error; err != nil {
		return nil, err
	}
	readings, err := d.DeviceHistory(ctx, deviceID, limit)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Stats{
		DeviceCount:   len(devices),
		Devices:       devices,
		UplinkCount:   uplinks,
		ReadingsCount: len(readings),
		Readings:      readings,
	})
}
