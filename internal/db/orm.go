package db

import (
	"context"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"

	"lora-sensor-node/internal/model"
)

// openORM opens a GORM SQLite connection on the modernc driver ("sqlite").
// gorm.io/driver/sqlite still links mattn/go-sqlite3, so builds need cgo.
func openORM(path string) (*gorm.DB, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	return gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite", DSN: dsn}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
}

// migrateORM ensures the schema for all models exists.
func migrateORM(db *gorm.DB) error {
	return db.AutoMigrate(&model.Uplink{}, &model.Reading{})
}

// closeORM closes the underlying SQL DB associated with the GORM connection.
func closeORM(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// insertUplink persists an uplink and its readings in one transaction.
func insertUplink(ctx context.Context, db *gorm.DB, u *model.Uplink) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(u).Error
	})
}

// deleteDevice removes every uplink and reading of a device.
func deleteDevice(ctx context.Context, db *gorm.DB, deviceID string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("device_id = ?", deviceID).Delete(&model.Reading{}).Error; err != nil {
			return err
		}
		return tx.Where("device_id = ?", deviceID).Delete(&model.Uplink{}).Error
	})
}
