package model

import "time"

// Uplink is one received frame. Payload is the hex encoding of the frame bytes
// exactly as they came off the transport.
type Uplink struct {
	ID         string    `gorm:"column:id;primaryKey" json:"id"`
	DeviceID   string    `gorm:"column:device_id;index" json:"device_id"`
	Port       int       `gorm:"column:port;index" json:"port"`
	Payload    string    `gorm:"column:payload" json:"payload"`
	RSSI       int       `gorm:"column:rssi" json:"rssi"`
	SNR        float64   `gorm:"column:snr" json:"snr"`
	ReceivedAt time.Time `gorm:"column:received_at;index" json:"received_at"`

	Readings []Reading `gorm:"foreignKey:UplinkID;references:ID;constraint:OnDelete:CASCADE" json:"readings,omitempty"`
}

func (Uplink) TableName() string { return "uplinks" }

// Reading is one decoded field of an uplink. Value2 is only used by two-value
// fields (longitude for location).
type Reading struct {
	ID        uint      `gorm:"column:id;primaryKey;autoIncrement" json:"id"`
	UplinkID  string    `gorm:"column:uplink_id;index" json:"uplink_id"`
	DeviceID  string    `gorm:"column:device_id;index" json:"device_id"`
	Port      int       `gorm:"column:port" json:"port"`
	Field     string    `gorm:"column:field;index" json:"field"`
	Value     float64   `gorm:"column:value" json:"value"`
	Value2    float64   `gorm:"column:value2" json:"value2"`
	Valid     bool      `gorm:"column:valid" json:"valid"`
	Unit      string    `gorm:"column:unit" json:"unit"`
	Timestamp time.Time `gorm:"column:timestamp;index" json:"timestamp"`
}

func (Reading) TableName() string { return "readings" }
