package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"lora-sensor-node/internal/payload"
)

// Config is the root YAML document shared by the node, receiver and tools.
type Config struct {
	Node     NodeConfig     `yaml:"node"`
	Receiver ReceiverConfig `yaml:"receiver"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type NodeConfig struct {
	DeviceID  string          `yaml:"device_id"`
	Ports     []uint8         `yaml:"ports"` // sent round-robin, one per interval
	Interval  time.Duration   `yaml:"interval"`
	Sensors   SensorsConfig   `yaml:"sensors"`
	Transport TransportConfig `yaml:"transport"`
	FrameLog  StorageConfig   `yaml:"frame_log"`
}

type SensorsConfig struct {
	Source  string               `yaml:"source"` // static | csv | modbus
	CSVFile string               `yaml:"csv_file"`
	Static  map[string][]float64 `yaml:"static"`
	Modbus  ModbusConfig         `yaml:"modbus"`
}

type ModbusConfig struct {
	Protocol   string        `yaml:"protocol"` // modbus-tcp | modbus-rtu
	Connection Connection    `yaml:"connection"`
	SlaveID    uint8         `yaml:"slave_id"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryCount int           `yaml:"retry_count"`
	Points     []Point       `yaml:"points"`
}

type Connection struct {
	// TCP
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// RTU
	SerialPort string `yaml:"serial_port"`
	BaudRate   int    `yaml:"baud_rate"`
	DataBits   int    `yaml:"data_bits"`
	StopBits   int    `yaml:"stop_bits"`
	Parity     string `yaml:"parity"`
}

// Point maps one payload field onto Modbus registers.
type Point struct {
	Field        string  `yaml:"field"`
	Address      uint16  `yaml:"address"`
	Address2     uint16  `yaml:"address2"`      // second value, e.g. longitude
	DataType     string  `yaml:"data_type"`     // uint16 | int16 | uint32 | int32 | float32
	ByteOrder    string  `yaml:"byte_order"`    // ABCD | DCBA | BADC | CDAB
	RegisterType string  `yaml:"register_type"` // holding | input
	Scale        float64 `yaml:"scale"`
	Offset       float64 `yaml:"offset"`
}

type TransportConfig struct {
	Type  string      `yaml:"type"` // log | radio | http
	Radio RadioConfig `yaml:"radio"`
	HTTP  HTTPConfig  `yaml:"http"`
}

// RadioConfig describes an RYLR896-style LoRa modem on a serial port.
type RadioConfig struct {
	SerialPort string        `yaml:"serial_port"`
	BaudRate   int           `yaml:"baud_rate"`
	Timeout    time.Duration `yaml:"timeout"`
	Address    uint16        `yaml:"address"` // destination address for AT+SEND
}

type HTTPConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// StorageConfig controls the asynchronous JSONL/CSV record writer.
type StorageConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Dir          string `yaml:"dir"`
	FileType     string `yaml:"file_type"` // jsonl | csv | both
	MaxQueueSize int    `yaml:"max_queue_size"`
}

type ReceiverConfig struct {
	ListenAddress string        `yaml:"listen_address"`
	DBPath        string        `yaml:"db_path"`
	DedupTTL      time.Duration `yaml:"dedup_ttl"`
	Storage       StorageConfig `yaml:"storage"`
	Radio         RadioConfig   `yaml:"radio"` // optional serial listener
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Load reads a YAML config file, applies defaults and validates it.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse is Load for an in-memory document.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	n := &c.Node
	if n.DeviceID == "" {
		n.DeviceID = "node-01"
	}
	if len(n.Ports) == 0 {
		n.Ports = []uint8{1}
	}
	if n.Interval <= 0 {
		n.Interval = 30 * time.Second
	}
	n.Sensors.Source = strings.ToLower(strings.TrimSpace(n.Sensors.Source))
	if n.Sensors.Source == "" {
		n.Sensors.Source = "static"
	}
	mb := &n.Sensors.Modbus
	if mb.Protocol == "" {
		mb.Protocol = "modbus-tcp"
	}
	if mb.Timeout <= 0 {
		mb.Timeout = 5 * time.Second
	}
	if mb.SlaveID == 0 {
		mb.SlaveID = 1
	}
	for i := range mb.Points {
		p := &mb.Points[i]
		if p.Scale == 0 {
			p.Scale = 1
		}
		if p.DataType == "" {
			p.DataType = "uint16"
		}
		if p.RegisterType == "" {
			p.RegisterType = "holding"
		}
		if p.ByteOrder == "" {
			p.ByteOrder = "ABCD"
		}
	}
	n.Transport.Type = strings.ToLower(strings.TrimSpace(n.Transport.Type))
	if n.Transport.Type == "" {
		n.Transport.Type = "log"
	}
	radioDefaults(&n.Transport.Radio)
	if n.Transport.HTTP.Timeout <= 0 {
		n.Transport.HTTP.Timeout = 10 * time.Second
	}
	storageDefaults(&n.FrameLog, "data/frames")

	r := &c.Receiver
	if r.ListenAddress == "" {
		r.ListenAddress = ":8080"
	}
	if r.DBPath == "" {
		r.DBPath = "data/uplinks.sqlite"
	}
	if r.DedupTTL <= 0 {
		r.DedupTTL = 10 * time.Minute
	}
	storageDefaults(&r.Storage, "data/uplinks")
	radioDefaults(&r.Radio)

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
}

func radioDefaults(r *RadioConfig) {
	if r.BaudRate <= 0 {
		r.BaudRate = 115200
	}
	if r.Timeout <= 0 {
		r.Timeout = 5 * time.Second
	}
}

func storageDefaults(s *StorageConfig, dir string) {
	if s.Dir == "" {
		s.Dir = dir
	}
	s.FileType = strings.ToLower(strings.TrimSpace(s.FileType))
	if s.FileType == "" {
		s.FileType = "jsonl"
	}
	if s.MaxQueueSize <= 0 {
		s.MaxQueueSize = 1000
	}
}

// Validate checks a config after defaults are applied. Callers that change a
// loaded config should validate it again.
func (c *Config) Validate() error {
	n := c.Node
	for _, p := range n.Ports {
		if !payload.Default().Known(p) {
			return fmt.Errorf("node.ports: %w: %d", payload.ErrUnknownPort, p)
		}
	}
	switch n.Sensors.Source {
	case "static":
		for name := range n.Sensors.Static {
			if _, err := payload.ParseKind(name); err != nil {
				return fmt.Errorf("node.sensors.static: %w", err)
			}
		}
	case "csv":
		if n.Sensors.CSVFile == "" {
			return errors.New("node.sensors.csv_file is required for csv source")
		}
	case "modbus":
		if len(n.Sensors.Modbus.Points) == 0 {
			return errors.New("node.sensors.modbus.points must not be empty")
		}
		for i, p := range n.Sensors.Modbus.Points {
			if _, err := payload.ParseKind(p.Field); err != nil {
				return fmt.Errorf("node.sensors.modbus.points[%d]: %w", i, err)
			}
		}
	default:
		return fmt.Errorf("unknown node.sensors.source %q (expected static, csv or modbus)", n.Sensors.Source)
	}
	switch n.Transport.Type {
	case "log":
	case "radio":
		if n.Transport.Radio.SerialPort == "" {
			return errors.New("node.transport.radio.serial_port is required for radio transport")
		}
	case "http":
		if n.Transport.HTTP.URL == "" {
			return errors.New("node.transport.http.url is required for http transport")
		}
	default:
		return fmt.Errorf("unknown node.transport.type %q (expected log, radio or http)", n.Transport.Type)
	}
	for _, s := range []StorageConfig{n.FrameLog, c.Receiver.Storage} {
		switch s.FileType {
		case "jsonl", "json", "csv", "both":
		default:
			return fmt.Errorf("unsupported storage file_type %q", s.FileType)
		}
	}
	return nil
}
