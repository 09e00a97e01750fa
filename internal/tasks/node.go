package tasks

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"lora-sensor-node/internal/config"
	"lora-sensor-node/internal/metrics"
	"lora-sensor-node/internal/node"
	"lora-sensor-node/internal/sensors"
	"lora-sensor-node/internal/storage"
	"lora-sensor-node/internal/transport"
)

// Options defines initialization overrides for the node.
// Mirrors the CLI flags used in cmd/node/main.go.
type Options struct {
	ConfigPath     string
	DeviceID       string
	Ports          []uint8
	Transport      string
	StorageEnabled bool
	StorageDir     string
	StorageQueue   int
	MetricsAddr    string
}

func (o Options) apply(cfg *config.Config) {
	if o.DeviceID != "" {
		cfg.Node.DeviceID = o.DeviceID
	}
	if len(o.Ports) > 0 {
		cfg.Node.Ports = o.Ports
	}
	if o.Transport != "" {
		cfg.Node.Transport.Type = strings.ToLower(o.Transport)
	}
	if o.StorageEnabled {
		cfg.Node.FrameLog.Enabled = true
	}
	if o.StorageDir != "" {
		cfg.Node.FrameLog.Dir = o.StorageDir
		cfg.Node.FrameLog.Enabled = true
	}
	if o.StorageQueue > 0 {
		cfg.Node.FrameLog.MaxQueueSize = o.StorageQueue
		cfg.Node.FrameLog.Enabled = true
	}
	if o.MetricsAddr != "" {
		cfg.Metrics.Addr = o.MetricsAddr
	}
}

// NewReader builds the sensor source named by cfg.Source.
func NewReader(cfg config.SensorsConfig) (sensors.Reader, error) {
	switch cfg.Source {
	case "static":
		return sensors.NewStatic(cfg.Static)
	case "csv":
		return sensors.NewCSVReader(cfg.CSVFile)
	case "modbus":
		return sensors.NewModbusReader(cfg.Modbus)
	default:
		return nil, fmt.Errorf("unknown sensor source %q", cfg.Source)
	}
}

// NewSender builds the transport named by cfg.Type. The returned closer may be nil.
func NewSender(cfg config.TransportConfig, deviceID string) (transport.Sender, io.Closer, error) {
	switch cfg.Type {
	case "log":
		return transport.LogSender{DeviceID: deviceID}, nil, nil
	case "radio":
		r, err := transport.OpenRadio(cfg.Radio)
		if err != nil {
			return nil, nil, err
		}
		return r, r, nil
	case "http":
		return transport.NewHTTPSender(cfg.HTTP.URL, deviceID, cfg.HTTP.Timeout), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", cfg.Type)
	}
}

// InitAndRunNode loads config, applies overrides, wires the node and runs it
// until ctx ends.
func InitAndRunNode(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	nc := cfg.Node

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	metrics.InstallWarningHandler(m)
	go func() {
		if err := metrics.Serve(ctx, cfg.Metrics.Addr, reg); err != nil {
			log.Printf("metrics server: %v", err)
		}
	}()

	reader, err := NewReader(nc.Sensors)
	if err != nil {
		return fmt.Errorf("sensors: %w", err)
	}
	if c, ok := reader.(io.Closer); ok {
		defer c.Close()
	}

	sender, closer, err := NewSender(nc.Transport, nc.DeviceID)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	var frameLog *storage.Storage
	if nc.FrameLog.Enabled {
		fl := nc.FrameLog
		frameLog, err = storage.New(fl.Dir, "frames", fl.FileType, fl.MaxQueueSize)
		if err != nil {
			log.Printf("frame log init failed: %v (continuing without frame log)", err)
		} else {
			defer frameLog.Close()
		}
	}

	n, err := node.New(node.Options{
		DeviceID: nc.DeviceID,
		Ports:    nc.Ports,
		Interval: nc.Interval,
		Reader:   reader,
		Sender:   sender,
		Metrics:  m,
		FrameLog: frameLog,
	})
	if err != nil {
		return err
	}
	return n.Run(ctx)
}
