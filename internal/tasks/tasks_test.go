package tasks

import (
	"testing"

	"lora-sensor-node/internal/config"
	"lora-sensor-node/internal/sensors"
	"lora-sensor-node/internal/transport"
)

func TestOptionsOverrideConfig(t *testing.T) {
	cfg, err := config.Parse([]byte("node:\n  device_id: yaml-node\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	Options{DeviceID: "flag-node", Ports: []uint8{7, 59}, Transport: "HTTP", StorageDir: "out"}.apply(cfg)

	if cfg.Node.DeviceID != "flag-node" {
		t.Fatalf("device id = %s", cfg.Node.DeviceID)
	}
	if len(cfg.Node.Ports) != 2 || cfg.Node.Ports[1] != 59 {
		t.Fatalf("ports = %v", cfg.Node.Ports)
	}
	if !cfg.Node.FrameLog.Enabled || cfg.Node.FrameLog.Dir != "out" {
		t.Fatalf("frame log = %+v", cfg.Node.FrameLog)
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("http transport without url should fail validation")
	}
}

func TestNewReaderAndSender(t *testing.T) {
	r, err := NewReader(config.SensorsConfig{Source: "static", Static: map[string][]float64{"temperature": {21}}})
	if err != nil {
		t.Fatalf("static reader: %v", err)
	}
	if _, ok := r.(sensors.Static); !ok {
		t.Fatalf("expected Static, got %T", r)
	}
	if _, err := NewReader(config.SensorsConfig{Source: "modbus"}); err != nil {
		t.Fatalf("modbus reader without points: %v", err)
	}
	if _, err := NewReader(config.SensorsConfig{Source: "i2c"}); err == nil {
		t.Fatalf("expected unknown source error")
	}

	s, closer, err := NewSender(config.TransportConfig{Type: "log"}, "node-01")
	if err != nil || closer != nil {
		t.Fatalf("log sender: %v %v", err, closer)
	}
	if _, ok := s.(transport.LogSender); !ok {
		t.Fatalf("expected LogSender, got %T", s)
	}
	s, _, err = NewSender(config.TransportConfig{Type: "http", HTTP: config.HTTPConfig{URL: "http://localhost:8080/api/v1/uplinks"}}, "node-01")
	if err != nil {
		t.Fatalf("http sender: %v", err)
	}
	if hs, ok := s.(*transport.HTTPSender); !ok || hs.DeviceID != "node-01" {
		t.Fatalf("unexpected sender %T %+v", s, s)
	}
	if _, _, err := NewSender(config.TransportConfig{Type: "pigeon"}, "x"); err == nil {
		t.Fatalf("expected unknown transport error")
	}
}
