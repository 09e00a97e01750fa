package node

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"lora-sensor-node/internal/metrics"
	"lora-sensor-node/internal/payload"
	"lora-sensor-node/internal/sensors"
	"lora-sensor-node/internal/storage"
	"lora-sensor-node/internal/transport"
)

type initRecorder struct {
	sensors.Static
	got payload.FieldSet
}

func (r *initRecorder) Init(_ context.Context, set payload.FieldSet) error {
	r.got = set
	return nil
}

func staticReader() sensors.Static {
	return sensors.Static{
		payload.BatteryVoltage:   payload.Scalar(3.85),
		payload.Temperature:      payload.Scalar(22.5),
		payload.RelativeHumidity: payload.Scalar(48.3),
	}
}

func TestStepRoundRobin(t *testing.T) {
	sender := &transport.MemorySender{}
	n, err := New(Options{DeviceID: "node-01", Ports: []uint8{1, 4}, Reader: staticReader(), Sender: sender})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := n.Step(ctx); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	frames := sender.Frames()
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	if frames[0].Port != 1 || !bytes.Equal(frames[0].Payload, []byte{0x01, 0x81}) {
		t.Fatalf("frame 0 = %+v", frames[0])
	}
	if frames[1].Port != 4 || !bytes.Equal(frames[1].Payload, []byte{0x08, 0xCA, 0x12, 0xDE}) {
		t.Fatalf("frame 1 = %+v", frames[1])
	}
	if frames[2].Port != 1 {
		t.Fatalf("rotation should wrap to port 1, got %d", frames[2].Port)
	}
}

func TestStepMissingSensorSendsSentinel(t *testing.T) {
	sender := &transport.MemorySender{}
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	n, _ := New(Options{Ports: []uint8{3}, Reader: sensors.Static{payload.Temperature: payload.Scalar(22.5)}, Sender: sender, Metrics: m})

	f, err := n.Step(context.Background())
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !bytes.Equal(f.Payload, []byte{0xFF, 0xFF, 0x08, 0xCA}) {
		t.Fatalf("payload = % X", f.Payload)
	}
	expected := `
# HELP node_invalid_readings_total Readings encoded as the invalid sentinel, by field.
# TYPE node_invalid_readings_total counter
node_invalid_readings_total{field="battery_voltage"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "node_invalid_readings_total"); err != nil {
		t.Fatalf("metrics: %v", err)
	}
}

func TestStepDropsUnknownPort(t *testing.T) {
	sender := &transport.MemorySender{}
	reg := prometheus.NewRegistry()
	n, _ := New(Options{Ports: []uint8{99, 1}, Reader: staticReader(), Sender: sender, Metrics: metrics.New(reg)})

	if _, err := n.Step(context.Background()); !errors.Is(err, ErrDropped) || !errors.Is(err, payload.ErrUnknownPort) {
		t.Fatalf("expected dropped unknown port, got %v", err)
	}
	if _, err := n.Step(context.Background()); err != nil {
		t.Fatalf("known port after unknown: %v", err)
	}
	if got := len(sender.Frames()); got != 1 {
		t.Fatalf("expected only the known port to be sent, got %d frames", got)
	}
	expected := `
# HELP node_frames_dropped_total Frames not transmitted, by reason.
# TYPE node_frames_dropped_total counter
node_frames_dropped_total{reason="unknown_port"} 1
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "node_frames_dropped_total"); err != nil {
		t.Fatalf("metrics: %v", err)
	}
}

func TestStepSendFailure(t *testing.T) {
	sender := &transport.MemorySender{Err: errors.New("radio busy")}
	n, _ := New(Options{Ports: []uint8{1}, Reader: staticReader(), Sender: sender})
	if _, err := n.Step(context.Background()); err == nil || !strings.Contains(err.Error(), "radio busy") {
		t.Fatalf("expected send error, got %v", err)
	}
}

func TestRunInitialisesCombinedFields(t *testing.T) {
	reader := &initRecorder{Static: staticReader()}
	sender := &transport.MemorySender{}
	n, err := New(Options{Ports: []uint8{1, 4, 50}, Interval: 5 * time.Millisecond, Reader: reader, Sender: sender})
	if err != nil {
		t.Fatalf("new: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	if err := n.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := payload.NewFieldSet(payload.BatteryVoltage, payload.Temperature, payload.RelativeHumidity, payload.Location)
	if reader.got != want {
		t.Fatalf("init fields = %s, want %s", reader.got, want)
	}
	if len(sender.Frames()) < 3 {
		t.Fatalf("expected several frames, got %d", len(sender.Frames()))
	}
}

func TestFrameLog(t *testing.T) {
	dir := t.TempDir()
	fl, err := storage.New(dir, "frames", "jsonl", 10)
	if err != nil {
		t.Fatalf("storage: %v", err)
	}
	n, _ := New(Options{DeviceID: "node-01", Ports: []uint8{1}, Reader: staticReader(), Sender: &transport.MemorySender{}, FrameLog: fl})
	if _, err := n.Step(context.Background()); err != nil {
		t.Fatalf("step: %v", err)
	}
	fl.Close()

	data, err := os.ReadFile(filepath.Join(dir, "frames.jsonl"))
	if err != nil {
		t.Fatalf("read frame log: %v", err)
	}
	if !strings.Contains(string(data), `"payload":"0181"`) || !strings.Contains(string(data), `"direction":"tx"`) {
		t.Fatalf("unexpected frame log %s", data)
	}
}

func TestNewRequiresPorts(t *testing.T) {
	if _, err := New(Options{Reader: staticReader(), Sender: &transport.MemorySender{}}); !errors.Is(err, ErrNoPorts) {
		t.Fatalf("expected ErrNoPorts, got %v", err)
	}
}
