package sensors_test

import (
	"context"
	"math"
	"net"
	"strconv"
	"testing"
	"time"

	"lora-sensor-node/internal/config"
	"lora-sensor-node/internal/payload"
	"lora-sensor-node/internal/sensors"
	"lora-sensor-node/internal/sim"
)

func TestModbusReaderAgainstSimulatedBoard(t *testing.T) {
	srv := sim.NewServer()
	if err := srv.Listen("127.0.0.1:0"); err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer srv.Close()

	host, portStr, err := net.SplitHostPort(srv.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, _ := strconv.Atoi(portStr)

	points := []config.Point{
		{Field: "battery_voltage", Address: 0, DataType: "uint16", Scale: 0.01},
		{Field: "temperature", Address: 1, DataType: "int16", Scale: 0.01, RegisterType: "input"},
		{Field: "location", Address: 10, Address2: 12, DataType: "float32"},
		{Field: "air_pressure", Address: 20, DataType: "uint32", Scale: 0.01},
	}

	var row payload.Snapshot
	row.Set(payload.BatteryVoltage, payload.Scalar(3.85))
	row.Set(payload.Temperature, payload.Scalar(-12.34))
	row.Set(payload.Location, payload.Pair(-37.8136, 144.9631))
	row.Set(payload.AirPressure, payload.Invalid())

	board, err := sim.NewBoard(srv, points, []payload.Snapshot{row}, time.Hour)
	if err != nil {
		t.Fatalf("new board: %v", err)
	}
	if err := board.Apply(&row); err != nil {
		t.Fatalf("apply: %v", err)
	}

	reader, err := sensors.NewModbusReader(config.ModbusConfig{
		Protocol:   "modbus-tcp",
		Connection: config.Connection{Host: host, Port: port},
		SlaveID:    1,
		Timeout:    2 * time.Second,
		Points:     points,
	})
	if err != nil {
		t.Fatalf("new reader: %v", err)
	}
	ctx := context.Background()
	if err := reader.Init(ctx, payload.AllFields); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer reader.Close()

	s := sensors.Sample(ctx, reader, payload.AllFields)

	if got := s.Get(payload.BatteryVoltage); !got.Valid || math.Abs(got.Value()-3.85) > 1e-9 {
		t.Fatalf("battery = %+v", got)
	}
	if got := s.Get(payload.Temperature); !got.Valid || math.Abs(got.Value()+12.34) > 1e-9 {
		t.Fatalf("temperature = %+v", got)
	}
	loc := s.Get(payload.Location)
	if !loc.Valid || math.Abs(loc.Values[0]+37.8136) > 1e-4 || math.Abs(loc.Values[1]-144.9631) > 1e-4 {
		t.Fatalf("location = %+v", loc)
	}
	if s.Get(payload.AirPressure).Valid {
		t.Fatalf("failed registers should read as invalid")
	}
	if s.Get(payload.GasResistance).Valid {
		t.Fatalf("unmapped field should be invalid")
	}

	// The encoded frame carries the same values the board exposed.
	frame := payload.Default().Lookup(9).Append(nil, &s)
	decoded, err := payload.Default().Lookup(9).Decode(frame, 0)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := decoded.Get(payload.BatteryVoltage).Value(); got != 3.85 {
		t.Fatalf("decoded battery = %v", got)
	}
}
