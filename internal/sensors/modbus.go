package sensors

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	mb "github.com/goburrow/modbus"

	"lora-sensor-node/internal/config"
	"lora-sensor-node/internal/payload"
)

// handlerWithConn embeds mb.ClientHandler and exposes Connect/Close used for lifecycle.
type handlerWithConn interface {
	mb.ClientHandler
	Connect() error
	Close() error
}

// ModbusReader reads fields from a sensor board over Modbus TCP or RTU.
// Each configured point maps one field onto one or two register addresses.
type ModbusReader struct {
	cfg    config.ModbusConfig
	points map[payload.Kind]config.Point

	mu       sync.Mutex
	handler  handlerWithConn
	client   mb.Client
	connAddr string
}

func NewModbusReader(cfg config.ModbusConfig) (*ModbusReader, error) {
	points := make(map[payload.Kind]config.Point, len(cfg.Points))
	for _, p := range cfg.Points {
		k, err := payload.ParseKind(p.Field)
		if err != nil {
			return nil, err
		}
		if _, dup := points[k]; dup {
			return nil, fmt.Errorf("duplicate modbus point for %s", k)
		}
		points[k] = p
	}
	return &ModbusReader{cfg: cfg, points: points}, nil
}

// newHandler creates and configures a handler for TCP or RTU based on config.
// It returns the handler and a human-readable address for logs.
func (m *ModbusReader) newHandler() (handlerWithConn, string, error) {
	timeout := m.cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conn := m.cfg.Connection
	switch strings.ToLower(strings.TrimSpace(m.cfg.Protocol)) {
	case "modbus-tcp", "tcp", "":
		address := fmt.Sprintf("%s:%d", conn.Host, conn.Port)
		h := mb.NewTCPClientHandler(address)
		h.Timeout = timeout
		h.SlaveId = m.cfg.SlaveID
		return h, address, nil
	case "modbus-rtu", "rtu":
		if strings.TrimSpace(conn.SerialPort) == "" {
			return nil, "", errors.New("serial_port is required for RTU")
		}
		h := mb.NewRTUClientHandler(conn.SerialPort)
		if conn.BaudRate > 0 {
			h.BaudRate = conn.BaudRate
		}
		if conn.DataBits > 0 {
			h.DataBits = conn.DataBits
		}
		if conn.StopBits > 0 {
			h.StopBits = conn.StopBits
		}
		if p := strings.ToUpper(strings.TrimSpace(conn.Parity)); p != "" {
			h.Parity = p
		}
		h.Timeout = timeout
		h.SlaveId = m.cfg.SlaveID
		return h, conn.SerialPort, nil
	default:
		return nil, "", fmt.Errorf("protocol %s not implemented", m.cfg.Protocol)
	}
}

// Init connects to the board, retrying RetryCount times. Fields in set with
// no configured point are logged once by Sample as not configured.
func (m *ModbusReader) Init(ctx context.Context, _ payload.FieldSet) error {
	h, addr, err := m.newHandler()
	if err != nil {
		return err
	}
	retry := m.cfg.RetryCount
	if retry < 0 {
		retry = 0
	}
	for attempts := 0; ; attempts++ {
		err = h.Connect()
		if err == nil {
			break
		}
		if attempts >= retry {
			return fmt.Errorf("connect %s: %w", addr, err)
		}
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	m.handler = h
	m.client = mb.NewClient(h)
	m.connAddr = addr
	m.mu.Unlock()
	return nil
}

func (m *ModbusReader) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handler == nil {
		return nil
	}
	err := m.handler.Close()
	m.handler, m.client = nil, nil
	return err
}

func (m *ModbusReader) Read(ctx context.Context, k payload.Kind) (payload.Reading, error) {
	p, ok := m.points[k]
	if !ok {
		return payload.Invalid(), ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return payload.Invalid(), err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.client == nil {
		return payload.Invalid(), errors.New("modbus reader not initialised")
	}

	addrs := []uint16{p.Address}
	if payload.FieldFor(k).ValueCount == 2 {
		addrs = append(addrs, p.Address2)
	}
	values := make([]float64, 0, len(addrs))
	for _, addr := range addrs {
		v, err := m.readPoint(p, addr)
		if err != nil {
			// Attempt one reconnect and retry
			if recErr := m.reconnect(); recErr != nil {
				return payload.Invalid(), fmt.Errorf("read %s@%d: %w", k, addr, err)
			}
			if v, err = m.readPoint(p, addr); err != nil {
				return payload.Invalid(), fmt.Errorf("read %s@%d: %w", k, addr, err)
			}
		}
		values = append(values, v)
	}
	return payload.Reading{Values: values, Valid: true}, nil
}

func (m *ModbusReader) readPoint(p config.Point, addr uint16) (float64, error) {
	dt := strings.ToLower(p.DataType)
	qty := uint16(1)
	if dt == "float32" || dt == "uint32" || dt == "int32" {
		qty = 2
	}
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(p.RegisterType) {
	case "holding", "":
		data, err = m.client.ReadHoldingRegisters(addr, qty)
	case "input":
		data, err = m.client.ReadInputRegisters(addr, qty)
	default:
		return 0, fmt.Errorf("unsupported register type: %s", p.RegisterType)
	}
	if err != nil {
		return 0, err
	}
	return decodeRegisterData(data, dt, p)
}

func decodeRegisterData(data []byte, dt string, p config.Point) (float64, error) {
	scale := p.Scale
	if scale == 0 {
		scale = 1
	}
	applyScale := func(v float64) float64 { return v*scale + p.Offset }

	switch dt {
	case "uint16", "":
		if len(data) < 2 {
			return 0, errors.New("insufficient data for uint16")
		}
		return applyScale(float64(binary.BigEndian.Uint16(data[:2]))), nil
	case "int16":
		if len(data) < 2 {
			return 0, errors.New("insufficient data for int16")
		}
		return applyScale(float64(int16(binary.BigEndian.Uint16(data[:2])))), nil
	case "float32":
		if len(data) < 4 {
			return 0, errors.New("insufficient data for float32")
		}
		f := math.Float32frombits(binary.BigEndian.Uint32(reorder32(data[:4], p.ByteOrder)))
		return applyScale(float64(f)), nil
	case "uint32":
		if len(data) < 4 {
			return 0, errors.New("insufficient data for uint32")
		}
		return applyScale(float64(binary.BigEndian.Uint32(reorder32(data[:4], p.ByteOrder)))), nil
	case "int32":
		if len(data) < 4 {
			return 0, errors.New("insufficient data for int32")
		}
		return applyScale(float64(int32(binary.BigEndian.Uint32(reorder32(data[:4], p.ByteOrder))))), nil
	default:
		return 0, fmt.Errorf("unsupported data type: %s", dt)
	}
}

// EncodeRegisters is the inverse of the point decoding: it turns an engineering
// value into the register words a board would expose for p.
func EncodeRegisters(p config.Point, v float64) ([]uint16, error) {
	scale := p.Scale
	if scale == 0 {
		scale = 1
	}
	raw := (v - p.Offset) / scale
	if math.IsNaN(raw) || math.IsInf(raw, 0) {
		return nil, fmt.Errorf("invalid value %v", v)
	}
	var buf [4]byte
	switch dt := strings.ToLower(p.DataType); dt {
	case "uint16", "":
		r := math.Round(raw)
		if r < 0 || r > math.MaxUint16 {
			return nil, fmt.Errorf("value %f out of range for uint16", v)
		}
		return []uint16{uint16(r)}, nil
	case "int16":
		r := math.Round(raw)
		if r < math.MinInt16 || r > math.MaxInt16 {
			return nil, fmt.Errorf("value %f out of range for int16", v)
		}
		return []uint16{uint16(int16(r))}, nil
	case "float32":
		f := float32(raw)
		if math.IsInf(float64(f), 0) {
			return nil, fmt.Errorf("value %f overflows float32", v)
		}
		binary.BigEndian.PutUint32(buf[:], math.Float32bits(f))
	case "uint32":
		r := math.Round(raw)
		if r < 0 || r > math.MaxUint32 {
			return nil, fmt.Errorf("value %f out of range for uint32", v)
		}
		binary.BigEndian.PutUint32(buf[:], uint32(r))
	case "int32":
		r := math.Round(raw)
		if r < math.MinInt32 || r > math.MaxInt32 {
			return nil, fmt.Errorf("value %f out of range for int32", v)
		}
		binary.BigEndian.PutUint32(buf[:], uint32(int32(r)))
	default:
		return nil, fmt.Errorf("unsupported data type: %s", dt)
	}
	// every supported order is its own inverse
	b := reorder32(buf[:], p.ByteOrder)
	return []uint16{binary.BigEndian.Uint16(b[0:2]), binary.BigEndian.Uint16(b[2:4])}, nil
}

// reorder32 returns a 4-byte slice reordered per byte-order string.
// Supported orders: "ABCD" (default), "DCBA", "BADC" (byte swap within words), "CDAB" (word swap).
func reorder32(in []byte, order string) []byte {
	var out [4]byte
	switch strings.ToUpper(strings.TrimSpace(order)) {
	case "DCBA":
		out[0], out[1], out[2], out[3] = in[3], in[2], in[1], in[0]
	case "BADC":
		out[0], out[1], out[2], out[3] = in[1], in[0], in[3], in[2]
	case "CDAB":
		out[0], out[1], out[2], out[3] = in[2], in[3], in[0], in[1]
	default:
		copy(out[:], in[:4])
	}
	return out[:]
}

// reconnect closes and reopens the handler. Callers hold m.mu.
func (m *ModbusReader) reconnect() error {
	if m.handler == nil {
		return errors.New("no handler")
	}
	m.handler.Close()
	time.Sleep(200 * time.Millisecond)
	return m.handler.Connect()
}
