package sim

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"lora-sensor-node/internal/config"
	"lora-sensor-node/internal/payload"
	"lora-sensor-node/internal/sensors"
)

type boardPoint struct {
	kind  payload.Kind
	point config.Point
	rt    RegisterType
}

// Board replays recorded snapshots into a Server's registers using the same
// point map the node's Modbus source reads with. Invalid readings make the
// matching registers fail.
type Board struct {
	server *Server
	points []boardPoint
	rows   []payload.Snapshot
	period time.Duration

	mu       sync.Mutex
	rowIndex int
}

func NewBoard(server *Server, points []config.Point, rows []payload.Snapshot, period time.Duration) (*Board, error) {
	bps := make([]boardPoint, 0, len(points))
	for _, p := range points {
		k, err := payload.ParseKind(p.Field)
		if err != nil {
			return nil, err
		}
		rt := RegisterType(strings.ToLower(p.RegisterType))
		if rt == "" {
			rt = Holding
		}
		if rt != Holding && rt != Input {
			return nil, fmt.Errorf("unsupported register type %s", p.RegisterType)
		}
		bps = append(bps, boardPoint{kind: k, point: p, rt: rt})
	}
	if period <= 0 {
		period = time.Second
	}
	return &Board{server: server, points: bps, rows: rows, period: period}, nil
}

// Start applies the first row and then steps one row per period until ctx ends.
func (b *Board) Start(ctx context.Context) error {
	ticker := time.NewTicker(b.period)
	defer ticker.Stop()

	b.applyRow(0)
	for {
		select {
		case <-ticker.C:
			b.nextRow()
		case <-ctx.Done():
			return nil
		}
	}
}

func (b *Board) nextRow() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.rows) == 0 {
		return
	}
	b.rowIndex = (b.rowIndex + 1) % len(b.rows)
	b.applyRowLocked(b.rowIndex)
}

func (b *Board) applyRow(index int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.applyRowLocked(index)
}

func (b *Board) applyRowLocked(index int) {
	if len(b.rows) == 0 {
		return
	}
	b.rowIndex = index
	if err := b.Apply(&b.rows[index]); err != nil {
		log.Printf("apply row %d: %v", index, err)
	}
}

// Apply writes one snapshot into the registers.
func (b *Board) Apply(s *payload.Snapshot) error {
	var errs []string
	for _, bp := range b.points {
		addrs := []uint16{bp.point.Address}
		if payload.FieldFor(bp.kind).ValueCount == 2 {
			addrs = append(addrs, bp.point.Address2)
		}
		r := s.Get(bp.kind)
		if !r.Valid || len(r.Values) < len(addrs) {
			if err := b.fail(bp, addrs); err != nil {
				errs = append(errs, err.Error())
			}
			continue
		}
		for i, addr := range addrs {
			words, err := sensors.EncodeRegisters(bp.point, r.Values[i])
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", bp.kind, err))
				continue
			}
			if err := b.server.SetRegisters(bp.rt, addr, words...); err != nil {
				errs = append(errs, fmt.Sprintf("%s: %v", bp.kind, err))
			}
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func (b *Board) fail(bp boardPoint, addrs []uint16) error {
	width := uint16(1)
	switch strings.ToLower(bp.point.DataType) {
	case "float32", "uint32", "int32":
		width = 2
	}
	var all []uint16
	for _, a := range addrs {
		for i := uint16(0); i < width; i++ {
			all = append(all, a+i)
		}
	}
	return b.server.Fail(bp.rt, all...)
}
