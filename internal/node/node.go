// Package node runs the sensor node's sampling loop: one frame per interval,
// cycling through the configured ports.
package node

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"lora-sensor-node/internal/metrics"
	"lora-sensor-node/internal/payload"
	"lora-sensor-node/internal/sensors"
	"lora-sensor-node/internal/storage"
	"lora-sensor-node/internal/transport"
)

// MaxFrameSize is the largest application payload the radio link accepts.
const MaxFrameSize = 222

var (
	ErrNoPorts       = errors.New("node has no ports configured")
	ErrDropped       = errors.New("frame dropped")
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

type Options struct {
	DeviceID string
	Ports    []uint8
	Interval time.Duration
	Catalog  *payload.Catalog // defaults to payload.Default()
	Reader   sensors.Reader
	Sender   transport.Sender
	Metrics  *metrics.Metrics // optional
	FrameLog *storage.Storage // optional
}

type Node struct {
	opts    Options
	catalog *payload.Catalog

	mu   sync.Mutex
	next int
}

func New(opts Options) (*Node, error) {
	if len(opts.Ports) == 0 {
		return nil, ErrNoPorts
	}
	if opts.Reader == nil || opts.Sender == nil {
		return nil, errors.New("node needs a reader and a sender")
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	cat := opts.Catalog
	if cat == nil {
		cat = payload.Default()
	}
	return &Node{opts: opts, catalog: cat}, nil
}

// Combined is the union of every configured port; it decides which sensors
// get initialised.
func (n *Node) Combined() payload.Port {
	ports := make([]payload.Port, 0, len(n.opts.Ports))
	for _, p := range n.opts.Ports {
		ports = append(ports, n.catalog.Lookup(p))
	}
	return payload.Combine(ports...)
}

// Run initialises the reader and sends one frame per interval until ctx ends.
func (n *Node) Run(ctx context.Context) error {
	combined := n.Combined()
	if init, ok := n.opts.Reader.(sensors.Initializer); ok {
		if err := init.Init(ctx, combined.Fields); err != nil {
			return fmt.Errorf("init sensors %s: %w", combined.Fields, err)
		}
	}
	log.Printf("node %s started: ports=%v fields=%s interval=%s",
		n.opts.DeviceID, n.opts.Ports, combined.Fields, n.opts.Interval)

	ticker := time.NewTicker(n.opts.Interval)
	defer ticker.Stop()

	// Immediate first run
	if _, err := n.Step(ctx); err != nil {
		log.Printf("node %s step: %v", n.opts.DeviceID, err)
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := n.Step(ctx); err != nil {
				log.Printf("node %s step: %v", n.opts.DeviceID, err)
			}
		}
	}
}

// Step samples, encodes and sends the frame for the next port in rotation.
func (n *Node) Step(ctx context.Context) (transport.Frame, error) {
	n.mu.Lock()
	number := n.opts.Ports[n.next%len(n.opts.Ports)]
	n.next++
	n.mu.Unlock()

	port := n.catalog.Lookup(number)
	if port.Number == payload.ErrorPortNumber || port.Fields.Len() == 0 {
		n.opts.Metrics.FrameDropped("unknown_port")
		return transport.Frame{}, fmt.Errorf("%w: port %d: %w", ErrDropped, number, payload.ErrUnknownPort)
	}
	if l := port.EncodedLength(); l > MaxFrameSize {
		n.opts.Metrics.FrameDropped("too_large")
		return transport.Frame{}, fmt.Errorf("%w: %s needs %d bytes: %w", ErrDropped, port, l, ErrFrameTooLarge)
	}

	snap := sensors.Sample(ctx, n.opts.Reader, port.Fields)
	for _, k := range port.Fields.Kinds() {
		if !snap.Get(k).Valid {
			n.opts.Metrics.InvalidReading(k)
		}
	}
	frame := port.Append(make([]byte, 0, port.EncodedLength()), &snap)

	start := time.Now()
	if err := n.opts.Sender.Send(ctx, port.Number, frame); err != nil {
		n.opts.Metrics.FrameDropped("send_failed")
		return transport.Frame{}, fmt.Errorf("send %s: %w", port, err)
	}
	n.opts.Metrics.FrameSent(port.Number, time.Since(start))

	if n.opts.FrameLog != nil {
		rec := storage.Record{
			Timestamp: time.Now().UTC(),
			Direction: "tx",
			DeviceID:  n.opts.DeviceID,
			Port:      port.Number,
			Payload:   hex.EncodeToString(frame),
			Fields:    snap.Map(port.Fields),
		}
		if err := n.opts.FrameLog.Handle(rec); err != nil {
			n.opts.Metrics.StorageDropped()
			log.Printf("frame log: %v", err)
		}
	}
	return transport.Frame{Port: port.Number, Payload: frame}, nil
}
