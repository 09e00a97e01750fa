// Package sensors provides the sensor sources a node samples before encoding a
// frame. Drivers report a reading per field; anything they cannot produce is
// sent as invalid rather than failing the frame.
package sensors

import (
	"context"
	"errors"
	"log"

	"lora-sensor-node/internal/payload"
)

// ErrNotConfigured is returned by Read for fields the source does not provide.
var ErrNotConfigured = errors.New("sensor not configured")

// Reader reads the current value of one field.
type Reader interface {
	Read(ctx context.Context, k payload.Kind) (payload.Reading, error)
}

// Initializer is implemented by readers that must bring hardware up before the
// first read. set is the union of every field the node will send.
type Initializer interface {
	Init(ctx context.Context, set payload.FieldSet) error
}

// Advancer is implemented by readers that step through recorded data once per
// sampling cycle.
type Advancer interface {
	Advance()
}

// Sample reads every field in set. Read errors yield invalid readings.
func Sample(ctx context.Context, r Reader, set payload.FieldSet) payload.Snapshot {
	if a, ok := r.(Advancer); ok {
		a.Advance()
	}
	var s payload.Snapshot
	for _, k := range set.Kinds() {
		rd, err := r.Read(ctx, k)
		if err != nil {
			if !errors.Is(err, ErrNotConfigured) {
				log.Printf("read %s: %v", k, err)
			}
			rd = payload.Invalid()
		}
		s.Set(k, rd)
	}
	return s
}

// Static returns fixed readings, keyed by field.
type Static map[payload.Kind]payload.Reading

// NewStatic builds a Static reader from config-style names and values.
// An empty value list marks the field invalid.
func NewStatic(values map[string][]float64) (Static, error) {
	s := make(Static, len(values))
	for name, vs := range values {
		k, err := payload.ParseKind(name)
		if err != nil {
			return nil, err
		}
		s[k] = payload.Reading{Values: append([]float64(nil), vs...), Valid: len(vs) > 0}
	}
	return s, nil
}

func (s Static) Read(_ context.Context, k payload.Kind) (payload.Reading, error) {
	r, ok := s[k]
	if !ok {
		return payload.Invalid(), ErrNotConfigured
	}
	return r, nil
}
