// Package transport moves encoded frames off the node. The payload codec never
// writes the port number into a frame; every transport carries it alongside.
package transport

import (
	"context"
	"encoding/hex"
	"log"
	"sync"
)

// Sender delivers one encoded frame for the given port.
type Sender interface {
	Send(ctx context.Context, port uint8, frame []byte) error
}

// LogSender writes frames to the process log.
type LogSender struct {
	DeviceID string
}

func (s LogSender) Send(_ context.Context, port uint8, frame []byte) error {
	log.Printf("uplink %s port=%d len=%d payload=%s", s.DeviceID, port, len(frame), hex.EncodeToString(frame))
	return nil
}

// Frame is one sent or received frame.
type Frame struct {
	Port    uint8
	Payload []byte
}

// MemorySender keeps sent frames in memory.
type MemorySender struct {
	mu     sync.Mutex
	frames []Frame
	// Err, when set, is returned by Send and nothing is recorded.
	Err error
}

func (m *MemorySender) Send(_ context.Context, port uint8, frame []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.frames = append(m.frames, Frame{Port: port, Payload: append([]byte(nil), frame...)})
	return nil
}

// Frames returns a copy of everything sent so far.
func (m *MemorySender) Frames() []Frame {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Frame(nil), m.frames...)
}
