// Package receiver decodes uplinks back into readings, stores them and serves
// them over HTTP.
package receiver

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/google/uuid"

	"lora-sensor-node/internal/db"
	"lora-sensor-node/internal/metrics"
	"lora-sensor-node/internal/model"
	"lora-sensor-node/internal/payload"
	"lora-sensor-node/internal/storage"
	"lora-sensor-node/internal/utils"
)

// ErrFrameLength means the frame is not exactly as long as its port requires.
var ErrFrameLength = errors.New("frame length does not match port")

// Uplink is one frame as handed over by a transport.
type Uplink struct {
	DeviceID   string
	Port       uint8
	Payload    []byte
	RSSI       int
	SNR        float64
	ReceivedAt time.Time
}

// Result is the outcome of a successful Ingest.
type Result struct {
	ID        string                     `json:"id,omitempty"`
	DeviceID  string                     `json:"device_id"`
	Port      uint8                      `json:"f_port"`
	Fields    map[string]payload.Reading `json:"fields,omitempty"`
	Duplicate bool                       `json:"duplicate,omitempty"`
}

type Service struct {
	catalog *payload.Catalog
	db      *db.DB
	store   *storage.Storage
	metrics *metrics.Metrics
	dedup   *utils.DedupCache
	now     func() time.Time
}

type Option func(*Service)

func WithCatalog(c *payload.Catalog) Option { return func(s *Service) { s.catalog = c } }
func WithDB(d *db.DB) Option { return func(s *Service) { s.db = d } }
func WithStorage(st *storage.Storage) Option { return func(s *Service) { s.store = st } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithDedupTTL sets how long an identical (device, port, payload) is ignored.
func WithDedupTTL(ttl time.Duration) Option {
	return func(s *Service) { s.dedup.SetTTL(ttl) }
}

func NewService(opts ...Option) *Service {
	s := &Service{
		catalog: payload.Default(),
		dedup:   utils.NewDedupCache(0),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Catalog() *payload.Catalog { return s.catalog }

// RunDedupJanitor drops expired dedup keys every interval until ctx is done.
func (s *Service) RunDedupJanitor(ctx context.Context, interval time.Duration) {
	s.dedup.RunJanitor(ctx, interval)
}

// DB returns the backing database, or nil when running without one.
func (s *Service) DB() *db.DB { return s.db }

// Decode resolves the port and decodes a frame that must match its length
// exactly. It has no side effects.
func (s *Service) Decode(port uint8, frame []byte) (payload.Port, payload.Snapshot, error) {
	p, err := s.catalog.Resolve(port)
	if err != nil {
		return p, payload.Snapshot{}, err
	}
	if len(frame) != p.EncodedLength() {
		return p, payload.Snapshot{}, fmt.Errorf("%w: %s wants %d bytes, got %d", ErrFrameLength, p, p.EncodedLength(), len(frame))
	}
	snap, err := p.Decode(frame, 0)
	return p, snap, err
}

// Ingest decodes u, stores it and returns the decoded fields. A repeat of the
// same frame from the same device inside the dedup window is reported as a
// duplicate and not stored again.
func (s *Service) Ingest(ctx context.Context, u Uplink) (Result, error) {
	res := Result{DeviceID: u.DeviceID, Port: u.Port}
	p, snap, err := s.Decode(u.Port, u.Payload)
	if err != nil {
		switch {
		case errors.Is(err, payload.ErrUnknownPort):
			s.metrics.UplinkRejected("unknown_port")
		case errors.Is(err, ErrFrameLength):
			s.metrics.UplinkRejected("frame_length")
		default:
			s.metrics.UplinkRejected("decode")
		}
		return res, err
	}

	payloadHex := hex.EncodeToString(u.Payload)
	key := u.DeviceID + "|" + strconv.Itoa(int(u.Port)) + "|" + payloadHex
	if s.dedup.Seen(key) {
		s.metrics.Duplicate()
		res.Duplicate = true
		return res, nil
	}

	at := u.ReceivedAt
	if at.IsZero() {
		at = s.now()
	}
	at = at.UTC()

	res.ID = uuid.NewString()
	res.Fields = snap.Map(p.Fields)

	if s.db != nil {
		up := &model.Uplink{
			ID:         res.ID,
			DeviceID:   u.DeviceID,
			Port:       int(u.Port),
			Payload:    payloadHex,
			RSSI:       u.RSSI,
			SNR:        u.SNR,
			ReceivedAt: at,
			Readings:   readingRows(res.ID, u.DeviceID, p, &snap, at),
		}
		if err := s.db.SaveUplink(ctx, up); err != nil {
			return res, fmt.Errorf("save uplink: %w", err)
		}
	}
	if s.store != nil {
		rec := storage.Record{
			Timestamp: at,
			Direction: "rx",
			DeviceID:  u.DeviceID,
			Port:      u.Port,
			Payload:   payloadHex,
			Fields:    res.Fields,
		}
		if err := s.store.Handle(rec); err != nil {
			s.metrics.StorageDropped()
			log.Printf("storage: %v", err)
		}
	}

	s.dedup.Mark(key)
	s.metrics.UplinkDecoded(u.Port)
	return res, nil
}

func readingRows(uplinkID, deviceID string, p payload.Port, snap *payload.Snapshot, at time.Time) []model.Reading {
	rows := make([]model.Reading, 0, p.Fields.Len())
	for _, k := range p.Fields.Kinds() {
		r := snap.Get(k)
		row := model.Reading{
			UplinkID:  uplinkID,
			DeviceID:  deviceID,
			Port:      int(p.Number),
			Field:     k.String(),
			Valid:     r.Valid,
			Unit:      payload.FieldFor(k).Unit,
			Timestamp: at,
		}
		if len(r.Values) > 0 {
			row.Value = r.Values[0]
		}
		if len(r.Values) > 1 {
			row.Value2 = r.Values[1]
		}
		rows = append(rows, row)
	}
	return rows
}
