package storage

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"lora-sensor-node/internal/payload"
)

var ErrQueueFull = errors.New("storage queue full")

// Record is one frame as sent by a node or received by the receiver.
type Record struct {
	Timestamp time.Time                  `json:"timestamp"`
	Direction string                     `json:"direction"` // tx | rx
	DeviceID  string                     `json:"device_id"`
	Port      uint8                      `json:"port"`
	Payload   string                     `json:"payload"` // hex
	Fields    map[string]payload.Reading `json:"fields"`
}

// Storage writes records to JSONL and/or CSV asynchronously.
type Storage struct {
	dir        string
	q          chan Record
	wg         sync.WaitGroup
	enableJSON bool
	enableCSV  bool

	jsonFile   *os.File
	jsonWriter *bufio.Writer

	csvFile   *os.File
	csvWriter *csv.Writer

	closeOnce sync.Once
	closed    chan struct{}
}

var csvHeader = []string{"timestamp", "direction", "device_id", "port", "payload", "field", "value", "value2", "valid"}

// New ensures dir exists, opens <name>.jsonl and/or <name>.csv according to
// fileType (jsonl, json, csv, both) and starts the background writer.
func New(dir, name, fileType string, maxQueue int) (*Storage, error) {
	if dir == "" {
		dir = "data"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir %s: %w", dir, err)
	}

	s := &Storage{
		dir:    dir,
		q:      make(chan Record, maxQueueIfPositive(maxQueue, 1000)),
		closed: make(chan struct{}),
	}
	switch strings.ToLower(strings.TrimSpace(fileType)) {
	case "json", "jsonl", "":
		s.enableJSON = true
	case "csv":
		s.enableCSV = true
	case "both", "json+csv", "csv+json":
		s.enableJSON = true
		s.enableCSV = true
	default:
		return nil, fmt.Errorf("unsupported storage file_type %q", fileType)
	}

	if s.enableJSON {
		jf, err := os.OpenFile(filepath.Join(dir, name+".jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open json output: %w", err)
		}
		s.jsonFile = jf
		s.jsonWriter = bufio.NewWriterSize(jf, 64*1024)
	}

	if s.enableCSV {
		cf, err := os.OpenFile(filepath.Join(dir, name+".csv"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			s.closeFiles()
			return nil, fmt.Errorf("open csv output: %w", err)
		}
		s.csvFile = cf
		s.csvWriter = csv.NewWriter(cf)
		if off, _ := cf.Seek(0, io.SeekEnd); off == 0 {
			if err := s.csvWriter.Write(csvHeader); err != nil {
				s.closeFiles()
				return nil, fmt.Errorf("write csv header: %w", err)
			}
			s.csvWriter.Flush()
			if err := s.csvWriter.Error(); err != nil {
				s.closeFiles()
				return nil, err
			}
		}
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for r := range s.q {
			if s.enableJSON {
				_ = s.writeJSONL(r)
			}
			if s.enableCSV {
				_ = s.writeCSV(r)
			}
		}
		if s.jsonWriter != nil {
			s.jsonWriter.Flush()
		}
		if s.csvWriter != nil {
			s.csvWriter.Flush()
		}
		close(s.closed)
	}()

	return s, nil
}

func maxQueueIfPositive(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// Handle enqueues r without blocking.
func (s *Storage) Handle(r Record) error {
	select {
	case s.q <- r:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close drains the queue, flushes and closes files.
func (s *Storage) Close() {
	s.closeOnce.Do(func() {
		close(s.q)
		<-s.closed
		s.closeFiles()
	})
}

func (s *Storage) closeFiles() {
	if s.jsonFile != nil {
		s.jsonFile.Close()
	}
	if s.csvFile != nil {
		s.csvFile.Close()
	}
}

func (s *Storage) writeJSONL(r Record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	if _, err := s.jsonWriter.Write(b); err != nil {
		return err
	}
	return s.jsonWriter.WriteByte('\n')
}

// writeCSV flattens a record into one row per field, in canonical field order.
func (s *Storage) writeCSV(r Record) error {
	base := []string{
		r.Timestamp.Format(time.RFC3339Nano),
		r.Direction,
		r.DeviceID,
		strconv.Itoa(int(r.Port)),
		r.Payload,
	}
	for _, k := range payload.Kinds() {
		rd, ok := r.Fields[k.String()]
		if !ok {
			continue
		}
		var v1, v2 string
		if len(rd.Values) > 0 {
			v1 = strconv.FormatFloat(rd.Values[0], 'g', -1, 64)
		}
		if len(rd.Values) > 1 {
			v2 = strconv.FormatFloat(rd.Values[1], 'g', -1, 64)
		}
		rec := append(append([]string{}, base...), k.String(), v1, v2, strconv.FormatBool(rd.Valid))
		if err := s.csvWriter.Write(rec); err != nil {
			return err
		}
	}
	return nil
}
