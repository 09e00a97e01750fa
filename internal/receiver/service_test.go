package receiver

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"lora-sensor-node/internal/db"
	"lora-sensor-node/internal/payload"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "uplinks.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestIngestDecodesAndStores(t *testing.T) {
	d := openTestDB(t)
	svc := NewService(WithDB(d))
	ctx := context.Background()
	t0 := time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

	res, err := svc.Ingest(ctx, Uplink{DeviceID: "node-01", Port: 3, Payload: []byte{0x01, 0x81, 0x08, 0xCA}, ReceivedAt: t0})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.ID == "" || res.Duplicate {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := res.Fields["battery_voltage"]; !got.Valid || got.Value() != 3.85 {
		t.Fatalf("battery = %+v", got)
	}

	// battery missing in the second frame
	if _, err := svc.Ingest(ctx, Uplink{DeviceID: "node-01", Port: 3, Payload: []byte{0xFF, 0xFF, 0x09, 0x60}, ReceivedAt: t0.Add(time.Minute)}); err != nil {
		t.Fatalf("ingest second: %v", err)
	}

	up, err := d.GetUplink(ctx, res.ID)
	if err != nil {
		t.Fatalf("get uplink: %v", err)
	}
	if up.Payload != "018108ca" || len(up.Readings) != 2 {
		t.Fatalf("stored uplink %+v", up)
	}

	latest, err := d.LatestReadings(ctx, "node-01")
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("expected 2 latest readings, got %+v", latest)
	}
	byField := map[string]float64{}
	for _, l := range latest {
		byField[l.Field] = l.Value
	}
	if byField["battery_voltage"] != 3.85 {
		t.Fatalf("latest battery should come from the first frame, got %v", byField["battery_voltage"])
	}
	if byField["temperature"] != 24 {
		t.Fatalf("latest temperature = %v, want 24", byField["temperature"])
	}
}

func TestIngestRejects(t *testing.T) {
	svc := NewService()
	ctx := context.Background()

	if _, err := svc.Ingest(ctx, Uplink{DeviceID: "n", Port: 200, Payload: []byte{1, 2}}); !errors.Is(err, payload.ErrUnknownPort) {
		t.Fatalf("expected ErrUnknownPort, got %v", err)
	}
	if _, err := svc.Ingest(ctx, Uplink{DeviceID: "n", Port: payload.ErrorPortNumber}); !errors.Is(err, payload.ErrUnknownPort) {
		t.Fatalf("error port should be rejected, got %v", err)
	}
	if _, err := svc.Ingest(ctx, Uplink{DeviceID: "n", Port: 1, Payload: []byte{1, 2, 3}}); !errors.Is(err, ErrFrameLength) {
		t.Fatalf("expected ErrFrameLength, got %v", err)
	}
	if _, err := svc.Ingest(ctx, Uplink{DeviceID: "n", Port: 1, Payload: []byte{1}}); !errors.Is(err, ErrFrameLength) {
		t.Fatalf("expected ErrFrameLength for short frame, got %v", err)
	}
}

func TestIngestDeduplicates(t *testing.T) {
	svc := NewService(WithDedupTTL(time.Minute))
	ctx := context.Background()
	u := Uplink{DeviceID: "node-01", Port: 1, Payload: []byte{0x01, 0x81}}

	first, err := svc.Ingest(ctx, u)
	if err != nil || first.Duplicate {
		t.Fatalf("first ingest: %+v %v", first, err)
	}
	second, err := svc.Ingest(ctx, u)
	if err != nil || !second.Duplicate {
		t.Fatalf("second ingest should be a duplicate: %+v %v", second, err)
	}
	u.DeviceID = "node-02"
	third, err := svc.Ingest(ctx, u)
	if err != nil || third.Duplicate {
		t.Fatalf("other device should not be a duplicate: %+v %v", third, err)
	}
}

func TestIngestSweepsExpiredDedupKeys(t *testing.T) {
	svc := NewService(WithDedupTTL(time.Millisecond))
	ctx := context.Background()

	for i := 0; i < 1024; i++ {
		u := Uplink{DeviceID: "node-01", Port: 1, Payload: []byte{byte(i >> 8), byte(i)}}
		if _, err := svc.Ingest(ctx, u); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}
	if n := svc.dedup.Len(); n != 1024 {
		t.Fatalf("dedup holds %d keys, want 1024", n)
	}

	time.Sleep(10 * time.Millisecond)
	if _, err := svc.Ingest(ctx, Uplink{DeviceID: "node-01", Port: 1, Payload: []byte{0x10, 0x00}}); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if n := svc.dedup.Len(); n != 1 {
		t.Fatalf("dedup holds %d keys after expiry, want 1", n)
	}
}

func TestDedupJanitorDropsExpiredKeys(t *testing.T) {
	svc := NewService(WithDedupTTL(time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go svc.RunDedupJanitor(ctx, 5*time.Millisecond)

	for _, p := range [][]byte{{0x01, 0x81}, {0x01, 0x82}, {0x01, 0x83}} {
		if _, err := svc.Ingest(ctx, Uplink{DeviceID: "node-01", Port: 1, Payload: p}); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for svc.dedup.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("janitor left %d dedup keys", svc.dedup.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}

	res, err := svc.Ingest(ctx, Uplink{DeviceID: "node-01", Port: 1, Payload: []byte{0x01, 0x81}})
	if err != nil || res.Duplicate {
		t.Fatalf("expired frame reported as duplicate: %+v %v", res, err)
	}
}

func TestDecodeLocation(t *testing.T) {
	svc := NewService()
	// port 50: lat -37.8136, lon 144.9631
	_, snap, err := svc.Decode(50, []byte{0xFA, 0x3A, 0xE8, 0x16, 0x1E, 0x9F})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	loc := snap.Get(payload.Location)
	if !loc.Valid || loc.Values[0] != -37.8136 || loc.Values[1] != 144.9631 {
		t.Fatalf("location = %+v", loc)
	}
}
