package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lora-sensor-node/internal/payload"
)

// Metrics holds the node and receiver collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	framesSent      *prometheus.CounterVec
	framesDropped   *prometheus.CounterVec
	invalidReadings *prometheus.CounterVec
	schemaWarnings  *prometheus.CounterVec
	sendLatency     prometheus.Histogram
	uplinksDecoded  *prometheus.CounterVec
	uplinksRejected *prometheus.CounterVec
	duplicates      prometheus.Counter
	storageDropped  prometheus.Counter
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "node_frames_sent_total",
			Help: "Frames handed to the transport, by port.",
		}, []string{"port"}),
		framesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "node_frames_dropped_total",
			Help: "Frames not transmitted, by reason.",
		}, []string{"reason"}),
		invalidReadings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "node_invalid_readings_total",
			Help: "Readings encoded as the invalid sentinel, by field.",
		}, []string{"field"}),
		schemaWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payload_schema_warnings_total",
			Help: "Negative values encoded through unsigned fields, by field.",
		}, []string{"field"}),
		sendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "node_send_latency_seconds",
			Help:    "Time spent in the transport per frame.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
		uplinksDecoded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "receiver_uplinks_decoded_total",
			Help: "Uplinks decoded and stored, by port.",
		}, []string{"port"}),
		uplinksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "receiver_uplinks_rejected_total",
			Help: "Uplinks rejected before decoding, by reason.",
		}, []string{"reason"}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "receiver_uplinks_duplicate_total",
			Help: "Uplinks ignored as duplicates within the dedup window.",
		}),
		storageDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storage_records_dropped_total",
			Help: "Records lost because the storage queue was full.",
		}),
	}
	reg.MustRegister(
		m.framesSent, m.framesDropped, m.invalidReadings, m.schemaWarnings, m.sendLatency,
		m.uplinksDecoded, m.uplinksRejected, m.duplicates, m.storageDropped,
	)
	return m
}

func portLabel(p uint8) string { return strconv.Itoa(int(p)) }

func (m *Metrics) FrameSent(port uint8, took time.Duration) {
	if m == nil {
		return
	}
	m.framesSent.WithLabelValues(portLabel(port)).Inc()
	m.sendLatency.Observe(took.Seconds())
}

func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.framesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) InvalidReading(k payload.Kind) {
	if m == nil {
		return
	}
	m.invalidReadings.WithLabelValues(k.String()).Inc()
}

func (m *Metrics) SchemaWarning(w payload.Warning) {
	if m == nil {
		return
	}
	m.schemaWarnings.WithLabelValues(w.Kind.String()).Inc()
}

func (m *Metrics) UplinkDecoded(port uint8) {
	if m == nil {
		return
	}
	m.uplinksDecoded.WithLabelValues(portLabel(port)).Inc()
}

func (m *Metrics) UplinkRejected(reason string) {
	if m == nil {
		return
	}
	m.uplinksRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Duplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

func (m *Metrics) StorageDropped() {
	if m == nil {
		return
	}
	m.storageDropped.Inc()
}

// InstallWarningHandler routes payload encoding warnings to the log and to m.
// Call it once during start-up, before any encoding happens.
func InstallWarningHandler(m *Metrics) {
	payload.WarningHandler = func(w payload.Warning) {
		log.Printf("warn: %s", w)
		m.SchemaWarning(w)
	}
}

// Serve exposes g on addr at /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, g prometheus.Gatherer) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("metrics listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
