package receiver

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"lora-sensor-node/internal/metrics"
)

func newTestServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	svc := NewService(WithDB(openTestDB(t)), WithMetrics(metrics.New(reg)))
	return NewServer(svc, ":0", reg), reg
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthAndPorts(t *testing.T) {
	s, _ := newTestServer(t)
	if w := do(t, s.Handler(), http.MethodGet, "/health", ""); w.Code != http.StatusOK {
		t.Fatalf("health: %d", w.Code)
	}

	w := do(t, s.Handler(), http.MethodGet, "/api/v1/ports", "")
	if w.Code != http.StatusOK {
		t.Fatalf("ports: %d", w.Code)
	}
	var body struct {
		Ports []portInfo `json:"ports"`
		Count int        `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode ports: %v", err)
	}
	if body.Count != 21 || body.Ports[0].Port != 1 || body.Ports[0].Length != 2 {
		t.Fatalf("unexpected ports %+v", body)
	}
}

func TestUplinkFlow(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	// frm_payload is base64 of 01 81 08 CA
	w := do(t, h, http.MethodPost, "/api/v1/uplinks", `{"device_id":"node-01","f_port":3,"frm_payload":"AYEIyg=="}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("uplink: %d %s", w.Code, w.Body)
	}
	var res Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Fields["temperature"].Value() != 22.5 {
		t.Fatalf("temperature = %+v", res.Fields["temperature"])
	}

	if w := do(t, h, http.MethodPost, "/api/v1/uplinks", `{"device_id":"node-01","f_port":3,"frm_payload":"AYEIyg=="}`); w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"duplicate":true`) {
		t.Fatalf("duplicate: %d %s", w.Code, w.Body)
	}
	if w := do(t, h, http.MethodPost, "/api/v1/uplinks", `{"device_id":"node-01","f_port":77,"frm_payload":"AYE="}`); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("unknown port: %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/api/v1/uplinks", `{"f_port":1,"frm_payload":"AYE="}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing device id: %d", w.Code)
	}

	w = do(t, h, http.MethodGet, "/api/v1/readings/latest?device_id=node-01", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"count":2`) {
		t.Fatalf("latest: %d %s", w.Code, w.Body)
	}
	w = do(t, h, http.MethodGet, "/api/v1/devices/node-01/history?limit=1", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"count":1`) {
		t.Fatalf("history: %d %s", w.Code, w.Body)
	}
	if w := do(t, h, http.MethodGet, "/api/v1/devices/node-01/history?limit=x", ""); w.Code != http.StatusBadRequest {
		t.Fatalf("bad limit: %d", w.Code)
	}

	w = do(t, h, http.MethodGet, "/metrics", "")
	if !strings.Contains(w.Body.String(), `receiver_uplinks_decoded_total{port="3"} 1`) {
		t.Fatalf("metrics missing decoded counter:\n%s", w.Body)
	}
	if !strings.Contains(w.Body.String(), `receiver_uplinks_duplicate_total 1`) {
		t.Fatalf("metrics missing duplicate counter")
	}
}

func TestDecodeEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s.Handler(), http.MethodPost, "/api/v1/decode", `{"f_port":1,"payload_hex":"ffff"}`)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"valid":false`) {
		t.Fatalf("decode invalid battery: %d %s", w.Code, w.Body)
	}
	if w := do(t, s.Handler(), http.MethodPost, "/api/v1/decode", `{"f_port":1,"payload_hex":"zz"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("bad hex: %d", w.Code)
	}
	if w := do(t, s.Handler(), http.MethodPost, "/api/v1/decode", `{"f_port":1,"payload_hex":"018100"}`); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("wrong length: %d", w.Code)
	}
}

func TestLatestWithoutDB(t *testing.T) {
	gin.SetMode(gin.TestMode)
	s := NewServer(NewService(), ":0", nil)
	if w := do(t, s.Handler(), http.MethodGet, "/api/v1/readings/latest", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

func TestListenRadio(t *testing.T) {
	d := openTestDB(t)
	svc := NewService(WithDB(d))
	in := "+RCV=5,6,010181,-60,8\r\n+RCV=5,4,01ff,-60,8\r\n"
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := ListenRadio(ctx, svc, strings.NewReader(in)); err != nil {
		t.Fatalf("listen: %v", err)
	}
	devices, err := d.ListDevices(ctx)
	if err != nil {
		t.Fatalf("list devices: %v", err)
	}
	if len(devices) != 1 || devices[0].DeviceID != "lora-5" || devices[0].Uplinks != 1 {
		t.Fatalf("unexpected devices %+v", devices)
	}
}
