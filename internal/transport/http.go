package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// UplinkRequest is the JSON body accepted by the receiver's uplink endpoint.
type UplinkRequest struct {
	DeviceID   string  `json:"device_id" binding:"required"`
	FPort      uint8   `json:"f_port"`
	FRMPayload []byte  `json:"frm_payload"` // base64 in JSON
	RSSI       int     `json:"rssi,omitempty"`
	SNR        float64 `json:"snr,omitempty"`
}

// HTTPSender posts frames to a receiver.
type HTTPSender struct {
	URL      string
	DeviceID string
	Client   *http.Client
}

func NewHTTPSender(url, deviceID string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSender{URL: url, DeviceID: deviceID, Client: &http.Client{Timeout: timeout}}
}

func (s *HTTPSender) Send(ctx context.Context, port uint8, frame []byte) error {
	body, err := json.Marshal(UplinkRequest{DeviceID: s.DeviceID, FPort: port, FRMPayload: frame})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	return nil
}
