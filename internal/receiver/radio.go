package receiver

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"lora-sensor-node/internal/transport"
)

// ListenRadio feeds +RCV lines read from r into svc until ctx ends or r fails.
// The sender's radio address becomes the device id ("lora-<addr>").
func ListenRadio(ctx context.Context, svc *Service, r io.Reader) error {
	return transport.Listen(ctx, r,
		func(env transport.Envelope) {
			u := Uplink{
				DeviceID:   fmt.Sprintf("lora-%d", env.Address),
				Port:       env.Port,
				Payload:    env.Frame,
				RSSI:       env.RSSI,
				SNR:        env.SNR,
				ReceivedAt: time.Now(),
			}
			if _, err := svc.Ingest(ctx, u); err != nil {
				log.Printf("radio uplink from %s port %d: %v", u.DeviceID, u.Port, err)
			}
		},
		func(err error) {
			svc.metrics.UplinkRejected("malformed")
			log.Printf("radio: %v", err)
		})
}
