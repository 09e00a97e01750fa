package tasks

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"lora-sensor-node/internal/config"
	"lora-sensor-node/internal/db"
	"lora-sensor-node/internal/metrics"
	"lora-sensor-node/internal/receiver"
	"lora-sensor-node/internal/storage"
	"lora-sensor-node/internal/utils"
)

// ReceiverOptions overrides receiver settings from the command line.
type ReceiverOptions struct {
	ConfigPath    string
	ListenAddress string
	DBPath        string
	RadioPort     string
}

// InitAndRunReceiver opens the database, starts the HTTP API and, when a
// radio serial port is configured, the radio listener.
func InitAndRunReceiver(ctx context.Context, opts ReceiverOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	rc := cfg.Receiver
	if opts.ListenAddress != "" {
		rc.ListenAddress = opts.ListenAddress
	}
	if opts.DBPath != "" {
		rc.DBPath = opts.DBPath
	}
	if opts.RadioPort != "" {
		rc.Radio.SerialPort = opts.RadioPort
	}

	database, err := db.Open(rc.DBPath)
	if err != nil {
		return fmt.Errorf("open db %s: %w", rc.DBPath, err)
	}
	defer database.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svcOpts := []receiver.Option{
		receiver.WithDB(database),
		receiver.WithMetrics(m),
		receiver.WithDedupTTL(rc.DedupTTL),
	}
	if rc.Storage.Enabled {
		st, err := storage.New(rc.Storage.Dir, "uplinks", rc.Storage.FileType, rc.Storage.MaxQueueSize)
		if err != nil {
			log.Printf("storage init failed: %v (continuing without storage)", err)
		} else {
			defer st.Close()
			svcOpts = append(svcOpts, receiver.WithStorage(st))
		}
	}
	svc := receiver.NewService(svcOpts...)
	go svc.RunDedupJanitor(ctx, rc.DedupTTL)

	if rc.Radio.SerialPort != "" {
		port, err := utils.OpenSerial(utils.SerialParams{
			Address:  rc.Radio.SerialPort,
			BaudRate: rc.Radio.BaudRate,
			Timeout:  rc.Radio.Timeout,
		})
		if err != nil {
			return fmt.Errorf("open radio %s: %w", rc.Radio.SerialPort, err)
		}
		go func() {
			<-ctx.Done()
			port.Close()
		}()
		go func() {
			for ctx.Err() == nil {
				if err := receiver.ListenRadio(ctx, svc, port); err != nil {
					log.Printf("radio listener: %v", err)
				}
				// serial reads time out when the channel is quiet
				time.Sleep(100 * time.Millisecond)
			}
		}()
	}

	return receiver.NewServer(svc, rc.ListenAddress, reg).Start(ctx)
}
