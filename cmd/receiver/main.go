package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"lora-sensor-node/internal/tasks"
)

func main() {
	var opts tasks.ReceiverOptions
	flag.StringVar(&opts.ConfigPath, "config", "config/config.yaml", "path to YAML config")
	flag.StringVar(&opts.ListenAddress, "listen", "", "override receiver.listen_address")
	flag.StringVar(&opts.DBPath, "db", "", "override receiver.db_path")
	flag.StringVar(&opts.RadioPort, "radio", "", "serial port of a LoRa modem to listen on")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := tasks.InitAndRunReceiver(ctx, opts); err != nil {
		log.Fatalf("receiver exited with error: %v", err)
	}
}
