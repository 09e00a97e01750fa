package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"lora-sensor-node/internal/tasks"
)

func main() {
	var (
		opts  tasks.Options
		ports string
	)
	flag.StringVar(&opts.ConfigPath, "config", "config/config.yaml", "path to YAML config")
	flag.StringVar(&opts.DeviceID, "device", "", "override node.device_id")
	flag.StringVar(&ports, "ports", "", "comma separated port numbers, overrides node.ports")
	flag.StringVar(&opts.Transport, "transport", "", "override node.transport.type (log, radio, http)")
	flag.BoolVar(&opts.StorageEnabled, "frame-log", false, "enable the frame log")
	flag.StringVar(&opts.StorageDir, "frame-log-dir", "", "frame log directory (enables the frame log)")
	flag.StringVar(&opts.MetricsAddr, "metrics", "", "override metrics.addr")
	flag.Parse()

	if ports != "" {
		for _, p := range strings.Split(ports, ",") {
			n, err := strconv.ParseUint(strings.TrimSpace(p), 10, 8)
			if err != nil {
				log.Fatalf("invalid port %q: %v", p, err)
			}
			opts.Ports = append(opts.Ports, uint8(n))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle SIGINT/SIGTERM for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		s := <-sigCh
		log.Printf("received signal: %v, shutting down...", s)
		cancel()
	}()

	if err := tasks.InitAndRunNode(ctx, opts); err != nil {
		log.Fatalf("node exited with error: %v", err)
	}
}
