// Command sensorsim serves recorded sensor data as a Modbus TCP sensor board,
// using the node's own modbus point map.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"lora-sensor-node/internal/config"
	"lora-sensor-node/internal/sensors"
	"lora-sensor-node/internal/sim"
)

func main() {
	var (
		configPath string
		listen     string
		csvFile    string
		interval   time.Duration
	)
	flag.StringVar(&configPath, "config", "config/config.yaml", "path to YAML config")
	flag.StringVar(&listen, "listen", "", "listen address (default: node.sensors.modbus.connection host:port)")
	flag.StringVar(&csvFile, "csv", "", "recorded readings (default: node.sensors.csv_file)")
	flag.DurationVar(&interval, "interval", 5*time.Second, "time between rows")
	flag.Parse()

	if err := run(configPath, listen, csvFile, interval); err != nil {
		log.Fatal(err)
	}
}

func run(configPath, listen, csvFile string, interval time.Duration) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	mb := cfg.Node.Sensors.Modbus
	if listen == "" {
		listen = fmt.Sprintf("%s:%d", mb.Connection.Host, mb.Connection.Port)
	}
	if csvFile == "" {
		csvFile = cfg.Node.Sensors.CSVFile
	}

	rows, err := sensors.LoadCSV(csvFile)
	if err != nil {
		return fmt.Errorf("load csv: %w", err)
	}

	server := sim.NewServer()
	if err := server.Listen(listen); err != nil {
		return fmt.Errorf("start modbus server: %w", err)
	}
	defer server.Close()

	board, err := sim.NewBoard(server, mb.Points, rows, interval)
	if err != nil {
		return fmt.Errorf("create board: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("sensor board simulator listening on %s (%d rows, %d points)", server.Addr(), len(rows), len(mb.Points))
	if err := board.Start(ctx); err != nil {
		return err
	}
	log.Println("shutting down simulator")
	return nil
}
