// Command probe reads the configured Modbus sensor points once and prints the
// readings and the frame they would encode to.
package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"lora-sensor-node/internal/config"
	"lora-sensor-node/internal/payload"
	"lora-sensor-node/internal/sensors"
)

func main() {
	var (
		configPath string
		port       uint
	)
	flag.StringVar(&configPath, "config", "config/config.yaml", "path to YAML config")
	flag.UintVar(&port, "port", 0, "port to encode (default: every field with a point)")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	mb := cfg.Node.Sensors.Modbus

	reader, err := sensors.NewModbusReader(mb)
	if err != nil {
		log.Fatalf("modbus points: %v", err)
	}

	var set payload.FieldSet
	for _, p := range mb.Points {
		k, _ := payload.ParseKind(p.Field)
		set = set.With(k)
	}
	target := payload.Port{Number: payload.ErrorPortNumber, Fields: set}
	if port != 0 {
		if port > 255 {
			log.Fatalf("port %d out of range", port)
		}
		target, err = payload.Default().Resolve(uint8(port))
		if err != nil {
			log.Fatal(err)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), mb.Timeout*time.Duration(mb.RetryCount+2))
	defer cancel()
	if err := reader.Init(ctx, target.Fields); err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer reader.Close()

	snap := sensors.Sample(ctx, reader, target.Fields)
	out := map[string]any{"fields": snap.Map(target.Fields)}
	if port != 0 {
		out["f_port"] = target.Number
		out["frame"] = hex.EncodeToString(target.Append(nil, &snap))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
