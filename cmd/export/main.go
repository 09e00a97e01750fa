package main

import (
	"context"
	"flag"
	"log"
	"time"

	dbpkg "lora-sensor-node/internal/db"
	"lora-sensor-node/internal/output"
)

func main() {
	var dbPath, deviceID, outJSON, outCSV string
	flag.StringVar(&dbPath, "db", "data/uplinks.sqlite", "path to sqlite database file")
	flag.StringVar(&deviceID, "device", "", "only export this device (default: all)")
	flag.StringVar(&outJSON, "json", "", "path to write JSON export (optional)")
	flag.StringVar(&outCSV, "csv", "", "path to write CSV export (optional)")
	flag.Parse()

	if outJSON == "" && outCSV == "" {
		log.Fatalf("no output specified: set --json and/or --csv")
	}

	db, err := dbpkg.Open(dbPath)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rows, err := db.LatestReadings(ctx, deviceID)
	if err != nil {
		log.Fatalf("latest readings: %v", err)
	}

	if outJSON != "" {
		if err := output.WriteJSON(outJSON, rows); err != nil {
			log.Printf("write json error: %v", err)
		}
	}
	if outCSV != "" {
		if err := output.WriteCSV(outCSV, rows); err != nil {
			log.Printf("write csv error: %v", err)
		}
	}
	log.Printf("exported %d readings", len(rows))
}
