// Command decode prints the readings carried by one frame.
//
//	decode -port 3 -hex 018108ca
//	decode -port 3 -base64 AYEIyg==
package main

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"lora-sensor-node/internal/payload"
)

func main() {
	var (
		port  = flag.Uint("port", 0, "port number the frame was sent on")
		hexIn = flag.String("hex", "", "frame as hex")
		b64In = flag.String("base64", "", "frame as base64")
		list  = flag.Bool("list", false, "list known ports and exit")
	)
	flag.Parse()

	cat := payload.Default()
	if *list {
		for _, p := range cat.Ports() {
			fmt.Printf("%3d %2d bytes %s\n", p.Number, p.EncodedLength(), p.Fields)
		}
		return
	}
	if *port > 255 {
		log.Fatalf("port %d out of range", *port)
	}

	var (
		frame []byte
		err   error
	)
	switch {
	case *hexIn != "":
		frame, err = hex.DecodeString(*hexIn)
	case *b64In != "":
		frame, err = base64.StdEncoding.DecodeString(*b64In)
	default:
		log.Fatal("one of -hex or -base64 is required")
	}
	if err != nil {
		log.Fatalf("decode input: %v", err)
	}

	p, err := cat.Resolve(uint8(*port))
	if err != nil {
		log.Fatal(err)
	}
	if len(frame) != p.EncodedLength() {
		log.Fatalf("%s expects %d bytes, got %d", p, p.EncodedLength(), len(frame))
	}
	snap, err := p.Decode(frame, 0)
	if err != nil {
		log.Fatal(err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(map[string]any{"f_port": p.Number, "fields": snap.Map(p.Fields)}); err != nil {
		log.Fatal(err)
	}
}
