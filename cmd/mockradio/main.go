// Command mockradio stands in for a pair of LoRa modems: frames the node sends
// with AT+SEND come out of the gateway port as +RCV lines.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"lora-sensor-node/internal/transport"
	"lora-sensor-node/internal/utils"
)

type Config struct {
	NodeAddress uint16   `yaml:"node_address"`
	RSSI        int      `yaml:"rssi"`
	SNR         float64  `yaml:"snr"`
	BaudRate    int      `yaml:"baud_rate"`
	Node        Endpoint `yaml:"node"`
	Gateway     Endpoint `yaml:"gateway"`
}

// Endpoint is one side of the mock. With spawn_socat the mock creates a pty
// pair: it opens SerialPort and the application opens SocatPeer.
type Endpoint struct {
	SerialPort string `yaml:"serial_port"`
	SpawnSocat bool   `yaml:"spawn_socat"`
	SocatPeer  string `yaml:"socat_peer"`
}

func loadConfig(path string) (Config, error) {
	cfg := Config{
		NodeAddress: 1,
		RSSI:        -40,
		SNR:         10,
		Node:        Endpoint{SerialPort: "/tmp/lora-node-modem", SpawnSocat: true, SocatPeer: "/tmp/lora-node"},
		Gateway:     Endpoint{SerialPort: "/tmp/lora-gw-modem", SpawnSocat: true, SocatPeer: "/tmp/lora-gw"},
	}
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func spawn(ctx context.Context, ep Endpoint) (*exec.Cmd, error) {
	if !ep.SpawnSocat {
		return nil, nil
	}
	if ep.SerialPort == "" || ep.SocatPeer == "" {
		return nil, fmt.Errorf("spawn_socat requires serial_port and socat_peer")
	}
	cmd := utils.BuildSocatPairCmd(ctx, utils.SocatPair{Link: ep.SerialPort, Peer: ep.SocatPeer})
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start socat: %w", err)
	}
	log.Printf("mockradio: spawned socat pair link=%s peer=%s (pid=%d)", ep.SerialPort, ep.SocatPeer, cmd.Process.Pid)
	return cmd, nil
}

func stopSocat(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(syscall.SIGTERM)
	done := make(chan struct{})
	go func() { _ = cmd.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		_ = cmd.Process.Kill()
	}
}

func run(ctx context.Context, cfg Config) error {
	for _, ep := range []Endpoint{cfg.Node, cfg.Gateway} {
		cmd, err := spawn(ctx, ep)
		if err != nil {
			return err
		}
		defer stopSocat(cmd)
	}
	// Wait a moment for device creation
	time.Sleep(400 * time.Millisecond)

	open := func(path string) (io.ReadWriteCloser, error) {
		return utils.OpenSerial(utils.SerialParams{Address: path, BaudRate: cfg.BaudRate, Timeout: time.Hour})
	}
	nodePort, err := open(cfg.Node.SerialPort)
	if err != nil {
		return fmt.Errorf("open node side: %w", err)
	}
	defer nodePort.Close()
	gwPort, err := open(cfg.Gateway.SerialPort)
	if err != nil {
		return fmt.Errorf("open gateway side: %w", err)
	}
	defer gwPort.Close()

	modem := transport.NewMockModem(cfg.NodeAddress, gwPort)
	modem.RSSI, modem.SNR = cfg.RSSI, cfg.SNR

	go func() {
		<-ctx.Done()
		nodePort.Close()
	}()
	log.Printf("mockradio: node modem on %s, gateway modem on %s", cfg.Node.SocatPeer, cfg.Gateway.SocatPeer)
	return modem.Serve(ctx, nodePort)
}

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "path to mockradio YAML config (optional)")
	flag.Parse()

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
