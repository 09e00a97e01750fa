package transport

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"lora-sensor-node/internal/config"
	"lora-sensor-node/internal/utils"
)

// MaxRadioData is the largest data field the modem accepts in one AT+SEND.
const MaxRadioData = 240

var (
	ErrFrameTooLarge = errors.New("frame too large for radio")
	ErrMalformedRCV  = errors.New("malformed +RCV line")
)

// ModemError is a +ERR=n reply from the modem.
type ModemError struct {
	Code int
}

func (e *ModemError) Error() string { return fmt.Sprintf("modem error %d", e.Code) }

// RadioSender drives an RYLR896-style LoRa modem with AT commands. The data
// field is the hex text of the port byte followed by the frame.
type RadioSender struct {
	mu      sync.Mutex
	rw      io.ReadWriteCloser
	r       *bufio.Reader
	address uint16
}

func NewRadioSender(rw io.ReadWriteCloser, address uint16) *RadioSender {
	return &RadioSender{rw: rw, r: bufio.NewReader(rw), address: address}
}

// OpenRadio opens the modem's serial port.
func OpenRadio(cfg config.RadioConfig) (*RadioSender, error) {
	rw, err := utils.OpenSerial(utils.SerialParams{
		Address:  cfg.SerialPort,
		BaudRate: cfg.BaudRate,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open radio %s: %w", cfg.SerialPort, err)
	}
	return NewRadioSender(rw, cfg.Address), nil
}

func (s *RadioSender) Send(ctx context.Context, port uint8, frame []byte) error {
	data := hex.EncodeToString(append([]byte{port}, frame...))
	if len(data) > MaxRadioData {
		return fmt.Errorf("%w: %d hex chars", ErrFrameTooLarge, len(data))
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := fmt.Sprintf("AT+SEND=%d,%d,%s\r\n", s.address, len(data), data)
	if _, err := io.WriteString(s.rw, cmd); err != nil {
		return fmt.Errorf("write AT+SEND: %w", err)
	}
	return s.awaitOK(ctx)
}

// awaitOK reads modem lines until +OK or +ERR. Unsolicited lines are skipped.
func (s *RadioSender) awaitOK(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := s.r.ReadString('\n')
		line = strings.TrimSpace(line)
		switch {
		case line == "+OK":
			return nil
		case strings.HasPrefix(line, "+ERR="):
			code, convErr := strconv.Atoi(strings.TrimPrefix(line, "+ERR="))
			if convErr != nil {
				return fmt.Errorf("unexpected modem reply %q", line)
			}
			return &ModemError{Code: code}
		}
		if err != nil {
			return fmt.Errorf("read modem reply: %w", err)
		}
	}
}

func (s *RadioSender) Close() error {
	return s.rw.Close()
}

// Envelope is one frame received over the air.
type Envelope struct {
	Address uint16
	Port    uint8
	Frame   []byte
	RSSI    int
	SNR     float64
}

// ParseRCV parses a modem line of the form +RCV=<addr>,<len>,<data>,<rssi>,<snr>
// where data is the hex text written by RadioSender.
func ParseRCV(line string) (Envelope, error) {
	var env Envelope
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), "+RCV=")
	if !ok {
		return env, fmt.Errorf("%w: missing +RCV= prefix", ErrMalformedRCV)
	}
	parts := strings.Split(rest, ",")
	if len(parts) != 5 {
		return env, fmt.Errorf("%w: want 5 fields, got %d", ErrMalformedRCV, len(parts))
	}
	addr, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return env, fmt.Errorf("%w: address: %v", ErrMalformedRCV, err)
	}
	n, err := strconv.Atoi(parts[1])
	if err != nil || n != len(parts[2]) {
		return env, fmt.Errorf("%w: length %q does not match data", ErrMalformedRCV, parts[1])
	}
	raw, err := hex.DecodeString(parts[2])
	if err != nil || len(raw) == 0 {
		return env, fmt.Errorf("%w: data is not hex", ErrMalformedRCV)
	}
	rssi, err := strconv.Atoi(parts[3])
	if err != nil {
		return env, fmt.Errorf("%w: rssi: %v", ErrMalformedRCV, err)
	}
	snr, err := strconv.ParseFloat(parts[4], 64)
	if err != nil {
		return env, fmt.Errorf("%w: snr: %v", ErrMalformedRCV, err)
	}
	env.Address = uint16(addr)
	env.Port = raw[0]
	env.Frame = raw[1:]
	env.RSSI = rssi
	env.SNR = snr
	return env, nil
}

// Listen reads modem lines from r and hands every parsed +RCV to handle until
// ctx ends or r fails. Other lines are ignored. Malformed +RCV lines go to
// onError when it is non-nil.
func Listen(ctx context.Context, r io.Reader, handle func(Envelope), onError func(error)) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "+RCV=") {
			continue
		}
		env, err := ParseRCV(line)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			continue
		}
		handle(env)
	}
	if ctx.Err() != nil {
		return nil
	}
	return sc.Err()
}
