package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// RYLR896 error codes used by MockModem.
const (
	modemErrNoEnter        = 1
	modemErrUnknownCmd     = 4
	modemErrLengthMismatch = 5
)

// MockModem answers the subset of the RYLR896 AT command set a node uses and
// puts every accepted AT+SEND on the air as a +RCV line.
type MockModem struct {
	Address uint16 // reported as the sender address
	RSSI    int
	SNR     float64

	mu  sync.Mutex
	air io.Writer
}

func NewMockModem(address uint16, air io.Writer) *MockModem {
	return &MockModem{Address: address, RSSI: -40, SNR: 10, air: air}
}

// Serve reads commands from host until ctx ends or host fails.
func (m *MockModem) Serve(ctx context.Context, host io.ReadWriter) error {
	r := bufio.NewReader(host)
	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := r.ReadString('\n')
		if err != nil {
			if err == io.EOF || ctx.Err() != nil {
				return nil
			}
			return err
		}
		reply := m.handle(line)
		if _, err := io.WriteString(host, reply+"\r\n"); err != nil {
			return err
		}
	}
}

func (m *MockModem) handle(line string) string {
	if !strings.HasSuffix(line, "\r\n") {
		return fmt.Sprintf("+ERR=%d", modemErrNoEnter)
	}
	cmd := strings.TrimSpace(line)
	switch {
	case cmd == "AT":
		return "+OK"
	case strings.HasPrefix(cmd, "AT+SEND="):
		parts := strings.SplitN(strings.TrimPrefix(cmd, "AT+SEND="), ",", 3)
		if len(parts) != 3 {
			return fmt.Sprintf("+ERR=%d", modemErrUnknownCmd)
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil || n != len(parts[2]) || n > MaxRadioData {
			return fmt.Sprintf("+ERR=%d", modemErrLengthMismatch)
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.air != nil {
			fmt.Fprintf(m.air, "+RCV=%d,%d,%s,%d,%g\r\n", m.Address, n, parts[2], m.RSSI, m.SNR)
		}
		return "+OK"
	default:
		return fmt.Sprintf("+ERR=%d", modemErrUnknownCmd)
	}
}
