// Package sim emulates a sensor board behind a Modbus TCP slave so the node's
// Modbus source can be exercised without hardware.
package sim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
)

const (
	functionReadHoldingRegs = 0x03
	functionReadInputRegs   = 0x04

	exceptionIllegalFunction = 0x01
	exceptionIllegalDataAddr = 0x02
	exceptionIllegalDataVal  = 0x03
	exceptionDeviceFailure   = 0x04
)

var (
	errOutOfRange    = errors.New("out of range")
	errInvalidQty    = errors.New("invalid quantity")
	errInvalidPDULen = errors.New("invalid pdu length")
	errUnavailable   = errors.New("sensor unavailable")
)

// RegisterType selects the holding or input register bank.
type RegisterType string

const (
	Holding RegisterType = "holding"
	Input   RegisterType = "input"
)

type bank struct {
	words  []uint16
	failed map[uint16]bool
}

func newBank() *bank {
	return &bank{words: make([]uint16, 65536), failed: make(map[uint16]bool)}
}

// Server is a minimal Modbus TCP slave answering register reads.
type Server struct {
	listener  net.Listener
	wg        sync.WaitGroup
	quit      chan struct{}
	closeOnce sync.Once

	mu    sync.RWMutex
	banks map[RegisterType]*bank
}

func NewServer() *Server {
	return &Server{
		banks: map[RegisterType]*bank{Holding: newBank(), Input: newBank()},
		quit:  make(chan struct{}),
	}
}

// Listen starts accepting Modbus TCP connections on the provided address.
func (s *Server) Listen(address string) error {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	s.listener = l

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Addr reports the bound address, useful after listening on port 0.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
			}
			continue
		}

		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()
	go func() {
		<-s.quit
		conn.Close()
	}()

	header := make([]byte, 7)
	for {
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		length := binary.BigEndian.Uint16(header[4:6])
		if length <= 1 {
			continue
		}
		pdu := make([]byte, int(length-1))
		if _, err := io.ReadFull(conn, pdu); err != nil {
			return
		}

		response := s.handlePDU(pdu)
		// transaction and protocol ids are echoed back
		binary.BigEndian.PutUint16(header[4:6], uint16(len(response)+1))
		if _, err := conn.Write(append(header, response...)); err != nil {
			return
		}
	}
}

func (s *Server) handlePDU(pdu []byte) []byte {
	if len(pdu) == 0 {
		return exceptionResponse(0, exceptionIllegalFunction)
	}
	function := pdu[0]
	var rt RegisterType
	switch function {
	case functionReadHoldingRegs:
		rt = Holding
	case functionReadInputRegs:
		rt = Input
	default:
		return exceptionResponse(function, exceptionIllegalFunction)
	}
	data, err := s.readRegisters(s.banks[rt], pdu)
	if err != nil {
		return exceptionResponse(function, errToCode(err))
	}
	return append([]byte{function, byte(len(data))}, data...)
}

func (s *Server) readRegisters(b *bank, pdu []byte) ([]byte, error) {
	if len(pdu) < 5 {
		return nil, errInvalidPDULen
	}
	start := binary.BigEndian.Uint16(pdu[1:3])
	quantity := binary.BigEndian.Uint16(pdu[3:5])
	if quantity == 0 || quantity > 125 {
		return nil, errInvalidQty
	}
	if int(start)+int(quantity) > len(b.words) {
		return nil, errOutOfRange
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]byte, quantity*2)
	for i := 0; i < int(quantity); i++ {
		addr := start + uint16(i)
		if b.failed[addr] {
			return nil, errUnavailable
		}
		binary.BigEndian.PutUint16(result[i*2:], b.words[addr])
	}
	return result, nil
}

func exceptionResponse(function byte, code byte) []byte {
	return []byte{function | 0x80, code}
}

func errToCode(err error) byte {
	switch {
	case errors.Is(err, errOutOfRange):
		return exceptionIllegalDataAddr
	case errors.Is(err, errInvalidQty), errors.Is(err, errInvalidPDULen):
		return exceptionIllegalDataVal
	case errors.Is(err, errUnavailable):
		return exceptionDeviceFailure
	default:
		return exceptionIllegalFunction
	}
}

// Close stops the server and waits for all goroutines to exit.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.quit)
		if s.listener != nil {
			s.listener.Close()
		}
	})
	s.wg.Wait()
}

// SetRegisters writes consecutive words starting at address and clears any
// failure flag on them.
func (s *Server) SetRegisters(rt RegisterType, address uint16, words ...uint16) error {
	b, ok := s.banks[rt]
	if !ok {
		return fmt.Errorf("unsupported register type %s", rt)
	}
	if int(address)+len(words) > len(b.words) {
		return fmt.Errorf("address %d out of range", address)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range words {
		b.words[int(address)+i] = w
		delete(b.failed, address+uint16(i))
	}
	return nil
}

// Fail makes reads covering the given addresses answer with a device failure
// exception until they are written again.
func (s *Server) Fail(rt RegisterType, addresses ...uint16) error {
	b, ok := s.banks[rt]
	if !ok {
		return fmt.Errorf("unsupported register type %s", rt)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range addresses {
		b.failed[a] = true
	}
	return nil
}
