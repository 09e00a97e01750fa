package transport

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
)

func TestMockModemRoundTrip(t *testing.T) {
	host, modemEnd := net.Pipe()
	var air bytes.Buffer
	modem := NewMockModem(9, &air)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- modem.Serve(ctx, modemEnd) }()

	sender := NewRadioSender(host, 1)
	if err := sender.Send(ctx, 4, []byte{0x08, 0xCA, 0x12, 0xDE}); err != nil {
		t.Fatalf("send: %v", err)
	}
	sender.Close()
	if err := <-done; err != nil {
		t.Fatalf("serve: %v", err)
	}

	env, err := ParseRCV(strings.TrimSpace(air.String()))
	if err != nil {
		t.Fatalf("parse air line %q: %v", air.String(), err)
	}
	if env.Address != 9 || env.Port != 4 || !bytes.Equal(env.Frame, []byte{0x08, 0xCA, 0x12, 0xDE}) {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestMockModemErrors(t *testing.T) {
	m := NewMockModem(1, nil)
	cases := map[string]string{
		"AT\r\n":                "+OK",
		"AT":                    "+ERR=1",
		"AT+SEND=1,4,01\r\n":    "+ERR=5",
		"AT+SEND=1\r\n":         "+ERR=4",
		"AT+BAND=868500000\r\n": "+ERR=4",
	}
	for in, want := range cases {
		if got := m.handle(in); got != want {
			t.Fatalf("%q: got %s, want %s", in, got, want)
		}
	}
}
