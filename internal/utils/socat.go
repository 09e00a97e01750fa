package utils

import (
	"context"
	"os/exec"
)

// SocatPair names the two pty links of a virtual serial cable.
type SocatPair struct {
	Link string
	Peer string
}

// BuildSocatPairCmd returns a socat command that creates a connected pty pair.
func BuildSocatPairCmd(ctx context.Context, pair SocatPair) *exec.Cmd {
	return exec.CommandContext(ctx, "socat",
		"-d", "-d",
		"pty,raw,echo=0,link="+pair.Link,
		"pty,raw,echo=0,link="+pair.Peer,
	)
}
