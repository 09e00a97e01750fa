package payload

import "errors"

var (
	ErrUnknownPort    = errors.New("unknown port")
	ErrBufferTooSmall = errors.New("frame buffer too small for port")
	ErrShortFrame     = errors.New("frame shorter than port encoded length")
)
