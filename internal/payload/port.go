package payload

import (
	"fmt"
	"math/bits"
	"strings"
)

// FieldSet is a bitmask of included fields; bit i stands for Kind(i).
type FieldSet uint8

// NewFieldSet returns a set holding the given kinds.
func NewFieldSet(kinds ...Kind) FieldSet {
	var s FieldSet
	for _, k := range kinds {
		s = s.With(k)
	}
	return s
}

// AllFields is the set of every known kind.
const AllFields = FieldSet(1<<KindCount - 1)

func (s FieldSet) Has(k Kind) bool { return k.Valid() && s&(1<<k) != 0 }

func (s FieldSet) With(k Kind) FieldSet {
	if !k.Valid() {
		return s
	}
	return s | 1<<k
}

func (s FieldSet) Union(o FieldSet) FieldSet { return s | o }

func (s FieldSet) Len() int { return bits.OnesCount8(uint8(s & AllFields)) }

// Kinds lists the members of s in canonical order.
func (s FieldSet) Kinds() []Kind {
	out := make([]Kind, 0, s.Len())
	for _, k := range Kinds() {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

func (s FieldSet) String() string {
	names := make([]string, 0, s.Len())
	for _, k := range s.Kinds() {
		names = append(names, k.String())
	}
	return "[" + strings.Join(names, ",") + "]"
}

// Port is a numbered selection of fields. The frame for a port is the
// concatenation, in canonical order, of the encoding of each included field.
// It carries no port number, length or tags: the transport conveys the port.
type Port struct {
	Number uint8
	Fields FieldSet
}

func (p Port) String() string { return fmt.Sprintf("port %d %s", p.Number, p.Fields) }

func (p Port) Includes(k Kind) bool { return p.Fields.Has(k) }

// EncodedLength is the exact number of bytes a frame for p occupies.
func (p Port) EncodedLength() int {
	n := 0
	for _, k := range p.Fields.Kinds() {
		n += fields[k].ByteWidth
	}
	return n
}

// Append encodes the included fields of s onto dst.
// It always appends exactly p.EncodedLength() bytes.
func (p Port) Append(dst []byte, s *Snapshot) []byte {
	for _, k := range p.Fields.Kinds() {
		dst = fields[k].Append(dst, s.Get(k))
	}
	return dst
}

// EncodeTo writes the frame for s into buf starting at start and returns the
// offset just past the last byte written, so callers can chain a header or
// further ports into the same buffer.
func (p Port) EncodeTo(buf []byte, start int, s *Snapshot) (int, error) {
	n := p.EncodedLength()
	if start < 0 || len(buf)-start < n {
		return start, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrBufferTooSmall, n, start, len(buf))
	}
	p.Append(buf[start:start:start+n], s)
	return start + n, nil
}

// Decode reads the frame for p from buf starting at start. Fields that p does not
// include are left as zero, invalid readings.
func (p Port) Decode(buf []byte, start int) (Snapshot, error) {
	var s Snapshot
	n := p.EncodedLength()
	if start < 0 || len(buf)-start < n {
		return s, fmt.Errorf("%w: port %d needs %d bytes, have %d", ErrShortFrame, p.Number, n, len(buf)-start)
	}
	pos := start
	for _, k := range p.Fields.Kinds() {
		f := fields[k]
		s.Set(k, f.Decode(buf[pos:pos+f.ByteWidth]))
		pos += f.ByteWidth
	}
	return s, nil
}

// Equal reports whether p and o have the same number and the same fields.
func (p Port) Equal(o Port) bool {
	return p.Number == o.Number && p.Fields == o.Fields
}

// Combine returns a transient port, numbered 0, that includes every field
// included by any of ports. It answers "which sensors must be sampled" and is
// never used to encode or look up a frame.
func Combine(ports ...Port) Port {
	var c Port
	for _, p := range ports {
		c.Fields = c.Fields.Union(p.Fields)
	}
	return c
}
