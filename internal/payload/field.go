package payload

import (
	"fmt"
	"log"
	"math"
	"reflect"
)

// Number is the set of numeric types a driver may hand to EncodeValue.
type Number interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~float32 | ~float64
}

// Field describes how one sensor quantity is laid out on the wire.
// ByteWidth is split evenly across ValueCount big-endian values.
type Field struct {
	Kind       Kind
	Unit       string
	ByteWidth  int
	ValueCount int
	Scale      float64
	Signed     bool
}

var fields = [KindCount]Field{
	BatteryVoltage:   {Kind: BatteryVoltage, Unit: "V", ByteWidth: 2, ValueCount: 1, Scale: 100},
	Temperature:      {Kind: Temperature, Unit: "C", ByteWidth: 2, ValueCount: 1, Scale: 100, Signed: true},
	RelativeHumidity: {Kind: RelativeHumidity, Unit: "%RH", ByteWidth: 2, ValueCount: 1, Scale: 100},
	AirPressure:      {Kind: AirPressure, Unit: "hPa", ByteWidth: 3, ValueCount: 1, Scale: 100},
	GasResistance:    {Kind: GasResistance, Unit: "Ohm", ByteWidth: 3, ValueCount: 1, Scale: 1},
	Location:         {Kind: Location, Unit: "deg", ByteWidth: 6, ValueCount: 2, Scale: 10000, Signed: true},
	CurrentSensor:    {Kind: CurrentSensor, Unit: "A", ByteWidth: 2, ValueCount: 1, Scale: 100},
}

// FieldFor returns the wire description for k. Unknown kinds yield the zero Field.
func FieldFor(k Kind) Field {
	if !k.Valid() {
		return Field{}
	}
	return fields[k]
}

// Fields returns all field descriptions in canonical order.
func Fields() []Field {
	out := make([]Field, KindCount)
	copy(out, fields[:])
	return out
}

// ValueWidth is the number of bytes used by each packed value.
func (f Field) ValueWidth() int {
	if f.ValueCount <= 0 {
		return 0
	}
	return f.ByteWidth / f.ValueCount
}

// Sentinel is the raw pattern that marks a value as invalid:
// 0x7F per byte for signed fields, 0xFF per byte otherwise.
func (f Field) Sentinel() uint64 {
	b := uint64(0xFF)
	if f.Signed {
		b = 0x7F
	}
	var s uint64
	for i := 0; i < f.ValueWidth(); i++ {
		s = s<<8 | b
	}
	return s
}

// Warning reports a negative scaled value written through an unsigned field.
// The value is still encoded; receivers see the two's-complement wrap.
type Warning struct {
	Kind   Kind
	Scaled int64
}

func (w Warning) String() string {
	return fmt.Sprintf("negative value %d encoded into unsigned field %s", w.Scaled, w.Kind)
}

// WarningHandler receives encoding warnings. Replace it during start-up only.
var WarningHandler = func(w Warning) {
	log.Printf("warn: %s", w)
}

// snapTolerance absorbs float representation error so that 3.85*100 truncates to 385.
const snapTolerance = 1e-9

// scaleToInt snaps an already scaled value to the nearest integer when it is within
// snapTolerance, then truncates toward zero.
func scaleToInt(x float64) int64 {
	if r := math.Round(x); math.Abs(x-r) <= snapTolerance*math.Max(1, math.Abs(x)) {
		x = r
	}
	switch {
	case x >= math.MaxInt64:
		return math.MaxInt64
	case x <= math.MinInt64:
		return math.MinInt64
	}
	return int64(x)
}

// EncodeValue appends one value of field f to dst, using exactly f.ValueWidth() bytes.
//
// A valid value is multiplied by f.Scale and truncated toward zero; anything finer than
// 1/Scale is discarded on purpose. Invalid or non-finite values are replaced by the
// field's sentinel.
func EncodeValue[T Number](dst []byte, f Field, v T, valid bool) []byte {
	x := float64(v)
	raw := f.Sentinel()
	if valid && !math.IsNaN(x) && !math.IsInf(x, 0) {
		n := scaleToInt(scaled(v, f.Scale))
		if n < 0 && !f.Signed && WarningHandler != nil {
			WarningHandler(Warning{Kind: f.Kind, Scaled: n})
		}
		raw = uint64(n)
	}
	for i := f.ValueWidth() - 1; i >= 0; i-- {
		dst = append(dst, byte(raw>>(8*uint(i))))
	}
	return dst
}

// scaled multiplies v by scale. float32 readings are multiplied in float32 so that
// 3.85f*100 rounds to 385 instead of landing just below it in float64.
func scaled[T Number](v T, scale float64) float64 {
	if reflect.TypeOf((*T)(nil)).Elem().Kind() == reflect.Float32 {
		return float64(float32(float32(v) * float32(scale)))
	}
	return float64(v) * scale
}

// DecodeValue reads one value of field f from the start of src.
// It returns valid=false, with a zero value, when the raw bits are the sentinel
// or src is too short.
func DecodeValue(src []byte, f Field) (float64, bool) {
	w := f.ValueWidth()
	if w == 0 || len(src) < w {
		return 0, false
	}
	var raw uint64
	for _, b := range src[:w] {
		raw = raw<<8 | uint64(b)
	}
	if raw == f.Sentinel() {
		return 0, false
	}
	n := int64(raw)
	if f.Signed {
		shift := uint(64 - 8*w)
		n = int64(raw<<shift) >> shift
	}
	return float64(n) / f.Scale, true
}

// Append encodes every value of r and appends exactly f.ByteWidth bytes to dst.
// Missing values encode as 0.
func (f Field) Append(dst []byte, r Reading) []byte {
	for i := 0; i < f.ValueCount; i++ {
		var v float64
		if i < len(r.Values) {
			v = r.Values[i]
		}
		dst = EncodeValue(dst, f, v, r.Valid)
	}
	return dst
}

// Decode reads f.ByteWidth bytes from src. The reading is invalid if any of its
// values carries the sentinel.
func (f Field) Decode(src []byte) Reading {
	w := f.ValueWidth()
	r := Reading{Values: make([]float64, f.ValueCount), Valid: true}
	for i := 0; i < f.ValueCount; i++ {
		off := i * w
		if off > len(src) {
			r.Valid = false
			continue
		}
		v, ok := DecodeValue(src[off:], f)
		if !ok {
			r.Valid = false
		}
		r.Values[i] = v
	}
	return r
}
