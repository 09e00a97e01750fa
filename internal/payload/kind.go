package payload

import (
	"fmt"
	"strings"
)

// Kind identifies one sensor quantity carried in a payload.
// The numeric order of the constants is the wire order: new kinds go at the end.
type Kind uint8

const (
	BatteryVoltage Kind = iota
	Temperature
	RelativeHumidity
	AirPressure
	GasResistance
	Location
	CurrentSensor

	// KindCount is the number of known kinds.
	KindCount = int(CurrentSensor) + 1
)

var kindNames = [KindCount]string{
	BatteryVoltage:   "battery_voltage",
	Temperature:      "temperature",
	RelativeHumidity: "relative_humidity",
	AirPressure:      "air_pressure",
	GasResistance:    "gas_resistance",
	Location:         "location",
	CurrentSensor:    "current",
}

// Kinds returns every kind in canonical (wire) order.
func Kinds() []Kind {
	out := make([]Kind, KindCount)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool { return int(k) < KindCount }

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
	return kindNames[k]
}

// ParseKind maps a config/CSV name to a Kind. Matching is case-insensitive.
func ParseKind(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, kn := range kindNames {
		if kn == n {
			return Kind(i), nil
		}
	}
	return 0, fmt.Errorf("unknown sensor field %q", name)
}
