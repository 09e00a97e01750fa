package payload

import (
	"fmt"
	"sort"
)

// ErrorPortNumber is reserved for the port returned by failed lookups.
const ErrorPortNumber = 255

// ErrorPort is returned by Lookup for unregistered numbers. It includes no
// fields, so its EncodedLength is 0: callers treat it as "do not send".
var ErrorPort = Port{Number: ErrorPortNumber}

// Catalog maps port numbers to ports. It is immutable once built and safe for
// concurrent lookups.
type Catalog struct {
	table [256]Port
	known [256]bool
}

// NewCatalog builds a catalog from ports. Duplicate numbers and the reserved
// error number are rejected.
func NewCatalog(ports ...Port) (*Catalog, error) {
	c := &Catalog{}
	for i := range c.table {
		c.table[i] = ErrorPort
	}
	for _, p := range ports {
		if p.Number == ErrorPortNumber {
			return nil, fmt.Errorf("port %d is reserved", ErrorPortNumber)
		}
		if c.known[p.Number] {
			return nil, fmt.Errorf("duplicate port %d", p.Number)
		}
		if p.Fields&^AllFields != 0 {
			return nil, fmt.Errorf("port %d includes unknown fields", p.Number)
		}
		c.table[p.Number] = p
		c.known[p.Number] = true
	}
	return c, nil
}

// Lookup returns the port registered under n, or ErrorPort.
func (c *Catalog) Lookup(n uint8) Port { return c.table[n] }

// Resolve is Lookup with an error for unregistered numbers.
func (c *Catalog) Resolve(n uint8) (Port, error) {
	if !c.known[n] {
		return ErrorPort, fmt.Errorf("%w: %d", ErrUnknownPort, n)
	}
	return c.table[n], nil
}

// Known reports whether n is registered.
func (c *Catalog) Known(n uint8) bool { return c.known[n] }

// Ports returns the registered ports in ascending number order.
func (c *Catalog) Ports() []Port {
	out := make([]Port, 0, 32)
	for n, ok := range c.known {
		if ok {
			out = append(out, c.table[n])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func fieldSet(kinds ...Kind) FieldSet { return NewFieldSet(kinds...) }

// deployed is the port table flashed on the nodes. Ports 50-59 mirror 0-9 with
// Location added.
var deployed = []Port{
	{1, fieldSet(BatteryVoltage)},
	{2, fieldSet(Temperature)},
	{3, fieldSet(BatteryVoltage, Temperature)},
	{4, fieldSet(Temperature, RelativeHumidity)},
	{5, fieldSet(BatteryVoltage, Temperature, RelativeHumidity)},
	{6, fieldSet(Temperature, RelativeHumidity, AirPressure)},
	{7, fieldSet(BatteryVoltage, Temperature, RelativeHumidity, AirPressure)},
	{8, fieldSet(Temperature, RelativeHumidity, AirPressure, GasResistance)},
	{9, fieldSet(BatteryVoltage, Temperature, RelativeHumidity, AirPressure, GasResistance)},
	{10, fieldSet(CurrentSensor)},
	{11, fieldSet(BatteryVoltage, CurrentSensor)},
	{50, fieldSet(Location)},
	{51, fieldSet(BatteryVoltage, Location)},
	{52, fieldSet(Temperature, Location)},
	{53, fieldSet(BatteryVoltage, Temperature, Location)},
	{54, fieldSet(Temperature, RelativeHumidity, Location)},
	{55, fieldSet(BatteryVoltage, Temperature, RelativeHumidity, Location)},
	{56, fieldSet(Temperature, RelativeHumidity, AirPressure, Location)},
	{57, fieldSet(BatteryVoltage, Temperature, RelativeHumidity, AirPressure, Location)},
	{58, fieldSet(Temperature, RelativeHumidity, AirPressure, GasResistance, Location)},
	{59, fieldSet(BatteryVoltage, Temperature, RelativeHumidity, AirPressure, GasResistance, Location)},
}

var defaultCatalog = mustCatalog(deployed...)

func mustCatalog(ports ...Port) *Catalog {
	c, err := NewCatalog(ports...)
	if err != nil {
		panic(err)
	}
	return c
}

// Default returns the catalog of deployed ports. It is built at package
// initialisation and never modified.
func Default() *Catalog { return defaultCatalog }
