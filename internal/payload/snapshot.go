package payload

// Reading is one sensor value (two for Location: latitude, longitude) plus its validity.
type Reading struct {
	Values []float64 `json:"values"`
	Valid  bool      `json:"valid"`
}

// Scalar returns a valid single-value reading.
func Scalar(v float64) Reading { return Reading{Values: []float64{v}, Valid: true} }

// Pair returns a valid two-value reading, e.g. latitude and longitude.
func Pair(a, b float64) Reading { return Reading{Values: []float64{a, b}, Valid: true} }

// Invalid returns a reading that encodes as the field sentinel.
func Invalid() Reading { return Reading{} }

// Value returns the first value, or 0 when the reading carries none.
func (r Reading) Value() float64 {
	if len(r.Values) == 0 {
		return 0
	}
	return r.Values[0]
}

// Snapshot holds the current reading of every known field.
// The zero Snapshot has every field invalid.
type Snapshot struct {
	readings [KindCount]Reading
}

// Set stores r for kind k. Unknown kinds are ignored.
func (s *Snapshot) Set(k Kind, r Reading) {
	if k.Valid() {
		s.readings[k] = r
	}
}

// Get returns the reading for kind k.
func (s *Snapshot) Get(k Kind) Reading {
	if !k.Valid() {
		return Reading{}
	}
	return s.readings[k]
}

// Map returns the readings of the fields in set keyed by field name.
func (s *Snapshot) Map(set FieldSet) map[string]Reading {
	out := make(map[string]Reading, set.Len())
	for _, k := range set.Kinds() {
		out[k.String()] = s.readings[k]
	}
	return out
}
