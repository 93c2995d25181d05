package domain

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

// Ratio is a float64 that may legitimately be non-finite: a profit factor
// with no losses is +Inf and a percentage taken against a zero balance is
// NaN. JSON has no encoding for either, so Ratio writes +Inf/-Inf as the
// strings "Infinity"/"-Infinity" and NaN as null.
type Ratio float64

// Float returns r as a plain float64.
func (r Ratio) Float() float64 { return float64(r) }

// Finite reports whether r is neither NaN nor infinite.
func (r Ratio) Finite() bool {
	f := float64(r)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// String formats r for logs and CLI output.
func (r Ratio) String() string {
	f := float64(r)
	switch {
	case math.IsNaN(f):
		return "n/a"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// MarshalJSON implements json.Marshaler.
func (r Ratio) MarshalJSON() ([]byte, error) {
	f := float64(r)
	switch {
	case math.IsNaN(f):
		return []byte("null"), nil
	case math.IsInf(f, 1):
		return []byte(`"Infinity"`), nil
	case math.IsInf(f, -1):
		return []byte(`"-Infinity"`), nil
	}
	return json.Marshal(f)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *Ratio) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch string(data) {
	case "null":
		*r = Ratio(math.NaN())
		return nil
	case `"Infinity"`:
		*r = Ratio(math.Inf(1))
		return nil
	case `"-Infinity"`:
		*r = Ratio(math.Inf(-1))
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*r = Ratio(f)
	return nil
}
