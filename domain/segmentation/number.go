package segmentation

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Float is a float64 that survives the analytics service's encoding of
// undefined values. null and the strings "NaN", "Infinity", "-Infinity"
// decode to the corresponding IEEE values; NaN and infinities encode as null.
type Float float64

// Value returns the plain float64.
func (f Float) Value() float64 { return float64(f) }

// IsNaN reports whether f is NaN.
func (f Float) IsNaN() bool { return math.IsNaN(float64(f)) }

// Finite reports whether f is neither NaN nor infinite.
func (f Float) Finite() bool { return finite(float64(f)) }

// Text formats f with prec decimals, or "n/a" when it is not finite.
func (f Float) Text(prec int) string {
	if !f.Finite() {
		return "n/a"
	}
	return strconv.FormatFloat(float64(f), 'f', prec, 64)
}

func (f Float) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func (f *Float) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = Float(math.NaN())
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "nan", "":
			*f = Float(math.NaN())
		case "infinity", "inf", "+infinity":
			*f = Float(math.Inf(1))
		case "-infinity", "-inf":
			*f = Float(math.Inf(-1))
		default:
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return err
			}
			*f = Float(v)
		}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*f = Float(v)
	return nil
}
