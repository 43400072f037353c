package triple

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a sealed interface representing a triplet value.
// Only String and Number implement it.
//
// The variant decides how a value is rendered into query text: String is
// always single-quoted, Number is always bare. Runtime inspection of the
// underlying Go type never decides formatting.
type Value interface {
	tripleValue() // Sealed - only these types implement it

	// Literal renders the value as a query-language literal.
	Literal() string

	// Param returns the Go value bound for a query placeholder.
	Param() any
}

// String is a textual triplet value.
type String string

func (String) tripleValue() {}

// Literal returns the value single-quoted, with embedded quotes doubled.
func (s String) Literal() string {
	return "'" + strings.ReplaceAll(string(s), "'", "''") + "'"
}

// Param returns the value as a Go string so the driver binds it as TEXT.
func (s String) Param() any {
	return string(s)
}

// Number is a numeric triplet value.
type Number float64

func (Number) tripleValue() {}

// Literal returns the shortest decimal form without quotes.
// Integral values have no fractional part: Number(35) renders as "35".
func (n Number) Literal() string {
	return strconv.FormatFloat(float64(n), 'f', -1, 64)
}

// Param returns int64 for integral values within range and float64
// otherwise, so integer columns compare as integers. math.MaxInt64 rounds
// up to 2^63 as a float64, so the upper bound is exclusive.
func (n Number) Param() any {
	f := float64(n)
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return int64(f)
	}
	return f
}

// NewString creates a String value.
func NewString(s string) String {
	return String(s)
}

// NewNumber creates a Number value.
func NewNumber(f float64) Number {
	return Number(f)
}

// FromDriver converts a value scanned from a database row into a Value.
// Integer and float columns become Number; everything else becomes String.
// NULL becomes the empty String.
func FromDriver(v any) Value {
	switch val := v.(type) {
	case nil:
		return String("")
	case int64:
		return Number(val)
	case int:
		return Number(val)
	case int32:
		return Number(val)
	case float64:
		return Number(val)
	case float32:
		return Number(val)
	case bool:
		if val {
			return Number(1)
		}
		return Number(0)
	case []byte:
		return String(string(val))
	case string:
		return String(val)
	default:
		return String(fmt.Sprint(val))
	}
}
