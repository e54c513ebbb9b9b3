package query

import (
	"bytes"
	"math"
	"strconv"
)

// Growth is a period-over-period ratio current/previous. When the previous
// value is zero the ratio is non-finite: +Inf for growth from nothing, NaN
// when both periods are empty. Consumers treat non-finite growth as "no
// comparison available"; it encodes as JSON null.
type Growth float64

// Ratio computes current/previous rounded to two decimals.
func Ratio(current, previous float64) Growth {
	if previous == 0 {
		if current == 0 {
			return Growth(math.NaN())
		}
		return Growth(math.Inf(int(math.Copysign(1, current))))
	}
	return Growth(math.Round(current/previous*100) / 100)
}

// Finite reports whether a comparison is available.
func (g Growth) Finite() bool {
	f := float64(g)
	return !math.IsInf(f, 0) && !math.IsNaN(f)
}

func (g Growth) MarshalJSON() ([]byte, error) {
	if !g.Finite() {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, float64(g), 'f', -1, 64), nil
}

func (g *Growth) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*g = Growth(math.NaN())
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*g = Growth(f)
	return nil
}
