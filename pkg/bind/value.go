package bind

import (
	"fmt"
	"math"
	"time"

	"github.com/leapstack-labs/retailsql/pkg/core"
	"github.com/shopspring/decimal"
)

// Scalar checks that v is a bindable scalar and returns it in the form the
// drivers expect: integers widen to int64, float32 widens to float64.
// Accepted: nil, string, bool, every integer kind, float32/float64,
// time.Time and decimal.Decimal.
func Scalar(name string, v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string, bool, time.Time, float64, int64:
		return x, nil
	case decimal.Decimal:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint:
		return widenUint(name, uint64(x))
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return widenUint(name, x)
	case float32:
		return float64(x), nil
	default:
		return nil, &core.UnsupportedParameterTypeError{Name: name, Type: fmt.Sprintf("%T", v)}
	}
}

func widenUint(name string, x uint64) (any, error) {
	if x > math.MaxInt64 {
		return nil, &core.UnsupportedParameterTypeError{Name: name, Type: "uint64 beyond int64 range"}
	}
	return int64(x), nil
}
