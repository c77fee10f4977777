package decoder

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// minute summary sub-fields holding prices
var minutePriceKeys = []string{"p", "h", "l"}

func toDecimal(v interface{}) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case int64:
		return decimal.NewFromInt(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case float64:
		return decimal.NewFromFloat(n), true
	default:
		return decimal.Decimal{}, false
	}
}

// rescale divides a numeric value by 10^offset. Non-numeric values are
// returned untouched.
func rescale(v interface{}, offset int) interface{} {
	d, ok := toDecimal(v)
	if !ok {
		return v
	}
	return d.Shift(int32(-offset)).InexactFloat64()
}

func rescaleMinute(v interface{}, offset int) interface{} {
	summary, ok := v.(map[string]interface{})
	if !ok {
		return v
	}
	out := make(map[string]interface{}, len(summary))
	for k, inner := range summary {
		out[k] = inner
	}
	for _, k := range minutePriceKeys {
		if inner, ok := out[k]; ok {
			out[k] = rescale(inner, offset)
		}
	}
	return out
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int64:
		return int(n), true
	case int:
		return n, true
	case float64:
		if n == float64(int64(n)) {
			return int(n), true
		}
	case string:
		if i, err := strconv.Atoi(n); err == nil {
			return i, true
		}
	}
	return 0, false
}

// truthy mirrors the loose truthiness the broker relies on for optional
// numeric fields: zero, empty and null are false.
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case int64:
		return t != 0
	case int:
		return t != 0
	case float64:
		return t != 0
	case string:
		return t != ""
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	default:
		return true
	}
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}
