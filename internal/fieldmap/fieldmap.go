// Package fieldmap translates the broker's camelCase wire keys into the
// canonical snake_case field names exposed on events.
package fieldmap

// Category selects the table used for a lookup.
type Category int

const (
	Quote Category = iota
	Asset
	Position
	Order
)

func (c Category) String() string {
	switch c {
	case Quote:
		return "quote"
	case Asset:
		return "asset"
	case Position:
		return "position"
	case Order:
		return "order"
	default:
		return "unknown"
	}
}

// Wire keys the decoder inspects directly.
const (
	WireSymbol                 = "symbol"
	WireAccount                = "account"
	WireOffset                 = "offset"
	WireLatestTime             = "latestTime"
	WireHourTradingLatestPrice = "hourTradingLatestPrice"
	WireHourTradingLatestTime  = "hourTradingLatestTime"
	WireFilledQuantity         = "filledQuantity"
)

// Canonical keys with special handling.
const (
	Minute = "minute"
	Status = "status"
)

var quoteKeys = map[string]string{
	"latestPrice":  "latest_price",
	"preClose":     "prev_close",
	"latestTime":   "latest_time",
	"volume":       "volume",
	"amount":       "amount",
	"open":         "open",
	"high":         "high",
	"low":          "low",
	"close":        "close",
	"askPrice":     "ask_price",
	"askSize":      "ask_size",
	"bidPrice":     "bid_price",
	"bidSize":      "bid_size",
	"mi":           Minute,
	"minute":       Minute,
	"timestamp":    "timestamp",
	"openInterest": "open_interest",
	"settlement":   "settlement",
	"status":       "status",
}

// extended-hours keys share the quote table. hourTradingPreClose lands on
// prev_close like preClose, so offset rescaling applies to it.
var hourTradingKeys = map[string]string{
	WireHourTradingLatestPrice: "latest_price",
	"hourTradingPreClose":      "prev_close",
	WireHourTradingLatestTime:  "latest_time",
	"hourTradingVolume":        "volume",
}

var assetKeys = map[string]string{
	"buyingPower":        "buying_power",
	"cashBalance":        "cash",
	"grossPositionValue": "gross_position_value",
	"netLiquidation":     "net_liquidation",
	"equityWithLoan":     "equity_with_loan",
	"initMarginReq":      "initial_margin_requirement",
	"maintMarginReq":     "maintenance_margin_requirement",
	"availableFunds":     "available_funds",
	"excessLiquidity":    "excess_liquidity",
	"dayTradesRemaining": "day_trades_remaining",
	"currency":           "currency",
	"segment":            "segment",
}

var positionKeys = map[string]string{
	"averageCost":   "average_cost",
	"position":      "quantity",
	"latestPrice":   "market_price",
	"marketValue":   "market_value",
	"orderType":     "order_type",
	"realizedPnl":   "realized_pnl",
	"unrealizedPnl": "unrealized_pnl",
	"secType":       "sec_type",
	"localSymbol":   "local_symbol",
	"originSymbol":  "origin_symbol",
	"contractId":    "contract_id",
	"symbol":        "symbol",
	"currency":      "currency",
	"strike":        "strike",
	"expiry":        "expiry",
	"right":         "right",
	"segment":       "segment",
	"identifier":    "identifier",
}

var orderKeys = map[string]string{
	"parentId":        "parent_id",
	"orderId":         "order_id",
	"orderType":       "order_type",
	"limitPrice":      "limit_price",
	"auxPrice":        "aux_price",
	"avgFillPrice":    "avg_fill_price",
	"totalQuantity":   "quantity",
	"filledQuantity":  "filled",
	"lastFillPrice":   "last_fill_price",
	"realizedPnl":     "realized_pnl",
	"secType":         "sec_type",
	"symbol":          "symbol",
	"remark":          "reason",
	"localSymbol":     "local_symbol",
	"originSymbol":    "origin_symbol",
	"outsideRth":      "outside_rth",
	"timeInForce":     "time_in_force",
	"openTime":        "order_time",
	"latestTime":      "trade_time",
	"contractId":      "contract_id",
	"trailStopPrice":  "trail_stop_price",
	"trailingPercent": "trailing_percent",
	"percentOffset":   "percent_offset",
	"action":          "action",
	"status":          Status,
	"currency":        "currency",
	"remaining":       "remaining",
	"id":              "id",
	"segment":         "segment",
	"identifier":      "identifier",
	"replaceStatus":   "replace_status",
}

var tables = map[Category]map[string]string{
	Quote:    merge(quoteKeys, hourTradingKeys),
	Asset:    assetKeys,
	Position: positionKeys,
	Order:    orderKeys,
}

var priceFields = map[string]struct{}{
	"open":         {},
	"high":         {},
	"low":          {},
	"close":        {},
	"prev_close":   {},
	"ask_price":    {},
	"bid_price":    {},
	"latest_price": {},
}

func merge(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// Translate returns the canonical key for wireKey in category c.
func Translate(c Category, wireKey string) (string, bool) {
	canonical, ok := tables[c][wireKey]
	return canonical, ok
}

// TranslateOrKeep is Translate that hands back unknown keys unchanged.
func TranslateOrKeep(c Category, wireKey string) string {
	if canonical, ok := Translate(c, wireKey); ok {
		return canonical
	}
	return wireKey
}

// IsPriceField reports whether a canonical quote field is offset-scaled.
func IsPriceField(canonical string) bool {
	_, ok := priceFields[canonical]
	return ok
}

// IsTimestampKey reports whether a quote wire key carries a raw timestamp.
func IsTimestampKey(wireKey string) bool {
	return wireKey == WireLatestTime || wireKey == WireHourTradingLatestTime
}

// CanonicalKeys returns every canonical key a category can emit.
func CanonicalKeys(c Category) map[string]struct{} {
	out := make(map[string]struct{})
	for _, v := range tables[c] {
		out[v] = struct{}{}
	}
	return out
}
