package models

import "time"

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// GENERAL ///////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// Field is one canonical key/value pair of a normalized event.
type Field struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// Fields keeps the order in which the broker sent the values.
type Fields []Field

// Get returns the first value stored under key.
func (f Fields) Get(key string) (interface{}, bool) {
	for _, field := range f {
		if field.Key == key {
			return field.Value, true
		}
	}
	return nil, false
}

// Keys lists the canonical keys in order.
func (f Fields) Keys() []string {
	keys := make([]string, len(f))
	for i, field := range f {
		keys[i] = field.Key
	}
	return keys
}

/////////////////////////////////////////////////////////////////////////////
////////////////////////////////// QUOTE ////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// QuoteEvent is a normalized quote tick for one symbol.
type QuoteEvent struct {
	Symbol      string `json:"symbol"`
	Fields      Fields `json:"fields"`
	HourTrading bool   `json:"hour_trading"`
}

// SubscribedSymbols is the broker's answer to a subscribed-quote query.
type SubscribedSymbols struct {
	Symbols   []string            `json:"symbols"`
	FocusKeys map[string][]string `json:"focus_keys"`
	Limit     int                 `json:"limit"`
	Used      int                 `json:"used"`
}

/////////////////////////////////////////////////////////////////////////////
////////////////////////////////// TRADE ////////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// AccountEvent is a normalized asset, position or order update.
type AccountEvent struct {
	Account string `json:"account"`
	Fields  Fields `json:"fields"`
}

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// ENVELOPE //////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// Event categories carried by Event.Category.
const (
	CategoryQuote     = "quote"
	CategoryAsset     = "asset"
	CategoryPosition  = "position"
	CategoryOrder     = "order"
	CategorySnapshot  = "subscribed_symbols"
	CategorySubscribe = "subscribe"
	CategoryError     = "error"
)

// Event wraps a normalized push event for forwarding to writers.
type Event struct {
	SessionID   string             `json:"session_id"`
	Category    string             `json:"category"`
	Subject     string             `json:"subject"`
	Fields      Fields             `json:"fields,omitempty"`
	HourTrading bool               `json:"hour_trading,omitempty"`
	Snapshot    *SubscribedSymbols `json:"snapshot,omitempty"`
	ReceivedAt  time.Time          `json:"received_at"`
}
