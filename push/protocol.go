// Package push is the client side of the push broker: it owns the STOMP
// session, hands out subscription ids and routes inbound frames to typed
// callbacks.
package push

import "strconv"

// Broker destinations.
const (
	DestinationQuote      = "quote"
	DestinationQuoteDepth = "quotedepth"
	DestinationOption     = "option"
	DestinationFuture     = "future"
	DestinationAsset      = "trade/asset"
	DestinationPosition   = "trade/position"
	DestinationOrder      = "trade/order"
)

// Human readable subscription names sent in the "subscription" header.
const (
	subscriptionQuote      = "Quote"
	subscriptionQuoteDepth = "QuoteDepth"
	subscriptionOption     = "Option"
	subscriptionFuture     = "Future"
	subscriptionAsset      = "Asset"
	subscriptionPosition   = "Position"
	subscriptionOrder      = "OrderStatus"
)

const (
	headerResponseType = "ret-type"
	headerRequestType  = "req-type"
	headerSDKVersion   = "sdk-version"
	headerDestination  = "destination"
	headerSubscription = "subscription"
	headerID           = "id"
	headerSymbols      = "symbols"
	headerKeys         = "keys"
	headerAccount      = "account"
)

// requestSubscribedSymbols asks the broker for the current quote subscriptions.
const requestSubscribedSymbols = 3

// ResponseType is the discriminator carried by every MESSAGE frame.
type ResponseType int

const (
	ResponseSubscribedSymbols ResponseType = 2
	ResponseSubscribeAck      ResponseType = 3
	ResponseUnsubscribeAck    ResponseType = 4
	ResponseQuoteChange       ResponseType = 5
	ResponseAssetChange       ResponseType = 6
	ResponsePositionChange    ResponseType = 7
	ResponseOrderChange       ResponseType = 8
	ResponseError             ResponseType = 9
)

func (r ResponseType) String() string {
	switch r {
	case ResponseSubscribedSymbols:
		return "subscribed_symbols"
	case ResponseSubscribeAck:
		return "subscribe_ack"
	case ResponseUnsubscribeAck:
		return "unsubscribe_ack"
	case ResponseQuoteChange:
		return "quote_change"
	case ResponseAssetChange:
		return "asset_change"
	case ResponsePositionChange:
		return "position_change"
	case ResponseOrderChange:
		return "order_change"
	case ResponseError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseResponseType reads a ret-type header value.
func ParseResponseType(v string) (ResponseType, bool) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	r := ResponseType(n)
	if r.String() == "unknown" {
		return r, false
	}
	return r, true
}

// KeyType selects a named set of quote fields.
type KeyType string

const (
	KeyTypeTrade    KeyType = "trade"
	KeyTypeQuote    KeyType = "quote"
	KeyTypeTimeline KeyType = "timeline"
	KeyTypeAll      KeyType = "all"
)
