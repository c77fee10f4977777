package push

import "pushflow/models"

// Callbacks are invoked on the connection's read goroutine. They must return
// quickly: a slow callback stalls frame delivery and heart-beat processing.
// Unset callbacks are skipped, and frames for them are not decoded.
//
// OnConnect is the exception: it runs on the goroutine that established the
// session, after the session lock is released, so it may call Disconnect.
type Callbacks struct {
	OnConnect    func()
	OnDisconnect func()

	// OnSubscribe and OnUnsubscribe receive the acknowledged destination and
	// the broker's reply.
	OnSubscribe   func(destination string, body map[string]interface{})
	OnUnsubscribe func(destination string, body map[string]interface{})

	// OnError receives the body of an error message or ERROR frame.
	OnError func(body string)

	OnQuoteChanged      func(ev models.QuoteEvent)
	OnAssetChanged      func(ev models.AccountEvent)
	OnPositionChanged   func(ev models.AccountEvent)
	OnOrderChanged      func(ev models.AccountEvent)
	OnSubscribedSymbols func(s models.SubscribedSymbols)
}
