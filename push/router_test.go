package push

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pushflow/models"
)

func message(rt ResponseType, extra ...string) map[string]string {
	h := map[string]string{headerResponseType: strconv.Itoa(int(rt))}
	for i := 0; i+1 < len(extra); i += 2 {
		h[extra[i]] = extra[i+1]
	}
	return h
}

func TestRouterQuoteChange(t *testing.T) {
	r := newRouter(nil)
	var got []models.QuoteEvent
	r.SetCallbacks(Callbacks{OnQuoteChanged: func(ev models.QuoteEvent) { got = append(got, ev) }})

	r.OnMessage(message(ResponseQuoteChange), []byte(`{"symbol":"AAPL","askPrice":1500,"offset":0}`))

	require.Len(t, got, 1)
	assert.Equal(t, models.QuoteEvent{
		Symbol: "AAPL",
		Fields: models.Fields{{Key: "ask_price", Value: int64(1500)}},
	}, got[0])
}

func TestRouterFuturesQuoteRescaled(t *testing.T) {
	r := newRouter(nil)
	var got models.QuoteEvent
	r.SetCallbacks(Callbacks{OnQuoteChanged: func(ev models.QuoteEvent) { got = ev }})

	r.OnMessage(message(ResponseQuoteChange), []byte(`{"symbol":"CLQ4","latestPrice":123450,"offset":2,"hourTradingLatestPrice":5}`))

	assert.Equal(t, "CLQ4", got.Symbol)
	assert.True(t, got.HourTrading)
	v, ok := got.Fields.Get("latest_price")
	require.True(t, ok)
	assert.InDelta(t, 1234.50, v, 1e-9)
}

func TestRouterOrderPartiallyFilled(t *testing.T) {
	r := newRouter(nil)
	var got models.AccountEvent
	r.SetCallbacks(Callbacks{OnOrderChanged: func(ev models.AccountEvent) { got = ev }})

	r.OnMessage(message(ResponseOrderChange), []byte(`{"account":"U123","status":"Submitted","filledQuantity":10}`))

	assert.Equal(t, "U123", got.Account)
	status, ok := got.Fields.Get("status")
	require.True(t, ok)
	assert.Equal(t, models.OrderStatusPartiallyFilled, status)
}

func TestRouterAssetAndPosition(t *testing.T) {
	r := newRouter(nil)
	var assets, positions []models.AccountEvent
	r.SetCallbacks(Callbacks{
		OnAssetChanged:    func(ev models.AccountEvent) { assets = append(assets, ev) },
		OnPositionChanged: func(ev models.AccountEvent) { positions = append(positions, ev) },
	})

	r.OnMessage(message(ResponseAssetChange), []byte(`{"account":"U1","cashBalance":1000.5,"unknownKey":1}`))
	r.OnMessage(message(ResponsePositionChange), []byte(`{"account":"U1","symbol":"AAPL","position":10}`))
	r.OnMessage(message(ResponsePositionChange), []byte(`{"symbol":"AAPL","position":10}`))

	require.Len(t, assets, 1)
	assert.Equal(t, []string{"cash"}, assets[0].Fields.Keys())
	require.Len(t, positions, 1)
	assert.Equal(t, []string{"symbol", "quantity"}, positions[0].Fields.Keys())
}

func TestRouterSurvivesMalformedFrame(t *testing.T) {
	r := newRouter(nil)
	var got []string
	r.SetCallbacks(Callbacks{OnQuoteChanged: func(ev models.QuoteEvent) { got = append(got, ev.Symbol) }})

	assert.NotPanics(t, func() {
		r.OnMessage(message(ResponseQuoteChange), []byte(`{"symbol":`))
		r.OnMessage(message(ResponseQuoteChange), []byte(`not json`))
	})
	r.OnMessage(message(ResponseQuoteChange), []byte(`{"symbol":"TSLA","bidPrice":20}`))

	assert.Equal(t, []string{"TSLA"}, got)
}

func TestRouterRecoversCallbackPanic(t *testing.T) {
	r := newRouter(nil)
	calls := 0
	r.SetCallbacks(Callbacks{OnQuoteChanged: func(ev models.QuoteEvent) {
		calls++
		if calls == 1 {
			panic("boom")
		}
	}})

	body := []byte(`{"symbol":"AAPL","askPrice":1}`)
	assert.NotPanics(t, func() { r.OnMessage(message(ResponseQuoteChange), body) })
	r.OnMessage(message(ResponseQuoteChange), body)
	assert.Equal(t, 2, calls)
}

func TestRouterIgnoresUnknownResponseType(t *testing.T) {
	r := newRouter(nil)
	called := false
	cb := func(models.QuoteEvent) { called = true }
	r.SetCallbacks(Callbacks{OnQuoteChanged: cb, OnError: func(string) { called = true }})

	r.OnMessage(map[string]string{headerResponseType: "99"}, []byte(`{"symbol":"AAPL","askPrice":1}`))
	r.OnMessage(map[string]string{}, []byte(`{"symbol":"AAPL","askPrice":1}`))
	r.OnMessage(map[string]string{headerResponseType: "quote"}, []byte(`{}`))

	assert.False(t, called)
}

func TestRouterSubscribedSymbols(t *testing.T) {
	r := newRouter(nil)
	var got models.SubscribedSymbols
	r.SetCallbacks(Callbacks{OnSubscribedSymbols: func(s models.SubscribedSymbols) { got = s }})

	body := `{"limit":100,"used":2,"subscribedSymbols":["AAPL","TSLA"],` +
		`"symbolFocusKeys":{"AAPL":["askPrice","askPrice","bidPrice","customKey"]}}`
	r.OnMessage(message(ResponseSubscribedSymbols), []byte(body))

	assert.Equal(t, 100, got.Limit)
	assert.Equal(t, 2, got.Used)
	assert.Equal(t, []string{"AAPL", "TSLA"}, got.Symbols)
	assert.Equal(t, []string{"ask_price", "bid_price", "customKey"}, got.FocusKeys["AAPL"])
}

func TestRouterAcknowledgements(t *testing.T) {
	r := newRouter(nil)
	var subDest, unsubDest string
	var subBody map[string]interface{}
	r.SetCallbacks(Callbacks{
		OnSubscribe: func(destination string, body map[string]interface{}) {
			subDest, subBody = destination, body
		},
		OnUnsubscribe: func(destination string, body map[string]interface{}) {
			unsubDest = destination
		},
	})

	r.OnMessage(message(ResponseSubscribeAck, headerDestination, DestinationQuote), []byte(`{"code":0,"message":"success"}`))
	r.OnMessage(message(ResponseUnsubscribeAck, headerDestination, DestinationOrder), []byte(`{"code":0}`))

	assert.Equal(t, DestinationQuote, subDest)
	assert.Equal(t, int64(0), subBody["code"])
	assert.Equal(t, "success", subBody["message"])
	assert.Equal(t, DestinationOrder, unsubDest)
}

func TestRouterAcknowledgementWithoutObjectBody(t *testing.T) {
	r := newRouter(nil)
	var bodies []map[string]interface{}
	r.SetCallbacks(Callbacks{
		OnSubscribe: func(destination string, body map[string]interface{}) {
			bodies = append(bodies, body)
		},
	})

	r.OnMessage(message(ResponseSubscribeAck, headerDestination, DestinationQuote), []byte(`"success"`))
	r.OnMessage(message(ResponseSubscribeAck, headerDestination, DestinationQuote), []byte(`["AAPL",2]`))
	r.OnMessage(message(ResponseSubscribeAck, headerDestination, DestinationQuote), []byte(`{"code":`))

	require.Len(t, bodies, 2)
	assert.Equal(t, map[string]interface{}{"value": "success"}, bodies[0])
	assert.Equal(t, map[string]interface{}{"value": []interface{}{"AAPL", int64(2)}}, bodies[1])
}

func TestRouterErrors(t *testing.T) {
	r := newRouter(nil)
	var bodies []string
	r.SetCallbacks(Callbacks{OnError: func(body string) { bodies = append(bodies, body) }})

	r.OnMessage(message(ResponseError), []byte("subscription limit exceeded"))
	r.OnError(map[string]string{"message": "bad frame"}, []byte("unknown destination"))

	assert.Equal(t, []string{"subscription limit exceeded", "unknown destination"}, bodies)

	r.SetCallbacks(Callbacks{})
	assert.NotPanics(t, func() {
		r.OnMessage(message(ResponseError), []byte("no handler"))
		r.OnError(nil, []byte("no handler"))
	})
}

type recordingHooks struct {
	up, down int
}

func (h *recordingHooks) connected()    { h.up++ }
func (h *recordingHooks) disconnected() { h.down++ }

func TestRouterForwardsConnectionEvents(t *testing.T) {
	hooks := &recordingHooks{}
	r := newRouter(hooks)

	r.OnConnected(map[string]string{"version": "1.2"}, nil)
	r.OnDisconnected()
	r.OnConnected(nil, nil)

	assert.Equal(t, 2, hooks.up)
	assert.Equal(t, 1, hooks.down)
}

func TestParseResponseType(t *testing.T) {
	rt, ok := ParseResponseType("8")
	assert.True(t, ok)
	assert.Equal(t, ResponseOrderChange, rt)
	assert.Equal(t, "order_change", rt.String())

	_, ok = ParseResponseType("1")
	assert.False(t, ok)
	_, ok = ParseResponseType("")
	assert.False(t, ok)
}
