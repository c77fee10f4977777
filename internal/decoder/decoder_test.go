package decoder

import (
	"errors"
	"reflect"
	"testing"

	"pushflow/internal/fieldmap"
	"pushflow/models"
)

func mustParse(t *testing.T, body string) *Payload {
	t.Helper()
	p, err := Parse([]byte(body))
	if err != nil {
		t.Fatalf("parse %s: %v", body, err)
	}
	return p
}

func TestParseRejectsMalformedBodies(t *testing.T) {
	for _, body := range []string{"", "not json", "[1,2]", `{"symbol":`, `"AAPL"`} {
		_, err := Parse([]byte(body))
		var decodeErr *DecodeError
		if !errors.As(err, &decodeErr) {
			t.Errorf("Parse(%q) error = %v, want DecodeError", body, err)
		}
	}
}

func TestParseValue(t *testing.T) {
	cases := []struct {
		body string
		want interface{}
	}{
		{`"success"`, "success"},
		{` 7 `, int64(7)},
		{`[1.5,"x"]`, []interface{}{1.5, "x"}},
		{`{"code":0}`, map[string]interface{}{"code": int64(0)}},
		{`null`, nil},
	}
	for _, c := range cases {
		got, err := ParseValue([]byte(c.body))
		if err != nil {
			t.Errorf("ParseValue(%q): %v", c.body, err)
			continue
		}
		if !reflect.DeepEqual(got, c.want) {
			t.Errorf("ParseValue(%q) = %#v, want %#v", c.body, got, c.want)
		}
	}

	for _, body := range []string{"", "{", `1 2`} {
		var decodeErr *DecodeError
		if _, err := ParseValue([]byte(body)); !errors.As(err, &decodeErr) {
			t.Errorf("ParseValue(%q) error = %v, want DecodeError", body, err)
		}
	}
}

func TestParsePreservesKeyOrderAndNumbers(t *testing.T) {
	p := mustParse(t, `{"b":1,"a":2.5,"c":"x","b":3}`)
	if got := p.Keys(); !reflect.DeepEqual(got, []string{"b", "a", "c"}) {
		t.Fatalf("unexpected key order: %v", got)
	}
	if v, _ := p.Get("b"); v != int64(3) {
		t.Fatalf("duplicate key should keep last value, got %v", v)
	}
	if v, _ := p.Get("a"); v != 2.5 {
		t.Fatalf("unexpected float: %v", v)
	}
}

func TestQuoteWithoutOffset(t *testing.T) {
	ev, ok := Quote(mustParse(t, `{"symbol":"AAPL","askPrice":1500,"offset":0}`))
	if !ok {
		t.Fatalf("expected event")
	}
	want := models.QuoteEvent{Symbol: "AAPL", Fields: models.Fields{{Key: "ask_price", Value: int64(1500)}}}
	if !reflect.DeepEqual(ev, want) {
		t.Fatalf("got %+v, want %+v", ev, want)
	}
}

func TestQuoteFuturesOffset(t *testing.T) {
	ev, ok := Quote(mustParse(t, `{"symbol":"CLQ4","latestPrice":123450,"offset":2,"hourTradingLatestPrice":5,"volume":300}`))
	if !ok {
		t.Fatalf("expected event")
	}
	if !ev.HourTrading {
		t.Fatalf("expected hour trading flag")
	}
	want := models.Fields{
		{Key: "latest_price", Value: 1234.5},
		{Key: "latest_price", Value: 0.05},
		{Key: "volume", Value: int64(300)},
	}
	if !reflect.DeepEqual(ev.Fields, want) {
		t.Fatalf("got %+v, want %+v", ev.Fields, want)
	}
}

func TestQuoteHourTradingPreCloseRescaled(t *testing.T) {
	ev, ok := Quote(mustParse(t, `{"symbol":"ES","hourTradingPreClose":45005,"offset":1}`))
	if !ok {
		t.Fatalf("expected event")
	}
	want := models.Fields{{Key: "prev_close", Value: 4500.5}}
	if ev.HourTrading || !reflect.DeepEqual(ev.Fields, want) {
		t.Fatalf("got %+v (hour trading %v), want %+v", ev.Fields, ev.HourTrading, want)
	}
}

func TestQuoteRescalesMinuteSummary(t *testing.T) {
	ev, ok := Quote(mustParse(t, `{"symbol":"CL","offset":1,"mi":{"p":100,"h":110,"l":90,"v":7}}`))
	if !ok {
		t.Fatalf("expected event")
	}
	minute, _ := ev.Fields.Get("minute")
	want := map[string]interface{}{"p": 10.0, "h": 11.0, "l": 9.0, "v": int64(7)}
	if !reflect.DeepEqual(minute, want) {
		t.Fatalf("got %v, want %v", minute, want)
	}
}

func TestQuoteNoEvent(t *testing.T) {
	cases := map[string]string{
		"missing symbol":    `{"askPrice":1500}`,
		"only timestamps":   `{"symbol":"AAPL","latestTime":1700000000,"hourTradingLatestTime":1700000001}`,
		"only unknown":      `{"symbol":"AAPL","foo":1}`,
		"symbol and offset": `{"symbol":"AAPL","offset":2}`,
	}
	for name, body := range cases {
		if ev, ok := Quote(mustParse(t, body)); ok {
			t.Errorf("%s: unexpected event %+v", name, ev)
		}
	}
}

func TestQuoteNegativeOffsetMultiplies(t *testing.T) {
	ev, ok := Quote(mustParse(t, `{"symbol":"X","close":12,"offset":-1}`))
	if !ok {
		t.Fatalf("expected event")
	}
	if v, _ := ev.Fields.Get("close"); v != 120.0 {
		t.Fatalf("unexpected close: %v", v)
	}
}

func TestEventsOnlyCarryCanonicalKeys(t *testing.T) {
	body := `{"symbol":"AAPL","account":"U1","askPrice":1,"cashBalance":2,"position":3,"status":"Filled","weird":4,"camelCase":5}`
	p := mustParse(t, body)

	check := func(c fieldmap.Category, fields models.Fields) {
		canon := fieldmap.CanonicalKeys(c)
		for _, f := range fields {
			if _, ok := canon[f.Key]; !ok {
				t.Errorf("%s emitted non-canonical key %s", c, f.Key)
			}
		}
	}
	if ev, ok := Quote(p); ok {
		check(fieldmap.Quote, ev.Fields)
	}
	if ev, ok := Asset(p); ok {
		check(fieldmap.Asset, ev.Fields)
	}
	if ev, ok := Position(p); ok {
		check(fieldmap.Position, ev.Fields)
	}
	if ev, ok := Order(p); ok {
		check(fieldmap.Order, ev.Fields)
	}
}

func TestAsset(t *testing.T) {
	ev, ok := Asset(mustParse(t, `{"account":"U123","cashBalance":100.5,"netLiquidation":2000,"foo":"bar"}`))
	if !ok {
		t.Fatalf("expected event")
	}
	want := models.AccountEvent{Account: "U123", Fields: models.Fields{
		{Key: "cash", Value: 100.5},
		{Key: "net_liquidation", Value: int64(2000)},
	}}
	if !reflect.DeepEqual(ev, want) {
		t.Fatalf("got %+v, want %+v", ev, want)
	}

	if _, ok := Asset(mustParse(t, `{"cashBalance":1}`)); ok {
		t.Fatalf("missing account must not produce an event")
	}
	if _, ok := Asset(mustParse(t, `{"account":"U1","foo":1}`)); ok {
		t.Fatalf("unknown keys only must not produce an event")
	}
}

func TestPosition(t *testing.T) {
	ev, ok := Position(mustParse(t, `{"account":"U123","symbol":"AAPL","position":10,"averageCost":150.25,"latestPrice":155}`))
	if !ok {
		t.Fatalf("expected event")
	}
	want := models.Fields{
		{Key: "symbol", Value: "AAPL"},
		{Key: "quantity", Value: int64(10)},
		{Key: "average_cost", Value: 150.25},
		{Key: "market_price", Value: int64(155)},
	}
	if !reflect.DeepEqual(ev.Fields, want) {
		t.Fatalf("got %+v, want %+v", ev.Fields, want)
	}
}

func TestOrderStatusRefinement(t *testing.T) {
	cases := []struct {
		name string
		body string
		want models.OrderStatus
	}{
		{"held with fill", `{"account":"U123","status":"Submitted","filledQuantity":10}`, models.OrderStatusPartiallyFilled},
		{"held without fill", `{"account":"U123","status":"Submitted","filledQuantity":0}`, models.OrderStatusHeld},
		{"held missing fill", `{"account":"U123","status":"Submitted"}`, models.OrderStatusHeld},
		{"numeric held with fill", `{"account":"U123","status":3,"filledQuantity":"5"}`, models.OrderStatusPartiallyFilled},
		{"filled stays filled", `{"account":"U123","status":"Filled","filledQuantity":10}`, models.OrderStatusFilled},
		{"cancelled", `{"account":"U123","status":"Cancelled"}`, models.OrderStatusCancelled},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ev, ok := Order(mustParse(t, c.body))
			if !ok {
				t.Fatalf("expected event")
			}
			got, _ := ev.Fields.Get("status")
			if got != c.want {
				t.Fatalf("status = %v, want %v", got, c.want)
			}
		})
	}
}

func TestOrderFieldMapping(t *testing.T) {
	ev, ok := Order(mustParse(t, `{"account":"U123","orderId":42,"totalQuantity":100,"filledQuantity":0,"remark":"ok","latestTime":1700000000}`))
	if !ok {
		t.Fatalf("expected event")
	}
	if got := ev.Fields.Keys(); !reflect.DeepEqual(got, []string{"order_id", "quantity", "filled", "reason", "trade_time"}) {
		t.Fatalf("unexpected keys: %v", got)
	}
}

func TestSubscribedSymbols(t *testing.T) {
	p := mustParse(t, `{"limit":100,"used":2,"subscribedSymbols":["AAPL","TSLA"],
		"symbolFocusKeys":{"AAPL":["askPrice","askPrice","hourTradingLatestPrice","latestPrice","weird"],"TSLA":[]}}`)

	got := SubscribedSymbols(p)
	want := models.SubscribedSymbols{
		Symbols: []string{"AAPL", "TSLA"},
		FocusKeys: map[string][]string{
			"AAPL": {"ask_price", "latest_price", "weird"},
			"TSLA": {},
		},
		Limit: 100,
		Used:  2,
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}
