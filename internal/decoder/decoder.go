// Package decoder turns push frame bodies into normalized events. All
// functions are pure; a false second return means the frame produced no event.
package decoder

import (
	"pushflow/internal/fieldmap"
	"pushflow/models"
)

// Quote decodes a quote change. Price fields are divided by 10^offset when
// the payload carries a non-zero offset.
func Quote(p *Payload) (models.QuoteEvent, bool) {
	_, hourTrading := p.Get(fieldmap.WireHourTradingLatestPrice)

	rawSymbol, ok := p.Get(fieldmap.WireSymbol)
	if !ok {
		return models.QuoteEvent{}, false
	}

	offset := 0
	if v, ok := p.Get(fieldmap.WireOffset); ok {
		offset, _ = toInt(v)
	}

	var fields models.Fields
	for _, key := range p.Keys() {
		if fieldmap.IsTimestampKey(key) {
			continue
		}
		canonical, ok := fieldmap.Translate(fieldmap.Quote, key)
		if !ok {
			continue
		}
		value, _ := p.Get(key)
		if offset != 0 {
			switch {
			case fieldmap.IsPriceField(canonical):
				value = rescale(value, offset)
			case canonical == fieldmap.Minute:
				value = rescaleMinute(value, offset)
			}
		}
		fields = append(fields, models.Field{Key: canonical, Value: value})
	}

	if len(fields) == 0 {
		return models.QuoteEvent{}, false
	}
	return models.QuoteEvent{
		Symbol:      toString(rawSymbol),
		Fields:      fields,
		HourTrading: hourTrading,
	}, true
}

// Asset decodes an account asset update.
func Asset(p *Payload) (models.AccountEvent, bool) {
	return account(p, fieldmap.Asset)
}

// Position decodes a position update.
func Position(p *Payload) (models.AccountEvent, bool) {
	return account(p, fieldmap.Position)
}

// Order decodes an order status update. The status is normalized and a held
// order with a filled quantity is reported as partially filled.
func Order(p *Payload) (models.AccountEvent, bool) {
	ev, ok := account(p, fieldmap.Order)
	if !ok {
		return ev, false
	}
	for i, f := range ev.Fields {
		if f.Key != fieldmap.Status {
			continue
		}
		status := models.OrderStatusFromCode(f.Value)
		if status == models.OrderStatusHeld {
			if filled, ok := p.Get(fieldmap.WireFilledQuantity); ok && truthy(filled) {
				status = models.OrderStatusPartiallyFilled
			}
		}
		ev.Fields[i].Value = status
	}
	return ev, true
}

func account(p *Payload, c fieldmap.Category) (models.AccountEvent, bool) {
	rawAccount, ok := p.Get(fieldmap.WireAccount)
	if !ok {
		return models.AccountEvent{}, false
	}

	var fields models.Fields
	for _, key := range p.Keys() {
		canonical, ok := fieldmap.Translate(c, key)
		if !ok {
			continue
		}
		value, _ := p.Get(key)
		fields = append(fields, models.Field{Key: canonical, Value: value})
	}

	if len(fields) == 0 {
		return models.AccountEvent{}, false
	}
	return models.AccountEvent{Account: toString(rawAccount), Fields: fields}, true
}

// SubscribedSymbols decodes the answer to a subscribed-quote query. Focus keys
// are translated to canonical names and de-duplicated.
func SubscribedSymbols(p *Payload) models.SubscribedSymbols {
	var out models.SubscribedSymbols

	if v, ok := p.Get("limit"); ok {
		out.Limit, _ = toInt(v)
	}
	if v, ok := p.Get("used"); ok {
		out.Used, _ = toInt(v)
	}
	if v, ok := p.Get("subscribedSymbols"); ok {
		if list, ok := v.([]interface{}); ok {
			for _, s := range list {
				out.Symbols = append(out.Symbols, toString(s))
			}
		}
	}
	if v, ok := p.Get("symbolFocusKeys"); ok {
		if bySymbol, ok := v.(map[string]interface{}); ok {
			out.FocusKeys = make(map[string][]string, len(bySymbol))
			for symbol, raw := range bySymbol {
				keys, ok := raw.([]interface{})
				if !ok {
					continue
				}
				seen := make(map[string]struct{}, len(keys))
				translated := make([]string, 0, len(keys))
				for _, k := range keys {
					canonical := fieldmap.TranslateOrKeep(fieldmap.Quote, toString(k))
					if _, dup := seen[canonical]; dup {
						continue
					}
					seen[canonical] = struct{}{}
					translated = append(translated, canonical)
				}
				out.FocusKeys[symbol] = translated
			}
		}
	}
	return out
}
