package push

import (
	"fmt"
	"sync"

	"pushflow/internal/decoder"
	"pushflow/internal/metrics"
	"pushflow/logger"
	"pushflow/models"
)

// sessionHooks receives connection state changes seen by the router.
type sessionHooks interface {
	connected()
	disconnected()
}

// Router is the transport.Listener of a push session. It decodes MESSAGE
// frames by their ret-type header and hands the result to Callbacks.
type Router struct {
	log   *logger.Entry
	hooks sessionHooks

	mu sync.RWMutex
	cb Callbacks
}

func newRouter(hooks sessionHooks) *Router {
	return &Router{
		log:   logger.GetLogger().WithComponent("router"),
		hooks: hooks,
	}
}

func (r *Router) SetCallbacks(cb Callbacks) {
	r.mu.Lock()
	r.cb = cb
	r.mu.Unlock()
}

func (r *Router) callbacks() Callbacks {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cb
}

func (r *Router) OnConnected(headers map[string]string, body []byte) {
	if r.hooks != nil {
		r.hooks.connected()
	}
}

func (r *Router) OnDisconnected() {
	if r.hooks != nil {
		r.hooks.disconnected()
	}
}

// OnError handles an ERROR frame from the broker.
func (r *Router) OnError(headers map[string]string, body []byte) {
	cb := r.callbacks()
	if cb.OnError == nil {
		r.log.WithFields(logger.Fields{"message": headers["message"], "body": string(body)}).Error("broker error")
		return
	}
	r.invoke(models.CategoryError, func() { cb.OnError(string(body)) })
}

// OnMessage routes one MESSAGE frame. Nothing raised while decoding or inside
// a callback escapes this method.
func (r *Router) OnMessage(headers map[string]string, body []byte) {
	raw := headers[headerResponseType]
	rt, ok := ParseResponseType(raw)
	if !ok {
		r.log.WithFields(logger.Fields{"ret_type": raw}).Debug("ignoring frame with unknown response type")
		metrics.EmitDropMetric(logger.GetLogger(), metrics.DropReasonUnknownType, "")
		return
	}
	metrics.FrameReceived(rt.String())

	cb := r.callbacks()
	switch rt {
	case ResponseQuoteChange:
		if cb.OnQuoteChanged == nil {
			return
		}
		r.decode(rt, body, func(p *decoder.Payload) {
			if ev, ok := decoder.Quote(p); ok {
				r.invoke(models.CategoryQuote, func() { cb.OnQuoteChanged(ev) })
			}
		})

	case ResponseAssetChange:
		if cb.OnAssetChanged == nil {
			return
		}
		r.decode(rt, body, func(p *decoder.Payload) {
			if ev, ok := decoder.Asset(p); ok {
				r.invoke(models.CategoryAsset, func() { cb.OnAssetChanged(ev) })
			}
		})

	case ResponsePositionChange:
		if cb.OnPositionChanged == nil {
			return
		}
		r.decode(rt, body, func(p *decoder.Payload) {
			if ev, ok := decoder.Position(p); ok {
				r.invoke(models.CategoryPosition, func() { cb.OnPositionChanged(ev) })
			}
		})

	case ResponseOrderChange:
		if cb.OnOrderChanged == nil {
			return
		}
		r.decode(rt, body, func(p *decoder.Payload) {
			if ev, ok := decoder.Order(p); ok {
				r.invoke(models.CategoryOrder, func() { cb.OnOrderChanged(ev) })
			}
		})

	case ResponseSubscribedSymbols:
		if cb.OnSubscribedSymbols == nil {
			return
		}
		r.decode(rt, body, func(p *decoder.Payload) {
			s := decoder.SubscribedSymbols(p)
			r.invoke(models.CategorySnapshot, func() { cb.OnSubscribedSymbols(s) })
		})

	case ResponseSubscribeAck:
		if cb.OnSubscribe != nil {
			r.ack(rt, headers, body, cb.OnSubscribe)
		}

	case ResponseUnsubscribeAck:
		if cb.OnUnsubscribe != nil {
			r.ack(rt, headers, body, cb.OnUnsubscribe)
		}

	case ResponseError:
		if cb.OnError == nil {
			r.log.WithFields(logger.Fields{"body": string(body)}).Error("push error message")
			return
		}
		r.invoke(models.CategoryError, func() { cb.OnError(string(body)) })
	}
}

// decode parses body and passes it to fn. Malformed bodies are logged and
// counted, never returned.
func (r *Router) decode(rt ResponseType, body []byte, fn func(p *decoder.Payload)) {
	p, err := decoder.Parse(body)
	if err != nil {
		r.dropMalformed(rt, body, err)
		return
	}
	fn(p)
}

func (r *Router) dropMalformed(rt ResponseType, body []byte, err error) {
	r.log.WithError(err).WithFields(logger.Fields{
		"response_type": rt.String(),
		"body_size":     len(body),
	}).Warn("dropping malformed frame")
	metrics.EmitDropMetric(logger.GetLogger(), metrics.DropReasonDecode, rt.String())
}

// ack hands an acknowledgement to fn. A body that is not a JSON object is
// passed as {"value": v}.
func (r *Router) ack(rt ResponseType, headers map[string]string, body []byte, fn func(string, map[string]interface{})) {
	v, err := decoder.ParseValue(body)
	if err != nil {
		r.dropMalformed(rt, body, err)
		return
	}
	reply, ok := v.(map[string]interface{})
	if !ok {
		reply = map[string]interface{}{"value": v}
	}
	r.invoke(models.CategorySubscribe, func() { fn(headers[headerDestination], reply) })
}

// invoke runs a user callback, recovering any panic it raises.
func (r *Router) invoke(category string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithFields(logger.Fields{
				"category": category,
				"panic":    fmt.Sprint(rec),
			}).Error("callback panicked")
			metrics.EmitDropMetric(logger.GetLogger(), metrics.DropReasonCallbackPanic, category)
		}
	}()
	fn()
	metrics.EventDispatched(category)
}
