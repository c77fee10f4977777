package transport

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/google/uuid"

	"pushflow/internal/metrics"
	"pushflow/logger"
)

// read deadline = server heart-beat interval * heartbeatGrace
const heartbeatGrace = 2

type stompConn struct {
	opts Options
	log  *logger.Entry

	mu        sync.Mutex
	listener  Listener
	wire      wire
	connected bool
	local     bool
	handshake chan error
	receipts  map[string]chan struct{}
	recvLimit time.Duration

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

// New returns an unstarted STOMP connection.
func New(opts Options) Conn {
	return &stompConn{
		opts:     opts,
		log:      logger.GetLogger().WithComponent("transport").WithFields(logger.Fields{"broker": opts.address()}),
		receipts: make(map[string]chan struct{}),
		done:     make(chan struct{}),
	}
}

func (c *stompConn) SetListener(l Listener) {
	c.mu.Lock()
	c.listener = l
	c.mu.Unlock()
}

func (c *stompConn) RemoveListener() {
	c.mu.Lock()
	c.listener = nil
	c.mu.Unlock()
}

func (c *stompConn) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *stompConn) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.wire != nil {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	if c.local {
		c.mu.Unlock()
		return ErrClosed
	}
	c.mu.Unlock()

	w, err := dial(ctx, c.opts)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.opts.address(), err)
	}

	c.mu.Lock()
	if c.local {
		c.mu.Unlock()
		w.Close()
		return ErrClosed
	}
	c.wire = w
	c.mu.Unlock()

	c.log.WithFields(logger.Fields{"tls": c.opts.UseTLS, "websocket": c.opts.WebSocket}).Debug("network connection opened")
	go c.readLoop(w)
	return nil
}

func (c *stompConn) Connect(login, passcode string, headers map[string]string) error {
	f := frame.New(frame.CONNECT,
		"accept-version", "1.2",
		"host", c.opts.Host,
		"login", login,
		"passcode", passcode,
		"heart-beat", formatHeartBeat(c.opts.HeartbeatSend, c.opts.HeartbeatRecv),
	)
	applyHeaders(f, headers)

	result := make(chan error, 1)
	c.mu.Lock()
	c.handshake = result
	c.mu.Unlock()

	if err := c.write(f); err != nil {
		c.clearHandshake(result)
		return fmt.Errorf("write CONNECT: %w", err)
	}

	timer := time.NewTimer(c.opts.connectTimeout())
	defer timer.Stop()

	select {
	case err := <-result:
		return err
	case <-timer.C:
		c.clearHandshake(result)
		c.Close()
		return ErrConnectTimeout
	}
}

func (c *stompConn) clearHandshake(ch chan error) {
	c.mu.Lock()
	if c.handshake == ch {
		c.handshake = nil
	}
	c.mu.Unlock()
}

func (c *stompConn) Send(destination string, body []byte, headers map[string]string) error {
	f := frame.New(frame.SEND, "destination", destination)
	applyHeaders(f, headers)
	f.Header.Set("content-length", strconv.Itoa(len(body)))
	f.Body = body
	return c.sendFrame(f)
}

func (c *stompConn) Subscribe(destination, id string, headers map[string]string) error {
	f := frame.New(frame.SUBSCRIBE, "destination", destination, "id", id, "ack", "auto")
	applyHeaders(f, headers)
	return c.sendFrame(f)
}

func (c *stompConn) Unsubscribe(id string, headers map[string]string) error {
	f := frame.New(frame.UNSUBSCRIBE, "id", id)
	applyHeaders(f, headers)
	return c.sendFrame(f)
}

func (c *stompConn) Disconnect() error {
	c.mu.Lock()
	c.local = true
	if !c.connected {
		c.mu.Unlock()
		return c.Close()
	}
	receipt := uuid.NewString()
	ack := make(chan struct{})
	c.receipts[receipt] = ack
	c.mu.Unlock()

	if err := c.write(frame.New(frame.DISCONNECT, "receipt", receipt)); err != nil {
		c.log.WithError(err).Debug("failed to write DISCONNECT")
	} else {
		metrics.OutboundFrame(frame.DISCONNECT)
		timer := time.NewTimer(c.opts.receiptTimeout())
		select {
		case <-ack:
		case <-c.done:
		case <-timer.C:
			c.log.WithFields(logger.Fields{"receipt": receipt}).Debug("no receipt for DISCONNECT")
		}
		timer.Stop()
	}
	return c.Close()
}

func (c *stompConn) Close() error {
	c.mu.Lock()
	c.local = true
	c.connected = false
	w := c.wire
	c.mu.Unlock()

	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if w != nil {
			err = w.Close()
		}
	})
	return err
}

func (c *stompConn) sendFrame(f *frame.Frame) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := c.write(f); err != nil {
		return fmt.Errorf("write %s: %w", f.Command, err)
	}
	metrics.OutboundFrame(f.Command)
	return nil
}

// write serializes frame writes; a nil frame is a heart-beat.
func (c *stompConn) write(f *frame.Frame) error {
	c.mu.Lock()
	w := c.wire
	c.mu.Unlock()
	if w == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = w.SetWriteDeadline(time.Now().Add(c.opts.writeTimeout()))
	return w.WriteFrame(f)
}

func (c *stompConn) readLoop(w wire) {
	var cause error
	defer func() { c.finish(cause) }()

	for {
		c.mu.Lock()
		limit := c.recvLimit
		c.mu.Unlock()
		if limit > 0 {
			_ = w.SetReadDeadline(time.Now().Add(limit))
		}

		f, err := w.ReadFrame()
		if err != nil {
			cause = err
			return
		}
		if f == nil {
			continue
		}
		c.handle(f)
	}
}

func (c *stompConn) handle(f *frame.Frame) {
	switch f.Command {
	case frame.CONNECTED:
		send, recv := c.negotiate(f.Header.Get("heart-beat"))
		c.mu.Lock()
		c.connected = true
		c.recvLimit = recv * heartbeatGrace
		result := c.handshake
		c.handshake = nil
		l := c.listener
		c.mu.Unlock()

		c.log.WithFields(logger.Fields{
			"version":      f.Header.Get("version"),
			"heartbeat_tx": send.String(),
			"heartbeat_rx": recv.String(),
		}).Info("stomp session established")

		if l != nil {
			l.OnConnected(headerMap(f), f.Body)
		}
		if send > 0 {
			go c.heartbeatLoop(send)
		}
		if result != nil {
			result <- nil
		}

	case frame.MESSAGE:
		if l := c.currentListener(); l != nil {
			l.OnMessage(headerMap(f), f.Body)
		}

	case frame.RECEIPT:
		id := f.Header.Get("receipt-id")
		c.mu.Lock()
		ack, ok := c.receipts[id]
		delete(c.receipts, id)
		c.mu.Unlock()
		if ok {
			close(ack)
		}

	case frame.ERROR:
		brokerErr := &BrokerError{Message: f.Header.Get("message"), Body: string(f.Body)}
		c.mu.Lock()
		result := c.handshake
		c.handshake = nil
		l := c.listener
		c.mu.Unlock()

		c.log.WithError(brokerErr).Warn("broker sent ERROR frame")
		if l != nil {
			l.OnError(headerMap(f), f.Body)
		}
		if result != nil {
			result <- brokerErr
		}

	default:
		c.log.WithFields(logger.Fields{"command": f.Command}).Debug("ignoring unexpected frame")
	}
}

func (c *stompConn) currentListener() Listener {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listener
}

// finish runs once the read loop exits. Only the loss of an established,
// non-locally closed session is reported as OnDisconnected.
func (c *stompConn) finish(cause error) {
	c.mu.Lock()
	wasConnected := c.connected
	local := c.local
	c.connected = false
	result := c.handshake
	c.handshake = nil
	l := c.listener
	c.mu.Unlock()

	c.Close()

	if result != nil {
		result <- fmt.Errorf("connection lost during handshake: %w", cause)
	}
	if local {
		c.log.Debug("connection closed")
		return
	}

	c.log.WithError(cause).Warn("connection lost")
	if wasConnected && l != nil {
		l.OnDisconnected()
	}
}

func (c *stompConn) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.write(nil); err != nil {
				c.log.WithError(err).Debug("failed to send heart-beat")
				return
			}
		}
	}
}

// negotiate combines our heart-beat offer with the server's answer and
// returns the send interval and the expected receive interval.
func (c *stompConn) negotiate(serverHeartBeat string) (time.Duration, time.Duration) {
	if serverHeartBeat == "" {
		return 0, 0
	}
	sx, sy, err := frame.ParseHeartBeat(serverHeartBeat)
	if err != nil {
		c.log.WithError(err).WithFields(logger.Fields{"heart-beat": serverHeartBeat}).Warn("invalid server heart-beat")
		return 0, 0
	}
	var send, recv time.Duration
	if c.opts.HeartbeatSend > 0 && sy > 0 {
		send = max(c.opts.HeartbeatSend, sy)
	}
	if c.opts.HeartbeatRecv > 0 && sx > 0 {
		recv = max(c.opts.HeartbeatRecv, sx)
	}
	return send, recv
}

func formatHeartBeat(send, recv time.Duration) string {
	return fmt.Sprintf("%d,%d", send.Milliseconds(), recv.Milliseconds())
}

// applyHeaders copies extra headers onto f in a stable order, replacing any
// header already present.
func applyHeaders(f *frame.Frame, headers map[string]string) {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		f.Header.Set(k, headers[k])
	}
}

func headerMap(f *frame.Frame) map[string]string {
	out := make(map[string]string, f.Header.Len())
	for i := 0; i < f.Header.Len(); i++ {
		k, v := f.Header.GetAt(i)
		if _, seen := out[k]; !seen {
			out[k] = v
		}
	}
	return out
}
