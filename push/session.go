package push

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	appconfig "pushflow/config"
	"pushflow/internal/metrics"
	"pushflow/internal/signer"
	"pushflow/internal/transport"
	"pushflow/logger"
)

const defaultSDKVersion = "go-1.0.0"

var (
	ErrNotConnected     = errors.New("push session not connected")
	ErrSessionClosed    = errors.New("push session closed")
	ErrAlreadyConnected = errors.New("push session already connected")
)

// ConnectionError reports a failed attempt to establish the session.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("push %s failed: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// State is the session state.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	// StateClosed is entered only through Disconnect.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var stateNames = []string{
	StateDisconnected.String(),
	StateConnecting.String(),
	StateConnected.String(),
	StateClosed.String(),
}

// Session is the control surface of a push connection. Subscribe calls return
// the subscription id; unsubscribe calls fall back to the last id issued for
// the destination when id is empty.
type Session interface {
	Connect(ctx context.Context, identity, privateKey string) error
	Disconnect() error

	SubscribeAsset(account string) (string, error)
	SubscribePosition(account string) (string, error)
	SubscribeOrder(account string) (string, error)
	UnsubscribeAsset(id string) error
	UnsubscribePosition(id string) error
	UnsubscribeOrder(id string) error

	SubscribeQuote(symbols []string, keyType KeyType, focusKeys []string) (string, error)
	SubscribeDepthQuote(symbols []string) (string, error)
	SubscribeOption(symbols []string) (string, error)
	SubscribeFuture(symbols []string) (string, error)
	UnsubscribeQuote(symbols []string, id string) error
	UnsubscribeDepthQuote(symbols []string, id string) error
	QuerySubscribedQuote() error

	State() State
}

var _ Session = (*Client)(nil)

// Client is a push session backed by a transport.Conn. Connect, the automatic
// reconnect and Disconnect are serialized; outbound calls always see either
// the previous or the next connection, never a half-built one.
type Client struct {
	id            string
	log           *logger.Entry
	opts          transport.Options
	factory       transport.Factory
	autoReconnect bool
	sdkVersion    string
	limiter       *rate.Limiter
	registry      *Registry
	router        *Router

	ctrlMu    sync.Mutex
	identity  string
	signature string

	mu    sync.RWMutex
	conn  transport.Conn
	state State
}

// NewClient builds a session for cfg. A nil factory uses the STOMP transport.
func NewClient(cfg appconfig.PushConfig, factory transport.Factory) *Client {
	if factory == nil {
		factory = transport.New
	}
	sdkVersion := cfg.SDKVersion
	if sdkVersion == "" {
		sdkVersion = defaultSDKVersion
	}
	limit, burst := rate.Inf, 1
	if cfg.OutboundRate > 0 {
		limit, burst = rate.Limit(cfg.OutboundRate), cfg.OutboundBurst
	}

	id := uuid.NewString()
	c := &Client{
		id:            id,
		log:           logger.GetLogger().WithComponent("session").WithFields(logger.Fields{"session_id": id}),
		opts:          transport.NewOptions(cfg),
		factory:       factory,
		autoReconnect: cfg.AutoReconnect,
		sdkVersion:    sdkVersion,
		limiter:       rate.NewLimiter(limit, burst),
		registry:      NewRegistry(),
	}
	c.router = newRouter(c)
	return c
}

// ID identifies this client in logs and forwarded events.
func (c *Client) ID() string {
	return c.id
}

func (c *Client) SetCallbacks(cb Callbacks) {
	c.router.SetCallbacks(cb)
}

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	metrics.SetConnectionState(s.String(), stateNames)
}

// Connect signs identity with privateKey and performs the STOMP handshake. It
// blocks until the broker answers or the connection timeout expires. A failed
// handshake leaves the session Disconnected and is not retried. OnConnect runs
// before Connect returns.
func (c *Client) Connect(ctx context.Context, identity, privateKey string) error {
	conn, err := c.establish(ctx, identity, privateKey)
	if err != nil {
		return err
	}
	c.notifyConnected(conn)
	return nil
}

func (c *Client) establish(ctx context.Context, identity, privateKey string) (transport.Conn, error) {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	switch c.State() {
	case StateConnected, StateConnecting:
		return nil, ErrAlreadyConnected
	case StateClosed:
		return nil, ErrSessionClosed
	}

	signature, err := signer.Sign(privateKey, identity)
	if err != nil {
		return nil, &ConnectionError{Op: "sign", Err: err}
	}
	c.identity = identity
	c.signature = signature

	return c.open(ctx)
}

// open replaces the current connection with a fresh one. ctrlMu must be held.
func (c *Client) open(ctx context.Context) (transport.Conn, error) {
	c.release()

	conn := c.factory(c.opts)
	conn.SetListener(c.router)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.setState(StateConnecting)

	c.log.WithFields(logger.Fields{"broker": c.opts.Host, "port": c.opts.Port}).Info("connecting to push broker")

	if err := conn.Start(ctx); err != nil {
		c.abort(conn)
		return nil, &ConnectionError{Op: "open", Err: err}
	}
	if err := conn.Connect(c.identity, c.signature, c.headers(nil)); err != nil {
		c.abort(conn)
		return nil, &ConnectionError{Op: "connect", Err: err}
	}
	return conn, nil
}

// release detaches and closes the current connection. Cleanup errors are
// logged and otherwise ignored.
func (c *Client) release() {
	c.mu.Lock()
	old := c.conn
	c.conn = nil
	c.mu.Unlock()

	if old == nil {
		return
	}
	old.RemoveListener()
	if err := old.Close(); err != nil {
		c.log.WithError(err).Debug("failed to close previous connection")
	}
}

func (c *Client) abort(conn transport.Conn) {
	conn.RemoveListener()
	_ = conn.Close()

	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	c.setState(StateDisconnected)
}

// connected runs on the read goroutine once the broker accepted the session,
// before the handshake result reaches open. OnConnect is left to
// notifyConnected.
func (c *Client) connected() {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateConnected
	c.mu.Unlock()
	metrics.SetConnectionState(StateConnected.String(), stateNames)

	c.log.Info("push session connected")
}

// notifyConnected runs OnConnect if conn is still the live session. ctrlMu
// must not be held: the callback may subscribe or call Disconnect.
func (c *Client) notifyConnected(conn transport.Conn) {
	c.mu.RLock()
	live := c.conn == conn && c.state == StateConnected
	c.mu.RUnlock()
	if !live {
		return
	}
	if cb := c.router.callbacks(); cb.OnConnect != nil {
		c.router.invoke("connect", cb.OnConnect)
	}
}

// disconnected runs on the read goroutine of a connection that was lost. A
// registered OnDisconnect callback takes over recovery; otherwise the session
// reconnects when auto reconnect is enabled.
func (c *Client) disconnected() {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.mu.Unlock()
	metrics.SetConnectionState(StateDisconnected.String(), stateNames)

	c.log.Warn("push session lost")

	if cb := c.router.callbacks(); cb.OnDisconnect != nil {
		c.router.invoke("disconnect", cb.OnDisconnect)
		return
	}
	if !c.autoReconnect {
		return
	}
	if conn := c.reconnect(); conn != nil {
		c.notifyConnected(conn)
	}
}

func (c *Client) reconnect() transport.Conn {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	// Disconnect or an explicit Connect got here first.
	if c.State() != StateDisconnected {
		return nil
	}

	c.log.Info("reconnecting to push broker")
	conn, err := c.open(context.Background())
	if err != nil {
		metrics.Reconnect("failure")
		c.log.WithError(err).Error("reconnect failed")
		return nil
	}
	metrics.Reconnect("success")
	return conn
}

// Disconnect ends the session. The session is Closed afterwards and is never
// reconnected; OnDisconnect is not invoked.
func (c *Client) Disconnect() error {
	c.ctrlMu.Lock()
	defer c.ctrlMu.Unlock()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	c.setState(StateClosed)

	if conn == nil {
		return nil
	}
	conn.RemoveListener()
	if err := conn.Disconnect(); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	c.log.Info("push session closed")
	return nil
}

func (c *Client) active() (transport.Conn, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.state {
	case StateConnected:
		return c.conn, nil
	case StateClosed:
		return nil, ErrSessionClosed
	default:
		return nil, ErrNotConnected
	}
}

// headers returns the SDK version header merged with extra.
func (c *Client) headers(extra map[string]string) map[string]string {
	h := make(map[string]string, len(extra)+1)
	h[headerSDKVersion] = c.sdkVersion
	for k, v := range extra {
		h[k] = v
	}
	return h
}

func (c *Client) subscribe(destination, subscription string, extra map[string]string) (string, error) {
	conn, err := c.active()
	if err != nil {
		return "", err
	}
	if err := c.limiter.Wait(context.Background()); err != nil {
		return "", err
	}

	id := c.registry.NextID(destination)
	headers := c.headers(extra)
	headers[headerDestination] = destination
	headers[headerSubscription] = subscription
	headers[headerID] = id

	if err := conn.Subscribe(destination, id, headers); err != nil {
		return "", fmt.Errorf("subscribe %s: %w", destination, err)
	}
	c.log.WithFields(logger.Fields{"destination": destination, "id": id}).Debug("subscribed")
	return id, nil
}

func (c *Client) unsubscribe(destination, subscription, id string, extra map[string]string) error {
	conn, err := c.active()
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(context.Background()); err != nil {
		return err
	}

	if id == "" {
		id = c.registry.CurrentID(destination)
	}
	headers := c.headers(extra)
	headers[headerDestination] = destination
	headers[headerSubscription] = subscription
	headers[headerID] = id

	if err := conn.Unsubscribe(id, headers); err != nil {
		return fmt.Errorf("unsubscribe %s: %w", destination, err)
	}
	c.log.WithFields(logger.Fields{"destination": destination, "id": id}).Debug("unsubscribed")
	return nil
}

func tradeHeaders(account string) map[string]string {
	if account == "" {
		return nil
	}
	return map[string]string{headerAccount: account}
}

func symbolHeaders(symbols []string) map[string]string {
	h := make(map[string]string, 2)
	if symbols != nil {
		h[headerSymbols] = strings.Join(symbols, ",")
	}
	return h
}

func (c *Client) SubscribeAsset(account string) (string, error) {
	return c.subscribe(DestinationAsset, subscriptionAsset, tradeHeaders(account))
}

func (c *Client) SubscribePosition(account string) (string, error) {
	return c.subscribe(DestinationPosition, subscriptionPosition, tradeHeaders(account))
}

func (c *Client) SubscribeOrder(account string) (string, error) {
	return c.subscribe(DestinationOrder, subscriptionOrder, tradeHeaders(account))
}

func (c *Client) UnsubscribeAsset(id string) error {
	return c.unsubscribe(DestinationAsset, subscriptionAsset, id, nil)
}

func (c *Client) UnsubscribePosition(id string) error {
	return c.unsubscribe(DestinationPosition, subscriptionPosition, id, nil)
}

func (c *Client) UnsubscribeOrder(id string) error {
	return c.unsubscribe(DestinationOrder, subscriptionOrder, id, nil)
}

// SubscribeQuote subscribes to quote changes. focusKeys are wire field names;
// when empty the named key set is requested instead, trade by default.
func (c *Client) SubscribeQuote(symbols []string, keyType KeyType, focusKeys []string) (string, error) {
	h := symbolHeaders(symbols)
	switch {
	case len(focusKeys) > 0:
		h[headerKeys] = strings.Join(focusKeys, ",")
	case keyType != "":
		h[headerKeys] = string(keyType)
	default:
		h[headerKeys] = string(KeyTypeTrade)
	}
	return c.subscribe(DestinationQuote, subscriptionQuote, h)
}

func (c *Client) SubscribeDepthQuote(symbols []string) (string, error) {
	return c.subscribe(DestinationQuoteDepth, subscriptionQuoteDepth, symbolHeaders(symbols))
}

func (c *Client) SubscribeOption(symbols []string) (string, error) {
	return c.subscribe(DestinationOption, subscriptionOption, symbolHeaders(symbols))
}

func (c *Client) SubscribeFuture(symbols []string) (string, error) {
	return c.subscribe(DestinationFuture, subscriptionFuture, symbolHeaders(symbols))
}

func (c *Client) UnsubscribeQuote(symbols []string, id string) error {
	return c.unsubscribe(DestinationQuote, subscriptionQuote, id, symbolHeaders(symbols))
}

func (c *Client) UnsubscribeDepthQuote(symbols []string, id string) error {
	return c.unsubscribe(DestinationQuoteDepth, subscriptionQuoteDepth, id, symbolHeaders(symbols))
}

// QuerySubscribedQuote asks for the current quote subscriptions. The answer
// arrives through Callbacks.OnSubscribedSymbols.
func (c *Client) QuerySubscribedQuote() error {
	conn, err := c.active()
	if err != nil {
		return err
	}
	if err := c.limiter.Wait(context.Background()); err != nil {
		return err
	}

	headers := c.headers(map[string]string{
		headerDestination: DestinationQuote,
		headerRequestType: strconv.Itoa(requestSubscribedSymbols),
	})
	if err := conn.Send(DestinationQuote, []byte("{}"), headers); err != nil {
		return fmt.Errorf("query subscribed quotes: %w", err)
	}
	return nil
}
