// Package transport speaks STOMP 1.2 to the push broker over TCP, TLS or
// WebSocket and hands every inbound frame to a single Listener.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	appconfig "pushflow/config"
)

var (
	ErrNotConnected   = errors.New("transport not connected")
	ErrConnectTimeout = errors.New("timed out waiting for CONNECTED")
	ErrClosed         = errors.New("transport closed")
	ErrAlreadyStarted = errors.New("transport already started")
)

// BrokerError is an ERROR frame sent by the broker.
type BrokerError struct {
	Message string
	Body    string
}

func (e *BrokerError) Error() string {
	if e.Body == "" {
		return "broker error: " + e.Message
	}
	return fmt.Sprintf("broker error: %s: %s", e.Message, e.Body)
}

// Listener receives connection events and inbound frames. All methods are
// called from the connection's read goroutine and must not block.
type Listener interface {
	OnConnected(headers map[string]string, body []byte)
	OnDisconnected()
	OnMessage(headers map[string]string, body []byte)
	OnError(headers map[string]string, body []byte)
}

// Conn is one broker connection. A Conn is used for a single session; a
// reconnect builds a new one.
type Conn interface {
	SetListener(l Listener)
	RemoveListener()
	// Start opens the network connection and starts reading.
	Start(ctx context.Context) error
	// Connect performs the CONNECT handshake and blocks until the broker
	// answers or the connection timeout expires.
	Connect(login, passcode string, headers map[string]string) error
	Send(destination string, body []byte, headers map[string]string) error
	Subscribe(destination, id string, headers map[string]string) error
	Unsubscribe(id string, headers map[string]string) error
	// Disconnect sends DISCONNECT, waits briefly for the receipt and closes.
	Disconnect() error
	// Close releases network resources without a DISCONNECT frame.
	Close() error
	IsConnected() bool
}

// Factory builds a fresh Conn.
type Factory func(opts Options) Conn

// Options configures a Conn.
type Options struct {
	Host               string
	Port               int
	UseTLS             bool
	InsecureSkipVerify bool
	WebSocket          bool
	WebSocketPath      string
	KeepAlive          bool
	ConnectTimeout     time.Duration
	WriteTimeout       time.Duration
	ReceiptTimeout     time.Duration
	HeartbeatSend      time.Duration
	HeartbeatRecv      time.Duration
}

// NewOptions derives transport options from the push configuration.
func NewOptions(cfg appconfig.PushConfig) Options {
	return Options{
		Host:               cfg.Host,
		Port:               cfg.Port,
		UseTLS:             cfg.UseTLS,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		WebSocket:          cfg.Transport == appconfig.TransportWebSocket,
		WebSocketPath:      cfg.WebSocketPath,
		KeepAlive:          cfg.TCPKeepAlive(),
		ConnectTimeout:     cfg.ConnectionTimeout,
		HeartbeatSend:      cfg.HeartbeatSend,
		HeartbeatRecv:      cfg.HeartbeatRecv,
	}
}

func (o Options) address() string {
	return net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
}

func (o Options) url() string {
	scheme := "ws"
	if o.UseTLS {
		scheme = "wss"
	}
	path := o.WebSocketPath
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("%s://%s%s", scheme, o.address(), path)
}

func (o Options) connectTimeout() time.Duration {
	if o.ConnectTimeout > 0 {
		return o.ConnectTimeout
	}
	return 120 * time.Second
}

func (o Options) writeTimeout() time.Duration {
	if o.WriteTimeout > 0 {
		return o.WriteTimeout
	}
	return 10 * time.Second
}

func (o Options) receiptTimeout() time.Duration {
	if o.ReceiptTimeout > 0 {
		return o.ReceiptTimeout
	}
	return 2 * time.Second
}

// keepAlivePeriod maps the keepalive flag onto net.Dialer semantics, where a
// negative period disables keepalive and zero selects the OS default.
func (o Options) keepAlivePeriod() time.Duration {
	if o.KeepAlive {
		return 0
	}
	return -1
}
