package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"net"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/gorilla/websocket"
)

const stompSubprotocol = "v12.stomp"

// wire moves whole STOMP frames over a network connection. A nil frame is a
// heart-beat.
type wire interface {
	ReadFrame() (*frame.Frame, error)
	WriteFrame(f *frame.Frame) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

type tcpWire struct {
	conn net.Conn
	r    *frame.Reader
	w    *frame.Writer
}

func newTCPWire(conn net.Conn) *tcpWire {
	return &tcpWire{conn: conn, r: frame.NewReader(conn), w: frame.NewWriter(conn)}
}

func (t *tcpWire) ReadFrame() (*frame.Frame, error)   { return t.r.Read() }
func (t *tcpWire) WriteFrame(f *frame.Frame) error    { return t.w.Write(f) }
func (t *tcpWire) SetReadDeadline(d time.Time) error  { return t.conn.SetReadDeadline(d) }
func (t *tcpWire) SetWriteDeadline(d time.Time) error { return t.conn.SetWriteDeadline(d) }
func (t *tcpWire) Close() error                       { return t.conn.Close() }

// wsWire carries one STOMP frame per WebSocket text message.
type wsWire struct {
	conn *websocket.Conn
}

func (w *wsWire) ReadFrame() (*frame.Frame, error) {
	_, data, err := w.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	return frame.NewReader(bytes.NewReader(data)).Read()
}

func (w *wsWire) WriteFrame(f *frame.Frame) error {
	var buf bytes.Buffer
	if err := frame.NewWriter(&buf).Write(f); err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, buf.Bytes())
}

func (w *wsWire) SetReadDeadline(d time.Time) error  { return w.conn.SetReadDeadline(d) }
func (w *wsWire) SetWriteDeadline(d time.Time) error { return w.conn.SetWriteDeadline(d) }

func (w *wsWire) Close() error {
	_ = w.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return w.conn.Close()
}

func (o Options) tlsConfig() *tls.Config {
	return &tls.Config{
		ServerName:         o.Host,
		InsecureSkipVerify: o.InsecureSkipVerify,
		MinVersion:         tls.VersionTLS12,
	}
}

func dial(ctx context.Context, opts Options) (wire, error) {
	dialer := &net.Dialer{
		Timeout:   opts.connectTimeout(),
		KeepAlive: opts.keepAlivePeriod(),
	}

	if opts.WebSocket {
		wsDialer := websocket.Dialer{
			NetDialContext:   dialer.DialContext,
			HandshakeTimeout: opts.connectTimeout(),
			Subprotocols:     []string{stompSubprotocol},
		}
		if opts.UseTLS {
			wsDialer.TLSClientConfig = opts.tlsConfig()
		}
		conn, _, err := wsDialer.DialContext(ctx, opts.url(), nil)
		if err != nil {
			return nil, err
		}
		return &wsWire{conn: conn}, nil
	}

	conn, err := dialer.DialContext(ctx, "tcp", opts.address())
	if err != nil {
		return nil, err
	}
	if opts.UseTLS {
		tlsConn := tls.Client(conn, opts.tlsConfig())
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, err
		}
		conn = tlsConn
	}
	return newTCPWire(conn), nil
}
