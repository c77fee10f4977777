package push

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	appconfig "pushflow/config"
	"pushflow/internal/transport"
)

type sentFrame struct {
	destination string
	id          string
	body        []byte
	headers     map[string]string
}

// fakeConn is a transport.Conn whose handshake succeeds or fails on demand.
type fakeConn struct {
	connectErr error

	mu             sync.Mutex
	listener       transport.Listener
	started        bool
	connected      bool
	connectCalls   int
	login          string
	passcode       string
	connectHeaders map[string]string
	subscribes     []sentFrame
	unsubscribes   []sentFrame
	sends          []sentFrame
	removed        bool
	closed         bool
	disconnected   bool
}

func (f *fakeConn) SetListener(l transport.Listener) {
	f.mu.Lock()
	f.listener = l
	f.mu.Unlock()
}

func (f *fakeConn) RemoveListener() {
	f.mu.Lock()
	f.listener = nil
	f.removed = true
	f.mu.Unlock()
}

func (f *fakeConn) Start(ctx context.Context) error {
	f.mu.Lock()
	f.started = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Connect(login, passcode string, headers map[string]string) error {
	f.mu.Lock()
	f.connectCalls++
	f.login = login
	f.passcode = passcode
	f.connectHeaders = headers
	if f.connectErr != nil {
		f.mu.Unlock()
		return f.connectErr
	}
	f.connected = true
	l := f.listener
	f.mu.Unlock()

	if l != nil {
		l.OnConnected(map[string]string{"version": "1.2"}, nil)
	}
	return nil
}

func (f *fakeConn) Send(destination string, body []byte, headers map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sentFrame{destination: destination, body: body, headers: headers})
	return nil
}

func (f *fakeConn) Subscribe(destination, id string, headers map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes = append(f.subscribes, sentFrame{destination: destination, id: id, headers: headers})
	return nil
}

func (f *fakeConn) Unsubscribe(id string, headers map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribes = append(f.unsubscribes, sentFrame{id: id, headers: headers})
	return nil
}

func (f *fakeConn) Disconnect() error {
	f.mu.Lock()
	f.disconnected = true
	f.connected = false
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.connected = false
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

// drop simulates the broker going away.
func (f *fakeConn) drop() {
	f.mu.Lock()
	f.connected = false
	l := f.listener
	f.mu.Unlock()
	if l != nil {
		l.OnDisconnected()
	}
}

func (f *fakeConn) lastSubscribe(t *testing.T) sentFrame {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.subscribes)
	return f.subscribes[len(f.subscribes)-1]
}

func (f *fakeConn) lastUnsubscribe(t *testing.T) sentFrame {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.unsubscribes)
	return f.unsubscribes[len(f.unsubscribes)-1]
}

// fakeFactory records every connection the client builds.
type fakeFactory struct {
	mu        sync.Mutex
	conns     []*fakeConn
	configure func(n int, c *fakeConn)
	opts      []transport.Options
}

func (ff *fakeFactory) build(opts transport.Options) transport.Conn {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	c := &fakeConn{}
	if ff.configure != nil {
		ff.configure(len(ff.conns), c)
	}
	ff.conns = append(ff.conns, c)
	ff.opts = append(ff.opts, opts)
	return c
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.conns)
}

func (ff *fakeFactory) conn(i int) *fakeConn {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return ff.conns[i]
}

func testPushConfig() appconfig.PushConfig {
	return appconfig.PushConfig{
		Host:          "push.example.com",
		Port:          9883,
		UseTLS:        true,
		AutoReconnect: true,
	}
}

var (
	keyOnce sync.Once
	testKey *rsa.PrivateKey
	testPEM string
)

func testPrivateKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	keyOnce.Do(func() {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			panic(err)
		}
		der, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			panic(err)
		}
		testKey = key
		testPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
	})
	return testKey, testPEM
}

func newTestClient(t *testing.T, cfg appconfig.PushConfig) (*Client, *fakeFactory) {
	t.Helper()
	ff := &fakeFactory{}
	return NewClient(cfg, ff.build), ff
}

func connectTestClient(t *testing.T, c *Client) {
	t.Helper()
	_, key := testPrivateKey(t)
	require.NoError(t, c.Connect(context.Background(), "20150001", key))
}
