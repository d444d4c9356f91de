package ws

import (
	"bytes"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xweng-opaida/agent-viewer/internal/domain/session"
	"github.com/xweng-opaida/agent-viewer/internal/infrastructure/logging"
)

type fakeResolver struct {
	records map[string]session.Record
}

func (f *fakeResolver) Running(id string) (session.Record, bool) {
	rec, ok := f.records[id]
	return rec, ok
}

// vncStub is a raw TCP listener standing in for a VNC server. It records
// what it received and can push bytes to the connected client.
type vncStub struct {
	t        *testing.T
	listener net.Listener
	conns    chan net.Conn
}

func newVNCStub(t *testing.T) *vncStub {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &vncStub{t: t, listener: ln, conns: make(chan net.Conn, 1)}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			s.conns <- conn
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *vncStub) port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

func (s *vncStub) accept() net.Conn {
	s.t.Helper()
	select {
	case conn := <-s.conns:
		s.t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(2 * time.Second):
		s.t.Fatal("no upstream connection within 2s")
		return nil
	}
}

func newBridgeServer(t *testing.T, resolver Resolver) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler := NewHandler(resolver, "127.0.0.1", time.Second, logging.NewNop())
	router.GET("/vnc/:id", handler.Bridge)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func dialBridge(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/vnc/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBridgeRelaysBothDirections(t *testing.T) {
	stub := newVNCStub(t)
	resolver := &fakeResolver{records: map[string]session.Record{
		"abc": {ID: "abc", VNCPort: stub.port(), State: session.StateRunning},
	}}
	srv := newBridgeServer(t, resolver)

	client := dialBridge(t, srv, "abc")
	upstream := stub.accept()

	// client -> upstream, byte for byte
	sent := []byte{0x52, 0x46, 0x42, 0x00, 0xff}
	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, sent))

	got := make([]byte, len(sent))
	upstream.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := upstream.Read(got)
	require.NoError(t, err)
	assert.Equal(t, sent, got)

	// upstream -> client, arrives as a binary message
	reply := []byte("RFB 003.008\n")
	_, err = upstream.Write(reply)
	require.NoError(t, err)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, msgType)
	assert.Equal(t, reply, data)
}

func TestBridgeLargeTransfer(t *testing.T) {
	stub := newVNCStub(t)
	resolver := &fakeResolver{records: map[string]session.Record{
		"abc": {ID: "abc", VNCPort: stub.port(), State: session.StateRunning},
	}}
	srv := newBridgeServer(t, resolver)

	client := dialBridge(t, srv, "abc")
	upstream := stub.accept()

	// A frame buffer update larger than the relay's read chunk must
	// arrive complete, split across multiple messages or not.
	payload := bytes.Repeat([]byte{0xab}, 64*1024)
	go func() {
		upstream.Write(payload)
	}()

	var received []byte
	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	for len(received) < len(payload) {
		_, data, err := client.ReadMessage()
		require.NoError(t, err)
		received = append(received, data...)
	}
	assert.Equal(t, payload, received)
}

func TestBridgeClientCloseTearsDownUpstream(t *testing.T) {
	stub := newVNCStub(t)
	resolver := &fakeResolver{records: map[string]session.Record{
		"abc": {ID: "abc", VNCPort: stub.port(), State: session.StateRunning},
	}}
	srv := newBridgeServer(t, resolver)

	client := dialBridge(t, srv, "abc")
	upstream := stub.accept()

	client.Close()

	upstream.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := upstream.Read(make([]byte, 1))
	assert.Error(t, err, "upstream must be closed after the client disconnects")
}

func TestBridgeUpstreamCloseTearsDownClient(t *testing.T) {
	stub := newVNCStub(t)
	resolver := &fakeResolver{records: map[string]session.Record{
		"abc": {ID: "abc", VNCPort: stub.port(), State: session.StateRunning},
	}}
	srv := newBridgeServer(t, resolver)

	client := dialBridge(t, srv, "abc")
	upstream := stub.accept()

	upstream.Close()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	assert.Error(t, err, "client read must fail after the upstream disconnects")
}

func TestBridgeUnknownSession(t *testing.T) {
	stub := newVNCStub(t)
	resolver := &fakeResolver{records: map[string]session.Record{}}
	srv := newBridgeServer(t, resolver)

	client := dialBridge(t, srv, "nope")

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	require.Error(t, err)

	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.ClosePolicyViolation, ce.Code)
	assert.Contains(t, ce.Text, "not found")

	// The upstream was never dialed.
	select {
	case <-stub.conns:
		t.Fatal("bridge dialed upstream for an unknown session")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBridgeUpstreamUnreachable(t *testing.T) {
	// Grab a port and close it so nothing listens there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadPort := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	resolver := &fakeResolver{records: map[string]session.Record{
		"abc": {ID: "abc", VNCPort: deadPort, State: session.StateRunning},
	}}
	srv := newBridgeServer(t, resolver)

	client := dialBridge(t, srv, "abc")

	client.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err = client.ReadMessage()
	require.Error(t, err)

	var ce *websocket.CloseError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, websocket.CloseInternalServerErr, ce.Code)
}
