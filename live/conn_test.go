// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package live_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/danielhkuo/poll-rooms/live"
	"github.com/danielhkuo/poll-rooms/topic"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// registryWatcher subscribes straight to a registry, standing in for the
// coordinator. Poll "missing" does not exist.
type registryWatcher struct {
	reg *topic.Registry
}

func (w registryWatcher) Watch(_ context.Context, pollID string, sub topic.Subscriber) (func(), error) {
	if pollID == "missing" {
		return nil, errors.New("not found")
	}
	if err := w.reg.Subscribe(pollID, sub); err != nil {
		return nil, err
	}
	return func() { w.reg.Unsubscribe(pollID, sub) }, nil
}

type server struct {
	reg    *topic.Registry
	url    string
	served chan error
}

func newServer(t *testing.T, opts ...live.Option) *server {
	t.Helper()

	s := &server{reg: topic.New(), served: make(chan error, 8)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		pollID := strings.TrimPrefix(r.URL.Path, "/")
		s.served <- live.New(ws, pollID, opts...).Serve(r.Context(), registryWatcher{reg: s.reg})
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(s.reg.Close)
	s.url = "ws" + strings.TrimPrefix(srv.URL, "http")
	return s
}

func dial(ctx context.Context, t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	return conn
}

func waitSubscribers(t *testing.T, reg *topic.Registry, pollID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return reg.Subscribers(pollID) == n
	}, 5*time.Second, 10*time.Millisecond)
}

func TestConn_ReceivesBroadcasts(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s := newServer(t)

	client := dial(ctx, t, s.url+"/p1")
	defer client.CloseNow()
	waitSubscribers(t, s.reg, "p1", 1)

	res := s.reg.Broadcast(ctx, "p1", []byte(`{"type":"poll_update"}`))
	assert.Equal(t, topic.Result{Delivered: 1}, res)

	typ, msg, err := client.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, websocket.MessageText, typ)
	assert.Equal(t, `{"type":"poll_update"}`, string(msg))
}

func TestConn_IgnoresClientFrames(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s := newServer(t)

	client := dial(ctx, t, s.url+"/p1")
	defer client.CloseNow()
	waitSubscribers(t, s.reg, "p1", 1)

	require.NoError(t, client.Write(ctx, websocket.MessageText, []byte("hello")))
	s.reg.Broadcast(ctx, "p1", []byte("update"))

	_, msg, err := client.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "update", string(msg))
}

func TestConn_PeerDisconnectUnsubscribes(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s := newServer(t)

	client := dial(ctx, t, s.url+"/p1")
	waitSubscribers(t, s.reg, "p1", 1)

	require.NoError(t, client.Close(websocket.StatusNormalClosure, "bye"))

	select {
	case err := <-s.served:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("Serve did not return after peer disconnect")
	}
	assert.Zero(t, s.reg.Subscribers("p1"))
	assert.Empty(t, s.reg.Topics())
}

func TestConn_RegistryCloseDisconnects(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s := newServer(t)

	client := dial(ctx, t, s.url+"/p1")
	defer client.CloseNow()
	waitSubscribers(t, s.reg, "p1", 1)

	s.reg.Close()

	_, _, err := client.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusGoingAway, websocket.CloseStatus(err))

	select {
	case err := <-s.served:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("Serve did not return after registry close")
	}
}

func TestConn_UnknownPoll(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s := newServer(t)

	client := dial(ctx, t, s.url+"/missing")
	defer client.CloseNow()

	_, _, err := client.Read(ctx)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))

	select {
	case err := <-s.served:
		assert.Error(t, err)
	case <-ctx.Done():
		t.Fatal("Serve did not return for unknown poll")
	}
	assert.Empty(t, s.reg.Topics())
}

func TestConn_HeartbeatPings(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clock := quartz.NewMock(t)
	trap := clock.Trap().TickerFunc("live", "heartbeat")
	defer trap.Close()

	s := newServer(t, live.WithClock(clock), live.WithHeartbeat(time.Second))

	client := dial(ctx, t, s.url+"/p1")
	defer client.CloseNow()
	// Pongs are only processed while the client reads.
	readCtx := client.CloseRead(ctx)

	trap.MustWait(ctx).MustRelease(ctx)
	waitSubscribers(t, s.reg, "p1", 1)

	for i := 0; i < 3; i++ {
		clock.Advance(time.Second).MustWait(ctx)
	}
	assert.Equal(t, 1, s.reg.Subscribers("p1"), "healthy heartbeat keeps the subscription")
	assert.NoError(t, readCtx.Err())
}

func TestConn_SendAfterClose(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	conns := make(chan *live.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		c := live.New(ws, "p1")
		c.Close("test")
		conns <- c
		_ = ws.CloseNow()
	}))
	defer srv.Close()

	client := dial(ctx, t, "ws"+strings.TrimPrefix(srv.URL, "http"))
	defer client.CloseNow()

	c := <-conns
	assert.Equal(t, live.StateClosed, c.State())
	require.ErrorIs(t, c.Send(ctx, []byte("x")), live.ErrClosed)
	c.Close("again")
}

func TestConn_HeartbeatFailureCloses(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clock := quartz.NewMock(t)
	trap := clock.Trap().TickerFunc("live", "heartbeat")
	defer trap.Close()

	s := newServer(t,
		live.WithClock(clock),
		live.WithHeartbeat(time.Second),
		live.WithSendTimeout(50*time.Millisecond),
	)

	// The client never reads, so pings go unanswered.
	client := dial(ctx, t, s.url+"/p1")
	defer client.CloseNow()

	trap.MustWait(ctx).MustRelease(ctx)
	waitSubscribers(t, s.reg, "p1", 1)

	clock.Advance(time.Second).MustWait(ctx)

	// The failed ping may also end the read loop, so only the exit matters.
	select {
	case <-s.served:
	case <-ctx.Done():
		t.Fatal("Serve did not return after heartbeat failure")
	}
	assert.Zero(t, s.reg.Subscribers("p1"))
}
