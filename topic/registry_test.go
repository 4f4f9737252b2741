// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package topic_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/danielhkuo/poll-rooms/metrics"
	"github.com/danielhkuo/poll-rooms/topic"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeSubscriber struct {
	mu      sync.Mutex
	msgs    [][]byte
	fail    bool
	closed  int
	reasons []string
}

func (f *fakeSubscriber) Send(_ context.Context, msg []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("connection reset")
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeSubscriber) Close(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	f.reasons = append(f.reasons, reason)
}

func (f *fakeSubscriber) messages() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.msgs...)
}

func (f *fakeSubscriber) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestSubscribe(t *testing.T) {
	r := topic.New()
	a, b := &fakeSubscriber{}, &fakeSubscriber{}

	require.NoError(t, r.Subscribe("p1", a))
	require.NoError(t, r.Subscribe("p1", a))
	require.NoError(t, r.Subscribe("p1", b))
	require.NoError(t, r.Subscribe("p2", a))

	assert.Equal(t, 2, r.Subscribers("p1"))
	assert.Equal(t, 1, r.Subscribers("p2"))
	assert.Equal(t, 0, r.Subscribers("p3"))
	assert.Equal(t, []string{"p1", "p2"}, r.Topics())
}

func TestUnsubscribe(t *testing.T) {
	r := topic.New()
	a, b := &fakeSubscriber{}, &fakeSubscriber{}

	require.NoError(t, r.Subscribe("p1", a))
	require.NoError(t, r.Subscribe("p1", b))

	r.Unsubscribe("p1", a)
	assert.Equal(t, 1, r.Subscribers("p1"))

	// Absent handle and absent topic are both no-ops.
	r.Unsubscribe("p1", a)
	r.Unsubscribe("nope", a)

	r.Unsubscribe("p1", b)
	assert.Empty(t, r.Topics(), "empty topic should be removed")
	assert.Zero(t, a.closeCount(), "unsubscribe must not close the handle")
}

func TestBroadcast(t *testing.T) {
	r := topic.New()
	a, b, other := &fakeSubscriber{}, &fakeSubscriber{}, &fakeSubscriber{}

	require.NoError(t, r.Subscribe("p1", a))
	require.NoError(t, r.Subscribe("p1", b))
	require.NoError(t, r.Subscribe("p2", other))

	msg := []byte(`{"type":"poll_update"}`)
	res := r.Broadcast(context.Background(), "p1", msg)

	assert.Equal(t, topic.Result{Delivered: 2}, res)
	assert.Equal(t, [][]byte{msg}, a.messages())
	assert.Equal(t, [][]byte{msg}, b.messages())
	assert.Empty(t, other.messages(), "other poll must not receive the message")
}

func TestBroadcast_NoSubscribers(t *testing.T) {
	r := topic.New()

	res := r.Broadcast(context.Background(), "empty", []byte("x"))
	assert.Equal(t, topic.Result{}, res)
	assert.Empty(t, r.Topics(), "broadcast must not create a topic")
}

func TestBroadcast_DropsFailedSubscriber(t *testing.T) {
	m := metrics.New(nil)
	r := topic.New(topic.WithMetrics(m))
	good, bad := &fakeSubscriber{}, &fakeSubscriber{fail: true}

	require.NoError(t, r.Subscribe("p1", good))
	require.NoError(t, r.Subscribe("p1", bad))

	res := r.Broadcast(context.Background(), "p1", []byte("first"))
	assert.Equal(t, topic.Result{Delivered: 1, Dropped: 1}, res)
	assert.Equal(t, 1, bad.closeCount())
	assert.Equal(t, 1, r.Subscribers("p1"))

	res = r.Broadcast(context.Background(), "p1", []byte("second"))
	assert.Equal(t, topic.Result{Delivered: 1}, res)
	assert.Len(t, good.messages(), 2)

	assert.Equal(t, float64(2), promtest.ToFloat64(m.Deliveries.WithLabelValues(metrics.ResultDelivered)))
	assert.Equal(t, float64(1), promtest.ToFloat64(m.Deliveries.WithLabelValues(metrics.ResultDropped)))
	assert.Equal(t, float64(1), promtest.ToFloat64(m.Subscribers))
}

func TestBroadcast_ConcurrentWithSubscribe(t *testing.T) {
	r := topic.New(topic.WithFanout(4))
	ctx := context.Background()

	const n = 50
	subs := make([]*fakeSubscriber, n)
	for i := range subs {
		subs[i] = &fakeSubscriber{}
	}

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_ = r.Subscribe("p1", subs[i])
		}(i)
		go func(i int) {
			defer wg.Done()
			r.Broadcast(ctx, "p1", []byte(fmt.Sprintf("msg-%d", i)))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, r.Subscribers("p1"))

	res := r.Broadcast(ctx, "p1", []byte("final"))
	assert.Equal(t, n, res.Delivered)
	for _, s := range subs {
		msgs := s.messages()
		require.NotEmpty(t, msgs)
		assert.Equal(t, []byte("final"), msgs[len(msgs)-1])
	}
}

func TestClose(t *testing.T) {
	m := metrics.New(nil)
	r := topic.New(topic.WithMetrics(m))
	a, b := &fakeSubscriber{}, &fakeSubscriber{}

	require.NoError(t, r.Subscribe("p1", a))
	require.NoError(t, r.Subscribe("p2", b))

	r.Close()
	r.Close()

	assert.Equal(t, 1, a.closeCount())
	assert.Equal(t, 1, b.closeCount())
	assert.Equal(t, []string{topic.ReasonShutdown}, a.reasons)
	assert.Empty(t, r.Topics())
	assert.Zero(t, promtest.ToFloat64(m.Subscribers))

	err := r.Subscribe("p1", &fakeSubscriber{})
	require.ErrorIs(t, err, topic.ErrClosed)
}
