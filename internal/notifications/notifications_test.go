package notifications

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEventuallyTimeout = time.Second
	testPollInterval      = 10 * time.Millisecond
)

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func receive(c *Client) (string, bool) {
	select {
	case msg, ok := <-c.Send:
		if !ok {
			return "", false
		}
		return string(msg), true
	case <-time.After(testEventuallyTimeout):
		return "", false
	}
}

func TestUserChannel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		userID   uint
		expected string
	}{
		{1, "notifications:user:1"},
		{100, "notifications:user:100"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, UserChannel(tt.userID))
		id, ok := parseUserChannel(tt.expected)
		assert.True(t, ok)
		assert.Equal(t, tt.userID, id)
	}

	_, ok := parseUserChannel("notifications:user:abc")
	assert.False(t, ok)
	_, ok = parseUserChannel("chat:conv:1")
	assert.False(t, ok)
}

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.False(t, n.Enabled())
	assert.NoError(t, n.PublishUser(context.Background(), 1, "test payload"))
	assert.NoError(t, n.PublishBroadcast(context.Background(), "test payload"))
	assert.NoError(t, n.StartPatternSubscriber(context.Background(), func(string, string) {}))
}

func TestNotifier_StopsOnCancel(t *testing.T) {
	rdb := newRedis(t)
	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var received int32
	payloads := make(chan string, 2)
	require.NoError(t, n.StartPatternSubscriber(ctx, func(_ string, payload string) {
		atomic.AddInt32(&received, 1)
		payloads <- payload
	}))

	require.NoError(t, n.PublishUser(context.Background(), 3, "before-cancel"))
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&received) >= 1
	}, testEventuallyTimeout, testPollInterval)

	cancel()
	time.Sleep(20 * time.Millisecond)
	select {
	case <-payloads:
	default:
	}

	require.NoError(t, n.PublishUser(context.Background(), 3, "after-cancel"))
	assert.Never(t, func() bool {
		select {
		case payload := <-payloads:
			return payload == "after-cancel"
		default:
			return false
		}
	}, 10*testPollInterval, testPollInterval)
}

func TestNotifier_SubscriberRecoversFromPanic(t *testing.T) {
	rdb := newRedis(t)
	n := NewNotifier(rdb)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls int32
	require.NoError(t, n.StartPatternSubscriber(ctx, func(_, payload string) {
		atomic.AddInt32(&calls, 1)
		if payload == "boom" {
			panic("handler failure")
		}
	}))

	require.NoError(t, n.PublishUser(ctx, 1, "boom"))
	require.NoError(t, n.PublishUser(ctx, 1, "fine"))
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) == 2
	}, testEventuallyTimeout, testPollInterval)
}

func TestHub_RegisterAndBroadcast(t *testing.T) {
	hub := NewHub()
	a1, err := hub.Register(1, nil)
	require.NoError(t, err)
	a2, err := hub.Register(1, nil)
	require.NoError(t, err)
	b, err := hub.Register(2, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, hub.ConnectionCount())
	assert.True(t, hub.IsOnline(1))
	assert.False(t, hub.IsOnline(3))

	hub.Broadcast(1, "for-one")
	msg, ok := receive(a1)
	assert.True(t, ok)
	assert.Equal(t, "for-one", msg)
	msg, ok = receive(a2)
	assert.True(t, ok)
	assert.Equal(t, "for-one", msg)
	assert.Empty(t, b.Send)

	hub.BroadcastAll("everyone")
	msg, _ = receive(b)
	assert.Equal(t, "everyone", msg)
}

func TestHub_PerUserConnectionLimit(t *testing.T) {
	hub := NewHub()
	for i := 0; i < maxConnsPerUser; i++ {
		_, err := hub.Register(7, nil)
		require.NoError(t, err)
	}
	_, err := hub.Register(7, nil)
	assert.ErrorIs(t, err, ErrUserFull)

	_, err = hub.Register(8, nil)
	assert.NoError(t, err)
}

func TestHub_PresenceCallbacksFireOnFirstAndLastConnection(t *testing.T) {
	hub := NewHub()
	var online, offline int32
	hub.SetPresenceCallbacks(
		func(uint) { atomic.AddInt32(&online, 1) },
		func(uint) { atomic.AddInt32(&offline, 1) },
	)

	a, err := hub.Register(15, nil)
	require.NoError(t, err)
	b, err := hub.Register(15, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&online))

	hub.UnregisterClient(a)
	assert.Equal(t, int32(0), atomic.LoadInt32(&offline))
	assert.True(t, hub.IsOnline(15))

	hub.UnregisterClient(b)
	hub.UnregisterClient(b)
	assert.Equal(t, int32(1), atomic.LoadInt32(&offline))
	assert.False(t, hub.IsOnline(15))

	_, ok := <-b.Send
	assert.False(t, ok, "send channel is closed on unregister")
}

func TestHub_TrySendDropsWhenBufferFull(t *testing.T) {
	hub := NewHub()
	c, err := hub.Register(4, nil)
	require.NoError(t, err)

	for i := 0; i < sendBuffer+5; i++ {
		hub.Broadcast(4, "x")
	}
	assert.Len(t, c.Send, sendBuffer)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub := NewHub()
	c, err := hub.Register(9, nil)
	require.NoError(t, err)

	require.NoError(t, hub.Shutdown(context.Background()))
	require.NoError(t, hub.Shutdown(context.Background()))

	_, ok := <-c.Send
	assert.False(t, ok)
	assert.Equal(t, 0, hub.ConnectionCount())

	_, err = hub.Register(9, nil)
	assert.ErrorIs(t, err, ErrHubClosed)

	// Broadcasting after shutdown must not panic on the closed channel.
	hub.Broadcast(9, "late")
	hub.UnregisterClient(c)
}

func TestHub_StartWiringDeliversPublishedEvents(t *testing.T) {
	rdb := newRedis(t)
	n := NewNotifier(rdb)
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, hub.StartWiring(ctx, n))

	c, err := hub.Register(21, nil)
	require.NoError(t, err)
	other, err := hub.Register(22, nil)
	require.NoError(t, err)

	require.NoError(t, n.PublishUser(ctx, 21, "direct"))
	msg, ok := receive(c)
	require.True(t, ok)
	assert.Equal(t, "direct", msg)

	require.NoError(t, n.PublishBroadcast(ctx, "all"))
	msg, _ = receive(other)
	assert.Equal(t, "all", msg)
	msg, _ = receive(c)
	assert.Equal(t, "all", msg)
}

func TestPublisher_LocalDelivery(t *testing.T) {
	hub := NewHub()
	c, err := hub.Register(5, nil)
	require.NoError(t, err)

	p := NewPublisher(hub, NewNotifier(nil))
	p.ToUser(context.Background(), 5, EventFriendRequestReceived, map[string]any{"from": 2})

	msg, ok := receive(c)
	require.True(t, ok)
	var ev struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	require.NoError(t, json.Unmarshal([]byte(msg), &ev))
	assert.Equal(t, EventFriendRequestReceived, ev.Type)
	assert.EqualValues(t, 2, ev.Payload["from"])
}

func TestPublisher_ThroughRedisReachesHubOnce(t *testing.T) {
	rdb := newRedis(t)
	n := NewNotifier(rdb)
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, hub.StartWiring(ctx, n))

	c, err := hub.Register(6, nil)
	require.NoError(t, err)

	p := NewPublisher(hub, n)
	p.ToUser(ctx, 6, EventMessageReceived, map[string]string{"conversation_id": "1-6"})

	_, ok := receive(c)
	require.True(t, ok)
	assert.Never(t, func() bool { return len(c.Send) > 0 }, 10*testPollInterval, testPollInterval)
}

func TestPublisher_NilIsNoop(t *testing.T) {
	var p *Publisher
	p.ToUser(context.Background(), 1, EventPostCreated, nil)
	p.ToAll(context.Background(), EventPostCreated, nil)
}
