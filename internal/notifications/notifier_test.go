package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestNotifier_NilRedisIsNoop(t *testing.T) {
	n := NewNotifier(nil)
	assert.False(t, n.Enabled())
	assert.NoError(t, n.PublishRoom(context.Background(), AdminRoom, []byte("x")))
	assert.NoError(t, n.StartRoomSubscriber(context.Background(), func(string, []byte) {}))
}

func TestRoomChannel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "rooms:admin", RoomChannel(AdminRoom))
	assert.Equal(t, "rooms:request:3", RoomChannel(MemberRoom(3)))
}

func TestNotifier_SubscriberReceivesAndStopsOnCancel(t *testing.T) {
	_, rdb := newMiniredisClient(t)
	n := NewNotifier(rdb)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type msg struct {
		room    string
		payload string
	}
	received := make(chan msg, 4)
	require.NoError(t, n.StartRoomSubscriber(ctx, func(room string, payload []byte) {
		received <- msg{room, string(payload)}
	}))

	require.NoError(t, n.PublishRoom(context.Background(), MemberRoom(5), []byte("before-cancel")))
	select {
	case m := <-received:
		assert.Equal(t, "request:5", m.room)
		assert.Equal(t, "before-cancel", m.payload)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive the message")
	}

	cancel()
	time.Sleep(20 * time.Millisecond)

	_ = n.PublishRoom(context.Background(), MemberRoom(5), []byte("after-cancel"))
	assert.Never(t, func() bool {
		select {
		case m := <-received:
			return m.payload == "after-cancel"
		default:
			return false
		}
	}, 200*time.Millisecond, 10*time.Millisecond)
}
