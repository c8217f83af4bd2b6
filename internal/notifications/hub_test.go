package notifications

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"giftdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEventuallyTimeout = time.Second
	testPollInterval      = 10 * time.Millisecond
)

func adminSession(id uint) Session {
	return Session{Audience: AudienceAdmin, AdminID: id, Username: "desk"}
}

func memberSession(requestID uint) Session {
	return Session{Audience: AudienceMember, RequestID: requestID}
}

func decodeEvent(t *testing.T, raw []byte) models.Event {
	t.Helper()
	var ev models.Event
	require.NoError(t, json.Unmarshal(raw, &ev))
	return ev
}

func TestRoomKeys(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "request:42", MemberRoom(42))

	id, ok := ParseMemberRoom("request:42")
	assert.True(t, ok)
	assert.Equal(t, uint(42), id)

	for _, bad := range []string{"admin", "request:", "request:0", "request:x"} {
		_, ok := ParseMemberRoom(bad)
		assert.False(t, ok, bad)
	}
}

func TestHub_EmitReachesOnlyRoomMembers(t *testing.T) {
	hub := NewHub(nil)

	admin, err := hub.Register(adminSession(1), nil)
	require.NoError(t, err)
	member, err := hub.Register(memberSession(9), nil)
	require.NoError(t, err)
	require.NoError(t, hub.JoinRoom(admin, AdminRoom))
	require.NoError(t, hub.JoinRoom(member, MemberRoom(9)))

	assert.Equal(t, 1, hub.EmitLocal(AdminRoom, []byte(`{"type":"new-login-request"}`)))
	assert.Equal(t, 0, hub.EmitLocal(MemberRoom(10), []byte(`{}`)))

	select {
	case msg := <-admin.Send:
		assert.Equal(t, "new-login-request", decodeEvent(t, msg).Type)
	default:
		t.Fatal("admin did not receive the event")
	}
	assert.Empty(t, member.Send)
}

func TestHub_JoinIsIdempotentAndRequiresRegistration(t *testing.T) {
	hub := NewHub(nil)
	client, err := hub.Register(adminSession(1), nil)
	require.NoError(t, err)

	require.NoError(t, hub.JoinRoom(client, AdminRoom))
	require.NoError(t, hub.JoinRoom(client, AdminRoom))
	assert.Equal(t, 1, hub.RoomSize(AdminRoom))

	stranger := NewClient(hub, nil, adminSession(2))
	assert.ErrorIs(t, hub.JoinRoom(stranger, AdminRoom), ErrNotRegistered)

	hub.LeaveRoom(client, AdminRoom)
	hub.LeaveRoom(client, AdminRoom)
	assert.Equal(t, 0, hub.RoomSize(AdminRoom))
}

func TestHub_UnregisterDropsFromAllRooms(t *testing.T) {
	hub := NewHub(nil)
	client, err := hub.Register(adminSession(3), nil)
	require.NoError(t, err)
	require.NoError(t, hub.JoinRoom(client, AdminRoom))
	require.NoError(t, hub.JoinRoom(client, MemberRoom(5)))

	hub.UnregisterClient(client)
	hub.UnregisterClient(client)

	assert.Equal(t, 0, hub.RoomSize(AdminRoom))
	assert.Equal(t, 0, hub.RoomSize(MemberRoom(5)))
	_, open := <-client.Send
	assert.False(t, open, "send queue is closed on unregister")
	assert.False(t, client.TrySend([]byte("late")), "sending to a closed client is swallowed")
}

func TestHub_IdentityLimit(t *testing.T) {
	hub := NewHub(nil)
	for i := 0; i < maxConnsPerIdentity; i++ {
		_, err := hub.Register(memberSession(1), nil)
		require.NoError(t, err)
	}
	_, err := hub.Register(memberSession(1), nil)
	assert.ErrorIs(t, err, ErrIdentityLimit)

	_, err = hub.Register(memberSession(2), nil)
	assert.NoError(t, err)
}

func TestClient_TrySendBackpressure(t *testing.T) {
	hub := NewHub(nil)
	client := NewClient(hub, nil, adminSession(1))
	client.Send = make(chan []byte, 2)

	assert.True(t, client.TrySend([]byte("one")))
	assert.True(t, client.TrySend([]byte("two")))
	assert.False(t, client.TrySend([]byte("three")), "a full queue drops instead of blocking")

	assert.Equal(t, "two", string(<-client.Send))
	var notice struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(<-client.Send, &notice))
	assert.Equal(t, models.EventMessagesDropped, notice.Type)
	assert.Empty(t, client.Send)
}

func TestHub_ShutdownNotifiesAndRefusesNewClients(t *testing.T) {
	hub := NewHub(nil)
	client, err := hub.Register(adminSession(1), nil)
	require.NoError(t, err)
	require.NoError(t, hub.JoinRoom(client, AdminRoom))

	require.NoError(t, hub.Shutdown(context.Background()))

	msg, ok := <-client.Send
	require.True(t, ok)
	assert.Equal(t, models.EventServerShutdown, decodeEvent(t, msg).Type)
	_, ok = <-client.Send
	assert.False(t, ok)

	_, err = hub.Register(adminSession(2), nil)
	assert.ErrorIs(t, err, ErrServerLimit)
}

func TestHub_AdminPresenceFollowsSessions(t *testing.T) {
	presence := NewPresence(nil, PresenceConfig{OfflineGracePeriod: 20 * time.Millisecond})
	hub := NewHub(presence)
	defer func() { _ = hub.Shutdown(context.Background()) }()

	admin, err := hub.Register(adminSession(4), nil)
	require.NoError(t, err)
	_, err = hub.Register(memberSession(8), nil)
	require.NoError(t, err)

	assert.Equal(t, []uint{4}, presence.OnlineAdminIDs(context.Background()))

	hub.UnregisterClient(admin)
	assert.Eventually(t, func() bool {
		return !presence.IsOnline(context.Background(), 4)
	}, testEventuallyTimeout, testPollInterval)
}
