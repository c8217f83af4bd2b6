package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"testing"
	"time"

	"giftdesk/internal/featureflags"
	"giftdesk/internal/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type socketEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func dialAdmin(t *testing.T, addr, token string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/ws/admin", header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func dialMember(t *testing.T, addr string, id uint, token string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	u := fmt.Sprintf("ws://%s/api/ws/requests/%d?token=%s", addr, id, url.QueryEscape(token))
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if conn != nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

// readEvent returns the next event, skipping any whose type is in skip.
func readEvent(t *testing.T, conn *websocket.Conn, skip ...string) socketEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var ev socketEvent
		require.NoError(t, json.Unmarshal(raw, &ev), "frame: %s", raw)
		if !contains(skip, ev.Type) {
			return ev
		}
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func TestAdminSocket_JoinsThenReceivesNewRequests(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createAdmin(t, "desk_lead", models.AdminRoleSuper)
	addr := env.listen(t)

	conn := dialAdmin(t, addr, env.tokenFor(t, admin))
	joined := readEvent(t, conn)
	require.Equal(t, models.EventJoined, joined.Type)
	assert.Contains(t, string(joined.Payload), `"room":"admin"`)

	created := env.submit(t, map[string]any{"kind": "verification", "member_identifier": "member@example.com", "code": "424242"})

	ev := readEvent(t, conn)
	require.Equal(t, models.EventNewVerificationRequest, ev.Type)
	var req models.Request
	require.NoError(t, json.Unmarshal(ev.Payload, &req))
	assert.Equal(t, created.ID, req.ID)
	assert.Equal(t, "424242", req.Code)
	assert.NotContains(t, string(ev.Payload), created.Token, "owner token never reaches admins")
}

func TestAdminSocket_EveryConsoleSeesResolution(t *testing.T) {
	env := newTestEnv(t)
	first := env.createAdmin(t, "desk_one", models.AdminRoleSuper)
	second := env.createAdmin(t, "desk_two", models.AdminRoleScoped, models.SectionLoginRequests)
	addr := env.listen(t)

	connA := dialAdmin(t, addr, env.tokenFor(t, first))
	connB := dialAdmin(t, addr, env.tokenFor(t, second))
	readEvent(t, connA)
	readEvent(t, connB)

	created := env.submit(t, map[string]any{"kind": "login", "member_identifier": "member@example.com"})
	require.Equal(t, models.EventNewLoginRequest, readEvent(t, connA).Type)
	require.Equal(t, models.EventNewLoginRequest, readEvent(t, connB).Type)

	resp := env.do(t, http.MethodPost, fmt.Sprintf("/api/admin/requests/%d/resolve", created.ID),
		map[string]any{"decision": "approve"}, bearer(env.tokenFor(t, first))...)
	require.Equal(t, http.StatusOK, resp.Status)

	for _, conn := range []*websocket.Conn{connA, connB} {
		ev := readEvent(t, conn)
		require.Equal(t, models.EventUpdateLoginRequest, ev.Type)
		var res models.RequestResolution
		require.NoError(t, json.Unmarshal(ev.Payload, &res))
		assert.Equal(t, created.ID, res.ID)
		assert.Equal(t, models.RequestStatusApproved, res.Status)
		require.NotNil(t, res.ResolvedBy)
		assert.Equal(t, first.ID, *res.ResolvedBy)
	}

	var queue []models.Request
	env.do(t, http.MethodGet, "/api/admin/requests/pending", nil, bearer(env.tokenFor(t, second))...).decode(t, &queue)
	assert.Empty(t, queue)
}

func TestAdminSocket_ShowsUpInPresence(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createAdmin(t, "desk_lead", models.AdminRoleSuper)
	addr := env.listen(t)

	conn := dialAdmin(t, addr, env.tokenFor(t, admin))
	readEvent(t, conn)

	var online struct {
		AdminIDs []uint `json:"admin_ids"`
	}
	env.do(t, http.MethodGet, "/api/admin/online", nil, bearer(env.tokenFor(t, admin))...).decode(t, &online)
	assert.Contains(t, online.AdminIDs, admin.ID)
}

func TestAdminSocket_RejectsMissingCredentials(t *testing.T) {
	env := newTestEnv(t)
	addr := env.listen(t)

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/ws/admin", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminSocket_TicketIsSingleUse(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createAdmin(t, "desk_lead", models.AdminRoleSuper)
	addr := env.listen(t)

	var issued struct {
		Ticket string `json:"ticket"`
	}
	resp := env.do(t, http.MethodPost, "/api/ws/ticket", nil, bearer(env.tokenFor(t, admin))...)
	require.Equal(t, http.StatusOK, resp.Status)
	resp.decode(t, &issued)

	u := "ws://" + addr + "/api/ws/admin?ticket=" + url.QueryEscape(issued.Ticket)
	conn, httpResp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	_ = httpResp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	assert.Equal(t, models.EventJoined, readEvent(t, conn).Type)

	_, httpResp, err = websocket.DefaultDialer.Dial(u, nil)
	require.Error(t, err)
	require.NotNil(t, httpResp)
	defer func() { _ = httpResp.Body.Close() }()
	assert.Equal(t, http.StatusUnauthorized, httpResp.StatusCode)
}

func TestMemberSocket_ReceivesOutcome(t *testing.T) {
	env := newTestEnv(t)
	admin := env.createAdmin(t, "desk_lead", models.AdminRoleSuper)
	addr := env.listen(t)

	created := env.submit(t, map[string]any{"kind": "login", "member_identifier": "member@example.com"})
	conn, resp, err := dialMember(t, addr, created.ID, created.Token)
	require.NoError(t, err)
	_ = resp.Body.Close()

	joined := readEvent(t, conn)
	require.Equal(t, models.EventJoined, joined.Type)
	assert.Contains(t, string(joined.Payload), fmt.Sprintf(`"room":"request:%d"`, created.ID))

	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, fmt.Sprintf("/api/admin/requests/%d/resolve", created.ID),
		map[string]any{"decision": "deny"}, bearer(env.tokenFor(t, admin))...).Status)

	ev := readEvent(t, conn)
	require.Equal(t, models.EventRequestResolved, ev.Type)
	var res models.RequestResolution
	require.NoError(t, json.Unmarshal(ev.Payload, &res))
	assert.Equal(t, created.ID, res.ID)
	assert.Equal(t, models.RequestStatusDenied, res.Status)
	assert.Nil(t, res.ResolvedBy, "members never learn which admin decided")
}

func TestMemberSocket_AlreadyDecided(t *testing.T) {
	env := newTestEnv(t)
	addr := env.listen(t)

	created := env.submit(t, map[string]any{"kind": "login", "member_identifier": "member@example.com"})
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, fmt.Sprintf("/api/requests/%d/cancel", created.ID), nil,
		requestTokenHeader, created.Token).Status)

	conn, resp, err := dialMember(t, addr, created.ID, created.Token)
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.Equal(t, models.EventJoined, readEvent(t, conn).Type)
	ev := readEvent(t, conn)
	require.Equal(t, models.EventRequestResolved, ev.Type)
	assert.Contains(t, string(ev.Payload), `"status":"cancelled"`)
}

func TestMemberSocket_Refusals(t *testing.T) {
	env := newTestEnv(t)
	addr := env.listen(t)
	created := env.submit(t, map[string]any{"kind": "login", "member_identifier": "member@example.com"})

	tests := []struct {
		name   string
		id     uint
		token  string
		status int
	}{
		{"wrong token", created.ID, "not-the-owner", http.StatusForbidden},
		{"missing token", created.ID, "", http.StatusForbidden},
		{"unknown request", 9999, created.Token, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := dialMember(t, addr, tt.id, tt.token)
			require.Error(t, err)
			require.NotNil(t, resp)
			defer func() { _ = resp.Body.Close() }()
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestMemberSocket_OutsidePushRollout(t *testing.T) {
	env := newTestEnv(t)
	env.server.flags = featureflags.NewManager("member_push=off")
	addr := env.listen(t)
	created := env.submit(t, map[string]any{"kind": "login", "member_identifier": "member@example.com"})

	_, resp, err := dialMember(t, addr, created.ID, created.Token)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusGone, resp.StatusCode)

	// Ownership is still checked first.
	_, resp2, err := dialMember(t, addr, created.ID, "not-the-owner")
	require.Error(t, err)
	require.NotNil(t, resp2)
	defer func() { _ = resp2.Body.Close() }()
	assert.Equal(t, http.StatusForbidden, resp2.StatusCode)
}
