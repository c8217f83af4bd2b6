package server

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"giftdesk/internal/cache"
	"giftdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRequestEndpoint(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		body   map[string]any
		status int
	}{
		{"login", map[string]any{"kind": "login", "member_identifier": "member@example.com"}, http.StatusCreated},
		{"verification", map[string]any{"kind": "verification", "member_identifier": "member@example.com", "code": "123456", "device_label": "iPad"}, http.StatusCreated},
		{"unknown kind", map[string]any{"kind": "refund", "member_identifier": "member@example.com"}, http.StatusBadRequest},
		{"blank identifier", map[string]any{"kind": "login", "member_identifier": "  "}, http.StatusBadRequest},
		{"five digit code", map[string]any{"kind": "verification", "member_identifier": "member@example.com", "code": "12345"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, http.MethodPost, "/api/requests", tt.body)
			assert.Equal(t, tt.status, resp.Status, "body: %s", resp.Body)
			if tt.status == http.StatusCreated {
				var out createdRequest
				resp.decode(t, &out)
				assert.NotZero(t, out.ID)
				assert.Equal(t, models.RequestStatusPending, out.Status)
				assert.NotEmpty(t, out.Token)
			} else {
				assert.Equal(t, models.CodeValidation, resp.errorCode(t))
			}
		})
	}
}

func TestRequestStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)
	req := env.submit(t, map[string]any{"kind": "login", "member_identifier": "member@example.com"})

	resp := env.do(t, http.MethodGet, fmt.Sprintf("/api/requests/%d/status", req.ID), nil)
	require.Equal(t, http.StatusOK, resp.Status)
	var view struct {
		Status     models.RequestStatus `json:"status"`
		ResolvedAt *string              `json:"resolved_at"`
	}
	resp.decode(t, &view)
	assert.Equal(t, models.RequestStatusPending, view.Status)
	assert.Nil(t, view.ResolvedAt)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/requests/9999/status", nil).Status)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/requests/abc/status", nil).Status)
}

func TestCancelRequestEndpoint(t *testing.T) {
	env := newTestEnv(t)
	super := env.createAdmin(t, "desk_lead", models.AdminRoleSuper)
	req := env.submit(t, map[string]any{"kind": "verification", "member_identifier": "member@example.com", "code": "654321"})
	path := fmt.Sprintf("/api/requests/%d/cancel", req.ID)

	resp := env.do(t, http.MethodPost, path, nil, requestTokenHeader, "wrong-token")
	assert.Equal(t, http.StatusForbidden, resp.Status)
	assert.Equal(t, models.CodeForbidden, resp.errorCode(t))

	assert.Equal(t, http.StatusNotFound,
		env.do(t, http.MethodPost, "/api/requests/9999/cancel", nil, requestTokenHeader, req.Token).Status)

	resp = env.do(t, http.MethodPost, path, nil, requestTokenHeader, req.Token)
	require.Equal(t, http.StatusOK, resp.Status)
	var out struct {
		ID     uint                 `json:"id"`
		Status models.RequestStatus `json:"status"`
	}
	resp.decode(t, &out)
	assert.Equal(t, models.RequestStatusCancelled, out.Status)

	resp = env.do(t, http.MethodPost, path, nil, requestTokenHeader, req.Token)
	assert.Equal(t, http.StatusConflict, resp.Status)

	// An admin deciding a request the member already withdrew gets a conflict.
	resp = env.do(t, http.MethodPost, fmt.Sprintf("/api/admin/requests/%d/resolve", req.ID),
		map[string]any{"decision": "approve"}, bearer(env.tokenFor(t, super))...)
	assert.Equal(t, http.StatusConflict, resp.Status)
	assert.Equal(t, models.CodeAlreadyResolved, resp.errorCode(t))
}

func TestVerificationFlowOverHTTP(t *testing.T) {
	env := newTestEnv(t)
	reviewer := env.createAdmin(t, "verifier", models.AdminRoleScoped, models.SectionVerificationRequests)
	token := env.tokenFor(t, reviewer)

	req := env.submit(t, map[string]any{
		"kind":              "verification",
		"member_identifier": "jane.doe@example.com",
		"code":              "482913",
		"device_label":      "Pixel 8",
	})

	pending := env.do(t, http.MethodGet, "/api/admin/requests/pending", nil, bearer(token)...)
	require.Equal(t, http.StatusOK, pending.Status)
	var queue []models.Request
	pending.decode(t, &queue)
	require.Len(t, queue, 1)
	assert.Equal(t, req.ID, queue[0].ID)
	assert.Equal(t, "482913", queue[0].Code)

	resolve := env.do(t, http.MethodPost, fmt.Sprintf("/api/admin/requests/%d/resolve", req.ID),
		map[string]any{"decision": "approve"}, bearer(token)...)
	require.Equal(t, http.StatusOK, resolve.Status, "body: %s", resolve.Body)

	status := env.do(t, http.MethodGet, fmt.Sprintf("/api/requests/%d/status", req.ID), nil)
	var view struct {
		Status     models.RequestStatus `json:"status"`
		ResolvedAt *string              `json:"resolved_at"`
	}
	status.decode(t, &view)
	assert.Equal(t, models.RequestStatusApproved, view.Status)
	assert.NotNil(t, view.ResolvedAt)
	assert.True(t, env.redis.Exists(cache.StatusKey(req.ID)), "terminal statuses are cached for pollers")

	stored, err := env.server.approvals.ListHistory(context.Background(),
		&models.Admin{Role: models.AdminRoleSuper}, models.RequestStatusApproved, 10, 0)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	require.NotNil(t, stored[0].ResolvedBy)
	assert.Equal(t, reviewer.ID, *stored[0].ResolvedBy)
}

func TestMemberRoutesHonourBlacklist(t *testing.T) {
	env := newTestEnv(t)
	super := env.createAdmin(t, "desk_lead", models.AdminRoleSuper)

	// app.Test requests arrive from 0.0.0.0.
	resp := env.do(t, http.MethodPost, "/api/admin/blacklist", map[string]any{"ip": "0.0.0.0", "reason": "abuse"},
		bearer(env.tokenFor(t, super))...)
	require.Equal(t, http.StatusCreated, resp.Status, "body: %s", resp.Body)

	resp = env.do(t, http.MethodPost, "/api/requests", map[string]any{"kind": "login", "member_identifier": "member@example.com"})
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp = env.do(t, http.MethodDelete, "/api/admin/blacklist/0.0.0.0", nil, bearer(env.tokenFor(t, super))...)
	require.Equal(t, http.StatusNoContent, resp.Status)

	resp = env.do(t, http.MethodPost, "/api/requests", map[string]any{"kind": "login", "member_identifier": "member@example.com"})
	assert.Equal(t, http.StatusCreated, resp.Status)
}
