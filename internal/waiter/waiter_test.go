package waiter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"giftdesk/internal/apiclient"
	"giftdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedStatus answers polls from a script; the last entry repeats.
type scriptedStatus struct {
	mu     sync.Mutex
	script []models.RequestStatus
	err    error
	calls  int
}

func (s *scriptedStatus) Status(_ context.Context, id uint) (*apiclient.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	status := s.script[len(s.script)-1]
	if len(s.script) > 1 {
		s.script = s.script[1:]
	}
	return &apiclient.Status{ID: id, Status: status}, nil
}

func (s *scriptedStatus) setScript(statuses ...models.RequestStatus) {
	s.mu.Lock()
	s.script = statuses
	s.mu.Unlock()
}

type listenFunc func(ctx context.Context, id uint, token string) (<-chan apiclient.Event, error)

func (f listenFunc) Listen(ctx context.Context, id uint, token string) (<-chan apiclient.Event, error) {
	return f(ctx, id, token)
}

func resolvedEvent(t *testing.T, id uint, status models.RequestStatus) apiclient.Event {
	t.Helper()
	raw, err := json.Marshal(models.RequestResolution{ID: id, Status: status})
	require.NoError(t, err)
	return apiclient.Event{Type: models.EventRequestResolved, Payload: raw}
}

func fastOptions() Options {
	return Options{
		PollInterval:      10 * time.Millisecond,
		StillWaitingAfter: time.Hour,
		ReconnectDelay:    5 * time.Millisecond,
	}
}

func TestTransition_IsIdempotent(t *testing.T) {
	w := New(&scriptedStatus{}, nil, 1, "tok", Options{})

	assert.False(t, w.Transition(models.RequestStatusPending, SourcePoll))
	assert.Equal(t, PhaseWaiting, w.Phase())

	assert.True(t, w.Transition(models.RequestStatusApproved, SourcePush))
	assert.False(t, w.Transition(models.RequestStatusApproved, SourcePoll), "second delivery of the same status")
	assert.False(t, w.Transition(models.RequestStatusDenied, SourcePoll))

	res := w.finalResult()
	assert.Equal(t, OutcomeRedirect, res.Outcome)
	assert.Equal(t, SourcePush, res.Source)
	assert.Equal(t, "/success", res.RedirectURL)
	assert.Equal(t, PhaseDone, w.Phase())
}

func TestTransition_Outcomes(t *testing.T) {
	tests := []struct {
		status models.RequestStatus
		want   Outcome
	}{
		{models.RequestStatusApproved, OutcomeRedirect},
		{models.RequestStatusDenied, OutcomeRejected},
		{models.RequestStatusCancelled, OutcomeCancelled},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			w := New(&scriptedStatus{}, nil, 1, "tok", Options{})
			require.True(t, w.Transition(tt.status, SourcePoll))
			assert.Equal(t, tt.want, w.finalResult().Outcome)
		})
	}
}

func TestWait_PushBeatsPolling(t *testing.T) {
	api := &scriptedStatus{script: []models.RequestStatus{models.RequestStatusPending}}
	events := make(chan apiclient.Event, 4)
	push := listenFunc(func(ctx context.Context, id uint, token string) (<-chan apiclient.Event, error) {
		assert.Equal(t, uint(5), id)
		assert.Equal(t, "owner", token)
		return events, nil
	})

	opts := fastOptions()
	opts.PollInterval = time.Hour
	w := New(api, push, 5, "owner", opts)

	events <- apiclient.Event{Type: models.EventJoined}
	events <- resolvedEvent(t, 99, models.RequestStatusDenied)
	events <- resolvedEvent(t, 5, models.RequestStatusApproved)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	res, err := w.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRedirect, res.Outcome)
	assert.Equal(t, SourcePush, res.Source)
}

func TestWait_PollingSurvivesPushFailure(t *testing.T) {
	tests := []struct {
		name string
		push Listener
	}{
		{"no socket", nil},
		{"dial refused", listenFunc(func(context.Context, uint, string) (<-chan apiclient.Event, error) {
			return nil, &apiclient.Error{Status: http.StatusForbidden}
		})},
		{"push switched off", listenFunc(func(context.Context, uint, string) (<-chan apiclient.Event, error) {
			return nil, &apiclient.Error{Status: http.StatusGone}
		})},
		{"network error", listenFunc(func(context.Context, uint, string) (<-chan apiclient.Event, error) {
			return nil, errors.New("connection refused")
		})},
		{"silent socket", listenFunc(func(context.Context, uint, string) (<-chan apiclient.Event, error) {
			return make(chan apiclient.Event), nil
		})},
		{"dropping socket", listenFunc(func(context.Context, uint, string) (<-chan apiclient.Event, error) {
			ch := make(chan apiclient.Event)
			close(ch)
			return ch, nil
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &scriptedStatus{script: []models.RequestStatus{
				models.RequestStatusPending, models.RequestStatusPending, models.RequestStatusDenied,
			}}
			w := New(api, tt.push, 1, "tok", fastOptions())

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			res, err := w.Wait(ctx)
			require.NoError(t, err)
			assert.Equal(t, OutcomeRejected, res.Outcome)
			assert.Equal(t, SourcePoll, res.Source)
		})
	}
}

func TestPushRefused(t *testing.T) {
	assert.True(t, pushRefused(&apiclient.Error{Status: http.StatusForbidden}))
	assert.True(t, pushRefused(&apiclient.Error{Status: http.StatusNotFound}))
	assert.True(t, pushRefused(&apiclient.Error{Status: http.StatusGone}))
	assert.False(t, pushRefused(&apiclient.Error{Status: http.StatusServiceUnavailable}))
	assert.False(t, pushRefused(errors.New("connection reset")))
}

func TestWait_StillWaitingShownOnce(t *testing.T) {
	api := &scriptedStatus{script: []models.RequestStatus{models.RequestStatusPending}}
	var shown atomic.Int32
	opts := fastOptions()
	opts.StillWaitingAfter = 20 * time.Millisecond
	opts.OnStillWaiting = func() { shown.Add(1) }
	w := New(api, nil, 1, "tok", opts)

	done := make(chan Result, 1)
	go func() {
		res, err := w.Wait(context.Background())
		assert.NoError(t, err)
		done <- res
	}()

	require.Eventually(t, func() bool { return w.Phase() == PhaseStillWaiting }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), shown.Load())

	api.setScript(models.RequestStatusCancelled)
	select {
	case res := <-done:
		assert.Equal(t, OutcomeCancelled, res.Outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not finish")
	}
	assert.Equal(t, int32(1), shown.Load())
}

func TestWait_Errors(t *testing.T) {
	gone := &scriptedStatus{err: &apiclient.Error{Status: http.StatusNotFound, Code: models.CodeNotFound}}
	_, err := New(gone, nil, 3, "tok", fastOptions()).Wait(context.Background())
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, apiclient.StatusOf(err))

	flaky := &scriptedStatus{err: &apiclient.Error{Status: http.StatusServiceUnavailable}}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = New(flaky, nil, 3, "tok", fastOptions()).Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	flaky.mu.Lock()
	assert.Greater(t, flaky.calls, 1, "server errors keep polling")
	flaky.mu.Unlock()
}
