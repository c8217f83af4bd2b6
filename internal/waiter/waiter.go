// Package waiter is the member side of an approval: it waits for one
// request's outcome by listening on the member room and polling the status
// endpoint at the same time.
package waiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"giftdesk/internal/apiclient"
	"giftdesk/internal/middleware"
	"giftdesk/internal/models"
)

// Outcome is what the member sees once the request is decided.
type Outcome string

const (
	OutcomeRedirect  Outcome = "redirect"
	OutcomeRejected  Outcome = "rejected"
	OutcomeCancelled Outcome = "cancelled"
)

// Phase is the wait page's display state.
type Phase string

const (
	PhaseWaiting      Phase = "waiting"
	PhaseStillWaiting Phase = "still_waiting"
	PhaseDone         Phase = "done"
)

// Source names which event source delivered the outcome.
type Source string

const (
	SourcePush Source = "push"
	SourcePoll Source = "poll"
)

// Result is the decided outcome of a wait.
type Result struct {
	Outcome     Outcome
	Status      models.RequestStatus
	Source      Source
	RedirectURL string
}

// StatusAPI polls a request's status.
type StatusAPI interface {
	Status(ctx context.Context, id uint) (*apiclient.Status, error)
}

// Listener opens the member room for a request. The channel closes on
// disconnect.
type Listener interface {
	Listen(ctx context.Context, id uint, token string) (<-chan apiclient.Event, error)
}

// Options tunes a wait. Zero values take the defaults.
type Options struct {
	PollInterval      time.Duration
	StillWaitingAfter time.Duration
	ReconnectDelay    time.Duration
	SuccessURL        string
	// OnStillWaiting is called once when the request stays pending past
	// StillWaitingAfter.
	OnStillWaiting func()
}

func (o *Options) defaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = 3 * time.Second
	}
	if o.StillWaitingAfter <= 0 {
		o.StillWaitingAfter = 60 * time.Second
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 2 * time.Second
	}
	if o.SuccessURL == "" {
		o.SuccessURL = "/success"
	}
}

// Waiter waits for one request. It is single use.
type Waiter struct {
	api    StatusAPI
	push   Listener
	id     uint
	token  string
	opts   Options
	done   chan struct{}
	mu     sync.Mutex
	phase  Phase
	result Result
}

// New returns a waiter for request id owned by token. push may be nil, in
// which case only polling is used.
func New(api StatusAPI, push Listener, id uint, token string, opts Options) *Waiter {
	opts.defaults()
	return &Waiter{
		api:   api,
		push:  push,
		id:    id,
		token: token,
		opts:  opts,
		done:  make(chan struct{}),
		phase: PhaseWaiting,
	}
}

// Phase returns the current display state.
func (w *Waiter) Phase() Phase {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.phase
}

// Transition feeds one observed status into the wait. The first terminal
// status decides the outcome; every later delivery, from either source, is
// ignored. It reports whether this delivery decided the wait.
func (w *Waiter) Transition(status models.RequestStatus, source Source) bool {
	if !status.Terminal() {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.phase == PhaseDone {
		return false
	}

	w.phase = PhaseDone
	w.result = Result{Status: status, Source: source}
	switch status {
	case models.RequestStatusApproved:
		w.result.Outcome = OutcomeRedirect
		w.result.RedirectURL = w.opts.SuccessURL
	case models.RequestStatusDenied:
		w.result.Outcome = OutcomeRejected
	default:
		w.result.Outcome = OutcomeCancelled
	}
	close(w.done)
	return true
}

func (w *Waiter) markStillWaiting() {
	w.mu.Lock()
	if w.phase != PhaseWaiting {
		w.mu.Unlock()
		return
	}
	w.phase = PhaseStillWaiting
	w.mu.Unlock()

	if w.opts.OnStillWaiting != nil {
		w.opts.OnStillWaiting()
	}
}

// Wait blocks until the request is decided or ctx is done. Push failures
// never stop polling; only an unknown request ends the wait with an error.
func (w *Waiter) Wait(ctx context.Context) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if w.push != nil {
		go w.listen(ctx)
	}

	poll := time.NewTicker(w.opts.PollInterval)
	defer poll.Stop()
	still := time.NewTimer(w.opts.StillWaitingAfter)
	defer still.Stop()

	if err := w.poll(ctx); err != nil {
		return Result{}, err
	}

	for {
		select {
		case <-w.done:
			return w.finalResult(), nil
		case <-ctx.Done():
			select {
			case <-w.done:
				return w.finalResult(), nil
			default:
			}
			return Result{}, ctx.Err()
		case <-still.C:
			w.markStillWaiting()
		case <-poll.C:
			if err := w.poll(ctx); err != nil {
				return Result{}, err
			}
		}
	}
}

func (w *Waiter) finalResult() Result {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.result
}

func (w *Waiter) poll(ctx context.Context) error {
	st, err := w.api.Status(ctx, w.id)
	if err != nil {
		if apiclient.StatusOf(err) == http.StatusNotFound {
			return fmt.Errorf("request %d: %w", w.id, err)
		}
		if ctx.Err() == nil {
			middleware.Logger.WarnContext(ctx, "status poll failed",
				slog.Uint64("request_id", uint64(w.id)), slog.String("error", err.Error()))
		}
		return nil
	}
	w.Transition(st.Status, SourcePoll)
	return nil
}

// listen keeps a member room socket open until the wait ends. A refused
// handshake stops pushing for good; anything else reconnects.
func (w *Waiter) listen(ctx context.Context) {
	for {
		events, err := w.push.Listen(ctx, w.id, w.token)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			middleware.Logger.WarnContext(ctx, "member socket unavailable, polling only",
				slog.Uint64("request_id", uint64(w.id)), slog.String("error", err.Error()))
			if pushRefused(err) {
				return
			}
		} else {
			w.drain(events)
		}

		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-time.After(w.opts.ReconnectDelay):
		}
	}
}

// pushRefused reports a handshake the server will keep refusing: a bad
// token, an unknown request, or push switched off for this request.
func pushRefused(err error) bool {
	var apiErr *apiclient.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Status {
	case http.StatusForbidden, http.StatusNotFound, http.StatusGone:
		return true
	}
	return false
}

func (w *Waiter) drain(events <-chan apiclient.Event) {
	for ev := range events {
		if ev.Type != models.EventRequestResolved {
			continue
		}
		var res models.RequestResolution
		if err := ev.Decode(&res); err != nil || res.ID != w.id {
			continue
		}
		w.Transition(res.Status, SourcePush)
	}
}

// MemberSocket listens on the member room through the giftdesk API.
type MemberSocket struct {
	api *apiclient.Client
}

// NewMemberSocket returns a Listener backed by api.
func NewMemberSocket(api *apiclient.Client) *MemberSocket {
	return &MemberSocket{api: api}
}

// Listen dials the member room for id.
func (m *MemberSocket) Listen(ctx context.Context, id uint, token string) (<-chan apiclient.Event, error) {
	u, err := m.api.MemberSocketURL(id, token)
	if err != nil {
		return nil, err
	}
	return apiclient.Stream(ctx, u, nil)
}
