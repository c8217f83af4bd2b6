// Package console is the admin console client: it joins the admin room,
// keeps the pending queue in sync with the server, and submits decisions.
package console

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"giftdesk/internal/apiclient"
	"giftdesk/internal/middleware"
	"giftdesk/internal/models"
)

// State is the connection lifecycle of a console.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateJoined
	StateActive
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateJoined:
		return "joined"
	case StateActive:
		return "active"
	default:
		return "disconnected"
	}
}

// RetryNotice is shown after any failed decision.
const RetryNotice = "That action could not be completed. The queue has been refreshed, please try again."

// ErrDisconnected is returned when the socket drops.
var ErrDisconnected = errors.New("console: socket disconnected")

// Backend is the HTTP side of the console.
type Backend interface {
	ListPending(ctx context.Context) ([]models.Request, error)
	Resolve(ctx context.Context, id uint, decision models.Decision) (*apiclient.Resolution, error)
}

// Transport delivers admin room events. The channel closes on disconnect.
type Transport interface {
	Connect(ctx context.Context) (<-chan apiclient.Event, error)
}

// Options tunes reconnection.
type Options struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
	// OnChange is called after the queue, state or notice changes.
	OnChange func()
}

// Console composes the pending queue, navigation and socket of one admin
// session.
type Console struct {
	Pending *PendingPanel
	Nav     *NavPanel

	api    Backend
	socket Transport
	opts   Options

	mu     sync.RWMutex
	state  State
	notice string

	resync chan struct{}
}

// New returns a disconnected console for admin.
func New(api Backend, socket Transport, admin *models.Admin, opts Options) *Console {
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff < opts.MinBackoff {
		opts.MaxBackoff = 30 * time.Second
	}
	return &Console{
		Pending: NewPendingPanel(),
		Nav:     NewNavPanel(admin),
		api:     api,
		socket:  socket,
		opts:    opts,
		resync:  make(chan struct{}, 1),
	}
}

// State returns the current lifecycle state.
func (c *Console) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Notice returns the message to show above the queue, if any.
func (c *Console) Notice() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.notice
}

func (c *Console) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	c.changed()
}

func (c *Console) setNotice(msg string) {
	c.mu.Lock()
	c.notice = msg
	c.mu.Unlock()
	c.changed()
}

func (c *Console) changed() {
	if c.opts.OnChange != nil {
		c.opts.OnChange()
	}
}

// Resolve submits a decision for a rendered request. Any failure sets
// RetryNotice and schedules a re-pull of the queue.
func (c *Console) Resolve(ctx context.Context, id uint, decision models.Decision) error {
	if req, ok := c.Pending.Get(id); ok && !c.Nav.CanResolve(req.Kind) {
		return models.NewForbiddenError()
	}

	if _, err := c.api.Resolve(ctx, id, decision); err != nil {
		middleware.Logger.WarnContext(ctx, "resolve failed",
			slog.Uint64("request_id", uint64(id)), slog.String("error", err.Error()))
		c.setNotice(RetryNotice)
		c.requestResync()
		return err
	}

	c.Pending.Remove(id)
	c.setNotice("")
	return nil
}

func (c *Console) requestResync() {
	select {
	case c.resync <- struct{}{}:
	default:
	}
}

// Run keeps the console connected until ctx is done, reconnecting with
// exponential backoff. The backoff resets after a session reaches Active.
func (c *Console) Run(ctx context.Context) error {
	delay := c.opts.MinBackoff
	for {
		activated, err := c.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if activated {
			delay = c.opts.MinBackoff
		}
		middleware.Logger.WarnContext(ctx, "console disconnected, reconnecting",
			slog.String("error", err.Error()), slog.Duration("backoff", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > c.opts.MaxBackoff {
			delay = c.opts.MaxBackoff
		}
	}
}

// Session runs one connection: connect, wait for joined, reconcile, then
// apply live events until the socket drops or ctx is done.
func (c *Console) Session(ctx context.Context) error {
	_, err := c.session(ctx)
	return err
}

func (c *Console) session(ctx context.Context) (activated bool, err error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.setState(StateDisconnected)

	c.setState(StateConnecting)
	events, err := c.socket.Connect(ctx)
	if err != nil {
		return false, fmt.Errorf("connect: %w", err)
	}

	if err := waitJoined(ctx, events); err != nil {
		return false, err
	}
	c.setState(StateJoined)

	// Events sent before the join are lost, so the queue is pulled now and
	// nothing pushed is trusted until the pull lands.
	if err := c.reconcile(ctx, events); err != nil {
		return false, err
	}
	c.setState(StateActive)

	for {
		select {
		case <-ctx.Done():
			return true, ctx.Err()
		case <-c.resync:
			if err := c.reconcile(ctx, events); err != nil {
				return true, err
			}
		case ev, ok := <-events:
			if !ok {
				return true, ErrDisconnected
			}
			if c.apply(ev) {
				c.changed()
			}
		}
	}
}

func waitJoined(ctx context.Context, events <-chan apiclient.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return ErrDisconnected
			}
			if ev.Type == models.EventJoined {
				return nil
			}
		}
	}
}

// reconcile replaces the queue with a fresh pull and then applies, in
// order, every event that arrived while the pull was in flight.
func (c *Console) reconcile(ctx context.Context, events <-chan apiclient.Event) error {
	type pulled struct {
		items []models.Request
		err   error
	}
	done := make(chan pulled, 1)
	go func() {
		items, err := c.api.ListPending(ctx)
		done <- pulled{items: items, err: err}
	}()

	var buffered []apiclient.Event
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return ErrDisconnected
			}
			buffered = append(buffered, ev)
		case res := <-done:
			if res.err != nil {
				return fmt.Errorf("list pending: %w", res.err)
			}
			items := make([]models.Request, 0, len(res.items))
			for _, req := range res.items {
				if c.Nav.CanResolve(req.Kind) {
					items = append(items, req)
				}
			}
			c.Pending.Replace(items)
			for _, ev := range buffered {
				c.apply(ev)
			}
			c.changed()
			return nil
		}
	}
}

// apply folds one admin room event into the queue and reports whether the
// queue changed.
func (c *Console) apply(ev apiclient.Event) bool {
	switch ev.Type {
	case models.EventMessagesDropped:
		c.requestResync()
		return false
	case models.EventJoined, models.EventServerShutdown:
		return false
	}

	kind, adds, ok := models.EventKind(ev.Type)
	if !ok {
		middleware.Logger.Debug("ignoring unknown console event", slog.String("event", ev.Type))
		return false
	}

	if adds {
		if !c.Nav.CanResolve(kind) {
			return false
		}
		var req models.Request
		if err := ev.Decode(&req); err != nil || req.ID == 0 {
			middleware.Logger.Warn("malformed request event", slog.String("event", ev.Type))
			return false
		}
		if req.Status != "" && req.Status != models.RequestStatusPending {
			return false
		}
		return c.Pending.Insert(req)
	}

	var ref models.RequestRef
	if err := ev.Decode(&ref); err != nil {
		middleware.Logger.Warn("malformed removal event", slog.String("event", ev.Type))
		return false
	}
	return c.Pending.Remove(ref.ID)
}
