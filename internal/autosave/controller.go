// Package autosave implements a debounced autosave controller for a single
// editing session.
//
// The controller owns the Draft for the lifetime of the session. Edits arm a
// trailing-edge debounce timer; a longer backstop timer flushes during long
// uninterrupted typing. At most one persistence call is in flight at any
// time: edits and manual actions that arrive while saving are folded into a
// single follow-up call.
//
// All state lives on one goroutine. Public methods hand work to it and are
// safe to call from anywhere except from inside a StatusFunc or EventFunc,
// which run on that goroutine.
package autosave

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/debemdeboas/drafthouse/internal/model"
)

const (
	DefaultDebounce = 5 * time.Second
	DefaultBackstop = 30 * time.Second
)

// Persister is the persistence collaborator. Both calls are upserts: a draft
// without an ID is created and the assigned ID is returned in the post.
type Persister interface {
	Save(ctx context.Context, d model.Draft) (*model.Post, error)
	Publish(ctx context.Context, d model.Draft) (*model.Post, error)
}

type Option func(*Controller)

func WithDebounce(d time.Duration) Option {
	return func(c *Controller) { c.debounce = d }
}

// WithBackstop sets the backstop interval. Zero disables the backstop.
func WithBackstop(d time.Duration) Option {
	return func(c *Controller) { c.backstop = d }
}

func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func WithStatusFunc(fn StatusFunc) Option {
	return func(c *Controller) { c.onStatus = fn }
}

func WithEventFunc(fn EventFunc) Option {
	return func(c *Controller) { c.onEvent = fn }
}

// WithDraft hydrates the session from a previously persisted post.
func WithDraft(d model.Draft) Option {
	return func(c *Controller) { c.draft = d.Clone() }
}

// WithContext sets the context passed to persistence calls. Closing the
// controller does not cancel it, so an in-flight call may run to completion.
func WithContext(ctx context.Context) Option {
	return func(c *Controller) { c.ctx = ctx }
}

type call struct {
	kind    Kind
	trigger Trigger
	waiters []chan<- error
}

func (cl *call) resolve(err error) {
	for _, w := range cl.waiters {
		w <- err
	}
	cl.waiters = nil
}

type result struct {
	call *call
	rev  uint64
	post *model.Post
	err  error
}

type Controller struct {
	persister Persister
	clock     clockwork.Clock
	debounce  time.Duration
	backstop  time.Duration
	logger    zerolog.Logger
	onStatus  StatusFunc
	onEvent   EventFunc
	ctx       context.Context

	cmds      chan func()
	results   chan result
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// Everything below is owned by the run loop.

	draft model.Draft
	phase Phase

	// rev counts edits; savedRev is the rev of the last successful call.
	rev      uint64
	savedRev uint64

	lastSaved time.Time
	lastErr   error

	debounceTimer clockwork.Timer
	backstopTimer clockwork.Timer

	inflight          *call
	queued            *call
	editedWhileSaving bool

	emitted Status
}

func New(p Persister, opts ...Option) *Controller {
	c := &Controller{
		persister: p,
		clock:     clockwork.NewRealClock(),
		debounce:  DefaultDebounce,
		backstop:  DefaultBackstop,
		logger:    zerolog.Nop(),
		ctx:       context.Background(),

		cmds:    make(chan func()),
		results: make(chan result),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.draft.Status == "" {
		c.draft.Status = model.StatusDraft
	}
	c.emitted = c.status()

	go c.run()
	return c
}

func (c *Controller) Edit(fn func(d *model.Draft)) error {
	return c.do(func() { c.applyEdit(fn) })
}

func (c *Controller) SetTitle(title string) error {
	return c.Edit(func(d *model.Draft) { d.Title = title })
}

func (c *Controller) SetBody(body string) error {
	return c.Edit(func(d *model.Draft) { d.Body = body })
}

func (c *Controller) SetTags(tags []string) error {
	tags = slices.Clone(tags)
	return c.Edit(func(d *model.Draft) { d.Tags = tags })
}

// SaveNow cancels a pending debounce and saves immediately, or right after
// the in-flight call when one is running. It returns the outcome of the call
// that carried the draft, or ErrEmptyDraft without calling out.
func (c *Controller) SaveNow(ctx context.Context) error {
	return c.manual(ctx, KindSave)
}

// Publish validates the draft, then saves it as published. A
// *model.ValidationError is returned without calling out.
func (c *Controller) Publish(ctx context.Context) error {
	return c.manual(ctx, KindPublish)
}

// Snapshot returns a copy of the current draft.
func (c *Controller) Snapshot() model.Draft {
	var d model.Draft
	if err := c.do(func() { d = c.draft.Clone() }); err != nil {
		// The loop has exited; its state is no longer written.
		return c.draft.Clone()
	}
	return d
}

func (c *Controller) Status() Status {
	var s Status
	if err := c.do(func() { s = c.status() }); err != nil {
		return c.emitted
	}
	return s
}

// Close cancels pending timers and ends the session. A call already in
// flight is left to finish but its result is dropped.
func (c *Controller) Close() {
	c.closeOnce.Do(func() { close(c.quit) })
	<-c.done
}

func (c *Controller) manual(ctx context.Context, kind Kind) error {
	reply, err := c.request(kind)
	if err != nil {
		return err
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// request registers a manual call and returns the channel its outcome is
// delivered on.
func (c *Controller) request(kind Kind) (<-chan error, error) {
	reply := make(chan error, 1)
	err := c.do(func() {
		cl := &call{kind: kind, trigger: TriggerManual, waiters: []chan<- error{reply}}
		if c.phase == Saving {
			c.enqueue(cl)
			return
		}
		c.startManual(cl)
	})
	if err != nil {
		return nil, err
	}
	return reply, nil
}

func (c *Controller) do(fn func()) error {
	ack := make(chan struct{})
	select {
	case c.cmds <- func() { defer close(ack); fn() }:
	case <-c.done:
		return ErrClosed
	}
	<-ack
	return nil
}

func (c *Controller) run() {
	defer close(c.done)

	for {
		select {
		case fn := <-c.cmds:
			fn()
		case <-timerC(c.debounceTimer):
			c.debounceTimer = nil
			c.autoFlush(TriggerDebounce)
		case <-timerC(c.backstopTimer):
			c.backstopTimer = nil
			c.autoFlush(TriggerBackstop)
		case res := <-c.results:
			c.complete(res)
		case <-c.quit:
			c.shutdown()
			return
		}

		c.emitStatus()
	}
}

func timerC(t clockwork.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}

func (c *Controller) applyEdit(fn func(*model.Draft)) {
	id, status := c.draft.ID, c.draft.Status
	fn(&c.draft)
	// Identity and status only change through persistence responses.
	c.draft.ID, c.draft.Status = id, status
	c.rev++

	switch {
	case c.phase == Saving:
		c.editedWhileSaving = true
	case c.draft.IsEmpty():
		c.stopTimers()
		c.phase = Idle
	default:
		c.schedule()
	}
}

// schedule restarts the debounce timer and arms the backstop if it is not
// already running.
func (c *Controller) schedule() {
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
	}
	c.debounceTimer = c.clock.NewTimer(c.debounce)

	if c.backstopTimer == nil && c.backstop > 0 {
		c.backstopTimer = c.clock.NewTimer(c.backstop)
	}
	c.phase = PendingSave
}

func (c *Controller) stopTimers() {
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}
	if c.backstopTimer != nil {
		c.backstopTimer.Stop()
		c.backstopTimer = nil
	}
}

func (c *Controller) autoFlush(trigger Trigger) {
	if c.phase == Saving {
		c.editedWhileSaving = true
		return
	}

	if !c.dirty() || c.draft.IsEmpty() {
		c.stopTimers()
		c.phase = Idle
		return
	}

	c.start(&call{kind: KindSave, trigger: trigger})
}

func (c *Controller) enqueue(cl *call) {
	if c.queued == nil {
		c.queued = cl
		return
	}

	// Publish carries the same payload as a save, so it absorbs it.
	if cl.kind == KindPublish {
		c.queued.kind = KindPublish
	}
	c.queued.waiters = append(c.queued.waiters, cl.waiters...)
}

func (c *Controller) startManual(cl *call) {
	var err error
	if cl.kind == KindPublish {
		err = model.ValidateForPublish(c.draft)
		if err != nil {
			c.lastErr = err
		}
	} else if c.draft.IsEmpty() {
		err = ErrEmptyDraft
	}

	if err != nil {
		c.logger.Debug().Err(err).Str("kind", string(cl.kind)).Msg("Manual save rejected")
		cl.resolve(err)
		return
	}

	c.start(cl)
}

func (c *Controller) start(cl *call) {
	c.stopTimers()

	snapshot := c.draft.Clone()
	if cl.kind == KindPublish {
		snapshot.Status = model.StatusPublished
	}
	rev := c.rev

	c.inflight = cl
	c.editedWhileSaving = false
	c.phase = Saving

	c.logger.Debug().
		Str("kind", string(cl.kind)).
		Str("trigger", string(cl.trigger)).
		Str("post_id", string(snapshot.ID)).
		Msg("Persisting draft")

	go func() {
		var post *model.Post
		var err error
		if cl.kind == KindPublish {
			post, err = c.persister.Publish(c.ctx, snapshot)
		} else {
			post, err = c.persister.Save(c.ctx, snapshot)
		}

		select {
		case c.results <- result{call: cl, rev: rev, post: post, err: err}:
		case <-c.done:
		}
	}()
}

func (c *Controller) complete(res result) {
	c.inflight = nil
	cl := res.call
	ev := SaveEvent{Kind: cl.kind, Trigger: cl.trigger, At: c.clock.Now()}

	if res.err != nil {
		ev.Err = &SaveError{Op: cl.kind, Err: res.err}
		c.lastErr = ev.Err

		c.logger.Warn().
			Err(res.err).
			Str("kind", string(cl.kind)).
			Str("post_id", string(c.draft.ID)).
			Msg("Draft save failed")
	} else {
		if res.post != nil {
			if c.draft.ID == "" {
				c.draft.ID = res.post.ID
			}
			if res.post.IsPublished() {
				c.draft.Status = model.StatusPublished
			}
		}
		if cl.kind == KindPublish {
			c.draft.Status = model.StatusPublished
		}

		c.savedRev = res.rev
		c.lastSaved = ev.At
		c.lastErr = nil
		ev.ID = c.draft.ID

		c.logger.Debug().
			Str("kind", string(cl.kind)).
			Str("post_id", string(c.draft.ID)).
			Msg("Draft saved")
	}

	cl.resolve(ev.Err)
	if c.onEvent != nil {
		c.onEvent(ev)
	}

	c.phase = Idle

	if q := c.queued; q != nil {
		c.queued = nil
		c.startManual(q)
		if c.phase == Saving {
			return
		}
	}

	switch {
	case !c.dirty() || c.draft.IsEmpty():
	case c.editedWhileSaving:
		c.schedule()
	case res.err != nil && c.backstop > 0:
		// Unsaved content after a failure is retried by the backstop only.
		c.backstopTimer = c.clock.NewTimer(c.backstop)
	}
	c.editedWhileSaving = false
}

func (c *Controller) shutdown() {
	c.stopTimers()

	if c.queued != nil {
		c.queued.resolve(ErrClosed)
		c.queued = nil
	}
	if c.inflight != nil {
		c.inflight.resolve(ErrClosed)
		c.inflight = nil
	}

	c.logger.Debug().Str("post_id", string(c.draft.ID)).Msg("Autosave session closed")
}

func (c *Controller) dirty() bool {
	return c.rev != c.savedRev
}

func (c *Controller) status() Status {
	return Status{
		Phase:     c.phase,
		LastSaved: c.lastSaved,
		LastErr:   c.lastErr,
		Dirty:     c.dirty(),
		Queued:    c.queued != nil,
	}
}

func (c *Controller) emitStatus() {
	s := c.status()
	if s.equal(c.emitted) {
		return
	}
	c.emitted = s

	if c.onStatus != nil {
		c.onStatus(s)
	}
}
