package autosave

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/debemdeboas/drafthouse/internal/model"
)

const waitTimeout = time.Second

type persistReply struct {
	post *model.Post
	err  error
}

type persistCall struct {
	kind  Kind
	draft model.Draft
	reply chan persistReply
}

func (pc persistCall) ok(id model.PostID) {
	status := pc.draft.Status
	if pc.kind == KindPublish {
		status = model.StatusPublished
	}
	pc.reply <- persistReply{post: &model.Post{ID: id, Title: pc.draft.Title, Body: pc.draft.Body, Status: status}}
}

func (pc persistCall) fail(err error) {
	pc.reply <- persistReply{err: err}
}

// fakePersister hands every call to the test and blocks until it is answered.
type fakePersister struct {
	calls     chan persistCall
	active    atomic.Int32
	maxActive atomic.Int32
}

func newFakePersister() *fakePersister {
	return &fakePersister{calls: make(chan persistCall, 8)}
}

func (f *fakePersister) Save(ctx context.Context, d model.Draft) (*model.Post, error) {
	return f.handle(KindSave, d)
}

func (f *fakePersister) Publish(ctx context.Context, d model.Draft) (*model.Post, error) {
	return f.handle(KindPublish, d)
}

func (f *fakePersister) handle(kind Kind, d model.Draft) (*model.Post, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	reply := make(chan persistReply, 1)
	f.calls <- persistCall{kind: kind, draft: d, reply: reply}
	r := <-reply
	return r.post, r.err
}

type harness struct {
	clock  *clockwork.FakeClock
	p      *fakePersister
	c      *Controller
	events chan SaveEvent
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	h := &harness{
		clock:  clockwork.NewFakeClock(),
		p:      newFakePersister(),
		events: make(chan SaveEvent, 32),
	}

	opts = append([]Option{
		WithClock(h.clock),
		WithEventFunc(func(ev SaveEvent) { h.events <- ev }),
	}, opts...)
	h.c = New(h.p, opts...)
	t.Cleanup(h.c.Close)

	return h
}

func (h *harness) nextCall(t *testing.T) persistCall {
	t.Helper()
	select {
	case pc := <-h.p.calls:
		return pc
	case <-time.After(waitTimeout):
		t.Fatal("Expected a persistence call")
		return persistCall{}
	}
}

func (h *harness) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case pc := <-h.p.calls:
		t.Fatalf("Unexpected %s call with %+v", pc.kind, pc.draft)
	case <-time.After(50 * time.Millisecond):
	}
}

// event waits for the next SaveEvent and for the controller to finish
// handling the result that produced it.
func (h *harness) event(t *testing.T) SaveEvent {
	t.Helper()
	select {
	case ev := <-h.events:
		h.c.Status()
		return ev
	case <-time.After(waitTimeout):
		t.Fatal("Expected a save event")
		return SaveEvent{}
	}
}

func TestDebounceCoalescesBurst(t *testing.T) {
	h := newHarness(t)

	for i := 0; i < 10; i++ {
		if i > 0 {
			h.clock.Advance(time.Second)
		}
		require.NoError(t, h.c.SetBody(fmt.Sprintf("draft %d", i)))
	}
	// Last edit at t=9s.
	h.clock.Advance(4 * time.Second)
	h.expectNoCall(t)

	h.clock.Advance(time.Second)
	pc := h.nextCall(t)
	assert.Equal(t, KindSave, pc.kind)
	assert.Equal(t, "draft 9", pc.draft.Body)
	pc.ok("p1")

	ev := h.event(t)
	assert.Equal(t, TriggerDebounce, ev.Trigger)
	h.expectNoCall(t)
}

func TestTitleThenBodySavesOnce(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.c.SetTitle("Hello"))
	h.clock.Advance(time.Second)
	require.NoError(t, h.c.SetBody("World"))

	h.clock.Advance(4 * time.Second)
	h.expectNoCall(t)

	h.clock.Advance(time.Second)
	pc := h.nextCall(t)
	assert.Equal(t, "Hello", pc.draft.Title)
	assert.Equal(t, "World", pc.draft.Body)
	assert.Empty(t, pc.draft.ID)
	pc.ok("p1")

	ev := h.event(t)
	assert.NoError(t, ev.Err)
	assert.Equal(t, model.PostID("p1"), ev.ID)
	assert.Equal(t, model.PostID("p1"), h.c.Snapshot().ID)

	st := h.c.Status()
	assert.Equal(t, Idle, st.Phase)
	assert.False(t, st.Dirty)
	assert.Equal(t, h.clock.Now(), st.LastSaved)
}

func TestTitleAndBodyTogetherSaveOnceAsDraft(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.c.SetTitle("Hello"))
	require.NoError(t, h.c.SetBody("World"))

	h.clock.Advance(DefaultDebounce - time.Millisecond)
	h.expectNoCall(t)

	h.clock.Advance(time.Millisecond)
	pc := h.nextCall(t)
	assert.Equal(t, KindSave, pc.kind)
	assert.Equal(t, "Hello", pc.draft.Title)
	assert.Equal(t, "World", pc.draft.Body)
	assert.Equal(t, model.StatusDraft, pc.draft.Status)
	pc.ok("p1")

	h.event(t)
	assert.Equal(t, model.StatusDraft, h.c.Snapshot().Status)

	h.clock.Advance(DefaultBackstop)
	h.expectNoCall(t)
}

func TestEmptyDraftNeverSaves(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.c.SetTitle("Hi"))
	assert.Equal(t, PendingSave, h.c.Status().Phase)

	require.NoError(t, h.c.SetTitle(""))
	require.NoError(t, h.c.SetBody("<p><br></p>"))
	assert.Equal(t, Idle, h.c.Status().Phase)

	h.clock.Advance(time.Minute)
	h.expectNoCall(t)

	assert.ErrorIs(t, h.c.SaveNow(context.Background()), ErrEmptyDraft)
	h.expectNoCall(t)
}

func TestEditWhileSavingSchedulesOneFollowUp(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.c.SetTitle("Hello"))
	h.clock.Advance(DefaultDebounce)
	first := h.nextCall(t)
	assert.Equal(t, Saving, h.c.Status().Phase)

	require.NoError(t, h.c.SetBody("more"))
	require.NoError(t, h.c.SetBody("more text"))
	h.clock.Advance(time.Minute)
	h.expectNoCall(t)

	first.ok("p1")
	h.event(t)

	st := h.c.Status()
	assert.Equal(t, PendingSave, st.Phase)
	assert.True(t, st.Dirty)

	h.clock.Advance(DefaultDebounce)
	second := h.nextCall(t)
	assert.Equal(t, model.PostID("p1"), second.draft.ID)
	assert.Equal(t, "more text", second.draft.Body)
	second.ok("p1")
	h.event(t)

	h.expectNoCall(t)
	assert.Equal(t, 1, int(h.p.maxActive.Load()))
}

func TestBackstopFlushesDuringLongTyping(t *testing.T) {
	h := newHarness(t)

	// An edit every 4s keeps restarting the 5s debounce.
	for i := 0; i < 8; i++ {
		require.NoError(t, h.c.SetBody(fmt.Sprintf("para %d", i)))
		h.clock.Advance(4 * time.Second)
	}

	pc := h.nextCall(t)
	assert.Equal(t, "para 7", pc.draft.Body)
	pc.ok("p1")

	ev := h.event(t)
	assert.Equal(t, TriggerBackstop, ev.Trigger)
	assert.Equal(t, Idle, h.c.Status().Phase)
}

func TestFlushResetsBothTimers(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.c.SetBody("a"))
	h.clock.Advance(DefaultDebounce)
	h.nextCall(t).ok("p1")
	h.event(t)

	// The backstop armed at t=0 must not fire at t=30 for the new cycle.
	h.clock.Advance(20 * time.Second)
	for i := 0; i < 3; i++ {
		require.NoError(t, h.c.SetBody(fmt.Sprintf("b%d", i)))
		h.clock.Advance(4 * time.Second)
	}
	// t=37s, new backstop due at t=55s.
	h.expectNoCall(t)
	h.clock.Advance(time.Second)
	pc := h.nextCall(t)
	assert.Equal(t, "b2", pc.draft.Body)
	pc.ok("p1")
	assert.Equal(t, TriggerDebounce, h.event(t).Trigger)
}

func TestSaveNowCancelsDebounce(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.c.SetTitle("Hello"))
	h.clock.Advance(2 * time.Second)

	reply, err := h.c.request(KindSave)
	require.NoError(t, err)

	pc := h.nextCall(t)
	assert.Equal(t, KindSave, pc.kind)
	pc.ok("p1")
	require.NoError(t, <-reply)
	assert.Equal(t, TriggerManual, h.event(t).Trigger)

	h.clock.Advance(time.Minute)
	h.expectNoCall(t)
}

func TestManualRequestsQueueAndCoalesce(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.c.SetTitle("Hello"))
	h.clock.Advance(DefaultDebounce)
	first := h.nextCall(t)

	require.NoError(t, h.c.SetBody("World"))
	saveReply, err := h.c.request(KindSave)
	require.NoError(t, err)
	publishReply, err := h.c.request(KindPublish)
	require.NoError(t, err)
	anotherSave, err := h.c.request(KindSave)
	require.NoError(t, err)

	st := h.c.Status()
	assert.Equal(t, Saving, st.Phase)
	assert.True(t, st.Queued)
	h.expectNoCall(t)

	first.ok("p1")
	h.event(t)

	second := h.nextCall(t)
	assert.Equal(t, KindPublish, second.kind)
	assert.Equal(t, model.PostID("p1"), second.draft.ID)
	assert.Equal(t, "World", second.draft.Body)
	assert.Equal(t, model.StatusPublished, second.draft.Status)
	second.ok("p1")

	require.NoError(t, <-saveReply)
	require.NoError(t, <-publishReply)
	require.NoError(t, <-anotherSave)
	h.event(t)

	h.expectNoCall(t)
	assert.True(t, h.c.Snapshot().IsPublished())
	assert.Equal(t, 1, int(h.p.maxActive.Load()))
}

func TestPublishValidationMakesNoCall(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.c.SetTitle("Hello"))
	require.NoError(t, h.c.SetTags([]string{"go", "c++"}))

	err := h.c.Publish(context.Background())
	var verr *model.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, map[string]string{
		"content": "Content is required",
		"tags":    "Tags must be comma-separated words",
	}, verr.Fields)
	h.expectNoCall(t)

	st := h.c.Status()
	assert.Equal(t, PendingSave, st.Phase)
	assert.Equal(t, err, st.LastErr)

	// Autosave carries on with a plain save.
	h.clock.Advance(DefaultDebounce)
	pc := h.nextCall(t)
	assert.Equal(t, KindSave, pc.kind)
	assert.Equal(t, model.StatusDraft, pc.draft.Status)
	pc.ok("p1")
	h.event(t)
	assert.NoError(t, h.c.Status().LastErr)
}

func TestPublishedPostStaysPublished(t *testing.T) {
	h := newHarness(t, WithDraft(model.Draft{
		ID:     "p1",
		Title:  "Hello",
		Body:   "World",
		Status: model.StatusPublished,
	}))

	assert.False(t, h.c.Status().Dirty)

	require.NoError(t, h.c.Edit(func(d *model.Draft) {
		d.Body = "World, again"
		d.ID = "other"
		d.Status = model.StatusDraft
	}))

	h.clock.Advance(DefaultDebounce)
	pc := h.nextCall(t)
	assert.Equal(t, KindSave, pc.kind)
	assert.Equal(t, model.PostID("p1"), pc.draft.ID)
	assert.Equal(t, model.StatusPublished, pc.draft.Status)
	pc.ok("p1")
	h.event(t)

	assert.True(t, h.c.Snapshot().IsPublished())
}

func TestPublishMarksDraftPublished(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.c.SetTitle("Hello"))
	require.NoError(t, h.c.SetBody("World"))
	require.NoError(t, h.c.SetTags([]string{"go", "web dev"}))

	done := make(chan error, 1)
	go func() { done <- h.c.Publish(context.Background()) }()

	pc := h.nextCall(t)
	assert.Equal(t, KindPublish, pc.kind)
	assert.Equal(t, model.StatusPublished, pc.draft.Status)
	pc.ok("p9")

	require.NoError(t, <-done)
	snap := h.c.Snapshot()
	assert.Equal(t, model.PostID("p9"), snap.ID)
	assert.True(t, snap.IsPublished())

	ev := h.event(t)
	assert.Equal(t, KindPublish, ev.Kind)

	// Nothing pending after publish.
	h.clock.Advance(time.Minute)
	h.expectNoCall(t)
}

func TestFailureIsRetriedOnlyByBackstop(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("connection refused")

	require.NoError(t, h.c.SetTitle("Hello"))
	h.clock.Advance(DefaultDebounce)
	h.nextCall(t).fail(boom)

	ev := h.event(t)
	var serr *SaveError
	require.ErrorAs(t, ev.Err, &serr)
	assert.Equal(t, KindSave, serr.Op)
	assert.ErrorIs(t, ev.Err, boom)

	st := h.c.Status()
	assert.Equal(t, Idle, st.Phase)
	assert.True(t, st.Dirty)
	assert.ErrorIs(t, st.LastErr, boom)
	assert.Equal(t, "Hello", h.c.Snapshot().Title)

	// No immediate retry; the backstop is the only automatic trigger.
	h.clock.Advance(DefaultBackstop - time.Second)
	h.expectNoCall(t)

	h.clock.Advance(time.Second)
	pc := h.nextCall(t)
	assert.Equal(t, "Hello", pc.draft.Title)
	pc.fail(boom)
	assert.Equal(t, TriggerBackstop, h.event(t).Trigger)

	// The next edit starts a new debounce cycle.
	require.NoError(t, h.c.SetBody("World"))
	h.clock.Advance(DefaultDebounce)
	pc = h.nextCall(t)
	assert.Equal(t, "World", pc.draft.Body)
	pc.ok("p1")
	assert.Equal(t, TriggerDebounce, h.event(t).Trigger)

	st = h.c.Status()
	assert.NoError(t, st.LastErr)
	assert.False(t, st.Dirty)

	h.clock.Advance(time.Minute)
	h.expectNoCall(t)
}

func TestSaveNowReturnsSaveError(t *testing.T) {
	h := newHarness(t)
	boom := errors.New("500")

	require.NoError(t, h.c.SetTitle("Hello"))
	done := make(chan error, 1)
	go func() { done <- h.c.SaveNow(context.Background()) }()

	h.nextCall(t).fail(boom)
	err := <-done
	var serr *SaveError
	require.ErrorAs(t, err, &serr)
	assert.ErrorIs(t, err, boom)
}

func TestSaveNowHonoursContext(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.c.SetTitle("Hello"))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.c.SaveNow(ctx) }()

	pc := h.nextCall(t)
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// The call itself still completes and is recorded.
	pc.ok("p1")
	h.event(t)
	assert.Equal(t, model.PostID("p1"), h.c.Snapshot().ID)
}

func TestCloseDiscardsInFlightResult(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.c.SetTitle("Hello"))
	h.clock.Advance(DefaultDebounce)
	pc := h.nextCall(t)

	queued, err := h.c.request(KindSave)
	require.NoError(t, err)

	h.c.Close()
	assert.ErrorIs(t, <-queued, ErrClosed)

	pc.ok("p1")
	select {
	case ev := <-h.events:
		t.Fatalf("Unexpected event after close: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	assert.ErrorIs(t, h.c.SetBody("late"), ErrClosed)
	assert.ErrorIs(t, h.c.SaveNow(context.Background()), ErrClosed)
	assert.Empty(t, h.c.Snapshot().ID)
	assert.Equal(t, "Hello", h.c.Snapshot().Title)
}

func TestCloseCancelsTimers(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.c.SetTitle("Hello"))
	h.c.Close()
	h.c.Close()

	h.clock.Advance(time.Minute)
	h.expectNoCall(t)
}

func TestStatusFuncReportsTransitions(t *testing.T) {
	statuses := make(chan Status, 32)
	h := newHarness(t, WithStatusFunc(func(s Status) { statuses <- s }))

	require.NoError(t, h.c.SetTitle("Hello"))
	h.clock.Advance(DefaultDebounce)
	h.nextCall(t).ok("p1")
	h.event(t)

	var phases []Phase
	for len(statuses) > 0 {
		phases = append(phases, (<-statuses).Phase)
	}
	assert.Equal(t, []Phase{PendingSave, Saving, Idle}, phases)
}

func TestNeverMoreThanOneCallInFlight(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.c.SetTitle("Hello"))
	h.clock.Advance(DefaultDebounce)
	pc := h.nextCall(t)

	var replies []<-chan error
	for i := 0; i < 5; i++ {
		require.NoError(t, h.c.SetBody(fmt.Sprintf("body %d", i)))
		r, err := h.c.request(KindSave)
		require.NoError(t, err)
		replies = append(replies, r)
		h.clock.Advance(DefaultBackstop)
	}
	h.expectNoCall(t)

	pc.ok("p1")
	h.event(t)

	pc = h.nextCall(t)
	assert.Equal(t, "body 4", pc.draft.Body)
	pc.ok("p1")
	h.event(t)

	for _, r := range replies {
		assert.NoError(t, <-r)
	}
	h.expectNoCall(t)
	assert.Equal(t, 1, int(h.p.maxActive.Load()))
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "pending", PendingSave.String())
	assert.Equal(t, "saving", Saving.String())
}
