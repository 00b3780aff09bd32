package client_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jidehen/smart-sdk-travel-agent/internal/chatsvc/client"
	"github.com/jidehen/smart-sdk-travel-agent/internal/chatsvc/decode"
	"github.com/jidehen/smart-sdk-travel-agent/internal/comm"
)

const walletFrame = `{"payment_methods":[{"card_id":"c1","type":"credit","brand":"Chase Freedom","last4":"1234","nickname":"Daily"}]}`

type fakeConn struct {
	mu        sync.Mutex
	wrote     []string
	failWrite bool
	in        chan string
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan string, 16), closed: make(chan struct{})}
}

func (f *fakeConn) ReadFrame() (string, error) {
	select {
	case frame := <-f.in:
		return frame, nil
	case <-f.closed:
		return "", errors.New("connection closed")
	}
}

func (f *fakeConn) WriteFrame(frame string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrite {
		return errors.New("broken pipe")
	}
	f.wrote = append(f.wrote, frame)
	return nil
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.wrote))
	copy(out, f.wrote)
	return out
}

// fakeDialer hands out queued connections; an exhausted queue or a nil
// entry fails the dial.
type fakeDialer struct {
	mu    sync.Mutex
	dials int
	queue []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, endpoint string) (client.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.queue) == 0 {
		return nil, errors.New("connection refused")
	}
	conn := d.queue[0]
	d.queue = d.queue[1:]
	if conn == nil {
		return nil, errors.New("connection refused")
	}
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type stateEvent struct {
	state client.State
	err   error
}

// recorder captures every hook invocation and exposes them on channels so
// tests can synchronize with the event loop.
type recorder struct {
	states  chan stateEvent
	entries chan comm.ChatEntry
	cards   chan []comm.CardRecord
}

func newRecorder() *recorder {
	return &recorder{
		states:  make(chan stateEvent, 64),
		entries: make(chan comm.ChatEntry, 64),
		cards:   make(chan []comm.CardRecord, 64),
	}
}

func (r *recorder) hooks() client.Hooks {
	return client.Hooks{
		OnEntry: func(e comm.ChatEntry) { r.entries <- e },
		OnCards: func(c []comm.CardRecord) { r.cards <- c },
		OnState: func(s client.State, err error) { r.states <- stateEvent{state: s, err: err} },
	}
}

func (r *recorder) waitState(t *testing.T, want client.State) stateEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-r.states:
			if ev.state == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func (r *recorder) waitEntry(t *testing.T) comm.ChatEntry {
	t.Helper()
	select {
	case e := <-r.entries:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a chat entry")
	}
	return comm.ChatEntry{}
}

func (r *recorder) waitCards(t *testing.T) []comm.CardRecord {
	t.Helper()
	select {
	case c := <-r.cards:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a card snapshot")
	}
	return nil
}

func newClient(d *fakeDialer, rec *recorder, retryDelay time.Duration) *client.Client {
	return client.New(client.Config{
		Endpoint:   "ws://gate.test/v1/ws",
		RetryDelay: retryDelay,
		Dialer:     d,
	}, rec.hooks())
}

func TestConnectOpensAndDispatchesFrames(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn}}
	rec := newRecorder()
	c := newClient(dialer, rec, time.Hour)
	defer c.Shutdown()

	c.Connect()
	rec.waitState(t, client.StateConnecting)
	rec.waitState(t, client.StateOpen)

	conn.in <- walletFrame
	cards := rec.waitCards(t)
	require.Len(t, cards, 1)
	assert.Equal(t, "c1", cards[0].CardID)

	announcement := rec.waitEntry(t)
	assert.Equal(t, decode.Announcement, announcement.Text)
	assert.Equal(t, comm.OriginatorAssistant, announcement.Originator)

	conn.in <- "plain unstructured text"
	raw := rec.waitEntry(t)
	assert.Equal(t, "plain unstructured text", raw.Text)
	assert.Greater(t, raw.Seq, announcement.Seq)

	st := c.Status()
	assert.Equal(t, client.StateOpen, st.State)
	assert.Len(t, st.Entries, 2)
	assert.Len(t, st.Cards, 1)
}

func TestContentWrappedDedupAcrossFrames(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn}}
	rec := newRecorder()
	c := newClient(dialer, rec, time.Hour)
	defer c.Shutdown()

	c.Connect()
	rec.waitState(t, client.StateOpen)

	conn.in <- `content='Hello there'`
	entry := rec.waitEntry(t)
	assert.Equal(t, "Hello there", entry.Text)

	// The identical extraction from a later frame is dropped silently.
	conn.in <- `content='Hello there'`
	conn.in <- `content='Something else'`
	next := rec.waitEntry(t)
	assert.Equal(t, "Something else", next.Text)

	st := c.Status()
	require.Len(t, st.Entries, 2)
}

func TestFramesAppliedInArrivalOrder(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn}}
	rec := newRecorder()
	c := newClient(dialer, rec, time.Hour)
	defer c.Shutdown()

	c.Connect()
	rec.waitState(t, client.StateOpen)

	frames := []string{"one", "two", "three", "four"}
	for _, f := range frames {
		conn.in <- f
	}
	for _, want := range frames {
		assert.Equal(t, want, rec.waitEntry(t).Text)
	}
}

func TestSendDeliversAndAppendsUserEntry(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn}}
	rec := newRecorder()
	c := newClient(dialer, rec, time.Hour)
	defer c.Shutdown()

	c.Connect()
	rec.waitState(t, client.StateOpen)

	require.NoError(t, c.Send("What payment methods do I have?"))
	assert.Equal(t, []string{"What payment methods do I have?"}, conn.written())

	entry := rec.waitEntry(t)
	assert.Equal(t, comm.OriginatorUser, entry.Originator)
	assert.Equal(t, "What payment methods do I have?", entry.Text)
}

func TestSendOutsideOpenFailsAndTriggersReconnect(t *testing.T) {
	dialer := &fakeDialer{} // every dial refused
	rec := newRecorder()
	c := newClient(dialer, rec, time.Hour)
	defer c.Shutdown()

	err := c.Send("hello")
	assert.ErrorIs(t, err, client.ErrNotConnected)

	// The payload is not queued, but a connection attempt starts.
	rec.waitState(t, client.StateConnecting)
	assert.Eventually(t, func() bool { return dialer.dialCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSendClearsCardSnapshotBeforeAttempt(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{conn}}
	rec := newRecorder()
	c := newClient(dialer, rec, time.Hour)
	defer c.Shutdown()

	c.Connect()
	rec.waitState(t, client.StateOpen)

	conn.in <- walletFrame
	require.Len(t, rec.waitCards(t), 1)
	rec.waitEntry(t)

	require.NoError(t, c.Send("book the second flight"))
	assert.Empty(t, rec.waitCards(t), "snapshot must be cleared on the next outbound turn")
	assert.Empty(t, c.Status().Cards)
}

func TestSendWriteFailureFollowsRetryPolicy(t *testing.T) {
	conn := newFakeConn()
	conn.failWrite = true
	dialer := &fakeDialer{queue: []*fakeConn{conn}}
	rec := newRecorder()
	c := newClient(dialer, rec, time.Hour)
	defer c.Shutdown()

	c.Connect()
	rec.waitState(t, client.StateOpen)

	err := c.Send("hello")
	require.Error(t, err)
	assert.NotErrorIs(t, err, client.ErrNotConnected)

	rec.waitState(t, client.StateClosed)
	assert.Empty(t, c.Status().Entries, "a failed send must not append a user entry")
}

func TestReconnectAfterConnectionLoss(t *testing.T) {
	first := newFakeConn()
	second := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{first, second}}
	rec := newRecorder()
	c := newClient(dialer, rec, 5*time.Millisecond)
	defer c.Shutdown()

	c.Connect()
	rec.waitState(t, client.StateOpen)

	first.Close()
	rec.waitState(t, client.StateClosed)
	rec.waitState(t, client.StateOpen)
	assert.Equal(t, 2, dialer.dialCount())

	second.in <- "back again"
	assert.Equal(t, "back again", rec.waitEntry(t).Text)
}

func TestRetriesExhaustedAfterFiveAttempts(t *testing.T) {
	dialer := &fakeDialer{} // every dial refused
	rec := newRecorder()
	c := newClient(dialer, rec, 5*time.Millisecond)
	defer c.Shutdown()

	c.Connect()

	ev := rec.waitState(t, client.StateIdle)
	assert.ErrorIs(t, ev.err, client.ErrRetriesExhausted)
	assert.Equal(t, 5, dialer.dialCount())

	// No sixth attempt is ever scheduled.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 5, dialer.dialCount())

	st := c.Status()
	assert.Equal(t, client.StateIdle, st.State)
	assert.ErrorIs(t, st.Err, client.ErrRetriesExhausted)
}

func TestShutdownCancelsPendingRetry(t *testing.T) {
	dialer := &fakeDialer{} // first dial fails, retry gets scheduled
	rec := newRecorder()
	c := newClient(dialer, rec, 50*time.Millisecond)

	c.Connect()
	rec.waitState(t, client.StateClosed)

	c.Shutdown()

	// The pending retry never fires and no callback trails the shutdown.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, 1, dialer.dialCount())
	select {
	case ev := <-rec.states:
		t.Fatalf("state callback after shutdown: %v", ev.state)
	default:
	}
}

func TestShutdownSuppressesInFlightFrame(t *testing.T) {
	conn := newFakeConn()
	conn.in <- "frame queued before teardown"
	dialer := &fakeDialer{queue: []*fakeConn{conn}}

	// Parking the loop inside the open transition keeps the queued frame
	// unread until after the shutdown request is enqueued.
	opened := make(chan struct{})
	release := make(chan struct{})
	var entryHooks atomic.Int32
	c := client.New(client.Config{
		Endpoint:   "ws://gate.test/v1/ws",
		RetryDelay: time.Hour,
		Dialer:     dialer,
	}, client.Hooks{
		OnEntry: func(comm.ChatEntry) { entryHooks.Add(1) },
		OnState: func(s client.State, _ error) {
			if s == client.StateOpen {
				close(opened)
				<-release
			}
		},
	})

	c.Connect()
	select {
	case <-opened:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the connection to open")
	}

	finished := make(chan struct{})
	go func() {
		c.Shutdown()
		close(finished)
	}()
	time.Sleep(20 * time.Millisecond) // let the shutdown request enqueue
	close(release)

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown did not complete")
	}

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, entryHooks.Load(), "no entry hook may fire once shutdown is processed")
}

func TestShutdownIsIdempotent(t *testing.T) {
	dialer := &fakeDialer{}
	rec := newRecorder()
	c := newClient(dialer, rec, time.Hour)

	c.Shutdown()
	c.Shutdown()

	assert.ErrorIs(t, c.Send("anything"), client.ErrNotConnected)
	assert.Equal(t, 0, dialer.dialCount())
}

func TestExhaustedSessionCanBeManuallyReconnected(t *testing.T) {
	conn := newFakeConn()
	dialer := &fakeDialer{queue: []*fakeConn{nil, nil, nil, nil, nil, conn}}
	rec := newRecorder()
	c := newClient(dialer, rec, 5*time.Millisecond)
	defer c.Shutdown()

	c.Connect()
	ev := rec.waitState(t, client.StateIdle)
	require.ErrorIs(t, ev.err, client.ErrRetriesExhausted)

	// A fresh caller-initiated attempt is still allowed from terminal idle.
	c.Connect()
	rec.waitState(t, client.StateOpen)
	assert.Equal(t, 6, dialer.dialCount())
}
