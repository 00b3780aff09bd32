// Package client owns the long-lived gate connection: dialing, the bounded
// fixed-delay retry policy, and dispatch of inbound frames into the session
// state. All mutable state belongs to a single event-loop goroutine fed by
// one queue, so frames, timer fires and caller actions are applied strictly
// one at a time with no locking.
package client

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/jidehen/smart-sdk-travel-agent/internal/chatsvc/decode"
	"github.com/jidehen/smart-sdk-travel-agent/internal/chatsvc/session"
	"github.com/jidehen/smart-sdk-travel-agent/internal/comm"
)

// State is the gate connection state.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

var (
	// ErrNotConnected is returned by Send outside the Open state. The
	// payload is never queued; a background reconnect is triggered instead.
	ErrNotConnected = errors.New("not connected to gate")

	// ErrRetriesExhausted is surfaced through the state hook once the
	// attempt bound is hit. No further automatic reconnection follows.
	ErrRetriesExhausted = errors.New("disconnected, retries exhausted")
)

const (
	defaultRetryDelay  = 5 * time.Second
	defaultMaxAttempts = 5
)

// Config carries the connection parameters. The zero values for RetryDelay
// and MaxAttempts select the stock policy: five attempts, five seconds of
// fixed (not exponential) delay between them.
type Config struct {
	Endpoint    string
	RetryDelay  time.Duration
	MaxAttempts int
	Dialer      Dialer
}

// Hooks are the subscription points exposed to the surrounding UI. They are
// invoked from the event loop, one at a time, and never again after
// Shutdown returns. A hook must not call back into the Client.
type Hooks struct {
	// OnEntry fires for every chat entry appended to the history.
	OnEntry func(comm.ChatEntry)
	// OnCards fires when the card snapshot is replaced or cleared.
	OnCards func([]comm.CardRecord)
	// OnState fires on every connection state change. err is non-nil only
	// for the terminal idle transition after retries are exhausted.
	OnState func(State, error)
}

// Status is a point-in-time view of the session, served synchronously by
// the event loop.
type Status struct {
	State   State
	Err     error
	Entries []comm.ChatEntry
	Cards   []comm.CardRecord
}

type evKind int

const (
	evConnect evKind = iota
	evSend
	evShutdown
	evStatus
	evDialed
	evFrame
	evLost
)

type event struct {
	kind   evKind
	gen    int
	conn   Conn
	err    error
	text   string
	reply  chan error
	status chan Status
}

// Client is the resilient duplex gate client.
type Client struct {
	cfg    Config
	hooks  Hooks
	events chan event
	done   chan struct{}

	// Everything below is owned by the run loop.
	state    State
	lastErr  error
	attempts int
	gen      int
	connID   string
	conn     Conn
	retry    *time.Timer
	retryC   <-chan time.Time
	store    *session.Store
	cards    *session.Snapshot
}

// New creates a client and starts its event loop. The connection stays Idle
// until Connect (or a Send miss) initiates it.
func New(cfg Config, hooks Hooks) *Client {
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.Dialer == nil {
		cfg.Dialer = wsDialer{}
	}
	c := &Client{
		cfg:    cfg,
		hooks:  hooks,
		events: make(chan event, 64),
		done:   make(chan struct{}),
		state:  StateIdle,
		store:  session.NewStore(),
		cards:  session.NewSnapshot(),
	}
	go c.run()
	return c
}

// Connect initiates a connection attempt. Valid from Idle and Closed;
// ignored in any other state.
func (c *Client) Connect() {
	c.post(event{kind: evConnect})
}

// Send delivers one user utterance to the gate. The current card snapshot
// is cleared before the send is attempted, successful or not. Outside the
// Open state the call fails synchronously with ErrNotConnected and triggers
// a background connection attempt; the payload is never queued.
func (c *Client) Send(text string) error {
	ev := event{kind: evSend, text: text, reply: make(chan error, 1)}
	if !c.post(ev) {
		return ErrNotConnected
	}
	select {
	case err := <-ev.reply:
		return err
	case <-c.done:
		return ErrNotConnected
	}
}

// Shutdown tears the client down: the pending retry timer is cancelled, the
// transport closed, and no hook fires after it returns, even for events
// already in flight. Repeated calls are no-ops.
func (c *Client) Shutdown() {
	ev := event{kind: evShutdown, reply: make(chan error, 1)}
	if !c.post(ev) {
		return
	}
	select {
	case <-ev.reply:
	case <-c.done:
	}
}

// Status reports the current connection state and session contents.
func (c *Client) Status() Status {
	ev := event{kind: evStatus, status: make(chan Status, 1)}
	if !c.post(ev) {
		return Status{State: StateIdle}
	}
	select {
	case st := <-ev.status:
		return st
	case <-c.done:
		return Status{State: StateIdle}
	}
}

// post enqueues an event unless the loop has already shut down.
func (c *Client) post(ev event) bool {
	select {
	case c.events <- ev:
		return true
	case <-c.done:
		return false
	}
}

func (c *Client) run() {
	for {
		select {
		case ev := <-c.events:
			if !c.handle(ev) {
				return
			}
		case <-c.retryC:
			c.retry, c.retryC = nil, nil
			log.Infof("retry timer fired, attempt %d/%d", c.attempts+1, c.cfg.MaxAttempts)
			c.connectAttempt()
		}
	}
}

// handle applies one event. Returns false when the loop must exit.
func (c *Client) handle(ev event) bool {
	switch ev.kind {
	case evConnect:
		if c.state != StateIdle && c.state != StateClosed {
			log.Debugf("connect ignored in state %s", c.state)
			return true
		}
		c.stopRetry()
		c.connectAttempt()

	case evSend:
		// Cards are scoped to the turn that produced them: clear before
		// the send is attempted so they cannot outlive a failed send.
		if c.cards.Len() > 0 {
			c.cards.Clear()
			c.emitCards(nil)
		}
		if c.state != StateOpen {
			if c.state == StateIdle || c.state == StateClosed {
				c.stopRetry()
				c.connectAttempt()
			}
			ev.reply <- ErrNotConnected
			return true
		}
		if err := c.conn.WriteFrame(ev.text); err != nil {
			log.Errorf("write to gate failed: %v", err)
			c.onConnLost(err)
			ev.reply <- err
			return true
		}
		c.emitEntry(c.store.Append(ev.text, comm.OriginatorUser))
		ev.reply <- nil

	case evShutdown:
		c.stopRetry()
		if c.conn != nil {
			c.conn.Close()
			c.conn = nil
		}
		c.gen++
		c.state = StateIdle // terminal; no hook after shutdown
		log.Infof("gate client shut down")
		close(c.done)
		ev.reply <- nil
		return false

	case evStatus:
		ev.status <- Status{
			State:   c.state,
			Err:     c.lastErr,
			Entries: c.store.Entries(),
			Cards:   c.cards.Cards(),
		}

	case evDialed:
		if ev.gen != c.gen {
			if ev.conn != nil {
				ev.conn.Close()
			}
			return true
		}
		if ev.err != nil {
			log.Warnf("gate dial failed (attempt %d/%d): %v", c.attempts, c.cfg.MaxAttempts, ev.err)
			c.onConnLost(ev.err)
			return true
		}
		c.conn = ev.conn
		c.attempts = 0
		log.Infof("gate connection %s open at %s", c.connID, c.cfg.Endpoint)
		c.setState(StateOpen, nil)
		c.startReader(ev.conn)

	case evFrame:
		if ev.gen != c.gen {
			return true
		}
		c.applyFrame(ev.text)

	case evLost:
		if ev.gen != c.gen {
			return true
		}
		log.Warnf("gate connection %s lost: %v", c.connID, ev.err)
		c.onConnLost(ev.err)
	}
	return true
}

// connectAttempt increments the attempt counter and starts an asynchronous
// dial for a fresh connection generation.
func (c *Client) connectAttempt() {
	c.gen++
	c.attempts++
	c.lastErr = nil
	c.connID = uuid.New().String()
	c.setState(StateConnecting, nil)

	gen := c.gen
	dialer := c.cfg.Dialer
	endpoint := c.cfg.Endpoint
	go func() {
		conn, err := dialer.Dial(context.Background(), endpoint)
		if !c.post(event{kind: evDialed, gen: gen, conn: conn, err: err}) && conn != nil {
			conn.Close()
		}
	}()
}

// startReader pumps inbound frames onto the event queue until the transport
// fails or the loop shuts down.
func (c *Client) startReader(conn Conn) {
	gen := c.gen
	go func() {
		for {
			frame, err := conn.ReadFrame()
			if err != nil {
				c.post(event{kind: evLost, gen: gen, err: err})
				return
			}
			if !c.post(event{kind: evFrame, gen: gen, text: frame}) {
				return
			}
		}
	}()
}

// onConnLost closes out the current connection and either schedules the
// fixed-delay retry or, past the attempt bound, settles into the terminal
// retries-exhausted idle state.
func (c *Client) onConnLost(err error) {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.gen++
	c.setState(StateClosed, nil)
	if c.attempts < c.cfg.MaxAttempts {
		log.Infof("reconnecting to gate in %s", c.cfg.RetryDelay)
		c.retry = time.NewTimer(c.cfg.RetryDelay)
		c.retryC = c.retry.C
		return
	}
	log.Errorf("gate unreachable after %d attempts, giving up: %v", c.attempts, err)
	c.lastErr = ErrRetriesExhausted
	c.setState(StateIdle, ErrRetriesExhausted)
}

func (c *Client) stopRetry() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry, c.retryC = nil, nil
	}
}

// applyFrame classifies one inbound frame and applies it to the session.
func (c *Client) applyFrame(frame string) {
	p := decode.Classify(frame)
	if p.Cards != nil {
		c.cards.Replace(p.Cards)
		c.emitCards(c.cards.Cards())
	}
	for _, text := range p.Texts {
		if p.Dedup {
			entry, ok := c.store.AppendUnique(text, comm.OriginatorAssistant)
			if !ok {
				continue
			}
			c.emitEntry(entry)
		} else {
			c.emitEntry(c.store.Append(text, comm.OriginatorAssistant))
		}
	}
}

func (c *Client) setState(s State, err error) {
	c.state = s
	if c.hooks.OnState != nil {
		c.hooks.OnState(s, err)
	}
}

func (c *Client) emitEntry(entry comm.ChatEntry) {
	if c.hooks.OnEntry != nil {
		c.hooks.OnEntry(entry)
	}
}

func (c *Client) emitCards(cards []comm.CardRecord) {
	if c.hooks.OnCards != nil {
		c.hooks.OnCards(cards)
	}
}
