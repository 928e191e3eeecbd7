// Package reconcile keeps the local view of a processing session
// consistent with server truth despite unreliable push delivery. It owns
// the stream lifecycle and layers three independent recovery mechanisms:
// a liveness heartbeat, bounded-backoff reconnection, and a periodic
// authoritative poll that catches silently dropped terminal events.
package reconcile

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/agime-dev/agimectl/internal/api"
	applog "github.com/agime-dev/agimectl/internal/log"
	"github.com/agime-dev/agimectl/internal/stream"
	"github.com/agime-dev/agimectl/internal/transcript"
)

// SessionAPI is the authoritative-state surface the supervisor needs.
// *api.Client satisfies it.
type SessionAPI interface {
	GetSession(ctx context.Context, id string) (*api.SessionSnapshot, error)
	CancelSession(ctx context.Context, id string) error
}

// EventSource is a live event stream connection. *stream.Source
// satisfies it.
type EventSource interface {
	Next() bool
	Current() stream.Event
	Err() error
	Close()
}

// DialFunc opens a stream for a session, resuming past cursor when
// positive.
type DialFunc func(ctx context.Context, sessionID string, cursor uint64) (EventSource, error)

// Options tune the supervision timers. Zero values select the defaults
// used in production; tests shrink them.
type Options struct {
	HeartbeatAfter time.Duration // silence before synthetic liveness labels (15s)
	HeartbeatEvery time.Duration // synthetic label interval (5s)
	PollEvery      time.Duration // authoritative poll interval (5s)
	MaxAttempts    int           // reconnect ceiling (6)
	BackoffStep    time.Duration // per-attempt delay step (1s)
	BackoffCap     time.Duration // delay ceiling (5s)
}

func (o Options) withDefaults() Options {
	if o.HeartbeatAfter <= 0 {
		o.HeartbeatAfter = 15 * time.Second
	}
	if o.HeartbeatEvery <= 0 {
		o.HeartbeatEvery = 5 * time.Second
	}
	if o.PollEvery <= 0 {
		o.PollEvery = 5 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 6
	}
	if o.BackoffStep <= 0 {
		o.BackoffStep = time.Second
	}
	if o.BackoffCap <= 0 {
		o.BackoffCap = 5 * time.Second
	}
	return o
}

// Supervisor drives one session's stream until processing ends, locally
// or on the server. Create one per send/attach; it is not reusable.
type Supervisor struct {
	session  string
	consumer *stream.Consumer
	backend  SessionAPI
	dial     DialFunc
	opts     Options
	logger   *applog.Logger

	// Status receives supervisor-originated labels (liveness, disconnect,
	// completion). Optional; must not block.
	Status func(label string)
	// Update is invoked after the supervisor itself mutates the
	// transcript (merge or terminal reconciliation). Optional.
	Update func()

	mu         sync.Mutex
	processing bool
	attempts   int
	current    EventSource

	poll singleflight.Group
}

// New builds a supervisor for the consumer's session. logger may be nil.
func New(consumer *stream.Consumer, backend SessionAPI, dial DialFunc, opts Options, logger *applog.Logger) *Supervisor {
	return &Supervisor{
		session:  consumer.SessionID(),
		consumer: consumer,
		backend:  backend,
		dial:     dial,
		opts:     opts.withDefaults(),
		logger:   logger,
	}
}

// Processing reports whether the session is still locally believed to be
// executing.
func (s *Supervisor) Processing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processing
}

// Run attaches to the stream and supervises it until processing ends.
// It blocks; run it in a goroutine and watch Processing or the consumer
// hooks for progress. A context cancellation tears everything down.
func (s *Supervisor) Run(ctx context.Context) error {
	s.setProcessing(true)
	s.consumer.Touch()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.heartbeatLoop(ctx)
	go s.pollLoop(ctx)

	reconnect := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.Processing() {
			return nil
		}

		if reconnect {
			s.consumer.SetState(stream.StateReconnecting)
		} else {
			s.consumer.SetState(stream.StateConnecting)
		}

		src, err := s.dial(ctx, s.session, s.consumer.Cursor())
		if err != nil {
			s.logEvent(applog.LogEvent{Event: applog.EventStreamError, Error: err.Error()})
			if !s.backoff(ctx) {
				return nil
			}
			reconnect = true
			continue
		}

		if !s.register(src) {
			// Processing ended between dial and registration; the poll
			// or cancel path already settled the session.
			src.Close()
			return nil
		}
		s.consumer.SetState(stream.StateOpen)
		s.consumer.Touch()
		s.logEvent(applog.LogEvent{Event: applog.EventStreamConnected, Cursor: s.consumer.Cursor(), Attempt: s.attemptCount()})

		done := s.drain(src)
		s.release()
		src.Close()

		if done {
			s.finish()
			return nil
		}
		if !s.Processing() {
			// Cancel or the poll path already settled things.
			return nil
		}
		if src.Err() == nil {
			// Local close with processing still believed active: the
			// owner is tearing the view down.
			return nil
		}

		s.logEvent(applog.LogEvent{Event: applog.EventStreamError, Error: src.Err().Error()})
		if !s.backoff(ctx) {
			return nil
		}
		reconnect = true
	}
}

// drain feeds events to the consumer until the stream ends. Returns true
// when a done event terminated the turn.
func (s *Supervisor) drain(src EventSource) bool {
	for src.Next() {
		ev := src.Current()
		s.consumer.Apply(s.session, ev)
		// An applied event proves the connection healthy.
		s.resetAttempts()
		if ev.Type == stream.EventDone {
			return true
		}
		if !s.Processing() {
			return false
		}
	}
	return false
}

// backoff handles one transport failure. It returns true when the caller
// should reconnect, false when supervision is over (ceiling exceeded, or
// the authoritative state says processing already ended).
func (s *Supervisor) backoff(ctx context.Context) bool {
	for {
		attempt := s.incAttempts()
		if attempt > s.opts.MaxAttempts {
			s.giveUp()
			return false
		}
		s.consumer.SetState(stream.StateReconnecting)
		s.logEvent(applog.LogEvent{Event: applog.EventReconnectAttempt, Attempt: attempt, Cursor: s.consumer.Cursor()})

		delay := time.Duration(attempt) * s.opts.BackoffStep
		if delay > s.opts.BackoffCap {
			delay = s.opts.BackoffCap
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}

		snap, err := s.backend.GetSession(ctx, s.session)
		if err != nil {
			// Transient read failure: burn another attempt rather than
			// giving up on the whole session.
			s.logEvent(applog.LogEvent{Event: applog.EventStreamError, Error: err.Error()})
			continue
		}

		if snap.IsProcessing {
			// Catch up on anything persisted while we were dark, then
			// let the caller reopen with the resume cursor.
			if msgs := transcript.Normalize([]byte(snap.MessagesJSON)); len(msgs) > 0 {
				s.consumer.Transcript().Merge(msgs)
				s.notifyUpdate()
			}
			return true
		}

		s.reconcileTerminal(snap)
		return false
	}
}

// pollLoop is the fallback net: every PollEvery it checks authoritative
// state, single-flight guarded, and ends processing if the server says
// the turn is over but no done event ever arrived.
func (s *Supervisor) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.PollEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !s.Processing() {
			return
		}

		v, err, _ := s.poll.Do("session", func() (any, error) {
			return s.backend.GetSession(ctx, s.session)
		})
		if err != nil {
			// Transient poll failures are swallowed; the stream and
			// backoff paths remain primary.
			continue
		}
		snap := v.(*api.SessionSnapshot)

		if !snap.IsProcessing && s.Processing() && !s.consumer.DoneSeen() {
			s.logEvent(applog.LogEvent{Event: applog.EventPollReconciled, Cursor: s.consumer.Cursor()})
			s.stopStream()
			s.reconcileTerminal(snap)
			return
		}
	}
}

// heartbeatLoop surfaces a synthetic liveness label while the stream is
// silent. Purely local; it never touches the server.
func (s *Supervisor) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.HeartbeatEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if !s.Processing() {
			return
		}
		if time.Since(s.consumer.LastActivity()) >= s.opts.HeartbeatAfter {
			s.notifyStatus("Agent is still working...")
		}
	}
}

// Cancel asks the server to stop, then unconditionally ends local
// processing. Cancellation always wins over any in-flight reconnect or
// poll cycle; the server error, if any, is returned for display only.
func (s *Supervisor) Cancel(ctx context.Context) error {
	err := s.backend.CancelSession(ctx, s.session)

	s.logEvent(applog.LogEvent{Event: applog.EventCancelRequested})
	s.stopStream()
	s.consumer.Transcript().FinishStreaming()
	s.consumer.SetState(stream.StateClosedTerminal)
	s.notifyStatus("Cancelled")
	s.notifyUpdate()
	return err
}

// reconcileTerminal applies an authoritative not-processing snapshot.
// Idempotent: replacing with the same history or flipping an already
// settled tail changes nothing.
func (s *Supervisor) reconcileTerminal(snap *api.SessionSnapshot) {
	if msgs := transcript.Normalize([]byte(snap.MessagesJSON)); len(msgs) > 0 {
		s.consumer.Transcript().Replace(msgs)
	} else {
		s.consumer.Transcript().FinishStreaming()
	}
	s.consumer.SetState(stream.StateClosedTerminal)
	s.setProcessing(false)
	s.notifyStatus("Completed")
	s.notifyUpdate()
	s.logEvent(applog.LogEvent{Event: applog.EventProcessingDone, Status: "reconciled"})
}

// finish records the happy-path terminal transition after a done event.
func (s *Supervisor) finish() {
	s.setProcessing(false)
	s.logEvent(applog.LogEvent{Event: applog.EventProcessingDone, Status: "done", Cursor: s.consumer.Cursor()})
}

// giveUp ends local processing after the reconnect ceiling. Server-side
// execution may continue unobserved.
func (s *Supervisor) giveUp() {
	s.consumer.Transcript().FinishStreaming()
	s.consumer.SetState(stream.StateClosedError)
	s.setProcessing(false)
	s.notifyStatus("Stream disconnected")
	s.notifyUpdate()
	s.logEvent(applog.LogEvent{Event: applog.EventReconnectGaveUp, Attempt: s.attemptCount()})
}

// --- small state helpers ---

func (s *Supervisor) setProcessing(v bool) {
	s.mu.Lock()
	s.processing = v
	if !v {
		s.attempts = 0
	}
	s.mu.Unlock()
}

func (s *Supervisor) incAttempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return s.attempts
}

func (s *Supervisor) resetAttempts() {
	s.mu.Lock()
	s.attempts = 0
	s.mu.Unlock()
}

func (s *Supervisor) attemptCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// register installs a freshly dialed source as the current stream, but
// only while processing is still on. Checking both under one lock keeps
// a terminal reconcile that fires mid-dial from leaving the new source
// orphaned and the drain blocked forever.
func (s *Supervisor) register(src EventSource) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.processing {
		return false
	}
	s.current = src
	return true
}

func (s *Supervisor) release() {
	s.mu.Lock()
	s.current = nil
	s.mu.Unlock()
}

// stopStream ends processing and closes the current source in one
// critical section, so a dial racing with it either registers first and
// gets closed here, or loses the register check and closes itself.
func (s *Supervisor) stopStream() {
	s.mu.Lock()
	s.processing = false
	s.attempts = 0
	src := s.current
	s.current = nil
	s.mu.Unlock()
	if src != nil {
		src.Close()
	}
}

func (s *Supervisor) notifyStatus(label string) {
	if s.Status != nil {
		s.Status(label)
	}
}

func (s *Supervisor) notifyUpdate() {
	if s.Update != nil {
		s.Update()
	}
}

func (s *Supervisor) logEvent(ev applog.LogEvent) {
	if s.logger == nil {
		return
	}
	ev.SessionID = s.session
	_ = s.logger.Append(ev)
}
