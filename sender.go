// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package minitalk

import (
	"context"
	"expvar"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"

	"github.com/creachadair/taskgroup"
	"github.com/hashicorp/go-metrics"
)

// SendState is the state of the sender state machine.
type SendState byte

const (
	SendIdle        SendState = iota // no session in progress
	SendSendingBit                   // issuing the notification for the current bit
	SendAwaitingAck                  // waiting for the receiver to acknowledge the current bit
	SendByteDone                     // all bits of the current byte are acknowledged
	SendFinished                     // the receiver acknowledged the whole message
)

func (s SendState) String() string {
	switch s {
	case SendIdle:
		return "IDLE"
	case SendSendingBit:
		return "SENDING_BIT"
	case SendAwaitingAck:
		return "AWAITING_ACK"
	case SendByteDone:
		return "BYTE_DONE"
	case SendFinished:
		return "FINISHED"
	default:
		return fmt.Sprintf("SEND_STATE:%d", byte(s))
	}
}

// A Sender transmits messages to a receiver one bit at a time. A zero-valued
// Sender is ready for use, but must not be copied after any method has been
// called.
//
// Call Start with a channel to start the service routine that collects
// acknowledgments, then call Send to transmit a message. At most one Send may
// be active at a time. Call Stop to close the channel and shut down.
type Sender struct {
	ch    Channel
	tasks *taskgroup.Group

	// The service routine delivers acknowledgments here. At most one bit is
	// outstanding, but a receiver may follow its last Mark with a Space.
	acks chan Notification

	μ sync.Mutex

	err   error // reported by the service routine
	dest  PID   // the destination of the active session, or 0
	state SendState
	plog  NotificationLogger
	log   *slog.Logger
	sink  metrics.MetricSink

	busy sync.Mutex // held by Send
}

// NewSender constructs a new unstarted sender.
func NewSender() *Sender { return new(Sender) }

// Start starts the sender running on the given channel. Start does not block.
// It panics if s is already started.
func (s *Sender) Start(ch Channel) *Sender {
	s.μ.Lock()
	defer s.μ.Unlock()
	if s.ch != nil {
		panic("sender is already started")
	}
	s.ch = ch
	s.acks = make(chan Notification, 2)
	s.err = nil
	s.state = SendIdle
	s.tasks = taskgroup.New(nil)

	acks := s.acks
	s.tasks.Go(func() error {
		defer close(acks)
		for {
			n, err := ch.Recv()
			if err != nil {
				s.μ.Lock()
				s.err = err
				s.μ.Unlock()
				return nil
			}
			rootMetrics.notifyRecv.Add(1)
			s.dispatch(acks, n)
		}
	})
	return s
}

// dispatch routes an inbound notification to the active session, if any.
// Notifications from anyone but the session peer are discarded.
func (s *Sender) dispatch(acks chan<- Notification, n Notification) {
	s.μ.Lock()
	dest, plog, log := s.dest, s.plog, s.logger()
	s.μ.Unlock()

	if plog != nil {
		plog(NotificationInfo{Kind: n.Kind, Peer: n.From, Sent: false})
	}
	if dest == 0 || n.From != dest || !n.Kind.Valid() {
		rootMetrics.notifyDropped.Add(1)
		log.Debug("dropped notification", "kind", n.Kind, "from", n.From, "session", dest)
		return
	}
	select {
	case acks <- n:
	default:
		// The send loop has not consumed earlier acknowledgments. A
		// well-behaved receiver never does this; keep the earlier values.
		rootMetrics.notifyDropped.Add(1)
		log.Warn("duplicate acknowledgment", "kind", n.Kind, "from", n.From)
	}
}

// Metrics returns a metrics map for the sender. It is safe for the caller to
// add additional metrics to the map while the sender is active.
func (s *Sender) Metrics() *expvar.Map { return rootMetrics.emap }

// LogNotifications registers a callback that will be invoked for each
// notification exchanged with the receiver, including notifications that are
// discarded. Passing nil disables logging. It returns s to permit chaining.
//
// Sent notifications are logged before they are issued; received ones are
// logged before they are delivered to the session.
func (s *Sender) LogNotifications(log NotificationLogger) *Sender {
	s.μ.Lock()
	defer s.μ.Unlock()
	s.plog = log
	return s
}

// Logger sets the logger used for diagnostics. If it is not set, or log ==
// nil, diagnostics are discarded. It returns s to permit chaining.
func (s *Sender) Logger(log *slog.Logger) *Sender {
	s.μ.Lock()
	defer s.μ.Unlock()
	s.log = log
	return s
}

// Sink sets a metrics sink that receives labelled session counters. If it is
// not set, or ms == nil, these metrics are discarded. It returns s to permit
// chaining.
func (s *Sender) Sink(ms metrics.MetricSink) *Sender {
	s.μ.Lock()
	defer s.μ.Unlock()
	s.sink = ms
	return s
}

// State reports the current state of the sender state machine.
func (s *Sender) State() SendState {
	s.μ.Lock()
	defer s.μ.Unlock()
	return s.state
}

// Stop closes the channel and terminates the sender. It blocks until the
// service routine has exited and returns its status. After Stop completes it
// is safe to restart the sender with a new channel.
func (s *Sender) Stop() error {
	s.μ.Lock()
	ch := s.ch
	s.μ.Unlock()
	if ch != nil {
		ch.Close()
	}
	return s.Wait()
}

// Wait blocks until the service routine of s exits, and reports the error
// that caused it to stop. If s is not running, or stopped because its channel
// closed, Wait returns nil.
func (s *Sender) Wait() error {
	s.μ.Lock()
	t := s.tasks
	s.μ.Unlock()
	if t == nil {
		return nil
	}
	t.Wait()

	s.μ.Lock()
	defer s.μ.Unlock()
	s.ch = nil
	s.tasks = nil
	if treatErrorAsSuccess(s.err) {
		return nil
	}
	return s.err
}

// Send transmits text to the receiver at dest, followed by a terminator, and
// blocks until the receiver acknowledges the whole message, ctx ends, or an
// error occurs. Before every bit Send verifies that dest is alive; if it is
// not, Send reports an error of concrete type *DeadPeerError.
//
// Send is safe to call from multiple goroutines, but sessions are serialized.
func (s *Sender) Send(ctx context.Context, dest PID, text string) error {
	if dest <= 0 {
		return &InvalidPIDError{Input: dest.String()}
	} else if strings.IndexByte(text, 0) >= 0 {
		return ErrEmbeddedZero
	}

	s.busy.Lock()
	defer s.busy.Unlock()

	s.μ.Lock()
	ch, acks := s.ch, s.acks
	if ch == nil {
		s.μ.Unlock()
		return fmt.Errorf("send: %w", net.ErrClosed)
	}
	s.dest = dest
	log, sink := s.logger(), orBlackhole(s.sink)
	s.μ.Unlock()

	defer func() {
		s.μ.Lock()
		defer s.μ.Unlock()
		s.dest = 0
		if s.state != SendFinished {
			s.state = SendIdle
		}
	}()

	log.Debug("session start", "dest", dest, "bytes", len(text))
	st := &sendSession{Sender: s, ch: ch, acks: acks, dest: dest, log: log}
	err := st.run(ctx, text)
	if err == nil {
		log.Debug("session complete", "dest", dest, "bytes", st.acked)
		sink.IncrCounterWithLabels(MetricSessionCompleted, 1, sinkLabels("sender", dest))
		sink.IncrCounterWithLabels(MetricSessionBytes, float32(st.acked), sinkLabels("sender", dest))
	} else if _, ok := err.(*DeadPeerError); ok {
		rootMetrics.deadPeers.Add(1)
		sink.IncrCounterWithLabels(MetricDeadPeerCount, 1, sinkLabels("sender", dest))
	}
	return err
}

// sendSession is the state of a single outbound session.
type sendSession struct {
	*Sender
	ch    Channel
	acks  <-chan Notification
	dest  PID
	log   *slog.Logger
	acked int // message bytes fully acknowledged
	bits  int // notifications issued in this session
}

// run sends each byte of text and then the terminator, one bit at a time.
// It reports nil when the receiver has acknowledged the whole message.
func (s *sendSession) run(ctx context.Context, text string) error {
	for i := 0; i <= len(text); i++ {
		var b byte // the terminator, after the last byte of text
		if i < len(text) {
			b = text[i]
		}
		done, err := s.sendByte(ctx, b)
		if err != nil {
			return err
		} else if done {
			return nil
		}
		if i < len(text) {
			s.acked++
			rootMetrics.bytesSent.Add(1)
		}
		s.setState(SendByteDone)
	}

	// Every bit was acknowledged with a Mark, including the last bit of the
	// terminator. A conforming receiver reports Space instead, but allow a
	// peer that sends both to finish the session.
	s.setState(SendAwaitingAck)
	for {
		n, err := s.await(ctx)
		if err != nil {
			return err
		} else if n.Kind == Space {
			s.setState(SendFinished)
			return nil
		}
	}
}

// sendByte sends the bits of b from most to least significant, waiting for
// an acknowledgment after each. It reports true if the receiver signaled
// that the session is complete.
func (s *sendSession) sendByte(ctx context.Context, b byte) (bool, error) {
	for cursor := firstBit; cursor >= 0; {
		s.setState(SendSendingBit)
		if err := s.ch.Alive(s.dest); err != nil {
			return false, peerError("send", s.dest, err)
		}
		if s.clearAck() {
			return true, nil
		}

		k := EncodeBit(b, cursor)
		s.logSent(k)
		if err := s.ch.Notify(s.dest, k); err != nil {
			return false, peerError("send", s.dest, err)
		}
		rootMetrics.notifySent.Add(1)
		s.bits++

		s.setState(SendAwaitingAck)
		n, err := s.await(ctx)
		if err != nil {
			return false, err
		}
		if n.Kind == Space {
			if b != 0 || cursor != 0 {
				s.log.Warn("session acknowledged early", "dest", s.dest, "byte", s.acked, "cursor", cursor)
			}
			s.setState(SendFinished)
			return true, nil
		}
		cursor--
	}
	return false, nil
}

// clearAck discards acknowledgments left over from a previous bit. It
// reports true if a discarded value ended the session. A Space that arrives
// before the first bit of the session was issued cannot acknowledge it, and
// is discarded.
func (s *sendSession) clearAck() bool {
	for {
		select {
		case n, ok := <-s.acks:
			if !ok {
				return false
			} else if n.Kind != Space {
				continue
			} else if s.bits == 0 {
				s.log.Warn("discarded stale acknowledgment", "dest", s.dest, "kind", n.Kind)
				rootMetrics.notifyDropped.Add(1)
				continue
			}
			s.log.Warn("session acknowledged early", "dest", s.dest, "byte", s.acked, "bits", s.bits)
			s.setState(SendFinished)
			return true
		default:
			return false
		}
	}
}

// await blocks until an acknowledgment arrives or ctx ends.
func (s *sendSession) await(ctx context.Context) (Notification, error) {
	select {
	case <-ctx.Done():
		return Notification{}, ctx.Err()
	case n, ok := <-s.acks:
		if !ok {
			s.μ.Lock()
			err := s.err
			s.μ.Unlock()
			return Notification{}, fmt.Errorf("awaiting acknowledgment: %w", err)
		}
		return n, nil
	}
}

func (s *sendSession) setState(st SendState) {
	s.μ.Lock()
	defer s.μ.Unlock()
	s.state = st
}

func (s *sendSession) logSent(k Kind) {
	s.μ.Lock()
	plog := s.plog
	s.μ.Unlock()
	if plog != nil {
		plog(NotificationInfo{Kind: k, Peer: s.dest, Sent: true})
	}
}

// logger returns the configured logger or a discarding one.
// The caller must hold s.μ.
func (s *Sender) logger() *slog.Logger {
	if s.log == nil {
		return discardLogger
	}
	return s.log
}

var discardLogger = slog.New(slog.DiscardHandler)
