// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package minitalk

import (
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/creachadair/taskgroup"
	"github.com/hashicorp/go-metrics"
)

// DefaultPreamble is written by a [Receiver] at the start of each session,
// before the first byte of the message.
const DefaultPreamble = "\nClient say : "

// A Receiver reconstructs messages sent by a [Sender], writing each byte to
// its output as soon as the byte is complete, and acknowledges every bit.
//
// Call Start with a channel to start the service routine. Once started, a
// receiver serves sessions one after another until Stop is called, the channel
// closes, or a fatal error occurs. Use Wait to wait for the receiver to exit
// and report its status.
type Receiver struct {
	out   io.Writer
	tasks *taskgroup.Group

	μ sync.Mutex

	ch       Channel
	err      error
	preamble string
	plog     NotificationLogger
	log      *slog.Logger
	sink     metrics.MetricSink
	onDone   func(peer PID, n int)
}

// NewReceiver constructs a new unstarted receiver that writes reconstructed
// messages to out.
func NewReceiver(out io.Writer) *Receiver {
	return &Receiver{out: out, preamble: DefaultPreamble}
}

// recvSession is the state of the session in progress on a receiver. It is
// owned by the service routine.
type recvSession struct {
	active bool // a session has started and not yet ended
	peer   PID  // the sender of the active session
	acc    byte // the byte being accumulated
	cursor int  // the bit being accumulated, or noBit between bytes
	n      int  // bytes emitted in this session
}

func (s *recvSession) reset() { *s = recvSession{cursor: noBit} }

// Start starts the receiver running on the given channel. Start does not
// block; call Wait to wait for the receiver to exit and report its status.
// It panics if r is already started.
func (r *Receiver) Start(ch Channel) *Receiver {
	r.μ.Lock()
	defer r.μ.Unlock()
	if r.ch != nil {
		panic("receiver is already started")
	}
	r.ch = ch
	r.err = nil
	r.tasks = taskgroup.New(nil)

	r.tasks.Go(func() error {
		var st recvSession
		st.reset()
		for {
			n, err := ch.Recv()
			if err == nil {
				rootMetrics.notifyRecv.Add(1)
				err = r.handle(ch, &st, n)
			}
			if err != nil {
				r.μ.Lock()
				r.err = err
				r.μ.Unlock()
				ch.Close()
				return nil
			}
		}
	})
	return r
}

// handle processes one inbound notification. Any error it reports is fatal.
func (r *Receiver) handle(ch Channel, st *recvSession, n Notification) error {
	r.μ.Lock()
	plog, log, sink, preamble := r.plog, r.logger(), orBlackhole(r.sink), r.preamble
	r.μ.Unlock()

	if plog != nil {
		plog(NotificationInfo{Kind: n.Kind, Peer: n.From, Sent: false})
	}
	if !n.Kind.Valid() {
		rootMetrics.notifyDropped.Add(1)
		log.Warn("dropped notification", "kind", n.Kind, "from", n.From)
		return nil
	}
	if err := ch.Alive(n.From); err != nil {
		return peerFailed(sink, n.From, err)
	}

	// A different sender in the middle of a session means the session peer
	// went away without finishing, or two senders are interleaved.
	if st.active && n.From != st.peer {
		if err := ch.Alive(st.peer); err != nil {
			log.Warn("session abandoned", "peer", st.peer, "bytes", st.n, "error", err)
			rootMetrics.sessionLost.Add(1)
			sink.IncrCounterWithLabels(MetricSessionAbandoned, 1, sinkLabels("receiver", st.peer))
			st.reset()
		} else {
			log.Warn("notification from another sender mid-session", "peer", st.peer, "from", n.From)
		}
	}

	if st.cursor == noBit {
		if !st.active {
			if _, err := io.WriteString(r.out, preamble); err != nil {
				return fmt.Errorf("write preamble: %w", err)
			}
			st.active = true
			st.peer = n.From
			log.Debug("session start", "peer", n.From)
		}
		st.cursor = firstBit
		st.acc = 0
	}
	st.acc = DecodeBit(st.acc, st.cursor, n.Kind)

	ack := Mark
	if st.cursor == 0 {
		if st.acc != 0 {
			if _, err := r.out.Write([]byte{st.acc}); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			st.n++
			rootMetrics.bytesRecv.Add(1)
			st.cursor = noBit
		} else {
			ack = Space
			peer, nb := st.peer, st.n
			st.reset()
			log.Debug("session complete", "peer", peer, "bytes", nb)
			rootMetrics.sessionDone.Add(1)
			sink.IncrCounterWithLabels(MetricSessionCompleted, 1, sinkLabels("receiver", peer))
			sink.IncrCounterWithLabels(MetricSessionBytes, float32(nb), sinkLabels("receiver", peer))
			r.sessionDone(peer, nb)
		}
	} else {
		st.cursor--
	}

	if plog != nil {
		plog(NotificationInfo{Kind: ack, Peer: n.From, Sent: true})
	}
	if err := ch.Notify(n.From, ack); err != nil {
		return peerFailed(sink, n.From, err)
	}
	rootMetrics.notifySent.Add(1)
	return nil
}

// peerFailed classifies err from probing or notifying pid, counting the
// peer as dead unless the local channel closed.
func peerFailed(sink metrics.MetricSink, pid PID, err error) error {
	err = peerError("receive", pid, err)
	if _, ok := err.(*DeadPeerError); ok {
		rootMetrics.deadPeers.Add(1)
		sink.IncrCounterWithLabels(MetricDeadPeerCount, 1, sinkLabels("receiver", pid))
	}
	return err
}

func (r *Receiver) sessionDone(peer PID, n int) {
	r.μ.Lock()
	f := r.onDone
	r.μ.Unlock()
	if f != nil {
		f(peer, n)
	}
}

// Metrics returns a metrics map for the receiver. It is safe for the caller
// to add additional metrics to the map while the receiver is active.
func (r *Receiver) Metrics() *expvar.Map { return rootMetrics.emap }

// Preamble sets the text written at the start of each session.
// It returns r to permit chaining.
func (r *Receiver) Preamble(s string) *Receiver {
	r.μ.Lock()
	defer r.μ.Unlock()
	r.preamble = s
	return r
}

// LogNotifications registers a callback that will be invoked for each
// notification exchanged with a sender. Passing nil disables logging.
// It returns r to permit chaining.
func (r *Receiver) LogNotifications(log NotificationLogger) *Receiver {
	r.μ.Lock()
	defer r.μ.Unlock()
	r.plog = log
	return r
}

// Logger sets the logger used for diagnostics. If it is not set, or log ==
// nil, diagnostics are discarded. It returns r to permit chaining.
func (r *Receiver) Logger(log *slog.Logger) *Receiver {
	r.μ.Lock()
	defer r.μ.Unlock()
	r.log = log
	return r
}

// Sink sets a metrics sink that receives labelled session counters.
// It returns r to permit chaining.
func (r *Receiver) Sink(ms metrics.MetricSink) *Receiver {
	r.μ.Lock()
	defer r.μ.Unlock()
	r.sink = ms
	return r
}

// OnSession registers a callback invoked synchronously each time a session
// completes, with the identity of the sender and the number of message bytes
// received. Passing nil removes the callback. It returns r to permit chaining.
func (r *Receiver) OnSession(f func(peer PID, n int)) *Receiver {
	r.μ.Lock()
	defer r.μ.Unlock()
	r.onDone = f
	return r
}

// Stop closes the channel and terminates the receiver. It blocks until the
// receiver has exited and returns its status.
func (r *Receiver) Stop() error {
	r.μ.Lock()
	ch := r.ch
	r.μ.Unlock()
	if ch != nil {
		ch.Close()
	}
	return r.Wait()
}

// Wait blocks until r terminates and reports the error that caused it to
// stop. If r is not running, or stopped because its channel closed, Wait
// returns nil. After Wait completes it is safe to restart r.
func (r *Receiver) Wait() error {
	r.μ.Lock()
	t := r.tasks
	r.μ.Unlock()
	if t == nil {
		return nil
	}
	t.Wait()

	r.μ.Lock()
	defer r.μ.Unlock()
	r.ch = nil
	r.tasks = nil
	if treatErrorAsSuccess(r.err) {
		return nil
	}
	return r.err
}

// logger returns the configured logger or a discarding one.
// The caller must hold r.μ.
func (r *Receiver) logger() *slog.Logger {
	if r.log == nil {
		return discardLogger
	}
	return r.log
}
