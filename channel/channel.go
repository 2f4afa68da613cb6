// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package channel provides implementations of the minitalk.Channel interface.
package channel

import (
	"errors"
	"net"
	"sync"

	"github.com/creachadair/minitalk"
)

// ErrNoProcess is reported by a [Fabric] endpoint for a PID that does not
// denote a live process.
var ErrNoProcess = errors.New("no such process")

// firstPID is the identity assigned to the first process attached to a
// fabric. Lower identities are never live, as on a real system where they
// belong to privileged processes.
const firstPID = 100

// A Fabric is an in-memory notification medium shared by simulated
// processes. Each attached [Endpoint] is a process with its own PID.
//
// Like operating system signals, a fabric does not queue notifications: if a
// notification arrives at an endpoint that already has one of the same kind
// pending, the two are coalesced and only the later sender is reported.
type Fabric struct {
	μ         sync.Mutex
	next      minitalk.PID
	procs     map[minitalk.PID]*Endpoint
	coalesced int
}

// NewFabric constructs an empty fabric.
func NewFabric() *Fabric {
	return &Fabric{next: firstPID, procs: make(map[minitalk.PID]*Endpoint)}
}

// Attach adds a new live process to f and returns its endpoint.
func (f *Fabric) Attach() *Endpoint {
	f.μ.Lock()
	defer f.μ.Unlock()
	e := &Endpoint{
		f:    f,
		pid:  f.next,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	f.next++
	f.procs[e.pid] = e
	return e
}

// Kill terminates the process with the given PID, as if it had been killed
// externally. It reports false if no such process exists.
func (f *Fabric) Kill(pid minitalk.PID) bool {
	f.μ.Lock()
	e, ok := f.procs[pid]
	f.μ.Unlock()
	if ok {
		e.Close()
	}
	return ok
}

// Coalesced reports the number of notifications that were merged with a
// pending notification of the same kind.
func (f *Fabric) Coalesced() int {
	f.μ.Lock()
	defer f.μ.Unlock()
	return f.coalesced
}

func (f *Fabric) lookup(pid minitalk.PID) *Endpoint {
	f.μ.Lock()
	defer f.μ.Unlock()
	return f.procs[pid]
}

func (f *Fabric) detach(pid minitalk.PID) {
	f.μ.Lock()
	defer f.μ.Unlock()
	delete(f.procs, pid)
}

func (f *Fabric) addCoalesced() {
	f.μ.Lock()
	defer f.μ.Unlock()
	f.coalesced++
}

// An Endpoint is a simulated process attached to a [Fabric]. It implements
// the [minitalk.Channel] interface. Closing an endpoint terminates the
// process: its PID is no longer alive.
type Endpoint struct {
	f    *Fabric
	pid  minitalk.PID
	wake chan struct{} // buffered, signaled when pending becomes non-empty
	done chan struct{} // closed when the endpoint closes

	μ       sync.Mutex
	pending []minitalk.Notification // at most one per kind, in arrival order
	closed  bool
}

// Self implements a method of the [minitalk.Channel] interface.
func (e *Endpoint) Self() minitalk.PID { return e.pid }

// Alive implements a method of the [minitalk.Channel] interface.
func (e *Endpoint) Alive(pid minitalk.PID) error {
	if e.isClosed() {
		return net.ErrClosed
	} else if e.f.lookup(pid) == nil {
		return ErrNoProcess
	}
	return nil
}

// Notify implements a method of the [minitalk.Channel] interface.
func (e *Endpoint) Notify(pid minitalk.PID, k minitalk.Kind) error {
	if e.isClosed() {
		return net.ErrClosed
	}
	dst := e.f.lookup(pid)
	if dst == nil {
		return ErrNoProcess
	}
	dst.deliver(minitalk.Notification{Kind: k, From: e.pid})
	return nil
}

func (e *Endpoint) deliver(n minitalk.Notification) {
	e.μ.Lock()
	defer e.μ.Unlock()
	if e.closed {
		return
	}
	for i, p := range e.pending {
		if p.Kind == n.Kind {
			e.pending[i].From = n.From
			e.f.addCoalesced()
			return
		}
	}
	e.pending = append(e.pending, n)
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// Recv implements a method of the [minitalk.Channel] interface.
func (e *Endpoint) Recv() (minitalk.Notification, error) {
	for {
		e.μ.Lock()
		if e.closed {
			e.μ.Unlock()
			return minitalk.Notification{}, net.ErrClosed
		} else if len(e.pending) != 0 {
			n := e.pending[0]
			e.pending = e.pending[1:]
			e.μ.Unlock()
			return n, nil
		}
		e.μ.Unlock()

		select {
		case <-e.wake:
		case <-e.done:
		}
	}
}

// Close implements a method of the [minitalk.Channel] interface.
func (e *Endpoint) Close() error {
	e.μ.Lock()
	defer e.μ.Unlock()
	if e.closed {
		return net.ErrClosed
	}
	e.closed = true
	e.pending = nil
	close(e.done)
	e.f.detach(e.pid)
	return nil
}

func (e *Endpoint) isClosed() bool {
	e.μ.Lock()
	defer e.μ.Unlock()
	return e.closed
}
