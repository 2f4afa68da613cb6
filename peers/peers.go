// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package peers provides support code for managing and testing senders and
// receivers.
package peers

import (
	"bytes"
	"context"
	"sync"

	"github.com/creachadair/minitalk"
	"github.com/creachadair/minitalk/channel"
)

// Local is a sender and a receiver running as simulated processes on a
// shared in-memory fabric, suitable for testing.
type Local struct {
	Fabric   *channel.Fabric
	Sender   *minitalk.Sender
	Receiver *minitalk.Receiver

	SenderPID   minitalk.PID
	ReceiverPID minitalk.PID

	out *Buffer
}

// NewLocal creates a connected sender and receiver on a new fabric. The
// receiver writes its output to a buffer reported by the Output method.
func NewLocal() *Local {
	f := channel.NewFabric()
	sch, rch := f.Attach(), f.Attach()
	out := new(Buffer)
	return &Local{
		Fabric:      f,
		Sender:      minitalk.NewSender().Start(sch),
		Receiver:    minitalk.NewReceiver(out).Start(rch),
		SenderPID:   sch.Self(),
		ReceiverPID: rch.Self(),
		out:         out,
	}
}

// Send sends text from the sender to the receiver and waits for the session
// to complete.
func (p *Local) Send(ctx context.Context, text string) error {
	return p.Sender.Send(ctx, p.ReceiverPID, text)
}

// Output returns the receiver output written so far.
func (p *Local) Output() string { return p.out.String() }

// Stop shuts down both the sender and the receiver and blocks until both
// have exited.
func (p *Local) Stop() error {
	serr := p.Sender.Stop()
	rerr := p.Receiver.Stop()
	if serr != nil {
		return serr
	}
	return rerr
}

// Serve starts r on ch and runs it until ctx ends or r fails. When ctx ends,
// r is stopped. Serve reports the status of the receiver, so it returns nil
// if r was stopped by ctx.
func Serve(ctx context.Context, r *minitalk.Receiver, ch minitalk.Channel) error {
	sctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.Start(ch)
	go func() { <-sctx.Done(); r.Stop() }()
	return r.Wait()
}

// A Buffer is a bytes.Buffer that is safe for concurrent use.
type Buffer struct {
	μ   sync.Mutex
	buf bytes.Buffer
}

// Write implements io.Writer.
func (b *Buffer) Write(data []byte) (int, error) {
	b.μ.Lock()
	defer b.μ.Unlock()
	return b.buf.Write(data)
}

// String returns the contents of the buffer.
func (b *Buffer) String() string {
	b.μ.Lock()
	defer b.μ.Unlock()
	return b.buf.String()
}
