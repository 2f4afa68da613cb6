// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

//go:build linux

package channel

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"testing"
	"time"

	"github.com/creachadair/minitalk"
	"golang.org/x/sys/unix"
)

var _ minitalk.Channel = (*SignalChannel)(nil)

// TestMain re-executes the test binary with the notification signals
// blocked, so that tests can deliver real signals to the process.
func TestMain(m *testing.M) {
	if err := BlockSignals(); err != nil {
		fmt.Fprintf(os.Stderr, "BlockSignals: %v\n", err)
		os.Exit(1)
	}
	os.Exit(m.Run())
}

func TestBlockSignals(t *testing.T) {
	if got := os.Getenv(blockedEnv); got != "1" {
		t.Fatalf("Environment %s=%q, want 1", blockedEnv, got)
	}

	// Once re-executed, BlockSignals has nothing more to do.
	if err := BlockSignals(); err != nil {
		t.Fatalf("BlockSignals: unexpected error: %v", err)
	}

	// Threads started by the runtime inherit the mask.
	done := make(chan unix.Sigset_t)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		var cur unix.Sigset_t
		if err := unix.PthreadSigmask(unix.SIG_BLOCK, nil, &cur); err != nil {
			t.Errorf("PthreadSigmask: %v", err)
		}
		done <- cur
	}()
	cur := <-done
	if got, want := cur.Val[0]&notifySignals.Val[0], notifySignals.Val[0]; got != want {
		t.Errorf("Blocked signals: got %#x, want %#x", got, want)
	}
}

func TestSignalDelivery(t *testing.T) {
	ch, err := Signal()
	if err != nil {
		t.Fatalf("Signal: unexpected error: %v", err)
	}
	defer ch.Close()
	self := ch.Self()

	recv := func() minitalk.Notification {
		t.Helper()
		type result struct {
			n   minitalk.Notification
			err error
		}
		rc := make(chan result, 1)
		go func() {
			n, err := ch.Recv()
			rc <- result{n, err}
		}()
		select {
		case r := <-rc:
			if r.err != nil {
				t.Fatalf("Recv: unexpected error: %v", r.err)
			}
			return r.n
		case <-time.After(10 * time.Second):
			ch.Close()
			t.Fatal("Recv: timed out waiting for a signal")
		}
		return minitalk.Notification{}
	}

	// A signal sent to the process itself is reported with its own PID.
	for _, k := range []minitalk.Kind{minitalk.Mark, minitalk.Space, minitalk.Mark} {
		if err := ch.Notify(self, k); err != nil {
			t.Fatalf("Notify %v: unexpected error: %v", k, err)
		}
		got := recv()
		if want := (minitalk.Notification{Kind: k, From: self}); got != want {
			t.Errorf("Recv: got %v, want %v", got, want)
		}
	}
}

func TestSignalSet(t *testing.T) {
	want := uint64(1<<(unix.SIGUSR1-1) | 1<<(unix.SIGUSR2-1))
	if got := notifySignals.Val[0]; got != want {
		t.Errorf("Signal set: got %#x, want %#x", got, want)
	}
	for i, v := range notifySignals.Val[1:] {
		if v != 0 {
			t.Errorf("Signal set word %d: got %#x, want 0", i+1, v)
		}
	}
	if siginfoSize != 128 {
		t.Errorf("siginfo size: got %d, want 128", siginfoSize)
	}
}

func TestSignalUnblocked(t *testing.T) {
	t.Setenv(blockedEnv, "")
	if ch, err := Signal(); err == nil {
		ch.Close()
		t.Fatal("Signal: got nil error without blocked signals")
	}
}

func TestSignalChannel(t *testing.T) {
	t.Setenv(blockedEnv, "1")
	ch, err := Signal()
	if err != nil {
		t.Fatalf("Signal: unexpected error: %v", err)
	}

	self := minitalk.PID(os.Getpid())
	if got := ch.Self(); got != self {
		t.Errorf("Self: got %v, want %v", got, self)
	}
	if err := ch.Alive(self); err != nil {
		t.Errorf("Alive(self): unexpected error: %v", err)
	}
	for _, pid := range []minitalk.PID{0, -1} {
		if err := ch.Alive(pid); !errors.Is(err, unix.ESRCH) {
			t.Errorf("Alive(%v): got %v, want %v", pid, err, unix.ESRCH)
		}
		if err := ch.Notify(pid, minitalk.Mark); !errors.Is(err, unix.ESRCH) {
			t.Errorf("Notify(%v): got %v, want %v", pid, err, unix.ESRCH)
		}
	}
	if err := ch.Notify(self, minitalk.Kind(0)); err == nil {
		t.Error("Notify with invalid kind: got nil error")
	}

	if err := ch.Close(); err != nil {
		t.Errorf("Close: unexpected error: %v", err)
	}
	if n, err := ch.Recv(); !errors.Is(err, os.ErrClosed) {
		t.Errorf("Recv after close: got (%v, %v), want %v", n, err, os.ErrClosed)
	}
}
