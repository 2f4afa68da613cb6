// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

//go:build linux

package channel

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"unsafe"

	"github.com/creachadair/minitalk"
	"golang.org/x/sys/unix"
)

// blockedEnv is set in the environment of a program re-executed by
// BlockSignals, so that the second execution does not repeat the exercise.
const blockedEnv = "MINITALK_SIGNALS_BLOCKED"

// notifySignals is the set of signals carrying notifications.
var notifySignals = func() (set unix.Sigset_t) {
	sigaddset(&set, unix.SIGUSR1)
	sigaddset(&set, unix.SIGUSR2)
	return set
}()

func sigaddset(set *unix.Sigset_t, sig unix.Signal) {
	w := uint(unsafe.Sizeof(set.Val[0]) * 8)
	n := uint(sig) - 1
	set.Val[n/w] |= 1 << (n % w)
}

// BlockSignals arranges for SIGUSR1 and SIGUSR2 to be blocked on every thread
// of the process, so that they remain pending until read by a [Signal]
// channel rather than being consumed by the Go runtime.
//
// The runtime starts threads with the signal mask the process had at exec
// time, and the mask cannot be changed for threads that already exist. So, on
// its first call BlockSignals blocks the signals on the current thread and
// re-executes the program with the same arguments; it does not return unless
// that fails. In the re-executed program BlockSignals returns nil at once.
// It must be called before anything else in main.
func BlockSignals() error {
	if os.Getenv(blockedEnv) == "1" {
		return nil
	}
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("locate executable: %w", err)
	}
	runtime.LockOSThread()
	if err := unix.PthreadSigmask(unix.SIG_BLOCK, &notifySignals, nil); err != nil {
		runtime.UnlockOSThread()
		return fmt.Errorf("block signals: %w", err)
	}
	env := append(os.Environ(), blockedEnv+"=1")
	err = unix.Exec(exe, os.Args, env)

	// Reaching here means the exec failed; restore the mask.
	unix.PthreadSigmask(unix.SIG_UNBLOCK, &notifySignals, nil)
	runtime.UnlockOSThread()
	return fmt.Errorf("re-execute %s: %w", exe, err)
}

// signalKind maps notification kinds to the signals that carry them.
var signalKind = map[minitalk.Kind]unix.Signal{
	minitalk.Mark:  unix.SIGUSR1,
	minitalk.Space: unix.SIGUSR2,
}

// SignalChannel is a [minitalk.Channel] that exchanges notifications with
// other processes using SIGUSR1 ([minitalk.Mark]) and SIGUSR2
// ([minitalk.Space]). Inbound signals are read from a signalfd, which reports
// the identity of the sending process.
type SignalChannel struct {
	self minitalk.PID
	f    *os.File

	μ   sync.Mutex
	buf [siginfoSize]byte
}

// The size of a struct signalfd_siginfo, and the offsets of the fields used.
const (
	siginfoSize  = int(unsafe.Sizeof(unix.SignalfdSiginfo{}))
	siginfoSigno = int(unsafe.Offsetof(unix.SignalfdSiginfo{}.Signo))
	siginfoPid   = int(unsafe.Offsetof(unix.SignalfdSiginfo{}.Pid))
)

// Signal constructs a channel for the current process using operating system
// signals. [BlockSignals] must have been called first, or inbound signals
// will be lost to the runtime.
func Signal() (*SignalChannel, error) {
	if os.Getenv(blockedEnv) != "1" {
		return nil, errors.New("notification signals are not blocked (call BlockSignals first)")
	}
	fd, err := unix.Signalfd(-1, &notifySignals, unix.SFD_NONBLOCK|unix.SFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("signalfd: %w", err)
	}
	return &SignalChannel{
		self: minitalk.PID(os.Getpid()),
		f:    os.NewFile(uintptr(fd), "signalfd"),
	}, nil
}

// Self implements a method of the [minitalk.Channel] interface.
func (c *SignalChannel) Self() minitalk.PID { return c.self }

// Alive implements a method of the [minitalk.Channel] interface. A process
// exists and can be notified if signal 0 can be sent to it.
func (c *SignalChannel) Alive(pid minitalk.PID) error {
	if pid <= 0 {
		return unix.ESRCH
	}
	return unix.Kill(int(pid), 0)
}

// Notify implements a method of the [minitalk.Channel] interface.
func (c *SignalChannel) Notify(pid minitalk.PID, k minitalk.Kind) error {
	sig, ok := signalKind[k]
	if !ok {
		return fmt.Errorf("invalid notification kind %v", k)
	} else if pid <= 0 {
		// Kill treats these specially, as process groups.
		return unix.ESRCH
	}
	return unix.Kill(int(pid), sig)
}

// Recv implements a method of the [minitalk.Channel] interface.
func (c *SignalChannel) Recv() (minitalk.Notification, error) {
	c.μ.Lock()
	defer c.μ.Unlock()
	for {
		nr, err := c.f.Read(c.buf[:])
		if err != nil {
			return minitalk.Notification{}, err
		} else if nr != siginfoSize {
			return minitalk.Notification{}, fmt.Errorf("short signal record (%d bytes)", nr)
		}
		signo := unix.Signal(binary.NativeEndian.Uint32(c.buf[siginfoSigno:]))
		pid := minitalk.PID(binary.NativeEndian.Uint32(c.buf[siginfoPid:]))
		switch signo {
		case unix.SIGUSR1:
			return minitalk.Notification{Kind: minitalk.Mark, From: pid}, nil
		case unix.SIGUSR2:
			return minitalk.Notification{Kind: minitalk.Space, From: pid}, nil
		}
	}
}

// Close implements a method of the [minitalk.Channel] interface. Closing the
// channel unblocks a pending Recv, which reports [os.ErrClosed].
func (c *SignalChannel) Close() error { return c.f.Close() }
