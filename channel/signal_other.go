// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

//go:build !linux

package channel

import (
	"errors"

	"github.com/creachadair/minitalk"
)

// ErrUnsupported is reported by [Signal] and [BlockSignals] on platforms
// where the sender of a signal cannot be identified.
var ErrUnsupported = errors.New("signal notifications are not supported on this platform")

// BlockSignals reports [ErrUnsupported].
func BlockSignals() error { return ErrUnsupported }

// SignalChannel is a [minitalk.Channel] that uses operating system signals.
// On this platform it cannot be constructed, and every method reports
// [ErrUnsupported].
type SignalChannel struct{}

// Signal reports [ErrUnsupported].
func Signal() (*SignalChannel, error) { return nil, ErrUnsupported }

// Self implements a method of the [minitalk.Channel] interface.
func (*SignalChannel) Self() minitalk.PID { return 0 }

// Alive implements a method of the [minitalk.Channel] interface.
func (*SignalChannel) Alive(minitalk.PID) error { return ErrUnsupported }

// Notify implements a method of the [minitalk.Channel] interface.
func (*SignalChannel) Notify(minitalk.PID, minitalk.Kind) error { return ErrUnsupported }

// Recv implements a method of the [minitalk.Channel] interface.
func (*SignalChannel) Recv() (minitalk.Notification, error) {
	return minitalk.Notification{}, ErrUnsupported
}

// Close implements a method of the [minitalk.Channel] interface.
func (*SignalChannel) Close() error { return ErrUnsupported }
