// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package minitalk

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
)

// A PID is the numeric identity of a process, used as the destination of a
// notification. Valid identities are positive.
type PID int

func (p PID) String() string { return strconv.Itoa(int(p)) }

// ParsePID parses s as a process identity. It reports an error of concrete
// type *InvalidPIDError unless s is a base-10 integer greater than zero.
func ParsePID(s string) (PID, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, &InvalidPIDError{Input: s, Err: err}
	} else if v <= 0 {
		return 0, &InvalidPIDError{Input: s}
	}
	return PID(v), nil
}

// Kind is the kind of a notification. There are exactly two kinds.
type Kind byte

const (
	// Mark encodes a 1 bit. As an acknowledgment it confirms a single bit.
	Mark Kind = 1

	// Space encodes a 0 bit. As an acknowledgment it confirms that the whole
	// message was received.
	Space Kind = 2
)

// Valid reports whether k is Mark or Space.
func (k Kind) Valid() bool { return k == Mark || k == Space }

func (k Kind) String() string {
	switch k {
	case Mark:
		return "MARK"
	case Space:
		return "SPACE"
	default:
		return fmt.Sprintf("KIND:%d", byte(k))
	}
}

// A Notification is what a process observes when a notification arrives: its
// kind, and the identity of the process that sent it.
type Notification struct {
	Kind Kind
	From PID
}

func (n Notification) String() string { return fmt.Sprintf("%v from %v", n.Kind, n.From) }

// A Channel delivers notifications between the local process and other
// processes identified by a PID.
//
// The channel is not required to queue notifications: if a notification
// arrives while another of the same kind is still pending, the two may be
// coalesced into one. It must deliver notifications from a given sender in the
// order they were issued.
//
// The methods of an implementation must be safe for concurrent use by one
// sender and one receiver.
type Channel interface {
	// Self reports the identity of the local process.
	Self() PID

	// Alive reports nil if pid denotes a process that exists and can be
	// notified, otherwise an error describing why not.
	Alive(pid PID) error

	// Notify delivers a notification of kind k to pid.
	Notify(pid PID, k Kind) error

	// Recv blocks until the next notification for the local process arrives.
	Recv() (Notification, error)

	// Close the channel, causing any pending Recv to terminate and report an
	// error. After a channel is closed, all further operations on it must
	// report an error.
	Close() error
}

// A NotificationLogger logs a notification exchanged with a peer.
type NotificationLogger func(NotificationInfo)

// A NotificationInfo combines a notification and a flag indicating whether
// it was sent or received. For a sent notification, Peer is the destination;
// for a received one it is the sender.
type NotificationInfo struct {
	Kind Kind
	Peer PID
	Sent bool
}

func (n NotificationInfo) String() string {
	if n.Sent {
		return fmt.Sprintf("send %v to %v", n.Kind, n.Peer)
	}
	return fmt.Sprintf("recv %v from %v", n.Kind, n.Peer)
}

// DeadPeerError is the concrete type of errors reported when a peer process
// no longer exists or cannot be notified. It is fatal for the session.
type DeadPeerError struct {
	PID PID
	Err error // the underlying error, if known
}

// Error satisfies the error interface.
func (e *DeadPeerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cannot notify process %v: %v", e.PID, e.Err)
	}
	return fmt.Sprintf("cannot notify process %v", e.PID)
}

// Unwrap reports the underlying error of e, if any.
func (e *DeadPeerError) Unwrap() error { return e.Err }

// InvalidPIDError is the concrete type of errors reported by [ParsePID].
type InvalidPIDError struct {
	Input string
	Err   error
}

// Error satisfies the error interface.
func (e *InvalidPIDError) Error() string { return fmt.Sprintf("%q is an invalid pid", e.Input) }

// Unwrap reports the underlying parse error, if any.
func (e *InvalidPIDError) Unwrap() error { return e.Err }

// ErrEmbeddedZero is reported by [Sender.Send] for a message that contains a
// zero byte, which the protocol reserves to end a session.
var ErrEmbeddedZero = errors.New("message contains a zero byte")

func treatErrorAsSuccess(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed)
}

// peerError classifies an error from probing or notifying pid. An error that
// reports the local channel closed is wrapped with op; any other error means
// the peer is gone, and is reported as a *DeadPeerError.
func peerError(op string, pid PID, err error) error {
	if errors.Is(err, net.ErrClosed) || errors.Is(err, os.ErrClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return &DeadPeerError{PID: pid, Err: err}
}
