// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Package minitalk implements a point-to-point message transfer between two
// processes that communicate only by payload-free notifications.
//
// A notification has one of two kinds, [Mark] and [Space], and carries no
// data beyond its kind and the identity of the process that sent it. On a
// Unix system these are the SIGUSR1 and SIGUSR2 signals. The protocol
// serializes a string one bit at a time: each byte is sent as 8
// notifications, most significant bit first, with Mark encoding 1 and Space
// encoding 0. After every bit the sender waits for the receiver to
// acknowledge before it sends the next one, so at most one notification is
// in flight in each direction. This pacing is what makes the protocol safe
// on a channel that may coalesce repeated notifications of the same kind.
//
// # Sessions
//
// A session carries exactly one string. After the last byte of the message
// the sender transmits one additional zero byte as a terminator. The
// receiver acknowledges each bit with a Mark, except that the final bit of
// the terminator is acknowledged with a Space, which tells the sender that
// the whole message was received. Because a zero byte ends the session, a
// message cannot contain an embedded zero byte.
//
// # Senders and Receivers
//
// The two ends of a session are the [Sender] and the [Receiver]. Both run
// over a [Channel], which delivers notifications to and from the local
// process. To send a message:
//
//	s := minitalk.NewSender().Start(ch)
//	defer s.Stop()
//
//	if err := s.Send(ctx, pid, "hello"); err != nil {
//	   log.Fatalf("Send failed: %v", err)
//	}
//
// To serve sessions, writing each reconstructed message to stdout:
//
//	r := minitalk.NewReceiver(os.Stdout).Start(ch)
//	if err := r.Wait(); err != nil {
//	   log.Fatalf("Receiver failed: %v", err)
//	}
//
// A receiver serves sessions one after another until its channel closes or
// a fatal error occurs. Either side treats a peer that no longer exists as
// fatal, and reports a [*DeadPeerError].
//
// # Channels
//
// The channel package provides implementations of the [Channel] interface:
// an in-memory fabric of simulated processes for testing, and a channel
// that uses real operating system signals.
//
// # Metrics
//
// Senders and receivers maintain a collection of metrics while running. Use
// the Metrics method of either to obtain an [expvar.Map] containing them.
// The metrics are shared globally among all senders and receivers.
//
//   - notifications_sent: counter of notifications sent
//   - notifications_received: counter of notifications received
//   - notifications_dropped: counter of notifications received and discarded
//   - bytes_sent: counter of message bytes fully acknowledged
//   - bytes_received: counter of message bytes reconstructed
//   - sessions_completed: counter of sessions ended by a terminator
//   - sessions_abandoned: counter of sessions whose peer died mid-message
//   - dead_peers: counter of peers found not to exist
package minitalk
