// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Program client sends a message to a running server process, one bit at a
// time, using SIGUSR1 and SIGUSR2.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/minitalk"
	"github.com/creachadair/minitalk/channel"
	"github.com/creachadair/minitalk/internal/config"
)

var flags struct {
	Config  string        `flag:"config,Configuration file path"`
	Timeout time.Duration `flag:"timeout,Give up if an acknowledgment takes longer than this (0 waits forever)"`
	Verbose bool          `flag:"v,Enable verbose logging"`
}

func main() {
	if err := channel.BlockSignals(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	command.RunOrFail(newRoot().NewEnv(nil), os.Args[1:])
}

// newRoot returns the command tree. Flags must precede the positional
// arguments, so that a message beginning with "-" is sent as written.
func newRoot() *command.C {
	return &command.C{
		Name:  filepath.Base(os.Args[0]),
		Usage: "[flags] <pid> <message>",
		Help: `Send a message to the server with the given process ID.

The message is sent one bit at a time, most significant bit first, as
SIGUSR1 (1) and SIGUSR2 (0) signals. Each bit waits for the server to
acknowledge it. When the server confirms the whole message, the client
prints a confirmation and exits.

Flags must come before the process ID; everything after it is taken as
written. The message may not contain a NUL byte.`,

		SetFlags: command.Flags(flax.MustBind, &flags),
		Run:      runSend,
		Commands: []*command.C{
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
}

// sendArgs checks and parses the positional arguments of the client.
func sendArgs(env *command.Env) (minitalk.PID, string, error) {
	if len(env.Args) != 2 {
		return 0, "", env.Usagef("got %d arguments, want <pid> <message>", len(env.Args))
	}
	pid, err := minitalk.ParsePID(env.Args[0])
	if err != nil {
		return 0, "", err
	}
	return pid, env.Args[1], nil
}

func runSend(env *command.Env) error {
	pid, msg, err := sendArgs(env)
	if err != nil {
		return err
	}
	cfg, err := config.Load(flags.Config)
	if err != nil {
		return err
	}
	timeout := flags.Timeout
	if timeout == 0 {
		timeout = cfg.TimeoutDuration()
	}
	log := cfg.Logger(os.Stderr, flags.Verbose)

	ch, err := channel.Signal()
	if err != nil {
		return err
	}
	s := minitalk.NewSender().Logger(log).Start(ch)
	defer s.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	log.Debug("sending message", "pid", pid, "self", ch.Self(), "bytes", len(msg))
	if err := s.Send(ctx, pid, msg); err != nil {
		return err
	}
	fmt.Println("Message received!")
	return nil
}
