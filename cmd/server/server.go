// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

// Program server receives messages sent by the client program and prints
// them as they arrive.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/creachadair/command"
	"github.com/creachadair/flax"
	"github.com/creachadair/minitalk"
	"github.com/creachadair/minitalk/channel"
	"github.com/creachadair/minitalk/internal/config"
	"github.com/creachadair/minitalk/peers"
)

var flags struct {
	Config  string `flag:"config,Configuration file path"`
	Verbose bool   `flag:"v,Enable verbose logging"`
}

func main() {
	if err := channel.BlockSignals(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	root := &command.C{
		Name: filepath.Base(os.Args[0]),
		Help: `Serve messages sent by the client program.

The server prints its process ID, then waits for clients. Each message is
printed after a short preamble, character by character as it arrives.
The server runs until interrupted, or until a client it is talking to
disappears.`,

		SetFlags: command.Flags(flax.MustBind, &flags),
		Run:      runServe,
		Commands: []*command.C{
			command.VersionCommand(),
			command.HelpCommand(nil),
		},
	}
	command.RunOrFail(root.NewEnv(nil).MergeFlags(true), os.Args[1:])
}

func runServe(env *command.Env) error {
	if len(env.Args) != 0 {
		return env.Usagef("extra arguments: %q", env.Args)
	}
	cfg, err := config.Load(flags.Config)
	if err != nil {
		return err
	}
	log := cfg.Logger(os.Stderr, flags.Verbose)

	ch, err := channel.Signal()
	if err != nil {
		return err
	}
	r := minitalk.NewReceiver(os.Stdout).
		Logger(log).
		OnSession(func(peer minitalk.PID, n int) {
			log.Info("message received", "peer", peer, "bytes", n)
		})
	if cfg.Preamble != nil {
		r.Preamble(*cfg.Preamble)
	}

	fmt.Printf("pid: %d\n", ch.Self())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return peers.Serve(ctx, r, ch)
}
