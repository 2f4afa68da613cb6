// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package minitalk_test

import (
	"testing"

	"github.com/creachadair/minitalk"
	"github.com/creachadair/mds/mtest"
	"github.com/google/go-cmp/cmp"
)

const (
	M = minitalk.Mark
	S = minitalk.Space
)

func TestEncodeByte(t *testing.T) {
	tests := []struct {
		input byte
		want  [minitalk.ByteWidth]minitalk.Kind
	}{
		{0x00, [...]minitalk.Kind{S, S, S, S, S, S, S, S}},
		{0xff, [...]minitalk.Kind{M, M, M, M, M, M, M, M}},
		{'A', [...]minitalk.Kind{S, M, S, S, S, S, S, M}}, // 0x41
		{'z', [...]minitalk.Kind{S, M, M, M, M, S, M, S}}, // 0x7a
		{0x80, [...]minitalk.Kind{M, S, S, S, S, S, S, S}},
		{0x01, [...]minitalk.Kind{S, S, S, S, S, S, S, M}},
	}
	for _, tc := range tests {
		got := minitalk.EncodeByte(tc.input)
		if diff := cmp.Diff(tc.want, got); diff != "" {
			t.Errorf("EncodeByte(%#02x) (-want, +got):\n%s", tc.input, diff)
		}
		if back := minitalk.DecodeByte(got); back != tc.input {
			t.Errorf("DecodeByte: got %#02x, want %#02x", back, tc.input)
		}
	}
}

func TestBitRoundTrip(t *testing.T) {
	for i := range 256 {
		b := byte(i)

		// Start from a non-zero accumulator so that Space must clear bits.
		acc := ^b
		for cursor := minitalk.ByteWidth - 1; cursor >= 0; cursor-- {
			acc = minitalk.DecodeBit(acc, cursor, minitalk.EncodeBit(b, cursor))
		}
		if acc != b {
			t.Errorf("Round trip %#02x: got %#02x", b, acc)
		}
	}
}

func TestCodecPanics(t *testing.T) {
	mtest.MustPanic(t, func() { minitalk.EncodeBit(1, -1) })
	mtest.MustPanic(t, func() { minitalk.EncodeBit(1, minitalk.ByteWidth) })
	mtest.MustPanic(t, func() { minitalk.DecodeBit(0, 8, minitalk.Mark) })
	mtest.MustPanic(t, func() { minitalk.DecodeBit(0, 3, minitalk.Kind(0)) })
	mtest.MustPanic(t, func() { minitalk.DecodeBit(0, 3, minitalk.Kind(9)) })
}

func TestKind(t *testing.T) {
	tests := []struct {
		kind  minitalk.Kind
		valid bool
		str   string
	}{
		{minitalk.Mark, true, "MARK"},
		{minitalk.Space, true, "SPACE"},
		{minitalk.Kind(0), false, "KIND:0"},
		{minitalk.Kind(5), false, "KIND:5"},
	}
	for _, tc := range tests {
		if got := tc.kind.Valid(); got != tc.valid {
			t.Errorf("%v.Valid(): got %v, want %v", tc.kind, got, tc.valid)
		}
		if got := tc.kind.String(); got != tc.str {
			t.Errorf("String: got %q, want %q", got, tc.str)
		}
	}
}
