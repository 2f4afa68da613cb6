// Copyright (C) 2026 Michael J. Fromberger. All Rights Reserved.

package minitalk

import (
	"fmt"

	"github.com/creachadair/mds/value"
)

// ByteWidth is the number of notifications that encode one byte.
const ByteWidth = 8

const (
	firstBit = ByteWidth - 1 // the cursor of the first bit sent for a byte
	noBit    = -1            // the cursor when no byte is in flight
)

func checkCursor(cursor int) {
	if cursor < 0 || cursor > firstBit {
		panic(fmt.Sprintf("bit cursor %d out of range", cursor))
	}
}

// EncodeBit returns the notification kind for bit cursor of b, where 0 is
// the least significant bit and 7 the most. A 1 bit is [Mark], a 0 bit is
// [Space]. It panics if cursor is out of range.
func EncodeBit(b byte, cursor int) Kind {
	checkCursor(cursor)
	return value.Cond(b&(1<<cursor) != 0, Mark, Space)
}

// DecodeBit returns acc with bit cursor set if k is [Mark], or cleared if k
// is [Space]. It panics if cursor is out of range or k is not a valid kind.
func DecodeBit(acc byte, cursor int, k Kind) byte {
	checkCursor(cursor)
	switch k {
	case Mark:
		return acc | 1<<cursor
	case Space:
		return acc &^ (1 << cursor)
	default:
		panic(fmt.Sprintf("invalid notification kind %v", k))
	}
}

// EncodeByte returns the notification kinds for b in transmission order,
// most significant bit first.
func EncodeByte(b byte) (out [ByteWidth]Kind) {
	for i := range out {
		out[i] = EncodeBit(b, firstBit-i)
	}
	return out
}

// DecodeByte reconstructs a byte from notification kinds in transmission
// order. It is the inverse of [EncodeByte].
func DecodeByte(ks [ByteWidth]Kind) byte {
	var acc byte
	for i, k := range ks {
		acc = DecodeBit(acc, firstBit-i, k)
	}
	return acc
}
