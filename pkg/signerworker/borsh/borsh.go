// Copyright (C) 2022-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package borsh implements the small subset of the Borsh binary format
// needed to serialize a NEAR SignedTransaction: little-endian fixed-width
// integers, length-prefixed byte strings, and the action enum used by
// TransactionInput. No example in the corpus imports a general Borsh
// library (NEAR-specific, not carried by any pack dependency); this
// hand-rolled codec plays the role the teacher's own wire-format code
// plays for e.g. dcrd/dcrlnd's wire.MsgTx — a narrow, protocol-exact
// encoder rather than a generic serialization library.
package borsh

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrUnexpectedEOF is returned when a Reader runs out of bytes mid-field.
var ErrUnexpectedEOF = errors.New("borsh: unexpected EOF")

// Writer accumulates a Borsh-encoded byte stream.
type Writer struct {
	buf bytes.Buffer
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated encoding.
func (w *Writer) Bytes() []byte { return w.buf.Bytes() }

// WriteU8 writes a single byte.
func (w *Writer) WriteU8(v uint8) { w.buf.WriteByte(v) }

// WriteU32 writes a little-endian uint32.
func (w *Writer) WriteU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

// WriteU64 writes a little-endian uint64.
func (w *Writer) WriteU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

// WriteU128 writes a 128-bit little-endian unsigned integer from a
// big-endian decimal string (as NEAR yoctoNEAR amounts are carried in the
// wallet's typed Action fields). Empty input encodes zero.
func (w *Writer) WriteU128(decimal string) error {
	v, err := parseU128(decimal)
	if err != nil {
		return err
	}
	w.buf.Write(v[:])
	return nil
}

// WriteFixedBytes writes exactly n bytes, zero-padding or truncating b to
// length n — used for 32-byte hashes and public key bodies.
func (w *Writer) WriteFixedBytes(b []byte, n int) {
	fixed := make([]byte, n)
	copy(fixed, b)
	w.buf.Write(fixed)
}

// WriteBytes writes a Borsh Vec<u8>: a u32 length prefix followed by the
// raw bytes.
func (w *Writer) WriteBytes(b []byte) {
	w.WriteU32(uint32(len(b)))
	w.buf.Write(b)
}

// WriteString writes a Borsh String: identical wire shape to WriteBytes.
func (w *Writer) WriteString(s string) {
	w.WriteBytes([]byte(s))
}

// WriteStringVec writes a Vec<String>.
func (w *Writer) WriteStringVec(items []string) {
	w.WriteU32(uint32(len(items)))
	for _, s := range items {
		w.WriteString(s)
	}
}

// WriteBool writes a Borsh bool as a single 0/1 byte.
func (w *Writer) WriteBool(v bool) {
	if v {
		w.WriteU8(1)
	} else {
		w.WriteU8(0)
	}
}

// Reader consumes a Borsh-encoded byte stream sequentially.
type Reader struct {
	b   []byte
	pos int
}

// NewReader wraps b for sequential decoding.
func NewReader(b []byte) *Reader { return &Reader{b: b} }

func (r *Reader) take(n int) ([]byte, error) {
	if r.pos+n > len(r.b) {
		return nil, ErrUnexpectedEOF
	}
	out := r.b[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

// ReadU8 reads a single byte.
func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU32 reads a little-endian uint32.
func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 reads a little-endian uint64.
func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadFixedBytes reads exactly n raw bytes.
func (r *Reader) ReadFixedBytes(n int) ([]byte, error) {
	b, err := r.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadBytes reads a Borsh Vec<u8>.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	return r.ReadFixedBytes(int(n))
}

// ReadString reads a Borsh String.
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// ReadBool reads a Borsh bool.
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadU8()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// Remaining reports how many bytes are left unconsumed.
func (r *Reader) Remaining() int { return len(r.b) - r.pos }

// parseU128 converts a base-10 string into a 16-byte little-endian
// unsigned integer, the encoding NEAR uses for yoctoNEAR amounts.
func parseU128(decimal string) ([16]byte, error) {
	var out [16]byte
	if decimal == "" {
		return out, nil
	}
	magnitude := make([]byte, 0, len(decimal))
	for _, c := range decimal {
		if c < '0' || c > '9' {
			return out, fmt.Errorf("borsh: invalid u128 decimal %q", decimal)
		}
		magnitude = append(magnitude, byte(c))
	}

	// Repeated divide-by-256 over the decimal digit string, least
	// significant byte first, the standard base-conversion algorithm for
	// arbitrary-precision decimal-to-binary without a bignum dependency.
	digits := make([]byte, len(magnitude))
	for i, c := range magnitude {
		digits[i] = c - '0'
	}

	byteIndex := 0
	for len(digits) > 0 && !allZero(digits) {
		if byteIndex >= 16 {
			return out, fmt.Errorf("borsh: u128 overflow in %q", decimal)
		}
		var remainder int
		quotient := make([]byte, 0, len(digits))
		for _, d := range digits {
			cur := remainder*10 + int(d)
			q := cur / 256
			remainder = cur % 256
			if len(quotient) > 0 || q != 0 {
				quotient = append(quotient, byte(q))
			}
		}
		out[byteIndex] = byte(remainder)
		byteIndex++
		digits = quotient
	}
	return out, nil
}

func allZero(digits []byte) bool {
	for _, d := range digits {
		if d != 0 {
			return false
		}
	}
	return true
}
