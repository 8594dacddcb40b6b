package bithenge

import (
	"github.com/bithenge/bithenge/internal/diag"
)

// fixedUintTransform reads a fixed byte count and decodes it as an unsigned
// integer in the given byte order (spec §4.6 uint8/uint16le/uint16be/...,
// grounded in original_source/.../expression.c's primitive constructors).
type fixedUintTransform struct {
	width     int // bytes
	bigEndian bool
}

func newFixedUint(width int, bigEndian bool) Transform {
	f := &fixedUintTransform{width: width, bigEndian: bigEndian}
	return NewTransform(nil, f.prefixLength, f.prefixApply)
}

func (f *fixedUintTransform) prefixLength(scope *Scope, blob Blob) (uint64, error) {
	return uint64(f.width), nil
}

func (f *fixedUintTransform) prefixApply(scope *Scope, blob Blob) (Node, uint64, error) {
	buf := make([]byte, f.width)
	n, err := blob.ReadBytes(0, buf)
	if err != nil {
		return nil, 0, err
	}
	if n != f.width {
		return nil, 0, diag.Errorf(diag.EINVAL, "uint: blob too small for a %d-byte read", f.width)
	}
	var v uint64
	if f.bigEndian {
		for _, b := range buf {
			v = v<<8 | uint64(b)
		}
	} else {
		for i := f.width - 1; i >= 0; i-- {
			v = v<<8 | uint64(buf[i])
		}
	}
	return NewInteger(int64(v)), uint64(f.width), nil
}

// Uint8 decodes a single byte as an unsigned integer.
var Uint8 = newFixedUint(1, true)

// Uint16LE/Uint16BE/Uint32LE/Uint32BE/Uint64LE/Uint64BE decode fixed-width
// unsigned integers (spec §4.6).
var (
	Uint16LE = newFixedUint(2, false)
	Uint16BE = newFixedUint(2, true)
	Uint32LE = newFixedUint(4, false)
	Uint32BE = newFixedUint(4, true)
	Uint64LE = newFixedUint(8, false)
	Uint64BE = newFixedUint(8, true)
)

// bitUintPrimitive reads a parameterized N-bit (0-63) field from offset 0 of
// a blob and decodes it as an unsigned integer (spec §4.6
// uint_be(width)/uint_le(width)). Unlike the fixed-width uintN transforms,
// this one declares a single parameter — the width — fetched from the scope
// at call time, exactly as original_source/.../transform.c's
// uint_xe_prefix_apply does via bithenge_scope_get_param(scope, 0, ...); the
// script compiler supplies it by wrapping this primitive in a param-wrapper
// when it sees `uint_be(expr)`/`uint_le(expr)` (spec §4.3 param-wrapper,
// §4.7 parse_invocation).
type bitUintPrimitive struct {
	bigEndian bool
}

// UintBe is the uint_be(width) primitive: width consecutive bits,
// most-significant-bit-first value assembly.
var UintBe Transform = bitUintPrimitive{bigEndian: true}

// UintLe is the uint_le(width) primitive: width consecutive bits,
// least-significant-bit-first value assembly.
var UintLe Transform = bitUintPrimitive{bigEndian: false}

// NumParams implements Parametric: uint_be/uint_le each take exactly one
// parameter, the bit width.
func (u bitUintPrimitive) NumParams() int { return 1 }

func (u bitUintPrimitive) Apply(scope *Scope, in Node) (Node, error) {
	blob, ok := in.(Blob)
	if !ok {
		return nil, diag.Errorf(diag.EINVAL, "uint_be/uint_le requires a blob input")
	}
	size, err := blob.Size()
	if err != nil {
		return nil, err
	}
	out, n, err := u.PrefixApply(scope, blob)
	if err != nil {
		return nil, err
	}
	if n != size {
		return nil, diag.Errorf(diag.EINVAL, "uint_be/uint_le consumed %d of %d bits", n, size)
	}
	return out, nil
}

func (u bitUintPrimitive) PrefixLength(scope *Scope, blob Blob) (uint64, error) {
	_, n, err := u.PrefixApply(scope, blob)
	return n, err
}

func (u bitUintPrimitive) PrefixApply(scope *Scope, blob Blob) (Node, uint64, error) {
	widthNode, err := GetParam(scope, 0)
	if err != nil {
		return nil, 0, err
	}
	widthInt, ok := widthNode.(*IntegerNode)
	if !ok || widthInt.Value < 0 || widthInt.Value > 63 {
		return nil, 0, diag.Errorf(diag.EINVAL, "uint_be/uint_le width must be between 0 and 63")
	}
	width := uint64(widthInt.Value)
	bits, err := blob.ReadBits(0, width)
	if err != nil {
		return nil, 0, err
	}
	if uint64(len(bits)) != width {
		return nil, 0, diag.Errorf(diag.EINVAL, "blob too small for a %d-bit read", width)
	}
	var v uint64
	if u.bigEndian {
		for _, bit := range bits {
			v <<= 1
			if bit {
				v |= 1
			}
		}
	} else {
		for i := len(bits) - 1; i >= 0; i-- {
			v <<= 1
			if bits[i] {
				v |= 1
			}
		}
	}
	return NewInteger(int64(v)), width, nil
}

// Bit decodes a single bit as a Boolean (spec §4.6 "bit").
var Bit Transform = NewTransform(nil,
	func(scope *Scope, blob Blob) (uint64, error) { return 1, nil },
	func(scope *Scope, blob Blob) (Node, uint64, error) {
		if !blob.IsBitAddressable() {
			return nil, 0, diag.Errorf(diag.EINVAL, "bit requires a bit-addressable blob")
		}
		bits, err := blob.ReadBits(0, 1)
		if err != nil {
			return nil, 0, err
		}
		if len(bits) != 1 {
			return nil, 0, diag.Errorf(diag.EINVAL, "blob too small for a 1-bit read")
		}
		return NewBoolean(bits[0]), 1, nil
	},
)

// bitsViewPrimitive turns a byte blob into a bit blob view (spec §4.6
// bits_be/bits_le, grounded in original_source/.../transform.c's
// bits_xe_apply). It has no prefix_length/prefix_apply, matching the
// source's bits_xe_ops (only .apply is set there): it is meant to be the
// rightmost/byte-consuming atom of a compose chain (spec §8 S5), with the
// primitives downstream of it (uint_be/uint_le/bit/struct/...) doing the
// actual bit-addressed reading.
type bitsViewPrimitive struct {
	bigEndian bool
}

// BitsBe is the bits_be primitive: views its input blob MSB-first.
var BitsBe Transform = bitsViewPrimitive{bigEndian: true}

// BitsLe is the bits_le primitive: views its input blob LSB-first.
var BitsLe Transform = bitsViewPrimitive{bigEndian: false}

func (p bitsViewPrimitive) Apply(scope *Scope, in Node) (Node, error) {
	blob, ok := in.(Blob)
	if !ok {
		return nil, diag.Errorf(diag.EINVAL, "bits_be/bits_le: input must be a blob")
	}
	if p.bigEndian {
		return NewBitsBeBlob(blob), nil
	}
	return NewBitsLeBlob(blob), nil
}

func (p bitsViewPrimitive) PrefixLength(scope *Scope, blob Blob) (uint64, error) {
	return 0, diag.Errorf(diag.ENOTSUP, "bits_be/bits_le does not support prefix_length")
}

func (p bitsViewPrimitive) PrefixApply(scope *Scope, blob Blob) (Node, uint64, error) {
	return nil, 0, diag.Errorf(diag.ENOTSUP, "bits_be/bits_le does not support prefix_apply")
}

// ascii decodes an entire byte blob as a UTF-8/ASCII string. Its
// PrefixLength is defined as the blob's full size, matching
// original_source/.../transform.c's ascii_prefix_length; see DESIGN.md for
// why this is needed even though ascii is never the rightmost/byte-
// consuming atom in a well-formed compose chain.
var Ascii Transform = NewTransform(nil,
	func(scope *Scope, blob Blob) (uint64, error) { return blob.Size() },
	func(scope *Scope, blob Blob) (Node, uint64, error) {
		size, err := blob.Size()
		if err != nil {
			return nil, 0, err
		}
		buf := make([]byte, size)
		n, err := blob.ReadBytes(0, buf)
		if err != nil {
			return nil, 0, err
		}
		return NewString(string(buf[:n])), size, nil
	},
)

// ZeroTerminated scans for the first 0x00 byte, consuming it but not
// including it in the result (spec §4.6 "zero_terminated", grounded in
// original_source/.../transform.c's zero_terminated_prefix_length).
var ZeroTerminated Transform = NewTransform(nil,
	func(scope *Scope, blob Blob) (uint64, error) {
		n, _, err := zeroTerminatedScan(blob)
		return n, err
	},
	func(scope *Scope, blob Blob) (Node, uint64, error) {
		consumed, data, err := zeroTerminatedScan(blob)
		if err != nil {
			return nil, 0, err
		}
		return NewMemoryBlob(data), consumed, nil
	},
)

func zeroTerminatedScan(blob Blob) (consumed uint64, data []byte, err error) {
	const window = 4096
	buf := make([]byte, window)
	var collected []byte
	var offset uint64
	for {
		n, err := blob.ReadBytes(offset, buf)
		if err != nil {
			return 0, nil, err
		}
		if n == 0 {
			return 0, nil, diag.Errorf(diag.EINVAL, "zero_terminated: no terminator found")
		}
		if idx := indexByte(buf[:n], 0); idx >= 0 {
			collected = append(collected, buf[:idx]...)
			return offset + uint64(idx) + 1, collected, nil
		}
		collected = append(collected, buf[:n]...)
		offset += uint64(n)
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}

// knownLengthPrimitive requires its input blob to be exactly as long as its
// one declared parameter says (spec §4.6 "known_length(length)"), fetched
// from the scope exactly like uint_be/uint_le (grounded in
// original_source/.../transform.c's known_length_apply/
// known_length_prefix_length, both of which call
// bithenge_scope_get_param(scope, 0, ...) rather than taking the length as
// a Go-level constructor argument).
type knownLengthPrimitive struct{}

// KnownLength is the known_length(length) primitive.
var KnownLength Transform = knownLengthPrimitive{}

// NumParams implements Parametric: known_length takes exactly one
// parameter, the required length.
func (knownLengthPrimitive) NumParams() int { return 1 }

func (t knownLengthPrimitive) wantLength(scope *Scope) (uint64, error) {
	node, err := GetParam(scope, 0)
	if err != nil {
		return 0, err
	}
	i, ok := node.(*IntegerNode)
	if !ok || i.Value < 0 {
		return 0, diag.Errorf(diag.EINVAL, "known_length: length must be a non-negative integer")
	}
	return uint64(i.Value), nil
}

func (t knownLengthPrimitive) Apply(scope *Scope, in Node) (Node, error) {
	blob, ok := in.(Blob)
	if !ok {
		return nil, diag.Errorf(diag.EINVAL, "known_length: input must be a blob")
	}
	want, err := t.wantLength(scope)
	if err != nil {
		return nil, err
	}
	size, err := blob.Size()
	if err != nil {
		return nil, err
	}
	if size != want {
		return nil, diag.Errorf(diag.EINVAL, "known_length: expected %d bytes, got %d", want, size)
	}
	return blob, nil
}

func (t knownLengthPrimitive) PrefixLength(scope *Scope, blob Blob) (uint64, error) {
	return t.wantLength(scope)
}

func (t knownLengthPrimitive) PrefixApply(scope *Scope, blob Blob) (Node, uint64, error) {
	want, err := t.wantLength(scope)
	if err != nil {
		return nil, 0, err
	}
	sub, err := NewSubblob(blob, 0, want)
	if err != nil {
		return nil, 0, err
	}
	return sub, want, nil
}

// NonzeroBoolean converts an Integer node to Boolean: zero is false, any
// other value is true (spec §4.6 "nonzero_boolean").
var NonzeroBoolean Transform = NewTransform(
	func(scope *Scope, in Node) (Node, error) {
		i, ok := in.(*IntegerNode)
		if !ok {
			return nil, diag.Errorf(diag.EINVAL, "nonzero_boolean: input must be an integer")
		}
		return NewBoolean(i.Value != 0), nil
	},
	nil, nil,
)

// Invalid is an alias for InvalidTransform (spec §4.6 "invalid"): a
// transform that always fails with EINVAL. It is not registered as a script
// identifier; scripts reach it only as the fallback of a switch with no
// matching arm.
var Invalid = InvalidTransform
