package bithenge

import (
	"math"

	"github.com/bithenge/bithenge/internal/bufpool"
	"github.com/bithenge/bithenge/internal/diag"
)

// Blob is the polymorphic byte- or bit-addressable leaf capability (spec
// §3.1/§3.2/§4.1). A Blob is always either byte-addressable or
// bit-addressable, never both; Size reports the extent in whichever unit
// applies.
//
// ReadBits returns a bit vector rather than a packed buffer-plus-endianness
// argument the way the source's read_bits does: Go gains nothing from that
// C calling convention, and the MSB/LSB ordering contract it exists to
// express (spec §3.2) is instead expressed directly by how bitsBeBlob and
// bitsLeBlob populate the returned []bool.
type Blob interface {
	Node
	// IsBitAddressable reports whether this blob is read via ReadBits
	// (true) or ReadBytes (false).
	IsBitAddressable() bool
	// Size returns the blob's extent: bytes for a byte blob, bits for a
	// bit blob.
	Size() (uint64, error)
	// Empty reports whether Size() == 0.
	Empty() (bool, error)
	// ReadBytes reads up to len(p) bytes starting at offset, returning the
	// number actually read. A read starting exactly at the end returns 0;
	// a read starting past the end returns diag.ELIMIT.
	ReadBytes(offset uint64, p []byte) (int, error)
	// ReadBits reads numBits consecutive bits starting at bitOffset, in
	// this blob's native bit order.
	ReadBits(bitOffset uint64, numBits uint64) ([]bool, error)
}

// blobKind lets every concrete Blob embed the single Kind method.
type blobKind struct{}

func (blobKind) Kind() NodeKind { return KindBlob }

// blobEmpty reports whether a blob's Size is zero.
func blobEmpty(b Blob) (bool, error) {
	size, err := b.Size()
	if err != nil {
		return false, err
	}
	return size == 0, nil
}

// synthesizeReadBits provides the default bit-read for a byte-addressable
// blob: "a byte-read becomes a bit-read by multiplying offsets by 8" (spec
// §3.1), read MSB-first within each byte as if viewed through bitsBe.
func synthesizeReadBits(b Blob, bitOffset, numBits uint64) ([]bool, error) {
	startByte := bitOffset / 8
	endBit := bitOffset + numBits
	endByte := (endBit + 7) / 8
	buf := make([]byte, endByte-startByte)
	n, err := b.ReadBytes(startByte, buf)
	if err != nil {
		return nil, err
	}
	buf = buf[:n]
	bits := make([]bool, 0, numBits)
	for i := uint64(0); i < numBits; i++ {
		absBit := bitOffset + i
		byteIdx := absBit/8 - startByte
		if byteIdx >= uint64(len(buf)) {
			return bits, nil
		}
		bitPos := 7 - (absBit % 8)
		bits = append(bits, (buf[byteIdx]>>bitPos)&1 == 1)
	}
	return bits, nil
}

// synthesizeReadBytes provides the default byte-read for a bit-addressable
// blob. The offset is in whole bytes, so the read always starts on a byte
// boundary; bits are packed MSB-first, and trailing bits that do not fill a
// whole byte are dropped rather than reported as an error.
func synthesizeReadBytes(b Blob, offset uint64, p []byte) (int, error) {
	bitOffset := offset * 8
	numBits := uint64(len(p)) * 8
	bits, err := b.ReadBits(bitOffset, numBits)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := 0; i+8 <= len(bits); i += 8 {
		var v byte
		for j := 0; j < 8; j++ {
			v <<= 1
			if bits[i+j] {
				v |= 1
			}
		}
		p[n] = v
		n++
	}
	return n, nil
}

// memoryBlob is a byte-addressable blob backed by an in-memory buffer (spec
// §4.1 new_blob_from_buffer/new_blob_from_data).
type memoryBlob struct {
	blobKind
	data []byte
}

// NewMemoryBlob constructs a byte blob backed directly by data (no copy).
func NewMemoryBlob(data []byte) Blob {
	return &memoryBlob{data: data}
}

// NewMemoryBlobCopy constructs a byte blob backed by a copy of data.
func NewMemoryBlobCopy(data []byte) Blob {
	cp := make([]byte, len(data))
	copy(cp, data)
	return &memoryBlob{data: cp}
}

func (b *memoryBlob) IsBitAddressable() bool { return false }
func (b *memoryBlob) Size() (uint64, error)  { return uint64(len(b.data)), nil }
func (b *memoryBlob) Empty() (bool, error)   { return blobEmpty(b) }

func (b *memoryBlob) ReadBytes(offset uint64, p []byte) (int, error) {
	if offset > uint64(len(b.data)) {
		return 0, diag.Errorf(diag.ELIMIT, "read offset %d beyond blob of size %d", offset, len(b.data))
	}
	n := copy(p, b.data[offset:])
	return n, nil
}

func (b *memoryBlob) ReadBits(bitOffset, numBits uint64) ([]bool, error) {
	return synthesizeReadBits(b, bitOffset, numBits)
}

// sliceBlob is a bounded or unbounded view of another blob, sharing its
// addressing mode (spec §4.1 new_offset_blob/new_subblob, §3.2 nested-
// subblob collapsing).
type sliceBlob struct {
	blobKind
	source    Blob
	start     uint64
	length    uint64 // meaningful only if bounded
	bounded   bool
}

// NewOffsetBlob returns an unbounded view of source starting at offset, in
// source's own addressing unit.
func NewOffsetBlob(source Blob, offset uint64) Blob {
	return newSlice(source, offset, 0, false)
}

// NewSubblob returns a view of source spanning [offset, offset+length), in
// source's own addressing unit. offset+length must not exceed source.Size().
func NewSubblob(source Blob, offset, length uint64) (Blob, error) {
	size, err := source.Size()
	if err != nil {
		return nil, err
	}
	if offset > size || length > size-offset {
		return nil, diag.Errorf(diag.ELIMIT, "subblob [%d,%d) exceeds blob of size %d", offset, offset+length, size)
	}
	return newSlice(source, offset, length, true), nil
}

// newSlice collapses slice-of-slice per the subblob algebra property (spec
// §8.3): subblob(subblob(b,o1,l1),o2,l2) == subblob(b,o1+o2,min(l1-o2,l2)).
func newSlice(source Blob, start, length uint64, bounded bool) Blob {
	if inner, ok := source.(*sliceBlob); ok {
		absStart := inner.start + start
		if !inner.bounded {
			return &sliceBlob{source: inner.source, start: absStart, length: length, bounded: bounded}
		}
		var remaining uint64
		if start < inner.length {
			remaining = inner.length - start
		}
		if !bounded || length > remaining {
			length = remaining
		}
		return &sliceBlob{source: inner.source, start: absStart, length: length, bounded: true}
	}
	return &sliceBlob{source: source, start: start, length: length, bounded: bounded}
}

func (b *sliceBlob) IsBitAddressable() bool { return b.source.IsBitAddressable() }

func (b *sliceBlob) Size() (uint64, error) {
	if b.bounded {
		return b.length, nil
	}
	size, err := b.source.Size()
	if err != nil {
		return 0, err
	}
	if b.start > size {
		return 0, nil
	}
	return size - b.start, nil
}

func (b *sliceBlob) Empty() (bool, error) { return blobEmpty(b) }

func (b *sliceBlob) clampedLen(requested, offset uint64) (uint64, error) {
	size, err := b.Size()
	if err != nil {
		return 0, err
	}
	if offset > size {
		return 0, diag.Errorf(diag.ELIMIT, "read offset %d beyond slice blob of size %d", offset, size)
	}
	if remaining := size - offset; requested > remaining {
		return remaining, nil
	}
	return requested, nil
}

func (b *sliceBlob) ReadBytes(offset uint64, p []byte) (int, error) {
	n, err := b.clampedLen(uint64(len(p)), offset)
	if err != nil {
		return 0, err
	}
	return b.source.ReadBytes(b.start+offset, p[:n])
}

func (b *sliceBlob) ReadBits(bitOffset, numBits uint64) ([]bool, error) {
	n, err := b.clampedLen(numBits, bitOffset)
	if err != nil {
		return nil, err
	}
	return b.source.ReadBits(b.start+bitOffset, n)
}

// concatBlob joins two blobs of the same addressing mode (spec §4.1
// new_concat_blob). For bit-addressable operands the first operand's size
// must be a multiple of 8 so the join falls on a byte boundary (spec §9 open
// question: non-byte-aligned bit concatenation is rejected, not silently
// handled).
type concatBlob struct {
	blobKind
	a, b Blob
}

// NewConcatBlob eagerly joins a and b.
func NewConcatBlob(a, b Blob) (Blob, error) {
	if a.IsBitAddressable() != b.IsBitAddressable() {
		return nil, diag.Errorf(diag.EINVAL, "cannot concatenate a byte blob with a bit blob")
	}
	if a.IsBitAddressable() {
		sizeA, err := a.Size()
		if err != nil {
			return nil, err
		}
		if sizeA%8 != 0 {
			return nil, diag.Errorf(diag.EINVAL, "bit blob concatenation must join on a byte boundary, got %d bits", sizeA)
		}
	}
	return &concatBlob{a: a, b: b}, nil
}

func (c *concatBlob) IsBitAddressable() bool { return c.a.IsBitAddressable() }

func (c *concatBlob) Size() (uint64, error) {
	sa, err := c.a.Size()
	if err != nil {
		return 0, err
	}
	sb, err := c.b.Size()
	if err != nil {
		return 0, err
	}
	if sa > math.MaxUint64-sb {
		return 0, diag.Errorf(diag.EINVAL, "concatenated blob size overflows")
	}
	return sa + sb, nil
}

func (c *concatBlob) Empty() (bool, error) { return blobEmpty(c) }

func (c *concatBlob) ReadBytes(offset uint64, p []byte) (int, error) {
	sizeA, err := c.a.Size()
	if err != nil {
		return 0, err
	}
	total := 0
	if offset < sizeA {
		n, err := c.a.ReadBytes(offset, p)
		if err != nil {
			return 0, err
		}
		total += n
		if total == len(p) {
			return total, nil
		}
		offset = sizeA
	}
	n, err := c.b.ReadBytes(offset-sizeA, p[total:])
	if err != nil {
		return total, err
	}
	return total + n, nil
}

func (c *concatBlob) ReadBits(bitOffset, numBits uint64) ([]bool, error) {
	sizeA, err := c.a.Size()
	if err != nil {
		return nil, err
	}
	var out []bool
	if bitOffset < sizeA {
		n := numBits
		if bitOffset+n > sizeA {
			n = sizeA - bitOffset
		}
		bits, err := c.a.ReadBits(bitOffset, n)
		if err != nil {
			return nil, err
		}
		out = append(out, bits...)
		if uint64(len(out)) == numBits {
			return out, nil
		}
		bitOffset = sizeA
	}
	bits, err := c.b.ReadBits(bitOffset-sizeA, numBits-uint64(len(out)))
	if err != nil {
		return out, err
	}
	return append(out, bits...), nil
}

// concatLazyBlob joins a with a blob materialized on demand by evaluating
// expr in scope (spec §4.1 new_concat_blob_lazy, §9 "retain the scope as
// part of the blob's owned state"). The materialized blob is cached after
// the first read that reaches it.
type concatLazyBlob struct {
	blobKind
	a      Blob
	expr   Expression
	scope  *Scope
	cached Blob
}

// NewConcatLazyBlob joins a with the blob produced by evaluating expr in
// scope, deferring that evaluation until first needed.
func NewConcatLazyBlob(a Blob, expr Expression, scope *Scope) Blob {
	return &concatLazyBlob{a: a, expr: expr, scope: scope}
}

func (c *concatLazyBlob) IsBitAddressable() bool { return c.a.IsBitAddressable() }

func (c *concatLazyBlob) materialize() (Blob, error) {
	if c.cached != nil {
		return c.cached, nil
	}
	node, err := c.expr.Eval(c.scope)
	if err != nil {
		return nil, err
	}
	b, ok := node.(Blob)
	if !ok {
		return nil, diag.Errorf(diag.EINVAL, "lazy concat expression did not produce a blob")
	}
	c.cached = b
	return b, nil
}

func (c *concatLazyBlob) Size() (uint64, error) {
	sa, err := c.a.Size()
	if err != nil {
		return 0, err
	}
	b, err := c.materialize()
	if err != nil {
		return 0, err
	}
	sb, err := b.Size()
	if err != nil {
		return 0, err
	}
	return sa + sb, nil
}

func (c *concatLazyBlob) Empty() (bool, error) { return blobEmpty(c) }

func (c *concatLazyBlob) ReadBytes(offset uint64, p []byte) (int, error) {
	sizeA, err := c.a.Size()
	if err != nil {
		return 0, err
	}
	total := 0
	if offset < sizeA {
		n, err := c.a.ReadBytes(offset, p)
		if err != nil {
			return 0, err
		}
		total += n
		if total == len(p) {
			return total, nil
		}
		offset = sizeA
	}
	b, err := c.materialize()
	if err != nil {
		return total, err
	}
	n, err := b.ReadBytes(offset-sizeA, p[total:])
	if err != nil {
		return total, err
	}
	return total + n, nil
}

func (c *concatLazyBlob) ReadBits(bitOffset, numBits uint64) ([]bool, error) {
	sizeA, err := c.a.Size()
	if err != nil {
		return nil, err
	}
	var out []bool
	if bitOffset < sizeA {
		n := numBits
		if bitOffset+n > sizeA {
			n = sizeA - bitOffset
		}
		bits, err := c.a.ReadBits(bitOffset, n)
		if err != nil {
			return nil, err
		}
		out = append(out, bits...)
		if uint64(len(out)) == numBits {
			return out, nil
		}
		bitOffset = sizeA
	}
	b, err := c.materialize()
	if err != nil {
		return out, err
	}
	bits, err := b.ReadBits(bitOffset-sizeA, numBits-uint64(len(out)))
	if err != nil {
		return out, err
	}
	return append(out, bits...), nil
}

// bitViewBlob synthesizes a bit-addressable blob from a byte blob (spec
// §3.2, §4.6 bits_be/bits_le): size is 8x the byte size; bit 0 is the MSB
// of byte 0 in big-endian view, the LSB of byte 0 in little-endian view.
type bitViewBlob struct {
	blobKind
	source    Blob
	bigEndian bool
}

// NewBitsBeBlob views source (a byte blob) as a bit blob, MSB-first.
func NewBitsBeBlob(source Blob) Blob { return &bitViewBlob{source: source, bigEndian: true} }

// NewBitsLeBlob views source (a byte blob) as a bit blob, LSB-first.
func NewBitsLeBlob(source Blob) Blob { return &bitViewBlob{source: source, bigEndian: false} }

func (b *bitViewBlob) IsBitAddressable() bool { return true }

func (b *bitViewBlob) Size() (uint64, error) {
	size, err := b.source.Size()
	if err != nil {
		return 0, err
	}
	return size * 8, nil
}

func (b *bitViewBlob) Empty() (bool, error) { return blobEmpty(b) }

func (b *bitViewBlob) ReadBytes(offset uint64, p []byte) (int, error) {
	return synthesizeReadBytes(b, offset, p)
}

func (b *bitViewBlob) ReadBits(bitOffset, numBits uint64) ([]bool, error) {
	startByte := bitOffset / 8
	endByte := (bitOffset + numBits + 7) / 8
	buf := bufpool.Get(int(endByte - startByte))
	defer bufpool.Release(buf)
	n, err := b.source.ReadBytes(startByte, buf)
	if err != nil {
		return nil, err
	}
	buf = buf[:n]
	bits := make([]bool, 0, numBits)
	for i := uint64(0); i < numBits; i++ {
		absBit := bitOffset + i
		byteIdx := absBit/8 - startByte
		if byteIdx >= uint64(len(buf)) {
			break
		}
		var bitPos uint64
		if b.bigEndian {
			bitPos = 7 - (absBit % 8)
		} else {
			bitPos = absBit % 8
		}
		bits = append(bits, (buf[byteIdx]>>bitPos)&1 == 1)
	}
	return bits, nil
}
