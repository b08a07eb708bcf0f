// Package brange implements the Bitstream Range: a bounded, error-latching
// view over an input stream, shared by the box tree parser and item
// extractor so neither has to reimplement end-of-data bookkeeping.
package brange

import (
	"bufio"
	"io"

	"github.com/go-heif/heifcore/heiferr"
)

// Range is a bounded view over a byte stream. A Range never reads past its
// remaining budget; once it does (or tries to), it latches an error and
// every further read returns zero values without touching the underlying
// reader again.
type Range struct {
	r         *bufio.Reader
	remaining int64
	err       error
}

// New wraps r as a Range with the given budget. A budget of -1 means
// unbounded (the root range covering "to end of file").
func New(r io.Reader, budget int64) *Range {
	return &Range{r: bufio.NewReader(r), remaining: budget}
}

// Err returns the latched error, if any.
func (b *Range) Err() error { return b.err }

// GetError returns Ok (nil), the propagated error, or
// Invalid_input:End_of_data once a read has gone past the budget. Reading the
// budget down to exactly zero is not an error.
func (b *Range) GetError() error { return b.err }

func (b *Range) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *Range) eof() {
	b.fail(heiferr.New(heiferr.InvalidInput, heiferr.EndOfData))
}

// TryConsume reports whether n more bytes fit in the remaining budget. If
// not, it latches eof_reached and returns false without consuming anything.
func (b *Range) TryConsume(n int64) bool {
	if b.err != nil {
		return false
	}
	if b.remaining >= 0 && n > b.remaining {
		b.eof()
		return false
	}
	return true
}

func (b *Range) consumed(n int64) {
	if b.remaining >= 0 {
		b.remaining -= n
	}
}

// Remaining reports the number of bytes left in the budget, or -1 if
// unbounded.
func (b *Range) Remaining() int64 { return b.remaining }

func (b *Range) readFull(n int) []byte {
	if !b.TryConsume(int64(n)) {
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(b.r, buf); err != nil {
		b.eof()
		return nil
	}
	b.consumed(int64(n))
	return buf
}

// ReadU8 reads one byte, big-endian trivially. Returns 0 on failure.
func (b *Range) ReadU8() uint8 {
	buf := b.readFull(1)
	if buf == nil {
		return 0
	}
	return buf[0]
}

// ReadU16BE reads a big-endian uint16. Returns 0 on failure.
func (b *Range) ReadU16BE() uint16 {
	buf := b.readFull(2)
	if buf == nil {
		return 0
	}
	return uint16(buf[0])<<8 | uint16(buf[1])
}

// ReadU32BE reads a big-endian uint32. Returns 0 on failure.
func (b *Range) ReadU32BE() uint32 {
	buf := b.readFull(4)
	if buf == nil {
		return 0
	}
	return uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
}

// ReadU64BE reads a big-endian uint64. Returns 0 on failure.
func (b *Range) ReadU64BE() uint64 {
	buf := b.readFull(8)
	if buf == nil {
		return 0
	}
	var v uint64
	for _, c := range buf {
		v = v<<8 | uint64(c)
	}
	return v
}

// ReadUintN reads an n-byte (n ∈ {0,1,2,4,8}) big-endian unsigned integer, the
// variable-width shape iloc/ipma field sizes use. n==0 yields 0 with no read.
func (b *Range) ReadUintN(n int) uint64 {
	switch n {
	case 0:
		return 0
	case 1:
		return uint64(b.ReadU8())
	case 2:
		return uint64(b.ReadU16BE())
	case 4:
		return uint64(b.ReadU32BE())
	case 8:
		return b.ReadU64BE()
	default:
		b.fail(heiferr.New(heiferr.UsageError, heiferr.IndexOutOfRange, "unsupported field width"))
		return 0
	}
}

// ReadBytes reads n raw bytes.
func (b *Range) ReadBytes(n int) []byte {
	return b.readFull(n)
}

// ReadCString reads bytes until a NUL terminator or the end of the range,
// returning the string without the terminator. Returns "" once exhausted.
func (b *Range) ReadCString() string {
	if b.err != nil {
		return ""
	}
	var out []byte
	for {
		if b.remaining == 0 {
			return string(out)
		}
		c := b.ReadU8()
		if b.err != nil {
			return string(out)
		}
		if c == 0 {
			return string(out)
		}
		out = append(out, c)
	}
}

// SkipToEndOfContainer discards any unread bytes in the range.
func (b *Range) SkipToEndOfContainer() {
	if b.err != nil || b.remaining <= 0 {
		return
	}
	n, err := io.CopyN(io.Discard, b.r, b.remaining)
	b.remaining -= n
	if err != nil {
		b.eof()
	}
}

// SubRange carves a child Range of exactly len bytes out of b, sharing the
// same underlying reader. Regardless of whether the child reads all of its
// budget, b's own budget is advanced by len immediately, when SubRange
// returns. The shared reader's position only catches up once the child's
// unread bytes are skipped (call Close, or skip leftovers otherwise) before
// b is read again.
func (b *Range) SubRange(length int64) *Range {
	if !b.TryConsume(length) {
		return &Range{err: b.err}
	}
	b.consumed(length)
	return &Range{r: b.r, remaining: length}
}

// Close finalizes a sub-range, skipping any bytes the caller didn't consume
// so the shared underlying reader's position stays correct for the parent.
func (b *Range) Close() error {
	b.SkipToEndOfContainer()
	return b.err
}
