package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrOutOfRange is returned by every getter that would read past the end
// of the payload. Callers treat it as a protocol violation.
var ErrOutOfRange = errors.New("protocol: read out of range")

// Reader is a read cursor over a packet payload. Each getter advances
// the cursor by exactly the number of bytes consumed.
type Reader struct {
	data   []byte
	pos    int
	isCopy bool
}

// NewReader creates a reader borrowing the given payload.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// NewReaderCopy creates a reader owning a private copy of the payload,
// safe to hand to another goroutine.
func NewReaderCopy(data []byte) *Reader {
	owned := make([]byte, len(data))
	copy(owned, data)
	return &Reader{data: owned, isCopy: true}
}

// IsCopy reports whether the reader owns its buffer.
func (r *Reader) IsCopy() bool { return r.isCopy }

// Rewind moves the cursor back to the start of the payload.
func (r *Reader) Rewind() { r.pos = 0 }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

func (r *Reader) need(n int) error {
	if r.pos+n > len(r.data) {
		return ErrOutOfRange
	}
	return nil
}

// Bool reads a single byte as a boolean.
func (r *Reader) Bool() (bool, error) {
	b, err := r.Byte()
	return b != 0, err
}

// Byte reads a single byte.
func (r *Reader) Byte() (byte, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// Uint16 reads a big-endian unsigned 16-bit integer.
func (r *Reader) Uint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

// Int16 reads a big-endian signed 16-bit integer.
func (r *Reader) Int16() (int16, error) {
	v, err := r.Uint16()
	return int16(v), err
}

// Int32 reads a big-endian signed 32-bit integer.
func (r *Reader) Int32() (int32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := int32(binary.BigEndian.Uint32(r.data[r.pos:]))
	r.pos += 4
	return v, nil
}

// Int64 reads a big-endian signed 64-bit integer.
func (r *Reader) Int64() (int64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := int64(binary.BigEndian.Uint64(r.data[r.pos:]))
	r.pos += 8
	return v, nil
}

// Float32 reads a big-endian 32-bit float.
func (r *Reader) Float32() (float32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := math.Float32frombits(binary.BigEndian.Uint32(r.data[r.pos:]))
	r.pos += 4
	return v, nil
}

// Float64 reads a big-endian 64-bit float.
func (r *Reader) Float64() (float64, error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := math.Float64frombits(binary.BigEndian.Uint64(r.data[r.pos:]))
	r.pos += 8
	return v, nil
}

// VarInt reads a variable-length integer.
func (r *Reader) VarInt() (int32, error) {
	var result int32
	var n int
	for {
		if err := r.need(1); err != nil {
			return 0, err
		}
		b := r.data[r.pos]
		r.pos++
		result |= int32(b&0x7F) << (7 * n)
		n++
		if n > MaxVarIntLen {
			return 0, fmt.Errorf("protocol: VarInt is too big")
		}
		if b&0x80 == 0 {
			return result, nil
		}
	}
}

// VarLong reads a variable-length long.
func (r *Reader) VarLong() (int64, error) {
	var result int64
	var n int
	for {
		if err := r.need(1); err != nil {
			return 0, err
		}
		b := r.data[r.pos]
		r.pos++
		result |= int64(b&0x7F) << (7 * n)
		n++
		if n > MaxVarLongLen {
			return 0, fmt.Errorf("protocol: VarLong is too big")
		}
		if b&0x80 == 0 {
			return result, nil
		}
	}
}

// String reads a VarInt-prefixed UTF-8 string, validating the encoding.
func (r *Reader) String() (string, error) {
	length, err := r.VarInt()
	if err != nil {
		return "", err
	}
	if length < 0 || length > 32767*4 {
		return "", fmt.Errorf("protocol: string length out of range: %d", length)
	}
	if err := r.need(int(length)); err != nil {
		return "", err
	}
	b := r.data[r.pos : r.pos+int(length)]
	if !validUTF8Start(b) {
		return "", fmt.Errorf("protocol: invalid UTF-8 string encoding")
	}
	r.pos += int(length)
	return string(b), nil
}

// Bytes reads exactly n raw bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 {
		return nil, ErrOutOfRange
	}
	if err := r.need(n); err != nil {
		return nil, err
	}
	b := make([]byte, n)
	copy(b, r.data[r.pos:])
	r.pos += n
	return b, nil
}

// Position reads a packed block position.
func (r *Reader) Position() (x, y, z int32, err error) {
	val, err := r.Int64()
	if err != nil {
		return 0, 0, 0, err
	}
	x, y, z = UnpackPosition(val)
	return x, y, z, nil
}

// UUID reads a raw 128-bit UUID.
func (r *Reader) UUID() ([16]byte, error) {
	var u [16]byte
	if err := r.need(16); err != nil {
		return u, err
	}
	copy(u[:], r.data[r.pos:])
	r.pos += 16
	return u, nil
}

// Slot reads slot data. itemID is -1 for an empty slot; the trailing
// NBT blob, when present, is consumed and discarded.
func (r *Reader) Slot() (itemID int16, count byte, damage int16, err error) {
	itemID, err = r.Int16()
	if err != nil || itemID == -1 {
		return itemID, 0, 0, err
	}
	if count, err = r.Byte(); err != nil {
		return
	}
	if damage, err = r.Int16(); err != nil {
		return
	}
	var has byte
	if has, err = r.Byte(); err != nil {
		return
	}
	if has != 0 {
		// skip the NBT blob; the server keeps no item NBT
		r.pos = len(r.data)
	}
	return
}
