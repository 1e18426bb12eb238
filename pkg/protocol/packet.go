package protocol

import (
	"encoding/binary"
	"math"
)

// Packet is a growable outbound packet buffer. A configurable number of
// prefix bytes stay reserved in front of the payload so a VarInt length
// field can be prepended after the body is known, without reallocating.
//
// The logical length is the maximum position ever written; overwriting
// earlier bytes never shrinks it.
type Packet struct {
	buf      []byte
	reserved int // payload start within buf
	pos      int // absolute write cursor
	length   int // absolute end of written data
}

// NewPacket creates a packet buffer with the given number of reserved
// prefix bytes.
func NewPacket(reserve int) *Packet {
	return &Packet{
		buf:      make([]byte, reserve+64),
		reserved: reserve,
		pos:      reserve,
		length:   reserve,
	}
}

// Len returns the logical payload length, excluding unused reserved bytes.
func (p *Packet) Len() int {
	return p.length - p.reserved
}

// Bytes returns the payload, excluding unused reserved bytes.
func (p *Packet) Bytes() []byte {
	return p.buf[p.reserved:p.length]
}

// UseReserved unshifts n bytes from the reserved region into the payload
// and moves the write cursor to the new payload origin. Returns false if
// fewer than n reserved bytes remain.
func (p *Packet) UseReserved(n int) bool {
	if n > p.reserved {
		return false
	}
	p.reserved -= n
	p.pos = p.reserved
	return true
}

// ensure grows the buffer so that n more bytes fit at the cursor.
// Growth is amortized at roughly 1.6x plus the requested increment.
func (p *Packet) ensure(n int) {
	if p.pos+n <= len(p.buf) {
		return
	}
	ncap := len(p.buf) + len(p.buf)*3/5 + n
	nbuf := make([]byte, ncap)
	copy(nbuf, p.buf[:p.length])
	p.buf = nbuf
}

func (p *Packet) advance(n int) {
	p.pos += n
	if p.pos > p.length {
		p.length = p.pos
	}
}

// PutBool writes a single 0/1 byte.
func (p *Packet) PutBool(v bool) {
	if v {
		p.PutByte(1)
	} else {
		p.PutByte(0)
	}
}

// PutByte writes a single byte.
func (p *Packet) PutByte(v byte) {
	p.ensure(1)
	p.buf[p.pos] = v
	p.advance(1)
}

// PutUint16 writes a big-endian unsigned 16-bit integer.
func (p *Packet) PutUint16(v uint16) {
	p.ensure(2)
	binary.BigEndian.PutUint16(p.buf[p.pos:], v)
	p.advance(2)
}

// PutInt16 writes a big-endian signed 16-bit integer.
func (p *Packet) PutInt16(v int16) {
	p.PutUint16(uint16(v))
}

// PutInt32 writes a big-endian signed 32-bit integer.
func (p *Packet) PutInt32(v int32) {
	p.ensure(4)
	binary.BigEndian.PutUint32(p.buf[p.pos:], uint32(v))
	p.advance(4)
}

// PutInt64 writes a big-endian signed 64-bit integer.
func (p *Packet) PutInt64(v int64) {
	p.ensure(8)
	binary.BigEndian.PutUint64(p.buf[p.pos:], uint64(v))
	p.advance(8)
}

// PutFloat32 writes a big-endian 32-bit float.
func (p *Packet) PutFloat32(v float32) {
	p.ensure(4)
	binary.BigEndian.PutUint32(p.buf[p.pos:], math.Float32bits(v))
	p.advance(4)
}

// PutFloat64 writes a big-endian 64-bit float.
func (p *Packet) PutFloat64(v float64) {
	p.ensure(8)
	binary.BigEndian.PutUint64(p.buf[p.pos:], math.Float64bits(v))
	p.advance(8)
}

// PutVarInt writes a variable-length integer.
func (p *Packet) PutVarInt(v int32) {
	p.ensure(MaxVarIntLen)
	n := PutVarInt(p.buf[p.pos:], v)
	p.advance(n)
}

// PutVarLong writes a variable-length long.
func (p *Packet) PutVarLong(v int64) {
	p.ensure(MaxVarLongLen)
	n := PutVarLong(p.buf[p.pos:], v)
	p.advance(n)
}

// PutString writes a VarInt byte count followed by the UTF-8 bytes.
func (p *Packet) PutString(s string) {
	p.PutVarInt(int32(len(s)))
	p.PutBytes([]byte(s))
}

// PutBytes writes raw bytes.
func (p *Packet) PutBytes(b []byte) {
	p.ensure(len(b))
	copy(p.buf[p.pos:], b)
	p.advance(len(b))
}

// PutPosition writes a packed block position.
func (p *Packet) PutPosition(x, y, z int32) {
	p.PutInt64(PackPosition(x, y, z))
}

// PutUUID writes a raw 128-bit UUID.
func (p *Packet) PutUUID(u [16]byte) {
	p.PutBytes(u[:])
}

// PutSlot writes slot data for an inventory slot.
// Pass itemID = -1 for an empty slot.
func (p *Packet) PutSlot(itemID int16, count byte, damage int16) {
	p.PutInt16(itemID)
	if itemID == -1 {
		return
	}
	p.PutByte(count)
	p.PutInt16(damage)
	// No NBT data
	p.PutByte(0)
}
