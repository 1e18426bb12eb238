package game

import "github.com/stonehall/stonehall/pkg/protocol"

// Metadata value types as encoded on the wire.
const (
	MetaByte     = 0
	MetaShort    = 1
	MetaInt      = 2
	MetaFloat    = 3
	MetaString   = 4
	MetaSlot     = 5
	MetaPosition = 6
	MetaRotation = 7
)

type metaEntry struct {
	index byte
	typ   byte
	b     byte
	i16   int16
	i32   int32
	f32   [3]float32
	s     string
	slot  Slot
	pos   [3]int32
}

// Metadata maps a small integer index to a typed value, encoded as a
// sequence of (type<<5 | index) bytes with payloads, terminated by 0x7F.
// Later writes to an index replace the earlier value in place.
type Metadata struct {
	entries []metaEntry
}

func (m *Metadata) put(e metaEntry) {
	for i := range m.entries {
		if m.entries[i].index == e.index {
			m.entries[i] = e
			return
		}
	}
	m.entries = append(m.entries, e)
}

// PutByte stores a byte value.
func (m *Metadata) PutByte(index, v byte) {
	m.put(metaEntry{index: index, typ: MetaByte, b: v})
}

// PutShort stores a 16-bit value.
func (m *Metadata) PutShort(index byte, v int16) {
	m.put(metaEntry{index: index, typ: MetaShort, i16: v})
}

// PutInt stores a 32-bit value.
func (m *Metadata) PutInt(index byte, v int32) {
	m.put(metaEntry{index: index, typ: MetaInt, i32: v})
}

// PutFloat stores a float value.
func (m *Metadata) PutFloat(index byte, v float32) {
	m.put(metaEntry{index: index, typ: MetaFloat, f32: [3]float32{v}})
}

// PutString stores a string value.
func (m *Metadata) PutString(index byte, v string) {
	m.put(metaEntry{index: index, typ: MetaString, s: v})
}

// PutSlot stores a slot value.
func (m *Metadata) PutSlot(index byte, v Slot) {
	m.put(metaEntry{index: index, typ: MetaSlot, slot: v})
}

// PutPosition stores a block position triple.
func (m *Metadata) PutPosition(index byte, x, y, z int32) {
	m.put(metaEntry{index: index, typ: MetaPosition, pos: [3]int32{x, y, z}})
}

// PutRotation stores a rotation triple.
func (m *Metadata) PutRotation(index byte, pitch, yaw, roll float32) {
	m.put(metaEntry{index: index, typ: MetaRotation, f32: [3]float32{pitch, yaw, roll}})
}

// Encode writes the metadata dictionary into p, including the 0x7F
// terminator.
func (m *Metadata) Encode(p *protocol.Packet) {
	for _, e := range m.entries {
		p.PutByte(e.typ<<5 | e.index&0x1F)
		switch e.typ {
		case MetaByte:
			p.PutByte(e.b)
		case MetaShort:
			p.PutInt16(e.i16)
		case MetaInt:
			p.PutInt32(e.i32)
		case MetaFloat:
			p.PutFloat32(e.f32[0])
		case MetaString:
			p.PutString(e.s)
		case MetaSlot:
			p.PutSlot(e.slot.WireID(), e.slot.Count, e.slot.Damage)
		case MetaPosition:
			p.PutInt32(e.pos[0])
			p.PutInt32(e.pos[1])
			p.PutInt32(e.pos[2])
		case MetaRotation:
			p.PutFloat32(e.f32[0])
			p.PutFloat32(e.f32[1])
			p.PutFloat32(e.f32[2])
		}
	}
	p.PutByte(0x7F)
}
