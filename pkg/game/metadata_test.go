package game

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stonehall/stonehall/pkg/protocol"
)

func encodeMeta(m *Metadata) []byte {
	p := protocol.NewPacket(0)
	m.Encode(p)
	return p.Bytes()
}

func TestMetadataHeaderAndTerminator(t *testing.T) {
	var m Metadata
	m.PutByte(0, 0x20)

	out := encodeMeta(&m)
	require.Equal(t, []byte{MetaByte<<5 | 0, 0x20, 0x7F}, out)
}

func TestMetadataTypedPayloads(t *testing.T) {
	var m Metadata
	m.PutShort(1, -5)
	m.PutInt(2, 70000)
	m.PutFloat(6, 20.0)
	m.PutString(3, "hi")
	m.PutSlot(10, Slot{ID: 276, Count: 1, Damage: 0})

	out := encodeMeta(&m)
	require.Equal(t, byte(0x7F), out[len(out)-1])

	// entries appear in insertion order; check the first header
	require.Equal(t, byte(MetaShort<<5|1), out[0])
}

func TestMetadataReplacesSameIndex(t *testing.T) {
	var m Metadata
	m.PutByte(0, 1)
	m.PutByte(0, 2)

	out := encodeMeta(&m)
	require.Equal(t, []byte{MetaByte<<5 | 0, 2, 0x7F}, out)
}

func TestMetadataRotation(t *testing.T) {
	var m Metadata
	m.PutRotation(7, 1, 2, 3)
	out := encodeMeta(&m)
	// header + three f32 + terminator
	require.Len(t, out, 1+12+1)
	require.Equal(t, byte(MetaRotation<<5|7), out[0])
}
