package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPacketReservedPrefix(t *testing.T) {
	p := NewPacket(MaxVarIntLen)
	p.PutVarInt(0x21)
	p.PutString("hello")

	body := int32(p.Len())
	require.True(t, p.UseReserved(VarIntSize(body)))
	p.PutVarInt(body)

	out := p.Bytes()
	length, n := VarInt(out)
	require.Equal(t, body, length)
	require.Equal(t, int(body), len(out)-n)
}

func TestPacketLengthIsMaxPosition(t *testing.T) {
	p := NewPacket(0)
	p.PutInt64(1)
	require.Equal(t, 8, p.Len())

	// rewriting into the reserved region must not shrink the length
	p2 := NewPacket(2)
	p2.PutInt32(7)
	p2.UseReserved(2)
	p2.PutByte(0xFF)
	require.Equal(t, 6, p2.Len())
}

func TestPacketGrowth(t *testing.T) {
	p := NewPacket(0)
	big := bytes.Repeat([]byte{0xAB}, 10000)
	p.PutBytes(big)
	require.Equal(t, big, p.Bytes())
}

func TestReaderRoundTrip(t *testing.T) {
	p := NewPacket(0)
	p.PutBool(true)
	p.PutByte(0x42)
	p.PutUint16(65535)
	p.PutInt16(-2)
	p.PutInt32(-100000)
	p.PutInt64(1 << 40)
	p.PutFloat32(1.5)
	p.PutFloat64(-2.25)
	p.PutVarInt(300)
	p.PutVarLong(1 << 40)
	p.PutString("stonehall")
	p.PutPosition(100, 64, -100)

	r := NewReader(p.Bytes())
	b, err := r.Bool()
	require.NoError(t, err)
	require.True(t, b)
	by, err := r.Byte()
	require.NoError(t, err)
	require.Equal(t, byte(0x42), by)
	u16, err := r.Uint16()
	require.NoError(t, err)
	require.Equal(t, uint16(65535), u16)
	i16, err := r.Int16()
	require.NoError(t, err)
	require.Equal(t, int16(-2), i16)
	i32, err := r.Int32()
	require.NoError(t, err)
	require.Equal(t, int32(-100000), i32)
	i64, err := r.Int64()
	require.NoError(t, err)
	require.Equal(t, int64(1<<40), i64)
	f32, err := r.Float32()
	require.NoError(t, err)
	require.Equal(t, float32(1.5), f32)
	f64, err := r.Float64()
	require.NoError(t, err)
	require.Equal(t, -2.25, f64)
	vi, err := r.VarInt()
	require.NoError(t, err)
	require.Equal(t, int32(300), vi)
	vl, err := r.VarLong()
	require.NoError(t, err)
	require.Equal(t, int64(1<<40), vl)
	s, err := r.String()
	require.NoError(t, err)
	require.Equal(t, "stonehall", s)
	x, y, z, err := r.Position()
	require.NoError(t, err)
	require.Equal(t, [3]int32{100, 64, -100}, [3]int32{x, y, z})
	require.Equal(t, 0, r.Remaining())
}

func TestReaderOutOfRange(t *testing.T) {
	r := NewReader([]byte{0x01})
	if _, err := r.Int32(); err != ErrOutOfRange {
		t.Fatalf("Int32 on short buffer: err = %v, want ErrOutOfRange", err)
	}
}

func TestReaderRewind(t *testing.T) {
	r := NewReader([]byte{0x05, 0x06})
	r.Byte()
	r.Byte()
	r.Rewind()
	b, err := r.Byte()
	require.NoError(t, err)
	require.Equal(t, byte(0x05), b)
}

func TestReaderCopyOwnsBuffer(t *testing.T) {
	src := []byte{1, 2, 3}
	r := NewReaderCopy(src)
	src[0] = 9
	b, err := r.Byte()
	require.NoError(t, err)
	require.Equal(t, byte(1), b)
	require.True(t, r.IsCopy())
}

func TestReaderInvalidString(t *testing.T) {
	p := NewPacket(0)
	p.PutVarInt(1)
	p.PutBytes([]byte{0x80}) // lone continuation byte
	r := NewReader(p.Bytes())
	if _, err := r.String(); err == nil {
		t.Fatal("invalid UTF-8 string accepted")
	}
}

func TestSlotEncoding(t *testing.T) {
	p := NewPacket(0)
	p.PutSlot(-1, 0, 0)
	p.PutSlot(276, 1, 100)

	r := NewReader(p.Bytes())
	id, _, _, err := r.Slot()
	require.NoError(t, err)
	require.Equal(t, int16(-1), id)

	id, count, damage, err := r.Slot()
	require.NoError(t, err)
	require.Equal(t, int16(276), id)
	require.Equal(t, byte(1), count)
	require.Equal(t, int16(100), damage)
}
