package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

// frame builds the pre-compression framing: varint(len) || body.
func frame(body []byte) []byte {
	p := NewPacket(MaxVarIntLen)
	p.PutBytes(body)
	p.UseReserved(VarIntSize(int32(len(body))))
	p.PutVarInt(int32(len(body)))
	return p.Bytes()
}

func TestZlibBelowThreshold(t *testing.T) {
	tr := NewZlibTransformer()
	tr.Setup(256, 6)
	require.NoError(t, tr.Start())

	body := []byte{0x00, 0x01, 0x02}
	out, err := tr.TransformOut(frame(body))
	require.NoError(t, err)

	// outer_len || varint(0) || raw body
	plen, n := VarInt(out)
	require.Equal(t, int32(len(body)+1), plen)
	require.Equal(t, byte(0), out[n])
	require.Equal(t, body, out[n+1:])

	back, consumed, err := tr.TransformIn(out)
	require.NoError(t, err)
	require.Equal(t, len(out), consumed)
	require.Equal(t, frame(body), back)
}

func TestZlibAboveThreshold(t *testing.T) {
	tr := NewZlibTransformer()
	tr.Setup(16, 6)
	require.NoError(t, tr.Start())

	body := bytes.Repeat([]byte{0x21, 0x42}, 300)
	out, err := tr.TransformOut(frame(body))
	require.NoError(t, err)

	plen, n := VarInt(out)
	dlen, _ := VarInt(out[n:])
	require.Equal(t, int32(len(body)), dlen)
	require.Equal(t, int(plen)+n, len(out))

	back, consumed, err := tr.TransformIn(out)
	require.NoError(t, err)
	require.Equal(t, len(out), consumed)
	require.Equal(t, frame(body), back)
}

func TestZlibMultiplePacketsOneBuffer(t *testing.T) {
	tr := NewZlibTransformer()
	tr.Setup(16, 6)
	require.NoError(t, tr.Start())

	a := bytes.Repeat([]byte{0xAA}, 100)
	b := []byte{0x01}
	outA, err := tr.TransformOut(frame(a))
	require.NoError(t, err)
	outB, err := tr.TransformOut(frame(b))
	require.NoError(t, err)

	joined := append(append([]byte(nil), outA...), outB...)
	back, consumed, err := tr.TransformIn(joined)
	require.NoError(t, err)
	require.Equal(t, len(joined), consumed)
	require.Equal(t, append(append([]byte(nil), frame(a)...), frame(b)...), back)
}

func TestZlibInEnough(t *testing.T) {
	tr := NewZlibTransformer()
	tr.Setup(256, 6)
	require.NoError(t, tr.Start())

	out, err := tr.TransformOut(frame([]byte{1, 2, 3}))
	require.NoError(t, err)

	require.Equal(t, InNeedMore, tr.InEnough(out[:1]))
	require.Equal(t, InNeedMore, tr.InEnough(out[:len(out)-1]))
	require.Equal(t, InReady, tr.InEnough(out))
}
