package protocol

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

var testSecret = []byte("0123456789abcdef")

func TestAESRoundTrip(t *testing.T) {
	tr := NewAESTransformer()
	require.NoError(t, tr.Setup(testSecret))
	require.NoError(t, tr.Start())

	plain := []byte("the quick brown fox jumps over the lazy dog")
	enc, err := tr.TransformOut(plain)
	require.NoError(t, err)
	require.NotEqual(t, plain, enc)
	require.Equal(t, len(plain), len(enc))

	dec, consumed, err := tr.TransformIn(enc)
	require.NoError(t, err)
	require.Equal(t, len(enc), consumed)
	require.Equal(t, plain, dec)
}

// The cipher is a continuous stream: splitting the input must not
// change the output.
func TestAESStreamContinuity(t *testing.T) {
	whole := NewAESTransformer()
	require.NoError(t, whole.Setup(testSecret))
	require.NoError(t, whole.Start())

	split := NewAESTransformer()
	require.NoError(t, split.Setup(testSecret))
	require.NoError(t, split.Start())

	msg := bytes.Repeat([]byte{0x5A, 0x01, 0xFF}, 40)
	full, err := whole.TransformOut(msg)
	require.NoError(t, err)

	var parts []byte
	for i := 0; i < len(msg); i += 7 {
		end := i + 7
		if end > len(msg) {
			end = len(msg)
		}
		out, err := split.TransformOut(msg[i:end])
		require.NoError(t, err)
		parts = append(parts, out...)
	}
	require.Equal(t, full, parts)
}

func TestAESSetupRejectsBadSecret(t *testing.T) {
	tr := NewAESTransformer()
	require.Error(t, tr.Setup([]byte("short")))
	require.Error(t, tr.Start())
}

func TestAESInEnoughAlwaysReady(t *testing.T) {
	tr := NewAESTransformer()
	require.NoError(t, tr.Setup(testSecret))
	require.Equal(t, InReady, tr.InEnough(nil))
	require.Equal(t, InReady, tr.InEnough([]byte{1}))
}

// The full pipeline: body -> compression -> encryption, reversed on the
// way in.
func TestChainedTransformRoundTrip(t *testing.T) {
	zOut := NewZlibTransformer()
	zOut.Setup(16, 6)
	require.NoError(t, zOut.Start())
	aOut := NewAESTransformer()
	require.NoError(t, aOut.Setup(testSecret))
	require.NoError(t, aOut.Start())

	zIn := NewZlibTransformer()
	zIn.Setup(16, 6)
	require.NoError(t, zIn.Start())
	aIn := NewAESTransformer()
	require.NoError(t, aIn.Setup(testSecret))
	require.NoError(t, aIn.Start())

	body := bytes.Repeat([]byte{0x21, 0x07}, 200)
	framed := frame(body)

	mid, err := zOut.TransformOut(framed)
	require.NoError(t, err)
	wire, err := aOut.TransformOut(mid)
	require.NoError(t, err)

	dec, _, err := aIn.TransformIn(wire)
	require.NoError(t, err)
	back, _, err := zIn.TransformIn(dec)
	require.NoError(t, err)
	require.Equal(t, framed, back)
}
