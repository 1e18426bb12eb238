package protocol

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// ZlibTransformer implements the 1.8 per-packet compression framing.
// Outbound packets arrive as varint(len) || body; packets whose body
// length reaches the threshold are re-framed as
// varint(total) || varint(len) || deflated(body), smaller ones as
// varint(total) || varint(0) || body.
type ZlibTransformer struct {
	toggle
	threshold int
	level     int

	zw   *zlib.Writer
	zbuf bytes.Buffer
}

// NewZlibTransformer creates a compression transformer with the default
// threshold of 256 bytes.
func NewZlibTransformer() *ZlibTransformer {
	return &ZlibTransformer{threshold: 256, level: zlib.DefaultCompression}
}

// Setup sets the compression threshold and level. Must precede Start.
func (t *ZlibTransformer) Setup(threshold, level int) {
	t.threshold = threshold
	t.level = level
}

// Threshold returns the configured compression threshold.
func (t *ZlibTransformer) Threshold() int { return t.threshold }

// Start implements Transformer.
func (t *ZlibTransformer) Start() error {
	zw, err := zlib.NewWriterLevel(&t.zbuf, t.level)
	if err != nil {
		return fmt.Errorf("zlib transformer: %w", err)
	}
	t.zw = zw
	return t.toggle.Start()
}

// TransformOut implements Transformer.
func (t *ZlibTransformer) TransformOut(data []byte) ([]byte, error) {
	if GotVarInt(data) != VarIntReady {
		return nil, fmt.Errorf("zlib transformer: malformed packet length")
	}
	dlen, dlenLen := VarInt(data)
	body := data[dlenLen:]

	if int(dlen) < t.threshold {
		plen := int32(len(body) + 1)
		out := make([]byte, 0, VarIntSize(plen)+int(plen))
		var tmp [MaxVarIntLen]byte
		out = append(out, tmp[:PutVarInt(tmp[:], plen)]...)
		out = append(out, 0)
		out = append(out, body...)
		return out, nil
	}

	t.zbuf.Reset()
	t.zw.Reset(&t.zbuf)
	if _, err := t.zw.Write(body); err != nil {
		return nil, fmt.Errorf("zlib transformer: deflate: %w", err)
	}
	if err := t.zw.Close(); err != nil {
		return nil, fmt.Errorf("zlib transformer: deflate: %w", err)
	}
	compressed := t.zbuf.Bytes()

	plen := int32(len(compressed) + VarIntSize(dlen))
	out := make([]byte, 0, VarIntSize(plen)+int(plen))
	var tmp [MaxVarIntLen]byte
	out = append(out, tmp[:PutVarInt(tmp[:], plen)]...)
	out = append(out, tmp[:PutVarInt(tmp[:], dlen)]...)
	out = append(out, compressed...)
	return out, nil
}

// TransformIn implements Transformer, decoding as many complete packets
// as the buffer holds back into varint(len) || body framing.
func (t *ZlibTransformer) TransformIn(data []byte) ([]byte, int, error) {
	var out []byte
	consumed := 0

	for {
		rest := data[consumed:]
		if GotVarInt(rest) != VarIntReady {
			break
		}
		plen, plenLen := VarInt(rest)
		if plen <= 0 || plen > MaxPacketLen {
			return nil, 0, fmt.Errorf("zlib transformer: bad packet length %d", plen)
		}
		if len(rest) < plenLen+int(plen) {
			break
		}
		inner := rest[plenLen : plenLen+int(plen)]
		if GotVarInt(inner) != VarIntReady {
			return nil, 0, fmt.Errorf("zlib transformer: malformed data length")
		}
		dlen, dlenLen := VarInt(inner)
		payload := inner[dlenLen:]

		var tmp [MaxVarIntLen]byte
		if dlen == 0 {
			out = append(out, tmp[:PutVarInt(tmp[:], int32(len(payload)))]...)
			out = append(out, payload...)
		} else {
			zr, err := zlib.NewReader(bytes.NewReader(payload))
			if err != nil {
				return nil, 0, fmt.Errorf("zlib transformer: inflate: %w", err)
			}
			inflated, err := io.ReadAll(zr)
			zr.Close()
			if err != nil {
				return nil, 0, fmt.Errorf("zlib transformer: inflate: %w", err)
			}
			if int32(len(inflated)) != dlen {
				return nil, 0, fmt.Errorf("zlib transformer: inflated length %d, expected %d", len(inflated), dlen)
			}
			out = append(out, tmp[:PutVarInt(tmp[:], dlen)]...)
			out = append(out, inflated...)
		}

		consumed += plenLen + int(plen)
	}

	return out, consumed, nil
}

// InEnough implements Transformer by parsing the outer length prefix.
func (t *ZlibTransformer) InEnough(data []byte) InStatus {
	switch GotVarInt(data) {
	case VarIntInvalid:
		return InInvalid
	case VarIntNeedMore:
		return InNeedMore
	}
	plen, plenLen := VarInt(data)
	if plen <= 0 || plen > MaxPacketLen {
		return InInvalid
	}
	if len(data) >= plenLen+int(plen) {
		return InReady
	}
	return InNeedMore
}

// EstimateIn implements Transformer.
func (t *ZlibTransformer) EstimateIn(n int) int { return n * 4 }

// EstimateOut implements Transformer.
func (t *ZlibTransformer) EstimateOut(n int) int { return n + n/1000 + 64 }
