package server

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stonehall/stonehall/pkg/chat"
	"github.com/stonehall/stonehall/pkg/game"
	"github.com/stonehall/stonehall/pkg/protocol"
	"github.com/stonehall/stonehall/pkg/world"
)

// unframe strips the outer length prefix and checks it matches.
func unframe(t *testing.T, pk *protocol.Packet) *protocol.Reader {
	data := pk.Bytes()
	require.Equal(t, protocol.VarIntReady, protocol.GotVarInt(data))
	length, n := protocol.VarInt(data)
	require.Equal(t, int(length), len(data)-n, "length prefix covers the body")
	return protocol.NewReader(data[n:])
}

func TestBuilderFraming(t *testing.T) {
	var b Builder
	r := unframe(t, b.MakeKeepAlive(77))
	opcode, err := r.VarInt()
	require.NoError(t, err)
	require.Equal(t, int32(0x00), opcode)
	id, err := r.VarInt()
	require.NoError(t, err)
	require.Equal(t, int32(77), id)
}

func TestBuilderChunkData(t *testing.T) {
	var b Builder
	ch := world.NewChunk(4, -9)
	ch.SetIDMeta(0, 0, 0, game.BlockStone, 0)

	r := unframe(t, b.MakeChunkData(ch, true))
	opcode, _ := r.VarInt()
	require.Equal(t, int32(0x21), opcode)
	cx, _ := r.Int32()
	cz, _ := r.Int32()
	require.Equal(t, int32(4), cx)
	require.Equal(t, int32(-9), cz)
	cont, _ := r.Bool()
	require.True(t, cont)
	mask, _ := r.Uint16()
	require.Equal(t, uint16(1), mask)
	size, err := r.VarInt()
	require.NoError(t, err)
	require.Equal(t, int(size), r.Remaining())
	require.Equal(t, 8192+2048+2048+256, int(size))
}

func TestBuilderUnloadChunk(t *testing.T) {
	var b Builder
	r := unframe(t, b.MakeUnloadChunk(1, 2))
	opcode, _ := r.VarInt()
	require.Equal(t, int32(0x21), opcode)
	r.Int32()
	r.Int32()
	r.Bool()
	mask, _ := r.Uint16()
	require.Zero(t, mask, "unload is an empty chunk with mask 0")
	size, _ := r.VarInt()
	require.Zero(t, size)
}

func TestBuilderDisconnectPayload(t *testing.T) {
	var b Builder
	r := unframe(t, b.MakeDisconnect(chat.Disconnect("bye")))
	opcode, _ := r.VarInt()
	require.Equal(t, int32(0x40), opcode)
	body, err := r.String()
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &back))
	require.Equal(t, "bye", back["text"])
	require.Equal(t, "red", back["color"])
}

func TestBuilderBlockChange(t *testing.T) {
	var b Builder
	r := unframe(t, b.MakeBlockChange(10, 64, -10, game.BlockStone, 3))
	opcode, _ := r.VarInt()
	require.Equal(t, int32(0x23), opcode)
	x, y, z, err := r.Position()
	require.NoError(t, err)
	require.Equal(t, [3]int32{10, 64, -10}, [3]int32{x, y, z})
	state, _ := r.VarInt()
	require.Equal(t, int32(game.BlockStone)<<4|3, state)
}

func TestBuilderEncryptionRequest(t *testing.T) {
	var b Builder
	pub := []byte{1, 2, 3, 4}
	token := []byte{9, 8, 7, 6}
	r := unframe(t, b.MakeEncryptionRequest("", pub, token))
	opcode, _ := r.VarInt()
	require.Equal(t, int32(0x01), opcode)
	sid, _ := r.String()
	require.Empty(t, sid)
	n, _ := r.VarInt()
	gotPub, _ := r.Bytes(int(n))
	require.Equal(t, pub, gotPub)
	n, _ = r.VarInt()
	gotTok, _ := r.Bytes(int(n))
	require.Equal(t, token, gotTok)
}

func TestBuilderPlayerList(t *testing.T) {
	var b Builder
	id := game.OfflineUUID("Alice")

	r := unframe(t, b.MakePlayerListAdd(id, "Alice", GameModeCreative))
	opcode, _ := r.VarInt()
	require.Equal(t, int32(0x38), opcode)
	action, _ := r.VarInt()
	require.Equal(t, int32(0), action)

	r = unframe(t, b.MakePlayerListRemove(id))
	opcode, _ = r.VarInt()
	require.Equal(t, int32(0x38), opcode)
	action, _ = r.VarInt()
	require.Equal(t, int32(4), action)
}
