package server

import (
	"github.com/google/uuid"

	"github.com/stonehall/stonehall/pkg/chat"
	"github.com/stonehall/stonehall/pkg/game"
	"github.com/stonehall/stonehall/pkg/protocol"
	"github.com/stonehall/stonehall/pkg/world"
)

// Clientbound opcodes.
const (
	opStatusResponse = 0x00
	opStatusPong     = 0x01

	opLoginDisconnect     = 0x00
	opLoginEncryptRequest = 0x01
	opLoginSuccess        = 0x02
	opLoginSetCompression = 0x03

	opPlayKeepAlive      = 0x00
	opPlayJoinGame       = 0x01
	opPlayChat           = 0x02
	opPlaySpawnPosition  = 0x05
	opPlayPosAndLook     = 0x08
	opPlaySpawnPlayer    = 0x0C
	opPlayEntityTeleport = 0x18
	opPlayEntityMetadata = 0x1C
	opPlayChunkData      = 0x21
	opPlayBlockChange    = 0x23
	opPlayWindowItems    = 0x30
	opPlayConfirmTrans   = 0x32
	opPlayPlayerList     = 0x38
	opPlayDisconnect     = 0x40
	opPlaySetCompression = 0x46
)

// Builder constructs clientbound packets. Packets are created with a
// reserved prefix so the outer length VarInt can be written after the
// body is complete.
type Builder struct{}

// newPacket starts a packet body with the given opcode.
func (b *Builder) newPacket(opcode int32) *protocol.Packet {
	p := protocol.NewPacket(protocol.MaxVarIntLen)
	p.PutVarInt(opcode)
	return p
}

// finish prepends the body length into the reserved prefix.
func (b *Builder) finish(p *protocol.Packet) *protocol.Packet {
	n := int32(p.Len())
	p.UseReserved(protocol.VarIntSize(n))
	p.PutVarInt(n)
	return p
}

// MakeStatusResponse builds the status-response packet around the
// server list JSON.
func (b *Builder) MakeStatusResponse(statusJSON string) *protocol.Packet {
	p := b.newPacket(opStatusResponse)
	p.PutString(statusJSON)
	return b.finish(p)
}

// MakeStatusPong echoes the client's ping payload.
func (b *Builder) MakeStatusPong(payload int64) *protocol.Packet {
	p := b.newPacket(opStatusPong)
	p.PutInt64(payload)
	return b.finish(p)
}

// MakeLoginDisconnect builds a login-state disconnect with a chat
// component payload.
func (b *Builder) MakeLoginDisconnect(msg chat.Message) *protocol.Packet {
	p := b.newPacket(opLoginDisconnect)
	p.PutString(msg.String())
	return b.finish(p)
}

// MakeEncryptionRequest carries the server's public key and the random
// verification token.
func (b *Builder) MakeEncryptionRequest(serverID string, publicKeyDER, verifyToken []byte) *protocol.Packet {
	p := b.newPacket(opLoginEncryptRequest)
	p.PutString(serverID)
	p.PutVarInt(int32(len(publicKeyDER)))
	p.PutBytes(publicKeyDER)
	p.PutVarInt(int32(len(verifyToken)))
	p.PutBytes(verifyToken)
	return b.finish(p)
}

// MakeLoginSuccess confirms login with the player's textual UUID.
func (b *Builder) MakeLoginSuccess(id uuid.UUID, username string) *protocol.Packet {
	p := b.newPacket(opLoginSuccess)
	p.PutString(id.String())
	p.PutString(username)
	return b.finish(p)
}

// MakeSetCompression announces the compression threshold during login.
func (b *Builder) MakeSetCompression(threshold int) *protocol.Packet {
	p := b.newPacket(opLoginSetCompression)
	p.PutVarInt(int32(threshold))
	return b.finish(p)
}

// MakeSetCompressionPlay announces the compression threshold in play.
func (b *Builder) MakeSetCompressionPlay(threshold int) *protocol.Packet {
	p := b.newPacket(opPlaySetCompression)
	p.PutVarInt(int32(threshold))
	return b.finish(p)
}

// MakeKeepAlive builds a play keep-alive probe.
func (b *Builder) MakeKeepAlive(id int32) *protocol.Packet {
	p := b.newPacket(opPlayKeepAlive)
	p.PutVarInt(id)
	return b.finish(p)
}

// MakeJoinGame builds the join-game packet.
func (b *Builder) MakeJoinGame(eid int32, gameMode byte, maxPlayers int) *protocol.Packet {
	p := b.newPacket(opPlayJoinGame)
	p.PutInt32(eid)
	p.PutByte(gameMode)
	p.PutByte(0) // dimension: overworld
	p.PutByte(0) // difficulty: peaceful
	p.PutByte(byte(maxPlayers))
	p.PutString("default")
	p.PutBool(true) // reduced debug info
	return b.finish(p)
}

// MakeChat builds a chat packet. Position 0 is the chat area.
func (b *Builder) MakeChat(msg chat.Message, position byte) *protocol.Packet {
	p := b.newPacket(opPlayChat)
	p.PutString(msg.String())
	p.PutByte(position)
	return b.finish(p)
}

// MakeSpawnPosition points the client's compass at the world spawn.
func (b *Builder) MakeSpawnPosition(x, y, z int32) *protocol.Packet {
	p := b.newPacket(opPlaySpawnPosition)
	p.PutPosition(x, y, z)
	return b.finish(p)
}

// MakePositionAndLook teleports the client (all fields absolute).
func (b *Builder) MakePositionAndLook(x, y, z float64, yaw, pitch float32) *protocol.Packet {
	p := b.newPacket(opPlayPosAndLook)
	p.PutFloat64(x)
	p.PutFloat64(y)
	p.PutFloat64(z)
	p.PutFloat32(yaw)
	p.PutFloat32(pitch)
	p.PutByte(0)
	return b.finish(p)
}

// MakeSpawnPlayer makes a player entity visible to another client.
func (b *Builder) MakeSpawnPlayer(eid int32, id uuid.UUID, x, y, z float64, yaw, pitch float32) *protocol.Packet {
	p := b.newPacket(opPlaySpawnPlayer)
	p.PutVarInt(eid)
	p.PutUUID(id)
	p.PutInt32(int32(x * 32)) // fixed-point
	p.PutInt32(int32(y * 32))
	p.PutInt32(int32(z * 32))
	p.PutByte(byte(yaw * 256 / 360))
	p.PutByte(byte(pitch * 256 / 360))
	p.PutInt16(0)   // current item
	p.PutByte(0x7F) // metadata terminator
	return b.finish(p)
}

// MakeEntityTeleport moves an entity for other clients.
func (b *Builder) MakeEntityTeleport(eid int32, x, y, z float64, yaw, pitch float32, onGround bool) *protocol.Packet {
	p := b.newPacket(opPlayEntityTeleport)
	p.PutVarInt(eid)
	p.PutInt32(int32(x * 32))
	p.PutInt32(int32(y * 32))
	p.PutInt32(int32(z * 32))
	p.PutByte(byte(yaw * 256 / 360))
	p.PutByte(byte(pitch * 256 / 360))
	p.PutBool(onGround)
	return b.finish(p)
}

// MakeEntityMetadata sends an entity's metadata dictionary.
func (b *Builder) MakeEntityMetadata(eid int32, meta *game.Metadata) *protocol.Packet {
	p := b.newPacket(opPlayEntityMetadata)
	p.PutVarInt(eid)
	meta.Encode(p)
	return b.finish(p)
}

// MakeChunkData serializes a chunk column.
func (b *Builder) MakeChunkData(ch *world.Chunk, continuous bool) *protocol.Packet {
	data, mask := ch.Serialize(continuous)
	p := b.newPacket(opPlayChunkData)
	p.PutInt32(ch.X)
	p.PutInt32(ch.Z)
	p.PutBool(continuous)
	p.PutUint16(mask)
	p.PutVarInt(int32(len(data)))
	p.PutBytes(data)
	return b.finish(p)
}

// MakeUnloadChunk is the empty chunk-data packet that unloads a column.
func (b *Builder) MakeUnloadChunk(cx, cz int32) *protocol.Packet {
	p := b.newPacket(opPlayChunkData)
	p.PutInt32(cx)
	p.PutInt32(cz)
	p.PutBool(true)
	p.PutUint16(0)
	p.PutVarInt(0)
	return b.finish(p)
}

// MakeBlockChange announces one block write.
func (b *Builder) MakeBlockChange(x, y, z int32, id uint16, meta byte) *protocol.Packet {
	p := b.newPacket(opPlayBlockChange)
	p.PutPosition(x, y, z)
	p.PutVarInt(int32(id)<<4 | int32(meta))
	return b.finish(p)
}

// MakeWindowItems syncs every slot of a window.
func (b *Builder) MakeWindowItems(w *game.Window) *protocol.Packet {
	p := b.newPacket(opPlayWindowItems)
	p.PutByte(w.ID)
	p.PutInt16(int16(w.Size()))
	for i := 0; i < w.Size(); i++ {
		s := w.Slot(i)
		p.PutSlot(s.WireID(), s.Count, s.Damage)
	}
	return b.finish(p)
}

// MakeConfirmTransaction acknowledges a window click.
func (b *Builder) MakeConfirmTransaction(windowID byte, action int16, accepted bool) *protocol.Packet {
	p := b.newPacket(opPlayConfirmTrans)
	p.PutByte(windowID)
	p.PutInt16(action)
	p.PutBool(accepted)
	return b.finish(p)
}

// MakePlayerListAdd adds one entry to the client's player list.
func (b *Builder) MakePlayerListAdd(id uuid.UUID, username string, gameMode byte) *protocol.Packet {
	p := b.newPacket(opPlayPlayerList)
	p.PutVarInt(0) // action: add
	p.PutVarInt(1)
	p.PutUUID(id)
	p.PutString(username)
	p.PutVarInt(0) // properties
	p.PutVarInt(int32(gameMode))
	p.PutVarInt(0)   // ping
	p.PutBool(false) // no display name
	return b.finish(p)
}

// MakePlayerListRemove removes one entry from the client's player list.
func (b *Builder) MakePlayerListRemove(id uuid.UUID) *protocol.Packet {
	p := b.newPacket(opPlayPlayerList)
	p.PutVarInt(4) // action: remove
	p.PutVarInt(1)
	p.PutUUID(id)
	return b.finish(p)
}

// MakeDisconnect builds a play-state disconnect with a chat component.
func (b *Builder) MakeDisconnect(msg chat.Message) *protocol.Packet {
	p := b.newPacket(opPlayDisconnect)
	p.PutString(msg.String())
	return b.finish(p)
}
