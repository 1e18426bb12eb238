package server

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stonehall/stonehall/pkg/chat"
	"github.com/stonehall/stonehall/pkg/game"
	"github.com/stonehall/stonehall/pkg/pool"
	"github.com/stonehall/stonehall/pkg/world"
)

// Game mode constants matching the protocol values.
const (
	GameModeSurvival  byte = 0
	GameModeCreative  byte = 1
	GameModeAdventure byte = 2
	GameModeSpectator byte = 3
)

type chunkPos struct {
	X, Z int32
}

// Player is a logged-in identity bound to one connection: position,
// the set of chunks streamed to the client, the async-generation token,
// keep-alive state, window state and the entity representing the player
// inside the world.
type Player struct {
	srv  *Server
	conn *Connection
	log  zerolog.Logger

	uuid     uuid.UUID
	username string
	eid      int32
	gameMode byte

	mu         sync.Mutex
	x, y, z    float64
	yaw, pitch float32
	onGround   bool
	w          *world.World

	visChunks      map[chunkPos]struct{}
	lastCX, lastCZ int32
	spawned        bool
	genTok         int

	keepAliveExpecting bool
	keepAliveID        int32

	window   *game.Window
	heldSlot int16
	cursor   game.Slot

	entity *world.Entity

	refc pool.RefCounter
}

func (s *Server) newPlayer(conn *Connection, id uuid.UUID, username string) *Player {
	p := &Player{
		srv:       s,
		conn:      conn,
		log:       s.log.With().Str("username", username).Logger(),
		uuid:      id,
		username:  username,
		eid:       s.NextEntityID(),
		gameMode:  GameModeCreative,
		visChunks: make(map[chunkPos]struct{}),
		window:    game.NewPlayerWindow(),
		cursor:    game.EmptySlot(),
	}
	s.addPlayer(p)
	return p
}

// EntityID implements world.Player.
func (p *Player) EntityID() int32 { return p.eid }

// UUID returns the player's identity.
func (p *Player) UUID() uuid.UUID { return p.uuid }

// Username returns the player's name.
func (p *Player) Username() string { return p.username }

// Refc returns the player's reference counter. Background jobs spawned
// on the player's behalf hold it; the gray cleanup waits for zero.
func (p *Player) Refc() *pool.RefCounter { return &p.refc }

// World returns the player's current world.
func (p *Player) World() *world.World {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.w
}

// Position returns the player's coordinates.
func (p *Player) Position() (x, y, z float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.x, p.y, p.z
}

// Yaw returns the player's yaw.
func (p *Player) Yaw() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.yaw
}

// Pitch returns the player's pitch.
func (p *Player) Pitch() float32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pitch
}

// Login runs the join sequence after login success: spawn metadata,
// world membership and the first chunk stream.
func (p *Player) Login(w *world.World) {
	b := p.conn.Protocol().Builder
	d := w.Data()

	p.mu.Lock()
	p.x, p.y, p.z = d.SpawnX, d.SpawnY, d.SpawnZ
	p.lastCX = int32(int(p.x)) >> 4
	p.lastCZ = int32(int(p.z)) >> 4
	p.mu.Unlock()

	p.conn.Send(b.MakeSpawnPosition(int32(d.SpawnX), int32(d.SpawnY), int32(d.SpawnZ)))

	p.JoinWorld(w)

	p.srv.forEachPlayer(func(other *Player) {
		other.conn.Send(other.conn.Protocol().Builder.MakePlayerListAdd(p.uuid, p.username, p.gameMode))
		if other != p {
			x, y, z := p.Position()
			other.conn.Send(other.conn.Protocol().Builder.MakeSpawnPlayer(p.eid, p.uuid, x, y, z, p.Yaw(), p.Pitch()))
			ox, oy, oz := other.Position()
			p.conn.Send(b.MakePlayerListAdd(other.uuid, other.username, other.gameMode))
			p.conn.Send(b.MakeSpawnPlayer(other.eid, other.uuid, ox, oy, oz, other.Yaw(), other.Pitch()))
		}
	})

	p.srv.BroadcastChat(chat.Colored(p.username+" joined the game", "yellow"))
	p.log.Info().Int32("eid", p.eid).Msg("joined the game")
}

// JoinWorld registers the player with a world and starts streaming
// chunks around it.
func (p *Player) JoinWorld(w *world.World) {
	p.mu.Lock()
	prev := p.w
	if prev != nil {
		prev.AsyncGen().FreeToken(p.genTok)
	}
	p.w = w
	p.genTok = w.AsyncGen().MakeToken()
	p.visChunks = make(map[chunkPos]struct{})
	p.spawned = false
	p.mu.Unlock()

	if prev != nil {
		prev.RemovePlayer(p)
	}
	w.AddPlayer(p)
	p.StreamChunks()
}

// LeaveWorld cancels pending generation requests and unregisters the
// player from its world.
func (p *Player) LeaveWorld() {
	p.mu.Lock()
	w := p.w
	p.w = nil
	tok := p.genTok
	p.mu.Unlock()

	if w != nil {
		w.AsyncGen().FreeToken(tok)
		w.RemovePlayer(p)
	}
	if p.entity != nil {
		if ent := p.entity; ent.World() != nil {
			ent.World().DespawnEntity(ent)
		}
		p.entity = nil
	}
}

// ViewDistance is the radius in chunks kept streamed around a player.
func (p *Player) ViewDistance() int32 {
	return p.srv.viewDistance
}

// StreamChunks sends the chunks newly in range, sorted by squared
// distance from the player's chunk, and unloads the ones out of range.
func (p *Player) StreamChunks() {
	p.mu.Lock()
	w := p.w
	if w == nil {
		p.mu.Unlock()
		return
	}
	radius := p.ViewDistance()
	meCX := int32(int(p.x)) >> 4
	meCZ := int32(int(p.z)) >> 4

	var inSight []chunkPos
	for cx := meCX - radius; cx <= meCX+radius; cx++ {
		for cz := meCZ - radius; cz <= meCZ+radius; cz++ {
			inSight = append(inSight, chunkPos{cx, cz})
		}
	}
	sort.SliceStable(inSight, func(i, j int) bool {
		di := sqDist(inSight[i], meCX, meCZ)
		dj := sqDist(inSight[j], meCX, meCZ)
		return di < dj
	})

	var toUnload []chunkPos
	for cp := range p.visChunks {
		if cp.X < meCX-radius || cp.X > meCX+radius || cp.Z < meCZ-radius || cp.Z > meCZ+radius {
			toUnload = append(toUnload, cp)
		}
	}
	for _, cp := range toUnload {
		delete(p.visChunks, cp)
	}

	var toSend []chunkPos
	for _, cp := range inSight {
		if _, ok := p.visChunks[cp]; !ok {
			toSend = append(toSend, cp)
		}
	}
	tok := p.genTok
	p.mu.Unlock()

	b := p.conn.Protocol().Builder
	for _, cp := range toUnload {
		p.conn.Send(b.MakeUnloadChunk(cp.X, cp.Z))
	}

	for _, cp := range toSend {
		ch := w.AsyncGen().Generate(tok, cp.X, cp.Z, func(w *world.World, ch *world.Chunk, cx, cz int32) {
			p.onChunkLoaded(ch, cx, cz)
		}, &p.refc)
		if ch != nil {
			p.onChunkLoaded(ch, cp.X, cp.Z)
		}
	}
}

func sqDist(cp chunkPos, cx, cz int32) int64 {
	dx := int64(cp.X - cx)
	dz := int64(cp.Z - cz)
	return dx*dx + dz*dz
}

// onChunkLoaded fires when a streamed chunk is available, either
// synchronously or from a generation callback.
func (p *Player) onChunkLoaded(ch *world.Chunk, cx, cz int32) {
	if ch == nil {
		return
	}
	b := p.conn.Protocol().Builder
	p.conn.Send(b.MakeChunkData(ch, true))
	p.srv.metrics.ChunksLoaded.Inc()

	p.mu.Lock()
	p.visChunks[chunkPos{cx, cz}] = struct{}{}
	spawnHere := !p.spawned &&
		cx == int32(int(p.x))>>4 && cz == int32(int(p.z))>>4
	if spawnHere {
		p.spawned = true
	}
	x, y, z, yaw, pitch := p.x, p.y, p.z, p.yaw, p.pitch
	p.mu.Unlock()

	if spawnHere {
		// the chunk the player spawns on has arrived
		p.conn.Send(b.MakePositionAndLook(x, y, z, yaw, pitch))
		p.spawnEntity()
	}
}

// spawnEntity creates the player's in-world entity representation.
func (p *Player) spawnEntity() {
	p.mu.Lock()
	w := p.w
	x, y, z := p.x, p.y, p.z
	yaw, pitch := p.yaw, p.pitch
	p.mu.Unlock()
	if w == nil {
		return
	}

	ent := &world.Entity{
		ID: p.eid,
		X:  x, Y: y, Z: z,
		Yaw: yaw, Pitch: pitch,
		Width: 0.6, Height: 1.8,
		HalfHearts: 20,
	}
	ent.Meta.PutByte(0, 0)
	ent.Meta.PutFloat(6, 20.0) // health
	if err := w.SpawnEntity(ent); err != nil {
		p.log.Error().Err(err).Msg("player entity spawn failed")
		return
	}
	p.entity = ent
}

// UpdateGround records the on-ground flag.
func (p *Player) UpdateGround(onGround bool) {
	p.mu.Lock()
	p.onGround = onGround
	p.mu.Unlock()
}

// UpdatePosition moves the player and re-streams chunks when a chunk
// boundary was crossed. Without a boundary cross the streaming
// recompute is skipped entirely.
func (p *Player) UpdatePosition(x, y, z float64, yaw, pitch float32, onGround bool) {
	p.mu.Lock()
	p.x, p.y, p.z = x, y, z
	p.yaw, p.pitch = yaw, pitch
	p.onGround = onGround
	if p.entity != nil {
		p.entity.X, p.entity.Y, p.entity.Z = x, y, z
		p.entity.Yaw, p.entity.Pitch = yaw, pitch
	}
	cx := int32(int(x)) >> 4
	cz := int32(int(z)) >> 4
	crossed := cx != p.lastCX || cz != p.lastCZ
	p.lastCX, p.lastCZ = cx, cz
	p.mu.Unlock()

	p.srv.broadcastEntityTeleport(p)
	if crossed {
		p.StreamChunks()
	}
}

// SendBlockChange implements world.Player.
func (p *Player) SendBlockChange(x, y, z int32, id uint16, meta byte) {
	p.conn.Send(p.conn.Protocol().Builder.MakeBlockChange(x, y, z, id, meta))
}

// SendKeepAlive runs from the server's 15-second task: an outstanding
// probe means the peer is dead, otherwise a fresh probe goes out.
func (p *Player) SendKeepAlive() {
	p.mu.Lock()
	if p.keepAliveExpecting {
		p.mu.Unlock()
		p.log.Warn().Msg("keep-alive timeout")
		p.conn.Disconnect()
		return
	}
	p.keepAliveExpecting = true
	p.keepAliveID = rand.Int31()
	id := p.keepAliveID
	p.mu.Unlock()

	p.conn.Send(p.conn.Protocol().Builder.MakeKeepAlive(id))
}

// HandleKeepAlive clears the outstanding flag on a matching reply.
func (p *Player) HandleKeepAlive(id int32) {
	p.mu.Lock()
	if p.keepAliveExpecting && p.keepAliveID == id {
		p.keepAliveExpecting = false
	}
	p.mu.Unlock()
}

// Window returns the player's inventory window.
func (p *Player) Window() *game.Window {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.window
}

// SetWindowSlot stores a slot in the player's window.
func (p *Player) SetWindowSlot(i int, s game.Slot) {
	p.mu.Lock()
	p.window.SetSlot(i, s)
	p.mu.Unlock()
}

// SetHeldSlot records the selected hotbar slot.
func (p *Player) SetHeldSlot(slot int16) {
	p.mu.Lock()
	p.heldSlot = slot
	p.mu.Unlock()
}

// heldIndex maps the selected hotbar slot to a window index.
func (p *Player) heldIndex() int {
	return 36 + int(p.heldSlot)
}

// ConsumeHeldItem decrements the held stack after a survival placement.
func (p *Player) ConsumeHeldItem() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gameMode != GameModeSurvival {
		return
	}
	s := p.window.Slot(p.heldIndex())
	if s.Empty() {
		return
	}
	s.Count--
	if s.Count == 0 {
		s = game.EmptySlot()
	}
	p.window.SetSlot(p.heldIndex(), s)
}

// ResyncHeldSlot is a hook for aborted placements; it resends the whole
// player window so the client's view of the held slot is restored.
func (p *Player) ResyncHeldSlot() {
	p.conn.Send(p.conn.Protocol().Builder.MakeWindowItems(p.Window()))
}

// CloseWindow clears transient window state.
func (p *Player) CloseWindow() {
	p.mu.Lock()
	p.cursor = game.EmptySlot()
	p.mu.Unlock()
}

// SetGameMode changes the player's game mode.
func (p *Player) SetGameMode(mode byte) {
	p.mu.Lock()
	p.gameMode = mode
	p.mu.Unlock()
}

// Message sends a chat component to this player alone.
func (p *Player) Message(msg chat.Message) {
	p.conn.Send(p.conn.Protocol().Builder.MakeChat(msg, 0))
}

// MessageBuilder returns a stream builder whose Finish sends the
// accumulated fragments to this player.
func (p *Player) MessageBuilder() *chat.Builder {
	return chat.NewBuilder(func(m chat.Message) { p.Message(m) })
}
