package world

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/stonehall/stonehall/pkg/game"
	"github.com/stonehall/stonehall/pkg/pool"
)

// Data is the persisted description of a world.
type Data struct {
	Name             string
	GeneratorName    string
	GeneratorVersion int32
	Seed             int64

	SpawnX, SpawnY, SpawnZ float64

	// Width and Depth bound a finite world in blocks; negative values
	// mean infinite.
	Width, Depth int32
}

// Player is the view of a connected player the world needs to notify.
type Player interface {
	EntityID() int32
	SendBlockChange(x, y, z int32, id uint16, meta byte)
}

// World owns every loaded chunk; lookups hand out non-owning pointers.
type World struct {
	mu     sync.Mutex
	chunks map[uint64]*Chunk

	data     Data
	gen      Generator
	provider Provider
	async    *AsyncGen
	lighting *Lighting
	log      zerolog.Logger

	edge *Chunk

	playerMu sync.Mutex
	players  map[int32]Player
}

func packKey(cx, cz int32) uint64 {
	return uint64(uint32(cx))<<32 | uint64(uint32(cz))
}

// New creates a world around the given generator. The async generation
// driver gets its own sequence class from the pool, so chunk generation
// for this world is serialized.
func New(data Data, gen Generator, p *pool.Pool, lighting *Lighting, log zerolog.Logger) *World {
	w := &World{
		chunks:   make(map[uint64]*Chunk),
		data:     data,
		gen:      gen,
		lighting: lighting,
		log:      log.With().Str("world", data.Name).Logger(),
		players:  make(map[int32]Player),
	}
	w.async = newAsyncGen(w, p)
	return w
}

// Data returns the world's descriptive record.
func (w *World) Data() Data { return w.data }

// Name returns the world's name.
func (w *World) Name() string { return w.data.Name }

// AsyncGen returns the world's asynchronous chunk generation driver.
func (w *World) AsyncGen() *AsyncGen { return w.async }

// SetProvider attaches a disk backend.
func (w *World) SetProvider(p Provider) { w.provider = p }

// Finite reports whether the world has horizontal bounds.
func (w *World) Finite() bool { return w.data.Width >= 0 || w.data.Depth >= 0 }

// inBounds reports whether the chunk coordinates fall inside a finite
// world's area. Infinite axes accept everything.
func (w *World) inBounds(cx, cz int32) bool {
	if w.data.Width >= 0 {
		if cx < 0 || cx >= (w.data.Width+15)>>4 {
			return false
		}
	}
	if w.data.Depth >= 0 {
		if cz < 0 || cz >= (w.data.Depth+15)>>4 {
			return false
		}
	}
	return true
}

// EdgeChunk returns the shared immutable chunk served beyond a finite
// world's bounds: bedrock up to y=63 with still water at y=64.
func (w *World) EdgeChunk() *Chunk {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.edgeLocked()
}

func (w *World) edgeLocked() *Chunk {
	if w.edge != nil {
		return w.edge
	}
	ch := NewChunk(0, 0)
	for x := int32(0); x < ChunkWidth; x++ {
		for z := int32(0); z < ChunkWidth; z++ {
			for y := int32(0); y <= 63; y++ {
				ch.SetIDMeta(x, y, z, game.BlockBedrock, 0)
			}
			ch.SetIDMeta(x, 64, z, game.BlockStillWater, 0)
		}
	}
	w.lighting.LightChunk(ch)
	w.edge = ch
	return ch
}

// GetChunk returns the loaded chunk at the given chunk coordinates, the
// edge chunk when a finite world is asked for coordinates outside its
// bounds, or nil when not resident.
func (w *World) GetChunk(cx, cz int32) *Chunk {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.inBounds(cx, cz) {
		return w.edgeLocked()
	}
	return w.chunks[packKey(cx, cz)]
}

// LoadChunk returns the chunk at the given coordinates, trying memory,
// then the provider, then synthesis. The new chunk is linked to its
// neighbours and given an initial lighting pass.
func (w *World) LoadChunk(cx, cz int32) *Chunk {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.loadChunkLocked(cx, cz)
}

func (w *World) loadChunkLocked(cx, cz int32) *Chunk {
	if !w.inBounds(cx, cz) {
		return w.edgeLocked()
	}
	if ch, ok := w.chunks[packKey(cx, cz)]; ok {
		return ch
	}

	var ch *Chunk
	if w.provider != nil {
		loaded, err := w.provider.LoadChunk(cx, cz)
		if err != nil {
			w.log.Error().Err(err).Int32("cx", cx).Int32("cz", cz).
				Msg("unreadable chunk, falling back to generation")
		} else if loaded != nil {
			ch = loaded
		}
	}
	if ch == nil {
		ch = NewChunk(cx, cz)
		w.gen.Generate(ch)
	}

	w.insertLocked(ch)
	w.lighting.LightChunk(ch)
	return ch
}

// insertLocked stores the chunk and wires neighbour pointers both ways.
func (w *World) insertLocked(ch *Chunk) {
	w.chunks[packKey(ch.X, ch.Z)] = ch

	link := func(dir, back int, other *Chunk) {
		if other != nil {
			ch.neighbors[dir] = other
			other.neighbors[back] = ch
		}
	}
	link(DirNorth, DirSouth, w.chunks[packKey(ch.X, ch.Z-1)])
	link(DirSouth, DirNorth, w.chunks[packKey(ch.X, ch.Z+1)])
	link(DirEast, DirWest, w.chunks[packKey(ch.X+1, ch.Z)])
	link(DirWest, DirEast, w.chunks[packKey(ch.X-1, ch.Z)])
}

// ChunkCount returns the number of resident chunks.
func (w *World) ChunkCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.chunks)
}

// GetBlock returns the packed id and metadata at world coordinates.
func (w *World) GetBlock(x, y, z int32) (uint16, byte) {
	if y < 0 || y >= ChunkHeight {
		return 0, 0
	}
	w.mu.Lock()
	ch := w.chunks[packKey(x>>4, z>>4)]
	if ch == nil && !w.inBounds(x>>4, z>>4) {
		ch = w.edgeLocked()
	}
	w.mu.Unlock()
	if ch == nil {
		return 0, 0
	}
	return ch.ID(x&0x0F, y, z&0x0F), ch.Meta(x&0x0F, y, z&0x0F)
}

// SetBlock writes a block at world coordinates, loading the chunk when
// needed for a non-air write, and queues a lighting update for the cell.
func (w *World) SetBlock(x, y, z int32, id uint16, meta byte) {
	if y < 0 || y >= ChunkHeight {
		return
	}
	w.mu.Lock()
	var ch *Chunk
	if id != 0 {
		ch = w.loadChunkLocked(x>>4, z>>4)
	} else {
		ch = w.chunks[packKey(x>>4, z>>4)]
	}
	if ch == nil || ch == w.edge {
		w.mu.Unlock()
		return
	}
	ch.SetIDMeta(x&0x0F, y, z&0x0F, id, meta)
	w.mu.Unlock()

	w.lighting.Enqueue(w, x, y, z)

	w.playerMu.Lock()
	for _, pl := range w.players {
		pl.SendBlockChange(x, y, z, id, meta)
	}
	w.playerMu.Unlock()
}

// AddPlayer registers a player with the world.
func (w *World) AddPlayer(pl Player) {
	w.playerMu.Lock()
	w.players[pl.EntityID()] = pl
	w.playerMu.Unlock()
}

// RemovePlayer removes a player from the world.
func (w *World) RemovePlayer(pl Player) {
	w.playerMu.Lock()
	delete(w.players, pl.EntityID())
	w.playerMu.Unlock()
}

// PlayerCount returns the number of players currently in the world.
func (w *World) PlayerCount() int {
	w.playerMu.Lock()
	defer w.playerMu.Unlock()
	return len(w.players)
}

// SaveAll serializes every resident chunk and the world record through
// the attached provider. Without a provider it is a no-op.
func (w *World) SaveAll() error {
	if w.provider == nil {
		return nil
	}
	w.mu.Lock()
	chunks := make([]*Chunk, 0, len(w.chunks))
	for _, ch := range w.chunks {
		chunks = append(chunks, ch)
	}
	w.mu.Unlock()

	for _, ch := range chunks {
		if err := w.provider.SaveChunk(ch); err != nil {
			return err
		}
	}
	return w.provider.SaveData(w.data)
}
