package world

import (
	"errors"

	"github.com/stonehall/stonehall/pkg/game"
)

// ErrChunkNotLoaded is returned when an entity is spawned into a chunk
// that is not resident.
var ErrChunkNotLoaded = errors.New("world: chunk not loaded")

// Entity is anything placed in a world: a server-unique id, position,
// velocity, a bounding volume, health in half-hearts and a typed
// metadata dictionary.
type Entity struct {
	ID         int32
	X, Y, Z    float64
	VX, VY, VZ float64
	Yaw, Pitch float32

	// bounding volume
	Width, Height float32

	HalfHearts int16
	Meta       game.Metadata

	world *World
	chunk *Chunk
}

// World returns the world the entity lives in, or nil.
func (e *Entity) World() *World { return e.world }

// Chunk returns the chunk column currently containing the entity.
func (e *Entity) Chunk() *Chunk { return e.chunk }

// SpawnEntity registers an entity in the chunk column containing its
// position. The chunk must already be resident; spawning into an
// unloaded chunk fails with ErrChunkNotLoaded.
func (w *World) SpawnEntity(e *Entity) error {
	cx := int32(int(e.X)) >> 4
	cz := int32(int(e.Z)) >> 4

	ch := w.GetChunk(cx, cz)
	if ch == nil {
		return ErrChunkNotLoaded
	}

	ch.AddEntity(e)
	e.world = w
	e.chunk = ch
	return nil
}

// DespawnEntity removes an entity from its chunk and world.
func (w *World) DespawnEntity(e *Entity) {
	if e.chunk != nil {
		e.chunk.RemoveEntity(e)
	}
	e.chunk = nil
	e.world = nil
}
