package world

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stonehall/stonehall/pkg/game"
	"github.com/stonehall/stonehall/pkg/pool"
)

func newTestWorld(t *testing.T, data Data) *World {
	p := pool.New()
	p.Init(2)
	t.Cleanup(p.Stop)

	l := NewLighting(zerolog.Nop())

	gen, err := NewGenerator("flatgrass", data.Seed)
	require.NoError(t, err)
	return New(data, gen, p, l, zerolog.Nop())
}

func infiniteData(name string) Data {
	return Data{Name: name, GeneratorName: "flatgrass", SpawnY: 5, Width: -1, Depth: -1}
}

func TestLoadChunkGenerates(t *testing.T) {
	w := newTestWorld(t, infiniteData("t"))
	ch := w.LoadChunk(0, 0)
	require.NotNil(t, ch)
	require.Equal(t, uint16(game.BlockGrass), ch.ID(8, 4, 8))
	require.Equal(t, uint16(game.BlockBedrock), ch.ID(8, 0, 8))
	require.Equal(t, int32(5), ch.Height(8, 8))

	require.Same(t, ch, w.GetChunk(0, 0), "lookups return the owned instance")
	require.Same(t, ch, w.LoadChunk(0, 0), "a second load returns the same chunk")
}

func TestNeighborWiring(t *testing.T) {
	w := newTestWorld(t, infiniteData("t"))
	a := w.LoadChunk(0, 0)
	b := w.LoadChunk(1, 0)
	c := w.LoadChunk(0, -1)

	require.Same(t, b, a.Neighbor(DirEast))
	require.Same(t, a, b.Neighbor(DirWest))
	require.Same(t, c, a.Neighbor(DirNorth))
	require.Same(t, a, c.Neighbor(DirSouth))
}

func TestSetGetBlock(t *testing.T) {
	w := newTestWorld(t, infiniteData("t"))
	w.SetBlock(100, 70, -50, game.BlockStone, 3)
	id, meta := w.GetBlock(100, 70, -50)
	require.Equal(t, uint16(game.BlockStone), id)
	require.Equal(t, byte(3), meta)

	// air writes into unloaded chunks load nothing
	w.SetBlock(5000, 70, 5000, game.BlockAir, 0)
	require.Nil(t, w.GetChunk(312, 312))
}

func TestFiniteWorldEdgeChunk(t *testing.T) {
	w := newTestWorld(t, Data{
		Name: "finite", GeneratorName: "flatgrass",
		Width: 64, Depth: 64,
	})

	inside := w.LoadChunk(0, 0)
	require.NotSame(t, w.EdgeChunk(), inside)

	out := w.GetChunk(100, 0)
	require.Same(t, w.EdgeChunk(), out, "out-of-bounds serves the shared edge chunk")
	require.Same(t, w.EdgeChunk(), w.GetChunk(-1, 2))

	require.Equal(t, uint16(game.BlockBedrock), out.ID(0, 63, 0))
	require.Equal(t, uint16(game.BlockStillWater), out.ID(0, 64, 0))
	require.Equal(t, uint16(0), out.ID(0, 65, 0))

	// writes to the edge chunk are rejected
	w.SetBlock(100*16, 70, 0, game.BlockStone, 0)
	id, _ := w.GetBlock(100*16, 70, 0)
	require.Equal(t, uint16(0), id)
}

type countingPlayer struct {
	eid     int32
	changes int
}

func (p *countingPlayer) EntityID() int32 { return p.eid }
func (p *countingPlayer) SendBlockChange(x, y, z int32, id uint16, meta byte) {
	p.changes++
}

func TestSetBlockNotifiesPlayers(t *testing.T) {
	w := newTestWorld(t, infiniteData("t"))
	pl := &countingPlayer{eid: 1}
	w.AddPlayer(pl)
	require.Equal(t, 1, w.PlayerCount())

	w.SetBlock(0, 10, 0, game.BlockStone, 0)
	require.Equal(t, 1, pl.changes)

	w.RemovePlayer(pl)
	w.SetBlock(0, 11, 0, game.BlockStone, 0)
	require.Equal(t, 1, pl.changes)
}

func TestSpawnEntityRequiresLoadedChunk(t *testing.T) {
	w := newTestWorld(t, infiniteData("t"))
	e := &Entity{ID: 1, X: 8, Y: 5, Z: 8}
	require.ErrorIs(t, w.SpawnEntity(e), ErrChunkNotLoaded)

	w.LoadChunk(0, 0)
	require.NoError(t, w.SpawnEntity(e))
	require.Same(t, w.GetChunk(0, 0), e.Chunk())

	w.DespawnEntity(e)
	require.Nil(t, e.Chunk())
	require.Empty(t, w.GetChunk(0, 0).Entities())
}
