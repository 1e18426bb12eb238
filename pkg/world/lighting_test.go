package world

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stonehall/stonehall/pkg/game"
)

func TestLightChunkInitialPass(t *testing.T) {
	l := NewLighting(zerolog.Nop())
	ch := NewChunk(0, 0)
	for x := int32(0); x < 16; x++ {
		for z := int32(0); z < 16; z++ {
			ch.SetIDMeta(x, 4, z, game.BlockStone, 0)
		}
	}
	l.LightChunk(ch)

	require.Equal(t, byte(15), ch.SkyLight(8, 255, 8))
	require.Equal(t, byte(15), ch.SkyLight(8, 5, 8), "air above the heightmap is full daylight")
	require.Equal(t, byte(0), ch.SkyLight(8, 4, 8), "below the heightmap is dark")
	require.Equal(t, byte(0), ch.SkyLight(8, 0, 8))
}

func TestLightChunkOpacityDecay(t *testing.T) {
	l := NewLighting(zerolog.Nop())
	ch := NewChunk(0, 0)
	// leaves absorb one light level each but are not solid-opaque, so
	// the heightmap stays at the stone floor
	ch.SetIDMeta(0, 0, 0, game.BlockStone, 0)
	ch.SetIDMeta(0, 10, 0, game.BlockLeaves, 0)
	ch.SetIDMeta(0, 9, 0, game.BlockLeaves, 0)
	l.LightChunk(ch)

	require.Equal(t, byte(15), ch.SkyLight(0, 11, 0))
	require.Equal(t, byte(14), ch.SkyLight(0, 10, 0))
	require.Equal(t, byte(13), ch.SkyLight(0, 9, 0))
	require.Equal(t, byte(13), ch.SkyLight(0, 8, 0))
}

func TestLightingPropagation(t *testing.T) {
	l := NewLighting(zerolog.Nop())
	l.Start()
	defer l.Stop()

	w := newTestWorld(t, infiniteData("light"))
	w.lighting = l
	ch := w.LoadChunk(0, 0)
	l.LightChunk(ch)

	// carve a hole in the grass layer: the opened cell is still dark from
	// the initial pass, and the engine lights it fully because it now sits
	// at the column's heightmap
	ch.SetIDMeta(8, 4, 8, game.BlockAir, 0)
	require.Equal(t, int32(4), ch.Height(8, 8))

	l.Enqueue(w, 8, 4, 8)
	require.Eventually(t, func() bool {
		return ch.SkyLight(8, 4, 8) == 15
	}, 2*time.Second, 5*time.Millisecond, "opened cell reaches daylight")
}

func TestEnqueueIgnoresOutOfRange(t *testing.T) {
	l := NewLighting(zerolog.Nop())
	w := newTestWorld(t, infiniteData("t"))
	l.Enqueue(w, 0, -1, 0)
	l.Enqueue(w, 0, 256, 0)
	require.Equal(t, 0, l.QueueLen())
}
