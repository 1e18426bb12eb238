package anvil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stonehall/stonehall/pkg/game"
	"github.com/stonehall/stonehall/pkg/world"
)

func newTestProvider(t *testing.T) (*Provider, world.Data) {
	dir := filepath.Join(t.TempDir(), "testworld")
	data := world.Data{
		Name:          "testworld",
		GeneratorName: "flatgrass",
		Seed:          12345,
		SpawnX:        0.5, SpawnY: 66, SpawnZ: 0.5,
		Width: -1, Depth: -1,
	}
	p := &Provider{}
	require.NoError(t, p.Create(dir, data))
	return p, data
}

func TestProviderRegistryRecognizes(t *testing.T) {
	p, _ := newTestProvider(t)
	require.Equal(t, "anvil", world.RecognizeProvider(p.path))
	require.Equal(t, "", world.RecognizeProvider(t.TempDir()))

	fresh, err := world.NewProvider("anvil")
	require.NoError(t, err)
	require.NoError(t, fresh.Open(p.path))
}

func TestLevelDataRoundTrip(t *testing.T) {
	p, data := newTestProvider(t)

	got, err := p.LoadData()
	require.NoError(t, err)
	require.Equal(t, data.Name, got.Name)
	require.Equal(t, data.GeneratorName, got.GeneratorName)
	require.Equal(t, data.Seed, got.Seed)
	require.Equal(t, int32(-1), got.Width)

	finite := data
	finite.Width, finite.Depth = 128, 256
	require.NoError(t, p.SaveData(finite))
	got, err = p.LoadData()
	require.NoError(t, err)
	require.Equal(t, int32(128), got.Width)
	require.Equal(t, int32(256), got.Depth)
}

func TestChunkRoundTrip(t *testing.T) {
	p, _ := newTestProvider(t)

	ch := world.NewChunk(3, -4)
	ch.SetIDMeta(1, 0, 1, game.BlockBedrock, 0)
	ch.SetIDMeta(1, 1, 1, game.BlockStone, 0x7)
	ch.SetIDMeta(15, 80, 15, game.BlockLog, 0x2)
	ch.SetIDMeta(0, 100, 0, 300, 0x1) // id above 255 exercises the Add array
	ch.SetSkyLight(1, 2, 1, 9)
	ch.SetBlockLight(1, 2, 1, 4)
	for i := range ch.Biomes {
		ch.Biomes[i] = byte(i % 7)
	}

	require.NoError(t, p.SaveChunk(ch))
	back, err := p.LoadChunk(3, -4)
	require.NoError(t, err)
	require.NotNil(t, back)

	require.Equal(t, ch.Biomes, back.Biomes)
	require.Equal(t, uint16(game.BlockBedrock), back.ID(1, 0, 1))
	require.Equal(t, uint16(game.BlockStone), back.ID(1, 1, 1))
	require.Equal(t, byte(0x7), back.Meta(1, 1, 1))
	require.Equal(t, uint16(game.BlockLog), back.ID(15, 80, 15))
	require.Equal(t, byte(0x2), back.Meta(15, 80, 15))
	require.Equal(t, uint16(300), back.ID(0, 100, 0))
	require.Equal(t, byte(9), back.SkyLight(1, 2, 1))
	require.Equal(t, byte(4), back.BlockLight(1, 2, 1))

	for x := int32(0); x < 16; x++ {
		for z := int32(0); z < 16; z++ {
			require.Equal(t, ch.Height(x, z), back.Height(x, z))
		}
	}
}

func TestLoadChunkAbsent(t *testing.T) {
	p, _ := newTestProvider(t)
	ch, err := p.LoadChunk(7, 7)
	require.NoError(t, err)
	require.Nil(t, ch)
}

func TestRegionFileLayout(t *testing.T) {
	p, _ := newTestProvider(t)
	ch := world.NewChunk(0, 0)
	ch.SetIDMeta(0, 0, 0, game.BlockStone, 0)
	require.NoError(t, p.SaveChunk(ch))

	raw, err := os.ReadFile(filepath.Join(p.path, "region", "r.0.0.mca"))
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(raw), headerSize+sectorSize)
	require.Zero(t, len(raw)%sectorSize, "region files are sector aligned")

	// location record of chunk (0,0): offset in sectors, then count
	sector := int(raw[0])<<16 | int(raw[1])<<8 | int(raw[2])
	require.Equal(t, 2, sector, "first chunk lands after the 8 KB header")
	require.NotZero(t, raw[3])
	require.Equal(t, byte(compZlib), raw[sector*sectorSize+4])
}

func TestOverwriteChunk(t *testing.T) {
	p, _ := newTestProvider(t)
	ch := world.NewChunk(1, 1)
	ch.SetIDMeta(0, 0, 0, game.BlockStone, 0)
	require.NoError(t, p.SaveChunk(ch))

	ch.SetIDMeta(0, 0, 0, game.BlockDirt, 0)
	require.NoError(t, p.SaveChunk(ch))

	back, err := p.LoadChunk(1, 1)
	require.NoError(t, err)
	require.Equal(t, uint16(game.BlockDirt), back.ID(0, 0, 0))
}
