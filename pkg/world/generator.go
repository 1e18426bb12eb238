package world

import (
	"fmt"

	"github.com/stonehall/stonehall/pkg/game"
)

// Generator synthesizes the initial contents of a chunk column.
type Generator interface {
	Name() string
	Generate(ch *Chunk)
}

var generators = map[string]func(seed int64) Generator{}

// RegisterGenerator adds a generator constructor to the registry.
func RegisterGenerator(name string, fn func(seed int64) Generator) {
	generators[name] = fn
}

// NewGenerator instantiates a registered generator by name.
func NewGenerator(name string, seed int64) (Generator, error) {
	fn, ok := generators[name]
	if !ok {
		return nil, fmt.Errorf("world: unknown generator %q", name)
	}
	return fn(seed), nil
}

func init() {
	RegisterGenerator("flatgrass", func(seed int64) Generator {
		return &flatgrassGenerator{}
	})
}

// flatgrassGenerator produces the standard superflat column: bedrock at
// the floor, dirt above it, grass on top.
type flatgrassGenerator struct{}

func (g *flatgrassGenerator) Name() string { return "flatgrass" }

func (g *flatgrassGenerator) Generate(ch *Chunk) {
	for x := int32(0); x < ChunkWidth; x++ {
		for z := int32(0); z < ChunkWidth; z++ {
			ch.SetIDMeta(x, 0, z, game.BlockBedrock, 0)
			for y := int32(1); y <= 3; y++ {
				ch.SetIDMeta(x, y, z, game.BlockDirt, 0)
			}
			ch.SetIDMeta(x, 4, z, game.BlockGrass, 0)
		}
	}
	for i := range ch.Biomes {
		ch.Biomes[i] = 1 // plains
	}
}
