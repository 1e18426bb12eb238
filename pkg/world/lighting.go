package world

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stonehall/stonehall/pkg/game"
)

const (
	lightUpdatesPerCycle = 1000
	lightCycleSleep      = 2 * time.Millisecond
)

type lightItem struct {
	w       *World
	x, y, z int32
}

// Lighting is the queue-driven sky-light propagation engine. A single
// dedicated worker drains recompute items in batches, enqueueing
// neighbours whenever a cell's value changes.
type Lighting struct {
	mu      sync.Mutex
	queue   []lightItem
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	log     zerolog.Logger
}

// NewLighting creates a stopped lighting engine.
func NewLighting(log zerolog.Logger) *Lighting {
	return &Lighting{log: log.With().Str("component", "lighting").Logger()}
}

// Start launches the worker.
func (l *Lighting) Start() {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.stopCh = make(chan struct{})
	l.mu.Unlock()

	l.wg.Add(1)
	go l.worker()
}

// Stop terminates the worker; queued items are dropped.
func (l *Lighting) Stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	close(l.stopCh)
	l.mu.Unlock()
	l.wg.Wait()
}

// Enqueue queues a sky-light recompute for one cell.
func (l *Lighting) Enqueue(w *World, x, y, z int32) {
	if y < 0 || y >= ChunkHeight {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, lightItem{w, x, y, z})
	l.mu.Unlock()
}

// QueueLen returns the number of pending recompute items.
func (l *Lighting) QueueLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Lighting) worker() {
	defer l.wg.Done()
	for {
		select {
		case <-l.stopCh:
			return
		case <-time.After(lightCycleSleep):
		}

		for i := 0; i < lightUpdatesPerCycle; i++ {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			item := l.queue[0]
			l.queue = l.queue[1:]
			l.mu.Unlock()

			l.update(item)
		}
	}
}

// skyLightAt reads the sky light of a possibly off-chunk cell through
// the chunk's neighbour links. Unloaded neighbours read as dark.
func skyLightAt(ch *Chunk, x, y, z int32) byte {
	if y < 0 {
		return 0
	}
	if y >= ChunkHeight {
		return 15
	}
	for x < 0 {
		ch = ch.Neighbor(DirWest)
		if ch == nil {
			return 0
		}
		x += ChunkWidth
	}
	for x >= ChunkWidth {
		ch = ch.Neighbor(DirEast)
		if ch == nil {
			return 0
		}
		x -= ChunkWidth
	}
	for z < 0 {
		ch = ch.Neighbor(DirNorth)
		if ch == nil {
			return 0
		}
		z += ChunkWidth
	}
	for z >= ChunkWidth {
		ch = ch.Neighbor(DirSouth)
		if ch == nil {
			return 0
		}
		z -= ChunkWidth
	}
	return ch.SkyLight(x, y, z)
}

// update recomputes one cell's sky light and propagates changes to its
// six neighbours (+x, -x, +z, -z, -y, +y order).
func (l *Lighting) update(item lightItem) {
	w := item.w
	ch := w.GetChunk(item.x>>4, item.z>>4)
	if ch == nil || !w.inBounds(item.x>>4, item.z>>4) {
		return
	}
	lx, lz := item.x&0x0F, item.z&0x0F

	var target byte
	if item.y >= ch.Height(lx, lz) {
		target = 15
	} else {
		max := skyLightAt(ch, lx+1, item.y, lz)
		if v := skyLightAt(ch, lx-1, item.y, lz); v > max {
			max = v
		}
		if v := skyLightAt(ch, lx, item.y, lz+1); v > max {
			max = v
		}
		if v := skyLightAt(ch, lx, item.y, lz-1); v > max {
			max = v
		}
		if v := skyLightAt(ch, lx, item.y-1, lz); v > max {
			max = v
		}
		if v := skyLightAt(ch, lx, item.y+1, lz); v > max {
			max = v
		}
		if max > 0 {
			target = max - 1
		}
	}

	if target == ch.SkyLight(lx, item.y, lz) {
		return
	}
	ch.SetSkyLight(lx, item.y, lz, target)

	l.mu.Lock()
	l.queue = append(l.queue,
		lightItem{w, item.x + 1, item.y, item.z},
		lightItem{w, item.x - 1, item.y, item.z},
		lightItem{w, item.x, item.y, item.z + 1},
		lightItem{w, item.x, item.y, item.z - 1},
	)
	if item.y > 0 {
		l.queue = append(l.queue, lightItem{w, item.x, item.y - 1, item.z})
	}
	if item.y < ChunkHeight-1 {
		l.queue = append(l.queue, lightItem{w, item.x, item.y + 1, item.z})
	}
	l.mu.Unlock()
}

// LightChunk performs the initial per-column pass on a fresh chunk,
// without neighbour interaction: full daylight at the top of each
// column, decaying by each block's opacity down to the heightmap, and
// darkness below the heightmap.
func (l *Lighting) LightChunk(ch *Chunk) {
	for x := int32(0); x < ChunkWidth; x++ {
		for z := int32(0); z < ChunkWidth; z++ {
			ch.SetSkyLight(x, ChunkHeight-1, z, 15)

			h := ch.Height(x, z)
			sl := int32(15)
			for y := int32(ChunkHeight - 2); y >= h; y-- {
				sl -= int32(game.Opacity(ch.ID(x, y, z)))
				if sl < 0 {
					sl = 0
				}
				ch.SetSkyLight(x, y, z, byte(sl))
			}
			for y := h - 1; y >= 0; y-- {
				ch.SetSkyLight(x, y, z, 0)
			}
		}
	}
}
