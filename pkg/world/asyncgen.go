package world

import (
	"sync"

	"github.com/stonehall/stonehall/pkg/pool"
)

// GenCallback receives the result of an asynchronous chunk load.
type GenCallback func(w *World, ch *Chunk, cx, cz int32)

type genToken struct {
	id      int
	enabled bool
}

// AsyncGen is the token-based cancellable chunk load/generate queue.
// Jobs run in the world's sequence class, so generation for one world
// is serialized and two near-simultaneous requests for the same chunk
// yield the same instance.
type AsyncGen struct {
	w    *World
	pool *pool.Pool
	seq  *pool.SeqClass

	mu      sync.Mutex
	tokens  map[int]*genToken
	nextTok int
}

func newAsyncGen(w *World, p *pool.Pool) *AsyncGen {
	return &AsyncGen{
		w:       w,
		pool:    p,
		seq:     p.CreateSeq(),
		tokens:  make(map[int]*genToken),
		nextTok: 1,
	}
}

// MakeToken returns a new token for generation requests. Players obtain
// one on world-join and return it with FreeToken on world-leave.
func (g *AsyncGen) MakeToken() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	tok := &genToken{id: g.nextTok, enabled: true}
	g.nextTok++
	g.tokens[tok.id] = tok
	return tok.id
}

// FreeToken cancels all pending requests made with the token. In-flight
// jobs observe the cleared flag and abort.
func (g *AsyncGen) FreeToken(id int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	tok, ok := g.tokens[id]
	if !ok {
		return
	}
	tok.enabled = false
	delete(g.tokens, id)
}

func (g *AsyncGen) tokenEnabled(tok *genToken) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return tok.enabled
}

// Release disables the driver's sequence class.
func (g *AsyncGen) Release() {
	g.pool.ReleaseSeq(g.seq, nil)
}

// Generate returns the chunk immediately when it is already resident.
// Otherwise a job is queued that loads or synthesizes the chunk and
// invokes cb with the result, and nil is returned. The optional refc
// keeps the requester alive while the job is pending.
func (g *AsyncGen) Generate(tokenID int, cx, cz int32, cb GenCallback, refc *pool.RefCounter) *Chunk {
	g.mu.Lock()
	tok, ok := g.tokens[tokenID]
	g.mu.Unlock()
	if !ok || !tok.enabled {
		return nil
	}

	if ch := g.w.GetChunk(cx, cz); ch != nil {
		return ch
	}

	job := func(any) {
		if !g.tokenEnabled(tok) {
			return
		}
		ch := g.w.LoadChunk(cx, cz)
		cb(g.w, ch, cx, cz)
	}
	if refc != nil {
		g.pool.EnqueueSeqRef(g.seq, job, nil, refc)
	} else {
		g.pool.EnqueueSeq(g.seq, job, nil)
	}
	return nil
}
