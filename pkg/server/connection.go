package server

import (
	"bytes"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/stonehall/stonehall/pkg/pool"
	"github.com/stonehall/stonehall/pkg/protocol"
	"github.com/stonehall/stonehall/pkg/sched"
)

// Connection lifecycle states.
const (
	connActive int32 = iota
	connDisconnectReq
	connDisconnected
)

const (
	readBufSize  = 512
	tickInterval = 20 * time.Millisecond
)

type outPacket struct {
	id              uint64
	data            []byte
	disconnectAfter bool
}

// Connection owns one socket: the framing pipeline with its transformer
// chain, the outbound queue, the per-connection job sequence class and
// the tick timer. It holds at most one protocol and at most one player.
type Connection struct {
	srv  *Server
	sock net.Conn
	ip   string
	log  zerolog.Logger

	mu        sync.Mutex
	proto     *Protocol
	interBufs []bytes.Buffer // inbound holding buffer per transformer
	finalBuf  bytes.Buffer   // decoded data awaiting delimitation

	outq         []*outPacket
	outNotify    chan struct{}
	done         chan struct{}
	nextPacketID uint64

	seq    *pool.SeqClass
	tick   *sched.Task
	state  atomic.Int32
	worker *netWorker
	player *Player
}

// NewConnection wraps an accepted socket. InferProtocol and StartIO
// must be called before any traffic flows.
func NewConnection(srv *Server, sock net.Conn, ip string) *Connection {
	c := &Connection{
		srv:       srv,
		sock:      sock,
		ip:        ip,
		log:       srv.log.With().Str("peer", ip).Logger(),
		outNotify: make(chan struct{}, 1),
		done:      make(chan struct{}),
		seq:       srv.pool.CreateSeq(),
	}
	return c
}

// IP returns the peer address string.
func (c *Connection) IP() string { return c.ip }

// Player returns the player bound to this connection, or nil.
func (c *Connection) Player() *Player { return c.player }

// SetPlayer binds a player to this connection.
func (c *Connection) SetPlayer(p *Player) { c.player = p }

// InferProtocol installs the version-inference protocol.
func (c *Connection) InferProtocol() {
	c.SetProtocol(newInferProtocol(c.srv))
}

// SetProtocol replaces the connection's protocol bundle: the old
// transformer chain is destroyed, the intermediate buffers rebuilt and
// the new handler pointed at the connection.
func (c *Connection) SetProtocol(p *Protocol) {
	c.mu.Lock()
	if c.proto != nil {
		for _, tr := range c.proto.Transformers {
			tr.Stop()
		}
	}
	c.proto = p
	c.interBufs = make([]bytes.Buffer, len(p.Transformers))
	c.mu.Unlock()
	p.Handler.SetConnection(c)
}

// Protocol returns the connection's current protocol bundle.
func (c *Connection) Protocol() *Protocol {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.proto
}

// StartIO launches the reader and writer goroutines on the least-loaded
// net worker and arms the tick timer.
func (c *Connection) StartIO() {
	c.worker = c.srv.minWorker()
	c.worker.attach()

	c.tick = c.srv.sched.Create(func(*sched.Task) { c.onTick() }, nil)
	c.tick.Run(tickInterval, tickInterval)

	go c.readLoop()
	go c.writeLoop()
}

func (c *Connection) readLoop() {
	buf := make([]byte, readBufSize)
	for c.state.Load() == connActive {
		n, err := c.sock.Read(buf)
		if n > 0 {
			if ferr := c.feed(buf[:n]); ferr != nil {
				c.log.Warn().Err(ferr).Msg("protocol violation")
				c.Disconnect()
				return
			}
		}
		if err != nil {
			c.Disconnect()
			return
		}
	}
}

// feed pushes raw socket bytes through the inbound transformer chain
// and dispatches every complete packet to the handler via the
// connection's sequence class. Never runs handlers inline.
func (c *Connection) feed(data []byte) error {
	c.mu.Lock()

	decoded, err := c.applyInTransforms(data)
	if err != nil {
		c.mu.Unlock()
		c.log.Error().Err(err).Msg("inbound transform failed")
		c.Disconnect()
		return nil
	}
	c.finalBuf.Write(decoded)

	var readers []*protocol.Reader
	for {
		pending := c.finalBuf.Bytes()
		if len(pending) == 0 {
			break
		}
		need := c.proto.Delimiter.Delimit(pending)
		if need < 0 {
			c.mu.Unlock()
			return protocol.ErrOutOfRange
		}
		if need > 0 {
			break
		}
		length, prefix := protocol.VarInt(pending)
		total := prefix + int(length)
		readers = append(readers, protocol.NewReaderCopy(pending[prefix:total]))
		c.finalBuf.Next(total)
	}
	c.mu.Unlock()

	// The handler is resolved when the job runs, not when it is queued:
	// the version inferer may swap the protocol between two packets of
	// the same read.
	for _, r := range readers {
		rd := r
		c.srv.pool.EnqueueSeq(c.seq, func(any) {
			c.mu.Lock()
			h := c.proto.Handler
			c.mu.Unlock()
			h.HandlePacket(rd)
		}, rd)
		c.srv.metrics.PacketsIn.Inc()
	}
	return nil
}

// applyInTransforms runs data through the enabled transformers in
// reverse order, holding partial input per transformer until it has
// enough. Caller holds c.mu.
func (c *Connection) applyInTransforms(data []byte) ([]byte, error) {
	trs := c.proto.Transformers
	enabled := false
	for _, tr := range trs {
		if tr.Enabled() {
			enabled = true
			break
		}
	}
	if !enabled {
		return data, nil
	}

	cur := data
	for i := len(trs) - 1; i >= 0; i-- {
		tr := trs[i]
		if !tr.Enabled() {
			continue
		}
		hold := &c.interBufs[i]
		hold.Write(cur)

		switch tr.InEnough(hold.Bytes()) {
		case protocol.InInvalid:
			return nil, protocol.ErrOutOfRange
		case protocol.InNeedMore:
			return nil, nil
		}

		out, consumed, err := tr.TransformIn(hold.Bytes())
		if err != nil {
			return nil, err
		}
		hold.Next(consumed)
		cur = out
	}
	return cur, nil
}

// zlibTransformer returns the compression transformer of the current
// protocol, or nil.
func (c *Connection) zlibTransformer() *protocol.ZlibTransformer {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tr := range c.proto.Transformers {
		if z, ok := tr.(*protocol.ZlibTransformer); ok {
			return z
		}
	}
	return nil
}

// aesTransformer returns the encryption transformer of the current
// protocol, or nil.
func (c *Connection) aesTransformer() *protocol.AESTransformer {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, tr := range c.proto.Transformers {
		if a, ok := tr.(*protocol.AESTransformer); ok {
			return a
		}
	}
	return nil
}

// RunSequenced queues fn into the connection's sequence class so it
// runs serialized with the packet handlers.
func (c *Connection) RunSequenced(fn func()) {
	c.srv.pool.EnqueueSeq(c.seq, func(any) { fn() }, nil)
}

// Send transforms and queues a packet for writing.
func (c *Connection) Send(pk *protocol.Packet) {
	c.sendPacket(pk, false)
}

// SendDisconnect queues a packet whose completed write triggers
// disconnection.
func (c *Connection) SendDisconnect(pk *protocol.Packet) {
	c.sendPacket(pk, true)
}

func (c *Connection) sendPacket(pk *protocol.Packet, disconnectAfter bool) {
	if c.state.Load() != connActive {
		return // sends after a disconnect request are dropped
	}

	c.mu.Lock()
	data := pk.Bytes()
	for _, tr := range c.proto.Transformers {
		if !tr.Enabled() {
			continue
		}
		out, err := tr.TransformOut(data)
		if err != nil {
			c.mu.Unlock()
			c.log.Error().Err(err).Msg("outbound transform failed")
			c.Disconnect()
			return
		}
		data = out
	}
	c.nextPacketID++
	c.outq = append(c.outq, &outPacket{
		id:              c.nextPacketID,
		data:            append([]byte(nil), data...),
		disconnectAfter: disconnectAfter,
	})
	c.mu.Unlock()
	c.srv.metrics.PacketsOut.Inc()

	select {
	case c.outNotify <- struct{}{}:
	default:
	}
}

func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case <-c.outNotify:
		}
		for {
			c.mu.Lock()
			if len(c.outq) == 0 {
				c.mu.Unlock()
				break
			}
			pk := c.outq[0]
			c.outq = c.outq[1:]
			c.mu.Unlock()

			if _, err := c.sock.Write(pk.data); err != nil {
				c.Disconnect()
				return
			}
			if pk.disconnectAfter {
				c.Disconnect()
				return
			}
		}
	}
}

// onTick fires every 20 ms: it consumes a pending disconnect request or
// forwards the tick to the handler. The real teardown happens here and
// never on an inbound transform path.
func (c *Connection) onTick() {
	switch c.state.Load() {
	case connDisconnectReq:
		c.doDisconnect()
	case connActive:
		c.mu.Lock()
		h := c.proto.Handler
		c.mu.Unlock()
		h.Tick()
	}
}

// Disconnect requests disconnection; the tick timer performs it.
func (c *Connection) Disconnect() {
	c.state.CompareAndSwap(connActive, connDisconnectReq)
}

// doDisconnect is the sole teardown point: it drops unsent packets,
// disables the sequence class (freeing queued readers), detaches from
// the worker, notifies the handler and moves the connection to the
// server's gray list for deferred destruction.
func (c *Connection) doDisconnect() {
	if !c.state.CompareAndSwap(connDisconnectReq, connDisconnected) {
		return
	}

	c.mu.Lock()
	c.outq = nil
	c.mu.Unlock()
	close(c.done)

	c.srv.pool.DisableSeq(c.seq, func(any) {})
	c.sock.Close()
	c.tick.Stop()
	if c.worker != nil {
		c.worker.detach()
	}

	c.mu.Lock()
	h := c.proto.Handler
	c.mu.Unlock()
	h.Disconnected()

	c.srv.connectionClosed(c)
	c.log.Info().Msg("disconnected")
}
