package server

import (
	"github.com/stonehall/stonehall/pkg/protocol"
)

// inferHandler owns a connection only until its first packet. It peeks
// the handshake to learn the client's wire version, installs the
// matching concrete protocol and re-dispatches the packet to it.
type inferHandler struct {
	srv  *Server
	conn *Connection
}

func (h *inferHandler) SetConnection(c *Connection) { h.conn = c }

func (h *inferHandler) HandlePacket(r *protocol.Reader) {
	opcode, err := r.VarInt()
	if err != nil || opcode != 0x00 {
		h.conn.log.Warn().Msg("malformed first packet")
		h.conn.Disconnect()
		return
	}
	version, err := r.VarInt()
	if err != nil {
		h.conn.log.Warn().Msg("malformed handshake")
		h.conn.Disconnect()
		return
	}

	proto := ProtocolForVersion(h.srv, version)
	if proto == nil {
		h.conn.log.Warn().Int32("version", version).Msg("unsupported protocol version")
		h.conn.Disconnect()
		return
	}

	h.conn.SetProtocol(proto)
	r.Rewind()
	proto.Handler.HandlePacket(r)
}

func (h *inferHandler) Tick()         {}
func (h *inferHandler) Disconnected() {}
