package server

import (
	"github.com/stonehall/stonehall/pkg/protocol"
)

// Handler consumes inbound packets for one connection and reacts to its
// lifecycle. All calls for one connection are serialized through the
// connection's sequence class.
type Handler interface {
	SetConnection(c *Connection)
	HandlePacket(r *protocol.Reader)
	Tick()
	Disconnected()
}

// Protocol bundles the collaborators a connection speaks one wire
// dialect with. A connection owns exactly one bundle at a time;
// replacing it (by the version inferer) discards the old one.
type Protocol struct {
	Delimiter    protocol.Delimiter
	Handler      Handler
	Builder      *Builder
	Transformers []protocol.Transformer
}

// protoFactory builds a protocol bundle for a server.
type protoFactory func(srv *Server) *Protocol

var protoVersions = map[int32]protoFactory{}

// RegisterProtocolVersion adds a protocol constructor for a wire
// version. Variants are added by registration, not inheritance.
func RegisterProtocolVersion(version int32, fn protoFactory) {
	protoVersions[version] = fn
}

// ProtocolForVersion instantiates the bundle for a wire version, or nil
// when the version is unsupported.
func ProtocolForVersion(srv *Server, version int32) *Protocol {
	fn, ok := protoVersions[version]
	if !ok {
		return nil
	}
	return fn(srv)
}

func init() {
	RegisterProtocolVersion(protocol.ProtocolVersion, newMC18Protocol)
}

// newMC18Protocol builds the 1.8 bundle. Transformer order is the
// outbound order: body -> compression -> encryption -> socket.
func newMC18Protocol(srv *Server) *Protocol {
	return &Protocol{
		Delimiter: protocol.VarIntDelimiter{},
		Handler:   &mc18Handler{srv: srv},
		Builder:   &Builder{},
		Transformers: []protocol.Transformer{
			protocol.NewZlibTransformer(),
			protocol.NewAESTransformer(),
		},
	}
}

// newInferProtocol builds the placeholder bundle used until the first
// packet reveals which concrete protocol the client speaks.
func newInferProtocol(srv *Server) *Protocol {
	return &Protocol{
		Delimiter: protocol.InferDelimiter{},
		Handler:   &inferHandler{srv: srv},
		Builder:   &Builder{},
	}
}
