package protocol

// InStatus is the answer a transformer gives when asked whether enough
// inbound bytes have accumulated to produce output.
type InStatus int

const (
	InNeedMore InStatus = iota
	InReady
	InInvalid
)

// Transformer is a reversible byte-stream filter in a per-connection
// pipeline. Outbound data flows through the chain in forward order,
// inbound data in reverse order. A stopped transformer is an identity.
type Transformer interface {
	// TransformIn decodes inbound bytes, returning the decoded output
	// and how many input bytes were consumed.
	TransformIn(data []byte) (out []byte, consumed int, err error)

	// TransformOut encodes one outbound packet.
	TransformOut(data []byte) ([]byte, error)

	// InEnough reports whether data holds enough bytes for TransformIn
	// to make progress.
	InEnough(data []byte) InStatus

	// EstimateIn and EstimateOut give upper-bound output sizes for a
	// given input length, for buffer budgeting.
	EstimateIn(n int) int
	EstimateOut(n int) int

	Start() error
	Stop()
	Enabled() bool
}

// toggle carries the shared on/off flag of a transformer.
type toggle struct {
	on bool
}

func (t *toggle) Start() error { t.on = true; return nil }
func (t *toggle) Stop()        { t.on = false }
func (t *toggle) Enabled() bool { return t.on }
