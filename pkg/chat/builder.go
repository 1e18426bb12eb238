package chat

// Builder accumulates message fragments and renders the final component
// when Finish is called. Players use it to compose multi-part messages
// that are sent as one packet.
type Builder struct {
	parts []Message
	sink  func(Message)
}

// NewBuilder creates a builder whose finished message is passed to sink.
func NewBuilder(sink func(Message)) *Builder {
	return &Builder{sink: sink}
}

// Text appends a plain fragment.
func (b *Builder) Text(s string) *Builder {
	b.parts = append(b.parts, Text(s))
	return b
}

// Colored appends a colored fragment.
func (b *Builder) Colored(s, color string) *Builder {
	b.parts = append(b.parts, Colored(s, color))
	return b
}

// Finish renders the accumulated fragments into a single message and
// hands it to the sink. The builder is reset and may be reused.
func (b *Builder) Finish() Message {
	msg := Message{Text: ""}
	msg.Extra = b.parts
	b.parts = nil
	if b.sink != nil {
		b.sink(msg)
	}
	return msg
}
