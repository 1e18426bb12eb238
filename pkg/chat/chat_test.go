package chat

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageJSON(t *testing.T) {
	m := Colored("hello", "yellow")
	var back map[string]any
	require.NoError(t, json.Unmarshal([]byte(m.String()), &back))
	require.Equal(t, "hello", back["text"])
	require.Equal(t, "yellow", back["color"])
}

func TestDisconnectComponent(t *testing.T) {
	m := Disconnect("gone")
	var back map[string]any
	require.NoError(t, json.Unmarshal([]byte(m.String()), &back))
	require.Equal(t, "gone", back["text"])
	require.Equal(t, "red", back["color"])
}

func TestBuilderFinish(t *testing.T) {
	var sent []Message
	b := NewBuilder(func(m Message) { sent = append(sent, m) })

	b.Colored("a", "gray").Text("b")
	msg := b.Finish()

	require.Len(t, sent, 1)
	require.Len(t, msg.Extra, 2)
	require.Equal(t, "a", msg.Extra[0].Text)
	require.Equal(t, "gray", msg.Extra[0].Color)
	require.Equal(t, "b", msg.Extra[1].Text)

	// the builder resets and can be reused
	b.Text("c")
	again := b.Finish()
	require.Len(t, again.Extra, 1)
	require.Len(t, sent, 2)
}
