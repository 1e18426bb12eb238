package game

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWindowAddStacksBeforeFillingEmpties(t *testing.T) {
	w := NewWindow(0, "", 9, AddRange{Start: 0, End: 8})
	w.SetSlot(3, Slot{ID: 1, Count: 60})

	left := w.Add(Slot{ID: 1, Count: 10})
	require.Equal(t, byte(0), left)
	require.Equal(t, byte(64), w.Slot(3).Count, "existing stack filled first")
	require.Equal(t, byte(6), w.Slot(0).Count, "remainder goes to the first empty slot")
}

func TestWindowAddRangeOrder(t *testing.T) {
	w := NewWindow(0, "", 10,
		AddRange{Start: 5, End: 9},
		AddRange{Start: 0, End: 4},
	)
	left := w.Add(Slot{ID: 4, Count: 1})
	require.Equal(t, byte(0), left)
	require.False(t, w.Slot(5).Empty(), "first add-range tried first")
	require.True(t, w.Slot(0).Empty())
}

func TestWindowAddOverflow(t *testing.T) {
	w := NewWindow(0, "", 1, AddRange{Start: 0, End: 0})
	require.Equal(t, byte(0), w.Add(Slot{ID: 1, Count: 64}))
	left := w.Add(Slot{ID: 1, Count: 30})
	require.Equal(t, byte(30), left, "a full window reports the leftover count")
}

func TestWindowAddDifferentDamageDoesNotStack(t *testing.T) {
	w := NewWindow(0, "", 2, AddRange{Start: 0, End: 1})
	w.SetSlot(0, Slot{ID: 17, Damage: 1, Count: 1})
	w.Add(Slot{ID: 17, Damage: 2, Count: 1})
	require.Equal(t, byte(1), w.Slot(0).Count)
	require.Equal(t, int16(2), w.Slot(1).Damage)
}

func TestPlayerWindowRanges(t *testing.T) {
	w := NewPlayerWindow()
	require.Equal(t, PlayerWindowSize, w.Size())
	w.Add(Slot{ID: 3, Count: 1})
	require.False(t, w.Slot(36).Empty(), "hotbar filled before main inventory")
}

func TestSlotWire(t *testing.T) {
	require.Equal(t, int16(-1), EmptySlot().WireID())
	require.True(t, SlotFromWire(-1, 0, 0).Empty())
	s := SlotFromWire(276, 1, 3)
	require.Equal(t, uint16(276), s.ID)
	require.Equal(t, int16(276), s.WireID())
}
