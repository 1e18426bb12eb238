package game

// AddRange is an inclusive pair of slot indices tried by Window.Add.
type AddRange struct {
	Start, End int
}

// Window is an ordered array of slots plus the ranges Add may fill.
type Window struct {
	ID     byte
	Title  string
	slots  []Slot
	ranges []AddRange
}

// NewWindow creates a window with size cleared slots.
func NewWindow(id byte, title string, size int, ranges ...AddRange) *Window {
	w := &Window{ID: id, Title: title, slots: make([]Slot, size), ranges: ranges}
	for i := range w.slots {
		w.slots[i] = EmptySlot()
	}
	return w
}

// Size returns the slot count.
func (w *Window) Size() int { return len(w.slots) }

// Slot returns the slot at index i, or an empty slot when out of range.
func (w *Window) Slot(i int) Slot {
	if i < 0 || i >= len(w.slots) {
		return EmptySlot()
	}
	return w.slots[i]
}

// SetSlot stores a slot at index i.
func (w *Window) SetSlot(i int, s Slot) {
	if i < 0 || i >= len(w.slots) {
		return
	}
	w.slots[i] = s
}

// Add inserts an item into the window, trying the add-ranges in order:
// first stacking into compatible non-full slots, then filling empties.
// It returns the count that did not fit.
func (w *Window) Add(item Slot) byte {
	if item.Empty() {
		return 0
	}
	remaining := item.Count

	for _, r := range w.ranges {
		for i := r.Start; i <= r.End && remaining > 0; i++ {
			s := &w.slots[i]
			if s.Stackable(item) && s.Count < MaxStack {
				space := byte(MaxStack) - s.Count
				if remaining <= space {
					s.Count += remaining
					remaining = 0
				} else {
					s.Count = MaxStack
					remaining -= space
				}
			}
		}
	}

	for _, r := range w.ranges {
		for i := r.Start; i <= r.End && remaining > 0; i++ {
			if w.slots[i].Empty() {
				n := remaining
				if n > MaxStack {
					n = MaxStack
				}
				w.slots[i] = Slot{ID: item.ID, Damage: item.Damage, Count: n}
				remaining -= n
			}
		}
	}

	return remaining
}

// PlayerWindowSize is the slot count of the standard player inventory
// window (crafting, armor, main inventory, hotbar).
const PlayerWindowSize = 45

// NewPlayerWindow creates the 45-slot player inventory window with the
// hotbar tried before the main inventory.
func NewPlayerWindow() *Window {
	return NewWindow(0, "", PlayerWindowSize,
		AddRange{Start: 36, End: 44},
		AddRange{Start: 9, End: 35},
	)
}
