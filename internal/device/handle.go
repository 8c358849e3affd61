package device

import "sync/atomic"

// Handle is the shared single-slot cell holding the live device.
// Only the Session writes it. Readers must call Load once per operation and
// not keep the result across a wait: a disconnect can happen at any time.
type Handle struct {
	slot atomic.Pointer[deckSlot]
}

type deckSlot struct {
	deck Deck
}

// NewHandle creates an empty handle
func NewHandle() *Handle {
	return &Handle{}
}

// Load returns the connected device, or nil when disconnected.
func (h *Handle) Load() Deck {
	s := h.slot.Load()
	if s == nil {
		return nil
	}
	return s.deck
}

// Set replaces the device. A nil deck clears the cell.
// Outside of tests only the Session calls Set.
func (h *Handle) Set(deck Deck) {
	if deck == nil {
		h.slot.Store(nil)
		return
	}
	h.slot.Store(&deckSlot{deck: deck})
}

// Connected reports whether a device is currently stored
func (h *Handle) Connected() bool {
	return h.slot.Load() != nil
}
