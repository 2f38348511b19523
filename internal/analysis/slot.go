// Package analysis implements the per-frame target analysis pipeline:
// temporal averaging slots, mirror calibration, change detection and the
// state machine that drives them once per captured frame.
package analysis

import (
	"fmt"

	"github.com/openrange-dev/spotter/internal/geom"
)

// Slot accumulates same-shaped frames for temporal averaging. Its
// lifecycle is write-then-read-once: frames are added until the engine
// cycles the slot, the integer mean is read during comparison, and the
// slot is never written again afterwards. Feeding a slot after its mean
// has been read, or feeding frames of mismatched shape, is a caller
// contract violation and panics.
type Slot struct {
	sum      []int32
	w, h     int
	count    int
	mean     geom.Frame
	meanRead bool
}

// NewSlot returns an empty slot. Shape is fixed by the first frame added.
func NewSlot() *Slot {
	return &Slot{}
}

// Add accumulates a frame into the running sum.
func (s *Slot) Add(f geom.Frame) {
	if s.meanRead {
		panic("analysis: Slot.Add after Mean was read")
	}
	if s.count == 0 {
		s.w, s.h = f.W, f.H
		s.sum = make([]int32, len(f.Pix))
	} else if f.W != s.w || f.H != s.h {
		panic(fmt.Sprintf("analysis: frame shape %dx%d does not match slot shape %dx%d", f.W, f.H, s.w, s.h))
	}
	for i, v := range f.Pix {
		s.sum[i] += int32(v)
	}
	s.count++
}

// Len returns the number of frames accumulated so far.
func (s *Slot) Len() int { return s.count }

// Mean returns the pixel-wise integer mean of the accumulated frames.
// The result is computed once and cached; the slot must not be fed
// further frames afterwards.
func (s *Slot) Mean() geom.Frame {
	if s.count == 0 {
		panic("analysis: Slot.Mean on empty slot")
	}
	if !s.meanRead {
		m := geom.NewFrame(s.w, s.h)
		n := int32(s.count)
		for i, v := range s.sum {
			m.Pix[i] = int16(v / n)
		}
		s.mean = m
		s.meanRead = true
	}
	return s.mean
}

// slotHistory is a fixed-capacity window of completed slots. The newest
// slot is compared against the oldest each time the window cycles.
type slotHistory struct {
	slots    []*Slot
	capacity int
}

func newSlotHistory(capacity int) *slotHistory {
	if capacity < 2 {
		capacity = 2
	}
	return &slotHistory{capacity: capacity}
}

// Push appends a completed slot, evicting the oldest once the window is
// at capacity. It reports whether an eviction happened, which is the
// signal that the window has fully cycled and a comparison is due.
func (h *slotHistory) Push(s *Slot) bool {
	h.slots = append(h.slots, s)
	if len(h.slots) > h.capacity {
		h.slots = h.slots[1:]
		return true
	}
	return false
}

// Newest returns the most recently pushed slot, or nil.
func (h *slotHistory) Newest() *Slot {
	if len(h.slots) == 0 {
		return nil
	}
	return h.slots[len(h.slots)-1]
}

// Oldest returns the oldest retained slot, or nil.
func (h *slotHistory) Oldest() *Slot {
	if len(h.slots) == 0 {
		return nil
	}
	return h.slots[0]
}

// Full reports whether the window holds capacity slots.
func (h *slotHistory) Full() bool { return len(h.slots) >= h.capacity }

// Reset discards all retained slots.
func (h *slotHistory) Reset() { h.slots = nil }
