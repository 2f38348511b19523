package analysis

import (
	"time"

	"github.com/google/uuid"
)

// Mark is a confirmed detected hole: pixel position in crop coordinates
// plus the resolved ring value. Marks carry an ID so the operator can
// edit them individually.
type Mark struct {
	ID   string    `json:"id"`
	X    int       `json:"x"`
	Y    int       `json:"y"`
	Ring int       `json:"ring"`
	At   time.Time `json:"at"`
}

// MarkList is a bounded list of confirmed marks with pixel-tolerance
// deduplication. Not safe for concurrent use; the engine serialises
// access under its own lock.
type MarkList struct {
	max       int
	tolerance int
	marks     []Mark
}

// NewMarkList builds a list keeping at most maxMarks entries and
// treating positions within tolerance pixels (Chebyshev) as duplicates.
func NewMarkList(maxMarks, tolerance int) *MarkList {
	return &MarkList{max: maxMarks, tolerance: tolerance}
}

// Add confirms a mark unless an existing mark lies within the
// deduplication tolerance, in which case the new point is dropped as a
// probable jitter artifact. The oldest mark falls out when the list is
// at capacity.
func (l *MarkList) Add(x, y, ring int) (Mark, bool) {
	for _, m := range l.marks {
		if abs(m.X-x) <= l.tolerance && abs(m.Y-y) <= l.tolerance {
			return Mark{}, false
		}
	}
	m := Mark{ID: uuid.NewString(), X: x, Y: y, Ring: ring, At: time.Now()}
	l.marks = append(l.marks, m)
	if len(l.marks) > l.max {
		l.marks = l.marks[1:]
	}
	return m, true
}

// Delete removes the mark with the given ID.
func (l *MarkList) Delete(id string) bool {
	for i, m := range l.marks {
		if m.ID == id {
			l.marks = append(l.marks[:i], l.marks[i+1:]...)
			return true
		}
	}
	return false
}

// Move repositions an existing mark and updates its ring value.
func (l *MarkList) Move(id string, x, y, ring int) bool {
	for i := range l.marks {
		if l.marks[i].ID == id {
			l.marks[i].X, l.marks[i].Y, l.marks[i].Ring = x, y, ring
			return true
		}
	}
	return false
}

// Duplicate copies an existing mark in place, bypassing deduplication.
// Used when a second shot goes through an already-marked hole.
func (l *MarkList) Duplicate(id string) (Mark, bool) {
	for _, m := range l.marks {
		if m.ID == id {
			d := Mark{ID: uuid.NewString(), X: m.X, Y: m.Y, Ring: m.Ring, At: time.Now()}
			l.marks = append(l.marks, d)
			if len(l.marks) > l.max {
				l.marks = l.marks[1:]
			}
			return d, true
		}
	}
	return Mark{}, false
}

// All returns a copy of the confirmed marks, oldest first.
func (l *MarkList) All() []Mark {
	out := make([]Mark, len(l.marks))
	copy(out, l.marks)
	return out
}

// Len returns the number of confirmed marks.
func (l *MarkList) Len() int { return len(l.marks) }

// Reset discards all marks.
func (l *MarkList) Reset() { l.marks = nil }
