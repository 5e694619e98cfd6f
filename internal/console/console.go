package console

import "time"

// DefaultCapacity is used when a History is created with a non-positive capacity.
const DefaultCapacity = 1000

// Line is a single timestamped console line. Immutable once created.
type Line struct {
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// History is a fixed-capacity ring of console lines. Once full, the oldest
// line is overwritten. It has no locking of its own; the owning supervisor
// serializes all access through its state-machine goroutine.
type History struct {
	lines []Line
	next  int
	size  int
}

func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History{lines: make([]Line, capacity)}
}

// Push stamps the current time, appends the line, and returns it.
func (h *History) Push(text string) Line {
	l := Line{Text: text, At: time.Now()}
	h.lines[h.next] = l
	h.next = (h.next + 1) % len(h.lines)
	if h.size < len(h.lines) {
		h.size++
	}
	return l
}

// Lines returns the held lines oldest-first as a copy.
func (h *History) Lines() []Line {
	out := make([]Line, 0, h.size)
	if h.size < len(h.lines) {
		out = append(out, h.lines[:h.size]...)
		return out
	}
	out = append(out, h.lines[h.next:]...)
	out = append(out, h.lines[:h.next]...)
	return out
}

// Size returns the number of lines currently held, saturating at capacity.
func (h *History) Size() int { return h.size }

// Capacity returns the fixed capacity of the ring.
func (h *History) Capacity() int { return len(h.lines) }

// Clear resets the ring to empty without changing capacity.
func (h *History) Clear() {
	h.next = 0
	h.size = 0
}
