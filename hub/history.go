package hub

import "github.com/onnwee/stream-hub/event"

// history is a fixed-capacity ring of chat messages. Oldest entries are
// overwritten once the ring is full. Not safe for concurrent use; the hub
// serializes access under its mutex.
type history struct {
	buf  []event.Message
	next int
	full bool
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = 1
	}
	return &history{buf: make([]event.Message, capacity)}
}

func (h *history) add(msg event.Message) {
	h.buf[h.next] = msg
	h.next = (h.next + 1) % len(h.buf)
	if h.next == 0 {
		h.full = true
	}
}

func (h *history) len() int {
	if h.full {
		return len(h.buf)
	}
	return h.next
}

// items returns the retained messages oldest-first as a fresh slice.
func (h *history) items() []event.Message {
	out := make([]event.Message, 0, h.len())
	if h.full {
		out = append(out, h.buf[h.next:]...)
	}
	out = append(out, h.buf[:h.next]...)
	return out
}
