// internal/browser/session/history.go
package session

import (
	"github.com/xkilldash9x/alertbench/api/schemas"
)

// historyEntry is one slot of the joint session history. doc identifies
// the document the entry belongs to: pushState and fragment navigations
// add entries without loading a new one.
type historyEntry struct {
	schemas.HistoryState
	doc int
	// method and body replay a POST when the entry is traversed to.
	method string
	body   []byte
	ctype  string
}

// history is the session history stack. It is guarded by Session.mu.
type history struct {
	entries []*historyEntry
	index   int
}

func (h *history) current() *historyEntry {
	if h.index < 0 || h.index >= len(h.entries) {
		return nil
	}
	return h.entries[h.index]
}

// push drops forward entries and appends e as the current entry.
func (h *history) push(e *historyEntry) {
	if len(h.entries) > 0 {
		h.entries = h.entries[:h.index+1]
	}
	h.entries = append(h.entries, e)
	h.index = len(h.entries) - 1
}

// replace swaps the current entry, pushing when the history is empty.
func (h *history) replace(e *historyEntry) {
	if h.current() == nil {
		h.push(e)
		return
	}
	h.entries[h.index] = e
}

// at returns the entry delta steps from the current one.
func (h *history) at(delta int) (*historyEntry, int, bool) {
	i := h.index + delta
	if i < 0 || i >= len(h.entries) {
		return nil, 0, false
	}
	return h.entries[i], i, true
}

func (h *history) len() int { return len(h.entries) }
