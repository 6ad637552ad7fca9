package devserver

import (
	"sync"
)

// hub keeps peer sets per artworkID.
type hub struct {
	rooms sync.Map // artworkID -> *room
}

func newHub() *hub { return &hub{} }

func (h *hub) broadcast(artworkID string, frame []byte) {
	if v, ok := h.rooms.Load(artworkID); ok {
		v.(*room).broadcast(frame)
	}
}

func (h *hub) join(artworkID string, p *peer) {
	r, _ := h.rooms.LoadOrStore(artworkID, newRoom())
	r.(*room).add(p)
}

func (h *hub) leave(artworkID string, p *peer) {
	if v, ok := h.rooms.Load(artworkID); ok {
		v.(*room).remove(p)
	}
}

// drop removes p from every room; called when its socket dies.
func (h *hub) drop(p *peer) {
	h.rooms.Range(func(_, v any) bool {
		v.(*room).remove(p)
		return true
	})
}
