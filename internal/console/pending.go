package console

import (
	"sort"
	"sync"

	"giftdesk/internal/models"
)

// PendingPanel is the set of request cards currently rendered, keyed by id.
type PendingPanel struct {
	mu    sync.RWMutex
	items map[uint]models.Request
}

// NewPendingPanel returns an empty panel.
func NewPendingPanel() *PendingPanel {
	return &PendingPanel{items: make(map[uint]models.Request)}
}

// Insert renders req unless a card with the same id is already shown.
func (p *PendingPanel) Insert(req models.Request) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.items[req.ID]; ok {
		return false
	}
	p.items[req.ID] = req
	return true
}

// Remove drops the card for id. Removing an absent id is a no-op.
func (p *PendingPanel) Remove(id uint) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.items[id]; !ok {
		return false
	}
	delete(p.items, id)
	return true
}

// Replace discards every card and renders items instead.
func (p *PendingPanel) Replace(items []models.Request) {
	next := make(map[uint]models.Request, len(items))
	for _, req := range items {
		next[req.ID] = req
	}
	p.mu.Lock()
	p.items = next
	p.mu.Unlock()
}

// Get returns the card for id.
func (p *PendingPanel) Get(id uint) (models.Request, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	req, ok := p.items[id]
	return req, ok
}

// Len is the number of rendered cards.
func (p *PendingPanel) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.items)
}

// Items returns the cards oldest first.
func (p *PendingPanel) Items() []models.Request {
	p.mu.RLock()
	out := make([]models.Request, 0, len(p.items))
	for _, req := range p.items {
		out = append(out, req)
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// IDs returns the rendered ids oldest first.
func (p *PendingPanel) IDs() []uint {
	items := p.Items()
	ids := make([]uint, len(items))
	for i, req := range items {
		ids[i] = req.ID
	}
	return ids
}
