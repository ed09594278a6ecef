package desk

import "sync"

// Repository holds the ticket set from the last successful fetch.
// It never fetches anything itself.
type Repository struct {
	mu      sync.RWMutex
	tickets []Ticket
	index   map[string]int
}

// NewRepository returns an empty repository.
func NewRepository() *Repository {
	return &Repository{index: map[string]int{}}
}

// ReplaceAll swaps the whole set. If keys repeat, the first occurrence wins
// and later duplicates are dropped.
func (r *Repository) ReplaceAll(tickets []Ticket) {
	next := make([]Ticket, 0, len(tickets))
	index := make(map[string]int, len(tickets))
	for _, t := range tickets {
		if _, dup := index[t.Key]; dup {
			continue
		}
		index[t.Key] = len(next)
		next = append(next, t)
	}

	r.mu.Lock()
	r.tickets = next
	r.index = index
	r.mu.Unlock()
}

// Replace overwrites one ticket in place, keeping its position. Returns
// false when the key is not part of the set.
func (r *Repository) Replace(t Ticket) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	i, ok := r.index[t.Key]
	if !ok {
		return false
	}
	next := append([]Ticket(nil), r.tickets...)
	next[i] = t
	r.tickets = next
	return true
}

// Get returns the ticket with the given key.
func (r *Repository) Get(key string) (Ticket, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i, ok := r.index[key]
	if !ok {
		return Ticket{}, false
	}
	return r.tickets[i], true
}

// All returns the set in fetch order.
func (r *Repository) All() []Ticket {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Ticket, len(r.tickets))
	copy(out, r.tickets)
	return out
}

// Len returns the number of held tickets.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tickets)
}
