package desk

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Filter selects a subset of the ticket set.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterMine     Filter = "mine"
	FilterOpen     Filter = "open"
	FilterWaiting  Filter = "waiting"
	FilterResolved Filter = "resolved"
)

// ParseFilter accepts the filter names shown in the dashboard. "my" is an
// alias for "mine" and the empty string means "all".
func ParseFilter(raw string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(raw))); f {
	case "":
		return FilterAll, nil
	case "my":
		return FilterMine, nil
	case FilterAll, FilterMine, FilterOpen, FilterWaiting, FilterResolved:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown filter %q", ErrValidation, raw)
	}
}

// Statistics are counters over the full ticket set.
type Statistics struct {
	Total         int
	Open          int
	Waiting       int
	ResolvedToday int
}

// ViewOption configures a View.
type ViewOption func(*View)

// WithStatusTable overrides the status table.
func WithStatusTable(table StatusTable) ViewOption {
	return func(v *View) {
		v.statuses = table
	}
}

// WithClock overrides the time source used for ResolvedToday.
func WithClock(now func() time.Time) ViewOption {
	return func(v *View) {
		if now != nil {
			v.now = now
		}
	}
}

// WithCurrentUser sets how the "mine" filter learns the current user's email.
// It is called on every evaluation so credential changes apply immediately.
func WithCurrentUser(email func() string) ViewOption {
	return func(v *View) {
		if email != nil {
			v.currentUser = email
		}
	}
}

// View derives the displayed subset and counters from a Repository.
// Every read recomputes from the repository's current snapshot.
type View struct {
	repo        *Repository
	statuses    StatusTable
	now         func() time.Time
	currentUser func() string

	mu     sync.RWMutex
	filter Filter
	query  string
}

// NewView creates a view over repo with FilterAll and an empty query.
func NewView(repo *Repository, opts ...ViewOption) *View {
	v := &View{
		repo:        repo,
		statuses:    NewStatusTable(nil),
		now:         time.Now,
		currentUser: func() string { return "" },
		filter:      FilterAll,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(v)
		}
	}
	return v
}

// SetFilter changes the category filter.
func (v *View) SetFilter(f Filter) error {
	parsed, err := ParseFilter(string(f))
	if err != nil {
		return err
	}
	v.mu.Lock()
	v.filter = parsed
	v.mu.Unlock()
	return nil
}

// SetSearchQuery changes the free-text query. Surrounding spaces are ignored.
func (v *View) SetSearchQuery(q string) {
	v.mu.Lock()
	v.query = strings.TrimSpace(q)
	v.mu.Unlock()
}

// Filter returns the current category filter.
func (v *View) Filter() Filter {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.filter
}

// SearchQuery returns the current free-text query.
func (v *View) SearchQuery() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.query
}

// Category returns the category of a ticket's status.
func (v *View) Category(t Ticket) Category {
	return v.statuses.Categorize(t.Status)
}

// VisibleTickets applies the category filter, then the search query, keeping order.
func (v *View) VisibleTickets() []Ticket {
	v.mu.RLock()
	filter, query := v.filter, strings.ToLower(v.query)
	v.mu.RUnlock()

	var me string
	if filter == FilterMine {
		me = v.currentUser()
	}

	all := v.repo.All()
	out := make([]Ticket, 0, len(all))
	for _, t := range all {
		if !v.matchesFilter(t, filter, me) {
			continue
		}
		if query != "" && !matchesQuery(t, query) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func (v *View) matchesFilter(t Ticket, filter Filter, me string) bool {
	switch filter {
	case FilterMine:
		return me != "" && t.Assignee != nil && t.Assignee.Email == me
	case FilterOpen:
		return v.Category(t) == CategoryOpen
	case FilterWaiting:
		return v.Category(t) == CategoryWaiting
	case FilterResolved:
		return v.Category(t) == CategoryResolved
	default:
		return true
	}
}

// matchesQuery expects a lower-cased, non-empty query.
func matchesQuery(t Ticket, query string) bool {
	return strings.Contains(strings.ToLower(t.Key), query) ||
		strings.Contains(strings.ToLower(t.Summary), query) ||
		strings.Contains(strings.ToLower(t.Description), query)
}

// Statistics counts over the full set, ignoring filter and query.
// ResolvedToday uses the local calendar day of the view's clock.
func (v *View) Statistics() Statistics {
	now := v.now()
	year, month, day := now.Date()

	all := v.repo.All()
	stats := Statistics{Total: len(all)}
	for _, t := range all {
		switch v.Category(t) {
		case CategoryOpen:
			stats.Open++
		case CategoryWaiting:
			stats.Waiting++
		case CategoryResolved:
			if t.Updated.IsZero() {
				continue
			}
			y, m, d := t.Updated.In(now.Location()).Date()
			if y == year && m == month && d == day {
				stats.ResolvedToday++
			}
		}
	}
	return stats
}
