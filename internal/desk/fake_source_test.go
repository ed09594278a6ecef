package desk

import (
	"context"
	"sync"
)

type postedComment struct {
	Key      string
	Text     string
	Internal bool
}

// fakeSource is an in-memory Source. gates block GetDetail for a key until
// the channel is closed; entered is signalled when such a call starts.
type fakeSource struct {
	mu sync.Mutex

	tickets     []Ticket
	details     map[string]Ticket
	comments    map[string][]Comment
	transitions map[string][]Transition
	users       map[string][]Person
	errs        map[string]error

	gates   map[string]chan struct{}
	entered chan string

	calls       []string
	posted      []postedComment
	transitDone []string
	assigned    []string
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		details:     map[string]Ticket{},
		comments:    map[string][]Comment{},
		transitions: map[string][]Transition{},
		users:       map[string][]Person{},
		errs:        map[string]error{},
		gates:       map[string]chan struct{}{},
	}
}

func (f *fakeSource) record(call string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.errs[call]
}

func (f *fakeSource) callCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeSource) SearchTickets(ctx context.Context) ([]Ticket, error) {
	if err := f.record("SearchTickets"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Ticket(nil), f.tickets...), nil
}

func (f *fakeSource) GetTicket(ctx context.Context, key string) (Ticket, error) {
	if err := f.record("GetTicket"); err != nil {
		return Ticket{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.details[key]
	if !ok {
		return Ticket{}, ErrNotFound
	}
	return t, nil
}

func (f *fakeSource) GetDetail(ctx context.Context, key string) (Ticket, error) {
	if err := f.record("GetDetail"); err != nil {
		return Ticket{}, err
	}

	f.mu.Lock()
	gate := f.gates[key]
	entered := f.entered
	f.mu.Unlock()

	if gate != nil {
		if entered != nil {
			entered <- key
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return Ticket{}, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.details[key]
	if !ok {
		return Ticket{}, ErrNotFound
	}
	return t, nil
}

func (f *fakeSource) GetComments(ctx context.Context, key string) ([]Comment, error) {
	if err := f.record("GetComments"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Comment(nil), f.comments[key]...), nil
}

func (f *fakeSource) AddComment(ctx context.Context, key, text string, internal bool) error {
	if err := f.record("AddComment"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, postedComment{Key: key, Text: text, Internal: internal})
	// The server decides the stored shape; mimic it with an ID and a prefix.
	f.comments[key] = append(f.comments[key], Comment{ID: "srv-" + text, Body: text, Internal: internal})
	return nil
}

func (f *fakeSource) GetTransitions(ctx context.Context, key string) ([]Transition, error) {
	if err := f.record("GetTransitions"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Transition(nil), f.transitions[key]...), nil
}

func (f *fakeSource) DoTransition(ctx context.Context, key, transitionID string) error {
	if err := f.record("DoTransition"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitDone = append(f.transitDone, key+":"+transitionID)
	return nil
}

func (f *fakeSource) SearchUsers(ctx context.Context, query string) ([]Person, error) {
	if err := f.record("SearchUsers"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Person(nil), f.users[query]...), nil
}

func (f *fakeSource) Assign(ctx context.Context, key, accountID string) error {
	if err := f.record("Assign"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigned = append(f.assigned, key+":"+accountID)
	return nil
}
