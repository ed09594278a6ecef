package desk

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// State is the lifecycle position of the detail workflow.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateOpen:
		return "open"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type action string

const (
	actionComment    action = "comment"
	actionTransition action = "transition"
	actionAssign     action = "assign"
)

// WorkflowOption configures a Workflow.
type WorkflowOption func(*Workflow)

// WithCallTimeout bounds every remote call made by the workflow. An expired
// call takes the same path as a rejected one.
func WithCallTimeout(d time.Duration) WorkflowOption {
	return func(w *Workflow) {
		w.timeout = d
	}
}

// WithWorkflowLogger sets the logger.
func WithWorkflowLogger(log zerolog.Logger) WorkflowOption {
	return func(w *Workflow) {
		w.log = log
	}
}

// Workflow manages the single open ticket: loading it with its comments,
// commenting, transitioning and reassigning.
//
// Every Open and Close bumps a generation counter. Responses are applied
// only if the generation they were issued under is still current, so a slow
// response for an earlier ticket can never land under a later one.
type Workflow struct {
	source  Source
	timeout time.Duration
	log     zerolog.Logger

	mu       sync.Mutex
	state    State
	gen      uint64
	key      string
	detail   *Detail
	inflight map[action]bool
}

// NewWorkflow returns an Idle workflow.
func NewWorkflow(source Source, opts ...WorkflowOption) *Workflow {
	w := &Workflow{
		source:   source,
		log:      zerolog.Nop(),
		inflight: map[action]bool{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Current returns a copy of the open ticket detail (nil unless Open) and the state.
func (w *Workflow) Current() (*Detail, State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.detail.clone(), w.state
}

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Open loads the ticket and its comments. On failure the workflow is Idle
// and the error is returned. If another Open or a Close happened while the
// fetch was in flight, the result is dropped and ErrStale is returned.
func (w *Workflow) Open(ctx context.Context, key string) (*Detail, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("%w: ticket key is required", ErrValidation)
	}

	w.mu.Lock()
	w.gen++
	gen := w.gen
	w.state = StateLoading
	w.key = key
	w.detail = nil
	w.inflight = map[action]bool{}
	w.mu.Unlock()

	ticket, err := callValue(ctx, w.timeout, func(ctx context.Context) (Ticket, error) {
		return w.source.GetDetail(ctx, key)
	})
	if err != nil {
		return nil, w.failLoad(gen, key, err)
	}

	comments, err := callValue(ctx, w.timeout, func(ctx context.Context) ([]Comment, error) {
		return w.source.GetComments(ctx, key)
	})
	if err != nil {
		return nil, w.failLoad(gen, key, err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.gen {
		w.log.Debug().Str("ticket", key).Msg("dropping stale ticket detail")
		return nil, ErrStale
	}
	w.state = StateOpen
	w.detail = &Detail{Ticket: ticket, Comments: comments}
	return w.detail.clone(), nil
}

func (w *Workflow) failLoad(gen uint64, key string, err error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.gen {
		return ErrStale
	}
	w.state = StateIdle
	w.key = ""
	w.detail = nil
	w.log.Warn().Err(err).Str("ticket", key).Msg("open ticket failed")
	return err
}

// Close returns to Idle and invalidates every in-flight response.
func (w *Workflow) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.reset()
}

// closeIf closes the workflow only while gen is still current. It reports
// whether it did.
func (w *Workflow) closeIf(gen uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.gen {
		return false
	}
	w.reset()
	return true
}

func (w *Workflow) reset() {
	w.gen++
	w.state = StateIdle
	w.key = ""
	w.detail = nil
	w.inflight = map[action]bool{}
}

// AddComment posts a comment on the open ticket and reloads the comment list.
// Blank text is rejected without a remote call. On failure the loaded
// comments are left as they were.
func (w *Workflow) AddComment(ctx context.Context, text string, internal bool) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: comment text is required", ErrValidation)
	}

	key, gen, err := w.begin(actionComment)
	if err != nil {
		return err
	}
	defer w.end(actionComment, gen)

	if err := call(ctx, w.timeout, func(ctx context.Context) error {
		return w.source.AddComment(ctx, key, text, internal)
	}); err != nil {
		return err
	}

	comments, err := callValue(ctx, w.timeout, func(ctx context.Context) ([]Comment, error) {
		return w.source.GetComments(ctx, key)
	})
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if gen == w.gen && w.state == StateOpen {
		w.detail.Comments = comments
	}
	return nil
}

// Transitions lists the transitions currently available on the open ticket.
func (w *Workflow) Transitions(ctx context.Context) ([]Transition, error) {
	key, _, err := w.openKey()
	if err != nil {
		return nil, err
	}
	return callValue(ctx, w.timeout, func(ctx context.Context) ([]Transition, error) {
		return w.source.GetTransitions(ctx, key)
	})
}

// RequestTransition moves the open ticket to the status named target. The
// name must exactly match the target of one available transition; otherwise
// ErrTransitionNotAvailable is returned and nothing is submitted. The
// workflow stays Open either way; the caller closes and refreshes.
func (w *Workflow) RequestTransition(ctx context.Context, target string) error {
	_, err := w.requestTransition(ctx, target)
	return err
}

// requestTransition also returns the generation the transition ran under.
func (w *Workflow) requestTransition(ctx context.Context, target string) (uint64, error) {
	if strings.TrimSpace(target) == "" {
		return 0, fmt.Errorf("%w: target status is required", ErrValidation)
	}

	key, gen, err := w.begin(actionTransition)
	if err != nil {
		return 0, err
	}
	defer w.end(actionTransition, gen)

	transitions, err := callValue(ctx, w.timeout, func(ctx context.Context) ([]Transition, error) {
		return w.source.GetTransitions(ctx, key)
	})
	if err != nil {
		return gen, err
	}

	var chosen *Transition
	for i := range transitions {
		if transitions[i].Target == target {
			chosen = &transitions[i]
			break
		}
	}
	if chosen == nil {
		return gen, fmt.Errorf("%w: %q on %s", ErrTransitionNotAvailable, target, key)
	}
	if err := w.current(gen, key); err != nil {
		return gen, err
	}

	return gen, call(ctx, w.timeout, func(ctx context.Context) error {
		return w.source.DoTransition(ctx, key, chosen.ID)
	})
}

// FindAssignees returns candidate people for free-text query, in the order
// the remote search ranks them.
func (w *Workflow) FindAssignees(ctx context.Context, query string) ([]Person, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: assignee query is required", ErrValidation)
	}
	return callValue(ctx, w.timeout, func(ctx context.Context) ([]Person, error) {
		return w.source.SearchUsers(ctx, query)
	})
}

// RequestReassignment looks people up by query and assigns the open ticket
// to the first candidate. Callers that want to choose should use
// FindAssignees followed by AssignTo.
func (w *Workflow) RequestReassignment(ctx context.Context, query string) (Person, error) {
	person, _, err := w.requestReassignment(ctx, query)
	return person, err
}

func (w *Workflow) requestReassignment(ctx context.Context, query string) (Person, uint64, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Person{}, 0, fmt.Errorf("%w: assignee query is required", ErrValidation)
	}

	key, gen, err := w.begin(actionAssign)
	if err != nil {
		return Person{}, 0, err
	}
	defer w.end(actionAssign, gen)

	candidates, err := callValue(ctx, w.timeout, func(ctx context.Context) ([]Person, error) {
		return w.source.SearchUsers(ctx, query)
	})
	if err != nil {
		return Person{}, gen, err
	}
	if len(candidates) == 0 {
		return Person{}, gen, fmt.Errorf("%w: %q", ErrUserNotFound, query)
	}
	if err := w.current(gen, key); err != nil {
		return Person{}, gen, err
	}

	person := candidates[0]
	if err := w.assign(ctx, key, person); err != nil {
		return Person{}, gen, err
	}
	return person, gen, nil
}

// AssignTo assigns the open ticket to an already chosen person.
func (w *Workflow) AssignTo(ctx context.Context, person Person) error {
	_, err := w.assignTo(ctx, person)
	return err
}

func (w *Workflow) assignTo(ctx context.Context, person Person) (uint64, error) {
	key, gen, err := w.begin(actionAssign)
	if err != nil {
		return 0, err
	}
	defer w.end(actionAssign, gen)
	return gen, w.assign(ctx, key, person)
}

func (w *Workflow) assign(ctx context.Context, key string, person Person) error {
	if strings.TrimSpace(person.AccountID) == "" {
		return fmt.Errorf("%w: assignee has no account id", ErrValidation)
	}
	return call(ctx, w.timeout, func(ctx context.Context) error {
		return w.source.Assign(ctx, key, person.AccountID)
	})
}

// current returns ErrStale once the ticket opened under gen is no longer open.
func (w *Workflow) current(gen uint64, key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen != w.gen || w.state != StateOpen {
		w.log.Debug().Str("ticket", key).Msg("dropping action for a ticket no longer open")
		return ErrStale
	}
	return nil
}

func (w *Workflow) openKey() (string, uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateOpen {
		return "", 0, ErrNoTicketOpen
	}
	return w.key, w.gen, nil
}

// begin marks act as in flight for the open ticket.
func (w *Workflow) begin(act action) (string, uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateOpen {
		return "", 0, ErrNoTicketOpen
	}
	if w.inflight[act] {
		return "", 0, fmt.Errorf("%w: %s on %s", ErrBusy, act, w.key)
	}
	w.inflight[act] = true
	return w.key, w.gen, nil
}

func (w *Workflow) end(act action, gen uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if gen == w.gen {
		delete(w.inflight, act)
	}
}

func call(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	_, err := callValue(ctx, timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

func callValue[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	v, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, normalize(err)
	}
	return v, nil
}
