// Package desk is the service desk dashboard core: the fetched ticket set,
// the filtered view over it and the workflow around one open ticket.
//
// Nothing in this package patches ticket fields locally after a mutation.
// Comments are reloaded from the source, and transitions or reassignments
// are followed by a full refresh.
package desk

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/SeniorPomidorro/suptech-desk/internal/credentials"
	"github.com/SeniorPomidorro/suptech-desk/pkg/apis/atlassian"
)

// CredentialAuth resolves Jira basic auth from the credential store at the
// moment each request is built.
func CredentialAuth(store credentials.Store) atlassian.AuthProvider {
	return func(context.Context) (atlassian.Auth, error) {
		creds, ok := store.Get()
		if !ok {
			return atlassian.Auth{}, ErrNoCredentials
		}
		return atlassian.Auth{Mode: atlassian.AuthBasicEmailToken, Email: creds.Email, Token: creds.Token}, nil
	}
}

// Option configures a Desk.
type Option func(*options)

type options struct {
	view     []ViewOption
	workflow []WorkflowOption
	log      zerolog.Logger
}

// WithViewOptions forwards options to the View.
func WithViewOptions(opts ...ViewOption) Option {
	return func(o *options) {
		o.view = append(o.view, opts...)
	}
}

// WithWorkflowOptions forwards options to the Workflow.
func WithWorkflowOptions(opts ...WorkflowOption) Option {
	return func(o *options) {
		o.workflow = append(o.workflow, opts...)
	}
}

// WithLogger sets the logger used by the desk and its workflow.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) {
		o.log = log
	}
}

// Desk wires the repository, view and workflow to a Source and a credential store.
type Desk struct {
	source   Source
	repo     *Repository
	view     *View
	workflow *Workflow
	log      zerolog.Logger

	mu      sync.Mutex
	listGen uint64
}

// New builds a Desk. The "mine" filter reads the current email from creds.
func New(source Source, creds credentials.Store, opts ...Option) *Desk {
	o := options{log: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	repo := NewRepository()
	currentUser := func() string {
		c, ok := creds.Get()
		if !ok {
			return ""
		}
		return c.Email
	}
	viewOpts := append([]ViewOption{WithCurrentUser(currentUser)}, o.view...)
	workflowOpts := append([]WorkflowOption{WithWorkflowLogger(o.log)}, o.workflow...)

	return &Desk{
		source:   source,
		repo:     repo,
		view:     NewView(repo, viewOpts...),
		workflow: NewWorkflow(source, workflowOpts...),
		log:      o.log,
	}
}

func (d *Desk) Repository() *Repository { return d.repo }
func (d *Desk) View() *View             { return d.view }
func (d *Desk) Workflow() *Workflow     { return d.workflow }

// Refresh fetches the ticket list and replaces the repository. When a newer
// Refresh started before this one finished, the older result is dropped
// and ErrStale is returned.
func (d *Desk) Refresh(ctx context.Context) error {
	d.mu.Lock()
	d.listGen++
	gen := d.listGen
	d.mu.Unlock()

	tickets, err := d.source.SearchTickets(ctx)
	if err != nil {
		d.log.Warn().Err(err).Msg("ticket list fetch failed")
		return normalize(err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.listGen {
		d.log.Debug().Uint64("generation", gen).Msg("dropping stale ticket list")
		return ErrStale
	}
	d.repo.ReplaceAll(tickets)
	d.log.Debug().Int("tickets", len(tickets)).Msg("ticket list replaced")
	return nil
}

// Lookup fetches one ticket by key. A ticket already in the repository is
// replaced in place. An empty key falls back to Refresh and returns a zero Ticket.
func (d *Desk) Lookup(ctx context.Context, key string) (Ticket, error) {
	key = strings.ToUpper(strings.TrimSpace(key))
	if key == "" {
		return Ticket{}, d.Refresh(ctx)
	}

	ticket, err := d.source.GetTicket(ctx, key)
	if err != nil {
		return Ticket{}, normalize(err)
	}
	d.repo.Replace(ticket)
	return ticket, nil
}

// Transition requests the status change on the open ticket, then closes it
// and refreshes the list. The workflow stays Open if the request fails.
func (d *Desk) Transition(ctx context.Context, target string) error {
	gen, err := d.workflow.requestTransition(ctx, target)
	if err != nil {
		return err
	}
	return d.afterMutation(ctx, gen)
}

// Reassign assigns the open ticket to the first person matching query, then
// closes it and refreshes the list.
func (d *Desk) Reassign(ctx context.Context, query string) (Person, error) {
	person, gen, err := d.workflow.requestReassignment(ctx, query)
	if err != nil {
		return Person{}, err
	}
	return person, d.afterMutation(ctx, gen)
}

// AssignTo assigns the open ticket to a chosen person, then closes it and
// refreshes the list.
func (d *Desk) AssignTo(ctx context.Context, person Person) error {
	gen, err := d.workflow.assignTo(ctx, person)
	if err != nil {
		return err
	}
	return d.afterMutation(ctx, gen)
}

// afterMutation closes the ticket the mutation ran on. A ticket opened since
// then stays open; the list is refreshed either way.
func (d *Desk) afterMutation(ctx context.Context, gen uint64) error {
	if !d.workflow.closeIf(gen) {
		d.log.Debug().Msg("workflow moved on during update, leaving it open")
	}
	if err := d.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh after update: %w", err)
	}
	return nil
}
