package desk

import (
	"context"
	"fmt"
	"strings"

	"github.com/SeniorPomidorro/suptech-desk/pkg/apis/atlassian"
)

// Source is the remote side of the desk. Implementations issue one remote
// call per method and never retry.
type Source interface {
	SearchTickets(ctx context.Context) ([]Ticket, error)
	GetTicket(ctx context.Context, key string) (Ticket, error)
	GetDetail(ctx context.Context, key string) (Ticket, error)
	GetComments(ctx context.Context, key string) ([]Comment, error)
	AddComment(ctx context.Context, key, text string, internal bool) error
	GetTransitions(ctx context.Context, key string) ([]Transition, error)
	DoTransition(ctx context.Context, key, transitionID string) error
	SearchUsers(ctx context.Context, query string) ([]Person, error)
	Assign(ctx context.Context, key, accountID string) error
}

// DefaultMaxResults is the page size of the ticket list fetch.
const DefaultMaxResults = 100

// JiraSource implements Source with the Jira REST client, scoped to one project.
type JiraSource struct {
	client     *atlassian.Client
	project    string
	maxResults int
	fetchAll   bool
}

// SourceOption configures a JiraSource.
type SourceOption func(*JiraSource)

// WithPageSize sets how many tickets one search request returns. Non-positive
// values keep DefaultMaxResults.
func WithPageSize(n int) SourceOption {
	return func(s *JiraSource) {
		if n > 0 {
			s.maxResults = n
		}
	}
}

// WithFetchAll makes SearchTickets follow every page instead of stopping
// after the first.
func WithFetchAll(all bool) SourceOption {
	return func(s *JiraSource) {
		s.fetchAll = all
	}
}

// NewJiraSource returns a Source for the given project key.
func NewJiraSource(client *atlassian.Client, project string, opts ...SourceOption) *JiraSource {
	s := &JiraSource{client: client, project: strings.TrimSpace(project), maxResults: DefaultMaxResults}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// ProjectJQL returns the list query: one project, newest first.
func ProjectJQL(project string) string {
	return "project = " + atlassian.QuoteJQL(project) + " ORDER BY created DESC"
}

func (s *JiraSource) SearchTickets(ctx context.Context) ([]Ticket, error) {
	if !atlassian.ValidProjectKey(s.project) {
		return nil, fmt.Errorf("%w: invalid project key %q", ErrValidation, s.project)
	}

	result, err := s.client.Issues().FindIssues(ctx, ProjectJQL(s.project), &atlassian.FindIssuesOptions{
		Fields:   TicketFields,
		PageSize: s.maxResults,
		FetchAll: s.fetchAll,
	})
	if err != nil {
		return nil, classify("search tickets", err)
	}

	tickets := make([]Ticket, 0, len(result.Issues))
	for _, issue := range result.Issues {
		tickets = append(tickets, TicketFromIssue(issue))
	}
	return tickets, nil
}

func (s *JiraSource) GetTicket(ctx context.Context, key string) (Ticket, error) {
	issue, err := s.client.Issues().GetIssue(ctx, key, &atlassian.GetIssueOptions{Fields: TicketFields})
	if err != nil {
		return Ticket{}, classify("get ticket "+key, err)
	}
	return TicketFromIssue(*issue), nil
}

func (s *JiraSource) GetDetail(ctx context.Context, key string) (Ticket, error) {
	issue, err := s.client.Issues().GetIssue(ctx, key, &atlassian.GetIssueOptions{Expand: []string{"renderedFields"}})
	if err != nil {
		return Ticket{}, classify("get detail "+key, err)
	}
	return TicketFromIssue(*issue), nil
}

func (s *JiraSource) GetComments(ctx context.Context, key string) ([]Comment, error) {
	page, err := s.client.Issues().ListComments(ctx, key, &atlassian.ListCommentsOptions{OrderBy: "created"})
	if err != nil {
		return nil, classify("get comments "+key, err)
	}

	comments := make([]Comment, 0, len(page.Comments))
	for _, c := range page.Comments {
		comments = append(comments, CommentFromJira(c))
	}
	return comments, nil
}

func (s *JiraSource) AddComment(ctx context.Context, key, text string, internal bool) error {
	if _, err := s.client.Issues().CreateComment(ctx, key, text, internal); err != nil {
		return classify("add comment "+key, err)
	}
	return nil
}

func (s *JiraSource) GetTransitions(ctx context.Context, key string) ([]Transition, error) {
	raw, err := s.client.Issues().ListTransitions(ctx, key)
	if err != nil {
		return nil, classify("get transitions "+key, err)
	}

	transitions := make([]Transition, 0, len(raw))
	for _, t := range raw {
		transitions = append(transitions, Transition{ID: t.ID, Name: t.Name, Target: t.To.Name})
	}
	return transitions, nil
}

func (s *JiraSource) DoTransition(ctx context.Context, key, transitionID string) error {
	if err := s.client.Issues().DoTransition(ctx, key, transitionID); err != nil {
		return classify("transition "+key, err)
	}
	return nil
}

func (s *JiraSource) SearchUsers(ctx context.Context, query string) ([]Person, error) {
	users, err := s.client.Users().FindUsers(ctx, query, nil)
	if err != nil {
		return nil, classify("search users", err)
	}

	people := make([]Person, 0, len(users))
	for _, u := range users {
		people = append(people, Person{DisplayName: u.DisplayName, AccountID: u.AccountID, Email: u.Email})
	}
	return people, nil
}

func (s *JiraSource) Assign(ctx context.Context, key, accountID string) error {
	if err := s.client.Issues().Assign(ctx, key, accountID); err != nil {
		return classify("assign "+key, err)
	}
	return nil
}
