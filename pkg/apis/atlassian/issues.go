package atlassian

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/SeniorPomidorro/suptech-desk/pkg/transport"
)

// IssuesService provides Jira issue operations.
type IssuesService struct {
	client *Client
}

// FindIssuesOptions controls JQL search.
type FindIssuesOptions struct {
	Fields   []string
	Expand   []string
	PageSize int
	FetchAll bool
}

// GetIssueOptions narrows the fields returned by GetIssue.
type GetIssueOptions struct {
	Fields []string
	Expand []string
}

// ListCommentsOptions controls comment listing.
type ListCommentsOptions struct {
	StartAt    int
	MaxResults int
	OrderBy    string
}

// GetIssue returns Jira issue by key.
func (s *IssuesService) GetIssue(ctx context.Context, ticketKey string, opts *GetIssueOptions) (*Issue, error) {
	if strings.TrimSpace(ticketKey) == "" {
		return nil, errors.New("atlassian: ticket key is required")
	}

	query := url.Values{}
	if opts != nil {
		if len(opts.Fields) > 0 {
			query.Set("fields", strings.Join(opts.Fields, ","))
		}
		if len(opts.Expand) > 0 {
			query.Set("expand", strings.Join(opts.Expand, ","))
		}
	}

	req, err := s.client.newRequest(ctx, http.MethodGet, issuePath(ticketKey), query, nil)
	if err != nil {
		return nil, err
	}

	var issue Issue
	if err := s.client.transport.DoJSON(req, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// FindIssues executes JQL search and optionally fetches all pages.
func (s *IssuesService) FindIssues(ctx context.Context, jql string, opts *FindIssuesOptions) (*SearchResult, error) {
	if strings.TrimSpace(jql) == "" {
		return nil, errors.New("atlassian: jql is required")
	}

	if opts == nil {
		opts = &FindIssuesOptions{}
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	startAt := 0
	nextPageToken := ""
	result := &SearchResult{MaxResults: pageSize}

	for {
		payload := map[string]any{
			"jql":        jql,
			"maxResults": pageSize,
		}
		// Cloud's enhanced search pages by token; older sites still honour startAt.
		if nextPageToken != "" {
			payload["nextPageToken"] = nextPageToken
		} else {
			payload["startAt"] = startAt
		}
		if len(opts.Fields) > 0 {
			payload["fields"] = opts.Fields
		}
		if len(opts.Expand) > 0 {
			payload["expand"] = strings.Join(opts.Expand, ",")
		}

		// search is read-only, so the POST may be retried
		req, err := s.client.newRequest(transport.Idempotent(ctx), http.MethodPost, "/rest/api/3/search/jql", nil, payload)
		if err != nil {
			return nil, err
		}

		var page SearchResult
		if err := s.client.transport.DoJSON(req, &page); err != nil {
			return nil, err
		}

		if !opts.FetchAll {
			return &page, nil
		}

		result.Issues = append(result.Issues, page.Issues...)
		result.Total = max(page.Total, len(result.Issues))
		startAt += len(page.Issues)
		nextPageToken = page.NextPageToken

		if len(page.Issues) == 0 || page.IsLast {
			return result, nil
		}
		if nextPageToken == "" && startAt >= page.Total {
			return result, nil
		}
	}
}

// ListComments returns one page of comments on an issue, oldest first unless OrderBy says otherwise.
func (s *IssuesService) ListComments(ctx context.Context, ticketKey string, opts *ListCommentsOptions) (*CommentsPage, error) {
	if strings.TrimSpace(ticketKey) == "" {
		return nil, errors.New("atlassian: ticket key is required")
	}

	query := url.Values{}
	if opts != nil {
		if opts.StartAt > 0 {
			query.Set("startAt", strconv.Itoa(opts.StartAt))
		}
		if opts.MaxResults > 0 {
			query.Set("maxResults", strconv.Itoa(opts.MaxResults))
		}
		if strings.TrimSpace(opts.OrderBy) != "" {
			query.Set("orderBy", opts.OrderBy)
		}
	}

	req, err := s.client.newRequest(ctx, http.MethodGet, issuePath(ticketKey, "comment"), query, nil)
	if err != nil {
		return nil, err
	}

	var page CommentsPage
	if err := s.client.transport.DoJSON(req, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// CreateComment creates Jira comment with an ADF body.
// internal=false publishes the comment to the customer (jsdPublic); internal=true
// keeps it agent-only and also sets the JSM sd.public.comment property.
func (s *IssuesService) CreateComment(ctx context.Context, ticketKey, text string, internal bool) (*Comment, error) {
	if strings.TrimSpace(ticketKey) == "" {
		return nil, errors.New("atlassian: ticket key is required")
	}
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("atlassian: comment text is required")
	}

	payload := map[string]any{
		"body":      TextDocument(text),
		"jsdPublic": !internal,
	}
	if internal {
		payload["properties"] = []map[string]any{{
			"key":   "sd.public.comment",
			"value": map[string]any{"internal": true},
		}}
	}

	req, err := s.client.newRequest(ctx, http.MethodPost, issuePath(ticketKey, "comment"), nil, payload)
	if err != nil {
		return nil, err
	}

	var comment Comment
	if err := s.client.transport.DoJSON(req, &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

// ListTransitions returns the transitions currently legal for the issue.
func (s *IssuesService) ListTransitions(ctx context.Context, ticketKey string) ([]Transition, error) {
	if strings.TrimSpace(ticketKey) == "" {
		return nil, errors.New("atlassian: ticket key is required")
	}

	req, err := s.client.newRequest(ctx, http.MethodGet, issuePath(ticketKey, "transitions"), nil, nil)
	if err != nil {
		return nil, err
	}

	var out struct {
		Transitions []Transition `json:"transitions"`
	}
	if err := s.client.transport.DoJSON(req, &out); err != nil {
		return nil, err
	}
	return out.Transitions, nil
}

// DoTransition moves the issue through the transition with the given ID.
func (s *IssuesService) DoTransition(ctx context.Context, ticketKey, transitionID string) error {
	if strings.TrimSpace(ticketKey) == "" {
		return errors.New("atlassian: ticket key is required")
	}
	if strings.TrimSpace(transitionID) == "" {
		return errors.New("atlassian: transition ID is required")
	}

	payload := map[string]any{
		"transition": map[string]string{"id": transitionID},
	}
	req, err := s.client.newRequest(ctx, http.MethodPost, issuePath(ticketKey, "transitions"), nil, payload)
	if err != nil {
		return err
	}
	return s.client.doNoResponseBody(req)
}

// Assign sets the issue assignee by account ID.
func (s *IssuesService) Assign(ctx context.Context, ticketKey, accountID string) error {
	if strings.TrimSpace(ticketKey) == "" {
		return errors.New("atlassian: ticket key is required")
	}
	if strings.TrimSpace(accountID) == "" {
		return errors.New("atlassian: account ID is required")
	}

	payload := map[string]string{"accountId": accountID}
	req, err := s.client.newRequest(ctx, http.MethodPut, issuePath(ticketKey, "assignee"), nil, payload)
	if err != nil {
		return err
	}
	return s.client.doNoResponseBody(req)
}
