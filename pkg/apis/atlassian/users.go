package atlassian

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// UsersService provides Jira user lookups.
type UsersService struct {
	client *Client
}

// FindUsersOptions controls user search query.
type FindUsersOptions struct {
	StartAt         int
	MaxResults      int
	AccountID       string
	IncludeInactive bool
}

// FindUsers queries Jira users by name or email fragment. Inactive accounts
// are dropped from the result unless IncludeInactive is set.
func (s *UsersService) FindUsers(ctx context.Context, query string, opts *FindUsersOptions) ([]User, error) {
	if strings.TrimSpace(query) == "" {
		return nil, errors.New("atlassian: query is required")
	}

	if opts == nil {
		opts = &FindUsersOptions{}
	}

	params := url.Values{}
	params.Set("query", query)
	if opts.StartAt > 0 {
		params.Set("startAt", strconv.Itoa(opts.StartAt))
	}
	if opts.MaxResults > 0 {
		params.Set("maxResults", strconv.Itoa(opts.MaxResults))
	}
	if opts.AccountID != "" {
		params.Set("accountId", opts.AccountID)
	}

	req, err := s.client.newRequest(ctx, http.MethodGet, "/rest/api/3/user/search", params, nil)
	if err != nil {
		return nil, err
	}

	var users []User
	if err := s.client.transport.DoJSON(req, &users); err != nil {
		return nil, err
	}
	if opts.IncludeInactive {
		return users, nil
	}

	active := users[:0]
	for _, user := range users {
		if user.Active {
			active = append(active, user)
		}
	}
	return active, nil
}

// Myself returns the user the request credentials belong to.
func (s *UsersService) Myself(ctx context.Context) (*User, error) {
	req, err := s.client.newRequest(ctx, http.MethodGet, "/rest/api/3/myself", nil, nil)
	if err != nil {
		return nil, err
	}

	var user User
	if err := s.client.transport.DoJSON(req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
