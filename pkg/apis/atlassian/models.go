package atlassian

import "encoding/json"

// Issue is a Jira issue as returned by search and get-by-key.
type Issue struct {
	ID     string      `json:"id"`
	Key    string      `json:"key"`
	Fields IssueFields `json:"fields"`
}

// IssueFields holds the issue fields the desk reads.
// Description is a plain string on API v2 and an ADF document on v3.
type IssueFields struct {
	Summary     string          `json:"summary"`
	Description json.RawMessage `json:"description,omitempty"`
	Status      *NamedRef       `json:"status,omitempty"`
	Priority    *NamedRef       `json:"priority,omitempty"`
	IssueType   *NamedRef       `json:"issuetype,omitempty"`
	Assignee    *User           `json:"assignee,omitempty"`
	Reporter    *User           `json:"reporter,omitempty"`
	Created     string          `json:"created,omitempty"`
	Updated     string          `json:"updated,omitempty"`
	Labels      []string        `json:"labels,omitempty"`
}

// NamedRef is the {id, name} shape Jira uses for status, priority and issue type.
type NamedRef struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// SearchResult is Jira search response.
type SearchResult struct {
	StartAt       int     `json:"startAt"`
	MaxResults    int     `json:"maxResults"`
	Total         int     `json:"total"`
	Issues        []Issue `json:"issues"`
	NextPageToken string  `json:"nextPageToken,omitempty"`
	IsLast        bool    `json:"isLast,omitempty"`
}

// Comment is a Jira comment.
// JSDPublic is only present on service desk projects; false marks an internal note.
type Comment struct {
	ID        string          `json:"id"`
	Author    *User           `json:"author,omitempty"`
	Body      json.RawMessage `json:"body,omitempty"`
	Created   string          `json:"created,omitempty"`
	Updated   string          `json:"updated,omitempty"`
	JSDPublic *bool           `json:"jsdPublic,omitempty"`
}

// CommentsPage is the paginated comment list of an issue.
type CommentsPage struct {
	StartAt    int       `json:"startAt"`
	MaxResults int       `json:"maxResults"`
	Total      int       `json:"total"`
	Comments   []Comment `json:"comments"`
}

// Transition is a workflow transition currently available on an issue.
type Transition struct {
	ID   string   `json:"id"`
	Name string   `json:"name"`
	To   NamedRef `json:"to"`
}

// User is a minimal Jira user DTO.
type User struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"emailAddress,omitempty"`
	Active      bool   `json:"active"`
}
