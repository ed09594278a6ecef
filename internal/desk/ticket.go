package desk

import (
	"strings"
	"time"

	"github.com/SeniorPomidorro/suptech-desk/pkg/apis/atlassian"
)

// jiraTimeLayout is the timestamp format of Jira REST fields.
const jiraTimeLayout = "2006-01-02T15:04:05.000-0700"

// Person references a Jira user.
type Person struct {
	DisplayName string
	AccountID   string
	Email       string
}

// Ticket is one service desk issue.
type Ticket struct {
	Key         string
	Summary     string
	Description string
	Status      string
	Priority    string
	IssueType   string
	Assignee    *Person
	Reporter    *Person
	Labels      []string
	Created     time.Time
	Updated     time.Time
}

// Comment is one entry of a ticket's conversation.
type Comment struct {
	ID       string
	Author   *Person
	Body     string
	Created  time.Time
	Internal bool
}

// Transition is a status change the remote workflow currently allows.
type Transition struct {
	ID     string
	Name   string
	Target string
}

// Detail is the open ticket with its comments.
type Detail struct {
	Ticket   Ticket
	Comments []Comment
}

func (d *Detail) clone() *Detail {
	if d == nil {
		return nil
	}
	out := &Detail{Ticket: d.Ticket}
	out.Comments = append([]Comment(nil), d.Comments...)
	return out
}

// TicketFields is the field list requested for list and detail fetches.
var TicketFields = []string{
	"summary", "description", "status", "priority", "assignee",
	"reporter", "created", "updated", "issuetype", "labels",
}

// TicketFromIssue converts the Jira wire shape.
func TicketFromIssue(issue atlassian.Issue) Ticket {
	f := issue.Fields
	t := Ticket{
		Key:         issue.Key,
		Summary:     f.Summary,
		Description: atlassian.PlainText(f.Description),
		Assignee:    personFromUser(f.Assignee),
		Reporter:    personFromUser(f.Reporter),
		Labels:      append([]string(nil), f.Labels...),
		Created:     ParseTime(f.Created),
		Updated:     ParseTime(f.Updated),
	}
	if f.Status != nil {
		t.Status = f.Status.Name
	}
	if f.Priority != nil {
		t.Priority = f.Priority.Name
	}
	if f.IssueType != nil {
		t.IssueType = f.IssueType.Name
	}
	return t
}

// CommentFromJira converts the Jira wire shape. A comment is internal only
// when the service desk explicitly marks it non-public.
func CommentFromJira(c atlassian.Comment) Comment {
	return Comment{
		ID:       c.ID,
		Author:   personFromUser(c.Author),
		Body:     atlassian.PlainText(c.Body),
		Created:  ParseTime(c.Created),
		Internal: c.JSDPublic != nil && !*c.JSDPublic,
	}
}

func personFromUser(u *atlassian.User) *Person {
	if u == nil {
		return nil
	}
	return &Person{DisplayName: u.DisplayName, AccountID: u.AccountID, Email: u.Email}
}

// ParseTime reads Jira and RFC3339 timestamps. Anything else yields the zero time.
func ParseTime(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range []string{jiraTimeLayout, time.RFC3339Nano, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
