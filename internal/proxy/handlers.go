package proxy

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/SeniorPomidorro/suptech-desk/pkg/apis/atlassian"
	"github.com/SeniorPomidorro/suptech-desk/pkg/transport"
)

const (
	maxBodyBytes   = 1 << 20
	maxTickets     = 100
	maxUsers       = 20
	unassignedName = "Unassigned"
	newsDayLayout  = "2006-01-02"
)

var ticketFields = []string{"summary", "status", "priority", "assignee", "reporter", "created", "updated", "labels"}

type ticketSummary struct {
	Key      string   `json:"key"`
	Summary  string   `json:"summary"`
	Status   string   `json:"status"`
	Priority string   `json:"priority"`
	Assignee string   `json:"assignee"`
	Reporter string   `json:"reporter"`
	Created  string   `json:"created"`
	Updated  string   `json:"updated"`
	Labels   []string `json:"labels"`
}

type ticketsResponse struct {
	UpdatedAt string          `json:"updatedAt"`
	Total     int             `json:"total"`
	Tickets   []ticketSummary `json:"tickets"`
}

type userSummary struct {
	AccountID   string `json:"accountId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	n, err := s.store.CountInstallations(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "installations": n})
}

// GET /api/tickets?project=&q=
func (s *Server) tickets(w http.ResponseWriter, r *http.Request) {
	s.searchTickets(w, r, s.jira)
}

func (s *Server) searchTickets(w http.ResponseWriter, r *http.Request, client *atlassian.Client) {
	jql, ok := buildJQL(r.URL.Query().Get("project"), s.cfg.Project, r.URL.Query().Get("q"))
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid or missing project")
		return
	}

	result, err := client.Issues().FindIssues(r.Context(), jql, &atlassian.FindIssuesOptions{
		Fields:   ticketFields,
		PageSize: maxTickets,
		FetchAll: s.cfg.FetchAll,
	})
	if err != nil {
		s.upstreamError(w, "failed to fetch from jira", err)
		return
	}

	tickets := make([]ticketSummary, 0, len(result.Issues))
	for _, issue := range result.Issues {
		tickets = append(tickets, summarize(issue))
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	writeJSON(w, http.StatusOK, ticketsResponse{
		UpdatedAt: s.now().UTC().Format(time.RFC3339),
		Total:     len(tickets),
		Tickets:   tickets,
	})
}

// buildJQL scopes the search to one project and an optional text query.
func buildJQL(project, fallback, query string) (string, bool) {
	project = strings.ToUpper(strings.TrimSpace(project))
	if project == "" {
		project = strings.ToUpper(strings.TrimSpace(fallback))
	}
	if !atlassian.ValidProjectKey(project) {
		return "", false
	}

	var b strings.Builder
	b.WriteString("project = " + atlassian.QuoteJQL(project))
	if q := strings.TrimSpace(query); q != "" {
		b.WriteString(" AND text ~ " + atlassian.QuoteJQL(q))
	}
	b.WriteString(" ORDER BY created DESC")
	return b.String(), true
}

func summarize(issue atlassian.Issue) ticketSummary {
	f := issue.Fields
	out := ticketSummary{
		Key:      issue.Key,
		Summary:  f.Summary,
		Assignee: unassignedName,
		Created:  f.Created,
		Updated:  f.Updated,
		Labels:   f.Labels,
	}
	if f.Status != nil {
		out.Status = f.Status.Name
	}
	if f.Priority != nil {
		out.Priority = f.Priority.Name
	}
	if f.Assignee != nil && f.Assignee.DisplayName != "" {
		out.Assignee = f.Assignee.DisplayName
	}
	if f.Reporter != nil {
		out.Reporter = f.Reporter.DisplayName
	}
	if out.Labels == nil {
		out.Labels = []string{}
	}
	return out
}

// GET /api/users?query=
func (s *Server) users(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("query"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query")
		return
	}

	users, err := s.jira.Users().FindUsers(r.Context(), query, &atlassian.FindUsersOptions{MaxResults: maxUsers})
	if err != nil {
		s.upstreamError(w, "failed to search users", err)
		return
	}

	out := make([]userSummary, 0, len(users))
	for _, u := range users {
		out = append(out, userSummary{AccountID: u.AccountID, DisplayName: u.DisplayName, Email: u.Email})
	}
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	writeJSON(w, http.StatusOK, out)
}

// POST /api/oauth/token
func (s *Server) oauthToken(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Code        string `json:"code"`
		RedirectURI string `json:"redirect_uri"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(in.Code) == "" {
		writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}
	if s.cfg.ClientID == "" || s.cfg.ClientSecret == "" {
		s.log.Error().Msg("oauth exchange requested but client credentials are not configured")
		writeError(w, http.StatusServiceUnavailable, "oauth exchange not configured")
		return
	}

	payload, err := json.Marshal(map[string]string{
		"grant_type":    "authorization_code",
		"client_id":     s.cfg.ClientID,
		"client_secret": s.cfg.ClientSecret,
		"code":          in.Code,
		"redirect_uri":  in.RedirectURI,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodPost, s.cfg.TokenURL, bytes.NewReader(payload))
	if err != nil {
		s.log.Error().Err(err).Msg("build token request")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	req.Header.Set("Content-Type", "application/json")

	var token json.RawMessage
	if err := s.http.DoJSON(req, &token); err != nil {
		s.upstreamError(w, "failed to exchange token", err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(token)
}

// GET /api/news/{date}
func (s *Server) getNews(w http.ResponseWriter, r *http.Request) {
	day, ok := newsDay(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	payload, err := s.store.GetNews(r.Context(), day)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("date", day).Msg("read news")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}

// PUT /api/news/{date}
func (s *Server) putNews(w http.ResponseWriter, r *http.Request) {
	day, ok := newsDay(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "body too large")
		return
	}
	if !isJSONArray(body) {
		writeError(w, http.StatusBadRequest, "body must be a JSON array")
		return
	}

	if err := s.store.PutNews(r.Context(), day, bytes.TrimSpace(body)); err != nil {
		s.log.Error().Err(err).Str("date", day).Msg("write news")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored", "date": day})
}

func newsDay(r *http.Request) (string, bool) {
	day := chi.URLParam(r, "date")
	if _, err := time.Parse(newsDayLayout, day); err != nil {
		return "", false
	}
	return day, true
}

func isJSONArray(body []byte) bool {
	var items []json.RawMessage
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return false
	}
	return json.Unmarshal(trimmed, &items) == nil
}

// upstreamError relays a remote failure with its status and body; transport
// failures become 502.
func (s *Server) upstreamError(w http.ResponseWriter, msg string, err error) {
	var apiErr *transport.APIError
	if errors.As(err, &apiErr) {
		s.log.Warn().Int("status", apiErr.StatusCode).Str("request_id", apiErr.RequestID).Msg(msg)
		writeJSON(w, apiErr.StatusCode, map[string]any{
			"error":   msg,
			"status":  apiErr.StatusCode,
			"details": apiErr.Body,
		})
		return
	}

	status := http.StatusBadGateway
	if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
	}
	s.log.Error().Err(err).Msg(msg)
	writeJSON(w, status, map[string]any{
		"error":  msg,
		"status": status,
	})
}
