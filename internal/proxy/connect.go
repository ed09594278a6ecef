package proxy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	errInvalidToken = errors.New("connect: invalid token")
	errForeignSite  = errors.New("connect: site is not the configured jira site")
)

type lifecyclePayload struct {
	ClientKey    string `json:"clientKey"`
	BaseURL      string `json:"baseUrl"`
	SharedSecret string `json:"sharedSecret"`
}

// POST /connect/installed
//
// Only the configured Jira site may install. A client key that is already
// registered keeps its secret unless the request is signed with it.
func (s *Server) installed(w http.ResponseWriter, r *http.Request) {
	var in lifecyclePayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(in.ClientKey) == "" || strings.TrimSpace(in.BaseURL) == "" || in.SharedSecret == "" {
		writeError(w, http.StatusBadRequest, "clientKey, baseUrl and sharedSecret are required")
		return
	}
	if !sameSite(in.BaseURL, s.cfg.JiraBaseURL) {
		s.log.Warn().Str("client_key", in.ClientKey).Str("base_url", in.BaseURL).Msg("rejected install from a foreign site")
		writeError(w, http.StatusForbidden, "site not allowed")
		return
	}

	_, err := s.store.GetInstallation(r.Context(), in.ClientKey)
	switch {
	case err == nil:
		inst, verr := s.verifyConnectJWT(r.Context(), connectToken(r))
		if verr != nil || inst.ClientKey != strings.TrimSpace(in.ClientKey) {
			s.log.Warn().Err(verr).Str("client_key", in.ClientKey).Msg("rejected unsigned reinstall")
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
	case errors.Is(err, ErrNotFound):
	default:
		s.log.Error().Err(err).Str("client_key", in.ClientKey).Msg("load installation")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	if err := s.store.SaveInstallation(r.Context(), Installation{
		ClientKey:    in.ClientKey,
		BaseURL:      in.BaseURL,
		SharedSecret: in.SharedSecret,
	}); err != nil {
		s.log.Error().Err(err).Str("client_key", in.ClientKey).Msg("save installation")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.log.Info().Str("client_key", in.ClientKey).Str("base_url", in.BaseURL).Msg("connect app installed")
	writeJSON(w, http.StatusOK, map[string]string{"status": "installed"})
}

// POST /connect/uninstalled
func (s *Server) uninstalled(w http.ResponseWriter, r *http.Request) {
	var in lifecyclePayload
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	inst, err := s.verifyConnectJWT(r.Context(), connectToken(r))
	if err != nil {
		s.log.Warn().Err(err).Msg("rejected connect token")
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if key := strings.TrimSpace(in.ClientKey); key != "" && key != inst.ClientKey {
		s.log.Warn().Str("client_key", key).Str("issuer", inst.ClientKey).Msg("uninstall for another client key")
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	if err := s.store.DeleteInstallation(r.Context(), inst.ClientKey); err != nil {
		s.log.Error().Err(err).Str("client_key", inst.ClientKey).Msg("delete installation")
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	s.log.Info().Str("client_key", inst.ClientKey).Msg("connect app uninstalled")
	writeJSON(w, http.StatusOK, map[string]string{"status": "uninstalled"})
}

// GET /connect/tickets?jwt=
//
// Searches run with the server-held client, which only ever talks to the
// configured site.
func (s *Server) connectTickets(w http.ResponseWriter, r *http.Request) {
	token := connectToken(r)
	if token == "" {
		writeError(w, http.StatusUnauthorized, "missing token")
		return
	}

	inst, err := s.verifyConnectJWT(r.Context(), token)
	if err != nil {
		s.log.Warn().Err(err).Msg("rejected connect token")
		writeError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	if !sameSite(inst.BaseURL, s.cfg.JiraBaseURL) {
		s.log.Warn().Err(errForeignSite).Str("client_key", inst.ClientKey).Str("base_url", inst.BaseURL).Msg("refusing tenant search")
		writeError(w, http.StatusForbidden, "site not allowed")
		return
	}
	s.searchTickets(w, r, s.jira)
}

// connectToken reads the token from "Authorization: JWT <token>" or ?jwt=.
func connectToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "JWT ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "JWT "))
	}
	return r.URL.Query().Get("jwt")
}

// sameSite reports whether both URLs share scheme and host. An empty or
// unparsable URL never matches.
func sameSite(a, b string) bool {
	ua, err := url.Parse(strings.TrimSpace(a))
	if err != nil || ua.Host == "" {
		return false
	}
	ub, err := url.Parse(strings.TrimSpace(b))
	if err != nil || ub.Host == "" {
		return false
	}
	return strings.EqualFold(ua.Scheme, ub.Scheme) && strings.EqualFold(ua.Host, ub.Host)
}

// verifyConnectJWT checks an HS256 token whose issuer is a registered
// client key and whose signature uses that installation's shared secret.
func (s *Server) verifyConnectJWT(ctx context.Context, raw string) (*Installation, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: missing token", errInvalidToken)
	}

	var inst *Installation
	claims := &jwt.RegisteredClaims{}

	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if claims.Issuer == "" {
			return nil, fmt.Errorf("%w: missing issuer", errInvalidToken)
		}
		found, err := s.store.GetInstallation(ctx, claims.Issuer)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown issuer %q: %w", errInvalidToken, claims.Issuer, err)
		}
		inst = found
		return []byte(found.SharedSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, err
	}
	return inst, nil
}
