package transport

import (
	"encoding/base64"
	"io"
)

// ReadBodyLimited reads response body up to maxBytes.
func ReadBodyLimited(reader io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(reader)
	}

	limited := &io.LimitedReader{R: reader, N: maxBytes}
	return io.ReadAll(limited)
}

// BasicAuth returns an Authorization header value for an email/token pair.
func BasicAuth(email, token string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(email+":"+token))
}
