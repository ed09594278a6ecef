package atlassian

import (
	"regexp"
	"strings"
)

var (
	projectKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
	jqlEscaper        = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`, "\r", `\r`, "\t", `\t`)
)

// ValidProjectKey reports whether key is a project key or numeric project ID
// that is safe to place in JQL.
func ValidProjectKey(key string) bool {
	return projectKeyPattern.MatchString(key)
}

// QuoteJQL returns s as a double quoted JQL string literal.
func QuoteJQL(s string) string {
	return `"` + jqlEscaper.Replace(s) + `"`
}
