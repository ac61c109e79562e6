// Package envtmpl resolves environment-variable placeholders embedded in
// configuration strings. A placeholder has the form {{ env('VAR') }} or the
// bare form env('VAR'); either quote style is accepted, and an optional second
// argument supplies a default: env('VAR', 'fallback').
package envtmpl

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

const args = `\(\s*['"]([A-Za-z_][A-Za-z0-9_]*)['"]\s*(?:,\s*['"]([^'"]*)['"]\s*)?\)`

var placeholder = regexp.MustCompile(`\{\{\s*env` + args + `\s*\}\}|\benv` + args)

// LookupError reports a placeholder whose variable is unset and has no default.
type LookupError struct {
	Var string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("envtmpl: required environment variable %s not found", e.Var)
}

// LookupFunc returns the value of a variable and whether it is set.
type LookupFunc func(name string) (string, bool)

// Resolve replaces every placeholder in s with the value from the process
// environment.
func Resolve(s string) (string, error) {
	return ResolveWith(s, os.LookupEnv)
}

// ResolveWith replaces every placeholder in s using lookup. The first unset
// variable without a default aborts resolution with a *LookupError.
func ResolveWith(s string, lookup LookupFunc) (string, error) {
	if !strings.Contains(s, "env(") {
		return s, nil
	}

	var firstErr error

	out := placeholder.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		m := placeholder.FindStringSubmatch(match)
		name, def, hasDef := m[1], m[2], strings.Contains(match, ",")
		if name == "" {
			name, def = m[3], m[4]
		}

		if v, ok := lookup(name); ok {
			return v
		}
		if hasDef {
			return def
		}

		firstErr = &LookupError{Var: name}
		return match
	})

	if firstErr != nil {
		return "", firstErr
	}

	return out, nil
}

// Contains reports whether s holds at least one placeholder.
func Contains(s string) bool {
	return placeholder.MatchString(s)
}
