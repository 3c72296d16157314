// Package safety decides whether a SQL statement is safe to run against the
// read-only car database. Validation is pure pattern matching over the
// statement text: no parsing, no I/O, no shared state.
package safety

import (
	"fmt"
	"regexp"
	"strings"
)

// Verdict is the result of validating one statement.
type Verdict struct {
	OK     bool
	Reason string
}

// deniedKeywords are the mutating operations that are never allowed,
// matched as whole words so identifiers like "updated_at" pass.
var deniedKeywords = []string{
	"DELETE", "DROP", "TRUNCATE", "ALTER",
	"UPDATE", "INSERT", "CREATE", "REPLACE",
}

var keywordPatterns = compileKeywordPatterns()

func compileKeywordPatterns() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(deniedKeywords))
	for _, kw := range deniedKeywords {
		m[kw] = regexp.MustCompile(`\b` + kw + `\b`)
	}
	return m
}

// suspiciousPatterns catch injection attempts that survive the keyword scan:
// a second statement after a separator, and SQL comment markers.
var suspiciousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s);.*?(DELETE|DROP|UPDATE|INSERT)`),
	regexp.MustCompile(`--`),
	regexp.MustCompile(`(?s)/\*.*?\*/`),
}

// Validate checks a candidate SQL statement against the read-only policy.
// Rules apply in order and the first failure wins:
//
//  1. empty or whitespace-only text is rejected;
//  2. any denied keyword as a whole word is rejected, naming the keyword;
//  3. statements not starting with SELECT are rejected;
//  4. multi-statement separators and comment markers are rejected as
//     possible injection.
//
// Validate is deterministic and safe for concurrent use.
func Validate(query string) Verdict {
	if strings.TrimSpace(query) == "" {
		return Verdict{OK: false, Reason: "empty query"}
	}

	normalized := strings.ToUpper(strings.TrimSpace(query))

	for _, kw := range deniedKeywords {
		if keywordPatterns[kw].MatchString(normalized) {
			return Verdict{
				OK:     false,
				Reason: fmt.Sprintf("query contains blocked operation %s; only SELECT queries are allowed", kw),
			}
		}
	}

	if !strings.HasPrefix(normalized, "SELECT") {
		return Verdict{OK: false, Reason: "only SELECT queries are allowed"}
	}

	for _, p := range suspiciousPatterns {
		if p.MatchString(normalized) {
			return Verdict{
				OK:     false,
				Reason: "query contains suspicious patterns (multiple statements or comments); possible injection",
			}
		}
	}

	return Verdict{OK: true}
}
