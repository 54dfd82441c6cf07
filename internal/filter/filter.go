// Package filter compiles bot user-agent signatures into a single
// case-insensitive matcher.
//
// Signatures are configured one per line, e.g.
//
//	^alexa
//	^blitz\.io
//	yandex
//
// and become the expression (?i)^alexa|^blitz\.io|yandex. Fragments are
// passed to the regex engine verbatim, so they may carry their own anchors
// and metacharacters. Matching uses RE2 semantics: lookarounds and
// backreferences are rejected at compile time.
package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/wasilibs/go-re2"
)

var (
	// ErrEmptyFilter means no usable fragment was configured. The returned
	// Filter is still valid and never matches.
	ErrEmptyFilter = errors.New("bot filter has no usable fragments")

	// ErrInvalidPattern means the joined fragments do not compile.
	ErrInvalidPattern = errors.New("bot filter pattern is invalid")
)

// Filter classifies user agents. The zero value never matches.
type Filter struct {
	re        *re2.Regexp
	fragments []string
}

// Compile joins the non-blank, trimmed lines into one alternation.
// On ErrEmptyFilter a never-matching Filter is returned together with the
// error; on ErrInvalidPattern the Filter is nil.
func Compile(lines []string) (*Filter, error) {
	fragments := Fragments(lines)
	if len(fragments) == 0 {
		return &Filter{}, ErrEmptyFilter
	}

	re, err := re2.Compile("(?i)" + strings.Join(fragments, "|"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPattern, err)
	}

	return &Filter{re: re, fragments: fragments}, nil
}

// MustCompile is like Compile but panics on ErrInvalidPattern.
func MustCompile(lines []string) *Filter {
	f, err := Compile(lines)
	if err != nil && !errors.Is(err, ErrEmptyFilter) {
		panic(err)
	}
	return f
}

// Fragments drops blank lines and trims the rest. Lines containing
// embedded newlines are split first.
func Fragments(lines []string) []string {
	var out []string
	for _, line := range lines {
		for _, part := range strings.Split(line, "\n") {
			if one := strings.TrimSpace(part); one != "" {
				out = append(out, one)
			}
		}
	}
	return out
}

// IsBot reports whether userAgent matches any configured fragment.
func (f *Filter) IsBot(userAgent string) bool {
	if f == nil || f.re == nil {
		return false
	}
	return f.re.MatchString(userAgent)
}

// Current returns f itself, so a static Filter can be used wherever a
// reloadable source is accepted.
func (f *Filter) Current() *Filter {
	return f
}

// Len returns the number of compiled fragments.
func (f *Filter) Len() int {
	if f == nil {
		return 0
	}
	return len(f.fragments)
}

// String returns the compiled expression, or "" for an empty filter.
func (f *Filter) String() string {
	if f == nil || f.re == nil {
		return ""
	}
	return f.re.String()
}
