// Package ignore decides which workspace paths are left out of a
// source archive.
package ignore

import (
	"bufio"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// FileName is the workspace level ignore file.
const FileName = ".tessignore"

// Defaults are always excluded: the version control directory, the
// build output directory, and the dependency lock file.  The archiver
// force-includes the lock file again.
var Defaults = []string{".git", "target", "Cargo.lock"}

type pattern struct {
	glob string
	re   *regexp.Regexp
}

// An Engine holds a set of compiled exclusion patterns.  Any match
// excludes; there is no negation.
type Engine struct {
	patterns []pattern
}

// New compiles the given patterns on top of nothing.  Use Load to
// get the defaults and the workspace ignore file as well.
func New(globs ...string) *Engine {
	e := &Engine{}
	e.Add(globs...)
	return e
}

// Load builds an engine for a workspace root.  Precedence is
// defaults, then the workspace ignore file if present, then the
// explicit overrides.  Since every pattern only ever excludes, the
// order only matters for Patterns.
func Load(root string, overrides ...string) (*Engine, error) {
	e := New(Defaults...)

	f, err := os.Open(filepath.Join(root, FileName))
	switch {
	case err == nil:
		defer f.Close()
		globs, err := Parse(f)
		if err != nil {
			return nil, err
		}
		e.Add(globs...)
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	e.Add(overrides...)
	return e, nil
}

// Parse reads one pattern per line, skipping blank lines and
// comments.
func Parse(r io.Reader) ([]string, error) {
	var out []string
	s := bufio.NewScanner(r)
	for s.Scan() {
		l := strings.TrimSpace(s.Text())
		if l == "" || strings.HasPrefix(l, "#") {
			continue
		}
		out = append(out, l)
	}
	return out, s.Err()
}

// Add compiles and appends patterns.  Empty patterns are ignored.
func (e *Engine) Add(globs ...string) {
	for _, g := range globs {
		g = strings.Trim(filepath.ToSlash(strings.TrimSpace(g)), "/")
		if g == "" {
			continue
		}
		e.patterns = append(e.patterns, pattern{glob: g, re: compile(g)})
	}
}

// Patterns returns the source globs in precedence order.
func (e *Engine) Patterns() []string {
	out := make([]string, len(e.patterns))
	for i, p := range e.patterns {
		out[i] = p.glob
	}
	return out
}

// IsExcluded reports whether the path, relative to the workspace
// root, matches any pattern.
func (e *Engine) IsExcluded(rel string) bool {
	rel = path.Clean(filepath.ToSlash(rel))
	rel = strings.TrimPrefix(rel, "./")
	if rel == "." || rel == "" {
		return false
	}
	for _, p := range e.patterns {
		if p.re.MatchString(rel) {
			return true
		}
	}
	return false
}

// compile translates a glob into a regular expression anchored at
// segment boundaries.  A literal pattern matches wherever it appears
// as a whole run of segments, which also covers everything below it.
// A wildcard pattern has to match through to the end of the path.
func compile(glob string) *regexp.Regexp {
	if !strings.ContainsAny(glob, "*?") {
		return regexp.MustCompile(`(^|/)` + regexp.QuoteMeta(glob) + `(/|$)`)
	}

	var b strings.Builder
	b.WriteString(`(^|/)`)
	lit := 0
	for i := 0; i < len(glob); i++ {
		if glob[i] != '*' && glob[i] != '?' {
			continue
		}
		b.WriteString(regexp.QuoteMeta(glob[lit:i]))
		switch {
		case strings.HasPrefix(glob[i:], "**/"):
			b.WriteString(`([^/]+/)*`)
			i += 2
		case strings.HasPrefix(glob[i:], "**"):
			b.WriteString(`.*`)
			i++
		case glob[i] == '*':
			b.WriteString(`[^/]*`)
		default:
			b.WriteString(`[^/]`)
		}
		lit = i + 1
	}
	b.WriteString(regexp.QuoteMeta(glob[lit:]))
	b.WriteString(`$`)
	return regexp.MustCompile(b.String())
}
