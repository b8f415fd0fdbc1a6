package scheduler

import (
	"net/url"
	"strings"
)

// Quote makes s a single shell word.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (s *Scheduler) buildScript(pkg string) string {
	parts := []string{s.buildCommand, "-p", Quote(pkg)}
	if s.layout.Release {
		parts = append(parts, "--release")
	}
	if s.layout.Target != "" {
		parts = append(parts, "--target", Quote(s.layout.Target))
	}
	return strings.Join(parts, " ")
}

// syncScript unpacks a dependency's bundle into the build area.  The
// bundle holds paths starting with the profile directory.
func (s *Scheduler) syncScript(dep string) string {
	if s.cacheURL != "" {
		return "curl -fsS " + Quote(s.cacheURL+"/"+url.PathEscape(dep)) + " | tar -xf -"
	}
	return "tar -xf -"
}

// publishScript packs the profile directory of the build area.
func (s *Scheduler) publishScript(pkg string, node *WorkerNode) string {
	pack := "tar -cf - " + Quote(s.layout.RelDir())
	if s.cacheURL == "" {
		return pack
	}
	q := url.Values{}
	q.Set("node", node.Name)
	q.Set("rev", s.ws.Revision)
	target := s.cacheURL + "/" + url.PathEscape(pkg) + "?" + q.Encode()
	return pack + " | curl -fsS -X PUT --data-binary @- " + Quote(target)
}
