// Package progress keeps the per package build record that the
// terminal renderer reads from.
package progress

import (
	"fmt"
	"io"
	"sync"
)

// Status is the state of one package in a run.
type Status int

// Package states.
const (
	StatusPending Status = iota
	StatusBuilding
	StatusSaving
	StatusSucceeded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusBuilding:
		return "building"
	case StatusSaving:
		return "saving artifacts"
	case StatusSucceeded:
		return "built successfully"
	case StatusFailed:
		return "build failed"
	default:
		return "unknown"
	}
}

// A Line is one line of toolchain output.
type Line struct {
	Text    string
	IsError bool
}

// Record is everything known about one package.
type Record struct {
	Package string
	Status  Status
	Attempt int
	Message string
	Lines   []Line
}

// A Sink renders progress as it happens.
type Sink interface {
	Line(pkg string, l Line)
	Status(pkg string, s Status, msg string)
}

// Tracker owns at most one record per package.  Today a single
// session writes at a time, the lock is there so that several
// sessions may share a tracker.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*Record
	sink    Sink
}

// New returns a tracker that forwards to sink, which may be nil.
func New(sink Sink) *Tracker {
	return &Tracker{
		records: make(map[string]*Record),
		sink:    sink,
	}
}

func (t *Tracker) record(pkg string) *Record {
	r, ok := t.records[pkg]
	if !ok {
		r = &Record{Package: pkg}
		t.records[pkg] = r
	}
	return r
}

// Start marks an attempt at building pkg.
func (t *Tracker) Start(pkg string, attempt int) {
	t.setStatus(pkg, StatusBuilding, fmt.Sprintf("attempt %d", attempt), attempt)
}

// Saving marks pkg as writing its artifacts.
func (t *Tracker) Saving(pkg string) {
	t.setStatus(pkg, StatusSaving, "", 0)
}

// Finish marks pkg as done.
func (t *Tracker) Finish(pkg string, ok bool, msg string) {
	s := StatusSucceeded
	if !ok {
		s = StatusFailed
	}
	t.setStatus(pkg, s, msg, 0)
}

func (t *Tracker) setStatus(pkg string, s Status, msg string, attempt int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.record(pkg)
	r.Status = s
	r.Message = msg
	if attempt > 0 {
		r.Attempt = attempt
	}
	if t.sink != nil {
		t.sink.Status(pkg, s, msg)
	}
}

// Output appends a line of build output for pkg.
func (t *Tracker) Output(pkg, text string, isError bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	l := Line{Text: text, IsError: isError}
	r := t.record(pkg)
	r.Lines = append(r.Lines, l)
	if t.sink != nil {
		t.sink.Line(pkg, l)
	}
}

// Get returns a copy of the record for pkg.
func (t *Tracker) Get(pkg string) (Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.records[pkg]
	if !ok {
		return Record{}, false
	}
	out := *r
	out.Lines = append([]Line(nil), r.Lines...)
	return out, true
}

// Console is a Sink that writes plain lines, marking error output.
// Colour is optional since output may not be a terminal.
type Console struct {
	Out   io.Writer
	Err   io.Writer
	Color bool
}

const (
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
	ansiReset = "\x1b[0m"
)

// Line implements Sink.
func (c *Console) Line(pkg string, l Line) {
	if l.IsError {
		fmt.Fprintln(c.Err, c.paint(ansiRed, "! "+l.Text))
		return
	}
	fmt.Fprintln(c.Out, c.paint(ansiGreen, "  "+l.Text))
}

// Status implements Sink.
func (c *Console) Status(pkg string, s Status, msg string) {
	line := pkg + " " + s.String()
	if msg != "" {
		line += " (" + msg + ")"
	}
	switch s {
	case StatusFailed:
		fmt.Fprintln(c.Err, c.paint(ansiRed, line))
	case StatusSucceeded:
		fmt.Fprintln(c.Out, c.paint(ansiGreen, line))
	default:
		fmt.Fprintln(c.Out, line)
	}
}

func (c *Console) paint(code, s string) string {
	if !c.Color {
		return s
	}
	return code + s + ansiReset
}
