package scheduler

import (
	"bytes"

	"github.com/the-maldridge/tess/pkg/progress"
)

// lineWriter splits command output into lines for the tracker.
type lineWriter struct {
	pkg   string
	t     *progress.Tracker
	isErr bool
	buf   []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.t.Output(w.pkg, string(bytes.TrimRight(w.buf[:i], "\r")), w.isErr)
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// Flush emits a trailing partial line.
func (w *lineWriter) Flush() {
	if len(w.buf) > 0 {
		w.t.Output(w.pkg, string(w.buf), w.isErr)
		w.buf = nil
	}
}
