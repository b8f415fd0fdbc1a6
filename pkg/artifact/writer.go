// Package artifact materializes compiled outputs on disk so that a
// reader never observes a partially written file.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"

	"github.com/hashicorp/go-hclog"
)

// Writer writes artifacts atomically.  On hosts where renaming over
// an existing file is not possible the previous file is moved aside
// first and restored if the final rename fails.
type Writer struct {
	l hclog.Logger

	replaceInPlace bool
	rename         func(oldpath, newpath string) error
	mode           os.FileMode
}

// Option configures a Writer.
type Option func(*Writer)

// WithReplaceInPlace overrides the platform default for whether
// rename can replace an existing file.
func WithReplaceInPlace(b bool) Option {
	return func(w *Writer) {
		w.replaceInPlace = b
	}
}

// WithRename swaps the rename primitive.
func WithRename(f func(oldpath, newpath string) error) Option {
	return func(w *Writer) {
		w.rename = f
	}
}

// WithMode sets the permissions of written artifacts.
func WithMode(m os.FileMode) Option {
	return func(w *Writer) {
		w.mode = m
	}
}

// NewWriter returns a Writer configured for the running platform.
func NewWriter(l hclog.Logger, opts ...Option) *Writer {
	w := &Writer{
		l:              l.Named("artifact"),
		replaceInPlace: runtime.GOOS != "windows",
		rename:         os.Rename,
		mode:           0755,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Write places data at path.  The bytes are first written to a
// temporary file in the same directory and then renamed into place.
func (w *Writer) Write(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := w.writeTemp(dir, filepath.Base(path), data)
	if err != nil {
		return err
	}

	if w.replaceInPlace {
		if err := w.rename(tmp, path); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("moving artifact into place: %w", err)
		}
		w.l.Trace("Wrote artifact", "path", path, "bytes", len(data))
		return nil
	}
	return w.replaceAside(tmp, path)
}

func (w *Writer) writeTemp(dir, base string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return "", err
	}
	name := f.Name()
	fail := func(err error) (string, error) {
		f.Close()
		os.Remove(name)
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		return fail(err)
	}
	if err := f.Sync(); err != nil {
		return fail(err)
	}
	if err := f.Chmod(w.mode); err != nil {
		return fail(err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", err
	}
	return name, nil
}

func (w *Writer) replaceAside(tmp, path string) error {
	aside := path + "." + strconv.Itoa(os.Getpid()) + ".old"

	_, statErr := os.Lstat(path)
	existed := statErr == nil
	if existed {
		if err := w.rename(path, aside); err != nil {
			os.Remove(tmp)
			return fmt.Errorf("could not replace existing file, it may be in use: %w", err)
		}
	}

	if err := w.rename(tmp, path); err != nil {
		if existed {
			if rerr := w.rename(aside, path); rerr != nil {
				w.l.Error("Unable to restore previous artifact", "path", path, "aside", aside, "error", rerr)
			}
		}
		os.Remove(tmp)
		return fmt.Errorf("moving artifact into place: %w", err)
	}

	if existed {
		if err := os.Remove(aside); err != nil {
			w.l.Warn("Unable to remove previous artifact", "path", aside, "error", err)
		}
	}
	w.l.Trace("Wrote artifact", "path", path, "replaced", existed)
	return nil
}
