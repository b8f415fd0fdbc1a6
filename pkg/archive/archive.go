// Package archive turns a build unit into a compressed source tarball
// and unpacks such tarballs on the worker side.
package archive

import (
	"archive/tar"
	"bytes"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/klauspost/compress/zstd"

	"github.com/the-maldridge/tess/pkg/builderr"
	"github.com/the-maldridge/tess/pkg/ignore"
	"github.com/the-maldridge/tess/pkg/types"
)

// The marker that identifies a package or workspace root, and the
// lock file that travels with it.
const (
	ManifestFile = "Cargo.toml"
	LockFile     = "Cargo.lock"
)

// Archiver packages the sources of a build unit.
type Archiver struct {
	l         hclog.Logger
	overrides []string
	stageDir  string
}

// Option configures an Archiver.
type Option func(*Archiver)

// WithIgnore adds explicit exclusion patterns on top of the defaults
// and the workspace ignore file.
func WithIgnore(globs ...string) Option {
	return func(a *Archiver) {
		a.overrides = append(a.overrides, globs...)
	}
}

// WithStageDir sets the parent directory that staging directories are
// created in.  The system temp directory is used otherwise.
func WithStageDir(d string) Option {
	return func(a *Archiver) {
		a.stageDir = d
	}
}

// New returns an Archiver.
func New(l hclog.Logger, opts ...Option) *Archiver {
	a := &Archiver{l: l.Named("archive")}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Roots locates the package root (the nearest ancestor of a source
// file holding a manifest) and the workspace root (the outermost
// ancestor holding one, or the package root if there is none above
// it).
func Roots(unit types.BuildUnit) (string, string, error) {
	var pkgRoot string
	for _, src := range unit.SourceFiles {
		abs, err := filepath.Abs(src)
		if err != nil {
			continue
		}
		if dir, ok := nearestManifest(filepath.Dir(abs)); ok {
			pkgRoot = dir
			break
		}
	}
	if pkgRoot == "" {
		return "", "", builderr.New(builderr.KindArchive, unit.Name, "no directory containing "+ManifestFile+" above the sources")
	}

	wsRoot := pkgRoot
	for dir := filepath.Dir(pkgRoot); ; dir = filepath.Dir(dir) {
		if hasManifest(dir) {
			wsRoot = dir
		}
		if filepath.Dir(dir) == dir {
			break
		}
	}
	return pkgRoot, wsRoot, nil
}

func nearestManifest(dir string) (string, bool) {
	for {
		if hasManifest(dir) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func hasManifest(dir string) bool {
	fi, err := os.Stat(filepath.Join(dir, ManifestFile))
	return err == nil && fi.Mode().IsRegular()
}

type entry struct {
	rel string
	abs string
}

// Create produces the zstd compressed tarball for the unit.  Paths in
// the archive are relative to the workspace root.
func (a *Archiver) Create(unit types.BuildUnit) ([]byte, error) {
	pkgRoot, wsRoot, err := Roots(unit)
	if err != nil {
		return nil, err
	}
	a.l.Debug("Located roots", "package", unit.Name, "root", pkgRoot, "workspace", wsRoot)

	for _, src := range unit.SourceFiles {
		abs, _ := filepath.Abs(src)
		if _, err := os.Stat(abs); err != nil {
			return nil, builderr.Wrap(builderr.KindArchive, unit.Name, err, "declared source file is missing")
		}
		if _, err := relTo(wsRoot, abs); err != nil {
			return nil, builderr.Wrap(builderr.KindArchive, unit.Name, err, "source file outside of the workspace")
		}
	}

	engine, err := ignore.Load(wsRoot, a.overrides...)
	if err != nil {
		return nil, builderr.Wrap(builderr.KindArchive, unit.Name, err, "loading ignore patterns")
	}

	entries, err := a.collect(unit.Name, pkgRoot, wsRoot, engine)
	if err != nil {
		return nil, err
	}

	stage, err := os.MkdirTemp(a.stageDir, "tess-stage-")
	if err != nil {
		return nil, builderr.Wrap(builderr.KindArchive, unit.Name, err, "creating staging directory")
	}
	defer os.RemoveAll(stage)

	for _, e := range entries {
		if err := copyFile(e.abs, filepath.Join(stage, filepath.FromSlash(e.rel))); err != nil {
			return nil, builderr.Wrap(builderr.KindArchive, unit.Name, err, "staging "+e.rel)
		}
	}

	data, err := Pack(stage)
	if err != nil {
		return nil, builderr.Wrap(builderr.KindArchive, unit.Name, err, "writing archive")
	}
	a.l.Debug("Created archive", "package", unit.Name, "files", len(entries), "bytes", len(data))
	return data, nil
}

// collect returns the deduplicated file set.  The manifests and lock
// files go first so that they are present even when a pattern would
// exclude them; after that the first occurrence of a destination
// path wins.
func (a *Archiver) collect(name, pkgRoot, wsRoot string, engine *ignore.Engine) ([]entry, error) {
	seen := make(map[string]struct{})
	var out []entry
	add := func(abs string) {
		rel, err := relTo(wsRoot, abs)
		if err != nil {
			return
		}
		if _, dup := seen[rel]; dup {
			return
		}
		seen[rel] = struct{}{}
		out = append(out, entry{rel: rel, abs: abs})
	}

	for _, root := range []string{wsRoot, pkgRoot} {
		for _, f := range []string{ManifestFile, LockFile} {
			p := filepath.Join(root, f)
			if fi, err := os.Stat(p); err == nil && fi.Mode().IsRegular() {
				a.l.Trace("Force including", "package", name, "path", p)
				add(p)
			}
		}
	}

	err := filepath.WalkDir(wsRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, rerr := relTo(wsRoot, p)
		if rerr != nil {
			return rerr
		}
		if d.IsDir() {
			if rel != "." && engine.IsExcluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || engine.IsExcluded(rel) {
			return nil
		}
		add(p)
		return nil
	})
	if err != nil {
		return nil, builderr.Wrap(builderr.KindArchive, name, err, "walking workspace")
	}
	return out, nil
}

func relTo(root, p string) (string, error) {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &os.PathError{Op: "rel", Path: p, Err: os.ErrInvalid}
	}
	return filepath.ToSlash(rel), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, fi.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Pack writes every regular file below dir into a zstd compressed
// tarball, in lexical order.
func Pack(dir string) ([]byte, error) {
	var files []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	buf := new(bytes.Buffer)
	zw, err := zstd.NewWriter(buf)
	if err != nil {
		return nil, err
	}
	tw := tar.NewWriter(zw)
	for _, p := range files {
		if err := addFile(tw, dir, p); err != nil {
			zw.Close()
			return nil, err
		}
	}
	if err := tw.Close(); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func addFile(tw *tar.Writer, dir, p string) error {
	fi, err := os.Stat(p)
	if err != nil {
		return err
	}
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(fi, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(rel)
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}
