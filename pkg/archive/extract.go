package archive

import (
	"archive/tar"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ErrUnsafePath is returned for archive entries that would be written
// outside of the destination directory.
var ErrUnsafePath = errors.New("archive entry escapes destination")

// Extract unpacks a zstd compressed tarball into dir and returns the
// slash separated relative paths of the files it wrote.
func Extract(data []byte, dir string) ([]string, error) {
	d, err := zstd.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer d.Close()
	return Untar(d, dir)
}

// Untar unpacks an uncompressed tar stream into dir.
func Untar(r io.Reader, dir string) ([]string, error) {
	var files []string
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		switch err {
		case nil:
		case io.EOF:
			return files, nil
		default:
			return files, err
		}

		name := filepath.Clean(filepath.FromSlash(hdr.Name))
		if name == "." {
			continue
		}
		if filepath.IsAbs(name) || name == ".." || strings.HasPrefix(name, ".."+string(filepath.Separator)) {
			return files, fmt.Errorf("%w: %s", ErrUnsafePath, hdr.Name)
		}
		dst := filepath.Join(dir, name)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(dst, 0755); err != nil {
				return files, err
			}
		case tar.TypeReg:
			if err := writeEntry(dst, tr, os.FileMode(hdr.Mode).Perm()); err != nil {
				return files, err
			}
			files = append(files, filepath.ToSlash(name))
		default:
			// Links and devices have no business in a source
			// tree or an artifact bundle.
		}
	}
}

func writeEntry(dst string, r io.Reader, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	if mode == 0 {
		mode = 0644
	}
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Compress wraps raw bytes, typically a plain tar stream captured
// from a remote shell, in zstd.
func Compress(raw []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(raw, nil), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
