// Package bc stores blobs in a bitcask database on local disk.
package bc

import (
	"errors"
	"os"
	"strconv"

	"git.mills.io/prologic/bitcask"
	"github.com/hashicorp/go-hclog"

	"github.com/the-maldridge/tess/pkg/storage"
)

// defaultMaxValue bounds a single cache bundle.
const defaultMaxValue = 512 << 20

type bcStore struct {
	l hclog.Logger
	s *bitcask.Bitcask
}

func init() {
	storage.RegisterCallback(func() {
		storage.RegisterFactory("bitcask", open)
	})
}

// open reads TESS_BITCASK_PATH and, optionally, the largest value in
// MiB from TESS_BITCASK_MAX_VALUE_MB.
func open(l hclog.Logger) (storage.Storage, error) {
	l = l.Named("bitcask")

	p := os.Getenv("TESS_BITCASK_PATH")
	if p == "" {
		l.Error("TESS_BITCASK_PATH must be set")
		return nil, storage.ErrUnsetVariable
	}
	maxValue := uint64(defaultMaxValue)
	if mb := os.Getenv("TESS_BITCASK_MAX_VALUE_MB"); mb != "" {
		n, err := strconv.ParseUint(mb, 10, 64)
		if err != nil {
			return nil, err
		}
		maxValue = n << 20
	}
	return Open(l, p, maxValue)
}

// Open opens or creates the database at path.
func Open(l hclog.Logger, path string, maxValue uint64) (storage.Storage, error) {
	b, err := bitcask.Open(path,
		bitcask.WithMaxKeySize(1024),
		bitcask.WithMaxValueSize(maxValue),
		bitcask.WithSync(true),
	)
	if err != nil {
		l.Error("Error opening bitcask", "path", path, "error", err)
		return nil, err
	}
	return &bcStore{l: l, s: b}, nil
}

func (b *bcStore) Get(k []byte) ([]byte, error) {
	v, err := b.s.Get(k)
	if errors.Is(err, bitcask.ErrKeyNotFound) {
		return nil, nil
	}
	return v, err
}

func (b *bcStore) Put(k, v []byte) error {
	return b.s.Put(k, v)
}

func (b *bcStore) Del(k []byte) error {
	return b.s.Delete(k)
}

func (b *bcStore) List(prefix []byte) ([][]byte, error) {
	var out [][]byte
	err := b.s.Scan(prefix, func(k []byte) error {
		out = append(out, append([]byte(nil), k...))
		return nil
	})
	return out, err
}

func (b *bcStore) Close() error {
	return b.s.Close()
}
