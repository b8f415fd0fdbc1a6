// Package minio stores blobs as objects in an S3 compatible bucket so
// that several coordinators can share one cache.
package minio

import (
	"bytes"
	"context"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/the-maldridge/tess/pkg/storage"
)

// requestTimeout bounds each object operation.
const requestTimeout = 5 * time.Minute

type minioStore struct {
	l      hclog.Logger
	c      *minio.Client
	bucket string
}

func init() {
	storage.RegisterCallback(func() {
		storage.RegisterFactory("minio", open)
	})
}

// open reads TESS_MINIO_ENDPOINT, TESS_MINIO_BUCKET,
// TESS_MINIO_ACCESS_KEY, TESS_MINIO_SECRET_KEY and TESS_MINIO_SECURE.
func open(l hclog.Logger) (storage.Storage, error) {
	l = l.Named("minio")
	endpoint := os.Getenv("TESS_MINIO_ENDPOINT")
	bucket := os.Getenv("TESS_MINIO_BUCKET")
	if endpoint == "" || bucket == "" {
		l.Error("TESS_MINIO_ENDPOINT and TESS_MINIO_BUCKET must be set")
		return nil, storage.ErrUnsetVariable
	}
	secure := true
	if s := os.Getenv("TESS_MINIO_SECURE"); s != "" {
		b, err := strconv.ParseBool(s)
		if err != nil {
			return nil, err
		}
		secure = b
	}

	c, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(os.Getenv("TESS_MINIO_ACCESS_KEY"), os.Getenv("TESS_MINIO_SECRET_KEY"), ""),
		Secure: secure,
	})
	if err != nil {
		return nil, err
	}
	return New(l, c, bucket)
}

// New wraps an existing client, creating the bucket if needed.
func New(l hclog.Logger, c *minio.Client, bucket string) (storage.Storage, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	exists, err := c.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		l.Info("Creating bucket", "bucket", bucket)
		if err := c.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}
	return &minioStore{l: l, c: c, bucket: bucket}, nil
}

func (m *minioStore) Get(k []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	obj, err := m.c.GetObject(ctx, m.bucket, string(k), minio.GetObjectOptions{})
	if err != nil {
		return nil, notFoundIsNil(err)
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, notFoundIsNil(err)
	}
	return data, nil
}

func notFoundIsNil(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return nil
	}
	return err
}

func (m *minioStore) Put(k, v []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	_, err := m.c.PutObject(ctx, m.bucket, string(k), bytes.NewReader(v), int64(len(v)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		m.l.Warn("Upload failed", "key", string(k), "error", err)
	}
	return err
}

func (m *minioStore) Del(k []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	return m.c.RemoveObject(ctx, m.bucket, string(k), minio.RemoveObjectOptions{})
}

func (m *minioStore) List(prefix []byte) ([][]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	var out [][]byte
	for obj := range m.c.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: string(prefix), Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		out = append(out, []byte(obj.Key))
	}
	return out, nil
}

func (m *minioStore) Close() error { return nil }
