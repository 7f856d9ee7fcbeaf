package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"
	"gocloud.dev/gcerrors"

	"github.com/oloapinivad/CDS-retriever/internal/dataset"
)

// Ext is the extension of archived products.
const Ext = ".nc"

// Store wraps the bucket holding the archive tree.
type Store struct {
	bucket *blob.Bucket
	url    string
}

// Open opens the archive tree at location. A location without a URL scheme
// is a local directory, created if needed.
func Open(ctx context.Context, location string) (*Store, error) {
	if location == "" {
		return nil, errors.New("store: empty location")
	}
	url := location
	if !strings.Contains(location, "://") {
		abs, err := filepath.Abs(location)
		if err != nil {
			return nil, fmt.Errorf("store: resolve %s: %w", location, err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", abs, err)
		}
		url = "file://" + filepath.ToSlash(abs)
	}

	bucket, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", location, err)
	}
	return &Store{bucket: bucket, url: location}, nil
}

// New wraps an already opened bucket.
func New(bucket *blob.Bucket) *Store {
	return &Store{bucket: bucket}
}

// Close releases the bucket.
func (s *Store) Close() error {
	return s.bucket.Close()
}

// String returns the location the store was opened at.
func (s *Store) String() string {
	return s.url
}

// Dir is the prefix holding every product of desc.
func Dir(desc dataset.Descriptor) string {
	return desc.Variable + "/" + desc.Frequency + "/"
}

// Key is the object key of desc for period p.
func Key(desc dataset.Descriptor, p dataset.Period) string {
	return Dir(desc) + dataset.CanonicalFilename(desc, p) + Ext
}

// List returns the base names of the objects directly under prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.bucket.List(&blob.ListOptions{Prefix: prefix, Delimiter: "/"})
	var names []string
	for {
		obj, err := it.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("store: list %s: %w", prefix, err)
		}
		if obj.IsDir {
			continue
		}
		names = append(names, path.Base(obj.Key))
	}
	return names, nil
}

// Exists reports whether key is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := s.bucket.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("store: stat %s: %w", key, err)
	}
	return ok, nil
}

// ModTime returns when key was last written. ok is false when key is absent.
func (s *Store) ModTime(ctx context.Context, key string) (t time.Time, ok bool, err error) {
	attrs, err := s.bucket.Attributes(ctx, key)
	if err != nil {
		if isNotExist(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("store: stat %s: %w", key, err)
	}
	return attrs.ModTime, true, nil
}

// Fetch copies key to the local file dst. dst appears only once the copy
// is complete.
func (s *Store) Fetch(ctx context.Context, key, dst string) error {
	r, err := s.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("store: open %s: %w", key, err)
	}
	defer r.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("store: create %s: %w", filepath.Dir(dst), err)
	}
	tmp := dst + ".part"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("store: create %s: %w", tmp, err)
	}
	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: fetch %s: %w", key, err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("store: fetch %s: %w", key, err)
	}
	return nil
}

// Publish uploads the local file src to key, replacing any existing object.
// A failed upload leaves the previous object untouched.
func (s *Store) Publish(ctx context.Context, src, key string) error {
	f, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("store: open %s: %w", src, err)
	}
	defer f.Close()

	// Cancelling the writer's context before Close aborts the upload.
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()

	w, err := s.bucket.NewWriter(wctx, key, &blob.WriterOptions{ContentType: "application/x-netcdf"})
	if err != nil {
		return fmt.Errorf("store: create %s: %w", key, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		cancel()
		w.Close()
		return fmt.Errorf("store: upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("store: commit %s: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing object is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.bucket.Delete(ctx, key); err != nil && !isNotExist(err) {
		return fmt.Errorf("store: delete %s: %w", key, err)
	}
	return nil
}

// isNotExist returns true if the error indicates the object doesn't exist.
func isNotExist(err error) bool {
	return gcerrors.Code(err) == gcerrors.NotFound
}

// IsNotExist reports whether err means a missing object.
func IsNotExist(err error) bool {
	return isNotExist(err)
}
