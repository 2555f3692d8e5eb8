package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// Attachments stores bug image attachments on an ObjectStorage backend.
type Attachments struct {
	backend ObjectStorage
}

// NewAttachments constructs an attachment store over the provided backend.
func NewAttachments(backend ObjectStorage) *Attachments {
	return &Attachments{backend: backend}
}

// AttachmentKey builds the object key for a bug's attachment. Only the
// base name of the uploaded file is kept.
func AttachmentKey(bugID int, filename string) string {
	return fmt.Sprintf("bugs/%d/%s", bugID, path.Base(filename))
}

// EnsureBucket ensures the configured bucket exists.
func (a *Attachments) EnsureBucket(ctx context.Context) error {
	return a.backend.EnsureBucket(ctx)
}

// Put uploads an attachment under the given key.
func (a *Attachments) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return a.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
}

// Open opens a reader for a stored attachment.
func (a *Attachments) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return a.backend.Get(ctx, key)
}

// Remove deletes a stored attachment.
func (a *Attachments) Remove(ctx context.Context, key string) error {
	return a.backend.Delete(ctx, key)
}

// Bucket returns the configured bucket name.
func (a *Attachments) Bucket() string {
	return a.backend.Bucket()
}
