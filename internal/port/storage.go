package port

import (
	"context"
	"io"
)

// PutInput encapsulates the parameters needed to write one object.
type PutInput struct {
	Key         string
	Body        io.Reader
	ContentType string
	Size        int64
	Metadata    map[string]string
}

// PutOutput contains the result of a successful write.
type PutOutput struct {
	Location string
	ETag     string
}

// ObjectStorage abstracts the S3-compatible blob store. Keys are always
// generated by the caller.
type ObjectStorage interface {
	Put(ctx context.Context, input PutInput) (*PutOutput, error)
}
