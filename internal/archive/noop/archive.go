// Package noop provides a disabled document archive for deployments
// without a bucket.
package noop

import "context"

// Archive satisfies the archive port without storing anything.
type Archive struct{}

// New returns a no-op Archive.
func New() *Archive {
	return &Archive{}
}

// PutObject discards the document and reports no archive URI.
func (Archive) PutObject(_ context.Context, _, _ string, _ []byte) (string, error) {
	return "", nil
}
