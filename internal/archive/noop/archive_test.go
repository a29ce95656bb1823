package noop

import (
	"context"
	"testing"
)

func TestPutObjectReportsNoURI(t *testing.T) {
	t.Parallel()

	uri, err := New().PutObject(context.Background(), "captures/a/b.html", "text/html", []byte("<html></html>"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if uri != "" {
		t.Fatalf("expected empty URI, got %q", uri)
	}
}
