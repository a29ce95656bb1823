package snapshot

import (
	"context"
	"time"
)

// CaptureStore persists capture metadata and the message transcript.
// ListCaptures returns summary rows (no transcript), newest first; a
// nil status lists every capture.
type CaptureStore interface {
	CreateCapture(ctx context.Context, capture Capture) error
	UpdateCaptureStatus(ctx context.Context, captureID string, status CaptureStatus, errText string) error
	SetCaptureResult(ctx context.Context, captureID string, result CaptureResult) error
	AppendMessage(ctx context.Context, captureID string, msg Message) error
	GetCapture(ctx context.Context, captureID string) (Capture, error)
	ListCaptures(ctx context.Context, status *CaptureStatus, limit, offset int) ([]Capture, error)
}

// ArchiveStore writes finished documents to durable storage and returns a URI.
type ArchiveStore interface {
	PutObject(ctx context.Context, path string, contentType string, data []byte) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Renderer loads a URL in a real browser and returns the settled DOM.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
}

// RenderDetector decides whether a fetched document is a script shell
// that needs a browser render before it is worth keeping.
type RenderDetector interface {
	NeedsRender(html string) bool
}

// Messenger delivers capture output to whoever asked for it.
type Messenger interface {
	Text(ctx context.Context, body string) error
	Image(ctx context.Context, image ImageArtifact) error
	ImageGroup(ctx context.Context, images []ImageArtifact) error
	File(ctx context.Context, name string, path string) error
}

// Queue provides enqueue/dequeue semantics for capture submissions.
type Queue interface {
	Enqueue(ctx context.Context, sub Submission) error
	Dequeue(ctx context.Context) (Submission, error)
}

// Hasher computes digests for deduplication/integrity.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces capture IDs (UUIDs).
type IDGenerator interface {
	NewID() (string, error)
}
