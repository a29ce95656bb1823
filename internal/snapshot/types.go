// Package snapshot defines core types shared across subsystems.
package snapshot

import (
	"net/http"
	"time"
)

// CaptureStatus represents the lifecycle state of a capture.
type CaptureStatus string

// Capture status values persisted in the capture store.
const (
	CaptureStatusQueued    CaptureStatus = "queued"
	CaptureStatusRunning   CaptureStatus = "running"
	CaptureStatusSucceeded CaptureStatus = "succeeded"
	CaptureStatusFailed    CaptureStatus = "failed"
)

// Capture represents the metadata persisted for each submitted page capture.
type Capture struct {
	ID        string        `json:"id"`
	URL       string        `json:"url"`
	Status    CaptureStatus `json:"status"`
	Submitted time.Time     `json:"submitted_at"`
	Started   *time.Time    `json:"started_at,omitempty"`
	Finished  *time.Time    `json:"finished_at,omitempty"`
	ErrorText string        `json:"error_text,omitempty"`
	Result    CaptureResult `json:"result"`
	Messages  []Message     `json:"messages,omitempty"`
}

// CaptureResult holds the artifacts produced by a finished capture.
type CaptureResult struct {
	PageDir      string          `json:"page_dir,omitempty"`
	DocumentPath string          `json:"document_path,omitempty"`
	DocumentName string          `json:"document_name,omitempty"`
	ContentHash  string          `json:"content_hash,omitempty"`
	ArchiveURI   string          `json:"archive_uri,omitempty"`
	UsedHeadless bool            `json:"used_headless"`
	Images       []ImageArtifact `json:"images,omitempty"`
	Counters     CaptureCounters `json:"counters"`
}

// CaptureCounters tracks per-capture inlining stats.
type CaptureCounters struct {
	ImagesInlined      int `json:"images_inlined"`
	StylesheetsInlined int `json:"stylesheets_inlined"`
	ScriptsInlined     int `json:"scripts_inlined"`
	CSSResourcesFixed  int `json:"css_resources_fixed"`
	ResourceFailures   int `json:"resource_failures"`
}

// ImageArtifact points at an image saved alongside the document,
// together with the absolute URL it was fetched from.
type ImageArtifact struct {
	LocalPath string `json:"local_path"`
	OriginURL string `json:"origin_url"`
}

// MessageKind distinguishes the delivery shapes a capture emits.
type MessageKind string

// Message kinds recorded in the capture transcript.
const (
	MessageText       MessageKind = "text"
	MessageImage      MessageKind = "image"
	MessageImageGroup MessageKind = "image_group"
	MessageFile       MessageKind = "file"
)

// Message is one outbound delivery recorded for a capture.
type Message struct {
	Kind     MessageKind     `json:"kind"`
	Text     string          `json:"text,omitempty"`
	Images   []ImageArtifact `json:"images,omitempty"`
	FileName string          `json:"file_name,omitempty"`
	FilePath string          `json:"file_path,omitempty"`
	SentAt   time.Time       `json:"sent_at"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Referer string
	Headers http.Header
	Timeout time.Duration
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// ContentType reports the response Content-Type header, if any.
func (r FetchResponse) ContentType() string {
	return r.Headers.Get("Content-Type")
}

// Submission wraps a capture ready to run.
type Submission struct {
	CaptureID string
	URL       string
	Submitted int64
}

// Event is the payload published when a capture finishes.
type Event struct {
	CaptureID  string        `json:"capture_id"`
	URL        string        `json:"url"`
	Status     CaptureStatus `json:"status"`
	Domain     string        `json:"domain"`
	FinishedAt time.Time     `json:"finished_at"`
}
