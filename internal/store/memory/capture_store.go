// Package memory provides an in-memory capture store for development
// and for deployments that run without Postgres.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/JakeFAU/pagesnap/internal/snapshot"
)

// CaptureStore keeps captures and their transcripts in process memory.
type CaptureStore struct {
	mu       sync.RWMutex
	captures map[string]snapshot.Capture
}

// NewCaptureStore constructs a CaptureStore.
func NewCaptureStore() *CaptureStore {
	return &CaptureStore{
		captures: make(map[string]snapshot.Capture),
	}
}

// CreateCapture stores a new capture record.
func (s *CaptureStore) CreateCapture(_ context.Context, c snapshot.Capture) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.captures[c.ID]; exists {
		return errors.New("capture already exists")
	}
	s.captures[c.ID] = c
	return nil
}

// UpdateCaptureStatus moves a capture through its lifecycle, stamping
// Started on the first running transition and Finished on terminal
// ones.
func (s *CaptureStore) UpdateCaptureStatus(_ context.Context, id string, status snapshot.CaptureStatus, errText string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.captures[id]
	if !ok {
		return snapshot.ErrNotFound
	}
	c.Status = status
	c.ErrorText = errText
	now := time.Now().UTC()
	if status == snapshot.CaptureStatusRunning && c.Started == nil {
		c.Started = pointerTime(now)
	}
	if isTerminal(status) {
		c.Finished = pointerTime(now)
	}
	s.captures[id] = c
	return nil
}

// SetCaptureResult attaches the finished artifacts to a capture.
func (s *CaptureStore) SetCaptureResult(_ context.Context, id string, result snapshot.CaptureResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.captures[id]
	if !ok {
		return snapshot.ErrNotFound
	}
	c.Result = result
	s.captures[id] = c
	return nil
}

// AppendMessage records one transcript entry for a capture.
func (s *CaptureStore) AppendMessage(_ context.Context, id string, msg snapshot.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.captures[id]
	if !ok {
		return snapshot.ErrNotFound
	}
	c.Messages = append(c.Messages, msg)
	s.captures[id] = c
	return nil
}

// GetCapture fetches a capture with its transcript.
func (s *CaptureStore) GetCapture(_ context.Context, id string) (snapshot.Capture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.captures[id]
	if !ok {
		return snapshot.Capture{}, snapshot.ErrNotFound
	}
	// Copy the slices so callers cannot mutate stored state.
	c.Messages = append([]snapshot.Message(nil), c.Messages...)
	c.Result.Images = append([]snapshot.ImageArtifact(nil), c.Result.Images...)
	return c, nil
}

// ListCaptures returns summary rows ordered newest first. Transcript
// messages are omitted; use GetCapture for the full record.
func (s *CaptureStore) ListCaptures(_ context.Context, status *snapshot.CaptureStatus, limit, offset int) ([]snapshot.Capture, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matched := make([]snapshot.Capture, 0, len(s.captures))
	for _, c := range s.captures {
		if status != nil && c.Status != *status {
			continue
		}
		c.Messages = nil
		c.Result.Images = append([]snapshot.ImageArtifact(nil), c.Result.Images...)
		matched = append(matched, c)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Submitted.After(matched[j].Submitted)
	})
	if offset >= len(matched) {
		return []snapshot.Capture{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}

func isTerminal(status snapshot.CaptureStatus) bool {
	switch status {
	case snapshot.CaptureStatusSucceeded, snapshot.CaptureStatusFailed:
		return true
	default:
		return false
	}
}
