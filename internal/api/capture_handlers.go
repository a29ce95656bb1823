package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagesnap/internal/snapshot"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type captureRequest struct {
	URL string `json:"url"`
}

// submitCapture handles POST /v1/captures. It answers 202 with the new
// capture ID, 400 for malformed bodies or URLs, and 503 while capture
// is disabled or the queue is full.
func (s *Server) submitCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	c, err := s.captures.Submit(r.Context(), req.URL)
	if err != nil {
		switch {
		case errors.Is(err, snapshot.ErrInvalidURL):
			writeError(w, http.StatusBadRequest, "invalid url")
		case errors.Is(err, snapshot.ErrCaptureDisabled):
			writeError(w, http.StatusServiceUnavailable, "capture is disabled")
		case errors.Is(err, snapshot.ErrQueueFull):
			writeError(w, http.StatusServiceUnavailable, "capture queue is full, try again later")
		default:
			s.logger.Error("capture submit failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to submit capture")
		}
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"capture_id": c.ID,
		"status":     string(c.Status),
	})
}

// getCapture handles GET /v1/captures/{capture_id} and returns the
// full record including the delivery transcript.
func (s *Server) getCapture(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadCapture(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"capture": c})
}

// listCaptures handles GET /v1/captures?status=&limit=&offset=. Rows
// are summaries without the transcript, newest first.
func (s *Server) listCaptures(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parseLimitOffset(r, defaultListLimit, maxListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var status *snapshot.CaptureStatus
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		parsed, parseErr := parseStatus(raw)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		status = &parsed
	}
	captures, err := s.captures.List(r.Context(), status, limit, offset)
	if err != nil {
		s.logger.Error("capture list failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list captures")
		return
	}
	if captures == nil {
		captures = []snapshot.Capture{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"captures": captures})
}

// downloadDocument handles GET /v1/captures/{capture_id}/document.
// 409 means the capture has not produced a document; 410 means the
// retention janitor already removed it.
func (s *Server) downloadDocument(w http.ResponseWriter, r *http.Request) {
	c, ok := s.loadCapture(w, r)
	if !ok {
		return
	}
	if c.Result.DocumentPath == "" {
		writeError(w, http.StatusConflict, "capture has no document yet")
		return
	}
	if _, err := os.Stat(c.Result.DocumentPath); err != nil {
		writeError(w, http.StatusGone, "document no longer available")
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", c.Result.DocumentName))
	http.ServeFile(w, r, c.Result.DocumentPath)
}

// downloadImage handles GET /v1/captures/{capture_id}/images/{index},
// serving the nth inlined image artifact.
func (s *Server) downloadImage(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "invalid image index")
		return
	}
	c, ok := s.loadCapture(w, r)
	if !ok {
		return
	}
	if index >= len(c.Result.Images) {
		writeError(w, http.StatusNotFound, "image not found")
		return
	}
	img := c.Result.Images[index]
	if _, err := os.Stat(img.LocalPath); err != nil {
		writeError(w, http.StatusGone, "image no longer available")
		return
	}
	http.ServeFile(w, r, img.LocalPath)
}

// sweepArtifacts handles POST /v1/retention/sweep and reports how many
// expired artifacts the pass removed.
func (s *Server) sweepArtifacts(w http.ResponseWriter, _ *http.Request) {
	if s.sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, "retention sweeper unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"removed": s.sweeper.SweepOnce()})
}

func (s *Server) loadCapture(w http.ResponseWriter, r *http.Request) (snapshot.Capture, bool) {
	captureID := chi.URLParam(r, "capture_id")
	c, err := s.captures.Get(r.Context(), captureID)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			writeError(w, http.StatusNotFound, "capture not found")
			return snapshot.Capture{}, false
		}
		s.logger.Error("capture lookup failed", zap.String("capture_id", captureID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load capture")
		return snapshot.Capture{}, false
	}
	return c, true
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (snapshot.CaptureStatus, error) {
	switch strings.ToLower(input) {
	case "queued":
		return snapshot.CaptureStatusQueued, nil
	case "running":
		return snapshot.CaptureStatusRunning, nil
	case "succeeded":
		return snapshot.CaptureStatusSucceeded, nil
	case "failed":
		return snapshot.CaptureStatusFailed, nil
	default:
		return "", errors.New("invalid status")
	}
}
