// Package capture implements the page capture pipeline: validate and
// queue a submission, fetch the page, promote to a browser render
// when the document looks like a script shell, inline its resources,
// write the artifacts, and narrate the result.
package capture

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagesnap/internal/artifact"
	"github.com/JakeFAU/pagesnap/internal/inline"
	"github.com/JakeFAU/pagesnap/internal/logging"
	"github.com/JakeFAU/pagesnap/internal/messenger"
	"github.com/JakeFAU/pagesnap/internal/renderer"
	"github.com/JakeFAU/pagesnap/internal/snapshot"
)

// Config controls Service behavior.
type Config struct {
	Enabled       bool
	PageTimeout   time.Duration
	DeleteAfter   time.Duration
	SendImages    bool
	SendDocument  bool
	ArchivePrefix string
	ContentType   string
	Topic         string
}

// Inliner embeds a page's external resources into the document.
type Inliner interface {
	InlineDocument(ctx context.Context, pageHTML, pageURL, pageDir string) inline.Result
}

// PageWriter creates page directories and persists documents.
type PageWriter interface {
	NewPageDir() (string, error)
	WriteDocument(pageDir, pageURL, html string) (string, error)
}

// Janitor schedules delivered page directories for deletion.
type Janitor interface {
	ScheduleDeletion(ctx context.Context, path string, delay time.Duration)
}

// Service owns capture submissions end to end.
type Service struct {
	cfg       Config
	store     snapshot.CaptureStore
	queue     snapshot.Queue
	fetcher   snapshot.Fetcher
	detector  snapshot.RenderDetector
	renderer  snapshot.Renderer
	inliner   Inliner
	writer    PageWriter
	janitor   Janitor
	archive   snapshot.ArchiveStore
	publisher snapshot.Publisher
	hasher    snapshot.Hasher
	clock     snapshot.Clock
	ids       snapshot.IDGenerator
	logger    *zap.Logger

	messengerFor func(captureID string) snapshot.Messenger
}

// New constructs a Service. archive and publisher may be nil when
// those integrations are disabled.
func New(
	cfg Config,
	store snapshot.CaptureStore,
	queue snapshot.Queue,
	fetcher snapshot.Fetcher,
	detector snapshot.RenderDetector,
	rend snapshot.Renderer,
	inliner Inliner,
	writer PageWriter,
	janitor Janitor,
	archive snapshot.ArchiveStore,
	publisher snapshot.Publisher,
	hasher snapshot.Hasher,
	clock snapshot.Clock,
	ids snapshot.IDGenerator,
	logger *zap.Logger,
) *Service {
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 30 * time.Second
	}
	if cfg.DeleteAfter <= 0 {
		cfg.DeleteAfter = 5 * time.Minute
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	s := &Service{
		cfg:       cfg,
		store:     store,
		queue:     queue,
		fetcher:   fetcher,
		detector:  detector,
		renderer:  rend,
		inliner:   inliner,
		writer:    writer,
		janitor:   janitor,
		archive:   archive,
		publisher: publisher,
		hasher:    hasher,
		clock:     clock,
		ids:       ids,
		logger:    logger,
	}
	s.messengerFor = func(captureID string) snapshot.Messenger {
		return messenger.NewTranscript(store, captureID, clock, logger)
	}
	return s
}

// Submit validates and queues a capture for rawURL, returning the
// queued capture record. Validation happens before any network or
// disk work.
func (s *Service) Submit(ctx context.Context, rawURL string) (snapshot.Capture, error) {
	if !s.cfg.Enabled {
		return snapshot.Capture{}, snapshot.ErrCaptureDisabled
	}
	if !snapshot.ValidateURL(rawURL) {
		return snapshot.Capture{}, snapshot.ErrInvalidURL
	}
	url := snapshot.NormalizeURL(rawURL)

	id, err := s.ids.NewID()
	if err != nil {
		return snapshot.Capture{}, fmt.Errorf("new capture id: %w", err)
	}
	c := snapshot.Capture{
		ID:        id,
		URL:       url,
		Status:    snapshot.CaptureStatusQueued,
		Submitted: s.clock.Now(),
	}
	if err := s.store.CreateCapture(ctx, c); err != nil {
		return snapshot.Capture{}, fmt.Errorf("create capture: %w", err)
	}
	sub := snapshot.Submission{CaptureID: id, URL: url, Submitted: c.Submitted.Unix()}
	if err := s.queue.Enqueue(ctx, sub); err != nil {
		if uerr := s.store.UpdateCaptureStatus(ctx, id, snapshot.CaptureStatusFailed, err.Error()); uerr != nil {
			s.logger.Error("status update after enqueue failure",
				zap.String("capture_id", id), zap.Error(uerr))
		}
		return snapshot.Capture{}, fmt.Errorf("enqueue capture: %w", err)
	}
	s.logger.Info("capture queued", zap.String("capture_id", id), zap.String("url", url))
	return c, nil
}

// Get returns a capture with its transcript.
func (s *Service) Get(ctx context.Context, captureID string) (snapshot.Capture, error) {
	return s.store.GetCapture(ctx, captureID)
}

// List returns capture summaries, newest first. A nil status matches
// every capture.
func (s *Service) List(ctx context.Context, status *snapshot.CaptureStatus, limit, offset int) ([]snapshot.Capture, error) {
	return s.store.ListCaptures(ctx, status, limit, offset)
}

// Process executes one queued capture. It never returns an error:
// every failure ends in a failed status, a plain notice in the
// transcript, and a log entry.
func (s *Service) Process(ctx context.Context, sub snapshot.Submission) {
	logger := logging.WithCapture(s.logger, sub.CaptureID, sub.URL)
	started := s.clock.Now()

	if err := s.store.UpdateCaptureStatus(ctx, sub.CaptureID, snapshot.CaptureStatusRunning, ""); err != nil {
		logger.Error("status update failed", zap.Error(err))
		return
	}
	msgr := s.messengerFor(sub.CaptureID)
	s.say(ctx, msgr, logger, fmt.Sprintf("capturing %s, this may take a moment...", sub.URL))

	result, err := s.run(ctx, sub, msgr, logger)
	if err != nil {
		s.say(ctx, msgr, logger, failureNotice(err))
		s.finish(ctx, sub, snapshot.CaptureStatusFailed, err, logger)
		return
	}

	if err := s.store.SetCaptureResult(ctx, sub.CaptureID, result); err != nil {
		s.finish(ctx, sub, snapshot.CaptureStatusFailed, fmt.Errorf("persist result: %w", err), logger)
		return
	}
	s.deliver(ctx, msgr, sub.URL, result, logger)
	s.janitor.ScheduleDeletion(ctx, result.PageDir, s.cfg.DeleteAfter)
	s.finish(ctx, sub, snapshot.CaptureStatusSucceeded, nil, logger)
	logger.Info("capture finished",
		zap.Duration("took", s.clock.Now().Sub(started)),
		zap.Bool("headless", result.UsedHeadless),
		zap.Int("images", len(result.Images)))
}

func (s *Service) run(ctx context.Context, sub snapshot.Submission, msgr snapshot.Messenger, logger *zap.Logger) (snapshot.CaptureResult, error) {
	resp, err := s.fetcher.Fetch(ctx, snapshot.FetchRequest{URL: sub.URL, Timeout: s.cfg.PageTimeout})
	if err != nil {
		return snapshot.CaptureResult{}, fmt.Errorf("retrieve page: %w", err)
	}

	html := string(resp.Body)
	usedHeadless := false
	if s.detector != nil && s.detector.NeedsRender(html) {
		html, usedHeadless = s.maybeRender(ctx, sub.URL, html, msgr, logger)
	}

	pageDir, err := s.writer.NewPageDir()
	if err != nil {
		return snapshot.CaptureResult{}, fmt.Errorf("create page dir: %w", err)
	}

	inlined := s.inliner.InlineDocument(ctx, html, sub.URL, pageDir)

	docPath, err := s.writer.WriteDocument(pageDir, sub.URL, inlined.HTML)
	if err != nil {
		return snapshot.CaptureResult{}, err
	}

	hash, err := s.hasher.Hash([]byte(inlined.HTML))
	if err != nil {
		return snapshot.CaptureResult{}, fmt.Errorf("hash document: %w", err)
	}

	return snapshot.CaptureResult{
		PageDir:      pageDir,
		DocumentPath: docPath,
		DocumentName: filepath.Base(docPath),
		ContentHash:  hash,
		ArchiveURI:   s.archiveDocument(ctx, sub.CaptureID, hash, []byte(inlined.HTML), logger),
		UsedHeadless: usedHeadless,
		Images:       inlined.Images,
		Counters:     inlined.Counters,
	}, nil
}

// maybeRender loads the page in a browser when the probe document
// looks like a script shell. Rendered output replaces the probe
// document whenever the render succeeds; on failure the probe
// document stands.
func (s *Service) maybeRender(ctx context.Context, pageURL, probeHTML string, msgr snapshot.Messenger, logger *zap.Logger) (string, bool) {
	if s.renderer == nil {
		return probeHTML, false
	}
	s.say(ctx, msgr, logger, "page looks script-rendered, loading it in a browser...")
	rendered, err := s.renderer.Render(ctx, pageURL)
	if err != nil {
		if !errors.Is(err, renderer.ErrRendererDisabled) {
			logger.Warn("browser render failed, keeping fetched html", zap.Error(err))
		}
		return probeHTML, false
	}
	if rendered == "" {
		return probeHTML, false
	}
	snapshot.TotalRenderPromotions.Inc()
	logger.Debug("browser render adopted",
		zap.Int("probe_bytes", len(probeHTML)), zap.Int("rendered_bytes", len(rendered)))
	return rendered, true
}

// deliver narrates the finished capture: grouped images first, with a
// per-image fallback when the group cannot be recorded as a whole,
// then the document attachment.
func (s *Service) deliver(ctx context.Context, msgr snapshot.Messenger, pageURL string, result snapshot.CaptureResult, logger *zap.Logger) {
	if s.cfg.SendImages && len(result.Images) > 0 {
		s.say(ctx, msgr, logger, fmt.Sprintf("found %d images, sending...", len(result.Images)))
		if err := msgr.ImageGroup(ctx, result.Images); err != nil {
			logger.Warn("image group failed, sending individually", zap.Error(err))
			for _, img := range result.Images {
				if ierr := msgr.Image(ctx, img); ierr != nil {
					logger.Warn("image message failed",
						zap.String("path", img.LocalPath), zap.Error(ierr))
				}
			}
		}
	}
	if s.cfg.SendDocument {
		name := artifact.SendName(snapshot.ExtractDomain(pageURL))
		if err := msgr.File(ctx, name, result.DocumentPath); err != nil {
			logger.Warn("document message failed", zap.Error(err))
		}
	}
}

func (s *Service) archiveDocument(ctx context.Context, captureID, hash string, html []byte, logger *zap.Logger) string {
	if s.archive == nil {
		return ""
	}
	uri, err := s.archive.PutObject(ctx, s.buildArchivePath(captureID, hash), s.cfg.ContentType, html)
	if err != nil {
		logger.Warn("archive put failed", zap.Error(err))
		return ""
	}
	return uri
}

func (s *Service) buildArchivePath(captureID, hash string) string {
	prefix := strings.Trim(s.cfg.ArchivePrefix, "/")
	if prefix == "" {
		return fmt.Sprintf("%s/%s.html", captureID, hash)
	}
	return fmt.Sprintf("%s/%s/%s.html", prefix, captureID, hash)
}

func (s *Service) finish(ctx context.Context, sub snapshot.Submission, status snapshot.CaptureStatus, cause error, logger *zap.Logger) {
	errText := ""
	if cause != nil {
		errText = cause.Error()
		logger.Error("capture failed", zap.Error(cause))
	}
	if err := s.store.UpdateCaptureStatus(ctx, sub.CaptureID, status, errText); err != nil {
		logger.Error("final status update failed", zap.Error(err))
	}
	snapshot.TotalCaptures.WithLabelValues(string(status)).Inc()
	s.publishEvent(ctx, sub, status, logger)
}

func (s *Service) publishEvent(ctx context.Context, sub snapshot.Submission, status snapshot.CaptureStatus, logger *zap.Logger) {
	if s.publisher == nil || s.cfg.Topic == "" {
		return
	}
	evt := snapshot.Event{
		CaptureID:  sub.CaptureID,
		URL:        sub.URL,
		Status:     status,
		Domain:     snapshot.ExtractDomain(sub.URL),
		FinishedAt: s.clock.Now(),
	}
	if _, err := s.publisher.Publish(ctx, s.cfg.Topic, evt); err != nil {
		logger.Warn("event publish failed", zap.Error(err))
	}
}

func (s *Service) say(ctx context.Context, msgr snapshot.Messenger, logger *zap.Logger, text string) {
	if err := msgr.Text(ctx, text); err != nil {
		logger.Warn("status message failed", zap.Error(err))
	}
}

// failureNotice maps an internal failure to the plain message shown
// to the requester.
func failureNotice(err error) string {
	var fe *snapshot.FetchError
	if errors.As(err, &fe) {
		return "could not retrieve the page, check the URL or try again later."
	}
	return "capture failed, please try again later."
}
