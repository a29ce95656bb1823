// Package server assembles the capture pipeline and runs it behind
// the HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagesnap/internal/api"
	gcsarchive "github.com/JakeFAU/pagesnap/internal/archive/gcs"
	nooparchive "github.com/JakeFAU/pagesnap/internal/archive/noop"
	"github.com/JakeFAU/pagesnap/internal/artifact"
	"github.com/JakeFAU/pagesnap/internal/capture"
	"github.com/JakeFAU/pagesnap/internal/clock/system"
	"github.com/JakeFAU/pagesnap/internal/config"
	"github.com/JakeFAU/pagesnap/internal/detector"
	"github.com/JakeFAU/pagesnap/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/pagesnap/internal/fetcher/colly"
	"github.com/JakeFAU/pagesnap/internal/hash/sha256"
	"github.com/JakeFAU/pagesnap/internal/id/uuid"
	"github.com/JakeFAU/pagesnap/internal/inline"
	"github.com/JakeFAU/pagesnap/internal/logging"
	memorypublisher "github.com/JakeFAU/pagesnap/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/pagesnap/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/pagesnap/internal/queue/memory"
	"github.com/JakeFAU/pagesnap/internal/renderer"
	"github.com/JakeFAU/pagesnap/internal/snapshot"
	memorystore "github.com/JakeFAU/pagesnap/internal/store/memory"
	pgstore "github.com/JakeFAU/pagesnap/internal/store/postgres"
)

// App holds the wired application and the handles needed to shut it
// down in order.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	apiServer *api.Server
	dispatch  *dispatcher.Dispatcher
	janitor   *artifact.Janitor
	queue     *queuememory.Queue

	// Optional infrastructure, nil unless configured.
	renderer  *renderer.Chromedp
	archive   *gcsarchive.Archive
	publisher *gcppublisher.Publisher
	pgStore   *pgstore.CaptureStore
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)

	app := &App{cfg: cfg, logger: logger}
	app.logger.Info("building application dependencies", zap.Int("port", cfg.Server.Port))

	store, err := setupStore(ctx, app)
	if err != nil {
		return nil, err
	}

	archiveStore, err := setupArchive(ctx, app)
	if err != nil {
		return nil, err
	}

	eventPublisher, err := setupPublisher(ctx, app)
	if err != nil {
		return nil, err
	}

	rend := setupRenderer(app)

	artifactRoot := cfg.Artifacts.Root
	if artifactRoot == "" {
		artifactRoot = filepath.Join(os.TempDir(), "pagesnap")
	}
	writer, err := artifact.NewWriter(artifactRoot, system.New(), logger.Named("artifact"))
	if err != nil {
		return nil, fmt.Errorf("artifact writer init failed: %w", err)
	}
	app.janitor = artifact.NewJanitor(
		artifactRoot,
		cfg.SweepInterval(),
		cfg.MaxArtifactAge(),
		system.New(),
		logger.Named("janitor"),
	)

	fetcher := collyfetcher.New(fetcherConfig(cfg))
	css := inline.NewCSSRewriter(fetcher, cfg.CSSTimeout(), cfg.Capture.MaxParallelFetches, logger.Named("css"))
	inliner := inline.NewInliner(fetcher, css, cfg.ResourceTimeout(), cfg.Capture.MaxParallelFetches, logger.Named("inline"))

	app.queue = queuememory.NewQueue(cfg.Capture.QueueDepth)

	service := capture.New(
		capture.Config{
			Enabled:       cfg.Capture.Enabled,
			PageTimeout:   cfg.PageTimeout(),
			DeleteAfter:   cfg.DeleteAfter(),
			SendImages:    cfg.Capture.SendImages,
			SendDocument:  cfg.Capture.SendDocument,
			ArchivePrefix: cfg.Archive.Prefix,
			ContentType:   cfg.Archive.ContentType,
			Topic:         cfg.PubSub.TopicName,
		},
		store,
		app.queue,
		fetcher,
		detector.NewHeuristic(),
		rend,
		inliner,
		writer,
		app.janitor,
		archiveStore,
		eventPublisher,
		sha256.New(),
		system.New(),
		uuid.NewUUIDGenerator(),
		logger.Named("capture"),
	)

	app.logger.Info("capture pipeline config",
		zap.Int("concurrency", cfg.Capture.Concurrency),
		zap.Int("queue_depth", cfg.Capture.QueueDepth),
		zap.Duration("page_timeout", cfg.PageTimeout()),
		zap.Bool("headless", cfg.Headless.Enabled),
		zap.String("artifact_root", artifactRoot),
	)

	app.dispatch = dispatcher.New(cfg.Capture.Concurrency, app.queue, service, logger.Named("worker"))
	app.apiServer = api.NewServer(service, app.janitor, cfg, logger.Named("api"))

	return app, nil
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		a.logger.Info("retention janitor started")
		a.janitor.Run(ctx)
	}()

	go func() {
		a.logger.Info("dispatcher started")
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	return a.Close()
}

// Close gracefully shuts down the application.
func (a *App) Close() error {
	a.queue.Close()
	a.janitor.Wait()
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
	return nil
}

func (a *App) closeInfrastructure() {
	if a.renderer != nil {
		a.renderer.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub publisher close failed", zap.Error(err))
		}
	}
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			a.logger.Warn("gcs archive close failed", zap.Error(err))
		}
	}
	if a.pgStore != nil {
		a.pgStore.Close()
	}
}

func setupStore(ctx context.Context, app *App) (snapshot.CaptureStore, error) {
	if !app.cfg.DB.Enabled {
		app.logger.Info("using in-memory capture store")
		return memorystore.NewCaptureStore(), nil
	}
	store, err := pgstore.NewCaptureStore(ctx, pgstore.Config{
		DSN:      app.cfg.DB.DSN,
		MaxConns: int32(app.cfg.DB.MaxOpenConns),
	})
	if err != nil {
		return nil, fmt.Errorf("capture store init failed: %w", err)
	}
	app.pgStore = store
	app.logger.Info("postgres capture store initialized")
	return store, nil
}

func setupArchive(ctx context.Context, app *App) (snapshot.ArchiveStore, error) {
	if app.cfg.Archive.GCSBucket == "" {
		app.logger.Info("document archive disabled")
		return nooparchive.New(), nil
	}
	arch, err := gcsarchive.Connect(ctx, app.cfg.Archive.GCSBucket, app.logger.Named("archive"))
	if err != nil {
		return nil, fmt.Errorf("archive init failed: %w", err)
	}
	app.archive = arch
	app.logger.Info("GCS archive initialized", zap.String("bucket", app.cfg.Archive.GCSBucket))
	return arch, nil
}

func setupPublisher(ctx context.Context, app *App) (snapshot.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	pub, err := gcppublisher.Connect(ctx, app.cfg.PubSub.ProjectID, app.cfg.PubSub.TopicName)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	app.publisher = pub
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return pub, nil
}

// fetcherConfig maps capture settings onto the shared collector. The
// collector timeout caps every clone, so it must carry the page
// budget, the largest one in use; resource and CSS budgets shrink
// under it per request.
func fetcherConfig(cfg config.Config) collyfetcher.Config {
	return collyfetcher.Config{
		UserAgent: cfg.Capture.UserAgent,
		Timeout:   cfg.PageTimeout(),
	}
}

// setupRenderer builds the chromedp renderer when headless capture is
// enabled. A launch failure degrades to the noop renderer so captures
// still work, just without JavaScript.
func setupRenderer(app *App) snapshot.Renderer {
	if !app.cfg.Headless.Enabled {
		app.logger.Info("headless rendering disabled")
		return renderer.NewNoop()
	}
	rend, err := renderer.New(renderer.Config{
		MaxParallel:    app.cfg.Headless.MaxParallel,
		UserAgent:      app.cfg.Capture.UserAgent,
		NavTimeout:     time.Duration(app.cfg.Headless.NavTimeoutSec) * time.Second,
		Settle:         time.Duration(app.cfg.Headless.SettleMillis) * time.Millisecond,
		ViewportWidth:  app.cfg.Headless.ViewportWidth,
		ViewportHeight: app.cfg.Headless.ViewportHeight,
		DomainQPS:      float64(app.cfg.Headless.DomainQPS),
	}, app.logger.Named("renderer"))
	if err != nil {
		app.logger.Warn("headless renderer init failed, rendering disabled", zap.Error(err))
		return renderer.NewNoop()
	}
	app.renderer = rend
	app.logger.Info("headless renderer initialized", zap.Int("max_parallel", app.cfg.Headless.MaxParallel))
	return rend
}
