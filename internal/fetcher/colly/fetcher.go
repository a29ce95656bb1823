// Package collyfetcher implements Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/pagesnap/internal/snapshot"
)

// Config controls collector behavior. Timeout is the HTTP client
// ceiling shared by every clone of the base collector; it must cover
// the largest per-request budget callers will ask for.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher implements snapshot.Fetcher using the Colly collector. The
// same Fetcher serves page probes and sub-resource fetches; callers
// pick the budget per request.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	c.WithTransport(&retryTransport{base: newHTTPTransport()})

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	c.SetRequestTimeout(timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET using Colly. A request Timeout
// below the collector ceiling is enforced through the context, since
// clones share one HTTP backend.
func (f *Fetcher) Fetch(ctx context.Context, request snapshot.FetchRequest) (snapshot.FetchResponse, error) {
	if request.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, request.Timeout)
		defer cancel()
	}

	var (
		result   snapshot.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(request, start, &result, &fetchErr)

	if err := f.runCollector(ctx, collector, request.URL, &fetchErr); err != nil {
		return snapshot.FetchResponse{}, err
	}
	return result, nil
}

func (f *Fetcher) buildCollector(
	request snapshot.FetchRequest,
	start time.Time,
	result *snapshot.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	f.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request snapshot.FetchRequest,
	start time.Time,
	result *snapshot.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
		if request.Referer != "" {
			r.Headers.Set("Referer", request.Referer)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = snapshot.FetchResponse{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Headers:    r.Headers.Clone(),
			Body:       append([]byte(nil), r.Body...),
			Duration:   time.Since(start),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		*fetchErr = classifyFailure(request.URL, r, err)
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &snapshot.FetchError{Kind: snapshot.FailureTimeout, URL: url, Err: ctx.Err()}
		}
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return *fetchErr
		}
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func (f *Fetcher) copyHeaders(request snapshot.FetchRequest, r *colly.Request) {
	if request.Headers == nil {
		return
	}
	for key, values := range request.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

// classifyFailure maps a Colly error into a typed fetch failure. A
// response with a status code means the server answered and the body
// is not worth keeping; everything else is a transport problem.
func classifyFailure(url string, r *colly.Response, err error) error {
	if r != nil && r.StatusCode != 0 {
		return &snapshot.FetchError{Kind: snapshot.FailureStatus, URL: url, StatusCode: r.StatusCode, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &snapshot.FetchError{Kind: snapshot.FailureTimeout, URL: url, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &snapshot.FetchError{Kind: snapshot.FailureTimeout, URL: url, Err: err}
	}
	return &snapshot.FetchError{Kind: snapshot.FailureConnect, URL: url, Err: err}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
