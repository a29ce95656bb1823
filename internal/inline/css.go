package inline

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/pagesnap/internal/snapshot"
)

// cssURLPattern matches url(...) references, tolerating optional
// quoting and whitespace. Group 1 is the reference itself.
var cssURLPattern = regexp.MustCompile(`(?i)url\s*\(\s*['"]?([^'"()]+)['"]?\s*\)`)

// RewriteStats counts the url() substitutions made and skipped.
type RewriteStats struct {
	Inlined int
	Failed  int
}

// CSSRewriter embeds the resources a stylesheet references as data
// URIs so the stylesheet no longer depends on the network.
type CSSRewriter struct {
	fetcher     snapshot.Fetcher
	timeout     time.Duration
	maxParallel int
	logger      *zap.Logger
}

// NewCSSRewriter builds a rewriter. Resources referenced from CSS get
// a short budget; a slow font is not worth stalling the capture.
func NewCSSRewriter(fetcher snapshot.Fetcher, timeout time.Duration, maxParallel int, logger *zap.Logger) *CSSRewriter {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &CSSRewriter{
		fetcher:     fetcher,
		timeout:     timeout,
		maxParallel: maxParallel,
		logger:      logger,
	}
}

type cssSpan struct {
	start    int
	end      int
	resolved string
	data     string
}

// Rewrite replaces relative url() references in css with data URIs,
// resolving them against cssURL. Data URIs and absolute URLs pass
// through untouched, and a failed fetch leaves its match exactly as
// written. All matches are resolved before the text is rebuilt, so a
// substitution can never shift the bounds of a later one.
func (r *CSSRewriter) Rewrite(ctx context.Context, css, cssURL string) (out string, stats RewriteStats) {
	out = css
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Warn("css rewrite fault, keeping original text",
				zap.String("css_url", cssURL), zap.Any("panic", rec))
			out, stats = css, RewriteStats{}
		}
	}()

	matches := cssURLPattern.FindAllStringSubmatchIndex(css, -1)
	if len(matches) == 0 {
		return css, stats
	}

	spans := make([]*cssSpan, 0, len(matches))
	for _, m := range matches {
		ref := strings.TrimSpace(css[m[2]:m[3]])
		if ref == "" || skipCSSRef(ref) {
			continue
		}
		// The whole url(...) match is replaced, so original quoting
		// does not survive into the rewritten reference.
		spans = append(spans, &cssSpan{
			start:    m[0],
			end:      m[1],
			resolved: snapshot.ResolveReference(cssURL, ref),
		})
	}
	if len(spans) == 0 {
		return css, stats
	}

	// Fetch each distinct URL once; a sprite sheet referenced ten
	// times costs one request.
	grouped := make(map[string][]*cssSpan)
	for _, s := range spans {
		grouped[s.resolved] = append(grouped[s.resolved], s)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.maxParallel)
	for resolved, group := range grouped {
		g.Go(func() error {
			resp, err := r.fetcher.Fetch(gctx, snapshot.FetchRequest{
				URL:     resolved,
				Referer: cssURL,
				Timeout: r.timeout,
			})
			snapshot.TotalResourceFetches.WithLabelValues("css_resource").Inc()

			mu.Lock()
			defer mu.Unlock()
			if err != nil || len(resp.Body) == 0 {
				stats.Failed += len(group)
				snapshot.TotalResourceFailures.WithLabelValues(string(failureKind(err))).Inc()
				r.logger.Debug("css resource fetch failed",
					zap.String("url", resolved), zap.Error(err))
				return nil
			}
			repl := "url(" + dataURI(resourceMIME(resp.ContentType()), resp.Body) + ")"
			for _, s := range group {
				s.data = repl
			}
			stats.Inlined += len(group)
			return nil
		})
	}
	_ = g.Wait()

	var b strings.Builder
	last := 0
	for _, s := range spans {
		if s.data == "" {
			continue
		}
		b.WriteString(css[last:s.start])
		b.WriteString(s.data)
		last = s.end
	}
	b.WriteString(css[last:])
	return b.String(), stats
}

// skipCSSRef reports whether a url() reference is already
// self-contained or out of scope: data URIs, absolute and
// scheme-relative URLs, and same-document fragments like SVG filters.
func skipCSSRef(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "data:") ||
		strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "//") ||
		strings.HasPrefix(lower, "#")
}

func failureKind(err error) snapshot.FailureKind {
	if err == nil {
		return snapshot.FailureBody
	}
	return snapshot.FailureKindOf(err)
}
