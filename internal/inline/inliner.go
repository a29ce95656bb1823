// Package inline embeds a page's external resources into the document
// itself: images become base64 data URIs (and land on disk for
// attachment delivery), stylesheets become style elements with their
// own url() references resolved, and external scripts become inline
// script elements.
package inline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/pagesnap/internal/snapshot"
)

// imageSrcAttrs lists image source attributes in priority order,
// covering the common lazy-load variants.
var imageSrcAttrs = []string{"src", "data-src", "data-lazy-src"}

// Result carries the self-contained document plus the images that
// were written alongside it.
type Result struct {
	HTML     string
	Images   []snapshot.ImageArtifact
	Counters snapshot.CaptureCounters
}

// Inliner walks a parsed document in three passes (images,
// stylesheets, scripts) and replaces external references with
// embedded content. Element failures are absorbed so one broken
// resource never costs the document.
type Inliner struct {
	fetcher     snapshot.Fetcher
	css         *CSSRewriter
	timeout     time.Duration
	maxParallel int
	logger      *zap.Logger
	serialize   func(*goquery.Document) (string, error)
}

// NewInliner builds an inliner. timeout bounds each resource fetch
// and maxParallel bounds concurrent fetches within a pass.
func NewInliner(fetcher snapshot.Fetcher, css *CSSRewriter, timeout time.Duration, maxParallel int, logger *zap.Logger) *Inliner {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if maxParallel <= 0 {
		maxParallel = 4
	}
	return &Inliner{
		fetcher:     fetcher,
		css:         css,
		timeout:     timeout,
		maxParallel: maxParallel,
		logger:      logger,
		serialize:   serializeDocument,
	}
}

func serializeDocument(doc *goquery.Document) (string, error) {
	return doc.Html()
}

// InlineDocument rewrites pageHTML so it no longer depends on the
// network, saving image bytes under pageDir/images as it goes.
// Resource references resolve against pageURL, which is also sent as
// the referer. If the document cannot be parsed or serialized, or an
// unexpected fault escapes a pass, the original text comes back
// untouched with no artifacts.
func (in *Inliner) InlineDocument(ctx context.Context, pageHTML, pageURL, pageDir string) (res Result) {
	res = Result{HTML: pageHTML}
	defer func() {
		if rec := recover(); rec != nil {
			in.logger.Warn("inline fault, returning original document",
				zap.String("url", pageURL), zap.Any("panic", rec))
			res = Result{HTML: pageHTML}
		}
	}()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		in.logger.Warn("document parse failed, keeping original",
			zap.String("url", pageURL), zap.Error(err))
		return res
	}

	if err := os.MkdirAll(filepath.Join(pageDir, "images"), 0o755); err != nil {
		in.logger.Warn("images directory create failed, keeping original",
			zap.String("dir", pageDir), zap.Error(err))
		return res
	}

	in.inlineImages(ctx, doc, pageURL, pageDir, &res)
	in.inlineStylesheets(ctx, doc, pageURL, &res.Counters)
	in.inlineScripts(ctx, doc, pageURL, &res.Counters)

	out, err := in.serialize(doc)
	if err != nil {
		in.logger.Warn("document serialize failed, keeping original",
			zap.String("url", pageURL), zap.Error(err))
		return Result{HTML: pageHTML}
	}
	res.HTML = out
	return res
}

// fetchTarget pairs a selected element with its resolved resource
// URL. index is the element's position among all candidates of its
// pass and names the artifact file for images.
type fetchTarget struct {
	sel      *goquery.Selection
	index    int
	resolved string
}

type fetchOutcome struct {
	resp snapshot.FetchResponse
	err  error
}

// fetchAll retrieves every target with bounded parallelism. Outcomes
// line up with targets by position so the caller can apply mutations
// in document order regardless of fetch completion order.
func (in *Inliner) fetchAll(ctx context.Context, targets []fetchTarget, referer, kind string) []fetchOutcome {
	outcomes := make([]fetchOutcome, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.maxParallel)
	for i, t := range targets {
		g.Go(func() error {
			resp, err := in.fetcher.Fetch(gctx, snapshot.FetchRequest{
				URL:     t.resolved,
				Referer: referer,
				Timeout: in.timeout,
			})
			snapshot.TotalResourceFetches.WithLabelValues(kind).Inc()
			outcomes[i] = fetchOutcome{resp: resp, err: err}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (in *Inliner) inlineImages(ctx context.Context, doc *goquery.Document, pageURL, pageDir string, res *Result) {
	var targets []fetchTarget
	doc.Find("img").Each(func(i int, sel *goquery.Selection) {
		ref := firstImageRef(sel)
		if ref == "" || strings.HasPrefix(strings.ToLower(ref), "data:") {
			return
		}
		targets = append(targets, fetchTarget{
			sel:      sel,
			index:    i,
			resolved: snapshot.ResolveReference(pageURL, ref),
		})
	})
	if len(targets) == 0 {
		return
	}

	outcomes := in.fetchAll(ctx, targets, pageURL, "image")
	for i, t := range targets {
		out := outcomes[i]
		if out.err != nil {
			res.Counters.ResourceFailures++
			snapshot.TotalResourceFailures.WithLabelValues(string(snapshot.FailureKindOf(out.err))).Inc()
			in.logger.Debug("image fetch failed",
				zap.String("url", t.resolved), zap.Error(out.err))
			continue
		}
		mime := mimeForResource(out.resp.ContentType(), t.resolved)
		name := fmt.Sprintf("img_%d%s", t.index, extensionForMIME(mime))
		localPath := filepath.Join(pageDir, "images", name)
		if err := os.WriteFile(localPath, out.resp.Body, 0o644); err != nil {
			res.Counters.ResourceFailures++
			snapshot.TotalResourceFailures.WithLabelValues("write").Inc()
			in.logger.Warn("image save failed",
				zap.String("path", localPath), zap.Error(err))
			continue
		}
		t.sel.SetAttr("src", dataURI(mime, out.resp.Body))
		res.Images = append(res.Images, snapshot.ImageArtifact{
			LocalPath: localPath,
			OriginURL: t.resolved,
		})
		res.Counters.ImagesInlined++
	}
}

func (in *Inliner) inlineStylesheets(ctx context.Context, doc *goquery.Document, pageURL string, counters *snapshot.CaptureCounters) {
	var targets []fetchTarget
	doc.Find(`link[rel="stylesheet"]`).Each(func(_ int, sel *goquery.Selection) {
		href := strings.TrimSpace(sel.AttrOr("href", ""))
		if href == "" {
			return
		}
		targets = append(targets, fetchTarget{
			sel:      sel,
			resolved: snapshot.ResolveReference(pageURL, href),
		})
	})
	if len(targets) == 0 {
		return
	}

	outcomes := in.fetchAll(ctx, targets, pageURL, "stylesheet")
	for i, t := range targets {
		out := outcomes[i]
		if out.err != nil {
			counters.ResourceFailures++
			snapshot.TotalResourceFailures.WithLabelValues(string(snapshot.FailureKindOf(out.err))).Inc()
			in.logger.Debug("stylesheet fetch failed",
				zap.String("url", t.resolved), zap.Error(out.err))
			continue
		}
		cssText := string(out.resp.Body)
		if cssText == "" {
			in.logger.Debug("stylesheet empty, keeping link", zap.String("url", t.resolved))
			continue
		}
		rewritten, stats := in.css.Rewrite(ctx, cssText, t.resolved)
		counters.CSSResourcesFixed += stats.Inlined
		counters.ResourceFailures += stats.Failed
		t.sel.ReplaceWithNodes(styleNode(rewritten))
		counters.StylesheetsInlined++
	}
}

func (in *Inliner) inlineScripts(ctx context.Context, doc *goquery.Document, pageURL string, counters *snapshot.CaptureCounters) {
	var targets []fetchTarget
	doc.Find("script[src]").Each(func(_ int, sel *goquery.Selection) {
		src := strings.TrimSpace(sel.AttrOr("src", ""))
		if src == "" {
			return
		}
		lower := strings.ToLower(src)
		if strings.HasPrefix(lower, "data:") || strings.HasPrefix(lower, "javascript:") {
			return
		}
		targets = append(targets, fetchTarget{
			sel:      sel,
			resolved: snapshot.ResolveReference(pageURL, src),
		})
	})
	if len(targets) == 0 {
		return
	}

	outcomes := in.fetchAll(ctx, targets, pageURL, "script")
	for i, t := range targets {
		out := outcomes[i]
		if out.err != nil {
			counters.ResourceFailures++
			snapshot.TotalResourceFailures.WithLabelValues(string(snapshot.FailureKindOf(out.err))).Inc()
			in.logger.Debug("script fetch failed",
				zap.String("url", t.resolved), zap.Error(out.err))
			continue
		}
		t.sel.ReplaceWithNodes(scriptNode(t.sel, string(out.resp.Body)))
		counters.ScriptsInlined++
	}
}

func firstImageRef(sel *goquery.Selection) string {
	for _, attr := range imageSrcAttrs {
		if v, ok := sel.Attr(attr); ok {
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		}
	}
	return ""
}

// styleNode builds an inline style element carrying cssText. Style
// and script bodies are raw text in HTML; goquery's SetText would
// entity-escape them, so the nodes are assembled by hand.
func styleNode(cssText string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: "style", DataAtom: atom.Style}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: cssText})
	return n
}

// scriptNode builds an inline script element carrying body, keeping
// every attribute of the original element except src.
func scriptNode(orig *goquery.Selection, body string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: "script", DataAtom: atom.Script}
	if len(orig.Nodes) > 0 {
		for _, attr := range orig.Nodes[0].Attr {
			if strings.EqualFold(attr.Key, "src") {
				continue
			}
			n.Attr = append(n.Attr, attr)
		}
	}
	n.AppendChild(&html.Node{Type: html.TextNode, Data: body})
	return n
}
