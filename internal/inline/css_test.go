package inline

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRewriter(f *stubFetcher) *CSSRewriter {
	return NewCSSRewriter(f, time.Second, 2, zap.NewNop())
}

func TestRewriteSubstitutesRelativeReferences(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	fetcher.respond("https://example.com/assets/bg.png", stubResponse{body: []byte("PNGDATA"), contentType: "image/png"})
	fetcher.respond("https://example.com/logo.gif", stubResponse{body: []byte("GIFDATA"), contentType: "image/gif"})

	css := `a{background:url(bg.png)}b{background:URL( "/logo.gif" )}`
	out, stats := newTestRewriter(fetcher).Rewrite(context.Background(), css, "https://example.com/assets/site.css")

	pngURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("PNGDATA"))
	gifURI := "data:image/gif;base64," + base64.StdEncoding.EncodeToString([]byte("GIFDATA"))
	require.Equal(t, `a{background:url(`+pngURI+`)}b{background:url(`+gifURI+`)}`, out)
	require.Equal(t, RewriteStats{Inlined: 2}, stats)

	require.Equal(t, "https://example.com/assets/site.css", fetcher.refererFor(t, "https://example.com/assets/bg.png"))
}

func TestRewritePartialFailureKeepsOriginalSpan(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	fetcher.respond("https://example.com/bg.png", stubResponse{body: []byte("OK"), contentType: "image/png"})

	css := `a{background:url("bg.png")}b{background:url('missing.png')}`
	out, stats := newTestRewriter(fetcher).Rewrite(context.Background(), css, "https://example.com/site.css")

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("OK"))
	require.Equal(t, `a{background:url(`+uri+`)}b{background:url('missing.png')}`, out)
	require.Equal(t, RewriteStats{Inlined: 1, Failed: 1}, stats)
}

func TestRewriteSkipsEmbeddableReferences(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	css := `a{background:url(data:image/png;base64,abc)}` +
		`b{background:url(https://cdn.example.com/a.png)}` +
		`c{background:url(HTTP://cdn.example.com/b.png)}` +
		`d{background:url(//cdn.example.com/c.png)}` +
		`e{filter:url(#blur)}`

	out, stats := newTestRewriter(fetcher).Rewrite(context.Background(), css, "https://example.com/site.css")

	require.Equal(t, css, out)
	require.Equal(t, RewriteStats{}, stats)
	require.Empty(t, fetcher.requests())
}

func TestRewriteFetchesDuplicateReferencesOnce(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	fetcher.respond("https://example.com/bg.png", stubResponse{body: []byte("OK"), contentType: "image/png"})

	css := `a{background:url(bg.png)}b{background:url(bg.png)}`
	out, stats := newTestRewriter(fetcher).Rewrite(context.Background(), css, "https://example.com/site.css")

	require.Len(t, fetcher.requests(), 1)
	require.Equal(t, RewriteStats{Inlined: 2}, stats)

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("OK"))
	require.Equal(t, `a{background:url(`+uri+`)}b{background:url(`+uri+`)}`, out)
}

func TestRewriteMissingContentTypeFallsBackToOctetStream(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	fetcher.respond("https://example.com/font.woff2", stubResponse{body: []byte("FONT")})

	out, _ := newTestRewriter(fetcher).Rewrite(context.Background(), `@font-face{src:url(font.woff2)}`, "https://example.com/site.css")

	require.Contains(t, out, "url(data:application/octet-stream;base64,")
}

func TestRewriteNoMatchesReturnsInput(t *testing.T) {
	t.Parallel()

	fetcher := newStubFetcher()
	css := `a{color:red}`
	out, stats := newTestRewriter(fetcher).Rewrite(context.Background(), css, "https://example.com/site.css")

	require.Equal(t, css, out)
	require.Equal(t, RewriteStats{}, stats)
	require.Empty(t, fetcher.requests())
}
