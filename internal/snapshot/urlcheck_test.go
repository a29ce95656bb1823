package snapshot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "bare host gains scheme", in: "example.com", want: "https://example.com"},
		{name: "http kept", in: "http://example.com", want: "http://example.com"},
		{name: "https kept", in: "https://example.com/a?b=1", want: "https://example.com/a?b=1"},
		{name: "uppercase scheme kept", in: "HTTPS://example.com", want: "HTTPS://example.com"},
		{name: "whitespace trimmed", in: "  example.com  ", want: "https://example.com"},
		{name: "empty stays empty", in: "", want: ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, NormalizeURL(tc.in))
		})
	}
}

func TestNormalizeURL_Idempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{"example.com", "http://example.com", "https://a.b/c?d=e#f", "localhost:8080"}
	for _, in := range inputs {
		once := NormalizeURL(in)
		require.Equal(t, once, NormalizeURL(once))
	}
}

func TestValidateURL(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want bool
	}{
		{name: "plain domain", in: "https://example.com", want: true},
		{name: "schemeless domain", in: "example.com", want: true},
		{name: "subdomain with path", in: "http://news.example.co.uk/world/story?id=1", want: true},
		{name: "localhost with port", in: "http://localhost:8080", want: true},
		{name: "ipv4", in: "http://192.168.1.1/admin", want: true},
		{name: "ipv4 out of range", in: "http://256.256.256.256", want: false},
		{name: "missing tld", in: "http://example", want: false},
		{name: "spaces in path", in: "http://example.com/a b", want: false},
		{name: "empty", in: "", want: false},
		{name: "bare word", in: "not a url", want: false},
		{name: "ftp scheme", in: "ftp://example.com", want: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, ValidateURL(tc.in), "url %q", tc.in)
		})
	}
}

func TestResolveReference(t *testing.T) {
	t.Parallel()

	base := "https://example.com/articles/today/index.html"

	cases := []struct {
		name string
		ref  string
		want string
	}{
		{name: "relative path", ref: "style.css", want: "https://example.com/articles/today/style.css"},
		{name: "parent path", ref: "../img/logo.png", want: "https://example.com/articles/img/logo.png"},
		{name: "rooted path", ref: "/static/app.js", want: "https://example.com/static/app.js"},
		{name: "absolute passes through", ref: "https://cdn.example.net/lib.js", want: "https://cdn.example.net/lib.js"},
		{name: "protocol relative adopts scheme", ref: "//cdn.example.net/font.woff", want: "https://cdn.example.net/font.woff"},
		{name: "data url untouched", ref: "data:image/gif;base64,R0lGOD", want: "data:image/gif;base64,R0lGOD"},
		{name: "whitespace trimmed", ref: " style.css ", want: "https://example.com/articles/today/style.css"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, ResolveReference(base, tc.ref))
		})
	}
}

func TestExtractDomain(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want string
	}{
		{name: "strips scheme and path", in: "https://example.com/a/b", want: "example.com"},
		{name: "strips port", in: "http://example.com:8080/x", want: "example.com"},
		{name: "schemeless", in: "news.example.org/story", want: "news.example.org"},
		{name: "garbage falls back", in: "http://%zz", want: "unknown"},
		{name: "empty falls back", in: "", want: "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, ExtractDomain(tc.in))
		})
	}
}

func TestFailureKindOf(t *testing.T) {
	t.Parallel()

	err := &FetchError{Kind: FailureStatus, URL: "https://example.com", StatusCode: 404}
	require.Equal(t, FailureStatus, FailureKindOf(err))
	require.Equal(t, FailureConnect, FailureKindOf(ErrNotFound))
}
