// Package artifact owns the on-disk layout of captured pages: a root
// directory of per-capture page directories, each holding the final
// document plus an images subdirectory, and the janitor that expires
// them.
package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagesnap/internal/snapshot"
)

// forbiddenNameChars matches characters that are unsafe in filenames
// on at least one supported platform.
var forbiddenNameChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// Writer creates page directories and saves finished documents.
type Writer struct {
	root   string
	clock  snapshot.Clock
	logger *zap.Logger
}

// NewWriter returns a writer rooted at root, creating it if needed.
func NewWriter(root string, clock snapshot.Clock, logger *zap.Logger) (*Writer, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create artifact root %s: %w", root, err)
	}
	return &Writer{root: root, clock: clock, logger: logger}, nil
}

// Root returns the directory all page directories live under.
func (w *Writer) Root() string { return w.root }

// NewPageDir creates the directory one capture's artifacts live in.
// Nanosecond naming keeps concurrent captures collision free.
func (w *Writer) NewPageDir() (string, error) {
	dir := filepath.Join(w.root, fmt.Sprintf("page_%d", w.clock.Now().UnixNano()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create page dir %s: %w", dir, err)
	}
	return dir, nil
}

// WriteDocument saves the finished document under pageDir with a name
// derived from the page's domain and capture time. A write failure
// here propagates to the caller; every other artifact fault in the
// pipeline is absorbed, but a capture without its document has
// nothing to deliver.
func (w *Writer) WriteDocument(pageDir, pageURL, html string) (string, error) {
	name := DocumentName(snapshot.ExtractDomain(pageURL), w.clock.Now())
	target := filepath.Join(pageDir, name)
	if err := os.WriteFile(target, []byte(html), 0o644); err != nil {
		return "", fmt.Errorf("write document %s: %w", target, err)
	}
	w.logger.Debug("document written", zap.String("path", target))
	return target, nil
}

// DocumentName is the on-disk filename for a captured document.
func DocumentName(domain string, now time.Time) string {
	name := fmt.Sprintf("%s_%s.html", domain, now.Format("20060102_150405"))
	return forbiddenNameChars.ReplaceAllString(name, "_")
}

// SendName is the attachment filename shown to the requester.
func SendName(domain string) string {
	return "webpage_" + domain + ".html"
}
