package renderer

import "context"

// Noop implements Renderer but always reports that rendering is
// unavailable, for deployments without a browser.
type Noop struct{}

// NewNoop creates a new Noop renderer.
func NewNoop() *Noop {
	return &Noop{}
}

// Render always returns ErrRendererDisabled.
func (Noop) Render(_ context.Context, _ string) (string, error) {
	return "", ErrRendererDisabled
}
