// Package messenger records capture output as a message transcript.
//
// The capture pipeline narrates its work the way a chat bot would:
// status text, the downloaded images (grouped when possible), and the
// final document as a file attachment. The transcript stores those
// messages with the capture so API clients can replay them.
package messenger

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagesnap/internal/snapshot"
)

// Transcript implements snapshot.Messenger for one capture.
type Transcript struct {
	store     snapshot.CaptureStore
	captureID string
	clock     snapshot.Clock
	logger    *zap.Logger
}

// NewTranscript binds a transcript to captureID.
func NewTranscript(store snapshot.CaptureStore, captureID string, clock snapshot.Clock, logger *zap.Logger) *Transcript {
	return &Transcript{
		store:     store,
		captureID: captureID,
		clock:     clock,
		logger:    logger,
	}
}

// Text records a status or failure notice.
func (t *Transcript) Text(ctx context.Context, body string) error {
	return t.append(ctx, snapshot.Message{Kind: snapshot.MessageText, Text: body})
}

// Image records a single image attachment.
func (t *Transcript) Image(ctx context.Context, image snapshot.ImageArtifact) error {
	return t.append(ctx, snapshot.Message{
		Kind:   snapshot.MessageImage,
		Images: []snapshot.ImageArtifact{image},
	})
}

// ImageGroup records all images as one grouped message. An empty
// group records nothing.
func (t *Transcript) ImageGroup(ctx context.Context, images []snapshot.ImageArtifact) error {
	if len(images) == 0 {
		return nil
	}
	return t.append(ctx, snapshot.Message{Kind: snapshot.MessageImageGroup, Images: images})
}

// File records the final document attachment.
func (t *Transcript) File(ctx context.Context, name string, path string) error {
	return t.append(ctx, snapshot.Message{Kind: snapshot.MessageFile, FileName: name, FilePath: path})
}

func (t *Transcript) append(ctx context.Context, msg snapshot.Message) error {
	msg.SentAt = t.sentAt()
	if err := t.store.AppendMessage(ctx, t.captureID, msg); err != nil {
		return fmt.Errorf("append %s message: %w", msg.Kind, err)
	}
	t.logger.Debug("message recorded",
		zap.String("capture_id", t.captureID), zap.String("kind", string(msg.Kind)))
	return nil
}

func (t *Transcript) sentAt() time.Time {
	if t.clock == nil {
		return time.Time{}
	}
	return t.clock.Now()
}
