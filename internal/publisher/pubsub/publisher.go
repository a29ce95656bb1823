// Package pubsub implements the capture event publisher on Google
// Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"

	"github.com/JakeFAU/pagesnap/internal/snapshot"
)

// Publisher wraps a Pub/Sub publisher bound to one topic.
type Publisher struct {
	client    *pubsub.Client
	publisher *pubsub.Publisher
}

// New wraps an existing topic publisher.
func New(publisher *pubsub.Publisher) *Publisher {
	return &Publisher{publisher: publisher}
}

// Connect creates a Pub/Sub client with Application Default
// Credentials and verifies the topic is active before returning a
// bound Publisher, failing fast on bad configuration.
func Connect(ctx context.Context, projectID, topicID string) (*Publisher, error) {
	client, err := pubsub.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}

	request := &pubsubpb.GetTopicRequest{
		Topic: fullTopicName(projectID, topicID),
	}
	topic, err := client.TopicAdminClient.GetTopic(ctx, request)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			return nil, fmt.Errorf("get topic %s: %w (close client: %v)", topicID, err, closeErr)
		}
		return nil, fmt.Errorf("get topic %s: %w", topicID, err)
	}
	if topic.State != pubsubpb.Topic_ACTIVE {
		if closeErr := client.Close(); closeErr != nil {
			return nil, fmt.Errorf("topic %s is not active (close client: %v)", topicID, closeErr)
		}
		return nil, fmt.Errorf("topic %s is not active", topicID)
	}

	return &Publisher{
		client:    client,
		publisher: client.Publisher(topic.Name),
	}, nil
}

func fullTopicName(projectID, topicID string) string {
	return fmt.Sprintf("projects/%s/topics/%s", projectID, topicID)
}

// Publish marshals the payload to JSON and publishes it, waiting for
// the server-assigned message ID. The topic argument is ignored; the
// publisher is bound to its topic at construction.
func (p *Publisher) Publish(ctx context.Context, _ string, payload any) (string, error) {
	if p.publisher == nil {
		return "", fmt.Errorf("pubsub publisher is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{Data: data}
	if evt, ok := payload.(snapshot.Event); ok {
		// Attributes let subscribers filter without decoding the body.
		msg.Attributes = map[string]string{
			"capture_id": evt.CaptureID,
			"status":     string(evt.Status),
			"domain":     evt.Domain,
		}
	}

	result := p.publisher.Publish(ctx, msg)
	id, err := result.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close stops in-flight sends and releases the client connection.
func (p *Publisher) Close() error {
	if p.publisher != nil {
		p.publisher.Stop()
	}
	if p.client == nil {
		return nil
	}
	if err := p.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
