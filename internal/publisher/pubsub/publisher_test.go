package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/v2/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/pagesnap/internal/snapshot"
)

func TestPublisherPublishesEvent(t *testing.T) {
	ctx := context.Background()

	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer client.Close()

	topic, err := client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{
		Name: "projects/project-id/topics/capture-events",
	})
	require.NoError(t, err)

	_, err = client.SubscriptionAdminClient.CreateSubscription(ctx, &pubsubpb.Subscription{
		Name:  "projects/project-id/subscriptions/capture-events-test",
		Topic: topic.Name,
	})
	require.NoError(t, err)

	pub := New(client.Publisher(topic.Name))

	finished := time.Unix(1700000000, 0).UTC()
	evt := snapshot.Event{
		CaptureID:  "cap-1",
		URL:        "https://example.com",
		Status:     snapshot.CaptureStatusSucceeded,
		Domain:     "example.com",
		FinishedAt: finished,
	}
	id, err := pub.Publish(ctx, "capture-events", evt)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	recvCtx, cancel := context.WithCancel(ctx)
	msgCh := make(chan *pubsub.Message, 1)
	go func() {
		sub := client.Subscriber("projects/project-id/subscriptions/capture-events-test")
		_ = sub.Receive(recvCtx, func(_ context.Context, msg *pubsub.Message) {
			msg.Ack()
			msgCh <- msg
			cancel()
		})
	}()

	select {
	case msg := <-msgCh:
		var got snapshot.Event
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, evt, got)
		assert.Equal(t, "cap-1", msg.Attributes["capture_id"])
		assert.Equal(t, "succeeded", msg.Attributes["status"])
		assert.Equal(t, "example.com", msg.Attributes["domain"])
	case <-time.After(5 * time.Second):
		cancel()
		t.Fatal("message was not received")
	}
}

func TestPublisherRequiresConfiguredTopic(t *testing.T) {
	t.Parallel()

	pub := New(nil)
	_, err := pub.Publish(context.Background(), "capture-events", snapshot.Event{})
	require.Error(t, err)
	require.NoError(t, pub.Close())
}
