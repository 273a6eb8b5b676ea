package jobs

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/genmedia-studio/api/internal/services"
)

func TestPubSubMediaPublisherPublishesMessage(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	defer srv.Close()

	client, err := pubsub.NewClient(ctx, "test-project",
		option.WithEndpoint(srv.Addr),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	)
	if err != nil {
		t.Fatalf("pubsub.NewClient: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	topic, err := client.CreateTopic(ctx, "media-events")
	if err != nil {
		t.Fatalf("CreateTopic: %v", err)
	}

	publisher, err := NewPubSubMediaPublisher(topic)
	if err != nil {
		t.Fatalf("NewPubSubMediaPublisher: %v", err)
	}

	savedAt := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	msg := services.MediaSavedMessage{
		BatchID:  "batch-1",
		OwnerID:  "user_1",
		MediaIDs: []string{"media-1", "media-2"},
		Mode:     "generated",
		SavedAt:  savedAt,
	}

	if _, err := publisher.PublishMediaSaved(ctx, msg); err != nil {
		t.Fatalf("PublishMediaSaved: %v", err)
	}

	messages := srv.Messages()
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}

	var decoded services.MediaSavedMessage
	if err := json.Unmarshal(messages[0].Data, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if decoded.BatchID != msg.BatchID || decoded.OwnerID != msg.OwnerID {
		t.Fatalf("unexpected payload %+v", decoded)
	}
	if !decoded.SavedAt.Equal(savedAt) {
		t.Fatalf("unexpected savedAt %v", decoded.SavedAt)
	}

	attrs := messages[0].Attributes
	if attrs["batchId"] != "batch-1" || attrs["ownerId"] != "user_1" || attrs["mode"] != "generated" {
		t.Fatalf("unexpected attributes %v", attrs)
	}
}

func TestNewPubSubMediaPublisherRequiresTopic(t *testing.T) {
	if _, err := NewPubSubMediaPublisher(nil); err == nil {
		t.Fatalf("expected error for nil topic")
	}
}
