package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newFakeClient(t *testing.T) (*pstest.Server, *pubsub.Client) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	return srv, client
}

func TestPublisherPublishesJSON(t *testing.T) {
	ctx := context.Background()
	srv, client := newFakeClient(t)
	_, err := client.CreateTopic(ctx, "leads")
	require.NoError(t, err)

	pub := New(client)
	id, err := pub.Publish(ctx, "leads", map[string]any{"type": "lead.discovered", "external_id": "ChIJ1"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	assert.Equal(t, "lead.discovered", got["type"])
	assert.Equal(t, "ChIJ1", got["external_id"])

	require.NoError(t, pub.Close())
}

func TestPublisherRejectsBadInput(t *testing.T) {
	t.Parallel()

	_, err := (&Publisher{}).Publish(context.Background(), "leads", "x")
	require.EqualError(t, err, "pubsub publisher is not configured")

	_, client := newFakeClient(t)
	pub := New(client)
	_, err = pub.Publish(context.Background(), "", "x")
	require.EqualError(t, err, "pubsub topic is required")
	_, err = pub.Publish(context.Background(), "leads", func() {})
	require.ErrorContains(t, err, "marshal payload")
	require.NoError(t, pub.Close())
}

func TestDialRequiresProject(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), "")
	require.Error(t, err)
}
