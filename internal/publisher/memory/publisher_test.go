package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "postings", crawler.PostingEvent{Title: "a"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "postings", crawler.PostingEvent{Title: "b"})
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "b", msgs[1].Payload.(crawler.PostingEvent).Title)

	msgs[0].Topic = "modified"
	require.Equal(t, "postings", pub.Messages()[0].Topic, "Messages must return a copy")
}

func TestPublisherFailures(t *testing.T) {
	t.Parallel()

	pub := New()
	_, err := pub.Publish(context.Background(), "", "x")
	require.Error(t, err)

	boom := errors.New("boom")
	pub.FailWith(boom)
	_, err = pub.Publish(context.Background(), "postings", "x")
	require.ErrorIs(t, err, boom)
	require.Empty(t, pub.Messages())
}
