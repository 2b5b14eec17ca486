package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("content")
	uri, err := store.PutObject(context.Background(), "detail/2025-03-14/ab/cd/abcd.html", "text/html", payload)
	require.NoError(t, err)
	require.Equal(t, "memory://detail/2025-03-14/ab/cd/abcd.html", uri)

	payload[0] = 'C'
	stored, contentType, ok := store.Get("detail/2025-03-14/ab/cd/abcd.html")
	require.True(t, ok)
	require.Equal(t, "content", string(stored))
	require.Equal(t, "text/html", contentType)
	require.Equal(t, []string{"detail/2025-03-14/ab/cd/abcd.html"}, store.Paths())

	_, err = store.PutObject(context.Background(), " ", "", nil)
	require.Error(t, err)
}
