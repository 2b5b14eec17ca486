package gcs

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	bytes.Buffer
	closed   bool
	closeErr error
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func newTestStore(w *recordingWriter, got *[]string) *BlobStore {
	return &BlobStore{
		bucket: "raw-pages",
		newWriter: func(_ context.Context, bucket, object, contentType string) io.WriteCloser {
			*got = append(*got, bucket, object, contentType)
			return w
		},
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.ErrorContains(t, err, "client")
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{}
	var got []string
	uri, err := newTestStore(w, &got).PutObject(context.Background(), "detail/2025-03-14/ab/cd/abcd.html", "text/html", []byte("<html/>"))

	require.NoError(t, err)
	require.Equal(t, "gs://raw-pages/detail/2025-03-14/ab/cd/abcd.html", uri)
	require.Equal(t, []string{"raw-pages", "detail/2025-03-14/ab/cd/abcd.html", "text/html"}, got)
	require.Equal(t, "<html/>", w.String())
	require.True(t, w.closed)
}

func TestPutObjectCloseError(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{closeErr: errors.New("quota exceeded")}
	var got []string
	_, err := newTestStore(w, &got).PutObject(context.Background(), "x.html", "", []byte("x"))
	require.ErrorContains(t, err, "quota exceeded")

	_, err = newTestStore(w, &got).PutObject(context.Background(), "", "", nil)
	require.ErrorContains(t, err, "path is required")
}
