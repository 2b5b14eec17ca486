package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRootCommandTree(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	require.NotNil(t, root.PersistentFlags().Lookup("config"))

	crawl, _, err := root.Find([]string{"crawl"})
	require.NoError(t, err)
	require.Equal(t, "crawl", crawl.Name())
	for _, flag := range []string{"keyword", "max-pages", "max-postings"} {
		require.NotNil(t, crawl.Flags().Lookup(flag), flag)
	}

	serve, _, err := root.Find([]string{"serve"})
	require.NoError(t, err)
	require.Equal(t, "serve", serve.Name())
}

func TestResolveAppRequiresInitialization(t *testing.T) {
	t.Parallel()

	_, err := resolveApp(context.Background())
	require.Error(t, err)
}

func TestRootFailsOnMissingConfig(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"crawl", "--config", t.TempDir() + "/missing.yaml"})
	root.SetOut(&discard{})
	root.SetErr(&discard{})

	err := root.ExecuteContext(context.Background())
	require.ErrorContains(t, err, "load config")
}

type discard struct{}

func (*discard) Write(p []byte) (int, error) { return len(p), nil }
