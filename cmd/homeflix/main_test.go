package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"serve", "sync", "reindex", "migrate"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}

	syncCmd, _, err := root.Find([]string{"sync"})
	require.NoError(t, err)
	for _, flag := range []string{"movie-pages", "tv-pages", "trending-pages"} {
		assert.NotNil(t, syncCmd.Flags().Lookup(flag), flag)
	}

	reindex, _, err := root.Find([]string{"reindex"})
	require.NoError(t, err)
	assert.NotNil(t, reindex.Flags().Lookup("drop"))
}
