package badger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-ecm/pkg/ecm"
	"github.com/tendant/simple-ecm/pkg/ecm/store/badger"
	"github.com/tendant/simple-ecm/pkg/ecm/store/storetest"
)

func TestStore(t *testing.T) {
	suite := &storetest.Suite{
		NewStore: func(t *testing.T) ecm.Store {
			store, err := badger.New(badger.Config{})
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	}
	suite.Run(t)
}

func TestReopenKeepsTree(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store, err := badger.New(badger.Config{Dir: dir})
	require.NoError(t, err)

	sess, err := store.Open(ctx)
	require.NoError(t, err)
	node := &ecm.Node{
		Path:       "/kept",
		Type:       ecm.ContentTypeFolder,
		NodeType:   ecm.NodeTypeFolder,
		Properties: ecm.Properties{ViewID: "kept-view"},
	}
	require.NoError(t, sess.CreateNode(ctx, node))
	require.NoError(t, sess.AppendVersion(ctx, node.ID, &ecm.VersionRecord{Label: "1.0"}))
	require.NoError(t, sess.Close())
	require.NoError(t, store.Close())

	store, err = badger.New(badger.Config{Dir: dir})
	require.NoError(t, err)
	defer store.Close()

	sess, err = store.Open(ctx)
	require.NoError(t, err)
	defer sess.Close()

	got, err := sess.GetNode(ctx, "/kept")
	require.NoError(t, err)
	assert.Equal(t, node.ID, got.ID)

	root, err := sess.GetNode(ctx, ecm.RootPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"/kept"}, root.ChildPaths)

	nodes, err := sess.FindByViewID(ctx, "kept-view")
	require.NoError(t, err)
	assert.Len(t, nodes, 1)

	// sequence numbers keep growing across restarts
	require.NoError(t, sess.AppendVersion(ctx, node.ID, &ecm.VersionRecord{Label: "1.1"}))
	history, err := sess.ListVersions(ctx, node.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "1.0", history[0].Label)
	assert.Equal(t, "1.1", history[1].Label)
}

func TestOpenAfterClose(t *testing.T) {
	store, err := badger.New(badger.Config{})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = store.Open(context.Background())
	assert.ErrorIs(t, err, ecm.ErrStoreUnavailable)
}
