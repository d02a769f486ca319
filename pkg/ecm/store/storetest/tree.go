package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-ecm/pkg/ecm"
)

func (suite *Suite) RunMoveTests(t *testing.T) {
	t.Run("MoveRewritesDescendants", suite.TestMoveRewritesDescendants)
	t.Run("MoveKeepsVersions", suite.TestMoveKeepsVersions)
	t.Run("MoveOntoOccupiedPath", suite.TestMoveOntoOccupiedPath)
	t.Run("MoveBelowItself", suite.TestMoveBelowItself)
	t.Run("MoveTargetParentMissing", suite.TestMoveTargetParentMissing)
}

func (suite *Suite) RunRemoveTests(t *testing.T) {
	t.Run("RemoveSubtree", suite.TestRemoveSubtree)
	t.Run("RemoveMissing", suite.TestRemoveMissing)
}

func (suite *Suite) TestMoveRewritesDescendants(t *testing.T) {
	sess := suite.session(t)
	ctx := context.Background()

	mustCreate(t, sess,
		folder(ecm.RootPath, "a"),
		folder(ecm.RootPath, "b"),
		folder("/a", "x"),
		folder("/a/x", "y"),
		folder("/a", "xy"),
	)

	require.NoError(t, sess.MoveNode(ctx, "/a/x", "/b/renamed"))

	moved, err := sess.GetNode(ctx, "/b/renamed")
	require.NoError(t, err)
	assert.Equal(t, "renamed", moved.Name)
	assert.Equal(t, "/b", moved.ParentPath)
	assert.Equal(t, []string{"/b/renamed/y"}, moved.ChildPaths)

	child, err := sess.GetNode(ctx, "/b/renamed/y")
	require.NoError(t, err)
	assert.Equal(t, "/b/renamed", child.ParentPath)

	for _, old := range []string{"/a/x", "/a/x/y"} {
		_, err := sess.GetNode(ctx, old)
		assert.ErrorIs(t, err, ecm.ErrNotFound, old)
	}

	// a sibling sharing the name prefix stays put
	_, err = sess.GetNode(ctx, "/a/xy")
	require.NoError(t, err)

	a, err := sess.GetNode(ctx, "/a")
	require.NoError(t, err)
	assert.Equal(t, []string{"/a/xy"}, a.ChildPaths)
}

func (suite *Suite) TestMoveKeepsVersions(t *testing.T) {
	sess := suite.session(t)
	ctx := context.Background()

	n := folder(ecm.RootPath, "doc")
	mustCreate(t, sess, n, folder(ecm.RootPath, "dst"))
	require.NoError(t, sess.AppendVersion(ctx, n.ID, &ecm.VersionRecord{Label: "1.0", Properties: n.Properties}))

	require.NoError(t, sess.MoveNode(ctx, "/doc", "/dst/doc"))

	moved, err := sess.GetNode(ctx, "/dst/doc")
	require.NoError(t, err)
	assert.Equal(t, n.ID, moved.ID)

	history, err := sess.ListVersions(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "1.0", history[0].Label)
}

func (suite *Suite) TestMoveOntoOccupiedPath(t *testing.T) {
	sess := suite.session(t)

	mustCreate(t, sess, folder(ecm.RootPath, "a"), folder(ecm.RootPath, "b"))
	err := sess.MoveNode(context.Background(), "/a", "/b")
	assert.ErrorIs(t, err, ecm.ErrAlreadyExists)
}

func (suite *Suite) TestMoveBelowItself(t *testing.T) {
	sess := suite.session(t)
	ctx := context.Background()

	mustCreate(t, sess, folder(ecm.RootPath, "a"))
	assert.Error(t, sess.MoveNode(ctx, "/a", "/a/inner"))

	_, err := sess.GetNode(ctx, "/a")
	assert.NoError(t, err)
}

func (suite *Suite) TestMoveTargetParentMissing(t *testing.T) {
	sess := suite.session(t)

	mustCreate(t, sess, folder(ecm.RootPath, "a"))
	err := sess.MoveNode(context.Background(), "/a", "/missing/a")
	assert.ErrorIs(t, err, ecm.ErrParentNotFound)
}

func (suite *Suite) TestRemoveSubtree(t *testing.T) {
	sess := suite.session(t)
	ctx := context.Background()

	top := folder(ecm.RootPath, "top")
	leaf := folder("/top", "leaf")
	leaf.Properties.ViewID = "leaf-view"
	mustCreate(t, sess, top, leaf, folder(ecm.RootPath, "keep"))
	require.NoError(t, sess.AppendVersion(ctx, leaf.ID, &ecm.VersionRecord{Label: "1.0", Properties: leaf.Properties}))

	require.NoError(t, sess.RemoveNode(ctx, "/top"))

	for _, p := range []string{"/top", "/top/leaf"} {
		_, err := sess.GetNode(ctx, p)
		assert.ErrorIs(t, err, ecm.ErrNotFound, p)
	}
	nodes, err := sess.FindByViewID(ctx, "leaf-view")
	require.NoError(t, err)
	assert.Empty(t, nodes)

	root, err := sess.GetNode(ctx, ecm.RootPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"/keep"}, root.ChildPaths)

	// the path can be reused
	mustCreate(t, sess, folder(ecm.RootPath, "top"))
}

func (suite *Suite) TestRemoveMissing(t *testing.T) {
	sess := suite.session(t)

	err := sess.RemoveNode(context.Background(), "/nope")
	assert.ErrorIs(t, err, ecm.ErrNotFound)
}
