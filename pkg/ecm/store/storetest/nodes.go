package storetest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-ecm/pkg/ecm"
)

func (suite *Suite) RunNodeTests(t *testing.T) {
	t.Run("RootExists", suite.TestRootExists)
	t.Run("CreateAndGet", suite.TestCreateAndGet)
	t.Run("CreateParentMissing", suite.TestCreateParentMissing)
	t.Run("CreateDuplicate", suite.TestCreateDuplicate)
	t.Run("GetMissing", suite.TestGetMissing)
	t.Run("UpdateNode", suite.TestUpdateNode)
	t.Run("ListChildrenOrder", suite.TestListChildrenOrder)
	t.Run("FindByViewID", suite.TestFindByViewID)
}

func (suite *Suite) TestRootExists(t *testing.T) {
	sess := suite.session(t)

	root, err := sess.GetNode(context.Background(), ecm.RootPath)
	require.NoError(t, err)
	assert.Equal(t, ecm.RootPath, root.Path)
	assert.Empty(t, root.ParentPath)
	assert.Empty(t, root.ChildPaths)
}

func (suite *Suite) TestCreateAndGet(t *testing.T) {
	sess := suite.session(t)
	ctx := context.Background()

	n := folder(ecm.RootPath, "radien")
	n.Properties.Tags = []string{"a", "b"}
	mustCreate(t, sess, n)
	assert.NotEqual(t, uuid.Nil, n.ID)

	got, err := sess.GetNode(ctx, "/radien")
	require.NoError(t, err)
	assert.Equal(t, n.ID, got.ID)
	assert.Equal(t, "radien", got.Name)
	assert.Equal(t, ecm.RootPath, got.ParentPath)
	assert.Equal(t, ecm.ContentTypeFolder, got.Type)
	assert.Equal(t, ecm.NodeTypeFolder, got.NodeType)
	assert.Equal(t, []string{ecm.MixinManaged}, got.Mixins)
	assert.True(t, n.Properties.Equal(got.Properties))

	root, err := sess.GetNode(ctx, ecm.RootPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"/radien"}, root.ChildPaths)
}

func (suite *Suite) TestCreateParentMissing(t *testing.T) {
	sess := suite.session(t)

	err := sess.CreateNode(context.Background(), folder("/missing", "child"))
	assert.ErrorIs(t, err, ecm.ErrParentNotFound)
}

func (suite *Suite) TestCreateDuplicate(t *testing.T) {
	sess := suite.session(t)

	mustCreate(t, sess, folder(ecm.RootPath, "a"))
	err := sess.CreateNode(context.Background(), folder(ecm.RootPath, "a"))
	assert.ErrorIs(t, err, ecm.ErrAlreadyExists)
}

func (suite *Suite) TestGetMissing(t *testing.T) {
	sess := suite.session(t)

	_, err := sess.GetNode(context.Background(), "/nope")
	assert.ErrorIs(t, err, ecm.ErrNotFound)

	_, ok, err := ecm.FindByPath(context.Background(), sess, "/nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func (suite *Suite) TestUpdateNode(t *testing.T) {
	sess := suite.session(t)
	ctx := context.Background()

	n := folder(ecm.RootPath, "doc")
	n.Mixins = append(n.Mixins, ecm.MixinVersionable)
	mustCreate(t, sess, n)

	n.Properties.Comment = "second"
	n.CheckedOut = true
	n.BaseVersion = "1.3"
	require.NoError(t, sess.UpdateNode(ctx, n))

	got, err := sess.GetNode(ctx, "/doc")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Properties.Comment)
	assert.True(t, got.CheckedOut)
	assert.Equal(t, "1.3", got.BaseVersion)
	assert.True(t, got.IsVersionable())

	missing := folder(ecm.RootPath, "ghost")
	missing.ID = uuid.New()
	assert.ErrorIs(t, sess.UpdateNode(ctx, missing), ecm.ErrNotFound)
}

func (suite *Suite) TestListChildrenOrder(t *testing.T) {
	sess := suite.session(t)
	ctx := context.Background()

	mustCreate(t, sess,
		folder(ecm.RootPath, "p"),
		folder("/p", "zeta"),
		folder("/p", "alpha"),
		folder("/p", "mid"),
		folder("/p/alpha", "deep"),
	)

	children, err := sess.ListChildren(ctx, "/p")
	require.NoError(t, err)
	var paths []string
	for _, c := range children {
		paths = append(paths, c.Path)
	}
	assert.Equal(t, []string{"/p/zeta", "/p/alpha", "/p/mid"}, paths)

	empty, err := sess.ListChildren(ctx, "/p/mid")
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = sess.ListChildren(ctx, "/absent")
	assert.ErrorIs(t, err, ecm.ErrNotFound)
}

func (suite *Suite) TestFindByViewID(t *testing.T) {
	sess := suite.session(t)
	ctx := context.Background()

	en := folder(ecm.RootPath, "en")
	de := folder(ecm.RootPath, "de")
	en.Properties.ViewID = "shared"
	de.Properties.ViewID = "shared"
	de.Properties.Language = "de"
	mustCreate(t, sess, en, de, folder(ecm.RootPath, "other"))

	nodes, err := sess.FindByViewID(ctx, "shared")
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	assert.Equal(t, "/de", nodes[0].Path)
	assert.Equal(t, "/en", nodes[1].Path)

	none, err := sess.FindByViewID(ctx, "unknown")
	require.NoError(t, err)
	assert.Empty(t, none)
}
