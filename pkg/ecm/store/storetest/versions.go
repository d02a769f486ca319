package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-ecm/pkg/ecm"
)

func (suite *Suite) RunVersionTests(t *testing.T) {
	t.Run("AppendAndList", suite.TestAppendAndListVersions)
	t.Run("RemoveVersion", suite.TestRemoveVersion)
	t.Run("RemoveUnknownVersion", suite.TestRemoveUnknownVersion)
}

func (suite *Suite) RunTypeTests(t *testing.T) {
	t.Run("RegisterAndList", suite.TestRegisterAndListTypes)
}

func (suite *Suite) RunSessionTests(t *testing.T) {
	t.Run("ClosedSession", suite.TestClosedSession)
	t.Run("SessionsShareState", suite.TestSessionsShareState)
}

func (suite *Suite) TestAppendAndListVersions(t *testing.T) {
	sess := suite.session(t)
	ctx := context.Background()

	n := folder(ecm.RootPath, "doc")
	mustCreate(t, sess, n)

	for _, label := range []string{"1.0", "1.1", "1.2"} {
		props := n.Properties
		props.Comment = "comment " + label
		rec := &ecm.VersionRecord{Label: label, Properties: props}
		require.NoError(t, sess.AppendVersion(ctx, n.ID, rec))
		assert.NotZero(t, rec.Seq)
	}

	history, err := sess.ListVersions(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, label := range []string{"1.0", "1.1", "1.2"} {
		assert.Equal(t, label, history[i].Label)
		assert.Equal(t, "comment "+label, history[i].Properties.Comment)
		assert.False(t, history[i].CreatedAt.IsZero())
	}
	assert.Less(t, history[0].Seq, history[1].Seq)
	assert.Less(t, history[1].Seq, history[2].Seq)
}

func (suite *Suite) TestRemoveVersion(t *testing.T) {
	sess := suite.session(t)
	ctx := context.Background()

	n := folder(ecm.RootPath, "doc")
	mustCreate(t, sess, n)
	for _, label := range []string{"1.0", "1.1", "1.2"} {
		require.NoError(t, sess.AppendVersion(ctx, n.ID, &ecm.VersionRecord{Label: label, Properties: n.Properties}))
	}

	removed, err := sess.RemoveVersion(ctx, n.ID, "1.1")
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	history, err := sess.ListVersions(ctx, n.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "1.0", history[0].Label)
	assert.Equal(t, "1.2", history[1].Label)
}

func (suite *Suite) TestRemoveUnknownVersion(t *testing.T) {
	sess := suite.session(t)
	ctx := context.Background()

	n := folder(ecm.RootPath, "doc")
	mustCreate(t, sess, n)
	require.NoError(t, sess.AppendVersion(ctx, n.ID, &ecm.VersionRecord{Label: "1.0", Properties: n.Properties}))

	removed, err := sess.RemoveVersion(ctx, n.ID, "9.9")
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
}

func (suite *Suite) TestRegisterAndListTypes(t *testing.T) {
	sess := suite.session(t)
	ctx := context.Background()

	defs, err := sess.ListTypes(ctx)
	require.NoError(t, err)
	assert.Empty(t, defs)

	require.NoError(t, sess.RegisterTypes(ctx, ecm.DefaultTypeDefinitions()))
	require.NoError(t, sess.RegisterTypes(ctx, []ecm.TypeDefinition{
		{Name: ecm.NodeTypeFolder, Properties: []string{"view_id"}},
		{Name: "custom:extra", Mixin: true},
	}))

	defs, err = sess.ListTypes(ctx)
	require.NoError(t, err)
	byName := make(map[string]ecm.TypeDefinition, len(defs))
	for _, d := range defs {
		byName[d.Name] = d
	}
	assert.Len(t, byName, len(defs), "names must be unique")
	assert.Len(t, defs, len(ecm.DefaultTypeDefinitions())+1)
	assert.Equal(t, []string{"view_id"}, byName[ecm.NodeTypeFolder].Properties)
	assert.True(t, byName["custom:extra"].Mixin)
	assert.True(t, byName[ecm.MixinVersionable].Mixin)
}

func (suite *Suite) TestClosedSession(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	sess, err := store.Open(ctx)
	require.NoError(t, err)
	require.NoError(t, sess.Close())

	_, err = sess.GetNode(ctx, ecm.RootPath)
	assert.ErrorIs(t, err, ecm.ErrStoreUnavailable)
}

func (suite *Suite) TestSessionsShareState(t *testing.T) {
	store := suite.NewStore(t)
	ctx := context.Background()

	first, err := store.Open(ctx)
	require.NoError(t, err)
	defer first.Close()
	second, err := store.Open(ctx)
	require.NoError(t, err)
	defer second.Close()

	mustCreate(t, first, folder(ecm.RootPath, "shared"))

	got, err := second.GetNode(ctx, "/shared")
	require.NoError(t, err)
	assert.Equal(t, "shared", got.Name)
}
