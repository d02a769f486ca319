// Package storetest holds the conformance suite every ecm.Store
// implementation must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-ecm/pkg/ecm"
)

// Suite tests the ecm.Store contract, not implementation details, so that it
// can be run against every backend.
type Suite struct {
	// NewStore returns a fresh, empty store (holding only the root node) for
	// each test.
	NewStore func(t *testing.T) ecm.Store
}

// Run executes all tests in the suite.
func (suite *Suite) Run(t *testing.T) {
	t.Run("Nodes", suite.RunNodeTests)
	t.Run("Move", suite.RunMoveTests)
	t.Run("Remove", suite.RunRemoveTests)
	t.Run("Versions", suite.RunVersionTests)
	t.Run("Types", suite.RunTypeTests)
	t.Run("Session", suite.RunSessionTests)
}

// session opens a session on a fresh store and closes it when the test ends.
func (suite *Suite) session(t *testing.T) ecm.Session {
	t.Helper()
	store := suite.NewStore(t)
	sess, err := store.Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })
	return sess
}

// folder builds an unsaved folder node.
func folder(parent, name string) *ecm.Node {
	return &ecm.Node{
		Path:       ecm.JoinPath(parent, name),
		Name:       name,
		ParentPath: parent,
		Type:       ecm.ContentTypeFolder,
		NodeType:   ecm.NodeTypeFolder,
		Mixins:     []string{ecm.MixinManaged},
		Properties: ecm.Properties{
			ViewID:    "view-" + name,
			Language:  "en",
			Active:    true,
			CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		},
	}
}

// mustCreate creates every node in order.
func mustCreate(t *testing.T, sess ecm.Session, nodes ...*ecm.Node) {
	t.Helper()
	for _, n := range nodes {
		require.NoError(t, sess.CreateNode(context.Background(), n), "create %s", n.Path)
	}
}
