package ecm

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Store hands out scoped connections to the content tree.
type Store interface {
	// Open acquires a session. Callers must Close it on every exit path.
	Open(ctx context.Context) (Session, error)
}

// Session is a scoped connection to the tree store. Mutations through one
// session are applied in call order; the store serializes concurrent
// sessions itself.
type Session interface {
	// GetNode returns the node at path or ErrNotFound
	GetNode(ctx context.Context, path string) (*Node, error)

	// CreateNode inserts node under node.ParentPath. The parent must exist
	// (ErrParentNotFound) and the path must be free (ErrAlreadyExists).
	// A zero ID is replaced by a fresh one.
	CreateNode(ctx context.Context, node *Node) error

	// UpdateNode persists properties, mixins and version state of node,
	// identified by node.ID
	UpdateNode(ctx context.Context, node *Node) error

	// MoveNode relocates the subtree rooted at srcPath to dstPath atomically
	MoveNode(ctx context.Context, srcPath, dstPath string) error

	// RemoveNode deletes the subtree rooted at path together with its versions
	RemoveNode(ctx context.Context, path string) error

	// ListChildren returns the direct children of path in insertion order
	ListChildren(ctx context.Context, path string) ([]*Node, error)

	// FindByViewID returns every node whose properties carry viewID, ordered by path
	FindByViewID(ctx context.Context, viewID string) ([]*Node, error)

	// Version history operations
	AppendVersion(ctx context.Context, nodeID uuid.UUID, rec *VersionRecord) error
	ListVersions(ctx context.Context, nodeID uuid.UUID) ([]*VersionRecord, error)
	RemoveVersion(ctx context.Context, nodeID uuid.UUID, label string) (int, error)

	// Type definition registry
	RegisterTypes(ctx context.Context, defs []TypeDefinition) error
	ListTypes(ctx context.Context) ([]TypeDefinition, error)

	// Close releases the session
	Close() error
}

// BlobStore holds binary payloads referenced by node properties.
type BlobStore interface {
	// Upload stores the content of reader under key
	Upload(ctx context.Context, key string, reader io.Reader, mimeType string) error

	// Download opens the payload stored under key
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the payload stored under key
	Delete(ctx context.Context, key string) error
}

// LanguageProvider is the language/client configuration collaborator.
type LanguageProvider interface {
	// RootNodeName returns the top-level folder name of a client
	RootNodeName(client string) string

	// NodeRootFor returns the folder name, below the client root, that holds
	// content of type t
	NodeRootFor(t ContentType, client string) string

	// SupportedLanguages returns the language codes in preference order
	SupportedLanguages() []string

	// DefaultLanguage returns the language used when an item has none
	DefaultLanguage() string
}

// EventSink receives notifications about repository changes
type EventSink interface {
	// ContentSaved is fired after an item was created or updated
	ContentSaved(ctx context.Context, item *ContentItem) error

	// ContentMoved is fired after an item changed path
	ContentMoved(ctx context.Context, item *ContentItem, fromPath string) error

	// ContentDeleted is fired after a subtree was removed
	ContentDeleted(ctx context.Context, path string) error

	// VersionDeleted is fired after a version record was removed
	VersionDeleted(ctx context.Context, path, label string) error
}
