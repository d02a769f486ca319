package ecm

import (
	"context"
	"io"
)

// Service defines the content repository operations
type Service interface {
	// Content operations
	Save(ctx context.Context, client string, item *ContentItem) error
	Load(ctx context.Context, path string) (*ContentItem, error)
	Delete(ctx context.Context, path string) error

	// Lookup operations
	ListByViewID(ctx context.Context, viewID string, activeOnly bool, language string) ([]*ContentItem, error)
	Children(ctx context.Context, viewID string) ([]*ContentItem, error)
	FolderContents(ctx context.Context, path string, deep bool) ([]*ContentItem, error)

	// Version operations
	ContentVersions(ctx context.Context, path string) ([]*VersionRecord, error)
	DeleteVersion(ctx context.Context, path, label string) error

	// Folder operations
	EnsureFolderPath(ctx context.Context, client, path string) (string, error)
	ProvisionLanguageFolders(ctx context.Context, client, parentPath, folderName string) error
	ProvisionClient(ctx context.Context, client string) error

	// RegisterTypeDefinitions loads node type and mixin definitions from a
	// YAML source. Once any are registered, Save rejects nodes that use
	// unregistered types.
	RegisterTypeDefinitions(ctx context.Context, source io.Reader) error
}
