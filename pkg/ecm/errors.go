package ecm

import (
	"errors"
	"fmt"
)

// Error types
var (
	// ErrParentNotFound indicates the folder a node should be created under does not exist
	ErrParentNotFound = errors.New("parent not found")

	// ErrNotFound indicates a path or view id has no resolvable node
	ErrNotFound = errors.New("node not found")

	// ErrAlreadyExists indicates a node already exists at the target path
	ErrAlreadyExists = errors.New("node already exists")

	// ErrVersionNotFound indicates the version label is not in the node's history
	ErrVersionNotFound = errors.New("version not found")

	// ErrInvalidVersionDeletion indicates the deletion would leave the node without a baseline
	ErrInvalidVersionDeletion = errors.New("cannot delete the only remaining version")

	// ErrStoreUnavailable indicates a connection or transport failure in the tree store
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrEncoding indicates a node name cannot be escaped or unescaped
	ErrEncoding = errors.New("invalid node name encoding")

	// ErrNotVersionable indicates a versioning operation on non-versionable content
	ErrNotVersionable = errors.New("node is not versionable")

	// ErrNotCheckedOut indicates a commit on a node that was not checked out
	ErrNotCheckedOut = errors.New("node is not checked out")

	// ErrUnknownNodeType indicates a node type or mixin that was never registered
	ErrUnknownNodeType = errors.New("unknown node type")

	// ErrInvalidContentType indicates an unsupported content type name
	ErrInvalidContentType = errors.New("invalid content type")

	// ErrBlobNotFound indicates a payload key is missing from the blob store
	ErrBlobNotFound = errors.New("payload not found")
)

// NodeError represents an error related to a repository operation on a path
type NodeError struct {
	Path string
	Op   string
	Err  error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// StoreError represents a failure of the underlying tree store. It always
// matches ErrStoreUnavailable with errors.Is.
type StoreError struct {
	Backend string
	Op      string
	Err     error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store operation %s failed on backend %s: %v", e.Op, e.Backend, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// Is makes every StoreError match ErrStoreUnavailable.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable
}

func nodeErr(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ne *NodeError
	if errors.As(err, &ne) {
		return err
	}
	return &NodeError{Path: path, Op: op, Err: err}
}
