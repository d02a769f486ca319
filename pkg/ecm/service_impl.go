package ecm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
)

// service implements the Service interface
type service struct {
	store     Store
	blobStore BlobStore
	languages LanguageProvider
	eventSink EventSink
	logger    *slog.Logger

	dispatch *dispatcher
	versions *versioner
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithStore sets the tree store for the service
func WithStore(store Store) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithBlobStore sets the backend holding binary payloads
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithLanguages sets the language/client configuration provider
func WithLanguages(languages LanguageProvider) Option {
	return func(s *service) {
		s.languages = languages
	}
}

// WithEventSink sets the event sink for the service
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		s.eventSink = sink
	}
}

// WithLogger sets the structured logger for the service
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{}

	for _, option := range options {
		option(s)
	}

	if s.store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if s.languages == nil {
		s.languages = &StaticLanguages{}
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.dispatch = &dispatcher{languages: s.languages}
	s.versions = &versioner{logger: s.logger}
	return s, nil
}

// open acquires a session; release must be deferred right after.
func (s *service) open(ctx context.Context, op string) (Session, error) {
	sess, err := s.store.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: open session: %w", op, err)
	}
	return sess, nil
}

func (s *service) release(ctx context.Context, sess Session) {
	if err := sess.Close(); err != nil {
		s.logger.WarnContext(ctx, "failed to close session", "err", err)
	}
}

// Content operations

func (s *service) Save(ctx context.Context, client string, item *ContentItem) error {
	if item == nil {
		return fmt.Errorf("save: item is required")
	}
	if _, err := ruleFor(item.Type); err != nil {
		return nodeErr("save", item.Path, err)
	}

	sess, err := s.open(ctx, "save")
	if err != nil {
		return err
	}
	defer s.release(ctx, sess)

	existing, err := s.resolveExisting(ctx, sess, item)
	if err != nil {
		return nodeErr("save", item.Path, err)
	}
	if existing == nil {
		if item.ViewID == "" {
			item.ViewID = uuid.NewString()
		}
		if item.CreatedAt.IsZero() {
			item.CreatedAt = time.Now().UTC()
		}
		if item.Language == "" {
			item.Language = s.languages.DefaultLanguage()
		}
		return s.create(ctx, sess, client, item)
	}

	// fields the caller left empty keep their stored values
	if item.ViewID == "" {
		item.ViewID = existing.Properties.ViewID
	}
	if item.Language == "" {
		item.Language = existing.Properties.Language
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = existing.Properties.CreatedAt
	}
	return s.update(ctx, sess, client, item, existing)
}

// resolveExisting finds the node an item was saved to before: by its
// explicit path first, then by view id and language. A path whose node
// carries another view id does not match.
func (s *service) resolveExisting(ctx context.Context, sess Session, item *ContentItem) (*Node, error) {
	if item.Path != "" {
		node, ok, err := FindByPath(ctx, sess, item.Path)
		if err != nil {
			return nil, err
		}
		if ok && (item.ViewID == "" || node.Properties.ViewID == item.ViewID) {
			return node, nil
		}
	}
	if item.ViewID == "" {
		return nil, nil
	}

	language := item.Language
	if language == "" {
		language = s.languages.DefaultLanguage()
	}
	nodes, err := sess.FindByViewID(ctx, item.ViewID)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if n.Properties.Language == language {
			return n, nil
		}
	}
	return nil, nil
}

func (s *service) create(ctx context.Context, sess Session, client string, item *ContentItem) error {
	parent, err := s.dispatch.resolveParent(ctx, sess, client, item)
	if err != nil {
		return nodeErr("save", item.ParentPath, err)
	}
	node, err := s.dispatch.newNode(parent, item)
	if err != nil {
		return nodeErr("save", parent.Path, err)
	}

	if _, occupied, err := FindByPath(ctx, sess, node.Path); err != nil {
		return nodeErr("save", node.Path, err)
	} else if occupied {
		s.logger.InfoContext(ctx, "node already exists, skipping creation",
			"path", node.Path, "view_id", item.ViewID)
		return nil
	}

	defs, err := sess.ListTypes(ctx)
	if err != nil {
		return nodeErr("save", node.Path, err)
	}
	if err := checkDefinitions(defs, node); err != nil {
		return nodeErr("save", node.Path, err)
	}

	node.ID = uuid.New()
	props := item.properties(Properties{})
	uploaded, err := s.storePayload(ctx, node.ID, item, &props)
	if err != nil {
		return nodeErr("save", node.Path, err)
	}

	if node.IsVersionable() {
		node.CheckedOut = true
	}
	node.Properties = props
	if err := sess.CreateNode(ctx, node); err != nil {
		s.dropPayload(ctx, uploaded)
		if errors.Is(err, ErrAlreadyExists) {
			s.logger.InfoContext(ctx, "node already exists, skipping creation",
				"path", node.Path, "view_id", item.ViewID)
			return nil
		}
		return nodeErr("save", node.Path, err)
	}

	if node.IsVersionable() {
		if _, err := s.versions.commit(ctx, sess, node, props, item.Version); err != nil {
			// a versionable node never stays behind without a first version
			if rmErr := sess.RemoveNode(ctx, node.Path); rmErr != nil {
				s.logger.WarnContext(ctx, "failed to remove node after failed checkin",
					"path", node.Path, "err", rmErr)
			} else {
				s.dropPayload(ctx, uploaded)
			}
			return nodeErr("save", node.Path, err)
		}
	}

	item.Path = node.Path
	item.ParentPath = node.ParentPath
	item.Version = node.BaseVersion
	if item.Binary != nil {
		item.Binary.Size = props.Size
		item.Binary.MimeType = props.MimeType
	}

	if item.Type == ContentTypeFolder {
		name, _ := UnescapeName(node.Name)
		if err := s.provisionLanguageFolders(ctx, sess, client, node.ParentPath, name); err != nil {
			return nodeErr("save", node.Path, err)
		}
	}

	if err := s.eventSink.ContentSaved(ctx, item); err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", "content_saved", "path", item.Path, "err", err)
	}
	return nil
}

func (s *service) update(ctx context.Context, sess Session, client string, item *ContentItem, node *Node) error {
	fromPath := node.Path

	targetParent := node.ParentPath
	if item.ParentPath != "" {
		targetParent = CleanPath(item.ParentPath)
	}
	name, err := EscapeName(item.Name)
	if err != nil {
		return nodeErr("save", node.Path, err)
	}
	targetPath := JoinPath(targetParent, name)

	move := targetPath != node.Path
	if move {
		if move, err = s.canMove(ctx, sess, node, targetPath); err != nil {
			return nodeErr("save", node.Path, err)
		}
	}

	props := item.properties(node.Properties)
	previousKey := node.Properties.BlobKey
	uploaded, err := s.storePayload(ctx, node.ID, item, &props)
	if err != nil {
		return nodeErr("save", node.Path, err)
	}

	if !move && props.Equal(node.Properties) {
		s.logger.DebugContext(ctx, "content unchanged, nothing to save", "path", node.Path)
		s.syncItem(item, node)
		return nil
	}

	if node.IsVersionable() {
		if err := s.versions.beginEdit(ctx, sess, node); err != nil {
			s.dropPayload(ctx, uploaded)
			return nodeErr("save", node.Path, err)
		}
		if move {
			if err := s.move(ctx, sess, node, targetPath); err != nil {
				s.dropPayload(ctx, uploaded)
				return nodeErr("save", node.Path, err)
			}
		}
		if _, err := s.versions.commit(ctx, sess, node, props, item.Version); err != nil {
			return nodeErr("save", node.Path, err)
		}
	} else {
		node.Properties = props
		if err := sess.UpdateNode(ctx, node); err != nil {
			s.dropPayload(ctx, uploaded)
			return nodeErr("save", node.Path, err)
		}
		if move {
			if err := s.move(ctx, sess, node, targetPath); err != nil {
				return nodeErr("save", node.Path, err)
			}
		}
		if uploaded != "" && previousKey != "" {
			s.dropPayload(ctx, previousKey)
		}
	}

	s.syncItem(item, node)

	if err := s.eventSink.ContentSaved(ctx, item); err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", "content_saved", "path", item.Path, "err", err)
	}
	if move {
		if err := s.eventSink.ContentMoved(ctx, item, fromPath); err != nil {
			s.logger.WarnContext(ctx, "event sink failed", "event", "content_moved", "path", item.Path, "err", err)
		}
	}
	return nil
}

// canMove reports whether node can be moved to targetPath. An occupied
// target is not an error: the move is skipped and the save goes on.
func (s *service) canMove(ctx context.Context, sess Session, node *Node, targetPath string) (bool, error) {
	if IsDescendant(targetPath, node.Path) {
		return false, fmt.Errorf("cannot move %s below itself", node.Path)
	}
	parentPath, _ := SplitParent(targetPath)
	if _, ok, err := FindByPath(ctx, sess, parentPath); err != nil {
		return false, err
	} else if !ok {
		return false, &NodeError{Path: parentPath, Op: "move", Err: ErrParentNotFound}
	}
	if _, occupied, err := FindByPath(ctx, sess, targetPath); err != nil {
		return false, err
	} else if occupied {
		s.logger.InfoContext(ctx, "move target already exists, skipping move",
			"from", node.Path, "to", targetPath)
		return false, nil
	}
	return true, nil
}

func (s *service) move(ctx context.Context, sess Session, node *Node, targetPath string) error {
	if err := sess.MoveNode(ctx, node.Path, targetPath); err != nil {
		return err
	}
	node.ParentPath, node.Name = SplitParent(targetPath)
	node.Path = targetPath
	return nil
}

// syncItem copies the post-save location and baseline back onto item.
func (s *service) syncItem(item *ContentItem, node *Node) {
	item.Path = node.Path
	item.ParentPath = node.ParentPath
	item.Version = node.BaseVersion
	if item.Binary != nil {
		item.Binary.Size = node.Properties.Size
		item.Binary.MimeType = node.Properties.MimeType
	}
}

// storePayload uploads the item's binary payload when it differs from the
// one props already references and points props at it. It returns the key
// of the new upload, or "" when nothing was uploaded.
func (s *service) storePayload(ctx context.Context, nodeID uuid.UUID, item *ContentItem, props *Properties) (string, error) {
	if item.Binary == nil || item.Binary.Data == nil {
		return "", nil
	}
	sum := sha256.Sum256(item.Binary.Data)
	checksum := hex.EncodeToString(sum[:])
	if checksum == props.Checksum && props.BlobKey != "" {
		return "", nil
	}
	if s.blobStore == nil {
		return "", fmt.Errorf("item carries a binary payload but no blob store is configured")
	}

	key := fmt.Sprintf("nodes/%s/%s", nodeID, uuid.NewString())
	if err := s.blobStore.Upload(ctx, key, bytes.NewReader(item.Binary.Data), item.Binary.MimeType); err != nil {
		return "", fmt.Errorf("upload payload: %w", err)
	}
	props.BlobKey = key
	props.Checksum = checksum
	props.MimeType = item.Binary.MimeType
	props.Size = int64(len(item.Binary.Data))
	return key, nil
}

// dropPayload deletes a payload that is no longer referenced. Failures are
// logged only.
func (s *service) dropPayload(ctx context.Context, key string) {
	if key == "" || s.blobStore == nil {
		return
	}
	if err := s.blobStore.Delete(ctx, key); err != nil && !errors.Is(err, ErrBlobNotFound) {
		s.logger.WarnContext(ctx, "failed to delete payload", "key", key, "err", err)
	}
}

func (s *service) Load(ctx context.Context, path string) (*ContentItem, error) {
	sess, err := s.open(ctx, "load")
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, sess)

	node, err := sess.GetNode(ctx, CleanPath(path))
	if err != nil {
		return nil, nodeErr("load", path, err)
	}
	item, err := itemFromNode(node)
	if err != nil {
		return nil, nodeErr("load", path, err)
	}

	if key := node.Properties.BlobKey; key != "" {
		if s.blobStore == nil {
			return nil, nodeErr("load", path, fmt.Errorf("node references a payload but no blob store is configured"))
		}
		rc, err := s.blobStore.Download(ctx, key)
		if err != nil {
			return nil, nodeErr("load", path, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, nodeErr("load", path, fmt.Errorf("read payload: %w", err))
		}
		item.Binary.Data = data
	}
	return item, nil
}

func (s *service) Delete(ctx context.Context, path string) error {
	path = CleanPath(path)
	if path == RootPath {
		return nodeErr("delete", path, fmt.Errorf("the root node cannot be deleted"))
	}

	sess, err := s.open(ctx, "delete")
	if err != nil {
		return err
	}
	defer s.release(ctx, sess)

	node, err := sess.GetNode(ctx, path)
	if err != nil {
		return nodeErr("delete", path, err)
	}

	var keys []string
	if s.blobStore != nil {
		if keys, err = s.payloadKeys(ctx, sess, node); err != nil {
			return nodeErr("delete", path, err)
		}
	}

	if err := sess.RemoveNode(ctx, path); err != nil {
		return nodeErr("delete", path, err)
	}
	for _, key := range keys {
		s.dropPayload(ctx, key)
	}

	if err := s.eventSink.ContentDeleted(ctx, path); err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", "content_deleted", "path", path, "err", err)
	}
	return nil
}

// payloadKeys collects every blob key referenced by the subtree rooted at
// node, including version records.
func (s *service) payloadKeys(ctx context.Context, sess Session, node *Node) ([]string, error) {
	var keys []string
	add := func(k string) {
		if k != "" && !slices.Contains(keys, k) {
			keys = append(keys, k)
		}
	}

	var walk func(n *Node) error
	walk = func(n *Node) error {
		add(n.Properties.BlobKey)
		if n.IsVersionable() {
			history, err := sess.ListVersions(ctx, n.ID)
			if err != nil {
				return err
			}
			for _, rec := range history {
				add(rec.Properties.BlobKey)
			}
		}
		children, err := sess.ListChildren(ctx, n.Path)
		if err != nil {
			return err
		}
		for _, c := range children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(node); err != nil {
		return nil, err
	}
	return keys, nil
}

// Lookup operations

func (s *service) ListByViewID(ctx context.Context, viewID string, activeOnly bool, language string) ([]*ContentItem, error) {
	sess, err := s.open(ctx, "list_by_view_id")
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, sess)

	nodes, err := sess.FindByViewID(ctx, viewID)
	if err != nil {
		return nil, fmt.Errorf("list_by_view_id %s: %w", viewID, err)
	}

	items := make([]*ContentItem, 0, len(nodes))
	for _, n := range nodes {
		if activeOnly && !n.Properties.Active {
			continue
		}
		if language != "" && n.Properties.Language != language {
			continue
		}
		item, err := itemFromNode(n)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping node with undecodable name", "path", n.Path, "err", err)
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *service) Children(ctx context.Context, viewID string) ([]*ContentItem, error) {
	sess, err := s.open(ctx, "children")
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, sess)

	nodes, err := sess.FindByViewID(ctx, viewID)
	if err != nil {
		return nil, fmt.Errorf("children %s: %w", viewID, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("children %s: %w", viewID, ErrNotFound)
	}

	root := nodes[0]
	def := s.languages.DefaultLanguage()
	if i := slices.IndexFunc(nodes, func(n *Node) bool { return n.Properties.Language == def }); i >= 0 {
		root = nodes[i]
	}

	items := []*ContentItem{}
	if err := s.collect(ctx, sess, root.Path, true, true, &items); err != nil {
		return nil, nodeErr("children", root.Path, err)
	}
	return items, nil
}

func (s *service) FolderContents(ctx context.Context, path string, deep bool) ([]*ContentItem, error) {
	sess, err := s.open(ctx, "folder_contents")
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, sess)

	path = CleanPath(path)
	if _, err := sess.GetNode(ctx, path); err != nil {
		return nil, nodeErr("folder_contents", path, err)
	}

	items := []*ContentItem{}
	if err := s.collect(ctx, sess, path, deep, false, &items); err != nil {
		return nil, nodeErr("folder_contents", path, err)
	}
	return items, nil
}

// collect appends the children of path to out in depth-first order.
func (s *service) collect(ctx context.Context, sess Session, path string, deep, skipSystem bool, out *[]*ContentItem) error {
	children, err := sess.ListChildren(ctx, path)
	if err != nil {
		return err
	}
	for _, c := range children {
		if skipSystem && c.Properties.System {
			continue
		}
		item, err := itemFromNode(c)
		if err != nil {
			s.logger.WarnContext(ctx, "skipping node with undecodable name", "path", c.Path, "err", err)
			continue
		}
		*out = append(*out, item)
		if deep {
			if err := s.collect(ctx, sess, c.Path, deep, skipSystem, out); err != nil {
				return err
			}
		}
	}
	return nil
}

// Version operations

func (s *service) ContentVersions(ctx context.Context, path string) ([]*VersionRecord, error) {
	sess, err := s.open(ctx, "content_versions")
	if err != nil {
		return nil, err
	}
	defer s.release(ctx, sess)

	node, err := sess.GetNode(ctx, CleanPath(path))
	if err != nil {
		return nil, nodeErr("content_versions", path, err)
	}
	if !node.IsVersionable() {
		return []*VersionRecord{}, nil
	}
	history, err := s.versions.listVersions(ctx, sess, node)
	if err != nil {
		return nil, nodeErr("content_versions", path, err)
	}
	return history, nil
}

func (s *service) DeleteVersion(ctx context.Context, path, label string) error {
	sess, err := s.open(ctx, "delete_version")
	if err != nil {
		return err
	}
	defer s.release(ctx, sess)

	node, err := sess.GetNode(ctx, CleanPath(path))
	if err != nil {
		return nodeErr("delete_version", path, err)
	}

	var removedKey string
	if node.IsVersionable() {
		history, err := sess.ListVersions(ctx, node.ID)
		if err != nil {
			return nodeErr("delete_version", path, err)
		}
		if i := slices.IndexFunc(history, func(r *VersionRecord) bool { return r.Label == label }); i >= 0 {
			removedKey = history[i].Properties.BlobKey
		}
	}

	n, err := s.versions.deleteVersion(ctx, sess, node, label)
	if err != nil {
		return nodeErr("delete_version", path, err)
	}
	if n == 0 {
		return nodeErr("delete_version", path, fmt.Errorf("%w: %s", ErrVersionNotFound, label))
	}

	if removedKey != "" && s.blobStore != nil {
		if keys, err := s.payloadKeys(ctx, sess, node); err != nil {
			s.logger.WarnContext(ctx, "failed to collect payload references", "path", node.Path, "err", err)
		} else if !slices.Contains(keys, removedKey) {
			s.dropPayload(ctx, removedKey)
		}
	}

	if err := s.eventSink.VersionDeleted(ctx, node.Path, label); err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", "version_deleted", "path", node.Path, "err", err)
	}
	return nil
}

// Folder operations

func (s *service) EnsureFolderPath(ctx context.Context, client, path string) (string, error) {
	sess, err := s.open(ctx, "ensure_folder_path")
	if err != nil {
		return "", err
	}
	defer s.release(ctx, sess)

	current := s.dispatch.typeRoot(ContentTypeFolder, client)
	if _, ok, err := FindByPath(ctx, sess, current); err != nil {
		return "", nodeErr("ensure_folder_path", current, err)
	} else if !ok {
		return "", &NodeError{Path: current, Op: "ensure_folder_path", Err: ErrParentNotFound}
	}

	for _, raw := range Segments(path) {
		seg, err := EscapeName(raw)
		if err != nil {
			return "", nodeErr("ensure_folder_path", path, err)
		}
		next := JoinPath(current, seg)
		_, ok, err := FindByPath(ctx, sess, next)
		if err != nil {
			return "", nodeErr("ensure_folder_path", next, err)
		}
		if !ok {
			if _, err := s.createFolder(ctx, sess, current, raw); err != nil && !errors.Is(err, ErrAlreadyExists) {
				return "", nodeErr("ensure_folder_path", next, err)
			}
			s.logger.DebugContext(ctx, "created folder", "path", next)
		}
		current = next
	}
	return path, nil
}

// createFolder creates a managed folder named name below parentPath.
func (s *service) createFolder(ctx context.Context, sess Session, parentPath, name string) (*Node, error) {
	seg, err := EscapeName(name)
	if err != nil {
		return nil, err
	}
	node := &Node{
		Path:       JoinPath(parentPath, seg),
		Name:       seg,
		ParentPath: CleanPath(parentPath),
		Type:       ContentTypeFolder,
		NodeType:   NodeTypeFolder,
		Mixins:     []string{MixinManaged},
		Properties: Properties{
			ViewID:    uuid.NewString(),
			Language:  s.languages.DefaultLanguage(),
			Active:    true,
			CreatedAt: time.Now().UTC(),
		},
	}
	if err := sess.CreateNode(ctx, node); err != nil {
		return nil, err
	}
	return node, nil
}

func (s *service) RegisterTypeDefinitions(ctx context.Context, source io.Reader) error {
	defs, err := ParseTypeDefinitions(source)
	if err != nil {
		return err
	}

	sess, err := s.open(ctx, "register_type_definitions")
	if err != nil {
		return err
	}
	defer s.release(ctx, sess)

	if err := sess.RegisterTypes(ctx, defs); err != nil {
		return fmt.Errorf("register_type_definitions: %w", err)
	}
	s.logger.InfoContext(ctx, "registered type definitions", "count", len(defs))
	return nil
}
