package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-ecm/pkg/ecm"
)

var errSessionClosed = errors.New("session closed")

// entry is one arena slot. Children are kept by id so that moves only touch
// the path index.
type entry struct {
	node     *ecm.Node
	children []uuid.UUID
}

// Store implements ecm.Store as an arena of nodes keyed by id with a path
// index kept up to date on create, move and remove.
type Store struct {
	mu        sync.RWMutex
	nodes     map[uuid.UUID]*entry
	paths     map[string]uuid.UUID
	versions  map[uuid.UUID][]*ecm.VersionRecord
	types     map[string]ecm.TypeDefinition
	typeOrder []string
	seq       int64

	openSessions atomic.Int64
}

// New creates a new in-memory store holding only the root node
func New() *Store {
	s := &Store{
		nodes:    make(map[uuid.UUID]*entry),
		paths:    make(map[string]uuid.UUID),
		versions: make(map[uuid.UUID][]*ecm.VersionRecord),
		types:    make(map[string]ecm.TypeDefinition),
	}
	now := time.Now().UTC()
	root := &ecm.Node{
		ID:         uuid.New(),
		Path:       ecm.RootPath,
		Type:       ecm.ContentTypeFolder,
		NodeType:   ecm.NodeTypeRoot,
		Properties: ecm.Properties{Active: true, CreatedAt: now},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	s.nodes[root.ID] = &entry{node: root}
	s.paths[root.Path] = root.ID
	return s
}

// Open returns a new session. Sessions share the store's state.
func (s *Store) Open(ctx context.Context) (ecm.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ecm.StoreError{Backend: "memory", Op: "open", Err: err}
	}
	s.openSessions.Add(1)
	return &session{store: s}, nil
}

// OpenSessions returns the number of sessions not yet closed.
func (s *Store) OpenSessions() int64 {
	return s.openSessions.Load()
}

// Close is a no-op; it lets the store stand in wherever an io.Closer is expected.
func (s *Store) Close() error {
	return nil
}

// export returns a copy of the entry's node with its child paths filled in.
// Callers must hold s.mu.
func (s *Store) export(e *entry) *ecm.Node {
	n := e.node.Clone()
	n.ChildPaths = make([]string, 0, len(e.children))
	for _, id := range e.children {
		n.ChildPaths = append(n.ChildPaths, s.nodes[id].node.Path)
	}
	return n
}

func (s *Store) lookup(path string) (*entry, bool) {
	id, ok := s.paths[ecm.CleanPath(path)]
	if !ok {
		return nil, false
	}
	return s.nodes[id], true
}

// subtree returns the ids of the node and all its descendants, parents first.
func (s *Store) subtree(id uuid.UUID) []uuid.UUID {
	ids := []uuid.UUID{id}
	for i := 0; i < len(ids); i++ {
		ids = append(ids, s.nodes[ids[i]].children...)
	}
	return ids
}

func (s *Store) detach(parentPath string, id uuid.UUID) {
	parent, ok := s.lookup(parentPath)
	if !ok {
		return
	}
	for i, c := range parent.children {
		if c == id {
			parent.children = append(parent.children[:i], parent.children[i+1:]...)
			return
		}
	}
}

// session is a handle on the shared store
type session struct {
	store  *Store
	closed atomic.Bool
}

func (ss *session) check(op string) error {
	if ss.closed.Load() {
		return &ecm.StoreError{Backend: "memory", Op: op, Err: errSessionClosed}
	}
	return nil
}

func (ss *session) Close() error {
	if ss.closed.CompareAndSwap(false, true) {
		ss.store.openSessions.Add(-1)
	}
	return nil
}

func (ss *session) GetNode(ctx context.Context, path string) (*ecm.Node, error) {
	if err := ss.check("get_node"); err != nil {
		return nil, err
	}
	s := ss.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.lookup(path)
	if !ok {
		return nil, ecm.ErrNotFound
	}
	return s.export(e), nil
}

func (ss *session) CreateNode(ctx context.Context, node *ecm.Node) error {
	if err := ss.check("create_node"); err != nil {
		return err
	}
	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()

	path := ecm.CleanPath(node.Path)
	parentPath, name := ecm.SplitParent(path)
	if path == ecm.RootPath {
		return ecm.ErrAlreadyExists
	}
	parent, ok := s.lookup(parentPath)
	if !ok {
		return ecm.ErrParentNotFound
	}
	if _, exists := s.paths[path]; exists {
		return ecm.ErrAlreadyExists
	}
	if node.ID == uuid.Nil {
		node.ID = uuid.New()
	}
	if _, exists := s.nodes[node.ID]; exists {
		return ecm.ErrAlreadyExists
	}

	now := time.Now().UTC()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	node.UpdatedAt = now
	node.Path = path
	node.ParentPath = parentPath
	node.Name = name

	stored := node.Clone()
	stored.ChildPaths = nil
	s.nodes[node.ID] = &entry{node: stored}
	s.paths[path] = node.ID
	parent.children = append(parent.children, node.ID)
	return nil
}

func (ss *session) UpdateNode(ctx context.Context, node *ecm.Node) error {
	if err := ss.check("update_node"); err != nil {
		return err
	}
	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.nodes[node.ID]
	if !ok {
		return ecm.ErrNotFound
	}
	node.UpdatedAt = time.Now().UTC()
	e.node.NodeType = node.NodeType
	e.node.Mixins = append([]string(nil), node.Mixins...)
	e.node.Properties = node.Properties.Clone()
	e.node.CheckedOut = node.CheckedOut
	e.node.BaseVersion = node.BaseVersion
	e.node.UpdatedAt = node.UpdatedAt
	return nil
}

func (ss *session) MoveNode(ctx context.Context, srcPath, dstPath string) error {
	if err := ss.check("move_node"); err != nil {
		return err
	}
	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()

	srcPath, dstPath = ecm.CleanPath(srcPath), ecm.CleanPath(dstPath)
	if srcPath == ecm.RootPath {
		return fmt.Errorf("cannot move the root node")
	}
	if ecm.IsDescendant(dstPath, srcPath) {
		return fmt.Errorf("cannot move %s below itself", srcPath)
	}
	src, ok := s.lookup(srcPath)
	if !ok {
		return ecm.ErrNotFound
	}
	dstParentPath, _ := ecm.SplitParent(dstPath)
	dstParent, ok := s.lookup(dstParentPath)
	if !ok {
		return ecm.ErrParentNotFound
	}
	if _, exists := s.paths[dstPath]; exists {
		return ecm.ErrAlreadyExists
	}

	s.detach(src.node.ParentPath, src.node.ID)
	dstParent.children = append(dstParent.children, src.node.ID)

	now := time.Now().UTC()
	for _, id := range s.subtree(src.node.ID) {
		n := s.nodes[id].node
		delete(s.paths, n.Path)
		n.Path = dstPath + strings.TrimPrefix(n.Path, srcPath)
		n.ParentPath, n.Name = ecm.SplitParent(n.Path)
		n.UpdatedAt = now
		s.paths[n.Path] = id
	}
	return nil
}

func (ss *session) RemoveNode(ctx context.Context, path string) error {
	if err := ss.check("remove_node"); err != nil {
		return err
	}
	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()

	path = ecm.CleanPath(path)
	if path == ecm.RootPath {
		return fmt.Errorf("cannot remove the root node")
	}
	e, ok := s.lookup(path)
	if !ok {
		return ecm.ErrNotFound
	}

	s.detach(e.node.ParentPath, e.node.ID)
	for _, id := range s.subtree(e.node.ID) {
		delete(s.paths, s.nodes[id].node.Path)
		delete(s.versions, id)
		delete(s.nodes, id)
	}
	return nil
}

func (ss *session) ListChildren(ctx context.Context, path string) ([]*ecm.Node, error) {
	if err := ss.check("list_children"); err != nil {
		return nil, err
	}
	s := ss.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.lookup(path)
	if !ok {
		return nil, ecm.ErrNotFound
	}
	result := make([]*ecm.Node, 0, len(e.children))
	for _, id := range e.children {
		result = append(result, s.export(s.nodes[id]))
	}
	return result, nil
}

func (ss *session) FindByViewID(ctx context.Context, viewID string) ([]*ecm.Node, error) {
	if err := ss.check("find_by_view_id"); err != nil {
		return nil, err
	}
	s := ss.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*ecm.Node{}
	if viewID == "" {
		return result, nil
	}
	for _, e := range s.nodes {
		if e.node.Properties.ViewID == viewID {
			result = append(result, s.export(e))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Path < result[j].Path
	})
	return result, nil
}

// Version operations

func (ss *session) AppendVersion(ctx context.Context, nodeID uuid.UUID, rec *ecm.VersionRecord) error {
	if err := ss.check("append_version"); err != nil {
		return err
	}
	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[nodeID]; !ok {
		return ecm.ErrNotFound
	}
	s.seq++
	rec.Seq = s.seq
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	stored := *rec
	stored.Properties = rec.Properties.Clone()
	s.versions[nodeID] = append(s.versions[nodeID], &stored)
	return nil
}

func (ss *session) ListVersions(ctx context.Context, nodeID uuid.UUID) ([]*ecm.VersionRecord, error) {
	if err := ss.check("list_versions"); err != nil {
		return nil, err
	}
	s := ss.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.nodes[nodeID]; !ok {
		return nil, ecm.ErrNotFound
	}
	history := s.versions[nodeID]
	result := make([]*ecm.VersionRecord, 0, len(history))
	for _, rec := range history {
		c := *rec
		c.Properties = rec.Properties.Clone()
		result = append(result, &c)
	}
	return result, nil
}

func (ss *session) RemoveVersion(ctx context.Context, nodeID uuid.UUID, label string) (int, error) {
	if err := ss.check("remove_version"); err != nil {
		return 0, err
	}
	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.versions[nodeID]
	kept := history[:0]
	removed := 0
	for _, rec := range history {
		if rec.Label == label {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	s.versions[nodeID] = kept
	return removed, nil
}

// Type definition operations

func (ss *session) RegisterTypes(ctx context.Context, defs []ecm.TypeDefinition) error {
	if err := ss.check("register_types"); err != nil {
		return err
	}
	s := ss.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, d := range defs {
		if _, exists := s.types[d.Name]; !exists {
			s.typeOrder = append(s.typeOrder, d.Name)
		}
		s.types[d.Name] = d
	}
	return nil
}

func (ss *session) ListTypes(ctx context.Context) ([]ecm.TypeDefinition, error) {
	if err := ss.check("list_types"); err != nil {
		return nil, err
	}
	s := ss.store
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ecm.TypeDefinition, 0, len(s.typeOrder))
	for _, name := range s.typeOrder {
		result = append(result, s.types[name])
	}
	return result, nil
}
