// Package badger implements ecm.Store on top of BadgerDB, an embedded
// key-value store. Every session call runs in its own Badger transaction;
// moves and removals touch the whole subtree inside a single update.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/tendant/simple-ecm/pkg/ecm"
)

const backendName = "badger"

var (
	errSessionClosed = errors.New("session closed")
	errInvalidPath   = errors.New("invalid path")
)

// nodeRecord is the persisted form of a node. Children are kept by id in
// insertion order.
type nodeRecord struct {
	Node     ecm.Node    `json:"node"`
	Children []uuid.UUID `json:"children,omitempty"`
}

// Config contains configuration for opening a Badger-backed store
type Config struct {
	// Dir is the directory holding the database files. Empty runs Badger
	// fully in memory.
	Dir string

	// Options overrides the Badger options derived from Dir when set
	Options *badger.Options
}

// Store implements ecm.Store using BadgerDB
type Store struct {
	db      *badger.DB
	version *badger.Sequence
}

// New opens (or creates) the database and makes sure the root node exists
func New(cfg Config) (*Store, error) {
	var opts badger.Options
	if cfg.Options != nil {
		opts = *cfg.Options
	} else {
		opts = badger.DefaultOptions(cfg.Dir).WithLoggingLevel(badger.WARNING)
		if cfg.Dir == "" {
			opts = opts.WithInMemory(true)
		}
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, &ecm.StoreError{Backend: backendName, Op: "open", Err: err}
	}
	seq, err := db.GetSequence([]byte(keyVersionSeq), 64)
	if err != nil {
		db.Close()
		return nil, &ecm.StoreError{Backend: backendName, Op: "open", Err: err}
	}

	s := &Store{db: db, version: seq}
	if err := s.ensureRoot(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureRoot() error {
	return s.update("ensure_root", func(txn *badger.Txn) error {
		if _, err := txn.Get(keyPath(ecm.RootPath)); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		now := time.Now().UTC()
		rec := &nodeRecord{Node: ecm.Node{
			ID:         uuid.New(),
			Path:       ecm.RootPath,
			Type:       ecm.ContentTypeFolder,
			NodeType:   ecm.NodeTypeRoot,
			Properties: ecm.Properties{Active: true, CreatedAt: now},
			CreatedAt:  now,
			UpdatedAt:  now,
		}}
		if err := putRecord(txn, rec); err != nil {
			return err
		}
		return txn.Set(keyPath(ecm.RootPath), []byte(rec.Node.ID.String()))
	})
}

// Close releases the version sequence and closes the database
func (s *Store) Close() error {
	if err := s.version.Release(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}

// Open returns a session on the database
func (s *Store) Open(ctx context.Context) (ecm.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &ecm.StoreError{Backend: backendName, Op: "open", Err: err}
	}
	if s.db.IsClosed() {
		return nil, &ecm.StoreError{Backend: backendName, Op: "open", Err: badger.ErrDBClosed}
	}
	return &session{store: s}, nil
}

func (s *Store) view(op string, fn func(txn *badger.Txn) error) error {
	return classify(op, s.db.View(fn))
}

func (s *Store) update(op string, fn func(txn *badger.Txn) error) error {
	return classify(op, s.db.Update(fn))
}

// classify passes repository errors through and reports everything else as
// a store failure.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ecm.ErrNotFound),
		errors.Is(err, ecm.ErrAlreadyExists),
		errors.Is(err, ecm.ErrParentNotFound),
		errors.Is(err, errInvalidPath):
		return err
	}
	return &ecm.StoreError{Backend: backendName, Op: op, Err: err}
}

// Transaction helpers

func getRecord(txn *badger.Txn, id uuid.UUID) (*nodeRecord, error) {
	item, err := txn.Get(keyNode(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ecm.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var rec nodeRecord
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, fmt.Errorf("decode node %s: %w", id, err)
	}
	return &rec, nil
}

func putRecord(txn *badger.Txn, rec *nodeRecord) error {
	rec.Node.ChildPaths = nil
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode node %s: %w", rec.Node.ID, err)
	}
	return txn.Set(keyNode(rec.Node.ID), data)
}

func idForPath(txn *badger.Txn, path string) (uuid.UUID, error) {
	item, err := txn.Get(keyPath(ecm.CleanPath(path)))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return uuid.Nil, ecm.ErrNotFound
	}
	if err != nil {
		return uuid.Nil, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.ParseBytes(val)
}

func recordForPath(txn *badger.Txn, path string) (*nodeRecord, error) {
	id, err := idForPath(txn, path)
	if err != nil {
		return nil, err
	}
	return getRecord(txn, id)
}

// export returns the node of rec with its child paths filled in.
func export(txn *badger.Txn, rec *nodeRecord) (*ecm.Node, error) {
	n := rec.Node.Clone()
	n.ChildPaths = make([]string, 0, len(rec.Children))
	for _, id := range rec.Children {
		child, err := getRecord(txn, id)
		if err != nil {
			return nil, err
		}
		n.ChildPaths = append(n.ChildPaths, child.Node.Path)
	}
	return n, nil
}

// subtree returns the records of the node and all its descendants, parents
// first.
func subtree(txn *badger.Txn, rec *nodeRecord) ([]*nodeRecord, error) {
	recs := []*nodeRecord{rec}
	for i := 0; i < len(recs); i++ {
		for _, id := range recs[i].Children {
			child, err := getRecord(txn, id)
			if err != nil {
				return nil, err
			}
			recs = append(recs, child)
		}
	}
	return recs, nil
}

// keysWithPrefix collects the keys below prefix. Keys are copied so they can
// be deleted after the iterator is closed.
func keysWithPrefix(txn *badger.Txn, prefix []byte) [][]byte {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix

	it := txn.NewIterator(opts)
	defer it.Close()

	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		keys = append(keys, it.Item().KeyCopy(nil))
	}
	return keys
}

func removeID(ids []uuid.UUID, id uuid.UUID) []uuid.UUID {
	for i, c := range ids {
		if c == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// session is a handle on the database. It holds no transaction of its own.
type session struct {
	store  *Store
	closed atomic.Bool
}

func (ss *session) check(op string) error {
	if ss.closed.Load() {
		return &ecm.StoreError{Backend: backendName, Op: op, Err: errSessionClosed}
	}
	return nil
}

func (ss *session) Close() error {
	ss.closed.Store(true)
	return nil
}

func (ss *session) GetNode(ctx context.Context, path string) (*ecm.Node, error) {
	if err := ss.check("get_node"); err != nil {
		return nil, err
	}
	var node *ecm.Node
	err := ss.store.view("get_node", func(txn *badger.Txn) error {
		rec, err := recordForPath(txn, path)
		if err != nil {
			return err
		}
		node, err = export(txn, rec)
		return err
	})
	return node, err
}

func (ss *session) CreateNode(ctx context.Context, node *ecm.Node) error {
	if err := ss.check("create_node"); err != nil {
		return err
	}
	path := ecm.CleanPath(node.Path)
	if path == ecm.RootPath {
		return ecm.ErrAlreadyExists
	}
	parentPath, name := ecm.SplitParent(path)

	return ss.store.update("create_node", func(txn *badger.Txn) error {
		parent, err := recordForPath(txn, parentPath)
		if errors.Is(err, ecm.ErrNotFound) {
			return ecm.ErrParentNotFound
		}
		if err != nil {
			return err
		}
		if _, err := idForPath(txn, path); err == nil {
			return ecm.ErrAlreadyExists
		} else if !errors.Is(err, ecm.ErrNotFound) {
			return err
		}

		if node.ID == uuid.Nil {
			node.ID = uuid.New()
		}
		if _, err := getRecord(txn, node.ID); err == nil {
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

		rec := &nodeRecord{Node: *node.Clone()}
		if err := putRecord(txn, rec); err != nil {
			return err
		}
		if err := txn.Set(keyPath(path), []byte(node.ID.String())); err != nil {
			return err
		}
		if v := node.Properties.ViewID; v != "" {
			if err := txn.Set(keyViewID(v, node.ID), nil); err != nil {
				return err
			}
		}
		parent.Children = append(parent.Children, node.ID)
		return putRecord(txn, parent)
	})
}

func (ss *session) UpdateNode(ctx context.Context, node *ecm.Node) error {
	if err := ss.check("update_node"); err != nil {
		return err
	}
	return ss.store.update("update_node", func(txn *badger.Txn) error {
		rec, err := getRecord(txn, node.ID)
		if err != nil {
			return err
		}

		oldView, newView := rec.Node.Properties.ViewID, node.Properties.ViewID
		if oldView != newView {
			if oldView != "" {
				if err := txn.Delete(keyViewID(oldView, node.ID)); err != nil {
					return err
				}
			}
			if newView != "" {
				if err := txn.Set(keyViewID(newView, node.ID), nil); err != nil {
					return err
				}
			}
		}

		node.UpdatedAt = time.Now().UTC()
		rec.Node.NodeType = node.NodeType
		rec.Node.Mixins = append([]string(nil), node.Mixins...)
		rec.Node.Properties = node.Properties.Clone()
		rec.Node.CheckedOut = node.CheckedOut
		rec.Node.BaseVersion = node.BaseVersion
		rec.Node.UpdatedAt = node.UpdatedAt
		return putRecord(txn, rec)
	})
}

func (ss *session) MoveNode(ctx context.Context, srcPath, dstPath string) error {
	if err := ss.check("move_node"); err != nil {
		return err
	}
	srcPath, dstPath = ecm.CleanPath(srcPath), ecm.CleanPath(dstPath)
	if srcPath == ecm.RootPath {
		return fmt.Errorf("%w: cannot move the root node", errInvalidPath)
	}
	if ecm.IsDescendant(dstPath, srcPath) {
		return fmt.Errorf("%w: cannot move %s below itself", errInvalidPath, srcPath)
	}
	dstParentPath, _ := ecm.SplitParent(dstPath)

	return ss.store.update("move_node", func(txn *badger.Txn) error {
		src, err := recordForPath(txn, srcPath)
		if err != nil {
			return err
		}
		dstParent, err := recordForPath(txn, dstParentPath)
		if errors.Is(err, ecm.ErrNotFound) {
			return ecm.ErrParentNotFound
		}
		if err != nil {
			return err
		}
		if _, err := idForPath(txn, dstPath); err == nil {
			return ecm.ErrAlreadyExists
		} else if !errors.Is(err, ecm.ErrNotFound) {
			return err
		}

		if src.Node.ParentPath == dstParent.Node.Path {
			dstParent.Children = removeID(dstParent.Children, src.Node.ID)
		} else {
			oldParent, err := recordForPath(txn, src.Node.ParentPath)
			if err != nil {
				return err
			}
			oldParent.Children = removeID(oldParent.Children, src.Node.ID)
			if err := putRecord(txn, oldParent); err != nil {
				return err
			}
		}
		dstParent.Children = append(dstParent.Children, src.Node.ID)
		if err := putRecord(txn, dstParent); err != nil {
			return err
		}

		recs, err := subtree(txn, src)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, rec := range recs {
			if err := txn.Delete(keyPath(rec.Node.Path)); err != nil {
				return err
			}
			rec.Node.Path = dstPath + strings.TrimPrefix(rec.Node.Path, srcPath)
			rec.Node.ParentPath, rec.Node.Name = ecm.SplitParent(rec.Node.Path)
			rec.Node.UpdatedAt = now
			if err := putRecord(txn, rec); err != nil {
				return err
			}
			if err := txn.Set(keyPath(rec.Node.Path), []byte(rec.Node.ID.String())); err != nil {
				return err
			}
		}
		return nil
	})
}

func (ss *session) RemoveNode(ctx context.Context, path string) error {
	if err := ss.check("remove_node"); err != nil {
		return err
	}
	path = ecm.CleanPath(path)
	if path == ecm.RootPath {
		return fmt.Errorf("%w: cannot remove the root node", errInvalidPath)
	}

	return ss.store.update("remove_node", func(txn *badger.Txn) error {
		rec, err := recordForPath(txn, path)
		if err != nil {
			return err
		}
		parent, err := recordForPath(txn, rec.Node.ParentPath)
		if err != nil {
			return err
		}
		parent.Children = removeID(parent.Children, rec.Node.ID)
		if err := putRecord(txn, parent); err != nil {
			return err
		}

		recs, err := subtree(txn, rec)
		if err != nil {
			return err
		}
		for _, r := range recs {
			keys := keysWithPrefix(txn, keyVersionPrefix(r.Node.ID))
			keys = append(keys, keyNode(r.Node.ID), keyPath(r.Node.Path))
			if v := r.Node.Properties.ViewID; v != "" {
				keys = append(keys, keyViewID(v, r.Node.ID))
			}
			for _, k := range keys {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (ss *session) ListChildren(ctx context.Context, path string) ([]*ecm.Node, error) {
	if err := ss.check("list_children"); err != nil {
		return nil, err
	}
	var result []*ecm.Node
	err := ss.store.view("list_children", func(txn *badger.Txn) error {
		rec, err := recordForPath(txn, path)
		if err != nil {
			return err
		}
		result = make([]*ecm.Node, 0, len(rec.Children))
		for _, id := range rec.Children {
			child, err := getRecord(txn, id)
			if err != nil {
				return err
			}
			n, err := export(txn, child)
			if err != nil {
				return err
			}
			result = append(result, n)
		}
		return nil
	})
	return result, err
}

func (ss *session) FindByViewID(ctx context.Context, viewID string) ([]*ecm.Node, error) {
	if err := ss.check("find_by_view_id"); err != nil {
		return nil, err
	}
	result := []*ecm.Node{}
	if viewID == "" {
		return result, nil
	}
	err := ss.store.view("find_by_view_id", func(txn *badger.Txn) error {
		prefix := keyViewIDPrefix(viewID)
		for _, k := range keysWithPrefix(txn, prefix) {
			id, err := uuid.ParseBytes(k[len(prefix):])
			if err != nil {
				return fmt.Errorf("decode view index key %q: %w", k, err)
			}
			rec, err := getRecord(txn, id)
			if err != nil {
				return err
			}
			n, err := export(txn, rec)
			if err != nil {
				return err
			}
			result = append(result, n)
		}
		return nil
	})
	if err != nil {
		return nil, err
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
	next, err := ss.store.version.Next()
	if err != nil {
		return &ecm.StoreError{Backend: backendName, Op: "append_version", Err: err}
	}
	// badger sequences start at zero
	seq := int64(next) + 1

	return ss.store.update("append_version", func(txn *badger.Txn) error {
		if _, err := getRecord(txn, nodeID); err != nil {
			return err
		}
		rec.Seq = seq
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode version %s: %w", rec.Label, err)
		}
		return txn.Set(keyVersion(nodeID, seq), data)
	})
}

// versions returns the records of a node in sequence order with their keys.
func versions(txn *badger.Txn, nodeID uuid.UUID) ([]*ecm.VersionRecord, [][]byte, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = keyVersionPrefix(nodeID)

	it := txn.NewIterator(opts)
	defer it.Close()

	var recs []*ecm.VersionRecord
	var keys [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		item := it.Item()
		var rec ecm.VersionRecord
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		}); err != nil {
			return nil, nil, fmt.Errorf("decode version of %s: %w", nodeID, err)
		}
		recs = append(recs, &rec)
		keys = append(keys, item.KeyCopy(nil))
	}
	return recs, keys, nil
}

func (ss *session) ListVersions(ctx context.Context, nodeID uuid.UUID) ([]*ecm.VersionRecord, error) {
	if err := ss.check("list_versions"); err != nil {
		return nil, err
	}
	var result []*ecm.VersionRecord
	err := ss.store.view("list_versions", func(txn *badger.Txn) error {
		if _, err := getRecord(txn, nodeID); err != nil {
			return err
		}
		recs, _, err := versions(txn, nodeID)
		result = recs
		return err
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = []*ecm.VersionRecord{}
	}
	return result, nil
}

func (ss *session) RemoveVersion(ctx context.Context, nodeID uuid.UUID, label string) (int, error) {
	if err := ss.check("remove_version"); err != nil {
		return 0, err
	}
	removed := 0
	err := ss.store.update("remove_version", func(txn *badger.Txn) error {
		recs, keys, err := versions(txn, nodeID)
		if err != nil {
			return err
		}
		for i, rec := range recs {
			if rec.Label != label {
				continue
			}
			if err := txn.Delete(keys[i]); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Type definition operations

func (ss *session) RegisterTypes(ctx context.Context, defs []ecm.TypeDefinition) error {
	if err := ss.check("register_types"); err != nil {
		return err
	}
	return ss.store.update("register_types", func(txn *badger.Txn) error {
		for _, d := range defs {
			data, err := json.Marshal(d)
			if err != nil {
				return fmt.Errorf("encode type %s: %w", d.Name, err)
			}
			if err := txn.Set(keyType(d.Name), data); err != nil {
				return err
			}
		}
		return nil
	})
}

func (ss *session) ListTypes(ctx context.Context) ([]ecm.TypeDefinition, error) {
	if err := ss.check("list_types"); err != nil {
		return nil, err
	}
	result := []ecm.TypeDefinition{}
	err := ss.store.view("list_types", func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixType)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var d ecm.TypeDefinition
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &d)
			}); err != nil {
				return fmt.Errorf("decode type definition: %w", err)
			}
			result = append(result, d)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
