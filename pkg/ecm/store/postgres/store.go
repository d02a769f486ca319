package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-ecm/pkg/ecm"
)

const backendName = "postgres"

//go:embed schema.sql
var schema string

var errSessionClosed = errors.New("session closed")

// DBTX is an interface that allows us to use either a connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store implements ecm.Store on PostgreSQL. A session holds one pooled
// connection until it is closed.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a store on an existing pool
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect creates a pool for databaseURL and checks that it is reachable
func Connect(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, &ecm.StoreError{Backend: backendName, Op: "connect", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &ecm.StoreError{Backend: backendName, Op: "connect", Err: err}
	}
	return &Store{pool: pool}, nil
}

// Migrate creates the tables if needed and inserts the root node
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return handlePostgresError("migrate", err)
	}
	props, err := json.Marshal(ecm.Properties{Active: true, CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO ecm_nodes (id, path, parent_path, name, content_type, node_type, properties, created_at, updated_at)
		VALUES ($1, $2, NULL, '', $3, $4, $5, now(), now())
		ON CONFLICT (path) DO NOTHING`,
		uuid.New(), ecm.RootPath, ecm.ContentTypeFolder.String(), ecm.NodeTypeRoot, props)
	if err != nil {
		return handlePostgresError("migrate", err)
	}
	return nil
}

// Close closes the pool
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Open acquires a pooled connection for the session
func (s *Store) Open(ctx context.Context) (ecm.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, &ecm.StoreError{Backend: backendName, Op: "open", Err: err}
	}
	return &session{conn: conn}, nil
}

// handlePostgresError maps driver errors onto repository errors. Anything
// that is not a constraint or lookup failure is a store failure.
func handlePostgresError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return ecm.ErrAlreadyExists
		case "23503": // foreign_key_violation
			return ecm.ErrNotFound
		case "42P01": // undefined_table
			return &ecm.StoreError{Backend: backendName, Op: operation,
				Err: fmt.Errorf("table does not exist - database migration required: %w", err)}
		}
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ecm.ErrNotFound
	}
	return &ecm.StoreError{Backend: backendName, Op: operation, Err: err}
}

const selectNode = `
	SELECT n.id, n.path, n.parent_path, n.name, n.content_type, n.node_type, n.mixins,
	       n.properties, n.checked_out, n.base_version, n.created_at, n.updated_at,
	       ARRAY(SELECT c.path FROM ecm_nodes c WHERE c.parent_path = n.path ORDER BY c.sort_order)
	FROM ecm_nodes n`

func scanNode(row pgx.Row) (*ecm.Node, error) {
	var (
		n          ecm.Node
		parentPath *string
		props      []byte
		childPaths []string
	)
	err := row.Scan(&n.ID, &n.Path, &parentPath, &n.Name, &n.Type, &n.NodeType, &n.Mixins,
		&props, &n.CheckedOut, &n.BaseVersion, &n.CreatedAt, &n.UpdatedAt, &childPaths)
	if err != nil {
		return nil, err
	}
	if parentPath != nil {
		n.ParentPath = *parentPath
	}
	if err := json.Unmarshal(props, &n.Properties); err != nil {
		return nil, fmt.Errorf("decode properties of %s: %w", n.Path, err)
	}
	n.ChildPaths = childPaths
	return &n, nil
}

func queryNodes(ctx context.Context, db DBTX, query string, args ...interface{}) ([]*ecm.Node, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []*ecm.Node{}
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func exists(ctx context.Context, db DBTX, path string) (bool, error) {
	var found bool
	err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ecm_nodes WHERE path = $1)`, path).Scan(&found)
	return found, err
}

// session wraps one pooled connection
type session struct {
	conn *pgxpool.Conn
}

func (ss *session) db(op string) (*pgxpool.Conn, error) {
	if ss.conn == nil {
		return nil, &ecm.StoreError{Backend: backendName, Op: op, Err: errSessionClosed}
	}
	return ss.conn, nil
}

// Close releases the connection back to the pool
func (ss *session) Close() error {
	if ss.conn != nil {
		ss.conn.Release()
		ss.conn = nil
	}
	return nil
}

func (ss *session) GetNode(ctx context.Context, path string) (*ecm.Node, error) {
	db, err := ss.db("get_node")
	if err != nil {
		return nil, err
	}
	n, err := scanNode(db.QueryRow(ctx, selectNode+` WHERE n.path = $1`, ecm.CleanPath(path)))
	if err != nil {
		return nil, handlePostgresError("get_node", err)
	}
	return n, nil
}

func (ss *session) CreateNode(ctx context.Context, node *ecm.Node) error {
	db, err := ss.db("create_node")
	if err != nil {
		return err
	}
	path := ecm.CleanPath(node.Path)
	if path == ecm.RootPath {
		return ecm.ErrAlreadyExists
	}
	parentPath, name := ecm.SplitParent(path)

	ok, err := exists(ctx, db, parentPath)
	if err != nil {
		return handlePostgresError("create_node", err)
	}
	if !ok {
		return ecm.ErrParentNotFound
	}

	if node.ID == uuid.Nil {
		node.ID = uuid.New()
	}
	now := time.Now().UTC()
	if node.CreatedAt.IsZero() {
		node.CreatedAt = now
	}
	props, err := json.Marshal(node.Properties)
	if err != nil {
		return fmt.Errorf("encode properties of %s: %w", path, err)
	}
	mixins := node.Mixins
	if mixins == nil {
		mixins = []string{}
	}

	_, err = db.Exec(ctx, `
		INSERT INTO ecm_nodes (
			id, path, parent_path, name, content_type, node_type, mixins,
			properties, checked_out, base_version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		node.ID, path, parentPath, name, node.Type.String(), node.NodeType, mixins,
		props, node.CheckedOut, node.BaseVersion, node.CreatedAt, now)
	if err != nil {
		return handlePostgresError("create_node", err)
	}

	node.UpdatedAt = now
	node.Path = path
	node.ParentPath = parentPath
	node.Name = name
	return nil
}

func (ss *session) UpdateNode(ctx context.Context, node *ecm.Node) error {
	db, err := ss.db("update_node")
	if err != nil {
		return err
	}
	props, err := json.Marshal(node.Properties)
	if err != nil {
		return fmt.Errorf("encode properties of %s: %w", node.Path, err)
	}
	mixins := node.Mixins
	if mixins == nil {
		mixins = []string{}
	}
	now := time.Now().UTC()

	tag, err := db.Exec(ctx, `
		UPDATE ecm_nodes
		SET node_type = $2, mixins = $3, properties = $4, checked_out = $5,
		    base_version = $6, updated_at = $7
		WHERE id = $1`,
		node.ID, node.NodeType, mixins, props, node.CheckedOut, node.BaseVersion, now)
	if err != nil {
		return handlePostgresError("update_node", err)
	}
	if tag.RowsAffected() == 0 {
		return ecm.ErrNotFound
	}
	node.UpdatedAt = now
	return nil
}

func (ss *session) MoveNode(ctx context.Context, srcPath, dstPath string) error {
	db, err := ss.db("move_node")
	if err != nil {
		return err
	}
	srcPath, dstPath = ecm.CleanPath(srcPath), ecm.CleanPath(dstPath)
	if srcPath == ecm.RootPath {
		return fmt.Errorf("cannot move the root node")
	}
	if ecm.IsDescendant(dstPath, srcPath) {
		return fmt.Errorf("cannot move %s below itself", srcPath)
	}
	dstParent, dstName := ecm.SplitParent(dstPath)

	tx, err := db.Begin(ctx)
	if err != nil {
		return handlePostgresError("move_node", err)
	}
	defer tx.Rollback(ctx)

	if ok, err := exists(ctx, tx, srcPath); err != nil {
		return handlePostgresError("move_node", err)
	} else if !ok {
		return ecm.ErrNotFound
	}
	if ok, err := exists(ctx, tx, dstParent); err != nil {
		return handlePostgresError("move_node", err)
	} else if !ok {
		return ecm.ErrParentNotFound
	}
	if ok, err := exists(ctx, tx, dstPath); err != nil {
		return handlePostgresError("move_node", err)
	} else if ok {
		return ecm.ErrAlreadyExists
	}

	_, err = tx.Exec(ctx, `
		UPDATE ecm_nodes
		SET path        = $2 || substr(path, length($1) + 1),
		    parent_path = CASE WHEN path = $1 THEN $3 ELSE $2 || substr(parent_path, length($1) + 1) END,
		    name        = CASE WHEN path = $1 THEN $4 ELSE name END,
		    sort_order  = CASE WHEN path = $1 THEN nextval('ecm_node_order_seq') ELSE sort_order END,
		    updated_at  = now()
		WHERE path = $1 OR left(path, length($1) + 1) = $1 || '/'`,
		srcPath, dstPath, dstParent, dstName)
	if err != nil {
		return handlePostgresError("move_node", err)
	}
	return handlePostgresError("move_node", tx.Commit(ctx))
}

func (ss *session) RemoveNode(ctx context.Context, path string) error {
	db, err := ss.db("remove_node")
	if err != nil {
		return err
	}
	path = ecm.CleanPath(path)
	if path == ecm.RootPath {
		return fmt.Errorf("cannot remove the root node")
	}

	tag, err := db.Exec(ctx, `
		DELETE FROM ecm_nodes
		WHERE path = $1 OR left(path, length($1) + 1) = $1 || '/'`, path)
	if err != nil {
		return handlePostgresError("remove_node", err)
	}
	if tag.RowsAffected() == 0 {
		return ecm.ErrNotFound
	}
	return nil
}

func (ss *session) ListChildren(ctx context.Context, path string) ([]*ecm.Node, error) {
	db, err := ss.db("list_children")
	if err != nil {
		return nil, err
	}
	path = ecm.CleanPath(path)
	if ok, err := exists(ctx, db, path); err != nil {
		return nil, handlePostgresError("list_children", err)
	} else if !ok {
		return nil, ecm.ErrNotFound
	}

	nodes, err := queryNodes(ctx, db, selectNode+` WHERE n.parent_path = $1 ORDER BY n.sort_order`, path)
	if err != nil {
		return nil, handlePostgresError("list_children", err)
	}
	return nodes, nil
}

func (ss *session) FindByViewID(ctx context.Context, viewID string) ([]*ecm.Node, error) {
	db, err := ss.db("find_by_view_id")
	if err != nil {
		return nil, err
	}
	if viewID == "" {
		return []*ecm.Node{}, nil
	}
	nodes, err := queryNodes(ctx, db,
		selectNode+` WHERE n.properties->>'view_id' = $1 ORDER BY n.path COLLATE "C"`, viewID)
	if err != nil {
		return nil, handlePostgresError("find_by_view_id", err)
	}
	return nodes, nil
}

// Version operations

func (ss *session) AppendVersion(ctx context.Context, nodeID uuid.UUID, rec *ecm.VersionRecord) error {
	db, err := ss.db("append_version")
	if err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	props, err := json.Marshal(rec.Properties)
	if err != nil {
		return fmt.Errorf("encode version %s: %w", rec.Label, err)
	}

	err = db.QueryRow(ctx, `
		INSERT INTO ecm_versions (node_id, label, path, properties, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq`,
		nodeID, rec.Label, rec.Path, props, rec.CreatedAt).Scan(&rec.Seq)
	return handlePostgresError("append_version", err)
}

func (ss *session) ListVersions(ctx context.Context, nodeID uuid.UUID) ([]*ecm.VersionRecord, error) {
	db, err := ss.db("list_versions")
	if err != nil {
		return nil, err
	}
	var found bool
	if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ecm_nodes WHERE id = $1)`, nodeID).Scan(&found); err != nil {
		return nil, handlePostgresError("list_versions", err)
	}
	if !found {
		return nil, ecm.ErrNotFound
	}

	rows, err := db.Query(ctx, `
		SELECT seq, label, path, properties, created_at
		FROM ecm_versions
		WHERE node_id = $1
		ORDER BY seq`, nodeID)
	if err != nil {
		return nil, handlePostgresError("list_versions", err)
	}
	defer rows.Close()

	result := []*ecm.VersionRecord{}
	for rows.Next() {
		var (
			rec   ecm.VersionRecord
			props []byte
		)
		if err := rows.Scan(&rec.Seq, &rec.Label, &rec.Path, &props, &rec.CreatedAt); err != nil {
			return nil, handlePostgresError("list_versions", err)
		}
		if err := json.Unmarshal(props, &rec.Properties); err != nil {
			return nil, fmt.Errorf("decode version %s: %w", rec.Label, err)
		}
		result = append(result, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list_versions", err)
	}
	return result, nil
}

func (ss *session) RemoveVersion(ctx context.Context, nodeID uuid.UUID, label string) (int, error) {
	db, err := ss.db("remove_version")
	if err != nil {
		return 0, err
	}
	tag, err := db.Exec(ctx, `DELETE FROM ecm_versions WHERE node_id = $1 AND label = $2`, nodeID, label)
	if err != nil {
		return 0, handlePostgresError("remove_version", err)
	}
	return int(tag.RowsAffected()), nil
}

// Type definition operations

func (ss *session) RegisterTypes(ctx context.Context, defs []ecm.TypeDefinition) error {
	db, err := ss.db("register_types")
	if err != nil {
		return err
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return handlePostgresError("register_types", err)
	}
	defer tx.Rollback(ctx)

	for _, d := range defs {
		supertypes, properties := d.Supertypes, d.Properties
		if supertypes == nil {
			supertypes = []string{}
		}
		if properties == nil {
			properties = []string{}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO ecm_type_definitions (name, mixin, supertypes, properties)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (name) DO UPDATE
			SET mixin = EXCLUDED.mixin, supertypes = EXCLUDED.supertypes, properties = EXCLUDED.properties`,
			d.Name, d.Mixin, supertypes, properties)
		if err != nil {
			return handlePostgresError("register_types", err)
		}
	}
	return handlePostgresError("register_types", tx.Commit(ctx))
}

func (ss *session) ListTypes(ctx context.Context) ([]ecm.TypeDefinition, error) {
	db, err := ss.db("list_types")
	if err != nil {
		return nil, err
	}
	rows, err := db.Query(ctx, `
		SELECT name, mixin, supertypes, properties
		FROM ecm_type_definitions
		ORDER BY position`)
	if err != nil {
		return nil, handlePostgresError("list_types", err)
	}
	defer rows.Close()

	result := []ecm.TypeDefinition{}
	for rows.Next() {
		var d ecm.TypeDefinition
		if err := rows.Scan(&d.Name, &d.Mixin, &d.Supertypes, &d.Properties); err != nil {
			return nil, handlePostgresError("list_types", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("list_types", err)
	}
	return result, nil
}
