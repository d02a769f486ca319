// Package config builds an ecm.Service from server configuration. A
// configuration starts from library defaults and is refined by options,
// a YAML file or the environment before it is validated.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/simple-ecm/pkg/ecm"
	fsblob "github.com/tendant/simple-ecm/pkg/ecm/blob/fs"
	memoryblob "github.com/tendant/simple-ecm/pkg/ecm/blob/memory"
	s3blob "github.com/tendant/simple-ecm/pkg/ecm/blob/s3"
	badgerstore "github.com/tendant/simple-ecm/pkg/ecm/store/badger"
	memorystore "github.com/tendant/simple-ecm/pkg/ecm/store/memory"
	pgstore "github.com/tendant/simple-ecm/pkg/ecm/store/postgres"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Environment: "development",
		LogLevel:    "info",
		Store: StoreConfig{
			Type:    "memory",
			Schema:  "ecm",
			Migrate: true,
		},
		Blob: BlobConfig{
			Type:    "memory",
			BaseDir: "./data/blobs",
			S3: S3Config{
				Region:       "us-east-1",
				SSEAlgorithm: "AES256",
			},
		},
		Languages: LanguageConfig{
			Supported: []string{"en"},
			Default:   "en",
		},
		EnableEventLogging: true,
	}
}

// ServerConfig represents the configuration of an ECM repository
type ServerConfig struct {
	Environment string `yaml:"environment" validate:"required,oneof=development production testing"`
	LogLevel    string `yaml:"log_level" validate:"oneof=debug info warn error"`

	Store     StoreConfig    `yaml:"store"`
	Blob      BlobConfig     `yaml:"blob"`
	Languages LanguageConfig `yaml:"languages"`

	// DefinitionsFile is an optional YAML file with node type definitions
	// registered when the service is built
	DefinitionsFile string `yaml:"definitions_file"`

	EnableEventLogging bool `yaml:"enable_event_logging"`
}

// StoreConfig selects and configures the tree store
type StoreConfig struct {
	Type        string `yaml:"type" validate:"oneof=memory badger postgres"`
	DatabaseURL string `yaml:"database_url" validate:"required_if=Type postgres"`
	Schema      string `yaml:"schema"`
	// Migrate creates the postgres tables on startup
	Migrate bool `yaml:"migrate"`
	// BadgerDir holds the badger files; empty keeps the database in memory
	BadgerDir string `yaml:"badger_dir"`
}

// BlobConfig selects and configures the payload store
type BlobConfig struct {
	Type    string   `yaml:"type" validate:"oneof=memory fs s3"`
	BaseDir string   `yaml:"base_dir" validate:"required_if=Type fs"`
	S3      S3Config `yaml:"s3"`
}

// S3Config mirrors s3blob.Config
type S3Config struct {
	Bucket                 string `yaml:"bucket"`
	Region                 string `yaml:"region"`
	Prefix                 string `yaml:"prefix"`
	AccessKeyID            string `yaml:"access_key_id"`
	SecretAccessKey        string `yaml:"secret_access_key"`
	Endpoint               string `yaml:"endpoint" validate:"omitempty,url"`
	UsePathStyle           bool   `yaml:"use_path_style"`
	EnableSSE              bool   `yaml:"enable_sse"`
	SSEAlgorithm           string `yaml:"sse_algorithm" validate:"omitempty,oneof=AES256 aws:kms"`
	SSEKMSKeyID            string `yaml:"sse_kms_key_id"`
	CreateBucketIfNotExist bool   `yaml:"create_bucket_if_not_exist"`
}

// LanguageConfig configures the language/client provider
type LanguageConfig struct {
	Supported []string `yaml:"supported" validate:"min=1,dive,required"`
	Default   string   `yaml:"default" validate:"required"`
	// ClientRoots maps a client id to its top-level folder name
	ClientRoots map[string]string `yaml:"client_roots"`
	// TypeRoots maps a content type name to its folder below the client root
	TypeRoots map[string]string `yaml:"type_roots"`
}

// LanguageProvider returns the StaticLanguages described by the configuration
func (c *ServerConfig) LanguageProvider() (*ecm.StaticLanguages, error) {
	typeRoots := make(map[ecm.ContentType]string, len(c.Languages.TypeRoots))
	for name, folder := range c.Languages.TypeRoots {
		t, err := ecm.ParseContentType(name)
		if err != nil {
			return nil, fmt.Errorf("languages.type_roots: %w", err)
		}
		typeRoots[t] = folder
	}
	return &ecm.StaticLanguages{
		ClientRoots: c.Languages.ClientRoots,
		TypeRoots:   typeRoots,
		Languages:   c.Languages.Supported,
		Default:     c.Languages.Default,
	}, nil
}

// SlogLevel converts LogLevel for slog handlers
func (c *ServerConfig) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// closers closes every resource in reverse order of acquisition
type closers []io.Closer

func (cs closers) Close() error {
	var errs []error
	for i := len(cs) - 1; i >= 0; i-- {
		if err := cs[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BuildService creates a Service from the server configuration. The returned
// closer releases the tree store and must be closed once the service is no
// longer used. Extra options are applied after the configured ones.
func (c *ServerConfig) BuildService(ctx context.Context, extra ...ecm.Option) (ecm.Service, io.Closer, error) {
	var (
		options []ecm.Option
		cleanup closers
	)

	store, closer, err := c.buildStore(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build store: %w", err)
	}
	cleanup = append(cleanup, closer)
	options = append(options, ecm.WithStore(store))

	blobs, err := c.buildBlobStore(ctx)
	if err != nil {
		_ = cleanup.Close()
		return nil, nil, fmt.Errorf("failed to build blob store %s: %w", c.Blob.Type, err)
	}
	options = append(options, ecm.WithBlobStore(blobs))

	languages, err := c.LanguageProvider()
	if err != nil {
		_ = cleanup.Close()
		return nil, nil, err
	}
	options = append(options, ecm.WithLanguages(languages))

	if c.EnableEventLogging {
		options = append(options, ecm.WithEventSink(ecm.NewLoggingEventSink(nil)))
	}

	svc, err := ecm.New(append(options, extra...)...)
	if err != nil {
		_ = cleanup.Close()
		return nil, nil, err
	}

	if err := registerDefinitions(ctx, svc, c.DefinitionsFile); err != nil {
		_ = cleanup.Close()
		return nil, nil, err
	}

	return svc, cleanup, nil
}

// buildStore creates the tree store based on the configuration
func (c *ServerConfig) buildStore(ctx context.Context) (ecm.Store, io.Closer, error) {
	switch c.Store.Type {
	case "memory":
		store := memorystore.New()
		return store, store, nil
	case "badger":
		store, err := badgerstore.New(badgerstore.Config{Dir: c.Store.BadgerDir})
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case "postgres":
		pool, err := NewPool(ctx, c.Store.DatabaseURL, c.Store.Schema)
		if err != nil {
			return nil, nil, err
		}
		store := pgstore.New(pool)
		if c.Store.Migrate {
			if err := store.Migrate(ctx); err != nil {
				pool.Close()
				return nil, nil, err
			}
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store type: %s", c.Store.Type)
	}
}

// NewPool creates a pgx pool whose connections use schema as search_path.
// The schema is created when missing.
func NewPool(ctx context.Context, databaseURL, schema string) (*pgxpool.Pool, error) {
	if databaseURL == "" {
		return nil, errors.New("database_url is required for postgres")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if schema != "" {
		ident := pgx.Identifier{schema}.Sanitize()
		cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			if _, err := conn.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+ident); err != nil {
				return err
			}
			_, err := conn.Exec(ctx, "SET search_path TO "+ident)
			return err
		}
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	return pool, nil
}

// buildBlobStore creates the payload store based on the configuration
func (c *ServerConfig) buildBlobStore(ctx context.Context) (ecm.BlobStore, error) {
	switch c.Blob.Type {
	case "memory":
		return memoryblob.New(), nil
	case "fs":
		return fsblob.New(fsblob.Config{BaseDir: c.Blob.BaseDir})
	case "s3":
		s := c.Blob.S3
		return s3blob.New(ctx, s3blob.Config{
			Region:                 s.Region,
			Bucket:                 s.Bucket,
			Prefix:                 s.Prefix,
			AccessKeyID:            s.AccessKeyID,
			SecretAccessKey:        s.SecretAccessKey,
			Endpoint:               s.Endpoint,
			UsePathStyle:           s.UsePathStyle,
			EnableSSE:              s.EnableSSE,
			SSEAlgorithm:           s.SSEAlgorithm,
			SSEKMSKeyID:            s.SSEKMSKeyID,
			CreateBucketIfNotExist: s.CreateBucketIfNotExist,
		})
	default:
		return nil, fmt.Errorf("unsupported blob store type: %s", c.Blob.Type)
	}
}
