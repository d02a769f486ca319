package config

import (
	"context"
	"fmt"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/simple-ecm/pkg/ecm"
)

// WithConfigFile reads a YAML configuration file on top of the current values
func WithConfigFile(path string) Option {
	return func(c *ServerConfig) error {
		if path == "" {
			return fmt.Errorf("config file path cannot be empty")
		}
		if err := cleanenv.ReadConfig(path, c); err != nil {
			return fmt.Errorf("read config file %s: %w", path, err)
		}
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithLogLevel sets the log level (debug, info, warn, error)
func WithLogLevel(level string) Option {
	return func(c *ServerConfig) error {
		c.LogLevel = level
		return nil
	}
}

// WithMemoryStore keeps the tree in process memory
func WithMemoryStore() Option {
	return func(c *ServerConfig) error {
		c.Store.Type = "memory"
		c.Store.DatabaseURL = ""
		return nil
	}
}

// WithBadgerStore keeps the tree in a badger database under dir. An empty
// dir runs badger in memory.
func WithBadgerStore(dir string) Option {
	return func(c *ServerConfig) error {
		c.Store.Type = "badger"
		c.Store.BadgerDir = dir
		return nil
	}
}

// WithPostgresStore keeps the tree in PostgreSQL
func WithPostgresStore(url string) Option {
	return func(c *ServerConfig) error {
		if url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.Store.Type = "postgres"
		c.Store.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.Store.Schema = schema
		return nil
	}
}

// WithMigrations toggles schema creation on startup (for Postgres)
func WithMigrations(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.Store.Migrate = enabled
		return nil
	}
}

// WithMemoryBlobs keeps payloads in process memory
func WithMemoryBlobs() Option {
	return func(c *ServerConfig) error {
		c.Blob.Type = "memory"
		return nil
	}
}

// WithFilesystemBlobs stores payloads below baseDir
func WithFilesystemBlobs(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.Blob.Type = "fs"
		c.Blob.BaseDir = baseDir
		return nil
	}
}

// WithS3Blobs stores payloads in an S3 bucket
func WithS3Blobs(s3 S3Config) Option {
	return func(c *ServerConfig) error {
		if s3.Bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		if s3.Region == "" {
			s3.Region = c.Blob.S3.Region
		}
		if s3.SSEAlgorithm == "" {
			s3.SSEAlgorithm = c.Blob.S3.SSEAlgorithm
		}
		c.Blob.Type = "s3"
		c.Blob.S3 = s3
		return nil
	}
}

// WithLanguages sets the supported languages; the first one is the default
func WithLanguages(languages ...string) Option {
	return func(c *ServerConfig) error {
		if len(languages) == 0 {
			return fmt.Errorf("at least one language is required")
		}
		c.Languages.Supported = languages
		c.Languages.Default = languages[0]
		return nil
	}
}

// WithDefaultLanguage overrides the default language
func WithDefaultLanguage(language string) Option {
	return func(c *ServerConfig) error {
		c.Languages.Default = language
		return nil
	}
}

// WithClientRoot maps a client id to its top-level folder name
func WithClientRoot(client, folder string) Option {
	return func(c *ServerConfig) error {
		if client == "" || folder == "" {
			return fmt.Errorf("client and folder are required")
		}
		if c.Languages.ClientRoots == nil {
			c.Languages.ClientRoots = map[string]string{}
		}
		c.Languages.ClientRoots[client] = folder
		return nil
	}
}

// WithTypeRoot overrides the folder that holds content of type t
func WithTypeRoot(t ecm.ContentType, folder string) Option {
	return func(c *ServerConfig) error {
		if _, err := ecm.ParseContentType(t.String()); err != nil {
			return err
		}
		if c.Languages.TypeRoots == nil {
			c.Languages.TypeRoots = map[string]string{}
		}
		c.Languages.TypeRoots[t.String()] = folder
		return nil
	}
}

// WithDefinitionsFile registers the node types of a YAML file at build time
func WithDefinitionsFile(path string) Option {
	return func(c *ServerConfig) error {
		c.DefinitionsFile = path
		return nil
	}
}

// WithEventLogging enables or disables event logging
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}

// registerDefinitions loads the type definitions at path, or the built-in
// ones when path is empty.
func registerDefinitions(ctx context.Context, svc ecm.Service, path string) error {
	if path == "" {
		if err := svc.RegisterTypeDefinitions(ctx, ecm.DefaultDefinitionsSource()); err != nil {
			return fmt.Errorf("register built-in definitions: %w", err)
		}
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open definitions: %w", err)
	}
	defer f.Close()

	if err := svc.RegisterTypeDefinitions(ctx, f); err != nil {
		return fmt.Errorf("register definitions from %s: %w", path, err)
	}
	return nil
}
