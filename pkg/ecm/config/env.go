package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
)

// environment lists the variables understood by WithEnv. Unset or empty
// variables leave the configuration untouched.
type environment struct {
	Environment string `env:"ENVIRONMENT"`
	LogLevel    string `env:"LOG_LEVEL"`

	// DATABASE_URL selects the tree store:
	//   memory (or empty)           in-memory store
	//   badger:///path/to/dir       badger store on disk (badger:// keeps it in memory)
	//   postgres://... postgresql:// PostgreSQL store
	DatabaseURL string `env:"DATABASE_URL"`
	DBSchema    string `env:"DB_SCHEMA"`

	// STORAGE_URL selects the payload store:
	//   memory://                   in-memory (default)
	//   file:///path/to/data        filesystem
	//   s3://bucket?region=us-east-1&endpoint=http://localhost:9000&path_style=true&prefix=ecm
	StorageURL string `env:"STORAGE_URL"`

	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY"`
	AWSRegion          string `env:"AWS_REGION"`

	Languages       []string `env:"ECM_LANGUAGES" env-separator:","`
	DefaultLanguage string   `env:"ECM_DEFAULT_LANGUAGE"`
	DefinitionsFile string   `env:"ECM_DEFINITIONS_FILE"`
	EventLogging    string   `env:"ECM_EVENT_LOGGING"`
}

// WithEnv applies environment variable overrides. See environment for the
// recognised variables.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var env environment
		if err := cleanenv.ReadEnv(&env); err != nil {
			return fmt.Errorf("read environment: %w", err)
		}

		if env.Environment != "" {
			c.Environment = env.Environment
		}
		if env.LogLevel != "" {
			c.LogLevel = strings.ToLower(env.LogLevel)
		}
		if env.DBSchema != "" {
			c.Store.Schema = env.DBSchema
		}
		if err := applyDatabaseURL(env.DatabaseURL, c); err != nil {
			return err
		}
		if err := applyStorageURL(env.StorageURL, c); err != nil {
			return err
		}
		if env.AWSAccessKeyID != "" {
			c.Blob.S3.AccessKeyID = env.AWSAccessKeyID
		}
		if env.AWSSecretAccessKey != "" {
			c.Blob.S3.SecretAccessKey = env.AWSSecretAccessKey
		}
		if env.AWSRegion != "" {
			c.Blob.S3.Region = env.AWSRegion
		}

		if langs := trimAll(env.Languages); len(langs) > 0 {
			c.Languages.Supported = langs
			if env.DefaultLanguage == "" {
				c.Languages.Default = langs[0]
			}
		}
		if env.DefaultLanguage != "" {
			c.Languages.Default = env.DefaultLanguage
		}
		if env.DefinitionsFile != "" {
			c.DefinitionsFile = env.DefinitionsFile
		}
		if env.EventLogging != "" {
			enabled, err := strconv.ParseBool(env.EventLogging)
			if err != nil {
				return fmt.Errorf("invalid boolean for ECM_EVENT_LOGGING: %w", err)
			}
			c.EnableEventLogging = enabled
		}
		return nil
	}
}

// applyDatabaseURL selects the tree store from DATABASE_URL
func applyDatabaseURL(dbURL string, c *ServerConfig) error {
	switch {
	case dbURL == "":
		return nil
	case dbURL == "memory" || dbURL == "memory://":
		c.Store.Type = "memory"
		c.Store.DatabaseURL = ""
	case strings.HasPrefix(dbURL, "postgresql://"), strings.HasPrefix(dbURL, "postgres://"):
		c.Store.Type = "postgres"
		c.Store.DatabaseURL = dbURL
	case strings.HasPrefix(dbURL, "badger://"):
		c.Store.Type = "badger"
		c.Store.DatabaseURL = ""
		c.Store.BadgerDir = strings.TrimPrefix(dbURL, "badger://")
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'badger://...' or 'postgresql://...')", dbURL)
	}
	return nil
}

// applyStorageURL selects the payload store from STORAGE_URL
func applyStorageURL(storageURL string, c *ServerConfig) error {
	switch {
	case storageURL == "":
		return nil
	case storageURL == "memory" || storageURL == "memory://":
		c.Blob.Type = "memory"
	case strings.HasPrefix(storageURL, "file://"):
		dir := strings.TrimPrefix(storageURL, "file://")
		if dir == "" {
			return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
		}
		c.Blob.Type = "fs"
		c.Blob.BaseDir = dir
	case strings.HasPrefix(storageURL, "s3://"):
		return applyS3URL(storageURL, c)
	default:
		return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", storageURL)
	}
	return nil
}

// applyS3URL configures S3 storage from s3://bucket?params
func applyS3URL(raw string, c *ServerConfig) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid STORAGE_URL: %w", err)
	}
	if u.Host == "" {
		return fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
	}

	q := u.Query()
	c.Blob.Type = "s3"
	c.Blob.S3.Bucket = u.Host
	if v := q.Get("region"); v != "" {
		c.Blob.S3.Region = v
	}
	if v := q.Get("endpoint"); v != "" {
		c.Blob.S3.Endpoint = v
	}
	if v := q.Get("prefix"); v != "" {
		c.Blob.S3.Prefix = v
	}
	if v := q.Get("path_style"); v != "" {
		pathStyle, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid path_style in STORAGE_URL: %w", err)
		}
		c.Blob.S3.UsePathStyle = pathStyle
	}
	if v := q.Get("create_bucket"); v != "" {
		create, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid create_bucket in STORAGE_URL: %w", err)
		}
		c.Blob.S3.CreateBucketIfNotExist = create
	}
	return nil
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
