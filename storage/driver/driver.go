// Package driver selects the storage backend from a store URL.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/0xn1ku/nexusvault/storage"
	bboltstore "github.com/0xn1ku/nexusvault/storage/bbolt"
	"github.com/0xn1ku/nexusvault/storage/memory"
	"github.com/0xn1ku/nexusvault/storage/mongo"
	"github.com/0xn1ku/nexusvault/storage/postgres"
	"github.com/0xn1ku/nexusvault/storage/rest"
)

// Values shipped in the site's example environment. They mean "no store".
const (
	PlaceholderURL = "https://placeholder.supabase.co"
	PlaceholderKey = "placeholder-key"
)

// supabaseRESTPath is appended to bare http(s) store URLs.
const supabaseRESTPath = "/rest/v1"

// Config names the store to open.
type Config struct {
	// URL selects the backend by scheme: http(s), postgres, mongodb,
	// bbolt or memory.
	URL string
	// Key is the API key for http(s) stores.
	Key string
	// Database is the Mongo database name.
	Database string
}

// Configured reports whether cfg names a real store.
func (c Config) Configured() bool {
	u := strings.TrimSpace(c.URL)
	if u == "" || strings.TrimRight(u, "/") == PlaceholderURL {
		return false
	}
	if isHTTP(u) {
		k := strings.TrimSpace(c.Key)
		return k != "" && k != PlaceholderKey
	}
	return true
}

func isHTTP(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

// Open returns the backend for cfg. An absent or placeholder configuration
// yields storage.Unconfigured and a warning rather than an error.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (storage.Backend, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if !cfg.Configured() {
		logger.Warn("store not configured; reads return empty lists and writes fail")
		return storage.Unconfigured{}, nil
	}

	u, err := url.Parse(strings.TrimSpace(cfg.URL))
	if err != nil {
		return nil, fmt.Errorf("parsing store url: %w", err)
	}

	var b storage.Backend
	switch u.Scheme {
	case "http", "https":
		if u.Path == "" || u.Path == "/" {
			u.Path = supabaseRESTPath
		}
		b, err = rest.New(u.String(), strings.TrimSpace(cfg.Key), rest.WithLogger(logger))
	case "postgres", "postgresql":
		b, err = postgres.NewFromDSN(ctx, cfg.URL)
	case "mongodb", "mongodb+srv":
		b, err = mongo.Connect(ctx, cfg.URL, cfg.Database)
	case "bbolt":
		b, err = openBBolt(u)
	case "memory":
		b = memory.New()
	default:
		return nil, fmt.Errorf("unsupported store scheme %q", u.Scheme)
	}
	if err != nil {
		return nil, err
	}
	logger.Info("store opened", "backend", b.Name())
	return b, nil
}

// openBBolt accepts bbolt:///abs/path.db, bbolt://rel/path.db and
// bbolt:path.db.
func openBBolt(u *url.URL) (storage.Backend, error) {
	path := u.Opaque
	if path == "" {
		path = u.Host + u.Path
	}
	if path == "" {
		return nil, fmt.Errorf("bbolt store url has no path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
	}
	return bboltstore.Open(path, nil)
}
