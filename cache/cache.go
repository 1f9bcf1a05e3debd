package cache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"

	"jyurniq/common"
)

// Store keeps rendered pages by key until they expire.
type Store interface {
	Name() string
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, html string) error
	Delete(ctx context.Context, keys ...string) error
}

// NewStore builds the backend selected by CACHE_BACKEND. A nil Store means caching is off.
func NewStore(cfg *common.Config) (Store, error) {
	switch cfg.CacheBackend {
	case "", "none":
		return nil, nil
	case "file":
		return NewFileStore(cfg.CacheDir, cfg.CacheTTL)
	case "redis":
		if cfg.RedisURL == "" {
			return nil, errors.New("CACHE_BACKEND=redis requires REDIS_URL")
		}
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		return NewRedisStore(redis.NewClient(opts), cfg.CacheTTL), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.CacheBackend)
	}
}

// Page keys for a blog: its page, its embed card and the home feed.
func BlogKeys(slug string) []string {
	return []string{"/b/" + slug, "/embed/" + slug, "/"}
}

func InvalidateBlog(ctx context.Context, store Store, slug string) error {
	if store == nil || slug == "" {
		return nil
	}
	return store.Delete(ctx, BlogKeys(slug)...)
}

type FileStore struct {
	dir    string
	maxAge time.Duration
}

func NewFileStore(dir string, maxAge time.Duration) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, maxAge: maxAge}, nil
}

func (f *FileStore) Name() string { return "file" }

func (f *FileStore) path(key string) string {
	return filepath.Join(f.dir, fmt.Sprintf("%016x.html", xxhash.Sum64String(key)))
}

func (f *FileStore) Get(_ context.Context, key string) (string, bool) {
	p := f.path(key)
	info, err := os.Stat(p)
	if err != nil {
		return "", false
	}
	if time.Since(info.ModTime()) > f.maxAge {
		return "", false
	}
	content, err := os.ReadFile(p)
	if err != nil {
		return "", false
	}
	return string(content), true
}

func (f *FileStore) Set(_ context.Context, key, html string) error {
	return os.WriteFile(f.path(key), []byte(html), 0644)
}

func (f *FileStore) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		if err := os.Remove(f.path(key)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Purge removes files older than the store's max age.
func (f *FileStore) Purge() error {
	return filepath.Walk(f.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".html") {
			return nil
		}
		if time.Since(info.ModTime()) > f.maxAge {
			os.Remove(path)
		}
		return nil
	})
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

const redisPrefix = "jyurniq:page:"

func (r *RedisStore) Name() string { return "redis" }

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool) {
	val, err := r.client.Get(ctx, redisPrefix+key).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (r *RedisStore) Set(ctx context.Context, key, html string) error {
	return r.client.Set(ctx, redisPrefix+key, html, r.ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	prefixed := make([]string, len(keys))
	for i, k := range keys {
		prefixed[i] = redisPrefix + k
	}
	return r.client.Del(ctx, prefixed...).Err()
}
