package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/ehr/records/internal/platform/db"
)

// Store persists encoded settings documents by key.
type Store interface {
	// Load returns the document for key and whether it exists.
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, data []byte) error
}

// -- Memory --

// MemoryStore keeps documents in process memory. Used in development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

func (m *MemoryStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.docs[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), data...), true, nil
}

func (m *MemoryStore) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[key] = append([]byte(nil), data...)
	return nil
}

// -- File --

// FileStore keeps every document in one YAML file, as a mapping from key to
// document. Writes replace the file atomically.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) read() (map[string]yaml.Node, error) {
	docs := make(map[string]yaml.Node)
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return docs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &docs); err != nil {
		return nil, fmt.Errorf("parse settings file %s: %w", f.path, err)
	}
	return docs, nil
}

func (f *FileStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs, err := f.read()
	if err != nil {
		return nil, false, err
	}
	node, ok := docs[key]
	if !ok {
		return nil, false, nil
	}
	data, err := yaml.Marshal(&node)
	if err != nil {
		return nil, false, fmt.Errorf("encode %s: %w", key, err)
	}
	return data, true, nil
}

func (f *FileStore) Save(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	docs, err := f.read()
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	// Unmarshal wraps the value in a document node.
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = *node.Content[0]
	}
	docs[key] = node

	out, err := yaml.Marshal(docs)
	if err != nil {
		return fmt.Errorf("encode settings file: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		return fmt.Errorf("write settings file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	return os.Rename(tmp.Name(), f.path)
}

// -- Redis --

// RedisStore keeps documents as plain string values under a key prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to url, e.g. redis://localhost:6379/0.
func NewRedisStore(url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return &RedisStore{client: redis.NewClient(opts), prefix: "settings:"}, nil
}

func (r *RedisStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, true, nil
}

func (r *RedisStore) Save(ctx context.Context, key string, data []byte) error {
	if err := r.client.Set(ctx, r.prefix+key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Ping checks the connection.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

// -- Postgres --

// PGStore keeps documents in the settings table.
type PGStore struct{ pool *pgxpool.Pool }

func NewPGStore(pool *pgxpool.Pool) *PGStore { return &PGStore{pool: pool} }

func (p *PGStore) Load(ctx context.Context, key string) ([]byte, bool, error) {
	var data []byte
	err := db.Conn(ctx, p.pool).QueryRow(ctx, `SELECT data FROM settings WHERE key = $1`, key).Scan(&data)
	if errors.Is(err, db.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load settings %s: %w", key, err)
	}
	return data, true, nil
}

func (p *PGStore) Save(ctx context.Context, key string, data []byte) error {
	_, err := db.Conn(ctx, p.pool).Exec(ctx, `
		INSERT INTO settings (key, data) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`, key, data)
	if err != nil {
		return fmt.Errorf("save settings %s: %w", key, err)
	}
	return nil
}
