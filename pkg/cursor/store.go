package cursor

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ErrMalformed reports cursor storage holding non-numeric content. Callers
// treat it the same as an absent cursor, after logging a warning.
var ErrMalformed = errors.New("cursor content is not a valid match id")

// Store persists the highest match id confirmed processed. Load returns
// ok=false when no cursor has been saved yet.
type Store interface {
	Load(ctx context.Context) (id int64, ok bool, err error)
	Save(ctx context.Context, id int64) error
}

// FileStore implements Store using a local file holding one decimal integer
type FileStore struct {
	path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) Load(ctx context.Context) (int64, bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return parse(string(data))
}

func (s *FileStore) Save(ctx context.Context, id int64) error {
	return os.WriteFile(s.path, []byte(strconv.FormatInt(id, 10)), 0644)
}

// RedisStore implements Store using Redis
type RedisStore struct {
	client *redis.Client
	key    string
}

func NewRedisStore(client *redis.Client, key string) *RedisStore {
	return &RedisStore{
		client: client,
		key:    key,
	}
}

func (s *RedisStore) Load(ctx context.Context) (int64, bool, error) {
	data, err := s.client.Get(ctx, s.key).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, false, nil
		}
		return 0, false, err
	}
	return parse(data)
}

func (s *RedisStore) Save(ctx context.Context, id int64) error {
	return s.client.Set(ctx, s.key, strconv.FormatInt(id, 10), 0).Err()
}

func parse(raw string) (int64, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, ErrMalformed
	}
	return id, true, nil
}
