package definition

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Source yields a definitions document.
type Source interface {
	Load(ctx context.Context) ([]Definition, error)
}

// Load reads definitions from path, choosing the parser by extension:
// ".cue" is CUE, ".json" is JSON, anything else is JSON or YAML.
func Load(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ConfigError{Source: path, Message: "read definitions", Err: err}
	}
	var defs []Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		defs, err = ParseCUE(data)
	case ".json":
		defs, err = ParseJSON(data)
	default:
		defs, err = Parse(data)
	}
	if err != nil {
		return nil, withSource(err, path)
	}
	return defs, nil
}

// FileSource loads definitions from a file.
type FileSource struct {
	Path string
}

// Load implements Source.
func (s FileSource) Load(context.Context) ([]Definition, error) {
	return Load(s.Path)
}

// StringGetter is the part of a Redis client RedisSource needs.
// *redis.Client and *redis.ClusterClient satisfy it.
type StringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisSource loads a JSON or YAML definitions document stored under a
// Redis key.
type RedisSource struct {
	client StringGetter
	key    string
}

// NewRedisSource returns a source reading key through client.
func NewRedisSource(client StringGetter, key string) *RedisSource {
	return &RedisSource{client: client, key: key}
}

// Load implements Source.
func (s *RedisSource) Load(ctx context.Context) ([]Definition, error) {
	source := "redis:" + s.key
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, &ConfigError{Source: source, Message: fmt.Sprintf("key %q not found", s.key)}
	}
	if err != nil {
		return nil, &ConfigError{Source: source, Message: "fetch definitions", Err: err}
	}
	defs, err := Parse(data)
	if err != nil {
		return nil, withSource(err, source)
	}
	return defs, nil
}
