package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/roach88/ingestfilter/internal/config"
	"github.com/roach88/ingestfilter/internal/definition"
)

// SourceOptions holds the flags that locate pipeline definitions.
type SourceOptions struct {
	Definitions string
	RedisAddr   string
	RedisKey    string
}

// bind registers the source flags on cmd.
func (o *SourceOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.Definitions, "definitions", "", "pipeline definitions file (JSON, YAML or CUE)")
	cmd.Flags().StringVar(&o.RedisAddr, "redis-addr", "", "Redis address for --redis-key (default "+config.DefaultRedisAddr+")")
	cmd.Flags().StringVar(&o.RedisKey, "redis-key", "", "load definitions from this Redis key instead of a file")
}

// apply copies flags that were set onto c.
func (o *SourceOptions) apply(c *config.Config) {
	if o.Definitions != "" {
		c.DefinitionsPath = o.Definitions
	}
	if o.RedisAddr != "" {
		c.RedisAddr = o.RedisAddr
	}
	if o.RedisKey != "" {
		c.RedisKey = o.RedisKey
	}
}

// LoadError represents an error that occurred while loading definitions.
type LoadError struct {
	Code    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// LoadDefinitions reads the definitions c points at: the Redis key when
// set, otherwise the definitions file.
func LoadDefinitions(ctx context.Context, c config.Config) ([]definition.Definition, error) {
	var src definition.Source
	if c.RedisKey != "" {
		addr := c.RedisAddr
		if addr == "" {
			addr = config.DefaultRedisAddr
		}
		client := redis.NewClient(&redis.Options{Addr: addr})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, &LoadError{Code: ErrCodeSourceFailed, Message: fmt.Sprintf("redis %s: %v", addr, err), Err: err}
		}
		src = definition.NewRedisSource(client, c.RedisKey)
	} else {
		if c.DefinitionsPath == "" {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: "no definitions: use --definitions or --redis-key"}
		}
		if _, err := os.Stat(c.DefinitionsPath); err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("definitions file not found: %s", c.DefinitionsPath), Err: err}
		}
		src = definition.FileSource{Path: c.DefinitionsPath}
	}

	defs, err := src.Load(ctx)
	if err != nil {
		return nil, classifyLoadError(err)
	}
	return defs, nil
}

// classifyLoadError maps a definition source error to a CLI error code.
func classifyLoadError(err error) *LoadError {
	var ce *definition.ConfigError
	if !errors.As(err, &ce) {
		return &LoadError{Code: ErrCodeGeneric, Message: err.Error(), Err: err}
	}
	if ce.Message == definition.ErrNoDefinitions {
		return &LoadError{Code: ErrCodeNoDefinitions, Message: ce.Error(), Err: err}
	}
	return &LoadError{Code: ErrCodeParseFailed, Message: ce.Error(), Err: err}
}

// errorCode extracts a CLI error code and message from err.
func errorCode(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return ErrCodeGeneric, err.Error()
}
