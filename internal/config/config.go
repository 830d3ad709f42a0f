// Package config holds the settings of an ingest filter instance.
//
// Settings come from command-line flags, from a settings map in the plugin
// style (pipeline_definitions, primary_pipeline, node_name, ...), or from a
// YAML file holding that map.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/roach88/ingestfilter/internal/ingest"
	"github.com/roach88/ingestfilter/internal/registry"
)

// Settings keys.
const (
	KeyPipelineDefinitions = "pipeline_definitions"
	KeyPrimaryPipeline     = "primary_pipeline"
	KeyNodeName            = "node_name"
	KeyWatchdogMaxTime     = "watchdog_max_time"
	KeyMaxDepth            = "max_depth"
	KeyDatabase            = "database"
	KeyRedisAddr           = "redis_addr"
	KeyRedisKey            = "redis_key"
	KeyInputFormat         = "input_format"
	KeyOutputFormat        = "output_format"
)

// Event stream formats.
const (
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// DefaultWatchdogMaxTime bounds a single pipeline execution.
const DefaultWatchdogMaxTime = time.Second

// DefaultRedisAddr is used when a Redis key is set without an address.
const DefaultRedisAddr = "localhost:6379"

// Config is the resolved filter configuration.
type Config struct {
	// DefinitionsPath is the JSON, YAML or CUE definitions file.
	DefinitionsPath string

	// RedisKey, when set, loads definitions from Redis instead of a file.
	RedisKey  string
	RedisAddr string

	// Primary is the pipeline run for every event. Empty selects the
	// first definition.
	Primary string

	// NodeName identifies this instance. Normalize fills in a UUIDv7.
	NodeName string

	WatchdogMaxTime time.Duration
	MaxDepth        int

	// Database enables the batch audit store.
	Database string

	InputFormat  string
	OutputFormat string
}

// SettingError reports an invalid or missing setting.
type SettingError struct {
	Key     string
	Message string
}

func (e *SettingError) Error() string {
	return fmt.Sprintf("setting [%s]: %s", e.Key, e.Message)
}

// IsSettingError reports whether err is a SettingError.
func IsSettingError(err error) bool {
	var se *SettingError
	return errors.As(err, &se)
}

// Default returns a configuration with every optional setting at its
// default.
func Default() Config {
	return Config{
		WatchdogMaxTime: DefaultWatchdogMaxTime,
		MaxDepth:        registry.DefaultMaxDepth,
		InputFormat:     FormatJSON,
		OutputFormat:    FormatJSON,
	}
}

// FromSettings builds a configuration from a settings map. Unknown keys are
// rejected.
func FromSettings(settings map[string]any) (Config, error) {
	c := Default()
	for key, raw := range settings {
		var err error
		switch key {
		case KeyPipelineDefinitions:
			c.DefinitionsPath, err = stringSetting(key, raw)
		case KeyPrimaryPipeline:
			c.Primary, err = stringSetting(key, raw)
		case KeyNodeName:
			c.NodeName, err = stringSetting(key, raw)
		case KeyWatchdogMaxTime:
			c.WatchdogMaxTime, err = durationSetting(key, raw)
		case KeyMaxDepth:
			c.MaxDepth, err = intSetting(key, raw)
		case KeyDatabase:
			c.Database, err = stringSetting(key, raw)
		case KeyRedisAddr:
			c.RedisAddr, err = stringSetting(key, raw)
		case KeyRedisKey:
			c.RedisKey, err = stringSetting(key, raw)
		case KeyInputFormat:
			c.InputFormat, err = stringSetting(key, raw)
		case KeyOutputFormat:
			c.OutputFormat, err = stringSetting(key, raw)
		default:
			err = &SettingError{Key: key, Message: "unknown setting"}
		}
		if err != nil {
			return Config{}, err
		}
	}
	if err := c.Normalize(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadFile reads a YAML settings map from path.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading settings: %w", err)
	}
	var settings map[string]any
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Config{}, fmt.Errorf("parsing settings %s: %w", path, err)
	}
	return FromSettings(settings)
}

// Normalize fills defaults and validates c.
func (c *Config) Normalize() error {
	if c.DefinitionsPath == "" && c.RedisKey == "" {
		return &SettingError{Key: KeyPipelineDefinitions, Message: "required"}
	}
	if c.RedisKey != "" && c.RedisAddr == "" {
		c.RedisAddr = DefaultRedisAddr
	}
	if c.NodeName == "" {
		c.NodeName = uuid.Must(uuid.NewV7()).String()
	}
	if c.WatchdogMaxTime < 0 {
		return &SettingError{Key: KeyWatchdogMaxTime, Message: "must not be negative"}
	}
	if c.MaxDepth <= 0 {
		return &SettingError{Key: KeyMaxDepth, Message: "must be positive"}
	}
	if c.InputFormat == "" {
		c.InputFormat = FormatJSON
	}
	if c.OutputFormat == "" {
		c.OutputFormat = FormatJSON
	}
	if err := checkFormat(KeyInputFormat, c.InputFormat); err != nil {
		return err
	}
	return checkFormat(KeyOutputFormat, c.OutputFormat)
}

func checkFormat(key, f string) error {
	if f != FormatJSON && f != FormatMsgpack {
		return &SettingError{Key: key, Message: fmt.Sprintf("unknown format %q", f)}
	}
	return nil
}

// RegistryOptions translates c into registry build options.
func (c Config) RegistryOptions(logger *slog.Logger) []registry.Option {
	opts := []registry.Option{
		registry.WithMaxDepth(c.MaxDepth),
		registry.WithEngineOptions(ingest.WithMaxExecutionTime(c.WatchdogMaxTime)),
	}
	if c.Primary != "" {
		opts = append(opts, registry.WithPrimary(c.Primary))
	}
	if logger != nil {
		opts = append(opts, registry.WithLogger(logger.With("node", c.NodeName)))
	}
	return opts
}

func stringSetting(key string, raw any) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", &SettingError{Key: key, Message: fmt.Sprintf("expected string, got %T", raw)}
	}
	return s, nil
}

// durationSetting accepts Go duration strings ("1s", "250ms") or a number
// of milliseconds.
func durationSetting(key string, raw any) (time.Duration, error) {
	switch v := raw.(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, &SettingError{Key: key, Message: err.Error()}
		}
		return d, nil
	case int:
		return time.Duration(v) * time.Millisecond, nil
	case int64:
		return time.Duration(v) * time.Millisecond, nil
	}
	return 0, &SettingError{Key: key, Message: fmt.Sprintf("expected duration, got %T", raw)}
}

func intSetting(key string, raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	}
	return 0, &SettingError{Key: key, Message: fmt.Sprintf("expected integer, got %T", raw)}
}
