// Package config loads the service configuration from file, environment
// and defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultConfigFile is the default config filename.
	DefaultConfigFile = "skillmatch.yaml"
	// DefaultSnapshotDir is where index snapshots are persisted.
	DefaultSnapshotDir = "./data/snapshots"

	envPrefix = "SKILLMATCH"
)

// Config holds the application configuration.
type Config struct {
	// Mongo configures the users document store.
	Mongo MongoConfig `mapstructure:"mongo" yaml:"mongo"`
	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `mapstructure:"embedding" yaml:"embedding"`
	// Snapshot configures index persistence.
	Snapshot SnapshotConfig `mapstructure:"snapshot" yaml:"snapshot"`
	// Server configures the HTTP API.
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	// Log configures logging output.
	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// MongoConfig holds document store settings.
type MongoConfig struct {
	// URI is the MongoDB connection string. Also read from MONGO_URI for
	// parity with the rest of the deployment.
	URI string `mapstructure:"uri" yaml:"uri"`
	// Database is the database name.
	Database string `mapstructure:"database" yaml:"database"`
	// UsersCollection is the collection holding user documents.
	UsersCollection string `mapstructure:"users_collection" yaml:"users_collection"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider is the embedding provider: "ollama" or "openai".
	Provider string `mapstructure:"provider" yaml:"provider"`
	// Model is the embedding model name.
	Model string `mapstructure:"model" yaml:"model"`
	// Dimensions is the embedding vector dimensionality.
	Dimensions int `mapstructure:"dimensions" yaml:"dimensions"`
	// OllamaURL is the Ollama API URL.
	OllamaURL string `mapstructure:"ollama_url" yaml:"ollama_url"`
	// OpenAIAPIKey is the OpenAI API key (also OPENAI_API_KEY).
	OpenAIAPIKey string `mapstructure:"openai_api_key" yaml:"openai_api_key,omitempty"`
	// OpenAIBaseURL overrides the OpenAI API base URL.
	OpenAIBaseURL string `mapstructure:"openai_base_url" yaml:"openai_base_url,omitempty"`
}

// SnapshotConfig holds index persistence settings.
type SnapshotConfig struct {
	// Dir is the directory for snapshot artifacts.
	Dir string `mapstructure:"dir" yaml:"dir"`
	// Watch reloads the snapshot when a rebuild commits a new one.
	Watch bool `mapstructure:"watch" yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Debug enables debug-level logging.
	Debug bool `mapstructure:"debug" yaml:"debug"`
	// JSON switches to JSON log output for service deployments.
	JSON bool `mapstructure:"json" yaml:"json"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Mongo: MongoConfig{
			Database:        "skillswap",
			UsersCollection: "users",
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Dimensions: 768,
			OllamaURL:  "http://localhost:11434",
		},
		Snapshot: SnapshotConfig{
			Dir:   DefaultSnapshotDir,
			Watch: true,
		},
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8090,
		},
		Log: LogConfig{},
	}
}

// Load reads configuration from the given file (optional), the environment
// and defaults, in that priority order.
func Load(configFile string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("skillmatch")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/skillmatch")
	}

	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()

	// Environment bindings, with unprefixed fallbacks matching the
	// deployment's existing variable names.
	_ = v.BindEnv("mongo.uri", "SKILLMATCH_MONGO_URI", "MONGO_URI")
	_ = v.BindEnv("mongo.database", "SKILLMATCH_MONGO_DB", "MONGO_DB")
	_ = v.BindEnv("mongo.users_collection", "SKILLMATCH_USERS_COLLECTION")
	_ = v.BindEnv("embedding.provider", "SKILLMATCH_EMBEDDING_PROVIDER")
	_ = v.BindEnv("embedding.model", "SKILLMATCH_EMBEDDING_MODEL", "EMBEDDING_MODEL")
	_ = v.BindEnv("embedding.dimensions", "SKILLMATCH_EMBEDDING_DIMENSIONS")
	_ = v.BindEnv("embedding.ollama_url", "SKILLMATCH_OLLAMA_URL")
	_ = v.BindEnv("embedding.openai_api_key", "SKILLMATCH_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("embedding.openai_base_url", "SKILLMATCH_OPENAI_BASE_URL", "OPENAI_BASE_URL")
	_ = v.BindEnv("snapshot.dir", "SKILLMATCH_SNAPSHOT_DIR")
	_ = v.BindEnv("server.host", "SKILLMATCH_HOST")
	_ = v.BindEnv("server.port", "SKILLMATCH_PORT", "PORT")
	_ = v.BindEnv("log.debug", "SKILLMATCH_DEBUG")
	_ = v.BindEnv("log.json", "SKILLMATCH_LOG_JSON")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Missing config file is fine, env and defaults carry the day.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return cfg, nil
}

// WriteDefault writes a commented starter config to path. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	header := []byte("# skillmatch configuration\n# Values can be overridden via SKILLMATCH_* environment variables.\n")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, append(header, data...), 0o644)
}
