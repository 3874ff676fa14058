package artauction

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

type Config struct {
	Log    LogConfig    `toml:"log"`
	DB     DBConfig     `toml:"db"`
	Spaces SpacesConfig `toml:"spaces"`
	Chain  ChainConfig  `toml:"chain"`
	Server ServerConfig `toml:"server"`
	Ingest IngestConfig `toml:"ingest"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	AddSource bool       `toml:"add_source"`
}

type DBConfig struct {
	URI            string `toml:"uri"`
	Database       string `toml:"database"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	MinPoolSize    uint64 `toml:"min_pool_size"`
	MaxPoolSize    uint64 `toml:"max_pool_size"`
}

// OpTimeout bounds every single read model store call.
func (c DBConfig) OpTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type SpacesConfig struct {
	Key    string `toml:"key"`
	Secret string `toml:"secret"`
	Region string `toml:"region"`
	Bucket string `toml:"bucket"`
	Root   string `toml:"root"`
}

type ChainConfig struct {
	WSURL      string `toml:"ws_url"`
	Contract   string `toml:"contract"`
	StartBlock uint64 `toml:"start_block"`
	QueueSize  int    `toml:"queue_size"`
	Shards     int    `toml:"shards"`
}

type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

type IngestConfig struct {
	MaxUploadBytes int64  `toml:"max_upload_bytes"`
	TempDir        string `toml:"temp_dir"`
}

func (c *Config) applyDefaults() {
	if c.DB.Database == "" {
		c.DB.Database = "art-auction"
	}
	if c.Chain.QueueSize <= 0 {
		c.Chain.QueueSize = 256
	}
	if c.Chain.Shards <= 0 {
		c.Chain.Shards = 8
	}
	if c.Server.Port == 0 {
		c.Server.Port = 5000
	}
	if c.Ingest.MaxUploadBytes <= 0 {
		c.Ingest.MaxUploadBytes = 50 * 1024 * 1024
	}
	if c.Ingest.TempDir == "" {
		c.Ingest.TempDir = os.TempDir()
	}
}
