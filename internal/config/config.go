package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config represents runtime configuration for both halves of the app:
// the session service and the chat client.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Databases   map[string]DatabaseConfig `json:"databases"`
	Redis       RedisConfig               `json:"redis"`
	Client      ClientConfig              `json:"client"`
}

type BasicConfig struct {
	ServerAddress string `json:"server_address"`
	TokenTTLHours int    `json:"token_ttl_hours"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Username string `json:"username"`
	Password string `json:"password"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	DBName   string `json:"db_name"`
	Params   string `json:"params"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// ClientConfig configures the chat client: where the RAG backend and
// the session service live, where guest state is kept on disk, and the
// guest send quota.
type ClientConfig struct {
	RAGBaseURL        string `json:"rag_base_url"`
	SessionServiceURL string `json:"session_service_url"`
	StateDir          string `json:"state_dir"`
	GuestMessageLimit int    `json:"guest_message_limit"`
	AuthToken         string `json:"auth_token"`
	UserID            string `json:"user_id"`
}

// Load reads configuration from the provided path (defaults to config.json).
func Load(path string) (*Config, error) {
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Client.RAGBaseURL == "" {
		cfg.Client.RAGBaseURL = "http://localhost:5000"
	}
	if cfg.Client.GuestMessageLimit <= 0 {
		cfg.Client.GuestMessageLimit = 20
	}
	if cfg.Client.StateDir == "" {
		cfg.Client.StateDir = "./data"
	}
	if !filepath.IsAbs(cfg.Client.StateDir) {
		cfg.Client.StateDir = filepath.Join(filepath.Dir(absPath), cfg.Client.StateDir)
	}

	return &cfg, nil
}
