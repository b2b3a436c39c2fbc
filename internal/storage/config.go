package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers accepted in store.driver.
const (
	DriverSQLite   = "sqlite"
	DriverDynamoDB = "dynamodb"
	DriverMongo    = "mongodb"
)

// EnvDevelopment is the ENV value that selects the local DynamoDB endpoint.
const EnvDevelopment = "development"

type Config struct {
	Env string `yaml:"env" toml:"env"`

	Store struct {
		Driver      string `yaml:"driver" toml:"driver"`
		Table       string `yaml:"table" toml:"table"`
		Path        string `yaml:"path" toml:"path"`
		CreateTable bool   `yaml:"create_table" toml:"create_table"`
	} `yaml:"store" toml:"store"`

	DynamoDB struct {
		Endpoint        string `yaml:"endpoint,omitempty" toml:"endpoint"`
		Region          string `yaml:"region" toml:"region"`
		AccessKeyID     string `yaml:"access_key_id,omitempty" toml:"access_key_id"`
		SecretAccessKey string `yaml:"secret_access_key,omitempty" toml:"secret_access_key"`
	} `yaml:"dynamodb" toml:"dynamodb"`

	Mongo struct {
		URI      string `yaml:"uri" toml:"uri"`
		Database string `yaml:"database" toml:"database"`
	} `yaml:"mongodb" toml:"mongodb"`

	Qiita struct {
		BaseURL            string        `yaml:"base_url" toml:"base_url"`
		UserID             string        `yaml:"user_id" toml:"user_id"`
		AccessToken        string        `yaml:"access_token,omitempty" toml:"access_token"`
		PerPage            int           `yaml:"per_page" toml:"per_page"`
		MaxPages           int           `yaml:"max_pages" toml:"max_pages"`
		Timeout            time.Duration `yaml:"timeout" toml:"timeout"`
		RateLimitThreshold int           `yaml:"rate_limit_threshold" toml:"rate_limit_threshold"`
	} `yaml:"qiita" toml:"qiita"`

	Importer struct {
		BatchSize  int           `yaml:"batch_size" toml:"batch_size"`
		BatchPause time.Duration `yaml:"batch_pause" toml:"batch_pause"`
	} `yaml:"importer" toml:"importer"`

	Server struct {
		Addr           string   `yaml:"addr" toml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
	} `yaml:"server" toml:"server"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Store.Driver = DriverSQLite
	cfg.Store.Table = "ArticlesTable"
	cfg.Store.Path = "./techstock.db"
	cfg.DynamoDB.Region = "ap-northeast-1"
	cfg.Mongo.URI = "mongodb://localhost:27017"
	cfg.Mongo.Database = "techstock"
	cfg.Qiita.BaseURL = "https://qiita.com/api/v2"
	cfg.Qiita.PerPage = 20
	cfg.Qiita.MaxPages = 5
	cfg.Qiita.Timeout = 5 * time.Second
	cfg.Qiita.RateLimitThreshold = 10
	cfg.Importer.BatchSize = 5
	cfg.Importer.BatchPause = 100 * time.Millisecond
	cfg.Server.Addr = ":3001"
	cfg.Server.AllowedOrigins = []string{"http://localhost:3000"}
	return cfg
}

// Development reports whether the config targets the local development stack.
func (c *Config) Development() bool {
	return c.Env == EnvDevelopment
}

// LoadConfig builds a Config from defaults, the file at path (YAML, or TOML
// when the name ends in .toml), a .env file in the working directory, and
// finally the process environment. A missing config or .env file is not an
// error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// defaults
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		case strings.EqualFold(filepath.Ext(path), ".toml"):
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg.ApplyEnv(os.LookupEnv)
	return cfg, nil
}

// ApplyEnv overlays environment variables onto the config. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("ENV", &c.Env)
	str("STORE_DRIVER", &c.Store.Driver)
	str("TABLE_NAME", &c.Store.Table)
	str("DB_PATH", &c.Store.Path)
	str("DYNAMODB_ENDPOINT", &c.DynamoDB.Endpoint)
	str("AWS_REGION", &c.DynamoDB.Region)
	str("MONGODB_URI", &c.Mongo.URI)
	str("QIITA_API_URL", &c.Qiita.BaseURL)
	str("QIITA_USER_ID", &c.Qiita.UserID)
	str("QIITA_ACCESS_TOKEN", &c.Qiita.AccessToken)

	if v, ok := lookup("FRONTEND_URL"); ok && v != "" {
		origins := []string{}
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		c.Server.AllowedOrigins = appendMissing(origins, "http://localhost:3000")
	}

	if c.Development() {
		if c.DynamoDB.Endpoint == "" {
			c.DynamoDB.Endpoint = "http://localhost:8000"
		}
		if c.DynamoDB.AccessKeyID == "" {
			c.DynamoDB.AccessKeyID = "fakeaccesskey"
			c.DynamoDB.SecretAccessKey = "fakesecretaccesskey"
		}
		c.Store.CreateTable = true
	}
}

func appendMissing(list []string, v string) []string {
	for _, s := range list {
		if s == v {
			return list
		}
	}
	return append(list, v)
}
