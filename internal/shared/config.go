package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Firebase FirebaseConfig `toml:"firebase"`
	Billing  BillingConfig  `toml:"billing"`
	Email    EmailConfig    `toml:"email"`
	AI       AIConfig       `toml:"ai"`
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Redis    RedisConfig    `toml:"redis"`
	Tasks    TasksConfig    `toml:"tasks"`
}

// FirebaseConfig identifies the Firebase project backing the document store and identity provider.
type FirebaseConfig struct {
	ProjectID       string `toml:"project_id"`
	CredentialsFile string `toml:"credentials_file"`
}

// BillingConfig contains the secret keys for both Stripe accounts.
//
// The Rep account holds retainer subscriptions, the CPF account holds ISA subscriptions.
type BillingConfig struct {
	RepSecretKey string `toml:"rep_secret_key"`
	CPFSecretKey string `toml:"cpf_secret_key"`
	ISAPriceID   string `toml:"isa_price_id"`
	AnchorDays   int    `toml:"anchor_days"`
}

// EmailConfig contains transactional email settings.
type EmailConfig struct {
	APIKey      string `toml:"api_key"`
	From        string `toml:"from"`
	SenderEmail string `toml:"sender_email"`
	InternalTo  string `toml:"internal_to"`
}

// AIConfig contains generative text settings.
type AIConfig struct {
	APIKey          string   `toml:"api_key"`
	APIVersion      string   `toml:"api_version"`
	Models          []string `toml:"models"`
	ATSModels       []string `toml:"ats_models"`
	Temperature     float32  `toml:"temperature"`
	MaxOutputTokens int32    `toml:"max_output_tokens"`
	BaseURL         string   `toml:"base_url"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	EventSecret    string   `toml:"event_secret"`
	RateLimit      float64  `toml:"rate_limit"`
	RateBurst      int      `toml:"rate_burst"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// DatabaseConfig contains database connection settings for the local run ledger.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// RedisConfig enables the placement lock when URL is set.
type RedisConfig struct {
	URL        string `toml:"url"`
	LockTTLSec int    `toml:"lock_ttl_seconds"`
}

// TasksConfig tunes the data tasks.
type TasksConfig struct {
	BatchLimit int     `toml:"batch_limit"`
	CommitRate float64 `toml:"commit_rate"`
}

// Addr returns the listen address for the HTTP server.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys absent from the file keep their values from [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: failed to parse config: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadEnvFile loads key/value pairs from a dotenv file into the process environment.
//
// Variables already present in the environment win. A missing file is not an error.
func LoadEnvFile(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides secrets and deployment settings from environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if getenv == nil {
		getenv = os.Getenv
	}

	set := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}

	set(&c.Firebase.ProjectID, "FIREBASE_PROJECT_ID", "GOOGLE_CLOUD_PROJECT")
	set(&c.Firebase.CredentialsFile, "GOOGLE_APPLICATION_CREDENTIALS")
	set(&c.Billing.RepSecretKey, "STRIPE_SECRET_KEY_REP")
	set(&c.Billing.CPFSecretKey, "STRIPE_SECRET_KEY_CPF")
	set(&c.Billing.ISAPriceID, "STRIPE_ISA_PRICE_ID")
	set(&c.Email.APIKey, "RESEND_API_KEY")
	set(&c.AI.APIKey, "GEMINI_API_KEY")
	set(&c.Server.EventSecret, "REP_EVENT_SECRET")
	set(&c.Redis.URL, "REDIS_URL", "REDIS_ADDR")
	set(&c.Database.Path, "REP_DB_PATH")

	if v := getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
}

// Validate checks the settings required to serve requests.
func (c *Config) Validate() error {
	var missing []string
	if c.Firebase.ProjectID == "" {
		missing = append(missing, "firebase.project_id")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	if c.Tasks.BatchLimit <= 0 || c.Tasks.BatchLimit > 500 {
		return fmt.Errorf("%w: tasks.batch_limit must be between 1 and 500", ErrInvalidConfig)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}
