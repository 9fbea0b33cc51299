package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vitwit/storefront/types"
	"github.com/vitwit/storefront/utils"
	"github.com/vitwit/storefront/wallet"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STOREFRONT_"

// Config aggregates the storefront's configuration.
type Config struct {
	Chain types.ChainSpec `json:"chain"`
	// NodeURL is the chain node used for server-side verification. It
	// defaults to the chain's first RPC URL.
	NodeURL       string         `json:"nodeUrl" validate:"omitempty,url"`
	PublicBaseURL string         `json:"publicBaseUrl" validate:"required,url"`
	Checkout      CheckoutConfig `json:"checkout"`
	Wallets       []wallet.Spec  `json:"wallets" validate:"dive"`
	Database      DatabaseConfig `json:"database"`
	Rabbit        RabbitConfig   `json:"rabbit"`
	HTTP          HTTPConfig     `json:"http"`
	Logging       LoggingConfig  `json:"logging"`
	Metrics       MetricsConfig  `json:"metrics"`
}

// CheckoutConfig bounds the payment flow.
type CheckoutConfig struct {
	PollInterval  Duration `json:"pollInterval" validate:"gt=0"`
	MaxAttempts   int      `json:"maxAttempts" validate:"gt=0"`
	GasLimit      uint64   `json:"gasLimit" validate:"gte=21000"`
	VerifyTimeout Duration `json:"verifyTimeout" validate:"gt=0"`
}

type DatabaseConfig struct {
	Driver string `json:"driver" validate:"oneof=memory postgres"`
	URL    string `json:"url" validate:"required_if=Driver postgres"`
}

// RabbitConfig configures event publishing. An empty URL keeps events in
// process.
type RabbitConfig struct {
	URL      string `json:"url"`
	Exchange string `json:"exchange" validate:"required"`
	Queue    string `json:"queue" validate:"required"`
}

type HTTPConfig struct {
	Addr            string   `json:"addr" validate:"required"`
	ReadTimeout     Duration `json:"readTimeout"`
	WriteTimeout    Duration `json:"writeTimeout"`
	ShutdownTimeout Duration `json:"shutdownTimeout"`
}

type LoggingConfig struct {
	Level  string `json:"level" validate:"oneof=debug info warn error"`
	Format string `json:"format" validate:"oneof=json console"`
}

type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"`
}

// Duration is a time.Duration that reads "3s" style strings from JSON.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string like \"3s\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Chain:         types.UmiDevnet,
		PublicBaseURL: "https://product.umify.xyz",
		Checkout: CheckoutConfig{
			PollInterval:  Duration(3 * time.Second),
			MaxAttempts:   60,
			GasLimit:      21000,
			VerifyTimeout: Duration(30 * time.Second),
		},
		Database: DatabaseConfig{Driver: "memory"},
		Rabbit: RabbitConfig{
			Exchange: "storefront.events",
			Queue:    "storefront.reconcile",
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     Duration(10 * time.Second),
			WriteTimeout:    Duration(15 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Metrics: MetricsConfig{Enabled: true, Namespace: "storefront"},
	}
}

// Load reads the JSON file named by STOREFRONT_CONFIG, if any, over the
// defaults, then applies STOREFRONT_* environment overrides and validates.
func Load() (Config, error) {
	cfg := Default()

	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := Parse(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse strictly decodes data over cfg. Unknown keys are rejected.
func Parse(data []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

// Validate checks the struct tags and the cross-field rules.
func (c *Config) Validate() error {
	if err := utils.ValidateStruct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Checkout.PollInterval.Std() < 100*time.Millisecond {
		return fmt.Errorf("invalid config: checkout poll interval %s is too short", c.Checkout.PollInterval.Std())
	}
	return nil
}

// ChainNodeURL is the node used for server-side chain reads.
func (c *Config) ChainNodeURL() string {
	if c.NodeURL != "" {
		return c.NodeURL
	}
	if len(c.Chain.RPCURLs) > 0 {
		return c.Chain.RPCURLs[0]
	}
	return ""
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(EnvPrefix + key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *Duration) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
		}
		*dst = Duration(d)
		return nil
	}
	integer := func(key string, dst *int) error {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s value %q: %w", EnvPrefix, key, v, err)
		}
		*dst = n
		return nil
	}

	str("NODE_URL", &cfg.NodeURL)
	str("PUBLIC_BASE_URL", &cfg.PublicBaseURL)
	str("DATABASE_DRIVER", &cfg.Database.Driver)
	str("DATABASE_URL", &cfg.Database.URL)
	str("RABBIT_URL", &cfg.Rabbit.URL)
	str("RABBIT_EXCHANGE", &cfg.Rabbit.Exchange)
	str("RABBIT_QUEUE", &cfg.Rabbit.Queue)
	str("HTTP_ADDR", &cfg.HTTP.Addr)
	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)
	str("METRICS_NAMESPACE", &cfg.Metrics.Namespace)

	if v, ok := lookup(EnvPrefix + "METRICS_ENABLED"); ok && v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sMETRICS_ENABLED: %w", EnvPrefix, err)
		}
		cfg.Metrics.Enabled = enabled
	}

	for key, dst := range map[string]*Duration{
		"POLL_INTERVAL":      &cfg.Checkout.PollInterval,
		"VERIFY_TIMEOUT":     &cfg.Checkout.VerifyTimeout,
		"HTTP_READ_TIMEOUT":  &cfg.HTTP.ReadTimeout,
		"HTTP_WRITE_TIMEOUT": &cfg.HTTP.WriteTimeout,
		"SHUTDOWN_TIMEOUT":   &cfg.HTTP.ShutdownTimeout,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	if err := integer("MAX_ATTEMPTS", &cfg.Checkout.MaxAttempts); err != nil {
		return err
	}

	// A key in the environment completes a configured wallet or adds a
	// keyed one.
	if key, ok := lookup(EnvPrefix + "WALLET_KEY"); ok && strings.TrimSpace(key) != "" {
		name := "Local signer"
		if v, ok := lookup(EnvPrefix + "WALLET_NAME"); ok && v != "" {
			name = v
		}
		attached := false
		for i := range cfg.Wallets {
			if cfg.Wallets[i].Name == name && cfg.Wallets[i].Endpoint == "" {
				cfg.Wallets[i].PrivateKey = key
				attached = true
			}
		}
		if !attached {
			kind := string(wallet.KindGeneric)
			if v, ok := lookup(EnvPrefix + "WALLET_KIND"); ok && v != "" {
				kind = v
			}
			cfg.Wallets = append(cfg.Wallets, wallet.Spec{Name: name, Kind: kind, PrivateKey: key})
		}
	}
	return nil
}
