package config

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	dc "github.com/studio233/batchd/data/config"
	"github.com/studio233/batchd/logging/logger"
	lc "github.com/studio233/batchd/logging/logger/config"
)

// EnvPrefix prefixes environment overrides, e.g. BATCHD_SERVER_PORT.
const EnvPrefix = "BATCHD"

var (
	config *Config
	path   string
	once   sync.Once
	mu     sync.Mutex
	v      *viper.Viper
)

// Data and Logger are read by the packages that consume them.
type (
	Data   = dc.Config
	Logger = lc.Config
)

// Config represents the configuration implementation.
type Config struct {
	AppName  string
	RunMode  string
	Protocol string
	Domain   string
	Host     string
	Port     int
	Consul   *Consul
	Observes *Observes
	Logger   *Logger
	Data     *Data
	Auth     *Auth
	Storage  *Storage
	Email    *Email
	Batch    *Batch
	Billing  *Billing
	Worker   *Worker
	Gateway  *Gateway
	Viper    *viper.Viper
}

func init() {
	flag.StringVar(&path, "conf", "", "e.g: bin ./config.yaml")
	v = newViper()
}

func newViper() *viper.Viper {
	nv := viper.New()
	nv.SetEnvPrefix(EnvPrefix)
	nv.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	nv.AutomaticEnv()
	return nv
}

// SetPath overrides the config file path, used by the CLI --config flag.
func SetPath(p string) {
	mu.Lock()
	defer mu.Unlock()
	path = p
}

// Init initializes and loads the configuration.
func Init() (cfg *Config, err error) {
	once.Do(func() {
		cfg, err = loadConfiguration()
	})
	if err == nil && cfg == nil {
		cfg = config
	}
	return cfg, err
}

// GetConfig returns the configuration.
func GetConfig() (*Config, error) {
	if config == nil {
		var err error
		config, err = Init()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize config: %w", err)
		}
	}
	return config, nil
}

// loadConfiguration loads the configuration from the file and sets it globally.
func loadConfiguration() (*Config, error) {
	if !flag.Parsed() {
		flag.Parse()
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}
	config = cfg
	return cfg, nil
}

// LoadConfig loads the configuration from configPath, or from config.yaml in
// the default search paths. Without an explicit path a missing file is not
// an error; defaults and BATCHD_* environment variables apply.
func LoadConfig(configPath string) (*Config, error) {
	nv := newViper()
	if configPath != "" {
		nv.SetConfigFile(configPath)
	} else {
		nv.SetConfigName("config")
		nv.AddConfigPath("/etc/batchd")
		nv.AddConfigPath("$HOME/.batchd")
		nv.AddConfigPath(".")
		if ex, err := os.Executable(); err == nil {
			nv.AddConfigPath(filepath.Dir(ex))
		}
	}

	if err := nv.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v = nv
	return fromViper(nv), nil
}

func fromViper(v *viper.Viper) *Config {
	appName := getStringOrDefault(v, "app_name", "batchd")
	return &Config{
		AppName:  appName,
		RunMode:  getStringOrDefault(v, "run_mode", "release"),
		Protocol: getStringOrDefault(v, "server.protocol", "http"),
		Domain:   getStringOrDefault(v, "server.domain", "localhost"),
		Host:     getStringOrDefault(v, "server.host", "0.0.0.0"),
		Port:     getIntOrDefault(v, "server.port", 8233),
		Consul:   getConsulConfig(v),
		Observes: getObservesConfig(v, appName),
		Logger:   lc.GetConfig(v),
		Data:     dc.GetConfig(v),
		Auth:     getAuth(v),
		Storage:  getStorageConfig(v),
		Email:    getEmailConfig(v),
		Batch:    getBatchConfig(v),
		Billing:  getBillingConfig(v),
		Worker:   getWorkerConfig(v),
		Gateway:  getGatewayConfig(v),
		Viper:    v,
	}
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// BaseURL returns the externally visible base URL.
func (c *Config) BaseURL() string {
	return fmt.Sprintf("%s://%s:%d", c.Protocol, c.Domain, c.Port)
}

// Reload reloads the configuration from the file.
func Reload() error {
	mu.Lock()
	defer mu.Unlock()

	newConfig, err := LoadConfig(path)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	config = newConfig
	return nil
}

// Watch watches the configuration file and reloads it when it changes.
func Watch(callback func(*Config)) {
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		if err := Reload(); err != nil {
			logger.Error(context.Background(), "error reloading config", "file", e.Name, "error", err)
			return
		}
		logger.Info(context.Background(), "config reloaded", "file", e.Name)
		callback(config)
	})
}
