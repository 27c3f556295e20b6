// Package config loads the agent configuration: built-in defaults, then an
// optional YAML file, then .env entries, then the process environment.
package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"paraderos-agent/internal/location"
	"paraderos-agent/internal/tasks"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

type Config struct {
	Backend struct {
		URL                string        `yaml:"url"`
		LocationSocketPath string        `yaml:"location_socket_path"`
		Event              string        `yaml:"event"`
		ReportTimeout      time.Duration `yaml:"report_timeout"`
		ReconnectAttempts  int           `yaml:"reconnect_attempts"`
	} `yaml:"backend"`

	Store struct {
		Driver      string `yaml:"driver"`
		DatabaseURL string `yaml:"database_url"`
	} `yaml:"store"`

	Location struct {
		Updates           location.UpdatesConfig `yaml:"updates"`
		HeartbeatAccuracy location.Accuracy      `yaml:"heartbeat_accuracy"`
		// FixFile is written by the platform location bridge. When empty the
		// agent reports the default position.
		FixFile          string        `yaml:"fix_file"`
		FixMaxAge        time.Duration `yaml:"fix_max_age"`
		DefaultLatitude  float64       `yaml:"default_latitude"`
		DefaultLongitude float64       `yaml:"default_longitude"`
		// Answers given to permission prompts on a headless device
		ForegroundPermission location.PermissionStatus `yaml:"foreground_permission"`
		BackgroundPermission location.PermissionStatus `yaml:"background_permission"`
	} `yaml:"location"`

	Tasks struct {
		Budget           time.Duration `yaml:"budget"`
		WatchdogInterval time.Duration `yaml:"watchdog_interval"`
		Background       tasks.Status  `yaml:"background"`
	} `yaml:"tasks"`

	Control struct {
		Addr           string   `yaml:"addr"`
		JWTSecret      string   `yaml:"jwt_secret"`
		AllowedOrigins []string `yaml:"allowed_origins"`
		// bcrypt hash of the operator password; enables POST /auth/token
		PasswordHash string `yaml:"password_hash"`
	} `yaml:"control"`

	Notifications struct {
		FCMCredentialsFile   string   `yaml:"fcm_credentials_file"`
		FCMCredentialsBase64 string   `yaml:"fcm_credentials_base64"`
		DeviceTokens         []string `yaml:"device_tokens"`
	} `yaml:"notifications"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	cfg := &Config{}

	cfg.Backend.URL = "http://localhost:8080"
	cfg.Backend.LocationSocketPath = "/gps"
	cfg.Backend.Event = "actualizar-gps"
	cfg.Backend.ReportTimeout = 4500 * time.Millisecond
	cfg.Backend.ReconnectAttempts = 2

	cfg.Store.Driver = StoreMemory

	cfg.Location.Updates = location.DefaultUpdatesConfig()
	cfg.Location.HeartbeatAccuracy = location.AccuracyBalanced
	cfg.Location.FixMaxAge = 2 * time.Minute
	cfg.Location.DefaultLatitude = -33.6117
	cfg.Location.DefaultLongitude = -70.5757
	cfg.Location.ForegroundPermission = location.PermissionGranted
	cfg.Location.BackgroundPermission = location.PermissionGranted

	cfg.Tasks.Budget = 25 * time.Second
	cfg.Tasks.WatchdogInterval = 15 * time.Minute
	cfg.Tasks.Background = tasks.StatusAvailable

	cfg.Control.Addr = "127.0.0.1:8090"
	cfg.Control.AllowedOrigins = []string{"*"}

	return cfg
}

// Load builds the configuration. path may be empty. envFiles default to
// ".env"; a missing default file is not an error.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	fileEnv, err := readEnvFiles(envFiles)
	if err != nil {
		return nil, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func readEnvFiles(files []string) (map[string]string, error) {
	if len(files) == 0 {
		env, err := godotenv.Read()
		if errors.Is(err, os.ErrNotExist) {
			log.Println("No .env file found, using environment variables")
			return map[string]string{}, nil
		}
		return env, err
	}
	env, err := godotenv.Read(files...)
	if err != nil {
		return nil, fmt.Errorf("failed to read env file: %w", err)
	}
	return env, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("BACKEND_URL", &c.Backend.URL)
	str("LOCATION_SOCKET_PATH", &c.Backend.LocationSocketPath)
	str("DATABASE_URL", &c.Store.DatabaseURL)
	str("STORE_DRIVER", &c.Store.Driver)
	str("CONTROL_ADDR", &c.Control.Addr)
	str("CONTROL_JWT_SECRET", &c.Control.JWTSecret)
	str("FIX_FILE", &c.Location.FixFile)
	str("CONTROL_PASSWORD_HASH", &c.Control.PasswordHash)
	str("FCM_CREDENTIALS_FILE", &c.Notifications.FCMCredentialsFile)
	str("FCM_CREDENTIALS_BASE64", &c.Notifications.FCMCredentialsBase64)
	if v, ok := lookup("FCM_DEVICE_TOKENS"); ok && v != "" {
		c.Notifications.DeviceTokens = splitList(v)
	}

	if err := dur("REPORT_TIMEOUT", &c.Backend.ReportTimeout); err != nil {
		return err
	}
	return dur("WATCHDOG_INTERVAL", &c.Tasks.WatchdogInterval)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseDuration accepts Go durations and plain milliseconds
func parseDuration(v string) (time.Duration, error) {
	if ms, err := strconv.Atoi(v); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(v)
}

func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if c.Backend.URL == "" || err != nil || u.Host == "" {
		return fmt.Errorf("config: invalid backend url %q", c.Backend.URL)
	}
	switch u.Scheme {
	case "http", "https", "ws", "wss":
	default:
		return fmt.Errorf("config: unsupported backend url scheme %q", u.Scheme)
	}
	if c.Backend.ReportTimeout <= 0 {
		return errors.New("config: report timeout must be positive")
	}
	if c.Backend.ReconnectAttempts < 0 {
		return errors.New("config: reconnect attempts cannot be negative")
	}
	if c.Location.Updates.MinInterval <= 0 {
		return errors.New("config: location update interval must be positive")
	}
	if c.Location.Updates.DeferredBatchWindow < 0 || c.Location.Updates.MinDistanceMeters < 0 {
		return errors.New("config: location batch window and distance cannot be negative")
	}
	if c.Tasks.WatchdogInterval <= 0 {
		return errors.New("config: watchdog interval must be positive")
	}
	if c.Tasks.Budget <= 0 {
		return errors.New("config: task budget must be positive")
	}
	if c.Backend.ReportTimeout >= c.Tasks.Budget {
		return fmt.Errorf("config: report timeout %s must be shorter than the task budget %s", c.Backend.ReportTimeout, c.Tasks.Budget)
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Store.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	for _, p := range []location.PermissionStatus{c.Location.ForegroundPermission, c.Location.BackgroundPermission} {
		switch p {
		case location.PermissionGranted, location.PermissionDenied, location.PermissionUndetermined:
		default:
			return fmt.Errorf("config: unknown permission status %q", p)
		}
	}
	switch c.Tasks.Background {
	case tasks.StatusAvailable, tasks.StatusRestricted, tasks.StatusDenied:
	default:
		return fmt.Errorf("config: unknown background status %q", c.Tasks.Background)
	}
	return nil
}

// LocationEndpoint joins the backend URL and the location socket path
func (c *Config) LocationEndpoint() string {
	return strings.TrimRight(c.Backend.URL, "/") + "/" + strings.TrimLeft(c.Backend.LocationSocketPath, "/")
}
