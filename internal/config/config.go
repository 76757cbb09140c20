// Package config reads process settings from the environment.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/multierr"
)

type Role string

const (
	RoleCustomer   Role = "customer"
	RoleKitchen    Role = "kitchen"
	RoleManagement Role = "management"
)

func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleKitchen, RoleManagement:
		return true
	}
	return false
}

// Staff reports whether the role watches the order and waiter-request feeds.
func (r Role) Staff() bool {
	return r == RoleKitchen || r == RoleManagement
}

type Poll struct {
	Orders   time.Duration
	Requests time.Duration
	Waiters  time.Duration
	Tracker  time.Duration
	Menu     time.Duration
	Timeout  time.Duration
}

type Notifications struct {
	Capacity int
	TTL      time.Duration
	Sound    bool
	Desktop  bool
}

type Checkout struct {
	SubmitRetries int
	RetryInterval time.Duration
}

type Reconcile struct {
	Interval    time.Duration
	MaxAttempts int
	BatchSize   int
}

type Config struct {
	Role           Role
	Port           string
	Origin         string
	StoreURL       string
	PaymentURL     string
	PostgresURL    string
	KafkaBrokers   []string
	OTLPEndpoint   string
	ServiceVersion string
	ReadRetries    int

	Poll          Poll
	Notifications Notifications
	Checkout      Checkout
	Reconcile     Reconcile
}

// RelayEnabled reports whether notifications are mirrored over Kafka.
func (c *Config) RelayEnabled() bool { return len(c.KafkaBrokers) > 0 }

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("TABLEFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Shared with the rest of the deployment, so read without the prefix.
	_ = v.BindEnv("port", "PORT")
	_ = v.BindEnv("kafka_brokers", "KAFKA_BROKERS")
	_ = v.BindEnv("postgres_url", "POSTGRES_URL")
	_ = v.BindEnv("otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	v.SetDefault("role", string(RoleKitchen))
	v.SetDefault("port", "8080")
	v.SetDefault("otlp_endpoint", "localhost:4317")
	v.SetDefault("service_version", "0.1.0")
	v.SetDefault("read_retries", 1)

	v.SetDefault("notifications.capacity", 50)
	v.SetDefault("notifications.ttl", 10*time.Second)
	v.SetDefault("notifications.sound", true)
	v.SetDefault("notifications.desktop", true)

	v.SetDefault("checkout.submit_retries", 2)
	v.SetDefault("checkout.retry_interval", 500*time.Millisecond)

	v.SetDefault("reconcile.interval", 30*time.Second)
	v.SetDefault("reconcile.max_attempts", 5)
	v.SetDefault("reconcile.batch_size", 50)

	v.SetDefault("poll.requests", 2*time.Second)
	v.SetDefault("poll.waiters", 5*time.Second)
	v.SetDefault("poll.tracker", 2*time.Second)
	v.SetDefault("poll.menu", 30*time.Second)
	v.SetDefault("poll.timeout", 10*time.Second)
	return v
}

// Load reads the configuration for a terminal process. The poll intervals
// default to what each role's screen used: the kitchen refreshes orders every
// 2s and management every 3s.
func Load() (*Config, error) {
	v := newViper()

	role := Role(strings.ToLower(v.GetString("role")))
	if role == RoleManagement {
		v.SetDefault("poll.orders", 3*time.Second)
	} else {
		v.SetDefault("poll.orders", 2*time.Second)
	}

	cfg := &Config{
		Role:           role,
		Port:           v.GetString("port"),
		Origin:         v.GetString("origin"),
		StoreURL:       strings.TrimRight(v.GetString("store_url"), "/"),
		PaymentURL:     strings.TrimRight(v.GetString("payment_url"), "/"),
		PostgresURL:    v.GetString("postgres_url"),
		KafkaBrokers:   splitList(v.GetString("kafka_brokers")),
		OTLPEndpoint:   v.GetString("otlp_endpoint"),
		ServiceVersion: v.GetString("service_version"),
		ReadRetries:    v.GetInt("read_retries"),
		Poll: Poll{
			Orders:   v.GetDuration("poll.orders"),
			Requests: v.GetDuration("poll.requests"),
			Waiters:  v.GetDuration("poll.waiters"),
			Tracker:  v.GetDuration("poll.tracker"),
			Menu:     v.GetDuration("poll.menu"),
			Timeout:  v.GetDuration("poll.timeout"),
		},
		Notifications: Notifications{
			Capacity: v.GetInt("notifications.capacity"),
			TTL:      v.GetDuration("notifications.ttl"),
			Sound:    v.GetBool("notifications.sound"),
			Desktop:  v.GetBool("notifications.desktop"),
		},
		Checkout: Checkout{
			SubmitRetries: v.GetInt("checkout.submit_retries"),
			RetryInterval: v.GetDuration("checkout.retry_interval"),
		},
		Reconcile: Reconcile{
			Interval:    v.GetDuration("reconcile.interval"),
			MaxAttempts: v.GetInt("reconcile.max_attempts"),
			BatchSize:   v.GetInt("reconcile.batch_size"),
		},
	}

	if cfg.Origin == "" {
		host, _ := os.Hostname()
		cfg.Origin = fmt.Sprintf("%s-%s-%d", cfg.Role, host, os.Getpid())
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs error
	if !c.Role.Valid() {
		errs = multierr.Append(errs, fmt.Errorf("TABLEFLOW_ROLE %q must be customer, kitchen or management", c.Role))
	}
	if c.StoreURL == "" {
		errs = multierr.Append(errs, fmt.Errorf("TABLEFLOW_STORE_URL is required"))
	}
	if c.Role == RoleCustomer && c.PostgresURL == "" {
		errs = multierr.Append(errs, fmt.Errorf("POSTGRES_URL is required for the customer terminal"))
	}
	if c.Port == "" {
		errs = multierr.Append(errs, fmt.Errorf("PORT must not be empty"))
	}

	for name, d := range map[string]time.Duration{
		"poll.orders":   c.Poll.Orders,
		"poll.requests": c.Poll.Requests,
		"poll.waiters":  c.Poll.Waiters,
		"poll.tracker":  c.Poll.Tracker,
		"poll.menu":     c.Poll.Menu,
	} {
		if d <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("%s must be positive, got %v", name, d))
		}
	}
	if c.Notifications.Capacity <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("notifications.capacity must be positive, got %d", c.Notifications.Capacity))
	}
	if c.Notifications.TTL < 0 {
		errs = multierr.Append(errs, fmt.Errorf("notifications.ttl must not be negative, got %v", c.Notifications.TTL))
	}
	if c.Checkout.SubmitRetries < 0 {
		errs = multierr.Append(errs, fmt.Errorf("checkout.submit_retries must not be negative, got %d", c.Checkout.SubmitRetries))
	}
	return errs
}

// LoadReconciler reads the configuration of the reconciler process.
func LoadReconciler() (*Config, error) {
	v := newViper()
	cfg := &Config{
		Port:           v.GetString("port"),
		Origin:         v.GetString("origin"),
		StoreURL:       strings.TrimRight(v.GetString("store_url"), "/"),
		PostgresURL:    v.GetString("postgres_url"),
		KafkaBrokers:   splitList(v.GetString("kafka_brokers")),
		OTLPEndpoint:   v.GetString("otlp_endpoint"),
		ServiceVersion: v.GetString("service_version"),
		ReadRetries:    v.GetInt("read_retries"),
		Reconcile: Reconcile{
			Interval:    v.GetDuration("reconcile.interval"),
			MaxAttempts: v.GetInt("reconcile.max_attempts"),
			BatchSize:   v.GetInt("reconcile.batch_size"),
		},
	}
	if cfg.Origin == "" {
		host, _ := os.Hostname()
		cfg.Origin = fmt.Sprintf("reconciler-%s-%d", host, os.Getpid())
	}

	var errs error
	if cfg.StoreURL == "" {
		errs = multierr.Append(errs, fmt.Errorf("TABLEFLOW_STORE_URL is required"))
	}
	if cfg.PostgresURL == "" {
		errs = multierr.Append(errs, fmt.Errorf("POSTGRES_URL is required"))
	}
	if cfg.Reconcile.Interval <= 0 {
		errs = multierr.Append(errs, fmt.Errorf("reconcile.interval must be positive, got %v", cfg.Reconcile.Interval))
	}
	if cfg.Reconcile.MaxAttempts < 1 {
		errs = multierr.Append(errs, fmt.Errorf("reconcile.max_attempts must be at least 1, got %d", cfg.Reconcile.MaxAttempts))
	}
	if cfg.Reconcile.BatchSize < 1 {
		errs = multierr.Append(errs, fmt.Errorf("reconcile.batch_size must be at least 1, got %d", cfg.Reconcile.BatchSize))
	}
	if errs != nil {
		return nil, errs
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
