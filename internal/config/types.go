package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds every server-level option for the public read gateway.
type Config struct {
	Server ServerConfig `koanf:"server"`
}

// ServerConfig collects the bootstrap knobs owned by the gateway process.
type ServerConfig struct {
	Listen    ListenConfig    `koanf:"listen"`
	Logging   LoggingConfig   `koanf:"logging"`
	Cache     CacheConfig     `koanf:"cache"`
	RateLimit RateLimitConfig `koanf:"rateLimit"`
	Search    SearchConfig    `koanf:"search"`
	Services  ServicesConfig  `koanf:"services"`
	Catalog   CatalogConfig   `koanf:"catalog"`
}

// ListenConfig instructs the HTTP listener about bind address and port.
type ListenConfig struct {
	Address string `koanf:"address"`
	Port    int    `koanf:"port"`
}

// LoggingConfig expresses log level and output format.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CacheConfig selects the cache backend and the TTL per resource class.
type CacheConfig struct {
	Backend string            `koanf:"backend"`
	TTL     CacheTTLConfig    `koanf:"ttl"`
	Valkey  ValkeyCacheConfig `koanf:"valkey"`
}

// CacheTTLConfig carries per-resource-class cache lifetimes in seconds.
// Lists and detail reads churn with tournament state, reference data
// (sports, venues) is near-static, and search results sit in between.
type CacheTTLConfig struct {
	ListSeconds      int `koanf:"listSeconds"`
	DetailSeconds    int `koanf:"detailSeconds"`
	ReferenceSeconds int `koanf:"referenceSeconds"`
	SearchSeconds    int `koanf:"searchSeconds"`
}

// List returns the list-class TTL as a duration.
func (c CacheTTLConfig) List() time.Duration { return time.Duration(c.ListSeconds) * time.Second }

// Detail returns the detail-class TTL as a duration.
func (c CacheTTLConfig) Detail() time.Duration { return time.Duration(c.DetailSeconds) * time.Second }

// Reference returns the reference-data TTL as a duration.
func (c CacheTTLConfig) Reference() time.Duration {
	return time.Duration(c.ReferenceSeconds) * time.Second
}

// Search returns the search-result TTL as a duration.
func (c CacheTTLConfig) Search() time.Duration { return time.Duration(c.SearchSeconds) * time.Second }

// ValkeyCacheConfig describes the connection to a shared Valkey instance.
type ValkeyCacheConfig struct {
	Address  string          `koanf:"address"`
	Username string          `koanf:"username"`
	Password string          `koanf:"password"`
	DB       int             `koanf:"db"`
	TLS      ValkeyTLSConfig `koanf:"tls"`
}

// ValkeyTLSConfig toggles TLS for the Valkey connection.
type ValkeyTLSConfig struct {
	Enabled bool   `koanf:"enabled"`
	CAFile  string `koanf:"caFile"`
}

// RateLimitConfig parameterizes the fixed-window limiter applied to every
// anonymous route.
type RateLimitConfig struct {
	Backend       string `koanf:"backend"`
	MaxAttempts   int    `koanf:"maxAttempts"`
	WindowSeconds int    `koanf:"windowSeconds"`
}

// Window returns the limiter window as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// SearchConfig bounds the ranked result set returned per query.
type SearchConfig struct {
	MaxResults int `koanf:"maxResults"`
}

// ServicesConfig addresses the downstream domain services the gateway fans
// out to during meta-search and detail enrichment.
type ServicesConfig struct {
	Teams   ServiceConfig `koanf:"teams"`
	Matches ServiceConfig `koanf:"matches"`
}

// ServiceConfig locates a single downstream service and bounds its calls.
type ServiceConfig struct {
	BaseURL        string `koanf:"baseUrl"`
	TimeoutSeconds int    `koanf:"timeoutSeconds"`
}

// Timeout returns the per-call deadline for the downstream service.
func (c ServiceConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// CatalogConfig sources the local read snapshot and the featured selector.
type CatalogConfig struct {
	FixturesFolder     string `koanf:"fixturesFolder"`
	FixturesFile       string `koanf:"fixturesFile"`
	FeaturedExpression string `koanf:"featuredExpression"`
}

// DefaultConfig returns the baseline settings applied before files and
// environment variables are layered on top.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Listen: ListenConfig{
				Address: "0.0.0.0",
				Port:    8080,
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "json",
			},
			Cache: CacheConfig{
				Backend: "memory",
				TTL: CacheTTLConfig{
					ListSeconds:      300,
					DetailSeconds:    300,
					ReferenceSeconds: 3600,
					SearchSeconds:    600,
				},
			},
			RateLimit: RateLimitConfig{
				Backend:       "memory",
				MaxAttempts:   60,
				WindowSeconds: 60,
			},
			Search: SearchConfig{
				MaxResults: 10,
			},
			Services: ServicesConfig{
				Teams:   ServiceConfig{TimeoutSeconds: 5},
				Matches: ServiceConfig{TimeoutSeconds: 5},
			},
			Catalog: CatalogConfig{
				FeaturedExpression: `featured || status == "live"`,
			},
		},
	}
}

// Validate rejects configurations the gateway cannot safely run with.
func (c Config) Validate() error {
	if c.Server.Listen.Port <= 0 || c.Server.Listen.Port > 65535 {
		return fmt.Errorf("config: listen port %d out of range", c.Server.Listen.Port)
	}
	switch strings.ToLower(strings.TrimSpace(c.Server.Cache.Backend)) {
	case "", "memory":
	case "valkey":
		if strings.TrimSpace(c.Server.Cache.Valkey.Address) == "" {
			return errors.New("config: valkey cache backend requires an address")
		}
	default:
		return fmt.Errorf("config: unsupported cache backend %q", c.Server.Cache.Backend)
	}
	ttl := c.Server.Cache.TTL
	for _, class := range []struct {
		name    string
		seconds int
	}{
		{"list", ttl.ListSeconds},
		{"detail", ttl.DetailSeconds},
		{"reference", ttl.ReferenceSeconds},
		{"search", ttl.SearchSeconds},
	} {
		if class.seconds <= 0 {
			return fmt.Errorf("config: cache ttl for %s resources must be positive", class.name)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Server.RateLimit.Backend)) {
	case "", "memory":
	case "valkey":
		if strings.TrimSpace(c.Server.Cache.Valkey.Address) == "" {
			return errors.New("config: valkey rate limit backend requires the cache valkey address")
		}
	default:
		return fmt.Errorf("config: unsupported rate limit backend %q", c.Server.RateLimit.Backend)
	}
	if c.Server.RateLimit.MaxAttempts <= 0 {
		return errors.New("config: rate limit max attempts must be positive")
	}
	if c.Server.RateLimit.WindowSeconds <= 0 {
		return errors.New("config: rate limit window must be positive")
	}
	if c.Server.Search.MaxResults <= 0 {
		return errors.New("config: search max results must be positive")
	}
	for _, svc := range []struct {
		name string
		cfg  ServiceConfig
	}{
		{"teams", c.Server.Services.Teams},
		{"matches", c.Server.Services.Matches},
	} {
		if svc.cfg.TimeoutSeconds <= 0 {
			return fmt.Errorf("config: %s service timeout must be positive", svc.name)
		}
		if svc.cfg.BaseURL == "" {
			continue
		}
		parsed, err := url.Parse(svc.cfg.BaseURL)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("config: %s service base url %q is not an absolute url", svc.name, svc.cfg.BaseURL)
		}
	}
	if strings.TrimSpace(c.Server.Catalog.FeaturedExpression) == "" {
		return errors.New("config: featured expression must not be empty")
	}
	return nil
}
