package config

import "time"

// Config is the fully-resolved configuration for one proxy instance. Every
// field maps onto a runtime-configurable option.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Mode      string          `mapstructure:"mode"`
	Http      HttpConfig      `mapstructure:"http"`
	SSL       SSLConfig       `mapstructure:"ssl"`
	FRL       UpstreamTarget  `mapstructure:"frl"`
	Log       LogUpstream     `mapstructure:"log"`
	Upstream  UpstreamConfig  `mapstructure:"upstream"`
	Store     StoreConfig     `mapstructure:"store"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Control   ControlConfig   `mapstructure:"control"`
}

type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

type HttpConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type SSLConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	CertPath     string `mapstructure:"cert_path"`
	KeyPath      string `mapstructure:"key_path"`
	PfxPath      string `mapstructure:"pfx_path"`
	PfxPassword  string `mapstructure:"password"`
	InsecureSkip bool   `mapstructure:"insecure_skip_verify"` // test deployments only, never for production upstreams
}

// UpstreamTarget names one FRL/Log base URL. Both the License Server and
// the Log Server are expressed this way.
type UpstreamTarget struct {
	RemoteHost string `mapstructure:"remote_host"`
}

type LogUpstream struct {
	RemoteHost string `mapstructure:"remote_host"`
}

type UpstreamConfig struct {
	UseProxy       bool          `mapstructure:"use_proxy"`
	ProxyProtocol  string        `mapstructure:"proxy_protocol"` // http | https
	ProxyHost      string        `mapstructure:"proxy_host"`
	ProxyPort      int           `mapstructure:"proxy_port"`
	UseBasicAuth   bool          `mapstructure:"use_basic_auth"`
	ProxyUsername  string        `mapstructure:"proxy_username"`
	ProxyPassword  string        `mapstructure:"proxy_password"`
	Timeout        time.Duration `mapstructure:"timeout"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BackoffBase    time.Duration `mapstructure:"backoff_base"`
	BackoffFactor  float64       `mapstructure:"backoff_factor"`
	BackoffJitter  float64       `mapstructure:"backoff_jitter"`
}

type StoreConfig struct {
	DBPath string `mapstructure:"db_path"`
}

type CacheConfig struct {
	Redis RedisCacheConfig `mapstructure:"redis"`
}

type RedisCacheConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

type LoggingConfig struct {
	Level          string `mapstructure:"level"`       // trace|debug|info|warn|error
	Destination    string `mapstructure:"destination"` // stdout|file
	FilePath       string `mapstructure:"file_path"`
	RotateSizeKB   int    `mapstructure:"rotate_size_kb"`
	RotateCount    int    `mapstructure:"rotate_count"`
}

type TelemetryConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	Type           string  `mapstructure:"type"` // otel | datadog | noop
	MetricsAddress string  `mapstructure:"metrics_address"`
	TracerAddress  string  `mapstructure:"tracer_address"`
	Namespace      string  `mapstructure:"namespace"`
	SampleRate     float64 `mapstructure:"sample_rate"`
}

type ControlConfig struct {
	SharedSecret string `mapstructure:"shared_secret"`
}

// Defaults returns the configuration's documented default values.
func Defaults() Config {
	return Config{
		App: AppConfig{Name: "frlproxy", Version: "dev"},
		Mode: "connected",
		Http: HttpConfig{
			Host:         "127.0.0.1",
			Port:         8080,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  30 * time.Second,
		},
		FRL: UpstreamTarget{RemoteHost: "https://lcs-cops.adobe.io"},
		Log: LogUpstream{RemoteHost: "https://lcs-ulecs.adobe.io"},
		Upstream: UpstreamConfig{
			Timeout:       60 * time.Second,
			MaxAttempts:   3,
			BackoffBase:   500 * time.Millisecond,
			BackoffFactor: 2,
			BackoffJitter: 0.2,
		},
		Store: StoreConfig{DBPath: "frlproxy.db"},
		Logging: LoggingConfig{
			Level:        "info",
			Destination:  "stdout",
			RotateSizeKB: 10240,
			RotateCount:  5,
		},
		Telemetry: TelemetryConfig{Enabled: false, Type: "noop", SampleRate: 1.0},
	}
}
