package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Pushflow      PushflowConfig      `yaml:"pushflow"`
	Push          PushConfig          `yaml:"push"`
	Credentials   CredentialsConfig   `yaml:"credentials"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	Channels      ChannelsConfig      `yaml:"channels"`
	Writer        WriterConfig        `yaml:"writer"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Status        StatusConfig        `yaml:"status"`
	Logging       LoggingConfig       `yaml:"logging"`
}

type PushflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

const (
	TransportTCP       = "tcp"
	TransportWebSocket = "websocket"

	keepAliveAuto = "auto"
)

// PushConfig describes the broker endpoint and session behaviour.
type PushConfig struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	UseTLS             bool          `yaml:"use_tls"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	Transport          string        `yaml:"transport"`
	WebSocketPath      string        `yaml:"websocket_path"`
	KeepAlive          string        `yaml:"keepalive"`
	ConnectionTimeout  time.Duration `yaml:"connection_timeout"`
	HeartbeatSend      time.Duration `yaml:"heartbeat_send"`
	HeartbeatRecv      time.Duration `yaml:"heartbeat_recv"`
	AutoReconnect      bool          `yaml:"auto_reconnect"`
	SDKVersion         string        `yaml:"sdk_version"`
	OutboundRate       float64       `yaml:"outbound_rate"`
	OutboundBurst      int           `yaml:"outbound_burst"`

	keepAlive bool
}

// TCPKeepAlive reports the keepalive decision made when the config was loaded.
func (p PushConfig) TCPKeepAlive() bool {
	return p.keepAlive
}

type CredentialsConfig struct {
	TigerID        string `yaml:"tiger_id"`
	PrivateKey     string `yaml:"private_key"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

type SubscriptionsConfig struct {
	Account        string      `yaml:"account"`
	Asset          bool        `yaml:"asset"`
	Position       bool        `yaml:"position"`
	Order          bool        `yaml:"order"`
	Quote          QuoteConfig `yaml:"quote"`
	Depth          []string    `yaml:"depth"`
	Option         []string    `yaml:"option"`
	Future         []string    `yaml:"future"`
	QueryOnConnect bool        `yaml:"query_on_connect"`
}

type QuoteConfig struct {
	Symbols   []string `yaml:"symbols"`
	KeyType   string   `yaml:"key_type"`
	FocusKeys []string `yaml:"focus_keys"`
}

type ChannelsConfig struct {
	EventBuffer int `yaml:"event_buffer"`
}

type WriterConfig struct {
	Sink  string      `yaml:"sink"`
	Kafka KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type MetricsConfig struct {
	Enabled        bool             `yaml:"enabled"`
	ListenAddr     string           `yaml:"listen_addr"`
	ReportInterval time.Duration    `yaml:"report_interval"`
	CloudWatch     CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Region          string `yaml:"region"`
	Namespace       string `yaml:"namespace"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

// StatusConfig controls the HTTP status API.
type StatusConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Address        string        `yaml:"address"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	MetricsHistory int           `yaml:"metrics_history"`
	LogHistory     int           `yaml:"log_history"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

func defaultConfig() Config {
	return Config{
		Pushflow: PushflowConfig{Name: "pushflow", Version: "1.0.0"},
		Push: PushConfig{
			Port:              9883,
			UseTLS:            true,
			Transport:         TransportTCP,
			WebSocketPath:     "/stomp",
			KeepAlive:         keepAliveAuto,
			ConnectionTimeout: 120 * time.Second,
			HeartbeatSend:     30 * time.Second,
			HeartbeatRecv:     30 * time.Second,
			AutoReconnect:     true,
			OutboundBurst:     1,
		},
		Subscriptions: SubscriptionsConfig{
			Quote: QuoteConfig{KeyType: "trade"},
		},
		Channels: ChannelsConfig{EventBuffer: 1024},
		Writer:   WriterConfig{Sink: "log"},
		Metrics: MetricsConfig{
			ListenAddr:     "0.0.0.0:2112",
			ReportInterval: time.Minute,
			CloudWatch:     CloudWatchConfig{Namespace: "Pushflow"},
		},
		Status: StatusConfig{
			Address:        "0.0.0.0:8080",
			SampleInterval: 5 * time.Second,
			MetricsHistory: 200,
			LogHistory:     200,
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	keepAlive, err := resolveKeepAlive(config.Push.KeepAlive)
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	config.Push.keepAlive = keepAlive

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PUSH_HOST"); v != "" {
		cfg.Push.Host = strings.TrimSpace(v)
	}
	if v := os.Getenv("TIGER_ID"); v != "" {
		cfg.Credentials.TigerID = strings.TrimSpace(v)
	}
	if v := os.Getenv("TIGER_PRIVATE_KEY"); v != "" {
		cfg.Credentials.PrivateKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("TIGER_PRIVATE_KEY_PATH"); v != "" {
		cfg.Credentials.PrivateKeyPath = strings.TrimSpace(v)
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		cfg.Writer.Kafka.Brokers = brokers
	}
	if cfg.Metrics.CloudWatch.Enabled {
		if v := os.Getenv("AWS_REGION"); v != "" {
			cfg.Metrics.CloudWatch.Region = strings.TrimSpace(v)
		}
	}
}

// resolveKeepAlive turns the keepalive setting into a decision once, at load
// time. "auto" enables TCP keepalive on linux only.
func resolveKeepAlive(v string) (bool, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" || v == keepAliveAuto {
		return runtime.GOOS == "linux", nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("push.keepalive must be auto, true or false, got '%s'", v)
	}
	return b, nil
}

func validateConfig(cfg *Config) error {
	if cfg.Pushflow.Name == "" {
		return fmt.Errorf("pushflow.name is required")
	}

	if cfg.Push.Host == "" {
		return fmt.Errorf("push.host is required")
	}
	if cfg.Push.Port <= 0 || cfg.Push.Port > 65535 {
		return fmt.Errorf("push.port %d is out of range", cfg.Push.Port)
	}
	switch cfg.Push.Transport {
	case TransportTCP, TransportWebSocket:
	default:
		return fmt.Errorf("push.transport must be %s or %s, got '%s'", TransportTCP, TransportWebSocket, cfg.Push.Transport)
	}
	if cfg.Push.ConnectionTimeout <= 0 {
		return fmt.Errorf("push.connection_timeout must be greater than 0")
	}
	if cfg.Push.HeartbeatSend < 0 || cfg.Push.HeartbeatRecv < 0 {
		return fmt.Errorf("push heartbeats must not be negative")
	}
	if cfg.Push.OutboundRate < 0 {
		return fmt.Errorf("push.outbound_rate must not be negative")
	}
	if cfg.Push.OutboundRate > 0 && cfg.Push.OutboundBurst <= 0 {
		return fmt.Errorf("push.outbound_burst must be greater than 0 when outbound_rate is set")
	}
	if env := CurrentEnvironment(); env.ProductionLike() {
		if !cfg.Push.UseTLS {
			return fmt.Errorf("push.use_tls is required in %s", env)
		}
		if cfg.Push.InsecureSkipVerify {
			return fmt.Errorf("push.insecure_skip_verify is not allowed in %s", env)
		}
	}

	if cfg.Credentials.TigerID == "" {
		return fmt.Errorf("credentials.tiger_id is required")
	}
	if cfg.Credentials.PrivateKey == "" && cfg.Credentials.PrivateKeyPath == "" {
		return fmt.Errorf("credentials.private_key or credentials.private_key_path is required")
	}

	if cfg.Channels.EventBuffer <= 0 {
		return fmt.Errorf("channels.event_buffer must be greater than 0")
	}

	switch cfg.Writer.Sink {
	case "log":
	case "kafka":
		if len(cfg.Writer.Kafka.Brokers) == 0 {
			return fmt.Errorf("writer.kafka.brokers is required when sink is kafka")
		}
		if cfg.Writer.Kafka.Topic == "" {
			return fmt.Errorf("writer.kafka.topic is required when sink is kafka")
		}
	default:
		return fmt.Errorf("writer.sink must be log or kafka, got '%s'", cfg.Writer.Sink)
	}

	if cfg.Status.Enabled && cfg.Status.SampleInterval <= 0 {
		return fmt.Errorf("status.sample_interval must be greater than 0")
	}

	if cfg.Metrics.CloudWatch.Enabled {
		cw := cfg.Metrics.CloudWatch
		if (cw.AccessKeyID == "") != (cw.SecretAccessKey == "") {
			return fmt.Errorf("metrics.cloudwatch.access_key_id and secret_access_key must be set together")
		}
	}

	return nil
}
