package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development" validate:"required"`
	Log         struct {
		Level           string        `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format          string        `yaml:"format" default:"console" validate:"oneof=console json"`
		Output          string        `yaml:"output" default:"stdout"`
		CollectTopic    string        `yaml:"collect_topic"`
		CollectInterval time.Duration `yaml:"collect_interval" default:"30s"`
		CollectMax      int           `yaml:"collect_max" default:"100"`
	} `yaml:"log"`
	Server struct {
		Port            int           `yaml:"port" default:"8080" validate:"min=1,max=65535"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		RequestTimeout  time.Duration `yaml:"request_timeout" default:"10s" validate:"gte=1s,lte=60s"`
		CORSOrigins     []string      `yaml:"cors_origins" default:"[\"*\"]"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Market struct {
		Symbols     []string      `yaml:"symbols" default:"[\"SPY\"]" validate:"min=1,dive,required"`
		TickSource  string        `yaml:"tick_source" default:"polygon" validate:"oneof=polygon kafka"`
		Session     string        `yaml:"session" default:"rth" validate:"oneof=rth eth"`
		BarCacheTTL time.Duration `yaml:"bar_cache_ttl" default:"15s"`
		ATRPeriod   int           `yaml:"atr_period" default:"14" validate:"min=2"`
		Polygon     struct {
			APIKey         string        `yaml:"api_key"`
			RESTURL        string        `yaml:"rest_url" default:"https://api.polygon.io" validate:"url"`
			WebSocketURL   string        `yaml:"websocket_url" default:"wss://socket.polygon.io/stocks" validate:"url"`
			ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"5s"`
			PingInterval   time.Duration `yaml:"ping_interval" default:"30s"`
			Timeout        time.Duration `yaml:"timeout" default:"10s"`
			Retries        int           `yaml:"retries" default:"3" validate:"min=1,max=10"`
			RPS            int           `yaml:"rps" default:"5" validate:"min=1"`
		} `yaml:"polygon"`
	} `yaml:"market"`
	Sources struct {
		LevelsURL  string        `yaml:"levels_url"`
		ShelvesURL string        `yaml:"shelves_url"`
		RiskURL    string        `yaml:"risk_url"`
		ContextURL string        `yaml:"context_url"`
		Timeout    time.Duration `yaml:"timeout" default:"8s"`
		CacheTTL   time.Duration `yaml:"cache_ttl" default:"5s"`
	} `yaml:"sources"`
	Zones struct {
		Policy    string  `yaml:"policy" default:"A" validate:"oneof=A B"`
		WindowPts float64 `yaml:"window_pts" default:"40" validate:"gt=0"`
	} `yaml:"zones"`
	Engine struct {
		StrategyID         string        `yaml:"strategy_id" default:"intraday_5b" validate:"required"`
		E3Mode             string        `yaml:"e3_mode" default:"scalp" validate:"oneof=scalp swing long"`
		E3Timeframe        string        `yaml:"e3_timeframe" default:"1m"`
		E4Mode             string        `yaml:"e4_mode" default:"swing" validate:"oneof=scalp swing long"`
		RollupTimeframe    string        `yaml:"rollup_timeframe" default:"5m" validate:"oneof=5m 15m 30m 1h"`
		PersistBars        int           `yaml:"persist_bars" default:"1" validate:"min=1,max=5"`
		BreakoutPts        float64       `yaml:"breakout_pts" default:"0.02" validate:"gte=0,lte=1"`
		Cooldown           time.Duration `yaml:"cooldown" default:"120s" validate:"gte=1s,lte=60m"`
		ArmedWindow        time.Duration `yaml:"armed_window" default:"120s" validate:"gte=1s,lte=60m"`
		E3Interval         time.Duration `yaml:"e3_interval" default:"2s" validate:"gte=250ms,lte=60s"`
		ZoneRefresh        time.Duration `yaml:"zone_refresh" default:"120s" validate:"gte=1s"`
		E4Refresh          time.Duration `yaml:"e4_refresh" default:"60s" validate:"gte=1s"`
		RiskRefresh        time.Duration `yaml:"risk_refresh" default:"5s" validate:"gte=1s"`
		GoHold             time.Duration `yaml:"go_hold" default:"120s" validate:"gte=1s,lte=10m"`
		ImpulseRangePts    float64       `yaml:"impulse_range_pts" default:"0.40" validate:"gt=0"`
		PullbackWickPts    float64       `yaml:"pullback_wick_pts" default:"0.20" validate:"gt=0"`
		PullbackMaxMinutes int           `yaml:"pullback_max_minutes" default:"3" validate:"min=1,max=60"`
		BreakDepthATR      float64       `yaml:"break_depth_atr" default:"0.25" validate:"gt=0"`
		AllowShorts        bool          `yaml:"allow_shorts"`
		ExecutionEnabled   bool          `yaml:"execution_enabled"`
		SSEInterval        time.Duration `yaml:"sse_interval" default:"1s" validate:"gte=1s"`
		Heartbeat          time.Duration `yaml:"heartbeat" default:"2s" validate:"gte=1s,lte=2s"`
	} `yaml:"engine"`
	Replay struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		DataDir string `yaml:"data_dir" default:"data/replay" validate:"required"`
		// Symbol owns the cadence snapshots; the layout has one file per minute.
		Symbol          string        `yaml:"symbol"`
		CadenceInterval time.Duration `yaml:"cadence_interval" default:"60s" validate:"gte=1s"`
		MinGoInterval   time.Duration `yaml:"min_go_interval" default:"20s"`
	} `yaml:"replay"`
	Alert struct {
		Enabled     bool          `yaml:"enabled"`
		WebhookURL  string        `yaml:"webhook_url" validate:"omitempty,url"`
		MinInterval time.Duration `yaml:"min_interval" default:"60s" validate:"gte=1s"`
		Timeout     time.Duration `yaml:"timeout" default:"5s"`
	} `yaml:"alert"`
	Redis struct {
		Enabled   bool          `yaml:"enabled"`
		Addr      string        `yaml:"addr" default:"localhost:6379"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		Prefix    string        `yaml:"prefix" default:"triggerdesk"`
		PoolSize  int           `yaml:"pool_size" default:"10" validate:"gte=1"`
		LocalTTL  time.Duration `yaml:"local_ttl" default:"30s"`
		LocalSize int           `yaml:"local_size" default:"10000" validate:"gte=100"`
	} `yaml:"redis"`
	Kafka struct {
		Enabled      bool     `yaml:"enabled"`
		Brokers      []string `yaml:"brokers"`
		TicksTopic   string   `yaml:"ticks_topic" default:"triggerdesk.ticks"`
		GoTopic      string   `yaml:"go_topic" default:"triggerdesk.go"`
		EventsTopic  string   `yaml:"events_topic" default:"triggerdesk.events"`
		RequiredAcks int      `yaml:"required_acks" default:"1"`
		Compression  string   `yaml:"compression" default:"snappy"`
		Producer     struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"10ms"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID     string        `yaml:"group_id" default:"triggerdesk"`
			StartOffset string        `yaml:"start_offset" default:"latest" validate:"oneof=earliest latest"`
			MaxAge      time.Duration `yaml:"max_age"`
			Workers     int           `yaml:"workers" default:"1"`
			BufferSize  int           `yaml:"buffer_size" default:"1000"`
			RetryMax    int           `yaml:"retry_max" default:"3"`
			BackoffMin  time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax  time.Duration `yaml:"backoff_max" default:"2s"`
			DLQTopic    string        `yaml:"dlq_topic"`
			MinBytes    int           `yaml:"min_bytes" default:"1"`
			MaxBytes    int           `yaml:"max_bytes" default:"10485760"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"triggerdesk"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
}

// Load reads a YAML file on top of the defaults and validates the result.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse applies defaults, then the YAML document, then validation.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("POLYGON_API_KEY"); v != "" {
		c.Market.Polygon.APIKey = v
	}
	if v := getenv("SYMBOLS"); v != "" {
		c.Market.Symbols = splitList(strings.ToUpper(v))
	}
	if v := getenv("TICK_SOURCE"); v != "" {
		c.Market.TickSource = v
	}
	if v := getenv("REPLAY_DATA_DIR"); v != "" {
		c.Replay.DataDir = v
	}
	if v := getenv("ALERT_WEBHOOK_URL"); v != "" {
		c.Alert.WebhookURL = v
		c.Alert.Enabled = true
	}
	if v := getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = splitList(v)
		c.Kafka.Enabled = true
	}
	if v := getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
		c.Redis.Enabled = true
	}
}

// Validate checks struct tags and the cross-field rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Market.TickSource == "kafka" && (!c.Kafka.Enabled || len(c.Kafka.Brokers) == 0) {
		return fmt.Errorf("market.tick_source=kafka requires kafka.enabled and kafka.brokers")
	}
	if c.Market.TickSource == "polygon" && c.Market.Polygon.APIKey == "" {
		return fmt.Errorf("market.polygon.api_key is required for tick_source=polygon")
	}
	if c.Alert.Enabled && c.Alert.WebhookURL == "" {
		return fmt.Errorf("alert.webhook_url is required when alert.enabled")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka.enabled")
	}
	sym := c.CadenceSymbol()
	if !slices.ContainsFunc(c.Market.Symbols, func(s string) bool { return strings.EqualFold(s, sym) }) {
		return fmt.Errorf("replay.symbol %q must be one of market.symbols %v", sym, c.Market.Symbols)
	}
	return nil
}

// CadenceSymbol is the symbol the replay cadence snapshots, defaulting to the
// first market symbol.
func (c *Config) CadenceSymbol() string {
	if s := strings.ToUpper(strings.TrimSpace(c.Replay.Symbol)); s != "" {
		return s
	}
	if len(c.Market.Symbols) == 0 {
		return ""
	}
	return strings.ToUpper(c.Market.Symbols[0])
}
