package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"mktstream/internal/domain/channel"
)

type Config struct {
	App struct {
		LogLevel       string `toml:"log_level"`
		Monitor        bool   `toml:"monitor"`          // 终端行情看板
		PlainOutput    bool   `toml:"plain_output"`     // 看板不使用终端控制序列
		ReportEverySec int    `toml:"report_every_sec"` // 快照行间隔
	} `toml:"app"`

	Feed struct {
		Host               string `toml:"host"`
		Port               int    `toml:"port"`
		Path               string `toml:"path"`
		Secure             bool   `toml:"secure"`
		APIKey             string `toml:"api_key"`
		AckTimeoutMs       int    `toml:"ack_timeout_ms"`
		HandshakeTimeoutMs int    `toml:"handshake_timeout_ms"`
		PingTimeoutMs      int    `toml:"ping_timeout_ms"`
		ReadyTimeoutMs     int    `toml:"ready_timeout_ms"` // 等待首次连接；0 表示不等待
	} `toml:"feed"`

	Retry struct {
		InitialDelayMs int `toml:"initial_delay_ms"` // 0 表示立即重连
		MaxDelayMs     int `toml:"max_delay_ms"`
	} `toml:"retry"`

	Subscriptions struct {
		Symbols      []string `toml:"symbols"`
		Types        []string `toml:"types"`
		MarketStatus bool     `toml:"market_status"`
		DealNotice   []string `toml:"deal_notice"`
		Advertise    []string `toml:"advertise"`
	} `toml:"subscriptions"`

	Recorder struct {
		BufferSize     int  `toml:"buffer_size"`
		RecordMessages bool `toml:"record_messages"`
		RecordLatest   bool `toml:"record_latest"`
		WriteTimeoutMs int  `toml:"write_timeout_ms"`
		MemoryLimit    int  `toml:"memory_limit"` // 未配置外部存储时内存磁带的条数上限
		RetentionHours int  `toml:"retention_hours"` // SQL 存储中磁带的保留时长；0 表示不清理
		PruneEverySec  int  `toml:"prune_every_sec"`
	} `toml:"recorder"`

	Storage struct {
		Redis struct {
			Enabled    bool   `toml:"enabled"`
			Addr       string `toml:"addr"`
			Password   string `toml:"password"`
			DB         int    `toml:"db"`
			Prefix     string `toml:"prefix"`
			TTLSeconds int    `toml:"ttl_seconds"`
			Stream     string `toml:"stream"`
			StreamLen  int64  `toml:"stream_len"`
			PubChannel string `toml:"pub_channel"`
		} `toml:"redis"`

		SQLite struct {
			Enabled bool   `toml:"enabled"`
			Path    string `toml:"path"`
		} `toml:"sqlite"`

		Postgres struct {
			Enabled bool   `toml:"enabled"`
			DSN     string `toml:"dsn"`
		} `toml:"postgres"`
	} `toml:"storage"`

	// 解析后的订阅，由 validate 填充
	kinds   []channel.DataKind
	notice  []channel.Market
	adverts []channel.Market
}

// Load 读取配置文件；文件内容中的 ${VAR} 会先用环境变量展开
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(b))
}

// Parse 解析 TOML 文本（环境变量展开 + 默认值 + 校验）
func Parse(text string) (*Config, error) {
	var cfg Config
	if _, err := toml.Decode(os.ExpandEnv(text), &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = "info"
	}
	if cfg.App.ReportEverySec <= 0 {
		cfg.App.ReportEverySec = 60
	}
	if cfg.Feed.Path == "" {
		cfg.Feed.Path = "/socketcluster/"
	}
	if cfg.Feed.AckTimeoutMs <= 0 {
		cfg.Feed.AckTimeoutMs = 30000
	}
	if cfg.Feed.HandshakeTimeoutMs <= 0 {
		cfg.Feed.HandshakeTimeoutMs = 10000
	}
	if len(cfg.Subscriptions.Types) == 0 {
		cfg.Subscriptions.Types = []string{string(channel.KindQuote)}
	}
	if cfg.Recorder.BufferSize <= 0 {
		cfg.Recorder.BufferSize = 4096
	}
	if cfg.Recorder.WriteTimeoutMs <= 0 {
		cfg.Recorder.WriteTimeoutMs = 3000
	}
	if cfg.Recorder.RetentionHours > 0 && cfg.Recorder.PruneEverySec <= 0 {
		cfg.Recorder.PruneEverySec = 300
	}
	if cfg.Storage.Redis.Prefix == "" {
		cfg.Storage.Redis.Prefix = "mktstream"
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "data/mktstream.db"
	}
}

func validate(cfg *Config) error {
	if strings.TrimSpace(cfg.Feed.Host) == "" {
		return errors.New("feed.host is empty")
	}
	if cfg.Retry.InitialDelayMs < 0 || cfg.Retry.MaxDelayMs < 0 {
		return errors.New("retry delays must not be negative")
	}
	if cfg.Retry.MaxDelayMs > 0 && cfg.Retry.MaxDelayMs < cfg.Retry.InitialDelayMs {
		return errors.New("retry.max_delay_ms is smaller than retry.initial_delay_ms")
	}

	if cfg.Recorder.RetentionHours < 0 {
		return errors.New("recorder.retention_hours must not be negative")
	}

	cfg.Subscriptions.Symbols = channel.NormalizeSymbols(cfg.Subscriptions.Symbols)

	cfg.kinds = cfg.kinds[:0]
	for _, s := range cfg.Subscriptions.Types {
		k, ok := channel.ParseDataKind(s)
		if !ok {
			return fmt.Errorf("subscriptions.types: unknown data type %q", s)
		}
		cfg.kinds = append(cfg.kinds, k)
	}

	var err error
	if cfg.notice, err = parseMarkets("subscriptions.deal_notice", cfg.Subscriptions.DealNotice); err != nil {
		return err
	}
	if cfg.adverts, err = parseMarkets("subscriptions.advertise", cfg.Subscriptions.Advertise); err != nil {
		return err
	}

	if cfg.Storage.Redis.Enabled && strings.TrimSpace(cfg.Storage.Redis.Addr) == "" {
		return errors.New("storage.redis.addr empty but enabled")
	}
	if cfg.Storage.Postgres.Enabled && strings.TrimSpace(cfg.Storage.Postgres.DSN) == "" {
		return errors.New("storage.postgres.dsn empty but enabled")
	}
	return nil
}

func parseMarkets(field string, in []string) ([]channel.Market, error) {
	out := make([]channel.Market, 0, len(in))
	seen := map[channel.Market]struct{}{}
	for _, s := range in {
		m, ok := channel.ParseMarket(s)
		if !ok {
			return nil, fmt.Errorf("%s: unknown market %q", field, s)
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out, nil
}

// DataKinds 解析后的个股数据类型
func (c *Config) DataKinds() []channel.DataKind { return c.kinds }

// NoticeMarkets 需要订阅协议成交通知的市场
func (c *Config) NoticeMarkets() []channel.Market { return c.notice }

// AdvertiseMarkets 需要订阅广告单的市场
func (c *Config) AdvertiseMarkets() []channel.Market { return c.adverts }

// HasSubscriptions 是否配置了至少一个订阅
func (c *Config) HasSubscriptions() bool {
	return len(c.Subscriptions.Symbols) > 0 || c.Subscriptions.MarketStatus ||
		len(c.notice) > 0 || len(c.adverts) > 0
}

// AnyStorage 是否启用了外部存储
func (c *Config) AnyStorage() bool {
	return c.Storage.Redis.Enabled || c.Storage.SQLite.Enabled || c.Storage.Postgres.Enabled
}

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

// AckTimeout 等待服务端应答的超时
func (c *Config) AckTimeout() time.Duration {
	return ms(c.Feed.AckTimeoutMs)
}

func (c *Config) HandshakeTimeout() time.Duration {
	return ms(c.Feed.HandshakeTimeoutMs)
}

func (c *Config) PingTimeout() time.Duration {
	return ms(c.Feed.PingTimeoutMs)
}

func (c *Config) ReadyTimeout() time.Duration {
	return ms(c.Feed.ReadyTimeoutMs)
}

func (c *Config) RetryInitialDelay() time.Duration {
	return ms(c.Retry.InitialDelayMs)
}

func (c *Config) RetryMaxDelay() time.Duration {
	return ms(c.Retry.MaxDelayMs)
}

func (c *Config) RecorderWriteTimeout() time.Duration {
	return ms(c.Recorder.WriteTimeoutMs)
}

// RecorderRetention 磁带保留时长，0 表示不清理
func (c *Config) RecorderRetention() time.Duration {
	return time.Duration(c.Recorder.RetentionHours) * time.Hour
}

func (c *Config) RecorderPruneEvery() time.Duration {
	return time.Duration(c.Recorder.PruneEverySec) * time.Second
}
