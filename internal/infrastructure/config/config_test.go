package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mktstream/internal/domain/channel"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(`
[feed]
host = "feed.example.com"

[subscriptions]
symbols = [" ssi", "VND", "ssi", ""]
market_status = true
`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.App.LogLevel != "info" {
		t.Errorf("expected default log level info, got %s", cfg.App.LogLevel)
	}
	if cfg.Feed.Path != "/socketcluster/" {
		t.Errorf("expected default path, got %s", cfg.Feed.Path)
	}
	if cfg.AckTimeout() != 30*time.Second {
		t.Errorf("expected 30s ack timeout, got %s", cfg.AckTimeout())
	}
	if got := strings.Join(cfg.Subscriptions.Symbols, ","); got != "SSI,VND" {
		t.Errorf("expected normalized symbols SSI,VND, got %s", got)
	}
	if kinds := cfg.DataKinds(); len(kinds) != 1 || kinds[0] != channel.KindQuote {
		t.Errorf("expected default QUOTE kind, got %v", kinds)
	}
	if cfg.RetryInitialDelay() != 0 {
		t.Errorf("expected immediate retry by default, got %s", cfg.RetryInitialDelay())
	}
	if !cfg.HasSubscriptions() || cfg.AnyStorage() {
		t.Errorf("unexpected subscriptions/storage flags")
	}
}

func TestParseSubscriptions(t *testing.T) {
	cfg, err := Parse(`
[feed]
host = "h"

[subscriptions]
types = ["quote", "bid-offer", "BID_ODD"]
deal_notice = ["hsx", "HNX", "HSX"]
advertise = ["upcom"]
`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	want := []channel.DataKind{channel.KindQuote, channel.KindBidOffer, channel.KindBidOdd}
	got := cfg.DataKinds()
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("kind %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if n := cfg.NoticeMarkets(); len(n) != 2 || n[0] != channel.MarketHSX || n[1] != channel.MarketHNX {
		t.Errorf("unexpected notice markets %v", n)
	}
	if a := cfg.AdvertiseMarkets(); len(a) != 1 || a[0] != channel.MarketUPCOM {
		t.Errorf("unexpected advertise markets %v", a)
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"missing host", `[feed]`, "feed.host"},
		{"bad type", "[feed]\nhost=\"h\"\n[subscriptions]\ntypes=[\"trades\"]", "unknown data type"},
		{"bad market", "[feed]\nhost=\"h\"\n[subscriptions]\nadvertise=[\"NYSE\"]", "unknown market"},
		{"redis without addr", "[feed]\nhost=\"h\"\n[storage.redis]\nenabled=true", "storage.redis.addr"},
		{"postgres without dsn", "[feed]\nhost=\"h\"\n[storage.postgres]\nenabled=true", "storage.postgres.dsn"},
		{"retry bounds", "[feed]\nhost=\"h\"\n[retry]\ninitial_delay_ms=500\nmax_delay_ms=100", "max_delay_ms"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.text)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("MKTSTREAM_TEST_KEY", "secret-key")

	path := filepath.Join(t.TempDir(), "config.toml")
	text := "[feed]\nhost = \"h\"\napi_key = \"${MKTSTREAM_TEST_KEY}\"\n"
	if err := os.WriteFile(path, []byte(text), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Feed.APIKey != "secret-key" {
		t.Errorf("expected expanded api key, got %q", cfg.Feed.APIKey)
	}
}

func TestParseRecorderRetention(t *testing.T) {
	cfg, err := Parse(`
[feed]
host = "h"

[subscriptions]
market_status = true

[recorder]
retention_hours = 24
`)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if cfg.RecorderRetention() != 24*time.Hour {
		t.Errorf("expected 24h retention, got %s", cfg.RecorderRetention())
	}
	if cfg.RecorderPruneEvery() != 5*time.Minute {
		t.Errorf("expected default prune interval 5m, got %s", cfg.RecorderPruneEvery())
	}

	if _, err := Parse("[feed]\nhost = \"h\"\n[recorder]\nretention_hours = -1\n"); err == nil {
		t.Error("expected negative retention to be rejected")
	}
}
