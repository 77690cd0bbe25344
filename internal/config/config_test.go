package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/edgeshim/edgeshim/internal/hooks"
)

func init() {
	// The validator checks configured plugin names against the registry.
	hooks.MustRegister("testplug", func(settings map[string]any) (hooks.Plugin, []hooks.Stage, error) {
		return hooks.PluginBase{}, []hooks.Stage{hooks.StagePreRemap}, nil
	})
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("cannot write config: %v", err)
	}
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
[Global]
ListenPort = 8088
MetricsPort = 9099
LogLevel = "debug"
Upstream = "http://origin.internal:8080"
UpstreamTimeout = "5s"

[[Plugins]]
Name = "TestPlug"

[Plugins.Settings]
Header = "X-Served-By"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Global.ListenPort != 8088 || cfg.Global.MetricsPort != 9099 {
		t.Fatalf("ports not read: %d %d", cfg.Global.ListenPort, cfg.Global.MetricsPort)
	}
	if cfg.Global.UpstreamTimeout.DurationValue() != 5*time.Second {
		t.Fatalf("timeout not read: %v", cfg.Global.UpstreamTimeout.DurationValue())
	}
	if len(cfg.Plugins) != 1 || cfg.Plugins[0].Name != "testplug" {
		t.Fatalf("plugin name not normalized: %+v", cfg.Plugins)
	}
	// TOML decoding lowercases settings keys; builders look them up
	// case-insensitively.
	if v, ok := hooks.Setting(cfg.Plugins[0].Settings, "Header"); !ok || v != "X-Served-By" {
		t.Fatalf("settings not passed through: %v", cfg.Plugins[0].Settings)
	}
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `
[Global]
Upstream = "http://origin.internal"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Global.ListenPort != 8080 {
		t.Fatalf("expected default listen port, got %d", cfg.Global.ListenPort)
	}
	if cfg.Global.MetricsPort != 9090 {
		t.Fatalf("expected default metrics port, got %d", cfg.Global.MetricsPort)
	}
	if cfg.Global.LogLevel != "info" {
		t.Fatalf("expected default log level, got %q", cfg.Global.LogLevel)
	}
	if cfg.Global.UpstreamTimeout.DurationValue() != 30*time.Second {
		t.Fatalf("expected default timeout, got %v", cfg.Global.UpstreamTimeout.DurationValue())
	}
}

func TestLoadDurationForms(t *testing.T) {
	cases := []struct {
		raw  string
		want time.Duration
	}{
		{`"90s"`, 90 * time.Second},
		{`"2m"`, 2 * time.Minute},
		{`15`, 15 * time.Second},
	}
	for _, tc := range cases {
		path := writeConfig(t, `
[Global]
Upstream = "http://origin.internal"
UpstreamTimeout = `+tc.raw+`
`)
		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("load with timeout %s failed: %v", tc.raw, err)
		}
		if cfg.Global.UpstreamTimeout.DurationValue() != tc.want {
			t.Fatalf("timeout %s: expected %v, got %v", tc.raw, tc.want, cfg.Global.UpstreamTimeout.DurationValue())
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("missing file must fail")
	}
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	base := func() *Config {
		return &Config{
			Global: GlobalConfig{
				ListenPort:      8080,
				MetricsPort:     9090,
				Upstream:        "http://origin.internal",
				UpstreamTimeout: Duration(30 * time.Second),
			},
		}
	}

	cfg := base()
	cfg.Global.ListenPort = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("zero listen port must fail")
	}

	cfg = base()
	cfg.Global.MetricsPort = cfg.Global.ListenPort
	if err := cfg.Validate(); err == nil {
		t.Fatalf("port collision must fail")
	}

	cfg = base()
	cfg.Global.Upstream = "ftp://example.com"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("non-http upstream must fail")
	}

	cfg = base()
	cfg.Global.Upstream = ""
	if err := cfg.Validate(); err == nil {
		t.Fatalf("missing upstream must fail")
	}

	cfg = base()
	cfg.Global.UpstreamTimeout = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("zero timeout must fail")
	}

	cfg = base()
	cfg.Plugins = []PluginConfig{{Name: "never-registered"}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("unregistered plugin must fail")
	}

	cfg = base()
	cfg.Plugins = []PluginConfig{{Name: "testplug"}, {Name: "TESTPLUG"}}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("duplicate plugin must fail")
	}

	cfg = base()
	cfg.Plugins = []PluginConfig{{Name: "testplug"}}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	if err := d.UnmarshalText([]byte("1m30s")); err != nil || d.DurationValue() != 90*time.Second {
		t.Fatalf("go duration form: %v %v", d.DurationValue(), err)
	}
	if err := d.UnmarshalText([]byte("45")); err != nil || d.DurationValue() != 45*time.Second {
		t.Fatalf("bare seconds form: %v %v", d.DurationValue(), err)
	}
	if err := d.UnmarshalText([]byte("0x10")); err != nil || d.DurationValue() != 16*time.Second {
		t.Fatalf("hex seconds form: %v %v", d.DurationValue(), err)
	}
	if err := d.UnmarshalText([]byte("nonsense")); err == nil {
		t.Fatalf("garbage must fail")
	}
}
