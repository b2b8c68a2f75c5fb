// Package config loads the process configuration with viper. The YAML
// file uses `upflow:` as its root key; environment variables override
// file values through the UPFLOW_ prefix (e.g. UPFLOW_LOG_LEVEL).
package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"firestige.xyz/upflow/internal/core"
	"firestige.xyz/upflow/internal/log"
	"firestige.xyz/upflow/internal/router"
)

// Config is the top-level process configuration.
type Config struct {
	Log     log.Config    `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Pool    PoolConfig    `mapstructure:"pool"`
	Capture CaptureConfig `mapstructure:"capture"`
	Replay  ReplayConfig  `mapstructure:"replay"`
	Router  RouterConfig  `mapstructure:"router"`
	Output  OutputConfig  `mapstructure:"output"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// PoolConfig sizes the receive buffer pool.
type PoolConfig struct {
	Buffers    int `mapstructure:"buffers"`
	BufferSize int `mapstructure:"buffer_size"`
}

// CaptureConfig parameterizes live capture from an interface.
type CaptureConfig struct {
	Interface    string `mapstructure:"interface"`
	SnapLen      int    `mapstructure:"snap_len"`
	BufferSizeMB int    `mapstructure:"buffer_size_mb"`
	TimeoutMs    int    `mapstructure:"timeout_ms"`
	FanoutID     uint16 `mapstructure:"fanout_id"`
	BPFFilter    string `mapstructure:"bpf_filter"`
}

// ReplayConfig parameterizes capture-file replay.
type ReplayConfig struct {
	Path    string `mapstructure:"path"`
	Repeat  int    `mapstructure:"repeat"`
	RatePPS int    `mapstructure:"rate_pps"`
}

// RouterConfig controls routing behavior. Rules are written as
// `<proto|*>-<addr>/<bits>-<port|*>` strings in the file and decoded
// into MatchingRule values on load.
type RouterConfig struct {
	FinalOnIPv4 bool                  `mapstructure:"final_on_ipv4"`
	UDPChecksum bool                  `mapstructure:"udp_checksum"`
	Rules       []router.MatchingRule `mapstructure:"rules"`
	UEFile      string                `mapstructure:"ue_file"`
}

// OutputConfig selects where routed packets go.
type OutputConfig struct {
	Mode      string `mapstructure:"mode"` // pcap | raw | discard
	Path      string `mapstructure:"path"`
	Interface string `mapstructure:"interface"`
}

// configRoot matches the `upflow:` wrapper in the YAML file.
type configRoot struct {
	Upflow Config `mapstructure:"upflow"`
}

// ruleStringHook decodes rule strings into MatchingRule values.
func ruleStringHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf(router.MatchingRule{}) {
		return data, nil
	}
	return router.ParseRule(data.(string))
}

// Loader owns the viper instance so the file can be re-read on change.
type Loader struct {
	v *viper.Viper
}

// NewLoader reads the file once and keeps it open for watching.
func NewLoader(path string) (*Loader, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: read config: %v", core.ErrConfigInvalid, err)
	}

	// The `upflow.` key prefix maps to UPFLOW_ env vars through the
	// key replacer (key "upflow.log.level" -> env "UPFLOW_LOG_LEVEL").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	return &Loader{v: v}, nil
}

// Config parses the current file state into a validated Config.
func (l *Loader) Config() (*Config, error) {
	var root configRoot
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		ruleStringHook,
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := l.v.Unmarshal(&root, hook); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config: %v", core.ErrConfigInvalid, err)
	}
	cfg := root.Upflow
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load is the one-shot variant of NewLoader plus Config.
func Load(path string) (*Config, error) {
	l, err := NewLoader(path)
	if err != nil {
		return nil, err
	}
	return l.Config()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("upflow.log.level", "info")
	v.SetDefault("upflow.log.format", "text")
	v.SetDefault("upflow.log.file.enabled", false)
	v.SetDefault("upflow.log.file.path", "/var/log/upflow/upflow.log")
	v.SetDefault("upflow.log.file.max_size_mb", 100)
	v.SetDefault("upflow.log.file.max_age_days", 30)
	v.SetDefault("upflow.log.file.max_backups", 5)
	v.SetDefault("upflow.log.file.compress", true)

	v.SetDefault("upflow.metrics.enabled", true)
	v.SetDefault("upflow.metrics.listen", ":9091")
	v.SetDefault("upflow.metrics.path", "/metrics")

	v.SetDefault("upflow.pool.buffers", 1024)
	v.SetDefault("upflow.pool.buffer_size", 9216)

	v.SetDefault("upflow.capture.snap_len", 1600)
	v.SetDefault("upflow.capture.buffer_size_mb", 64)
	v.SetDefault("upflow.capture.timeout_ms", 100)

	v.SetDefault("upflow.replay.repeat", 1)

	v.SetDefault("upflow.output.mode", "discard")
}

// Validate checks constraints that viper cannot express.
func (cfg *Config) Validate() error {
	if cfg.Pool.Buffers <= 0 || cfg.Pool.BufferSize <= 0 {
		return fmt.Errorf("%w: pool.buffers and pool.buffer_size must be positive",
			core.ErrConfigInvalid)
	}
	if cfg.Capture.SnapLen <= 0 {
		return fmt.Errorf("%w: capture.snap_len must be positive", core.ErrConfigInvalid)
	}
	if cfg.Replay.Repeat < 0 {
		return fmt.Errorf("%w: replay.repeat must not be negative", core.ErrConfigInvalid)
	}
	if cfg.Replay.RatePPS < 0 {
		return fmt.Errorf("%w: replay.rate_pps must not be negative", core.ErrConfigInvalid)
	}
	switch cfg.Output.Mode {
	case "pcap":
		if cfg.Output.Path == "" {
			return fmt.Errorf("%w: output.path is required for pcap output", core.ErrConfigInvalid)
		}
	case "raw":
		if cfg.Output.Interface == "" {
			return fmt.Errorf("%w: output.interface is required for raw output", core.ErrConfigInvalid)
		}
	case "discard":
	default:
		return fmt.Errorf("%w: unknown output.mode %q (pcap/raw/discard)",
			core.ErrConfigInvalid, cfg.Output.Mode)
	}
	return nil
}
