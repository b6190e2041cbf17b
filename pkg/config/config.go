package config

import (
	"flag"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Config string
	Set    map[string]bool
}

// EffectiveConfigResult is the merged view of file, env and flags the rest
// of the process runs with. Precedence: flags > env > file > defaults.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	Source string // "flags", "env", or "config"
}

// ParseCommandFlags parses command-line flags and returns them as a Flags struct.
func ParseCommandFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Config: *cfgPtr, Set: setFlags}
}

// LoadFile reads and parses the YAML config file at path. A missing file
// is not an error; it yields an empty config.
func LoadFile(path string) (*Config, bool, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, true, err
	}
	return &cfg, true, nil
}

// applyEnv overlays CHATSYNC_* environment variables onto cfg and reports
// whether any were used.
func applyEnv(cfg *Config) bool {
	used := false
	if v := os.Getenv("CHATSYNC_ADDR"); v != "" {
		cfg.Server.Address = v
		cfg.Server.Port = 0
		used = true
	}
	if v := os.Getenv("CHATSYNC_DB_PATH"); v != "" {
		cfg.Server.DBPath = v
		used = true
	}
	if v := os.Getenv("CHATSYNC_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
		used = true
	}
	if v := os.Getenv("CHATSYNC_TOKEN_TTL"); v != "" {
		if td, err := time.ParseDuration(v); err == nil {
			cfg.Security.TokenTTL = Duration(td)
			used = true
		}
	}
	if v := os.Getenv("CHATSYNC_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Security.RateLimit.RPS = f
			used = true
		}
	}
	if v := os.Getenv("CHATSYNC_CORS_ORIGINS"); v != "" {
		cfg.Security.CORS.AllowedOrigins = splitCSV(v)
		used = true
	}
	if v := os.Getenv("CHATSYNC_RETENTION_CRON"); v != "" {
		cfg.Retention.Cron = v
		cfg.Retention.Enabled = true
		used = true
	}
	return used
}

// LoadEffective merges file, env and flags into the effective config.
func LoadEffective(flags Flags) (EffectiveConfigResult, error) {
	cfg, fileExists, err := LoadFile(flags.Config)
	if err != nil {
		return EffectiveConfigResult{}, err
	}
	envUsed := applyEnv(cfg)

	res := EffectiveConfigResult{Config: cfg}
	switch {
	case flags.Set["addr"] || flags.Set["db"]:
		res.Source = "flags"
	case envUsed:
		res.Source = "env"
	case fileExists:
		res.Source = "config"
	default:
		res.Source = "flags"
	}

	res.Addr = cfg.Addr()
	if flags.Set["addr"] {
		res.Addr = flags.Addr
	}
	res.DBPath = cfg.Server.DBPath
	if res.DBPath == "" || flags.Set["db"] {
		res.DBPath = flags.DB
	}

	applyDefaults(cfg)
	return res, nil
}

// applyDefaults fills unset tunables with serviceable values.
func applyDefaults(cfg *Config) {
	if cfg.Security.TokenTTL == 0 {
		cfg.Security.TokenTTL = Duration(24 * time.Hour)
	}
	if cfg.Live.SendBuffer <= 0 {
		cfg.Live.SendBuffer = 16
	}
	if cfg.Live.MaxMessageSize <= 0 {
		cfg.Live.MaxMessageSize = 64 * 1024
	}
	if cfg.Live.PingInterval == 0 {
		cfg.Live.PingInterval = Duration(30 * time.Second)
	}
	if cfg.Live.WriteTimeout == 0 {
		cfg.Live.WriteTimeout = Duration(10 * time.Second)
	}
	if cfg.History.PageSize <= 0 {
		cfg.History.PageSize = 50
	}
	if cfg.Retention.Cron == "" {
		cfg.Retention.Cron = "0 2 * * *"
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
