package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	Data   string
	Config string
	Job    string
	Once   bool
	Set    map[string]bool
}

// EffectiveConfigResult is the single resolved configuration the rest of
// the process runs on.
type EffectiveConfigResult struct {
	Config  *Config
	Addr    string
	DataDir string
	Source  string // "flags", "config", or "env"
}

// ParseConfigFlags parses command-line flags and returns them as a Flags struct.
func ParseConfigFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	dataPtr := flag.String("data", "./.ingestd", "Data directory (store, holding area, state)")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	jobPtr := flag.String("job", "", "Job name override")
	oncePtr := flag.Bool("once", false, "Run a single ingestion pass and exit")
	flag.Parse()
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, Data: *dataPtr, Config: *cfgPtr, Job: *jobPtr, Once: *oncePtr, Set: setFlags}
}

// ParseConfigFile resolves the config path and loads the YAML file. It
// returns the parsed config, a boolean indicating whether the file was
// present, and an error for fatal parsing problems.
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := Load(cfgPath)
	if err != nil {
		if strings.Contains(err.Error(), "config file not found") || os.IsNotExist(err) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// ParseConfigEnvs reads environment variables into a fresh Config and
// reports whether any were present. This function does not mutate any
// caller-provided config.
func ParseConfigEnvs() (*Config, bool) {
	envCfg := &Config{}
	envUsed := false

	// Server address/port
	if v := os.Getenv("INGESTD_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			envCfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				envCfg.Server.Port = pi
			}
		} else {
			envCfg.Server.Address = v
		}
	} else {
		if host := os.Getenv("INGESTD_SERVER_ADDRESS"); host != "" {
			envUsed = true
			envCfg.Server.Address = host
		}
		if port := os.Getenv("INGESTD_SERVER_PORT"); port != "" {
			envUsed = true
			if pi, err := strconv.Atoi(port); err == nil {
				envCfg.Server.Port = pi
			}
		}
	}

	if v := os.Getenv("INGESTD_DATA_DIR"); v != "" {
		envUsed = true
		envCfg.Server.DataDir = v
	}
	if v := os.Getenv("INGESTD_SERVER_ENGINE"); v != "" {
		envUsed = true
		envCfg.Server.Engine = v
	}
	if v := os.Getenv("INGESTD_API_TOKEN"); v != "" {
		envUsed = true
		envCfg.Server.APIToken = v
	}
	if v := os.Getenv("INGESTD_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			envCfg.Server.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("INGESTD_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			envCfg.Server.RateLimit.Burst = n
		}
	}

	// Job quantum settings
	if v := os.Getenv("INGESTD_JOB_NAME"); v != "" {
		envUsed = true
		envCfg.Job.Name = v
	}
	if v := os.Getenv("INGESTD_JOB_HARD_LIMIT"); v != "" {
		if d, err := parseEnvDuration(v); err == nil {
			envUsed = true
			envCfg.Job.HardLimit = d
		}
	}
	if v := os.Getenv("INGESTD_JOB_SAFETY_BUFFER"); v != "" {
		if d, err := parseEnvDuration(v); err == nil {
			envUsed = true
			envCfg.Job.SafetyBuffer = d
		}
	}
	if v := os.Getenv("INGESTD_JOB_RETRY_INTERVAL"); v != "" {
		if d, err := parseEnvDuration(v); err == nil {
			envUsed = true
			envCfg.Job.RetryInterval = d
		}
	}

	// Collaborator endpoints
	if v := os.Getenv("INGESTD_SOURCE_DIR"); v != "" {
		envUsed = true
		envCfg.Source.Dir = v
	}
	if v := os.Getenv("INGESTD_SOURCE_PATTERN"); v != "" {
		envUsed = true
		envCfg.Source.Pattern = v
	}
	if v := os.Getenv("INGESTD_EXTRACT_URL"); v != "" {
		envUsed = true
		envCfg.Extract.URL = v
	}
	if v := os.Getenv("INGESTD_WAREHOUSE_URL"); v != "" {
		envUsed = true
		envCfg.Warehouse.URL = v
	}
	if v := os.Getenv("INGESTD_WAREHOUSE_API_KEY"); v != "" {
		envUsed = true
		envCfg.Warehouse.APIKey = v
	}

	// Logging
	if v := os.Getenv("INGESTD_LOG_LEVEL"); v != "" {
		envUsed = true
		envCfg.Logging.Level = v
	}

	// TLS cert/key
	if c := os.Getenv("INGESTD_TLS_CERT"); c != "" {
		envUsed = true
		envCfg.Server.TLS.CertFile = c
	}
	if k := os.Getenv("INGESTD_TLS_KEY"); k != "" {
		envUsed = true
		envCfg.Server.TLS.KeyFile = k
	}

	return envCfg, envUsed
}

func parseEnvDuration(v string) (Duration, error) {
	raw := strings.TrimSpace(v)
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", v)
}

// LoadEffectiveConfig decides which single source wins (flags, config file,
// or env) and returns the effective config plus resolved addr and data dir.
// An explicit --config requires the file to exist and uses it; explicit
// --addr/--data override whichever base config is present; otherwise the
// file wins over env.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envUsed bool) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult

	base := fileCfg
	src := "config"
	if !fileExists {
		base = envCfg
		src = "env"
		if !envUsed {
			src = "flags"
		}
	}

	if flags.Set["config"] {
		if !fileExists {
			return res, fmt.Errorf("config file %s not found", flags.Config)
		}
		base = fileCfg
		src = "config"
	}

	// Explicit flags override individual fields of the base config.
	if flags.Set["addr"] {
		addr := flags.Addr
		base.Server.Address = addr
		base.Server.Port = parsePortFromAddr(addr)
		if h, _, err := net.SplitHostPort(addr); err == nil {
			base.Server.Address = h
		}
		src = "flags"
	}
	if flags.Set["data"] {
		base.Server.DataDir = flags.Data
		src = "flags"
	}
	if flags.Set["job"] && flags.Job != "" {
		base.Job.Name = flags.Job
	}

	if base.Server.DataDir == "" {
		base.Server.DataDir = flags.Data
	}
	base.ApplyDefaults()

	res.Config = base
	res.Addr = base.Addr()
	res.DataDir = base.Server.DataDir
	res.Source = src
	return res, nil
}

// parsePortFromAddr extracts port integer from host:port string.
func parsePortFromAddr(a string) int {
	if a == "" {
		return 0
	}
	if _, p, err := net.SplitHostPort(a); err == nil {
		if pi, err := strconv.Atoi(p); err == nil {
			return pi
		}
	}
	return 0
}
