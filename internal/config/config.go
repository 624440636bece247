package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/studiowebux/loadgen/internal/stresstest"
	"gopkg.in/yaml.v3"
)

const (
	// FilePermissions is the default permission mode for regular files (read/write for owner, read for others)
	FilePermissions = 0644
	// DirPermissions is the default permission mode for directories (rwxr-xr-x)
	DirPermissions = 0755

	// EnvPrefix prefixes every environment variable, e.g. LOADGEN_WORKERS
	EnvPrefix = "LOADGEN"
	// FileName is the base name of the config file looked up on start
	FileName = "loadgen"
)

// Setting keys, shared by the config file, the environment and the flags
const (
	KeyTargets        = "targets"
	KeyWorkers        = "workers"
	KeyReportInterval = "report_interval"
	KeyRequestTimeout = "request_timeout"
	KeyGracePeriod    = "grace_period"
	KeyRPS            = "rps"
	KeyDuration       = "duration"
	KeyMetricsAddr    = "metrics_addr"
	KeyHistory        = "history"
	KeyDBPath         = "db_path"
	KeyLogLevel       = "log_level"
	KeyLogJSON        = "log_json"
	KeyConfig         = "config"
)

// flagKeys maps command-line flag names to setting keys
var flagKeys = map[string]string{
	"target":       KeyTargets,
	"workers":      KeyWorkers,
	"interval":     KeyReportInterval,
	"timeout":      KeyRequestTimeout,
	"grace":        KeyGracePeriod,
	"rps":          KeyRPS,
	"duration":     KeyDuration,
	"metrics-addr": KeyMetricsAddr,
	"history":      KeyHistory,
	"db":           KeyDBPath,
	"log-level":    KeyLogLevel,
	"log-json":     KeyLogJSON,
	"config":       KeyConfig,
}

var (
	// ConfigDir is the global configuration directory (~/.loadgen)
	ConfigDir string

	// DatabasePath is the SQLite database file for run history
	DatabasePath string
)

// Initialize sets up the configuration directory
// It creates ~/.loadgen/ if it doesn't exist
func Initialize() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	ConfigDir = filepath.Join(homeDir, ".loadgen")
	DatabasePath = filepath.Join(ConfigDir, "loadgen.db")

	if err := os.MkdirAll(ConfigDir, DirPermissions); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", ConfigDir, err)
	}

	return nil
}

// Settings is the merged configuration of one invocation
type Settings struct {
	Targets        []string
	Workers        int
	ReportInterval time.Duration
	RequestTimeout time.Duration
	GracePeriod    time.Duration
	RPS            float64
	Duration       time.Duration
	MetricsAddr    string
	History        bool
	DBPath         string
	LogLevel       string
	LogJSON        bool

	// ConfigFile is the file the settings were read from, empty if none
	ConfigFile string
}

// LoadTestConfig converts the settings into an executor configuration
func (s *Settings) LoadTestConfig(userAgent string) *stresstest.Config {
	return &stresstest.Config{
		Targets:        s.Targets,
		Workers:        s.Workers,
		ReportInterval: s.ReportInterval,
		RequestTimeout: s.RequestTimeout,
		GracePeriod:    s.GracePeriod,
		RPS:            s.RPS,
		Duration:       s.Duration,
		UserAgent:      userAgent,
	}
}

// New returns a viper instance with defaults and environment binding
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyWorkers, stresstest.DefaultWorkers)
	v.SetDefault(KeyReportInterval, stresstest.DefaultReportInterval)
	v.SetDefault(KeyRequestTimeout, stresstest.DefaultRequestTimeout)
	v.SetDefault(KeyGracePeriod, stresstest.DefaultGracePeriod)
	v.SetDefault(KeyRPS, 0.0)
	v.SetDefault(KeyDuration, time.Duration(0))
	v.SetDefault(KeyMetricsAddr, "")
	v.SetDefault(KeyHistory, true)
	v.SetDefault(KeyDBPath, DatabasePath)
	v.SetDefault(KeyLogLevel, "warn")
	v.SetDefault(KeyLogJSON, false)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only covers keys viper already knows about
	_ = v.BindEnv(KeyTargets)
	_ = v.BindEnv(KeyConfig)

	return v
}

// AddFlags registers the load test flags on flags
func AddFlags(flags *pflag.FlagSet) {
	flags.StringArrayP("target", "t", nil, "Target URL (repeatable)")
	flags.IntP("workers", "w", stresstest.DefaultWorkers, "Number of concurrent workers")
	flags.DurationP("interval", "i", stresstest.DefaultReportInterval, "Time between progress lines")
	flags.Duration("timeout", stresstest.DefaultRequestTimeout, "Per-request timeout")
	flags.Duration("grace", stresstest.DefaultGracePeriod, "How long to wait for in-flight requests on stop")
	flags.Float64("rps", 0, "Global request rate cap, 0 for unlimited")
	flags.DurationP("duration", "d", 0, "Stop after this long, 0 to run until interrupted")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	flags.Bool("history", true, "Record the run in the history database")
	flags.String("db", "", "History database path (default ~/.loadgen/loadgen.db)")
	flags.String("log-level", "warn", "Log level: debug, info, warn, error, none")
	flags.Bool("log-json", false, "Log as JSON")
	flags.StringP("config", "c", "", "Config file (default ./loadgen.yaml or ~/.loadgen/loadgen.yaml)")
}

// BindFlags binds every known flag present in flags to its setting key
func BindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load merges defaults, the config file, LOADGEN_* variables and flags, in
// increasing order of precedence. Positional args are target URLs and
// replace targets from the file or the environment.
func Load(flags *pflag.FlagSet, args []string) (*Settings, error) {
	v := New()
	if flags != nil {
		if err := BindFlags(v, flags); err != nil {
			return nil, err
		}
	}

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	targets := stringList(v.Get(KeyTargets))
	if len(args) > 0 {
		if flags != nil && flags.Changed("target") {
			targets = append(targets, args...)
		} else {
			targets = args
		}
	}

	return &Settings{
		Targets:        targets,
		Workers:        v.GetInt(KeyWorkers),
		ReportInterval: v.GetDuration(KeyReportInterval),
		RequestTimeout: v.GetDuration(KeyRequestTimeout),
		GracePeriod:    v.GetDuration(KeyGracePeriod),
		RPS:            v.GetFloat64(KeyRPS),
		Duration:       v.GetDuration(KeyDuration),
		MetricsAddr:    v.GetString(KeyMetricsAddr),
		History:        v.GetBool(KeyHistory),
		DBPath:         v.GetString(KeyDBPath),
		LogLevel:       v.GetString(KeyLogLevel),
		LogJSON:        v.GetBool(KeyLogJSON),
		ConfigFile:     v.ConfigFileUsed(),
	}, nil
}

// readConfigFile reads an explicit --config/LOADGEN_CONFIG file, or the
// first loadgen.yaml found in the working directory or ConfigDir
func readConfigFile(v *viper.Viper) error {
	if path := v.GetString(KeyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if ConfigDir != "" {
		v.AddConfigPath(ConfigDir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// stringList accepts a YAML list, a flag slice or a comma separated string
func stringList(value any) []string {
	var raw []string
	switch val := value.(type) {
	case nil:
		return nil
	case string:
		raw = strings.Split(val, ",")
	case []string:
		raw = val
	case []any:
		for _, item := range val {
			raw = append(raw, fmt.Sprint(item))
		}
	default:
		raw = []string{fmt.Sprint(val)}
	}

	list := make([]string, 0, len(raw))
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}

// sampleFile is the layout written by WriteSample
type sampleFile struct {
	Targets        []string `yaml:"targets"`
	Workers        int      `yaml:"workers"`
	ReportInterval string   `yaml:"report_interval"`
	RequestTimeout string   `yaml:"request_timeout"`
	GracePeriod    string   `yaml:"grace_period"`
	RPS            float64  `yaml:"rps"`
	Duration       string   `yaml:"duration"`
	MetricsAddr    string   `yaml:"metrics_addr"`
	History        bool     `yaml:"history"`
	LogLevel       string   `yaml:"log_level"`
	LogJSON        bool     `yaml:"log_json"`
}

// WriteSample writes a config file holding the default settings. It refuses
// to overwrite an existing file.
func WriteSample(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}

	sample := sampleFile{
		Targets:        []string{"http://localhost:8080/api/robots", "http://localhost:8080/"},
		Workers:        stresstest.DefaultWorkers,
		ReportInterval: stresstest.DefaultReportInterval.String(),
		RequestTimeout: stresstest.DefaultRequestTimeout.String(),
		GracePeriod:    stresstest.DefaultGracePeriod.String(),
		Duration:       "0s",
		History:        true,
		LogLevel:       "warn",
	}

	data, err := yaml.Marshal(&sample)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, DirPermissions); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, data, FilePermissions); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
