package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oloapinivad/CDS-retriever/internal/dataset"
)

// Config defines configuration for the cdsretriever CLI.
type Config struct {
	TmpDir          string        `yaml:"tmpdir"`
	StoreDir        string        `yaml:"storedir"`
	Dataset         string        `yaml:"dataset"`
	VarList         StringList    `yaml:"varlist"`
	Year            YearConfig    `yaml:"year"`
	LevelOut        StringList    `yaml:"levelout"`
	Freq            string        `yaml:"freq"`
	Grid            string        `yaml:"grid"`
	Area            Area          `yaml:"area"`
	NProcs          int           `yaml:"nprocs"`
	DownloadRequest string        `yaml:"download_request"`
	DoRetrieve      bool          `yaml:"do_retrieve"`
	DoPostproc      bool          `yaml:"do_postproc"`
	DoAlign         bool          `yaml:"do_align"`
	Retry           RetryConfig   `yaml:"retry"`
	CDS             CDSConfig     `yaml:"cds"`
	Codec           CodecConfig   `yaml:"codec"`
	Log             LogConfig     `yaml:"log"`
	Metrics         MetricsConfig `yaml:"metrics"`
}

// YearConfig is the requested year range.
type YearConfig struct {
	Begin int `yaml:"begin"`
	End   int `yaml:"end"`

	// Update replaces the range by the one proposed from the archive.
	Update bool `yaml:"update"`
}

// RetryConfig defines retry behavior.
type RetryConfig struct {
	Attempts int `yaml:"attempts"`
	// Backoff pauses between attempts of a chunk. Default: 0 (retry
	// immediately)
	Backoff time.Duration `yaml:"backoff"`
	// MaxConsecutiveFailures stops launching chunks after that many failed
	// in a row. Default: 0 (disabled)
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`
}

// CDSConfig locates and authenticates against the archive.
type CDSConfig struct {
	URL          string        `yaml:"url"`
	Key          string        `yaml:"key"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// CodecConfig configures the external codec tool.
type CodecConfig struct {
	Command string `yaml:"command"`
	Debug   bool   `yaml:"debug"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures metrics exposition. Both are optional.
type MetricsConfig struct {
	Addr     string `yaml:"addr"`
	Textfile string `yaml:"textfile"`
}

// ConfigurationError reports an invalid setting.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ConfigurationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Dataset:         dataset.ERA5,
		Grid:            dataset.FullGrid,
		NProcs:          1,
		DownloadRequest: dataset.Yearly,
		DoRetrieve:      true,
		DoPostproc:      true,
		Retry: RetryConfig{
			Attempts: 5,
		},
		CDS: CDSConfig{
			PollInterval: 2 * time.Second,
		},
		Codec: CodecConfig{
			Command: "cdo",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromFile loads configuration from a YAML file. Keys absent from the
// file keep their defaults.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the CDSRETRIEVER_ prefix; CDSAPI_URL and
// CDSAPI_KEY are honoured unless the prefixed variables are set.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("CDSAPI_URL"); v != "" {
		c.CDS.URL = v
	}
	if v := os.Getenv("CDSAPI_KEY"); v != "" {
		c.CDS.Key = v
	}

	env := envReader{prefix: "CDSRETRIEVER_"}
	env.setString("TMPDIR", &c.TmpDir)
	env.setString("STOREDIR", &c.StoreDir)
	env.setString("DATASET", &c.Dataset)
	env.setList("VARLIST", &c.VarList)
	env.setInt("YEAR_BEGIN", &c.Year.Begin)
	env.setInt("YEAR_END", &c.Year.End)
	env.setBool("YEAR_UPDATE", &c.Year.Update)
	env.setList("LEVELOUT", &c.LevelOut)
	env.setString("FREQ", &c.Freq)
	env.setString("GRID", &c.Grid)
	if v := os.Getenv(env.prefix + "AREA"); v != "" && env.err == nil {
		a, err := ParseArea(v)
		if err != nil {
			env.err = fmt.Errorf("parse %sAREA: %w", env.prefix, err)
		}
		c.Area = a
	}
	env.setInt("NPROCS", &c.NProcs)
	env.setString("DOWNLOAD_REQUEST", &c.DownloadRequest)
	env.setBool("DO_RETRIEVE", &c.DoRetrieve)
	env.setBool("DO_POSTPROC", &c.DoPostproc)
	env.setBool("DO_ALIGN", &c.DoAlign)
	env.setInt("RETRY_ATTEMPTS", &c.Retry.Attempts)
	env.setDuration("RETRY_BACKOFF", &c.Retry.Backoff)
	env.setInt("MAX_CONSECUTIVE_FAILURES", &c.Retry.MaxConsecutiveFailures)
	env.setString("CDS_URL", &c.CDS.URL)
	env.setString("CDS_KEY", &c.CDS.Key)
	env.setDuration("CDS_POLL_INTERVAL", &c.CDS.PollInterval)
	env.setString("CODEC_COMMAND", &c.Codec.Command)
	env.setBool("CODEC_DEBUG", &c.Codec.Debug)
	env.setString("LOG_LEVEL", &c.Log.Level)
	env.setString("LOG_FORMAT", &c.Log.Format)
	env.setString("METRICS_ADDR", &c.Metrics.Addr)
	env.setString("METRICS_TEXTFILE", &c.Metrics.Textfile)
	return env.err
}

// envReader applies prefixed variables, keeping the first parse error.
type envReader struct {
	prefix string
	err    error
}

func (r *envReader) lookup(name string) (string, bool) {
	if r.err != nil {
		return "", false
	}
	v := os.Getenv(r.prefix + name)
	return v, v != ""
}

func (r *envReader) setString(name string, dst *string) {
	if v, ok := r.lookup(name); ok {
		*dst = v
	}
}

func (r *envReader) setList(name string, dst *StringList) {
	if v, ok := r.lookup(name); ok {
		*dst = splitList(v)
	}
}

func (r *envReader) setInt(name string, dst *int) {
	if v, ok := r.lookup(name); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			r.err = fmt.Errorf("parse %s%s: %w", r.prefix, name, err)
			return
		}
		*dst = n
	}
}

func (r *envReader) setBool(name string, dst *bool) {
	if v, ok := r.lookup(name); ok {
		*dst = v == "true" || v == "1"
	}
}

func (r *envReader) setDuration(name string, dst *time.Duration) {
	if v, ok := r.lookup(name); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			r.err = fmt.Errorf("parse %s%s: %w", r.prefix, name, err)
			return
		}
		*dst = d
	}
}

func splitList(s string) StringList {
	var out StringList
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// DefaultCDSRCPath returns the path of the archive credentials file.
func DefaultCDSRCPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".cdsapirc")
}

// LoadCDSRC reads archive credentials from a .cdsapirc file. Its "url: ..."
// and "key: ..." lines are valid YAML.
func LoadCDSRC(path string) (CDSConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return CDSConfig{}, fmt.Errorf("read %s: %w", path, err)
	}
	var rc struct {
		URL string `yaml:"url"`
		Key string `yaml:"key"`
	}
	if err := yaml.Unmarshal(data, &rc); err != nil {
		return CDSConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return CDSConfig{URL: rc.URL, Key: rc.Key}, nil
}

// ApplyCDSRC fills archive credentials not set elsewhere from path. A
// missing file is not an error.
func (c *Config) ApplyCDSRC(path string) error {
	if path == "" || (c.CDS.URL != "" && c.CDS.Key != "") {
		return nil
	}
	rc, err := LoadCDSRC(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	if c.CDS.URL == "" {
		c.CDS.URL = rc.URL
	}
	if c.CDS.Key == "" {
		c.CDS.Key = rc.Key
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.TmpDir == "" {
		return invalid("tmpdir", "is required")
	}
	if c.StoreDir == "" {
		return invalid("storedir", "is required")
	}
	if c.Dataset == "" {
		return invalid("dataset", "is required")
	}
	if len(c.VarList) == 0 {
		return invalid("varlist", "at least one variable is required")
	}
	for _, v := range c.VarList {
		if v == "" || strings.ContainsAny(v, "/ ") {
			return invalid("varlist", "invalid variable name %q", v)
		}
	}
	if len(c.LevelOut) == 0 {
		return invalid("levelout", "is required")
	}
	if c.Freq == "" {
		return invalid("freq", "is required")
	}
	if c.Grid == "" {
		return invalid("grid", "is required")
	}
	if !c.Year.Update {
		if c.Year.Begin == 0 || c.Year.End == 0 {
			return invalid("year", "begin and end are required unless update is set")
		}
		if c.Year.Begin > c.Year.End {
			return invalid("year", "begin %d is after end %d", c.Year.Begin, c.Year.End)
		}
	}
	if err := c.Area.validate(); err != nil {
		return err
	}
	if c.NProcs <= 0 {
		return invalid("nprocs", "must be positive")
	}
	if _, err := dataset.ResolveGranularity(c.DownloadRequest); err != nil {
		return invalid("download_request", "%v", err)
	}
	if c.Retry.Attempts <= 0 {
		return invalid("retry.attempts", "must be positive")
	}
	if c.Retry.Backoff < 0 {
		return invalid("retry.backoff", "must not be negative")
	}
	if c.Retry.MaxConsecutiveFailures < 0 {
		return invalid("retry.max_consecutive_failures", "must not be negative")
	}
	if c.DoRetrieve && c.CDS.Key == "" {
		return invalid("cds.key", "is required to retrieve data (set CDSAPI_KEY or ~/.cdsapirc)")
	}
	switch c.Log.Format {
	case "", "console", "json":
	default:
		return invalid("log.format", "must be console or json, got %q", c.Log.Format)
	}
	return nil
}

// Years is the configured year range.
func (c *Config) Years() dataset.YearRange {
	return dataset.YearRange{First: c.Year.Begin, Last: c.Year.End}
}

// Descriptor builds the descriptor of one variable of the run.
func (c *Config) Descriptor(variable string) dataset.Descriptor {
	return dataset.Descriptor{
		Dataset:   c.Dataset,
		Variable:  variable,
		Frequency: c.Freq,
		Level:     append([]string(nil), c.LevelOut...),
		Grid:      c.Grid,
		Area:      dataset.Area(c.Area),
	}
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.TmpDir != "" {
		c.TmpDir = override.TmpDir
	}
	if override.StoreDir != "" {
		c.StoreDir = override.StoreDir
	}
	if override.Dataset != "" {
		c.Dataset = override.Dataset
	}
	if len(override.VarList) > 0 {
		c.VarList = override.VarList
	}
	if override.Year.Begin != 0 {
		c.Year.Begin = override.Year.Begin
	}
	if override.Year.End != 0 {
		c.Year.End = override.Year.End
	}
	if override.Year.Update {
		c.Year.Update = true
	}
	if len(override.LevelOut) > 0 {
		c.LevelOut = override.LevelOut
	}
	if override.Freq != "" {
		c.Freq = override.Freq
	}
	if override.Grid != "" {
		c.Grid = override.Grid
	}
	if override.Area != nil {
		c.Area = override.Area
	}
	if override.NProcs != 0 {
		c.NProcs = override.NProcs
	}
	if override.DownloadRequest != "" {
		c.DownloadRequest = override.DownloadRequest
	}
	if override.DoAlign {
		c.DoAlign = true
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Backoff != 0 {
		c.Retry.Backoff = override.Retry.Backoff
	}
	if override.Retry.MaxConsecutiveFailures != 0 {
		c.Retry.MaxConsecutiveFailures = override.Retry.MaxConsecutiveFailures
	}
	if override.CDS.URL != "" {
		c.CDS.URL = override.CDS.URL
	}
	if override.CDS.Key != "" {
		c.CDS.Key = override.CDS.Key
	}
	if override.CDS.PollInterval != 0 {
		c.CDS.PollInterval = override.CDS.PollInterval
	}
	if override.Codec.Command != "" {
		c.Codec.Command = override.Codec.Command
	}
	if override.Codec.Debug {
		c.Codec.Debug = true
	}
	if override.Log.Level != "" {
		c.Log.Level = override.Log.Level
	}
	if override.Log.Format != "" {
		c.Log.Format = override.Log.Format
	}
	if override.Metrics.Addr != "" {
		c.Metrics.Addr = override.Metrics.Addr
	}
	if override.Metrics.Textfile != "" {
		c.Metrics.Textfile = override.Metrics.Textfile
	}
	return c
}

// Summary lists the effective settings, one per line.
func (c *Config) Summary() []string {
	lines := []string{
		fmt.Sprintf("Downloading files in %s", c.TmpDir),
		fmt.Sprintf("Storing final files in %s", c.StoreDir),
		fmt.Sprintf("Downloading %s from %s", strings.Join(c.VarList, ", "), c.Dataset),
	}
	if c.Year.Update {
		lines = append(lines, "Updating existing datasets")
	} else {
		lines = append(lines, fmt.Sprintf("Data range: %d-%d", c.Year.Begin, c.Year.End))
	}
	lines = append(lines,
		fmt.Sprintf("Vertical levels: %s", strings.Join(c.LevelOut, ", ")),
		fmt.Sprintf("Data frequency: %s", c.Freq),
		fmt.Sprintf("Grid selection: %s", c.Grid),
		fmt.Sprintf("Area: %s", c.Area),
		fmt.Sprintf("Parallel processes: %d", c.NProcs),
		fmt.Sprintf("Download %s chunks", c.DownloadRequest),
	)
	var actions []string
	if c.DoRetrieve {
		actions = append(actions, "retrieve")
	}
	if c.DoPostproc {
		actions = append(actions, "postproc")
	}
	if c.DoAlign {
		actions = append(actions, "align")
	}
	if len(actions) == 0 {
		actions = append(actions, "none")
	}
	return append(lines, "Actions: "+strings.Join(actions, ", "))
}
