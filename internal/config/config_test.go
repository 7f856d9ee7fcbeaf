package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/oloapinivad/CDS-retriever/internal/dataset"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Dataset != "ERA5" {
		t.Errorf("expected default dataset ERA5, got %s", cfg.Dataset)
	}
	if cfg.NProcs != 1 {
		t.Errorf("expected default nprocs 1, got %d", cfg.NProcs)
	}
	if cfg.DownloadRequest != "yearly" {
		t.Errorf("expected default download_request yearly, got %s", cfg.DownloadRequest)
	}
	if !cfg.DoRetrieve || !cfg.DoPostproc || cfg.DoAlign {
		t.Errorf("unexpected default actions: retrieve=%v postproc=%v align=%v", cfg.DoRetrieve, cfg.DoPostproc, cfg.DoAlign)
	}
	if cfg.Retry.Attempts != 5 {
		t.Errorf("expected default retry attempts 5, got %d", cfg.Retry.Attempts)
	}
	if cfg.Retry.Backoff != 0 {
		t.Errorf("expected failed chunks to be retried immediately, got backoff %v", cfg.Retry.Backoff)
	}
	if cfg.Codec.Command != "cdo" {
		t.Errorf("expected default codec cdo, got %s", cfg.Codec.Command)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	return path
}

func TestLoadFromYAML(t *testing.T) {
	path := writeConfig(t, `
tmpdir: /work/scratch/era5
storedir: /work/datasets/obs/ERA5
dataset: ERA5
varlist: [geopotential, temperature]
year:
  begin: 1990
  end: 1999
  update: false
levelout: plev8
freq: mon
grid: 2.5x2.5
area: [60, -10, 30, 40.5]
nprocs: 10
download_request: monthly
do_retrieve: true
do_postproc: false
do_align: true
retry:
  attempts: 3
  backoff: 30s
cds:
  poll_interval: 5s
log:
  format: json
`)

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.TmpDir != "/work/scratch/era5" || cfg.StoreDir != "/work/datasets/obs/ERA5" {
		t.Errorf("unexpected dirs %q %q", cfg.TmpDir, cfg.StoreDir)
	}
	if !reflect.DeepEqual([]string(cfg.VarList), []string{"geopotential", "temperature"}) {
		t.Errorf("unexpected varlist %v", cfg.VarList)
	}
	if cfg.Year.Begin != 1990 || cfg.Year.End != 1999 || cfg.Year.Update {
		t.Errorf("unexpected year %+v", cfg.Year)
	}
	if !reflect.DeepEqual([]string(cfg.LevelOut), []string{"plev8"}) {
		t.Errorf("expected scalar levelout as single token, got %v", cfg.LevelOut)
	}
	if !reflect.DeepEqual([]float64(cfg.Area), []float64{60, -10, 30, 40.5}) {
		t.Errorf("unexpected area %v", cfg.Area)
	}
	if cfg.NProcs != 10 || cfg.DownloadRequest != "monthly" {
		t.Errorf("unexpected nprocs %d / download_request %s", cfg.NProcs, cfg.DownloadRequest)
	}
	if !cfg.DoRetrieve || cfg.DoPostproc || !cfg.DoAlign {
		t.Errorf("unexpected actions %v %v %v", cfg.DoRetrieve, cfg.DoPostproc, cfg.DoAlign)
	}
	if cfg.Retry.Attempts != 3 || cfg.Retry.Backoff != 30*time.Second {
		t.Errorf("unexpected retry %+v", cfg.Retry)
	}
	if cfg.CDS.PollInterval != 5*time.Second {
		t.Errorf("expected poll interval 5s, got %v", cfg.CDS.PollInterval)
	}
	// Untouched keys keep their defaults.
	if cfg.Codec.Command != "cdo" || cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("unexpected codec/log %+v %+v", cfg.Codec, cfg.Log)
	}
}

func TestLoadYAMLLevelsAndArea(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		levels []string
		area   Area
	}{
		{"numeric levels", "levelout: [500, 850]\narea: global\n", []string{"500", "850"}, nil},
		{"surface", "levelout: sfc\n", []string{"sfc"}, nil},
		{"area string", "levelout: 500hPa\narea: \"60,-10,30,40\"\n", []string{"500hPa"}, Area{60, -10, 30, 40}},
		{"global upper case", "levelout: sfc\narea: GLOBAL\n", []string{"sfc"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadFromFile(writeConfig(t, tt.yaml))
			if err != nil {
				t.Fatalf("LoadFromFile: %v", err)
			}
			if !reflect.DeepEqual([]string(cfg.LevelOut), tt.levels) {
				t.Errorf("levelout = %v, want %v", cfg.LevelOut, tt.levels)
			}
			if len(cfg.Area) != len(tt.area) || (len(tt.area) > 0 && !reflect.DeepEqual(cfg.Area, tt.area)) {
				t.Errorf("area = %v, want %v", cfg.Area, tt.area)
			}
		})
	}
}

func TestLoadYAMLBadArea(t *testing.T) {
	if _, err := LoadFromFile(writeConfig(t, "area: [60, north, 30, 40]\n")); err == nil {
		t.Error("expected error for non-numeric area")
	}
	if _, err := LoadFromFile(writeConfig(t, "area: {north: 60}\n")); err == nil {
		t.Error("expected error for mapping area")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CDSAPI_URL", "https://cds.example/api")
	t.Setenv("CDSAPI_KEY", "standard-key")
	t.Setenv("CDSRETRIEVER_CDS_KEY", "prefixed-key")
	t.Setenv("CDSRETRIEVER_VARLIST", "geopotential, temperature")
	t.Setenv("CDSRETRIEVER_YEAR_BEGIN", "2000")
	t.Setenv("CDSRETRIEVER_YEAR_UPDATE", "true")
	t.Setenv("CDSRETRIEVER_LEVELOUT", "500,850")
	t.Setenv("CDSRETRIEVER_AREA", "60,-10,30,40")
	t.Setenv("CDSRETRIEVER_NPROCS", "4")
	t.Setenv("CDSRETRIEVER_DO_ALIGN", "1")
	t.Setenv("CDSRETRIEVER_RETRY_BACKOFF", "500ms")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.CDS.URL != "https://cds.example/api" {
		t.Errorf("expected CDSAPI_URL to apply, got %s", cfg.CDS.URL)
	}
	if cfg.CDS.Key != "prefixed-key" {
		t.Errorf("expected prefixed key to win, got %s", cfg.CDS.Key)
	}
	if !reflect.DeepEqual([]string(cfg.VarList), []string{"geopotential", "temperature"}) {
		t.Errorf("unexpected varlist %v", cfg.VarList)
	}
	if cfg.Year.Begin != 2000 || !cfg.Year.Update {
		t.Errorf("unexpected year %+v", cfg.Year)
	}
	if !reflect.DeepEqual([]string(cfg.LevelOut), []string{"500", "850"}) {
		t.Errorf("unexpected levelout %v", cfg.LevelOut)
	}
	if len(cfg.Area) != 4 || cfg.Area[1] != -10 {
		t.Errorf("unexpected area %v", cfg.Area)
	}
	if cfg.NProcs != 4 || !cfg.DoAlign {
		t.Errorf("unexpected nprocs %d / align %v", cfg.NProcs, cfg.DoAlign)
	}
	if cfg.Retry.Backoff != 500*time.Millisecond {
		t.Errorf("expected retry backoff 500ms, got %v", cfg.Retry.Backoff)
	}
}

func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("CDSRETRIEVER_NPROCS", "many")
	cfg := Default()
	err := cfg.LoadFromEnv()
	if err == nil || !strings.Contains(err.Error(), "CDSRETRIEVER_NPROCS") {
		t.Errorf("expected NPROCS parse error, got %v", err)
	}
}

func TestCDSRC(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".cdsapirc")
	if err := os.WriteFile(path, []byte("url: https://cds.climate.copernicus.eu/api\nkey: 00000000-1111-2222-3333-444444444444\n"), 0600); err != nil {
		t.Fatal(err)
	}

	rc, err := LoadCDSRC(path)
	if err != nil {
		t.Fatalf("LoadCDSRC: %v", err)
	}
	if rc.URL != "https://cds.climate.copernicus.eu/api" || rc.Key != "00000000-1111-2222-3333-444444444444" {
		t.Errorf("unexpected credentials %+v", rc)
	}

	cfg := Default()
	cfg.CDS.Key = "from-env"
	if err := cfg.ApplyCDSRC(path); err != nil {
		t.Fatalf("ApplyCDSRC: %v", err)
	}
	if cfg.CDS.Key != "from-env" || cfg.CDS.URL != rc.URL {
		t.Errorf("ApplyCDSRC should only fill unset fields, got %+v", cfg.CDS)
	}

	cfg = Default()
	if err := cfg.ApplyCDSRC(filepath.Join(t.TempDir(), "missing")); err != nil {
		t.Errorf("missing .cdsapirc should be ignored, got %v", err)
	}
}

func validConfig() Config {
	cfg := Default()
	cfg.TmpDir = "/tmp/era5"
	cfg.StoreDir = "/data/ERA5"
	cfg.VarList = StringList{"geopotential"}
	cfg.LevelOut = StringList{"500hPa"}
	cfg.Freq = "mon"
	cfg.Grid = "2.5x2.5"
	cfg.Year = YearConfig{Begin: 1990, End: 1991}
	cfg.CDS.Key = "secret"
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"valid config", func(*Config) {}, ""},
		{"missing tmpdir", func(c *Config) { c.TmpDir = "" }, "tmpdir"},
		{"missing storedir", func(c *Config) { c.StoreDir = "" }, "storedir"},
		{"no variables", func(c *Config) { c.VarList = nil }, "varlist"},
		{"variable with slash", func(c *Config) { c.VarList = StringList{"2m/temperature"} }, "varlist"},
		{"variable with underscore", func(c *Config) { c.VarList = StringList{"2m_temperature"} }, ""},
		{"no levels", func(c *Config) { c.LevelOut = nil }, "levelout"},
		{"missing freq", func(c *Config) { c.Freq = "" }, "freq"},
		{"inverted years", func(c *Config) { c.Year = YearConfig{Begin: 2000, End: 1990} }, "year"},
		{"missing years", func(c *Config) { c.Year = YearConfig{} }, "year"},
		{"update without years", func(c *Config) { c.Year = YearConfig{Update: true} }, ""},
		{"three area values", func(c *Config) { c.Area = Area{60, -10, 30} }, "area"},
		{"north below south", func(c *Config) { c.Area = Area{30, -10, 60, 40} }, "area"},
		{"zero nprocs", func(c *Config) { c.NProcs = 0 }, "nprocs"},
		{"bad granularity", func(c *Config) { c.DownloadRequest = "daily" }, "download_request"},
		{"zero attempts", func(c *Config) { c.Retry.Attempts = 0 }, "retry.attempts"},
		{"negative breaker", func(c *Config) { c.Retry.MaxConsecutiveFailures = -1 }, "retry.max_consecutive_failures"},
		{"no key", func(c *Config) { c.CDS.Key = "" }, "cds.key"},
		{"no key without retrieval", func(c *Config) { c.CDS.Key = ""; c.DoRetrieve = false }, ""},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(&cfg)
			err := cfg.Validate()
			if tt.field == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			var ce *ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("Validate() error = %v, want *ConfigurationError", err)
			}
			if ce.Field != tt.field {
				t.Errorf("Validate() field = %s, want %s", ce.Field, tt.field)
			}
		})
	}
}

func TestDescriptor(t *testing.T) {
	cfg := validConfig()
	cfg.Area = Area{60, -10, 30, 40}
	desc := cfg.Descriptor("geopotential")

	want := dataset.Descriptor{
		Dataset:   "ERA5",
		Variable:  "geopotential",
		Frequency: "mon",
		Level:     []string{"500hPa"},
		Grid:      "2.5x2.5",
		Area:      dataset.Area{60, -10, 30, 40},
	}
	if !reflect.DeepEqual(desc, want) {
		t.Errorf("Descriptor = %+v, want %+v", desc, want)
	}
	if got := cfg.Years(); got != (dataset.YearRange{First: 1990, Last: 1991}) {
		t.Errorf("Years = %v", got)
	}
}

func TestMerge(t *testing.T) {
	base := validConfig()

	override := Config{
		NProcs: 8,
		Freq:   "6hrs",
		Area:   Area{10, 0, -10, 20},
	}

	merged := base.Merge(override)

	if merged.TmpDir != "/tmp/era5" {
		t.Errorf("expected TmpDir preserved, got %s", merged.TmpDir)
	}
	if merged.Retry.Attempts != 5 {
		t.Errorf("expected retry attempts preserved, got %d", merged.Retry.Attempts)
	}
	if merged.NProcs != 8 || merged.Freq != "6hrs" || len(merged.Area) != 4 {
		t.Errorf("expected overrides applied, got nprocs=%d freq=%s area=%v", merged.NProcs, merged.Freq, merged.Area)
	}
}

func TestSummary(t *testing.T) {
	cfg := validConfig()
	cfg.DoAlign = true
	lines := strings.Join(cfg.Summary(), "\n")
	for _, want := range []string{"Data range: 1990-1991", "Area: global", "Actions: retrieve, postproc, align"} {
		if !strings.Contains(lines, want) {
			t.Errorf("summary missing %q:\n%s", want, lines)
		}
	}
}

func TestLoadYAMLFileNotFound(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadYAMLInvalid(t *testing.T) {
	_, err := LoadFromFile(writeConfig(t, "invalid: [yaml: content"))
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}
