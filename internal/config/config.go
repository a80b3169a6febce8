package config

import (
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/spectral-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Manifest   ManifestConfig   `yaml:"manifest" mapstructure:"manifest"`
	Download   DownloadConfig   `yaml:"download" mapstructure:"download"`
	Convert    ConvertConfig    `yaml:"convert" mapstructure:"convert"`
	Overpass   OverpassConfig   `yaml:"overpass" mapstructure:"overpass"`
	STAC       STACConfig       `yaml:"stac" mapstructure:"stac"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	LandSample LandSampleConfig `yaml:"land_sample" mapstructure:"land_sample"`
	Places     PlacesConfig     `yaml:"places" mapstructure:"places"`
	Scenes     ScenesConfig     `yaml:"scenes" mapstructure:"scenes"`
	Spectral   SpectralConfig   `yaml:"spectral" mapstructure:"spectral"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the SQLite outcome ledger. An empty path disables
// recording.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ManifestConfig names the spreadsheet columns read by the downloader.
type ManifestConfig struct {
	Sheet      string `yaml:"sheet" mapstructure:"sheet"`
	NameColumn string `yaml:"name_column" mapstructure:"name_column"`
	LinkColumn string `yaml:"link_column" mapstructure:"link_column"`
}

// DownloadConfig configures the bulk downloader.
type DownloadConfig struct {
	Workers      int     `yaml:"workers" mapstructure:"workers"`
	SkipExisting bool    `yaml:"skip_existing" mapstructure:"skip_existing"`
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent    string  `yaml:"user_agent" mapstructure:"user_agent"`
	HostRate     float64 `yaml:"host_rate" mapstructure:"host_rate"`
	Ext          string  `yaml:"ext" mapstructure:"ext"`
}

// Timeout returns the per-request timeout.
func (d DownloadConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSecs) * time.Second
}

// ConvertConfig selects the conversion runner.
type ConvertConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	OGR2OGRPath string `yaml:"ogr2ogr_path" mapstructure:"ogr2ogr_path"`
	Format      string `yaml:"format" mapstructure:"format"`
	Ext         string `yaml:"ext" mapstructure:"ext"`
}

// OverpassConfig configures the OSM Overpass client.
type OverpassConfig struct {
	URL         string  `yaml:"url" mapstructure:"url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// STACConfig configures the scene catalog search.
type STACConfig struct {
	URL        string  `yaml:"url" mapstructure:"url"`
	Collection string  `yaml:"collection" mapstructure:"collection"`
	RateLimit  float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	MaxItems   int     `yaml:"max_items" mapstructure:"max_items"`
}

// GeocodeConfig configures the Nominatim reverse geocoder.
type GeocodeConfig struct {
	URL       string  `yaml:"url" mapstructure:"url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	UserAgent string  `yaml:"user_agent" mapstructure:"user_agent"`
	// CacheTTLDays expires cached lookups in the store; 0 keeps them.
	CacheTTLDays int `yaml:"cache_ttl_days" mapstructure:"cache_ttl_days"`
}

// CacheTTL returns CacheTTLDays as a duration.
func (g GeocodeConfig) CacheTTL() time.Duration {
	return time.Duration(g.CacheTTLDays) * 24 * time.Hour
}

// LandSampleConfig configures random land point generation.
type LandSampleConfig struct {
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	MinLat      float64 `yaml:"min_lat" mapstructure:"min_lat"`
	MaxLat      float64 `yaml:"max_lat" mapstructure:"max_lat"`
	// Classifier is "polygon" or "landcover".
	Classifier    string    `yaml:"classifier" mapstructure:"classifier"`
	PolygonPath   string    `yaml:"polygon_path" mapstructure:"polygon_path"`
	LandCoverPath string    `yaml:"landcover_path" mapstructure:"landcover_path"`
	WaterCodes    []float64 `yaml:"water_codes" mapstructure:"water_codes"`
}

// PlacesConfig locates the populated places shapefile, local or remote.
type PlacesConfig struct {
	Path        string `yaml:"path" mapstructure:"path"`
	CacheDir    string `yaml:"cache_dir" mapstructure:"cache_dir"`
	NameField   string `yaml:"name_field" mapstructure:"name_field"`
	RegionField string `yaml:"region_field" mapstructure:"region_field"`
}

// ScenesConfig locates the Sentinel-2 scene index.
type ScenesConfig struct {
	IndexPath  string  `yaml:"index_path" mapstructure:"index_path"`
	Resolution float64 `yaml:"resolution" mapstructure:"resolution"`
}

// SpectralConfig holds the analysis defaults.
type SpectralConfig struct {
	VisPath      string  `yaml:"vis_path" mapstructure:"vis_path"`
	StartDate    string  `yaml:"start_date" mapstructure:"start_date"`
	EndDate      string  `yaml:"end_date" mapstructure:"end_date"`
	MaxCloud     float64 `yaml:"max_cloud" mapstructure:"max_cloud"`
	BufferMeters float64 `yaml:"buffer_meters" mapstructure:"buffer_meters"`
	ScaleMeters  float64 `yaml:"scale_meters" mapstructure:"scale_meters"`
	Reducer      string  `yaml:"reducer" mapstructure:"reducer"`
}

// Dates parses the default query window.
func (s SpectralConfig) Dates() (model.DateRange, error) {
	return model.ParseDateRange(s.StartDate, s.EndDate)
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// RetryConfig configures retries of remote API calls. The bulk downloader
// never retries.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// Load reads configuration from config.yaml in the working directory or
// $HOME/.spectral, then SPECTRAL_* environment variables.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.spectral")

	// Environment
	v.SetEnvPrefix("SPECTRAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.path", "spectral.db")
	v.SetDefault("manifest.sheet", "")
	v.SetDefault("manifest.name_column", "Name")
	v.SetDefault("manifest.link_column", "link_kml_outline")
	v.SetDefault("download.workers", 5)
	v.SetDefault("download.skip_existing", true)
	v.SetDefault("download.timeout_secs", 60)
	v.SetDefault("download.user_agent", "spectral-cli/1.0")
	v.SetDefault("download.host_rate", 5.0)
	v.SetDefault("download.ext", ".kml")
	v.SetDefault("convert.driver", "ogr2ogr")
	v.SetDefault("convert.ogr2ogr_path", "ogr2ogr")
	v.SetDefault("convert.format", "ESRI Shapefile")
	v.SetDefault("convert.ext", ".shp")
	v.SetDefault("overpass.url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.timeout_secs", 25)
	v.SetDefault("overpass.rate_limit", 1.0)
	v.SetDefault("stac.url", "https://earth-search.aws.element84.com/v1")
	v.SetDefault("stac.collection", "sentinel-2-l2a")
	v.SetDefault("stac.rate_limit", 5.0)
	v.SetDefault("stac.max_items", 200)
	v.SetDefault("geocode.url", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocode.rate_limit", 1.0)
	v.SetDefault("geocode.user_agent", "spectral_analysis_app")
	v.SetDefault("geocode.cache_ttl_days", 30)
	v.SetDefault("land_sample.max_attempts", 100)
	v.SetDefault("land_sample.min_lat", -60.0)
	v.SetDefault("land_sample.max_lat", 80.0)
	v.SetDefault("land_sample.classifier", "polygon")
	v.SetDefault("land_sample.polygon_path", "")
	v.SetDefault("land_sample.landcover_path", "")
	v.SetDefault("land_sample.water_codes", []float64{0})
	v.SetDefault("places.path", "ne_10m_populated_places.shp")
	v.SetDefault("places.cache_dir", ".cache/places")
	v.SetDefault("places.name_field", "NAME")
	v.SetDefault("places.region_field", "ADM0NAME")
	v.SetDefault("scenes.index_path", "scenes.yaml")
	v.SetDefault("scenes.resolution", 0.0001)
	v.SetDefault("spectral.vis_path", "")
	v.SetDefault("spectral.start_date", "2021-12-01")
	v.SetDefault("spectral.end_date", "2022-02-28")
	v.SetDefault("spectral.max_cloud", 20.0)
	v.SetDefault("spectral.buffer_meters", 5000.0)
	v.SetDefault("spectral.scale_meters", 30.0)
	v.SetDefault("spectral.reducer", "median")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

var (
	logFormats   = []string{"json", "console"}
	convertKinds = []string{"ogr2ogr", "native"}
	classifiers  = []string{"polygon", "landcover"}
	reducers     = []string{"median", "mean", "min", "max", "first"}
)

// Validate rejects values no command could run with.
func (c *Config) Validate() error {
	if !slices.Contains(logFormats, c.Log.Format) {
		return eris.Errorf("config: log.format must be one of %v, got %q", logFormats, c.Log.Format)
	}
	if c.Download.Workers < 1 {
		return eris.Errorf("config: download.workers must be at least 1, got %d", c.Download.Workers)
	}
	if c.Download.TimeoutSecs < 0 {
		return eris.Errorf("config: download.timeout_secs must not be negative, got %d", c.Download.TimeoutSecs)
	}
	if !slices.Contains(convertKinds, c.Convert.Driver) {
		return eris.Errorf("config: convert.driver must be one of %v, got %q", convertKinds, c.Convert.Driver)
	}
	ls := c.LandSample
	if ls.MaxAttempts < 1 {
		return eris.Errorf("config: land_sample.max_attempts must be at least 1, got %d", ls.MaxAttempts)
	}
	if ls.MinLat < -90 || ls.MaxLat > 90 || ls.MinLat >= ls.MaxLat {
		return eris.Errorf("config: land_sample latitude band [%g, %g] is invalid", ls.MinLat, ls.MaxLat)
	}
	if !slices.Contains(classifiers, ls.Classifier) {
		return eris.Errorf("config: land_sample.classifier must be one of %v, got %q", classifiers, ls.Classifier)
	}
	if _, err := c.Spectral.Dates(); err != nil {
		return eris.Wrap(err, "config: spectral date window")
	}
	if !(c.Spectral.MaxCloud >= 0 && c.Spectral.MaxCloud <= 100) {
		return eris.Errorf("config: spectral.max_cloud must be within [0, 100], got %g", c.Spectral.MaxCloud)
	}
	if c.Spectral.BufferMeters <= 0 || c.Spectral.ScaleMeters <= 0 {
		return eris.New("config: spectral.buffer_meters and spectral.scale_meters must be positive")
	}
	if !slices.Contains(reducers, c.Spectral.Reducer) {
		return eris.Errorf("config: spectral.reducer must be one of %v, got %q", reducers, c.Spectral.Reducer)
	}
	if c.Geocode.CacheTTLDays < 0 {
		return eris.Errorf("config: geocode.cache_ttl_days must not be negative, got %d", c.Geocode.CacheTTLDays)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return eris.Errorf("config: server.port out of range: %d", c.Server.Port)
	}
	return nil
}

// InitLogger builds the global zap logger from cfg.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
