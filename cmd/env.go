package main

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/spectral-cli/internal/analysis"
	"github.com/sells-group/spectral-cli/internal/fetcher"
	"github.com/sells-group/spectral-cli/internal/landsample"
	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/placeindex"
	"github.com/sells-group/spectral-cli/internal/raster"
	"github.com/sells-group/spectral-cli/internal/resilience"
	"github.com/sells-group/spectral-cli/internal/scene"
	"github.com/sells-group/spectral-cli/internal/shapefile"
	"github.com/sells-group/spectral-cli/internal/store"
	"github.com/sells-group/spectral-cli/pkg/geocode"
)

// landCoverBand names the single band of a land cover grid.
const landCoverBand = "landcover"

// initStore opens the SQLite ledger and applies migrations. A nil store with
// a nil error means store.path is empty and recording is off.
func initStore(ctx context.Context) (store.Store, error) {
	if cfg.Store.Path == "" {
		zap.L().Debug("store.path not set, outcome recording disabled")
		return nil, nil
	}
	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

func retryConfig() resilience.RetryConfig {
	return resilience.NewRetryConfig(
		cfg.Retry.MaxAttempts,
		time.Duration(cfg.Retry.InitialBackoffMs)*time.Millisecond,
		time.Duration(cfg.Retry.MaxBackoffMs)*time.Millisecond,
	)
}

// newFetcher routes http(s) and ftp URLs. maxAttempts of 1 disables retry.
func newFetcher(maxAttempts int) *fetcher.Router {
	retry := retryConfig()
	retry.MaxAttempts = maxAttempts
	retry.OnRetry = resilience.RetryLogger("fetcher", "download")
	httpF := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: cfg.Download.UserAgent,
		Timeout:   cfg.Download.Timeout(),
		Retry:     retry,
		HostRate:  rate.Limit(cfg.Download.HostRate),
	})
	ftpF := fetcher.NewFTPFetcher(fetcher.FTPOptions{Timeout: cfg.Download.Timeout()})
	return fetcher.NewRouter(httpF, ftpF)
}

// newGeocoder builds the Nominatim client. Lookups are cached in c when the
// ledger is open.
func newGeocoder(c geocode.Cache) geocode.Client {
	opts := []geocode.Option{
		geocode.WithBaseURL(cfg.Geocode.URL),
		geocode.WithRateLimit(cfg.Geocode.RateLimit),
		geocode.WithUserAgent(cfg.Geocode.UserAgent),
		geocode.WithRetry(retryConfig()),
	}
	if c != nil {
		opts = append(opts, geocode.WithCache(c, cfg.Geocode.CacheTTL()))
	}
	return geocode.NewClient(opts...)
}

// loadPlaces resolves the populated places shapefile, downloading it on
// first use, and indexes it.
func loadPlaces(ctx context.Context) (*placeindex.Index, error) {
	path, err := shapefile.Resolve(ctx, newFetcher(cfg.Retry.MaxAttempts), cfg.Places.Path, cfg.Places.CacheDir)
	if err != nil {
		return nil, err
	}
	return placeindex.LoadShapefile(path, shapefile.Fields{
		ID:     placeindex.NaturalEarthFields.ID,
		Name:   cfg.Places.NameField,
		Region: cfg.Places.RegionField,
	})
}

func loadClassifier(ctx context.Context) (landsample.Classifier, error) {
	ls := cfg.LandSample
	switch ls.Classifier {
	case "landcover":
		if ls.LandCoverPath == "" {
			return nil, eris.New("land_sample.landcover_path is not set")
		}
		return loadLandCover(ls.LandCoverPath, ls.WaterCodes)
	default:
		if ls.PolygonPath == "" {
			return nil, eris.New("land_sample.polygon_path is not set")
		}
		path, err := shapefile.Resolve(ctx, newFetcher(cfg.Retry.MaxAttempts), ls.PolygonPath, cfg.Places.CacheDir)
		if err != nil {
			return nil, err
		}
		return landsample.LoadPolygonClassifier(path)
	}
}

// loadLandCover reads a categorical ESRI ASCII grid as a land cover raster.
func loadLandCover(path string, waterCodes []float64) (*landsample.LandCoverClassifier, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "open land cover %s", path)
	}
	defer f.Close() //nolint:errcheck

	grid, data, err := scene.ParseASCIIGrid(f)
	if err != nil {
		return nil, err
	}
	im := raster.NewImage(filepath.Base(path), time.Time{}, grid)
	if err := im.AddBand(landCoverBand, data); err != nil {
		return nil, err
	}
	return landsample.NewLandCoverClassifier(im, landCoverBand, waterCodes...)
}

func loadSampler(ctx context.Context) (*landsample.Sampler, error) {
	c, err := loadClassifier(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "land sampler")
	}
	s := landsample.New(c)
	s.MaxAttempts = cfg.LandSample.MaxAttempts
	s.MinLat = cfg.LandSample.MinLat
	s.MaxLat = cfg.LandSample.MaxLat
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// loadSource opens the scene index and reads bands through the native ASCII
// reader or GDAL.
func loadSource() (*scene.Source, error) {
	scenes, err := scene.LoadIndex(cfg.Scenes.IndexPath)
	if err != nil {
		return nil, err
	}
	src := scene.NewSource(scenes, scene.NewReader())
	if cfg.Scenes.Resolution > 0 {
		src.Resolution = cfg.Scenes.Resolution
	}
	zap.L().Debug("scene index loaded",
		zap.String("path", cfg.Scenes.IndexPath),
		zap.Int("scenes", len(scenes)),
		zap.Bool("gdal", scene.GDALAvailable),
	)
	return src, nil
}

// serviceOptions selects the optional collaborators of an analysis.Service.
type serviceOptions struct {
	source   bool
	places   bool
	geocoder bool
	sampler  bool
	samples  analysis.SampleStore
	cache    geocode.Cache
}

// newService wires an analysis.Service from config. The place index and the
// land sampler are optional: a load failure is logged and the feature is
// left off. A missing scene index is an error when a source is asked for.
func newService(ctx context.Context, opts serviceOptions) (*analysis.Service, error) {
	log := zap.L().With(zap.String("component", "cmd.env"))

	reducer, err := raster.ReducerByName(cfg.Spectral.Reducer)
	if err != nil {
		return nil, err
	}
	svc := &analysis.Service{
		Reducer:      reducer,
		BufferMeters: cfg.Spectral.BufferMeters,
		ScaleMeters:  cfg.Spectral.ScaleMeters,
		Samples:      opts.samples,
	}

	if opts.source {
		src, err := loadSource()
		if err != nil {
			return nil, err
		}
		svc.Source = src
	}
	if opts.places {
		idx, err := loadPlaces(ctx)
		if err != nil {
			log.Warn("place index unavailable, nearest place lookups disabled", zap.Error(err))
		} else {
			log.Info("place index loaded", zap.Int("places", idx.Len()))
			svc.Places = idx
		}
	}
	if opts.geocoder {
		svc.Geocoder = newGeocoder(opts.cache)
	}
	if opts.sampler {
		s, err := loadSampler(ctx)
		if err != nil {
			log.Warn("land sampler unavailable", zap.Error(err))
		} else {
			svc.Sampler = s
		}
	}
	return svc, nil
}

// addQueryFlags registers the point and window flags shared by analyze and
// composite.
func addQueryFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("lat", 0, "latitude in decimal degrees")
	cmd.Flags().Float64("lon", 0, "longitude in decimal degrees")
	cmd.Flags().String("start", "", "window start, YYYY-MM-DD (default from config)")
	cmd.Flags().String("end", "", "window end, YYYY-MM-DD (default from config)")
	cmd.Flags().Float64("cloud", -1, "maximum scene cloud cover percent (default from config)")
}

// windowFromFlags reads the date window and cloud limit, falling back to
// config.
func windowFromFlags(cmd *cobra.Command) (model.DateRange, float64, error) {
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	cloud, _ := cmd.Flags().GetFloat64("cloud")

	if start == "" {
		start = cfg.Spectral.StartDate
	}
	if end == "" {
		end = cfg.Spectral.EndDate
	}
	dates, err := model.ParseDateRange(start, end)
	if err != nil {
		return model.DateRange{}, 0, err
	}
	if cloud < 0 {
		cloud = cfg.Spectral.MaxCloud
	}
	if math.IsNaN(cloud) || cloud > 100 {
		return model.DateRange{}, 0, eris.Errorf("cloud %g out of range [0, 100]", cloud)
	}
	return dates, cloud, nil
}

func pointFromFlags(cmd *cobra.Command) (model.GeoPoint, error) {
	lat, _ := cmd.Flags().GetFloat64("lat")
	lon, _ := cmd.Flags().GetFloat64("lon")
	p := model.GeoPoint{Lat: lat, Lon: lon}
	if err := p.Validate(); err != nil {
		return model.GeoPoint{}, err
	}
	return p, nil
}

// queryFromFlags reads the flags of addQueryFlags.
func queryFromFlags(cmd *cobra.Command) (analysis.Request, error) {
	dates, cloud, err := windowFromFlags(cmd)
	if err != nil {
		return analysis.Request{}, err
	}
	p, err := pointFromFlags(cmd)
	if err != nil {
		return analysis.Request{}, err
	}
	return analysis.Request{Point: p, Dates: dates, MaxCloud: cloud}, nil
}
