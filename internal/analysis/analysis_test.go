package analysis

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spectral-cli/internal/landsample"
	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/placeindex"
	"github.com/sells-group/spectral-cli/internal/raster"
	"github.com/sells-group/spectral-cli/internal/spectral"
	"github.com/sells-group/spectral-cli/internal/store"
	"github.com/sells-group/spectral-cli/pkg/geocode"
)

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Reverse(ctx context.Context, lat, lon float64) (*geocode.Place, error) {
	args := m.Called(ctx, lat, lon)
	if p := args.Get(0); p != nil {
		return p.(*geocode.Place), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockSampleStore struct {
	mock.Mock
}

func (m *mockSampleStore) SaveSample(ctx context.Context, rec *store.SampleRecord) error {
	return m.Called(ctx, rec).Error(0)
}

// Pixel layout of the 2x2 test grid over lon [0, 2], lat [0, 2]:
// 0 is (lat 1.5, lon 0.5), 1 is (lat 1.5, lon 1.5).
var (
	topLeft  = model.GeoPoint{Lat: 1.5, Lon: 0.5}
	topRight = model.GeoPoint{Lat: 1.5, Lon: 1.5}
)

func testImage(t *testing.T, id string, at time.Time, red float64, qa []float64) *raster.Image {
	t.Helper()
	im := raster.NewImage(id, at, raster.Grid{OriginLon: 0, OriginLat: 2, ResX: 1, ResY: 1, Width: 2, Height: 2})
	im.CloudCover = 5
	fill := func(v float64) []float64 { return []float64{v, v, v, v} }
	require.NoError(t, im.AddBand(spectral.B2, fill(500)))
	require.NoError(t, im.AddBand(spectral.B4, fill(red)))
	require.NoError(t, im.AddBand(spectral.B8, fill(4000)))
	require.NoError(t, im.AddBand(spectral.QA60, qa))
	return im
}

func june(t *testing.T) model.DateRange {
	t.Helper()
	r, err := model.ParseDateRange("2024-06-01", "2024-06-30")
	require.NoError(t, err)
	return r
}

func newService(t *testing.T) *Service {
	t.Helper()
	cloudy := []float64{0, 1024, 0, 0}
	return &Service{
		Source: raster.StaticSource{
			testImage(t, "late", time.Date(2024, 6, 20, 10, 0, 0, 0, time.UTC), 3000, []float64{0, 0, 0, 0}),
			testImage(t, "early", time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC), 1000, cloudy),
		},
		Places: placeindex.New([]model.FeatureRecord{
			{ID: "1", Name: "Napa", Region: "United States of America", Geometry: orb.Point{0.6, 1.6}},
			{ID: "2", Name: "Far", Region: "Elsewhere", Geometry: orb.Point{50, 50}},
		}),
	}
}

func TestSpectraUsesEarliestImage(t *testing.T) {
	svc := newService(t)

	res, err := svc.Spectra(context.Background(), Request{Point: topLeft, Dates: june(t), MaxCloud: 20})
	require.NoError(t, err)

	assert.Equal(t, "early", res.ImageID)
	assert.Equal(t, 2, res.Images)
	assert.InDelta(t, DefaultScaleMeters, res.Scale, 1e-9)
	require.NotNil(t, res.Location.Nearest)
	assert.Equal(t, "Napa", res.Location.Nearest.Feature.Name)
	assert.Nil(t, res.Location.Reverse)

	values := map[string]float64{}
	for _, bv := range res.Values {
		values[bv.Band] = bv.Value
	}
	assert.InDelta(t, 0.1, values[spectral.B4], 1e-12)
	assert.InDelta(t, 0.6, values["NDVI"], 1e-12)
	_, hasB11 := values[spectral.B11]
	assert.False(t, hasB11)
	assert.Empty(t, res.RecordID)
}

func TestSpectraExcludesCloudyPixel(t *testing.T) {
	svc := newService(t)

	res, err := svc.Spectra(context.Background(), Request{Point: topRight, Dates: june(t), MaxCloud: 20})
	require.NoError(t, err)
	assert.Equal(t, "early", res.ImageID)
	assert.Empty(t, res.Values)
	assert.True(t, math.IsNaN(res.Sample()[spectral.B4]))
}

func TestSpectraNoImages(t *testing.T) {
	svc := newService(t)
	dates, err := model.ParseDateRange("2023-01-01", "2023-01-31")
	require.NoError(t, err)

	_, err = svc.Spectra(context.Background(), Request{Point: topLeft, Dates: dates, MaxCloud: 20})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoImages))
}

func TestSpectraPointOutsideImages(t *testing.T) {
	svc := newService(t)
	svc.BufferMeters = 500000

	_, err := svc.Spectra(context.Background(), Request{Point: model.GeoPoint{Lat: 3, Lon: 3}, Dates: june(t), MaxCloud: 20})
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoImages))
}

func TestSpectraGeocodesAndSaves(t *testing.T) {
	svc := newService(t)
	geo := &mockGeocoder{}
	geo.On("Reverse", mock.Anything, topLeft.Lat, topLeft.Lon).
		Return(&geocode.Place{City: "Napa", Country: "United States"}, nil)
	samples := &mockSampleStore{}
	samples.On("SaveSample", mock.Anything, mock.MatchedBy(func(rec *store.SampleRecord) bool {
		return rec.Place == "Napa" && rec.Images == 2 && rec.MaxCloud == 20
	})).Run(func(args mock.Arguments) {
		args.Get(1).(*store.SampleRecord).ID = "rec-1"
	}).Return(nil)
	svc.Geocoder, svc.Samples = geo, samples

	res, err := svc.Spectra(context.Background(), Request{Point: topLeft, Dates: june(t), MaxCloud: 20})
	require.NoError(t, err)
	require.NotNil(t, res.Location.Reverse)
	assert.Equal(t, "United States", res.Location.Reverse.Country)
	assert.Equal(t, "rec-1", res.RecordID)
	geo.AssertExpectations(t)
	samples.AssertExpectations(t)
}

func TestSpectraSaveFailure(t *testing.T) {
	svc := newService(t)
	samples := &mockSampleStore{}
	samples.On("SaveSample", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	svc.Samples = samples

	_, err := svc.Spectra(context.Background(), Request{Point: topLeft, Dates: june(t), MaxCloud: 20})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestLocateSkipsFailedLookups(t *testing.T) {
	svc := newService(t)
	geo := &mockGeocoder{}
	geo.On("Reverse", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))
	svc.Geocoder = geo

	loc := svc.Locate(context.Background(), topLeft)
	require.NotNil(t, loc.Nearest)
	assert.Nil(t, loc.Reverse)

	svc.Places = placeindex.New(nil)
	loc = svc.Locate(context.Background(), topLeft)
	assert.Nil(t, loc.Nearest)
}

func TestCompositeStats(t *testing.T) {
	svc := newService(t)

	res, err := svc.Composite(context.Background(), Request{Point: topLeft, Dates: june(t), MaxCloud: 20})
	require.NoError(t, err)
	assert.Equal(t, "median", res.Reducer)
	assert.Equal(t, 2, res.Images)
	assert.Equal(t, 2, res.Width)
	require.NotNil(t, res.Image())

	var red *BandStats
	for i := range res.Bands {
		if res.Bands[i].Band == spectral.B4 {
			red = &res.Bands[i]
		}
	}
	require.NotNil(t, red)
	assert.Equal(t, 4, red.Valid)
	// Pixel 1 is cloudy in the early image, so only the late image counts.
	assert.InDelta(t, 0.2, *red.Min, 1e-12)
	assert.InDelta(t, 0.3, *red.Max, 1e-12)
	assert.InDelta(t, 0.225, *red.Mean, 1e-12)
	assert.Equal(t, spectral.B2, res.Bands[0].Band)
	assert.NotEmpty(t, res.AtPoint)
}

func TestStatsAllNoData(t *testing.T) {
	im := raster.NewImage("x", time.Now(), raster.Grid{OriginLon: 0, OriginLat: 1, ResX: 1, ResY: 1, Width: 1, Height: 1})
	require.NoError(t, im.AddBand("NDVI", []float64{math.NaN()}))

	stats := Stats(im)
	require.Len(t, stats, 1)
	assert.Equal(t, 0, stats[0].Valid)
	assert.Nil(t, stats[0].Mean)
}

func TestRandomLand(t *testing.T) {
	svc := newService(t)
	_, err := svc.RandomLand(context.Background())
	assert.True(t, eris.Is(err, ErrUnavailable))

	sampler := landsample.New(landsample.ClassifierFunc(func(context.Context, model.GeoPoint) (bool, error) {
		return true, nil
	}))
	sampler.Rand = rand.New(rand.NewPCG(1, 2))
	svc.Sampler = sampler

	lp, err := svc.RandomLand(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, lp.Attempts)
	assert.NoError(t, lp.Point.Validate())
	require.NotNil(t, lp.Location.Nearest)
}

func TestCollectionRequiresSource(t *testing.T) {
	svc := &Service{}
	_, _, err := svc.Collection(context.Background(), Request{Point: topLeft, Dates: june(t), MaxCloud: 20})
	assert.True(t, eris.Is(err, ErrUnavailable))

	svc = newService(t)
	_, _, err = svc.Collection(context.Background(), Request{Point: model.GeoPoint{Lat: 95}, Dates: june(t), MaxCloud: 20})
	assert.Error(t, err)
}
