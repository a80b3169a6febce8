package raster

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/spectral"
)

func testGrid() Grid {
	return Grid{OriginLon: 0, OriginLat: 2, ResX: 1, ResY: 1, Width: 2, Height: 2}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 10, 30, 0, 0, time.UTC)
}

// newTestImage builds a 2x2 image where every band not given is filled with fill.
func newTestImage(t *testing.T, id string, at time.Time, cloud float64, bands map[string][]float64) *Image {
	t.Helper()
	im := NewImage(id, at, testGrid())
	im.CloudCover = cloud
	for _, name := range []string{spectral.B2, spectral.B3, spectral.B4, spectral.B5, spectral.B8, spectral.B11, spectral.B12, spectral.QA60} {
		data, ok := bands[name]
		if !ok {
			fill := 1000.0
			if name == spectral.QA60 {
				fill = 0
			}
			data = []float64{fill, fill, fill, fill}
		}
		require.NoError(t, im.AddBand(name, data))
	}
	return im
}

func TestGridCell(t *testing.T) {
	t.Parallel()

	g := testGrid()
	tests := []struct {
		name     string
		p        model.GeoPoint
		col, row int
		ok       bool
	}{
		{"top left", model.GeoPoint{Lat: 1.5, Lon: 0.5}, 0, 0, true},
		{"bottom right", model.GeoPoint{Lat: 0.5, Lon: 1.5}, 1, 1, true},
		{"far edge", model.GeoPoint{Lat: 0, Lon: 2}, 1, 1, true},
		{"west of grid", model.GeoPoint{Lat: 1, Lon: -0.1}, 0, 0, false},
		{"north of grid", model.GeoPoint{Lat: 2.1, Lon: 1}, 0, 0, false},
		{"east of grid", model.GeoPoint{Lat: 1, Lon: 2.5}, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			col, row, ok := g.Cell(tt.p)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.col, col)
				assert.Equal(t, tt.row, row)
			}
		})
	}

	assert.Equal(t, model.GeoPoint{Lat: 1.5, Lon: 0.5}, g.Center(0, 0))
	assert.Equal(t, model.BoundingBox{MinLon: 0, MinLat: 0, MaxLon: 2, MaxLat: 2}, g.Bound())
}

func TestResampleNearest(t *testing.T) {
	src := testGrid()
	data := []float64{1, 2, 3, 4}
	assert.Equal(t, data, Resample(src, data, src))

	fine := Grid{OriginLon: 0, OriginLat: 2, ResX: 0.5, ResY: 0.5, Width: 4, Height: 4}
	out := Resample(src, data, fine)
	require.Len(t, out, 16)
	assert.Equal(t, []float64{1, 1, 2, 2}, out[:4])
	assert.Equal(t, []float64{3, 3, 4, 4}, out[12:])

	shifted := Grid{OriginLon: 1, OriginLat: 2, ResX: 1, ResY: 1, Width: 2, Height: 1}
	out = Resample(src, data, shifted)
	assert.Equal(t, 2.0, out[0])
	assert.True(t, math.IsNaN(out[1]))
}

func TestGridFromBounds(t *testing.T) {
	t.Parallel()

	g := GridFromBounds(model.BoundingBox{MinLon: 10, MinLat: 20, MaxLon: 10.5, MaxLat: 20.25}, 0.1, 0.1)
	assert.Equal(t, 5, g.Width)
	assert.Equal(t, 3, g.Height)
	assert.Equal(t, 20.25, g.OriginLat)
	require.NoError(t, g.Validate())
	assert.Error(t, Grid{}.Validate())
}

func TestImageAddBandLengthMismatch(t *testing.T) {
	t.Parallel()

	im := NewImage("x", time.Now(), testGrid())
	assert.Error(t, im.AddBand("B4", []float64{1, 2}))
}

func TestImageSelectAndClone(t *testing.T) {
	t.Parallel()

	im := newTestImage(t, "a", day(2022, 1, 1), 0, nil)
	sel, err := im.Select(spectral.B4, spectral.B8)
	require.NoError(t, err)
	assert.Equal(t, []string{spectral.B4, spectral.B8}, sel.BandNames())
	assert.Len(t, im.BandNames(), 8, "source image untouched")

	_, err = im.Select("nope")
	assert.Error(t, err)
}

func TestCollectionFilters(t *testing.T) {
	t.Parallel()

	inRange := newTestImage(t, "in", day(2021, 12, 1), 10, nil)
	lastDay := newTestImage(t, "last", day(2022, 2, 28), 49.9, nil)
	late := newTestImage(t, "late", day(2022, 3, 1), 10, nil)
	cloudy := newTestImage(t, "cloudy", day(2022, 1, 15), 50, nil)

	c := NewCollection(late, cloudy, lastDay, inRange)
	dates, err := model.ParseDateRange("2021-12-01", "2022-02-28")
	require.NoError(t, err)

	byDate := c.FilterDate(dates)
	assert.Equal(t, 3, byDate.Size())

	byCloud := byDate.FilterCloudCover(50)
	assert.Equal(t, 2, byCloud.Size(), "threshold is strict")

	sorted := byCloud.SortByTime()
	first, err := sorted.First()
	require.NoError(t, err)
	assert.Equal(t, "in", first.ID)

	far := c.FilterBounds(model.BoundingBox{MinLon: 50, MinLat: 50, MaxLon: 51, MaxLat: 51})
	assert.Equal(t, 0, far.Size())
	near := c.FilterBounds(model.BoundingBox{MinLon: 1.5, MinLat: 1.5, MaxLon: 3, MaxLat: 3})
	assert.Equal(t, 4, near.Size())

	assert.Equal(t, 4, c.Size(), "filters never mutate the receiver")
}

func TestReducers(t *testing.T) {
	t.Parallel()

	vals := []float64{10, 1, 2}
	assert.Equal(t, 2.0, Median.Reduce(vals))
	assert.Equal(t, 1.5, Median.Reduce([]float64{1, 2}))
	assert.InDelta(t, 13.0/3, Mean.Reduce(vals), 1e-12)
	assert.Equal(t, 1.0, Min.Reduce(vals))
	assert.Equal(t, 10.0, Max.Reduce(vals))
	assert.Equal(t, 10.0, First.Reduce(vals))
	assert.True(t, math.IsNaN(Median.Reduce(nil)))
	assert.Equal(t, []float64{10, 1, 2}, vals, "median must not reorder input")

	r, err := ReducerByName("MEDIAN")
	require.NoError(t, err)
	assert.Equal(t, "median", r.Name())
	_, err = ReducerByName("mode")
	assert.Error(t, err)
}

func TestCompositeMedianSkipsNoData(t *testing.T) {
	t.Parallel()

	a := newTestImage(t, "a", day(2022, 1, 1), 0, map[string][]float64{spectral.B4: {1, 1, 1, math.NaN()}})
	b := newTestImage(t, "b", day(2022, 1, 2), 0, map[string][]float64{spectral.B4: {2, 2, 2, math.NaN()}})
	c := newTestImage(t, "c", day(2022, 1, 3), 0, map[string][]float64{spectral.B4: {10, math.NaN(), 10, math.NaN()}})

	comp, err := Composite(NewCollection(a, b, c), Median)
	require.NoError(t, err)

	b4, ok := comp.Band(spectral.B4)
	require.True(t, ok)
	assert.Equal(t, 2.0, b4[0])
	assert.Equal(t, 1.5, b4[1])
	assert.True(t, math.IsNaN(b4[3]), "no contributing pixel stays no data")
}

func TestCompositeResamplesOtherGrids(t *testing.T) {
	t.Parallel()

	a := newTestImage(t, "a", day(2022, 1, 1), 0, map[string][]float64{spectral.B4: {1, 1, 1, 1}})
	shifted := NewImage("s", day(2022, 1, 2), Grid{OriginLon: 1, OriginLat: 2, ResX: 1, ResY: 2, Width: 1, Height: 1})
	require.NoError(t, shifted.AddBand(spectral.B4, []float64{5}))

	comp, err := Composite(NewCollection(a, shifted), Max)
	require.NoError(t, err)
	b4, _ := comp.Band(spectral.B4)
	assert.Equal(t, []float64{1, 5, 1, 5}, b4)
}

func TestCompositeEmpty(t *testing.T) {
	t.Parallel()

	_, err := Composite(NewCollection(), Median)
	assert.ErrorIs(t, err, ErrEmptyCollection)
}

func TestCloudMaskExcludesFlaggedPixel(t *testing.T) {
	t.Parallel()

	cloudy := newTestImage(t, "cloudy", day(2022, 1, 1), 5, map[string][]float64{
		spectral.B4:   {9000, 1000, 1000, 1000},
		spectral.QA60: {1 << 10, 0, 0, 0},
	})
	clean := newTestImage(t, "clean", day(2022, 1, 2), 5, map[string][]float64{
		spectral.B4: {2000, 1000, 1000, 1000},
	})

	dates, err := model.ParseDateRange("2022-01-01", "2022-01-31")
	require.NoError(t, err)

	b := NewBuilder(StaticSource{cloudy, clean})
	c, err := b.Build(context.Background(), Query{
		Region:        model.BoundingBox{MinLon: 0, MinLat: 0, MaxLon: 2, MaxLat: 2},
		Dates:         dates,
		MaxCloudCover: 50,
	})
	require.NoError(t, err)
	require.Equal(t, 2, c.Size())

	comp, err := Composite(c, Median)
	require.NoError(t, err)
	b4, _ := comp.Band(spectral.B4)
	assert.InDelta(t, 0.2, b4[0], 1e-12, "flagged pixel must not enter the median")

	masked, err := c.First()
	require.NoError(t, err)
	s := Sample(masked, model.GeoPoint{Lat: 1.5, Lon: 0.5}, 10)
	_, ok := s.Get(spectral.B4)
	assert.False(t, ok)
	_, ok = s.Get("NDVI")
	assert.False(t, ok)

	s = Sample(masked, model.GeoPoint{Lat: 1.5, Lon: 1.5}, 10)
	v, ok := s.Get(spectral.B4)
	require.True(t, ok)
	assert.InDelta(t, 0.1, v, 1e-12)
}

func TestBuildAppendsIndicesAndScales(t *testing.T) {
	t.Parallel()

	im := newTestImage(t, "a", day(2022, 1, 1), 0, map[string][]float64{
		spectral.B4: {1000, 1000, 1000, 1000},
		spectral.B8: {4000, 4000, 4000, 0},
	})
	noQA, err := im.Select(spectral.B4, spectral.B8)
	require.NoError(t, err)
	noQA.ID = "noqa"

	dates, err := model.ParseDateRange("2022-01-01", "2022-01-01")
	require.NoError(t, err)
	ndvi, err := spectral.Lookup("NDVI")
	require.NoError(t, err)

	c, err := NewBuilder(StaticSource{im, noQA}, ndvi).Build(context.Background(), Query{
		Region:        model.BoundingBox{MinLon: 0, MinLat: 0, MaxLon: 2, MaxLat: 2},
		Dates:         dates,
		MaxCloudCover: 100,
	})
	require.NoError(t, err)
	require.Equal(t, 2, c.Size())

	for _, out := range c.Images() {
		band, ok := out.Band("NDVI")
		require.True(t, ok, out.ID)
		assert.InDelta(t, 0.6, band[0], 1e-12)
		b8, _ := out.Band(spectral.B8)
		assert.InDelta(t, 0.4, b8[0], 1e-12)
	}
}

func TestBuildRejectsBadQuery(t *testing.T) {
	t.Parallel()

	_, err := NewBuilder(StaticSource{}).Build(context.Background(), Query{
		Region:        model.BoundingBox{MinLon: 1, MaxLon: 0},
		MaxCloudCover: 10,
	})
	assert.Error(t, err)

	_, err = NewBuilder(StaticSource{}).Build(context.Background(), Query{MaxCloudCover: 120})
	assert.Error(t, err)

	assert.Error(t, Query{MaxCloudCover: math.NaN()}.Validate())
}

func TestSampleWindow(t *testing.T) {
	t.Parallel()

	g := Grid{OriginLon: 0, OriginLat: 0.0005, ResX: 0.0001, ResY: 0.0001, Width: 5, Height: 5}
	im := NewImage("w", day(2022, 1, 1), g)
	data := make([]float64, g.Len())
	for i := range data {
		data[i] = float64(i)
	}
	require.NoError(t, im.AddBand(spectral.B4, data))

	center := g.Center(2, 2)

	single := Sample(im, center, 10)
	assert.Equal(t, 12.0, single[spectral.B4])

	wide := SampleWith(im, center, 30, Max)
	assert.Equal(t, 18.0, wide[spectral.B4], "3x3 window around (2,2) ends at index 18")

	mean := Sample(im, center, 30)
	assert.InDelta(t, 12.0, mean[spectral.B4], 1e-9)

	outside := Sample(im, model.GeoPoint{Lat: 10, Lon: 10}, 10)
	assert.True(t, math.IsNaN(outside[spectral.B4]))
}
