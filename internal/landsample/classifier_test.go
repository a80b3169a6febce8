package landsample

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/raster"
	"github.com/sells-group/spectral-cli/internal/shapefile"
)

var island = orb.Polygon{
	{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
	{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}},
}

func TestPolygonClassifier(t *testing.T) {
	t.Parallel()

	c, err := NewPolygonClassifier([]model.FeatureRecord{
		{Name: "island", Geometry: island},
		{Name: "islet", Geometry: orb.MultiPolygon{{{{20, 20}, {21, 20}, {21, 21}, {20, 21}, {20, 20}}}}},
		{Name: "lighthouse", Geometry: orb.Point{30, 30}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	tests := []struct {
		name string
		p    model.GeoPoint
		want bool
	}{
		{"inside", model.GeoPoint{Lat: 1, Lon: 1}, true},
		{"lagoon hole", model.GeoPoint{Lat: 5, Lon: 5}, false},
		{"islet", model.GeoPoint{Lat: 20.5, Lon: 20.5}, true},
		{"open sea", model.GeoPoint{Lat: 15, Lon: 15}, false},
		{"point features are not land", model.GeoPoint{Lat: 30, Lon: 30}, false},
	}
	for _, tt := range tests {
		got, err := c.IsLand(context.Background(), tt.p)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.name)
	}
}

func TestLoadPolygonClassifier(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "lsib.shp")
	require.NoError(t, shapefile.Write(path, shp.POLYGON, []model.FeatureRecord{
		{Name: "Atlantis", Geometry: island},
	}))

	c, err := LoadPolygonClassifier(path)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	land, err := c.IsLand(context.Background(), model.GeoPoint{Lat: 9, Lon: 9})
	require.NoError(t, err)
	assert.True(t, land)

	land, err = c.IsLand(context.Background(), model.GeoPoint{Lat: 5, Lon: 5})
	require.NoError(t, err)
	assert.False(t, land)
}

func TestLandCoverClassifier(t *testing.T) {
	t.Parallel()

	g := raster.Grid{OriginLon: 0, OriginLat: 2, ResX: 1, ResY: 1, Width: 2, Height: 2}
	im := raster.NewImage("lc", time.Now(), g)
	// forest, water (17), no-data, unclassified (0)
	require.NoError(t, im.AddBand("LC_Type1", []float64{1, 17, math.NaN(), 0}))

	_, err := NewLandCoverClassifier(im, "LC_Type2")
	assert.Error(t, err)

	c, err := NewLandCoverClassifier(im, "LC_Type1", 0, 17)
	require.NoError(t, err)

	tests := []struct {
		p    model.GeoPoint
		want bool
	}{
		{model.GeoPoint{Lat: 1.5, Lon: 0.5}, true},
		{model.GeoPoint{Lat: 1.5, Lon: 1.5}, false},
		{model.GeoPoint{Lat: 0.5, Lon: 0.5}, false},
		{model.GeoPoint{Lat: 0.5, Lon: 1.5}, false},
		{model.GeoPoint{Lat: 50, Lon: 50}, false},
	}
	for _, tt := range tests {
		got, err := c.IsLand(context.Background(), tt.p)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%+v", tt.p)
	}

	defaults, err := NewLandCoverClassifier(im, "LC_Type1")
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, defaults.WaterCodes)
	land, err := defaults.IsLand(context.Background(), model.GeoPoint{Lat: 1.5, Lon: 1.5})
	require.NoError(t, err)
	assert.True(t, land, "17 is land unless listed")
}
