package scene

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/raster"
	"github.com/sells-group/spectral-cli/internal/spectral"
	"github.com/sells-group/spectral-cli/pkg/stac"
)

// writeASC writes a 4x4 grid over lon [0, 0.4], lat [0, 0.4] filled with v,
// with the top-left cell set to no-data.
func writeASC(t *testing.T, dir, name string, v float64) string {
	t.Helper()
	var b strings.Builder
	b.WriteString("ncols 4\nnrows 4\nxllcorner 0\nyllcorner 0\ncellsize 0.1\nNODATA_value -9999\n")
	for row := range 4 {
		for col := range 4 {
			val := v
			if row == 0 && col == 0 {
				val = -9999
			}
			fmt.Fprintf(&b, "%g ", val)
		}
		b.WriteString("\n")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

func TestParseASCIIGrid(t *testing.T) {
	g, data, err := ParseASCIIGrid(strings.NewReader("NCOLS 2\nNROWS 1\nXLLCENTER 10.5\nYLLCENTER 20.5\nCELLSIZE 1\n1 2\n"))
	require.NoError(t, err)
	assert.Equal(t, raster.Grid{OriginLon: 10, OriginLat: 21, ResX: 1, ResY: 1, Width: 2, Height: 1}, g)
	assert.Equal(t, []float64{1, 2}, data)

	_, _, err = ParseASCIIGrid(strings.NewReader("ncols 2\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 1\n1 2 3\n"))
	assert.Error(t, err)

	_, _, err = ParseASCIIGrid(strings.NewReader("ncols 2\nnrows 1\ncellsize 1\n1 2\n"))
	assert.Error(t, err)
}

func TestASCIIGridReaderCrops(t *testing.T) {
	path := writeASC(t, t.TempDir(), "b.asc", 7)

	g, data, err := ASCIIGridReader{}.ReadBand(context.Background(), path,
		model.BoundingBox{MinLon: 0.05, MinLat: 0.25, MaxLon: 0.15, MaxLat: 0.4}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, g.Width)
	assert.Equal(t, 2, g.Height)
	assert.InDelta(t, 0.0, g.OriginLon, 1e-12)
	assert.InDelta(t, 0.4, g.OriginLat, 1e-12)
	assert.True(t, math.IsNaN(data[0]))
	assert.Equal(t, []float64{7, 7, 7}, data[1:])

	_, _, err = ASCIIGridReader{}.ReadBand(context.Background(), path, model.BoundingBox{MinLon: 5, MinLat: 5, MaxLon: 6, MaxLat: 6}, 0)
	assert.Error(t, err)
}

func TestBandForAsset(t *testing.T) {
	tests := map[string]string{
		"red":    spectral.B4,
		"NIR":    spectral.B8,
		"nir08":  spectral.B8A,
		"swir16": spectral.B11,
		"B04":    spectral.B4,
		"B8A":    spectral.B8A,
		"B12":    spectral.B12,
		"QA60":   spectral.QA60,
	}
	for key, want := range tests {
		got, ok := BandForAsset(key)
		assert.True(t, ok, key)
		assert.Equal(t, want, got, key)
	}
	for _, key := range []string{"thumbnail", "scl", "B", "visual"} {
		_, ok := BandForAsset(key)
		assert.False(t, ok, key)
	}
}

func TestFromSTAC(t *testing.T) {
	cloud := 12.5
	items := []stac.Item{
		{
			ID:         "late",
			BBox:       []float64{1, 2, 3, 4},
			Properties: stac.Properties{Datetime: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), CloudCover: &cloud},
			Assets: map[string]stac.Asset{
				"red":       {Href: "s3://bucket/late/B04.tif"},
				"thumbnail": {Href: "https://example.com/t.jpg"},
			},
		},
		{
			ID:         "early",
			BBox:       []float64{1, 2, 3, 4},
			Properties: stac.Properties{Datetime: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
			Assets:     map[string]stac.Asset{"nir": {Href: "https://example.com/B08.tif"}},
		},
		{ID: "no-bands", Assets: map[string]stac.Asset{"visual": {Href: "x"}}},
	}

	scenes := FromSTAC(items)
	require.Len(t, scenes, 2)
	assert.Equal(t, "early", scenes[0].ID)
	assert.Equal(t, map[string]string{spectral.B4: "s3://bucket/late/B04.tif"}, scenes[1].Bands)
	assert.Equal(t, 12.5, scenes[1].CloudCover)
	assert.Equal(t, model.BoundingBox{MinLon: 1, MinLat: 2, MaxLon: 3, MaxLat: 4}, scenes[1].BBox)
}

func TestIndexRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenes.yaml")
	in := []Scene{{
		ID:         "S2A_1",
		Datetime:   time.Date(2024, 6, 1, 18, 59, 0, 0, time.UTC),
		CloudCover: 3,
		BBox:       model.BoundingBox{MinLon: -1, MinLat: -1, MaxLon: 1, MaxLat: 1},
		Bands:      map[string]string{"B4": "b4.asc"},
	}}
	require.NoError(t, SaveIndex(path, in))

	out, err := LoadIndex(path)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	require.NoError(t, os.WriteFile(path, []byte("- id: x\n"), 0o644))
	_, err = LoadIndex(path)
	assert.Error(t, err)
}

func testScenes(t *testing.T) []Scene {
	t.Helper()
	dir := t.TempDir()
	bbox := model.BoundingBox{MinLon: 0, MinLat: 0, MaxLon: 0.4, MaxLat: 0.4}
	return []Scene{
		{
			ID: "clear", Datetime: time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC), CloudCover: 5, BBox: bbox,
			Bands: map[string]string{
				spectral.B4:   writeASC(t, dir, "clear_b4.asc", 1000),
				spectral.B8:   writeASC(t, dir, "clear_b8.asc", 4000),
				spectral.QA60: writeASC(t, dir, "clear_qa.asc", 0),
			},
		},
		{
			ID: "cloudy", Datetime: time.Date(2024, 6, 12, 10, 0, 0, 0, time.UTC), CloudCover: 80, BBox: bbox,
			Bands: map[string]string{spectral.B4: writeASC(t, dir, "cloudy_b4.asc", 1)},
		},
		{
			ID: "broken", Datetime: time.Date(2024, 6, 14, 10, 0, 0, 0, time.UTC), CloudCover: 1, BBox: bbox,
			Bands: map[string]string{spectral.B4: filepath.Join(dir, "missing.asc")},
		},
		{
			ID: "outside", Datetime: time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC), CloudCover: 1,
			BBox:  model.BoundingBox{MinLon: 50, MinLat: 50, MaxLon: 51, MaxLat: 51},
			Bands: map[string]string{spectral.B4: "x.asc"},
		},
	}
}

func testQuery(t *testing.T) raster.Query {
	t.Helper()
	dates, err := model.ParseDateRange("2024-06-01", "2024-06-30")
	require.NoError(t, err)
	return raster.Query{
		Region:        model.BoundingBox{MinLon: 0.1, MinLat: 0.1, MaxLon: 0.3, MaxLat: 0.3},
		Dates:         dates,
		MaxCloudCover: 20,
	}
}

func TestSourceMatch(t *testing.T) {
	src := NewSource(testScenes(t), NewReader())
	matched := src.Match(testQuery(t))
	require.Len(t, matched, 2)
	assert.Equal(t, "clear", matched[0].ID)
	assert.Equal(t, "broken", matched[1].ID)
}

func TestSourceImagesSkipsUnreadable(t *testing.T) {
	src := NewSource(testScenes(t), NewReader())
	src.Resolution = 0.1

	images, err := src.Images(context.Background(), testQuery(t))
	require.NoError(t, err)
	require.Len(t, images, 1)

	im := images[0]
	assert.Equal(t, "clear", im.ID)
	assert.Equal(t, 5.0, im.CloudCover)
	assert.Equal(t, []string{spectral.B4, spectral.B8, spectral.QA60}, im.BandNames())
	assert.Equal(t, 2, im.Grid.Width)
}

func TestSourceFeedsBuilder(t *testing.T) {
	ndvi, err := spectral.Lookup("NDVI")
	require.NoError(t, err)

	src := NewSource(testScenes(t), NewReader())
	c, err := raster.NewBuilder(src, ndvi).Build(context.Background(), testQuery(t))
	require.NoError(t, err)
	require.Equal(t, 1, c.Size())

	im, err := c.First()
	require.NoError(t, err)
	v, ok := im.ValueAt("NDVI", model.GeoPoint{Lat: 0.2, Lon: 0.2})
	require.True(t, ok)
	assert.InDelta(t, 0.6, v, 1e-9)
}

func TestSourceCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSource(testScenes(t), NewReader()).Images(ctx, testQuery(t))
	assert.Error(t, err)
}

func TestExtReaderDefault(t *testing.T) {
	r := &ExtReader{}
	_, _, err := r.ReadBand(context.Background(), "b4.tif", model.BoundingBox{}, 0)
	assert.Error(t, err)
}
