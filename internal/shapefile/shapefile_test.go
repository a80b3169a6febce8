package shapefile

import (
	"archive/zip"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/spectral-cli/internal/fetcher"
	"github.com/sells-group/spectral-cli/internal/model"
)

func squareRing(minX, minY, maxX, maxY float64) orb.Ring {
	// counter-clockwise
	return orb.Ring{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY}}
}

func writeTestPlaces(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "places.shp")
	require.NoError(t, Write(path, shp.POINT, []model.FeatureRecord{
		{ID: "1", Name: "Origin", Region: "Null Island", Geometry: orb.Point{0, 0}},
		{ID: "2", Name: "Lyon", Region: "France", Geometry: orb.Point{4.84, 45.76}},
	}))
	return path
}

func TestWriteReadPoints(t *testing.T) {
	dir := t.TempDir()
	path := writeTestPlaces(t, dir)

	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		_, err := os.Stat(strings.TrimSuffix(path, ".shp") + ext)
		require.NoError(t, err, ext)
	}
	_, err := os.Stat(filepath.Join(dir, "placesdbf"))
	assert.True(t, os.IsNotExist(err), "writer table renamed")

	recs, err := Read(path, Fields{ID: "id", Name: "NAME", Region: "region"})
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "2", recs[1].ID)
	assert.Equal(t, "Lyon", recs[1].Name)
	assert.Equal(t, "France", recs[1].Region)
	assert.Equal(t, orb.Point{4.84, 45.76}, recs[1].Geometry)
	assert.Equal(t, "Lyon", recs[1].Attributes["NAME"])
}

func TestReadFallsBackToRowID(t *testing.T) {
	path := writeTestPlaces(t, t.TempDir())

	recs, err := Read(path, Fields{Name: "NAME"})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "1", recs[1].ID, "row index")
	assert.Empty(t, recs[1].Region)
}

func TestWriteReadPolygonWithHole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blocks.shp")
	poly := orb.Polygon{squareRing(0, 0, 10, 10), squareRing(4, 4, 6, 6)}
	other := orb.Polygon{squareRing(20, 20, 21, 21)}

	require.NoError(t, Write(path, shp.POLYGON, []model.FeatureRecord{
		{Name: "Block A", Geometry: orb.MultiPolygon{poly, other}},
	}))

	recs, err := Read(path, Fields{Name: "NAME"})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	mp, ok := recs[0].Geometry.(orb.MultiPolygon)
	require.True(t, ok)
	require.Len(t, mp, 2)
	assert.Len(t, mp[0], 2, "hole attached to its outer ring")
	assert.Len(t, mp[1], 1)

	assert.True(t, planar.MultiPolygonContains(mp, orb.Point{1, 1}))
	assert.False(t, planar.MultiPolygonContains(mp, orb.Point{5, 5}), "inside the hole")
	assert.True(t, planar.MultiPolygonContains(mp, orb.Point{20.5, 20.5}))
}

func TestWriteReadPolyline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rows.shp")
	require.NoError(t, Write(path, shp.POLYLINE, []model.FeatureRecord{
		{Name: "Row 1", Geometry: orb.LineString{{0, 0}, {1, 1}, {2, 1}}},
	}))

	recs, err := Read(path, Fields{Name: "NAME"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, orb.MultiLineString{{{0, 0}, {1, 1}, {2, 1}}}, recs[0].Geometry)
}

func TestWriteRejectsMismatchedGeometry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.shp")
	err := Write(path, shp.POINT, []model.FeatureRecord{
		{Name: "Line", Geometry: orb.LineString{{0, 0}, {1, 1}}},
	})
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial output removed")

	assert.Error(t, Write(filepath.Join(dir, "x.kml"), shp.POINT, nil))
}

func TestShapeTypeFor(t *testing.T) {
	tests := []struct {
		g    orb.Geometry
		want shp.ShapeType
	}{
		{orb.Point{1, 2}, shp.POINT},
		{orb.MultiPoint{{1, 2}}, shp.MULTIPOINT},
		{orb.LineString{{0, 0}, {1, 1}}, shp.POLYLINE},
		{orb.MultiLineString{}, shp.POLYLINE},
		{orb.Polygon{}, shp.POLYGON},
		{orb.MultiPolygon{}, shp.POLYGON},
	}
	for _, tt := range tests {
		got, err := ShapeTypeFor(tt.g)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%T", tt.g)
	}

	_, err := ShapeTypeFor(orb.Collection{})
	assert.Error(t, err)
}

func TestWindRewindsRings(t *testing.T) {
	ccw := squareRing(0, 0, 1, 1)
	require.Equal(t, orb.CCW, ccw.Orientation())

	assert.Equal(t, orb.CW, wind(ccw, true).Orientation())
	assert.Equal(t, orb.CCW, wind(ccw, false).Orientation())
	assert.Equal(t, orb.CCW, ccw.Orientation(), "input untouched")

	open := orb.Ring{{0, 0}, {0, 1}, {1, 1}}
	assert.True(t, wind(open, true).Closed())
}

func TestToOrbUnsupported(t *testing.T) {
	assert.Nil(t, ToOrb(nil))
	assert.Nil(t, ToOrb(&shp.Null{}))
	assert.Nil(t, ToOrb(&shp.PolyLine{}))
}

func TestEncodeEWKB(t *testing.T) {
	data, err := EncodeEWKB(orb.Point{-80.19, 25.77})
	require.NoError(t, err)
	require.NotEmpty(t, data)
	assert.Equal(t, byte(1), data[0], "little endian")

	p, err := DecodePointEWKB(data)
	require.NoError(t, err)
	assert.Equal(t, orb.Point{-80.19, 25.77}, p)

	poly, err := EncodeEWKB(orb.Polygon{squareRing(0, 0, 1, 1)})
	require.NoError(t, err)
	assert.NotEmpty(t, poly)
	_, err = DecodePointEWKB(poly)
	assert.Error(t, err)

	line, err := EncodeEWKB(orb.LineString{{0, 0}, {1, 1}})
	require.NoError(t, err)
	assert.NotEmpty(t, line)

	none, err := EncodeEWKB(nil)
	require.NoError(t, err)
	assert.Nil(t, none)

	_, err = DecodePointEWKB([]byte{0x01})
	assert.Error(t, err)
}

func zipShapefile(t *testing.T, shpPath, zipPath string) {
	t.Helper()
	out, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(out)
	base := strings.TrimSuffix(shpPath, ".shp")
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		data, err := os.ReadFile(base + ext)
		require.NoError(t, err)
		w, err := zw.Create("ne_places" + ext)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, out.Close())
}

func TestResolveLocal(t *testing.T) {
	dir := t.TempDir()
	shpPath := writeTestPlaces(t, dir)

	got, err := Resolve(context.Background(), nil, shpPath, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, shpPath, got)

	zipPath := filepath.Join(dir, "ne_places.zip")
	zipShapefile(t, shpPath, zipPath)

	got, err = Resolve(context.Background(), nil, zipPath, t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ne_places", "ne_places.shp"), got)

	recs, err := Read(got, Fields{Name: "NAME"})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	_, err = Resolve(context.Background(), nil, filepath.Join(dir, "places.geojson"), t.TempDir())
	assert.Error(t, err)
}

func TestResolveRemoteDownloadsOnce(t *testing.T) {
	src := t.TempDir()
	zipPath := filepath.Join(src, "ne_places.zip")
	zipShapefile(t, writeTestPlaces(t, src), zipPath)
	payload, err := os.ReadFile(zipPath)
	require.NoError(t, err)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write(payload)
	}))
	defer srv.Close()

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{Timeout: 5 * time.Second, HostRate: rate.Inf})
	cache := t.TempDir()

	for range 2 {
		got, err := Resolve(context.Background(), f, srv.URL+"/data/ne_places.zip", cache)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(cache, "ne_places", "ne_places.shp"), got)
	}
	assert.Equal(t, int32(1), hits.Load())
}
