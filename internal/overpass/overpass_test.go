package overpass

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/resilience"
)

const sampleResponse = `{
  "version": 0.6,
  "generator": "Overpass API",
  "elements": [
    {"type": "node", "id": 1, "lat": 38.5, "lon": -122.4, "tags": {"landuse": "vineyard"}},
    {"type": "way", "id": 2, "nodes": [10, 11, 12, 10],
     "geometry": [{"lat": 0, "lon": 0}, {"lat": 0, "lon": 2}, {"lat": 2, "lon": 2}, {"lat": 0, "lon": 0}],
     "tags": {"landuse": "vineyard", "name": "Estate"}},
    {"type": "way", "id": 3, "geometry": [{"lat": 5, "lon": 5}, {"lat": 6, "lon": 7}]},
    {"type": "way", "id": 4, "center": {"lat": 9, "lon": 8}},
    {"type": "relation", "id": 5, "members": [
      {"type": "way", "ref": 20, "role": "outer",
       "geometry": [{"lat": 10, "lon": 10}, {"lat": 10, "lon": 14}, {"lat": 14, "lon": 14}, {"lat": 14, "lon": 10}, {"lat": 10, "lon": 10}]},
      {"type": "way", "ref": 21, "role": "inner",
       "geometry": [{"lat": 11, "lon": 11}, {"lat": 12, "lon": 11}, {"lat": 12, "lon": 12}, {"lat": 11, "lon": 11}]},
      {"type": "node", "ref": 22, "role": "label"}
    ], "tags": {"type": "multipolygon"}}
  ]
}`

func TestBuildQuery(t *testing.T) {
	q, err := BuildQuery(Query{BBox: model.BoundingBox{MinLon: -122.5, MinLat: 38.2, MaxLon: -122.1, MaxLat: 38.6}})
	require.NoError(t, err)

	want := "[out:json][timeout:25][bbox:38.2,-122.5,38.6,-122.1];\n" +
		"(\n" +
		"  node[\"landuse\"=\"vineyard\"];\n" +
		"  way[\"landuse\"=\"vineyard\"];\n" +
		"  relation[\"landuse\"=\"vineyard\"];\n" +
		");\n" +
		"out geom;\n"
	assert.Equal(t, want, q)
}

func TestBuildQueryOptions(t *testing.T) {
	bbox := model.BoundingBox{MinLon: 0, MinLat: 0, MaxLon: 1, MaxLat: 1}

	q, err := BuildQuery(Query{BBox: bbox, Key: "name", Value: `Say "hi"`, Timeout: 90 * time.Second, Output: OutputCenter})
	require.NoError(t, err)
	assert.Contains(t, q, "[timeout:90]")
	assert.Contains(t, q, `node["name"="Say \"hi\""];`)
	assert.Contains(t, q, "out center;")

	_, err = BuildQuery(Query{BBox: bbox, Output: "skel"})
	assert.Error(t, err)

	_, err = BuildQuery(Query{BBox: model.BoundingBox{MinLon: 2, MaxLon: 1}})
	assert.Error(t, err)
}

func decodeSample(t *testing.T) *Result {
	t.Helper()
	var res Result
	require.NoError(t, json.Unmarshal([]byte(sampleResponse), &res))
	return &res
}

func TestResultRows(t *testing.T) {
	res := decodeSample(t)

	nodes := res.Nodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, Row{ID: 1, Lat: 38.5, Lon: -122.4, Tags: map[string]string{"landuse": "vineyard"}}, nodes[0])

	ways := res.Ways()
	require.Len(t, ways, 3)
	assert.Equal(t, int64(2), ways[0].ID)
	assert.Equal(t, 4, ways[0].Nodes)
	assert.InDelta(t, 2.0/3, ways[0].Lat, 1e-9, "triangle centroid")
	assert.InDelta(t, 4.0/3, ways[0].Lon, 1e-9)
	assert.InDelta(t, 5.5, ways[1].Lat, 1e-9, "open way bound centre")
	assert.InDelta(t, 6.0, ways[1].Lon, 1e-9)
	assert.Equal(t, 9.0, ways[2].Lat)
	assert.Equal(t, 8.0, ways[2].Lon)
}

func TestFeatureCollection(t *testing.T) {
	fc := decodeSample(t).FeatureCollection()
	require.Len(t, fc.Features, 5)

	assert.Equal(t, orb.Point{-122.4, 38.5}, fc.Features[0].Geometry)
	assert.Equal(t, "node", fc.Features[0].Properties["osm_type"])

	poly, ok := fc.Features[1].Geometry.(orb.Polygon)
	require.True(t, ok)
	assert.Len(t, poly[0], 4)
	assert.Equal(t, "Estate", fc.Features[1].Properties["name"])

	_, ok = fc.Features[2].Geometry.(orb.LineString)
	assert.True(t, ok)

	assert.Equal(t, orb.Point{8, 9}, fc.Features[3].Geometry)

	mp, ok := fc.Features[4].Geometry.(orb.MultiPolygon)
	require.True(t, ok)
	require.Len(t, mp, 1)
	assert.Len(t, mp[0], 2, "inner ring attached")

	data, err := fc.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"FeatureCollection"`)
}

func newTestClient(url string) *Client {
	return NewClient(
		WithBaseURL(url),
		WithRateLimit(rate.Inf),
		WithRetry(resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}),
	)
}

func TestClientDo(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "spectral-cli/1.0", r.UserAgent())
		require.NoError(t, r.ParseForm())
		gotQuery = r.PostForm.Get("data")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sampleResponse))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Do(context.Background(), "node(1);out;")
	require.NoError(t, err)
	assert.Len(t, res.Elements, 5)
	assert.Equal(t, "node(1);out;", gotQuery)
}

func TestClientRetriesTransient(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "rate_limited", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"elements": []}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Do(context.Background(), "q")
	require.NoError(t, err)
	assert.Empty(t, res.Elements)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClientPermanentError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "parse error", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Do(context.Background(), "bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(1), calls.Load())
}

func TestClientRuntimeRemark(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"elements": [], "remark": "runtime error: Query timed out"}`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Do(context.Background(), "slow")
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}
