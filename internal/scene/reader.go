package scene

import (
	"bufio"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/raster"
)

// BandReader reads the part of one band file that covers window, on a
// north-up lon/lat grid. res is the wanted pixel size in degrees; zero keeps
// the native resolution. No-data pixels are NaN.
type BandReader interface {
	ReadBand(ctx context.Context, href string, window model.BoundingBox, res float64) (raster.Grid, []float64, error)
}

// ExtReader dispatches to a reader by file extension, falling back to
// Default.
type ExtReader struct {
	ByExt   map[string]BandReader
	Default BandReader
}

// NewReader returns the reader used by the CLI: ESRI ASCII grids are read
// natively and everything else goes to GDAL, when compiled in.
func NewReader() *ExtReader {
	return &ExtReader{
		ByExt:   map[string]BandReader{".asc": ASCIIGridReader{}},
		Default: NewGDALReader(),
	}
}

// ReadBand implements BandReader.
func (r *ExtReader) ReadBand(ctx context.Context, href string, window model.BoundingBox, res float64) (raster.Grid, []float64, error) {
	if br, ok := r.ByExt[strings.ToLower(filepath.Ext(href))]; ok {
		return br.ReadBand(ctx, href, window, res)
	}
	if r.Default == nil {
		return raster.Grid{}, nil, eris.Errorf("scene: no reader for %s", href)
	}
	return r.Default.ReadBand(ctx, href, window, res)
}

// ASCIIGridReader reads ESRI ASCII grids (.asc) in EPSG:4326.
type ASCIIGridReader struct{}

// ReadBand implements BandReader. The grid is cropped to the cells
// intersecting window; res is ignored.
func (ASCIIGridReader) ReadBand(_ context.Context, href string, window model.BoundingBox, _ float64) (raster.Grid, []float64, error) {
	f, err := os.Open(href)
	if err != nil {
		return raster.Grid{}, nil, eris.Wrapf(err, "scene: open %s", href)
	}
	defer f.Close() //nolint:errcheck

	g, data, err := ParseASCIIGrid(f)
	if err != nil {
		return raster.Grid{}, nil, eris.Wrapf(err, "scene: parse %s", href)
	}
	return crop(g, data, window)
}

// ParseASCIIGrid reads an ESRI ASCII grid. Both corner and center
// registration are accepted.
func ParseASCIIGrid(r io.Reader) (raster.Grid, []float64, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 1024*1024), 64*1024*1024)
	sc.Split(bufio.ScanWords)

	header := map[string]float64{}
	noData := math.NaN()
	var first string
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		if _, err := strconv.ParseFloat(key, 64); err == nil {
			first = key
			break
		}
		if !sc.Scan() {
			return raster.Grid{}, nil, eris.Errorf("header %s has no value", key)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return raster.Grid{}, nil, eris.Wrapf(err, "header %s", key)
		}
		header[key] = v
	}
	if v, ok := header["nodata_value"]; ok {
		noData = v
	}

	cols, rows, cell := int(header["ncols"]), int(header["nrows"]), header["cellsize"]
	if cols <= 0 || rows <= 0 || cell <= 0 {
		return raster.Grid{}, nil, eris.New("missing ncols, nrows or cellsize")
	}

	minLon, okX := header["xllcorner"]
	minLat, okY := header["yllcorner"]
	if !okX || !okY {
		cx, okCX := header["xllcenter"]
		cy, okCY := header["yllcenter"]
		if !okCX || !okCY {
			return raster.Grid{}, nil, eris.New("missing lower-left corner or center")
		}
		minLon, minLat = cx-cell/2, cy-cell/2
	}

	g := raster.Grid{
		OriginLon: minLon,
		OriginLat: minLat + float64(rows)*cell,
		ResX:      cell,
		ResY:      cell,
		Width:     cols,
		Height:    rows,
	}

	data := make([]float64, 0, g.Len())
	push := func(tok string) error {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return eris.Wrapf(err, "value %d", len(data))
		}
		if v == noData {
			v = math.NaN()
		}
		data = append(data, v)
		return nil
	}
	if first != "" {
		if err := push(first); err != nil {
			return raster.Grid{}, nil, err
		}
	}
	for sc.Scan() && len(data) < g.Len() {
		if err := push(sc.Text()); err != nil {
			return raster.Grid{}, nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return raster.Grid{}, nil, eris.Wrap(err, "scan")
	}
	if len(data) != g.Len() {
		return raster.Grid{}, nil, eris.Errorf("expected %d values, got %d", g.Len(), len(data))
	}
	return g, data, nil
}

// crop keeps the cells of g that intersect window.
func crop(g raster.Grid, data []float64, window model.BoundingBox) (raster.Grid, []float64, error) {
	b := g.Bound()
	if !b.Intersects(window) {
		return raster.Grid{}, nil, eris.New("scene: window does not intersect band")
	}

	c0 := clampInt(int(math.Floor((window.MinLon-g.OriginLon)/g.ResX)), 0, g.Width-1)
	c1 := clampInt(int(math.Ceil((window.MaxLon-g.OriginLon)/g.ResX)), c0+1, g.Width)
	r0 := clampInt(int(math.Floor((g.OriginLat-window.MaxLat)/g.ResY)), 0, g.Height-1)
	r1 := clampInt(int(math.Ceil((g.OriginLat-window.MinLat)/g.ResY)), r0+1, g.Height)

	out := raster.Grid{
		OriginLon: g.OriginLon + float64(c0)*g.ResX,
		OriginLat: g.OriginLat - float64(r0)*g.ResY,
		ResX:      g.ResX,
		ResY:      g.ResY,
		Width:     c1 - c0,
		Height:    r1 - r0,
	}
	vals := make([]float64, 0, out.Len())
	for row := r0; row < r1; row++ {
		vals = append(vals, data[g.Index(c0, row):g.Index(c1, row)]...)
	}
	return out, vals, nil
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
