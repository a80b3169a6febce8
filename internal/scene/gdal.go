//go:build gdal

package scene

import (
	"context"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/rotisserie/eris"

	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/raster"
)

// GDALAvailable reports whether the binary was built with GDAL support.
const GDALAvailable = true

var registerOnce sync.Once

// GDALReader reads any raster GDAL can open, including remote COGs over
// /vsicurl/, warped to EPSG:4326.
type GDALReader struct{}

// NewGDALReader registers the GDAL drivers and returns a reader.
func NewGDALReader() BandReader {
	registerOnce.Do(godal.RegisterAll)
	return GDALReader{}
}

func gdalName(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return "/vsicurl/" + href
	}
	if strings.HasPrefix(href, "s3://") {
		return "/vsis3/" + strings.TrimPrefix(href, "s3://")
	}
	return href
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ReadBand implements BandReader.
func (GDALReader) ReadBand(ctx context.Context, href string, window model.BoundingBox, res float64) (raster.Grid, []float64, error) {
	if err := ctx.Err(); err != nil {
		return raster.Grid{}, nil, eris.Wrap(err, "scene: read cancelled")
	}

	src, err := godal.Open(gdalName(href))
	if err != nil {
		return raster.Grid{}, nil, eris.Wrapf(err, "scene: gdal open %s", href)
	}
	defer src.Close() //nolint:errcheck

	switches := []string{
		"-of", "MEM",
		"-t_srs", "EPSG:4326",
		"-te", ftoa(window.MinLon), ftoa(window.MinLat), ftoa(window.MaxLon), ftoa(window.MaxLat),
		"-r", "near",
		"-dstnodata", "nan",
		"-ot", "Float64",
	}
	if res > 0 {
		switches = append(switches, "-tr", ftoa(res), ftoa(res))
	}

	warped, err := src.Warp("", switches)
	if err != nil {
		return raster.Grid{}, nil, eris.Wrapf(err, "scene: gdal warp %s", href)
	}
	defer warped.Close() //nolint:errcheck

	gt, err := warped.GeoTransform()
	if err != nil {
		return raster.Grid{}, nil, eris.Wrapf(err, "scene: geotransform %s", href)
	}
	st := warped.Structure()
	g := raster.Grid{
		OriginLon: gt[0],
		OriginLat: gt[3],
		ResX:      gt[1],
		ResY:      -gt[5],
		Width:     st.SizeX,
		Height:    st.SizeY,
	}

	bands := warped.Bands()
	if len(bands) == 0 {
		return raster.Grid{}, nil, eris.Errorf("scene: %s has no bands", href)
	}
	data := make([]float64, g.Len())
	if err := bands[0].Read(0, 0, data, st.SizeX, st.SizeY); err != nil {
		return raster.Grid{}, nil, eris.Wrapf(err, "scene: read %s", href)
	}
	if nd, ok := bands[0].NoData(); ok && !math.IsNaN(nd) {
		for i, v := range data {
			if v == nd {
				data[i] = math.NaN()
			}
		}
	}
	return g, data, nil
}
