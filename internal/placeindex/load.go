package placeindex

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spectral-cli/internal/shapefile"
)

// NaturalEarthFields maps the Natural Earth populated places columns.
var NaturalEarthFields = shapefile.Fields{ID: "NE_ID", Name: "NAME", Region: "ADM0NAME"}

// LoadShapefile builds an index from a point or polygon shapefile.
func LoadShapefile(path string, fields shapefile.Fields) (*Index, error) {
	records, err := shapefile.Read(path, fields)
	if err != nil {
		return nil, eris.Wrap(err, "placeindex: load")
	}

	idx := New(records)
	zap.L().Info("placeindex: loaded",
		zap.String("path", path),
		zap.Int("features", idx.Len()),
	)
	return idx, nil
}
