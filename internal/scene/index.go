// Package scene serves Sentinel-2 scenes listed in a YAML index as raster
// images, reading band files through a pluggable BandReader.
package scene

import (
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/spectral"
	"github.com/sells-group/spectral-cli/pkg/stac"
)

// Scene is one acquisition with a file or URL per band.
type Scene struct {
	ID         string            `yaml:"id" json:"id"`
	Datetime   time.Time         `yaml:"datetime" json:"datetime"`
	CloudCover float64           `yaml:"cloud_cover" json:"cloud_cover"`
	BBox       model.BoundingBox `yaml:"bbox" json:"bbox"`
	Bands      map[string]string `yaml:"bands" json:"bands"`
}

// LoadIndex reads a YAML scene index.
func LoadIndex(path string) ([]Scene, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scene: read index %s", path)
	}
	var scenes []Scene
	if err := yaml.Unmarshal(data, &scenes); err != nil {
		return nil, eris.Wrapf(err, "scene: parse index %s", path)
	}
	for i, s := range scenes {
		if s.ID == "" {
			return nil, eris.Errorf("scene: index entry %d has no id", i)
		}
		if len(s.Bands) == 0 {
			return nil, eris.Errorf("scene: %s lists no bands", s.ID)
		}
	}
	return scenes, nil
}

// SaveIndex writes scenes as a YAML index.
func SaveIndex(path string, scenes []Scene) error {
	data, err := yaml.Marshal(scenes)
	if err != nil {
		return eris.Wrap(err, "scene: marshal index")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "scene: write index %s", path)
	}
	return nil
}

// assetBands maps Earth Search v1 asset keys to band names.
var assetBands = map[string]string{
	"coastal":  spectral.B1,
	"blue":     spectral.B2,
	"green":    spectral.B3,
	"red":      spectral.B4,
	"rededge1": spectral.B5,
	"rededge2": spectral.B6,
	"rededge3": spectral.B7,
	"nir":      spectral.B8,
	"nir08":    spectral.B8A,
	"nir09":    spectral.B9,
	"cirrus":   spectral.B10,
	"swir16":   spectral.B11,
	"swir22":   spectral.B12,
}

// BandForAsset resolves an asset key to a band name. Keys already named
// after bands, such as "B04" or "B8A", are accepted too.
func BandForAsset(key string) (string, bool) {
	if b, ok := assetBands[strings.ToLower(key)]; ok {
		return b, true
	}
	upper := strings.ToUpper(key)
	if strings.HasPrefix(upper, "B") {
		name := "B" + strings.TrimLeft(upper[1:], "0")
		for _, b := range spectral.SensorBands {
			if b == name {
				return b, true
			}
		}
	}
	if upper == spectral.QA60 {
		return spectral.QA60, true
	}
	return "", false
}

// FromSTAC converts STAC items to scenes, keeping only band assets. Items
// without any band asset are dropped. The result is sorted by time.
func FromSTAC(items []stac.Item) []Scene {
	scenes := make([]Scene, 0, len(items))
	for _, it := range items {
		bands := make(map[string]string)
		for key, a := range it.Assets {
			if b, ok := BandForAsset(key); ok && a.Href != "" {
				bands[b] = a.Href
			}
		}
		if len(bands) == 0 {
			continue
		}
		s := Scene{ID: it.ID, Datetime: it.Properties.Datetime, Bands: bands}
		if it.Properties.CloudCover != nil {
			s.CloudCover = *it.Properties.CloudCover
		}
		b := it.Bound()
		s.BBox = model.BoundingBox{MinLon: b.Min.Lon(), MinLat: b.Min.Lat(), MaxLon: b.Max.Lon(), MaxLat: b.Max.Lat()}
		scenes = append(scenes, s)
	}
	sort.SliceStable(scenes, func(i, j int) bool { return scenes[i].Datetime.Before(scenes[j].Datetime) })
	return scenes
}
