package spectral

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Layer names that are not part of the index catalog.
const (
	LayerRGB         = "RGB"
	LayerNightLights = "NightLights"
)

// VisParams is the display stretch for one map layer.
type VisParams struct {
	Bands   []string `yaml:"bands,omitempty" json:"bands,omitempty"`
	Min     float64  `yaml:"min" json:"min"`
	Max     float64  `yaml:"max" json:"max"`
	Palette []string `yaml:"palette,omitempty" json:"palette,omitempty"`
}

// VisTable maps a layer name to its display parameters.
type VisTable map[string]VisParams

var defaultPalettes = map[string][]string{
	"NDVI":  {"blue", "white", "green"},
	"NDWI":  {"brown", "white", "blue"},
	"EVI":   {"white", "green"},
	"SAVI":  {"brown", "white", "green"},
	"NDMI":  {"yellow", "white", "blue"},
	"NBR":   {"green", "white", "black"},
	"GNDVI": {"pink", "white", "purple"},
	"MSAVI": {"orange", "white", "blue"},
	"NDRE":  {"blue", "white", "red"},
	"NDSI":  {"white", "black"},
	"NDBI":  {"white", "grey", "black"},
	"BSI":   {"white", "yellow", "brown"},
	"MNDWI": {"purple", "blue", "cyan"},
	"NBR2":  {"green", "yellow", "red"},
	"AFRI":  {"pink", "white", "green"},
}

// DefaultVisTable returns the built-in stretches: every index on [-1, 1]
// with its own palette, true color on [0, 0.3], and night lights on [0, 60].
func DefaultVisTable() VisTable {
	t := make(VisTable, len(Indices)+2)
	for _, d := range Indices {
		t[d.Name] = VisParams{
			Bands:   []string{d.Name},
			Min:     -1,
			Max:     1,
			Palette: append([]string(nil), defaultPalettes[d.Name]...),
		}
	}
	t[LayerRGB] = VisParams{Bands: []string{B4, B3, B2}, Min: 0, Max: 0.3}
	t[LayerNightLights] = VisParams{
		Bands:   []string{"avg_rad"},
		Min:     0,
		Max:     60,
		Palette: []string{"black", "blue", "purple", "cyan", "green", "yellow", "red"},
	}
	return t
}

// LoadVisTable returns the defaults overlaid with the layers in the YAML file
// at path. An empty path returns the defaults.
func LoadVisTable(path string) (VisTable, error) {
	t := DefaultVisTable()
	if path == "" {
		return t, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "spectral: read vis file %s", path)
	}

	var doc struct {
		Layers map[string]VisParams `yaml:"layers"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "spectral: parse vis file %s", path)
	}

	for name, p := range doc.Layers {
		base, ok := t[name]
		if !ok {
			return nil, eris.Errorf("spectral: vis file names unknown layer %q", name)
		}
		if len(p.Bands) == 0 {
			p.Bands = base.Bands
		}
		if len(p.Palette) == 0 {
			p.Palette = base.Palette
		}
		t[name] = p
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}

// Validate checks every layer has a usable stretch.
func (t VisTable) Validate() error {
	for _, name := range t.Names() {
		p := t[name]
		if p.Min >= p.Max {
			return eris.Errorf("spectral: layer %s min %v must be below max %v", name, p.Min, p.Max)
		}
		if len(p.Bands) == 0 {
			return eris.Errorf("spectral: layer %s has no bands", name)
		}
	}
	return nil
}

// Names returns the layer names in canonical band order.
func (t VisTable) Names() []string {
	names := make([]string, 0, len(t))
	for n := range t {
		names = append(names, n)
	}
	sort.Strings(names)
	SortBands(names)
	return names
}
