// Package spectral defines Sentinel-2 band names, the derived index catalog,
// the QA60 cloud mask, and per-index visualization parameters.
package spectral

import (
	"encoding/json"
	"math"
	"slices"
	"sort"
)

// Sentinel-2 MSI band names as published in the L1C/L2A products.
const (
	B1   = "B1"
	B2   = "B2" // blue
	B3   = "B3" // green
	B4   = "B4" // red
	B5   = "B5" // red edge 1
	B6   = "B6"
	B7   = "B7"
	B8   = "B8" // nir
	B8A  = "B8A"
	B9   = "B9"
	B10  = "B10"
	B11  = "B11" // swir 1
	B12  = "B12" // swir 2
	QA60 = "QA60"
)

// ReflectanceScale is the quantification value of Sentinel-2 digital numbers.
const ReflectanceScale = 10000.0

// SensorBands lists the raw bands in wavelength order followed by the QA band.
var SensorBands = []string{B1, B2, B3, B4, B5, B6, B7, B8, B8A, B9, B10, B11, B12, QA60}

// bandRank orders sensor bands first, then indices in catalog order, then
// anything else alphabetically.
func bandRank(name string) int {
	if i := slices.Index(SensorBands, name); i >= 0 {
		return i
	}
	for i, def := range Indices {
		if def.Name == name {
			return len(SensorBands) + i
		}
	}
	return math.MaxInt
}

// SortBands sorts band names into canonical order in place.
func SortBands(names []string) {
	sort.SliceStable(names, func(i, j int) bool {
		ri, rj := bandRank(names[i]), bandRank(names[j])
		if ri != rj {
			return ri < rj
		}
		return names[i] < names[j]
	})
}

// Sample maps band names to values at one location. NaN marks no data.
type Sample map[string]float64

// BandValue is a single band reading.
type BandValue struct {
	Band  string  `json:"band"`
	Value float64 `json:"value"`
}

// Get returns the value of band and whether it carries data.
func (s Sample) Get(band string) (float64, bool) {
	v, ok := s[band]
	if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

// Valid returns the bands that carry data, in canonical order. No-data bands
// are dropped rather than reported as zero.
func (s Sample) Valid() []BandValue {
	names := make([]string, 0, len(s))
	for name := range s {
		if _, ok := s.Get(name); ok {
			names = append(names, name)
		}
	}
	SortBands(names)

	out := make([]BandValue, 0, len(names))
	for _, name := range names {
		out = append(out, BandValue{Band: name, Value: s[name]})
	}
	return out
}

// Clone returns an independent copy.
func (s Sample) Clone() Sample {
	out := make(Sample, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes no-data bands as null.
func (s Sample) MarshalJSON() ([]byte, error) {
	m := make(map[string]*float64, len(s))
	for name := range s {
		if v, ok := s.Get(name); ok {
			m[name] = &v
		} else {
			m[name] = nil
		}
	}
	return json.Marshal(m)
}

// UnmarshalJSON decodes null bands as NaN.
func (s *Sample) UnmarshalJSON(data []byte) error {
	var m map[string]*float64
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out := make(Sample, len(m))
	for name, v := range m {
		if v == nil {
			out[name] = math.NaN()
		} else {
			out[name] = *v
		}
	}
	*s = out
	return nil
}
