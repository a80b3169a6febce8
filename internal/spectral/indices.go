package spectral

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

// saviL is the soil brightness correction factor used by SAVI.
const saviL = 0.5

// IndexDefinition is a named per-pixel formula over reflectance bands.
// Eval receives values in the order of Bands.
type IndexDefinition struct {
	Name    string
	Bands   []string
	Formula string
	Eval    func(v []float64) float64
}

// Apply evaluates the index for one pixel. Missing or NaN inputs yield NaN.
func (d IndexDefinition) Apply(s Sample) float64 {
	vals := make([]float64, len(d.Bands))
	for i, b := range d.Bands {
		v, ok := s.Get(b)
		if !ok {
			return math.NaN()
		}
		vals[i] = v
	}
	return d.Evaluate(vals)
}

// Evaluate runs the formula on positional inputs, surfacing NaN for any
// NaN input or undefined result.
func (d IndexDefinition) Evaluate(vals []float64) float64 {
	for _, v := range vals {
		if math.IsNaN(v) {
			return math.NaN()
		}
	}
	out := d.Eval(vals)
	if math.IsInf(out, 0) {
		return math.NaN()
	}
	return out
}

// NormalizedDifference returns (a-b)/(a+b), or NaN when a+b is zero.
func NormalizedDifference(a, b float64) float64 {
	return ratio(a-b, a+b)
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

func nd(name, a, b string) IndexDefinition {
	return IndexDefinition{
		Name:    name,
		Bands:   []string{a, b},
		Formula: "(" + a + " - " + b + ") / (" + a + " + " + b + ")",
		Eval:    func(v []float64) float64 { return NormalizedDifference(v[0], v[1]) },
	}
}

// Indices is the derived band catalog appended to every image. NDMI repeats
// NDWI and MNDWI repeats NDSI; both pairs are kept as published.
var Indices = []IndexDefinition{
	nd("NDVI", B8, B4),
	nd("NDWI", B8, B11),
	{
		Name:    "EVI",
		Bands:   []string{B8, B4, B2},
		Formula: "2.5 * (B8 - B4) / (B8 + 6 * B4 - 7.5 * B2 + 1)",
		Eval: func(v []float64) float64 {
			nir, red, blue := v[0], v[1], v[2]
			return 2.5 * ratio(nir-red, nir+6*red-7.5*blue+1)
		},
	},
	{
		Name:    "SAVI",
		Bands:   []string{B8, B4},
		Formula: "(1 + L) * (B8 - B4) / (B8 + B4 + L), L = 0.5",
		Eval: func(v []float64) float64 {
			nir, red := v[0], v[1]
			return (1 + saviL) * ratio(nir-red, nir+red+saviL)
		},
	},
	nd("NDMI", B8, B11),
	nd("NBR", B8, B12),
	nd("GNDVI", B8, B3),
	{
		Name:    "MSAVI",
		Bands:   []string{B8, B4},
		Formula: "((2 * B8 + 1) - sqrt((2 * B8 + 1)^2 - 8 * (B8 - B4))) / 2",
		Eval: func(v []float64) float64 {
			nir, red := v[0], v[1]
			k := 2*nir + 1
			return (k - math.Sqrt(k*k-8*(nir-red))) / 2
		},
	},
	nd("NDRE", B8, B5),
	nd("NDSI", B3, B11),
	nd("NDBI", B11, B8),
	{
		Name:    "BSI",
		Bands:   []string{B11, B4, B8, B2},
		Formula: "((B11 + B4) - (B8 + B2)) / ((B11 + B4) + (B8 + B2))",
		Eval: func(v []float64) float64 {
			return NormalizedDifference(v[0]+v[1], v[2]+v[3])
		},
	},
	nd("MNDWI", B3, B11),
	nd("NBR2", B12, B8),
	{
		Name:    "AFRI",
		Bands:   []string{B8, B12},
		Formula: "(B8 - 0.5 * B12) / (B8 + 0.5 * B12)",
		Eval: func(v []float64) float64 {
			nir, swir2 := v[0], v[1]
			return ratio(nir-swir2/2, nir+swir2/2)
		},
	},
}

// IndexNames returns the catalog names in order.
func IndexNames() []string {
	names := make([]string, len(Indices))
	for i, d := range Indices {
		names[i] = d.Name
	}
	return names
}

// Lookup returns the definition for name, case-insensitively.
func Lookup(name string) (IndexDefinition, error) {
	for _, d := range Indices {
		if strings.EqualFold(d.Name, name) {
			return d, nil
		}
	}
	return IndexDefinition{}, eris.Errorf("spectral: unknown index %q", name)
}

// Select resolves a list of index names; an empty list selects the whole catalog.
func Select(names []string) ([]IndexDefinition, error) {
	if len(names) == 0 {
		return Indices, nil
	}
	out := make([]IndexDefinition, 0, len(names))
	for _, n := range names {
		d, err := Lookup(n)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// Compute returns a copy of s with each definition's band appended.
func Compute(s Sample, defs ...IndexDefinition) Sample {
	if len(defs) == 0 {
		defs = Indices
	}
	out := s.Clone()
	for _, d := range defs {
		out[d.Name] = d.Apply(s)
	}
	return out
}
