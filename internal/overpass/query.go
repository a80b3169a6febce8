// Package overpass queries OpenStreetMap through the Overpass API and turns
// the answer into tabular rows or GeoJSON.
package overpass

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spectral-cli/internal/model"
)

// Output modes for the query's out statement.
const (
	OutputGeom   = "geom"
	OutputCenter = "center"
)

// Query selects every node, way, and relation with Key=Value inside BBox.
type Query struct {
	BBox    model.BoundingBox
	Key     string
	Value   string
	Timeout time.Duration
	Output  string
}

func (q Query) withDefaults() Query {
	if q.Key == "" {
		q.Key = "landuse"
	}
	if q.Value == "" {
		q.Value = "vineyard"
	}
	if q.Timeout <= 0 {
		q.Timeout = 25 * time.Second
	}
	if q.Output == "" {
		q.Output = OutputGeom
	}
	return q
}

// BuildQuery renders q as Overpass QL with JSON output.
func BuildQuery(q Query) (string, error) {
	q = q.withDefaults()
	if err := q.BBox.Validate(); err != nil {
		return "", eris.Wrap(err, "overpass: bbox")
	}
	if q.Output != OutputGeom && q.Output != OutputCenter {
		return "", eris.Errorf("overpass: unknown output mode %q", q.Output)
	}

	secs := int(q.Timeout.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	filter := fmt.Sprintf("[%s=%s]", quote(q.Key), quote(q.Value))

	var b strings.Builder
	fmt.Fprintf(&b, "[out:json][timeout:%d][bbox:%s,%s,%s,%s];\n", secs,
		coord(q.BBox.MinLat), coord(q.BBox.MinLon), coord(q.BBox.MaxLat), coord(q.BBox.MaxLon))
	b.WriteString("(\n")
	for _, kind := range []string{"node", "way", "relation"} {
		fmt.Fprintf(&b, "  %s%s;\n", kind, filter)
	}
	b.WriteString(");\n")
	fmt.Fprintf(&b, "out %s;\n", q.Output)
	return b.String(), nil
}

func coord(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}
