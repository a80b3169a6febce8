package api

import (
	"math"
	"net/http"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spectral-cli/internal/analysis"
	"github.com/sells-group/spectral-cli/internal/model"
	"github.com/sells-group/spectral-cli/internal/spectral"
	"github.com/sells-group/spectral-cli/internal/store"
)

type indexView struct {
	Name    string              `json:"name"`
	Bands   []string            `json:"bands"`
	Formula string              `json:"formula"`
	Vis     *spectral.VisParams `json:"vis,omitempty"`
}

type indicesResponse struct {
	Indices []indexView       `json:"indices"`
	Layers  spectral.VisTable `json:"layers"`
}

func (s *Server) handleIndices(w http.ResponseWriter, _ *http.Request) {
	out := indicesResponse{Indices: make([]indexView, 0, len(spectral.Indices)), Layers: s.Vis}
	for _, d := range spectral.Indices {
		v := indexView{Name: d.Name, Bands: d.Bands, Formula: d.Formula}
		if p, ok := s.Vis[d.Name]; ok {
			v.Vis = &p
		}
		out.Indices = append(out.Indices, v)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLandPoint(w http.ResponseWriter, r *http.Request) {
	lp, err := s.Service.RandomLand(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lp)
}

func (s *Server) handleNearest(w http.ResponseWriter, r *http.Request) {
	p, err := parsePoint(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if s.Service.Places == nil && s.Service.Geocoder == nil {
		writeError(w, r, eris.Wrap(analysis.ErrUnavailable, "api: no place index or geocoder"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"point":    p,
		"location": s.Service.Locate(r.Context(), p),
	})
}

func (s *Server) handleSpectra(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.Service.Spectra(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleComposite(w http.ResponseWriter, r *http.Request) {
	req, err := s.parseRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.Service.Composite(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeError(w, r, eris.Wrap(analysis.ErrUnavailable, "api: no store"))
		return
	}
	limit, err := intParam(r, "limit", 100)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	runs, err := s.Store.ListTasks(r.Context(), store.TaskFilter{
		Kind:   model.TaskKind(q.Get("kind")),
		Status: model.TaskStatus(q.Get("status")),
		Limit:  limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.TaskRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleSamples(w http.ResponseWriter, r *http.Request) {
	if s.Store == nil {
		writeError(w, r, eris.Wrap(analysis.ErrUnavailable, "api: no store"))
		return
	}
	limit, err := intParam(r, "limit", 100)
	if err != nil {
		writeError(w, r, err)
		return
	}
	recs, err := s.Store.ListSamples(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []store.SampleRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// parseRequest reads lat, lon, start, end and cloud. Dates and cloud fall
// back to the server defaults.
func (s *Server) parseRequest(r *http.Request) (analysis.Request, error) {
	p, err := parsePoint(r)
	if err != nil {
		return analysis.Request{}, err
	}

	q := r.URL.Query()
	dates := s.Defaults.Dates
	if start, end := q.Get("start"), q.Get("end"); start != "" || end != "" {
		if start == "" || end == "" {
			return analysis.Request{}, badRequest{eris.New("api: start and end must be given together")}
		}
		dates, err = model.ParseDateRange(start, end)
		if err != nil {
			return analysis.Request{}, badRequest{err}
		}
	}

	cloud := s.Defaults.MaxCloud
	if v := q.Get("cloud"); v != "" {
		cloud, err = strconv.ParseFloat(v, 64)
		if err != nil {
			return analysis.Request{}, badRequest{eris.Wrapf(err, "api: parse cloud %q", v)}
		}
		if math.IsNaN(cloud) || cloud < 0 || cloud > 100 {
			return analysis.Request{}, badRequest{eris.Errorf("api: cloud %g out of range [0, 100]", cloud)}
		}
	}
	return analysis.Request{Point: p, Dates: dates, MaxCloud: cloud}, nil
}

func parsePoint(r *http.Request) (model.GeoPoint, error) {
	q := r.URL.Query()
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		return model.GeoPoint{}, badRequest{eris.Wrapf(err, "api: parse lat %q", q.Get("lat"))}
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		return model.GeoPoint{}, badRequest{eris.Wrapf(err, "api: parse lon %q", q.Get("lon"))}
	}
	p := model.GeoPoint{Lat: lat, Lon: lon}
	if err := p.Validate(); err != nil {
		return model.GeoPoint{}, badRequest{err}
	}
	return p, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, badRequest{eris.Errorf("api: %s must be a positive integer, got %q", name, v)}
	}
	return n, nil
}
