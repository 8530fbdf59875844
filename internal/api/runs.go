package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/openridge/trackmap/internal/engine"
	"github.com/openridge/trackmap/internal/geo"
	"github.com/openridge/trackmap/internal/monitoring"
	"github.com/openridge/trackmap/internal/queryhost"
)

// backgroundRefreshTimeout bounds the detached refresh query that runs after
// a stale cache entry was served.
const backgroundRefreshTimeout = 30 * time.Second

// parseViewport reads the viewport query parameters the map client sends:
// minLat, minLng, maxLat, maxLng, zoom.
func parseViewport(r *http.Request) (geo.BBox, int, error) {
	q := r.URL.Query()
	coord := func(name string) (float64, error) {
		raw := q.Get(name)
		if raw == "" {
			return 0, fmt.Errorf("missing required parameter %q", name)
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %q: %v", name, err)
		}
		return v, nil
	}

	var bbox geo.BBox
	var err error
	if bbox[1], err = coord("minLat"); err != nil {
		return geo.BBox{}, 0, err
	}
	if bbox[0], err = coord("minLng"); err != nil {
		return geo.BBox{}, 0, err
	}
	if bbox[3], err = coord("maxLat"); err != nil {
		return geo.BBox{}, 0, err
	}
	if bbox[2], err = coord("maxLng"); err != nil {
		return geo.BBox{}, 0, err
	}
	if bbox[0] > bbox[2] || bbox[1] > bbox[3] {
		return geo.BBox{}, 0, fmt.Errorf("viewport min exceeds max")
	}

	zoom, err := strconv.Atoi(q.Get("zoom"))
	if err != nil {
		return geo.BBox{}, 0, fmt.Errorf("invalid \"zoom\": %v", err)
	}
	return bbox, zoom, nil
}

// fetchViewport runs one viewport query through the host and waits for the
// full result.
func (s *Server) fetchViewport(ctx context.Context, bbox geo.BBox, zoom int) (engine.FeatureSet, queryhost.Status) {
	handle := s.host.QueryViewport(ctx, queryhost.ViewportQuery{BBox: bbox, Zoom: zoom})
	fs, _, status := collect(handle)
	return fs, status
}

// listRuns serves a viewport query as one GeoJSON FeatureCollection.
//
// The viewport cache sits in front of the host: a clean hit is served
// directly; a stale hit is served immediately and refreshed in the
// background; a miss runs the query inline over the margin-expanded region
// and caches the result.
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	bbox, zoom, err := parseViewport(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	res := s.cache.Resolve(bbox, zoom)
	if res.Cached != nil {
		if res.ShouldFetch {
			go s.refresh(bbox, res.FetchBBox, zoom)
		}
		s.writeJSON(w, res.Cached)
		return
	}

	fs, status := s.fetchViewport(r.Context(), res.FetchBBox, zoom)
	switch status {
	case queryhost.StatusOK:
		s.cache.Store(bbox, res.FetchBBox, zoom, fs)
		s.writeJSON(w, fs)
	case queryhost.StatusSuperseded:
		s.writeJSONError(w, http.StatusConflict, "Superseded by a newer query")
	default:
		// Cancelled: the client went away; nothing to write.
	}
}

// refresh re-runs a viewport query after a stale cache entry was served, so
// the next request over the same region gets current data.
func (s *Server) refresh(viewport, fetchBBox geo.BBox, zoom int) {
	ctx, cancel := context.WithTimeout(context.Background(), backgroundRefreshTimeout)
	defer cancel()

	fs, status := s.fetchViewport(ctx, fetchBBox, zoom)
	if status != queryhost.StatusOK {
		monitoring.Logf("api: background refresh ended with status %q", status)
		return
	}
	s.cache.Store(viewport, fetchBBox, zoom, fs)
}

// streamRuns serves a viewport query as Server-Sent Events, one chunk per
// event, ending with the terminal Done chunk. The client renders features as
// they arrive and uses the progress figure for its loading indicator.
func (s *Server) streamRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	bbox, zoom, err := parseViewport(r)
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.writeJSONError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

	// Send initial ping to establish connection
	w.Write([]byte(": ping\n\n"))
	flusher.Flush()

	handle := s.host.QueryViewport(r.Context(), queryhost.ViewportQuery{BBox: bbox, Zoom: zoom})
	// On an early exit (client gone, write error) the handle must still be
	// cancelled and drained so the worker can deliver its terminal chunk.
	defer func() {
		handle.Cancel()
		for range handle.Chunks {
		}
	}()
	for chunk := range handle.Chunks {
		payload, err := json.Marshal(chunk)
		if err != nil {
			monitoring.Logf("api: failed to encode chunk: %v", err)
			return
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
			return
		}
		flusher.Flush()
	}
}

// FilterRequest is the body of an id-filtered viewport query: the ids the
// user toggled on from a lasso result, plus the current viewport.
type FilterRequest struct {
	IDs    []int64 `json:"ids"`
	MinLat float64 `json:"minLat"`
	MinLng float64 `json:"minLng"`
	MaxLat float64 `json:"maxLat"`
	MaxLng float64 `json:"maxLng"`
	Zoom   int     `json:"zoom"`
}

// filterRuns serves a viewport query restricted to an explicit id set.
// Filtered views bypass the cache: the id set changes with every toggle, so
// cached entries would almost never be reused.
func (s *Server) filterRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req FilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	bbox := geo.BBox{req.MinLng, req.MinLat, req.MaxLng, req.MaxLat}
	if bbox[0] > bbox[2] || bbox[1] > bbox[3] {
		s.writeJSONError(w, http.StatusBadRequest, "viewport min exceeds max")
		return
	}

	handle := s.host.QueryByIDs(r.Context(), queryhost.ByIDsQuery{
		IDs:  req.IDs,
		BBox: bbox,
		Zoom: req.Zoom,
	})
	fs, _, status := collect(handle)
	switch status {
	case queryhost.StatusOK:
		s.writeJSON(w, fs)
	case queryhost.StatusSuperseded:
		s.writeJSONError(w, http.StatusConflict, "Superseded by a newer query")
	}
}
