package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	gogpx "github.com/tkrajina/gpxgo/gpx"

	"github.com/openridge/trackmap/internal/engine"
	"github.com/openridge/trackmap/internal/geo"
	"github.com/openridge/trackmap/internal/monitoring"
	"github.com/openridge/trackmap/internal/queryhost"
	"github.com/openridge/trackmap/internal/track"
)

// maxUploadBytes bounds an upload body. A day-long 1 Hz recording is around
// 10 MB of GPX.
const maxUploadBytes = 32 << 20

// LassoRequest is the body of a polygon selection: the lasso ring drawn on
// the map, as [lng, lat] pairs. The ring does not need to be closed.
type LassoRequest struct {
	Ring []geo.Point `json:"ring"`
}

// LassoResponse lists the activities intersecting the ring, without
// geometry. The client feeds toggled ids back through /api/runs/filter.
type LassoResponse struct {
	Runs []engine.Summary `json:"runs"`
}

func (s *Server) lassoRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req LassoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	handle := s.host.QueryPolygon(r.Context(), queryhost.PolygonQuery{Ring: req.Ring})
	_, summaries, status := collect(handle)
	switch status {
	case queryhost.StatusOK:
		if summaries == nil {
			summaries = []engine.Summary{}
		}
		s.writeJSON(w, LassoResponse{Runs: summaries})
	case queryhost.StatusSuperseded:
		s.writeJSONError(w, http.StatusConflict, "Superseded by a newer query")
	}
}

// UploadRequest is the body of a local activity upload: raw track
// coordinates as [lng, lat] pairs plus whatever metadata the source file
// carried. Distance and duration are derived when absent.
type UploadRequest struct {
	Coordinates []geo.Point    `json:"coordinates"`
	Metadata    track.Metadata `json:"metadata"`
}

// UploadResponse reports the id assigned to the upload and whether the
// activity reached durable storage. Saved false is not an error: the
// activity is live on the map for this session either way.
type UploadResponse struct {
	ID        int64  `json:"id"`
	Saved     bool   `json:"saved"`
	SaveError string `json:"save_error,omitempty"`
}

// uploadRun registers a locally uploaded activity. The body is either a raw
// GPX document or the JSON UploadRequest shape; either way the activity is
// built, mirrored into the query host, and saved to the repository. A
// storage failure is reported in the response but does not reject the
// upload.
func (s *Server) uploadRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBytes))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read body: %v", err))
		return
	}

	a, err := s.buildUpload(r, body)
	if err != nil {
		if errors.Is(err, track.ErrTooFewPoints) {
			s.writeJSONError(w, http.StatusBadRequest, "Track needs at least 2 points")
			return
		}
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("Failed to build activity: %v", err))
		return
	}

	s.host.AddActivity(a)
	// Cached viewport results predate this activity; drop them so the next
	// pan cannot hide it.
	s.cache.Clear()

	resp := UploadResponse{ID: a.ID, Saved: true}
	if err := s.repo.SaveActivity(a); err != nil {
		monitoring.Logf("api: upload %d not persisted: %v", a.ID, err)
		resp.Saved = false
		resp.SaveError = err.Error()
	}
	s.writeJSON(w, resp)
}

// buildUpload turns an upload body into an activity. A body opening with '<'
// is parsed as GPX (the source filename may ride along as ?filename=);
// anything else is the JSON shape.
func (s *Server) buildUpload(r *http.Request, body []byte) (*track.Activity, error) {
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '<' {
		doc, err := gogpx.ParseBytes(trimmed)
		if err != nil {
			return nil, err
		}
		return track.BuildFromGPX(s.uploads.Next(), doc, r.URL.Query().Get("filename"))
	}

	var req UploadRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	return track.Build(s.uploads.Next(), req.Coordinates, req.Metadata)
}
