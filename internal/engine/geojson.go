package engine

import (
	"time"

	"github.com/openridge/trackmap/internal/geo"
	"github.com/openridge/trackmap/internal/lod"
	"github.com/openridge/trackmap/internal/track"
)

// Properties is the per-feature property bag the rendering layer consumes.
type Properties struct {
	ID           int64   `json:"id"`
	Tier         string  `json:"tier"`
	StartTime    string  `json:"start_time"`
	Distance     float64 `json:"distance"`
	Duration     float64 `json:"duration"`
	ActivityType string  `json:"activity_type"`
	ActivityRaw  string  `json:"activity_raw"`
}

// Geometry is a GeoJSON LineString.
type Geometry struct {
	Type        string      `json:"type"`
	Coordinates []geo.Point `json:"coordinates"`
}

// Feature is a GeoJSON feature: one activity at one LOD tier.
type Feature struct {
	Type       string     `json:"type"`
	Geometry   Geometry   `json:"geometry"`
	Properties Properties `json:"properties"`
}

// FeatureSet is a GeoJSON FeatureCollection, the unit of delivery to the
// rendering layer for both viewport and polygon queries.
type FeatureSet struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// NewFeatureSet returns an empty, non-nil collection. The renderer treats
// an empty collection as "clear the overlay", so it must serialize with an
// empty features array rather than null.
func NewFeatureSet() FeatureSet {
	return FeatureSet{Type: "FeatureCollection", Features: []Feature{}}
}

// Summary describes one activity in a lasso result listing. It carries no
// geometry: the sidebar only needs identity and metadata, and the ids are
// fed back through an id-filtered viewport query when toggled.
type Summary struct {
	ID           int64   `json:"id"`
	StartTime    string  `json:"start_time"`
	Distance     float64 `json:"distance"`
	Duration     float64 `json:"duration"`
	ActivityType string  `json:"activity_type"`
	SourceFile   string  `json:"source_file"`
}

func featureFor(a *track.Activity, tier lod.Tier) (Feature, bool) {
	coords, used := a.Geometry(tier)
	if coords == nil {
		return Feature{}, false
	}
	return Feature{
		Type: "Feature",
		Geometry: Geometry{
			Type:        "LineString",
			Coordinates: coords,
		},
		Properties: Properties{
			ID:           a.ID,
			Tier:         string(used),
			StartTime:    formatTime(a.Metadata.StartTime),
			Distance:     a.Metadata.Distance,
			Duration:     a.Metadata.Duration,
			ActivityType: a.Metadata.ActivityType,
			ActivityRaw:  a.Metadata.ActivityRaw,
		},
	}, true
}

func summaryFor(a *track.Activity) Summary {
	return Summary{
		ID:           a.ID,
		StartTime:    formatTime(a.Metadata.StartTime),
		Distance:     a.Metadata.Distance,
		Duration:     a.Metadata.Duration,
		ActivityType: a.Metadata.ActivityType,
		SourceFile:   a.Metadata.SourceFile,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
