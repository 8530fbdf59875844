package track

import (
	"testing"
	"time"

	gogpx "github.com/tkrajina/gpxgo/gpx"

	"github.com/openridge/trackmap/internal/lod"
)

const twoSegmentGPX = `<?xml version="1.0" encoding="UTF-8"?>
<gpx version="1.1" creator="test">
  <trk>
    <name>Lunch Walk</name>
    <trkseg>
      <trkpt lat="51.50" lon="-0.12"><time>2025-03-02T12:00:00Z</time></trkpt>
      <trkpt lat="51.51" lon="-0.11"><time>2025-03-02T12:15:00Z</time></trkpt>
    </trkseg>
    <trkseg>
      <trkpt lat="51.52" lon="-0.10"><time>2025-03-02T12:30:00Z</time></trkpt>
    </trkseg>
  </trk>
</gpx>`

func TestBuildFromGPX(t *testing.T) {
	doc, err := gogpx.ParseBytes([]byte(twoSegmentGPX))
	if err != nil {
		t.Fatal(err)
	}
	a, err := BuildFromGPX(7, doc, "lunch.gpx")
	if err != nil {
		t.Fatal(err)
	}

	if a.ID != 7 {
		t.Errorf("id = %d, want 7", a.ID)
	}
	if got := len(a.Geometries[lod.TierFull]); got != 3 {
		t.Errorf("segments should be flattened into 3 points, got %d", got)
	}
	if a.Metadata.ActivityType != "walk" {
		t.Errorf("activity type = %q, want walk (from track name)", a.Metadata.ActivityType)
	}
	if a.Metadata.SourceFile != "lunch.gpx" {
		t.Errorf("source file = %q", a.Metadata.SourceFile)
	}
	wantStart := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	if !a.Metadata.StartTime.Equal(wantStart) {
		t.Errorf("start = %v, want %v", a.Metadata.StartTime, wantStart)
	}
	if a.Metadata.Duration != 1800 {
		t.Errorf("duration = %v, want 1800s spanning both segments", a.Metadata.Duration)
	}
	if a.Metadata.Distance <= 0 {
		t.Errorf("distance should be derived, got %v", a.Metadata.Distance)
	}
}

func TestBuildFromGPXEmptyDocument(t *testing.T) {
	doc, err := gogpx.ParseBytes([]byte(`<?xml version="1.0"?><gpx version="1.1" creator="t"></gpx>`))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := BuildFromGPX(1, doc, "empty.gpx"); err == nil {
		t.Error("document without points should be rejected")
	}
}
