package track

import (
	"time"

	gogpx "github.com/tkrajina/gpxgo/gpx"

	"github.com/openridge/trackmap/internal/geo"
)

// BuildFromGPX flattens every track segment of a parsed GPX document into a
// single activity. The raw activity label is taken from the first track's
// type, falling back to the track name and then the document name.
func BuildFromGPX(id int64, doc *gogpx.GPX, sourceFile string) (*Activity, error) {
	var (
		coords     []geo.Point
		start, end time.Time
		raw        string
	)
	for _, trk := range doc.Tracks {
		if raw == "" {
			raw = trk.Type
		}
		if raw == "" {
			raw = trk.Name
		}
		for _, seg := range trk.Segments {
			for _, p := range seg.Points {
				coords = append(coords, geo.Point{p.Longitude, p.Latitude})
				if !p.Timestamp.IsZero() {
					if start.IsZero() || p.Timestamp.Before(start) {
						start = p.Timestamp
					}
					if p.Timestamp.After(end) {
						end = p.Timestamp
					}
				}
			}
		}
	}
	if raw == "" {
		raw = doc.Name
	}

	return Build(id, coords, Metadata{
		StartTime:   start,
		EndTime:     end,
		ActivityRaw: raw,
		SourceFile:  sourceFile,
	})
}
