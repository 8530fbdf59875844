package api

import (
	"bytes"
	"net/http"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/gonum/stat"

	"github.com/openridge/trackmap/internal/track"
)

// MetricStats summarises one metric over the whole activity set.
type MetricStats struct {
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	P90    float64 `json:"p90"`
	Max    float64 `json:"max"`
}

// StatsResponse is the /api/stats payload.
type StatsResponse struct {
	Count    int            `json:"count"`
	Distance MetricStats    `json:"distance_m"`
	Duration MetricStats    `json:"duration_s"`
	ByType   map[string]int `json:"by_type"`
}

func metricStats(values []float64) MetricStats {
	if len(values) == 0 {
		return MetricStats{}
	}
	sort.Float64s(values)
	return MetricStats{
		Mean:   stat.Mean(values, nil),
		Median: stat.Quantile(0.5, stat.Empirical, values, nil),
		P90:    stat.Quantile(0.9, stat.Empirical, values, nil),
		Max:    values[len(values)-1],
	}
}

// snapshot reads every activity's metadata out of the host's store.
func (s *Server) snapshot() []*track.Activity {
	st := s.host.Store()
	ids := st.IDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	activities := make([]*track.Activity, 0, len(ids))
	for _, id := range ids {
		if a, ok := st.Get(id); ok {
			activities = append(activities, a)
		}
	}
	return activities
}

func (s *Server) showStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	activities := s.snapshot()
	distances := make([]float64, 0, len(activities))
	durations := make([]float64, 0, len(activities))
	byType := make(map[string]int)
	for _, a := range activities {
		distances = append(distances, a.Metadata.Distance)
		durations = append(durations, a.Metadata.Duration)
		byType[a.Metadata.ActivityType]++
	}

	s.writeJSON(w, StatsResponse{
		Count:    len(activities),
		Distance: metricStats(distances),
		Duration: metricStats(durations),
		ByType:   byType,
	})
}

// activityChart renders a quick bar chart (HTML) of activity counts and mean
// distance per type using go-echarts. Debugging-only endpoint, no auth.
func (s *Server) activityChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	counts := make(map[string]int)
	distSums := make(map[string]float64)
	for _, a := range s.snapshot() {
		t := a.Metadata.ActivityType
		counts[t]++
		distSums[t] += a.Metadata.Distance
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)

	countData := make([]opts.BarData, 0, len(types))
	distData := make([]opts.BarData, 0, len(types))
	for _, t := range types {
		countData = append(countData, opts.BarData{Value: counts[t]})
		distData = append(distData, opts.BarData{Value: distSums[t] / float64(counts[t]) / 1000.0})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Activities by Type", Theme: "dark", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Activities by Type", Subtitle: "count and mean distance (km)"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(types)
	bar.AddSeries("count", countData)
	bar.AddSeries("mean distance (km)", distData)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to render chart")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
