package queryhost

import (
	"context"
	"testing"
	"time"

	"github.com/openridge/trackmap/internal/engine"
	"github.com/openridge/trackmap/internal/geo"
	"github.com/openridge/trackmap/internal/track"
)

func buildActivity(t *testing.T, id int64, coords []geo.Point) *track.Activity {
	t.Helper()
	a, err := track.Build(id, coords, track.Metadata{})
	if err != nil {
		t.Fatal(err)
	}
	return a
}

// drain collects every chunk from a handle until the channel closes.
func drain(t *testing.T, h *Handle) (features []engine.Feature, summaries []engine.Summary, final Chunk) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-h.Chunks:
			if !ok {
				return features, summaries, final
			}
			features = append(features, c.Features...)
			summaries = append(summaries, c.Summaries...)
			if c.Done {
				final = c
			}
		case <-timeout:
			t.Fatal("timed out draining chunks")
		}
	}
}

func startHost(t *testing.T, chunkSize int) *Host {
	t.Helper()
	h := New(chunkSize)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.Run(ctx)
	return h
}

func TestViewportQueryDeliversAll(t *testing.T) {
	h := startHost(t, 0)
	h.BulkLoad([]*track.Activity{
		buildActivity(t, 1, []geo.Point{{0, 0}, {1, 1}}),
		buildActivity(t, 2, []geo.Point{{0.2, 0.2}, {0.8, 0.8}}),
		buildActivity(t, 3, []geo.Point{{5, 5}, {6, 6}}),
	})

	handle := h.QueryViewport(context.Background(), ViewportQuery{
		BBox: geo.BBox{0, 0, 1, 1}, Zoom: 16,
	})
	features, _, final := drain(t, handle)
	if len(features) != 2 {
		t.Fatalf("got %d features, want 2", len(features))
	}
	if final.Status != StatusOK {
		t.Errorf("final status = %s, want ok", final.Status)
	}
	if final.Progress != 100 {
		t.Errorf("final progress = %v, want 100", final.Progress)
	}
	if final.RunID != handle.RunID {
		t.Errorf("chunk run id %q != handle run id %q", final.RunID, handle.RunID)
	}
}

func TestChunkSizeBoundsDelivery(t *testing.T) {
	h := startHost(t, 2)
	var acts []*track.Activity
	for i := int64(1); i <= 5; i++ {
		acts = append(acts, buildActivity(t, i, []geo.Point{{0.1, 0.1}, {0.9, 0.9}}))
	}
	h.BulkLoad(acts)

	handle := h.QueryViewport(context.Background(), ViewportQuery{
		BBox: geo.BBox{0, 0, 1, 1}, Zoom: 12,
	})

	var featureChunks int
	var total int
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-handle.Chunks:
			if !ok {
				if featureChunks != 3 { // 2+2+1
					t.Errorf("got %d feature chunks, want 3", featureChunks)
				}
				if total != 5 {
					t.Errorf("got %d features, want 5", total)
				}
				return
			}
			if len(c.Features) > 2 {
				t.Errorf("chunk carries %d features, bound is 2", len(c.Features))
			}
			if len(c.Features) > 0 {
				featureChunks++
				total += len(c.Features)
			}
		case <-timeout:
			t.Fatal("timed out")
		}
	}
}

// TestLastRequestWins: a second viewport query issued before the first is
// processed supersedes it; only the second delivers output.
func TestLastRequestWins(t *testing.T) {
	h := New(0) // worker not running yet: both requests queue up
	h.BulkLoad([]*track.Activity{
		buildActivity(t, 1, []geo.Point{{0, 0}, {1, 1}}),
	})

	h1 := h.QueryViewport(context.Background(), ViewportQuery{BBox: geo.BBox{0, 0, 1, 1}, Zoom: 12})
	h2 := h.QueryViewport(context.Background(), ViewportQuery{BBox: geo.BBox{0, 0, 1, 1}, Zoom: 12})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	f1, _, final1 := drain(t, h1)
	if len(f1) != 0 {
		t.Errorf("superseded query delivered %d features, want 0", len(f1))
	}
	if final1.Status != StatusSuperseded {
		t.Errorf("first query status = %s, want superseded", final1.Status)
	}

	f2, _, final2 := drain(t, h2)
	if len(f2) != 1 {
		t.Errorf("latest query delivered %d features, want 1", len(f2))
	}
	if final2.Status != StatusOK {
		t.Errorf("latest query status = %s, want ok", final2.Status)
	}
}

// Different kinds do not supersede each other.
func TestKindsAreIndependent(t *testing.T) {
	h := New(0)
	h.BulkLoad([]*track.Activity{
		buildActivity(t, 1, []geo.Point{{0, 0}, {1, 1}}),
	})
	hv := h.QueryViewport(context.Background(), ViewportQuery{BBox: geo.BBox{0, 0, 1, 1}, Zoom: 12})
	hp := h.QueryPolygon(context.Background(), PolygonQuery{
		Ring: []geo.Point{{-1, -1}, {2, -1}, {2, 2}, {-1, 2}},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	fv, _, finalV := drain(t, hv)
	if len(fv) != 1 || finalV.Status != StatusOK {
		t.Errorf("viewport query: %d features, status %s", len(fv), finalV.Status)
	}
	_, sp, finalP := drain(t, hp)
	if len(sp) != 1 || finalP.Status != StatusOK {
		t.Errorf("polygon query: %d summaries, status %s", len(sp), finalP.Status)
	}
}

func TestCancelDeliversNothing(t *testing.T) {
	h := New(0)
	h.BulkLoad([]*track.Activity{
		buildActivity(t, 1, []geo.Point{{0, 0}, {1, 1}}),
	})
	handle := h.QueryViewport(context.Background(), ViewportQuery{BBox: geo.BBox{0, 0, 1, 1}, Zoom: 12})
	handle.Cancel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	features, _, _ := drain(t, handle)
	if len(features) != 0 {
		t.Errorf("cancelled query delivered %d features, want 0", len(features))
	}
}

// TestInsertOrdering: an add queued before a query is visible to it; one
// queued after is not applied mid-query.
func TestInsertOrdering(t *testing.T) {
	h := New(0)
	h.AddActivity(buildActivity(t, 1, []geo.Point{{0, 0}, {1, 1}}))
	handle := h.QueryViewport(context.Background(), ViewportQuery{BBox: geo.BBox{0, 0, 1, 1}, Zoom: 12})
	h.AddActivity(buildActivity(t, 2, []geo.Point{{0, 0}, {1, 1}}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	features, _, final := drain(t, handle)
	if len(features) != 1 || features[0].Properties.ID != 1 {
		t.Fatalf("query should see exactly activity 1, got %+v", features)
	}
	if final.Status != StatusOK {
		t.Errorf("status = %s", final.Status)
	}

	// The later insert is applied once the query batch finished.
	handle2 := h.QueryViewport(context.Background(), ViewportQuery{BBox: geo.BBox{0, 0, 1, 1}, Zoom: 12})
	features2, _, _ := drain(t, handle2)
	if len(features2) != 2 {
		t.Errorf("second query should see both activities, got %d", len(features2))
	}
}

// TestCancelAlwaysDeliversTerminalChunk: a run cancelled mid-delivery must
// still close its channel with a Done chunk. A channel that just closes
// would let a truncated result pass for a complete one downstream.
func TestCancelAlwaysDeliversTerminalChunk(t *testing.T) {
	h := startHost(t, 1)
	var acts []*track.Activity
	for i := int64(1); i <= 40; i++ {
		acts = append(acts, buildActivity(t, i, []geo.Point{{0.1, 0.1}, {0.9, 0.9}}))
	}
	h.BulkLoad(acts)

	timeout := time.After(10 * time.Second)
	for iter := 0; iter < 100; iter++ {
		handle := h.QueryViewport(context.Background(), ViewportQuery{
			BBox: geo.BBox{0, 0, 1, 1}, Zoom: 12,
		})
		var last Chunk
		sawDone := false
		cancelled := false
	drain:
		for {
			select {
			case c, ok := <-handle.Chunks:
				if !ok {
					break drain
				}
				last = c
				if c.Done {
					sawDone = true
				}
				if !cancelled {
					cancelled = true
					handle.Cancel()
				}
			case <-timeout:
				t.Fatalf("iteration %d: timed out draining chunks", iter)
			}
		}
		if !sawDone {
			t.Fatalf("iteration %d: channel closed without a terminal chunk", iter)
		}
		if !last.Done {
			t.Fatalf("iteration %d: terminal chunk was not the last chunk", iter)
		}
	}
}

func TestByIDsThroughHost(t *testing.T) {
	h := startHost(t, 0)
	h.BulkLoad([]*track.Activity{
		buildActivity(t, 1, []geo.Point{{0, 0}, {1, 1}}),
		buildActivity(t, 2, []geo.Point{{0, 0}, {1, 1}}),
	})
	handle := h.QueryByIDs(context.Background(), ByIDsQuery{
		IDs: []int64{2}, BBox: geo.BBox{0, 0, 1, 1}, Zoom: 12,
	})
	features, _, final := drain(t, handle)
	if len(features) != 1 || features[0].Properties.ID != 2 {
		t.Fatalf("got %+v, want only id 2", features)
	}
	if final.Status != StatusOK {
		t.Errorf("status = %s", final.Status)
	}
}
