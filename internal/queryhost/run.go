package queryhost

import (
	"github.com/openridge/trackmap/internal/engine"
)

// run carries the delivery state for one query execution on the worker.
type run struct {
	host *Host
	req  *request

	pending   []engine.Feature
	processed int
	total     int
	aborted   bool
	status    Status
}

func newRun(h *Host, req *request) *run {
	return &run{host: h, req: req, status: StatusOK}
}

// alive reports whether the run should keep producing: it stops when the
// caller cancelled or a newer request of the same kind superseded it.
func (r *run) alive() bool {
	if r.aborted {
		return false
	}
	select {
	case <-r.req.ctx.Done():
		r.abort(StatusCancelled)
		return false
	default:
	}
	if !r.host.isLatest(r.req.kind, r.req.seq) {
		r.abort(StatusSuperseded)
		return false
	}
	return true
}

func (r *run) abort(s Status) {
	r.aborted = true
	r.status = s
	r.pending = nil
}

// progress is the percentage of candidates processed so far.
func (r *run) progress() float64 {
	if r.total == 0 {
		return 100
	}
	p := float64(r.processed) / float64(r.total) * 100
	if p > 100 {
		p = 100
	}
	return p
}

// deliver sends one chunk, giving up if the caller has gone away.
func (r *run) deliver(c Chunk) {
	c.Kind = r.req.kind
	c.Seq = r.req.seq
	c.RunID = r.req.runID
	select {
	case r.req.chunks <- c:
	case <-r.req.ctx.Done():
		r.abort(StatusCancelled)
	}
}

// emit buffers one feature, flushing a chunk when the bound is reached.
// It returns false to stop the producing scan.
func (r *run) emit(f engine.Feature) bool {
	if !r.alive() {
		return false
	}
	r.pending = append(r.pending, f)
	if len(r.pending) >= r.host.chunkSize {
		r.flush()
	}
	return !r.aborted
}

func (r *run) flush() {
	if len(r.pending) == 0 {
		return
	}
	features := r.pending
	r.pending = nil
	r.deliver(Chunk{Features: features, Progress: r.progress()})
}

// finish flushes any remainder and sends the terminal chunk. The terminal
// chunk for a superseded or cancelled run carries no payload: such runs
// deliver no (further) result by contract.
//
// Unlike feature chunks, the terminal chunk is sent unconditionally, not
// through deliver: racing the send against the done context could close the
// channel with no terminal status, letting a truncated run read as
// complete. Handle.Chunks consumers must drain until close, so this send
// cannot block indefinitely.
func (r *run) finish() {
	if r.alive() {
		r.flush()
	}
	progress := r.progress()
	if r.aborted {
		progress = 0
	}
	r.req.chunks <- Chunk{
		Kind:     r.req.kind,
		Seq:      r.req.seq,
		RunID:    r.req.runID,
		Done:     true,
		Status:   r.status,
		Progress: progress,
	}
	close(r.req.chunks)
}

func (r *run) viewport(q *ViewportQuery) {
	if r.alive() {
		ids := r.host.eng.SearchViewport(q.BBox)
		r.total = len(ids)
		for _, id := range ids {
			if !r.alive() {
				break
			}
			if f, ok := r.host.eng.FeatureAt(id, q.BBox, q.Zoom); ok {
				if !r.emit(f) {
					break
				}
			}
			r.processed++
		}
	}
	r.finish()
}

func (r *run) byIDs(q *ByIDsQuery) {
	if r.alive() {
		fs := r.host.eng.QueryByIDs(q.IDs, q.BBox, q.Zoom)
		r.total = len(fs.Features)
		for _, f := range fs.Features {
			if !r.emit(f) {
				break
			}
			r.processed++
		}
	}
	r.finish()
}

func (r *run) polygon(q *PolygonQuery) {
	if !r.alive() {
		r.finish()
		return
	}
	summaries := r.host.eng.QueryPolygon(q.Ring)
	r.total = len(summaries)
	r.processed = len(summaries)
	if r.alive() {
		r.deliver(Chunk{Summaries: summaries, Progress: 100})
	}
	r.finish()
}
