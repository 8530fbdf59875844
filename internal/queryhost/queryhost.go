// Package queryhost runs the query engine off the interactive path. A single
// worker goroutine owns its own activity store and spatial index, fed by
// explicit add-activity messages mirrored from the owning context; queries
// are delivered back incrementally as bounded chunks with a progress figure.
//
// There is no shared-memory mutation across the boundary: every interaction
// is a message. Inserts are processed as discrete messages between query
// batches, so a query never observes a torn insert.
//
// Ordering: each request carries a sequence number, monotonically increasing
// per query kind. A chunk whose sequence number is no longer the latest
// issued for its kind is discarded before delivery, so a newer query's
// results can never be overwritten by a late-arriving older one
// (last-request-wins). Cancellation is cooperative: a cancelled query stops
// emitting chunks and delivers no result, which is not an error.
package queryhost

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/openridge/trackmap/internal/engine"
	"github.com/openridge/trackmap/internal/geo"
	"github.com/openridge/trackmap/internal/monitoring"
	"github.com/openridge/trackmap/internal/track"
)

// DefaultChunkSize bounds how many features travel in one chunk.
const DefaultChunkSize = 500

// Kind tags a request with its query shape.
type Kind string

const (
	KindViewport Kind = "viewport"
	KindByIDs    Kind = "by_ids"
	KindPolygon  Kind = "polygon"
)

// Status reports how a query run ended.
type Status string

const (
	// StatusOK: the run completed and delivered every chunk.
	StatusOK Status = "ok"
	// StatusSuperseded: a newer request of the same kind started; delivery
	// stopped and the partial output must be discarded.
	StatusSuperseded Status = "superseded"
	// StatusCancelled: the caller cancelled the run.
	StatusCancelled Status = "cancelled"
)

// ViewportQuery asks for every activity intersecting a viewport at a zoom.
type ViewportQuery struct {
	BBox geo.BBox
	Zoom int
}

// ByIDsQuery is the id-filtered viewport variant.
type ByIDsQuery struct {
	IDs  []int64
	BBox geo.BBox
	Zoom int
}

// PolygonQuery asks for summaries of activities intersecting a lasso ring.
type PolygonQuery struct {
	Ring []geo.Point
}

// request is the tagged-union message sent to the worker. Exactly one of
// the payload variants is set, selected by Kind; insert messages use the
// add/bulk fields and no Kind.
type request struct {
	kind     Kind
	seq      uint64
	viewport *ViewportQuery
	byIDs    *ByIDsQuery
	polygon  *PolygonQuery

	add  *track.Activity
	bulk []*track.Activity

	runID  string
	ctx    context.Context
	chunks chan Chunk
}

// Chunk is one unit of incremental delivery. Feature chunks are bounded by
// the host's chunk size; the final chunk has Done set and carries the
// terminal status.
type Chunk struct {
	Kind      Kind             `json:"kind"`
	Seq       uint64           `json:"seq"`
	RunID     string           `json:"run_id"`
	Features  []engine.Feature `json:"features,omitempty"`
	Summaries []engine.Summary `json:"summaries,omitempty"`
	// Progress is a percentage in [0,100] of candidates processed so far.
	Progress float64 `json:"progress"`
	Done     bool    `json:"done"`
	Status   Status  `json:"status,omitempty"`
}

// Handle is the caller's side of an in-flight query.
type Handle struct {
	// RunID identifies this run in logs and chunk payloads.
	RunID string
	// Seq is the request's sequence number within its kind.
	Seq uint64
	// Chunks delivers results incrementally; it is closed after the final
	// (Done) chunk. Consumers must drain the channel until it closes, even
	// after cancelling, or the worker blocks on the terminal chunk.
	Chunks <-chan Chunk

	cancel context.CancelFunc
}

// Cancel stops the run. Chunks already delivered remain valid; no further
// chunks arrive beyond the terminal one.
func (h *Handle) Cancel() { h.cancel() }

// Host owns the worker goroutine and the request mailbox.
type Host struct {
	eng       *engine.Engine
	requests  chan *request
	chunkSize int

	mu     sync.Mutex
	nextSeq map[Kind]uint64
	latest  map[Kind]uint64
}

// New returns a host around a fresh engine copy. chunkSize <= 0 uses
// DefaultChunkSize. Call Run to start the worker.
func New(chunkSize int) *Host {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Host{
		eng:       engine.New(),
		requests:  make(chan *request, 64),
		chunkSize: chunkSize,
		nextSeq:   make(map[Kind]uint64),
		latest:    make(map[Kind]uint64),
	}
}

// SetStrict makes index/store desyncs fatal in the worker's engine. Call
// before Run.
func (h *Host) SetStrict(strict bool) { h.eng.Strict = strict }

// Store exposes the worker engine's activity store. The store is safe for
// concurrent reads; collaborators that only need metadata (stats, charts)
// read it directly instead of going through the message protocol.
func (h *Host) Store() *track.Store { return h.eng.Store() }

// Run processes messages until ctx is cancelled. It is the only goroutine
// that touches the host's engine.
func (h *Host) Run(ctx context.Context) error {
	for {
		select {
		case req := <-h.requests:
			h.handle(req)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// issue registers a new request of the given kind, superseding any earlier
// in-flight request of the same kind.
func (h *Host) issue(kind Kind) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextSeq[kind]++
	seq := h.nextSeq[kind]
	h.latest[kind] = seq
	return seq
}

// isLatest reports whether seq is still the newest issued for kind.
func (h *Host) isLatest(kind Kind, seq uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest[kind] == seq
}

// AddActivity mirrors one activity into the worker's store and index. It
// queues behind any in-flight query, so queries never see a partial insert.
func (h *Host) AddActivity(a *track.Activity) {
	h.requests <- &request{add: a}
}

// BulkLoad mirrors a batch of activities into the worker, bulk-loading its
// index. Used once at session start.
func (h *Host) BulkLoad(activities []*track.Activity) {
	h.requests <- &request{bulk: activities}
}

// QueryViewport starts a viewport query. Any earlier in-flight viewport
// query is superseded.
func (h *Host) QueryViewport(ctx context.Context, q ViewportQuery) *Handle {
	return h.start(ctx, &request{kind: KindViewport, viewport: &q})
}

// QueryByIDs starts an id-filtered viewport query.
func (h *Host) QueryByIDs(ctx context.Context, q ByIDsQuery) *Handle {
	return h.start(ctx, &request{kind: KindByIDs, byIDs: &q})
}

// QueryPolygon starts a lasso query.
func (h *Host) QueryPolygon(ctx context.Context, q PolygonQuery) *Handle {
	return h.start(ctx, &request{kind: KindPolygon, polygon: &q})
}

func (h *Host) start(ctx context.Context, req *request) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	req.seq = h.issue(req.kind)
	req.ctx = ctx
	req.chunks = make(chan Chunk, 16)
	req.runID = uuid.NewString()
	handle := &Handle{
		RunID:  req.runID,
		Seq:    req.seq,
		Chunks: req.chunks,
		cancel: cancel,
	}
	h.requests <- req
	return handle
}

// handle executes one message on the worker goroutine.
func (h *Host) handle(req *request) {
	switch {
	case req.add != nil:
		h.eng.Add(req.add)
		return
	case req.bulk != nil:
		h.eng.BulkLoad(req.bulk)
		return
	}

	run := newRun(h, req)
	switch req.kind {
	case KindViewport:
		run.viewport(req.viewport)
	case KindByIDs:
		run.byIDs(req.byIDs)
	case KindPolygon:
		run.polygon(req.polygon)
	default:
		monitoring.Logf("queryhost: dropping request with unknown kind %q", req.kind)
		close(req.chunks)
	}
}
