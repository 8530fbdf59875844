// Package store persists uploaded activities across sessions. The engine
// only sees the Repository interface, so the host decides whether uploads
// live in memory only, in a sqlite file, or elsewhere.
package store

import (
	"sync"

	"github.com/openridge/trackmap/internal/track"
)

// Repository saves activities and replays them at session start. Uploads go
// through SaveActivity at request time; the bulk importer writes through the
// same interface ahead of time.
type Repository interface {
	// SaveActivity persists one activity. A failure is soft: the caller
	// keeps the activity in its in-memory structures and reports a
	// transient status instead of rejecting the upload.
	SaveActivity(a *track.Activity) error
	// LoadAll returns every persisted activity.
	LoadAll() ([]*track.Activity, error)
}

// Memory is the in-memory-only Repository: uploads survive for the session
// and vanish on restart.
type Memory struct {
	mu         sync.Mutex
	activities []*track.Activity
}

// NewMemory returns an empty in-memory repository.
func NewMemory() *Memory {
	return &Memory{}
}

// SaveActivity implements Repository.
func (m *Memory) SaveActivity(a *track.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities = append(m.activities, a)
	return nil
}

// LoadAll implements Repository.
func (m *Memory) LoadAll() ([]*track.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*track.Activity, len(m.activities))
	copy(out, m.activities)
	return out, nil
}
