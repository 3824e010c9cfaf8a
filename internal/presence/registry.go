// Package presence tracks which users currently hold a live connection.
package presence

import (
	"bytes"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Handle is a live connection that events can be pushed over.
type Handle interface {
	Emit(event string, payload any) error
}

// Broadcaster receives the online set after every registry change.
type Broadcaster interface {
	BroadcastOnline(userIDs []uuid.UUID)
}

// Registry maps a user to at most one live handle. All methods are safe for
// concurrent use. Broadcasts are issued under the registry lock so observers
// see them in mutation order; Broadcaster implementations must not call back
// into the registry.
type Registry struct {
	mu          sync.Mutex
	entries     map[uuid.UUID]Handle
	broadcaster Broadcaster
	onChange    func(online int)
	log         *zap.SugaredLogger
}

// NewRegistry returns an empty registry. broadcaster may be nil.
func NewRegistry(broadcaster Broadcaster, log *zap.SugaredLogger) *Registry {
	return &Registry{
		entries:     make(map[uuid.UUID]Handle),
		broadcaster: broadcaster,
		log:         log.With("component", "presence"),
	}
}

// OnChange installs a hook called with the online count after each change.
func (r *Registry) OnChange(fn func(online int)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Register maps userID to h. A previous handle for the same user is replaced
// without being closed.
func (r *Registry) Register(userID uuid.UUID, h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, replaced := r.entries[userID]; replaced {
		r.log.Debugw("replacing live handle", "userId", userID)
	}
	r.entries[userID] = h
	r.log.Infow("user online", "userId", userID, "online", len(r.entries))
	r.changedLocked()
}

// Unregister removes the mapping for userID. Unknown ids are a no-op.
func (r *Registry) Unregister(userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[userID]; !ok {
		return
	}
	delete(r.entries, userID)
	r.log.Infow("user offline", "userId", userID, "online", len(r.entries))
	r.changedLocked()
}

// UnregisterHandle removes the mapping only while it still points at h, so a
// superseded connection closing late cannot evict its replacement.
func (r *Registry) UnregisterHandle(userID uuid.UUID, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.entries[userID]
	if !ok || current != h {
		return false
	}
	delete(r.entries, userID)
	r.log.Infow("user offline", "userId", userID, "online", len(r.entries))
	r.changedLocked()
	return true
}

// Lookup returns the live handle for userID, if any.
func (r *Registry) Lookup(userID uuid.UUID) (Handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.entries[userID]
	return h, ok
}

// OnlineUserIDs returns a sorted snapshot of the online set.
func (r *Registry) OnlineUserIDs() []uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// IsOnline reports whether userID has a live handle.
func (r *Registry) IsOnline(userID uuid.UUID) bool {
	_, ok := r.Lookup(userID)
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Reset drops every entry. Called at server stop after sessions are closed.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == 0 {
		return
	}
	r.entries = make(map[uuid.UUID]Handle)
	r.changedLocked()
}

func (r *Registry) changedLocked() {
	if r.onChange != nil {
		r.onChange(len(r.entries))
	}
	if r.broadcaster != nil {
		r.broadcaster.BroadcastOnline(r.snapshotLocked())
	}
}

func (r *Registry) snapshotLocked() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return bytes.Compare(ids[i][:], ids[j][:]) < 0
	})
	return ids
}
