package websocket

import (
	"sync"

	"quickchat/internal/api"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Hub maintains the set of open sessions, identified or anonymous, and
// broadcasts the online set to all of them. It implements
// presence.Broadcaster and never calls back into the registry.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
	onCount  func(open int)
	log      *zap.SugaredLogger
}

func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{
		sessions: make(map[*Session]struct{}),
		log:      log.With("component", "hub"),
	}
}

// OnCount installs a hook called with the open session count after each
// attach or detach.
func (h *Hub) OnCount(fn func(open int)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCount = fn
}

func (h *Hub) attach(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s] = struct{}{}
	h.log.Debugw("session attached", "userId", s.userLabel(), "sessions", len(h.sessions))
	h.countLocked()
}

func (h *Hub) detach(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.sessions[s]; !ok {
		return
	}
	delete(h.sessions, s)
	h.log.Debugw("session detached", "userId", s.userLabel(), "sessions", len(h.sessions))
	h.countLocked()
}

func (h *Hub) countLocked() {
	if h.onCount != nil {
		h.onCount(len(h.sessions))
	}
}

// BroadcastOnline sends getOnlineUsers with userIDs to every open session.
// Sessions whose buffer is full miss this broadcast; the next one carries the
// full set again.
func (h *Hub) BroadcastOnline(userIDs []uuid.UUID) {
	frame, err := api.EncodeEvent(api.EventOnlineUsers, onlinePayload(userIDs))
	if err != nil {
		h.log.Errorw("failed to encode online set", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.sessions {
		if err := s.enqueue(frame); err != nil {
			h.log.Warnw("online broadcast dropped", "userId", s.userLabel(), "error", err)
		}
	}
}

// Count returns the number of open sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Shutdown closes every open session. Each session unregisters itself.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	open := make([]*Session, 0, len(h.sessions))
	for s := range h.sessions {
		open = append(open, s)
	}
	h.mu.RUnlock()

	h.log.Infow("closing sessions", "sessions", len(open))
	for _, s := range open {
		s.Close()
	}
}

func onlinePayload(userIDs []uuid.UUID) []string {
	out := make([]string, len(userIDs))
	for i, id := range userIDs {
		out[i] = id.String()
	}
	return out
}
