package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"quickchat/internal/api"
	"quickchat/internal/presence"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

var (
	ErrSessionClosed  = errors.New("session closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// State is the lifecycle position of a session.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// InboundHandler applies client events to the message service.
type InboundHandler interface {
	MarkSeen(ctx context.Context, messageID uuid.UUID) error
}

// Deps are the collaborators shared by every session.
type Deps struct {
	Hub            *Hub
	Registry       *presence.Registry
	Handler        InboundHandler
	SendBuffer     int
	RequestTimeout time.Duration
	Log            *zap.SugaredLogger
}

// Session is one live websocket. It satisfies presence.Handle.
type Session struct {
	deps   Deps
	conn   *websocket.Conn
	userID uuid.UUID // uuid.Nil for anonymous sessions

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	state     atomic.Int32
	log       *zap.SugaredLogger
}

// NewSession wraps conn. userID may be uuid.Nil for a session whose identity
// could not be resolved; such sessions never register.
func NewSession(conn *websocket.Conn, userID uuid.UUID, deps Deps) *Session {
	buffer := deps.SendBuffer
	if buffer <= 0 {
		buffer = 256
	}
	s := &Session{
		deps:   deps,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, buffer),
		done:   make(chan struct{}),
	}
	s.log = deps.Log.With("component", "session", "userId", s.userLabel())
	return s
}

// UserID returns the resolved identity and whether there is one.
func (s *Session) UserID() (uuid.UUID, bool) {
	return s.userID, s.userID != uuid.Nil
}

func (s *Session) State() State {
	return State(s.state.Load())
}

// Done is closed once the session has closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Start opens the session and runs its pumps until the connection ends.
func (s *Session) Start() {
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen)) {
		return
	}

	go s.writePump()

	s.deps.Hub.attach(s)
	if _, identified := s.UserID(); identified {
		s.register()
	} else {
		// Anonymous sessions are absent from the registry, so no broadcast
		// was triggered for them.
		if err := s.Emit(api.EventOnlineUsers, onlinePayload(s.deps.Registry.OnlineUserIDs())); err != nil {
			s.log.Warnw("initial online set dropped", "error", err)
		}
	}
	s.log.Info("session open")

	go s.readPump()
}

// register publishes the session in the registry. Close may already have
// run between attach and here, so a closed session takes its entry back out.
func (s *Session) register() {
	s.deps.Registry.Register(s.userID, s)
	if s.State() == StateClosed {
		s.deps.Registry.UnregisterHandle(s.userID, s)
	}
}

// Emit queues an event for the peer. It never blocks.
func (s *Session) Emit(event string, payload any) error {
	frame, err := api.EncodeEvent(event, payload)
	if err != nil {
		return err
	}
	return s.enqueue(frame)
}

func (s *Session) enqueue(frame []byte) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.send <- frame:
		return nil
	case <-s.done:
		return ErrSessionClosed
	default:
		return ErrSendBufferFull
	}
}

// Close ends the session. It is safe to call more than once and from any
// goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.done)
		if _, identified := s.UserID(); identified {
			s.deps.Registry.UnregisterHandle(s.userID, s)
		}
		s.log.Info("session closed")
		s.deps.Hub.detach(s)
	})
}

// readPump pumps messages from the websocket connection to the handler.
func (s *Session) readPump() {
	defer func() {
		s.Close()
		s.conn.Close()
	}()
	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error { s.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debugw("read error", "error", err)
			}
			return
		}
		s.handleInbound(data)
	}
}

func (s *Session) handleInbound(data []byte) {
	var env api.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.log.Debugw("ignoring malformed frame", "error", err)
		return
	}

	switch env.Event {
	case api.EventMessageSeen:
		if _, identified := s.UserID(); !identified {
			s.log.Debug("ignoring messageSeen from anonymous session")
			return
		}
		var ev api.MessageSeenEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			s.log.Debugw("ignoring malformed messageSeen", "error", err)
			return
		}
		messageID, err := uuid.Parse(ev.MessageID)
		if err != nil {
			s.log.Debugw("ignoring messageSeen with bad id", "messageId", ev.MessageID)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), s.requestTimeout())
		defer cancel()
		if err := s.deps.Handler.MarkSeen(ctx, messageID); err != nil {
			s.log.Warnw("mark seen failed", "messageId", messageID, "error", err)
		}
	default:
		s.log.Debugw("ignoring unknown event", "event", env.Event)
	}
}

// writePump pumps queued frames to the websocket connection, one frame per
// websocket message.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()
	for {
		select {
		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				s.log.Debugw("write error", "error", err)
				s.Close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.log.Debugw("ping error", "error", err)
				s.Close()
				return
			}
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
			return
		}
	}
}

func (s *Session) requestTimeout() time.Duration {
	if s.deps.RequestTimeout > 0 {
		return s.deps.RequestTimeout
	}
	return 5 * time.Second
}

func (s *Session) userLabel() string {
	if s.userID == uuid.Nil {
		return "anonymous"
	}
	return s.userID.String()
}
