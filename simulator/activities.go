package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"quickchat/internal/api"
	"quickchat/internal/models"

	"github.com/gorilla/websocket"
)

const sampleImage = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAQAAAC1HAwCAAAAC0lEQVR42mNkYAAAAAYAAjCB0C8AAAAASUVORK5CYII="

type messageJob struct {
	sender   *SimulatedUser
	receiver *SimulatedUser
}

// connect opens a websocket for user and starts reading its pushes.
func (s *Simulator) connect(ctx context.Context, user *SimulatedUser) error {
	endpoint, err := s.socketURL(user.Token)
	if err != nil {
		return err
	}

	conn, _, err := s.dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	user.mu.Lock()
	if user.conn != nil {
		user.mu.Unlock()
		conn.Close()
		return nil
	}
	user.conn = conn
	user.LastActive = time.Now()
	user.mu.Unlock()

	go s.readPushes(user, conn)
	return nil
}

func (s *Simulator) socketURL(token string) (string, error) {
	u, err := url.Parse(s.config.EngineURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

// readPushes counts newMessage pushes and acknowledges each with messageSeen
// until conn fails or is closed.
func (s *Simulator) readPushes(user *SimulatedUser, conn *websocket.Conn) {
	defer s.dropConn(user, conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debugw("session read ended", "user", user.Email, "error", err)
			}
			return
		}

		var env api.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.Debugw("malformed frame", "user", user.Email, "error", err)
			continue
		}
		if env.Event != api.EventNewMessage {
			continue
		}

		var msg models.Message
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			s.log.Debugw("malformed newMessage", "user", user.Email, "error", err)
			continue
		}
		s.stats.mu.Lock()
		s.stats.PushesReceived++
		s.stats.mu.Unlock()

		ack := map[string]interface{}{
			"event": api.EventMessageSeen,
			"data":  api.MessageSeenEvent{MessageID: msg.ID.String()},
		}
		user.mu.Lock()
		user.LastActive = time.Now()
		err = conn.WriteJSON(ack)
		user.mu.Unlock()
		if err != nil {
			s.log.Debugw("ack failed", "user", user.Email, "error", err)
			return
		}
		s.stats.mu.Lock()
		s.stats.SeenAcks++
		s.stats.mu.Unlock()
	}
}

// dropConn forgets conn if it is still the user's current session.
func (s *Simulator) dropConn(user *SimulatedUser, conn *websocket.Conn) {
	user.mu.Lock()
	if user.conn == conn {
		user.conn = nil
	}
	user.mu.Unlock()
	conn.Close()
}

// disconnect closes the user's session with a normal closure.
func (s *Simulator) disconnect(user *SimulatedUser) bool {
	user.mu.Lock()
	conn := user.conn
	user.conn = nil
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
	}
	user.mu.Unlock()

	if conn == nil {
		return false
	}
	conn.Close()
	return true
}

func (s *Simulator) disconnectAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		s.disconnect(user)
	}
}

func (s *Simulator) simulateMessaging(ctx context.Context) {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	// Chance a connected user sends on any one tick.
	perTick := s.config.MessageFrequency / 60.0 * s.config.TickInterval.Seconds()

	jobs := make(chan messageJob, s.config.NumUsers)
	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range jobs {
				if err := s.sendMessage(ctx, job.sender, job.receiver); err != nil && ctx.Err() == nil {
					s.log.Debugw("send failed", "worker", workerID, "from", job.sender.Email, "error", err)
				}
			}
		}(i)
	}

	for {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return
		case <-ticker.C:
			s.mu.RLock()
			for _, sender := range s.users {
				if !sender.IsConnected() || rand.Float64() >= perTick {
					continue
				}
				receiver := s.pickReceiver(sender)
				select {
				case jobs <- messageJob{sender: sender, receiver: receiver}:
				default: // Don't block if workers are behind
				}
			}
			s.mu.RUnlock()
		}
	}
}

// pickReceiver returns a random user other than sender. Callers hold s.mu.
func (s *Simulator) pickReceiver(sender *SimulatedUser) *SimulatedUser {
	for {
		receiver := s.users[rand.Intn(len(s.users))]
		if receiver != sender {
			return receiver
		}
	}
}

func (s *Simulator) sendMessage(ctx context.Context, sender, receiver *SimulatedUser) error {
	body := map[string]string{}
	if rand.Float64() < s.config.ImageRatio {
		body["image"] = sampleImage
	} else {
		body["text"] = fmt.Sprintf("hello from %s at %s", sender.FullName, time.Now().Format(time.RFC3339Nano))
	}

	if _, err := s.makeRequest(ctx, "POST", "/api/message/send/"+receiver.ID.String(), sender.Token, body); err != nil {
		return err
	}
	s.stats.mu.Lock()
	s.stats.MessagesSent++
	s.stats.mu.Unlock()
	return nil
}

func (s *Simulator) simulateConnectivity(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			users := append([]*SimulatedUser(nil), s.users...)
			s.mu.RUnlock()

			for _, user := range users {
				if user.IsConnected() {
					if rand.Float64() < s.config.DisconnectRate && s.disconnect(user) {
						s.stats.mu.Lock()
						s.stats.Disconnects++
						s.stats.mu.Unlock()
					}
					continue
				}
				if rand.Float64() < s.config.ReconnectRate {
					if err := s.connect(ctx, user); err != nil {
						s.log.Debugw("reconnect failed", "user", user.Email, "error", err)
						continue
					}
					s.stats.mu.Lock()
					s.stats.Reconnects++
					s.stats.mu.Unlock()
				}
			}
		}
	}
}
