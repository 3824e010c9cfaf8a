package database

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"quickchat/internal/models"
	"quickchat/internal/utils"

	"github.com/google/uuid"
)

// MemoryDB keeps everything in process memory. It backs tests and the
// DB_TYPE=memory mode.
type MemoryDB struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]*models.User
	byEmail  map[string]uuid.UUID
	messages []*models.Message
	index    map[uuid.UUID]int
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users:   make(map[uuid.UUID]*models.User),
		byEmail: make(map[string]uuid.UUID),
		index:   make(map[uuid.UUID]int),
	}
}

func (m *MemoryDB) Close(ctx context.Context) error { return nil }

func (m *MemoryDB) SaveUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, taken := m.byEmail[email]; taken {
		return utils.NewAppError(utils.ErrDuplicate, "Account already exists", nil)
	}
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.Email = email

	stored := *user
	m.users[user.ID] = &stored
	m.byEmail[email] = user.ID
	return nil
}

func (m *MemoryDB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, utils.NewUserNotFoundError(id.String())
	}
	cp := *u
	return &cp, nil
}

func (m *MemoryDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, utils.NewUserNotFoundError(email)
	}
	cp := *m.users[id]
	return &cp, nil
}

func (m *MemoryDB) ListUsersExcept(ctx context.Context, id uuid.UUID) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]*models.User, 0, len(m.users))
	for uid, u := range m.users {
		if uid == id {
			continue
		}
		cp := *u
		users = append(users, &cp)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].FullName != users[j].FullName {
			return users[i].FullName < users[j].FullName
		}
		return bytes.Compare(users[i].ID[:], users[j].ID[:]) < 0
	})
	return users, nil
}

func (m *MemoryDB) UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, utils.NewUserNotFoundError(id.String())
	}
	u.FullName = update.FullName
	u.Bio = update.Bio
	if update.ProfilePic != "" {
		u.ProfilePic = update.ProfilePic
	}
	u.UpdatedAt = time.Now().UTC()
	cp := *u
	return &cp, nil
}

func (m *MemoryDB) CreateMessage(ctx context.Context, msg *models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.index[msg.ID]; dup {
		return utils.NewAppError(utils.ErrDuplicate, "message already exists", nil)
	}
	stored := *msg
	m.index[msg.ID] = len(m.messages)
	m.messages = append(m.messages, &stored)
	return nil
}

func (m *MemoryDB) FindConversation(ctx context.Context, a, b uuid.UUID) ([]*models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*models.Message, 0)
	for _, msg := range m.messages {
		if (msg.SenderID == a && msg.ReceiverID == b) || (msg.SenderID == b && msg.ReceiverID == a) {
			cp := *msg
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, nil
}

func (m *MemoryDB) MarkConversationSeen(ctx context.Context, from, to uuid.UUID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, msg := range m.messages {
		if msg.SenderID == from && msg.ReceiverID == to && !msg.Seen {
			msg.Seen = true
			n++
		}
	}
	return n, nil
}

func (m *MemoryDB) MarkMessageSeen(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	i, ok := m.index[id]
	if !ok {
		return utils.NewMessageNotFoundError(id.String())
	}
	m.messages[i].Seen = true
	return nil
}

func (m *MemoryDB) CountUnseen(ctx context.Context, viewer uuid.UUID) (map[uuid.UUID]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[uuid.UUID]int)
	for _, msg := range m.messages {
		if msg.ReceiverID == viewer && msg.SenderID != viewer && !msg.Seen {
			counts[msg.SenderID]++
		}
	}
	return counts, nil
}
