package database

import (
	"context"
	"fmt"

	"quickchat/internal/config"
	"quickchat/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MessageRepository is the durable record of direct messages.
type MessageRepository interface {
	// CreateMessage persists msg as given; ID and CreatedAt must be set.
	CreateMessage(ctx context.Context, msg *models.Message) error
	// FindConversation returns every message exchanged between a and b,
	// oldest first.
	FindConversation(ctx context.Context, a, b uuid.UUID) ([]*models.Message, error)
	// MarkConversationSeen flags every unseen message from -> to as seen and
	// returns how many changed.
	MarkConversationSeen(ctx context.Context, from, to uuid.UUID) (int64, error)
	// MarkMessageSeen flags one message as seen. Unknown ids fail with
	// MESSAGE_NOT_FOUND.
	MarkMessageSeen(ctx context.Context, id uuid.UUID) error
	// CountUnseen maps sender -> unseen messages addressed to viewer by other
	// users. Senders with nothing unseen are omitted.
	CountUnseen(ctx context.Context, viewer uuid.UUID) (map[uuid.UUID]int, error)
}

// UserRepository stores accounts and profiles.
type UserRepository interface {
	SaveUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsersExcept(ctx context.Context, id uuid.UUID) ([]*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (*models.User, error)
}

// Store is a full backend.
type Store interface {
	MessageRepository
	UserRepository
	Close(ctx context.Context) error
}

// Open connects the backend selected by cfg.Type and prepares its indexes or
// tables.
func Open(ctx context.Context, cfg *config.DatabaseConfig, log *zap.SugaredLogger) (Store, error) {
	switch cfg.Type {
	case config.DBTypeMongo:
		db, err := NewMongoDB(ctx, cfg.URI, cfg.Name, log)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureIndexes(ctx); err != nil {
			_ = db.Close(ctx)
			return nil, err
		}
		return db, nil
	case config.DBTypePostgres:
		db, err := NewPostgresDB(cfg.URI, log)
		if err != nil {
			return nil, err
		}
		if err := db.InitializeTables(ctx); err != nil {
			_ = db.Close(ctx)
			return nil, err
		}
		return db, nil
	case config.DBTypeMemory:
		log.Warn("using in-memory store, data is lost on restart")
		return NewMemoryDB(), nil
	default:
		return nil, fmt.Errorf("unsupported database type %q", cfg.Type)
	}
}
