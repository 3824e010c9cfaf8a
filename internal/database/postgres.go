// internal/database/postgres.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"quickchat/internal/models"
	"quickchat/internal/utils"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresDB represents a PostgreSQL database connection
type PostgresDB struct {
	DB  *sqlx.DB
	log *zap.SugaredLogger
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(connectionString string, log *zap.SugaredLogger) (*PostgresDB, error) {
	db, err := sqlx.Connect("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	log.Info("connected to PostgreSQL")

	return &PostgresDB{
		DB:  db,
		log: log.With("component", "postgres"),
	}, nil
}

// Close closes the database connection
func (p *PostgresDB) Close(ctx context.Context) error {
	p.log.Info("closing PostgreSQL connection")
	return p.DB.Close()
}

// InitializeTables creates all necessary tables if they don't exist
func (p *PostgresDB) InitializeTables(ctx context.Context) error {
	_, err := p.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email VARCHAR(255) UNIQUE NOT NULL,
			full_name VARCHAR(255) NOT NULL,
			password_hash VARCHAR(100) NOT NULL,
			profile_pic TEXT NOT NULL DEFAULT '',
			bio TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	_, err = p.DB.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			sender_id UUID NOT NULL REFERENCES users(id),
			receiver_id UUID NOT NULL REFERENCES users(id),
			text TEXT NOT NULL DEFAULT '',
			image TEXT NOT NULL DEFAULT '',
			seen BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create messages table: %w", err)
	}

	for _, stmt := range []string{
		`CREATE INDEX IF NOT EXISTS idx_messages_pair ON messages(sender_id, receiver_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_unseen ON messages(receiver_id) WHERE NOT seen`,
	} {
		if _, err := p.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create messages index: %w", err)
		}
	}
	return nil
}

// --- User Methods ---

const userColumns = `id, email, full_name, password_hash, profile_pic, bio, created_at, updated_at`

// SaveUser inserts a new user into the database.
func (p *PostgresDB) SaveUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now
	user.Email = strings.ToLower(user.Email)

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES (:id, :email, :full_name, :password_hash, :profile_pic, :bio, :created_at, :updated_at)
	`
	_, err := p.DB.NamedExecContext(ctx, query, user)
	if err != nil {
		// Check for duplicate key violation on email
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return utils.NewAppError(utils.ErrDuplicate, "Account already exists", err)
		}
		return utils.NewStoreError("failed to save user", err)
	}
	return nil
}

// GetUser fetches a user by their ID.
func (p *PostgresDB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	err := p.DB.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewUserNotFoundError(id.String())
		}
		return nil, utils.NewStoreError("failed to query user by id", err)
	}
	return &user, nil
}

// GetUserByEmail fetches a user by their email address.
func (p *PostgresDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := p.DB.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewUserNotFoundError(email)
		}
		return nil, utils.NewStoreError("failed to query user by email", err)
	}
	return &user, nil
}

// ListUsersExcept fetches every user but one, ordered by name.
func (p *PostgresDB) ListUsersExcept(ctx context.Context, id uuid.UUID) ([]*models.User, error) {
	users := make([]*models.User, 0)
	err := p.DB.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users WHERE id <> $1 ORDER BY full_name`, id)
	if err != nil {
		return nil, utils.NewStoreError("failed to list users", err)
	}
	return users, nil
}

// UpdateProfile updates name and bio, and the picture when one is given.
func (p *PostgresDB) UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (*models.User, error) {
	query := `
		UPDATE users
		SET full_name = $2,
			bio = $3,
			profile_pic = CASE WHEN $4::text = '' THEN profile_pic ELSE $4::text END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns
	var user models.User
	err := p.DB.GetContext(ctx, &user, query, id, update.FullName, update.Bio, update.ProfilePic)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, utils.NewUserNotFoundError(id.String())
		}
		return nil, utils.NewStoreError("failed to update profile", err)
	}
	return &user, nil
}

// --- Message Methods ---

const messageColumns = `id, sender_id, receiver_id, text, image, seen, created_at`

// CreateMessage inserts a new direct message.
func (p *PostgresDB) CreateMessage(ctx context.Context, msg *models.Message) error {
	query := `
		INSERT INTO messages (` + messageColumns + `)
		VALUES (:id, :sender_id, :receiver_id, :text, :image, :seen, :created_at)
	`
	if _, err := p.DB.NamedExecContext(ctx, query, msg); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "foreign_key_violation" {
			return utils.NewAppError(utils.ErrUserNotFound, "unknown sender or receiver", err)
		}
		return utils.NewStoreError("failed to save message", err)
	}
	return nil
}

// FindConversation fetches the messages exchanged by two users, oldest first.
func (p *PostgresDB) FindConversation(ctx context.Context, a, b uuid.UUID) ([]*models.Message, error) {
	query := `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC, id ASC
	`
	messages := make([]*models.Message, 0)
	if err := p.DB.SelectContext(ctx, &messages, query, a, b); err != nil {
		return nil, utils.NewStoreError("failed to query conversation", err)
	}
	return messages, nil
}

// MarkConversationSeen flags every unseen message from -> to.
func (p *PostgresDB) MarkConversationSeen(ctx context.Context, from, to uuid.UUID) (int64, error) {
	result, err := p.DB.ExecContext(ctx,
		`UPDATE messages SET seen = TRUE WHERE sender_id = $1 AND receiver_id = $2 AND NOT seen`, from, to)
	if err != nil {
		return 0, utils.NewStoreError("failed to mark conversation seen", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// MarkMessageSeen flags one message as seen.
func (p *PostgresDB) MarkMessageSeen(ctx context.Context, id uuid.UUID) error {
	// Matching on id alone keeps this idempotent: an already seen row still
	// counts as affected.
	result, err := p.DB.ExecContext(ctx, `UPDATE messages SET seen = TRUE WHERE id = $1`, id)
	if err != nil {
		return utils.NewStoreError("failed to mark message seen", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return utils.NewStoreError("failed to read affected rows", err)
	}
	if n == 0 {
		return utils.NewMessageNotFoundError(id.String())
	}
	return nil
}

// CountUnseen groups the viewer's unseen incoming messages by sender.
func (p *PostgresDB) CountUnseen(ctx context.Context, viewer uuid.UUID) (map[uuid.UUID]int, error) {
	var rows []struct {
		SenderID uuid.UUID `db:"sender_id"`
		Count    int       `db:"count"`
	}
	query := `SELECT sender_id, COUNT(*) AS count FROM messages WHERE receiver_id = $1 AND sender_id <> $1 AND NOT seen GROUP BY sender_id`
	if err := p.DB.SelectContext(ctx, &rows, query, viewer); err != nil {
		return nil, utils.NewStoreError("failed to count unseen messages", err)
	}

	counts := make(map[uuid.UUID]int, len(rows))
	for _, row := range rows {
		counts[row.SenderID] = row.Count
	}
	return counts, nil
}
