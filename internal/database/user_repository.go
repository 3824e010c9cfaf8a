// internal/database/user_repository.go
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"quickchat/internal/models"
	"quickchat/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// UserDocument represents the MongoDB schema for a user
type UserDocument struct {
	ID             string    `bson:"_id"`
	Email          string    `bson:"email"`
	FullName       string    `bson:"fullName"`
	HashedPassword string    `bson:"password"`
	ProfilePic     string    `bson:"profilePic"`
	Bio            string    `bson:"bio"`
	CreatedAt      time.Time `bson:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt"`
}

func (doc UserDocument) toModel() (*models.User, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, fmt.Errorf("invalid user ID in database: %w", err)
	}
	return &models.User{
		ID:             id,
		Email:          doc.Email,
		FullName:       doc.FullName,
		HashedPassword: doc.HashedPassword,
		ProfilePic:     doc.ProfilePic,
		Bio:            doc.Bio,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}, nil
}

// SaveUser inserts a new user. Emails are unique.
func (m *MongoDB) SaveUser(ctx context.Context, user *models.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	doc := UserDocument{
		ID:             user.ID.String(),
		Email:          strings.ToLower(user.Email),
		FullName:       user.FullName,
		HashedPassword: user.HashedPassword,
		ProfilePic:     user.ProfilePic,
		Bio:            user.Bio,
		CreatedAt:      user.CreatedAt,
		UpdatedAt:      user.UpdatedAt,
	}

	if _, err := m.Users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return utils.NewAppError(utils.ErrDuplicate, "Account already exists", err)
		}
		return utils.NewStoreError("failed to save user", err)
	}
	return nil
}

// GetUser retrieves a user from MongoDB by their ID
func (m *MongoDB) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return m.findOneUser(ctx, bson.M{"_id": id.String()}, id.String())
}

// GetUserByEmail retrieves a user by email address
func (m *MongoDB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return m.findOneUser(ctx, bson.M{"email": strings.ToLower(email)}, email)
}

func (m *MongoDB) findOneUser(ctx context.Context, filter bson.M, key string) (*models.User, error) {
	var doc UserDocument
	err := m.Users.FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewUserNotFoundError(key)
	}
	if err != nil {
		return nil, utils.NewStoreError("failed to query user", err)
	}
	user, err := doc.toModel()
	if err != nil {
		return nil, utils.NewStoreError("failed to decode user", err)
	}
	return user, nil
}

// ListUsersExcept returns every user other than id, ordered by name
func (m *MongoDB) ListUsersExcept(ctx context.Context, id uuid.UUID) ([]*models.User, error) {
	opts := options.Find().SetSort(bson.D{{Key: "fullName", Value: 1}})
	cursor, err := m.Users.Find(ctx, bson.M{"_id": bson.M{"$ne": id.String()}}, opts)
	if err != nil {
		return nil, utils.NewStoreError("failed to list users", err)
	}
	defer cursor.Close(ctx)

	var docs []UserDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, utils.NewStoreError("failed to decode users", err)
	}

	users := make([]*models.User, 0, len(docs))
	for _, doc := range docs {
		user, err := doc.toModel()
		if err != nil {
			m.log.Warnw("skipping user with invalid id", "id", doc.ID)
			continue
		}
		users = append(users, user)
	}
	return users, nil
}

// UpdateProfile applies the profile fields and returns the updated user
func (m *MongoDB) UpdateProfile(ctx context.Context, id uuid.UUID, update models.ProfileUpdate) (*models.User, error) {
	set := bson.M{
		"fullName":  update.FullName,
		"bio":       update.Bio,
		"updatedAt": time.Now().UTC(),
	}
	if update.ProfilePic != "" {
		set["profilePic"] = update.ProfilePic
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc UserDocument
	err := m.Users.FindOneAndUpdate(ctx, bson.M{"_id": id.String()}, bson.M{"$set": set}, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, utils.NewUserNotFoundError(id.String())
	}
	if err != nil {
		return nil, utils.NewStoreError("failed to update profile", err)
	}
	user, err := doc.toModel()
	if err != nil {
		return nil, utils.NewStoreError("failed to decode user", err)
	}
	return user, nil
}
