package actors

import (
	stdctx "context"
	"strings"
	"time"

	"quickchat/internal/database"
	"quickchat/internal/models"
	"quickchat/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Message types for UserActor
type (
	RegisterUserMsg struct {
		FullName string
		Email    string
		Password string
		Bio      string
	}

	LoginMsg struct {
		Email    string
		Password string
	}

	GetUserProfileMsg struct {
		UserID uuid.UUID
	}

	UpdateProfileMsg struct {
		UserID     uuid.UUID
		FullName   string
		Bio        string
		ProfilePic string
	}

	ListUsersMsg struct {
		ExceptID uuid.UUID
	}
)

// UserActor owns account operations. Password hashes never leave it except
// inside the stored user.
type UserActor struct {
	users        database.UserRepository
	passwordCost int
	storeTimeout time.Duration
	log          *zap.SugaredLogger
}

// NewUserActor builds the actor. A zero passwordCost selects bcrypt's default.
func NewUserActor(users database.UserRepository, passwordCost int, storeTimeout time.Duration, log *zap.SugaredLogger) *UserActor {
	if passwordCost == 0 {
		passwordCost = bcrypt.DefaultCost
	}
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &UserActor{
		users:        users,
		passwordCost: passwordCost,
		storeTimeout: storeTimeout,
		log:          log.With("component", "user_actor"),
	}
}

func (a *UserActor) hashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), a.passwordCost)
	return string(bytes), err
}

func (a *UserActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *RegisterUserMsg:
		ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.storeTimeout)
		defer cancel()

		if strings.TrimSpace(msg.FullName) == "" || strings.TrimSpace(msg.Email) == "" ||
			msg.Password == "" || strings.TrimSpace(msg.Bio) == "" {
			context.Respond(utils.NewValidationError("Missing Details"))
			return
		}

		// Hash password before storing
		hashedPassword, err := a.hashPassword(msg.Password)
		if err != nil {
			context.Respond(utils.NewAppError(utils.ErrInvalidInput, "Failed to hash password", err))
			return
		}

		user := &models.User{
			ID:             uuid.New(),
			Email:          strings.TrimSpace(msg.Email),
			FullName:       strings.TrimSpace(msg.FullName),
			HashedPassword: hashedPassword,
			Bio:            msg.Bio,
		}
		if err := a.users.SaveUser(ctx, user); err != nil {
			if !utils.IsErrorCode(err, utils.ErrDuplicate) {
				a.log.Errorw("failed to save user", "error", err)
			}
			context.Respond(utils.AsAppError(err))
			return
		}

		a.log.Infow("user registered", "userId", user.ID)
		context.Respond(user)

	case *LoginMsg:
		ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.storeTimeout)
		defer cancel()

		user, err := a.users.GetUserByEmail(ctx, strings.TrimSpace(msg.Email))
		if err != nil {
			if utils.IsNotFound(err) {
				context.Respond(utils.NewAppError(utils.ErrInvalidCredentials, "Invalid credentials", nil))
				return
			}
			context.Respond(utils.AsAppError(err))
			return
		}

		// Verify password
		if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(msg.Password)); err != nil {
			a.log.Debugw("login rejected", "userId", user.ID)
			context.Respond(utils.NewAppError(utils.ErrInvalidCredentials, "Invalid credentials", nil))
			return
		}

		a.log.Infow("login successful", "userId", user.ID)
		context.Respond(user)

	case *GetUserProfileMsg:
		ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.storeTimeout)
		defer cancel()

		user, err := a.users.GetUser(ctx, msg.UserID)
		if err != nil {
			context.Respond(utils.AsAppError(err))
			return
		}
		context.Respond(user)

	case *UpdateProfileMsg:
		ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.storeTimeout)
		defer cancel()

		if strings.TrimSpace(msg.FullName) == "" {
			context.Respond(utils.NewValidationError("fullName is required"))
			return
		}
		user, err := a.users.UpdateProfile(ctx, msg.UserID, models.ProfileUpdate{
			FullName:   strings.TrimSpace(msg.FullName),
			Bio:        msg.Bio,
			ProfilePic: strings.TrimSpace(msg.ProfilePic),
		})
		if err != nil {
			context.Respond(utils.AsAppError(err))
			return
		}
		context.Respond(user)

	case *ListUsersMsg:
		ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.storeTimeout)
		defer cancel()

		users, err := a.users.ListUsersExcept(ctx, msg.ExceptID)
		if err != nil {
			context.Respond(utils.AsAppError(err))
			return
		}
		context.Respond(users)
	}
}
