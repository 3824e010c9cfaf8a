package actors

import (
	"testing"
	"time"

	"quickchat/internal/database"
	"quickchat/internal/models"
	"quickchat/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"
)

func TestUserAuthentication(t *testing.T) {
	// Create the actor system
	system := actor.NewActorSystem()
	db := database.NewMemoryDB()

	// Create a new user actor
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewUserActor(db, bcrypt.MinCost, time.Second, zaptest.NewLogger(t).Sugar())
	})

	pid := system.Root.Spawn(props)
	defer system.Root.Stop(pid)

	// Step 1: Register a new user
	regResult, err := system.Root.RequestFuture(pid, &RegisterUserMsg{
		FullName: "Test User",
		Email:    "Test@Example.com",
		Password: "password123",
		Bio:      "hello",
	}, 5*time.Second).Result()
	require.NoError(t, err)

	user, ok := regResult.(*models.User)
	require.True(t, ok, "expected *models.User, got %T", regResult)
	assert.Equal(t, "Test User", user.FullName)
	assert.Equal(t, "test@example.com", user.Email)
	assert.NotEqual(t, "password123", user.HashedPassword)

	// Step 2: Registering the same email again fails
	dupResult, err := system.Root.RequestFuture(pid, &RegisterUserMsg{
		FullName: "Other",
		Email:    "test@example.com",
		Password: "x",
		Bio:      "y",
	}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.True(t, utils.IsErrorCode(dupResult.(*utils.AppError), utils.ErrDuplicate))

	// Step 3: Try logging in
	loginResult, err := system.Root.RequestFuture(pid, &LoginMsg{
		Email:    "test@example.com",
		Password: "password123",
	}, 5*time.Second).Result()
	require.NoError(t, err)

	loggedIn, ok := loginResult.(*models.User)
	require.True(t, ok, "expected *models.User, got %T", loginResult)
	assert.Equal(t, user.ID, loggedIn.ID)

	// Step 4: Test invalid logins
	for _, bad := range []*LoginMsg{
		{Email: "test@example.com", Password: "wrongpassword"},
		{Email: "nobody@example.com", Password: "password123"},
	} {
		badResult, err := system.Root.RequestFuture(pid, bad, 5*time.Second).Result()
		require.NoError(t, err)
		appErr, ok := badResult.(*utils.AppError)
		require.True(t, ok)
		assert.Equal(t, utils.ErrInvalidCredentials, appErr.Code)
		assert.Equal(t, "Invalid credentials", appErr.Message)
	}
}

func TestRegisterRequiresAllFields(t *testing.T) {
	system := actor.NewActorSystem()
	pid := system.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewUserActor(database.NewMemoryDB(), bcrypt.MinCost, time.Second, zaptest.NewLogger(t).Sugar())
	}))
	defer system.Root.Stop(pid)

	result, err := system.Root.RequestFuture(pid, &RegisterUserMsg{
		FullName: "No Bio",
		Email:    "nobio@example.com",
		Password: "secret",
	}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.True(t, utils.IsErrorCode(result.(*utils.AppError), utils.ErrInvalidInput))
}

func TestUpdateProfile(t *testing.T) {
	system := actor.NewActorSystem()
	db := database.NewMemoryDB()
	pid := system.Root.Spawn(actor.PropsFromProducer(func() actor.Actor {
		return NewUserActor(db, bcrypt.MinCost, time.Second, zaptest.NewLogger(t).Sugar())
	}))
	defer system.Root.Stop(pid)

	result, err := system.Root.RequestFuture(pid, &RegisterUserMsg{
		FullName: "Before", Email: "p@example.com", Password: "pw", Bio: "old",
	}, 5*time.Second).Result()
	require.NoError(t, err)
	user := result.(*models.User)

	result, err = system.Root.RequestFuture(pid, &UpdateProfileMsg{
		UserID: user.ID, FullName: "After", Bio: "new", ProfilePic: "https://img/p.png",
	}, 5*time.Second).Result()
	require.NoError(t, err)
	updated := result.(*models.User)
	assert.Equal(t, "After", updated.FullName)
	assert.Equal(t, "new", updated.Bio)
	assert.Equal(t, "https://img/p.png", updated.ProfilePic)

	result, err = system.Root.RequestFuture(pid, &ListUsersMsg{ExceptID: user.ID}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.Empty(t, result)

	result, err = system.Root.RequestFuture(pid, &GetUserProfileMsg{UserID: user.ID}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.Equal(t, "After", result.(*models.User).FullName)
}
