package actors

import (
	"context"
	"sync"
	"testing"
	"time"

	"quickchat/internal/database"
	"quickchat/internal/models"
	"quickchat/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingDispatcher struct {
	mu   sync.Mutex
	sent []*models.Message
}

func (d *recordingDispatcher) Dispatch(msg *models.Message) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, msg)
	return true
}

func seedUsers(t *testing.T, db *database.MemoryDB, names ...string) []uuid.UUID {
	t.Helper()
	ids := make([]uuid.UUID, len(names))
	for i, name := range names {
		ids[i] = uuid.New()
		require.NoError(t, db.SaveUser(context.Background(), &models.User{ID: ids[i], Email: name + "@example.com", FullName: name}))
	}
	return ids
}

func spawnMessageActor(t *testing.T, db *database.MemoryDB, d Dispatcher) (*actor.ActorSystem, *actor.PID) {
	system := actor.NewActorSystem()
	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMessageActor(db, db, d, time.Second, zaptest.NewLogger(t).Sugar())
	})

	pid := system.Root.Spawn(props)
	t.Cleanup(func() { system.Root.Stop(pid) })
	return system, pid
}

func TestMessageActor(t *testing.T) {
	db := database.NewMemoryDB()
	ids := seedUsers(t, db, "alice", "bob")
	alice, bob := ids[0], ids[1]
	dispatcher := &recordingDispatcher{}
	system, pid := spawnMessageActor(t, db, dispatcher)

	// Test creating a message
	future := system.Root.RequestFuture(pid, &CreateMessageMsg{SenderID: alice, ReceiverID: bob, Text: "hi"}, 5*time.Second)
	result, err := future.Result()
	assert.NoError(t, err)

	hi := result.(*models.Message)
	assert.Equal(t, "hi", hi.Text)
	assert.False(t, hi.Seen)
	assert.Equal(t, byte(7), byte(hi.ID.Version()))
	require.Len(t, dispatcher.sent, 1)
	assert.Same(t, hi, dispatcher.sent[0])

	future = system.Root.RequestFuture(pid, &CreateMessageMsg{SenderID: bob, ReceiverID: alice, Text: "yo"}, 5*time.Second)
	_, err = future.Result()
	assert.NoError(t, err)

	// Alice has one unseen message from bob
	future = system.Root.RequestFuture(pid, &UnseenCountsMsg{ViewerID: alice}, 5*time.Second)
	result, err = future.Result()
	assert.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int{bob: 1}, result)

	// Opening the thread lists both messages in order and clears alice's count
	future = system.Root.RequestFuture(pid, &OpenConversationMsg{ViewerID: alice, OtherID: bob}, 5*time.Second)
	result, err = future.Result()
	assert.NoError(t, err)

	thread := result.([]*models.Message)
	require.Len(t, thread, 2)
	assert.Equal(t, "hi", thread[0].Text)
	assert.Equal(t, "yo", thread[1].Text)

	future = system.Root.RequestFuture(pid, &UnseenCountsMsg{ViewerID: alice}, 5*time.Second)
	result, err = future.Result()
	assert.NoError(t, err)
	assert.Empty(t, result)

	// Bob has not opened the thread yet
	future = system.Root.RequestFuture(pid, &UnseenCountsMsg{ViewerID: bob}, 5*time.Second)
	result, err = future.Result()
	assert.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]int{alice: 1}, result)

	// Marking a single message
	future = system.Root.RequestFuture(pid, &MarkSeenMsg{MessageID: hi.ID}, 5*time.Second)
	result, err = future.Result()
	assert.NoError(t, err)
	assert.Equal(t, true, result)

	future = system.Root.RequestFuture(pid, &UnseenCountsMsg{ViewerID: bob}, 5*time.Second)
	result, err = future.Result()
	assert.NoError(t, err)
	assert.Empty(t, result)
}

func TestMessageActorValidation(t *testing.T) {
	db := database.NewMemoryDB()
	ids := seedUsers(t, db, "alice")
	dispatcher := &recordingDispatcher{}
	system, pid := spawnMessageActor(t, db, dispatcher)

	cases := []struct {
		name string
		msg  *CreateMessageMsg
		code string
	}{
		{"empty content", &CreateMessageMsg{SenderID: ids[0], ReceiverID: ids[0], Text: "   "}, utils.ErrInvalidInput},
		{"missing receiver", &CreateMessageMsg{SenderID: ids[0], Text: "hi"}, utils.ErrInvalidInput},
		{"unknown receiver", &CreateMessageMsg{SenderID: ids[0], ReceiverID: uuid.New(), Text: "hi"}, utils.ErrUserNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := system.Root.RequestFuture(pid, tc.msg, 5*time.Second).Result()
			require.NoError(t, err)
			appErr, ok := result.(*utils.AppError)
			require.True(t, ok, "expected AppError, got %T", result)
			assert.Equal(t, tc.code, appErr.Code)
		})
	}
	assert.Empty(t, dispatcher.sent, "rejected messages are never pushed")
}

func TestMessageActorImageOnly(t *testing.T) {
	db := database.NewMemoryDB()
	ids := seedUsers(t, db, "alice", "bob")
	system, pid := spawnMessageActor(t, db, nil)

	result, err := system.Root.RequestFuture(pid, &CreateMessageMsg{
		SenderID:   ids[0],
		ReceiverID: ids[1],
		Image:      "https://cdn.example.com/cat.png",
	}, 5*time.Second).Result()
	require.NoError(t, err)

	msg := result.(*models.Message)
	assert.Empty(t, msg.Text)
	assert.Equal(t, "https://cdn.example.com/cat.png", msg.Image)
}

func TestMessageActorMarkUnknown(t *testing.T) {
	system, pid := spawnMessageActor(t, database.NewMemoryDB(), nil)

	result, err := system.Root.RequestFuture(pid, &MarkSeenMsg{MessageID: uuid.New()}, 5*time.Second).Result()
	require.NoError(t, err)
	assert.True(t, utils.IsErrorCode(result.(*utils.AppError), utils.ErrMessageNotFound))
}
