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
)

// Message types for MessageActor
type (
	CreateMessageMsg struct {
		SenderID   uuid.UUID
		ReceiverID uuid.UUID
		Text       string
		Image      string
	}

	// OpenConversationMsg lists the thread and then marks everything Other
	// sent to Viewer as seen.
	OpenConversationMsg struct {
		ViewerID uuid.UUID
		OtherID  uuid.UUID
	}

	ListConversationMsg struct {
		UserID1 uuid.UUID
		UserID2 uuid.UUID
	}

	MarkSeenMsg struct {
		MessageID uuid.UUID
	}

	UnseenCountsMsg struct {
		ViewerID uuid.UUID
	}
)

// Dispatcher pushes a stored message to its receiver's live session.
type Dispatcher interface {
	Dispatch(msg *models.Message) bool
}

// MessageActor serializes message operations against the store and hands
// every created message to the dispatcher.
type MessageActor struct {
	messages     database.MessageRepository
	users        database.UserRepository
	dispatcher   Dispatcher
	storeTimeout time.Duration
	log          *zap.SugaredLogger
}

// NewMessageActor builds the actor. users and dispatcher may be nil: without
// users the receiver is not checked, without a dispatcher nothing is pushed.
func NewMessageActor(messages database.MessageRepository, users database.UserRepository, dispatcher Dispatcher, storeTimeout time.Duration, log *zap.SugaredLogger) *MessageActor {
	if storeTimeout <= 0 {
		storeTimeout = 5 * time.Second
	}
	return &MessageActor{
		messages:     messages,
		users:        users,
		dispatcher:   dispatcher,
		storeTimeout: storeTimeout,
		log:          log.With("component", "message_actor"),
	}
}

func (a *MessageActor) Receive(context actor.Context) {
	switch msg := context.Message().(type) {
	case *CreateMessageMsg:
		a.handleCreateMessage(context, msg)
	case *OpenConversationMsg:
		a.handleOpenConversation(context, msg)
	case *ListConversationMsg:
		a.handleListConversation(context, msg)
	case *MarkSeenMsg:
		a.handleMarkSeen(context, msg)
	case *UnseenCountsMsg:
		a.handleUnseenCounts(context, msg)
	}
}

func (a *MessageActor) handleCreateMessage(context actor.Context, msg *CreateMessageMsg) {
	if msg.SenderID == uuid.Nil || msg.ReceiverID == uuid.Nil {
		context.Respond(utils.NewValidationError("sender and receiver are required"))
		return
	}
	if strings.TrimSpace(msg.Text) == "" && strings.TrimSpace(msg.Image) == "" {
		context.Respond(utils.NewValidationError("message needs text or an image"))
		return
	}

	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.storeTimeout)
	defer cancel()

	if a.users != nil {
		if _, err := a.users.GetUser(ctx, msg.ReceiverID); err != nil {
			context.Respond(utils.AsAppError(err))
			return
		}
	}

	id, err := uuid.NewV7()
	if err != nil {
		context.Respond(utils.NewAppError(utils.ErrDatabase, "failed to generate message id", err))
		return
	}
	newMessage := &models.Message{
		ID:         id,
		SenderID:   msg.SenderID,
		ReceiverID: msg.ReceiverID,
		Text:       msg.Text,
		Image:      strings.TrimSpace(msg.Image),
		// Millisecond precision survives a round trip through every backend.
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}

	if err := a.messages.CreateMessage(ctx, newMessage); err != nil {
		a.log.Errorw("failed to store message", "senderId", msg.SenderID, "receiverId", msg.ReceiverID, "error", err)
		context.Respond(utils.AsAppError(err))
		return
	}

	a.log.Debugw("message stored", "messageId", newMessage.ID, "senderId", msg.SenderID, "receiverId", msg.ReceiverID)
	if a.dispatcher != nil {
		a.dispatcher.Dispatch(newMessage)
	}
	context.Respond(newMessage)
}

func (a *MessageActor) handleOpenConversation(context actor.Context, msg *OpenConversationMsg) {
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.storeTimeout)
	defer cancel()

	messages, err := a.messages.FindConversation(ctx, msg.ViewerID, msg.OtherID)
	if err != nil {
		context.Respond(utils.AsAppError(err))
		return
	}

	// The listing above is returned as read, before the marks below apply.
	marked, err := a.messages.MarkConversationSeen(ctx, msg.OtherID, msg.ViewerID)
	if err != nil {
		context.Respond(utils.AsAppError(err))
		return
	}
	if marked > 0 {
		a.log.Debugw("conversation marked seen", "viewerId", msg.ViewerID, "otherId", msg.OtherID, "count", marked)
	}
	context.Respond(messages)
}

func (a *MessageActor) handleListConversation(context actor.Context, msg *ListConversationMsg) {
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.storeTimeout)
	defer cancel()

	messages, err := a.messages.FindConversation(ctx, msg.UserID1, msg.UserID2)
	if err != nil {
		context.Respond(utils.AsAppError(err))
		return
	}
	context.Respond(messages)
}

func (a *MessageActor) handleMarkSeen(context actor.Context, msg *MarkSeenMsg) {
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.storeTimeout)
	defer cancel()

	if err := a.messages.MarkMessageSeen(ctx, msg.MessageID); err != nil {
		context.Respond(utils.AsAppError(err))
		return
	}
	context.Respond(true)
}

func (a *MessageActor) handleUnseenCounts(context actor.Context, msg *UnseenCountsMsg) {
	ctx, cancel := stdctx.WithTimeout(stdctx.Background(), a.storeTimeout)
	defer cancel()

	counts, err := a.messages.CountUnseen(ctx, msg.ViewerID)
	if err != nil {
		context.Respond(utils.AsAppError(err))
		return
	}
	context.Respond(counts)
}
