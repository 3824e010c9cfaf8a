// Package engine is the service layer consumed by HTTP and websocket
// handlers. It owns the actors and exposes typed calls over their futures.
package engine

import (
	"context"
	"time"

	"quickchat/internal/database"
	"quickchat/internal/engine/actors"
	"quickchat/internal/models"
	"quickchat/internal/presence"
	"quickchat/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Options configures NewEngine.
type Options struct {
	Store          database.Store
	Dispatcher     actors.Dispatcher
	Registry       *presence.Registry
	Metrics        *utils.MetricsCollector
	RequestTimeout time.Duration
	StoreTimeout   time.Duration
	PasswordCost   int
	Log            *zap.SugaredLogger
}

// Engine coordinates communication between actors
type Engine struct {
	system       *actor.ActorSystem
	messageActor *actor.PID
	userActor    *actor.PID
	registry     *presence.Registry
	metrics      *utils.MetricsCollector
	timeout      time.Duration
	log          *zap.SugaredLogger
}

func NewEngine(system *actor.ActorSystem, opts Options) *Engine {
	context := system.Root
	log := opts.Log.With("component", "engine")

	metrics := opts.Metrics
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	// Spawn message actor
	messageProps := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewMessageActor(opts.Store, opts.Store, opts.Dispatcher, opts.StoreTimeout, opts.Log)
	})
	messagePID := context.Spawn(messageProps)

	// Spawn user actor
	userProps := actor.PropsFromProducer(func() actor.Actor {
		return actors.NewUserActor(opts.Store, opts.PasswordCost, opts.StoreTimeout, opts.Log)
	})
	userPID := context.Spawn(userProps)

	log.Infow("engine started", "messageActor", messagePID.Id, "userActor", userPID.Id)

	return &Engine{
		system:       system,
		messageActor: messagePID,
		userActor:    userPID,
		registry:     opts.Registry,
		metrics:      metrics,
		timeout:      timeout,
		log:          log,
	}
}

// request sends msg to pid and waits for a T. Actor timeouts and AppError
// replies come back as errors.
func request[T any](ctx context.Context, e *Engine, pid *actor.PID, operation string, msg interface{}) (T, error) {
	var zero T

	timeout := e.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		e.metrics.IncrementErrors(utils.ErrActorTimeout)
		return zero, utils.NewActorTimeoutError(operation, ctx.Err())
	}

	startTime := time.Now()
	result, err := e.system.Root.RequestFuture(pid, msg, timeout).Result()
	e.metrics.AddOperationLatency(operation, time.Since(startTime))
	if err != nil {
		e.log.Warnw("actor request failed", "operation", operation, "error", err)
		e.metrics.IncrementErrors(utils.ErrActorTimeout)
		return zero, utils.NewActorTimeoutError(operation, err)
	}

	if appErr, ok := result.(*utils.AppError); ok {
		e.metrics.IncrementErrors(appErr.Code)
		return zero, appErr
	}
	typed, ok := result.(T)
	if !ok {
		e.log.Errorw("unexpected actor response", "operation", operation, "type", result)
		return zero, utils.NewAppError(utils.ErrDatabase, "unexpected response from "+operation, nil)
	}
	return typed, nil
}

// --- Messages ---

// CreateMessage validates, stores and pushes a message from sender to
// receiver.
func (e *Engine) CreateMessage(ctx context.Context, senderID, receiverID uuid.UUID, text, image string) (*models.Message, error) {
	return request[*models.Message](ctx, e, e.messageActor, "create_message", &actors.CreateMessageMsg{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Image:      image,
	})
}

// OpenConversation returns the thread between viewer and other and marks
// every message other sent to viewer as seen. The returned messages carry
// their seen flags from before the mark.
func (e *Engine) OpenConversation(ctx context.Context, viewerID, otherID uuid.UUID) ([]*models.Message, error) {
	return request[[]*models.Message](ctx, e, e.messageActor, "open_conversation", &actors.OpenConversationMsg{
		ViewerID: viewerID,
		OtherID:  otherID,
	})
}

// ListConversation returns the thread between a and b without side effects.
func (e *Engine) ListConversation(ctx context.Context, a, b uuid.UUID) ([]*models.Message, error) {
	return request[[]*models.Message](ctx, e, e.messageActor, "list_conversation", &actors.ListConversationMsg{
		UserID1: a,
		UserID2: b,
	})
}

// MarkSeen flags one message as seen.
func (e *Engine) MarkSeen(ctx context.Context, messageID uuid.UUID) error {
	_, err := request[bool](ctx, e, e.messageActor, "mark_seen", &actors.MarkSeenMsg{MessageID: messageID})
	return err
}

// UnseenCounts maps sender to the number of unseen messages viewer received.
func (e *Engine) UnseenCounts(ctx context.Context, viewerID uuid.UUID) (map[uuid.UUID]int, error) {
	return request[map[uuid.UUID]int](ctx, e, e.messageActor, "unseen_counts", &actors.UnseenCountsMsg{ViewerID: viewerID})
}

// OnlineUserIDs returns a sorted snapshot of connected users.
func (e *Engine) OnlineUserIDs() []uuid.UUID {
	if e.registry == nil {
		return []uuid.UUID{}
	}
	return e.registry.OnlineUserIDs()
}

// --- Users ---

func (e *Engine) Register(ctx context.Context, fullName, email, password, bio string) (*models.User, error) {
	return request[*models.User](ctx, e, e.userActor, "register_user", &actors.RegisterUserMsg{
		FullName: fullName,
		Email:    email,
		Password: password,
		Bio:      bio,
	})
}

func (e *Engine) Login(ctx context.Context, email, password string) (*models.User, error) {
	return request[*models.User](ctx, e, e.userActor, "login", &actors.LoginMsg{Email: email, Password: password})
}

func (e *Engine) GetUser(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	return request[*models.User](ctx, e, e.userActor, "get_user", &actors.GetUserProfileMsg{UserID: userID})
}

func (e *Engine) UpdateProfile(ctx context.Context, userID uuid.UUID, update models.ProfileUpdate) (*models.User, error) {
	return request[*models.User](ctx, e, e.userActor, "update_profile", &actors.UpdateProfileMsg{
		UserID:     userID,
		FullName:   update.FullName,
		Bio:        update.Bio,
		ProfilePic: update.ProfilePic,
	})
}

// ListUsers returns every user except the given one, ordered by name.
func (e *Engine) ListUsers(ctx context.Context, exceptID uuid.UUID) ([]*models.User, error) {
	return request[[]*models.User](ctx, e, e.userActor, "list_users", &actors.ListUsersMsg{ExceptID: exceptID})
}

// Shutdown stops both actors after their mailboxes drain.
func (e *Engine) Shutdown() {
	for _, pid := range []*actor.PID{e.messageActor, e.userActor} {
		if err := e.system.Root.PoisonFuture(pid).Wait(); err != nil {
			e.log.Warnw("actor did not stop cleanly", "pid", pid.Id, "error", err)
		}
	}
	e.log.Info("engine stopped")
}
