package database

import (
	"context"
	"time"

	"quickchat/internal/models"
	"quickchat/internal/utils"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageDocument represents the MongoDB document structure for direct messages
type MessageDocument struct {
	ID         string    `bson:"_id"`
	SenderID   string    `bson:"senderId"`
	ReceiverID string    `bson:"receiverId"`
	Text       string    `bson:"text,omitempty"`
	Image      string    `bson:"image,omitempty"`
	Seen       bool      `bson:"seen"`
	CreatedAt  time.Time `bson:"createdAt"`
}

func messageToDocument(msg *models.Message) MessageDocument {
	return MessageDocument{
		ID:         msg.ID.String(),
		SenderID:   msg.SenderID.String(),
		ReceiverID: msg.ReceiverID.String(),
		Text:       msg.Text,
		Image:      msg.Image,
		Seen:       msg.Seen,
		CreatedAt:  msg.CreatedAt,
	}
}

func (doc MessageDocument) toModel() (*models.Message, error) {
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, err
	}
	senderID, err := uuid.Parse(doc.SenderID)
	if err != nil {
		return nil, err
	}
	receiverID, err := uuid.Parse(doc.ReceiverID)
	if err != nil {
		return nil, err
	}
	return &models.Message{
		ID:         id,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       doc.Text,
		Image:      doc.Image,
		Seen:       doc.Seen,
		CreatedAt:  doc.CreatedAt,
	}, nil
}

// CreateMessage saves a new direct message to MongoDB
func (m *MongoDB) CreateMessage(ctx context.Context, msg *models.Message) error {
	if _, err := m.Messages.InsertOne(ctx, messageToDocument(msg)); err != nil {
		return utils.NewStoreError("failed to save message", err)
	}
	return nil
}

// FindConversation retrieves the messages exchanged by two users in creation order
func (m *MongoDB) FindConversation(ctx context.Context, a, b uuid.UUID) ([]*models.Message, error) {
	filter := bson.M{
		"$or": []bson.M{
			{"senderId": a.String(), "receiverId": b.String()},
			{"senderId": b.String(), "receiverId": a.String()},
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})

	cursor, err := m.Messages.Find(ctx, filter, opts)
	if err != nil {
		return nil, utils.NewStoreError("failed to query conversation", err)
	}
	defer cursor.Close(ctx)

	messages := make([]*models.Message, 0)
	for cursor.Next(ctx) {
		var doc MessageDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, utils.NewStoreError("failed to decode message", err)
		}
		msg, err := doc.toModel()
		if err != nil {
			return nil, utils.NewStoreError("invalid id in message document", err)
		}
		messages = append(messages, msg)
	}
	if err := cursor.Err(); err != nil {
		return nil, utils.NewStoreError("conversation cursor failed", err)
	}
	return messages, nil
}

// MarkConversationSeen flags every unseen message from -> to
func (m *MongoDB) MarkConversationSeen(ctx context.Context, from, to uuid.UUID) (int64, error) {
	filter := bson.M{"senderId": from.String(), "receiverId": to.String(), "seen": false}
	result, err := m.Messages.UpdateMany(ctx, filter, bson.M{"$set": bson.M{"seen": true}})
	if err != nil {
		return 0, utils.NewStoreError("failed to mark conversation seen", err)
	}
	return result.ModifiedCount, nil
}

// MarkMessageSeen flags a single message as seen
func (m *MongoDB) MarkMessageSeen(ctx context.Context, id uuid.UUID) error {
	result, err := m.Messages.UpdateOne(ctx, bson.M{"_id": id.String()}, bson.M{"$set": bson.M{"seen": true}})
	if err != nil {
		return utils.NewStoreError("failed to mark message seen", err)
	}
	if result.MatchedCount == 0 {
		return utils.NewMessageNotFoundError(id.String())
	}
	return nil
}

type unseenGroup struct {
	SenderID string `bson:"_id"`
	Count    int    `bson:"count"`
}

// CountUnseen groups the viewer's unseen incoming messages by sender
func (m *MongoDB) CountUnseen(ctx context.Context, viewer uuid.UUID) (map[uuid.UUID]int, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "receiverId", Value: viewer.String()},
			{Key: "senderId", Value: bson.D{{Key: "$ne", Value: viewer.String()}}},
			{Key: "seen", Value: false},
		}}},
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$senderId"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
	}

	cursor, err := m.Messages.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, utils.NewStoreError("failed to count unseen messages", err)
	}
	defer cursor.Close(ctx)

	var groups []unseenGroup
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, utils.NewStoreError("failed to decode unseen counts", err)
	}

	counts := make(map[uuid.UUID]int, len(groups))
	for _, g := range groups {
		senderID, err := uuid.Parse(g.SenderID)
		if err != nil {
			m.log.Warnw("skipping unseen group with invalid sender id", "senderId", g.SenderID)
			continue
		}
		if g.Count > 0 {
			counts[senderID] = g.Count
		}
	}
	return counts, nil
}
