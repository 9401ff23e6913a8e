package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"chatserver/internal/domain"
)

// MessageRepo persists messages in the "messages" collection. Ids are
// ObjectID hex strings; since ObjectIDs are creation-ordered, id range
// filters double as checkpoint cursors.
type MessageRepo struct {
	coll *mongo.Collection
}

func NewMessageRepo(db *mongo.Database) *MessageRepo {
	return &MessageRepo{coll: db.Collection(messagesCollection)}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	m.ID = primitive.NewObjectID().Hex()
	m.CreatedAt = time.Now().UTC()
	if _, err := r.coll.InsertOne(ctx, m); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	m := &domain.Message{}
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find message: %w", err)
	}
	return m, nil
}

func (r *MessageRepo) ListByIDs(ctx context.Context, ids []string) ([]*domain.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.list(ctx, bson.M{"_id": bson.M{"$in": ids}})
}

func (r *MessageRepo) ListInvolvingSince(ctx context.Context, participantID, sinceID string) ([]*domain.Message, error) {
	filter := bson.M{
		"$or": bson.A{
			bson.M{"senderId": participantID},
			bson.M{"receiverId": participantID},
		},
	}
	if sinceID != "" {
		filter["_id"] = bson.M{"$gt": sinceID}
	}
	return r.list(ctx, filter)
}

func (r *MessageRepo) ListBetweenSince(ctx context.Context, firstID, secondID, sinceID string) ([]*domain.Message, error) {
	filter := bson.M{
		"$or": bson.A{
			bson.M{"senderId": firstID, "receiverId": secondID},
			bson.M{"senderId": secondID, "receiverId": firstID},
		},
	}
	if sinceID != "" {
		filter["_id"] = bson.M{"$gt": sinceID}
	}
	return r.list(ctx, filter)
}

func (r *MessageRepo) MarkDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}},
		bson.M{"$set": bson.M{"delivered": true}},
	)
	if err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

func (r *MessageRepo) MarkSeenByIDs(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.coll.UpdateMany(ctx,
		bson.M{"_id": bson.M{"$in": ids}, "seen": false},
		seenUpdate(at),
	)
	if err != nil {
		return fmt.Errorf("mark seen by ids: %w", err)
	}
	return nil
}

func (r *MessageRepo) MarkSeenPair(ctx context.Context, senderID, receiverID string, at time.Time) error {
	_, err := r.coll.UpdateMany(ctx,
		bson.M{"senderId": senderID, "receiverId": receiverID, "seen": false},
		seenUpdate(at),
	)
	if err != nil {
		return fmt.Errorf("mark seen pair: %w", err)
	}
	return nil
}

func (r *MessageRepo) ListPairSeen(ctx context.Context, senderID, receiverID string) ([]*domain.Message, error) {
	return r.list(ctx, bson.M{"senderId": senderID, "receiverId": receiverID, "seen": true})
}

// seen implies delivered, so both flags move together.
func seenUpdate(at time.Time) bson.M {
	return bson.M{"$set": bson.M{"seen": true, "seenAt": at.UTC(), "delivered": true}}
}

func (r *MessageRepo) list(ctx context.Context, filter bson.M) ([]*domain.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer cur.Close(ctx)

	var msgs []*domain.Message
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	return msgs, nil
}
