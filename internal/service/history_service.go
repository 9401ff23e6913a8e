package service

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"chatserver/internal/domain"
)

// HistoryService replays a connecting client's conversation backlog from a
// checkpoint cursor, performs the one-time delivery sweep, and signals
// completion.
type HistoryService struct {
	users    domain.UserRepository
	messages domain.MessageRepository
	notifier Notifier
}

func NewHistoryService(users domain.UserRepository, messages domain.MessageRepository, notifier Notifier) *HistoryService {
	return &HistoryService{users: users, messages: messages, notifier: notifier}
}

// Replay streams every message of the caller's conversation(s) with id
// greater than the checkpoint, ascending, one typed event per message. Any
// replayed message addressed to the caller that is not yet delivered is then
// stamped delivered and its original sender notified. Ends with the
// "history loaded" signal in every case, so the client never hangs in a
// loading state.
func (s *HistoryService) Replay(ctx context.Context, to Sender, checkpoint string) error {
	defer s.notifier.EmitToUser(to.ID, EventHistoryLoaded, nil)

	msgs, err := s.backlog(ctx, to, normalizeCheckpoint(checkpoint))
	if err != nil {
		return err
	}

	for _, m := range msgs {
		s.notifier.EmitToUser(to.ID, EventNameFor(m), NewMessagePayload(m))
	}

	return s.deliverySweep(ctx, to.ID, msgs)
}

func (s *HistoryService) backlog(ctx context.Context, to Sender, checkpoint string) ([]*domain.Message, error) {
	if to.Role == domain.RoleAdmin {
		return s.messages.ListInvolvingSince(ctx, to.ID, checkpoint)
	}

	admin, err := s.users.GetAdmin(ctx)
	if err != nil {
		return nil, fmt.Errorf("get admin: %w", err)
	}
	if admin == nil {
		// No admin seeded yet: the user has no conversation to replay.
		return nil, nil
	}
	return s.messages.ListBetweenSince(ctx, to.ID, admin.ID, checkpoint)
}

// deliverySweep marks replayed messages addressed to this user as delivered
// and tells each original sender which ids flipped.
func (s *HistoryService) deliverySweep(ctx context.Context, userID string, msgs []*domain.Message) error {
	var pending []*domain.Message
	for _, m := range msgs {
		if m.ReceiverID == userID && !m.Delivered {
			pending = append(pending, m)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	ids := make([]string, len(pending))
	for i, m := range pending {
		ids[i] = m.ID
	}
	if err := s.messages.MarkDelivered(ctx, ids); err != nil {
		return err
	}

	for _, m := range pending {
		s.notifier.EmitToUser(m.SenderID, EventMessagesDelivered, MessagesDeliveredPayload{
			MessageIDs: []string{m.ID},
		})
	}
	return nil
}

// normalizeCheckpoint treats anything that is not a valid ObjectID hex as
// "replay from the beginning".
func normalizeCheckpoint(checkpoint string) string {
	if _, err := primitive.ObjectIDFromHex(checkpoint); err != nil {
		return ""
	}
	return checkpoint
}
