package domain

import (
	"context"
	"time"
)

// UserRepository defines persistence operations for users.
// Lookups return (nil, nil) when no matching user exists.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// GetAdmin returns the single admin account, or nil if none was seeded.
	GetAdmin(ctx context.Context) (*User, error)
	ListAll(ctx context.Context) ([]*User, error)
	ListByRole(ctx context.Context, role string) ([]*User, error)
	// SetOnlineStatus flips the online flag and stamps lastSeen.
	SetOnlineStatus(ctx context.Context, id string, isOnline bool) error
}

// MessageRepository defines persistence operations for messages. Message ids
// are ObjectID hex strings, so id ordering is creation ordering regardless of
// the backing store.
type MessageRepository interface {
	// Create assigns the id and creation timestamp.
	Create(ctx context.Context, m *Message) error
	GetByID(ctx context.Context, id string) (*Message, error)
	ListByIDs(ctx context.Context, ids []string) ([]*Message, error)

	// ListInvolvingSince returns messages where the participant is sender or
	// receiver, with id strictly greater than sinceID (empty = from the
	// beginning), in ascending id order.
	ListInvolvingSince(ctx context.Context, participantID, sinceID string) ([]*Message, error)
	// ListBetweenSince is the pair-scoped equivalent, covering both
	// directions between the two participants.
	ListBetweenSince(ctx context.Context, firstID, secondID, sinceID string) ([]*Message, error)

	// MarkDelivered sets delivered=true for the given ids. Idempotent.
	MarkDelivered(ctx context.Context, ids []string) error
	// MarkSeenByIDs sets seen, seenAt and delivered on the not-yet-seen
	// messages among ids. Idempotent; already-seen rows are untouched.
	MarkSeenByIDs(ctx context.Context, ids []string, at time.Time) error
	// MarkSeenPair does the same for every unseen message from sender to
	// receiver.
	MarkSeenPair(ctx context.Context, senderID, receiverID string, at time.Time) error
	// ListPairSeen returns all seen messages from sender to receiver, used to
	// report the full set of seen ids back to the sender.
	ListPairSeen(ctx context.Context, senderID, receiverID string) ([]*Message, error)
}
