package service_test

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"chatserver/internal/domain"
)

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetAdmin(ctx context.Context) (*domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) ListAll(ctx context.Context) ([]*domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.User), args.Error(1)
}

func (m *MockUserRepo) ListByRole(ctx context.Context, role string) ([]*domain.User, error) {
	args := m.Called(ctx, role)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.User), args.Error(1)
}

func (m *MockUserRepo) SetOnlineStatus(ctx context.Context, id string, isOnline bool) error {
	args := m.Called(ctx, id, isOnline)
	return args.Error(0)
}

type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) ListByIDs(ctx context.Context, ids []string) ([]*domain.Message, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) ListInvolvingSince(ctx context.Context, participantID, sinceID string) ([]*domain.Message, error) {
	args := m.Called(ctx, participantID, sinceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) ListBetweenSince(ctx context.Context, firstID, secondID, sinceID string) ([]*domain.Message, error) {
	args := m.Called(ctx, firstID, secondID, sinceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) MarkDelivered(ctx context.Context, ids []string) error {
	args := m.Called(ctx, ids)
	return args.Error(0)
}

func (m *MockMessageRepo) MarkSeenByIDs(ctx context.Context, ids []string, at time.Time) error {
	args := m.Called(ctx, ids, at)
	return args.Error(0)
}

func (m *MockMessageRepo) MarkSeenPair(ctx context.Context, senderID, receiverID string, at time.Time) error {
	args := m.Called(ctx, senderID, receiverID, at)
	return args.Error(0)
}

func (m *MockMessageRepo) ListPairSeen(ctx context.Context, senderID, receiverID string) ([]*domain.Message, error) {
	args := m.Called(ctx, senderID, receiverID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

// emitted records one notifier emission for assertions.
type emitted struct {
	Target string // user id, room name, or "*" for broadcasts
	Event  string
	Data   any
}

// FakeNotifier is a recording stand-in for the websocket hub.
type FakeNotifier struct {
	MemberCounts map[string]int
	Online       map[string]bool // users reachable by EmitToUser; nil means everyone
	Events       []emitted
}

func NewFakeNotifier() *FakeNotifier {
	return &FakeNotifier{MemberCounts: make(map[string]int)}
}

func (f *FakeNotifier) EmitToRoom(room, event string, data any) {
	f.Events = append(f.Events, emitted{Target: room, Event: event, Data: data})
}

func (f *FakeNotifier) EmitToUser(userID, event string, data any) bool {
	if f.Online != nil && !f.Online[userID] {
		return false
	}
	f.Events = append(f.Events, emitted{Target: userID, Event: event, Data: data})
	return true
}

func (f *FakeNotifier) BroadcastAll(event string, data any) {
	f.Events = append(f.Events, emitted{Target: "*", Event: event, Data: data})
}

func (f *FakeNotifier) MemberCount(room string) int {
	return f.MemberCounts[room]
}

// ByEvent filters recorded emissions by event name.
func (f *FakeNotifier) ByEvent(event string) []emitted {
	var out []emitted
	for _, e := range f.Events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}
