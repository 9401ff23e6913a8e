package service_test

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatserver/internal/domain"
	"chatserver/internal/service"
)

var (
	admin = &domain.User{ID: "64a000000000000000000001", Name: "Admin", Role: domain.RoleAdmin}
	alice = &domain.User{ID: "64a000000000000000000002", Name: "Alice", Role: domain.RoleUser}
	bob   = &domain.User{ID: "64a000000000000000000003", Name: "Bob", Role: domain.RoleUser}
)

func TestChannelName(t *testing.T) {
	name := service.ChannelName(admin.ID, alice.ID)
	assert.Equal(t, "admin_"+admin.ID+"_user_"+alice.ID, name)

	// Deterministic regardless of caller perspective and across calls.
	assert.Equal(t, name, service.ChannelName(admin.ID, alice.ID))
}

func TestSendText(t *testing.T) {
	channel := service.ChannelName(admin.ID, alice.ID)

	t.Run("DeliveredWhenBothInChannel", func(t *testing.T) {
		users := new(MockUserRepo)
		msgs := new(MockMessageRepo)
		notifier := NewFakeNotifier()
		notifier.MemberCounts[channel] = 2
		svc := service.NewChatService(users, msgs, notifier, 50<<20)

		users.On("GetByID", mock.Anything, alice.ID).Return(alice, nil)
		msgs.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool {
			return m.Content == "hello" && m.Delivered && m.ReceiverID == alice.ID
		})).Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Message).ID = "64a0000000000000000000aa"
		}).Return(nil)

		payload, err := svc.SendText(context.Background(), sender(admin), service.TextMessageInput{
			Content:    "hello",
			ReceiverID: alice.ID,
		})
		require.NoError(t, err)
		assert.True(t, payload.Delivered)

		events := notifier.ByEvent(service.EventChatMessage)
		require.Len(t, events, 1)
		assert.Equal(t, channel, events[0].Target)
	})

	t.Run("NotDeliveredWhenReceiverAbsent", func(t *testing.T) {
		users := new(MockUserRepo)
		msgs := new(MockMessageRepo)
		notifier := NewFakeNotifier()
		notifier.MemberCounts[channel] = 1
		svc := service.NewChatService(users, msgs, notifier, 50<<20)

		users.On("GetByID", mock.Anything, alice.ID).Return(alice, nil)
		msgs.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool {
			return !m.Delivered
		})).Return(nil)

		payload, err := svc.SendText(context.Background(), sender(admin), service.TextMessageInput{
			Content:    "anyone there?",
			ReceiverID: alice.ID,
		})
		require.NoError(t, err)
		assert.False(t, payload.Delivered)
	})

	t.Run("UserAlwaysTalksToAdmin", func(t *testing.T) {
		users := new(MockUserRepo)
		msgs := new(MockMessageRepo)
		notifier := NewFakeNotifier()
		svc := service.NewChatService(users, msgs, notifier, 50<<20)

		users.On("GetAdmin", mock.Anything).Return(admin, nil)
		msgs.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool {
			return m.ReceiverID == admin.ID
		})).Return(nil)

		// Whatever receiver id the client sent, a user's counterpart is the
		// admin.
		_, err := svc.SendText(context.Background(), sender(alice), service.TextMessageInput{
			Content:    "hi",
			ReceiverID: bob.ID,
		})
		require.NoError(t, err)
	})

	t.Run("AdminMustSpecifyReceiver", func(t *testing.T) {
		svc := service.NewChatService(new(MockUserRepo), new(MockMessageRepo), NewFakeNotifier(), 50<<20)

		_, err := svc.SendText(context.Background(), sender(admin), service.TextMessageInput{Content: "hi"})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("NoAdminExists", func(t *testing.T) {
		users := new(MockUserRepo)
		users.On("GetAdmin", mock.Anything).Return(nil, nil)
		svc := service.NewChatService(users, new(MockMessageRepo), NewFakeNotifier(), 50<<20)

		_, err := svc.SendText(context.Background(), sender(alice), service.TextMessageInput{Content: "hi"})
		assert.ErrorIs(t, err, domain.ErrResolution)
	})

	t.Run("EmptyContent", func(t *testing.T) {
		svc := service.NewChatService(new(MockUserRepo), new(MockMessageRepo), NewFakeNotifier(), 50<<20)

		_, err := svc.SendText(context.Background(), sender(admin), service.TextMessageInput{
			Content:    "   ",
			ReceiverID: alice.ID,
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})
}

func TestSendAttachmentValidation(t *testing.T) {
	t.Run("DisallowedVideoType", func(t *testing.T) {
		svc := service.NewChatService(new(MockUserRepo), new(MockMessageRepo), NewFakeNotifier(), 50<<20)

		_, err := svc.SendAttachment(context.Background(), sender(admin), service.AttachmentInput{
			FileName:   "clip.mkv",
			FileType:   "video/x-matroska",
			FileData:   base64.StdEncoding.EncodeToString([]byte("data")),
			ReceiverID: alice.ID,
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("OversizedPayload", func(t *testing.T) {
		svc := service.NewChatService(new(MockUserRepo), new(MockMessageRepo), NewFakeNotifier(), 16)

		_, err := svc.SendAttachment(context.Background(), sender(admin), service.AttachmentInput{
			FileName:   "big.bin",
			FileType:   "application/octet-stream",
			FileData:   base64.StdEncoding.EncodeToString([]byte(strings.Repeat("x", 64))),
			ReceiverID: alice.ID,
		})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("ImageEventName", func(t *testing.T) {
		users := new(MockUserRepo)
		msgs := new(MockMessageRepo)
		notifier := NewFakeNotifier()
		svc := service.NewChatService(users, msgs, notifier, 50<<20)

		users.On("GetByID", mock.Anything, alice.ID).Return(alice, nil)
		msgs.On("Create", mock.Anything, mock.Anything).Return(nil)

		_, err := svc.SendAttachment(context.Background(), sender(admin), service.AttachmentInput{
			FileName:   "photo.png",
			FileType:   "image/png",
			FileData:   base64.StdEncoding.EncodeToString([]byte("png")),
			ReceiverID: alice.ID,
		})
		require.NoError(t, err)
		assert.Len(t, notifier.ByEvent(service.EventImageReceived), 1)
	})
}

func TestSendVoiceClampsDuration(t *testing.T) {
	users := new(MockUserRepo)
	msgs := new(MockMessageRepo)
	svc := service.NewChatService(users, msgs, NewFakeNotifier(), 50<<20)

	users.On("GetByID", mock.Anything, alice.ID).Return(alice, nil)

	var got float64
	msgs.On("Create", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		got = args.Get(1).(*domain.Message).VoiceDuration
	}).Return(nil)

	_, err := svc.SendVoice(context.Background(), sender(admin), service.VoiceInput{
		VoiceData:     base64.StdEncoding.EncodeToString([]byte("ogg")),
		VoiceDuration: 4000,
		ReceiverID:    alice.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, 1800.0, got)
}

func TestAcknowledgeDelivered(t *testing.T) {
	msg := &domain.Message{ID: "64a0000000000000000000bb", SenderID: admin.ID, ReceiverID: alice.ID}

	msgs := new(MockMessageRepo)
	notifier := NewFakeNotifier()
	svc := service.NewChatService(new(MockUserRepo), msgs, notifier, 50<<20)

	msgs.On("GetByID", mock.Anything, msg.ID).Return(msg, nil)
	msgs.On("MarkDelivered", mock.Anything, []string{msg.ID}).Return(nil)

	require.NoError(t, svc.AcknowledgeDelivered(context.Background(), msg.ID))

	events := notifier.ByEvent(service.EventMessagesDelivered)
	require.Len(t, events, 1)
	assert.Equal(t, admin.ID, events[0].Target)
	assert.Equal(t, service.MessagesDeliveredPayload{MessageIDs: []string{msg.ID}}, events[0].Data)
}

func TestMarkSeenByIDs(t *testing.T) {
	fromAdmin := &domain.Message{ID: "64a0000000000000000000c1", SenderID: admin.ID, ReceiverID: alice.ID}
	fromBob := &domain.Message{ID: "64a0000000000000000000c2", SenderID: bob.ID, ReceiverID: admin.ID}
	ids := []string{fromAdmin.ID, fromBob.ID}

	t.Run("GroupsNotificationsBySender", func(t *testing.T) {
		msgs := new(MockMessageRepo)
		notifier := NewFakeNotifier()
		svc := service.NewChatService(new(MockUserRepo), msgs, notifier, 50<<20)

		msgs.On("MarkSeenByIDs", mock.Anything, ids, mock.Anything).Return(nil)
		msgs.On("ListByIDs", mock.Anything, ids).Return([]*domain.Message{fromAdmin, fromBob}, nil)

		require.NoError(t, svc.MarkSeenByIDs(context.Background(), ids))

		seen := notifier.ByEvent(service.EventMessagesSeen)
		require.Len(t, seen, 2)

		assert.Equal(t, admin.ID, seen[0].Target)
		assert.Equal(t, service.MessagesSeenPayload{ReceiverID: alice.ID, MessageIDs: []string{fromAdmin.ID}}, seen[0].Data)

		assert.Equal(t, bob.ID, seen[1].Target)
		assert.Equal(t, service.MessagesSeenPayload{ReceiverID: admin.ID, MessageIDs: []string{fromBob.ID}}, seen[1].Data)

		// Each sender's double-tick refresh is paired with a delivered
		// refresh carrying the same ids.
		delivered := notifier.ByEvent(service.EventMessagesDelivered)
		require.Len(t, delivered, 2)
	})

	t.Run("ReplayIsIdempotent", func(t *testing.T) {
		msgs := new(MockMessageRepo)
		notifier := NewFakeNotifier()
		svc := service.NewChatService(new(MockUserRepo), msgs, notifier, 50<<20)

		msgs.On("MarkSeenByIDs", mock.Anything, ids, mock.Anything).Return(nil)
		msgs.On("ListByIDs", mock.Anything, ids).Return([]*domain.Message{fromAdmin, fromBob}, nil)

		require.NoError(t, svc.MarkSeenByIDs(context.Background(), ids))
		first := append([]emitted(nil), notifier.Events...)

		notifier.Events = nil
		require.NoError(t, svc.MarkSeenByIDs(context.Background(), ids))

		// The replay produces the identical notifications, nothing more.
		assert.Equal(t, first, notifier.Events)
	})

	t.Run("EmptyIDsIsNoOp", func(t *testing.T) {
		msgs := new(MockMessageRepo)
		notifier := NewFakeNotifier()
		svc := service.NewChatService(new(MockUserRepo), msgs, notifier, 50<<20)

		require.NoError(t, svc.MarkSeenByIDs(context.Background(), nil))
		assert.Empty(t, notifier.Events)
		msgs.AssertNotCalled(t, "MarkSeenByIDs", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("OfflineSenderIsSkippedSilently", func(t *testing.T) {
		msgs := new(MockMessageRepo)
		notifier := NewFakeNotifier()
		notifier.Online = map[string]bool{admin.ID: true} // bob offline
		svc := service.NewChatService(new(MockUserRepo), msgs, notifier, 50<<20)

		msgs.On("MarkSeenByIDs", mock.Anything, ids, mock.Anything).Return(nil)
		msgs.On("ListByIDs", mock.Anything, ids).Return([]*domain.Message{fromAdmin, fromBob}, nil)

		require.NoError(t, svc.MarkSeenByIDs(context.Background(), ids))

		seen := notifier.ByEvent(service.EventMessagesSeen)
		require.Len(t, seen, 1)
		assert.Equal(t, admin.ID, seen[0].Target)
	})
}

func TestMarkSeenPair(t *testing.T) {
	msgs := new(MockMessageRepo)
	notifier := NewFakeNotifier()
	svc := service.NewChatService(new(MockUserRepo), msgs, notifier, 50<<20)

	seenMsgs := []*domain.Message{
		{ID: "64a0000000000000000000d1", SenderID: admin.ID, ReceiverID: alice.ID, Seen: true},
		{ID: "64a0000000000000000000d2", SenderID: admin.ID, ReceiverID: alice.ID, Seen: true},
	}
	msgs.On("MarkSeenPair", mock.Anything, admin.ID, alice.ID, mock.Anything).Return(nil)
	msgs.On("ListPairSeen", mock.Anything, admin.ID, alice.ID).Return(seenMsgs, nil)

	require.NoError(t, svc.MarkSeenPair(context.Background(), admin.ID, alice.ID))

	seen := notifier.ByEvent(service.EventMessagesSeen)
	require.Len(t, seen, 1)
	assert.Equal(t, admin.ID, seen[0].Target)
	assert.Equal(t, service.MessagesSeenPayload{
		ReceiverID: alice.ID,
		MessageIDs: []string{seenMsgs[0].ID, seenMsgs[1].ID},
	}, seen[0].Data)
}

func sender(u *domain.User) service.Sender {
	return service.Sender{ID: u.ID, Name: u.Name, Role: u.Role}
}
