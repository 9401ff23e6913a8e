package service

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"chatserver/internal/domain"
)

// Notifier is the capability the services need from the realtime layer:
// room broadcast, targeted emit, and room membership size. The websocket hub
// implements it; tests substitute a mock.
type Notifier interface {
	EmitToRoom(room, event string, data any)
	// EmitToUser returns false when the user has no active connection.
	// That is never an error: an offline sender catches up via history replay.
	EmitToUser(userID, event string, data any) bool
	BroadcastAll(event string, data any)
	MemberCount(room string) int
}

// Event names on the server->client realtime channel.
const (
	EventChatMessage       = "chat message"
	EventFileReceived      = "file received"
	EventImageReceived     = "image received"
	EventVideoReceived     = "video received"
	EventVoiceReceived     = "voice received"
	EventMessagesDelivered = "messages delivered"
	EventMessagesSeen      = "messages seen"
	EventUserStatus        = "user status updated"
	EventHistoryLoaded     = "history loaded"
)

// videoTypes is the allow-list for video attachments.
var videoTypes = map[string]struct{}{
	"video/mp4":       {},
	"video/webm":      {},
	"video/quicktime": {},
	"video/x-msvideo": {},
}

const (
	maxTextRunes     = 5000
	minVoiceDuration = 0.1
	maxVoiceDuration = 1800
)

// ChannelName computes the private channel id for an admin/user pair. It is
// deterministic and identical regardless of which side computes it.
func ChannelName(adminID, userID string) string {
	return fmt.Sprintf("admin_%s_user_%s", adminID, userID)
}

// Sender is the authenticated identity behind a realtime event.
type Sender struct {
	ID   string
	Name string
	Role string
}

// ChatService owns message creation and the sent -> delivered -> seen state
// machine. Both flags are monotonic and seen implies delivered; every
// transition notifies the original sender's connection when one exists.
type ChatService struct {
	users    domain.UserRepository
	messages domain.MessageRepository
	notifier Notifier

	maxAttachmentBytes int
}

func NewChatService(users domain.UserRepository, messages domain.MessageRepository, notifier Notifier, maxAttachmentBytes int) *ChatService {
	return &ChatService{
		users:              users,
		messages:           messages,
		notifier:           notifier,
		maxAttachmentBytes: maxAttachmentBytes,
	}
}

type TextMessageInput struct {
	Content    string `json:"content"`
	ReceiverID string `json:"receiverId"`
}

// SendText persists a text message and broadcasts it to the pair's channel.
func (s *ChatService) SendText(ctx context.Context, from Sender, in TextMessageInput) (*MessagePayload, error) {
	if strings.TrimSpace(in.Content) == "" {
		return nil, fmt.Errorf("%w: message content cannot be empty", domain.ErrValidation)
	}
	if len([]rune(in.Content)) > maxTextRunes {
		return nil, fmt.Errorf("%w: message content exceeds %d characters", domain.ErrValidation, maxTextRunes)
	}

	receiver, channel, err := s.resolveConversation(ctx, from, in.ReceiverID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		SenderID:     from.ID,
		SenderName:   from.Name,
		ReceiverID:   receiver.ID,
		ReceiverName: receiver.Name,
		Content:      in.Content,
		Delivered:    s.isLikelyPresent(channel),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	payload := NewMessagePayload(msg)
	s.notifier.EmitToRoom(channel, EventChatMessage, payload)
	return payload, nil
}

type AttachmentInput struct {
	FileName   string `json:"fileName"`
	FileType   string `json:"fileType"`
	FileData   string `json:"fileData"` // base64
	ReceiverID string `json:"receiverId"`
}

// SendAttachment persists a file, image or video message and broadcasts it
// under the event matching its content type.
func (s *ChatService) SendAttachment(ctx context.Context, from Sender, in AttachmentInput) (*MessagePayload, error) {
	if in.FileData == "" {
		return nil, fmt.Errorf("%w: file data is required", domain.ErrValidation)
	}
	if err := s.validateAttachment(in.FileType, len(in.FileData)); err != nil {
		return nil, err
	}

	receiver, channel, err := s.resolveConversation(ctx, from, in.ReceiverID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		SenderID:     from.ID,
		SenderName:   from.Name,
		ReceiverID:   receiver.ID,
		ReceiverName: receiver.Name,
		IsFile:       true,
		IsImage:      strings.HasPrefix(in.FileType, "image/"),
		FileName:     in.FileName,
		FileType:     in.FileType,
		FileData:     in.FileData,
		FileSize:     base64.StdEncoding.DecodedLen(len(in.FileData)),
		Delivered:    s.isLikelyPresent(channel),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	payload := NewMessagePayload(msg)
	s.notifier.EmitToRoom(channel, EventNameFor(msg), payload)
	return payload, nil
}

type VoiceInput struct {
	VoiceData     string  `json:"voiceData"` // base64
	VoiceDuration float64 `json:"voiceDuration"`
	ReceiverID    string  `json:"receiverId"`
}

// SendVoice persists a voice message. The duration is clamped rather than
// rejected, matching the behaviour the clients expect.
func (s *ChatService) SendVoice(ctx context.Context, from Sender, in VoiceInput) (*MessagePayload, error) {
	if in.VoiceData == "" {
		return nil, fmt.Errorf("%w: voice data is required", domain.ErrValidation)
	}
	if base64.StdEncoding.DecodedLen(len(in.VoiceData)) > s.maxAttachmentBytes {
		return nil, fmt.Errorf("%w: voice payload exceeds %d bytes", domain.ErrValidation, s.maxAttachmentBytes)
	}

	duration := in.VoiceDuration
	if duration < minVoiceDuration {
		duration = minVoiceDuration
	}
	if duration > maxVoiceDuration {
		duration = maxVoiceDuration
	}

	receiver, channel, err := s.resolveConversation(ctx, from, in.ReceiverID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		SenderID:      from.ID,
		SenderName:    from.Name,
		ReceiverID:    receiver.ID,
		ReceiverName:  receiver.Name,
		IsVoice:       true,
		VoiceData:     in.VoiceData,
		VoiceDuration: duration,
		Delivered:     s.isLikelyPresent(channel),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	payload := NewMessagePayload(msg)
	s.notifier.EmitToRoom(channel, EventVoiceReceived, payload)
	return payload, nil
}

// AssembledVideoInput is a finished chunked upload handed over by the
// assembler. Sender and receiver are explicit because the upload arrives
// over HTTP, outside any websocket session.
type AssembledVideoInput struct {
	SenderID     string
	SenderName   string
	ReceiverID   string
	ReceiverName string
	FileName     string
	FileType     string
	FileData     string // base64
	UploadID     string // client correlation token, echoed back
}

// PublishAssembledVideo persists the reassembled video and broadcasts it to
// the pair's channel, echoing the client upload id so the uploader can
// replace its optimistic placeholder.
func (s *ChatService) PublishAssembledVideo(ctx context.Context, in AssembledVideoInput) (*MessagePayload, error) {
	if err := s.validateAttachment(in.FileType, len(in.FileData)); err != nil {
		return nil, err
	}

	sender, err := s.users.GetByID(ctx, in.SenderID)
	if err != nil {
		return nil, fmt.Errorf("get sender: %w", err)
	}
	receiver, err := s.users.GetByID(ctx, in.ReceiverID)
	if err != nil {
		return nil, fmt.Errorf("get receiver: %w", err)
	}
	if sender == nil || receiver == nil {
		return nil, fmt.Errorf("%w: sender or receiver not found", domain.ErrResolution)
	}

	var channel string
	switch {
	case sender.Role == domain.RoleAdmin:
		channel = ChannelName(sender.ID, receiver.ID)
	case receiver.Role == domain.RoleAdmin:
		channel = ChannelName(receiver.ID, sender.ID)
	default:
		return nil, fmt.Errorf("%w: neither party is the admin", domain.ErrResolution)
	}

	msg := &domain.Message{
		SenderID:     sender.ID,
		SenderName:   sender.Name,
		ReceiverID:   receiver.ID,
		ReceiverName: receiver.Name,
		IsFile:       true,
		FileName:     in.FileName,
		FileType:     in.FileType,
		FileData:     in.FileData,
		FileSize:     base64.StdEncoding.DecodedLen(len(in.FileData)),
		Delivered:    s.isLikelyPresent(channel),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	payload := NewMessagePayload(msg)
	payload.UploadID = in.UploadID
	s.notifier.EmitToRoom(channel, EventVideoReceived, payload)
	return payload, nil
}

// AcknowledgeDelivered handles an explicit delivery ack from the receiving
// client: the message is stamped delivered and the original sender is told.
func (s *ChatService) AcknowledgeDelivered(ctx context.Context, messageID string) error {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return fmt.Errorf("get message: %w", err)
	}
	if msg == nil {
		return fmt.Errorf("%w: message %s", domain.ErrNotFound, messageID)
	}

	if err := s.messages.MarkDelivered(ctx, []string{msg.ID}); err != nil {
		return err
	}
	s.notifier.EmitToUser(msg.SenderID, EventMessagesDelivered, MessagesDeliveredPayload{
		MessageIDs: []string{msg.ID},
	})
	return nil
}

// MarkSeenPair marks every unseen message from sender to receiver as seen
// (and therefore delivered), then reports the full seen id set back to the
// sender so tick state refreshes deterministically.
func (s *ChatService) MarkSeenPair(ctx context.Context, senderID, receiverID string) error {
	if err := s.messages.MarkSeenPair(ctx, senderID, receiverID, time.Now()); err != nil {
		return err
	}

	seen, err := s.messages.ListPairSeen(ctx, senderID, receiverID)
	if err != nil {
		return err
	}
	ids := make([]string, len(seen))
	for i, m := range seen {
		ids[i] = m.ID
	}

	s.notifier.EmitToUser(senderID, EventMessagesSeen, MessagesSeenPayload{
		ReceiverID: receiverID,
		MessageIDs: ids,
	})
	s.notifier.EmitToUser(senderID, EventMessagesDelivered, MessagesDeliveredPayload{MessageIDs: ids})
	return nil
}

// MarkSeenByIDs is the race-safe selector: an explicit id list, marked seen
// in bulk, with one notification group per original sender.
func (s *ChatService) MarkSeenByIDs(ctx context.Context, messageIDs []string) error {
	if len(messageIDs) == 0 {
		return nil
	}

	if err := s.messages.MarkSeenByIDs(ctx, messageIDs, time.Now()); err != nil {
		return err
	}

	msgs, err := s.messages.ListByIDs(ctx, messageIDs)
	if err != nil {
		return err
	}

	// Group by sender, preserving id order within each group.
	type group struct {
		receiverID string
		ids        []string
	}
	var order []string
	groups := make(map[string]*group)
	for _, m := range msgs {
		g, ok := groups[m.SenderID]
		if !ok {
			g = &group{receiverID: m.ReceiverID}
			groups[m.SenderID] = g
			order = append(order, m.SenderID)
		}
		g.ids = append(g.ids, m.ID)
	}

	for _, senderID := range order {
		g := groups[senderID]
		s.notifier.EmitToUser(senderID, EventMessagesSeen, MessagesSeenPayload{
			ReceiverID: g.receiverID,
			MessageIDs: g.ids,
		})
		s.notifier.EmitToUser(senderID, EventMessagesDelivered, MessagesDeliveredPayload{MessageIDs: g.ids})
	}
	return nil
}

// resolveConversation determines the counterpart and the private channel for
// an outgoing message. Admins must address a specific user; users always
// talk to the single admin, whatever receiver id they sent.
func (s *ChatService) resolveConversation(ctx context.Context, from Sender, receiverID string) (*domain.User, string, error) {
	if from.Role == domain.RoleAdmin {
		if receiverID == "" {
			return nil, "", fmt.Errorf("%w: admin must specify a receiver", domain.ErrValidation)
		}
		receiver, err := s.users.GetByID(ctx, receiverID)
		if err != nil {
			return nil, "", fmt.Errorf("get receiver: %w", err)
		}
		if receiver == nil {
			return nil, "", fmt.Errorf("%w: receiver %s not found", domain.ErrResolution, receiverID)
		}
		return receiver, ChannelName(from.ID, receiver.ID), nil
	}

	admin, err := s.users.GetAdmin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("get admin: %w", err)
	}
	if admin == nil {
		return nil, "", fmt.Errorf("%w: no admin user exists", domain.ErrResolution)
	}
	return admin, ChannelName(admin.ID, from.ID), nil
}

// isLikelyPresent is the delivered-at-send heuristic: with more than one
// member in the pair's channel, the counterpart is assumed to be viewing the
// conversation. Approximate on purpose; the authoritative transitions come
// from explicit client acks.
func (s *ChatService) isLikelyPresent(channel string) bool {
	return s.notifier.MemberCount(channel) > 1
}

func (s *ChatService) validateAttachment(fileType string, encodedLen int) error {
	if base64.StdEncoding.DecodedLen(encodedLen) > s.maxAttachmentBytes {
		return fmt.Errorf("%w: attachment exceeds %d bytes", domain.ErrValidation, s.maxAttachmentBytes)
	}
	if strings.HasPrefix(fileType, "video/") {
		if _, ok := videoTypes[fileType]; !ok {
			return fmt.Errorf("%w: video type %q is not allowed", domain.ErrValidation, fileType)
		}
	}
	return nil
}
