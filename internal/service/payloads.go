package service

import (
	"time"

	"chatserver/internal/domain"
)

// MessagePayload is the wire shape of a message on the realtime channel,
// shared by live broadcasts and history replay.
type MessagePayload struct {
	ID           string     `json:"id"`
	SenderID     string     `json:"senderId"`
	ReceiverID   string     `json:"receiverId"`
	SenderName   string     `json:"senderName"`
	ReceiverName string     `json:"receiverName"`
	Timestamp    time.Time  `json:"timestamp"`
	Delivered    bool       `json:"delivered"`
	Seen         bool       `json:"seen"`
	SeenAt       *time.Time `json:"seenAt"`

	Content string `json:"content,omitempty"`

	IsImage  bool   `json:"isImage,omitempty"`
	IsVideo  bool   `json:"isVideo,omitempty"`
	FileName string `json:"fileName,omitempty"`
	FileType string `json:"fileType,omitempty"`
	FileData string `json:"fileData,omitempty"`
	FileSize int    `json:"fileSize,omitempty"`

	VoiceData     string  `json:"voiceData,omitempty"`
	VoiceDuration float64 `json:"voiceDuration,omitempty"`

	// UploadID echoes the client-chosen upload id of a chunked upload so the
	// uploader can replace its optimistic placeholder.
	UploadID string `json:"uploadId,omitempty"`
}

// NewMessagePayload converts a stored message into its wire shape.
func NewMessagePayload(m *domain.Message) *MessagePayload {
	return &MessagePayload{
		ID:            m.ID,
		SenderID:      m.SenderID,
		ReceiverID:    m.ReceiverID,
		SenderName:    m.SenderName,
		ReceiverName:  m.ReceiverName,
		Timestamp:     m.CreatedAt,
		Delivered:     m.Delivered,
		Seen:          m.Seen,
		SeenAt:        m.SeenAt,
		Content:       m.Content,
		IsImage:       m.IsImage,
		IsVideo:       m.IsVideo(),
		FileName:      m.FileName,
		FileType:      m.FileType,
		FileData:      m.FileData,
		FileSize:      m.FileSize,
		VoiceData:     m.VoiceData,
		VoiceDuration: m.VoiceDuration,
	}
}

// EventNameFor picks the server->client event for a message's payload
// variant.
func EventNameFor(m *domain.Message) string {
	switch {
	case m.IsVoice:
		return EventVoiceReceived
	case m.IsVideo():
		return EventVideoReceived
	case m.IsImage:
		return EventImageReceived
	case m.IsFile:
		return EventFileReceived
	default:
		return EventChatMessage
	}
}

// MessagesDeliveredPayload refreshes the sender's single-tick state.
type MessagesDeliveredPayload struct {
	MessageIDs []string `json:"messageIds"`
}

// MessagesSeenPayload refreshes the sender's double-tick state.
type MessagesSeenPayload struct {
	ReceiverID string   `json:"receiverId"`
	MessageIDs []string `json:"messageIds"`
}

// UserStatusPayload announces an online/offline transition.
type UserStatusPayload struct {
	UserID   string     `json:"userId"`
	IsOnline bool       `json:"isOnline"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}
