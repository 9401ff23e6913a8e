package domain

import "time"

// Roles a user account can hold. Exactly one admin account exists per
// deployment; room naming and history queries depend on that.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// User represents an application user.
type User struct {
	ID             string     `bson:"_id,omitempty" json:"id"`
	Name           string     `bson:"name" json:"name"`
	Email          string     `bson:"email" json:"email"`
	HashedPassword string     `bson:"password" json:"-"`
	Gender         string     `bson:"gender,omitempty" json:"gender,omitempty"`
	Role           string     `bson:"role" json:"role"`
	IsOnline       bool       `bson:"isOnline" json:"isOnline"`
	LastSeen       *time.Time `bson:"lastSeen,omitempty" json:"lastSeen,omitempty"`
	CreatedAt      time.Time  `bson:"createdAt" json:"createdAt"`
}

// Message is a single persisted chat message. Exactly one payload variant is
// populated: text content, file/image/video metadata+data, or voice data.
// The ID is an ObjectID hex string and therefore creation-ordered; history
// replay uses it as the checkpoint cursor.
type Message struct {
	ID           string `bson:"_id,omitempty"`
	SenderID     string `bson:"senderId"`
	SenderName   string `bson:"senderName"`
	ReceiverID   string `bson:"receiverId"`
	ReceiverName string `bson:"receiverName"`

	Content string `bson:"content,omitempty"`

	IsFile   bool   `bson:"isFile,omitempty"`
	IsImage  bool   `bson:"isImage,omitempty"`
	FileName string `bson:"fileName,omitempty"`
	FileType string `bson:"fileType,omitempty"`
	FileData string `bson:"fileData,omitempty"` // base64
	FileSize int    `bson:"fileSize,omitempty"`

	IsVoice       bool    `bson:"isVoice,omitempty"`
	VoiceData     string  `bson:"voiceData,omitempty"` // base64
	VoiceDuration float64 `bson:"voiceDuration,omitempty"`

	// Delivery ticks. Both flags are monotonic: once true they are never
	// reset, and seen implies delivered.
	Delivered bool       `bson:"delivered"`
	Seen      bool       `bson:"seen"`
	SeenAt    *time.Time `bson:"seenAt,omitempty"`

	CreatedAt time.Time `bson:"createdAt"`
}

// IsVideo reports whether the message carries a video attachment.
func (m *Message) IsVideo() bool {
	return m.IsFile && len(m.FileType) >= 6 && m.FileType[:6] == "video/"
}
