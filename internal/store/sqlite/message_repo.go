package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"chatserver/internal/domain"
)

const messageColumns = `id, sender_id, sender_name, receiver_id, receiver_name, content,
	is_file, is_image, file_name, file_type, file_data, file_size,
	is_voice, voice_data, voice_duration,
	delivered, seen, seen_at, created_at`

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

func (r *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	m.ID = primitive.NewObjectID().Hex()
	m.CreatedAt = time.Now().UTC()
	query := `
		INSERT INTO messages (id, sender_id, sender_name, receiver_id, receiver_name, content,
			is_file, is_image, file_name, file_type, file_data, file_size,
			is_voice, voice_data, voice_duration,
			delivered, seen, seen_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.SenderID, m.SenderName, m.ReceiverID, m.ReceiverName, m.Content,
		m.IsFile, m.IsImage, m.FileName, m.FileType, m.FileData, m.FileSize,
		m.IsVoice, m.VoiceData, m.VoiceDuration,
		m.Delivered, m.Seen, m.SeenAt, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (r *MessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (r *MessageRepo) ListByIDs(ctx context.Context, ids []string) ([]*domain.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT ` + messageColumns + ` FROM messages WHERE id IN (` + placeholders(len(ids)) + `) ORDER BY id ASC`
	return r.listMessages(ctx, query, toArgs(ids)...)
}

func (r *MessageRepo) ListInvolvingSince(ctx context.Context, participantID, sinceID string) ([]*domain.Message, error) {
	// Ids are fixed-width hex, so the lexicographic comparison is the
	// creation-order comparison.
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE (sender_id = ? OR receiver_id = ?) AND id > ?
		ORDER BY id ASC
	`
	return r.listMessages(ctx, query, participantID, participantID, sinceID)
}

func (r *MessageRepo) ListBetweenSince(ctx context.Context, firstID, secondID, sinceID string) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)) AND id > ?
		ORDER BY id ASC
	`
	return r.listMessages(ctx, query, firstID, secondID, secondID, firstID, sinceID)
}

func (r *MessageRepo) MarkDelivered(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE messages SET delivered = 1 WHERE id IN (` + placeholders(len(ids)) + `)`
	if _, err := r.db.ExecContext(ctx, query, toArgs(ids)...); err != nil {
		return fmt.Errorf("mark delivered: %w", err)
	}
	return nil
}

func (r *MessageRepo) MarkSeenByIDs(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	// seen implies delivered, both flags move together
	query := `UPDATE messages SET seen = 1, seen_at = ?, delivered = 1
		WHERE seen = 0 AND id IN (` + placeholders(len(ids)) + `)`
	args := append([]any{at.UTC()}, toArgs(ids)...)
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("mark seen by ids: %w", err)
	}
	return nil
}

func (r *MessageRepo) MarkSeenPair(ctx context.Context, senderID, receiverID string, at time.Time) error {
	query := `UPDATE messages SET seen = 1, seen_at = ?, delivered = 1
		WHERE sender_id = ? AND receiver_id = ? AND seen = 0`
	if _, err := r.db.ExecContext(ctx, query, at.UTC(), senderID, receiverID); err != nil {
		return fmt.Errorf("mark seen pair: %w", err)
	}
	return nil
}

func (r *MessageRepo) ListPairSeen(ctx context.Context, senderID, receiverID string) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + ` FROM messages
		WHERE sender_id = ? AND receiver_id = ? AND seen = 1
		ORDER BY id ASC
	`
	return r.listMessages(ctx, query, senderID, receiverID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	m := &domain.Message{}
	err := row.Scan(
		&m.ID, &m.SenderID, &m.SenderName, &m.ReceiverID, &m.ReceiverName, &m.Content,
		&m.IsFile, &m.IsImage, &m.FileName, &m.FileType, &m.FileData, &m.FileSize,
		&m.IsVoice, &m.VoiceData, &m.VoiceDuration,
		&m.Delivered, &m.Seen, &m.SeenAt, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *MessageRepo) listMessages(ctx context.Context, query string, args ...any) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*domain.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func placeholders(n int) string {
	return "?" + strings.Repeat(",?", n-1)
}

func toArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
