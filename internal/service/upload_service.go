package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"chatserver/internal/domain"
)

// uploadSession tracks partial chunk arrival for one in-progress upload.
// The client-chosen upload id is mapped to a server-generated key that names
// the temp files, so client input never reaches the filesystem.
type uploadSession struct {
	mu        sync.Mutex
	key       string
	total     int
	received  map[int]struct{}
	lastChunk time.Time
	done      bool
}

// UploadService reassembles large binaries (video) from chunks landed via
// independent HTTP calls, exactly once per upload id, then hands the result
// to the chat pipeline.
type UploadService struct {
	chat       *ChatService
	tempDir    string
	sessionTTL time.Duration

	mu       sync.Mutex
	sessions map[string]*uploadSession
}

func NewUploadService(chat *ChatService, tempDir string, sessionTTL time.Duration) *UploadService {
	return &UploadService{
		chat:       chat,
		tempDir:    tempDir,
		sessionTTL: sessionTTL,
		sessions:   make(map[string]*uploadSession),
	}
}

type ChunkInput struct {
	UploadID     string `json:"uploadId"`
	ChunkIndex   int    `json:"chunkIndex"`
	TotalChunks  int    `json:"totalChunks"`
	Chunk        string `json:"chunk"` // base64
	FileName     string `json:"fileName"`
	FileType     string `json:"fileType"`
	ReceiverID   string `json:"receiverId"`
	ReceiverName string `json:"receiverName"`
	SenderID     string `json:"senderId"`
	SenderName   string `json:"senderName"`
}

// HandleChunk lands one chunk. While chunks are still missing it returns
// (nil, nil), meaning "chunk received". The call that completes the set
// assembles the chunks in index order, publishes the resulting message and
// returns its payload. Two chunks for the same upload arriving concurrently
// serialize on the session lock, so assembly cannot trigger twice.
func (s *UploadService) HandleChunk(ctx context.Context, in ChunkInput) (*MessagePayload, error) {
	if in.UploadID == "" {
		return nil, fmt.Errorf("%w: uploadId is required", domain.ErrValidation)
	}
	if in.TotalChunks < 1 {
		return nil, fmt.Errorf("%w: totalChunks must be positive", domain.ErrValidation)
	}
	if in.ChunkIndex < 0 || in.ChunkIndex >= in.TotalChunks {
		return nil, fmt.Errorf("%w: chunkIndex %d out of range [0,%d)", domain.ErrValidation, in.ChunkIndex, in.TotalChunks)
	}

	data, err := base64.StdEncoding.DecodeString(in.Chunk)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk is not valid base64", domain.ErrValidation)
	}

	sess, err := s.session(in.UploadID, in.TotalChunks)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.done {
		return nil, fmt.Errorf("%w: upload %s already completed", domain.ErrValidation, in.UploadID)
	}

	if err := os.WriteFile(s.chunkPath(sess.key, in.ChunkIndex), data, 0o644); err != nil {
		return nil, fmt.Errorf("write chunk: %w", err)
	}
	sess.received[in.ChunkIndex] = struct{}{}
	sess.lastChunk = time.Now()

	if len(sess.received) < sess.total {
		return nil, nil
	}

	payload, err := s.assemble(ctx, sess, in)
	if err != nil {
		// Temp artifacts are left in place; the reaper collects them later.
		return nil, err
	}

	sess.done = true
	s.mu.Lock()
	delete(s.sessions, in.UploadID)
	s.mu.Unlock()
	return payload, nil
}

// assemble concatenates the chunks in index order, arrival order is
// irrelevant, and publishes the finished message before cleaning up.
func (s *UploadService) assemble(ctx context.Context, sess *uploadSession, in ChunkInput) (*MessagePayload, error) {
	var buf bytes.Buffer
	for i := 0; i < sess.total; i++ {
		part, err := os.ReadFile(s.chunkPath(sess.key, i))
		if err != nil {
			return nil, fmt.Errorf("read chunk %d: %w", i, err)
		}
		buf.Write(part)
	}

	payload, err := s.chat.PublishAssembledVideo(ctx, AssembledVideoInput{
		SenderID:     in.SenderID,
		SenderName:   in.SenderName,
		ReceiverID:   in.ReceiverID,
		ReceiverName: in.ReceiverName,
		FileName:     in.FileName,
		FileType:     in.FileType,
		FileData:     base64.StdEncoding.EncodeToString(buf.Bytes()),
		UploadID:     in.UploadID,
	})
	if err != nil {
		return nil, err
	}

	s.removeChunks(sess)
	return payload, nil
}

// session returns the bookkeeping entry for the upload id, creating it on
// the first chunk.
func (s *UploadService) session(uploadID string, total int) (*uploadSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[uploadID]; ok {
		if sess.total != total {
			return nil, fmt.Errorf("%w: totalChunks changed mid-upload", domain.ErrValidation)
		}
		return sess, nil
	}

	sess := &uploadSession{
		key:       uuid.NewString(),
		total:     total,
		received:  make(map[int]struct{}),
		lastChunk: time.Now(),
	}
	s.sessions[uploadID] = sess
	return sess, nil
}

func (s *UploadService) chunkPath(key string, index int) string {
	return filepath.Join(s.tempDir, fmt.Sprintf("%s_%d", key, index))
}

func (s *UploadService) removeChunks(sess *uploadSession) {
	for i := range sess.received {
		if err := os.Remove(s.chunkPath(sess.key, i)); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("key", sess.key).Int("chunk", i).Msg("remove temp chunk")
		}
	}
}

// StartReaper deletes upload sessions that saw no new chunk for the
// configured TTL, reclaiming temp files from clients that disappeared
// mid-upload. Runs until the context is cancelled.
func (s *UploadService) StartReaper(ctx context.Context) {
	if s.sessionTTL <= 0 {
		return
	}
	ticker := time.NewTicker(time.Minute)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.reapStale()
			}
		}
	}()
}

func (s *UploadService) reapStale() {
	cutoff := time.Now().Add(-s.sessionTTL)

	// Snapshot first; session locks are only taken with the registry lock
	// released. Lock order is always sess.mu before s.mu, the same order
	// HandleChunk uses when the completing chunk deletes its session.
	s.mu.Lock()
	candidates := make(map[string]*uploadSession, len(s.sessions))
	for id, sess := range s.sessions {
		candidates[id] = sess
	}
	s.mu.Unlock()

	for id, sess := range candidates {
		sess.mu.Lock()
		if sess.done || !sess.lastChunk.Before(cutoff) {
			sess.mu.Unlock()
			continue
		}
		s.mu.Lock()
		if s.sessions[id] == sess {
			delete(s.sessions, id)
		}
		s.mu.Unlock()
		s.removeChunks(sess)
		received := len(sess.received)
		sess.mu.Unlock()
		log.Info().Str("key", sess.key).Int("chunks", received).Msg("reaped stale upload session")
	}
}
