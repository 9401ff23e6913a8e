package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"chatserver/internal/domain"
	"chatserver/internal/service"
)

// chunkResponse carries either the literal "Chunk received" acknowledgement
// or, on the completing chunk, the finished message payload.
type chunkResponse struct {
	Success bool `json:"success"`
	Message any  `json:"message"`
}

// handleUploadChunk is the HTTP landing point for chunked video uploads,
// which bypass the realtime channel because of their size. One call per
// chunk; the call that completes the set returns the assembled message.
func handleUploadChunk(uploadSvc *service.UploadService, maxBodyBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

		var in service.ChunkInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid JSON body"})
			return
		}

		payload, err := uploadSvc.HandleChunk(r.Context(), in)
		if err != nil {
			if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrResolution) {
				writeJSON(w, statusFor(err), map[string]any{"success": false, "error": err.Error()})
				return
			}
			log.Error().Err(err).Str("uploadId", in.UploadID).Msg("chunk handling failed")
			writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "Assembly failed"})
			return
		}

		if payload == nil {
			writeJSON(w, http.StatusOK, chunkResponse{Success: true, Message: "Chunk received"})
			return
		}
		writeJSON(w, http.StatusOK, chunkResponse{Success: true, Message: payload})
	}
}
