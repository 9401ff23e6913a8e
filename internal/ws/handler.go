package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"chatserver/internal/domain"
	"chatserver/internal/security"
	"chatserver/internal/service"
)

func normalizeAllowedOrigins(origins []string) map[string]struct{} {
	res := make(map[string]struct{}, len(origins))
	for _, origin := range origins {
		o := strings.TrimSpace(strings.ToLower(origin))
		if o != "" {
			res[o] = struct{}{}
		}
	}
	return res
}

func makeCheckOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := normalizeAllowedOrigins(allowedOrigins)
	if len(allowed) == 0 {
		return func(r *http.Request) bool {
			return false
		}
	}

	return func(r *http.Request) bool {
		origin := strings.TrimSpace(strings.ToLower(r.Header.Get("Origin")))
		if origin == "" {
			return false
		}
		if _, ok := allowed[origin]; ok {
			return true
		}

		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return false
		}
		normalized := strings.ToLower(fmt.Sprintf("%s://%s", u.Scheme, u.Host))
		_, ok := allowed[normalized]
		return ok
	}
}

func extractToken(r *http.Request) string {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[len("Bearer "):])
	}

	protocolHeader := r.Header.Get("Sec-WebSocket-Protocol")
	if protocolHeader != "" {
		parts := strings.Split(protocolHeader, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) >= 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}

	return ""
}

// MakeHandler returns the HTTP handler for the /ws endpoint.
// The bearer token (Authorization header or Sec-WebSocket-Protocol) carries
// the caller's identity: user id, role and display name. A connection
// without id or role is refused outright. The ?offset query parameter is the
// history checkpoint: the last message id the client has already seen.
//
// Dispatched client events:
//   - chat message              -> persist & broadcast to the pair's channel
//   - file upload / image upload / voice upload -> same, typed payloads
//   - message delivered         -> explicit delivery ack for one message
//   - mark messages seen        -> pair-scoped bulk seen
//   - mark messages seen by ids -> id-scoped bulk seen
func MakeHandler(
	hub *Hub,
	tokens *security.TokenService,
	users domain.UserRepository,
	chatSvc *service.ChatService,
	historySvc *service.HistoryService,
	allowedOrigins []string,
) http.HandlerFunc {
	checkOrigin := makeCheckOrigin(allowedOrigins)
	upgrader := websocket.Upgrader{
		CheckOrigin: checkOrigin,
		Subprotocols: []string{
			"bearer",
		},
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if !checkOrigin(r) {
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		claims, err := tokens.Parse(extractToken(r))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		userID, _ := claims["sub"].(string)
		role, _ := claims["role"].(string)
		name, _ := claims["name"].(string)
		if userID == "" || role == "" {
			http.Error(w, "token is missing identity claims", http.StatusUnauthorized)
			return
		}

		ctx := r.Context()
		user, err := users.GetByID(ctx, userID)
		if err != nil || user == nil {
			http.Error(w, "user not found", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		sess := NewSession(userID, role, name, conn)
		hub.SetOnline(sess)
		if err := users.SetOnlineStatus(ctx, userID, true); err != nil {
			log.Error().Err(err).Str("user", userID).Msg("set online")
		}
		now := time.Now().UTC()
		hub.BroadcastAll(service.EventUserStatus, service.UserStatusPayload{
			UserID:   userID,
			IsOnline: true,
			LastSeen: &now,
		})

		defer func() {
			conn.Close()
			// A newer connection may have replaced this one; only the
			// current session produces an offline transition.
			if !hub.SetOffline(sess) {
				return
			}
			background := context.Background()
			if err := users.SetOnlineStatus(background, userID, false); err != nil {
				log.Error().Err(err).Str("user", userID).Msg("set offline")
			}
			last := time.Now().UTC()
			hub.BroadcastAll(service.EventUserStatus, service.UserStatusPayload{
				UserID:   userID,
				IsOnline: false,
				LastSeen: &last,
			})
		}()

		joinChannels(ctx, hub, users, sess)

		from := service.Sender{ID: userID, Name: name, Role: role}
		if err := historySvc.Replay(ctx, from, r.URL.Query().Get("offset")); err != nil {
			log.Error().Err(err).Str("user", userID).Msg("history replay")
		}

		log.Info().Str("user", userID).Str("role", role).Msg("client connected")

		for {
			var env Envelope
			if err := conn.ReadJSON(&env); err != nil {
				break
			}
			dispatch(ctx, sess, from, chatSvc, env)
		}

		log.Info().Str("user", userID).Msg("client disconnected")
	}
}

// joinChannels joins the session to its private admin/user channel(s): the
// admin fans out to one channel per user, a user joins the single channel
// shared with the admin.
func joinChannels(ctx context.Context, hub *Hub, users domain.UserRepository, sess *Session) {
	if sess.Role == domain.RoleAdmin {
		others, err := users.ListByRole(ctx, domain.RoleUser)
		if err != nil {
			log.Error().Err(err).Msg("list users for channel fan-out")
			return
		}
		for _, u := range others {
			hub.Join(service.ChannelName(sess.UserID, u.ID), sess)
		}
		return
	}

	admin, err := users.GetAdmin(ctx)
	if err != nil {
		log.Error().Err(err).Msg("resolve admin for channel join")
		return
	}
	if admin == nil {
		return
	}
	channel := service.ChannelName(admin.ID, sess.UserID)
	hub.Join(channel, sess)
	// An admin already online joined its channels at connect time, before
	// this user existed; pull it into the fresh channel as well.
	if adminSess := hub.Session(admin.ID); adminSess != nil {
		hub.Join(channel, adminSess)
	}
}

// dispatch runs one inbound event. Failures are contained per event: they
// are logged, acked to the caller when an ack was requested, and never tear
// down the connection.
func dispatch(ctx context.Context, sess *Session, from service.Sender, chatSvc *service.ChatService, env Envelope) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Any("panic", p).Str("event", env.Event).Str("user", from.ID).Msg("event handler panicked")
			ackError(sess, env, "internal error")
		}
	}()

	var err error
	var result any

	switch env.Event {
	case "chat message":
		var in service.TextMessageInput
		if err = json.Unmarshal(env.Data, &in); err == nil {
			result, err = chatSvc.SendText(ctx, from, in)
		}

	case "file upload", "image upload":
		var in service.AttachmentInput
		if err = json.Unmarshal(env.Data, &in); err == nil {
			result, err = chatSvc.SendAttachment(ctx, from, in)
		}

	case "voice upload":
		var in service.VoiceInput
		if err = json.Unmarshal(env.Data, &in); err == nil {
			result, err = chatSvc.SendVoice(ctx, from, in)
		}

	case "message delivered":
		var in struct {
			MessageID string `json:"messageId"`
		}
		if err = json.Unmarshal(env.Data, &in); err == nil {
			err = chatSvc.AcknowledgeDelivered(ctx, in.MessageID)
		}

	case "mark messages seen":
		var in struct {
			SenderID   string `json:"senderId"`
			ReceiverID string `json:"receiverId"`
		}
		if err = json.Unmarshal(env.Data, &in); err == nil {
			err = chatSvc.MarkSeenPair(ctx, in.SenderID, in.ReceiverID)
		}

	case "mark messages seen by ids":
		var in struct {
			MessageIDs []string `json:"messageIds"`
		}
		if err = json.Unmarshal(env.Data, &in); err == nil {
			err = chatSvc.MarkSeenByIDs(ctx, in.MessageIDs)
		}

	default:
		log.Warn().Str("event", env.Event).Str("user", from.ID).Msg("unknown event")
		ackError(sess, env, "unknown event")
		return
	}

	if err != nil {
		logEventError(env.Event, from.ID, err)
		ackError(sess, env, reason(err))
		return
	}
	ackSuccess(sess, env, result)
}

func logEventError(event, userID string, err error) {
	if errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrResolution) || errors.Is(err, domain.ErrNotFound) {
		log.Debug().Err(err).Str("event", event).Str("user", userID).Msg("event rejected")
		return
	}
	log.Error().Err(err).Str("event", event).Str("user", userID).Msg("event failed")
}

// reason maps an error to the human-readable string reported to the caller.
// Internal failures stay opaque.
func reason(err error) string {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrResolution),
		errors.Is(err, domain.ErrNotFound):
		return err.Error()
	default:
		return "operation failed"
	}
}

func ackSuccess(sess *Session, env Envelope, result any) {
	if env.AckID == 0 {
		return
	}
	data := map[string]any{"success": true}
	if msg, ok := result.(*service.MessagePayload); ok && msg != nil {
		data["messageId"] = msg.ID
	}
	sendAck(sess, env.AckID, data)
}

func ackError(sess *Session, env Envelope, msg string) {
	if env.AckID == 0 {
		return
	}
	sendAck(sess, env.AckID, map[string]any{"success": false, "error": msg})
}

func sendAck(sess *Session, ackID int64, data map[string]any) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	sess.writeMu.Lock()
	defer sess.writeMu.Unlock()
	_ = sess.conn.WriteJSON(Envelope{Event: "ack", AckID: ackID, Data: raw})
}
