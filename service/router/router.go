package router

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"PulseChat/logger"
	"PulseChat/service/hub"
	"PulseChat/service/queue"
	"PulseChat/service/relay"
	"PulseChat/service/store"
	"PulseChat/tools/errs"
)

// eventTimeout bounds every external-collaborator call made while handling
// one inbound event, so a slow store degrades that event only.
const eventTimeout = 5 * time.Second

// PresenceMirror is the optional cross-process presence sink; a nil
// *store.PresenceMirror satisfies it harmlessly.
type PresenceMirror interface {
	Online(ctx context.Context, user string) error
	Offline(ctx context.Context, user string) error
}

type handlerFunc func(ctx context.Context, c *hub.Client, payload map[string]any) error

// Router validates inbound frames, applies the rate limit, and dispatches
// by event kind to one handler per kind. Handler errors come back to the
// sender as a single `error` frame; they never close the connection.
type Router struct {
	hub    *hub.Hub
	store  store.MessageStore
	blocks store.BlockChecker
	queue  queue.OfflineQueue // nil: no durable hand-off
	relay  *relay.Relay       // nil: single-process mode
	mirror PresenceMirror     // nil: no cross-process mirror

	historyLimit int64
	handlers     map[string]handlerFunc
}

type Conf struct {
	Hub          *hub.Hub
	Store        store.MessageStore
	Blocks       store.BlockChecker
	Queue        queue.OfflineQueue
	Relay        *relay.Relay
	Mirror       PresenceMirror
	HistoryLimit int64
}

func New(conf Conf) *Router {
	if conf.HistoryLimit <= 0 {
		conf.HistoryLimit = 50
	}
	r := &Router{
		hub:          conf.Hub,
		store:        conf.Store,
		blocks:       conf.Blocks,
		queue:        conf.Queue,
		relay:        conf.Relay,
		mirror:       conf.Mirror,
		historyLimit: conf.HistoryLimit,
	}
	r.handlers = map[string]handlerFunc{
		"join":          r.handleJoin,
		"leave":         r.handleLeave,
		"message":       r.handleMessage,
		"dm":            r.handleDM,
		"group_message": r.handleGroupMessage,
		"typing":        r.handleTyping,
		"signal":        r.handleSignal,
		"get_rooms":     r.handleGetRooms,
		"get_users":     r.handleGetUsers,
		"message_seen":  r.handleMessageSeen,
		"star_message":  r.handleStarMessage,
		"pin_message":   r.handlePinMessage,
	}
	return r
}

// Dispatch handles one raw inbound frame from the read loop.
func (r *Router) Dispatch(c *hub.Client, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Errorf("[router] panic recovered conn=%s: %v", c.ConnID, rec)
			r.sendError(c, errs.ErrCollaborator)
		}
	}()

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		r.sendError(c, errs.ErrMalformed.WithDetail("unparseable frame"))
		return
	}
	kind, _ := payload["type"].(string)
	if kind == "" {
		r.sendError(c, errs.ErrMalformed.WithDetail("missing type"))
		return
	}

	// Rate limit before any processing of the triggering event.
	res := r.hub.Limiter.Check(r.limitIdentity(c))
	if !res.Allowed {
		r.send(c, errorReply{
			Type:      "error",
			Message:   errs.ErrRateLimited.Msg,
			Code:      errs.CodeRateLimited,
			Remaining: res.Remaining,
			ResetAt:   res.ResetAt.UnixMilli(),
		})
		return
	}

	h, ok := r.handlers[kind]
	if !ok {
		r.sendError(c, errs.ErrMalformed.WithDetail("unknown type "+kind))
		return
	}

	// Every kind except join requires an established identity.
	if kind != "join" {
		if _, _, ok := c.Identity(); !ok {
			r.sendError(c, errs.ErrUnauthorized)
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
	defer cancel()

	if err := h(ctx, c, payload); err != nil {
		r.sendError(c, err)
	}
}

// Disconnect runs the close cascade and notifies each surviving room.
// Called by the transport exactly once per connection, before any further
// event on that connection could be processed.
func (r *Router) Disconnect(c *hub.Client) {
	userID, username, hadIdentity := c.Identity()
	wasRegistered := r.hub.Presence.Registered(c)

	departures := r.hub.Disconnect(c)
	for _, d := range departures {
		if d.Remaining == 0 || !hadIdentity {
			continue
		}
		r.broadcastToRoom(d.Room, memberChange{
			Type:      "user_left",
			Username:  username,
			RoomName:  d.Room,
			UserCount: d.Remaining,
		}, nil)
	}

	// Only clear the mirror when this exact connection still backed the
	// entry; a superseded connection must not knock the newer one offline.
	if hadIdentity && wasRegistered && r.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), eventTimeout)
		defer cancel()
		if err := r.mirror.Offline(ctx, userID); err != nil {
			logger.Warnf("[router] presence mirror offline user=%s err=%v", userID, err)
		}
	}
}

// HandleRelayEnvelope re-injects a remote envelope locally. Self-echoes
// were already discarded by the relay subscription.
func (r *Router) HandleRelayEnvelope(env relay.Envelope) {
	switch env.Kind {
	case relay.KindBroadcast:
		attempted, delivered := r.hub.Rooms.Broadcast(env.Room, env.Payload, nil)
		logger.Debugf("[router] relay broadcast room=%s attempted=%d delivered=%d", env.Room, attempted, delivered)
	case relay.KindSignal:
		c, ok := r.hub.Presence.Lookup(env.To)
		if !ok {
			// Best effort by contract; the signal is dropped.
			logger.Debugf("[router] relay signal target offline user=%s", env.To)
			return
		}
		if err := c.Enqueue(env.Payload); err != nil {
			logger.Infof("[router] relay signal enqueue user=%s err=%v", env.To, err)
		}
	default:
		logger.Warnf("[router] unknown relay kind %q", env.Kind)
	}
}

func (r *Router) limitIdentity(c *hub.Client) string {
	if userID := c.UserID(); userID != "" {
		return userID
	}
	return c.Remote
}

func (r *Router) send(c *hub.Client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("[router] marshal reply conn=%s err=%v", c.ConnID, err)
		return
	}
	if err := c.Enqueue(data); err != nil {
		logger.Infof("[router] reply dropped conn=%s err=%v", c.ConnID, err)
	}
}

func (r *Router) sendError(c *hub.Client, err error) {
	var ce *errs.CodeError
	if !errors.As(err, &ce) {
		// Collaborator failures surface as a generic error.
		logger.Errorf("[router] internal error conn=%s err=%v", c.ConnID, err)
		ce = errs.ErrCollaborator
	}
	msg := ce.Msg
	if ce.Detail != "" {
		msg += ": " + ce.Detail
	}
	r.send(c, errorReply{Type: "error", Message: msg, Code: ce.Code})
}

// broadcastToRoom serializes once and fans out, isolating per-member
// failures inside the registry.
func (r *Router) broadcastToRoom(room string, v any, exclude *hub.Client) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Errorf("[router] marshal broadcast room=%s err=%v", room, err)
		return
	}
	r.hub.Rooms.Broadcast(room, data, exclude)
}
