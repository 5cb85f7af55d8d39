package router

import (
	"context"
	"encoding/json"
	"time"

	"PulseChat/logger"
	"PulseChat/service/hub"
	"PulseChat/service/store"
	"PulseChat/tools/decode"
	"PulseChat/tools/errs"
	"PulseChat/tools/ids"
)

func (r *Router) handleJoin(ctx context.Context, c *hub.Client, payload map[string]any) error {
	ev, err := decode.DecodeStruct[joinEvent](payload)
	if err != nil {
		return errs.ErrMalformed.WithDetail(err.Error())
	}
	if err := requireIdent("userId", ev.UserID); err != nil {
		return err
	}
	if err := requireIdent("username", ev.Username); err != nil {
		return err
	}
	if err := requireRoom(ev.Room); err != nil {
		return err
	}

	c.BindIdentity(ev.UserID, ev.Username)

	// Last join wins: an earlier connection for the same userId loses its
	// presence entry silently and is left to run out its own lifecycle.
	if superseded := r.hub.Presence.Register(c); superseded != nil {
		logger.Infof("[router] presence superseded user=%s old_conn=%s new_conn=%s",
			ev.UserID, superseded.ConnID, c.ConnID)
	}
	if r.mirror != nil {
		if err := r.mirror.Online(ctx, ev.UserID); err != nil {
			logger.Warnf("[router] presence mirror online user=%s err=%v", ev.UserID, err)
		}
	}

	count, already := r.hub.Rooms.Join(c, ev.Room)
	if !already {
		r.broadcastToRoom(ev.Room, memberChange{
			Type:      "user_joined",
			Username:  ev.Username,
			RoomName:  ev.Room,
			UserCount: count,
		}, c)
	}

	history, err := r.store.RoomHistory(ctx, ev.Room, r.historyLimit)
	if err != nil {
		logger.Errorf("[router] history room=%s err=%v", ev.Room, err)
		return errs.ErrCollaborator.WithDetail("history unavailable")
	}
	pending, err := r.store.PendingDirect(ctx, ev.UserID)
	if err != nil {
		logger.Errorf("[router] pending dms user=%s err=%v", ev.UserID, err)
		return errs.ErrCollaborator.WithDetail("pending messages unavailable")
	}

	r.send(c, joinedReply{
		Type:       "joined",
		Room:       ev.Room,
		History:    history,
		Users:      r.hub.OnlineUsernames(ev.Room),
		UserID:     ev.UserID,
		PendingDMs: len(pending),
	})

	r.deliverPending(ctx, c, pending)
	return nil
}

// deliverPending replays undelivered direct messages in creation order.
// Each message is marked delivered immediately after its own successful
// send; a failure mid-stream leaves the rest pending for the next join.
func (r *Router) deliverPending(ctx context.Context, c *hub.Client, pending []store.Message) {
	for i := range pending {
		m := pending[i]
		data, err := json.Marshal(messageFrame{Type: "dm", Message: m, Offline: true})
		if err != nil {
			logger.Errorf("[router] marshal pending dm id=%s err=%v", m.ID, err)
			continue
		}
		if err := c.Enqueue(data); err != nil {
			logger.Infof("[router] pending dm send stopped conn=%s id=%s err=%v", c.ConnID, m.ID, err)
			return
		}
		if err := r.store.MarkDelivered(ctx, m.ID); err != nil {
			logger.Errorf("[router] mark delivered id=%s err=%v", m.ID, err)
		}
	}
}

func (r *Router) handleLeave(ctx context.Context, c *hub.Client, payload map[string]any) error {
	ev, err := decode.DecodeStruct[leaveEvent](payload)
	if err != nil {
		return errs.ErrMalformed.WithDetail(err.Error())
	}
	if err := requireRoom(ev.Room); err != nil {
		return err
	}

	_, username, _ := c.Identity()
	remaining, left := r.hub.Rooms.Leave(c, ev.Room)
	if left {
		r.hub.Typing.RemoveUser(ev.Room, username)
		if remaining > 0 {
			r.broadcastToRoom(ev.Room, memberChange{
				Type:      "user_left",
				Username:  username,
				RoomName:  ev.Room,
				UserCount: remaining,
			}, nil)
		}
	}
	r.send(c, leftReply{Type: "left", Room: ev.Room})
	return nil
}

func (r *Router) handleMessage(ctx context.Context, c *hub.Client, payload map[string]any) error {
	ev, err := decode.DecodeStruct[messageEvent](payload)
	if err != nil {
		return errs.ErrMalformed.WithDetail(err.Error())
	}
	if err := requireRoom(ev.Room); err != nil {
		return err
	}
	if !r.hub.Rooms.InRoom(c.ConnID, ev.Room) {
		return errs.ErrUnauthorized.WithDetail("not a member of " + ev.Room)
	}
	content := sanitizeContent(ev.Content)
	if content == "" && ev.MediaURL == "" {
		return errs.ErrMalformed.WithDetail("empty content")
	}

	userID, username, _ := c.Identity()
	m := &store.Message{
		ID:           ids.GenerateString(),
		Kind:         store.KindRoom,
		Room:         ev.Room,
		From:         userID,
		FromUsername: username,
		Content:      content,
		MediaURL:     ev.MediaURL,
		MediaType:    ev.MediaType,
		CreatedAt:    time.Now().UTC(),
		Delivered:    true,
	}
	if err := r.store.SaveMessage(ctx, m); err != nil {
		logger.Errorf("[router] save room message err=%v", err)
		return errs.ErrCollaborator
	}

	// Broadcast the persisted representation, sender included, so every
	// tab sees the same server-assigned id and timestamp.
	data, err := json.Marshal(messageFrame{Type: "message", Message: *m})
	if err != nil {
		return errs.ErrCollaborator
	}
	attempted, delivered := r.hub.Rooms.Broadcast(ev.Room, data, nil)
	logger.Debugf("[router] message room=%s attempted=%d delivered=%d", ev.Room, attempted, delivered)

	if r.relay.Enabled() {
		if err := r.relay.PublishBroadcast(ev.Room, data); err != nil {
			logger.Warnf("[router] relay publish room=%s err=%v", ev.Room, err)
		}
	}
	return nil
}

func (r *Router) handleDM(ctx context.Context, c *hub.Client, payload map[string]any) error {
	ev, err := decode.DecodeStruct[dmEvent](payload)
	if err != nil {
		return errs.ErrMalformed.WithDetail(err.Error())
	}
	if err := requireIdent("recipientId", ev.RecipientID); err != nil {
		return err
	}
	content := sanitizeContent(ev.Content)
	if content == "" && ev.EncContent == "" {
		return errs.ErrMalformed.WithDetail("empty content")
	}

	userID, username, _ := c.Identity()
	blocked, err := r.blocks.IsBlocked(ctx, userID, ev.RecipientID)
	if err != nil {
		logger.Errorf("[router] block check %s->%s err=%v", userID, ev.RecipientID, err)
		return errs.ErrCollaborator
	}
	if blocked {
		return errs.ErrBlocked
	}

	m := &store.Message{
		ID:           ids.GenerateString(),
		Kind:         store.KindDirect,
		From:         userID,
		FromUsername: username,
		To:           ev.RecipientID,
		Content:      content,
		Encrypted:    ev.Encrypted,
		EncContent:   ev.EncContent,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.store.SaveMessage(ctx, m); err != nil {
		logger.Errorf("[router] save dm err=%v", err)
		return errs.ErrCollaborator
	}

	// Delivery completes (or the recipient is determined unreachable)
	// before the sender's acknowledgment is produced.
	status := r.deliverDirect(ctx, m)
	r.send(c, dmSentReply{Type: "dm_sent", To: ev.RecipientID, Status: status, MessageID: m.ID})
	return nil
}

// deliverDirect tries live local delivery and falls back to the durable
// queue. DMs never ride the relay; offline is a normal outcome, not an
// error.
func (r *Router) deliverDirect(ctx context.Context, m *store.Message) string {
	if recipient, ok := r.hub.Presence.Lookup(m.To); ok {
		data, err := json.Marshal(messageFrame{Type: "dm", Message: *m})
		if err == nil && recipient.Enqueue(data) == nil {
			if err := r.store.MarkDelivered(ctx, m.ID); err != nil {
				logger.Errorf("[router] mark delivered id=%s err=%v", m.ID, err)
			}
			return "delivered"
		}
	}
	if r.queue != nil {
		if err := r.queue.Enqueue(m); err != nil {
			logger.Warnf("[router] offline queue id=%s err=%v", m.ID, err)
		}
	}
	return "offline"
}

func (r *Router) handleGroupMessage(ctx context.Context, c *hub.Client, payload map[string]any) error {
	ev, err := decode.DecodeStruct[groupMessageEvent](payload)
	if err != nil {
		return errs.ErrMalformed.WithDetail(err.Error())
	}
	if len(ev.RecipientIDs) == 0 {
		return errs.ErrMalformed.WithDetail("no recipients")
	}
	for _, id := range ev.RecipientIDs {
		if err := requireIdent("recipientId", id); err != nil {
			return err
		}
	}
	content := sanitizeContent(ev.Content)
	if content == "" {
		return errs.ErrMalformed.WithDetail("empty content")
	}

	userID, username, _ := c.Identity()
	now := time.Now().UTC()

	// Per-recipient outcomes are independent: a failure for one never
	// blocks delivery to the rest.
	delivered := 0
	var offline []string
	for _, to := range ev.RecipientIDs {
		blocked, err := r.blocks.IsBlocked(ctx, userID, to)
		if err != nil {
			logger.Errorf("[router] group block check %s->%s err=%v", userID, to, err)
			offline = append(offline, to)
			continue
		}
		if blocked {
			offline = append(offline, to)
			continue
		}
		m := &store.Message{
			ID:           ids.GenerateString(),
			Kind:         store.KindGroup,
			From:         userID,
			FromUsername: username,
			To:           to,
			GroupName:    ev.GroupName,
			Content:      content,
			CreatedAt:    now,
		}
		if err := r.store.SaveMessage(ctx, m); err != nil {
			logger.Errorf("[router] save group message to=%s err=%v", to, err)
			offline = append(offline, to)
			continue
		}
		if r.deliverDirect(ctx, m) == "delivered" {
			delivered++
		} else {
			offline = append(offline, to)
		}
	}

	r.send(c, groupSentReply{
		Type:         "group_message_sent",
		RecipientIDs: ev.RecipientIDs,
		GroupName:    ev.GroupName,
		Delivered:    delivered,
		Offline:      len(offline),
		OfflineIDs:   offline,
	})
	return nil
}

func (r *Router) handleTyping(ctx context.Context, c *hub.Client, payload map[string]any) error {
	ev, err := decode.DecodeStruct[typingEvent](payload)
	if err != nil {
		return errs.ErrMalformed.WithDetail(err.Error())
	}
	if err := requireRoom(ev.Room); err != nil {
		return err
	}
	if !r.hub.Rooms.InRoom(c.ConnID, ev.Room) {
		return errs.ErrUnauthorized.WithDetail("not a member of " + ev.Room)
	}

	_, username, _ := c.Identity()
	users := r.hub.Typing.Set(ev.Room, username, ev.IsTyping)
	// Full current list, not a delta: bounded by room size and trivial
	// for clients to render.
	r.broadcastToRoom(ev.Room, typingBroadcast{Type: "typing", RoomName: ev.Room, Users: users}, nil)
	return nil
}

func (r *Router) handleSignal(ctx context.Context, c *hub.Client, payload map[string]any) error {
	ev, err := decode.DecodeStruct[signalEvent](payload)
	if err != nil {
		return errs.ErrMalformed.WithDetail(err.Error())
	}
	if err := requireIdent("to", ev.To); err != nil {
		return err
	}
	inner, err := json.Marshal(ev.Payload)
	if err != nil {
		return errs.ErrMalformed.WithDetail("unencodable payload")
	}

	userID, _, _ := c.Identity()
	frame, err := json.Marshal(signalFrame{Type: "signal", From: userID, Payload: inner})
	if err != nil {
		return errs.ErrCollaborator
	}

	if target, ok := r.hub.Presence.Lookup(ev.To); ok {
		if err := target.Enqueue(frame); err != nil {
			return errs.ErrUnreachable.WithDetail(err.Error())
		}
		r.send(c, signalSentReply{Type: "signal_sent", To: ev.To, OK: true})
		return nil
	}
	if r.relay.Enabled() {
		if err := r.relay.PublishSignal(ev.To, frame); err != nil {
			logger.Warnf("[router] relay signal to=%s err=%v", ev.To, err)
			return errs.ErrCollaborator
		}
		r.send(c, signalSentReply{Type: "signal_sent", To: ev.To, OK: true, Via: "relay"})
		return nil
	}
	// Best effort by contract: no durable store on this path.
	return errs.ErrUnreachable
}

func (r *Router) handleGetRooms(ctx context.Context, c *hub.Client, payload map[string]any) error {
	r.send(c, roomListReply{Type: "room_list", Rooms: r.hub.Rooms.Rooms()})
	return nil
}

func (r *Router) handleGetUsers(ctx context.Context, c *hub.Client, payload map[string]any) error {
	ev, err := decode.DecodeStruct[getUsersEvent](payload)
	if err != nil {
		return errs.ErrMalformed.WithDetail(err.Error())
	}
	if err := requireRoom(ev.Room); err != nil {
		return err
	}
	r.send(c, userListReply{Type: "user_list", Room: ev.Room, Users: r.hub.OnlineUsernames(ev.Room)})
	return nil
}

func (r *Router) handleMessageSeen(ctx context.Context, c *hub.Client, payload map[string]any) error {
	ev, err := decode.DecodeStruct[messageRefEvent](payload)
	if err != nil || ev.MessageID == "" {
		return errs.ErrMalformed.WithDetail("missing messageId")
	}
	userID, _, _ := c.Identity()
	if err := r.store.MarkSeen(ctx, ev.MessageID, userID); err != nil {
		logger.Errorf("[router] mark seen id=%s err=%v", ev.MessageID, err)
		return errs.ErrCollaborator
	}
	return nil
}

func (r *Router) handleStarMessage(ctx context.Context, c *hub.Client, payload map[string]any) error {
	ev, err := decode.DecodeStruct[messageRefEvent](payload)
	if err != nil || ev.MessageID == "" {
		return errs.ErrMalformed.WithDetail("missing messageId")
	}
	userID, _, _ := c.Identity()
	if err := r.store.Star(ctx, ev.MessageID, userID); err != nil {
		logger.Errorf("[router] star id=%s err=%v", ev.MessageID, err)
		return errs.ErrCollaborator
	}
	r.send(c, starredReply{Type: "message_starred", MessageID: ev.MessageID})
	return nil
}

func (r *Router) handlePinMessage(ctx context.Context, c *hub.Client, payload map[string]any) error {
	ev, err := decode.DecodeStruct[messageRefEvent](payload)
	if err != nil || ev.MessageID == "" {
		return errs.ErrMalformed.WithDetail("missing messageId")
	}
	if err := requireRoom(ev.RoomName); err != nil {
		return err
	}
	if !r.hub.Rooms.InRoom(c.ConnID, ev.RoomName) {
		return errs.ErrUnauthorized.WithDetail("not a member of " + ev.RoomName)
	}
	if err := r.store.Pin(ctx, ev.MessageID); err != nil {
		logger.Errorf("[router] pin id=%s err=%v", ev.MessageID, err)
		return errs.ErrCollaborator
	}

	_, username, _ := c.Identity()
	change := pinnedBroadcast{
		Type:      "message_pinned",
		MessageID: ev.MessageID,
		RoomName:  ev.RoomName,
		PinnedBy:  username,
	}
	r.broadcastToRoom(ev.RoomName, change, nil)
	if r.relay.Enabled() {
		if data, err := json.Marshal(change); err == nil {
			if err := r.relay.PublishBroadcast(ev.RoomName, data); err != nil {
				logger.Warnf("[router] relay pin room=%s err=%v", ev.RoomName, err)
			}
		}
	}
	return nil
}
