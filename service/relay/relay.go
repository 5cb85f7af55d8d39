package relay

import (
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"PulseChat/logger"
)

const (
	KindBroadcast = "broadcast"
	KindSignal    = "signal"

	subjectBroadcast = "pulsechat.relay.broadcast"
	subjectSignal    = "pulsechat.relay.signal"
)

// Envelope is the wire record republished between gateway processes.
// Origin identifies the emitting process so a receiver can drop envelopes
// it published itself.
type Envelope struct {
	Origin  string          `json:"origin"`
	Kind    string          `json:"kind"`
	Room    string          `json:"room,omitempty"`
	To      string          `json:"to,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// Handler receives remote envelopes, self-echoes already filtered out.
type Handler func(Envelope)

// Relay bridges broadcast and signal events across gateway processes over
// core NATS. A nil *Relay is valid and means single-process mode: every
// method degrades to an immediate, non-hanging answer.
type Relay struct {
	nc     *nats.Conn
	origin string
	subs   []*nats.Subscription
}

// Connect dials NATS. Callers treat a connect error as "run without a
// relay", not as fatal.
func Connect(url, origin string) (*Relay, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warnf("[relay] nats disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Infof("[relay] nats reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "relay connect")
	}
	return &Relay{nc: nc, origin: origin}, nil
}

func (r *Relay) Enabled() bool { return r != nil && r.nc != nil }

func (r *Relay) Origin() string {
	if r == nil {
		return ""
	}
	return r.origin
}

// PublishBroadcast republishes a room broadcast to the other processes.
func (r *Relay) PublishBroadcast(room string, payload []byte) error {
	if !r.Enabled() {
		return errors.New("relay disabled")
	}
	return r.publish(subjectBroadcast, Envelope{
		Origin:  r.origin,
		Kind:    KindBroadcast,
		Room:    room,
		Payload: payload,
	})
}

// PublishSignal forwards a control-plane signal toward whichever process
// holds the target user. Best effort: no durable fallback.
func (r *Relay) PublishSignal(targetUserID string, payload []byte) error {
	if !r.Enabled() {
		return errors.New("relay disabled")
	}
	return r.publish(subjectSignal, Envelope{
		Origin:  r.origin,
		Kind:    KindSignal,
		To:      targetUserID,
		Payload: payload,
	})
}

func (r *Relay) publish(subject string, env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return errors.Wrap(err, "marshal envelope")
	}
	if err := r.nc.Publish(subject, data); err != nil {
		return errors.Wrap(err, "publish "+subject)
	}
	return nil
}

// Subscribe ingests remote envelopes on both subjects. Envelopes stamped
// with the local origin are discarded before h runs.
func (r *Relay) Subscribe(h Handler) error {
	if !r.Enabled() {
		return nil
	}
	for _, subject := range []string{subjectBroadcast, subjectSignal} {
		sub, err := r.nc.Subscribe(subject, func(m *nats.Msg) {
			r.dispatch(m.Data, h)
		})
		if err != nil {
			return errors.Wrap(err, "subscribe "+subject)
		}
		r.subs = append(r.subs, sub)
	}
	return nil
}

// dispatch is the self-echo gate, split out so tests can feed raw frames.
func (r *Relay) dispatch(data []byte, h Handler) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		logger.Warnf("[relay] drop unparseable envelope: %v", err)
		return
	}
	if env.Origin == r.origin {
		return
	}
	h(env)
}

func (r *Relay) Close() {
	if !r.Enabled() {
		return
	}
	for _, sub := range r.subs {
		_ = sub.Unsubscribe()
	}
	r.nc.Close()
}
