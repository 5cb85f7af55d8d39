package relay

import (
	"encoding/json"
	"testing"
)

func TestDispatchDropsOwnEnvelopes(t *testing.T) {
	r := &Relay{origin: "gw-1"}
	var got []Envelope
	h := func(env Envelope) { got = append(got, env) }

	own, _ := json.Marshal(Envelope{Origin: "gw-1", Kind: KindBroadcast, Room: "general", Payload: []byte(`{}`)})
	remote, _ := json.Marshal(Envelope{Origin: "gw-2", Kind: KindBroadcast, Room: "general", Payload: []byte(`{}`)})

	r.dispatch(own, h)
	if len(got) != 0 {
		t.Fatal("self-published envelope must be discarded")
	}
	r.dispatch(remote, h)
	if len(got) != 1 {
		t.Fatalf("remote envelope dropped, got %d", len(got))
	}
	if got[0].Origin != "gw-2" || got[0].Room != "general" {
		t.Fatalf("envelope mangled: %+v", got[0])
	}
}

func TestDispatchDropsGarbage(t *testing.T) {
	r := &Relay{origin: "gw-1"}
	called := false
	r.dispatch([]byte("not json"), func(Envelope) { called = true })
	if called {
		t.Fatal("unparseable frame reached the handler")
	}
}

func TestNilRelayIsSingleProcessMode(t *testing.T) {
	var r *Relay
	if r.Enabled() {
		t.Fatal("nil relay should report disabled")
	}
	if r.Origin() != "" {
		t.Fatal("nil relay origin should be empty")
	}
	if err := r.PublishBroadcast("general", []byte(`{}`)); err == nil {
		t.Fatal("publish on disabled relay should error")
	}
	if err := r.PublishSignal("u1", []byte(`{}`)); err == nil {
		t.Fatal("signal on disabled relay should error")
	}
	if err := r.Subscribe(func(Envelope) {}); err != nil {
		t.Fatalf("subscribe on disabled relay should be a no-op: %v", err)
	}
	r.Close()
}

func TestSignalEnvelopeCarriesTarget(t *testing.T) {
	env := Envelope{Origin: "gw-1", Kind: KindSignal, To: "u2", Payload: []byte(`{"type":"signal"}`)}
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatal(err)
	}
	var back Envelope
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.To != "u2" || back.Kind != KindSignal || back.Room != "" {
		t.Fatalf("round trip: %+v", back)
	}
}
